package emitter

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Cast converts a value or a host literal to dtype. Casting a value to its
// own type returns the very same value.
func (e *Emitter) Cast(x any, dtype *types.Type) (*value.Value, error) {
	if v, ok := x.(*value.Value); ok && v.DType().Equal(dtype) {
		return v, nil
	}
	text, err := e.doCast(x, dtype)
	if err != nil {
		return nil, err
	}
	kind := value.Temp
	if v, ok := x.(*value.Value); ok {
		kind = v.Kind()
	}
	return value.New(dtype, text, kind), nil
}

// CastText is Cast returning the expression text only.
func (e *Emitter) CastText(x any, dtype *types.Type) (string, error) {
	if v, ok := x.(*value.Value); ok && v.DType().Equal(dtype) {
		return v.Text(), nil
	}
	return e.doCast(x, dtype)
}

func (e *Emitter) castTo(x any, dtype *types.Type) (*value.Value, error) {
	text, err := e.CastText(x, dtype)
	if err != nil {
		return nil, err
	}
	return value.NewTemp(dtype, text), nil
}

func (e *Emitter) doCast(x any, dtype *types.Type) (string, error) {
	if _, ok := x.(*value.Value); !ok {
		cx, err := e.ConvertLiteral(x)
		if err != nil {
			return "", err
		}
		x = cx
	}

	switch v := x.(type) {
	case *value.Value:
		if v.DType().IsArray() {
			return e.castArrayValue(v, dtype)
		}
	case value.Sequence, []any:
		return e.castArrayLiteral(v, dtype)
	}

	text, err := e.CastScalar(x, dtype.ElementType())
	if err != nil {
		return "", err
	}
	if dtype.IsArray() {
		text = e.Broadcast(text, dtype)
	}
	return text, nil
}

func (e *Emitter) castArrayValue(v *value.Value, dtype *types.Type) (string, error) {
	shape, vshape := dtype.ArrayShape(), v.DType().ArrayShape()
	if !sameShape(shape, vshape) {
		return "", types.Errorf("Shape mismatch: %v vs. %v", vshape, shape)
	}
	etype, vetype := dtype.ElementType(), v.DType().ElementType()
	base := Paren(v.Text())
	var parts []string
	for _, idx := range NDIndex(shape) {
		coords := make([]string, len(idx))
		for i, x := range idx {
			coords[i] = fmt.Sprint(x)
		}
		elem := value.NewTemp(vetype, e.Index(base, coords))
		text, err := e.CastScalar(elem, etype)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return e.ArrayLiteral(parts, shape), nil
}

func (e *Emitter) castArrayLiteral(x any, dtype *types.Type) (string, error) {
	flat, lshape, err := flattenLiteral(x)
	if err != nil {
		return "", err
	}
	shape := dtype.ArrayShape()
	if !sameShape(shape, lshape) {
		return "", types.Errorf("Shape mismatch: %v vs. %v", lshape, shape)
	}
	etype := dtype.ElementType()
	parts := make([]string, len(flat))
	for i, item := range flat {
		if _, ok := item.(*value.Value); !ok {
			if item, err = e.ConvertLiteral(item); err != nil {
				return "", err
			}
		}
		if parts[i], err = e.CastScalar(item, etype); err != nil {
			return "", err
		}
	}
	return e.ArrayLiteral(parts, shape), nil
}

func seqItems(x any) ([]any, bool) {
	switch s := x.(type) {
	case []any:
		return s, true
	case value.Sequence:
		return s.Items(), true
	}
	return nil, false
}

// flattenLiteral walks nested host lists, checking they are rectangular.
func flattenLiteral(x any) ([]any, []int, error) {
	items, ok := seqItems(x)
	if !ok {
		return []any{x}, nil, nil
	}
	var (
		flat  []any
		inner []int
	)
	for i, item := range items {
		f, s, err := flattenLiteral(item)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			inner = s
		} else if !sameShape(inner, s) {
			return nil, nil, types.Errorf("Ragged array literal: %v vs. %v", s, inner)
		}
		flat = append(flat, f...)
	}
	return flat, append([]int{len(items)}, inner...), nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ConvertInt turns a host integer into a value of the smallest fitting
// unsigned (or signed, when negative) type.
func (e *Emitter) ConvertInt(v int64) (*value.Value, error) {
	nbits := BitLength(v)
	if nbits == 0 {
		nbits = 1
	}
	dtype := types.NewUint(nbits)
	if v < 0 {
		dtype = types.NewSint(nbits + 1)
	}
	return e.castTo(v, dtype)
}

// TClassCast casts a host literal to the given type class, picking the
// width from the literal itself.
func (e *Emitter) TClassCast(kind types.Kind, x any) (*value.Value, error) {
	var dtype *types.Type
	switch kind {
	case types.KindUint, types.KindSint:
		iv, ok := AsInt(x)
		if !ok {
			f, fok := AsFloat(x)
			if !fok {
				return nil, types.Errorf("Unsupported class %s while converting %v", kind, x)
			}
			iv = int64(f)
		}
		nbits := BitLength(iv)
		if nbits == 0 {
			nbits = 1
		}
		if kind == types.KindSint {
			nbits++
		}
		dtype = types.New(kind, nbits)
		x = iv
	case types.KindBits:
		nbits := 0
		switch v := x.(type) {
		case string:
			nbits = len(v)
			if len(v) > 2 && v[:2] == "0b" {
				nbits -= 2
			}
		default:
			iv, ok := AsInt(x)
			if !ok {
				return nil, types.Errorf("Unsupported class %s while converting %v", kind, x)
			}
			nbits = BitLength(iv)
		}
		if nbits == 0 {
			nbits = 1
		}
		dtype = types.NewBits(nbits)
	case types.KindFloat:
		dtype = e.DefaultFloatType()
	case types.KindBool, types.KindInteger, types.KindReal:
		dtype = types.New(kind)
	default:
		return nil, types.Errorf("Unsupported class %s while converting %v", kind, x)
	}
	return e.Cast(x, dtype)
}
