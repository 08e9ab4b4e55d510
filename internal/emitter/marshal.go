package emitter

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Host literal classes allowed as operands next to hardware values, lower
// index wins when both appear.
const (
	hostFloat = 1
	hostInt   = 2
)

func hostClass(x any) int {
	if _, ok := AsInt(x); ok {
		return hostInt
	}
	if _, ok := AsFloat(x); ok {
		return hostFloat
	}
	return -1
}

func (e *Emitter) literal(x any) (any, error) {
	if _, ok := x.(*value.Value); ok {
		return x, nil
	}
	return e.ConvertLiteral(x)
}

// marshal casts args to the common type picked by the precedence table.
// Host numbers which the backend accepts verbatim are not cast.
func (e *Emitter) marshal(args []any, table *types.PrecTable, nocast bool) ([]*value.Value, error) {
	cargs := make([]any, len(args))
	var (
		dtype *types.Type
		ctype int
		err   error
	)
	for i, arg := range args {
		if cargs[i], err = e.literal(arg); err != nil {
			return nil, err
		}
		if v, ok := cargs[i].(*value.Value); ok {
			if dtype, err = types.BestType(dtype, v.DType(), table); err != nil {
				return nil, err
			}
			continue
		}
		yc := hostClass(cargs[i])
		if yc < 0 {
			return nil, types.Errorf("Type %T not allowed, should be one of (int, float)", cargs[i])
		}
		if ctype == 0 || ctype > yc {
			ctype = yc
		}
	}
	dtype = types.ResultType(dtype, table)
	if dtype == nil {
		if ctype == hostFloat {
			dtype = types.RealType
		} else {
			dtype = types.IntType
		}
	}

	out := make([]*value.Value, len(cargs))
	for i, arg := range cargs {
		if v, ok := arg.(*value.Value); ok {
			if !v.DType().Equal(dtype) {
				if out[i], err = e.castTo(v, dtype); err != nil {
					return nil, err
				}
			} else {
				out[i] = v
			}
		} else if nocast && e.NoCast(arg, dtype.Kind()) {
			out[i] = value.NewTemp(dtype, e.SValue(arg))
		} else if out[i], err = e.castTo(arg, dtype); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Emitter) marshalConcat(args []any) (*types.Type, []*value.Value, error) {
	var (
		dtype *types.Type
		nbits int
	)
	vals := make([]*value.Value, len(args))
	for i, arg := range args {
		x, err := e.literal(arg)
		if err != nil {
			return nil, nil, err
		}
		v, ok := x.(*value.Value)
		if !ok {
			iv, iok := AsInt(x)
			if !iok {
				return nil, nil, types.Errorf("Integer type required: %v", x)
			}
			if v, err = e.ConvertInt(iv); err != nil {
				return nil, nil, err
			}
		}
		vals[i] = v
		nbits += v.DType().NBits()
		if dtype, err = types.BestType(dtype, v.DType(), types.Concat); err != nil {
			return nil, nil, err
		}
	}
	dtype = types.ResultType(dtype, types.Concat)
	for i, v := range vals {
		if v.DType().Kind() != dtype.Kind() {
			cv, err := e.castTo(v, types.New(dtype.Kind(), v.DType().NBits()))
			if err != nil {
				return nil, nil, err
			}
			vals[i] = cv
		}
	}
	return types.New(dtype.Kind(), nbits), vals, nil
}

func (e *Emitter) marshalBit(args []any) ([]*value.Value, error) {
	var (
		dtype *types.Type
		err   error
	)
	cargs := make([]any, len(args))
	maxBits := 0
	for i, arg := range args {
		if cargs[i], err = e.literal(arg); err != nil {
			return nil, err
		}
		if v, ok := cargs[i].(*value.Value); ok {
			if dtype, err = types.BestType(dtype, v.DType(), types.Bit); err != nil {
				return nil, err
			}
			continue
		}
		iv, ok := AsInt(cargs[i])
		if !ok {
			return nil, types.Errorf("Integer type required: %v", cargs[i])
		}
		if n := BitLength(iv); n > maxBits {
			maxBits = n
		}
	}
	dtype = types.ResultType(dtype, types.Bit)
	if dtype == nil {
		if maxBits == 0 {
			maxBits = 1
		}
		dtype = types.NewUint(maxBits)
	}
	out := make([]*value.Value, len(cargs))
	for i, arg := range cargs {
		if out[i], err = e.castTo(arg, dtype); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Emitter) marshalShift(left, right any) (*value.Value, *value.Value, error) {
	var (
		rv  *value.Value
		err error
	)
	switch r := right.(type) {
	case *value.Value:
		rv = r
		if r.DType().Kind() != types.KindInteger {
			if rv, err = e.castTo(r, types.IntType); err != nil {
				return nil, nil, err
			}
		}
	default:
		iv, ok := AsInt(right)
		if !ok {
			return nil, nil, types.Errorf("Shift amount should be an integer: %v", right)
		}
		rv = value.NewTemp(types.IntType, fmt.Sprint(iv))
	}

	x, err := e.literal(left)
	if err != nil {
		return nil, nil, err
	}
	lv, ok := x.(*value.Value)
	if !ok {
		iv, iok := AsInt(x)
		if !iok {
			return nil, nil, types.Errorf("Shift operand should be an integer: %v", x)
		}
		if lv, err = e.ConvertInt(iv); err != nil {
			return nil, nil, err
		}
	}
	switch lv.DType().Kind() {
	case types.KindBits, types.KindSint, types.KindUint, types.KindInteger:
	default:
		return nil, nil, types.Errorf("Unexpected type for shift operand: %s", lv.DType())
	}
	return lv, rv, nil
}

// BinOp lowers a binary operator. At least one operand is expected to be a
// hardware value.
func (e *Emitter) BinOp(op Op, left, right any) (*value.Value, error) {
	switch {
	case op.IsArith():
		args, err := e.marshal([]any{left, right}, types.Arith, true)
		if err != nil {
			return nil, err
		}
		e.debugf("\tBinOp: %s\t%s\t%s", args[0].Text(), op, args[1].Text())
		text, err := e.ArithText(op, args[0], args[1])
		if err != nil {
			return nil, err
		}
		return value.NewTemp(args[0].DType(), text), nil
	case op.IsShift():
		l, r, err := e.marshalShift(left, right)
		if err != nil {
			return nil, err
		}
		e.debugf("\tBinOp: %s\t%s\t%s", l.Text(), op, r.Text())
		return value.NewTemp(l.DType(), e.OpText(op, l.Text(), r.Text())), nil
	case op.IsBit():
		args, err := e.marshalBit([]any{left, right})
		if err != nil {
			return nil, err
		}
		e.debugf("\tBinOp: %s\t%s\t%s", args[0].Text(), op, args[1].Text())
		return value.NewTemp(args[0].DType(), e.OpText(op, args[0].Text(), args[1].Text())), nil
	case op == OpConcat:
		dtype, args, err := e.marshalConcat([]any{left, right})
		if err != nil {
			return nil, err
		}
		e.debugf("\tBinOp: %s\t%s\t%s", args[0].Text(), op, args[1].Text())
		return value.NewTemp(dtype, e.ConcatText(args[0].Text(), args[1].Text())), nil
	}
	return nil, types.Errorf("Unsupported operation: %s", op)
}

// UnaryOp lowers -x, +x, not x and ~x.
func (e *Emitter) UnaryOp(op Op, arg any) (*value.Value, error) {
	x, err := e.literal(arg)
	if err != nil {
		return nil, err
	}
	v, ok := x.(*value.Value)
	if !ok {
		return nil, types.Errorf("Unsupported operand for %s: %v", op, arg)
	}
	e.debugf("\tUnaryOp: %s\t%s", op, v.Text())
	if op == OpNot {
		// Logical negation works on the boolean view of the operand.
		if v, err = e.castTo(v, types.BoolType); err != nil {
			return nil, err
		}
	}
	if op == OpUAdd {
		return value.NewTemp(v.DType(), v.Text()), nil
	}
	text, err := e.UnaryText(op, v)
	if err != nil {
		return nil, err
	}
	return value.NewTemp(v.DType(), text), nil
}

// BoolOp lowers "and" and "or" chains.
func (e *Emitter) BoolOp(op Op, args []any) (*value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		text, err := e.CastText(a, types.BoolType)
		if err != nil {
			return nil, err
		}
		parts[i] = text
	}
	e.debugf("\tBoolOp: %s\t%v", op, parts)
	return value.NewTemp(types.BoolType, ParenJoin(e.LogicJoiner(op), parts)), nil
}

// Compare lowers a comparison chain "a < b <= c".
func (e *Emitter) Compare(left any, ops []Op, comps []any) (*value.Value, error) {
	args, err := e.marshal(append([]any{left}, comps...), types.Compare, false)
	if err != nil {
		return nil, err
	}
	results := make([]string, len(ops))
	for i, op := range ops {
		if !op.IsCompare() {
			return nil, types.Errorf("Unsupported comparison: %s", op)
		}
		results[i] = e.OpText(op, args[i].Text(), args[i+1].Text())
	}
	e.debugf("\tCompare: %v\t%v", ops, results)
	return value.NewTemp(types.BoolType, ParenJoin(e.LogicJoiner(OpAnd), results)), nil
}

// IfExp lowers "body if test else orelse".
func (e *Emitter) IfExp(test, body, orelse any) (*value.Value, error) {
	xtest, err := e.CastText(test, types.BoolType)
	if err != nil {
		return nil, err
	}
	args, err := e.marshal([]any{body, orelse}, types.IfExp, false)
	if err != nil {
		return nil, err
	}
	e.debugf("\tIfExp: %s ? %s : %s", xtest, args[0].Text(), args[1].Text())
	return value.NewTemp(args[0].DType(), e.IfExpText(xtest, args[0], args[1])), nil
}

// Subscript lowers indexing and slicing. The result keeps the reference of
// arg so that it can be assigned to.
func (e *Emitter) Subscript(arg *value.Value, idx []any) (*value.Value, error) {
	ashape := arg.DType().Shape()
	if len(idx) > len(ashape) {
		return nil, types.Errorf("Wrong indexing for shape: %v vs. %v", idx, ashape)
	}
	var shape []int
	coords := make([]string, 0, len(idx))
	for i, ix := range idx {
		last := i == len(ashape)-1
		switch x := ix.(type) {
		case Slice:
			if sv, ok := x.Start.(*value.Value); ok {
				if x.Stop != nil {
					return nil, types.Errorf("Variable part select (%s [%d]) slice stop must be empty: %v", arg.Text(), i, x.Stop)
				}
				if x.Width <= 0 || x.Width > ashape[i] {
					return nil, types.Errorf("Variable part select (%s [%d]) has invalid width: %d (%d)", arg.Text(), i, x.Width, ashape[i])
				}
				base, err := e.CastText(sv, types.IntType)
				if err != nil {
					return nil, err
				}
				coords = append(coords, e.PartSelect(Paren(base), x.Width, last))
				shape = append(shape, x.Width)
				continue
			}
			if x.Step != nil {
				if step, ok := AsInt(x.Step); !ok || step != 1 {
					return nil, types.Errorf("Slice step must be 1: %v", x.Step)
				}
			}
			start, err := optInt(x.Start)
			if err != nil {
				return nil, err
			}
			stop, err := optInt(x.Stop)
			if err != nil {
				return nil, err
			}
			s, t := NormSlice(start, stop, ashape[i])
			if s < 0 || s >= ashape[i] || t <= s || t > ashape[i] {
				return nil, types.Errorf("Slice (%s [%d]) is out of bounds: %d ... %d (%d)", arg.Text(), i, s, t, ashape[i])
			}
			coords = append(coords, e.SliceCoord(s, t, last))
			shape = append(shape, t-s)
		case *value.Value:
			text, err := e.CastText(x, types.IntType)
			if err != nil {
				return nil, err
			}
			coords = append(coords, text)
			shape = append(shape, 1)
		default:
			iv, ok := AsInt(ix)
			if !ok {
				return nil, types.Errorf("Invalid index: %v", ix)
			}
			if iv < 0 {
				iv += int64(ashape[i])
			}
			if iv < 0 || iv >= int64(ashape[i]) {
				return nil, types.Errorf("Index %d of %s is out of bounds (%d)", iv, arg.Text(), ashape[i])
			}
			coords = append(coords, fmt.Sprint(iv))
			shape = append(shape, 1)
		}
	}
	full := arg.DType().FullShape()
	shape = Squeeze(append(shape, full[len(idx):]...))
	text := e.Index(arg.Text(), coords)

	var mat any = text
	if ref := arg.Ref(); ref != nil {
		mat = ref.WithName(text)
	}
	return value.New(arg.DType().NewShape(shape...), mat, arg.Kind()), nil
}

func optInt(x any) (*int, error) {
	if x == nil {
		return nil, nil
	}
	iv, ok := AsInt(x)
	if !ok {
		return nil, types.Errorf("Slice bounds must be integers: %v", x)
	}
	n := int(iv)
	return &n, nil
}

// Extension calls a named backend extension function.
func (e *Emitter) Extension(name string, v *value.Value) (*value.Value, error) {
	fn, ok := ExtensionOps[name]
	if !ok {
		return nil, fmt.Errorf("unknown extension function: %s", name)
	}
	ext, ok := e.Dialect.(Extensions)
	if !ok {
		return nil, fmt.Errorf("backend %s does not implement %s", e.Kind(), name)
	}
	return fn(ext, v)
}
