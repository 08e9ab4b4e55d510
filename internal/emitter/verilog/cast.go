package verilog

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

var logicRemap = map[rune]rune{
	'0': '0', '1': '1', 'X': 'x', 'U': 'x', 'Z': 'z', 'W': 'x', 'H': '1', 'L': '0',
}

// typeOf returns the declaration of dtype with a "{}" placeholder where the
// declared name goes.
func (d *Dialect) typeOf(dtype *types.Type, kind string) (string, error) {
	if kind == "" {
		kind = "logic"
	}
	nbits, shape := dtype.NBits(), dtype.ArrayShape()
	var sb strings.Builder
	for _, x := range shape {
		fmt.Fprintf(&sb, "[%d]", x)
	}
	adims := sb.String()

	switch dtype.Kind() {
	case types.KindUint:
		return fmt.Sprintf("%s [%d: 0] {}%s", kind, nbits-1, adims), nil
	case types.KindSint:
		return fmt.Sprintf("%s signed [%d: 0] {}%s", kind, nbits-1, adims), nil
	case types.KindBits:
		if nbits == 1 {
			return fmt.Sprintf("%s {}%s", kind, adims), nil
		}
		return fmt.Sprintf("%s [%d: 0] {}%s", kind, nbits-1, adims), nil
	case types.KindBool:
		return fmt.Sprintf("%s {}%s", kind, adims), nil
	case types.KindInteger:
		return "integer {}" + adims, nil
	case types.KindReal:
		return "real {}" + adims, nil
	case types.KindFloat:
		fspec, err := d.e.FloatSpec(dtype)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s [%d: 0] {}%s", kind, fspec.Exp+fspec.Mant, adims), nil
	}
	return "", types.Errorf("Unknown type: %s", dtype)
}

func declare(tdecl, name string) string {
	return strings.Replace(tdecl, "{}", name, 1)
}

func (d *Dialect) fpParams(dtype *types.Type, extra ...entity.Param) ([]entity.Param, error) {
	fspec, err := d.e.FloatSpec(dtype)
	if err != nil {
		return nil, err
	}
	return append([]entity.Param{
		{Name: "NX", Value: fmt.Sprint(fspec.Exp)},
		{Name: "NM", Value: fmt.Sprint(fspec.Mant)},
	}, extra...), nil
}

func nint(n int) entity.Param { return entity.Param{Name: "NINT", Value: fmt.Sprint(n)} }

// ConvertLiteral turns booleans, None, bit strings and typed integer strings
// into values. Host numbers are left alone, they cast with fewer resizes.
func (d *Dialect) ConvertLiteral(x any) (any, error) {
	switch v := x.(type) {
	case bool:
		return value.NewTemp(types.BoolType, d.SValue(v)), nil
	case nil:
		return value.MkNone(types.VoidType), nil
	case string:
		if bits, ok := emitter.MatchBitString(v, logicRemap); ok {
			return value.NewTemp(types.NewBits(len(bits)), fmt.Sprintf("%d'b%s", len(bits), bits)), nil
		}
		dtype, iv, ok, err := emitter.MatchIntString(v)
		if err != nil {
			return nil, err
		}
		if ok {
			return value.NewTemp(dtype, intLiteral(iv, dtype.NBits(), dtype.Kind() == types.KindSint)), nil
		}
	}
	return x, nil
}

func intLiteral(iv int64, nbits int, signed bool) string {
	var lit string
	if emitter.FitsInt32(iv) {
		lit = fmt.Sprintf("%d'(%d)", nbits, iv)
	} else {
		lit = fmt.Sprintf("%d'b%s", nbits, emitter.TwosComplement(iv, nbits))
	}
	if signed {
		return "signed'(" + lit + ")"
	}
	return lit
}

func (d *Dialect) CastScalar(x any, dtype *types.Type) (string, error) {
	switch dtype.Kind() {
	case types.KindBool:
		return d.toBool(x)
	case types.KindUint:
		return d.toInt(x, dtype, false)
	case types.KindSint:
		return d.toInt(x, dtype, true)
	case types.KindBits:
		return d.toBits(x, dtype)
	case types.KindFloat:
		return d.toFloat(x, dtype)
	case types.KindInteger:
		return d.toInteger(x)
	case types.KindReal:
		return d.toReal(x)
	}
	return "", types.Errorf("Unknown type: %s", dtype)
}

func (d *Dialect) resizeBits(v *value.Value, nbits int) string {
	if v.DType().NBits() == nbits {
		return v.Text()
	}
	return fmt.Sprintf("%d'(%s)", nbits, v.Text())
}

func (d *Dialect) toBool(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindBool:
			return xv, nil
		case types.KindUint, types.KindSint, types.KindBits:
			return "|" + emitter.Paren(xv), nil
		}
		zero, err := d.CastScalar(int64(0), v.DType().ElementType())
		if err != nil {
			return "", err
		}
		return emitter.Paren(xv) + " != " + zero, nil
	}
	b, err := emitter.HostTruth(x)
	if err != nil {
		return "", err
	}
	return d.SValue(b), nil
}

func (d *Dialect) toInt(x any, dtype *types.Type, signed bool) (string, error) {
	nbits := dtype.NBits()
	itype := "unsigned"
	if signed {
		itype = "signed"
	}
	wrapUnsigned := func(s string) string {
		if signed {
			return s
		}
		return "unsigned'(" + s + ")"
	}
	if v, ok := x.(*value.Value); ok {
		switch v.DType().Kind() {
		case types.KindUint, types.KindSint:
			xv := d.resizeBits(v, nbits)
			if v.DType().Kind() != dtype.Kind() {
				return itype + "'(" + xv + ")", nil
			}
			return xv, nil
		case types.KindBits:
			xv := d.resizeBits(v, nbits)
			if signed {
				return "signed'(" + xv + ")", nil
			}
			return xv, nil
		case types.KindFloat:
			// The conversion helper is parameterized by the source format.
			params, err := d.fpParams(v.DType(), nint(nbits))
			if err != nil {
				return "", err
			}
			call, err := d.fpCall("to_integer", params)
			if err != nil {
				return "", err
			}
			return wrapUnsigned(fmt.Sprintf("%d'(%s(%s))", nbits, call, v.Text())), nil
		case types.KindInteger:
			return wrapUnsigned(fmt.Sprintf("%d'(%s)", nbits, v.Text())), nil
		case types.KindReal:
			return wrapUnsigned(fmt.Sprintf("%d'($rtoi(%s))", nbits, v.Text())), nil
		case types.KindBool:
			xv := fmt.Sprintf("%d'(%s)", nbits, v.Text())
			if signed {
				return "signed'(" + xv + ")", nil
			}
			return xv, nil
		}
		return "", types.Errorf("Unknown type: %s", v.DType())
	}
	if iv, ok := emitter.AsInt(x); ok {
		if !emitter.FitsInt32(iv) {
			return intLiteral(iv, nbits, signed), nil
		}
		return wrapUnsigned(fmt.Sprintf("%d'(%d)", nbits, iv)), nil
	}
	if f, ok := emitter.AsFloat(x); ok {
		return wrapUnsigned(fmt.Sprintf("%d'(%d)", nbits, int64(f))), nil
	}
	b, err := emitter.HostTruth(x)
	if err != nil {
		return "", err
	}
	n := 0
	if b {
		n = 1
	}
	return wrapUnsigned(fmt.Sprintf("%d'(%d)", nbits, n)), nil
}

func (d *Dialect) toBits(x any, dtype *types.Type) (string, error) {
	nbits := dtype.NBits()
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindUint, types.KindSint:
			rv := d.resizeBits(v, nbits)
			if v.DType().Kind() == types.KindSint {
				return "unsigned'(" + rv + ")", nil
			}
			return rv, nil
		case types.KindBits:
			return d.resizeBits(v, nbits), nil
		case types.KindFloat:
			params, err := d.fpParams(v.DType(), nint(nbits))
			if err != nil {
				return "", err
			}
			call, err := d.fpCall("to_integer", params)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("unsigned'(%d'(%s(%s)))", nbits, call, xv), nil
		case types.KindInteger:
			return fmt.Sprintf("unsigned'(%d'(%s))", nbits, xv), nil
		case types.KindReal:
			return fmt.Sprintf("unsigned'(%d'($rtoi(%s)))", nbits, xv), nil
		case types.KindBool:
			return fmt.Sprintf("%d'(%s)", nbits, xv), nil
		}
		return "", types.Errorf("Unknown type: %s", v.DType())
	}

	if s, ok := x.(string); ok {
		bits := emitter.PadBits(s, nbits)
		var sb strings.Builder
		for _, c := range strings.ToUpper(bits) {
			r, ok := logicRemap[c]
			if !ok {
				return "", types.Errorf("Invalid bit literal: %s", s)
			}
			sb.WriteRune(r)
		}
		return fmt.Sprintf("%d'b%s", nbits, sb.String()), nil
	}
	iv, ok := emitter.AsInt(x)
	if !ok {
		b, err := emitter.HostTruth(x)
		if err != nil {
			return "", err
		}
		if b {
			iv = 1
		}
	}
	if !emitter.FitsInt32(iv) {
		return fmt.Sprintf("%d'b%s", nbits, emitter.TwosComplement(iv, nbits)), nil
	}
	return fmt.Sprintf("unsigned'(%d'(%d))", nbits, iv), nil
}

func (d *Dialect) toFloat(x any, dtype *types.Type) (string, error) {
	fspec, err := d.e.FloatSpec(dtype)
	if err != nil {
		return "", err
	}
	params, err := d.fpParams(dtype)
	if err != nil {
		return "", err
	}
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindUint, types.KindSint, types.KindBits:
			call, err := d.fpCall("from_integer", append(params, nint(v.DType().NBits())))
			if err != nil {
				return "", err
			}
			return call + "(" + xv + ")", nil
		case types.KindFloat:
			ifspec, err := d.e.FloatSpec(v.DType())
			if err != nil {
				return "", err
			}
			call, err := d.fpCall("convert", []entity.Param{
				{Name: "INX", Value: fmt.Sprint(ifspec.Exp)},
				{Name: "INM", Value: fmt.Sprint(ifspec.Mant)},
				{Name: "ONX", Value: fmt.Sprint(fspec.Exp)},
				{Name: "ONM", Value: fmt.Sprint(fspec.Mant)},
			})
			if err != nil {
				return "", err
			}
			return call + "(" + xv + ")", nil
		case types.KindInteger:
			n := dtype.NBits()
			if n < 32 {
				n = 32
			}
			call, err := d.fpCall("from_integer", append(params, nint(n)))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s(%d'(%s))", call, n, xv), nil
		case types.KindReal:
			call, err := d.fpCall("from_real", params)
			if err != nil {
				return "", err
			}
			return call + "(" + xv + ")", nil
		case types.KindBool:
			one, err := d.fpCall("one", params)
			if err != nil {
				return "", err
			}
			zero, err := d.fpCall("zero", params)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s ? %s() : %s()", emitter.Paren(xv), one, zero), nil
		}
		return "", types.Errorf("Unknown type: %s", v.DType())
	}

	f, ok := emitter.AsFloat(x)
	if !ok {
		iv, iok := emitter.AsInt(x)
		if !iok {
			return "", types.Errorf("Cannot convert %v to %s", x, dtype)
		}
		f = float64(iv)
	}
	return fmt.Sprintf("%d'b%s", dtype.NBits(), packFloat(f, fspec.Exp, fspec.Mant)), nil
}

func (d *Dialect) toInteger(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindInteger:
			return xv, nil
		case types.KindBool, types.KindSint, types.KindUint, types.KindBits, types.KindReal:
			return "int'(" + xv + ")", nil
		case types.KindFloat:
			params, err := d.fpParams(v.DType(), nint(32))
			if err != nil {
				return "", err
			}
			call, err := d.fpCall("to_integer", params)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("int'(%s(%s))", call, xv), nil
		}
		return "", types.Errorf("Unable to convert to integer: %s", v.DType())
	}
	if iv, ok := emitter.AsInt(x); ok {
		return fmt.Sprint(iv), nil
	}
	return "int'(" + d.SValue(x) + ")", nil
}

func (d *Dialect) toReal(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindReal:
			return xv, nil
		case types.KindBool, types.KindSint, types.KindUint, types.KindBits, types.KindInteger:
			return "real'(" + xv + ")", nil
		case types.KindFloat:
			params, err := d.fpParams(v.DType())
			if err != nil {
				return "", err
			}
			call, err := d.fpCall("to_real", params)
			if err != nil {
				return "", err
			}
			return call + "(" + xv + ")", nil
		}
		return "", types.Errorf("Unable to convert to real: %s", v.DType())
	}
	if f, ok := emitter.AsFloat(x); ok {
		return emitter.FormatFloat(f), nil
	}
	return "real'(" + d.SValue(x) + ")", nil
}

func (d *Dialect) ArrayLiteral(parts []string, shape []int) string {
	return emitter.Flat2Shape(parts, shape, "'{", "}")
}

func (d *Dialect) Broadcast(text string, dtype *types.Type) string {
	shape := dtype.ArrayShape()
	for i := len(shape) - 1; i >= 0; i-- {
		text = fmt.Sprintf("'{%d{%s}}", shape[i], text)
	}
	return text
}

func (d *Dialect) Index(text string, coords []string) string {
	var sb strings.Builder
	sb.WriteString(text)
	for _, c := range coords {
		sb.WriteString("[" + c + "]")
	}
	return sb.String()
}

func (d *Dialect) SliceCoord(start, stop int, last bool) string {
	if last {
		return fmt.Sprintf("%d: %d", stop-1, start)
	}
	return fmt.Sprintf("%d: %d", start, stop-1)
}

func (d *Dialect) PartSelect(base string, width int, last bool) string {
	return fmt.Sprintf("%s +: %d", base, width)
}

func (d *Dialect) SValue(x any) string {
	if b, ok := x.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return emitter.FormatHost(x)
}

func (d *Dialect) NoCast(x any, kind types.Kind) bool {
	switch x.(type) {
	case int64, int:
		if iv, _ := emitter.AsInt(x); !emitter.FitsInt32(iv) {
			return false
		}
		switch kind {
		case types.KindUint, types.KindSint, types.KindReal, types.KindInteger:
			return true
		}
	case float64:
		return kind == types.KindReal
	}
	return false
}
