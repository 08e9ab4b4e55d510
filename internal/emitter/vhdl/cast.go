package vhdl

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

func (d *Dialect) typeOf(dtype *types.Type) (string, error) {
	nbits, shape := dtype.NBits(), dtype.ArrayShape()
	var adims strings.Builder
	for _, x := range shape {
		fmt.Fprintf(&adims, "(0 to %d)", x-1)
	}
	array := func(base string) string {
		return fmt.Sprintf("hdlgen.%s_array%dd%s", base, len(shape), adims.String())
	}

	switch dtype.Kind() {
	case types.KindUint:
		if len(shape) > 0 {
			return fmt.Sprintf("%s(%d downto 0)", array("uint"), nbits-1), nil
		}
		return fmt.Sprintf("unsigned(%d downto 0)", nbits-1), nil
	case types.KindSint:
		if len(shape) > 0 {
			return fmt.Sprintf("%s(%d downto 0)", array("sint"), nbits-1), nil
		}
		return fmt.Sprintf("signed(%d downto 0)", nbits-1), nil
	case types.KindBits:
		if nbits == 1 {
			if len(shape) > 0 {
				return array("slv"), nil
			}
			return "std_logic", nil
		}
		if len(shape) > 0 {
			return fmt.Sprintf("%s(%d downto 0)", array("bits"), nbits-1), nil
		}
		return fmt.Sprintf("std_logic_vector(%d downto 0)", nbits-1), nil
	case types.KindBool:
		if len(shape) > 0 {
			return array("bool"), nil
		}
		return "boolean", nil
	case types.KindInteger:
		if len(shape) > 0 {
			return array("integer"), nil
		}
		return "integer", nil
	case types.KindReal:
		if len(shape) > 0 {
			return array("real"), nil
		}
		return "real", nil
	case types.KindFloat:
		fspec, err := d.e.FloatSpec(dtype)
		if err != nil {
			return "", err
		}
		if len(shape) > 0 {
			return fmt.Sprintf("%s(%d downto %d)", array("float"), fspec.Exp, -fspec.Mant), nil
		}
		return fmt.Sprintf("float(%d downto %d)", fspec.Exp, -fspec.Mant), nil
	}
	return "", types.Errorf("Unknown type: %s", dtype)
}

// ConvertLiteral turns booleans, None, bit strings and typed integer strings
// into values. Host numbers are left alone, they cast with fewer resizes.
func (d *Dialect) ConvertLiteral(x any) (any, error) {
	switch v := x.(type) {
	case bool:
		return value.NewTemp(types.BoolType, d.SValue(v)), nil
	case nil:
		return value.MkNone(types.VoidType), nil
	case string:
		if bits, ok := emitter.MatchBitString(v, nil); ok {
			if len(bits) > 1 {
				return value.NewTemp(types.NewBits(len(bits)), `"`+bits+`"`), nil
			}
			return value.NewTemp(types.NewBits(1), "'"+bits+"'"), nil
		}
		dtype, iv, ok, err := emitter.MatchIntString(v)
		if err != nil {
			return nil, err
		}
		if ok {
			itype := "unsigned"
			if dtype.Kind() == types.KindSint {
				itype = "signed"
			}
			return value.NewTemp(dtype, intLiteral(iv, dtype.NBits(), itype)), nil
		}
	}
	return x, nil
}

func intLiteral(iv int64, nbits int, itype string) string {
	if emitter.FitsInt32(iv) && (iv >= 0 || itype == "signed") {
		return fmt.Sprintf("to_%s(%d, %d)", itype, iv, nbits)
	}
	return fmt.Sprintf(`%s'("%s")`, itype, emitter.TwosComplement(iv, nbits))
}

// CastScalar converts a scalar value or host literal to the element type dtype.
func (d *Dialect) CastScalar(x any, dtype *types.Type) (string, error) {
	switch dtype.Kind() {
	case types.KindBool:
		return d.toBool(x)
	case types.KindUint:
		return d.toInt(x, dtype, "unsigned")
	case types.KindSint:
		return d.toInt(x, dtype, "signed")
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

func (d *Dialect) toBool(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindBool:
			return xv, nil
		case types.KindUint, types.KindSint, types.KindBits:
			if v.DType().NBits() > 1 {
				return fmt.Sprintf("or(%s) = '1'", xv), nil
			}
		}
		zero, err := d.CastScalar(int64(0), v.DType().ElementType())
		if err != nil {
			return "", err
		}
		return emitter.Paren(xv) + " /= " + zero, nil
	}
	b, err := emitter.HostTruth(x)
	if err != nil {
		return "", err
	}
	return d.SValue(b), nil
}

func (d *Dialect) toInt(x any, dtype *types.Type, itype string) (string, error) {
	nbits := dtype.NBits()
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindUint, types.KindSint:
			rs := xv
			if v.DType().NBits() != nbits {
				rs = fmt.Sprintf("resize(%s, %d)", xv, nbits)
			}
			if v.DType().Kind() != dtype.Kind() {
				return fmt.Sprintf("%s(%s)", itype, rs), nil
			}
			return rs, nil
		case types.KindBits:
			return fmt.Sprintf("hdlgen.cvt_%s(%s, %d)", itype, xv, nbits), nil
		case types.KindInteger, types.KindFloat:
			return fmt.Sprintf("to_%s(%s, %d)", itype, xv, nbits), nil
		case types.KindReal:
			return fmt.Sprintf("to_%s(integer(%s), %d)", itype, xv, nbits), nil
		case types.KindBool:
			return fmt.Sprintf("hdlgen.%s_ifexp(%s, to_%s(1, %d), to_%s(0, %d))",
				dtype.Name(), xv, itype, nbits, itype, nbits), nil
		}
		return "", types.Errorf("Unable to convert %s to %s", v.DType(), dtype)
	}
	if iv, ok := emitter.AsInt(x); ok {
		return intLiteral(iv, nbits, itype), nil
	}
	if f, ok := emitter.AsFloat(x); ok {
		return fmt.Sprintf("to_%s(integer(%s), %d)", itype, emitter.FormatFloat(f), nbits), nil
	}
	return fmt.Sprintf("to_%s(%s, %d)", itype, d.SValue(x), nbits), nil
}

func (d *Dialect) resizeBits(v *value.Value, nbits int) string {
	vbits := v.DType().NBits()
	switch {
	case vbits == nbits:
		return v.Text()
	case nbits == 1:
		return fmt.Sprintf("hdlgen.lsb(%s)", v.Text())
	}
	return fmt.Sprintf("hdlgen.bits_resize(%s, %d)", v.Text(), nbits)
}

func (d *Dialect) toBits(x any, dtype *types.Type) (string, error) {
	nbits := dtype.NBits()
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindUint, types.KindSint:
			if v.DType().NBits() != nbits {
				xv = fmt.Sprintf("resize(%s, %d)", xv, nbits)
			}
			if nbits > 1 {
				return fmt.Sprintf("std_logic_vector(%s)", xv), nil
			}
			return fmt.Sprintf("hdlgen.lsb(%s)", xv), nil
		case types.KindBits:
			return d.resizeBits(v, nbits), nil
		case types.KindInteger, types.KindFloat:
			if nbits > 1 {
				return fmt.Sprintf("std_logic_vector(to_unsigned(%s, %d))", xv, nbits), nil
			}
			return fmt.Sprintf("hdlgen.lsb(to_unsigned(%s, 1))", xv), nil
		case types.KindReal:
			if nbits > 1 {
				return fmt.Sprintf("std_logic_vector(to_unsigned(integer(%s), %d))", xv, nbits), nil
			}
			return fmt.Sprintf("hdlgen.lsb(to_unsigned(integer(%s), 1))", xv), nil
		case types.KindBool:
			result := fmt.Sprintf("hdlgen.bits_ifexp(%s, '1', '0')", xv)
			if nbits > 1 {
				result = fmt.Sprintf("hdlgen.bits_resize(%s, %d)", result, nbits)
			}
			return result, nil
		}
		return "", types.Errorf("Unable to convert %s to %s", v.DType(), dtype)
	}

	if s, ok := x.(string); ok {
		bits := strings.ToUpper(emitter.PadBits(s, nbits))
		if nbits == 1 {
			return "'" + bits + "'", nil
		}
		return `"` + bits + `"`, nil
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
	if nbits == 1 {
		return fmt.Sprintf("'%d'", iv&1), nil
	}
	if emitter.FitsInt32(iv) && iv >= 0 {
		return fmt.Sprintf("std_logic_vector(to_unsigned(%d, %d))", iv, nbits), nil
	}
	return `"` + emitter.TwosComplement(iv, nbits) + `"`, nil
}

func (d *Dialect) toFloat(x any, dtype *types.Type) (string, error) {
	fspec, err := d.e.FloatSpec(dtype)
	if err != nil {
		return "", err
	}
	xv := d.e.SValueOf(x)
	if v, ok := x.(*value.Value); ok {
		switch v.DType().Kind() {
		case types.KindFloat:
			return fmt.Sprintf("resize(%s, %d, %d)", xv, fspec.Exp, fspec.Mant), nil
		case types.KindBool:
			xv = fmt.Sprintf("hdlgen.real_ifexp(%s, 1.0, 0.0)", xv)
		}
	}
	return fmt.Sprintf("to_float(%s, %d, %d)", xv, fspec.Exp, fspec.Mant), nil
}

func (d *Dialect) toInteger(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindInteger:
			return xv, nil
		case types.KindSint, types.KindUint, types.KindFloat:
			return fmt.Sprintf("to_integer(%s)", xv), nil
		case types.KindBits:
			if v.DType().NBits() > 1 {
				return fmt.Sprintf("to_integer(unsigned(%s))", xv), nil
			}
			return fmt.Sprintf("hdlgen.integer_ifexp(%s = '1', 1, 0)", xv), nil
		case types.KindReal:
			return fmt.Sprintf("integer(%s)", xv), nil
		case types.KindBool:
			return fmt.Sprintf("hdlgen.integer_ifexp(%s, 1, 0)", xv), nil
		}
		return "", types.Errorf("Unable to convert to integer: %s", v.DType())
	}
	if iv, ok := emitter.AsInt(x); ok {
		return fmt.Sprint(iv), nil
	}
	return fmt.Sprintf("integer(%s)", d.SValue(x)), nil
}

func (d *Dialect) toReal(x any) (string, error) {
	if v, ok := x.(*value.Value); ok {
		xv := v.Text()
		switch v.DType().Kind() {
		case types.KindReal:
			return xv, nil
		case types.KindSint, types.KindUint:
			return fmt.Sprintf("real(to_integer(%s))", xv), nil
		case types.KindBits:
			return fmt.Sprintf("real(to_integer(unsigned(%s)))", xv), nil
		case types.KindFloat:
			return fmt.Sprintf("to_real(%s)", xv), nil
		case types.KindInteger:
			return fmt.Sprintf("real(%s)", xv), nil
		case types.KindBool:
			return fmt.Sprintf("hdlgen.real_ifexp(%s, 1.0, 0.0)", xv), nil
		}
		return "", types.Errorf("Unable to convert to real: %s", v.DType())
	}
	if f, ok := emitter.AsFloat(x); ok {
		return emitter.FormatFloat(f), nil
	}
	return fmt.Sprintf("real(%s)", d.SValue(x)), nil
}

// ArrayLiteral builds a positional aggregate. Single element aggregates
// need a named association.
func (d *Dialect) ArrayLiteral(parts []string, shape []int) string {
	cur := parts
	for i := len(shape) - 1; i >= 0; i-- {
		dim := shape[i]
		var next []string
		for x := 0; x+dim <= len(cur); x += dim {
			if dim == 1 {
				next = append(next, "(0 => "+cur[x]+")")
			} else {
				next = append(next, "("+strings.Join(cur[x:x+dim], ", ")+")")
			}
		}
		cur = next
	}
	if len(cur) == 0 {
		return "()"
	}
	return cur[0]
}

func (d *Dialect) Broadcast(text string, dtype *types.Type) string {
	for range dtype.ArrayShape() {
		text = "(others => " + text + ")"
	}
	return text
}

func (d *Dialect) Index(text string, coords []string) string {
	var sb strings.Builder
	sb.WriteString(text)
	for _, c := range coords {
		sb.WriteString("(" + c + ")")
	}
	return sb.String()
}

func (d *Dialect) SliceCoord(start, stop int, last bool) string {
	if last {
		return fmt.Sprintf("%d downto %d", stop-1, start)
	}
	return fmt.Sprintf("%d to %d", start, stop-1)
}

func (d *Dialect) PartSelect(base string, width int, last bool) string {
	if last {
		return fmt.Sprintf("(%s + %d) downto %s", base, width-1, base)
	}
	return fmt.Sprintf("%s to (%s + %d)", base, base, width-1)
}

func (d *Dialect) SValue(x any) string {
	if b, ok := x.(bool); ok {
		if b {
			return "true"
		}
		return "false"
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
		case types.KindUint, types.KindSint, types.KindFloat, types.KindReal, types.KindInteger:
			return true
		}
	case float64:
		return kind == types.KindFloat || kind == types.KindReal
	}
	return false
}
