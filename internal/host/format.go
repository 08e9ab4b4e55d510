package host

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// FloatRepr renders f the way the host repr() does: shortest round trip
// digits, scientific notation outside [1e-4, 1e16).
func FloatRepr(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	es := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(es[strings.IndexByte(es, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return es
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func quoteString(s string) string {
	q := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, "\"") {
		q = "\""
	}
	var sb strings.Builder
	sb.WriteString(q)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\r':
			sb.WriteString(`\r`)
		case string(r) == q:
			sb.WriteString(`\` + q)
		case r < 0x20:
			sb.WriteString(`\x` + strconv.FormatInt(int64(r)+0x100, 16)[1:])
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString(q)
	return sb.String()
}

func joinRepr(items []any) string {
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = Repr(e)
	}
	return strings.Join(parts, ", ")
}

// Repr implements repr().
func Repr(x any) string {
	switch v := x.(type) {
	case string:
		return quoteString(v)
	case *ListObject:
		return "[" + joinRepr(v.Elts) + "]"
	case *TupleObject:
		if len(v.Elts) == 1 {
			return "(" + Repr(v.Elts[0]) + ",)"
		}
		return "(" + joinRepr(v.Elts) + ")"
	case *DictObject:
		parts := make([]string, 0, v.Len())
		for _, k := range v.Keys() {
			val, _, _ := v.Get(k)
			parts = append(parts, Repr(k)+": "+Repr(val))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *SetObject:
		if v.Len() == 0 {
			return "set()"
		}
		return "{" + joinRepr(v.Items()) + "}"
	}
	return Str(x)
}

// Str implements str().
func Str(x any) string {
	switch v := x.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return FloatRepr(v)
	case string:
		return v
	case EllipsisType:
		return "Ellipsis"
	case *ListObject, *TupleObject, *DictObject, *SetObject:
		return Repr(x)
	case *Range:
		if v.Step == 1 {
			return "range(" + Str(v.Start) + ", " + Str(v.Stop) + ")"
		}
		return "range(" + Str(v.Start) + ", " + Str(v.Stop) + ", " + Str(v.Step) + ")"
	case *SliceObject:
		return "slice(" + Repr(v.Start) + ", " + Repr(v.Stop) + ", " + Repr(v.Step) + ")"
	case *Function:
		return "<function " + v.Name + ">"
	case *BoundMethod:
		return "<bound method of " + Repr(v.Self) + ">"
	case *Class:
		return "<class '" + v.Name + "'>"
	case *Instance:
		if e, ok := v.Native.(error); ok {
			return e.Error()
		}
		if s, ok := v.Native.(interface{ String() string }); ok {
			return s.String()
		}
		return "<" + v.Class.Name + " object>"
	case *ModuleObject:
		return "<module '" + v.Name + "'>"
	case *types.Type:
		return v.String()
	case *value.Value:
		return v.String()
	case *Exception:
		return v.Msg
	}
	if s, ok := x.(interface{ String() string }); ok {
		return s.String()
	}
	return "<" + TypeName(x) + ">"
}

// formatSpec is a parsed format specification, "[[fill]align][sign][#][0][width][,][.precision][type]".
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	width     int
	grouping  byte
	precision int
	verb      byte
}

func parseFormatSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	s := spec
	isAlign := func(c byte) bool { return c == '<' || c == '>' || c == '^' || c == '=' }
	if r, n := utf8.DecodeRuneInString(s); n > 0 && len(s) > n && isAlign(s[n]) {
		fs.fill, fs.align = r, s[n]
		s = s[n+1:]
	} else if len(s) > 0 && isAlign(s[0]) {
		fs.align = s[0]
		s = s[1:]
	}
	if len(s) > 0 && (s[0] == '+' || s[0] == '-' || s[0] == ' ') {
		fs.sign = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '#' {
		fs.alt = true
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '0' {
		if fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		s = s[1:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		fs.width, _ = strconv.Atoi(s[:i])
		s = s[i:]
	}
	if len(s) > 0 && (s[0] == ',' || s[0] == '_') {
		fs.grouping = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '.' {
		i = 1
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 1 {
			return fs, Raise("ValueError", "Format specifier missing precision")
		}
		fs.precision, _ = strconv.Atoi(s[1:i])
		s = s[i:]
	}
	if len(s) > 1 {
		return fs, Raise("ValueError", "Invalid format specifier '%s'", spec)
	}
	if len(s) == 1 {
		fs.verb = s[0]
	}
	return fs, nil
}

func group(digits string, sep byte, every int) string {
	if sep == 0 || len(digits) <= every {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % every
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += every {
		if sb.Len() > 0 {
			sb.WriteByte(sep)
		}
		sb.WriteString(digits[i : i+every])
	}
	return sb.String()
}

func (fs formatSpec) pad(sign, body string, defAlign byte) string {
	n := utf8.RuneCountInString(sign + body)
	if n >= fs.width {
		return sign + body
	}
	fill := strings.Repeat(string(fs.fill), fs.width-n)
	align := fs.align
	if align == 0 {
		align = defAlign
	}
	switch align {
	case '<':
		return sign + body + fill
	case '^':
		half := (fs.width - n) / 2
		left := strings.Repeat(string(fs.fill), half)
		return left + sign + body + fill[len(left):]
	case '=':
		return sign + fill + body
	}
	return fill + sign + body
}

func (fs formatSpec) signOf(neg bool) string {
	switch {
	case neg:
		return "-"
	case fs.sign == '+':
		return "+"
	case fs.sign == ' ':
		return " "
	}
	return ""
}

func (fs formatSpec) formatInt(v int64) (string, error) {
	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}
	var body, prefix string
	switch fs.verb {
	case 0, 'd', 'n':
		body = group(strconv.FormatUint(u, 10), fs.grouping, 3)
	case 'b':
		body, prefix = group(strconv.FormatUint(u, 2), fs.grouping, 4), "0b"
	case 'o':
		body, prefix = group(strconv.FormatUint(u, 8), fs.grouping, 4), "0o"
	case 'x':
		body, prefix = group(strconv.FormatUint(u, 16), fs.grouping, 4), "0x"
	case 'X':
		body, prefix = strings.ToUpper(group(strconv.FormatUint(u, 16), fs.grouping, 4)), "0X"
	case 'c':
		return fs.pad("", string(rune(v)), '<'), nil
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return fs.formatFloat(float64(v))
	default:
		return "", Raise("ValueError", "Unknown format code '%c' for object of type 'int'", fs.verb)
	}
	sign := fs.signOf(neg)
	if fs.alt {
		sign += prefix
	}
	return fs.pad(sign, body, '>'), nil
}

func (fs formatSpec) formatFloat(f float64) (string, error) {
	neg := math.Signbit(f) && !math.IsNaN(f)
	a := math.Abs(f)
	prec := fs.precision
	var body string
	switch fs.verb {
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a, 'f', prec, 64)
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a, 'e', prec, 64)
	case 'g', 'G':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		body = strconv.FormatFloat(a, 'g', prec, 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(a*100, 'f', prec, 64) + "%"
	case 0:
		if prec >= 0 {
			body = strconv.FormatFloat(a, 'g', prec, 64)
		} else {
			body = FloatRepr(a)
		}
	default:
		return "", Raise("ValueError", "Unknown format code '%c' for object of type 'float'", fs.verb)
	}
	if fs.verb == 'E' || fs.verb == 'G' || fs.verb == 'F' {
		body = strings.ToUpper(body)
	}
	if fs.grouping != 0 {
		intPart, frac := body, ""
		if i := strings.IndexAny(body, ".e%"); i >= 0 {
			intPart, frac = body[:i], body[i:]
		}
		body = group(intPart, fs.grouping, 3) + frac
	}
	return fs.pad(fs.signOf(neg), body, '>'), nil
}

// Format implements format(x, spec) for host scalars. Other objects are
// formatted through Str.
func Format(x any, spec string) (string, error) {
	if spec == "" {
		return Str(x), nil
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}
	switch v := x.(type) {
	case bool:
		if fs.verb == 0 || fs.verb == 's' {
			return fs.pad("", Str(v), '<'), nil
		}
		if v {
			return fs.formatInt(1)
		}
		return fs.formatInt(0)
	case int64:
		return fs.formatInt(v)
	case int:
		return fs.formatInt(int64(v))
	case float64:
		return fs.formatFloat(v)
	}
	if fs.verb != 0 && fs.verb != 's' {
		return "", Raise("ValueError", "Unknown format code '%c' for object of type '%s'", fs.verb, TypeName(x))
	}
	s := Str(x)
	if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	return fs.pad("", s, '<'), nil
}

// percentFormat implements the "fmt % args" string operator for the
// common conversions.
func percentFormat(format string, args any) (string, error) {
	var items []any
	if t, ok := args.(*TupleObject); ok {
		items = t.Elts
	} else {
		items = []any{args}
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("0123456789.+- #", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			return "", Raise("ValueError", "incomplete format")
		}
		verb := format[j]
		if verb == '%' {
			sb.WriteByte('%')
			i = j
			continue
		}
		if n >= len(items) {
			return "", Raise("TypeError", "not enough arguments for format string")
		}
		arg := items[n]
		n++
		var (
			s   string
			err error
		)
		flags := format[i+1 : j]
		switch verb {
		case 's':
			s, err = Format(Str(arg), pyAlign(flags))
		case 'r':
			s, err = Format(Repr(arg), pyAlign(flags))
		case 'd', 'i':
			s, err = Format(arg, pyAlign(flags)+"d")
		case 'f', 'e', 'g', 'x', 'X', 'o':
			s, err = Format(arg, pyAlign(flags)+string(verb))
		default:
			return "", Raise("ValueError", "unsupported format character '%c'", verb)
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
		i = j
	}
	if n < len(items) {
		return "", Raise("TypeError", "not all arguments converted during string formatting")
	}
	return sb.String(), nil
}

// pyAlign turns printf flags into a format spec prefix.
func pyAlign(flags string) string {
	if strings.HasPrefix(flags, "-") {
		return "<" + strings.TrimLeft(flags, "-")
	}
	return flags
}
