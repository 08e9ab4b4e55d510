package emitter

import (
	"fmt"
	"math"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

var needsParenRx = regexp.MustCompile(`[ +\-*/%!~&|^]`)

var closers = map[rune]rune{'{': '}', '(': ')', '[': ']'}

// Paren wraps an expression in parentheses unless it is already atomic:
// an identifier, a literal, a call, or a fully bracketed expression.
func Paren(s string) string {
	level := 0
	stack := []rune{0}
	var wait rune
	skip := false
	for _, c := range s {
		switch {
		case skip:
			skip = false
		case wait != 0:
			if c == wait {
				wait = 0
			}
		case c == '\\':
			skip = true
		case c == '"':
			wait = c
		case c == stack[len(stack)-1]:
			stack = stack[:len(stack)-1]
			level--
		case closers[c] != 0:
			stack = append(stack, closers[c])
			level++
		case level == 0 && needsParenRx.MatchString(string(c)):
			return "(" + s + ")"
		}
	}
	return s
}

// ParenJoin joins args with joiner, parenthesizing each when more than one.
func ParenJoin(joiner string, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Paren(a)
	}
	return strings.Join(parts, joiner)
}

// Flat2Shape nests a row major list of element texts into an aggregate.
func Flat2Shape(parts []string, shape []int, open, close string) string {
	cur := parts
	for i := len(shape) - 1; i >= 0; i-- {
		dim := shape[i]
		var next []string
		for x := 0; x < len(cur); x += dim {
			end := x + dim
			if end > len(cur) {
				end = len(cur)
			}
			next = append(next, open+strings.Join(cur[x:end], ", ")+close)
		}
		cur = next
	}
	if len(cur) == 0 {
		return open + close
	}
	return cur[0]
}

// NDIndex enumerates the indices of shape in row major order.
func NDIndex(shape []int) [][]int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	out := make([][]int, 0, total)
	idx := make([]int, len(shape))
	for n := 0; n < total; n++ {
		out = append(out, append([]int(nil), idx...))
		for i := len(shape) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// NormSlice resolves optional, possibly negative, slice bounds against size.
func NormSlice(start, stop *int, size int) (int, int) {
	s, e := 0, size
	if start != nil {
		s = *start
		if s < 0 {
			s += size
		}
	}
	if stop != nil {
		e = *stop
		if e < 0 {
			e += size
		}
	}
	return s, e
}

// Squeeze drops leading unit dimensions, keeping at least one.
func Squeeze(shape []int) []int {
	i := 0
	for i < len(shape)-1 && shape[i] == 1 {
		i++
	}
	return append([]int(nil), shape[i:]...)
}

// AsInt extracts a host integer.
func AsInt(x any) (int64, bool) {
	switch v := x.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case bool:
		return 0, false
	}
	return 0, false
}

// AsFloat extracts a host float.
func AsFloat(x any) (float64, bool) {
	f, ok := x.(float64)
	return f, ok
}

// BitLength is the number of bits needed to represent the magnitude of v.
func BitLength(v int64) int {
	if v < 0 {
		v = -v
	}
	return bits.Len64(uint64(v))
}

// FormatFloat renders a host float the way HDL real literals want it,
// always carrying a decimal point.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "1.0e308"
	case math.IsInf(f, -1):
		return "-1.0e308"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".N") {
		return s
	}
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		return s[:i] + ".0" + s[i:]
	}
	return s + ".0"
}

// FormatHost renders a host scalar in the host notation. Booleans are
// left to the dialects.
func FormatHost(x any) string {
	switch v := x.(type) {
	case nil:
		return "None"
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return FormatFloat(v)
	case bool:
		if v {
			return "True"
		}
		return "False"
	case *value.Value:
		return v.Text()
	}
	return fmt.Sprint(x)
}

var (
	bitStringRx = regexp.MustCompile(`^0b([01XUZWHL]+)$`)
	intStringRx = regexp.MustCompile("^([us])(\\d+)`(.*)$")
)

// MatchBitString recognizes "0b01XZ" style bit literals and returns the
// logic characters, remapped through remap when not nil.
func MatchBitString(s string, remap map[rune]rune) (string, bool) {
	m := bitStringRx.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if remap == nil {
		return m[1], true
	}
	var sb strings.Builder
	for _, c := range m[1] {
		sb.WriteRune(remap[c])
	}
	return sb.String(), true
}

// MatchIntString recognizes typed integer literals like "u16`1234".
func MatchIntString(s string) (*types.Type, int64, bool, error) {
	m := intStringRx.FindStringSubmatch(s)
	if m == nil {
		return nil, 0, false, nil
	}
	nbits, _ := strconv.Atoi(m[2])
	iv, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(m[3]), "_", ""), 0, 64)
	if err != nil {
		return nil, 0, false, types.Errorf("Invalid literal value: %s", s)
	}
	if m[1] == "u" {
		return types.NewUint(nbits), iv, true, nil
	}
	return types.NewSint(nbits), iv, true, nil
}

// PadBits pads with zeros, or trims from the left, a bit string to nbits.
func PadBits(s string, nbits int) string {
	s = strings.TrimPrefix(s, "0b")
	if nbits > len(s) {
		return strings.Repeat("0", nbits-len(s)) + s
	}
	return s[len(s)-nbits:]
}

var timeUnits = []string{"fs", "ps", "ns", "us", "ms", "sec"}

// NormalizeTime turns an amount in unit into an integral amount, moving to
// smaller units as needed.
func NormalizeTime(t float64, unit string) (int64, string) {
	ui := -1
	for i, u := range timeUnits {
		if u == unit {
			ui = i
		}
	}
	for ui > 0 && t != math.Trunc(t) {
		t *= 1000
		ui--
	}
	if ui < 0 {
		return int64(math.Round(t)), unit
	}
	return int64(math.Round(t)), timeUnits[ui]
}

// HostTruth evaluates the truth of a host literal.
func HostTruth(x any) (bool, error) {
	switch v := x.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch v {
		case "True", "true", "1":
			return true, nil
		case "False", "false", "0", "":
			return false, nil
		}
		if iv, err := strconv.ParseInt(v, 0, 64); err == nil {
			return iv != 0, nil
		}
	case nil:
		return false, nil
	}
	return false, types.Errorf("Cannot convert to bool: %v", x)
}

// TwosComplement renders the low nbits of v as a bit string, sign extending
// past 64 bits.
func TwosComplement(v int64, nbits int) string {
	var sb strings.Builder
	for i := nbits - 1; i >= 0; i-- {
		bit := v < 0
		if i < 64 {
			bit = (uint64(v)>>uint(i))&1 == 1
		}
		if bit {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// FitsInt32 reports whether v can be used as a 32 bit HDL integer literal.
func FitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
