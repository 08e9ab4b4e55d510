package host

import (
	"fmt"
	"math"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Exception is an error raised by host level evaluation. Kind names the
// builtin exception class ("TypeError", "ValueError", ...).
type Exception struct {
	Kind string
	Msg  string
}

func (e *Exception) Error() string {
	if e.Msg == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Msg
}

func Raise(kind, format string, args ...any) error {
	return &Exception{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Truth returns the host truth value of x. Hardware values have none.
func Truth(x any) (bool, error) {
	switch v := x.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "", nil
	case *ListObject:
		return len(v.Elts) > 0, nil
	case *TupleObject:
		return len(v.Elts) > 0, nil
	case *DictObject:
		return v.Len() > 0, nil
	case *SetObject:
		return v.Len() > 0, nil
	case *Range:
		return v.Len() > 0, nil
	case *value.Value:
		return false, Raise("TypeError", "hardware value %s has no host truth value", v.Name())
	}
	return true, nil
}

func asNumber(x any) (int64, float64, bool, bool) {
	switch v := x.(type) {
	case bool:
		if v {
			return 1, 1, true, true
		}
		return 0, 0, true, true
	case int64:
		return v, float64(v), true, true
	case int:
		return int64(v), float64(v), true, true
	case float64:
		return 0, v, false, true
	}
	return 0, 0, false, false
}

// Equal implements host "==".
func Equal(a, b any) bool {
	if ai, af, aint, ok := asNumber(a); ok {
		bi, bf, bint, ok := asNumber(b)
		if !ok {
			return false
		}
		if aint && bint {
			return ai == bi
		}
		return af == bf
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *ListObject:
		y, ok := b.(*ListObject)
		return ok && seqEqual(x.Elts, y.Elts)
	case *TupleObject:
		y, ok := b.(*TupleObject)
		return ok && seqEqual(x.Elts, y.Elts)
	case *DictObject:
		y, ok := b.(*DictObject)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _, _ := x.Get(k)
			yv, found, err := y.Get(k)
			if err != nil || !found || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case *SetObject:
		y, ok := b.(*SetObject)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, e := range x.Items() {
			if has, _ := y.Has(e); !has {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		return ok && seqEqual(x.Items(), y.Items())
	case *types.Type:
		y, ok := b.(*types.Type)
		return ok && x.Equal(y)
	case *value.Value:
		y, ok := b.(*value.Value)
		return ok && x.Equal(y)
	}
	return a == b
}

func seqEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Is implements host identity. Scalars compare by value.
func Is(a, b any) bool {
	switch a.(type) {
	case nil, bool, EllipsisType:
		return a == b
	}
	if _, _, _, ok := asNumber(a); ok {
		return a == b
	}
	if s, ok := a.(string); ok {
		t, ok := b.(string)
		return ok && s == t
	}
	defer func() { recover() }()
	return a == b
}

// Less implements host "<" for numbers, strings and sequences.
func Less(a, b any) (bool, error) {
	if ai, af, aint, ok := asNumber(a); ok {
		if bi, bf, bint, ok := asNumber(b); ok {
			if aint && bint {
				return ai < bi, nil
			}
			return af < bf, nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return x < y, nil
		}
	case *ListObject:
		if y, ok := b.(*ListObject); ok {
			return seqLess(x.Elts, y.Elts)
		}
	case *TupleObject:
		if y, ok := b.(*TupleObject); ok {
			return seqLess(x.Elts, y.Elts)
		}
	}
	return false, Raise("TypeError", "'<' not supported between instances of '%s' and '%s'", TypeName(a), TypeName(b))
}

func seqLess(a, b []any) (bool, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if Equal(a[i], b[i]) {
			continue
		}
		return Less(a[i], b[i])
	}
	return len(a) < len(b), nil
}

// Compare evaluates one comparison operator between host objects.
func Compare(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "<":
		return Less(a, b)
	case ">":
		return Less(b, a)
	case "<=":
		lt, err := Less(b, a)
		return !lt, err
	case ">=":
		lt, err := Less(a, b)
		return !lt, err
	case "is":
		return Is(a, b), nil
	case "is not":
		return !Is(a, b), nil
	case "in":
		return Contains(b, a)
	case "not in":
		in, err := Contains(b, a)
		return !in, err
	}
	return false, Raise("SyntaxError", "unknown comparison operator %s", op)
}

// Contains implements "x in container".
func Contains(container, x any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := x.(string)
		if !ok {
			return false, Raise("TypeError", "'in <string>' requires string as left operand, not %s", TypeName(x))
		}
		return strings.Contains(c, s), nil
	case *DictObject:
		_, ok, err := c.Get(x)
		return ok, err
	case *SetObject:
		return c.Has(x)
	case *Namespace:
		s, ok := x.(string)
		if !ok {
			return false, nil
		}
		_, found := c.Get(s)
		return found, nil
	}
	items, err := Iterate(container)
	if err != nil {
		return false, err
	}
	for _, e := range items {
		if Equal(e, x) {
			return true, nil
		}
	}
	return false, nil
}

// Len implements len().
func Len(x any) (int, error) {
	switch v := x.(type) {
	case string:
		return len([]rune(v)), nil
	case *ListObject:
		return len(v.Elts), nil
	case *TupleObject:
		return len(v.Elts), nil
	case *DictObject:
		return v.Len(), nil
	case *SetObject:
		return v.Len(), nil
	case *Range:
		return v.Len(), nil
	}
	return 0, Raise("TypeError", "object of type '%s' has no len()", TypeName(x))
}

// Iterate returns the items a host "for" walks over. Dicts yield keys.
func Iterate(x any) ([]any, error) {
	switch v := x.(type) {
	case *ListObject:
		return append([]any(nil), v.Elts...), nil
	case *TupleObject:
		return v.Elts, nil
	case *DictObject:
		return v.Keys(), nil
	case *SetObject:
		return v.Items(), nil
	case *Range:
		return v.Items(), nil
	case string:
		var items []any
		for _, r := range v {
			items = append(items, string(r))
		}
		return items, nil
	case []any:
		return v, nil
	}
	return nil, Raise("TypeError", "'%s' object is not iterable", TypeName(x))
}

func normIndex(idx any, n int) (int, error) {
	i, _, isInt, ok := asNumber(idx)
	if !ok || !isInt {
		return 0, Raise("TypeError", "indices must be integers, not %s", TypeName(idx))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, Raise("IndexError", "index out of range")
	}
	return int(i), nil
}

func sliceItems(items []any, s *SliceObject) ([]any, error) {
	start, stop, step, err := s.Indices(len(items))
	if err != nil {
		return nil, err
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// GetItem implements "x[idx]" on host containers.
func GetItem(x, idx any) (any, error) {
	switch v := x.(type) {
	case *ListObject:
		if s, ok := idx.(*SliceObject); ok {
			items, err := sliceItems(v.Elts, s)
			return NewList(items...), err
		}
		i, err := normIndex(idx, len(v.Elts))
		if err != nil {
			return nil, err
		}
		return v.Elts[i], nil
	case *TupleObject:
		if s, ok := idx.(*SliceObject); ok {
			items, err := sliceItems(v.Elts, s)
			return NewTuple(items...), err
		}
		i, err := normIndex(idx, len(v.Elts))
		if err != nil {
			return nil, err
		}
		return v.Elts[i], nil
	case *Range:
		if s, ok := idx.(*SliceObject); ok {
			items, err := sliceItems(v.Items(), s)
			return NewList(items...), err
		}
		i, err := normIndex(idx, v.Len())
		if err != nil {
			return nil, err
		}
		return v.At(i), nil
	case string:
		runes := []rune(v)
		if s, ok := idx.(*SliceObject); ok {
			chars := make([]any, len(runes))
			for i, r := range runes {
				chars[i] = string(r)
			}
			items, err := sliceItems(chars, s)
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			for _, c := range items {
				sb.WriteString(c.(string))
			}
			return sb.String(), nil
		}
		i, err := normIndex(idx, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *DictObject:
		val, ok, err := v.Get(idx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Exception{Kind: "KeyError", Msg: Repr(idx)}
		}
		return val, nil
	}
	return nil, Raise("TypeError", "'%s' object is not subscriptable", TypeName(x))
}

// SetItem implements "x[idx] = v" on host containers.
func SetItem(x, idx, v any) error {
	switch c := x.(type) {
	case *ListObject:
		i, err := normIndex(idx, len(c.Elts))
		if err != nil {
			return err
		}
		c.Elts[i] = v
		return nil
	case *DictObject:
		return c.Set(idx, v)
	}
	return Raise("TypeError", "'%s' object does not support item assignment", TypeName(x))
}

// DelItem implements "del x[idx]".
func DelItem(x, idx any) error {
	switch c := x.(type) {
	case *ListObject:
		i, err := normIndex(idx, len(c.Elts))
		if err != nil {
			return err
		}
		c.Elts = append(c.Elts[:i], c.Elts[i+1:]...)
		return nil
	case *DictObject:
		ok, err := c.Delete(idx)
		if err == nil && !ok {
			err = &Exception{Kind: "KeyError", Msg: Repr(idx)}
		}
		return err
	}
	return Raise("TypeError", "'%s' object does not support item deletion", TypeName(x))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func ipow(base, exp int64) int64 {
	r := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r
}

func repeat(items []any, n int64) []any {
	var out []any
	for i := int64(0); i < n; i++ {
		out = append(out, items...)
	}
	return out
}

// BinaryOp applies a host arithmetic, bitwise or sequence operator.
func BinaryOp(op string, a, b any) (any, error) {
	ai, af, aint, aok := asNumber(a)
	bi, bf, bint, bok := asNumber(b)
	if aok && bok {
		if aint && bint {
			return intOp(op, ai, bi)
		}
		return floatOp(op, af, bf)
	}
	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			if op == "+" {
				return x + y, nil
			}
		case int64:
			if op == "*" {
				if y < 0 {
					y = 0
				}
				return strings.Repeat(x, int(y)), nil
			}
		}
		if op == "%" {
			return percentFormat(x, b)
		}
	case *ListObject:
		switch y := b.(type) {
		case *ListObject:
			if op == "+" {
				return NewList(append(append([]any(nil), x.Elts...), y.Elts...)...), nil
			}
		case int64:
			if op == "*" {
				return NewList(repeat(x.Elts, y)...), nil
			}
		}
	case *TupleObject:
		switch y := b.(type) {
		case *TupleObject:
			if op == "+" {
				return NewTuple(append(append([]any(nil), x.Elts...), y.Elts...)...), nil
			}
		case int64:
			if op == "*" {
				return NewTuple(repeat(x.Elts, y)...), nil
			}
		}
	case int64:
		if op == "*" {
			switch b.(type) {
			case string, *ListObject, *TupleObject:
				return BinaryOp(op, b, a)
			}
		}
	case *SetObject:
		if y, ok := b.(*SetObject); ok {
			return setOp(op, x, y)
		}
	case *DictObject:
		if y, ok := b.(*DictObject); ok && op == "|" {
			d := x.Clone()
			for _, k := range y.Keys() {
				v, _, _ := y.Get(k)
				_ = d.Set(k, v)
			}
			return d, nil
		}
	}
	return nil, Raise("TypeError", "unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(a), TypeName(b))
}

func intOp(op string, a, b int64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "integer division or modulo by zero")
		}
		return floorDiv(a, b), nil
	case "%":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "integer division or modulo by zero")
		}
		return floorMod(a, b), nil
	case "**":
		if b < 0 {
			return math.Pow(float64(a), float64(b)), nil
		}
		return ipow(a, b), nil
	case "<<":
		if b < 0 {
			return nil, Raise("ValueError", "negative shift count")
		}
		return a << uint(b), nil
	case ">>":
		if b < 0 {
			return nil, Raise("ValueError", "negative shift count")
		}
		return a >> uint(b), nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	}
	return nil, Raise("TypeError", "unsupported operand type(s) for %s: 'int' and 'int'", op)
}

func floatOp(op string, a, b float64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "float division by zero")
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "float floor division by zero")
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, Raise("ZeroDivisionError", "float modulo")
		}
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	case "**":
		return math.Pow(a, b), nil
	}
	return nil, Raise("TypeError", "unsupported operand type(s) for %s: 'float' and 'float'", op)
}

func setOp(op string, a, b *SetObject) (any, error) {
	out := NewSet()
	switch op {
	case "|":
		for _, e := range a.Items() {
			_ = out.Add(e)
		}
		for _, e := range b.Items() {
			_ = out.Add(e)
		}
	case "&", "-", "^":
		for _, e := range a.Items() {
			in, _ := b.Has(e)
			if (op == "&") == in {
				_ = out.Add(e)
			}
		}
		if op == "^" {
			for _, e := range b.Items() {
				if in, _ := a.Has(e); !in {
					_ = out.Add(e)
				}
			}
		}
	default:
		return nil, Raise("TypeError", "unsupported operand type(s) for %s: 'set' and 'set'", op)
	}
	return out, nil
}

// UnaryOp applies "-", "+", "~" or "not" to a host object.
func UnaryOp(op string, x any) (any, error) {
	if op == "not" {
		t, err := Truth(x)
		return !t, err
	}
	i, f, isInt, ok := asNumber(x)
	if !ok {
		return nil, Raise("TypeError", "bad operand type for unary %s: '%s'", op, TypeName(x))
	}
	switch op {
	case "-":
		if isInt {
			return -i, nil
		}
		return -f, nil
	case "+":
		if isInt {
			return i, nil
		}
		return f, nil
	case "~":
		if isInt {
			return ^i, nil
		}
	}
	return nil, Raise("TypeError", "bad operand type for unary %s: '%s'", op, TypeName(x))
}
