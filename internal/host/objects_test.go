package host

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictOrderAndKeys(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.Set("b", int64(1)))
	require.NoError(t, d.Set(int64(1), "one"))
	require.NoError(t, d.Set(true, "true"))
	require.NoError(t, d.Set(NewTuple(int64(1), "x"), 3.5))
	require.Equal(t, 3, d.Len())

	v, ok, err := d.Get(1.0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)

	require.Equal(t, "{'b': 1, 1: 'true', (1, 'x'): 3.5}", Repr(d))

	err = d.Set(NewList(), 1)
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	require.Equal(t, "TypeError", exc.Kind)
}

func TestClassMRO(t *testing.T) {
	obj := MustClass("object")
	a := MustClass("A", obj)
	b := MustClass("B", obj)
	c := MustClass("C", a, b)
	names := make([]string, len(c.MRO))
	for i, k := range c.MRO {
		names[i] = k.Name
	}
	require.Equal(t, []string{"C", "A", "B", "object"}, names)
	require.True(t, c.IsSubclass(b))
	require.False(t, a.IsSubclass(b))

	b.Dict.Set("x", int64(7))
	v, owner, ok := c.Lookup("x")
	require.True(t, ok)
	require.Equal(t, int64(7), v)
	require.Equal(t, b, owner)

	if _, err := NewClass("D", []*Class{obj, a}, nil); err == nil {
		t.Fatalf("expected an inconsistent MRO error")
	}
}

func TestBinaryOps(t *testing.T) {
	tests := []struct {
		op   string
		a, b any
		want any
	}{
		{"+", int64(2), int64(3), int64(5)},
		{"/", int64(7), int64(2), 3.5},
		{"//", int64(-7), int64(2), int64(-4)},
		{"%", int64(-7), int64(3), int64(2)},
		{"**", int64(2), int64(10), int64(1024)},
		{"<<", int64(1), int64(4), int64(16)},
		{"+", true, int64(1), int64(2)},
		{"*", "ab", int64(3), "ababab"},
		{"*", int64(2), "xy", "xyxy"},
		{"%", "%d-%s", NewTuple(int64(4), "z"), "4-z"},
	}
	for _, tt := range tests {
		got, err := BinaryOp(tt.op, tt.a, tt.b)
		if err != nil {
			t.Fatalf("%v %s %v: %v", tt.a, tt.op, tt.b, err)
		}
		if !Equal(got, tt.want) {
			t.Fatalf("%v %s %v = %v, want %v", tt.a, tt.op, tt.b, Repr(got), Repr(tt.want))
		}
	}
	if _, err := BinaryOp("+", "a", int64(1)); err == nil {
		t.Fatalf("expected a TypeError")
	}
}

func TestCompareAndContains(t *testing.T) {
	ok, err := Compare("<", NewTuple(int64(1), int64(2)), NewTuple(int64(1), int64(3)))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Compare("in", "B", "ABC")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Compare("not in", int64(4), &Range{Start: 0, Stop: 4, Step: 1})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Compare("<", "a", int64(1))
	require.Error(t, err)
}

func TestGetItemSlices(t *testing.T) {
	l := NewList(int64(0), int64(1), int64(2), int64(3), int64(4))
	got, err := GetItem(l, &SliceObject{Start: int64(1), Stop: int64(-1)})
	require.NoError(t, err)
	require.Equal(t, "[1, 2, 3]", Repr(got))

	got, err = GetItem(l, &SliceObject{Step: int64(-2)})
	require.NoError(t, err)
	require.Equal(t, "[4, 2, 0]", Repr(got))

	got, err = GetItem("ABCD", &SliceObject{Stop: int64(-1)})
	require.NoError(t, err)
	require.Equal(t, "ABC", got)

	_, err = GetItem(l, int64(5))
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	require.Equal(t, "IndexError", exc.Kind)
}

func TestRange(t *testing.T) {
	require.Equal(t, 4, (&Range{Start: 0, Stop: 4, Step: 1}).Len())
	require.Equal(t, 3, (&Range{Start: 10, Stop: 4, Step: -2}).Len())
	require.Equal(t, 0, (&Range{Start: 4, Stop: 4, Step: 1}).Len())
}

func TestFormat(t *testing.T) {
	tests := []struct {
		x    any
		spec string
		want string
	}{
		{int64(10), "04x", "000a"},
		{int64(5), "#b", "0b101"},
		{int64(-3), "+d", "-3"},
		{int64(1234567), ",", "1,234,567"},
		{3.14159, ".4f", "3.1416"},
		{0.5, ".1%", "50.0%"},
		{"ab", ">5", "   ab"},
		{"ab", "*^6", "**ab**"},
		{true, "", "True"},
		{1e20, "", "1e+20"},
		{2.0, "", "2.0"},
	}
	for _, tt := range tests {
		got, err := Format(tt.x, tt.spec)
		if err != nil {
			t.Fatalf("Format(%v, %q): %v", tt.x, tt.spec, err)
		}
		if got != tt.want {
			t.Fatalf("Format(%v, %q) = %q, want %q", tt.x, tt.spec, got, tt.want)
		}
	}
}

func TestReprStrings(t *testing.T) {
	require.Equal(t, `'it"s'`, Repr(`it"s`))
	require.Equal(t, `"it's"`, Repr("it's"))
	require.Equal(t, "(1,)", Repr(NewTuple(int64(1))))
	require.Equal(t, "set()", Repr(NewSet()))
	require.Equal(t, "1.5e-07", FloatRepr(1.5e-7))
	require.Equal(t, "0.0001", FloatRepr(1e-4))
}

func TestItems(t *testing.T) {
	require.Equal(t, []any{int64(1), "a"}, Items(NewList(int64(1), "a")))
	require.Equal(t, []any{int64(2)}, Items(NewTuple(int64(2))))
	require.Nil(t, Items("ab"))
	require.Nil(t, Items(NewDict()))
}
