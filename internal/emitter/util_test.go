package emitter

import (
	"math"
	"reflect"
	"testing"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

func TestParen(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a", "a"},
		{"a + b", "(a + b)"},
		{"f(a + b)", "f(a + b)"},
		{"(a) and (b)", "((a) and (b))"},
		{"x[3 - 1]", "x[3 - 1]"},
		{`"a b"`, `"a b"`},
		{"-a", "(-a)"},
		{"{a, b}", "{a, b}"},
	}
	for _, tt := range tests {
		if got := Paren(tt.in); got != tt.want {
			t.Errorf("Paren(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParenJoin(t *testing.T) {
	if got := ParenJoin(" and ", []string{"a = b"}); got != "a = b" {
		t.Fatalf("single arg = %q", got)
	}
	if got := ParenJoin(" and ", []string{"a = b", "c"}); got != "(a = b) and c" {
		t.Fatalf("two args = %q", got)
	}
}

func TestFlat2ShapeAndNDIndex(t *testing.T) {
	parts := []string{"0", "1", "2", "3", "4", "5"}
	if got := Flat2Shape(parts, []int{2, 3}, "(", ")"); got != "((0, 1, 2), (3, 4, 5))" {
		t.Fatalf("Flat2Shape = %q", got)
	}
	idx := NDIndex([]int{2, 2})
	want := [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	if !reflect.DeepEqual(idx, want) {
		t.Fatalf("NDIndex = %v", idx)
	}
}

func TestNormSliceAndSqueeze(t *testing.T) {
	neg, stop := -3, 7
	s, e := NormSlice(&neg, nil, 8)
	if s != 5 || e != 8 {
		t.Fatalf("NormSlice(-3:) = %d, %d", s, e)
	}
	s, e = NormSlice(nil, &stop, 8)
	if s != 0 || e != 7 {
		t.Fatalf("NormSlice(:7) = %d, %d", s, e)
	}
	if got := Squeeze([]int{1, 1, 4, 8}); !reflect.DeepEqual(got, []int{4, 8}) {
		t.Fatalf("Squeeze = %v", got)
	}
	if got := Squeeze([]int{1}); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("Squeeze([1]) = %v", got)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		1:           "1.0",
		2.5:         "2.5",
		1e21:        "1.0e+21",
		math.Inf(1): "1.0e308",
	}
	for in, want := range tests {
		if got := FormatFloat(in); got != want {
			t.Errorf("FormatFloat(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestLiteralMatchers(t *testing.T) {
	bits, ok := MatchBitString("0b10XZ", nil)
	if !ok || bits != "10XZ" {
		t.Fatalf("MatchBitString = %q %v", bits, ok)
	}
	if _, ok := MatchBitString("10", nil); ok {
		t.Fatalf("plain string matched as bit string")
	}
	dtype, iv, ok, err := MatchIntString("s12`-0x10")
	if err != nil || !ok || iv != -16 || !dtype.Equal(types.NewSint(12)) {
		t.Fatalf("MatchIntString = %v %d %v %v", dtype, iv, ok, err)
	}
	if _, _, _, err := MatchIntString("u8`abc"); err == nil {
		t.Fatalf("expected invalid literal error")
	}
	if got := PadBits("0b101", 6); got != "000101" {
		t.Fatalf("PadBits pad = %q", got)
	}
	if got := PadBits("110101", 3); got != "101" {
		t.Fatalf("PadBits trim = %q", got)
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		t     float64
		unit  string
		wantN int64
		wantU string
	}{
		{10, "ns", 10, "ns"},
		{2.5, "ns", 2500, "ps"},
		{0.5, "us", 500, "ns"},
		{3, "bogus", 3, "bogus"},
	}
	for _, tt := range tests {
		n, u := NormalizeTime(tt.t, tt.unit)
		if n != tt.wantN || u != tt.wantU {
			t.Errorf("NormalizeTime(%v, %s) = %d %s, want %d %s", tt.t, tt.unit, n, u, tt.wantN, tt.wantU)
		}
	}
}

func TestTwosComplementAndFits(t *testing.T) {
	if got := TwosComplement(-1, 4); got != "1111" {
		t.Fatalf("TwosComplement(-1, 4) = %q", got)
	}
	if got := TwosComplement(5, 6); got != "000101" {
		t.Fatalf("TwosComplement(5, 6) = %q", got)
	}
	if got := TwosComplement(-2, 66); got[:3] != "111" || got[63:] != "110" {
		t.Fatalf("TwosComplement(-2, 66) = %q", got)
	}
	if !FitsInt32(math.MaxInt32) || FitsInt32(math.MaxInt32+1) || !FitsInt32(math.MinInt32) {
		t.Fatalf("FitsInt32 bounds")
	}
}

func TestHostTruth(t *testing.T) {
	truthy := []any{true, int64(3), 1, 0.5, "True", "1", "0x10"}
	for _, x := range truthy {
		if b, err := HostTruth(x); err != nil || !b {
			t.Errorf("HostTruth(%v) = %v, %v", x, b, err)
		}
	}
	falsy := []any{false, int64(0), 0.0, "False", "", nil}
	for _, x := range falsy {
		if b, err := HostTruth(x); err != nil || b {
			t.Errorf("HostTruth(%v) = %v, %v", x, b, err)
		}
	}
	if _, err := HostTruth("maybe"); err == nil {
		t.Fatalf("expected error for non boolean string")
	}
}

func TestPlacementTree(t *testing.T) {
	root := newPlacement(0)
	root.appendLine("a")
	child := newPlacement(1)
	root.appendPlacement(child)
	root.appendLine("c")
	child.appendLine("b")
	if root.Len() != 3 {
		t.Fatalf("Len = %d", root.Len())
	}
	if got := root.Lines(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Lines = %v", got)
	}
}

func TestOpClasses(t *testing.T) {
	if !OpMod.IsArith() || OpBitOr.IsArith() {
		t.Fatalf("IsArith")
	}
	if !OpBitAnd.IsBit() || !OpShr.IsShift() || !OpGtE.IsCompare() || OpNot.IsCompare() {
		t.Fatalf("op classes")
	}
	if OpMul.String() != "Mult" || Op(999).String() != "Op?" {
		t.Fatalf("op names")
	}
}
