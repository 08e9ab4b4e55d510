package types

import (
	"strings"
	"testing"
)

func TestParseTypes(t *testing.T) {
	cases := []struct {
		in    string
		kind  Kind
		shape []int
		str   string
	}{
		{in: "u8", kind: KindUint, shape: []int{8}, str: "uint(8)"},
		{in: "s16", kind: KindSint, shape: []int{16}, str: "sint(16)"},
		{in: "b4", kind: KindBits, shape: []int{4}, str: "bits(4)"},
		{in: "bit", kind: KindBits, shape: []int{1}, str: "bits(1)"},
		{in: "f32", kind: KindFloat, shape: []int{32}, str: "float(32)"},
		{in: "bool", kind: KindBool, shape: []int{NoBits}, str: "bool()"},
		{in: "int", kind: KindInteger, shape: []int{NoBits}, str: "integer()"},
		{in: "real", kind: KindReal, shape: []int{NoBits}, str: "real()"},
		{in: "(4,4)f32", kind: KindFloat, shape: []int{4, 4, 32}, str: "float(4, 4, 32)"},
		{in: "(3) bool", kind: KindBool, shape: []int{3, NoBits}, str: "bool(3)"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got.Kind() != tc.kind {
			t.Fatalf("Parse(%q) kind = %s, want %s", tc.in, got.Kind(), tc.kind)
		}
		if !got.Equal(New(tc.kind, tc.shape...)) {
			t.Fatalf("Parse(%q) = %s, want shape %v", tc.in, got, tc.shape)
		}
		if got.String() != tc.str {
			t.Fatalf("Parse(%q).String() = %q, want %q", tc.in, got.String(), tc.str)
		}
	}

	for _, bad := range []string{"x8", "u0", "uint", "(4,)u8"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error parsing %q", bad)
		}
	}
}

func TestShapeAccessors(t *testing.T) {
	arr := MkArray(Uint8, 4, 2)
	if arr.NDim() != 3 || arr.NBits() != 8 || arr.Size() != 8 {
		t.Fatalf("unexpected array geometry: %s ndim=%d nbits=%d size=%d", arr, arr.NDim(), arr.NBits(), arr.Size())
	}
	if !arr.ElementType().Equal(Uint8) {
		t.Fatalf("element type = %s", arr.ElementType())
	}
	if got := arr.Squeeze(1); !got.Equal(MkArray(Uint8, 2)) {
		t.Fatalf("squeeze(1) = %s", got)
	}
	if got := arr.Squeeze(5); !got.Equal(Uint8) {
		t.Fatalf("squeeze(5) = %s", got)
	}
	bools := BoolType.NewShape(3)
	if len(bools.Shape()) != 1 || bools.Shape()[0] != 3 || bools.NBits() != NoBits {
		t.Fatalf("bool array shape = %v", bools.FullShape())
	}
	if IntType.HasBits() || !Float16.HasBits() {
		t.Fatalf("unexpected HasBits")
	}
}

func TestBestTypeCommutative(t *testing.T) {
	all := []*Type{Uint4, Uint8, Int8, Int16, BoolType, IntType, RealType, Float32, NewBits(8)}
	for _, table := range []*PrecTable{Arith, Bit, Concat, Compare, IfExp} {
		for _, a := range all {
			for _, b := range all {
				ab, errA := BestType(a, b, table)
				ba, errB := BestType(b, a, table)
				_, aok := table.Lookup(a.Kind())
				_, bok := table.Lookup(b.Kind())
				if !aok || !bok {
					if errA == nil && !bok {
						t.Fatalf("%s: expected error for %s", table.Name, b)
					}
					continue
				}
				if errA != nil || errB != nil {
					t.Fatalf("%s: unexpected errors %v %v", table.Name, errA, errB)
				}
				if !ab.Equal(ba) {
					t.Fatalf("%s: BestType(%s, %s) = %s but reverse = %s", table.Name, a, b, ab, ba)
				}
			}
		}
	}
}

func TestBestTypePromotion(t *testing.T) {
	cases := []struct {
		a, b  *Type
		table *PrecTable
		want  *Type
	}{
		{Uint8, Uint4, Arith, Uint8},
		{Uint8, Int8, Arith, Int8},
		{Uint8, IntType, Arith, IntType},
		{Float32, IntType, Arith, Float32},
		{Float32, RealType, Arith, RealType},
		{Int8, Uint8, Bit, Uint8},
		{NewBits(8), Uint8, Bit, NewBits(8)},
		{Uint8, NewBits(8), Concat, NewBits(8)},
		{Uint8, Int8, Compare, Int8},
	}
	for _, tc := range cases {
		got, err := BestType(tc.a, tc.b, tc.table)
		if err != nil {
			t.Fatalf("BestType(%s, %s): %v", tc.a, tc.b, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s BestType(%s, %s) = %s, want %s", tc.table.Name, tc.a, tc.b, got, tc.want)
		}
	}

	_, err := BestType(nil, NewBits(4), Arith)
	if err == nil || !strings.Contains(err.Error(), "Unsupported type bits") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
	if got := ResultType(BoolType, Arith); !got.Equal(NewUint(1)) {
		t.Fatalf("bool arith result = %s", got)
	}
	if got := ResultType(BoolType, Concat); !got.Equal(NewBits(1)) {
		t.Fatalf("bool concat result = %s", got)
	}
}

func TestMatcher(t *testing.T) {
	wild, _ := ParseMatcher("*")
	if err := wild.Check(Float64, ""); err != nil {
		t.Fatalf("wildcard rejected: %v", err)
	}
	class, _ := ParseMatcher("u*")
	if err := class.Check(Uint16, ""); err != nil {
		t.Fatalf("class rejected: %v", err)
	}
	if err := class.Check(Int16, " for port A"); err == nil || !strings.Contains(err.Error(), "Mismatch type class for port A") {
		t.Fatalf("expected class mismatch, got %v", err)
	}
	exact, _ := ParseMatcher("u8")
	if err := exact.Check(Uint4, ""); err == nil || !strings.HasPrefix(err.Error(), "Mismatch type: uint(4) vs. uint(8)") {
		t.Fatalf("expected exact mismatch, got %v", err)
	}
	if _, err := ParseMatcher("q*"); err == nil {
		t.Fatalf("expected error on bad class")
	}
}
