package value

import (
	"testing"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

type seq []any

func (s seq) Items() []any { return s }

func TestFactories(t *testing.T) {
	w := MkWire(types.Uint8, "A", nil)
	if !w.IsWire() || w.Name() != "A" || w.Ref().Mode != RW {
		t.Fatalf("unexpected wire %s", w)
	}
	r := MkReg(types.Uint8, "", nil)
	if !r.IsReg() || r.Init() == nil || r.Name() != "" {
		t.Fatalf("unnamed reg should carry an Init: %s", r)
	}
	c := MkWire(types.Uint8, "K", &VSpec{Const: true})
	if c.Ref().Mode != RO || !IsRORef(c) || !c.IsConst() {
		t.Fatalf("const ref should be read-only: %s", c)
	}
	v := MkVReg(types.Uint4, int64(3), nil)
	if v.Init().Value != int64(3) {
		t.Fatalf("init literal lost: %s", v)
	}
	none := MkNone(types.Uint8)
	if !none.IsNone() {
		t.Fatalf("expected none value")
	}
}

func TestDerefAndReadOnly(t *testing.T) {
	w := MkReg(types.Uint8, "COUNT", nil)
	d := w.Deref()
	if !d.IsTemp() || d.Text() != "COUNT" || d.Ref() != nil {
		t.Fatalf("deref = %s", d)
	}
	ro := MakeRO(w)
	if !IsRORef(ro) || IsRORef(w) {
		t.Fatalf("MakeRO must not alter the source")
	}
	if MakeRO(ro) != ro {
		t.Fatalf("MakeRO of a read-only ref should be the identity")
	}
	port := &entity.Port{Name: "A", Dir: entity.In}
	pref := NewRef("A", &VSpec{Const: port.IsRO(), Port: port})
	if pref.Mode != RO || pref.String() != "#A" {
		t.Fatalf("port ref = %s", pref)
	}
}

func TestNewValueShape(t *testing.T) {
	m := MkWire(types.MkArray(types.Uint8, 4), "M", nil)
	e := m.NewValue("M[1]", []int{8})
	if !e.DType().Equal(types.Uint8) || e.Text() != "M[1]" || !e.IsWire() {
		t.Fatalf("element = %s", e)
	}
	if !m.Equal(MkWire(types.MkArray(types.Uint8, 4), "M", nil)) {
		t.Fatalf("structurally equal values must compare equal")
	}
	if m.Equal(MkReg(types.MkArray(types.Uint8, 4), "M", nil)) {
		t.Fatalf("wire and register must differ")
	}
}

func TestHasHDLVars(t *testing.T) {
	w := MkWire(types.BitType, "X", nil)
	cases := []struct {
		in   any
		want bool
	}{
		{int64(1), false},
		{w, true},
		{seq{int64(1), "a"}, false},
		{seq{int64(1), seq{w}}, true},
		{[]any{seq{}, w}, true},
	}
	for i, tc := range cases {
		if got := HasHDLVars(tc.in); got != tc.want {
			t.Fatalf("case %d: HasHDLVars = %v, want %v", i, got, tc.want)
		}
	}
}

func TestBackendAttrs(t *testing.T) {
	vs := &VSpec{Attributes: map[string][]Attr{
		CommonAttrs: {{"keep", "true"}, {"common_int", int64(17)}},
		"vhdl":      {{"common_int", int64(21)}, {"vhdl_only", "x"}},
	}}
	attrs := vs.BackendAttrs("vhdl")
	if len(attrs) != 3 || attrs[1].Value != int64(21) || attrs[2].Name != "vhdl_only" {
		t.Fatalf("vhdl attrs = %+v", attrs)
	}
	if attrs := vs.BackendAttrs("verilog"); len(attrs) != 2 || attrs[1].Value != int64(17) {
		t.Fatalf("verilog attrs = %+v", attrs)
	}
}
