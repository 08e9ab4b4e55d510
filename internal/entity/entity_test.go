package entity

import (
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

func TestParsePorts(t *testing.T) {
	ports, err := ParsePorts("A, =B:u8, +C:s*, *IFC:pkg.Axi.MASTER")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	want := []Port{
		{Name: "A", Dir: In},
		{Name: "B", Dir: Out, Type: "u8"},
		{Name: "C", Dir: InOut, Type: "s*"},
		{Name: "IFC", Dir: Ifc, Type: "pkg.Axi.MASTER"},
	}
	if len(ports) != len(want) {
		t.Fatalf("expected %d ports, got %d", len(want), len(ports))
	}
	for i := range want {
		if *ports[i] != want[i] {
			t.Fatalf("port %d = %+v, want %+v", i, *ports[i], want[i])
		}
	}
	cls, view := ports[3].IfcSplit()
	if cls != "pkg.Axi" || view != "MASTER" {
		t.Fatalf("IfcSplit = %q %q", cls, view)
	}
	if !ports[0].IsRO() || !ports[1].IsWr() || !ports[2].IsRW() || !ports[3].IsIfc() {
		t.Fatalf("unexpected direction predicates")
	}
	if _, err := ParsePort("=A B"); err == nil {
		t.Fatalf("expected error on malformed port")
	}
}

func TestPortTypeCheck(t *testing.T) {
	p, _ := ParsePort("=B:u8")
	if err := p.CheckType(types.Uint8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := p.CheckType(types.Uint4)
	if err == nil || !strings.Contains(err.Error(), `for entity port "B"`) {
		t.Fatalf("expected port mismatch, got %v", err)
	}
	if _, ok := err.(*BindingError); !ok {
		t.Fatalf("expected BindingError, got %T", err)
	}
}

func TestParseSensitivity(t *testing.T) {
	sens := ParseSensitivity("+CLK, -RST_N, A, IFC.X")
	want := []Sens{{"CLK", PosEdge}, {"RST_N", NegEdge}, {"A", Level}, {"IFC_X", Level}}
	if len(sens) != len(want) {
		t.Fatalf("got %+v", sens)
	}
	for i := range want {
		if sens[i] != want[i] {
			t.Fatalf("sens[%d] = %+v, want %+v", i, sens[i], want[i])
		}
	}
	if got := Edges(sens); len(got) != 2 {
		t.Fatalf("expected two edges, got %+v", got)
	}
	known := map[string]bool{"CLK": true, "RST_N": true, "A": true}
	err := CheckSensitivity(sens, func(n string) bool { return known[n] })
	if err == nil || !strings.Contains(err.Error(), "IFC_X") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestVersionsDedup(t *testing.T) {
	v := NewVersions()
	k1 := Digest("A=uint(8)", "B=uint(8)")
	k2 := Digest("A=uint(4)", "B=uint(4)")

	name, created := v.Name("AndGate", k1)
	if name != "AndGate" || !created {
		t.Fatalf("first = %q %v", name, created)
	}
	name, created = v.Name("AndGate", k1)
	if name != "AndGate" || created {
		t.Fatalf("repeat = %q %v", name, created)
	}
	name, _ = v.Name("AndGate", k2)
	if name != "AndGate_1" {
		t.Fatalf("second version = %q", name)
	}
	name, _ = v.Name("OrGate", k2)
	if name != "OrGate" {
		t.Fatalf("other class = %q", name)
	}
	if Digest("ab", "c") == Digest("a", "bc") {
		t.Fatalf("digest must separate parts")
	}
}

func TestInstanciator(t *testing.T) {
	it := NewInstanciator()
	p32 := []Param{{"NX", "8"}, {"NM", "23"}}
	p64 := []Param{{"NX", "11"}, {"NM", "52"}}
	a := it.GetID("fpu", p32, nil)
	b := it.GetID("fpu", p32, nil)
	c := it.GetID("fpu", p64, nil)
	d := it.GetID("lib.fp$conv", nil, nil)
	if a != "fpu_1" || b != a || c != "fpu_2" || d != "lib_fp_conv_1" {
		t.Fatalf("ids = %s %s %s %s", a, b, c, d)
	}
	if n := len(it.Instances()); n != 3 {
		t.Fatalf("expected 3 instances, got %d", n)
	}
}
