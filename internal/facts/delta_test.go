package facts

import "testing"

func TestComputeDeltaAddsAndRemoves(t *testing.T) {
	prev := Tables{
		Entities: []EntityRow{
			{Name: "Adder", Class: "Adder", Backend: "vhdl"},
		},
		Drivers: []DriverRow{
			{Entity: "Adder", Process: "run", Signal: "S"},
		},
	}
	next := Tables{
		Entities: []EntityRow{
			{Name: "Adder_1", Class: "Adder", Backend: "vhdl"},
		},
		Drivers: []DriverRow{
			{Entity: "Adder", Process: "run", Signal: "S", Conditional: true},
		},
	}

	delta := ComputeDelta(prev, next)

	if len(delta.Added.Entities) != 1 || delta.Added.Entities[0].Name != "Adder_1" {
		t.Fatalf("expected entity Adder_1 added, got %+v", delta.Added.Entities)
	}
	if len(delta.Removed.Entities) != 1 || delta.Removed.Entities[0].Name != "Adder" {
		t.Fatalf("expected entity Adder removed, got %+v", delta.Removed.Entities)
	}
	if len(delta.Added.Drivers) != 1 || !delta.Added.Drivers[0].Conditional {
		t.Fatalf("expected conditional driver added, got %+v", delta.Added.Drivers)
	}
	if len(delta.Removed.Drivers) != 1 || delta.Removed.Drivers[0].Conditional {
		t.Fatalf("expected unconditional driver removed, got %+v", delta.Removed.Drivers)
	}
	if delta.Empty() {
		t.Fatalf("delta should not be empty")
	}
	if !ComputeDelta(next, next).Empty() {
		t.Fatalf("identical snapshots must produce an empty delta")
	}
}

func TestApplyDeltaReachesNextSnapshot(t *testing.T) {
	prev := Tables{
		Ports: []PortRow{
			{Entity: "Adder", Name: "A", Direction: "IN", Type: "uint(8)"},
			{Entity: "Adder", Name: "S", Direction: "OUT", Type: "uint(8)"},
		},
		Reads: []ReadRow{{Entity: "Adder", Process: "run", Signal: "A"}},
	}
	next := Tables{
		Ports: []PortRow{
			{Entity: "Adder", Name: "A", Direction: "IN", Type: "uint(8)"},
			{Entity: "Adder", Name: "B", Direction: "IN", Type: "uint(8)"},
			{Entity: "Adder", Name: "S", Direction: "OUT", Type: "uint(8)"},
		},
		Drivers: []DriverRow{{Entity: "Adder", Process: "run", Signal: "S"}},
	}

	got := ApplyDelta(prev, ComputeDelta(prev, next))
	want := BuildTables(next)

	if len(got.Ports) != len(want.Ports) {
		t.Fatalf("ports: got %+v, want %+v", got.Ports, want.Ports)
	}
	for i := range want.Ports {
		if got.Ports[i] != want.Ports[i] {
			t.Fatalf("port %d: got %+v, want %+v", i, got.Ports[i], want.Ports[i])
		}
	}
	if len(got.Reads) != 0 {
		t.Fatalf("expected reads removed, got %+v", got.Reads)
	}
	if len(got.Drivers) != 1 || got.Drivers[0].Signal != "S" {
		t.Fatalf("expected driver of S, got %+v", got.Drivers)
	}
}
