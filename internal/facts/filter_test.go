package facts

import "testing"

func TestFilterTablesByEntities(t *testing.T) {
	tables := Tables{
		Entities: []EntityRow{
			{Name: "a"},
			{Name: "b"},
		},
		Ports: []PortRow{
			{Entity: "a", Name: "CLK"},
			{Entity: "b", Name: "RST"},
		},
		Reads: []ReadRow{
			{Entity: "a", Process: "run", Signal: "CLK"},
			{Entity: "b", Process: "run", Signal: "RST"},
		},
		Libraries: []LibraryRow{{Name: "hdlgen", Backend: "vhdl"}},
	}

	filtered := FilterTablesByEntities(tables, map[string]bool{"a": true})

	if len(filtered.Entities) != 1 || filtered.Entities[0].Name != "a" {
		t.Fatalf("expected only entity a, got %#v", filtered.Entities)
	}
	if len(filtered.Ports) != 1 || filtered.Ports[0].Entity != "a" {
		t.Fatalf("expected only a port rows, got %#v", filtered.Ports)
	}
	if len(filtered.Reads) != 1 || filtered.Reads[0].Signal != "CLK" {
		t.Fatalf("expected only a read rows, got %#v", filtered.Reads)
	}
	if len(filtered.Libraries) != 1 {
		t.Fatalf("library rows must be kept, got %#v", filtered.Libraries)
	}
}

func TestFilterDeltaByEntitiesEmpty(t *testing.T) {
	delta := Delta{
		Added: Tables{
			Entities: []EntityRow{{Name: "a"}},
		},
		Removed: Tables{
			Entities: []EntityRow{{Name: "b"}},
		},
	}

	filtered := FilterDeltaByEntities(delta, map[string]bool{})
	if len(filtered.Added.Entities) != 0 || len(filtered.Removed.Entities) != 0 {
		t.Fatalf("expected empty delta, got %#v", filtered)
	}
}
