package validator

import (
	"testing"

	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
)

func TestFactsValidatorAcceptsValidTables(t *testing.T) {
	v, err := NewFactsValidator()
	if err != nil {
		t.Fatalf("new facts validator: %v", err)
	}

	r := facts.NewRecorder()
	r.Entity(facts.EntityRow{Name: "AndGate", Class: "AndGate", Backend: "vhdl"})
	r.Port(facts.PortRow{Entity: "AndGate", Name: "A", Direction: "IN", Type: "bits(1)"})
	r.Process(facts.ProcessRow{Entity: "AndGate", Name: "run", Kind: "root", Mode: "comb"})
	r.Driver(facts.DriverRow{Entity: "AndGate", Process: "run", Signal: "XOUT"})

	if err := v.Validate(r.Tables()); err != nil {
		t.Fatalf("expected valid tables, got error: %v", err)
	}
	// Relations left nil are marshaled as null and are accepted too.
	if err := v.Validate(facts.Tables{}); err != nil {
		t.Fatalf("expected empty tables to validate, got error: %v", err)
	}
}

func TestFactsValidatorRejectsInvalidTables(t *testing.T) {
	v, err := NewFactsValidator()
	if err != nil {
		t.Fatalf("new facts validator: %v", err)
	}

	tables := facts.Tables{
		Ports: []facts.PortRow{{
			Entity:    "AndGate",
			Name:      "A",
			Direction: "SIDEWAYS",
			Type:      "bits(1)",
		}},
	}

	if err := v.Validate(tables); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}
