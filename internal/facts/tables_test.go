package facts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorderDeduplicatesAndSorts(t *testing.T) {
	r := NewRecorder()
	r.Entity(EntityRow{Name: "Top", Class: "Top", Backend: "verilog"})
	r.Entity(EntityRow{Name: "And", Class: "And", Backend: "verilog"})
	r.Entity(EntityRow{Name: "And", Class: "And", Backend: "verilog"})
	r.Port(PortRow{Entity: "And", Name: "B", Direction: "IN", Type: "bits(1)"})
	r.Port(PortRow{Entity: "And", Name: "A", Direction: "IN", Type: "bits(1)"})
	r.Driver(DriverRow{Entity: "And", Process: "run", Signal: "X"})
	r.Driver(DriverRow{Entity: "And", Process: "run", Signal: "X"})
	r.Driver(DriverRow{Entity: "And", Process: "run", Signal: "X", Conditional: true})

	tables := r.Tables()

	require.Len(t, tables.Entities, 2)
	require.Equal(t, "And", tables.Entities[0].Name)
	require.Equal(t, []string{"A", "B"}, []string{tables.Ports[0].Name, tables.Ports[1].Name})
	require.Len(t, tables.Drivers, 2)
	require.NotNil(t, tables.Instances)
	require.Equal(t, 6, tables.Len())
}
