package policy_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/compiler"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter/vhdl"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/policy"
	"github.com/robert-at-pretension-io/hdlgen/internal/testutil"
)

func newEngine(t *testing.T, rules map[string]string) *policy.Engine {
	t.Helper()
	e, err := policy.New(testutil.Context(t), policy.Options{Rules: rules})
	require.NoError(t, err)
	return e
}

func evaluate(t *testing.T, e *policy.Engine, tables facts.Tables) *policy.Result {
	t.Helper()
	res, err := e.Evaluate(testutil.Context(t), tables)
	require.NoError(t, err)
	return res
}

func hasViolation(result *policy.Result, rule, object string) bool {
	for _, v := range result.Violations {
		if v.Rule == rule && v.Object == object {
			return true
		}
	}
	return false
}

func collectRules(result *policy.Result) []string {
	var rules []string
	for _, v := range result.Violations {
		rules = append(rules, v.Rule+":"+v.Object)
	}
	return rules
}

// counter is a small clocked design: a counter with an output driven by a
// sub instance.
func counter() facts.Tables {
	return facts.Tables{
		Entities: []facts.EntityRow{
			{Name: "Counter", Class: "Counter", Backend: "vhdl"},
			{Name: "Slice", Class: "Slice", Backend: "vhdl", External: true},
		},
		Ports: []facts.PortRow{
			{Entity: "Counter", Name: "CLK", Direction: "IN", Type: "bits(1)"},
			{Entity: "Counter", Name: "RST", Direction: "IN", Type: "bits(1)"},
			{Entity: "Counter", Name: "EN", Direction: "IN", Type: "bits(1)"},
			{Entity: "Counter", Name: "SPARE", Direction: "IN", Type: "bits(1)"},
			{Entity: "Counter", Name: "COUNT", Direction: "OUT", Type: "uint(8)"},
			{Entity: "Counter", Name: "TOP", Direction: "OUT", Type: "bits(1)"},
			{Entity: "Counter", Name: "DBG", Direction: "OUT", Type: "bits(1)"},
			{Entity: "Slice", Name: "X", Direction: "IN", Type: "uint(8)"},
			{Entity: "Slice", Name: "Y", Direction: "OUT", Type: "bits(1)"},
		},
		Processes: []facts.ProcessRow{
			{Entity: "Counter", Name: "run", Kind: "normal", Clocked: true},
		},
		Sensitivity: []facts.SensitivityRow{
			{Entity: "Counter", Process: "run", Signal: "CLK", Trigger: "POSEDGE"},
		},
		Reads: []facts.ReadRow{
			{Entity: "Counter", Process: "run", Signal: "RST"},
			{Entity: "Counter", Process: "run", Signal: "EN"},
			{Entity: "Counter", Process: "run", Signal: "COUNT"},
		},
		Drivers: []facts.DriverRow{
			{Entity: "Counter", Process: "run", Signal: "COUNT", Conditional: true},
		},
		Instances: []facts.InstanceRow{
			{Entity: "Counter", Name: "Slice_1", Target: "Slice"},
		},
		Bindings: []facts.BindingRow{
			{Entity: "Counter", Instance: "Slice_1", Port: "X", Expr: "COUNT"},
			{Entity: "Counter", Instance: "Slice_1", Port: "Y", Expr: "TOP"},
		},
	}
}

func TestPortRules(t *testing.T) {
	res := evaluate(t, newEngine(t, nil), counter())

	require.True(t, hasViolation(res, policy.RuleUndrivenOutput, "DBG"), "got %v", collectRules(res))
	require.True(t, hasViolation(res, policy.RuleUnusedInput, "SPARE"), "got %v", collectRules(res))

	// Read by the process, in the sensitivity list, or bound to an instance.
	for _, name := range []string{"RST", "EN", "CLK"} {
		require.False(t, hasViolation(res, policy.RuleUnusedInput, name), name)
	}
	require.False(t, hasViolation(res, policy.RuleUndrivenOutput, "COUNT"))
	require.False(t, hasViolation(res, policy.RuleUndrivenOutput, "TOP"))

	// External entities have no body.
	require.False(t, hasViolation(res, policy.RuleUnusedInput, "X"))
	require.False(t, hasViolation(res, policy.RuleUndrivenOutput, "Y"))

	require.Equal(t, 1, res.Summary.Errors)
	require.Equal(t, 1, res.Summary.Warnings)
	require.Equal(t, 2, res.Summary.TotalViolations)
	require.True(t, res.HasErrors())
}

func TestMultiDrivenSignal(t *testing.T) {
	tables := facts.Tables{
		Entities: []facts.EntityRow{{Name: "Mux", Class: "Mux", Backend: "verilog"}},
		Signals: []facts.SignalRow{
			{Entity: "Mux", Name: "S", Type: "uint(4)", Kind: "WIRE"},
			{Entity: "Mux", Scope: "left", Name: "v", Type: "uint(4)", Kind: "WIRE"},
		},
		Processes: []facts.ProcessRow{
			{Entity: "Mux", Name: "left", Kind: "root"},
			{Entity: "Mux", Name: "right", Kind: "root"},
		},
		Drivers: []facts.DriverRow{
			{Entity: "Mux", Process: "left", Signal: "S"},
			{Entity: "Mux", Process: "right", Signal: "S"},
			{Entity: "Mux", Process: "left", Signal: "v"},
			{Entity: "Mux", Process: "right", Signal: "v"},
		},
	}
	res := evaluate(t, newEngine(t, nil), tables)

	require.Equal(t, []string{policy.RuleMultiDrivenSignal + ":S"}, collectRules(res))
	require.Equal(t, "S is driven by 2 processes: left, right", res.Violations[0].Message)
	require.Equal(t, "error", res.Violations[0].Severity)
}

func TestLatchProneComb(t *testing.T) {
	tables := facts.Tables{
		Entities: []facts.EntityRow{{Name: "Gate", Class: "Gate", Backend: "vhdl"}},
		Processes: []facts.ProcessRow{
			{Entity: "Gate", Name: "comb", Kind: "normal"},
			{Entity: "Gate", Name: "full", Kind: "normal"},
		},
		Drivers: []facts.DriverRow{
			{Entity: "Gate", Process: "comb", Signal: "L", Conditional: true},
			{Entity: "Gate", Process: "full", Signal: "M"},
			{Entity: "Gate", Process: "full", Signal: "M", Conditional: true},
		},
	}
	res := evaluate(t, newEngine(t, nil), tables)

	require.Equal(t, []string{policy.RuleLatchProneComb + ":L"}, collectRules(res))
	require.Equal(t, "info", res.Violations[0].Severity)
	require.False(t, res.HasErrors())
}

func TestMissingReset(t *testing.T) {
	tables := counter()
	tables.Reads = tables.Reads[1:]
	res := evaluate(t, newEngine(t, nil), tables)
	require.True(t, hasViolation(res, policy.RuleMissingReset, "run"), "got %v", collectRules(res))

	// A reset in the sensitivity list counts too.
	tables.Sensitivity = append(tables.Sensitivity,
		facts.SensitivityRow{Entity: "Counter", Process: "run", Signal: "RST_N", Trigger: "NEGEDGE"})
	res = evaluate(t, newEngine(t, nil), tables)
	require.False(t, hasViolation(res, policy.RuleMissingReset, "run"))
}

func TestRuleOverrides(t *testing.T) {
	tables := counter()
	tables.Reads = tables.Reads[1:]
	e := newEngine(t, map[string]string{
		policy.RuleUnusedInput:  "off",
		policy.RuleMissingReset: "error",
	})
	res := evaluate(t, e, tables)

	require.False(t, hasViolation(res, policy.RuleUnusedInput, "SPARE"))
	require.True(t, hasViolation(res, policy.RuleMissingReset, "run"))
	require.Equal(t, 2, res.Summary.Errors)
	require.Equal(t, 0, res.Summary.Warnings)
}

func TestExtraPolicyDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "naming.rego"), `package hdlgen.rules

violations contains v if {
	some p in input.ports
	generated[p.entity]
	not regex.match("^[A-Z][A-Z0-9_]*$", p.name)
	v := {
		"rule": "port_case",
		"severity": severity("port_case"),
		"entity": p.entity,
		"object": p.name,
		"message": sprintf("port %s is not upper case", [p.name]),
	}
}
`)
	e, err := policy.New(testutil.Context(t), policy.Options{Dir: dir})
	require.NoError(t, err)

	tables := counter()
	tables.Ports = append(tables.Ports, facts.PortRow{Entity: "Counter", Name: "dbg2", Direction: "OUT", Type: "bits(1)"})
	res := evaluate(t, e, tables)
	require.True(t, hasViolation(res, "port_case", "dbg2"), "got %v", collectRules(res))
	require.False(t, hasViolation(res, "port_case", "DBG"))

	_, err = policy.New(testutil.Context(t), policy.Options{Dir: t.TempDir()})
	require.Error(t, err)
}

func TestSessionDelta(t *testing.T) {
	ctx := testutil.Context(t)
	s, err := policy.NewSession(newEngine(t, nil))
	require.NoError(t, err)

	_, err = s.Delta(ctx, facts.Delta{})
	require.Error(t, err)

	prev := counter()
	res, err := s.Init(ctx, prev)
	require.NoError(t, err)
	require.True(t, hasViolation(res, policy.RuleUndrivenOutput, "DBG"))

	next := counter()
	next.Drivers = append(next.Drivers, facts.DriverRow{Entity: "Counter", Process: "run", Signal: "DBG"})
	res, err = s.Delta(ctx, facts.ComputeDelta(prev, next))
	require.NoError(t, err)
	require.False(t, hasViolation(res, policy.RuleUndrivenOutput, "DBG"))
	require.Len(t, s.Snapshot().Drivers, 2)

	again, err := s.Delta(ctx, facts.ComputeDelta(next, next))
	require.NoError(t, err)
	require.Same(t, res, again)

	bad := facts.Delta{Added: facts.Tables{Ports: []facts.PortRow{
		{Entity: "Counter", Name: "Q", Direction: "SIDEWAYS", Type: "bits(1)"},
	}}}
	_, err = s.Delta(ctx, bad)
	require.Error(t, err)
}

func TestCompiledDesignsAreClean(t *testing.T) {
	tests := []struct {
		file   string
		entity string
		inputs []string
	}{
		{"and_gate.py", "AndGate", []string{"A,B,XOUT=UINT8"}},
		{"reset_reg.py", "ResetReg", []string{"CLK,RST=BIT", "A,Q=UINT8"}},
	}
	e := newEngine(t, nil)
	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			c, err := compiler.New(testutil.Context(t), vhdl.Name, nil)
			require.NoError(t, err)
			require.NoError(t, c.Compile(compiler.Options{
				Entity:   tt.entity,
				Filename: filepath.Join("..", "compiler", "testdata", tt.file),
				Inputs:   tt.inputs,
			}))
			_, err = c.Flush()
			require.NoError(t, err)

			res := evaluate(t, e, c.Facts())
			require.Empty(t, res.Violations, "got %v", collectRules(res))
		})
	}
}
