package compiler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter/verilog"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter/vhdl"
	"github.com/robert-at-pretension-io/hdlgen/internal/testutil"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

func testContext(t testing.TB) context.Context {
	return testutil.Context(t)
}

func generate(t *testing.T, backend, file, top string, inputs []string, kwargs ...string) []string {
	t.Helper()
	if !filepath.IsAbs(file) {
		file = filepath.Join("testdata", file)
	}
	lines, err := Generate(testContext(t), Options{
		Backend:  backend,
		Entity:   top,
		Filename: file,
		Inputs:   inputs,
		Kwargs:   kwargs,
	})
	require.NoError(t, err)
	return lines
}

// section returns the generated text from the first line containing start
// up to the next line containing end.
func section(t *testing.T, lines []string, start, end string) string {
	t.Helper()
	var out []string
	in := false
	for _, ln := range lines {
		if !in && strings.Contains(ln, start) {
			in = true
		}
		if in {
			out = append(out, ln)
			if end != "" && strings.Contains(ln, end) && len(out) > 1 {
				break
			}
		}
	}
	if !in {
		t.Fatalf("no %q in generated code:\n%s", start, strings.Join(lines, "\n"))
	}
	return strings.Join(out, "\n")
}

func countLines(text, substr string) int {
	n := 0
	for _, ln := range strings.Split(text, "\n") {
		if strings.Contains(ln, substr) {
			n++
		}
	}
	return n
}

// ordered fails unless the snippets appear in text in the given order.
func ordered(t *testing.T, text string, snippets ...string) {
	t.Helper()
	pos := 0
	for _, s := range snippets {
		i := strings.Index(text[pos:], s)
		if i < 0 {
			t.Fatalf("missing %q after offset %d:\n%s", s, pos, text)
		}
		pos += i + len(s)
	}
}

func TestAndGateSingleAssignment(t *testing.T) {
	lines := generate(t, vhdl.Name, "and_gate.py", "AndGate", []string{"A,B,XOUT=UINT8"})
	testutil.Contains(t, lines,
		"entity AndGate is",
		"    A : in unsigned(7 downto 0);",
		"    XOUT : out unsigned(7 downto 0)",
		"architecture behavior of AndGate is\nbegin",
		"  XOUT <= A and B;\nend architecture;",
	)
	body := section(t, lines, "architecture behavior of AndGate is", "end architecture;")
	require.Equal(t, 1, countLines(body, "<="), body)
	require.NotContains(t, body, "signal ")
	require.NotContains(t, body, "variable ")
}

func TestAndGateVerilog(t *testing.T) {
	lines := generate(t, verilog.Name, "and_gate.py", "AndGate", []string{"A,B,XOUT=UINT8"})
	testutil.Contains(t, lines,
		"module AndGate(A, B, XOUT);",
		"  input logic [7: 0] A;",
		"  assign XOUT = A & B;",
		"endmodule",
	)
	body := section(t, lines, "module AndGate(", "endmodule")
	require.Equal(t, 1, countLines(body, "assign "), body)
}

func TestResetRegisterNonBlocking(t *testing.T) {
	t.Run("vhdl", func(t *testing.T) {
		lines := generate(t, vhdl.Name, "reset_reg.py", "ResetReg",
			[]string{"CLK,RST=BIT", "A,Q=UINT8"})
		testutil.Contains(t, lines,
			"  run : process (CLK)",
			"    if rising_edge(CLK) then",
			"Q <= to_unsigned(0, 8);",
			"Q <= A;",
			"  end process;",
		)
		body := section(t, lines, "run : process", "end process;")
		require.Equal(t, 2, countLines(body, "Q <= "), body)
		require.NotContains(t, body, ":=")
	})
	t.Run("verilog", func(t *testing.T) {
		lines := generate(t, verilog.Name, "reset_reg.py", "ResetReg",
			[]string{"CLK,RST=BIT", "A=UINT8", "Q=mkreg(UINT8)"})
		testutil.Contains(t, lines,
			"  output reg [7: 0] Q;",
			"  always @(posedge CLK)",
			"Q <= unsigned'(8'(0));",
			"Q <= A;",
		)
		body := section(t, lines, "always @(posedge CLK)", "endmodule")
		require.Equal(t, 2, countLines(body, "Q <= "), body)
		require.NotContains(t, body, "Q = ")
	})
}

func TestMixedWidthSubtraction(t *testing.T) {
	inputs := []string{"A=UINT8", "B=UINT4", "XOUT=UINT8"}

	lines := generate(t, vhdl.Name, "arith.py", "Subtract", inputs)
	testutil.Contains(t, lines,
		"  -- uint(8)",
		"  XOUT <= A - resize(B, 8);",
	)

	lines = generate(t, verilog.Name, "arith.py", "Subtract", inputs)
	testutil.Contains(t, lines,
		"  // uint(8)",
		"  assign XOUT = A - 8'(B);",
	)
}

func TestLoopUnrolling(t *testing.T) {
	tests := []struct {
		name   string
		kwargs []string
		want   int
	}{
		{"default args", nil, 4},
		{"override", []string{"N=2"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := generate(t, vhdl.Name, "arith.py", "Unroll", []string{"A,XOUT=UINT8"}, tt.kwargs...)
			body := section(t, lines, "run : process (A)", "end process;")
			require.Equal(t, tt.want, countLines(body, "v := A + "), body)
			testutil.Contains(t, lines,
				"    variable v : unsigned(7 downto 0);",
				"    v := A + 0;",
				"    XOUT <= v;",
			)
		})
	}
}

func TestEntityInstancesShareDefinition(t *testing.T) {
	lines := generate(t, vhdl.Name, "and_gate.py", "TwoAnds", []string{"A,B,C,XOUT=UINT8"})
	text := strings.Join(lines, "\n")
	require.Equal(t, 1, strings.Count(text, "entity AndGate is"), text)
	require.Equal(t, 1, strings.Count(text, "entity TwoAnds is"), text)
	testutil.Contains(t, lines,
		"  signal T : unsigned(7 downto 0);",
		"  AndGate_1 : entity AndGate",
		"  AndGate_2 : entity AndGate",
		"    A => A,",
		"    XOUT => T",
		"    A => T,",
		"    B => C,",
		"    XOUT => XOUT",
		"  XOUT <= A and B;",
	)
	require.NotContains(t, text, "AndGate_3")
	require.NotContains(t, text, "entity AndGate_1 is")
}

func TestPhiCompletesImplicitElse(t *testing.T) {
	lines := generate(t, vhdl.Name, "branches.py", "HalfBranch", []string{"S=BIT", "A,B,XOUT=UINT8"})
	body := section(t, lines, "run : process (S, A, B)", "end process;")
	require.Contains(t, body, "variable y_1 : unsigned(7 downto 0);")
	ordered(t, body,
		"y_1 := A + B;",
		"else",
		"y_1 := A;",
		"end if;",
		"XOUT <= y_1;",
	)
}

func TestPhiReconcileFollowsReturnTemp(t *testing.T) {
	lines := generate(t, vhdl.Name, "branches.py", "Picker", []string{"S=BIT", "A,B,XOUT=UINT8"})
	body := section(t, lines, "run : process (S, A, B)", "end process;")
	testutil.Contains(t, lines,
		"    variable pick : unsigned(7 downto 0);",
		"    variable pick_ret : boolean;",
	)
	// The taken arm assigns the return temporary first, the versions of
	// the other arm's variables after it.
	ordered(t, body,
		"pick_ret := false;",
		"y_1 := A + B;",
		"pick := y_1;",
		"pick_ret := true;",
		"z_1 := B;",
		"else",
		"z_1 := A - B;",
		"y_1 := A;",
		"end if;",
		"if not pick_ret then",
		"pick := z_1;",
		"end if;",
		"XOUT <= pick;",
	)
}

func TestInterfacePortExpansion(t *testing.T) {
	lines := generate(t, vhdl.Name, "bus.py", "Top", []string{"A,XOUT=UINT8"})
	testutil.Contains(t, lines,
		"entity Sink is",
		"    BUS_DATA : in unsigned(7 downto 0);",
		"  XOUT <= BUS_DATA;",
		"  signal BUS_DATA : unsigned(7 downto 0);",
		"  BUS_DATA <= A;",
		"  Sink_1 : entity Sink",
		"    BUS_DATA => BUS_DATA,",
		"    BUS_VALID => BUS_VALID,",
		"    XOUT => XOUT",
	)
}

func TestInitProcessStatements(t *testing.T) {
	lines := generate(t, vhdl.Name, "bench.py", "Bench", []string{"A=UINT8"})
	testutil.Contains(t, lines,
		"  init : process\n",
		"    -- bench start",
		"    wait for 10 ns;",
		"    wait until A;",
		"    std.env.finish;",
		"    wait;\n  end process;",
	)
}

func TestExternModuleCall(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "xmod.yaml"), `name: xmod_test
name_remap: {vhdl: xmod_pkg}
functions:
  xmod_add:
    nargs: 2
    params: ["N=nbits(0)"]
    fnsig: "u*, u*"
    dtype: "0"
`)
	src := filepath.Join(dir, "top.py")
	testutil.WriteFile(t, src, `import hdl as X
from hdl import xlib as XL

XM = XL.load_extern_module('xmod.yaml')


class UseExtern(X.Entity):

  PORTS = 'A, B, =XOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = XM.xmod_add(A, B)
`)
	inputs := []string{"A,B,XOUT=UINT8"}

	lines := generate(t, vhdl.Name, src, "UseExtern", inputs)
	testutil.Contains(t, lines, "  XOUT <= xmod_pkg.xmod_add(A, B);")

	lines = generate(t, verilog.Name, src, "UseExtern", inputs)
	testutil.Contains(t, lines,
		"xmod_test #(.N(8)) xmod_test_1();",
		"  assign XOUT = xmod_test_1.xmod_add(A, B);",
	)
}

func TestCreateFunction(t *testing.T) {
	src := filepath.Join(t.TempDir(), "fn.py")
	testutil.WriteFile(t, src, `import hdl as X
from hdl import xlib as XL

myfn = XL.create_function('myfn', {'vhdl': 'my_pkg.myfn', 'verilog': 'myfn'},
                          fnsig='u*, u*', dtype=X.UINT8)


class UseFn(X.Entity):

  PORTS = 'A, B, =XOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = myfn(A, B)
`)
	lines := generate(t, vhdl.Name, src, "UseFn", []string{"A,B,XOUT=UINT8"})
	testutil.Contains(t, lines, "  XOUT <= my_pkg.myfn(A, B);")

	// Backend names and result types can be resolved from the call arguments.
	src = filepath.Join(t.TempDir(), "pick.py")
	testutil.WriteFile(t, src, `import hdl as X
from hdl import xlib as XL


def pick_name(args):
  return 'my_pkg.pick' + str(len(args))

pick = XL.create_function('pick', {'vhdl': pick_name, 'verilog': 'pick'},
                          dtype=XL.argn_dtype(1))


class UsePick(X.Entity):

  PORTS = 'A, B, =XOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = pick(A, B)
`)
	lines = generate(t, vhdl.Name, src, "UsePick", []string{"A,B,XOUT=UINT8"})
	testutil.Contains(t, lines, "  XOUT <= my_pkg.pick2(A, B);")
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		top    string
		inputs []string
		want   string
	}{
		{"unknown entity", "Missing", []string{"A,B,XOUT=UINT8"}, "entity Missing not found"},
		{"missing port", "AndGate", []string{"A,B=UINT8"}, `Missing argument "XOUT"`},
		{"bad input", "AndGate", []string{"A"}, "want NAME=EXPR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(testContext(t), Options{
				Backend:  vhdl.Name,
				Entity:   tt.top,
				Filename: filepath.Join("testdata", "and_gate.py"),
				Inputs:   tt.inputs,
			})
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteToInputNamesPort(t *testing.T) {
	src := filepath.Join(t.TempDir(), "write_input.py")
	testutil.WriteFile(t, src, `import hdl as X


class WriteInput(X.Entity):

  PORTS = 'CLK, A, =Q'

  @X.hdl_process(sens='+CLK')
  def run():
    A = 1
    Q = A
`)
	for _, backend := range []string{vhdl.Name, verilog.Name} {
		t.Run(backend, func(t *testing.T) {
			_, err := Generate(testContext(t), Options{
				Backend:  backend,
				Entity:   "WriteInput",
				Filename: src,
				Inputs:   []string{"CLK=BIT", "A,Q=UINT8"},
			})
			require.Error(t, err)
			require.Contains(t, err.Error(), "A is read-only")
			require.NotContains(t, err.Error(), "A_")
		})
	}
}

func TestFactsRecordDesign(t *testing.T) {
	c, err := New(testContext(t), vhdl.Name, nil)
	require.NoError(t, err)
	require.NoError(t, c.Compile(Options{
		Entity:   "TwoAnds",
		Filename: filepath.Join("testdata", "and_gate.py"),
		Inputs:   []string{"A,B,C,XOUT=UINT8"},
	}))
	_, err = c.Flush()
	require.NoError(t, err)

	tabs := c.Facts()
	var names []string
	for _, e := range tabs.Entities {
		if !e.External {
			names = append(names, e.Name)
		}
	}
	require.ElementsMatch(t, []string{"TwoAnds", "AndGate"}, names)
	require.Len(t, tabs.Instances, 2)
	for _, inst := range tabs.Instances {
		require.Equal(t, "TwoAnds", inst.Entity)
		require.Equal(t, "AndGate", inst.Target)
	}
}

func TestBuilderOps(t *testing.T) {
	c, err := New(testContext(t), verilog.Name, nil)
	require.NoError(t, err)
	b := c.Builder()
	u8 := types.NewUint(8)
	x, y := value.MkWire(u8, "x", nil), value.MkWire(u8, "y", nil)

	tests := []struct {
		name string
		fn   func() (*value.Value, error)
		want string
	}{
		{"mul", func() (*value.Value, error) { return b.Mul(x, y) }, "8'(x * y)"},
		{"xor", func() (*value.Value, error) { return b.Xor(x, y) }, "x ^ y"},
		{"shr", func() (*value.Value, error) { return b.Shr(x, int64(2)) }, "x >> 2"},
		{"concat", func() (*value.Value, error) { return b.Concat(x, y) }, "{x, y}"},
	}
	for _, tt := range tests {
		got, err := tt.fn()
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got.Text(), tt.name)
	}

	sh, err := b.Shl(x, int64(1))
	require.NoError(t, err)
	require.True(t, sh.DType().Equal(u8))
	neg, err := b.Neg(value.MkWire(types.NewSint(8), "s", nil))
	require.NoError(t, err)
	require.Contains(t, neg.Text(), "s")

	_, err = b.Concat(x)
	require.Error(t, err)

	c.noHDL++
	_, err = b.Mul(x, y)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no_hdl")
}
