package verilog

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/testutil"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

var (
	u8  = types.NewUint(8)
	u4  = types.NewUint(4)
	b8  = types.NewBits(8)
	f32 = types.NewFloat(32)
)

func newEmitter(t *testing.T, cfg *config.Config) *emitter.Emitter {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e, err := emitter.New(testutil.Context(t), Name, cfg)
	require.NoError(t, err)
	return e
}

func wire(dtype *types.Type, name string) *value.Value {
	return value.MkWire(dtype, name, nil)
}

func TestPackFloat(t *testing.T) {
	for _, f := range []float64{1.5, -2.25, 0.1, 1e-40, 3.4e38, 1e39, -0.0} {
		want := fmt.Sprintf("%032b", math.Float32bits(float32(f)))
		if got := packFloat(f, 8, 23); got != want {
			t.Errorf("packFloat(%g, f32) = %s, want %s", f, got, want)
		}
	}
	for _, f := range []float64{1.5, -1e-310, math.Pi, math.Inf(-1)} {
		want := fmt.Sprintf("%064b", math.Float64bits(f))
		if got := packFloat(f, 11, 52); got != want {
			t.Errorf("packFloat(%g, f64) = %s, want %s", f, got, want)
		}
	}
	if got := packFloat(1.0, 5, 10); got != "0011110000000000" {
		t.Fatalf("packFloat(1.0, f16) = %s", got)
	}
	if got := packFloat(70000, 5, 10); got != "0111110000000000" {
		t.Fatalf("packFloat(70000, f16) = %s, want +Inf", got)
	}
	if got := packFloat(math.NaN(), 5, 10); got != "0111111000000000" {
		t.Fatalf("packFloat(NaN, f16) = %s", got)
	}
}

func TestPackFloatSubnormals(t *testing.T) {
	tests := []struct {
		f      float64
		nx, nm int
		want   string
	}{
		{-1e-310, 11, 52, "1000000000000000000100100110100010001011011100001110011000101011"},
		{5e-324, 11, 52, strings.Repeat("0", 63) + "1"},
		// Mantissas wider than float64 keep every bit.
		{1e-40, 8, 60, "000000000000000100010110110000100110001001110111011101010111100111000"},
	}
	for _, tt := range tests {
		if got := packFloat(tt.f, tt.nx, tt.nm); got != tt.want {
			t.Errorf("packFloat(%g, %d, %d) = %s, want %s", tt.f, tt.nx, tt.nm, got, tt.want)
		}
	}
}

func TestCastScalar(t *testing.T) {
	e := newEmitter(t, nil)
	tests := []struct {
		name  string
		x     any
		dtype *types.Type
		want  string
	}{
		{"uint resize", wire(u8, "a"), u4, "4'(a)"},
		{"uint to sint", wire(u8, "a"), types.NewSint(8), "signed'(a)"},
		{"bits to uint", wire(b8, "b"), u8, "b"},
		{"uint to bool", wire(u8, "a"), types.BoolType, "|a"},
		{"host int", int64(5), u8, "unsigned'(8'(5))"},
		{"host negative", int64(-3), types.NewSint(8), "8'(-3)"},
		{"host float", 1.5, f32, "32'b00111111110000000000000000000000"},
		{"host real", 1.5, types.RealType, "1.5"},
		{"bool to bits", wire(types.BoolType, "c"), types.NewBits(4), "4'(c)"},
		{"bit string", "0b10XZ", types.NewBits(4), "4'b10xz"},
		{"float to real", wire(f32, "f"), types.RealType, "fp_utils_1.to_real(f)"},
		{"float to uint", wire(f32, "f"), u8, "unsigned'(8'(fpu_1.to_integer(f)))"},
		{"real to integer", wire(types.RealType, "r"), types.IntType, "int'(r)"},
		{"integer to real", wire(types.IntType, "i"), types.RealType, "real'(i)"},
		{"host bool", false, types.BoolType, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CastText(tt.x, tt.dtype)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
	require.Equal(t, []string{"fp_utils", "fpu"}, e.ExtraLibs())
}

func TestCastArrays(t *testing.T) {
	e := newEmitter(t, nil)
	arr := types.MkArray(u4, 2)

	got, err := e.CastText([]any{int64(1), int64(2)}, arr)
	require.NoError(t, err)
	require.Equal(t, "'{unsigned'(4'(1)), unsigned'(4'(2))}", got)

	got, err = e.CastText(int64(0), arr)
	require.NoError(t, err)
	require.Equal(t, "'{2{unsigned'(4'(0))}}", got)
}

func TestBinOps(t *testing.T) {
	e := newEmitter(t, nil)
	a, b := wire(u8, "a"), wire(u8, "b")
	f, g := wire(f32, "f"), wire(f32, "g")

	tests := []struct {
		op    emitter.Op
		l, r  any
		want  string
		dtype *types.Type
	}{
		{emitter.OpAdd, a, int64(1), "a + 1", u8},
		{emitter.OpMul, a, b, "8'(a * b)", u8},
		{emitter.OpSub, a, wire(u4, "n"), "a - 8'(n)", u8},
		{emitter.OpAdd, f, g, "fpu_1.add(f, g)", f32},
		{emitter.OpDiv, f, g, "fpu_1.div(f, g)", f32},
		{emitter.OpConcat, a, wire(u4, "n"), "{a, n}", types.NewUint(12)},
		{emitter.OpShr, a, int64(2), "a >> 2", u8},
		{emitter.OpBitXor, a, b, "a ^ b", u8},
	}
	for _, tt := range tests {
		got, err := e.BinOp(tt.op, tt.l, tt.r)
		require.NoError(t, err, "op %s", tt.op)
		require.Equal(t, tt.want, got.Text(), "op %s", tt.op)
		require.True(t, got.DType().Equal(tt.dtype), "op %s type %s", tt.op, got.DType())
	}

	got, err := e.Compare(a, []emitter.Op{emitter.OpLt}, []any{int64(3)})
	require.NoError(t, err)
	require.Equal(t, "a < unsigned'(8'(3))", got.Text())

	x, y := wire(types.BoolType, "x"), wire(types.BoolType, "y")
	got, err = e.BoolOp(emitter.OpAnd, []any{x, y})
	require.NoError(t, err)
	require.Equal(t, "x && y", got.Text())

	got, err = e.UnaryOp(emitter.OpNot, a)
	require.NoError(t, err)
	require.Equal(t, "!(|a)", got.Text())

	got, err = e.UnaryOp(emitter.OpUSub, f)
	require.NoError(t, err)
	require.Equal(t, "fpu_1.neg(f)", got.Text())

	if _, err := e.UnaryOp(emitter.OpInvert, f); err == nil {
		t.Fatalf("expected unsupported float invert")
	}

	got, err = e.IfExp(x, a, b)
	require.NoError(t, err)
	require.Equal(t, "x ? a : b", got.Text())
}

func TestSubscript(t *testing.T) {
	e := newEmitter(t, nil)
	a := wire(u8, "a")

	got, err := e.Subscript(a, []any{int64(3)})
	require.NoError(t, err)
	require.Equal(t, "a[3]", got.Text())

	got, err = e.Subscript(a, []any{emitter.Slice{Start: int64(2), Stop: int64(6)}})
	require.NoError(t, err)
	require.Equal(t, "a[5: 2]", got.Text())

	got, err = e.Subscript(a, []any{emitter.Slice{Start: wire(types.IntType, "i"), Width: 4}})
	require.NoError(t, err)
	require.Equal(t, "a[i +: 4]", got.Text())
	require.True(t, got.DType().Equal(u4))

	m := wire(types.MkArray(u8, 4), "m")
	got, err = e.Subscript(m, []any{emitter.Slice{Start: int64(1), Stop: int64(3)}})
	require.NoError(t, err)
	require.Equal(t, "m[1: 2]", got.Text())
	require.True(t, got.DType().Equal(types.MkArray(u8, 2)))
}

func TestModuleWireRegsAndInstances(t *testing.T) {
	e := newEmitter(t, nil)
	clk := &entity.Port{Name: "CLK", Dir: entity.In}
	pa := &entity.Port{Name: "A", Dir: entity.In}
	pq := &entity.Port{Name: "Q", Dir: entity.Out}
	a := value.MkWire(u8, "A", &value.VSpec{Port: pa})
	q := value.MkReg(u8, "Q", &value.VSpec{Port: pq})
	ports := []emitter.PortArg{
		{Port: clk, Value: value.MkWire(types.NewBits(1), "CLK", &value.VSpec{Port: clk})},
		{Port: pa, Value: a},
		{Port: pq, Value: q},
	}

	require.NoError(t, e.EmitModuleDef("top", ports, "Adder"))
	require.NoError(t, e.EmitModuleDecl("top", ports))
	err := e.WithIndent(func() error {
		require.NoError(t, e.WithPlacement(e.ModuleVarsPlace(), func() error {
			if err := e.EmitDeclare("W", value.MkWire(u8, "", nil)); err != nil {
				return err
			}
			return e.EmitDeclare("V", value.MkVWire(u8, int64(1), nil))
		}))

		require.NoError(t, e.EmitProcessDecl(emitter.ProcessInfo{
			Name: "run",
			Sens: []entity.Sens{{Name: "CLK", Trigger: entity.PosEdge}},
		}))
		e.EmitProcessBegin()
		require.NoError(t, e.WithPlacement(e.ProcessVarsPlace(), func() error {
			return e.EmitDeclare("t", value.MkVReg(u8, int64(0), nil))
		}))
		require.NoError(t, e.WithIndent(func() error {
			w := e.VarRemap(wire(u8, "W"), true)
			require.Equal(t, "W_", w.Text())
			require.True(t, w.IsReg())
			require.NoError(t, e.EmitAssign(w, a))

			tv := value.MkReg(u8, "t", nil)
			require.NoError(t, e.EmitAssign(q, tv))
			e.PushContext(map[string]any{"delay": int64(5)})
			require.NoError(t, e.EmitAssign(q, tv))
			e.PopContext()
			return nil
		}))
		e.EmitProcessEnd()

		sum, err := e.BinOp(emitter.OpAdd, wire(f32, "f"), wire(f32, "g"))
		require.NoError(t, err)
		require.NoError(t, e.EmitAssign(wire(f32, "s"), sum))
		return e.EmitAssign(wire(u8, "Z"), a)
	})
	require.NoError(t, err)
	require.NoError(t, e.EmitModuleEnd())

	lines, err := e.Flush()
	require.NoError(t, err)
	testutil.Contains(t, lines,
		"package hdlgen_fp_pkg;",
		"interface fpu #(",
		"// Adder\nmodule top(CLK, A, Q);",
		"  input logic CLK;",
		"  input logic [7: 0] A;",
		"  output reg [7: 0] Q;",
		"  wire logic [7: 0] W;",
		"  wire logic [7: 0] V;",
		"  logic [7: 0] V_ = unsigned'(8'(1));\n  logic [7: 0] W_;",
		"  fpu #(.NX(8), .NM(23)) fpu_1();",
		"  always @(posedge CLK)\n  run : begin\n    logic [7: 0] t = unsigned'(8'(0));",
		"    W_ <= A;",
		"    Q <= t;",
		"    #5 Q <= t;",
		"  end",
		"  assign s = fpu_1.add(f, g);",
		"  assign Z = A;",
		"  assign V = V_;\n  assign W = W_;\nendmodule",
	)
}

func TestVarRemap(t *testing.T) {
	e := newEmitter(t, nil)
	w := wire(u8, "w")
	if got := e.VarRemap(w, true); got != w {
		t.Fatalf("root process stores must not be remapped")
	}
	e.SetProcess(emitter.ProcessInfo{Name: "p", Kind: emitter.NormalProcess})
	if got := e.VarRemap(w, false); got != w {
		t.Fatalf("loads must not be remapped")
	}
	r := value.MkReg(u8, "r", nil)
	if got := e.VarRemap(r, true); got != r {
		t.Fatalf("registers must not be remapped")
	}
	first := e.VarRemap(w, true)
	second := e.VarRemap(w, true)
	if first.Text() != "w_" || first != second {
		t.Fatalf("remap = %v, %v", first, second)
	}
}

func TestEntityAndStatements(t *testing.T) {
	e := newEmitter(t, nil)
	require.NoError(t, e.EmitEntity("adder", []entity.Param{{Name: "N", Value: "8"}}, []emitter.Binding{
		{Port: "A", Value: wire(u8, "a")},
		{Port: "B", Value: value.MkNone(u8)},
		{Port: "Q", Value: wire(u8, "q")},
	}))

	arm := e.CreatePlacement(2)
	require.NoError(t, e.WithPlacement(arm, func() error {
		e.EmitFinish()
		e.EmitFinish()
		return nil
	}))
	require.NoError(t, e.EmitMatchCases(wire(types.NewUint(2), "s"), []emitter.MatchCase{
		{Pattern: int64(1), Scope: arm},
		{Scope: e.CreatePlacement(2)},
	}))
	require.NoError(t, e.EmitWaitFor(2.5))
	require.NoError(t, e.EmitWaitFor(nil))
	e.EmitWaitFalling([]*value.Value{wire(types.NewBits(1), "clk")})
	require.NoError(t, e.EmitIf(wire(u8, "a")))
	require.NoError(t, e.EmitElif(wire(types.BoolType, "c")))
	e.EmitElse()
	require.NoError(t, e.EmitAssert(wire(types.BoolType, "ok"), []string{`"bad "`, "x"}))
	e.EmitEndIf()
	e.EmitWrite([]string{`"v="`, "v"})

	s, err := e.EvalToString(wire(u8, "a"))
	require.NoError(t, err)
	require.Equal(t, `$sformatf("%d", a)`, s)
	require.Equal(t, `"say \"hi\""`, e.QuoteString(`say "hi"`))
	tok, ok := e.EvalToken("NOW")
	require.True(t, ok)
	require.Equal(t, `$sformatf("%t", $time)`, tok)

	lines, err := e.Flush()
	require.NoError(t, err)
	testutil.Contains(t, lines,
		"adder #(.N(8)) adder_1(\n  .A(a),\n  .B(),\n  .Q(q)\n);",
		"case (s)\n  unsigned'(2'(1)): begin\n    $finish;\n    $finish;\n  end\n  default:\n    ;\nendcase",
		"#2500ps;",
		"wait (0);",
		"@(negedge clk);",
		"if (|a) begin",
		"end else if (c) begin",
		"end else begin",
		`assert (ok) else $error("%s%s", "bad ", x);`,
		`$display("%s%s", "v=", v);`,
	)
}

func TestFPUFnMapOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Verilog.FPUFnMap = map[string]config.FPUFunc{"add": {Module: "myfpu", Func: "plus"}}
	e := newEmitter(t, cfg)

	got, err := e.BinOp(emitter.OpAdd, wire(f32, "f"), wire(f32, "g"))
	require.NoError(t, err)
	require.Equal(t, "myfpu_1.plus(f, g)", got.Text())
	got, err = e.BinOp(emitter.OpSub, wire(f32, "f"), wire(f32, "g"))
	require.NoError(t, err)
	require.Equal(t, "fpu_1.sub(f, g)", got.Text())
	require.Equal(t, []string{"fpu", "myfpu"}, e.ExtraLibs())

	nan, err := e.Extension("is_nan", wire(f32, "f"))
	require.NoError(t, err)
	require.Equal(t, "fp_utils_1.is_nan(f)", nan.Text())

	d := e.Dialect.(*Dialect)
	call, err := d.FPModResolve("fp_utils", "rcloseto", types.NewFloat(64))
	require.NoError(t, err)
	require.Equal(t, "fp_utils_2.rcloseto", call)
}
