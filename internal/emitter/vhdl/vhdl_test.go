package vhdl

import (
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
	u8 = types.NewUint(8)
	u4 = types.NewUint(4)
	b8 = types.NewBits(8)
)

func newEmitter(t *testing.T) *emitter.Emitter {
	t.Helper()
	e, err := emitter.New(testutil.Context(t), Name, config.DefaultConfig())
	require.NoError(t, err)
	return e
}

func wire(dtype *types.Type, name string) *value.Value {
	return value.MkWire(dtype, name, nil)
}

func TestCastSameTypeIsIdentity(t *testing.T) {
	e := newEmitter(t)
	a := wire(u8, "a")
	got, err := e.Cast(a, u8)
	require.NoError(t, err)
	if got != a {
		t.Fatalf("casting to the same type must return the same value")
	}
}

func TestCastScalar(t *testing.T) {
	e := newEmitter(t)
	tests := []struct {
		name  string
		x     any
		dtype *types.Type
		want  string
	}{
		{"uint resize", wire(u8, "a"), u4, "resize(a, 4)"},
		{"uint to sint", wire(u8, "a"), types.NewSint(8), "signed(a)"},
		{"bits to uint", wire(b8, "b"), u8, "hdlgen.cvt_unsigned(b, 8)"},
		{"uint to bool", wire(u8, "a"), types.BoolType, "or(a) = '1'"},
		{"integer to uint", wire(types.IntType, "i"), u8, "to_unsigned(i, 8)"},
		{"host int", int64(5), u8, "to_unsigned(5, 8)"},
		{"negative to unsigned", int64(-1), u4, `unsigned'("1111")`},
		{"negative to signed", int64(-3), types.NewSint(8), "to_signed(-3, 8)"},
		{"bool to uint", wire(types.BoolType, "c"), u4, "hdlgen.uint_ifexp(c, to_unsigned(1, 4), to_unsigned(0, 4))"},
		{"bool to bit vector", wire(types.BoolType, "c"), types.NewBits(4), "hdlgen.bits_resize(hdlgen.bits_ifexp(c, '1', '0'), 4)"},
		{"bit string", "0b1010", types.NewBits(4), `"1010"`},
		{"host real", 1.5, types.RealType, "1.5"},
		{"uint to real", wire(u8, "a"), types.RealType, "real(to_integer(a))"},
		{"float resize", wire(types.NewFloat(32), "f"), types.NewFloat(64), "resize(f, 11, 52)"},
		{"bits lsb", wire(b8, "b"), types.NewBits(1), "hdlgen.lsb(b)"},
		{"bool to integer", wire(types.BoolType, "c"), types.IntType, "hdlgen.integer_ifexp(c, 1, 0)"},
		{"host bool", true, types.BoolType, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CastText(tt.x, tt.dtype)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCastArrays(t *testing.T) {
	e := newEmitter(t)
	arr := types.MkArray(u4, 2)

	got, err := e.CastText([]any{int64(1), int64(2)}, arr)
	require.NoError(t, err)
	require.Equal(t, "(to_unsigned(1, 4), to_unsigned(2, 4))", got)

	got, err = e.CastText(int64(0), arr)
	require.NoError(t, err)
	require.Equal(t, "(others => to_unsigned(0, 4))", got)

	got, err = e.CastText([]any{int64(7)}, types.MkArray(u4, 1))
	require.NoError(t, err)
	require.Equal(t, "(0 => to_unsigned(7, 4))", got)

	if _, err := e.CastText([]any{int64(1)}, arr); err == nil {
		t.Fatalf("expected shape mismatch")
	}
}

func TestBinOps(t *testing.T) {
	e := newEmitter(t)
	a, b := wire(u8, "a"), wire(u8, "b")

	tests := []struct {
		op    emitter.Op
		l, r  any
		want  string
		dtype *types.Type
	}{
		{emitter.OpAdd, a, int64(1), "a + 1", u8},
		{emitter.OpMul, a, b, "resize(a * b, 8)", u8},
		{emitter.OpSub, a, wire(u4, "n"), "a - resize(n, 8)", u8},
		{emitter.OpSub, wire(u4, "n"), a, "resize(n, 8) - a", u8},
		{emitter.OpConcat, a, wire(u4, "n"), "a & n", types.NewUint(12)},
		{emitter.OpShl, a, int64(2), "hdlgen.bit_shl(a, 2)", u8},
		{emitter.OpBitAnd, a, wire(b8, "m"), "std_logic_vector(a) and m", b8},
		{emitter.OpAdd, wire(types.RealType, "r"), int64(2), "r + 2", types.RealType},
	}
	for _, tt := range tests {
		got, err := e.BinOp(tt.op, tt.l, tt.r)
		require.NoError(t, err, "op %s", tt.op)
		require.Equal(t, tt.want, got.Text(), "op %s", tt.op)
		require.True(t, got.DType().Equal(tt.dtype), "op %s type %s", tt.op, got.DType())
	}
}

func TestCompareBoolAndIfExp(t *testing.T) {
	e := newEmitter(t)
	a, b, c := wire(u8, "a"), wire(u8, "b"), wire(u8, "c")

	got, err := e.Compare(a, []emitter.Op{emitter.OpLt}, []any{int64(3)})
	require.NoError(t, err)
	require.Equal(t, "a < to_unsigned(3, 8)", got.Text())

	got, err = e.Compare(a, []emitter.Op{emitter.OpLt, emitter.OpLtE}, []any{b, c})
	require.NoError(t, err)
	require.Equal(t, "(a < b) and (b <= c)", got.Text())

	x, y := wire(types.BoolType, "x"), wire(types.BoolType, "y")
	got, err = e.BoolOp(emitter.OpOr, []any{x, y})
	require.NoError(t, err)
	require.Equal(t, "x or y", got.Text())

	got, err = e.UnaryOp(emitter.OpNot, a)
	require.NoError(t, err)
	require.Equal(t, "not (or(a) = '1')", got.Text())
	require.True(t, got.DType().Equal(types.BoolType))

	got, err = e.IfExp(x, a, b)
	require.NoError(t, err)
	require.Equal(t, "hdlgen.uint_ifexp(x, a, b)", got.Text())
}

func TestSubscript(t *testing.T) {
	e := newEmitter(t)
	a := wire(u8, "a")

	got, err := e.Subscript(a, []any{int64(3)})
	require.NoError(t, err)
	require.Equal(t, "a(3)", got.Text())
	require.True(t, got.DType().Equal(types.NewUint(1)))
	require.NotNil(t, got.Ref(), "subscripts keep the reference")

	got, err = e.Subscript(a, []any{emitter.Slice{Start: int64(2), Stop: int64(6)}})
	require.NoError(t, err)
	require.Equal(t, "a(5 downto 2)", got.Text())
	require.True(t, got.DType().Equal(u4))

	got, err = e.Subscript(a, []any{int64(-1)})
	require.NoError(t, err)
	require.Equal(t, "a(7)", got.Text())

	i := wire(types.IntType, "i")
	got, err = e.Subscript(a, []any{emitter.Slice{Start: i, Width: 4}})
	require.NoError(t, err)
	require.Equal(t, "a((i + 3) downto i)", got.Text())

	arr := wire(types.MkArray(u8, 4), "m")
	got, err = e.Subscript(arr, []any{int64(1)})
	require.NoError(t, err)
	require.Equal(t, "m(1)", got.Text())
	require.True(t, got.DType().Equal(u8))

	if _, err := e.Subscript(a, []any{int64(8)}); err == nil {
		t.Fatalf("expected out of bounds error")
	}
	if _, err := e.Subscript(a, []any{emitter.Slice{Start: int64(0), Stop: int64(4), Step: int64(2)}}); err == nil {
		t.Fatalf("expected step error")
	}
}

func TestModuleProcessAndAssign(t *testing.T) {
	e := newEmitter(t)
	pa := &entity.Port{Name: "A", Dir: entity.In}
	pq := &entity.Port{Name: "Q", Dir: entity.Out}
	clk := &entity.Port{Name: "CLK", Dir: entity.In}
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
		require.NoError(t, e.EmitProcessDecl(emitter.ProcessInfo{
			Name: "run",
			Sens: []entity.Sens{{Name: "CLK", Trigger: entity.PosEdge}},
		}))
		e.EmitProcessBegin()
		require.NoError(t, e.WithPlacement(e.ProcessVarsPlace(), func() error {
			return e.EmitDeclare("t", value.MkVWire(u8, int64(0), nil))
		}))
		require.NoError(t, e.WithIndent(func() error {
			tv := wire(u8, "t")
			require.NoError(t, e.EmitAssign(tv, a))
			require.NoError(t, e.EmitAssign(q, tv))
			e.PushContext(map[string]any{"delay": int64(5)})
			defer e.PopContext()
			require.NoError(t, e.EmitAssign(q, tv))
			if err := e.EmitAssign(tv, a); err == nil {
				t.Fatalf("expected delay on wire error")
			}
			return nil
		}))
		e.EmitProcessEnd()

		require.NoError(t, e.WithPlacement(e.ModuleVarsPlace(), func() error {
			if err := e.EmitDeclare("w", value.MkWire(u8, "", nil)); err != nil {
				return err
			}
			return e.EmitDeclare("K", value.MkVWire(u8, int64(3), &value.VSpec{Const: true}))
		}))
		return e.EmitAssign(wire(u8, "w"), a)
	})
	require.NoError(t, err)
	require.NoError(t, e.EmitModuleEnd())

	lines, err := e.Flush()
	require.NoError(t, err)
	testutil.Contains(t, lines,
		"package hdlgen is",
		"-- Adder\nentity top is",
		"    A : in unsigned(7 downto 0);",
		"    Q : out unsigned(7 downto 0)\n  );",
		"architecture behavior of top is",
		"  signal w : unsigned(7 downto 0);",
		"  constant K : unsigned(7 downto 0) := to_unsigned(3, 8);",
		"  run : process (CLK)\n    variable t : unsigned(7 downto 0) := to_unsigned(0, 8);\n  begin\n    if rising_edge(CLK) then",
		"      t := A;",
		"      Q <= t;",
		"      Q <= t after 5 ns;",
		"    end if;\n  end process;",
		"  w <= A;",
		"end architecture;",
	)
}

func TestEntityInstance(t *testing.T) {
	e := newEmitter(t)
	err := e.EmitEntity("adder", []entity.Param{{Name: "N", Value: "8"}}, []emitter.Binding{
		{Port: "A", Value: wire(u8, "a")},
		{Port: "B", Value: value.MkNone(u8)},
		{Port: "Q", Value: wire(u8, "q")},
	})
	require.NoError(t, err)
	lines, err := e.Flush()
	require.NoError(t, err)
	testutil.Contains(t, lines,
		"adder_1 : entity adder\ngeneric map (\n  N => 8\n)\nport map (\n  A => a,\n  B => open,\n  Q => q\n);",
	)
}

func TestStatements(t *testing.T) {
	e := newEmitter(t)
	subject := wire(types.NewUint(2), "s")
	arm := e.CreatePlacement(2)
	require.NoError(t, e.WithPlacement(arm, func() error {
		e.EmitFinish()
		return nil
	}))
	require.NoError(t, e.EmitMatchCases(subject, []emitter.MatchCase{
		{Pattern: int64(1), Scope: arm},
		{Scope: e.CreatePlacement(2)},
	}))
	require.NoError(t, e.EmitWaitFor(2.5))
	require.NoError(t, e.EmitWaitFor(nil))
	e.EmitWaitRising([]*value.Value{wire(types.NewBits(1), "clk")})
	require.NoError(t, e.EmitIf(wire(u8, "a")))
	require.NoError(t, e.EmitAssert(wire(types.BoolType, "ok"), []string{`"bad "`, "to_string(x)"}))
	e.EmitEndIf()

	s, err := e.EvalToString(wire(u8, "a"))
	require.NoError(t, err)
	require.Equal(t, "to_hstring(a)", s)
	require.Equal(t, `"say ""hi"""`, e.QuoteString(`say "hi"`))

	lines, err := e.Flush()
	require.NoError(t, err)
	testutil.Contains(t, lines,
		"case s is\n  when to_unsigned(1, 2) =>\n    std.env.finish;\n  when others =>\n    null;\nend case;",
		"wait for 2500 ps;",
		"wait;",
		"wait until rising_edge(clk);",
		"if or(a) = '1' then",
		`assert ok report "bad " & to_string(x);`,
		"end if;",
	)
}

func TestExtensions(t *testing.T) {
	e := newEmitter(t)
	f := wire(types.NewFloat(32), "f")
	got, err := e.Extension("is_nan", f)
	require.NoError(t, err)
	require.Equal(t, "Isnan(f)", got.Text())
	got, err = e.Extension("is_inf", f)
	require.NoError(t, err)
	require.Equal(t, "not Finite(f)", got.Text())
	if _, err := e.Extension("is_inf", wire(u8, "a")); err == nil {
		t.Fatalf("expected type error for non float operand")
	}
}
