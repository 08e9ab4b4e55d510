package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `import hdl as X

class AndGate(X.Entity):
  PORTS = 'A, B, =XOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = A & B

def helper(a, b=2, *args, k=1, **kw):
  if a > b:
    return a
  elif a < b:
    return b
  else:
    return f'{a:04x} and {b!r}'
`

func TestParseModule(t *testing.T) {
	p := NewParser(0)
	m, err := p.Parse(context.Background(), "sample.py", []byte(sample))
	require.NoError(t, err)
	require.Len(t, m.Body, 3)

	imp, ok := m.Body[0].(*Import)
	require.True(t, ok)
	require.Equal(t, []Alias{{Name: "hdl", AsName: "X"}}, imp.Names)

	cls, ok := m.Body[1].(*ClassDef)
	require.True(t, ok)
	require.Equal(t, "AndGate", cls.Name)
	require.Len(t, cls.Body, 2)
	fn, ok := cls.Body[1].(*FunctionDef)
	require.True(t, ok)
	require.Equal(t, "run", fn.Name)
	require.Len(t, fn.Decorators, 1)
	require.Equal(t, 8, fn.Body[0].Line())

	helper := m.Body[2].(*FunctionDef)
	require.Len(t, helper.Params, 5)
	require.Equal(t, ParamPlain, helper.Params[1].Kind)
	require.NotNil(t, helper.Params[1].Default)
	require.Equal(t, ParamVarArgs, helper.Params[2].Kind)
	require.True(t, helper.Params[3].KwOnly)
	require.Equal(t, ParamKwArgs, helper.Params[4].Kind)

	ifs := helper.Body[0].(*If)
	elif, ok := ifs.Orelse[0].(*If)
	require.True(t, ok, "elif chain nests an If in Orelse")
	ret := elif.Orelse[0].(*Return)
	fs, ok := ret.Value.(*FString)
	require.True(t, ok)
	require.Len(t, fs.Parts, 3)
	require.Equal(t, "04x", fs.Parts[0].Spec)
	require.Equal(t, " and ", fs.Parts[1].Lit)
	require.Equal(t, byte('r'), fs.Parts[2].Conv)
}

func TestParseCaches(t *testing.T) {
	p := NewParser(4)
	ctx := context.Background()
	a, err := p.ParseExpr(ctx, "x + 1")
	require.NoError(t, err)
	b, err := p.ParseExpr(ctx, "x + 1")
	require.NoError(t, err)
	if a != b {
		t.Fatalf("expected the cached expression to be returned")
	}
	bin, ok := a.(*BinOp)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)
}

func TestParseSyntaxError(t *testing.T) {
	p := NewParser(0)
	_, err := p.Parse(context.Background(), "bad.py", []byte("def f(:\n  pass\n"))
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected a SyntaxError, got %v", err)
	}
	require.Equal(t, "bad.py", se.File)
}

func TestParseMatch(t *testing.T) {
	src := "match v:\n  case 17:\n    x = 1\n  case -3 | 4:\n    x = 2\n  case _:\n    x = 3\n"
	m, err := NewParser(0).Parse(context.Background(), "m.py", []byte(src))
	require.NoError(t, err)
	match := m.Body[0].(*Match)
	require.Len(t, match.Cases, 3)
	require.Len(t, match.Cases[1].Patterns, 2)
	require.Nil(t, match.Cases[2].Patterns)
}

func TestParseStmtsDedent(t *testing.T) {
	body, err := NewParser(0).ParseStmts(context.Background(), "    a = 1\n    b = a + 2\n")
	require.NoError(t, err)
	require.Len(t, body, 2)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"17", int64(17)},
		{"0x1F", int64(31)},
		{"0b1010", int64(10)},
		{"1_000", int64(1000)},
		{"2.5", 2.5},
		{"1e3", 1000.0},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if err != nil {
			t.Fatalf("parseNumber(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseNumber("3j"); err == nil {
		t.Fatalf("expected complex literal error")
	}
}

func TestUnescape(t *testing.T) {
	got, err := unescape(`a\tb\x41\n\101`)
	require.NoError(t, err)
	require.Equal(t, "a\tbA\nA", got)
	_, err = unescape(`\x4`)
	require.Error(t, err)
}

func TestIsGenerator(t *testing.T) {
	src := "def g(l):\n  for x in l:\n    yield x\n\ndef f():\n  def inner():\n    yield 1\n  return 2\n"
	m, err := NewParser(0).Parse(context.Background(), "g.py", []byte(src))
	require.NoError(t, err)
	require.True(t, IsGenerator(m.Body[0].(*FunctionDef).Body))
	require.False(t, IsGenerator(m.Body[1].(*FunctionDef).Body))
}

func TestParseOperatorNodes(t *testing.T) {
	src := `raise ValueError('bad')
ok = not a < b <= c
y = -z
`
	m, err := NewParser(0).Parse(context.Background(), "ops.py", []byte(src))
	require.NoError(t, err)
	require.Len(t, m.Body, 3)

	r, ok := m.Body[0].(*RaiseStmt)
	require.True(t, ok)
	require.IsType(t, &Call{}, r.Exc)

	inv, ok := m.Body[1].(*Assign).Value.(*UnaryExpr)
	require.True(t, ok)
	require.Equal(t, "not", inv.Op)
	cmp, ok := inv.X.(*CompareExpr)
	require.True(t, ok)
	require.Equal(t, []string{"<", "<="}, cmp.Ops)
	require.Len(t, cmp.Comps, 2)

	neg, ok := m.Body[2].(*Assign).Value.(*UnaryExpr)
	require.True(t, ok)
	require.Equal(t, "-", neg.Op)
}
