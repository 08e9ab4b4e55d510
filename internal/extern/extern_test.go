package extern

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/testutil"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
)

const xmodDoc = `name: xmod_test
name_remap: {vhdl: xmod_pkg}
functions:
  xmod_add:
    nargs: 2
    params: ["N=nbits(0)"]
    fnsig: "u*, u*"
    dtype: "0"
  xmod_fcvt:
    params: ["NX=exp(0)", "NM=mant(0)", "MODE=2"]
    args: {ROUND: "1", ALPHA: "0"}
    filename: xmod_fp
    dtype: f32
  xmod_log:
    funcname: log_value
    name_remap: {verilog: xmod_dbg.log}
`

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	v, err := validator.New()
	require.NoError(t, err)
	return v
}

func TestParseModule(t *testing.T) {
	m, err := Parse("xmod.yaml", []byte(xmodDoc), newValidator(t))
	require.NoError(t, err)
	require.Equal(t, "xmod_test", m.Name)
	require.Equal(t, []string{"xmod_add", "xmod_fcvt", "xmod_log"}, m.Functions())

	add, err := m.Function("xmod_add")
	require.NoError(t, err)
	require.Equal(t, 2, add.NArgs)
	require.Equal(t, []Param{{Name: "N", Source: "nbits(0)"}}, add.Params)
	require.Equal(t, "xmod_test", add.Filename)
	require.Equal(t, 4, add.Line)

	fcvt, err := m.Function("xmod_fcvt")
	require.NoError(t, err)
	require.Equal(t, "xmod_fp", fcvt.Filename)

	_, err = m.Function("nope")
	require.EqualError(t, err, "Unable to find nope logic within xmod_test module")
}

func TestBackendName(t *testing.T) {
	m, err := Parse("xmod.yaml", []byte(xmodDoc), nil)
	require.NoError(t, err)
	tests := []struct {
		fn      string
		backend string
		want    string
	}{
		{"xmod_add", "vhdl", "xmod_pkg.xmod_add"},
		{"xmod_add", "verilog", "xmod_test.xmod_add"},
		{"xmod_log", "verilog", "xmod_dbg.log"},
		{"xmod_log", "vhdl", "xmod_test.log_value"},
	}
	for _, tt := range tests {
		fn, err := m.Function(tt.fn)
		require.NoError(t, err)
		require.Equal(t, tt.want, fn.BackendName(m.Name, tt.backend), "%s on %s", tt.fn, tt.backend)
	}
}

func TestResolveParams(t *testing.T) {
	m, err := Parse("xmod.yaml", []byte(xmodDoc), nil)
	require.NoError(t, err)
	fspec := func(dt *types.Type) (types.FloatSpec, error) {
		if dt.NBits() != 32 {
			return types.FloatSpec{}, errors.New("unsupported width")
		}
		return types.FloatSpec{Exp: 8, Mant: 23}, nil
	}

	add, _ := m.Function("xmod_add")
	params, err := add.ResolveParams([]*types.Type{types.NewUint(12), types.NewUint(12)}, fspec)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"N", "12"}}, params)

	fcvt, _ := m.Function("xmod_fcvt")
	params, err = fcvt.ResolveParams([]*types.Type{types.NewFloat(32)}, fspec)
	require.NoError(t, err)
	require.Equal(t, [][2]string{
		{"NX", "8"}, {"NM", "23"}, {"MODE", "2"},
		{"ALPHA", "0"}, {"ROUND", "1"},
	}, params)

	_, err = fcvt.ResolveParams([]*types.Type{types.NewFloat(16)}, fspec)
	require.Error(t, err)
	_, err = add.ResolveParams([]*types.Type{nil}, fspec)
	require.Error(t, err)
}

func TestResultTypeAndArgs(t *testing.T) {
	m, err := Parse("xmod.yaml", []byte(xmodDoc), nil)
	require.NoError(t, err)
	u12 := types.NewUint(12)

	add, _ := m.Function("xmod_add")
	rt, err := add.ResultType([]*types.Type{u12, u12})
	require.NoError(t, err)
	require.True(t, rt.Equal(u12))
	require.NoError(t, add.CheckArgs(2))
	require.Error(t, add.CheckArgs(3))

	fcvt, _ := m.Function("xmod_fcvt")
	rt, err = fcvt.ResultType(nil)
	require.NoError(t, err)
	require.True(t, rt.Equal(types.NewFloat(32)))
	require.NoError(t, fcvt.CheckArgs(5))

	logf, _ := m.Function("xmod_log")
	rt, err = logf.ResultType(nil)
	require.NoError(t, err)
	require.True(t, rt.IsVoid())
}

func TestLoadErrors(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "name: [unclosed"},
		{"empty", ""},
		{"bad module name", "name: 9lives\nfunctions: {}\n"},
		{"bad param", "name: xm\nfunctions:\n  f:\n    params: [\"N-3\"]\n"},
		{"missing functions", "name: xm\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "xm.yaml")
			testutil.WriteFile(t, path, tt.doc)
			_, err := Load(path, v)
			require.Error(t, err)
			var lerr *LoadError
			require.ErrorAs(t, err, &lerr)
			require.Equal(t, path, lerr.Path)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), v)
	require.Error(t, err)
}
