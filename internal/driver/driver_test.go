package driver

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/policy"
	"github.com/robert-at-pretension-io/hdlgen/internal/testutil"
)

const andGateSrc = `import hdl as X


class AndGate(X.Entity):

  PORTS = 'A, B, =XOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = A & B
`

const brokenSrc = `import hdl as X


class Broken(X.Entity):

  PORTS = 'A, =XOUT, =YOUT'

  @X.hdl_process(kind=X.ROOT_PROCESS)
  def run():
    XOUT = A
`

func newDriver(t *testing.T, cfg *config.Config, opts Options) *Driver {
	t.Helper()
	opts.Config = cfg
	d, err := New(testutil.Context(t), opts)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func andGateJob(dir string) Job {
	return Job{
		Src:     filepath.Join(dir, "gates.py"),
		Entity:  "AndGate",
		Backend: "vhdl",
		Inputs:  []string{"A,B,XOUT=UINT8"},
		Output:  filepath.Join(dir, "out", "and_gate.vhd"),
	}
}

func TestRunWritesOutput(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "gates.py"), andGateSrc)
	d := newDriver(t, nil, Options{})

	job := andGateJob(dir)
	rep, err := d.Run(testutil.Context(t), job)
	require.NoError(t, err)
	require.False(t, rep.Cached)
	require.Nil(t, rep.Delta)

	data, err := os.ReadFile(job.Output)
	require.NoError(t, err)
	require.Contains(t, string(data), "entity AndGate is")
	require.Contains(t, string(data), "  XOUT <= A and B;")
	require.Equal(t, strings.Join(rep.Lines, "\n")+"\n", string(data))

	// No temp files are left next to the output.
	entries, err := os.ReadDir(filepath.Dir(job.Output))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunToStdout(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "gates.py"), andGateSrc)
	var out bytes.Buffer
	d := newDriver(t, nil, Options{Stdout: &out})

	job := andGateJob(dir)
	job.Backend = "verilog"
	job.Output = "-"
	_, err := d.Run(testutil.Context(t), job)
	require.NoError(t, err)
	require.Contains(t, out.String(), "assign XOUT = A & B;")
}

func TestRunCachesOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "gates.py")
	testutil.WriteFile(t, src, andGateSrc)
	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, ".hdlgen_cache")
	ctx := testutil.Context(t)

	d := newDriver(t, cfg, Options{})
	first, err := d.Run(ctx, andGateJob(dir))
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Nil(t, first.Delta)

	// A new driver only sees the on-disk cache.
	d = newDriver(t, cfg, Options{})
	second, err := d.Run(ctx, andGateJob(dir))
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, StageCompile, second.Timings[1].Stage)
	require.Equal(t, "cached", second.Timings[1].Status)
	require.Equal(t, first.Lines, second.Lines)
	require.NotNil(t, second.Delta)
	require.True(t, second.Delta.Empty())

	// Other arguments miss the cache.
	job := andGateJob(dir)
	job.Inputs = []string{"A,B,XOUT=UINT4"}
	third, err := d.Run(ctx, job)
	require.NoError(t, err)
	require.False(t, third.Cached)
	require.False(t, third.Delta.Empty())

	// So does an edited host module next to the source.
	testutil.WriteFile(t, filepath.Join(dir, "helpers.py"), "WIDTH = 8\n")
	fourth, err := d.Run(ctx, andGateJob(dir))
	require.NoError(t, err)
	require.False(t, fourth.Cached)

	require.NoError(t, d.ClearCache())
	_, err = os.Stat(filepath.Join(cfg.CacheDir, "out"))
	require.True(t, os.IsNotExist(err))
}

func TestCheckFailsWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "broken.py"), brokenSrc)
	d := newDriver(t, nil, Options{})

	job := Job{
		Src:     filepath.Join(dir, "broken.py"),
		Entity:  "Broken",
		Backend: "vhdl",
		Inputs:  []string{"A,XOUT,YOUT=BIT"},
		Output:  filepath.Join(dir, "broken.vhd"),
		Check:   true,
	}
	rep, err := d.Run(testutil.Context(t), job)
	require.Error(t, err)
	var perr *PolicyError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 1, perr.Result.Summary.Errors)
	require.Equal(t, policy.RuleUndrivenOutput, rep.Policy.Violations[0].Rule)
	require.Equal(t, "YOUT", rep.Policy.Violations[0].Object)

	_, err = os.Stat(job.Output)
	require.True(t, os.IsNotExist(err))

	cfg := config.DefaultConfig()
	cfg.Rules[policy.RuleUndrivenOutput] = "warning"
	d = newDriver(t, cfg, Options{})
	rep, err = d.Run(testutil.Context(t), job)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Policy.Summary.Warnings)
	_, err = os.Stat(job.Output)
	require.NoError(t, err)
}

func TestRunReportsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "gates.py"), andGateSrc)
	d := newDriver(t, nil, Options{})

	job := andGateJob(dir)
	job.Entity = "OrGate"
	_, err := d.Run(testutil.Context(t), job)
	require.Error(t, err)
	require.Contains(t, err.Error(), "entity OrGate not found")
	_, err = os.Stat(job.Output)
	require.True(t, os.IsNotExist(err))

	job.Src = filepath.Join(dir, "absent.py")
	_, err = d.Run(testutil.Context(t), job)
	require.Error(t, err)
}

func TestStageTimings(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "gates.py"), andGateSrc)
	timingPath := filepath.Join(dir, "timing.jsonl")

	d, err := New(testutil.Context(t), Options{TimingPath: timingPath})
	require.NoError(t, err)
	rep, err := d.Run(testutil.Context(t), andGateJob(dir))
	require.NoError(t, err)
	d.Close()

	var stages []Stage
	for _, st := range rep.Timings {
		stages = append(stages, st.Stage)
		require.Equal(t, "AndGate", st.Entity)
		require.Equal(t, "vhdl", st.Backend)
		require.Equal(t, "ok", st.Status)
	}
	require.Equal(t, []Stage{StageLoad, StageCompile, StageWrite}, stages)

	raw, err := os.ReadFile(timingPath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 4)
	var logged []StageTiming
	for _, line := range lines {
		var st StageTiming
		require.NoError(t, json.Unmarshal(line, &st))
		logged = append(logged, st)
	}
	require.Equal(t, rep.Timings, logged[:3])
	require.Equal(t, StageTotal, logged[3].Stage)
	require.Empty(t, logged[3].Entity)
}

func TestStageTimingsReportFailures(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "broken.py"), brokenSrc)
	d := newDriver(t, nil, Options{})

	rep, err := d.Run(testutil.Context(t), Job{
		Src:    filepath.Join(dir, "broken.py"),
		Entity: "Broken",
		Inputs: []string{"A,XOUT,YOUT=BIT"},
		Check:  true,
	})
	require.Error(t, err)
	require.Len(t, rep.Timings, 3)
	require.Equal(t, StagePolicy, rep.Timings[2].Stage)
	// The rules ran, the design failed them.
	require.Equal(t, "ok", rep.Timings[2].Status)
}
