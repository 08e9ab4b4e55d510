// Package driver runs generation jobs end to end: read the host source,
// compile the top entity, check the design rules and write the output.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/compiler"
	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/policy"
)

// Options configures a Driver.
type Options struct {
	Config *config.Config
	// PolicyDir holds extra design rules.
	PolicyDir string
	// TimingPath mirrors the stage timings to a JSON lines file.
	// HDLGEN_TIMING_JSONL is used when empty.
	TimingPath string
	// NoCache disables the output cache even when the config sets cache_dir.
	NoCache bool
	// Stdout receives outputs whose path is empty or "-".
	Stdout io.Writer
}

// Job is one generation: a top entity of a host source, for one backend.
type Job struct {
	Src     string
	Entity  string
	Backend string
	Inputs  []string
	Kwargs  []string
	// Output is the file written on success. Empty or "-" is stdout, and
	// Check jobs with no output write nothing.
	Output string
	// Check evaluates the design rules and fails the job on errors.
	Check bool
}

// Report is the outcome of a job.
type Report struct {
	Job    Job
	Lines  []string
	Facts  facts.Tables
	Policy *policy.Result
	// Delta is the fact change since the previous run of the same top
	// entity. It is only tracked when the output cache is enabled.
	Delta  *facts.Delta
	Cached bool
	// Timings lists the stages the job went through, in order.
	Timings []StageTiming
}

// PolicyError fails a checked job whose design has error severity
// violations.
type PolicyError struct {
	Entity string
	Result *policy.Result
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("design check of %s failed: %d errors, %d warnings",
		e.Entity, e.Result.Summary.Errors, e.Result.Summary.Warnings)
}

// Driver runs jobs. Jobs share the host parse cache and the output cache.
type Driver struct {
	opts   Options
	cfg    *config.Config
	parser *host.Parser
	cache  *outputCache
	engine *policy.Engine
	stages *stageLog
}

func New(ctx context.Context, opts Options) (*Driver, error) {
	d := &Driver{opts: opts, cfg: opts.Config, parser: host.NewParser(0)}
	if d.cfg == nil {
		d.cfg = config.DefaultConfig()
	}
	if d.opts.Stdout == nil {
		d.opts.Stdout = os.Stdout
	}
	stages, err := openStageLog(time.Now(), opts.TimingPath)
	if err != nil {
		logctx.Warnf(ctx, "timing log disabled: %v", err)
	}
	d.stages = stages
	if dir := resolveCacheDir(d.cfg); dir != "" && !opts.NoCache {
		cache, err := newOutputCache(dir)
		if err != nil {
			return nil, err
		}
		d.cache = cache
		logctx.Debug(ctx, "output cache enabled", zap.String("dir", dir))
	}
	return d, nil
}

// Close ends the timing log.
func (d *Driver) Close() {
	d.stages.close()
}

// ClearCache drops the output cache. It is a no-op when caching is off.
func (d *Driver) ClearCache() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Clear()
}

// Run executes job. Nothing is written when generation or the design check
// fails.
func (d *Driver) Run(ctx context.Context, job Job) (*Report, error) {
	if job.Backend == "" {
		job.Backend = "vhdl"
	}
	rep := &Report{Job: job}

	done := d.stages.begin(rep, StageLoad)
	src, err := os.ReadFile(job.Src)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", job.Src, err)
	}

	if err := d.generate(ctx, job, src, rep); err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.trackFacts(ctx, job, rep); err != nil {
			logctx.Warnf(ctx, "fact tracking: %v", err)
		}
	}

	if job.Check {
		done = d.stages.begin(rep, StagePolicy)
		res, err := d.check(ctx, rep.Facts)
		done(err)
		if err != nil {
			return nil, err
		}
		rep.Policy = res
		for _, v := range res.Violations {
			logctx.Info(ctx, v.Message, zap.String("entity", v.Entity), zap.String("rule", v.Rule), zap.String("severity", v.Severity))
		}
		if res.HasErrors() {
			return rep, &PolicyError{Entity: job.Entity, Result: res}
		}
	}

	if job.Check && job.Output == "" {
		return rep, nil
	}
	done = d.stages.begin(rep, StageWrite)
	err = d.write(job.Output, rep.Lines)
	done(err)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (d *Driver) generate(ctx context.Context, job Job, src []byte, rep *Report) error {
	done := d.stages.begin(rep, StageCompile)
	err := d.compile(ctx, job, src, rep)
	done(err)
	return err
}

// compile fills rep from the output cache, or by compiling src.
func (d *Driver) compile(ctx context.Context, job Job, src []byte, rep *Report) error {
	var key string
	if d.cache != nil {
		k, err := jobKey(d.cfg, job, src)
		if err != nil {
			return err
		}
		key = k
		e, ok, err := d.cache.Get(key)
		if err != nil {
			logctx.Warnf(ctx, "output cache: %v", err)
		}
		if ok {
			rep.Lines, rep.Facts, rep.Cached = e.Lines, e.Facts, true
			logctx.Info(ctx, "using cached output", zap.String("entity", job.Entity), zap.String("backend", job.Backend))
			return nil
		}
	}

	c, err := compiler.New(ctx, job.Backend, d.cfg)
	if err == nil {
		c.SetParser(d.parser)
		err = c.Compile(compiler.Options{
			Backend:  job.Backend,
			Entity:   job.Entity,
			Filename: job.Src,
			Src:      src,
			Inputs:   job.Inputs,
			Kwargs:   job.Kwargs,
			Config:   d.cfg,
		})
	}
	if err == nil {
		rep.Lines, err = c.Flush()
	}
	if err != nil {
		return err
	}
	rep.Facts = c.Facts()

	if d.cache != nil {
		e := &cacheEntry{Backend: job.Backend, Entity: job.Entity, Lines: rep.Lines, Facts: rep.Facts}
		if err := d.cache.Put(key, e); err != nil {
			logctx.Warnf(ctx, "output cache: %v", err)
		}
	}
	return nil
}

func (d *Driver) trackFacts(ctx context.Context, job Job, rep *Report) error {
	prev, ok, err := d.cache.LoadFacts(job.Backend, job.Entity)
	if err != nil {
		return err
	}
	if ok {
		delta := facts.ComputeDelta(prev, rep.Facts)
		rep.Delta = &delta
		if !delta.Empty() {
			logctx.Info(ctx, "design changed", zap.String("entity", job.Entity),
				zap.Int("added", delta.Added.Len()), zap.Int("removed", delta.Removed.Len()))
		}
	}
	return d.cache.SaveFacts(job.Backend, job.Entity, rep.Facts)
}

func (d *Driver) check(ctx context.Context, tables facts.Tables) (*policy.Result, error) {
	if d.engine == nil {
		engine, err := policy.New(ctx, policy.Options{Dir: d.opts.PolicyDir, Rules: d.cfg.Rules})
		if err != nil {
			return nil, err
		}
		d.engine = engine
	}
	return d.engine.Evaluate(ctx, tables)
}

func (d *Driver) write(path string, lines []string) error {
	text := strings.Join(lines, "\n") + "\n"
	if path == "" || path == "-" {
		_, err := io.WriteString(d.opts.Stdout, text)
		return err
	}
	return writeFileAtomic(path, []byte(text))
}
