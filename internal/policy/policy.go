// Package policy runs the Rego design rules over the facts of a compiled
// design. The default rules are embedded; extra rules in the same package
// can be loaded from a folder.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
)

//go:embed rules/*.rego
var rulesFS embed.FS

const (
	violationsQuery = "data.hdlgen.rules.all_violations"
	summaryQuery    = "data.hdlgen.rules.summary"
)

// Rule names of the embedded rules.
const (
	RuleUndrivenOutput    = "undriven_output"
	RuleUnusedInput       = "unused_input"
	RuleMultiDrivenSignal = "multi_driven_signal"
	RuleLatchProneComb    = "latch_prone_comb"
	RuleMissingReset      = "missing_reset"
)

// Engine evaluates the design rules against design facts
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
	rules   map[string]string
}

// Violation is one design rule violation. Object names the port, signal or
// process the rule fired on.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Entity   string `json:"entity"`
	Object   string `json:"object"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", v.Severity, v.Entity, v.Rule, v.Message)
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// HasErrors reports whether any violation has error severity.
func (r *Result) HasErrors() bool { return r.Summary.Errors > 0 }

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// Input is the document the rules see: the fact relations plus the rule
// settings.
type Input struct {
	facts.Tables
	Config InputConfig `json:"config"`
}

type InputConfig struct {
	Rules map[string]string `json:"rules"`
}

// Options configures an Engine.
type Options struct {
	// Dir holds additional *.rego files, loaded next to the embedded rules.
	Dir string
	// Rules maps rule names to a severity, "off" disables a rule.
	Rules map[string]string
}

// New prepares the embedded rules and those found in opts.Dir.
func New(ctx context.Context, opts Options) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
		rules:   opts.Rules,
	}
	if engine.rules == nil {
		engine.rules = map[string]string{}
	}

	modules, err := embeddedModules()
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		files, err := filepath.Glob(filepath.Join(opts.Dir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", opts.Dir)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
		}
		logctx.Info(ctx, "loaded policy files", zap.String("dir", opts.Dir), zap.Int("count", len(files)))
	}

	for name, q := range map[string]string{"violations": violationsQuery, "summary": summaryQuery} {
		opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(q))
		query, err := rego.New(opts...).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}

	return engine, nil
}

func embeddedModules() ([]func(*rego.Rego), error) {
	var modules []func(*rego.Rego)
	err := fs.WalkDir(rulesFS, "rules", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := rulesFS.ReadFile(path)
		if err != nil {
			return err
		}
		modules = append(modules, rego.Module(path, string(content)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading embedded rules: %w", err)
	}
	return modules, nil
}

// Evaluate runs the rules against the design facts
func (e *Engine) Evaluate(ctx context.Context, tables facts.Tables) (*Result, error) {
	input := Input{Tables: facts.BuildTables(tables), Config: InputConfig{Rules: e.rules}}

	// Convert input to map for OPA
	inputMap, err := structToMap(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					Entity:   getString(vmap, "entity"),
					Object:   getString(vmap, "object"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Object < b.Object
	})

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}

	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	logctx.Debug(ctx, "policy evaluated", zap.Int("violations", result.Summary.TotalViolations))
	return result, nil
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
