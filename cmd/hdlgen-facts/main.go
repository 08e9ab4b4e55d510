package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/compiler"
	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/driver"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/policy"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	src := flag.String("src", "", "host source file")
	entity := flag.String("entity", "", "top entity class")
	backend := flag.String("backend", "vhdl", "output backend")
	var inputs, kwargs listFlag
	flag.Var(&inputs, "input", "port bindings A,B=EXPR")
	flag.Var(&kwargs, "kwarg", "keyword arguments K=EXPR")
	configPath := flag.String("config", "", "config file")
	output := flag.String("output", "", "write facts JSON to file (default: stdout)")
	flag.StringVar(output, "o", "", "write facts JSON to file (shorthand)")
	deltaFrom := flag.String("delta-from", "", "previous facts JSON to compute delta from")
	deltaOut := flag.String("delta-out", "", "write delta JSON to file (requires --delta-from)")
	check := flag.Bool("check", false, "print the design rule violations, incrementally when --delta-from is set")
	only := flag.String("only", "", "comma separated entities to keep in the output and delta")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *src == "" || *entity == "" {
		fmt.Fprintln(os.Stderr, "Usage: hdlgen-facts --src file.py --entity Name [--input A=EXPR ...] [--output file] [--delta-from prev.json --delta-out delta.json] [--check]")
		os.Exit(1)
	}

	ctx, flush, err := driver.NewContext(context.Background(), *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tables, err := compile(ctx, cfg, compiler.Options{
		Backend:  *backend,
		Entity:   *entity,
		Filename: *src,
		Inputs:   inputs,
		Kwargs:   kwargs,
		Config:   cfg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	keep := entitySet(*only)
	if keep != nil {
		tables = facts.FilterTablesByEntities(tables, keep)
	}

	if *output != "" {
		if err := writeJSON(*output, tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing facts: %v\n", err)
			os.Exit(1)
		}
	} else if !*check {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tables); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding facts: %v\n", err)
			os.Exit(1)
		}
	}

	var prev *facts.Tables
	if *deltaFrom != "" || *deltaOut != "" {
		if *deltaFrom == "" || (*deltaOut == "" && !*check) {
			fmt.Fprintln(os.Stderr, "Error: --delta-from and --delta-out must be used together")
			os.Exit(1)
		}
		p, err := readTables(*deltaFrom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading delta-from: %v\n", err)
			os.Exit(1)
		}
		if keep != nil {
			p = facts.FilterTablesByEntities(p, keep)
		}
		prev = &p
		if *deltaOut != "" {
			delta := facts.ComputeDelta(p, tables)
			if keep != nil {
				delta = facts.FilterDeltaByEntities(delta, keep)
			}
			if err := writeJSON(*deltaOut, delta); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing delta: %v\n", err)
				os.Exit(1)
			}
		}
	}

	if *check {
		res, err := evaluate(ctx, cfg, prev, tables)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, v := range res.Violations {
			fmt.Println(v)
		}
		if res.HasErrors() {
			os.Exit(1)
		}
	}
}

func compile(ctx context.Context, cfg *config.Config, opts compiler.Options) (facts.Tables, error) {
	c, err := compiler.New(ctx, opts.Backend, cfg)
	if err != nil {
		return facts.Tables{}, err
	}
	if err := c.Compile(opts); err != nil {
		return facts.Tables{}, err
	}
	if _, err := c.Flush(); err != nil {
		return facts.Tables{}, err
	}
	return c.Facts(), nil
}

// evaluate checks next. With a previous snapshot the session is seeded with
// it and advanced by the delta.
func evaluate(ctx context.Context, cfg *config.Config, prev *facts.Tables, next facts.Tables) (*policy.Result, error) {
	engine, err := policy.New(ctx, policy.Options{Rules: cfg.Rules})
	if err != nil {
		return nil, err
	}
	s, err := policy.NewSession(engine)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return s.Init(ctx, next)
	}
	if _, err := s.Init(ctx, *prev); err != nil {
		return nil, fmt.Errorf("previous facts: %w", err)
	}
	return s.Delta(ctx, facts.ComputeDelta(*prev, next))
}

func entitySet(list string) map[string]bool {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
