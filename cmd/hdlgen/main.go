// =============================================================================
// hdlgen - Main Entry Point
// =============================================================================
//
// hdlgen compiles hardware described in Python syntax host code into
// VHDL-2008 or SystemVerilog.
//
// THE PIPELINE:
//   1. Tree-sitter parses the host source into a syntax tree
//   2. The compiler interprets it, instantiating the top entity with typed ports
//   3. The backend dialect renders entities, processes and libraries
//   4. Design facts are recorded while generating
//   5. OPA evaluates the design rules against the facts (check, gen --check)
//   6. The output is written atomically, never on failure
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/driver"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"

	_ "github.com/robert-at-pretension-io/hdlgen/internal/emitter/verilog"
	_ "github.com/robert-at-pretension-io/hdlgen/internal/emitter/vhdl"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "gen":
		err = runGen(args, false)
	case "check":
		err = runGen(args, true)
	case "init":
		err = runInit(args)
	case "backends":
		for _, b := range emitter.Available() {
			fmt.Println(b)
		}
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: hdlgen <command> [options]

Commands:
  gen               Generate HDL for a top entity
  check             Generate in memory and evaluate the design rules
  init              Create an hdlgen.yaml configuration file
  backends          List the available backends

Generation options:
  --src FILE        Host source file
  --entity NAME     Top entity class
  --backend NAME    vhdl (default) or verilog
  --input A,B=EXPR  Port bindings of the top entity (repeatable)
  --kwarg K=EXPR    Keyword arguments of the top entity (repeatable)
  -o, --output FILE Output file (default: stdout)
  -c, --config FILE Config file
  --check           Fail before writing when the design rules report errors
  --policy-dir DIR  Extra .rego design rules
  --timing FILE     Write JSONL stage timings
  --no-cache        Ignore cache_dir
  --json            check: print the result as JSON
  -v, --verbose     Debug logging

Configuration:
  hdlgen looks for configuration in:
    1. the --config file
    2. ./hdlgen.json, ./hdlgen.yaml
    3. ~/.config/hdlgen/config.json, ~/.config/hdlgen/config.yaml`)
}

// listFlag collects the values of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runGen(args []string, checkOnly bool) error {
	name := "gen"
	if checkOnly {
		name = "check"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	src := fs.String("src", "", "host source file")
	entity := fs.String("entity", "", "top entity class")
	backend := fs.String("backend", "vhdl", "output backend")
	var inputs, kwargs listFlag
	fs.Var(&inputs, "input", "port bindings A,B=EXPR")
	fs.Var(&kwargs, "kwarg", "keyword arguments K=EXPR")
	output := fs.String("output", "", "output file")
	fs.StringVar(output, "o", "", "output file (shorthand)")
	configPath := fs.String("config", "", "config file")
	fs.StringVar(configPath, "c", "", "config file (shorthand)")
	check := fs.Bool("check", checkOnly, "evaluate the design rules")
	policyDir := fs.String("policy-dir", "", "extra design rules")
	timing := fs.String("timing", "", "JSONL timing file")
	noCache := fs.Bool("no-cache", false, "ignore cache_dir")
	asJSON := fs.Bool("json", false, "print the check result as JSON")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.BoolVar(verbose, "v", false, "debug logging (shorthand)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *src == "" || *entity == "" {
		return fmt.Errorf("%s requires --src and --entity", name)
	}

	ctx, flush, err := driver.NewContext(context.Background(), *verbose)
	if err != nil {
		return err
	}
	defer flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	d, err := driver.New(ctx, driver.Options{
		Config:     cfg,
		PolicyDir:  *policyDir,
		TimingPath: *timing,
		NoCache:    *noCache,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	job := driver.Job{
		Src:     *src,
		Entity:  *entity,
		Backend: *backend,
		Inputs:  inputs,
		Kwargs:  kwargs,
		Output:  *output,
		Check:   *check,
	}
	if !checkOnly && job.Output == "" {
		job.Output = "-"
	}

	rep, err := d.Run(ctx, job)
	var perr *driver.PolicyError
	if err != nil && !errors.As(err, &perr) {
		return err
	}
	if checkOnly && rep != nil && rep.Policy != nil {
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep.Policy); err != nil {
				return err
			}
		} else {
			for _, v := range rep.Policy.Violations {
				fmt.Println(v)
			}
			s := rep.Policy.Summary
			fmt.Printf("%s: %d errors, %d warnings, %d info\n", *entity, s.Errors, s.Warnings, s.Info)
		}
	}
	return err
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "write hdlgen.json instead of hdlgen.yaml")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	configPath := "hdlgen.yaml"
	if *asJSON {
		configPath = "hdlgen.json"
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Library files and search paths per backend")
	fmt.Println("  - Float formats and extern module declarations")
	fmt.Println("  - Design rule severities")
	return nil
}
