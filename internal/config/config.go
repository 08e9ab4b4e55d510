package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
)

// EnvPrefix prefixes every environment variable hdlgen looks at.
const EnvPrefix = "HDLGEN_"

// Config is the top-level configuration for hdlgen
type Config struct {
	// IndentSpaces is the number of spaces per indentation level of the output
	IndentSpaces int `json:"indent_spaces,omitempty"`

	// FloatSpecs maps float widths to their [exponent, mantissa] split
	FloatSpecs map[string][]int `json:"float_specs,omitempty"`

	// EntityArch is the VHDL architecture name
	EntityArch string `json:"entity_arch,omitempty"`

	// Header replaces the standard VHDL library header
	Header string `json:"header,omitempty"`

	// Libs maps backend names to extra library files (globs allowed)
	Libs map[string][]string `json:"libs,omitempty"`

	// LibPaths maps backend names to folders searched for on-demand libraries
	LibPaths map[string][]string `json:"lib_paths,omitempty"`

	// Env holds the values substituted for @{KEY} placeholders in library code
	Env map[string]string `json:"env,omitempty"`

	// TimeUnit is the unit of wait and delay amounts
	TimeUnit string `json:"time_unit,omitempty"`

	// ExternModules is a list of glob patterns of external module YAML files
	ExternModules []string `json:"extern_modules,omitempty"`

	// Rules maps design rule names to severity: "off", "warning", "error"
	Rules map[string]string `json:"rules,omitempty"`

	// CacheDir enables the output cache when not empty
	CacheDir string `json:"cache_dir,omitempty"`

	// Verilog contains SystemVerilog backend options
	Verilog VerilogConfig `json:"verilog,omitempty"`

	dir string
}

// VerilogConfig contains SystemVerilog backend options
type VerilogConfig struct {
	// FPUFnMap overrides the module and function implementing each float operation
	FPUFnMap map[string]FPUFunc `json:"fpu_fnmap,omitempty"`
}

// FPUFunc names the helper module and function of a float operation
type FPUFunc struct {
	Module string `json:"module"`
	Func   string `json:"func"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load finds and loads the configuration file
// Search order:
//  1. explicit path (if not empty)
//  2. ./hdlgen.json, ./hdlgen.yaml (current working directory)
//  3. ~/.config/hdlgen/config.json, ~/.config/hdlgen/config.yaml
//
// Returns DefaultConfig if no config file is found
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}

	cwd, _ := os.Getwd()
	searchPaths := []string{
		filepath.Join(cwd, "hdlgen.json"),
		filepath.Join(cwd, "hdlgen.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "hdlgen", "config.json"),
			filepath.Join(home, ".config", "hdlgen", "config.yaml"),
		)
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}

	cfg := DefaultConfig()
	cfg.dir = cwd
	return cfg, nil
}

// LoadFile loads configuration from a specific file, JSON or YAML
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	if err := v.ValidateConfigJSON(jsonData); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for missing fields
	cfg.applyDefaults()
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.dir = abs
	}

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if c.IndentSpaces <= 0 {
		c.IndentSpaces = 2
	}
	if c.EntityArch == "" {
		c.EntityArch = "behavior"
	}
	if c.TimeUnit == "" {
		c.TimeUnit = "ns"
	}
	if c.Env == nil {
		c.Env = make(map[string]string)
	}
	if c.Rules == nil {
		c.Rules = make(map[string]string)
	}
}

// Save writes the configuration to a file, YAML unless the extension is .json
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var y []byte
		if y, err = yaml.Marshal(c); err == nil {
			data, err = yaml.YAMLToJSON(y)
		}
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Dir is the folder relative library paths are resolved against
func (c *Config) Dir() string {
	if c.dir == "" {
		cwd, _ := os.Getwd()
		return cwd
	}
	return c.dir
}

// Lookup resolves a @{KEY} placeholder: the config env first, then the
// HDLGEN_KEY environment variable, then def.
func (c *Config) Lookup(key string, def string) (string, bool) {
	if v, ok := c.Env[key]; ok {
		return v, true
	}
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v, true
	}
	return def, def != ""
}

// FloatSpec returns the exponent and mantissa split of a float width. The
// HDLGEN_F<N>_SPEC environment variable ("exp,mant") wins over the file.
func (c *Config) FloatSpec(nbits int) (types.FloatSpec, error) {
	if env := os.Getenv(fmt.Sprintf("%sF%d_SPEC", EnvPrefix, nbits)); env != "" {
		parts := strings.Split(env, ",")
		if len(parts) == 2 {
			exp, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			mant, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 == nil && err2 == nil {
				return types.FloatSpec{Exp: exp, Mant: mant}, nil
			}
		}
		return types.FloatSpec{}, fmt.Errorf("invalid %sF%d_SPEC value: %q", EnvPrefix, nbits, env)
	}
	if spec, ok := c.FloatSpecs[strconv.Itoa(nbits)]; ok && len(spec) == 2 {
		return types.FloatSpec{Exp: spec[0], Mant: spec[1]}, nil
	}
	if spec, ok := types.DefaultFloatSpecs[nbits]; ok {
		return spec, nil
	}
	return types.FloatSpec{}, &types.TypeError{Msg: fmt.Sprintf("Unknown floating point spec: %d bits", nbits)}
}
