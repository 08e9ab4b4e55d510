package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFileYAML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "hdlgen.yaml")
	writeFile(t, path, `indent_spaces: 4
entity_arch: rtl
float_specs:
  "32": [8, 23]
  "24": [6, 17]
env:
  RESET_LEVEL: "1"
rules:
  unused_input: "off"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.IndentSpaces != 4 || cfg.EntityArch != "rtl" || cfg.TimeUnit != "ns" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Dir() != root {
		t.Fatalf("config dir = %s, want %s", cfg.Dir(), root)
	}
	spec, err := cfg.FloatSpec(24)
	if err != nil || spec.Exp != 6 || spec.Mant != 17 {
		t.Fatalf("FloatSpec(24) = %+v, %v", spec, err)
	}
	if cfg.Rules["unused_input"] != "off" {
		t.Fatalf("rules = %v", cfg.Rules)
	}
	if v, ok := cfg.Lookup("RESET_LEVEL", ""); !ok || v != "1" {
		t.Fatalf("Lookup = %q %v", v, ok)
	}
}

func TestLoadFileRejectsBadSchema(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "hdlgen.json")
	writeFile(t, path, `{"indent_spaces": "two"}`)

	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid config file") {
		t.Fatalf("expected schema failure, got %v", err)
	}
}

func TestLookupAndFloatSpecEnv(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("HDLGEN_TIME_UNIT", "ps")
	if v, ok := cfg.Lookup("TIME_UNIT", "ns"); !ok || v != "ps" {
		t.Fatalf("env lookup = %q", v)
	}
	if v, ok := cfg.Lookup("MISSING_KEY", ""); ok || v != "" {
		t.Fatalf("missing key should not resolve, got %q", v)
	}

	t.Setenv("HDLGEN_F16_SPEC", "6, 9")
	spec, err := cfg.FloatSpec(16)
	if err != nil || spec.Exp != 6 || spec.Mant != 9 {
		t.Fatalf("FloatSpec(16) = %+v, %v", spec, err)
	}
	if _, err := cfg.FloatSpec(12); err == nil {
		t.Fatalf("expected unknown float spec error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Libs = map[string][]string{"vhdl": {"lib/*.vhd"}}
	for _, name := range []string{"out.json", "out.yaml"} {
		path := filepath.Join(root, name)
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if len(loaded.Libs["vhdl"]) != 1 || loaded.IndentSpaces != 2 {
			t.Fatalf("%s: round trip lost data: %+v", name, loaded)
		}
	}
}
