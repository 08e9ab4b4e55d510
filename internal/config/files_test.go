package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveLibFilesWithDoubleStar(t *testing.T) {
	root := t.TempDir()
	top := filepath.Join(root, "hdl", "top.vhd")
	nested := filepath.Join(root, "hdl", "fp", "fp_pkg.vhd")
	other := filepath.Join(root, "hdl", "fp", "fp.sv")
	writeFile(t, top, "-- top")
	writeFile(t, nested, "-- fp")
	writeFile(t, other, "// fp")

	cfg := DefaultConfig()
	cfg.dir = root
	cfg.Libs = map[string][]string{
		"vhdl":    {"hdl/**/*.vhd", "hdl/top.vhd"},
		"verilog": {"hdl/**/*.sv"},
	}

	vhdl, err := cfg.ResolveLibFiles("vhdl")
	if err != nil {
		t.Fatalf("ResolveLibFiles: %v", err)
	}
	if len(vhdl.Files) != 2 {
		t.Fatalf("expected 2 vhdl files without duplicates, got %v", vhdl.Files)
	}
	if !containsPath(vhdl.Files, top) || !containsPath(vhdl.Files, nested) {
		t.Fatalf("missing vhdl files: %v", vhdl.Files)
	}

	sv, err := cfg.ResolveLibFiles("verilog")
	if err != nil {
		t.Fatalf("ResolveLibFiles: %v", err)
	}
	if len(sv.Files) != 1 || !containsPath(sv.Files, other) {
		t.Fatalf("unexpected verilog files: %v", sv.Files)
	}
}

func TestResolveExternModules(t *testing.T) {
	root := t.TempDir()
	mod := filepath.Join(root, "xmods", "alu.yaml")
	writeFile(t, mod, "name: alu\n")
	writeFile(t, filepath.Join(root, "xmods", "README.md"), "docs")

	cfg := DefaultConfig()
	cfg.dir = root
	cfg.ExternModules = []string{"xmods/*"}

	files, err := cfg.ResolveExternModules()
	if err != nil {
		t.Fatalf("ResolveExternModules: %v", err)
	}
	if len(files) != 1 || !containsPath(files, mod) {
		t.Fatalf("expected only the yaml module, got %v", files)
	}
}

func TestLibSearchPathsFromEnv(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.dir = root
	cfg.LibPaths = map[string][]string{"vhdl": {"libs"}}
	t.Setenv("HDLGEN_VHDL_LIBPATH", "/opt/a; extra")
	t.Setenv("HDLGEN_VHDL_LIBS", "mine.vhd")

	paths := cfg.LibSearchPaths("vhdl")
	want := []string{filepath.Join(root, "libs"), "/opt/a", filepath.Join(root, "extra")}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
	if libs := cfg.UserLibs("vhdl"); len(libs) != 1 || libs[0] != filepath.Join(root, "mine.vhd") {
		t.Fatalf("user libs = %v", libs)
	}
}

func containsPath(files []string, target string) bool {
	for _, f := range files {
		if filepath.Clean(f) == filepath.Clean(target) {
			return true
		}
	}
	return false
}
