package emitter

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
)

// stubDialect implements only what library loading needs.
type stubDialect struct {
	Dialect
	libs fs.FS
}

func (s *stubDialect) Kind() string        { return "stub" }
func (s *stubDialect) FileExt() string     { return "txt" }
func (s *stubDialect) LibFS() fs.FS        { return s.libs }
func (s *stubDialect) ExtraLibs() []string { return nil }

func newStubEmitter(t *testing.T, cfg *config.Config, libs fs.FS) *Emitter {
	t.Helper()
	Register("stub", func(e *Emitter) Dialect { return &stubDialect{libs: libs} })
	e, err := New(context.Background(), "stub", cfg)
	require.NoError(t, err)
	return e
}

func TestLoadLibsOrder(t *testing.T) {
	libs := fstest.MapFS{
		"LIBS":      {Data: []byte("# always\nbase.txt\n")},
		"base.txt":  {Data: []byte("base @{WIDTH}\n")},
		"extra.txt": {Data: []byte("extra\n")},
	}
	cfg := config.DefaultConfig()
	cfg.Env["WIDTH"] = "8"
	e := newStubEmitter(t, cfg, libs)

	require.NoError(t, e.RegisterModule("helper", map[string]string{"stub": "helper"}, false))
	code, err := e.LoadLibs([]string{"extra", "missing"})
	require.NoError(t, err)
	require.Equal(t, []string{"base 8", "extra", "helper"}, code)
}

func TestLoadLibsMissingEnv(t *testing.T) {
	libs := fstest.MapFS{
		"LIBS":     {Data: []byte("base.txt\n")},
		"base.txt": {Data: []byte("@{NOPE_NOT_SET}")},
	}
	e := newStubEmitter(t, config.DefaultConfig(), libs)
	_, err := e.LoadLibs(nil)
	if err == nil || !strings.Contains(err.Error(), "NOPE_NOT_SET") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestLoadLibsSearchPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ext.txt"), []byte("from disk"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.LibPaths = map[string][]string{"stub": {dir}}
	e := newStubEmitter(t, cfg, nil)

	code, err := e.LoadLibs([]string{"ext"})
	require.NoError(t, err)
	require.Equal(t, []string{"from disk"}, code)
}

func TestRegisterModuleDuplicate(t *testing.T) {
	e := newStubEmitter(t, config.DefaultConfig(), nil)
	require.NoError(t, e.RegisterModule("m", map[string]string{"stub": "one"}, false))
	if err := e.RegisterModule("m", map[string]string{"stub": "two"}, false); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	require.NoError(t, e.RegisterModule("m", map[string]string{"stub": "two"}, true))
	code, err := e.LoadLibs(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"two"}, code)
}

func TestEmitterPlacementsAndIndent(t *testing.T) {
	e := newStubEmitter(t, config.DefaultConfig(), nil)
	e.EmitLine("top")
	p := e.EmitPlacement(1)
	_ = e.WithIndent(func() error {
		e.EmitLine("nested")
		return nil
	})
	_ = e.WithPlacement(p, func() error {
		e.EmitLine("reserved")
		return nil
	})
	lines, err := e.Flush()
	require.NoError(t, err)
	require.Equal(t, []string{"top", "  reserved", "  nested"}, lines)

	e.PushContext(map[string]any{"delay": 5})
	e.PushContext(map[string]any{"trans": true})
	if v, ok := e.ContextValue("delay"); !ok || v != 5 {
		t.Fatalf("ContextValue(delay) = %v %v", v, ok)
	}
	e.PopContext()
	if _, ok := e.ContextValue("trans"); ok {
		t.Fatalf("trans should be popped")
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected unknown emitter error")
	}
}
