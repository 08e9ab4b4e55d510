package emitter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
)

// LibsManifest lists, one per line, the library files of a backend LibFS
// which are always loaded.
const LibsManifest = "LIBS"

// moduleRegistry holds generated helper modules keyed by module id and then
// by backend kind.
type moduleRegistry struct {
	mu    sync.Mutex
	order []string
	code  map[string]map[string]string
}

func newModuleRegistry() *moduleRegistry {
	return &moduleRegistry{code: make(map[string]map[string]string)}
}

func (r *moduleRegistry) register(mid string, code map[string]string, replace bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.code[mid]
	if exists && !replace {
		return false, fmt.Errorf("Module \"%s\" already registered", mid)
	}
	if !exists {
		r.order = append(r.order, mid)
	}
	r.code[mid] = code
	return exists, nil
}

func (r *moduleRegistry) collect(kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, mid := range r.order {
		if code, ok := r.code[mid][kind]; ok {
			out = append(out, code)
		}
	}
	return out
}

var globalModules = newModuleRegistry()

// RegisterGlobalModule makes helper module code, keyed by backend kind,
// part of every emitted compilation unit.
func RegisterGlobalModule(mid string, code map[string]string, replace bool) error {
	_, err := globalModules.register(mid, code, replace)
	return err
}

// RegisterModule adds helper module code to this compilation unit only.
func (e *Emitter) RegisterModule(mid string, code map[string]string, replace bool) error {
	replaced, err := e.modules.register(mid, code, replace)
	if err != nil {
		return err
	}
	if replaced {
		logctx.Info(e.ctx, "overriding registered module", zap.String("module", mid))
	}
	return nil
}

var placeholderRx = regexp.MustCompile(`@\{(\w+)\}`)

// ReplaceEnv substitutes the @{KEY} placeholders of library code.
func (e *Emitter) ReplaceEnv(code string) (string, error) {
	var missing []string
	out := placeholderRx.ReplaceAllStringFunc(code, func(m string) string {
		key := placeholderRx.FindStringSubmatch(m)[1]
		v, ok := e.cfg.Lookup(key, "")
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("missing library environment values: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// LoadLibs assembles the library code of a compilation unit: the backend
// libraries named by the manifest, the extra libraries, the user libraries,
// and the registered helper modules.
func (e *Emitter) LoadLibs(extra []string) ([]string, error) {
	var code []string
	add := func(src string) error {
		text, err := e.ReplaceEnv(src)
		if err != nil {
			return err
		}
		code = append(code, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
		return nil
	}

	libfs := e.LibFS()
	if libfs != nil {
		names, err := readManifest(libfs)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			data, err := fs.ReadFile(libfs, name)
			if err != nil {
				return nil, fmt.Errorf("reading library %s: %w", name, err)
			}
			if err := add(string(data)); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range extra {
		data, ok := e.findLib(libfs, name)
		if !ok {
			logctx.Info(e.ctx, "Library not found, assuming internal", zap.String("library", name))
			continue
		}
		if err := add(data); err != nil {
			return nil, err
		}
	}

	user := e.cfg.UserLibs(e.Kind())
	resolved, err := e.cfg.ResolveLibFiles(e.Kind())
	if err != nil {
		return nil, err
	}
	for _, path := range append(user, resolved.Files...) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading library %s: %w", path, err)
		}
		if err := add(string(data)); err != nil {
			return nil, err
		}
	}

	for _, mc := range append(globalModules.collect(e.Kind()), e.modules.collect(e.Kind())...) {
		if err := add(mc); err != nil {
			return nil, err
		}
	}
	return code, nil
}

func (e *Emitter) findLib(libfs fs.FS, name string) (string, bool) {
	fname := name
	if filepath.Ext(fname) == "" {
		fname += "." + e.FileExt()
	}
	if libfs != nil {
		if data, err := fs.ReadFile(libfs, fname); err == nil {
			return string(data), true
		}
	}
	for _, dir := range e.cfg.LibSearchPaths(e.Kind()) {
		if data, err := os.ReadFile(filepath.Join(dir, fname)); err == nil {
			return string(data), true
		}
	}
	return "", false
}

func readManifest(libfs fs.FS) ([]string, error) {
	data, err := fs.ReadFile(libfs, LibsManifest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		names = append(names, ln)
	}
	return names, nil
}
