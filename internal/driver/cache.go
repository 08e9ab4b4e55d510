package driver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
)

const (
	cacheFormatVersion = 1
	memoryCacheSize    = 64
)

// cacheEntry is one generated design, stored under the hash of everything
// that went into it.
type cacheEntry struct {
	Version int          `json:"version"`
	Backend string       `json:"backend"`
	Entity  string       `json:"entity"`
	Lines   []string     `json:"lines"`
	Facts   facts.Tables `json:"facts"`
}

// outputCache keeps generated designs on disk, fronted by an in-memory LRU
// for repeated jobs within one run.
type outputCache struct {
	dir string
	mem *lru.Cache[string, *cacheEntry]
}

func newOutputCache(dir string) (*outputCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache mkdir: %w", err)
	}
	mem, err := lru.New[string, *cacheEntry](memoryCacheSize)
	if err != nil {
		return nil, err
	}
	return &outputCache{dir: dir, mem: mem}, nil
}

func resolveCacheDir(cfg *config.Config) string {
	if cfg.CacheDir == "" || filepath.IsAbs(cfg.CacheDir) {
		return cfg.CacheDir
	}
	return filepath.Join(cfg.Dir(), cfg.CacheDir)
}

func (c *outputCache) entryPath(key string) string {
	return filepath.Join(c.dir, "out", key[:2], key+".json")
}

func (c *outputCache) Get(key string) (*cacheEntry, bool, error) {
	if e, ok := c.mem.Get(key); ok {
		return e, true, nil
	}
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cached output: %w", err)
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("parse cached output: %w", err)
	}
	if e.Version != cacheFormatVersion {
		return nil, false, nil
	}
	c.mem.Add(key, &e)
	return &e, true, nil
}

func (c *outputCache) Put(key string, e *cacheEntry) error {
	e.Version = cacheFormatVersion
	if err := writeJSONAtomic(c.entryPath(key), e); err != nil {
		return err
	}
	c.mem.Add(key, e)
	return nil
}

// factTablesPath holds the facts of the last run of a top entity, the base
// of the delta reported by the next run.
func (c *outputCache) factTablesPath(backend, entity string) string {
	return filepath.Join(c.dir, "facts", backend+"-"+entity+".json")
}

type factTablesFile struct {
	Version int          `json:"version"`
	Tables  facts.Tables `json:"tables"`
}

func (c *outputCache) LoadFacts(backend, entity string) (facts.Tables, bool, error) {
	data, err := os.ReadFile(c.factTablesPath(backend, entity))
	if err != nil {
		if os.IsNotExist(err) {
			return facts.Tables{}, false, nil
		}
		return facts.Tables{}, false, fmt.Errorf("read fact tables cache: %w", err)
	}
	var f factTablesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return facts.Tables{}, false, fmt.Errorf("parse fact tables cache: %w", err)
	}
	if f.Version != cacheFormatVersion {
		return facts.Tables{}, false, nil
	}
	return f.Tables, true, nil
}

func (c *outputCache) SaveFacts(backend, entity string, tables facts.Tables) error {
	f := factTablesFile{Version: cacheFormatVersion, Tables: tables}
	if err := writeJSONAtomic(c.factTablesPath(backend, entity), f); err != nil {
		return fmt.Errorf("write fact tables cache: %w", err)
	}
	return nil
}

// Clear removes every cached entry.
func (c *outputCache) Clear() error {
	c.mem.Purge()
	for _, sub := range []string{"out", "facts"} {
		if err := os.RemoveAll(filepath.Join(c.dir, sub)); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	return nil
}

// jobKey hashes the inputs of a job: the source, the host modules next to it,
// the configuration, the library and extern module files, and the job
// arguments.
func jobKey(cfg *config.Config, job Job, src []byte) (string, error) {
	h := blake3.New(32, nil)
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(fmt.Sprint(cacheFormatVersion))
	write(job.Backend)
	write(job.Entity)
	write(strings.Join(job.Inputs, "\x1f"))
	write(strings.Join(job.Kwargs, "\x1f"))
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("hash config: %w", err)
	}
	write(string(cfgJSON))
	write(string(src))

	deps, err := jobDeps(cfg, job)
	if err != nil {
		return "", err
	}
	for _, dep := range deps {
		data, err := os.ReadFile(dep)
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", dep, err)
		}
		write(dep)
		write(string(data))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func jobDeps(cfg *config.Config, job Job) ([]string, error) {
	src, _ := filepath.Abs(job.Src)
	siblings, err := filepath.Glob(filepath.Join(filepath.Dir(src), "*.py"))
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, s := range siblings {
		if s != src {
			deps = append(deps, s)
		}
	}
	sort.Strings(deps)
	libs, err := cfg.ResolveLibFiles(job.Backend)
	if err != nil {
		return nil, err
	}
	deps = append(deps, libs.Files...)
	mods, err := cfg.ResolveExternModules()
	if err != nil {
		return nil, err
	}
	return append(deps, mods...), nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache json: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file next to path and renames it in
// place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
