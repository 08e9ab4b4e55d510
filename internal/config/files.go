package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolvedLibrary contains the expanded library files of a backend
type ResolvedLibrary struct {
	Backend string
	Files   []string
}

// ResolveLibFiles expands the library patterns configured for a backend.
// Relative patterns are resolved against the config file folder. Files keep
// the order of the patterns, and the sorted order within a pattern.
func (c *Config) ResolveLibFiles(backend string) (ResolvedLibrary, error) {
	resolved := ResolvedLibrary{Backend: backend}
	seen := make(map[string]bool)
	for _, pattern := range c.Libs[backend] {
		matches, err := c.expand(pattern)
		if err != nil {
			return resolved, err
		}
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				resolved.Files = append(resolved.Files, match)
			}
		}
	}
	return resolved, nil
}

// ResolveExternModules expands the external module document patterns.
func (c *Config) ResolveExternModules() ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range c.ExternModules {
		matches, err := c.expand(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			ext := strings.ToLower(filepath.Ext(match))
			if (ext == ".yaml" || ext == ".yml") && !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}
	return files, nil
}

// LibSearchPaths returns the folders searched for on-demand libraries of a
// backend: the configured ones, then the HDLGEN_<BACKEND>_LIBPATH list.
func (c *Config) LibSearchPaths(backend string) []string {
	var paths []string
	for _, p := range c.LibPaths[backend] {
		paths = append(paths, c.abs(p))
	}
	if env := os.Getenv(EnvPrefix + strings.ToUpper(backend) + "_LIBPATH"); env != "" {
		for _, p := range strings.Split(env, ";") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, c.abs(p))
			}
		}
	}
	return paths
}

// UserLibs returns the library files listed by HDLGEN_<BACKEND>_LIBS.
func (c *Config) UserLibs(backend string) []string {
	var libs []string
	if env := os.Getenv(EnvPrefix + strings.ToUpper(backend) + "_LIBS"); env != "" {
		for _, p := range strings.Split(env, ";") {
			if p = strings.TrimSpace(p); p != "" {
				libs = append(libs, c.abs(p))
			}
		}
	}
	return libs
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

func (c *Config) expand(pattern string) ([]string, error) {
	matches, err := expandGlob(c.abs(pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// expandGlob expands a glob pattern, handling ** for recursive matching
func expandGlob(pattern string) ([]string, error) {
	// Check if pattern contains **
	if strings.Contains(pattern, "**") {
		return expandDoubleStarGlob(pattern)
	}

	// Simple glob
	return filepath.Glob(pattern)
}

// expandDoubleStarGlob handles ** patterns by walking the directory tree
func expandDoubleStarGlob(pattern string) ([]string, error) {
	var results []string

	// Split pattern at **
	parts := strings.SplitN(pattern, "**", 2)
	if len(parts) != 2 {
		return filepath.Glob(pattern)
	}

	baseDir := filepath.Clean(parts[0])
	if baseDir == "" {
		baseDir = "."
	}
	suffix := parts[1]
	if strings.HasPrefix(suffix, string(filepath.Separator)) {
		suffix = suffix[1:]
	}

	// Walk the directory tree
	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}

		if info.IsDir() {
			return nil
		}

		// Check if file matches the suffix pattern
		if suffix == "" {
			results = append(results, path)
			return nil
		}

		// Build the pattern for this specific path
		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}

		// Try to match the suffix pattern against the relative path
		if matchSuffix(relPath, suffix) {
			results = append(results, path)
		}

		return nil
	})

	return results, err
}

// matchSuffix checks if a path matches a suffix pattern (after **)
func matchSuffix(path, pattern string) bool {
	// Handle patterns like "/*.vhd" or "*.vhd"
	pattern = strings.TrimPrefix(pattern, string(filepath.Separator))

	// If pattern has no directory component, match against filename
	if !strings.Contains(pattern, string(filepath.Separator)) {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}

	// For patterns with directory components, try matching
	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	// Also try matching just the suffix
	if len(path) > len(pattern) {
		suffix := path[len(path)-len(pattern):]
		matched, _ = filepath.Match(pattern, suffix)
		return matched
	}

	return false
}
