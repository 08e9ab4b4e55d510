// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
)

// Context returns a context carrying a development logger, cancelled when
// the test ends.
func Context(t testing.TB) context.Context {
	ctx := context.Background()
	ctx, cf := context.WithCancel(ctx)
	t.Cleanup(cf)
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	ctx = logctx.NewContext(ctx, l)
	return ctx
}

// WriteFile creates path, and its parent folders, with content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// Contains fails the test unless every snippet appears in lines.
func Contains(t testing.TB, lines []string, snippets ...string) {
	t.Helper()
	text := strings.Join(lines, "\n")
	for _, s := range snippets {
		if !strings.Contains(text, s) {
			t.Fatalf("generated code is missing %q:\n%s", s, text)
		}
	}
}
