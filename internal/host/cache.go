package host

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"
)

const defaultCacheSize = 256

// Parser converts host sources into syntax trees. Parsed files and snippets
// are kept in LRU caches keyed by the blake3 digest of their text, so the
// same f-string or xeval expression is parsed once per compile.
type Parser struct {
	files    *lru.Cache[string, *Module]
	exprs    *lru.Cache[string, Expr]
	snippets *lru.Cache[string, []Stmt]
}

// NewParser returns a Parser whose caches hold up to size entries each. A
// size of zero picks the default.
func NewParser(size int) *Parser {
	if size <= 0 {
		size = defaultCacheSize
	}
	files, err := lru.New[string, *Module](size)
	if err != nil {
		panic(err)
	}
	exprs, err := lru.New[string, Expr](size)
	if err != nil {
		panic(err)
	}
	snippets, err := lru.New[string, []Stmt](size)
	if err != nil {
		panic(err)
	}
	return &Parser{files: files, exprs: exprs, snippets: snippets}
}

func cacheKey(parts ...string) string {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ParseFile reads and parses a host source file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return p.Parse(ctx, path, src)
}

// Parse parses src, reported under filename in errors and line info.
func (p *Parser) Parse(ctx context.Context, filename string, src []byte) (*Module, error) {
	key := cacheKey(filename, string(src))
	if m, ok := p.files.Get(key); ok {
		return m, nil
	}
	tree, err := parseTree(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	c := &converter{ctx: ctx, file: filename, src: src, p: p}
	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		return nil, c.errorf(bad, "unexpected %q", excerpt(c.text(bad)))
	}
	m, err := c.module(root)
	if err != nil {
		return nil, err
	}
	p.files.Add(key, m)
	return m, nil
}

// ParseExpr parses a single expression, as used by f-strings and xeval.
func (p *Parser) ParseExpr(ctx context.Context, src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{File: "<expr>", Line: 1, Msg: "empty expression"}
	}
	key := cacheKey("expr", src)
	if x, ok := p.exprs.Get(key); ok {
		return x, nil
	}
	text := []byte("(\n" + src + "\n)")
	tree, err := parseTree(ctx, text)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	c := &converter{ctx: ctx, file: "<expr>", src: text, base: -1, p: p}
	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		return nil, c.errorf(bad, "invalid expression %q", src)
	}
	kids := named(root)
	if len(kids) != 1 || kids[0].Type() != "expression_statement" {
		return nil, &SyntaxError{File: "<expr>", Line: 1, Msg: fmt.Sprintf("not an expression: %q", src)}
	}
	inner := named(kids[0])
	if len(inner) != 1 {
		return nil, &SyntaxError{File: "<expr>", Line: 1, Msg: fmt.Sprintf("not an expression: %q", src)}
	}
	x, err := c.expr(inner[0])
	if err != nil {
		return nil, err
	}
	p.exprs.Add(key, x)
	return x, nil
}

// ParseStmts parses a block of statements, as used by xexec. Common
// leading indentation is removed first.
func (p *Parser) ParseStmts(ctx context.Context, src string) ([]Stmt, error) {
	key := cacheKey("stmts", src)
	if s, ok := p.snippets.Get(key); ok {
		return s, nil
	}
	m, err := p.Parse(ctx, "<exec>", []byte(Dedent(src)))
	if err != nil {
		return nil, err
	}
	p.snippets.Add(key, m.Body)
	return m.Body, nil
}

// Dedent strips the whitespace prefix shared by every non blank line.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := ""
	first := true
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		lead := ln[:len(ln)-len(strings.TrimLeft(ln, " \t"))]
		if first {
			prefix, first = lead, false
			continue
		}
		for !strings.HasPrefix(lead, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, ln := range lines {
		lines[i] = strings.TrimPrefix(ln, prefix)
	}
	return strings.Join(lines, "\n")
}

func excerpt(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}
