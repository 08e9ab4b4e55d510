package compiler

import (
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/host"
)

// fmtToken is a piece of a simulation format string: literal text, or the
// source of a {...} expression.
type fmtToken struct {
	text string
	expr bool
}

// splitFormat breaks s at its {expr} references. A brace preceded or
// followed by another brace is literal text, and "}}" may appear within an
// expression.
func splitFormat(s string) []fmtToken {
	var toks []fmtToken
	lit := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '{' || (i > 0 && s[i-1] == '{') || i+1 >= len(s) || s[i+1] == '{' {
			continue
		}
		end := -1
		for j := i + 2; j < len(s); j++ {
			if s[j] != '}' {
				continue
			}
			if j+2 < len(s) && s[j+1] == '}' && s[j+2] != '}' {
				j++
				continue
			}
			end = j
			break
		}
		if i+1 < len(s) && s[i+1] == '}' {
			end = -1
		}
		if end < 0 {
			continue
		}
		if lit < i {
			toks = append(toks, fmtToken{text: s[lit:i]})
		}
		toks = append(toks, fmtToken{text: s[i+1 : end], expr: true})
		lit = end + 1
		i = end
	}
	if lit < len(s) {
		toks = append(toks, fmtToken{text: s[lit:]})
	}
	return toks
}

// formatParts evaluates the message of a hardware assert.
func (c *Compiler) formatParts(x host.Expr) ([]string, error) {
	v, err := c.eval(x)
	if err != nil {
		return nil, err
	}
	s, err := c.str(v)
	if err != nil {
		return nil, err
	}
	return c.messageParts(s, nil)
}

// messageParts turns a format string into backend message parts: quoted
// literals and the string conversion of each referenced expression. The
// expressions see kw on top of the current locals. Backend tokens, like
// NOW, are expanded by the emitter.
func (c *Compiler) messageParts(s string, kw *host.Namespace) ([]string, error) {
	var parts []string
	for _, tok := range splitFormat(s) {
		if !tok.expr {
			parts = append(parts, c.em.QuoteString(tok.text))
			continue
		}
		if text, ok := c.em.EvalToken(strings.TrimSpace(tok.text)); ok {
			parts = append(parts, text)
			continue
		}
		v, err := c.evalSource(tok.text, kw)
		if err != nil {
			return nil, err
		}
		text, err := c.em.EvalToString(v)
		if err != nil {
			return nil, err
		}
		parts = append(parts, text)
	}
	return parts, nil
}

// resolveCode expands the {expr} references of inline backend code with
// the backend spelling of their values.
func (c *Compiler) resolveCode(code string, kw *host.Namespace) (string, error) {
	var sb strings.Builder
	for _, tok := range splitFormat(code) {
		if !tok.expr {
			sb.WriteString(tok.text)
			continue
		}
		if text, ok := c.em.EvalToken(strings.TrimSpace(tok.text)); ok {
			sb.WriteString(text)
			continue
		}
		v, err := c.evalSource(tok.text, kw)
		if err != nil {
			return "", err
		}
		sb.WriteString(c.em.SValueOf(v))
	}
	return sb.String(), nil
}

// pushChildFrame pushes a frame seeing the current locals, with kw layered
// on top. Hardware branch state is shared with the caller.
func (c *Compiler) pushChildFrame(kw *host.Namespace, name string) *frame {
	caller := c.frame()
	locals := caller.locals.Clone()
	if kw != nil {
		locals.Update(kw)
	}
	f := c.pushFrame(caller.globals, locals, caller.closure, caller.file, name)
	f.globalNames = caller.globalNames
	f.line = caller.line
	f.class, f.self = caller.class, caller.self
	f.inHDL = caller.inHDL
	f.chains = caller.chains
	return f
}

// evalSource evaluates an expression source in a child frame.
func (c *Compiler) evalSource(src string, kw *host.Namespace) (any, error) {
	x, err := c.parser.ParseExpr(c.ctx, strings.TrimSpace(src))
	if err != nil {
		return nil, err
	}
	c.pushChildFrame(kw, "<eval>")
	defer c.popFrame()
	return c.eval(x)
}

// execSource runs statements in a child frame. Locals the code binds, other
// than kw, are written back to the calling frame.
func (c *Compiler) execSource(src string, kw *host.Namespace) error {
	stmts, err := c.parser.ParseStmts(c.ctx, host.Dedent(src))
	if err != nil {
		return err
	}
	caller := c.frame()
	f := c.pushChildFrame(kw, "<exec>")
	_, err = c.execBody(stmts)
	c.popFrame()
	if err != nil {
		return err
	}
	for _, name := range f.locals.Keys() {
		if kw != nil {
			if _, ok := kw.Get(name); ok {
				continue
			}
		}
		v, _ := f.locals.Get(name)
		if cur, ok := caller.locals.Get(name); ok && host.Is(cur, v) {
			continue
		}
		caller.store(name, v)
	}
	return nil
}
