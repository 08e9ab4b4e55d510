package host

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxError is a source that tree-sitter could not parse, or a construct
// the host language does not accept.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: syntax error: %s", e.File, e.Line, e.Msg)
}

// converter walks one tree-sitter tree into host nodes.
type converter struct {
	ctx  context.Context
	file string
	src  []byte
	// line offset applied to snippet parses (f-string expressions)
	base int
	p    *Parser
}

// parseTree runs tree-sitter over src and returns the root node. The caller
// closes the tree.
func parseTree(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return tree, nil
}

// firstError returns the first ERROR or missing node under n.
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if e := firstError(n.Child(i)); e != nil {
			return e
		}
	}
	return n
}

func (c *converter) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1 + c.base
}

func (c *converter) pos(n *sitter.Node) Pos {
	return Pos{Ln: c.line(n)}
}

func (c *converter) text(n *sitter.Node) string {
	return n.Content(c.src)
}

func (c *converter) errorf(n *sitter.Node, format string, args ...any) error {
	return &SyntaxError{File: c.file, Line: c.line(n), Msg: fmt.Sprintf(format, args...)}
}

// named returns the named children of n, comments excluded.
func named(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if t := ch.Type(); t == "comment" || t == "line_continuation" {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// fields returns every child of n bound to the given field name.
func fields(n *sitter.Node, name string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == name {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// suite finds the block of a compound clause, by field when the grammar
// names it and by position otherwise.
func suite(n *sitter.Node, field string) *sitter.Node {
	if b := n.ChildByFieldName(field); b != nil {
		return b
	}
	kids := named(n)
	for i := len(kids) - 1; i >= 0; i-- {
		if kids[i].Type() == "block" {
			return kids[i]
		}
	}
	return nil
}

func (c *converter) module(root *sitter.Node) (*Module, error) {
	body, err := c.stmts(root)
	if err != nil {
		return nil, err
	}
	return &Module{Pos: Pos{Ln: 1}, Filename: c.file, Body: body}, nil
}

func (c *converter) block(n *sitter.Node) ([]Stmt, error) {
	if n == nil {
		return nil, nil
	}
	return c.stmts(n)
}

func (c *converter) stmts(n *sitter.Node) ([]Stmt, error) {
	var out []Stmt
	for _, ch := range named(n) {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		st, err := c.stmt(ch)
		if err != nil {
			return nil, err
		}
		out = append(out, st...)
	}
	return out, nil
}

func (c *converter) stmt(n *sitter.Node) ([]Stmt, error) {
	pos := c.pos(n)
	switch n.Type() {
	case "expression_statement":
		kids := named(n)
		if len(kids) == 1 {
			switch kids[0].Type() {
			case "assignment":
				return c.assignment(kids[0])
			case "augmented_assignment":
				st, err := c.augAssign(kids[0])
				return []Stmt{st}, err
			}
		}
		x, err := c.exprList(kids, n)
		if err != nil {
			return nil, err
		}
		return []Stmt{&ExprStmt{Pos: pos, X: x}}, nil
	case "pass_statement":
		return []Stmt{&Pass{Pos: pos}}, nil
	case "break_statement":
		return []Stmt{&Break{Pos: pos}}, nil
	case "continue_statement":
		return []Stmt{&Continue{Pos: pos}}, nil
	case "return_statement":
		st := &Return{Pos: pos}
		if kids := named(n); len(kids) > 0 {
			v, err := c.exprList(kids, n)
			if err != nil {
				return nil, err
			}
			st.Value = v
		}
		return []Stmt{st}, nil
	case "raise_statement":
		st := &RaiseStmt{Pos: pos}
		if kids := named(n); len(kids) > 0 {
			v, err := c.expr(kids[0])
			if err != nil {
				return nil, err
			}
			st.Exc = v
		}
		return []Stmt{st}, nil
	case "assert_statement":
		kids := named(n)
		st := &Assert{Pos: pos}
		var err error
		if st.Test, err = c.expr(kids[0]); err != nil {
			return nil, err
		}
		if len(kids) > 1 {
			if st.Msg, err = c.expr(kids[1]); err != nil {
				return nil, err
			}
		}
		return []Stmt{st}, nil
	case "global_statement", "nonlocal_statement":
		st := &Global{Pos: pos}
		for _, k := range named(n) {
			st.Names = append(st.Names, c.text(k))
		}
		return []Stmt{st}, nil
	case "delete_statement":
		st := &Delete{Pos: pos}
		for _, k := range named(n) {
			x, err := c.expr(k)
			if err != nil {
				return nil, err
			}
			if els := Elements(x); els != nil && k.Type() == "expression_list" {
				st.Targets = append(st.Targets, els...)
			} else {
				st.Targets = append(st.Targets, x)
			}
		}
		return []Stmt{st}, nil
	case "import_statement":
		st := &Import{Pos: pos}
		for _, k := range fields(n, "name") {
			st.Names = append(st.Names, c.alias(k))
		}
		return []Stmt{st}, nil
	case "import_from_statement":
		st := &ImportFrom{Pos: pos}
		if m := n.ChildByFieldName("module_name"); m != nil {
			st.Module = c.text(m)
		}
		for _, k := range fields(n, "name") {
			st.Names = append(st.Names, c.alias(k))
		}
		for _, k := range named(n) {
			if k.Type() == "wildcard_import" {
				st.Names = append(st.Names, Alias{Name: "*"})
			}
		}
		return []Stmt{st}, nil
	case "future_import_statement":
		return nil, nil
	case "if_statement":
		st, err := c.ifStmt(n)
		return []Stmt{st}, err
	case "for_statement":
		st, err := c.forStmt(n)
		return []Stmt{st}, err
	case "while_statement":
		st := &While{Pos: pos}
		var err error
		if st.Test, err = c.expr(n.ChildByFieldName("condition")); err != nil {
			return nil, err
		}
		if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
			return nil, err
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			if st.Orelse, err = c.block(suite(alt, "body")); err != nil {
				return nil, err
			}
		}
		return []Stmt{st}, nil
	case "try_statement":
		st, err := c.tryStmt(n)
		return []Stmt{st}, err
	case "with_statement":
		st, err := c.withStmt(n)
		return []Stmt{st}, err
	case "match_statement":
		st, err := c.matchStmt(n)
		return []Stmt{st}, err
	case "function_definition":
		st, err := c.funcDef(n, nil)
		return []Stmt{st}, err
	case "class_definition":
		st, err := c.classDef(n, nil)
		return []Stmt{st}, err
	case "decorated_definition":
		var decs []Expr
		for _, k := range named(n) {
			if k.Type() != "decorator" {
				continue
			}
			kids := named(k)
			if len(kids) == 0 {
				return nil, c.errorf(k, "empty decorator")
			}
			d, err := c.expr(kids[0])
			if err != nil {
				return nil, err
			}
			decs = append(decs, d)
		}
		def := n.ChildByFieldName("definition")
		if def == nil {
			return nil, c.errorf(n, "decorator without definition")
		}
		if def.Type() == "class_definition" {
			st, err := c.classDef(def, decs)
			return []Stmt{st}, err
		}
		st, err := c.funcDef(def, decs)
		return []Stmt{st}, err
	}
	return nil, c.errorf(n, "unsupported statement %q", n.Type())
}

func (c *converter) alias(n *sitter.Node) Alias {
	if n.Type() == "aliased_import" {
		return Alias{Name: c.text(n.ChildByFieldName("name")), AsName: c.text(n.ChildByFieldName("alias"))}
	}
	return Alias{Name: c.text(n)}
}

func (c *converter) assignment(n *sitter.Node) ([]Stmt, error) {
	st := &Assign{Pos: c.pos(n)}
	cur := n
	for {
		left := cur.ChildByFieldName("left")
		t, err := c.expr(left)
		if err != nil {
			return nil, err
		}
		st.Targets = append(st.Targets, t)
		right := cur.ChildByFieldName("right")
		if right == nil {
			// Bare annotation "x: int".
			return nil, nil
		}
		if right.Type() == "assignment" {
			cur = right
			continue
		}
		if st.Value, err = c.expr(right); err != nil {
			return nil, err
		}
		return []Stmt{st}, nil
	}
}

func (c *converter) augAssign(n *sitter.Node) (Stmt, error) {
	st := &AugAssign{Pos: c.pos(n)}
	var err error
	if st.Target, err = c.expr(n.ChildByFieldName("left")); err != nil {
		return nil, err
	}
	op := c.text(n.ChildByFieldName("operator"))
	st.Op = strings.TrimSuffix(op, "=")
	if st.Value, err = c.expr(n.ChildByFieldName("right")); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *converter) ifStmt(n *sitter.Node) (Stmt, error) {
	st := &If{Pos: c.pos(n)}
	var err error
	if st.Test, err = c.expr(n.ChildByFieldName("condition")); err != nil {
		return nil, err
	}
	if st.Body, err = c.block(n.ChildByFieldName("consequence")); err != nil {
		return nil, err
	}
	// Fold "elif" clauses into nested If statements, innermost last.
	tail := st
	for _, alt := range fields(n, "alternative") {
		switch alt.Type() {
		case "elif_clause":
			nested := &If{Pos: c.pos(alt)}
			if nested.Test, err = c.expr(alt.ChildByFieldName("condition")); err != nil {
				return nil, err
			}
			if nested.Body, err = c.block(alt.ChildByFieldName("consequence")); err != nil {
				return nil, err
			}
			tail.Orelse = []Stmt{nested}
			tail = nested
		case "else_clause":
			if tail.Orelse, err = c.block(suite(alt, "body")); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

func (c *converter) forStmt(n *sitter.Node) (Stmt, error) {
	st := &For{Pos: c.pos(n)}
	var err error
	if st.Target, err = c.expr(n.ChildByFieldName("left")); err != nil {
		return nil, err
	}
	if st.Iter, err = c.exprList(fields(n, "right"), n); err != nil {
		return nil, err
	}
	if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		if st.Orelse, err = c.block(suite(alt, "body")); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (c *converter) tryStmt(n *sitter.Node) (Stmt, error) {
	st := &Try{Pos: c.pos(n)}
	var err error
	if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	for _, k := range named(n) {
		switch k.Type() {
		case "except_clause", "except_group_clause":
			h := Handler{Line: c.line(k)}
			var exprs []*sitter.Node
			for _, e := range named(k) {
				if e.Type() == "block" {
					if h.Body, err = c.block(e); err != nil {
						return nil, err
					}
				} else {
					exprs = append(exprs, e)
				}
			}
			if len(exprs) > 0 {
				// Newer grammars wrap "E as name" in an as_pattern.
				if exprs[0].Type() == "as_pattern" {
					inner := named(exprs[0])
					exprs = inner
					if a := exprs[len(exprs)-1]; a.Type() == "as_pattern_target" {
						exprs[len(exprs)-1] = named(a)[0]
					}
				}
				if h.Type, err = c.expr(exprs[0]); err != nil {
					return nil, err
				}
				if len(exprs) > 1 {
					h.Name = c.text(exprs[1])
				}
			}
			st.Handlers = append(st.Handlers, h)
		case "else_clause":
			if st.Orelse, err = c.block(suite(k, "body")); err != nil {
				return nil, err
			}
		case "finally_clause":
			if st.Finally, err = c.block(suite(k, "body")); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

func (c *converter) withStmt(n *sitter.Node) (Stmt, error) {
	st := &With{Pos: c.pos(n)}
	var err error
	for _, k := range named(n) {
		if k.Type() != "with_clause" {
			continue
		}
		for _, item := range named(k) {
			if item.Type() != "with_item" {
				continue
			}
			v := item.ChildByFieldName("value")
			if v == nil {
				v = named(item)[0]
			}
			var wi WithItem
			if v.Type() == "as_pattern" {
				kids := named(v)
				if wi.Context, err = c.expr(kids[0]); err != nil {
					return nil, err
				}
				target := v.ChildByFieldName("alias")
				if target == nil {
					target = kids[len(kids)-1]
				}
				if target.Type() == "as_pattern_target" {
					target = named(target)[0]
				}
				if wi.Target, err = c.expr(target); err != nil {
					return nil, err
				}
			} else if wi.Context, err = c.expr(v); err != nil {
				return nil, err
			}
			st.Items = append(st.Items, wi)
		}
	}
	if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *converter) matchStmt(n *sitter.Node) (Stmt, error) {
	st := &Match{Pos: c.pos(n)}
	var err error
	if st.Subject, err = c.exprList(fields(n, "subject"), n); err != nil {
		return nil, err
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil, c.errorf(n, "match without cases")
	}
	for _, cc := range named(body) {
		if cc.Type() != "case_clause" {
			continue
		}
		mc := MatchCase{Line: c.line(cc)}
		var pats []*sitter.Node
		for _, k := range named(cc) {
			if k.Type() == "case_pattern" {
				pats = append(pats, k)
			}
		}
		if len(pats) != 1 {
			return nil, c.errorf(cc, "sequence patterns are not supported")
		}
		if mc.Patterns, err = c.casePattern(pats[0]); err != nil {
			return nil, err
		}
		if g := cc.ChildByFieldName("guard"); g != nil {
			if mc.Guard, err = c.expr(named(g)[0]); err != nil {
				return nil, err
			}
		}
		if mc.Body, err = c.block(cc.ChildByFieldName("consequence")); err != nil {
			return nil, err
		}
		st.Cases = append(st.Cases, mc)
	}
	return st, nil
}

// casePattern returns the alternatives of a case pattern, nil for "_".
func (c *converter) casePattern(n *sitter.Node) ([]Pattern, error) {
	kids := named(n)
	if len(kids) == 0 {
		if strings.TrimSpace(c.text(n)) == "_" {
			return nil, nil
		}
		return nil, c.errorf(n, "unsupported pattern %q", c.text(n))
	}
	if len(kids) == 1 {
		switch k := kids[0]; k.Type() {
		case "union_pattern", "list_pattern", "tuple_pattern":
			if k.Type() != "union_pattern" {
				return nil, c.errorf(k, "sequence patterns are not supported")
			}
			return c.patternSeq(k)
		}
	}
	return c.patternSeq(n)
}

// patternSeq converts the simple patterns among the children of n. A '-'
// token negates the number that follows it.
func (c *converter) patternSeq(n *sitter.Node) ([]Pattern, error) {
	var (
		out []Pattern
		neg bool
	)
	for i := 0; i < int(n.ChildCount()); i++ {
		k := n.Child(i)
		if !k.IsNamed() {
			switch c.text(k) {
			case "-":
				neg = true
			case "_":
				out = append(out, &MatchCapture{Pos: c.pos(k)})
			}
			continue
		}
		if t := k.Type(); t == "comment" {
			continue
		}
		p, err := c.simplePattern(k, neg)
		if err != nil {
			return nil, err
		}
		neg = false
		out = append(out, p)
	}
	for _, p := range out {
		if mc, ok := p.(*MatchCapture); ok && mc.Name == "" && len(out) > 1 {
			return nil, c.errorf(n, "wildcard inside an alternative pattern")
		}
	}
	if len(out) == 1 {
		if mc, ok := out[0].(*MatchCapture); ok && mc.Name == "" {
			return nil, nil
		}
	}
	return out, nil
}

func (c *converter) simplePattern(k *sitter.Node, neg bool) (Pattern, error) {
	pos := c.pos(k)
	switch k.Type() {
	case "case_pattern":
		alts, err := c.casePattern(k)
		if err != nil {
			return nil, err
		}
		if len(alts) != 1 {
			return nil, c.errorf(k, "nested alternative patterns are not supported")
		}
		return alts[0], nil
	case "dotted_name":
		parts := named(k)
		if len(parts) == 1 {
			return &MatchCapture{Pos: pos, Name: c.text(parts[0])}, nil
		}
		var x Expr = &Name{Pos: pos, ID: c.text(parts[0])}
		for _, p := range parts[1:] {
			x = &Attribute{Pos: pos, X: x, Attr: c.text(p)}
		}
		return &MatchValue{Pos: pos, Value: x}, nil
	case "integer", "float", "string", "concatenated_string", "true", "false", "none":
		x, err := c.expr(k)
		if err != nil {
			return nil, err
		}
		if neg {
			x = &UnaryExpr{Pos: pos, Op: "-", X: x}
		}
		return &MatchValue{Pos: pos, Value: x}, nil
	}
	return nil, c.errorf(k, "unsupported pattern %q", c.text(k))
}

func (c *converter) params(n *sitter.Node) ([]Param, error) {
	if n == nil {
		return nil, nil
	}
	var (
		out    []Param
		kwOnly bool
	)
	for _, k := range named(n) {
		var (
			p   Param
			err error
		)
		switch k.Type() {
		case "identifier":
			p.Name = c.text(k)
		case "typed_parameter":
			inner := named(k)[0]
			switch inner.Type() {
			case "list_splat_pattern":
				p.Name, p.Kind = c.text(named(inner)[0]), ParamVarArgs
			case "dictionary_splat_pattern":
				p.Name, p.Kind = c.text(named(inner)[0]), ParamKwArgs
			default:
				p.Name = c.text(inner)
			}
		case "default_parameter", "typed_default_parameter":
			p.Name = c.text(k.ChildByFieldName("name"))
			if p.Default, err = c.expr(k.ChildByFieldName("value")); err != nil {
				return nil, err
			}
		case "list_splat_pattern":
			p.Name, p.Kind = c.text(named(k)[0]), ParamVarArgs
		case "dictionary_splat_pattern":
			p.Name, p.Kind = c.text(named(k)[0]), ParamKwArgs
		case "keyword_separator":
			kwOnly = true
			continue
		case "positional_separator":
			continue
		default:
			return nil, c.errorf(k, "unsupported parameter %q", c.text(k))
		}
		if p.Kind == ParamVarArgs {
			kwOnly = true
		} else if p.Kind == ParamPlain {
			p.KwOnly = kwOnly
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *converter) funcDef(n *sitter.Node, decs []Expr) (Stmt, error) {
	st := &FunctionDef{Pos: c.pos(n), Name: c.text(n.ChildByFieldName("name")), Decorators: decs}
	var err error
	if st.Params, err = c.params(n.ChildByFieldName("parameters")); err != nil {
		return nil, err
	}
	if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *converter) classDef(n *sitter.Node, decs []Expr) (Stmt, error) {
	st := &ClassDef{Pos: c.pos(n), Name: c.text(n.ChildByFieldName("name")), Decorators: decs}
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for _, b := range named(sup) {
			if b.Type() == "keyword_argument" {
				continue
			}
			x, err := c.expr(b)
			if err != nil {
				return nil, err
			}
			st.Bases = append(st.Bases, x)
		}
	}
	var err error
	if st.Body, err = c.block(n.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	return st, nil
}

// exprList converts a comma list; more than one element makes a tuple.
func (c *converter) exprList(kids []*sitter.Node, at *sitter.Node) (Expr, error) {
	if len(kids) == 0 {
		return nil, c.errorf(at, "missing expression")
	}
	if len(kids) == 1 {
		return c.expr(kids[0])
	}
	t := &Tuple{Pos: c.pos(at)}
	for _, k := range kids {
		x, err := c.expr(k)
		if err != nil {
			return nil, err
		}
		t.Elts = append(t.Elts, x)
	}
	return t, nil
}

func (c *converter) exprs(kids []*sitter.Node) ([]Expr, error) {
	out := make([]Expr, 0, len(kids))
	for _, k := range kids {
		x, err := c.expr(k)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (c *converter) expr(n *sitter.Node) (Expr, error) {
	if n == nil {
		return nil, &SyntaxError{File: c.file, Line: c.base, Msg: "missing expression"}
	}
	pos := c.pos(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &Name{Pos: pos, ID: c.text(n)}, nil
	case "integer", "float":
		v, err := parseNumber(c.text(n))
		if err != nil {
			return nil, c.errorf(n, "%v", err)
		}
		return &Constant{Pos: pos, Value: v}, nil
	case "true":
		return &Constant{Pos: pos, Value: true}, nil
	case "false":
		return &Constant{Pos: pos, Value: false}, nil
	case "none":
		return &Constant{Pos: pos, Value: nil}, nil
	case "ellipsis":
		return &Constant{Pos: pos, Value: Ellipsis}, nil
	case "string":
		return c.str(n)
	case "concatenated_string":
		return c.concat(n)
	case "parenthesized_expression":
		kids := named(n)
		if len(kids) == 0 {
			return &Tuple{Pos: pos}, nil
		}
		return c.expr(kids[0])
	case "expression_list", "pattern_list", "tuple", "tuple_pattern":
		elts, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		return &Tuple{Pos: pos, Elts: elts}, nil
	case "list", "list_pattern":
		elts, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		return &List{Pos: pos, Elts: elts}, nil
	case "set":
		elts, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		return &Set{Pos: pos, Elts: elts}, nil
	case "dictionary":
		d := &Dict{Pos: pos}
		for _, k := range named(n) {
			switch k.Type() {
			case "pair":
				key, err := c.expr(k.ChildByFieldName("key"))
				if err != nil {
					return nil, err
				}
				val, err := c.expr(k.ChildByFieldName("value"))
				if err != nil {
					return nil, err
				}
				d.Keys, d.Values = append(d.Keys, key), append(d.Values, val)
			case "dictionary_splat":
				val, err := c.expr(named(k)[0])
				if err != nil {
					return nil, err
				}
				d.Keys, d.Values = append(d.Keys, nil), append(d.Values, val)
			}
		}
		return d, nil
	case "list_splat", "list_splat_pattern":
		x, err := c.expr(named(n)[0])
		if err != nil {
			return nil, err
		}
		return &Starred{Pos: pos, X: x}, nil
	case "binary_operator":
		l, err := c.expr(n.ChildByFieldName("left"))
		if err != nil {
			return nil, err
		}
		r, err := c.expr(n.ChildByFieldName("right"))
		if err != nil {
			return nil, err
		}
		return &BinOp{Pos: pos, Op: c.text(n.ChildByFieldName("operator")), L: l, R: r}, nil
	case "unary_operator":
		x, err := c.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: pos, Op: c.text(n.ChildByFieldName("operator")), X: x}, nil
	case "not_operator":
		x, err := c.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: pos, Op: "not", X: x}, nil
	case "boolean_operator":
		return c.boolOp(n)
	case "comparison_operator":
		return c.compare(n)
	case "conditional_expression":
		kids, err := c.exprs(named(n))
		if err != nil {
			return nil, err
		}
		if len(kids) != 3 {
			return nil, c.errorf(n, "malformed conditional expression")
		}
		return &IfExp{Pos: pos, Body: kids[0], Test: kids[1], Orelse: kids[2]}, nil
	case "attribute":
		x, err := c.expr(n.ChildByFieldName("object"))
		if err != nil {
			return nil, err
		}
		return &Attribute{Pos: pos, X: x, Attr: c.text(n.ChildByFieldName("attribute"))}, nil
	case "subscript":
		x, err := c.expr(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		idx, err := c.exprList(fields(n, "subscript"), n)
		if err != nil {
			return nil, err
		}
		return &Subscript{Pos: pos, X: x, Index: idx}, nil
	case "slice":
		return c.slice(n)
	case "call":
		return c.call(n)
	case "lambda":
		params, err := c.params(n.ChildByFieldName("parameters"))
		if err != nil {
			return nil, err
		}
		body, err := c.expr(n.ChildByFieldName("body"))
		if err != nil {
			return nil, err
		}
		return &Lambda{Pos: pos, Params: params, Body: body}, nil
	case "list_comprehension", "set_comprehension", "generator_expression":
		kind := map[string]string{
			"list_comprehension":   "list",
			"set_comprehension":    "set",
			"generator_expression": "gen",
		}[n.Type()]
		elt, err := c.expr(n.ChildByFieldName("body"))
		if err != nil {
			return nil, err
		}
		gens, err := c.generators(n)
		if err != nil {
			return nil, err
		}
		return &Comp{Pos: pos, Kind: kind, Elt: elt, Generators: gens}, nil
	case "dictionary_comprehension":
		pair := n.ChildByFieldName("body")
		key, err := c.expr(pair.ChildByFieldName("key"))
		if err != nil {
			return nil, err
		}
		val, err := c.expr(pair.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		gens, err := c.generators(n)
		if err != nil {
			return nil, err
		}
		return &DictComp{Pos: pos, Key: key, Value: val, Generators: gens}, nil
	case "named_expression":
		val, err := c.expr(n.ChildByFieldName("value"))
		if err != nil {
			return nil, err
		}
		return &NamedExpr{Pos: pos, Target: c.text(n.ChildByFieldName("name")), Value: val}, nil
	case "yield":
		y := &Yield{Pos: pos}
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "from" {
				y.From = true
			}
		}
		if kids := named(n); len(kids) > 0 {
			v, err := c.exprList(kids, n)
			if err != nil {
				return nil, err
			}
			y.Value = v
		}
		return y, nil
	}
	return nil, c.errorf(n, "unsupported expression %q", n.Type())
}

func (c *converter) boolOp(n *sitter.Node) (Expr, error) {
	op := c.text(n.ChildByFieldName("operator"))
	b := &BoolOp{Pos: c.pos(n), Op: op}
	// Left-associative chains of the same operator flatten into one BoolOp.
	var walk func(x *sitter.Node) error
	walk = func(x *sitter.Node) error {
		if x.Type() == "boolean_operator" && c.text(x.ChildByFieldName("operator")) == op {
			if err := walk(x.ChildByFieldName("left")); err != nil {
				return err
			}
			return walk(x.ChildByFieldName("right"))
		}
		v, err := c.expr(x)
		if err != nil {
			return err
		}
		b.Values = append(b.Values, v)
		return nil
	}
	if err := walk(n); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *converter) compare(n *sitter.Node) (Expr, error) {
	cmp := &CompareExpr{Pos: c.pos(n)}
	var pending []string
	for i := 0; i < int(n.ChildCount()); i++ {
		k := n.Child(i)
		if k.Type() == "comment" {
			continue
		}
		if !k.IsNamed() || n.FieldNameForChild(i) == "operators" {
			pending = append(pending, strings.Join(strings.Fields(c.text(k)), " "))
			continue
		}
		x, err := c.expr(k)
		if err != nil {
			return nil, err
		}
		if cmp.Left == nil {
			cmp.Left = x
			continue
		}
		cmp.Ops = append(cmp.Ops, strings.Join(pending, " "))
		cmp.Comps = append(cmp.Comps, x)
		pending = nil
	}
	return cmp, nil
}

func (c *converter) slice(n *sitter.Node) (Expr, error) {
	s := &Slice{Pos: c.pos(n)}
	slot := 0
	for i := 0; i < int(n.ChildCount()); i++ {
		k := n.Child(i)
		if !k.IsNamed() {
			if c.text(k) == ":" {
				slot++
			}
			continue
		}
		if k.Type() == "comment" {
			continue
		}
		x, err := c.expr(k)
		if err != nil {
			return nil, err
		}
		switch slot {
		case 0:
			s.Lo = x
		case 1:
			s.Hi = x
		default:
			s.Step = x
		}
	}
	return s, nil
}

func (c *converter) call(n *sitter.Node) (Expr, error) {
	fn, err := c.expr(n.ChildByFieldName("function"))
	if err != nil {
		return nil, err
	}
	call := &Call{Pos: c.pos(n), Func: fn}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call, nil
	}
	if args.Type() == "generator_expression" {
		g, err := c.expr(args)
		if err != nil {
			return nil, err
		}
		call.Args = []Arg{{Value: g}}
		return call, nil
	}
	for _, a := range named(args) {
		switch a.Type() {
		case "keyword_argument":
			v, err := c.expr(a.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, Keyword{Name: c.text(a.ChildByFieldName("name")), Value: v})
		case "list_splat":
			v, err := c.expr(named(a)[0])
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, Arg{Value: v, Star: true})
		case "dictionary_splat":
			v, err := c.expr(named(a)[0])
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, Keyword{Value: v})
		default:
			v, err := c.expr(a)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, Arg{Value: v})
		}
	}
	return call, nil
}

func (c *converter) generators(n *sitter.Node) ([]Comprehension, error) {
	var out []Comprehension
	for _, k := range named(n) {
		switch k.Type() {
		case "for_in_clause":
			target, err := c.expr(k.ChildByFieldName("left"))
			if err != nil {
				return nil, err
			}
			iter, err := c.exprList(fields(k, "right"), k)
			if err != nil {
				return nil, err
			}
			out = append(out, Comprehension{Target: target, Iter: iter})
		case "if_clause":
			if len(out) == 0 {
				return nil, c.errorf(k, "comprehension condition before any for clause")
			}
			cond, err := c.expr(named(k)[0])
			if err != nil {
				return nil, err
			}
			last := &out[len(out)-1]
			last.Ifs = append(last.Ifs, cond)
		}
	}
	return out, nil
}

func (c *converter) concat(n *sitter.Node) (Expr, error) {
	var parts []FPart
	for _, k := range named(n) {
		x, err := c.str(k)
		if err != nil {
			return nil, err
		}
		switch v := x.(type) {
		case *Constant:
			parts = append(parts, FPart{Lit: v.Value.(string)})
		case *FString:
			parts = append(parts, v.Parts...)
		}
	}
	return fstringOrConst(c.pos(n), parts), nil
}

func (c *converter) str(n *sitter.Node) (Expr, error) {
	lit, err := splitStringLiteral(c.text(n))
	if err != nil {
		return nil, c.errorf(n, "%v", err)
	}
	if !lit.format {
		s := lit.body
		if !lit.raw {
			if s, err = unescape(s); err != nil {
				return nil, c.errorf(n, "%v", err)
			}
		}
		return &Constant{Pos: c.pos(n), Value: s}, nil
	}
	parts, srcs, err := splitFString(lit.body)
	if err != nil {
		return nil, c.errorf(n, "%v", err)
	}
	j := 0
	for i := range parts {
		if srcs == nil || parts[i].Lit != "" {
			if !lit.raw {
				if parts[i].Lit, err = unescape(parts[i].Lit); err != nil {
					return nil, c.errorf(n, "%v", err)
				}
			}
			continue
		}
		x, err := c.p.ParseExpr(c.ctx, srcs[j])
		if err != nil {
			return nil, c.errorf(n, "in f-string expression %q: %v", srcs[j], err)
		}
		parts[i].X = x
		j++
	}
	return fstringOrConst(c.pos(n), parts), nil
}

func fstringOrConst(pos Pos, parts []FPart) Expr {
	for _, p := range parts {
		if p.X != nil {
			return &FString{Pos: pos, Parts: parts}
		}
	}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Lit)
	}
	return &Constant{Pos: pos, Value: sb.String()}
}
