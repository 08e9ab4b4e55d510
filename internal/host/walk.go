package host

// Walk visits n and its children depth first. Children are skipped when fn
// returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	walkStmts := func(body []Stmt) {
		for _, s := range body {
			Walk(s, fn)
		}
	}
	walkExpr := func(xs ...Expr) {
		for _, x := range xs {
			if x != nil {
				Walk(x, fn)
			}
		}
	}
	walkGens := func(gens []Comprehension) {
		for _, g := range gens {
			walkExpr(g.Target, g.Iter)
			walkExpr(g.Ifs...)
		}
	}
	switch x := n.(type) {
	case *Module:
		walkStmts(x.Body)
	case *FunctionDef:
		walkExpr(x.Decorators...)
		walkStmts(x.Body)
	case *ClassDef:
		walkExpr(x.Bases...)
		walkExpr(x.Decorators...)
		walkStmts(x.Body)
	case *Assign:
		walkExpr(x.Targets...)
		walkExpr(x.Value)
	case *AugAssign:
		walkExpr(x.Target, x.Value)
	case *ExprStmt:
		walkExpr(x.X)
	case *If:
		walkExpr(x.Test)
		walkStmts(x.Body)
		walkStmts(x.Orelse)
	case *For:
		walkExpr(x.Target, x.Iter)
		walkStmts(x.Body)
		walkStmts(x.Orelse)
	case *While:
		walkExpr(x.Test)
		walkStmts(x.Body)
		walkStmts(x.Orelse)
	case *Return:
		walkExpr(x.Value)
	case *RaiseStmt:
		walkExpr(x.Exc)
	case *Assert:
		walkExpr(x.Test, x.Msg)
	case *Delete:
		walkExpr(x.Targets...)
	case *Try:
		walkStmts(x.Body)
		for _, h := range x.Handlers {
			walkExpr(h.Type)
			walkStmts(h.Body)
		}
		walkStmts(x.Orelse)
		walkStmts(x.Finally)
	case *With:
		for _, it := range x.Items {
			walkExpr(it.Context, it.Target)
		}
		walkStmts(x.Body)
	case *Match:
		walkExpr(x.Subject)
		for _, mc := range x.Cases {
			for _, p := range mc.Patterns {
				if p != nil {
					Walk(p, fn)
				}
			}
			walkExpr(mc.Guard)
			walkStmts(mc.Body)
		}
	case *MatchValue:
		walkExpr(x.Value)
	case *FString:
		for _, p := range x.Parts {
			walkExpr(p.X)
		}
	case *BinOp:
		walkExpr(x.L, x.R)
	case *UnaryExpr:
		walkExpr(x.X)
	case *BoolOp:
		walkExpr(x.Values...)
	case *CompareExpr:
		walkExpr(x.Left)
		walkExpr(x.Comps...)
	case *Call:
		walkExpr(x.Func)
		for _, a := range x.Args {
			walkExpr(a.Value)
		}
		for _, k := range x.Keywords {
			walkExpr(k.Value)
		}
	case *Attribute:
		walkExpr(x.X)
	case *Subscript:
		walkExpr(x.X, x.Index)
	case *Slice:
		walkExpr(x.Lo, x.Hi, x.Step)
	case *List:
		walkExpr(x.Elts...)
	case *Tuple:
		walkExpr(x.Elts...)
	case *Set:
		walkExpr(x.Elts...)
	case *Dict:
		walkExpr(x.Keys...)
		walkExpr(x.Values...)
	case *IfExp:
		walkExpr(x.Test, x.Body, x.Orelse)
	case *Lambda:
		walkExpr(x.Body)
	case *Comp:
		walkExpr(x.Elt)
		walkGens(x.Generators)
	case *DictComp:
		walkExpr(x.Key, x.Value)
		walkGens(x.Generators)
	case *NamedExpr:
		walkExpr(x.Value)
	case *Starred:
		walkExpr(x.X)
	case *Yield:
		walkExpr(x.Value)
	}
}

// IsGenerator reports whether a function body yields. Nested function
// definitions and lambdas are not looked into.
func IsGenerator(body []Stmt) bool {
	found := false
	for _, s := range body {
		Walk(s, func(n Node) bool {
			switch n.(type) {
			case *Yield:
				found = true
			case *FunctionDef, *ClassDef, *Lambda:
				return false
			}
			return !found
		})
	}
	return found
}
