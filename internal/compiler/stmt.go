package compiler

import (
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

func (c *Compiler) execBody(body []host.Stmt) (ctlSignal, error) {
	for _, s := range body {
		sig, err := c.execStmt(s)
		if err != nil {
			return ctlNormal, err
		}
		if sig != ctlNormal {
			return sig, nil
		}
	}
	return ctlNormal, nil
}

func (c *Compiler) execStmt(s host.Stmt) (ctlSignal, error) {
	f := c.frame()
	f.line = s.Line()
	sig, err := c.dispatchStmt(s)
	if err != nil {
		return ctlNormal, c.annotate(err)
	}
	return sig, nil
}

func (c *Compiler) dispatchStmt(s host.Stmt) (ctlSignal, error) {
	f := c.frame()
	switch st := s.(type) {
	case *host.ExprStmt:
		_, err := c.eval(st.X)
		return ctlNormal, err
	case *host.Assign:
		v, err := c.eval(st.Value)
		if err != nil {
			return ctlNormal, err
		}
		for _, t := range st.Targets {
			if err := c.assignTarget(t, v); err != nil {
				return ctlNormal, err
			}
		}
		return ctlNormal, nil
	case *host.AugAssign:
		return ctlNormal, c.execAugAssign(st)
	case *host.If:
		return c.execIf(st)
	case *host.For:
		return c.execFor(st)
	case *host.While:
		return c.execWhile(st)
	case *host.Break:
		return ctlBreak, nil
	case *host.Continue:
		return ctlContinue, nil
	case *host.Pass:
		return ctlNormal, nil
	case *host.Return:
		return c.execReturn(st)
	case *host.RaiseStmt:
		return ctlNormal, c.execRaise(st)
	case *host.Assert:
		return ctlNormal, c.execAssert(st)
	case *host.Global:
		if f.globalNames == nil {
			f.globalNames = make(map[string]bool)
		}
		for _, n := range st.Names {
			f.globalNames[n] = true
		}
		return ctlNormal, nil
	case *host.Delete:
		for _, t := range st.Targets {
			if err := c.deleteTarget(t); err != nil {
				return ctlNormal, err
			}
		}
		return ctlNormal, nil
	case *host.Import:
		return ctlNormal, c.execImport(st)
	case *host.ImportFrom:
		return ctlNormal, c.execImportFrom(st)
	case *host.FunctionDef:
		fn, err := c.defineFunction(st)
		if err != nil {
			return ctlNormal, err
		}
		f.store(st.Name, fn)
		return ctlNormal, nil
	case *host.ClassDef:
		cls, err := c.defineClass(st)
		if err != nil {
			return ctlNormal, err
		}
		f.store(st.Name, cls)
		return ctlNormal, nil
	case *host.Try:
		return c.execTry(st)
	case *host.With:
		return c.execWith(st)
	case *host.Match:
		return c.execMatch(st)
	}
	return ctlNormal, host.Raise("SyntaxError", "unsupported statement %T", s)
}

func (c *Compiler) execAugAssign(st *host.AugAssign) error {
	rhs, err := c.eval(st.Value)
	if err != nil {
		return err
	}
	switch t := st.Target.(type) {
	case *host.Name:
		cur, err := c.loadName(t.ID)
		if err != nil {
			return err
		}
		if l, ok := cur.(*host.ListObject); ok && st.Op == "+" {
			items, err := c.iterate(rhs)
			if err != nil {
				return err
			}
			l.Elts = append(l.Elts, items...)
			return nil
		}
		nv, err := c.binop(st.Op, cur, rhs)
		if err != nil {
			return err
		}
		return c.assignName(t.ID, nv)
	case *host.Attribute:
		obj, err := c.eval(t.X)
		if err != nil {
			return err
		}
		cur, err := c.getAttr(obj, t.Attr)
		if err != nil {
			return err
		}
		nv, err := c.binop(st.Op, cur, rhs)
		if err != nil {
			return err
		}
		return c.setAttr(obj, t.Attr, nv)
	case *host.Subscript:
		obj, err := c.evalStoreBase(t.X)
		if err != nil {
			return err
		}
		if v, ok := obj.(*value.Value); ok {
			tv, err := c.subscriptValue(v, t.Index)
			if err != nil {
				return err
			}
			nv, err := c.binop(st.Op, tv, rhs)
			if err != nil {
				return err
			}
			return c.emitAssign(tv, nv)
		}
		idx, err := c.eval(t.Index)
		if err != nil {
			return err
		}
		cur, err := c.getItem(obj, idx)
		if err != nil {
			return err
		}
		nv, err := c.binop(st.Op, cur, rhs)
		if err != nil {
			return err
		}
		return c.setItem(obj, idx, nv)
	}
	return host.Raise("SyntaxError", "illegal expression for augmented assignment")
}

func (c *Compiler) execIf(st *host.If) (ctlSignal, error) {
	test, err := c.eval(st.Test)
	if err != nil {
		return ctlNormal, err
	}
	if hv, ok := test.(*value.Value); ok {
		if err := c.Builder().allowed(); err != nil {
			return ctlNormal, err
		}
		return c.hdlIf(hv, st)
	}
	t, err := c.truth(test)
	if err != nil {
		return ctlNormal, err
	}
	if t {
		return c.execBody(st.Body)
	}
	return c.execBody(st.Orelse)
}

func (c *Compiler) pushChain() *branchChain {
	f := c.frame()
	ch := newBranchChain(f)
	f.chains = append(f.chains, ch)
	return ch
}

func (c *Compiler) popChain() {
	f := c.frame()
	f.chains = f.chains[:len(f.chains)-1]
}

// hdlIf emits a conditional. Elif tests which turn out to be host values
// fold: a false one drops its arm, a true one becomes the else arm.
func (c *Compiler) hdlIf(test *value.Value, st *host.If) (ctlSignal, error) {
	if c.scope() == nil {
		return ctlNormal, scopeErrorf("hardware conditional outside of a process")
	}
	ch := c.pushChain()
	defer c.popChain()

	if err := c.em.EmitIf(test); err != nil {
		return ctlNormal, err
	}
	if _, err := c.runArm(ch, nil, st.Body); err != nil {
		return ctlNormal, err
	}
	orelse := st.Orelse
	for len(orelse) == 1 {
		elif, ok := orelse[0].(*host.If)
		if !ok {
			break
		}
		c.frame().line = elif.Line()
		etest, err := c.eval(elif.Test)
		if err != nil {
			return ctlNormal, err
		}
		if hv, ok := etest.(*value.Value); ok {
			if err := c.em.EmitElif(hv); err != nil {
				return ctlNormal, err
			}
			if _, err := c.runArm(ch, nil, elif.Body); err != nil {
				return ctlNormal, err
			}
			orelse = elif.Orelse
			continue
		}
		t, err := c.truth(etest)
		if err != nil {
			return ctlNormal, err
		}
		if t {
			orelse = elif.Body
			break
		}
		orelse = elif.Orelse
	}

	var implicit *emitter.Placement
	if len(orelse) > 0 {
		c.em.EmitElse()
		if _, err := c.runArm(ch, nil, orelse); err != nil {
			return ctlNormal, err
		}
	} else {
		implicit = c.em.CreatePlacement(1)
		ch.emptyArm(c.phiState(), implicit)
	}
	if err := c.reconcile(ch); err != nil {
		return ctlNormal, err
	}
	if implicit != nil && implicit.Len() > 0 {
		c.em.EmitElse()
		c.em.AppendPlacement(implicit)
	}
	c.em.EmitEndIf()
	return ctlNormal, nil
}

func (c *Compiler) execFor(st *host.For) (ctlSignal, error) {
	iter, err := c.eval(st.Iter)
	if err != nil {
		return ctlNormal, err
	}
	items, err := c.iterate(iter)
	if err != nil {
		return ctlNormal, err
	}
	for _, it := range items {
		if err := c.assignTarget(st.Target, it); err != nil {
			return ctlNormal, err
		}
		sig, err := c.execBody(st.Body)
		if err != nil {
			return ctlNormal, err
		}
		switch sig {
		case ctlBreak:
			return ctlNormal, nil
		case ctlReturn:
			return ctlReturn, nil
		}
	}
	return c.execBody(st.Orelse)
}

func (c *Compiler) execWhile(st *host.While) (ctlSignal, error) {
	for {
		test, err := c.eval(st.Test)
		if err != nil {
			return ctlNormal, err
		}
		if _, ok := test.(*value.Value); ok {
			return ctlNormal, types.Errorf("while condition cannot depend on a hardware value")
		}
		t, err := c.truth(test)
		if err != nil {
			return ctlNormal, err
		}
		if !t {
			break
		}
		sig, err := c.execBody(st.Body)
		if err != nil {
			return ctlNormal, err
		}
		switch sig {
		case ctlBreak:
			return ctlNormal, nil
		case ctlReturn:
			return ctlReturn, nil
		}
	}
	return c.execBody(st.Orelse)
}

func (c *Compiler) execReturn(st *host.Return) (ctlSignal, error) {
	f := c.frame()
	var v any
	if st.Value != nil {
		var err error
		if v, err = c.eval(st.Value); err != nil {
			return ctlNormal, err
		}
	}
	if f.inHDL > 0 {
		f.returns = append(f.returns, pendingReturn{value: v, place: c.em.EmitPlacement(0)})
		return ctlReturn, nil
	}
	f.retval, f.hasRet = v, true
	return ctlReturn, nil
}

func (c *Compiler) execRaise(st *host.RaiseStmt) error {
	if st.Exc == nil {
		if n := len(c.excStack); n > 0 {
			return &HostError{Exc: c.excStack[n-1]}
		}
		return host.Raise("RuntimeError", "No active exception to reraise")
	}
	x, err := c.eval(st.Exc)
	if err != nil {
		return err
	}
	if cls, ok := x.(*host.Class); ok {
		if x, err = c.call(cls, nil, nil); err != nil {
			return err
		}
	}
	inst, ok := x.(*host.Instance)
	if !ok || !inst.Class.IsSubclass(c.cls.baseException) {
		return host.Raise("TypeError", "exceptions must derive from BaseException")
	}
	return &HostError{Exc: inst}
}

func (c *Compiler) execAssert(st *host.Assert) error {
	test, err := c.eval(st.Test)
	if err != nil {
		return err
	}
	if hv, ok := test.(*value.Value); ok {
		var parts []string
		if st.Msg != nil {
			if parts, err = c.formatParts(st.Msg); err != nil {
				return err
			}
		}
		return c.em.EmitAssert(hv, parts)
	}
	t, err := c.truth(test)
	if err != nil || t {
		return err
	}
	var args []any
	if st.Msg != nil {
		msg, err := c.eval(st.Msg)
		if err != nil {
			return err
		}
		args = append(args, msg)
	}
	exc, err := c.newException("AssertionError", args...)
	if err != nil {
		return err
	}
	return &HostError{Exc: exc}
}

func (c *Compiler) execTry(st *host.Try) (ctlSignal, error) {
	sig, err := c.execBody(st.Body)
	if err != nil && catchable(err) {
		exc := c.excInstance(err)
		for _, h := range st.Handlers {
			match := h.Type == nil
			if !match {
				ht, herr := c.eval(h.Type)
				if herr != nil {
					return ctlNormal, herr
				}
				match = c.excMatches(exc, ht)
			}
			if !match {
				continue
			}
			if h.Name != "" {
				c.frame().store(h.Name, exc)
			}
			c.excStack = append(c.excStack, exc)
			sig, err = c.execBody(h.Body)
			c.excStack = c.excStack[:len(c.excStack)-1]
			break
		}
	} else if err == nil && sig == ctlNormal {
		sig, err = c.execBody(st.Orelse)
	}
	if len(st.Finally) > 0 {
		fsig, ferr := c.execBody(st.Finally)
		if ferr != nil {
			return ctlNormal, ferr
		}
		if fsig != ctlNormal {
			return fsig, nil
		}
	}
	return sig, err
}

// ctxManager is a context manager implemented in Go.
type ctxManager struct {
	enter func() (any, error)
	exit  func() error
}

func (c *Compiler) execWith(st *host.With) (ctlSignal, error) {
	var exits []func(err error) (bool, error)
	runExits := func(err error) (bool, error) {
		suppress := false
		for i := len(exits) - 1; i >= 0; i-- {
			s, xerr := exits[i](err)
			if xerr != nil {
				return false, xerr
			}
			suppress = suppress || s
		}
		return suppress, nil
	}
	for _, item := range st.Items {
		cm, err := c.eval(item.Context)
		if err != nil {
			_, _ = runExits(err)
			return ctlNormal, err
		}
		entered, exit, err := c.enterContext(cm)
		if err != nil {
			_, _ = runExits(err)
			return ctlNormal, err
		}
		exits = append(exits, exit)
		if item.Target != nil {
			if err := c.assignTarget(item.Target, entered); err != nil {
				_, _ = runExits(err)
				return ctlNormal, err
			}
		}
	}
	sig, err := c.execBody(st.Body)
	suppress, xerr := runExits(err)
	if xerr != nil {
		return ctlNormal, xerr
	}
	if err != nil && suppress && catchable(err) {
		return ctlNormal, nil
	}
	return sig, err
}

func (c *Compiler) enterContext(cm any) (any, func(error) (bool, error), error) {
	switch m := cm.(type) {
	case *ctxManager:
		v, err := m.enter()
		if err != nil {
			return nil, nil, err
		}
		return v, func(error) (bool, error) { return false, m.exit() }, nil
	case *host.Instance:
		enter, err := c.getAttr(m, "__enter__")
		if err != nil {
			return nil, nil, err
		}
		exit, err := c.getAttr(m, "__exit__")
		if err != nil {
			return nil, nil, err
		}
		v, err := c.call(enter, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		return v, func(berr error) (bool, error) {
			args := []any{nil, nil, nil}
			if berr != nil && catchable(berr) {
				exc := c.excInstance(berr)
				args = []any{exc.Class, exc, nil}
			}
			r, err := c.call(exit, args, nil)
			if err != nil {
				return false, err
			}
			t, err := c.truth(r)
			return t, err
		}, nil
	}
	return nil, nil, host.Raise("TypeError", "'%s' object does not support the context manager protocol", host.TypeName(cm))
}

func (c *Compiler) execMatch(st *host.Match) (ctlSignal, error) {
	subj, err := c.eval(st.Subject)
	if err != nil {
		return ctlNormal, err
	}
	if hv, ok := subj.(*value.Value); ok {
		return c.hdlMatch(hv, st)
	}
	f := c.frame()
	for _, mc := range st.Cases {
		f.line = mc.Line
		matched := len(mc.Patterns) == 0
		for _, p := range mc.Patterns {
			switch pt := p.(type) {
			case *host.MatchCapture:
				if pt.Name != "" {
					if err := c.assignName(pt.Name, subj); err != nil {
						return ctlNormal, err
					}
				}
				matched = true
			case *host.MatchValue:
				pv, err := c.eval(pt.Value)
				if err != nil {
					return ctlNormal, err
				}
				matched = c.equal(subj, pv)
			}
			if matched {
				break
			}
		}
		if matched && mc.Guard != nil {
			g, err := c.eval(mc.Guard)
			if err != nil {
				return ctlNormal, err
			}
			if matched, err = c.truth(g); err != nil {
				return ctlNormal, err
			}
		}
		if matched {
			return c.execBody(mc.Body)
		}
	}
	return ctlNormal, nil
}

// hdlMatch emits a case statement. Every arm is generated into its own
// placement; or-patterns share it.
func (c *Compiler) hdlMatch(subj *value.Value, st *host.Match) (ctlSignal, error) {
	if c.scope() == nil {
		return ctlNormal, scopeErrorf("hardware match outside of a process")
	}
	ch := c.pushChain()
	defer c.popChain()

	var cases []emitter.MatchCase
	hasDefault := false
	for _, mc := range st.Cases {
		c.frame().line = mc.Line
		if mc.Guard != nil {
			return ctlNormal, types.Errorf("Guards are not supported when matching hardware values")
		}
		scope := c.em.CreatePlacement(2)
		if len(mc.Patterns) == 0 {
			hasDefault = true
			cases = append(cases, emitter.MatchCase{Scope: scope})
		}
		for _, p := range mc.Patterns {
			var pattern any
			switch pt := p.(type) {
			case *host.MatchCapture:
				if pt.Name != "" {
					v, err := c.loadName(pt.Name)
					if err != nil {
						return ctlNormal, err
					}
					pattern = v
				}
			case *host.MatchValue:
				v, err := c.eval(pt.Value)
				if err != nil {
					return ctlNormal, err
				}
				pattern = v
			}
			if pattern == nil {
				hasDefault = true
			}
			cases = append(cases, emitter.MatchCase{Pattern: pattern, Scope: scope})
		}
		if _, err := c.runArm(ch, scope, mc.Body); err != nil {
			return ctlNormal, err
		}
	}
	if !hasDefault {
		scope := c.em.CreatePlacement(2)
		ch.emptyArm(c.phiState(), scope)
		cases = append(cases, emitter.MatchCase{Scope: scope})
	}
	if err := c.reconcile(ch); err != nil {
		return ctlNormal, err
	}
	return ctlNormal, c.em.EmitMatchCases(subj, cases)
}

func (c *Compiler) deleteTarget(t host.Expr) error {
	switch x := t.(type) {
	case *host.Name:
		f := c.frame()
		ns := f.locals
		if f.isGlobal(x.ID) {
			ns = f.globals
		}
		if !ns.Delete(x.ID) {
			return host.Raise("NameError", "name '%s' is not defined", x.ID)
		}
		return nil
	case *host.Subscript:
		obj, err := c.eval(x.X)
		if err != nil {
			return err
		}
		idx, err := c.eval(x.Index)
		if err != nil {
			return err
		}
		return host.DelItem(obj, idx)
	case *host.Attribute:
		obj, err := c.eval(x.X)
		if err != nil {
			return err
		}
		if inst, ok := obj.(*host.Instance); ok && inst.Dict.Delete(x.Attr) {
			return nil
		}
		return host.Raise("AttributeError", "cannot delete attribute '%s'", x.Attr)
	case *host.Tuple, *host.List:
		for _, e := range host.Elements(t) {
			if err := c.deleteTarget(e); err != nil {
				return err
			}
		}
		return nil
	}
	return host.Raise("SyntaxError", "cannot delete expression")
}
