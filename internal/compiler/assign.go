package compiler

import (
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// loadName resolves a name for reading: frame scopes, builtins, then the
// variables declared at module level by other processes.
func (c *Compiler) loadName(name string) (any, error) {
	v, ok := c.frame().lookup(name)
	if !ok {
		v, ok = c.builtins.Get(name)
	}
	if !ok {
		v, ok = c.rootVar(name)
	}
	if !ok {
		return nil, scopeErrorf("Undefined variable: %s", name)
	}
	if hv, isv := v.(*value.Value); isv {
		hv = c.em.VarRemap(hv, false)
		c.recordRead(hv)
		return hv, nil
	}
	return v, nil
}

func (c *Compiler) rootVar(name string) (any, bool) {
	rv, ok := c.rootVars[name]
	if !ok {
		return nil, false
	}
	var vspec *value.VSpec
	if init := rv.Init(); init != nil {
		vspec = init.VSpec
	}
	return value.New(rv.DType(), value.NewRef(name, vspec), rv.Kind()), true
}

// storeTarget returns the current binding of name as seen by a write.
func (c *Compiler) storeTarget(name string) (any, bool) {
	v, ok := c.frame().lookup(name)
	if !ok {
		v, ok = c.rootVar(name)
	}
	if hv, isv := v.(*value.Value); ok && isv {
		return c.em.VarRemap(hv, true), true
	}
	return v, ok
}

func isRef(x any) bool {
	v, ok := x.(*value.Value)
	return ok && v.Ref() != nil
}

// assignName implements "name = v". Names bound to hardware variables are
// assigned in the generated code, values carrying an initializer declare a
// new variable, anything else rebinds the name.
func (c *Compiler) assignName(name string, v any) error {
	f := c.frame()
	cur, bound := c.storeTarget(name)
	hv, isValue := v.(*value.Value)
	if isValue && hv.Init() != nil {
		if bound && isRef(cur) {
			if cv := cur.(*value.Value); cv.Kind() != hv.Kind() {
				c.warnf("isreg mismatch on %s redeclaration: %s vs. %s", name, cv.Kind(), hv.Kind())
			}
			return nil
		}
		return c.newVariable(name, hv)
	}
	if c.isPhiWrite(f, name, cur, bound, v) {
		return c.phiStore(f, name, cur, bound, v)
	}
	if bound && isRef(cur) {
		if isValue && hv.IsNone() {
			return nil
		}
		return c.emitAssign(cur.(*value.Value), v)
	}
	if isValue {
		v = hv.Deref()
	}
	f.store(name, v)
	return nil
}

// newVariable declares a variable named after name in the current process
// scope and binds name to it.
func (c *Compiler) newVariable(name string, v *value.Value) error {
	ref, err := c.declareVar(c.revgen.newName(name), v)
	if err != nil {
		return err
	}
	c.frame().store(name, ref)
	return nil
}

// declareVar declares vname with the initializer of v and returns the
// reference to it. Values without an initializer declare registers.
func (c *Compiler) declareVar(vname string, v *value.Value) (*value.Value, error) {
	kind := value.Register
	init := &value.Init{}
	if vi := v.Init(); vi != nil {
		init = &value.Init{Value: vi.Value, VSpec: vi.VSpec}
		kind = v.Kind()
	}
	if err := c.declareScoped(vname, value.New(v.DType(), init, kind)); err != nil {
		return nil, err
	}
	return value.New(v.DType(), value.NewRef(vname, init.VSpec), kind), nil
}

// declareScoped queues a declaration to be emitted when the current process
// scope closes.
func (c *Compiler) declareScoped(vname string, decl *value.Value) error {
	s := c.scope()
	if s == nil {
		return scopeErrorf("Cannot declare %s outside of a process", vname)
	}
	s.addVar(vname, decl)
	c.revgen.reserve(vname)
	c.entSignals[vname] = true
	return nil
}

// emitAssign assigns v to the hardware variable target.
func (c *Compiler) emitAssign(target *value.Value, v any) error {
	if value.IsRORef(target) {
		return scopeErrorf("%s is read-only", target.Name())
	}
	if err := c.em.EmitAssign(target, v); err != nil {
		return err
	}
	c.facts.Driver(facts.DriverRow{
		Entity:      c.curEntity,
		Process:     c.processName(),
		Signal:      c.signalName(target.Name()),
		Conditional: c.frame().inHDL > 0,
	})
	return nil
}

func (c *Compiler) recordRead(v *value.Value) {
	if v.Ref() == nil || c.curEntity == "" || c.scope() == nil {
		return
	}
	c.facts.Read(facts.ReadRow{
		Entity:  c.curEntity,
		Process: c.processName(),
		Signal:  c.signalName(v.Name()),
	})
}

// signalName maps indexed and shadow register names back to the declared
// signal.
func (c *Compiler) signalName(name string) string {
	if i := strings.IndexAny(name, "([ "); i > 0 {
		name = name[:i]
	}
	if base := strings.TrimSuffix(name, "_"); base != name && c.entSignals[base] {
		return base
	}
	return name
}

// assignTarget implements the store half of assignments, for loops and
// with statements.
func (c *Compiler) assignTarget(t host.Expr, v any) error {
	switch x := t.(type) {
	case *host.Name:
		return c.assignName(x.ID, v)
	case *host.Tuple, *host.List:
		return c.unpackTargets(host.Elements(t), v)
	case *host.Attribute:
		obj, err := c.eval(x.X)
		if err != nil {
			return err
		}
		return c.setAttr(obj, x.Attr, v)
	case *host.Subscript:
		obj, err := c.evalStoreBase(x.X)
		if err != nil {
			return err
		}
		if hv, ok := obj.(*value.Value); ok {
			tv, err := c.subscriptValue(hv, x.Index)
			if err != nil {
				return err
			}
			return c.emitAssign(tv, v)
		}
		idx, err := c.eval(x.Index)
		if err != nil {
			return err
		}
		return c.setItem(obj, idx, v)
	}
	return host.Raise("SyntaxError", "cannot assign to %T", t)
}

// unpackTargets destructures v element-wise, with at most one starred
// target collecting the rest.
func (c *Compiler) unpackTargets(targets []host.Expr, v any) error {
	if _, ok := v.(*value.Value); ok {
		return host.Raise("TypeError", "cannot unpack a hardware value")
	}
	items, err := c.iterate(v)
	if err != nil {
		return err
	}
	star := -1
	for i, t := range targets {
		if _, ok := t.(*host.Starred); ok {
			if star >= 0 {
				return host.Raise("SyntaxError", "multiple starred expressions in assignment")
			}
			star = i
		}
	}
	if star < 0 {
		if len(items) != len(targets) {
			return host.Raise("ValueError", "cannot unpack %d values into %d targets", len(items), len(targets))
		}
		for i, t := range targets {
			if err := c.assignTarget(t, items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	after := len(targets) - star - 1
	if len(items) < star+after {
		return host.Raise("ValueError", "not enough values to unpack (expected at least %d, got %d)", star+after, len(items))
	}
	for i := 0; i < star; i++ {
		if err := c.assignTarget(targets[i], items[i]); err != nil {
			return err
		}
	}
	rest := append([]any(nil), items[star:len(items)-after]...)
	if err := c.assignTarget(targets[star].(*host.Starred).X, host.NewList(rest...)); err != nil {
		return err
	}
	for i := 0; i < after; i++ {
		if err := c.assignTarget(targets[star+1+i], items[len(items)-after+i]); err != nil {
			return err
		}
	}
	return nil
}

// evalStoreBase evaluates the container of a subscript store. Hardware
// variables are remapped for writing.
func (c *Compiler) evalStoreBase(x host.Expr) (any, error) {
	if n, ok := x.(*host.Name); ok {
		v, bound := c.storeTarget(n.ID)
		if !bound {
			return nil, scopeErrorf("Undefined variable: %s", n.ID)
		}
		return v, nil
	}
	return c.eval(x)
}
