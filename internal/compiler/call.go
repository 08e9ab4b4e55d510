package compiler

import (
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

func (c *Compiler) evalCall(x *host.Call) (any, error) {
	fn, err := c.eval(x.Func)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := c.eval(a.Value)
		if err != nil {
			return nil, err
		}
		if a.Star {
			items, err := c.iterate(v)
			if err != nil {
				return nil, err
			}
			args = append(args, items...)
			continue
		}
		args = append(args, v)
	}
	kw := host.NewNamespace()
	for _, k := range x.Keywords {
		v, err := c.eval(k.Value)
		if err != nil {
			return nil, err
		}
		if k.Name != "" {
			if _, dup := kw.Get(k.Name); dup {
				return nil, host.Raise("TypeError", "keyword argument repeated: %s", k.Name)
			}
			kw.Set(k.Name, v)
			continue
		}
		d, ok := v.(*host.DictObject)
		if !ok {
			return nil, host.Raise("TypeError", "argument after ** must be a mapping, not %s", host.TypeName(v))
		}
		ns, err := d.StringKeys()
		if err != nil {
			return nil, err
		}
		for _, name := range ns.Keys() {
			if _, dup := kw.Get(name); dup {
				return nil, host.Raise("TypeError", "got multiple values for keyword argument '%s'", name)
			}
			kv, _ := ns.Get(name)
			kw.Set(name, kv)
		}
	}
	// Callees see hardware arguments read-only.
	for i, a := range args {
		if v, ok := a.(*value.Value); ok {
			args[i] = value.MakeRO(v)
		}
	}
	for _, name := range kw.Keys() {
		if v, ok := kw.Get(name); ok {
			if hv, isv := v.(*value.Value); isv {
				kw.Set(name, value.MakeRO(hv))
			}
		}
	}
	return c.call(fn, args, kw)
}

// call invokes any host callable.
func (c *Compiler) call(fn any, args []any, kw *host.Namespace) (any, error) {
	kw = kwOrEmpty(kw)
	switch f := fn.(type) {
	case *host.Function:
		return c.runFunction(f, args, kw)
	case *host.BoundMethod:
		return c.call(f.Func, append([]any{f.Self}, args...), kw)
	case *Native:
		return f.Fn(&CallCtx{C: c}, args, kw)
	case *methodValue:
		return f.fn(c, f.recv, args, kw)
	case *host.StaticMethod:
		return c.call(f.Func, args, kw)
	case *host.Class:
		return c.callClass(f, args, kw)
	case *host.Instance:
		m, err := c.getAttr(f, "__call__")
		if err != nil {
			return nil, host.Raise("TypeError", "'%s' object is not callable", f.Class.Name)
		}
		return c.call(m, args, kw)
	}
	return nil, host.Raise("TypeError", "'%s' object is not callable", host.TypeName(fn))
}

func (c *Compiler) callClass(cls *host.Class, args []any, kw *host.Namespace) (any, error) {
	if bt, ok := cls.Native.(*builtinType); ok && bt.call != nil {
		return bt.call(&CallCtx{C: c}, args, kw)
	}
	if c.isEntityClass(cls) {
		return c.instantiateEntity(cls, args, kw)
	}
	if ei, ok := cls.Native.(*enumInfo); ok && len(ei.names) > 0 {
		if len(args) != 1 || kw.Len() > 0 {
			return nil, host.Raise("TypeError", "%s() takes exactly one value", cls.Name)
		}
		for _, v := range ei.values {
			if host.Equal(v, args[0]) {
				return v, nil
			}
		}
		return nil, host.Raise("ValueError", "%s is not a valid %s", host.Repr(args[0]), cls.Name)
	}
	inst := host.NewInstance(cls)
	if cls.IsSubclass(c.cls.baseException) {
		inst.Dict.Set("args", host.NewTuple(args...))
	}
	init, _, ok := cls.Lookup("__init__")
	if !ok {
		if len(args) > 0 || kw.Len() > 0 {
			if cls.IsSubclass(c.cls.baseException) {
				return inst, nil
			}
			return nil, host.Raise("TypeError", "%s() takes no arguments", cls.Name)
		}
		return inst, nil
	}
	if _, err := c.call(&host.BoundMethod{Self: inst, Func: init}, args, kw); err != nil {
		return nil, err
	}
	return inst, nil
}

// bindArgs binds call arguments to the parameters of fn. With lenient set,
// keyword arguments matching no parameter are returned in extra instead of
// failing the call.
func (c *Compiler) bindArgs(fn *host.Function, args []any, kw *host.Namespace, lenient bool) (*host.Namespace, *host.Namespace, error) {
	locals := host.NewNamespace()
	extra := host.NewNamespace()
	var kwName string
	i := 0
	for _, p := range fn.Params {
		switch {
		case p.Kind == host.ParamVarArgs:
			rest := []any{}
			if i < len(args) {
				rest = append(rest, args[i:]...)
			}
			locals.Set(p.Name, host.NewTuple(rest...))
			i = len(args)
		case p.Kind == host.ParamKwArgs:
			kwName = p.Name
		case !p.KwOnly && i < len(args):
			locals.Set(p.Name, args[i])
			i++
		}
	}
	if i < len(args) {
		return nil, nil, host.Raise("TypeError", "%s() takes %d positional arguments but %d were given", fn.Name, i, len(args))
	}
	kwDict := host.NewDict()
	for _, name := range kw.Keys() {
		v, _ := kw.Get(name)
		found := false
		for _, p := range fn.Params {
			if p.Kind == host.ParamPlain && p.Name == name {
				found = true
				break
			}
		}
		switch {
		case found:
			if _, dup := locals.Get(name); dup {
				return nil, nil, host.Raise("TypeError", "%s() got multiple values for argument '%s'", fn.Name, name)
			}
			locals.Set(name, v)
		case kwName != "":
			kwDict.SetStr(name, v)
		case lenient:
			extra.Set(name, v)
		default:
			return nil, nil, host.Raise("TypeError", "%s() got an unexpected keyword argument '%s'", fn.Name, name)
		}
	}
	for _, p := range fn.Params {
		if p.Kind != host.ParamPlain {
			continue
		}
		if _, ok := locals.Get(p.Name); ok {
			continue
		}
		dv, ok := fn.Defaults[p.Name]
		if !ok {
			return nil, nil, host.Raise("TypeError", "%s() missing required argument: '%s'", fn.Name, p.Name)
		}
		locals.Set(p.Name, dv)
	}
	if kwName != "" {
		locals.Set(kwName, kwDict)
	}
	return locals, extra, nil
}

func isHDLFunction(fn *host.Function) bool {
	_, ok := fn.Attr(hdlAttr)
	return ok
}

// runFunction runs fn in a new frame. Hardware functions accept extra
// keyword arguments, which become locals of the call: this is how
// processes see the entity ports.
func (c *Compiler) runFunction(fn *host.Function, args []any, kw *host.Namespace) (any, error) {
	locals, extra, err := c.bindArgs(fn, args, kw, isHDLFunction(fn))
	if err != nil {
		return nil, err
	}
	for _, name := range extra.Keys() {
		v, _ := extra.Get(name)
		locals.Set(name, v)
	}
	f := c.pushFrame(fn.Globals, locals, fn.Closure, fn.File, fn.Name)
	defer c.popFrame()
	f.line = fn.Line
	if cls, ok := fn.Attr("__class__"); ok {
		f.class, _ = cls.(*host.Class)
		if len(fn.Params) > 0 {
			f.self, _ = locals.Get(fn.Params[0].Name)
		}
	}
	if fn.Expr != nil {
		return c.eval(fn.Expr)
	}
	if c.scope() != nil {
		f.retPlace = c.em.EmitPlacement(0)
	}
	if _, err := c.execBody(fn.Body); err != nil {
		return nil, err
	}
	if fn.Generator {
		return host.NewList(f.yields...), nil
	}
	return c.finishReturn(f)
}

func retLeaves(v any) []any {
	switch s := v.(type) {
	case *host.TupleObject:
		return s.Elts
	case *host.ListObject:
		return s.Elts
	}
	return []any{v}
}

// finishReturn computes the result of a function which returned from
// within hardware branches. Each leaf of the returned structure gets a
// temporary, assigned where the return happened. A later unconditional
// return is guarded by a flag telling whether a branch returned already.
func (c *Compiler) finishReturn(f *frame) (any, error) {
	if len(f.returns) == 0 {
		if f.hasRet {
			return f.retval, nil
		}
		return nil, nil
	}
	first := f.returns[0].value
	_, isTuple := first.(*host.TupleObject)
	_, isList := first.(*host.ListObject)
	n := len(retLeaves(first))
	all := make([][]any, 0, len(f.returns)+1)
	for _, r := range f.returns {
		all = append(all, retLeaves(r.value))
	}
	if f.hasRet {
		all = append(all, retLeaves(f.retval))
	}
	for _, leaves := range all {
		if len(leaves) != n {
			return nil, types.Errorf("Function %s returns values of different structure", f.fname)
		}
	}

	kind := c.phiKind()
	temps := make([]*value.Value, n)
	for i := 0; i < n; i++ {
		var dtype *types.Type
		for _, leaves := range all {
			if v, ok := leaves[i].(*value.Value); ok {
				dtype = v.DType()
				break
			}
		}
		if dtype == nil {
			return nil, types.Errorf("Cannot infer the type of the value returned by %s", f.fname)
		}
		name := c.revgen.newName(f.fname)
		if err := c.declareScoped(name, value.New(dtype, &value.Init{}, kind)); err != nil {
			return nil, err
		}
		temps[i] = value.New(dtype, value.NewRef(name, nil), kind)
	}

	var flag *value.Value
	if f.hasRet {
		name := c.revgen.newName(f.fname + "_ret")
		if err := c.declareScoped(name, value.New(types.BoolType, &value.Init{}, kind)); err != nil {
			return nil, err
		}
		flag = value.New(types.BoolType, value.NewRef(name, nil), kind)
		err := c.em.WithPlacement(f.retPlace, func() error {
			return c.emitAssign(c.em.VarRemap(flag, true), false)
		})
		if err != nil {
			return nil, err
		}
	}
	for ri, r := range f.returns {
		leaves := all[ri]
		err := c.em.WithPlacement(r.place, func() error {
			for i, t := range temps {
				if err := c.emitAssign(c.em.VarRemap(t, true), leaves[i]); err != nil {
					return err
				}
			}
			if flag != nil {
				return c.emitAssign(c.em.VarRemap(flag, true), true)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if flag != nil {
		test, err := c.em.UnaryOp(emitter.OpNot, flag)
		if err != nil {
			return nil, err
		}
		if err := c.em.EmitIf(test); err != nil {
			return nil, err
		}
		leaves := all[len(all)-1]
		err = c.em.WithIndent(func() error {
			for i, t := range temps {
				if err := c.emitAssign(c.em.VarRemap(t, true), leaves[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.em.EmitEndIf()
	}

	results := make([]any, n)
	for i, t := range temps {
		results[i] = t
	}
	switch {
	case isTuple:
		return host.NewTuple(results...), nil
	case isList:
		return host.NewList(results...), nil
	}
	return results[0], nil
}

// makeFunction creates a function object. Defaults are evaluated now, and
// the function closes over the enclosing function scopes.
func (c *Compiler) makeFunction(name string, params []host.Param, body []host.Stmt, expr host.Expr, line int) (*host.Function, error) {
	f := c.frame()
	defaults := make(map[string]any)
	for _, p := range params {
		if p.Default == nil {
			continue
		}
		v, err := c.eval(p.Default)
		if err != nil {
			return nil, err
		}
		defaults[p.Name] = v
	}
	var closure []*host.Namespace
	switch {
	case f.classBody:
		closure = f.closure
	case f.locals != f.globals:
		closure = append([]*host.Namespace{f.locals}, f.closure...)
	}
	return &host.Function{
		Name:      name,
		Params:    params,
		Defaults:  defaults,
		Body:      body,
		Expr:      expr,
		Globals:   f.globals,
		Closure:   closure,
		File:      f.file,
		Line:      line,
		Generator: expr == nil && host.IsGenerator(body),
	}, nil
}

func (c *Compiler) applyDecorators(decs []host.Expr, target any) (any, error) {
	fns := make([]any, len(decs))
	for i, d := range decs {
		v, err := c.eval(d)
		if err != nil {
			return nil, err
		}
		fns[i] = v
	}
	for i := len(fns) - 1; i >= 0; i-- {
		v, err := c.call(fns[i], []any{target}, nil)
		if err != nil {
			return nil, err
		}
		target = v
	}
	return target, nil
}

func (c *Compiler) defineFunction(st *host.FunctionDef) (any, error) {
	fn, err := c.makeFunction(st.Name, st.Params, st.Body, nil, st.Line())
	if err != nil {
		return nil, err
	}
	return c.applyDecorators(st.Decorators, fn)
}

// defineClass runs a class body and builds the class. Entity classes have
// their ports checked right away, enum classes get their members numbered.
func (c *Compiler) defineClass(st *host.ClassDef) (any, error) {
	var bases []*host.Class
	for _, b := range st.Bases {
		v, err := c.eval(b)
		if err != nil {
			return nil, err
		}
		bc, ok := v.(*host.Class)
		if !ok {
			return nil, host.Raise("TypeError", "class %s base is not a class: %s", st.Name, host.TypeName(v))
		}
		bases = append(bases, bc)
	}
	if len(bases) == 0 {
		bases = []*host.Class{c.cls.object}
	}
	f := c.frame()
	dict := host.NewNamespace()
	if name, ok := f.globals.Get("__name__"); ok {
		dict.Set("__module__", name)
	}
	var closure []*host.Namespace
	if f.locals != f.globals && !f.classBody {
		closure = append([]*host.Namespace{f.locals}, f.closure...)
	}
	cf := c.pushFrame(f.globals, dict, closure, f.file, st.Name)
	cf.classBody = true
	cf.line = st.Line()
	_, err := c.execBody(st.Body)
	c.popFrame()
	if err != nil {
		return nil, err
	}
	cls, err := host.NewClass(st.Name, bases, dict)
	if err != nil {
		return nil, err
	}
	for _, name := range dict.Keys() {
		v, _ := dict.Get(name)
		if fn := methodFunction(v); fn != nil {
			fn.SetAttr("__class__", cls)
		}
	}
	if cls.IsSubclass(c.cls.enum) {
		if err := c.finishEnum(cls); err != nil {
			return nil, err
		}
	}
	if c.isEntityClass(cls) {
		if _, err := c.entityInfo(cls); err != nil {
			return nil, err
		}
	}
	return c.applyDecorators(st.Decorators, cls)
}

// methodFunction returns the function behind a class attribute, unwrapping
// static, class and property wrappers.
func methodFunction(v any) *host.Function {
	switch m := v.(type) {
	case *host.Function:
		return m
	case *host.StaticMethod:
		fn, _ := m.Func.(*host.Function)
		return fn
	case *host.ClassMethod:
		fn, _ := m.Func.(*host.Function)
		return fn
	case *host.Property:
		fn, _ := m.Get.(*host.Function)
		return fn
	}
	return nil
}
