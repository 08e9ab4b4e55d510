package compiler

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/extern"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// argMarshal converts one argument of an external function call according
// to its signature entry.
type argMarshal struct {
	fname string
	argno int
	match *types.Matcher
}

func bitsKind(k types.Kind) bool {
	return k == types.KindUint || k == types.KindSint || k == types.KindBits
}

func (m *argMarshal) convert(c *Compiler, arg any) (any, error) {
	if dt := m.match.DType(); dt != nil {
		return c.em.Cast(arg, dt)
	}
	kind := m.match.Kind()
	if kind == 0 {
		return arg, nil
	}
	v, ok := arg.(*value.Value)
	if !ok {
		return c.em.TClassCast(kind, arg)
	}
	if !kind.HasBits() {
		return c.em.Cast(v, types.New(kind))
	}
	if bitsKind(kind) && bitsKind(v.DType().Kind()) {
		if v.DType().Kind() == kind {
			return v, nil
		}
		return c.em.Cast(v, types.New(kind, v.DType().NBits()))
	}
	if v.DType().Kind() != kind {
		return nil, host.Raise("TypeError", "Wrong type for argument %d of %s() call: %s vs %s",
			m.argno, m.fname, kind, v.DType().Name())
	}
	return v, nil
}

func parseSignature(fname, sig string) ([]*argMarshal, error) {
	var out []*argMarshal
	if strings.TrimSpace(sig) == "" {
		return nil, nil
	}
	for i, s := range strings.Split(sig, ",") {
		m, err := types.ParseMatcher(s)
		if err != nil {
			return nil, err
		}
		out = append(out, &argMarshal{fname: fname, argno: i, match: m})
	}
	return out, nil
}

// extFunction is a typed call to a backend library function.
type extFunction struct {
	name     string
	fnmap    *host.DictObject
	marshals []*argMarshal
	// dtype is a type, a callable of the converted arguments, or nil for a
	// void call.
	dtype any
}

func (x *extFunction) call(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	c := cc.C
	if kw.Len() > 0 {
		return nil, host.Raise("TypeError", "%s() takes no keyword arguments", x.name)
	}
	cargs := make([]any, len(args))
	for i, a := range args {
		if i < len(x.marshals) {
			cv, err := x.marshals[i].convert(c, a)
			if err != nil {
				return nil, err
			}
			a = cv
		}
		cargs[i] = a
	}
	target, ok, err := x.fnmap.Get(c.em.Kind())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("Unable to resolve function %s() for %s backend", x.name, c.em.Kind())
	}
	fname, isStr := target.(string)
	if !isStr {
		r, err := c.call(target, []any{host.NewList(cargs...)}, nil)
		if err != nil {
			return nil, err
		}
		if fname, err = asString(x.name, r); err != nil {
			return nil, err
		}
	}
	var dtype *types.Type
	switch d := x.dtype.(type) {
	case nil:
	case *types.Type:
		dtype = d
	default:
		r, err := c.call(d, []any{host.NewList(cargs...)}, nil)
		if err != nil {
			return nil, err
		}
		if dtype, err = asType(x.name, r); err != nil {
			return nil, err
		}
	}
	res := c.em.EmitCall(fname, cargs, dtype)
	if res == nil {
		return nil, nil
	}
	return res, nil
}

// createFunction implements xcall.create_function(name, fnmap, fnsig=None,
// dtype=None).
func createFunction(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("create_function", args, kw, "fnname", "fnmap", "fnsig?", "dtype?")
	if err != nil {
		return nil, err
	}
	name, err := asString("create_function", a[0])
	if err != nil {
		return nil, err
	}
	fnmap, ok := a[1].(*host.DictObject)
	if !ok {
		return nil, host.Raise("TypeError", "create_function() expects a backend map, got %s", host.TypeName(a[1]))
	}
	x := &extFunction{name: name, fnmap: fnmap}
	if a[2] != nil {
		sig, err := asString("create_function", a[2])
		if err != nil {
			return nil, err
		}
		if x.marshals, err = parseSignature(name, sig); err != nil {
			return nil, err
		}
	}
	switch d := a[3].(type) {
	case nil:
	case string:
		if x.dtype, err = types.Parse(d); err != nil {
			return nil, err
		}
	default:
		x.dtype = d
	}
	return NewNative(name, x.call), nil
}

// argnDType implements xcall.argn_dtype(n): a dtype callable returning the
// type of argument n.
func argnDType(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("argn_dtype", args, kw, "n")
	if err != nil {
		return nil, err
	}
	n, err := asInt("argn_dtype", a[0])
	if err != nil {
		return nil, err
	}
	return NewNative(fmt.Sprintf("argn_dtype_%d", n), func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) != 1 {
			return nil, host.Raise("TypeError", "argn_dtype() resolver takes the argument list")
		}
		cargs := host.Items(args[0])
		if int(n) >= len(cargs) {
			return nil, host.Raise("IndexError", "argument %d out of range", n)
		}
		v, err := asValue("argn_dtype", cargs[n])
		if err != nil {
			return nil, err
		}
		return v.DType(), nil
	}), nil
}

// floatEqualFunction is xlib.float_equal(a, b, eps): a closeness check from
// the float support libraries.
func (c *Compiler) floatEqualFunction() *Native {
	fnmap := host.NewDict()
	fnmap.SetStr("vhdl", "hdlgen.float_equal")
	fnmap.SetStr("verilog", NewNative("fpmod_resolve", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		return cc.C.fpModResolve("fp_utils", "rcloseto", host.Items(args[0]), 0)
	}))
	x := &extFunction{
		name:  "float_equal",
		fnmap: fnmap,
		dtype: types.BoolType,
	}
	x.marshals, _ = parseSignature("float_equal", "f*, real, real")
	return NewNative("float_equal", x.call)
}

// fpModResolve names fnname within the float helper module instance
// parametrized by the float format of argument argno.
func (c *Compiler) fpModResolve(module, fnname string, cargs []any, argno int) (any, error) {
	inst, ok := c.em.Dialect.(emitter.InterfaceInstancer)
	if !ok {
		return nil, fmt.Errorf("%s backend has no helper module instances", c.em.Kind())
	}
	if argno >= len(cargs) {
		return nil, host.Raise("IndexError", "argument %d out of range", argno)
	}
	v, err := asValue(fnname, cargs[argno])
	if err != nil {
		return nil, err
	}
	return inst.FPModResolve(module, fnname, v.DType())
}

// externValidator is created on first use, CUE schema compilation is not
// free.
func (c *Compiler) externValidator() (*validator.Validator, error) {
	if c.validator == nil {
		v, err := validator.New()
		if err != nil {
			return nil, err
		}
		c.validator = v
	}
	return c.validator, nil
}

// loadExtern loads an external module declaration once per path. Relative
// paths are resolved against the source directory.
func (c *Compiler) loadExtern(path string) (*extern.Module, error) {
	if !filepath.IsAbs(path) && c.srcDir != "" {
		path = filepath.Join(c.srcDir, path)
	}
	for _, m := range c.externs {
		if m.Path == path {
			return m, nil
		}
	}
	v, err := c.externValidator()
	if err != nil {
		return nil, err
	}
	m, err := extern.Load(path, v)
	if err != nil {
		return nil, err
	}
	if _, dup := c.externs[m.Name]; dup {
		return nil, fmt.Errorf("extern module %s already loaded", m.Name)
	}
	c.externs[m.Name] = m
	logctx.Info(c.ctx, "loaded extern module", zap.String("module", m.Name), zap.Strings("functions", m.Functions()))
	return m, nil
}

// loadConfiguredExterns loads the extern_modules of the configuration.
func (c *Compiler) loadConfiguredExterns() error {
	paths, err := c.cfg.ResolveExternModules()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := c.loadExtern(p); err != nil {
			return err
		}
	}
	return nil
}

// externName resolves the backend name of an extern function call,
// requesting the library holding it.
func (c *Compiler) externName(m *extern.Module, fn *extern.Function, cargs []any) (string, error) {
	if err := fn.CheckArgs(len(cargs)); err != nil {
		return "", err
	}
	dtypes := argTypes(cargs)
	backend := c.em.Kind()
	inst, ok := c.em.Dialect.(emitter.InterfaceInstancer)
	if !ok {
		c.em.AddLib(fn.Filename)
		return fn.BackendName(m.Name, backend), nil
	}
	params, err := fn.ResolveParams(dtypes, c.em.FloatSpec)
	if err != nil {
		return "", err
	}
	eparams := make([]entity.Param, len(params))
	for i, p := range params {
		eparams[i] = entity.Param{Name: p[0], Value: p[1]}
	}
	module := m.Name
	if remap, ok := fn.NameRemap[backend]; ok {
		module, _, _ = strings.Cut(remap, ".")
	}
	c.em.AddLib(fn.Filename)
	fname := fn.FuncName
	if fname == "" {
		fname = fn.Name
	}
	return inst.InterfaceID(module, eparams) + "." + fname, nil
}

func argTypes(cargs []any) []*types.Type {
	out := make([]*types.Type, len(cargs))
	for i, a := range cargs {
		if v, ok := a.(*value.Value); ok {
			out[i] = v.DType()
		}
	}
	return out
}

// xmodResolve implements xcall.xmod_resolve(module, fnname): a backend map
// resolving fnname of a loaded extern module at call time.
func xmodResolve(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("xmod_resolve", args, kw, "module", "fnname")
	if err != nil {
		return nil, err
	}
	mname, err := asString("xmod_resolve", a[0])
	if err != nil {
		return nil, err
	}
	fname, err := asString("xmod_resolve", a[1])
	if err != nil {
		return nil, err
	}
	resolver := NewNative("xmod_resolver", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		m, ok := cc.C.externs[mname]
		if !ok {
			return nil, fmt.Errorf("extern module %s is not loaded", mname)
		}
		fn, err := m.Function(fname)
		if err != nil {
			return nil, err
		}
		return cc.C.externName(m, fn, host.Items(args[0]))
	})
	fnmap := host.NewDict()
	for _, backend := range emitter.Available() {
		fnmap.SetStr(backend, resolver)
	}
	return fnmap, nil
}

// externModuleObject exposes the functions of an extern module as host
// callables typed by their fnsig and dtype declarations.
func (c *Compiler) externModuleObject(m *extern.Module) (*host.ModuleObject, error) {
	ns := host.NewNamespace()
	for _, name := range m.Functions() {
		fn, _ := m.Function(name)
		marshals, err := parseSignature(name, fn.FnSig)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", m.Path, fn.Line, err)
		}
		ns.Set(name, NewNative(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			if kw.Len() > 0 {
				return nil, host.Raise("TypeError", "%s() takes no keyword arguments", name)
			}
			cargs := make([]any, len(args))
			for i, a := range args {
				if i < len(marshals) {
					cv, err := marshals[i].convert(cc.C, a)
					if err != nil {
						return nil, err
					}
					a = cv
				}
				cargs[i] = a
			}
			fname, err := cc.C.externName(m, fn, cargs)
			if err != nil {
				return nil, err
			}
			dtype, err := fn.ResultType(argTypes(cargs))
			if err != nil {
				return nil, err
			}
			res := cc.C.em.EmitCall(fname, cargs, dtype)
			if res == nil {
				return nil, nil
			}
			return res, nil
		}))
	}
	return &host.ModuleObject{Name: m.Name, Dict: ns}, nil
}

// loadExternModule implements xlib.load_extern_module(path).
func loadExternModule(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("load_extern_module", args, kw, "path")
	if err != nil {
		return nil, err
	}
	path, err := asString("load_extern_module", a[0])
	if err != nil {
		return nil, err
	}
	m, err := cc.C.loadExtern(path)
	if err != nil {
		return nil, err
	}
	return cc.C.externModuleObject(m)
}

func (c *Compiler) xcallModule() *host.ModuleObject {
	ns := host.NewNamespace()
	ns.Set("create_function", NewNative("create_function", createFunction))
	ns.Set("argn_dtype", NewNative("argn_dtype", argnDType))
	ns.Set("xmod_resolve", NewNative("xmod_resolve", xmodResolve))
	return &host.ModuleObject{Name: "hdl.xcall", Dict: ns}
}
