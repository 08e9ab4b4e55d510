package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// The builtin modules host programs import.
const (
	hdlModuleName   = "hdl"
	xlibModuleName  = "hdl.xlib"
	xcallModuleName = "hdl.xcall"
)

func (c *Compiler) initModules() error {
	for _, m := range []*host.ModuleObject{
		c.newHDLModule(),
		c.xlibModule(),
		c.xcallModule(),
		c.enumModule(),
		c.mathModule(),
		c.loggingModule(),
	} {
		c.modules[m.Name] = m
	}
	return nil
}

func (c *Compiler) hdlModule() *host.ModuleObject { return c.modules[hdlModuleName] }

// importModule resolves a dotted module name: a builtin module, a module
// already loaded, or a NAME.py file next to the program.
func (c *Compiler) importModule(name string) (*host.ModuleObject, error) {
	name = strings.TrimLeft(name, ".")
	if m, ok := c.modules[name]; ok {
		return m, nil
	}
	rel := filepath.Join(strings.Split(name, ".")...) + ".py"
	path := filepath.Join(c.srcDir, rel)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, host.Raise("ImportError", "No module named '%s'", name)
	}
	c.debugf("importing %s from %s", name, path)
	m, err := c.parser.Parse(c.ctx, path, src)
	if err != nil {
		return nil, err
	}
	return c.runModule(name, path, m)
}

func (c *Compiler) execImport(st *host.Import) error {
	f := c.frame()
	for _, a := range st.Names {
		m, err := c.importModule(a.Name)
		if err != nil {
			return err
		}
		if a.AsName != "" {
			f.store(a.AsName, m)
			continue
		}
		// "import a.b" binds a, with b reachable as an attribute.
		top, _, _ := strings.Cut(strings.TrimLeft(a.Name, "."), ".")
		tm, err := c.importModule(top)
		if err != nil {
			return err
		}
		f.store(top, tm)
	}
	return nil
}

func (c *Compiler) execImportFrom(st *host.ImportFrom) error {
	m, err := c.importModule(st.Module)
	if err != nil {
		return err
	}
	f := c.frame()
	for _, a := range st.Names {
		if a.Name == "*" {
			for _, k := range m.Dict.Keys() {
				if strings.HasPrefix(k, "_") {
					continue
				}
				v, _ := m.Dict.Get(k)
				f.store(k, v)
			}
			continue
		}
		v, err := c.getAttr(m, a.Name)
		if err != nil {
			sub, serr := c.importModule(m.Name + "." + a.Name)
			if serr != nil {
				return host.Raise("ImportError", "cannot import name '%s' from '%s'", a.Name, m.Name)
			}
			v = sub
		}
		name := a.AsName
		if name == "" {
			name = a.Name
		}
		f.store(name, v)
	}
	return nil
}

// vspecFromKw builds the declaration properties of mkwire() style calls:
// const=, and attributes= as {group: {name: value}}.
func vspecFromKw(fname string, kw *host.Namespace) (*value.VSpec, error) {
	if kw == nil || kw.Len() == 0 {
		return nil, nil
	}
	vs := &value.VSpec{}
	for _, k := range kw.Keys() {
		v, _ := kw.Get(k)
		switch k {
		case "const":
			b, err := emitter.HostTruth(v)
			if err != nil {
				return nil, err
			}
			vs.Const = b
		case "port":
			p, ok := v.(*entity.Port)
			if !ok && v != nil {
				return nil, host.Raise("TypeError", "%s(): port must be a Port", fname)
			}
			vs.Port = p
		case "attributes":
			attrs, err := attributeGroups(fname, v)
			if err != nil {
				return nil, err
			}
			vs.Attributes = attrs
		default:
			return nil, host.Raise("TypeError", "%s() got an unexpected keyword argument '%s'", fname, k)
		}
	}
	return vs, nil
}

func attributeGroups(fname string, x any) (map[string][]value.Attr, error) {
	groups, ok := x.(*host.DictObject)
	if !ok {
		return nil, host.Raise("TypeError", "%s(): attributes must be a dict", fname)
	}
	out := make(map[string][]value.Attr)
	items := groups.Items()
	for i := 0; i+1 < len(items); i += 2 {
		group, err := asString(fname, items[i])
		if err != nil {
			return nil, err
		}
		attrs, ok := items[i+1].(*host.DictObject)
		if !ok {
			return nil, host.Raise("TypeError", "%s(): attribute group %s must be a dict", fname, group)
		}
		aitems := attrs.Items()
		for j := 0; j+1 < len(aitems); j += 2 {
			name, err := asString(fname, aitems[j])
			if err != nil {
				return nil, err
			}
			out[group] = append(out[group], value.Attr{Name: name, Value: aitems[j+1]})
		}
	}
	return out, nil
}

// mkVar implements mkwire(dtype, name=None, **vspec) and mkreg.
func mkVar(fname string, mk func(*types.Type, string, *value.VSpec) *value.Value) NativeFunc {
	return func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, host.Raise("TypeError", "%s() takes a type and an optional name", fname)
		}
		kw = kw.Clone()
		if len(args) == 1 {
			if n, ok := kw.Get("name"); ok {
				args = append(args, n)
			}
		}
		kw.Delete("name")
		dtype, err := asType(fname, args[0])
		if err != nil {
			return nil, err
		}
		var name string
		if len(args) == 2 && args[1] != nil {
			if name, err = asString(fname, args[1]); err != nil {
				return nil, err
			}
		}
		vs, err := vspecFromKw(fname, kw)
		if err != nil {
			return nil, err
		}
		return mk(dtype, name, vs), nil
	}
}

// mkVVar implements mkvwire(dtype, value, **vspec) and mkvreg.
func mkVVar(fname string, mk func(*types.Type, any, *value.VSpec) *value.Value) NativeFunc {
	return func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) != 2 {
			return nil, host.Raise("TypeError", "%s() takes a type and an initial value", fname)
		}
		dtype, err := asType(fname, args[0])
		if err != nil {
			return nil, err
		}
		vs, err := vspecFromKw(fname, kw)
		if err != nil {
			return nil, err
		}
		return mk(dtype, args[1], vs), nil
	}
}

func shapeArgs(fname string, args []any) ([]int, error) {
	shape := make([]int, len(args))
	for i, a := range args {
		n, err := asInt(fname, a)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, types.Errorf("%s(): invalid dimension %d", fname, n)
		}
		shape[i] = int(n)
	}
	return shape, nil
}

// typeClass is a type constructor usable with isinstance() on types.
func (c *Compiler) typeClass(name string, kind types.Kind) *host.Class {
	return newBuiltinClass(name, c.cls.dtype, func(x any) bool {
		t, ok := x.(*types.Type)
		return ok && t.Kind() == kind
	}, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if kw.Len() > 0 {
			return nil, host.Raise("TypeError", "%s() takes no keyword arguments", name)
		}
		shape, err := shapeArgs(name, args)
		if err != nil {
			return nil, err
		}
		if kind.HasBits() && len(shape) == 0 {
			if kind != types.KindFloat {
				return nil, host.Raise("TypeError", "%s() requires the number of bits", name)
			}
			return cc.C.em.DefaultFloatType(), nil
		}
		return types.New(kind, shape...), nil
	})
}

func (c *Compiler) newHDLModule() *host.ModuleObject {
	ns := host.NewNamespace()

	for name, t := range map[string]*types.Type{
		"UINT4": types.Uint4, "UINT8": types.Uint8, "UINT16": types.Uint16,
		"UINT32": types.Uint32, "UINT64": types.Uint64, "UINT128": types.Uint128,
		"INT4": types.Int4, "INT8": types.Int8, "INT16": types.Int16,
		"INT32": types.Int32, "INT64": types.Int64, "INT128": types.Int128,
		"FLOAT16": types.Float16, "FLOAT32": types.Float32, "FLOAT64": types.Float64,
		"FLOAT80": types.NewFloat(80), "FLOAT128": types.NewFloat(128),
		"BIT": types.BitType, "BOOL": types.BoolType, "INT": types.IntType,
		"REAL": types.RealType, "VOID": types.VoidType,
	} {
		ns.Set(name, t)
	}
	for name, kind := range map[string]types.Kind{
		"Uint": types.KindUint, "Sint": types.KindSint, "Bits": types.KindBits,
		"Float": types.KindFloat, "Bool": types.KindBool, "Integer": types.KindInteger,
		"Real": types.KindReal, "Void": types.KindVoid,
	} {
		ns.Set(name, c.typeClass(name, kind))
	}
	ns.Set("Type", c.cls.dtype)
	ns.Set("dtype_from_string", NewNative("dtype_from_string", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("dtype_from_string", args, kw, "s")
		if err != nil {
			return nil, err
		}
		s, err := asString("dtype_from_string", a[0])
		if err != nil {
			return nil, err
		}
		return types.Parse(s)
	}))
	ns.Set("mkarray", NewNative("mkarray", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) < 1 {
			return nil, host.Raise("TypeError", "mkarray() missing base type")
		}
		base, err := asType("mkarray", args[0])
		if err != nil {
			return nil, err
		}
		shape, err := shapeArgs("mkarray", args[1:])
		if err != nil {
			return nil, err
		}
		return types.MkArray(base, shape...), nil
	}))

	ns.Set("Value", c.cls.value)
	ns.Set("Wire", c.cls.wire)
	ns.Set("Register", c.cls.register)
	ns.Set("mkwire", NewNative("mkwire", mkVar("mkwire", value.MkWire)))
	ns.Set("mkreg", NewNative("mkreg", mkVar("mkreg", value.MkReg)))
	ns.Set("mkvwire", NewNative("mkvwire", mkVVar("mkvwire", value.MkVWire)))
	ns.Set("mkvreg", NewNative("mkvreg", mkVVar("mkvreg", value.MkVReg)))
	ns.Set("mknone", NewNative("mknone", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("mknone", args, kw, "dtype")
		if err != nil {
			return nil, err
		}
		dtype, err := asType("mknone", a[0])
		if err != nil {
			return nil, err
		}
		return value.MkNone(dtype), nil
	}))
	ns.Set("bitfill", NewNative("bitfill", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("bitfill", args, kw, "c", "n")
		if err != nil {
			return nil, err
		}
		ch, err := asString("bitfill", a[0])
		if err != nil {
			return nil, err
		}
		n, err := asInt("bitfill", a[1])
		if err != nil {
			return nil, err
		}
		lit := "0b" + strings.Repeat(ch, int(n))
		if _, ok := emitter.MatchBitString(lit, nil); !ok || n <= 0 {
			return nil, types.Errorf("Invalid bit fill: %q x %d", ch, n)
		}
		return lit, nil
	}))

	ns.Set("Port", c.cls.port)
	for _, d := range []entity.Dir{entity.In, entity.Out, entity.InOut, entity.Ifc} {
		ns.Set(strings.ToUpper(string(d)), string(d))
	}
	ns.Set("Entity", c.cls.entity)
	ns.Set("Interface", c.cls.iface)
	ns.Set("InterfaceView", c.cls.ifcView)

	ns.Set("POSEDGE", string(entity.PosEdge))
	ns.Set("NEGEDGE", string(entity.NegEdge))
	ns.Set("LEVEL", string(entity.Level))
	ns.Set("Sens", NewNative("Sens", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("Sens", args, kw, "trigger?")
		if err != nil {
			return nil, err
		}
		trig := entity.Level
		if a[0] != nil {
			s, err := asString("Sens", a[0])
			if err != nil {
				return nil, err
			}
			trig = entity.Trigger(s)
		}
		switch trig {
		case entity.Level, entity.PosEdge, entity.NegEdge:
		default:
			return nil, types.Errorf("Invalid sensitivity trigger: %s", trig)
		}
		return &entity.Sens{Trigger: trig}, nil
	}))
	ns.Set("ROOT_PROCESS", rootProcessName)
	ns.Set("INIT_PROCESS", initProcessName)

	ns.Set("hdl", NewNative("hdl", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("hdl", args, kw, "func")
		if err != nil {
			return nil, err
		}
		return markHDL(a[0], nil)
	}))
	ns.Set("hdl_process", NewNative("hdl_process", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) > 0 {
			return nil, host.Raise("TypeError", "hdl_process() takes keyword arguments only")
		}
		hwargs := kw.Clone()
		return NewNative("hdl_process_decorator", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("hdl_process", args, kw, "func")
			if err != nil {
				return nil, err
			}
			return markHDL(a[0], hwargs)
		}), nil
	}))

	for _, backend := range emitter.Available() {
		ns.Set(strings.ToUpper(backend), backend)
	}
	return &host.ModuleObject{Name: hdlModuleName, Dict: ns}
}

// markHDL flags fn as a hardware function, with the process arguments of
// hdl_process when hwargs is not nil.
func markHDL(x any, hwargs *host.Namespace) (any, error) {
	fn := methodFunction(x)
	if fn == nil {
		return nil, host.Raise("TypeError", "hdl decorators apply to functions, not %s", host.TypeName(x))
	}
	fn.SetAttr(hdlAttr, true)
	if hwargs != nil {
		fn.SetAttr(hdlArgsAttr, hwargs)
	}
	return x, nil
}

func (c *Compiler) xlibModule() *host.ModuleObject {
	ns := host.NewNamespace()
	set := func(name string, fn NativeFunc) { ns.Set(name, NewNative(name, fn)) }

	set("comment", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("comment", args, kw, "comm")
		if err != nil {
			return nil, err
		}
		s, err := cc.C.str(a[0])
		if err != nil {
			return nil, err
		}
		cc.C.em.EmitComment(s)
		return nil, nil
	})
	set("register_module", xlibRegisterModule)
	set("cast", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("cast", args, kw, "value", "dtype")
		if err != nil {
			return nil, err
		}
		dtype, err := asType("cast", a[1])
		if err != nil {
			return nil, err
		}
		return cc.Builder().Cast(a[0], dtype)
	})
	set("load", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("load", args, kw, "name")
		if err != nil {
			return nil, err
		}
		name, err := asString("load", a[0])
		if err != nil {
			return nil, err
		}
		return cc.C.loadName(name)
	})
	set("assign", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("assign", args, kw, "name", "value")
		if err != nil {
			return nil, err
		}
		name, err := asString("assign", a[0])
		if err != nil {
			return nil, err
		}
		return nil, cc.C.assignName(name, a[1])
	})
	set("mkwire", mkVar("mkwire", value.MkWire))
	set("mkreg", mkVar("mkreg", value.MkReg))
	set("mkvwire", mkVVar("mkvwire", value.MkVWire))
	set("mkvreg", mkVVar("mkvreg", value.MkVReg))

	set("context", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) > 0 {
			return nil, host.Raise("TypeError", "context() takes keyword arguments only")
		}
		kv := make(map[string]any, kw.Len())
		for _, k := range kw.Keys() {
			v, _ := kw.Get(k)
			switch k {
			case "delay", "trans":
			default:
				return nil, host.Raise("TypeError", "context() got an unexpected keyword argument '%s'", k)
			}
			kv[k] = v
		}
		em := cc.C.em
		return &ctxManager{
			enter: func() (any, error) { em.PushContext(kv); return nil, nil },
			exit:  func() error { em.PopContext(); return nil },
		}, nil
	})
	set("no_hdl", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if _, err := unpackArgs("no_hdl", args, kw); err != nil {
			return nil, err
		}
		c := cc.C
		return &ctxManager{
			enter: func() (any, error) { c.noHDL++; return nil, nil },
			exit:  func() error { c.noHDL--; return nil },
		}, nil
	})

	set("finish", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if _, err := unpackArgs("finish", args, kw); err != nil {
			return nil, err
		}
		cc.C.em.EmitFinish()
		return nil, nil
	})
	set("wait_for", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("wait_for", args, kw, "t?")
		if err != nil {
			return nil, err
		}
		return nil, cc.C.em.EmitWaitFor(a[0])
	})
	waits := map[string]func([]*value.Value){
		"wait_rising":  c.em.EmitWaitRising,
		"wait_falling": c.em.EmitWaitFalling,
		"wait_until":   c.em.EmitWaitUntil,
	}
	for name, emit := range waits {
		set(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			if kw.Len() > 0 {
				return nil, host.Raise("TypeError", "%s() takes no keyword arguments", name)
			}
			vals, err := valueList(name, args)
			if err != nil {
				return nil, err
			}
			if len(vals) == 0 {
				return nil, host.Raise("TypeError", "%s() requires at least one signal", name)
			}
			for _, v := range vals {
				cc.C.recordRead(v)
			}
			emit(vals)
			return nil, nil
		})
	}
	messages := map[string]func([]string){
		"report": c.em.EmitReport,
		"write":  c.em.EmitWrite,
	}
	for name, emit := range messages {
		set(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			if len(args) != 1 {
				return nil, host.Raise("TypeError", "%s() takes a format string", name)
			}
			s, err := asString(name, args[0])
			if err != nil {
				return nil, err
			}
			parts, err := cc.C.messageParts(s, kw)
			if err != nil {
				return nil, err
			}
			emit(parts)
			return nil, nil
		})
	}

	set("xeval", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) != 1 {
			return nil, host.Raise("TypeError", "xeval() takes the code to evaluate")
		}
		code, err := asString("xeval", args[0])
		if err != nil {
			return nil, err
		}
		return cc.C.evalSource(code, kw)
	})
	set("xexec", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		if len(args) != 1 {
			return nil, host.Raise("TypeError", "xexec() takes the code to run")
		}
		code, err := asString("xexec", args[0])
		if err != nil {
			return nil, err
		}
		return nil, cc.C.execSource(code, kw)
	})
	for name := range emitter.ExtensionOps {
		set(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs(name, args, kw, "value")
			if err != nil {
				return nil, err
			}
			v, err := asValue(name, a[0])
			if err != nil {
				return nil, err
			}
			return cc.C.em.Extension(name, v)
		})
	}

	set("load_extern_module", loadExternModule)
	set("create_function", createFunction)
	set("argn_dtype", argnDType)
	ns.Set("float_equal", c.floatEqualFunction())
	return &host.ModuleObject{Name: xlibModuleName, Dict: ns}
}

// xlibRegisterModule implements register_module(mid, code, replace=None,
// global_reg=None). code maps backend names to module source, which may
// reference host values as {expr}.
func xlibRegisterModule(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("register_module", args, kw, "mid", "code", "replace?", "global_reg?")
	if err != nil {
		return nil, err
	}
	mid, err := asString("register_module", a[0])
	if err != nil {
		return nil, err
	}
	cd, ok := a[1].(*host.DictObject)
	if !ok {
		return nil, host.Raise("TypeError", "register_module() expects a {backend: code} dict")
	}
	code := make(map[string]string)
	items := cd.Items()
	for i := 0; i+1 < len(items); i += 2 {
		backend, err := asString("register_module", items[i])
		if err != nil {
			return nil, err
		}
		src, err := asString("register_module", items[i+1])
		if err != nil {
			return nil, err
		}
		code[backend] = host.Dedent(src)
	}
	replace, err := emitter.HostTruth(a[2])
	if err != nil {
		return nil, err
	}
	global, err := emitter.HostTruth(a[3])
	if err != nil {
		return nil, err
	}
	if global {
		err = emitter.RegisterGlobalModule(mid, code, replace)
	} else {
		err = cc.C.em.RegisterModule(mid, code, replace)
	}
	if err != nil {
		return nil, fmt.Errorf("register_module: %w", err)
	}
	return nil, nil
}
