package compiler

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// builtinType backs the classes of host values implemented in Go, for
// isinstance() and for constructor calls.
type builtinType struct {
	check func(x any) bool
	call  NativeFunc
}

// coreClasses are the classes every compilation starts with.
type coreClasses struct {
	object        *host.Class
	baseException *host.Class
	exceptions    map[string]*host.Class
	enum          *host.Class
	intEnum       *host.Class
	entity        *host.Class
	iface         *host.Class
	ifcView       *host.Class
	port          *host.Class
	value         *host.Class
	wire          *host.Class
	register      *host.Class
	dtype         *host.Class
	builtin       map[string]*host.Class
}

// exceptionTree lists the builtin exceptions after their base.
var exceptionTree = [][2]string{
	{"Exception", "BaseException"},
	{"ArithmeticError", "Exception"},
	{"ZeroDivisionError", "ArithmeticError"},
	{"OverflowError", "ArithmeticError"},
	{"AssertionError", "Exception"},
	{"AttributeError", "Exception"},
	{"LookupError", "Exception"},
	{"IndexError", "LookupError"},
	{"KeyError", "LookupError"},
	{"NameError", "Exception"},
	{"RuntimeError", "Exception"},
	{"NotImplementedError", "RuntimeError"},
	{"TypeError", "Exception"},
	{"ValueError", "Exception"},
	{"ImportError", "Exception"},
	{"StopIteration", "Exception"},
	{"SyntaxError", "Exception"},
}

func newBuiltinClass(name string, base *host.Class, check func(any) bool, call NativeFunc) *host.Class {
	cls := host.MustClass(name, base)
	cls.Native = &builtinType{check: check, call: call}
	return cls
}

func newCoreClasses() *coreClasses {
	cc := &coreClasses{
		object:     host.MustClass("object"),
		exceptions: make(map[string]*host.Class),
		builtin:    make(map[string]*host.Class),
	}
	cc.baseException = host.MustClass("BaseException", cc.object)
	cc.baseException.Dict.Set("__init__", NewNative("__init__", excInit))
	cc.exceptions["BaseException"] = cc.baseException
	for _, e := range exceptionTree {
		cc.exceptions[e[0]] = host.MustClass(e[0], cc.exceptions[e[1]])
	}

	cc.enum = host.MustClass("Enum", cc.object)
	cc.intEnum = host.MustClass("IntEnum", cc.enum)

	isInt := func(x any) bool {
		switch x.(type) {
		case int64, int, bool:
			return true
		}
		return false
	}
	isType := func(t any) func(any) bool {
		return func(x any) bool { return fmt.Sprintf("%T", x) == fmt.Sprintf("%T", t) }
	}
	add := func(name string, check func(any) bool, call NativeFunc) {
		cc.builtin[name] = newBuiltinClass(name, cc.object, check, call)
	}
	add("int", isInt, builtinInt)
	add("float", isType(float64(0)), builtinFloat)
	add("str", isType(""), builtinStr)
	add("bool", isType(false), builtinBool)
	add("list", isType(&host.ListObject{}), builtinList)
	add("tuple", isType(&host.TupleObject{}), builtinTuple)
	add("dict", isType(&host.DictObject{}), builtinDict)
	add("set", isType(&host.SetObject{}), builtinSet)
	add("range", isType(&host.Range{}), builtinRange)
	add("type", isType(&host.Class{}), builtinTypeOf)
	add("function", func(x any) bool {
		switch x.(type) {
		case *host.Function, *Native:
			return true
		}
		return false
	}, nil)

	cc.value = newBuiltinClass("Value", cc.object, isType(&value.Value{}), nil)
	cc.wire = newBuiltinClass("Wire", cc.value, func(x any) bool {
		v, ok := x.(*value.Value)
		return ok && v.IsWire()
	}, nil)
	cc.register = newBuiltinClass("Register", cc.value, func(x any) bool {
		v, ok := x.(*value.Value)
		return ok && v.IsReg()
	}, nil)
	cc.dtype = newBuiltinClass("Type", cc.object, isType(&types.Type{}), nil)
	cc.port = newBuiltinClass("Port", cc.object, isType(&entity.Port{}), newPort)
	for _, d := range []entity.Dir{entity.In, entity.Out, entity.InOut, entity.Ifc} {
		cc.port.Dict.Set(string(d), string(d))
	}

	cc.entity = host.MustClass("Entity", cc.object)
	cc.entity.Dict.Set("PORTS", host.NewTuple())
	cc.entity.Dict.Set("ARGS", host.NewDict())
	cc.entity.Dict.Set("NAME", nil)
	cc.entity.Dict.Set("__init__", NewNative("__init__", entityInit))

	cc.iface = newInterfaceClass(cc.object)
	cc.ifcView = newInterfaceViewClass(cc.object)
	return cc
}

// classOf is type(x).
func (c *Compiler) classOf(x any) *host.Class {
	switch v := x.(type) {
	case *host.Instance:
		return v.Class
	case *value.Value:
		switch {
		case v.IsWire():
			return c.cls.wire
		case v.IsReg():
			return c.cls.register
		}
		return c.cls.value
	case *types.Type:
		return c.cls.dtype
	case *entity.Port:
		return c.cls.port
	}
	for _, cls := range c.cls.builtin {
		if bt := cls.Native.(*builtinType); bt.check(x) && cls.Name != "int" {
			return cls
		}
	}
	if _, ok := x.(int64); ok {
		return c.cls.builtin["int"]
	}
	return c.cls.object
}

// isInstance implements isinstance() for a single class.
func (c *Compiler) isInstance(x any, cls *host.Class) bool {
	if cls == c.cls.object {
		return true
	}
	if bt, ok := cls.Native.(*builtinType); ok {
		return bt.check(x)
	}
	if members, ok := enumMembers(cls); ok {
		for _, m := range members {
			if host.Equal(m, x) {
				return true
			}
		}
		return false
	}
	inst, ok := x.(*host.Instance)
	return ok && inst.Class.IsSubclass(cls)
}

func excInit(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	if len(args) == 0 {
		return nil, host.Raise("TypeError", "__init__() missing self")
	}
	inst, ok := args[0].(*host.Instance)
	if !ok {
		return nil, host.Raise("TypeError", "__init__() needs an instance")
	}
	inst.Dict.Set("args", host.NewTuple(args[1:]...))
	return nil, nil
}

// excMessage is str() of an exception.
func excMessage(exc *host.Instance) string {
	v, _ := exc.Dict.Get("args")
	args, _ := v.(*host.TupleObject)
	if args == nil || len(args.Elts) == 0 {
		return ""
	}
	if len(args.Elts) == 1 {
		return host.Str(args.Elts[0])
	}
	return host.Repr(args)
}

func (c *Compiler) newException(kind string, args ...any) (*host.Instance, error) {
	cls, ok := c.cls.exceptions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown exception class: %s", kind)
	}
	inst := host.NewInstance(cls)
	inst.Dict.Set("args", host.NewTuple(args...))
	return inst, nil
}

// excInstance turns a catchable error into the exception instance a host
// handler sees.
func (c *Compiler) excInstance(err error) *host.Instance {
	var he *HostError
	if errors.As(err, &he) {
		return he.Exc
	}
	kind, msg := "RuntimeError", err.Error()
	var exc *host.Exception
	var te *types.TypeError
	switch {
	case errors.As(err, &exc):
		kind, msg = exc.Kind, exc.Msg
	case errors.As(err, &te):
		kind, msg = "TypeError", te.Msg
	}
	if _, ok := c.cls.exceptions[kind]; !ok {
		kind = "Exception"
	}
	inst, _ := c.newException(kind, msg)
	return inst
}

// excMatches tells whether an except clause naming ht handles exc.
func (c *Compiler) excMatches(exc *host.Instance, ht any) bool {
	switch t := ht.(type) {
	case *host.Class:
		return exc.Class.IsSubclass(t)
	case *host.TupleObject:
		for _, e := range t.Elts {
			if c.excMatches(exc, e) {
				return true
			}
		}
	}
	return false
}

// userMethod finds a method defined in host code, skipping the Go
// implemented base classes.
func userMethod(cls *host.Class, name string) (*host.Function, bool) {
	v, _, ok := cls.Lookup(name)
	if !ok {
		return nil, false
	}
	fn, ok := v.(*host.Function)
	return fn, ok
}

func (c *Compiler) repr(x any) (string, error) {
	inst, ok := x.(*host.Instance)
	if !ok {
		if v, isv := x.(*value.Value); isv {
			return v.String(), nil
		}
		return host.Repr(x), nil
	}
	if fn, ok := userMethod(inst.Class, "__repr__"); ok {
		r, err := c.call(&host.BoundMethod{Self: inst, Func: fn}, nil, nil)
		if err != nil {
			return "", err
		}
		return host.Str(r), nil
	}
	switch {
	case inst.Class.IsSubclass(c.cls.baseException):
		v, _ := inst.Dict.Get("args")
		args, _ := v.(*host.TupleObject)
		if args == nil {
			return inst.Class.Name + "()", nil
		}
		return inst.Class.Name + "(" + strings.TrimSuffix(strings.TrimPrefix(host.Repr(args), "("), ",)") + ")", nil
	case inst.Class.IsSubclass(c.cls.entity):
		return c.entityRepr(inst), nil
	case inst.Native != nil:
		if ifc, ok := inst.Native.(*ifcState); ok {
			return inst.Class.Name + "(" + c.ifcDescribe(inst, ifc) + ")", nil
		}
	}
	return host.Repr(x), nil
}

func (c *Compiler) str(x any) (string, error) {
	switch v := x.(type) {
	case *value.Value:
		return c.em.SValueOf(v), nil
	case *host.Instance:
		if fn, ok := userMethod(v.Class, "__str__"); ok {
			r, err := c.call(&host.BoundMethod{Self: v, Func: fn}, nil, nil)
			if err != nil {
				return "", err
			}
			return host.Str(r), nil
		}
		if v.Class.IsSubclass(c.cls.baseException) {
			return excMessage(v), nil
		}
		return c.repr(x)
	}
	return host.Str(x), nil
}

// Enums.

// autoValue is the placeholder returned by enum.auto().
type autoValue struct{}

// enumInfo lists the members of an enum class in definition order.
type enumInfo struct {
	names  []string
	values []any
}

func enumMembers(cls *host.Class) ([]any, bool) {
	ei, ok := cls.Native.(*enumInfo)
	if !ok {
		return nil, false
	}
	return ei.values, true
}

// finishEnum numbers the members of a freshly defined enum class. Members
// are the plain class attributes; auto() continues from the previous
// integer value, starting at 1.
func (c *Compiler) finishEnum(cls *host.Class) error {
	ei := &enumInfo{}
	next := int64(1)
	for _, name := range cls.Dict.Keys() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		v, _ := cls.Dict.Get(name)
		switch x := v.(type) {
		case *host.Function, *host.StaticMethod, *host.ClassMethod, *host.Property, *Native:
			continue
		case *autoValue:
			v = next
		case int64:
			next = x
		case bool:
			v = int64(0)
			if x {
				v = int64(1)
			}
			next = v.(int64)
		default:
			if cls.IsSubclass(c.cls.intEnum) {
				return host.Raise("TypeError", "%s.%s: IntEnum members must be integers", cls.Name, name)
			}
		}
		if iv, ok := v.(int64); ok {
			next = iv + 1
		}
		cls.Dict.Set(name, v)
		ei.names = append(ei.names, name)
		ei.values = append(ei.values, v)
	}
	cls.Native = ei
	return nil
}

// Builtin functions.

func (c *Compiler) makeBuiltins() *host.Namespace {
	ns := host.NewNamespace()
	for name, cls := range c.cls.builtin {
		ns.Set(name, cls)
	}
	for name, cls := range c.cls.exceptions {
		ns.Set(name, cls)
	}
	ns.Set("object", c.cls.object)
	natives := map[string]NativeFunc{
		"print":        builtinPrint,
		"len":          builtinLen,
		"repr":         builtinRepr,
		"isinstance":   builtinIsInstance,
		"issubclass":   builtinIsSubclass,
		"hasattr":      builtinHasAttr,
		"getattr":      builtinGetAttr,
		"setattr":      builtinSetAttr,
		"min":          builtinMin,
		"max":          builtinMax,
		"sum":          builtinSum,
		"abs":          builtinAbs,
		"enumerate":    builtinEnumerate,
		"zip":          builtinZip,
		"sorted":       builtinSorted,
		"reversed":     builtinReversed,
		"any":          builtinAny,
		"all":          builtinAll,
		"map":          builtinMap,
		"filter":       builtinFilter,
		"round":        builtinRound,
		"divmod":       builtinDivmod,
		"pow":          builtinPow,
		"hex":          builtinIntFormat("hex", 16, "0x"),
		"bin":          builtinIntFormat("bin", 2, "0b"),
		"oct":          builtinIntFormat("oct", 8, "0o"),
		"ord":          builtinOrd,
		"chr":          builtinChr,
		"callable":     builtinCallable,
		"format":       builtinFormat,
		"super":        builtinSuper,
		"staticmethod": builtinStaticMethod,
		"classmethod":  builtinClassMethod,
		"property":     builtinProperty,
	}
	for name, fn := range natives {
		ns.Set(name, NewNative(name, fn))
	}
	return ns
}

func builtinPrint(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	sep, end := " ", ""
	if v, ok := kw.Get("sep"); ok && v != nil {
		sep = host.Str(v)
	}
	if v, ok := kw.Get("end"); ok && v != nil {
		end = strings.TrimSuffix(host.Str(v), "\n")
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := cc.C.str(a)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	logctx.Info(cc.Context(), strings.Join(parts, sep)+end, zap.String("source", "print"))
	return nil, nil
}

func builtinLen(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("len", args, kw, "obj")
	if err != nil {
		return nil, err
	}
	switch x := a[0].(type) {
	case *host.Instance:
		m, err := cc.C.getAttr(x, "__len__")
		if err != nil {
			return nil, host.Raise("TypeError", "object of type '%s' has no len()", x.Class.Name)
		}
		return cc.C.call(m, nil, nil)
	case *host.Class:
		if members, ok := enumMembers(x); ok {
			return int64(len(members)), nil
		}
	case *value.Value:
		if x.DType().IsArray() {
			return int64(x.DType().ArrayShape()[0]), nil
		}
		return nil, types.Errorf("len() of a scalar hardware value: %s", x.Name())
	}
	n, err := host.Len(a[0])
	return int64(n), err
}

func builtinRepr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("repr", args, kw, "obj")
	if err != nil {
		return nil, err
	}
	return cc.C.repr(a[0])
}

func builtinInt(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("int", args, kw, "x?", "base?")
	if err != nil {
		return nil, err
	}
	switch x := a[0].(type) {
	case nil:
		return int64(0), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, host.Raise("ValueError", "cannot convert float %s to integer", host.FloatRepr(x))
		}
		return int64(x), nil
	case string:
		base := int64(10)
		if a[1] != nil {
			if base, err = asInt("int", a[1]); err != nil {
				return nil, err
			}
		}
		s := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		v, perr := strconv.ParseInt(s, int(base), 64)
		if perr != nil {
			return nil, host.Raise("ValueError", "invalid literal for int() with base %d: %s", base, host.Repr(x))
		}
		return v, nil
	case *host.Instance:
		m, err := cc.C.getAttr(x, "__int__")
		if err != nil {
			return nil, host.Raise("TypeError", "int() argument must be a string or a number, not '%s'", x.Class.Name)
		}
		return cc.C.call(m, nil, nil)
	}
	return nil, host.Raise("TypeError", "int() argument must be a string or a number, not '%s'", host.TypeName(a[0]))
}

func builtinFloat(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("float", args, kw, "x?")
	if err != nil {
		return nil, err
	}
	switch x := a[0].(type) {
	case nil:
		return 0.0, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "inf", "+inf", "infinity":
			return math.Inf(1), nil
		case "-inf", "-infinity":
			return math.Inf(-1), nil
		case "nan":
			return math.NaN(), nil
		}
		f, perr := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
		if perr != nil {
			return nil, host.Raise("ValueError", "could not convert string to float: %s", host.Repr(x))
		}
		return f, nil
	}
	if f, ok := asFloat(a[0]); ok {
		return f, nil
	}
	return nil, host.Raise("TypeError", "float() argument must be a string or a number, not '%s'", host.TypeName(a[0]))
}

func asFloat(x any) (float64, bool) {
	switch v := x.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func builtinStr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("str", args, kw, "obj?")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 && kw.Len() == 0 {
		return "", nil
	}
	return cc.C.str(a[0])
}

func builtinBool(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("bool", args, kw, "x?")
	if err != nil {
		return nil, err
	}
	return cc.C.truth(a[0])
}

func iterArg(cc *CallCtx, fname string, args []any, kw *host.Namespace) ([]any, error) {
	a, err := unpackArgs(fname, args, kw, "iterable?")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, nil
	}
	return cc.C.iterate(a[0])
}

func builtinList(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	items, err := iterArg(cc, "list", args, kw)
	if err != nil {
		return nil, err
	}
	return host.NewList(append([]any(nil), items...)...), nil
}

func builtinTuple(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	items, err := iterArg(cc, "tuple", args, kw)
	if err != nil {
		return nil, err
	}
	return host.NewTuple(append([]any(nil), items...)...), nil
}

func builtinSet(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	items, err := iterArg(cc, "set", args, kw)
	if err != nil {
		return nil, err
	}
	s := host.NewSet()
	for _, it := range items {
		if err := s.Add(it); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func builtinDict(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	if len(args) > 1 {
		return nil, host.Raise("TypeError", "dict expected at most 1 argument, got %d", len(args))
	}
	d := host.NewDict()
	if len(args) == 1 {
		if src, ok := args[0].(*host.DictObject); ok {
			d = src.Clone()
		} else {
			items, err := cc.C.iterate(args[0])
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				kv, err := cc.C.iterate(it)
				if err != nil {
					return nil, err
				}
				if len(kv) != 2 {
					return nil, host.Raise("ValueError", "dictionary update sequence element has length %d; 2 is required", len(kv))
				}
				if err := d.Set(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, name := range kw.Keys() {
		v, _ := kw.Get(name)
		d.SetStr(name, v)
	}
	return d, nil
}

func builtinRange(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	if kw.Len() > 0 {
		return nil, host.Raise("TypeError", "range() takes no keyword arguments")
	}
	vals := make([]int64, len(args))
	for i, a := range args {
		v, err := asInt("range", a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	switch len(vals) {
	case 1:
		return &host.Range{Start: 0, Stop: vals[0], Step: 1}, nil
	case 2:
		return &host.Range{Start: vals[0], Stop: vals[1], Step: 1}, nil
	case 3:
		if vals[2] == 0 {
			return nil, host.Raise("ValueError", "range() arg 3 must not be zero")
		}
		return &host.Range{Start: vals[0], Stop: vals[1], Step: vals[2]}, nil
	}
	return nil, host.Raise("TypeError", "range expected 1 to 3 arguments, got %d", len(vals))
}

func builtinTypeOf(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("type", args, kw, "obj")
	if err != nil {
		return nil, err
	}
	return cc.C.classOf(a[0]), nil
}

func classList(fname string, x any) ([]*host.Class, error) {
	switch t := x.(type) {
	case *host.Class:
		return []*host.Class{t}, nil
	case *host.TupleObject:
		var out []*host.Class
		for _, e := range t.Elts {
			cls, err := classList(fname, e)
			if err != nil {
				return nil, err
			}
			out = append(out, cls...)
		}
		return out, nil
	}
	return nil, host.Raise("TypeError", "%s() arg 2 must be a type or tuple of types", fname)
}

func builtinIsInstance(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("isinstance", args, kw, "obj", "classinfo")
	if err != nil {
		return nil, err
	}
	classes, err := classList("isinstance", a[1])
	if err != nil {
		return nil, err
	}
	for _, cls := range classes {
		if cc.C.isInstance(a[0], cls) {
			return true, nil
		}
	}
	return false, nil
}

func builtinIsSubclass(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("issubclass", args, kw, "cls", "classinfo")
	if err != nil {
		return nil, err
	}
	sub, ok := a[0].(*host.Class)
	if !ok {
		return nil, host.Raise("TypeError", "issubclass() arg 1 must be a class")
	}
	classes, err := classList("issubclass", a[1])
	if err != nil {
		return nil, err
	}
	for _, cls := range classes {
		if sub.IsSubclass(cls) {
			return true, nil
		}
	}
	return false, nil
}

func builtinHasAttr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("hasattr", args, kw, "obj", "name")
	if err != nil {
		return nil, err
	}
	name, err := asString("hasattr", a[1])
	if err != nil {
		return nil, err
	}
	if _, err := cc.C.getAttr(a[0], name); err != nil {
		if catchable(err) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

func builtinGetAttr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("getattr", args, kw, "obj", "name", "default?")
	if err != nil {
		return nil, err
	}
	name, err := asString("getattr", a[1])
	if err != nil {
		return nil, err
	}
	v, err := cc.C.getAttr(a[0], name)
	if err != nil && len(args) == 3 && catchable(err) {
		return a[2], nil
	}
	return v, err
}

func builtinSetAttr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("setattr", args, kw, "obj", "name", "value")
	if err != nil {
		return nil, err
	}
	name, err := asString("setattr", a[1])
	if err != nil {
		return nil, err
	}
	return nil, cc.C.setAttr(a[0], name, a[2])
}

// extremum implements min() and max(): a single iterable argument or
// several values, with optional key and default.
func extremum(cc *CallCtx, fname string, args []any, kw *host.Namespace, better func(a, b any) (bool, error)) (any, error) {
	items := args
	if len(args) == 1 {
		var err error
		if items, err = cc.C.iterate(args[0]); err != nil {
			return nil, err
		}
	}
	key, _ := kw.Get("key")
	if len(items) == 0 {
		if d, ok := kw.Get("default"); ok {
			return d, nil
		}
		return nil, host.Raise("ValueError", "%s() arg is an empty sequence", fname)
	}
	keyOf := func(x any) (any, error) {
		if key == nil {
			return x, nil
		}
		return cc.C.call(key, []any{x}, nil)
	}
	best := items[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, it := range items[1:] {
		k, err := keyOf(it)
		if err != nil {
			return nil, err
		}
		b, err := better(k, bestKey)
		if err != nil {
			return nil, err
		}
		if b {
			best, bestKey = it, k
		}
	}
	return best, nil
}

func builtinMin(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	return extremum(cc, "min", args, kw, func(a, b any) (bool, error) { return cc.C.compare("<", a, b) })
}

func builtinMax(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	return extremum(cc, "max", args, kw, func(a, b any) (bool, error) { return cc.C.compare(">", a, b) })
}

// builtinSum adds with the host "+" operator, so that summing hardware
// values emits an adder chain.
func builtinSum(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("sum", args, kw, "iterable", "start?")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[0])
	if err != nil {
		return nil, err
	}
	var acc any = int64(0)
	if a[1] != nil {
		acc = a[1]
	}
	for i, it := range items {
		if i == 0 && a[1] == nil {
			if _, ok := it.(*value.Value); ok {
				acc = it
				continue
			}
		}
		if acc, err = cc.C.binop("+", acc, it); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func builtinAbs(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("abs", args, kw, "x")
	if err != nil {
		return nil, err
	}
	switch x := a[0].(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	case bool:
		return builtinInt(cc, []any{x}, nil)
	}
	return nil, host.Raise("TypeError", "bad operand type for abs(): '%s'", host.TypeName(a[0]))
}

func builtinEnumerate(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("enumerate", args, kw, "iterable", "start?")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if a[1] != nil {
		if start, err = asInt("enumerate", a[1]); err != nil {
			return nil, err
		}
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = host.NewTuple(start+int64(i), it)
	}
	return host.NewList(out...), nil
}

func builtinZip(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	seqs := make([][]any, len(args))
	n := -1
	for i, a := range args {
		items, err := cc.C.iterate(a)
		if err != nil {
			return nil, err
		}
		seqs[i] = items
		if n < 0 || len(items) < n {
			n = len(items)
		}
	}
	if n < 0 {
		n = 0
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		out[i] = host.NewTuple(row...)
	}
	return host.NewList(out...), nil
}

func builtinSorted(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("sorted", args, kw, "iterable", "key?", "reverse?")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[0])
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(items))
	for i, it := range items {
		keys[i] = it
		if a[1] != nil {
			if keys[i], err = cc.C.call(a[1], []any{it}, nil); err != nil {
				return nil, err
			}
		}
	}
	reverse, err := cc.C.truth(a[2])
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var serr error
	sort.SliceStable(idx, func(i, j int) bool {
		l, r := keys[idx[i]], keys[idx[j]]
		if reverse {
			l, r = r, l
		}
		less, err := host.Less(l, r)
		if err != nil && serr == nil {
			serr = err
		}
		return less
	})
	if serr != nil {
		return nil, serr
	}
	out := make([]any, len(items))
	for i, k := range idx {
		out[i] = items[k]
	}
	return host.NewList(out...), nil
}

func builtinReversed(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("reversed", args, kw, "seq")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return host.NewList(out...), nil
}

func truthFold(cc *CallCtx, fname string, args []any, kw *host.Namespace, want bool) (any, error) {
	a, err := unpackArgs(fname, args, kw, "iterable")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[0])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		t, err := cc.C.truth(it)
		if err != nil {
			return nil, err
		}
		if t == want {
			return want, nil
		}
	}
	return !want, nil
}

func builtinAny(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	return truthFold(cc, "any", args, kw, true)
}

func builtinAll(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	return truthFold(cc, "all", args, kw, false)
}

func builtinMap(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	if len(args) < 2 {
		return nil, host.Raise("TypeError", "map() must have at least two arguments")
	}
	zipped, err := builtinZip(cc, args[1:], nil)
	if err != nil {
		return nil, err
	}
	rows := zipped.(*host.ListObject).Elts
	out := make([]any, len(rows))
	for i, row := range rows {
		if out[i], err = cc.C.call(args[0], row.(*host.TupleObject).Elts, nil); err != nil {
			return nil, err
		}
	}
	return host.NewList(out...), nil
}

func builtinFilter(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("filter", args, kw, "function", "iterable")
	if err != nil {
		return nil, err
	}
	items, err := cc.C.iterate(a[1])
	if err != nil {
		return nil, err
	}
	var out []any
	for _, it := range items {
		keep := it
		if a[0] != nil {
			if keep, err = cc.C.call(a[0], []any{it}, nil); err != nil {
				return nil, err
			}
		}
		t, err := cc.C.truth(keep)
		if err != nil {
			return nil, err
		}
		if t {
			out = append(out, it)
		}
	}
	return host.NewList(out...), nil
}

func builtinRound(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("round", args, kw, "number", "ndigits?")
	if err != nil {
		return nil, err
	}
	f, ok := asFloat(a[0])
	if !ok {
		return nil, host.Raise("TypeError", "type %s doesn't define __round__", host.TypeName(a[0]))
	}
	if a[1] == nil {
		if iv, isInt := a[0].(int64); isInt {
			return iv, nil
		}
		return int64(math.RoundToEven(f)), nil
	}
	nd, err := asInt("round", a[1])
	if err != nil {
		return nil, err
	}
	if iv, isInt := a[0].(int64); isInt && nd >= 0 {
		return iv, nil
	}
	scale := math.Pow(10, float64(nd))
	return math.RoundToEven(f*scale) / scale, nil
}

func builtinDivmod(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("divmod", args, kw, "a", "b")
	if err != nil {
		return nil, err
	}
	q, err := host.BinaryOp("//", a[0], a[1])
	if err != nil {
		return nil, err
	}
	r, err := host.BinaryOp("%", a[0], a[1])
	if err != nil {
		return nil, err
	}
	return host.NewTuple(q, r), nil
}

func builtinPow(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("pow", args, kw, "base", "exp", "mod?")
	if err != nil {
		return nil, err
	}
	r, err := host.BinaryOp("**", a[0], a[1])
	if err != nil || a[2] == nil {
		return r, err
	}
	return host.BinaryOp("%", r, a[2])
}

func builtinIntFormat(fname string, base int, prefix string) NativeFunc {
	return func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(fname, args, kw, "x")
		if err != nil {
			return nil, err
		}
		v, err := asInt(fname, a[0])
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return "-" + prefix + strconv.FormatInt(-v, base), nil
		}
		return prefix + strconv.FormatInt(v, base), nil
	}
}

func builtinOrd(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("ord", args, kw, "c")
	if err != nil {
		return nil, err
	}
	s, err := asString("ord", a[0])
	if err != nil {
		return nil, err
	}
	r := []rune(s)
	if len(r) != 1 {
		return nil, host.Raise("TypeError", "ord() expected a character, but string of length %d found", len(r))
	}
	return int64(r[0]), nil
}

func builtinChr(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("chr", args, kw, "i")
	if err != nil {
		return nil, err
	}
	v, err := asInt("chr", a[0])
	if err != nil {
		return nil, err
	}
	return string(rune(v)), nil
}

func builtinCallable(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("callable", args, kw, "obj")
	if err != nil {
		return nil, err
	}
	switch x := a[0].(type) {
	case *host.Function, *host.BoundMethod, *Native, *methodValue, *host.Class, *host.StaticMethod:
		return true, nil
	case *host.Instance:
		_, _, ok := x.Class.Lookup("__call__")
		return ok, nil
	}
	return false, nil
}

func builtinFormat(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("format", args, kw, "value", "format_spec?")
	if err != nil {
		return nil, err
	}
	spec := ""
	if a[1] != nil {
		if spec, err = asString("format", a[1]); err != nil {
			return nil, err
		}
	}
	return cc.C.formatValue(a[0], 0, spec)
}

func builtinStaticMethod(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("staticmethod", args, kw, "function")
	if err != nil {
		return nil, err
	}
	return &host.StaticMethod{Func: a[0]}, nil
}

func builtinClassMethod(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("classmethod", args, kw, "function")
	if err != nil {
		return nil, err
	}
	return &host.ClassMethod{Func: a[0]}, nil
}

func builtinProperty(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("property", args, kw, "fget")
	if err != nil {
		return nil, err
	}
	return &host.Property{Get: a[0]}, nil
}

// superProxy resolves attributes on the classes following cls in the MRO
// of the bound object.
type superProxy struct {
	cls  *host.Class
	self any
}

func builtinSuper(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	switch len(args) {
	case 0:
		f := cc.C.frame()
		if f.class == nil || f.self == nil {
			return nil, host.Raise("RuntimeError", "super(): no arguments")
		}
		return &superProxy{cls: f.class, self: f.self}, nil
	case 2:
		cls, ok := args[0].(*host.Class)
		if !ok {
			return nil, host.Raise("TypeError", "super() argument 1 must be a type")
		}
		return &superProxy{cls: cls, self: args[1]}, nil
	}
	return nil, host.Raise("TypeError", "super() takes 0 or 2 arguments")
}

// Standard modules.

func (c *Compiler) enumModule() *host.ModuleObject {
	ns := host.NewNamespace()
	ns.Set("Enum", c.cls.enum)
	ns.Set("IntEnum", c.cls.intEnum)
	ns.Set("auto", NewNative("auto", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		return &autoValue{}, nil
	}))
	ns.Set("unique", NewNative("unique", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("unique", args, kw, "cls")
		if err != nil {
			return nil, err
		}
		return a[0], nil
	}))
	return &host.ModuleObject{Name: "enum", Dict: ns}
}

func mathFunc1(name string, fn func(float64) float64) *Native {
	return NewNative(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(name, args, kw, "x")
		if err != nil {
			return nil, err
		}
		f, ok := asFloat(a[0])
		if !ok {
			return nil, host.Raise("TypeError", "must be real number, not %s", host.TypeName(a[0]))
		}
		return fn(f), nil
	})
}

func mathIntFunc(name string, fn func(float64) float64) *Native {
	return NewNative(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(name, args, kw, "x")
		if err != nil {
			return nil, err
		}
		if iv, ok := a[0].(int64); ok {
			return iv, nil
		}
		f, ok := asFloat(a[0])
		if !ok {
			return nil, host.Raise("TypeError", "must be real number, not %s", host.TypeName(a[0]))
		}
		return int64(fn(f)), nil
	})
}

func (c *Compiler) mathModule() *host.ModuleObject {
	ns := host.NewNamespace()
	ns.Set("pi", math.Pi)
	ns.Set("e", math.E)
	ns.Set("inf", math.Inf(1))
	ns.Set("nan", math.NaN())
	for name, fn := range map[string]func(float64) float64{
		"sqrt": math.Sqrt, "exp": math.Exp, "log2": math.Log2, "log10": math.Log10,
		"sin": math.Sin, "cos": math.Cos, "tan": math.Tan, "atan": math.Atan,
		"fabs": math.Abs,
	} {
		ns.Set(name, mathFunc1(name, fn))
	}
	ns.Set("floor", mathIntFunc("floor", math.Floor))
	ns.Set("ceil", mathIntFunc("ceil", math.Ceil))
	ns.Set("trunc", mathIntFunc("trunc", math.Trunc))
	ns.Set("log", NewNative("log", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("log", args, kw, "x", "base?")
		if err != nil {
			return nil, err
		}
		x, ok := asFloat(a[0])
		if !ok {
			return nil, host.Raise("TypeError", "must be real number, not %s", host.TypeName(a[0]))
		}
		if a[1] == nil {
			return math.Log(x), nil
		}
		b, ok := asFloat(a[1])
		if !ok {
			return nil, host.Raise("TypeError", "must be real number, not %s", host.TypeName(a[1]))
		}
		return math.Log(x) / math.Log(b), nil
	}))
	ns.Set("pow", NewNative("pow", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("pow", args, kw, "x", "y")
		if err != nil {
			return nil, err
		}
		x, ok1 := asFloat(a[0])
		y, ok2 := asFloat(a[1])
		if !ok1 || !ok2 {
			return nil, host.Raise("TypeError", "must be real number")
		}
		return math.Pow(x, y), nil
	}))
	ns.Set("isnan", NewNative("isnan", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("isnan", args, kw, "x")
		if err != nil {
			return nil, err
		}
		f, _ := asFloat(a[0])
		return math.IsNaN(f), nil
	}))
	ns.Set("isinf", NewNative("isinf", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs("isinf", args, kw, "x")
		if err != nil {
			return nil, err
		}
		f, _ := asFloat(a[0])
		return math.IsInf(f, 0), nil
	}))
	ns.Set("gcd", NewNative("gcd", func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
		var g int64
		for _, a := range args {
			v, err := asInt("gcd", a)
			if err != nil {
				return nil, err
			}
			if v < 0 {
				v = -v
			}
			for v != 0 {
				g, v = v, g%v
			}
		}
		return g, nil
	}))
	return &host.ModuleObject{Name: "math", Dict: ns}
}

// loggingModule routes host logging calls to the compilation logger.
func (c *Compiler) loggingModule() *host.ModuleObject {
	ns := host.NewNamespace()
	level := func(name string, log func(cc *CallCtx, msg string)) {
		ns.Set(name, NewNative(name, func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
			if len(args) == 0 {
				return nil, host.Raise("TypeError", "%s() missing message", name)
			}
			msg, err := cc.C.str(args[0])
			if err != nil {
				return nil, err
			}
			if len(args) > 1 {
				r, err := host.BinaryOp("%", msg, host.NewTuple(args[1:]...))
				if err != nil {
					return nil, err
				}
				msg = host.Str(r)
			}
			log(cc, msg)
			return nil, nil
		}))
	}
	level("debug", func(cc *CallCtx, msg string) { logctx.Debug(cc.Context(), msg) })
	level("info", func(cc *CallCtx, msg string) { logctx.Info(cc.Context(), msg) })
	level("warning", func(cc *CallCtx, msg string) { logctx.Warnf(cc.Context(), "%s", msg) })
	level("error", func(cc *CallCtx, msg string) { logctx.Error(cc.Context(), msg) })
	return &host.ModuleObject{Name: "logging", Dict: ns}
}
