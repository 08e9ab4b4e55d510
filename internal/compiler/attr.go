package compiler

import (
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// methodValue is a method of a Go backed host object, bound to its
// receiver.
type methodValue struct {
	name string
	recv any
	fn   func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error)
}

func (m *methodValue) String() string { return "<built-in method " + m.name + ">" }

type methodFn = func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error)

func attrError(x any, name string) error {
	return host.Raise("AttributeError", "'%s' object has no attribute '%s'", host.TypeName(x), name)
}

// bindAttr binds functions found on a class to the object they were looked
// up from.
func (c *Compiler) bindAttr(v any, self any, cls *host.Class) (any, error) {
	switch m := v.(type) {
	case *host.Function, *Native:
		if self == nil {
			return v, nil
		}
		return &host.BoundMethod{Self: self, Func: m}, nil
	case *host.StaticMethod:
		return m.Func, nil
	case *host.ClassMethod:
		return &host.BoundMethod{Self: cls, Func: m.Func}, nil
	case *host.Property:
		if self == nil {
			return v, nil
		}
		return c.call(m.Get, []any{self}, nil)
	}
	return v, nil
}

// getAttr implements attribute loads.
func (c *Compiler) getAttr(obj any, name string) (any, error) {
	switch x := obj.(type) {
	case *host.ModuleObject:
		if v, ok := x.Dict.Get(name); ok {
			return v, nil
		}
		if sub, ok := c.modules[x.Name+"."+name]; ok {
			return sub, nil
		}
		return nil, host.Raise("AttributeError", "module '%s' has no attribute '%s'", x.Name, name)
	case *host.Class:
		return c.classAttr(x, name)
	case *host.Instance:
		return c.instanceAttr(x, name)
	case *superProxy:
		return c.superAttr(x, name)
	case *host.Function:
		if name == "__name__" {
			return x.Name, nil
		}
		if v, ok := x.Attr(name); ok {
			return v, nil
		}
	case *value.Value:
		return c.valueAttr(x, name)
	case *types.Type:
		return typeAttr(x, name)
	case *entity.Port:
		switch name {
		case "name":
			return x.Name, nil
		case "idir":
			return string(x.Dir), nil
		case "type":
			return x.Type, nil
		}
	}
	if m, ok := builtinMethods(obj)[name]; ok {
		return &methodValue{name: name, recv: obj, fn: m}, nil
	}
	return nil, attrError(obj, name)
}

func (c *Compiler) classAttr(cls *host.Class, name string) (any, error) {
	switch name {
	case "__name__":
		return cls.Name, nil
	case "__mro__":
		mro := make([]any, len(cls.MRO))
		for i, m := range cls.MRO {
			mro[i] = m
		}
		return host.NewTuple(mro...), nil
	case "__bases__":
		bases := make([]any, len(cls.Bases))
		for i, b := range cls.Bases {
			bases[i] = b
		}
		return host.NewTuple(bases...), nil
	}
	v, _, ok := cls.Lookup(name)
	if !ok {
		return nil, host.Raise("AttributeError", "type object '%s' has no attribute '%s'", cls.Name, name)
	}
	return c.bindAttr(v, nil, cls)
}

func (c *Compiler) instanceAttr(inst *host.Instance, name string) (any, error) {
	if v, ok := inst.Dict.Get(name); ok {
		if hv, isv := v.(*value.Value); isv && hv.Ref() != nil {
			hv = c.em.VarRemap(hv, false)
			c.recordRead(hv)
			return hv, nil
		}
		return v, nil
	}
	if name == "__class__" {
		return inst.Class, nil
	}
	if v, _, ok := inst.Class.Lookup(name); ok {
		return c.bindAttr(v, inst, inst.Class)
	}
	if ga, _, ok := inst.Class.Lookup("__getattr__"); ok {
		return c.call(&host.BoundMethod{Self: inst, Func: ga}, []any{name}, nil)
	}
	return nil, host.Raise("AttributeError", "'%s' object has no attribute '%s'", inst.Class.Name, name)
}

func (c *Compiler) superAttr(sp *superProxy, name string) (any, error) {
	var mro []*host.Class
	switch s := sp.self.(type) {
	case *host.Instance:
		mro = s.Class.MRO
	case *host.Class:
		mro = s.MRO
	}
	start := -1
	for i, m := range mro {
		if m == sp.cls {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, host.Raise("TypeError", "super(type, obj): obj must be an instance or subtype of type")
	}
	for _, m := range mro[start:] {
		if v, ok := m.Dict.Get(name); ok {
			if cls, isCls := sp.self.(*host.Class); isCls {
				return c.bindAttr(v, nil, cls)
			}
			return c.bindAttr(v, sp.self, m)
		}
	}
	return nil, host.Raise("AttributeError", "'super' object has no attribute '%s'", name)
}

// valueAttr exposes the properties and helpers of hardware values.
func (c *Compiler) valueAttr(v *value.Value, name string) (any, error) {
	switch name {
	case "dtype":
		return v.DType(), nil
	case "name":
		return v.Name(), nil
	case "isreg":
		return v.IsReg(), nil
	case "kind":
		return v.Kind().String(), nil
	case "cast":
		return &methodValue{name: name, recv: v, fn: func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("cast", args, kw, "dtype")
			if err != nil {
				return nil, err
			}
			dtype, err := asType("cast", a[0])
			if err != nil {
				return nil, err
			}
			return c.Builder().Cast(recv, dtype)
		}}, nil
	case "store":
		return &methodValue{name: name, recv: v, fn: func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("store", args, kw, "name")
			if err != nil {
				return nil, err
			}
			vname, err := asString("store", a[0])
			if err != nil {
				return nil, err
			}
			return nil, c.assignName(vname, recv)
		}}, nil
	}
	if _, ok := emitter.ExtensionOps[name]; ok {
		return &methodValue{name: name, recv: v, fn: func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			if _, err := unpackArgs(name, args, kw); err != nil {
				return nil, err
			}
			return c.em.Extension(name, recv.(*value.Value))
		}}, nil
	}
	return nil, attrError(v, name)
}

func intTuple(xs []int) *host.TupleObject {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return host.NewTuple(out...)
}

func typeAttr(t *types.Type, name string) (any, error) {
	switch name {
	case "name":
		return t.Name(), nil
	case "nbits":
		return int64(t.NBits()), nil
	case "shape":
		return intTuple(t.Shape()), nil
	case "array_shape":
		return intTuple(t.ArrayShape()), nil
	case "full_shape":
		return intTuple(t.FullShape()), nil
	case "ndim":
		return int64(t.NDim()), nil
	case "size":
		return int64(t.Size()), nil
	case "has_bits":
		return t.HasBits(), nil
	case "element_type":
		return &methodValue{name: name, recv: t, fn: func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return recv.(*types.Type).ElementType(), nil
		}}, nil
	case "new_shape":
		return &methodValue{name: name, recv: t, fn: func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			shape := make([]int, len(args))
			for i, a := range args {
				n, err := asInt("new_shape", a)
				if err != nil {
					return nil, err
				}
				shape[i] = int(n)
			}
			return recv.(*types.Type).NewShape(shape...), nil
		}}, nil
	}
	return nil, attrError(t, name)
}

// setAttr implements attribute stores. Instance fields bound to hardware
// variables are assigned in the generated code, like names are.
func (c *Compiler) setAttr(obj any, name string, v any) error {
	switch x := obj.(type) {
	case *host.Instance:
		if cur, ok := x.Dict.Get(name); ok {
			if cv, isv := cur.(*value.Value); isv && cv.Ref() != nil {
				if nv, isnv := v.(*value.Value); isnv && nv.IsNone() {
					return nil
				}
				return c.emitAssign(c.em.VarRemap(cv, true), v)
			}
		}
		if hv, ok := v.(*value.Value); ok && hv.Init() != nil && c.scope() != nil {
			ref, err := c.declareVar(c.revgen.newName(name), hv)
			if err != nil {
				return err
			}
			x.Dict.Set(name, ref)
			return nil
		}
		x.Dict.Set(name, v)
		return nil
	case *host.Class:
		x.Dict.Set(name, v)
		return nil
	case *host.ModuleObject:
		x.Dict.Set(name, v)
		return nil
	case *host.Function:
		x.SetAttr(name, v)
		return nil
	}
	return host.Raise("AttributeError", "'%s' object attribute '%s' is read-only", host.TypeName(obj), name)
}
