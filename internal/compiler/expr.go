package compiler

import (
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

var binOps = map[string]emitter.Op{
	"+":  emitter.OpAdd,
	"-":  emitter.OpSub,
	"*":  emitter.OpMul,
	"/":  emitter.OpDiv,
	"//": emitter.OpDiv,
	"%":  emitter.OpMod,
	"|":  emitter.OpBitOr,
	"^":  emitter.OpBitXor,
	"&":  emitter.OpBitAnd,
	"@":  emitter.OpConcat,
	"<<": emitter.OpShl,
	">>": emitter.OpShr,
}

var cmpOps = map[string]emitter.Op{
	"==": emitter.OpEq,
	"!=": emitter.OpNotEq,
	"<":  emitter.OpLt,
	"<=": emitter.OpLtE,
	">":  emitter.OpGt,
	">=": emitter.OpGtE,
}

var unaryOps = map[string]emitter.Op{
	"-":   emitter.OpUSub,
	"+":   emitter.OpUAdd,
	"~":   emitter.OpInvert,
	"not": emitter.OpNot,
}

// Instance methods overloading binary operators, with their reflected form.
var dunders = map[string][2]string{
	"+":  {"__add__", "__radd__"},
	"-":  {"__sub__", "__rsub__"},
	"*":  {"__mul__", "__rmul__"},
	"/":  {"__truediv__", "__rtruediv__"},
	"//": {"__floordiv__", "__rfloordiv__"},
	"%":  {"__mod__", "__rmod__"},
	"|":  {"__or__", "__ror__"},
	"^":  {"__xor__", "__rxor__"},
	"&":  {"__and__", "__rand__"},
	"@":  {"__matmul__", "__rmatmul__"},
	"<<": {"__lshift__", "__rlshift__"},
	">>": {"__rshift__", "__rrshift__"},
	"**": {"__pow__", "__rpow__"},
}

func (c *Compiler) eval(e host.Expr) (any, error) {
	switch x := e.(type) {
	case *host.Name:
		return c.loadName(x.ID)
	case *host.Constant:
		return x.Value, nil
	case *host.FString:
		return c.evalFString(x)
	case *host.BinOp:
		l, err := c.eval(x.L)
		if err != nil {
			return nil, err
		}
		r, err := c.eval(x.R)
		if err != nil {
			return nil, err
		}
		return c.binop(x.Op, l, r)
	case *host.UnaryExpr:
		v, err := c.eval(x.X)
		if err != nil {
			return nil, err
		}
		return c.unaryop(x.Op, v)
	case *host.BoolOp:
		return c.evalBoolOp(x)
	case *host.CompareExpr:
		return c.evalCompare(x)
	case *host.Call:
		return c.evalCall(x)
	case *host.Attribute:
		obj, err := c.eval(x.X)
		if err != nil {
			return nil, err
		}
		return c.getAttr(obj, x.Attr)
	case *host.Subscript:
		obj, err := c.eval(x.X)
		if err != nil {
			return nil, err
		}
		if v, ok := obj.(*value.Value); ok {
			return c.subscriptValue(v, x.Index)
		}
		idx, err := c.eval(x.Index)
		if err != nil {
			return nil, err
		}
		return c.getItem(obj, idx)
	case *host.Slice:
		return c.evalSlice(x)
	case *host.List:
		items, err := c.evalItems(x.Elts)
		return host.NewList(items...), err
	case *host.Tuple:
		items, err := c.evalItems(x.Elts)
		return host.NewTuple(items...), err
	case *host.Set:
		items, err := c.evalItems(x.Elts)
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
	case *host.Dict:
		return c.evalDict(x)
	case *host.IfExp:
		return c.evalIfExp(x)
	case *host.Lambda:
		return c.makeFunction("<lambda>", x.Params, nil, x.Body, x.Line())
	case *host.Comp:
		return c.evalComp(x)
	case *host.DictComp:
		d := host.NewDict()
		err := c.walkGenerators(x.Generators, func() error {
			k, err := c.eval(x.Key)
			if err != nil {
				return err
			}
			v, err := c.eval(x.Value)
			if err != nil {
				return err
			}
			return d.Set(k, v)
		})
		return d, err
	case *host.NamedExpr:
		v, err := c.eval(x.Value)
		if err != nil {
			return nil, err
		}
		if err := c.assignName(x.Target, v); err != nil {
			return nil, err
		}
		return v, nil
	case *host.Yield:
		return c.evalYield(x)
	case *host.Starred:
		return nil, host.Raise("SyntaxError", "can't use starred expression here")
	}
	return nil, host.Raise("SyntaxError", "unsupported expression %T", e)
}

// evalItems evaluates container elements, expanding starred ones.
func (c *Compiler) evalItems(elts []host.Expr) ([]any, error) {
	items := make([]any, 0, len(elts))
	for _, e := range elts {
		if st, ok := e.(*host.Starred); ok {
			v, err := c.eval(st.X)
			if err != nil {
				return nil, err
			}
			vs, err := c.iterate(v)
			if err != nil {
				return nil, err
			}
			items = append(items, vs...)
			continue
		}
		v, err := c.eval(e)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func (c *Compiler) evalDict(x *host.Dict) (any, error) {
	d := host.NewDict()
	for i, ke := range x.Keys {
		v, err := c.eval(x.Values[i])
		if err != nil {
			return nil, err
		}
		if ke == nil {
			// "**mapping" entry.
			src, ok := v.(*host.DictObject)
			if !ok {
				return nil, host.Raise("TypeError", "'%s' object is not a mapping", host.TypeName(v))
			}
			for _, k := range src.Keys() {
				sv, _, _ := src.Get(k)
				if err := d.Set(k, sv); err != nil {
					return nil, err
				}
			}
			continue
		}
		k, err := c.eval(ke)
		if err != nil {
			return nil, err
		}
		if err := d.Set(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (c *Compiler) evalSlice(x *host.Slice) (any, error) {
	s := &host.SliceObject{}
	for _, p := range []struct {
		e   host.Expr
		dst *any
	}{{x.Lo, &s.Start}, {x.Hi, &s.Stop}, {x.Step, &s.Step}} {
		if p.e == nil {
			continue
		}
		v, err := c.eval(p.e)
		if err != nil {
			return nil, err
		}
		*p.dst = v
	}
	return s, nil
}

// subscriptValue indexes a hardware value. "v[i::w]" with a hardware i is
// a part select of width w.
func (c *Compiler) subscriptValue(v *value.Value, index host.Expr) (*value.Value, error) {
	parts := []host.Expr{index}
	if t, ok := index.(*host.Tuple); ok {
		parts = t.Elts
	}
	idx := make([]any, len(parts))
	for i, p := range parts {
		sl, ok := p.(*host.Slice)
		if !ok {
			x, err := c.eval(p)
			if err != nil {
				return nil, err
			}
			idx[i] = x
			continue
		}
		so, err := c.evalSlice(sl)
		if err != nil {
			return nil, err
		}
		s := so.(*host.SliceObject)
		if _, hw := s.Start.(*value.Value); hw {
			width, ok := emitter.AsInt(s.Step)
			if !ok {
				return nil, types.Errorf("Variable part select of %s needs an integer width: %v", v.Name(), s.Step)
			}
			idx[i] = emitter.Slice{Start: s.Start, Stop: s.Stop, Width: int(width)}
			continue
		}
		if value.HasHDLVars(s.Stop) || value.HasHDLVars(s.Step) {
			return nil, types.Errorf("Slice cannot have hardware bounds: %s", v.Name())
		}
		idx[i] = emitter.Slice{Start: s.Start, Stop: s.Stop, Step: s.Step}
	}
	return c.Builder().Index(v, idx...)
}

func (c *Compiler) evalIfExp(x *host.IfExp) (any, error) {
	test, err := c.eval(x.Test)
	if err != nil {
		return nil, err
	}
	if hv, ok := test.(*value.Value); ok {
		body, err := c.eval(x.Body)
		if err != nil {
			return nil, err
		}
		orelse, err := c.eval(x.Orelse)
		if err != nil {
			return nil, err
		}
		return c.Builder().IfExp(hv, body, orelse)
	}
	t, err := c.truth(test)
	if err != nil {
		return nil, err
	}
	if t {
		return c.eval(x.Body)
	}
	return c.eval(x.Orelse)
}

func (c *Compiler) evalYield(x *host.Yield) (any, error) {
	f := c.frame()
	var v any
	if x.Value != nil {
		var err error
		if v, err = c.eval(x.Value); err != nil {
			return nil, err
		}
	}
	if x.From {
		items, err := c.iterate(v)
		if err != nil {
			return nil, err
		}
		f.yields = append(f.yields, items...)
		return nil, nil
	}
	f.yields = append(f.yields, v)
	return nil, nil
}

// walkGenerators runs fn for every combination of the comprehension
// generators. Targets bind in a scope of their own.
func (c *Compiler) walkGenerators(gens []host.Comprehension, fn func() error) error {
	f := c.frame()
	saved := f.locals
	local := host.NewNamespace()
	f.locals = local
	if saved != f.globals {
		f.closure = append([]*host.Namespace{saved}, f.closure...)
		defer func() { f.closure = f.closure[1:] }()
	}
	defer func() { f.locals = saved }()

	var walk func(i int) error
	walk = func(i int) error {
		if i == len(gens) {
			return fn()
		}
		g := gens[i]
		var iter any
		var err error
		if i == 0 {
			// The outermost iterable is evaluated in the enclosing scope.
			f.locals = saved
			iter, err = c.eval(g.Iter)
			f.locals = local
		} else {
			iter, err = c.eval(g.Iter)
		}
		if err != nil {
			return err
		}
		items, err := c.iterate(iter)
		if err != nil {
			return err
		}
	next:
		for _, it := range items {
			if err := c.assignTarget(g.Target, it); err != nil {
				return err
			}
			for _, cond := range g.Ifs {
				cv, err := c.eval(cond)
				if err != nil {
					return err
				}
				t, err := c.truth(cv)
				if err != nil {
					return err
				}
				if !t {
					continue next
				}
			}
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0)
}

func (c *Compiler) evalComp(x *host.Comp) (any, error) {
	var items []any
	err := c.walkGenerators(x.Generators, func() error {
		v, err := c.eval(x.Elt)
		if err != nil {
			return err
		}
		items = append(items, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch x.Kind {
	case "set":
		s := host.NewSet()
		for _, it := range items {
			if err := s.Add(it); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "list":
		return host.NewList(items...), nil
	}
	// Generator expressions are materialized eagerly.
	return host.NewTuple(items...), nil
}

func (c *Compiler) evalBoolOp(x *host.BoolOp) (any, error) {
	isAnd := x.Op == "and"
	var hw []any
	var last any
	for _, e := range x.Values {
		v, err := c.eval(e)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(*value.Value); ok {
			hw = append(hw, v)
			continue
		}
		t, err := c.truth(v)
		if err != nil {
			return nil, err
		}
		if isAnd != t {
			// Short circuit: a false operand of "and", a true one of "or".
			if len(hw) == 0 {
				return v, nil
			}
			return !isAnd, nil
		}
		last = v
	}
	if len(hw) == 0 {
		return last, nil
	}
	if isAnd {
		return c.Builder().BoolAnd(hw...)
	}
	return c.Builder().BoolOr(hw...)
}

func (c *Compiler) evalCompare(x *host.CompareExpr) (any, error) {
	left, err := c.eval(x.Left)
	if err != nil {
		return nil, err
	}
	comps := make([]any, 0, len(x.Comps))
	hw := false
	if _, ok := left.(*value.Value); ok {
		hw = true
	}
	// Host chains short circuit, so operands are evaluated lazily.
	for i, ce := range x.Comps {
		cv, err := c.eval(ce)
		if err != nil {
			return nil, err
		}
		comps = append(comps, cv)
		if _, ok := cv.(*value.Value); ok {
			hw = true
		}
		if hw {
			continue
		}
		a := left
		if i > 0 {
			a = comps[i-1]
		}
		ok, err := c.compare(x.Ops[i], a, cv)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
	}
	if !hw {
		return true, nil
	}
	ops := make([]emitter.Op, len(x.Ops))
	for i, o := range x.Ops {
		op, ok := cmpOps[o]
		if !ok {
			return nil, types.Errorf("Unsupported comparison with hardware values: %s", o)
		}
		ops[i] = op
	}
	if err := c.Builder().allowed(); err != nil {
		return nil, err
	}
	return c.em.Compare(left, ops, comps)
}

// compare evaluates a host comparison, honoring instance overloads.
func (c *Compiler) compare(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return c.equal(a, b), nil
	case "!=":
		return !c.equal(a, b), nil
	case "in", "not in":
		in, err := c.contains(b, a)
		if op == "not in" {
			in = !in
		}
		return in, err
	}
	return host.Compare(op, a, b)
}

func (c *Compiler) equal(a, b any) bool {
	if inst, ok := a.(*host.Instance); ok {
		if m, err := c.getAttr(inst, "__eq__"); err == nil {
			r, err := c.call(m, []any{b}, nil)
			if err == nil {
				t, _ := c.truth(r)
				return t
			}
		}
	}
	return host.Equal(a, b)
}

func (c *Compiler) contains(container, x any) (bool, error) {
	switch ct := container.(type) {
	case *host.Class:
		members, ok := enumMembers(ct)
		if !ok {
			break
		}
		for _, m := range members {
			if host.Equal(m, x) {
				return true, nil
			}
		}
		return false, nil
	case *host.Instance:
		if m, err := c.getAttr(ct, "__contains__"); err == nil {
			r, err := c.call(m, []any{x}, nil)
			if err != nil {
				return false, err
			}
			return c.truth(r)
		}
		items, err := c.iterate(ct)
		if err != nil {
			return false, err
		}
		for _, it := range items {
			if c.equal(it, x) {
				return true, nil
			}
		}
		return false, nil
	}
	return host.Contains(container, x)
}

// binop applies a binary operator. A hardware operand hands the operation
// to the emitter.
func (c *Compiler) binop(op string, l, r any) (any, error) {
	_, lhw := l.(*value.Value)
	_, rhw := r.(*value.Value)
	if lhw || rhw {
		eop, ok := binOps[op]
		if !ok {
			return nil, types.Errorf("Unsupported operator with hardware values: %s", op)
		}
		return c.Builder().Binary(eop, l, r)
	}
	if names, ok := dunders[op]; ok {
		if inst, ok := l.(*host.Instance); ok {
			if m, err := c.getAttr(inst, names[0]); err == nil {
				return c.call(m, []any{r}, nil)
			}
		}
		if inst, ok := r.(*host.Instance); ok {
			if m, err := c.getAttr(inst, names[1]); err == nil {
				return c.call(m, []any{l}, nil)
			}
		}
	}
	if op == "@" {
		return nil, host.Raise("TypeError", "unsupported operand type(s) for @: '%s' and '%s'", host.TypeName(l), host.TypeName(r))
	}
	return host.BinaryOp(op, l, r)
}

func (c *Compiler) unaryop(op string, v any) (any, error) {
	if _, ok := v.(*value.Value); ok {
		return c.Builder().Unary(unaryOps[op], v)
	}
	if op == "not" {
		t, err := c.truth(v)
		return !t, err
	}
	if inst, ok := v.(*host.Instance); ok {
		name := map[string]string{"-": "__neg__", "+": "__pos__", "~": "__invert__"}[op]
		if m, err := c.getAttr(inst, name); err == nil {
			return c.call(m, nil, nil)
		}
	}
	return host.UnaryOp(op, v)
}

// truth is the host truth value of x, honoring __bool__ and __len__.
func (c *Compiler) truth(x any) (bool, error) {
	if inst, ok := x.(*host.Instance); ok {
		for _, name := range []string{"__bool__", "__len__"} {
			if m, err := c.getAttr(inst, name); err == nil {
				r, err := c.call(m, nil, nil)
				if err != nil {
					return false, err
				}
				return host.Truth(r)
			}
		}
		return true, nil
	}
	return host.Truth(x)
}

// iterate returns the items a for loop walks over.
func (c *Compiler) iterate(x any) ([]any, error) {
	switch v := x.(type) {
	case *value.Value:
		return nil, types.Errorf("Cannot iterate over hardware value %s", v.Name())
	case *host.Class:
		if members, ok := enumMembers(v); ok {
			return members, nil
		}
	case *host.Instance:
		m, err := c.getAttr(v, "__iter__")
		if err != nil {
			return nil, host.Raise("TypeError", "'%s' object is not iterable", v.Class.Name)
		}
		r, err := c.call(m, nil, nil)
		if err != nil {
			return nil, err
		}
		if r == x {
			return nil, host.Raise("TypeError", "iterator protocol is not supported, return a sequence from __iter__")
		}
		return c.iterate(r)
	}
	return host.Iterate(x)
}

func (c *Compiler) getItem(obj, idx any) (any, error) {
	if inst, ok := obj.(*host.Instance); ok {
		m, err := c.getAttr(inst, "__getitem__")
		if err != nil {
			return nil, host.Raise("TypeError", "'%s' object is not subscriptable", inst.Class.Name)
		}
		return c.call(m, []any{idx}, nil)
	}
	if cls, ok := obj.(*host.Class); ok {
		// Enum classes are subscripted by member name.
		if name, ok := idx.(string); ok {
			if _, isEnum := enumMembers(cls); isEnum {
				if v, ok := cls.Dict.Get(name); ok {
					return v, nil
				}
				return nil, &host.Exception{Kind: "KeyError", Msg: host.Repr(name)}
			}
		}
	}
	return host.GetItem(obj, idx)
}

func (c *Compiler) setItem(obj, idx, v any) error {
	if inst, ok := obj.(*host.Instance); ok {
		m, err := c.getAttr(inst, "__setitem__")
		if err != nil {
			return host.Raise("TypeError", "'%s' object does not support item assignment", inst.Class.Name)
		}
		_, err = c.call(m, []any{idx, v}, nil)
		return err
	}
	return host.SetItem(obj, idx, v)
}

// evalFString renders an f-string on the host side. Hardware values render
// as their target language text.
func (c *Compiler) evalFString(x *host.FString) (any, error) {
	var sb strings.Builder
	for _, p := range x.Parts {
		if p.X == nil {
			sb.WriteString(p.Lit)
			continue
		}
		v, err := c.eval(p.X)
		if err != nil {
			return nil, err
		}
		s, err := c.formatValue(v, p.Conv, p.Spec)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (c *Compiler) formatValue(v any, conv byte, spec string) (string, error) {
	switch conv {
	case 'r':
		return c.repr(v)
	case 's':
		return c.str(v)
	}
	if spec == "" {
		return c.str(v)
	}
	return host.Format(v, spec)
}
