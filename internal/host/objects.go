package host

import (
	"fmt"
	"sort"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// EllipsisType is the type of the "..." literal.
type EllipsisType struct{}

var Ellipsis = EllipsisType{}

// Namespace is an insertion ordered name to object map.
type Namespace struct {
	keys []string
	vals map[string]any
}

func NewNamespace() *Namespace {
	return &Namespace{vals: make(map[string]any)}
}

// NamespaceOf builds a namespace from m, in sorted key order.
func NamespaceOf(m map[string]any) *Namespace {
	ns := NewNamespace()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ns.Set(k, m[k])
	}
	return ns
}

func (n *Namespace) Get(name string) (any, bool) {
	v, ok := n.vals[name]
	return v, ok
}

func (n *Namespace) Set(name string, v any) {
	if _, ok := n.vals[name]; !ok {
		n.keys = append(n.keys, name)
	}
	n.vals[name] = v
}

func (n *Namespace) Delete(name string) bool {
	if _, ok := n.vals[name]; !ok {
		return false
	}
	delete(n.vals, name)
	for i, k := range n.keys {
		if k == name {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return true
}

func (n *Namespace) Keys() []string { return append([]string(nil), n.keys...) }
func (n *Namespace) Len() int       { return len(n.keys) }

func (n *Namespace) Clone() *Namespace {
	c := &Namespace{keys: append([]string(nil), n.keys...), vals: make(map[string]any, len(n.vals))}
	for k, v := range n.vals {
		c.vals[k] = v
	}
	return c
}

// Update copies every binding of o into n.
func (n *Namespace) Update(o *Namespace) {
	for _, k := range o.keys {
		n.Set(k, o.vals[k])
	}
}

// ListObject is a mutable host list.
type ListObject struct {
	Elts []any
}

func NewList(elts ...any) *ListObject { return &ListObject{Elts: elts} }

func (l *ListObject) Items() []any { return l.Elts }

// TupleObject is an immutable host tuple.
type TupleObject struct {
	Elts []any
}

func NewTuple(elts ...any) *TupleObject { return &TupleObject{Elts: elts} }

func (t *TupleObject) Items() []any { return t.Elts }

// Items returns the elements of a host list or tuple, nil for anything else.
func Items(x any) []any {
	switch x := x.(type) {
	case *ListObject:
		return x.Elts
	case *TupleObject:
		return x.Elts
	}
	return nil
}

// HashKey maps a hashable host object to a comparable Go key, following
// host equality: True and 1 collide, as do 2.0 and 2.
func HashKey(x any) (any, error) {
	switch v := x.(type) {
	case nil, string, int64, EllipsisType:
		return v, nil
	case int:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return v, nil
	case *TupleObject:
		key := "("
		for _, e := range v.Elts {
			k, err := HashKey(e)
			if err != nil {
				return nil, err
			}
			key += fmt.Sprintf("%T:%v,", k, k)
		}
		return key + ")", nil
	case *types.Type:
		return "type:" + v.Key(), nil
	case *value.Value, *ListObject, *DictObject, *SetObject:
		return nil, Raise("TypeError", "unhashable type: '%s'", TypeName(x))
	}
	return x, nil
}

// DictObject is an insertion ordered host dict.
type DictObject struct {
	order []any
	keys  map[any]any
	vals  map[any]any
}

func NewDict() *DictObject {
	return &DictObject{keys: make(map[any]any), vals: make(map[any]any)}
}

func (d *DictObject) Get(k any) (any, bool, error) {
	hk, err := HashKey(k)
	if err != nil {
		return nil, false, err
	}
	v, ok := d.vals[hk]
	return v, ok, nil
}

func (d *DictObject) Set(k, v any) error {
	hk, err := HashKey(k)
	if err != nil {
		return err
	}
	if _, ok := d.vals[hk]; !ok {
		d.order = append(d.order, hk)
		d.keys[hk] = k
	}
	d.vals[hk] = v
	return nil
}

// SetStr is Set for string keys, which are always hashable.
func (d *DictObject) SetStr(k string, v any) {
	_ = d.Set(k, v)
}

func (d *DictObject) Delete(k any) (bool, error) {
	hk, err := HashKey(k)
	if err != nil {
		return false, err
	}
	if _, ok := d.vals[hk]; !ok {
		return false, nil
	}
	delete(d.vals, hk)
	delete(d.keys, hk)
	for i, o := range d.order {
		if o == hk {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (d *DictObject) Len() int { return len(d.order) }

func (d *DictObject) Keys() []any {
	keys := make([]any, len(d.order))
	for i, hk := range d.order {
		keys[i] = d.keys[hk]
	}
	return keys
}

func (d *DictObject) Values() []any {
	vals := make([]any, len(d.order))
	for i, hk := range d.order {
		vals[i] = d.vals[hk]
	}
	return vals
}

// Items returns keys and values interleaved, so hardware values stored in
// a dict are seen by value.HasHDLVars.
func (d *DictObject) Items() []any {
	items := make([]any, 0, 2*len(d.order))
	for _, hk := range d.order {
		items = append(items, d.keys[hk], d.vals[hk])
	}
	return items
}

func (d *DictObject) Clone() *DictObject {
	c := NewDict()
	for _, hk := range d.order {
		c.order = append(c.order, hk)
		c.keys[hk] = d.keys[hk]
		c.vals[hk] = d.vals[hk]
	}
	return c
}

// StringKeys returns the dict as a namespace, failing on non string keys.
func (d *DictObject) StringKeys() (*Namespace, error) {
	ns := NewNamespace()
	for _, hk := range d.order {
		s, ok := d.keys[hk].(string)
		if !ok {
			return nil, Raise("TypeError", "keywords must be strings, not %s", TypeName(d.keys[hk]))
		}
		ns.Set(s, d.vals[hk])
	}
	return ns, nil
}

// SetObject is an insertion ordered host set.
type SetObject struct {
	order []any
	elts  map[any]any
}

func NewSet() *SetObject {
	return &SetObject{elts: make(map[any]any)}
}

func (s *SetObject) Add(x any) error {
	hk, err := HashKey(x)
	if err != nil {
		return err
	}
	if _, ok := s.elts[hk]; !ok {
		s.order = append(s.order, hk)
		s.elts[hk] = x
	}
	return nil
}

func (s *SetObject) Has(x any) (bool, error) {
	hk, err := HashKey(x)
	if err != nil {
		return false, err
	}
	_, ok := s.elts[hk]
	return ok, nil
}

func (s *SetObject) Remove(x any) (bool, error) {
	hk, err := HashKey(x)
	if err != nil {
		return false, err
	}
	if _, ok := s.elts[hk]; !ok {
		return false, nil
	}
	delete(s.elts, hk)
	for i, o := range s.order {
		if o == hk {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *SetObject) Len() int { return len(s.order) }

func (s *SetObject) Items() []any {
	items := make([]any, len(s.order))
	for i, hk := range s.order {
		items[i] = s.elts[hk]
	}
	return items
}

// Range is the lazy integer sequence built by range().
type Range struct {
	Start, Stop, Step int64
}

func (r *Range) Len() int {
	var n int64
	if r.Step > 0 && r.Start < r.Stop {
		n = (r.Stop - r.Start + r.Step - 1) / r.Step
	} else if r.Step < 0 && r.Start > r.Stop {
		n = (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return int(n)
}

func (r *Range) At(i int) int64 { return r.Start + int64(i)*r.Step }

func (r *Range) Items() []any {
	items := make([]any, r.Len())
	for i := range items {
		items[i] = r.At(i)
	}
	return items
}

// SliceObject is the value of a "lo:hi:step" subscript.
type SliceObject struct {
	Start, Stop, Step any
}

// Indices resolves the slice against a sequence of length n.
func (s *SliceObject) Indices(n int) (start, stop, step int, err error) {
	step = 1
	if s.Step != nil {
		st, ok := s.Step.(int64)
		if !ok {
			return 0, 0, 0, Raise("TypeError", "slice indices must be integers")
		}
		if st == 0 {
			return 0, 0, 0, Raise("ValueError", "slice step cannot be zero")
		}
		step = int(st)
	}
	clamp := func(x any, def int) (int, error) {
		if x == nil {
			return def, nil
		}
		iv, ok := x.(int64)
		if !ok {
			return 0, Raise("TypeError", "slice indices must be integers")
		}
		i := int(iv)
		if i < 0 {
			i += n
			if i < 0 {
				if step < 0 {
					return -1, nil
				}
				return 0, nil
			}
		}
		if i >= n {
			if step < 0 {
				return n - 1, nil
			}
			return n, nil
		}
		return i, nil
	}
	if step > 0 {
		start, err = clamp(s.Start, 0)
		if err == nil {
			stop, err = clamp(s.Stop, n)
		}
	} else {
		start, err = clamp(s.Start, n-1)
		if err == nil {
			stop, err = clamp(s.Stop, -1)
		}
	}
	return start, stop, step, err
}

// Function is a user defined function or lambda. Lambdas carry their body
// in Expr.
type Function struct {
	Name     string
	Params   []Param
	Defaults map[string]any
	Body     []Stmt
	Expr     Expr
	Globals  *Namespace
	// Closure holds the enclosing function scopes, innermost first.
	Closure []*Namespace
	File    string
	Line    int
	Attrs   *Namespace
	// Generator is set when the body contains a yield.
	Generator bool
}

// Attr returns a function attribute set by decorators.
func (f *Function) Attr(name string) (any, bool) {
	if f.Attrs == nil {
		return nil, false
	}
	return f.Attrs.Get(name)
}

func (f *Function) SetAttr(name string, v any) {
	if f.Attrs == nil {
		f.Attrs = NewNamespace()
	}
	f.Attrs.Set(name, v)
}

// Class is a host class. Native carries the Go side payload of builtin
// classes.
type Class struct {
	Name   string
	Bases  []*Class
	Dict   *Namespace
	MRO    []*Class
	Native any
}

// NewClass builds a class and linearizes its bases.
func NewClass(name string, bases []*Class, dict *Namespace) (*Class, error) {
	if dict == nil {
		dict = NewNamespace()
	}
	c := &Class{Name: name, Bases: bases, Dict: dict}
	mro, err := c3(c)
	if err != nil {
		return nil, err
	}
	c.MRO = mro
	return c, nil
}

// MustClass is NewClass for builtin hierarchies known to be consistent.
func MustClass(name string, bases ...*Class) *Class {
	c, err := NewClass(name, bases, nil)
	if err != nil {
		panic(err)
	}
	return c
}

func c3(c *Class) ([]*Class, error) {
	var seqs [][]*Class
	for _, b := range c.Bases {
		seqs = append(seqs, append([]*Class(nil), b.MRO...))
	}
	seqs = append(seqs, append([]*Class(nil), c.Bases...))
	out := []*Class{c}
	for {
		nonEmpty := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				nonEmpty = append(nonEmpty, s)
			}
		}
		seqs = nonEmpty
		if len(seqs) == 0 {
			return out, nil
		}
		var head *Class
		for _, s := range seqs {
			cand := s[0]
			inTail := false
			for _, o := range seqs {
				for _, t := range o[1:] {
					if t == cand {
						inTail = true
					}
				}
			}
			if !inTail {
				head = cand
				break
			}
		}
		if head == nil {
			return nil, Raise("TypeError", "cannot create a consistent method resolution order for %s", c.Name)
		}
		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

// Lookup finds name along the MRO and returns the defining class too.
func (c *Class) Lookup(name string) (any, *Class, bool) {
	for _, k := range c.MRO {
		if v, ok := k.Dict.Get(name); ok {
			return v, k, true
		}
	}
	return nil, nil, false
}

func (c *Class) IsSubclass(o *Class) bool {
	for _, k := range c.MRO {
		if k == o {
			return true
		}
	}
	return false
}

// Instance is an object of a user or builtin class.
type Instance struct {
	Class  *Class
	Dict   *Namespace
	Native any
}

func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Dict: NewNamespace()}
}

// BoundMethod binds Self as first argument of Func.
type BoundMethod struct {
	Self any
	Func any
}

type StaticMethod struct{ Func any }
type ClassMethod struct{ Func any }
type Property struct{ Get any }

// ModuleObject is an imported module.
type ModuleObject struct {
	Name string
	Dict *Namespace
}

// TypeName returns the host type name of x, as used in error messages.
func TypeName(x any) string {
	switch v := x.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64, int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case EllipsisType:
		return "ellipsis"
	case *ListObject:
		return "list"
	case *TupleObject:
		return "tuple"
	case *DictObject:
		return "dict"
	case *SetObject:
		return "set"
	case *Range:
		return "range"
	case *SliceObject:
		return "slice"
	case *Function:
		return "function"
	case *BoundMethod:
		return "method"
	case *Class:
		return "type"
	case *Instance:
		return v.Class.Name
	case *ModuleObject:
		return "module"
	case *types.Type:
		return "Type"
	case *value.Value:
		return "Value"
	}
	return fmt.Sprintf("%T", x)
}
