package value

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

// Kind classifies how a Value is materialized in the target language.
type Kind int8

const (
	Temp Kind = iota
	Wire
	Register
)

func (k Kind) String() string {
	switch k {
	case Wire:
		return "WIRE"
	case Register:
		return "REG"
	}
	return "TEMP"
}

type Mode int8

const (
	RW Mode = iota + 1
	RO
)

// Attr is a named attribute attached to a declaration.
type Attr struct {
	Name  string
	Value any
}

// CommonAttrs is the attribute group applied for every backend.
const CommonAttrs = "$common"

// VSpec carries declaration properties of a variable.
type VSpec struct {
	Const      bool
	Port       *entity.Port
	Attributes map[string][]Attr
}

func (s *VSpec) Equal(o *VSpec) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Const != o.Const || !s.Port.Equal(o.Port) || len(s.Attributes) != len(o.Attributes) {
		return false
	}
	for k, attrs := range s.Attributes {
		oattrs, ok := o.Attributes[k]
		if !ok || len(oattrs) != len(attrs) {
			return false
		}
		for i := range attrs {
			if attrs[i].Name != oattrs[i].Name || fmt.Sprint(attrs[i].Value) != fmt.Sprint(oattrs[i].Value) {
				return false
			}
		}
	}
	return true
}

// BackendAttrs merges the common attributes with the backend specific ones,
// the latter overriding the former by name.
func (s *VSpec) BackendAttrs(backend string) []Attr {
	if s == nil {
		return nil
	}
	var attrs []Attr
	index := make(map[string]int)
	for _, group := range []string{CommonAttrs, backend} {
		for _, a := range s.Attributes[group] {
			if i, ok := index[a.Name]; ok {
				attrs[i] = a
			} else {
				index[a.Name] = len(attrs)
				attrs = append(attrs, a)
			}
		}
	}
	return attrs
}

// Ref is a named reference to a declared variable or port.
type Ref struct {
	Name  string
	Mode  Mode
	VSpec *VSpec
}

func NewRef(name string, vspec *VSpec) *Ref {
	mode := RW
	if vspec != nil && vspec.Const {
		mode = RO
	}
	return &Ref{Name: name, Mode: mode, VSpec: vspec}
}

func (r *Ref) String() string {
	if r.Mode == RW {
		return "$" + r.Name
	}
	return "#" + r.Name
}

func (r *Ref) Equal(o *Ref) bool {
	return r.Name == o.Name && r.Mode == o.Mode && r.VSpec.Equal(o.VSpec)
}

func (r *Ref) WithName(name string) *Ref {
	c := *r
	c.Name = name
	return &c
}

func (r *Ref) WithMode(mode Mode) *Ref {
	c := *r
	c.Mode = mode
	return &c
}

// Init is the literal initializer of a variable which is declared at its
// first assignment.
type Init struct {
	Value any
	VSpec *VSpec
}

func (i *Init) String() string {
	if i.VSpec == nil {
		return fmt.Sprint(i.Value)
	}
	return fmt.Sprintf("(%v, %+v)", i.Value, *i.VSpec)
}

// Value is a hardware value. Its materialization is the expression text, a
// Ref to a declared object, an Init for a pending declaration, or nil for an
// unconnected (none) value.
type Value struct {
	dtype *types.Type
	mat   any
	kind  Kind
}

// New creates a value. mat must be a string, *Ref, *Init or nil.
func New(dtype *types.Type, mat any, kind Kind) *Value {
	switch mat.(type) {
	case nil, string, *Ref, *Init:
	default:
		panic(fmt.Sprintf("invalid value materialization %T", mat))
	}
	return &Value{dtype: dtype, mat: mat, kind: kind}
}

// NewTemp wraps an expression text into a temporary value.
func NewTemp(dtype *types.Type, text string) *Value {
	return &Value{dtype: dtype, mat: text, kind: Temp}
}

func (v *Value) DType() *types.Type { return v.dtype }
func (v *Value) Kind() Kind         { return v.kind }
func (v *Value) IsReg() bool        { return v.kind == Register }
func (v *Value) IsWire() bool       { return v.kind == Wire }
func (v *Value) IsTemp() bool       { return v.kind == Temp }
func (v *Value) IsNone() bool       { return v.mat == nil }

// Text returns the expression text of the value, or the referenced name.
func (v *Value) Text() string {
	switch m := v.mat.(type) {
	case string:
		return m
	case *Ref:
		return m.Name
	}
	return ""
}

func (v *Value) Ref() *Ref {
	r, _ := v.mat.(*Ref)
	return r
}

func (v *Value) Init() *Init {
	i, _ := v.mat.(*Init)
	return i
}

// Name is the referenced name, empty when the value is not a reference.
func (v *Value) Name() string {
	if r := v.Ref(); r != nil {
		return r.Name
	}
	return ""
}

// VSpec returns the declaration spec from either the ref or the init.
func (v *Value) VSpec() *VSpec {
	switch m := v.mat.(type) {
	case *Ref:
		return m.VSpec
	case *Init:
		return m.VSpec
	}
	return nil
}

func (v *Value) IsConst() bool {
	vs := v.VSpec()
	return vs != nil && vs.Const
}

func (v *Value) String() string {
	var mat string
	switch m := v.mat.(type) {
	case nil:
		mat = "None"
	case string:
		mat = m
	default:
		mat = fmt.Sprint(m)
	}
	return fmt.Sprintf("Value(%s, dtype=%s, isreg=%s)", mat, v.dtype, v.kind)
}

func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if !v.dtype.Equal(o.dtype) || v.kind != o.kind {
		return false
	}
	switch m := v.mat.(type) {
	case *Ref:
		or, ok := o.mat.(*Ref)
		return ok && m.Equal(or)
	case *Init:
		oi, ok := o.mat.(*Init)
		return ok && fmt.Sprint(m.Value) == fmt.Sprint(oi.Value) && m.VSpec.Equal(oi.VSpec)
	}
	return v.mat == o.mat
}

// Deref drops the reference and the wire/register status.
func (v *Value) Deref() *Value {
	if r := v.Ref(); r != nil {
		return &Value{dtype: v.dtype, mat: r.Name, kind: Temp}
	}
	return v
}

// NewValue returns a copy with a different materialization and, when shape
// is not nil, a different full shape.
func (v *Value) NewValue(mat any, shape []int) *Value {
	dtype := v.dtype
	if shape != nil {
		dtype = dtype.NewShape(shape...)
	}
	n := New(dtype, mat, v.kind)
	return n
}

func (v *Value) NewKind(kind Kind) *Value {
	return &Value{dtype: v.dtype, mat: v.mat, kind: kind}
}

func (v *Value) NewType(dtype *types.Type) *Value {
	return &Value{dtype: dtype, mat: v.mat, kind: v.kind}
}

func initValue(name string, vspec *VSpec) any {
	if name != "" {
		return NewRef(name, vspec)
	}
	return &Init{VSpec: vspec}
}

// MkWire creates a wire. Without a name the wire is declared at its first
// assignment.
func MkWire(dtype *types.Type, name string, vspec *VSpec) *Value {
	return New(dtype, initValue(name, vspec), Wire)
}

func MkReg(dtype *types.Type, name string, vspec *VSpec) *Value {
	return New(dtype, initValue(name, vspec), Register)
}

// MkVWire creates a wire with an initial literal value.
func MkVWire(dtype *types.Type, literal any, vspec *VSpec) *Value {
	return New(dtype, &Init{Value: literal, VSpec: vspec}, Wire)
}

func MkVReg(dtype *types.Type, literal any, vspec *VSpec) *Value {
	return New(dtype, &Init{Value: literal, VSpec: vspec}, Register)
}

// MkNone creates an unconnected value of the given type.
func MkNone(dtype *types.Type) *Value {
	return &Value{dtype: dtype, kind: Wire}
}

// MakeRO turns a read-write reference into a read-only one.
func MakeRO(v *Value) *Value {
	if r := v.Ref(); r != nil && r.Mode == RW {
		return &Value{dtype: v.dtype, mat: r.WithMode(RO), kind: v.kind}
	}
	return v
}

func IsRORef(v *Value) bool {
	r := v.Ref()
	return r != nil && r.Mode == RO
}

// Sequence is implemented by host containers which may hold hardware values.
type Sequence interface {
	Items() []any
}

// HasHDLVars reports whether x is, or recursively contains, a hardware value.
func HasHDLVars(x any) bool {
	switch v := x.(type) {
	case *Value:
		return true
	case []any:
		for _, e := range v {
			if HasHDLVars(e) {
				return true
			}
		}
	case Sequence:
		return HasHDLVars(v.Items())
	}
	return false
}
