package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the class of a hardware type.
type Kind uint8

const (
	KindUint Kind = iota + 1
	KindSint
	KindBits
	KindFloat
	KindBool
	KindInteger
	KindReal
	KindVoid
)

// NoBits marks the last shape slot of types which carry no bit width.
const NoBits = 0

var kindNames = map[Kind]string{
	KindUint:    "uint",
	KindSint:    "sint",
	KindBits:    "bits",
	KindFloat:   "float",
	KindBool:    "bool",
	KindInteger: "integer",
	KindReal:    "real",
	KindVoid:    "void",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// HasBits reports whether types of this kind carry a bit width.
func (k Kind) HasBits() bool {
	switch k {
	case KindUint, KindSint, KindBits, KindFloat:
		return true
	}
	return false
}

// Type is an immutable hardware type. The last slot of the full shape holds
// the bit width (NoBits for kinds without one), the preceding slots are the
// array dimensions, major first.
type Type struct {
	kind  Kind
	shape []int
}

func newType(kind Kind, shape []int) *Type {
	s := append([]int(nil), shape...)
	if !kind.HasBits() && (len(s) == 0 || s[len(s)-1] != NoBits) {
		s = append(s, NoBits)
	}
	return &Type{kind: kind, shape: s}
}

func NewUint(shape ...int) *Type    { return newType(KindUint, shape) }
func NewSint(shape ...int) *Type    { return newType(KindSint, shape) }
func NewBits(shape ...int) *Type    { return newType(KindBits, shape) }
func NewFloat(shape ...int) *Type   { return newType(KindFloat, shape) }
func NewBool(shape ...int) *Type    { return newType(KindBool, shape) }
func NewInteger(shape ...int) *Type { return newType(KindInteger, shape) }
func NewReal(shape ...int) *Type    { return newType(KindReal, shape) }
func NewVoid() *Type                { return newType(KindVoid, nil) }

// New builds a type of the given kind.
func New(kind Kind, shape ...int) *Type { return newType(kind, shape) }

var (
	Int4    = NewSint(4)
	Int8    = NewSint(8)
	Int16   = NewSint(16)
	Int32   = NewSint(32)
	Int64   = NewSint(64)
	Int128  = NewSint(128)
	Uint4   = NewUint(4)
	Uint8   = NewUint(8)
	Uint16  = NewUint(16)
	Uint32  = NewUint(32)
	Uint64  = NewUint(64)
	Uint128 = NewUint(128)
	Float16 = NewFloat(16)
	Float32 = NewFloat(32)
	Float64 = NewFloat(64)

	BitType  = NewBits(1)
	BoolType = NewBool()
	IntType  = NewInteger()
	RealType = NewReal()
	VoidType = NewVoid()

	DefaultFloat = Float32
)

func (t *Type) Kind() Kind       { return t.kind }
func (t *Type) Name() string     { return t.kind.String() }
func (t *Type) HasBits() bool    { return t.kind.HasBits() }
func (t *Type) IsVoid() bool     { return t.kind == KindVoid }
func (t *Type) NDim() int        { return len(t.shape) }
func (t *Type) NBits() int       { return t.shape[len(t.shape)-1] }
func (t *Type) IsArray() bool    { return len(t.shape) > 1 }
func (t *Type) FullShape() []int { return append([]int(nil), t.shape...) }

// Shape returns the full shape, without the bit slot for kinds that have none.
func (t *Type) Shape() []int {
	if t.HasBits() {
		return t.FullShape()
	}
	return append([]int(nil), t.shape[:len(t.shape)-1]...)
}

// ArrayShape returns the array dimensions only.
func (t *Type) ArrayShape() []int {
	return append([]int(nil), t.shape[:len(t.shape)-1]...)
}

// Size is the number of elements of the array part.
func (t *Type) Size() int {
	size := 1
	for _, d := range t.shape[:len(t.shape)-1] {
		size *= d
	}
	return size
}

// NewShape returns a type of the same kind with a different full shape.
func (t *Type) NewShape(shape ...int) *Type { return newType(t.kind, shape) }

// ElementType drops the array dimensions.
func (t *Type) ElementType() *Type { return newType(t.kind, t.shape[len(t.shape)-1:]) }

func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.kind != o.kind || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Key is a structural hash key.
func (t *Type) Key() string { return t.String() }

func (t *Type) String() string {
	parts := make([]string, 0, len(t.shape))
	for _, d := range t.shape {
		if d == NoBits {
			parts = append(parts, "None")
		} else {
			parts = append(parts, strconv.Itoa(d))
		}
	}
	if !t.HasBits() {
		parts = parts[:len(parts)-1]
	}
	return t.Name() + "(" + strings.Join(parts, ", ") + ")"
}

// MkArray prepends array dimensions to base.
func MkArray(base *Type, dims ...int) *Type {
	shape := append(append([]int(nil), dims...), base.shape...)
	return newType(base.kind, shape)
}

// Squeeze drops leading array dimensions, keeping at least one slot.
func (t *Type) Squeeze(n int) *Type {
	if n > len(t.shape)-1 {
		n = len(t.shape) - 1
	}
	return newType(t.kind, t.shape[n:])
}

var (
	arrayPrefixRx = regexp.MustCompile(`^\((\d+(,\d+)*)\)`)
	bitsTypeRx    = regexp.MustCompile(`^([usbf])(\d+)$`)
)

var classKinds = map[string]Kind{
	"u": KindUint,
	"s": KindSint,
	"b": KindBits,
	"f": KindFloat,
}

var namedTypes = map[string]*Type{
	"bit":  BitType,
	"int":  IntType,
	"real": RealType,
	"bool": BoolType,
	"void": VoidType,
}

// KindOfClass maps the short class letters (u, s, b, f) to kinds.
func KindOfClass(c string) (Kind, bool) {
	k, ok := classKinds[strings.ToLower(c)]
	return k, ok
}

// Parse reads type strings like "u8", "s16", "bit", "real" or "(4,4)f32".
func Parse(s string) (*Type, error) {
	ts := strings.ToLower(strings.Join(strings.Fields(s), ""))
	var dims []int
	if m := arrayPrefixRx.FindStringSubmatch(ts); m != nil {
		for _, d := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(d)
			if err != nil {
				return nil, &TypeError{Msg: fmt.Sprintf("Invalid array shape: %s", s)}
			}
			dims = append(dims, n)
		}
		ts = ts[len(m[0]):]
	}
	var base *Type
	if m := bitsTypeRx.FindStringSubmatch(ts); m != nil {
		nbits, _ := strconv.Atoi(m[2])
		if nbits == 0 {
			return nil, &TypeError{Msg: fmt.Sprintf("Invalid bit width: %s", s)}
		}
		base = newType(classKinds[m[1]], []int{nbits})
	} else if nt, ok := namedTypes[ts]; ok {
		base = nt
	} else {
		return nil, &TypeError{Msg: fmt.Sprintf("Unknown type string: %s", s)}
	}
	if len(dims) > 0 {
		return MkArray(base, dims...), nil
	}
	return base, nil
}

// MustParse is Parse for tables of constants.
func MustParse(s string) *Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TypeError reports an unsupported operand type or a shape mismatch.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return e.Msg }

func Errorf(format string, args ...any) error {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}
