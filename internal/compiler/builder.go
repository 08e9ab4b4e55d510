package compiler

import (
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Builder builds hardware expressions. Host operators applied to hardware
// values in process bodies go through the same methods, so native
// extensions and host code produce identical output.
//
// Operands are hardware values or host literals; literals take the type
// of the hardware operand they are combined with.
type Builder struct {
	c *Compiler
}

// Builder returns the expression builder of the compilation.
func (c *Compiler) Builder() *Builder { return &Builder{c: c} }

func (b *Builder) allowed() error {
	if b.c.noHDL > 0 {
		return types.Errorf("Hardware operation within a no_hdl block")
	}
	return nil
}

// Binary applies op to l and r.
func (b *Builder) Binary(op emitter.Op, l, r any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.BinOp(op, l, r)
}

func (b *Builder) Add(l, r any) (*value.Value, error) { return b.Binary(emitter.OpAdd, l, r) }
func (b *Builder) Sub(l, r any) (*value.Value, error) { return b.Binary(emitter.OpSub, l, r) }
func (b *Builder) Mul(l, r any) (*value.Value, error) { return b.Binary(emitter.OpMul, l, r) }
func (b *Builder) Div(l, r any) (*value.Value, error) { return b.Binary(emitter.OpDiv, l, r) }
func (b *Builder) Mod(l, r any) (*value.Value, error) { return b.Binary(emitter.OpMod, l, r) }
func (b *Builder) And(l, r any) (*value.Value, error) { return b.Binary(emitter.OpBitAnd, l, r) }
func (b *Builder) Or(l, r any) (*value.Value, error)  { return b.Binary(emitter.OpBitOr, l, r) }
func (b *Builder) Xor(l, r any) (*value.Value, error) { return b.Binary(emitter.OpBitXor, l, r) }
func (b *Builder) Shl(l, r any) (*value.Value, error) { return b.Binary(emitter.OpShl, l, r) }
func (b *Builder) Shr(l, r any) (*value.Value, error) { return b.Binary(emitter.OpShr, l, r) }

// Concat joins args, most significant first.
func (b *Builder) Concat(args ...any) (*value.Value, error) {
	if len(args) < 2 {
		return nil, types.Errorf("Concat needs at least two arguments, got %d", len(args))
	}
	acc, err := b.Binary(emitter.OpConcat, args[0], args[1])
	if err != nil {
		return nil, err
	}
	for _, a := range args[2:] {
		if acc, err = b.Binary(emitter.OpConcat, acc, a); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Compare builds "l op r", with op one of == != < <= > >=.
func (b *Builder) Compare(op string, l, r any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	eop, ok := cmpOps[op]
	if !ok {
		return nil, types.Errorf("Unsupported comparison with hardware values: %s", op)
	}
	return b.c.em.Compare(l, []emitter.Op{eop}, []any{r})
}

// Unary applies a unary operator.
func (b *Builder) Unary(op emitter.Op, v any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.UnaryOp(op, v)
}

func (b *Builder) Not(v any) (*value.Value, error)    { return b.Unary(emitter.OpNot, v) }
func (b *Builder) Neg(v any) (*value.Value, error)    { return b.Unary(emitter.OpUSub, v) }
func (b *Builder) Invert(v any) (*value.Value, error) { return b.Unary(emitter.OpInvert, v) }

func (b *Builder) BoolAnd(args ...any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.BoolOp(emitter.OpAnd, args)
}

func (b *Builder) BoolOr(args ...any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.BoolOp(emitter.OpOr, args)
}

// IfExp selects body when test holds, orelse otherwise.
func (b *Builder) IfExp(test, body, orelse any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.IfExp(test, body, orelse)
}

func (b *Builder) Cast(x any, dtype *types.Type) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.Cast(x, dtype)
}

// Index selects one element per leading dimension of v.
func (b *Builder) Index(v *value.Value, idx ...any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.Subscript(v, idx)
}

// Slice selects [start, stop) on the first dimension of v. Either bound may
// be nil.
func (b *Builder) Slice(v *value.Value, start, stop any) (*value.Value, error) {
	if err := b.allowed(); err != nil {
		return nil, err
	}
	return b.c.em.Subscript(v, []any{emitter.Slice{Start: start, Stop: stop}})
}
