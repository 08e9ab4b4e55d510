package compiler

import (
	"context"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// CallCtx is handed to builtins implemented in Go. It gives access to the
// compiler running the call.
type CallCtx struct {
	C *Compiler
}

func (cc *CallCtx) Emitter() *emitter.Emitter  { return cc.C.em }
func (cc *CallCtx) Context() context.Context   { return cc.C.ctx }
func (cc *CallCtx) Builder() *Builder          { return cc.C.Builder() }
func (cc *CallCtx) Call(fn any, args []any, kw *host.Namespace) (any, error) {
	return cc.C.call(fn, args, kw)
}

// NativeFunc implements a host callable in Go.
type NativeFunc func(cc *CallCtx, args []any, kw *host.Namespace) (any, error)

// Native is a host callable implemented in Go.
type Native struct {
	Name string
	Fn   NativeFunc
}

func NewNative(name string, fn NativeFunc) *Native {
	return &Native{Name: name, Fn: fn}
}

func (n *Native) String() string { return "<built-in function " + n.Name + ">" }

// unpackArgs matches positional and keyword arguments against names. A
// name ending with '?' is optional, missing optional arguments are nil.
func unpackArgs(fname string, args []any, kw *host.Namespace, names ...string) ([]any, error) {
	out := make([]any, len(names))
	set := make([]bool, len(names))
	if len(args) > len(names) {
		return nil, host.Raise("TypeError", "%s() takes at most %d arguments (%d given)", fname, len(names), len(args))
	}
	for i, a := range args {
		out[i], set[i] = a, true
	}
	if kw != nil {
		for _, k := range kw.Keys() {
			idx := -1
			for i, n := range names {
				if strings.TrimSuffix(n, "?") == k {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, host.Raise("TypeError", "%s() got an unexpected keyword argument '%s'", fname, k)
			}
			if set[idx] {
				return nil, host.Raise("TypeError", "%s() got multiple values for argument '%s'", fname, k)
			}
			out[idx], _ = kw.Get(k)
			set[idx] = true
		}
	}
	for i, n := range names {
		if !set[i] && !strings.HasSuffix(n, "?") {
			return nil, host.Raise("TypeError", "%s() missing required argument: '%s'", fname, n)
		}
	}
	return out, nil
}

func kwOrEmpty(kw *host.Namespace) *host.Namespace {
	if kw == nil {
		return host.NewNamespace()
	}
	return kw
}

func asString(fname string, x any) (string, error) {
	s, ok := x.(string)
	if !ok {
		return "", host.Raise("TypeError", "%s() expects a string, got %s", fname, host.TypeName(x))
	}
	return s, nil
}

func asInt(fname string, x any) (int64, error) {
	iv, ok := emitter.AsInt(x)
	if !ok {
		return 0, host.Raise("TypeError", "%s() expects an integer, got %s", fname, host.TypeName(x))
	}
	return iv, nil
}

func asValue(fname string, x any) (*value.Value, error) {
	v, ok := x.(*value.Value)
	if !ok {
		return nil, host.Raise("TypeError", "%s() expects a hardware value, got %s", fname, host.TypeName(x))
	}
	return v, nil
}

// asType accepts a type or a type string like "u8".
func asType(fname string, x any) (*types.Type, error) {
	switch t := x.(type) {
	case *types.Type:
		return t, nil
	case string:
		return types.Parse(t)
	}
	return nil, host.Raise("TypeError", "%s() expects a type, got %s", fname, host.TypeName(x))
}

// valueList flattens host sequences of hardware values.
func valueList(fname string, args []any) ([]*value.Value, error) {
	var out []*value.Value
	for _, a := range args {
		if seq, ok := a.(value.Sequence); ok {
			vs, err := valueList(fname, seq.Items())
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
			continue
		}
		v, err := asValue(fname, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
