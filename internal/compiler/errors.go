package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

// ScopeError reports an undefined variable, or a write through a read-only
// reference.
type ScopeError struct {
	Msg string
}

func (e *ScopeError) Error() string { return e.Msg }

func scopeErrorf(format string, args ...any) error {
	return &ScopeError{Msg: fmt.Sprintf(format, args...)}
}

// HostError is an exception raised by the compiled program: an explicit
// raise, a failed host assert, or a failing builtin.
type HostError struct {
	Exc *host.Instance
}

func (e *HostError) Error() string {
	msg := excMessage(e.Exc)
	if msg == "" {
		return e.Exc.Class.Name
	}
	return e.Exc.Class.Name + ": " + msg
}

// StackError annotates a compile failure with the source locations of the
// frames active when it happened, innermost last.
type StackError struct {
	Err   error
	Stack []string
}

func (e *StackError) Error() string {
	return e.Err.Error() + "\nError stack:\n" + strings.Join(e.Stack, "\n")
}

func (e *StackError) Unwrap() error { return e.Err }

// ctlSignal is the outcome of a statement besides errors.
type ctlSignal int

const (
	ctlNormal ctlSignal = iota
	ctlBreak
	ctlContinue
	ctlReturn
)

// catchable reports whether err can be handled by a host "except" clause.
// Binding and scope errors abort the compilation.
func catchable(err error) bool {
	var se *ScopeError
	var be *entity.BindingError
	if errors.As(err, &se) || errors.As(err, &be) {
		return false
	}
	var he *HostError
	var exc *host.Exception
	var te *types.TypeError
	return errors.As(err, &he) || errors.As(err, &exc) || errors.As(err, &te)
}

// annotate attaches the frame stack to err, once.
func (c *Compiler) annotate(err error) error {
	var se *StackError
	if errors.As(err, &se) {
		return err
	}
	stack := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		stack = append(stack, fmt.Sprintf("%s:%d", f.file, f.line))
	}
	return &StackError{Err: err, Stack: stack}
}
