package compiler

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// frame is the execution state of one function call, class body or module.
type frame struct {
	id      int
	globals *host.Namespace
	locals  *host.Namespace
	// closure holds the enclosing function scopes, innermost first.
	closure     []*host.Namespace
	globalNames map[string]bool
	file        string
	line        int
	fname       string
	classBody   bool
	// class is the class a method was defined in, for zero argument super().
	class *host.Class
	self  any

	// inHDL counts the hardware conditionals enclosing the statement being
	// executed.
	inHDL int
	// returns collects the values returned from within hardware branches,
	// each with the placement its temporary assignment goes to.
	returns  []pendingReturn
	retval   any
	hasRet   bool
	yields   []any
	chains   []*branchChain
	retPlace *emitter.Placement
}

type pendingReturn struct {
	value any
	place *emitter.Placement
}

func (f *frame) isGlobal(name string) bool {
	return f.globalNames != nil && f.globalNames[name]
}

// lookup resolves a name through locals, closures and globals. Builtins are
// handled by the caller.
func (f *frame) lookup(name string) (any, bool) {
	if f.isGlobal(name) {
		return f.globals.Get(name)
	}
	if v, ok := f.locals.Get(name); ok {
		return v, true
	}
	for _, ns := range f.closure {
		if v, ok := ns.Get(name); ok {
			return v, true
		}
	}
	if f.locals != f.globals {
		return f.globals.Get(name)
	}
	return nil, false
}

func (f *frame) store(name string, v any) {
	if f.isGlobal(name) {
		f.globals.Set(name, v)
	} else {
		f.locals.Set(name, v)
	}
}

// revGen hands out unique declaration names within a module: name, name_1,
// name_2 and so on. Names reserved by other means are skipped.
type revGen struct {
	counts map[string]int
	taken  map[string]bool
}

func newRevGen() *revGen {
	return &revGen{counts: make(map[string]int), taken: make(map[string]bool)}
}

func (r *revGen) newName(name string) string {
	for {
		n := r.counts[name]
		r.counts[name] = n + 1
		cand := name
		if n > 0 {
			cand = fmt.Sprintf("%s_%d", name, n)
		}
		if !r.taken[cand] {
			r.taken[cand] = true
			return cand
		}
	}
}

func (r *revGen) reserve(name string) { r.taken[name] = true }

// declVar is a variable waiting to be declared when its process scope
// closes.
type declVar struct {
	name string
	v    *value.Value
}

// procScope is the variable scope of a process being generated.
type procScope struct {
	name  string
	kind  emitter.ProcessKind
	place *emitter.Placement
	vars  []declVar
	phis  *phiState
}

func (s *procScope) addVar(name string, v *value.Value) {
	s.vars = append(s.vars, declVar{name: name, v: v})
}
