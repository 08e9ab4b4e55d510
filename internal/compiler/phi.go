package compiler

import (
	"strconv"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/phi"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// phiState versions the variables written within the hardware branches of
// the process being generated. Keys are "name@frame", so that inlined
// functions do not share versions with their caller.
type phiState struct {
	phis   *phi.Phis
	bases  map[string]string
	names  map[string]map[int]string
	dtypes map[string]*types.Type
}

func newPhiState() *phiState {
	return &phiState{
		phis:   phi.New(),
		bases:  make(map[string]string),
		names:  make(map[string]map[int]string),
		dtypes: make(map[string]*types.Type),
	}
}

// prior is the binding a name had before a branch chain first wrote it.
type prior struct {
	v  any
	ok bool
}

// branchChain is an if/elif/else chain, or a case statement, in flight.
type branchChain struct {
	frame    *frame
	priors   map[string]prior
	keys     map[string]string
	branches []*phi.Table
	// tails are the reconciliation placements closing each arm.
	tails []*emitter.Placement
}

func newBranchChain(f *frame) *branchChain {
	return &branchChain{frame: f, priors: make(map[string]prior), keys: make(map[string]string)}
}

func phiKey(name string, f *frame) string {
	return name + "@" + strconv.Itoa(f.id)
}

func (c *Compiler) phiState() *phiState {
	s := c.scope()
	if s == nil {
		return nil
	}
	if s.phis == nil {
		s.phis = newPhiState()
	}
	return s.phis
}

// phiKind is the kind of branch version variables. VHDL keeps them as
// process variables, SystemVerilog as process local logic.
func (c *Compiler) phiKind() value.Kind {
	if c.em.Kind() == "verilog" {
		return value.Register
	}
	return value.Wire
}

// phiVar returns the declared name of version ver of key, declaring it the
// first time it is used.
func (c *Compiler) phiVar(ps *phiState, key, name string, ver int, dtype *types.Type) (string, error) {
	base, ok := ps.bases[key]
	if !ok {
		base = c.revgen.newName(name)
		ps.bases[key] = base
		ps.names[key] = make(map[int]string)
	}
	if vn, ok := ps.names[key][ver]; ok {
		return vn, nil
	}
	if dtype == nil {
		dtype = ps.dtypes[key]
	} else if _, ok := ps.dtypes[key]; !ok {
		ps.dtypes[key] = dtype
	}
	if dtype == nil {
		return "", types.Errorf("Unknown type for branch variable %s", name)
	}
	vn := base
	if ver > 0 {
		vn = c.revgen.newName(phi.VersionedName(base, ver))
	}
	ps.names[key][ver] = vn
	if err := c.declareScoped(vn, value.New(dtype, &value.Init{}, c.phiKind())); err != nil {
		return "", err
	}
	return vn, nil
}

func (c *Compiler) phiRef(ps *phiState, key string, vn string) *value.Value {
	return value.New(ps.dtypes[key], value.NewRef(vn, nil), c.phiKind())
}

// isPhiWrite tells whether assigning v to name, currently bound to cur,
// must go through a branch version.
func (c *Compiler) isPhiWrite(f *frame, name string, cur any, bound bool, v any) bool {
	if f.inHDL == 0 || f.isGlobal(name) || len(f.chains) == 0 {
		return false
	}
	if cv, ok := cur.(*value.Value); bound && ok && cv.Ref() != nil {
		return false
	}
	ps := c.phiState()
	if ps == nil {
		return false
	}
	if hv, ok := v.(*value.Value); ok {
		return hv.Init() == nil && !hv.IsNone()
	}
	// Host scalars only join an existing branch variable.
	if _, ok := ps.bases[phiKey(name, f)]; ok {
		_, isInt := emitter.AsInt(v)
		_, isFloat := emitter.AsFloat(v)
		return isInt || isFloat
	}
	return false
}

// phiStore writes v to the branch version of name.
func (c *Compiler) phiStore(f *frame, name string, cur any, bound bool, v any) error {
	ps := c.phiState()
	key := phiKey(name, f)
	for _, ch := range f.chains {
		if _, ok := ch.priors[key]; !ok {
			ch.priors[key] = prior{v: cur, ok: bound}
			ch.keys[key] = name
		}
	}
	var dtype *types.Type
	if hv, ok := v.(*value.Value); ok {
		dtype = hv.DType()
	}
	ver := ps.phis.GetVersion(key)
	vn, err := c.phiVar(ps, key, name, ver, dtype)
	if err != nil {
		return err
	}
	ref := c.phiRef(ps, key, vn)
	if err := c.emitAssign(c.em.VarRemap(ref, true), v); err != nil {
		return err
	}
	f.store(name, ref)
	return nil
}

// restorePriors puts back the bindings names had before the chain, so that
// the next arm starts from the same state.
func (ch *branchChain) restorePriors() {
	for key, p := range ch.priors {
		name := ch.keys[key]
		if p.ok {
			ch.frame.store(name, p.v)
		} else {
			ch.frame.locals.Delete(name)
		}
	}
}

// runArm generates one arm of a chain. The body runs with a fresh version
// table and ends with an empty placement which receives the reconciliation
// assignments once all arms are known.
func (c *Compiler) runArm(ch *branchChain, place *emitter.Placement, body []host.Stmt) (ctlSignal, error) {
	ps := c.phiState()
	f := ch.frame
	tab := ps.phis.Push()
	f.inHDL++
	var sig ctlSignal
	run := func() error {
		var err error
		sig, err = c.execBody(body)
		ch.tails = append(ch.tails, c.em.EmitPlacement(0))
		return err
	}
	var err error
	if place != nil {
		err = c.em.WithPlacement(place, run)
	} else {
		err = c.em.WithIndent(run)
	}
	f.inHDL--
	ps.phis.Pop()
	ch.branches = append(ch.branches, tab)
	ch.restorePriors()
	if err != nil {
		return ctlNormal, err
	}
	if sig == ctlBreak || sig == ctlContinue {
		return ctlNormal, types.Errorf("break and continue cannot depend on a hardware condition")
	}
	return sig, nil
}

// emptyArm stands for an arm the source does not have, an implicit else.
// Its reconciliation goes to place.
func (ch *branchChain) emptyArm(ps *phiState, place *emitter.Placement) {
	tab := ps.phis.Push()
	ps.phis.Pop()
	ch.branches = append(ch.branches, tab)
	ch.tails = append(ch.tails, place)
}

// reconcile assigns every arm the final version of each variable written
// by any arm, then rebinds those names to it.
func (c *Compiler) reconcile(ch *branchChain) error {
	ps := c.phiState()
	tails := make(map[*phi.Table]*emitter.Placement, len(ch.branches))
	for i, b := range ch.branches {
		tails[b] = ch.tails[i]
	}
	err := ps.phis.Flush(ch.branches, func(b *phi.Table, key string, from, to int) error {
		name := ch.keys[key]
		dst, err := c.phiVar(ps, key, name, to, nil)
		if err != nil {
			return err
		}
		var src any
		if from > 0 {
			vn, err := c.phiVar(ps, key, name, from, nil)
			if err != nil {
				return err
			}
			src = c.phiRef(ps, key, vn)
		} else if p := ch.priors[key]; p.ok && isAssignable(p.v) {
			src = p.v
		} else {
			c.warnf("skipped phi reconciliation of %s: no value before the branch", name)
			return nil
		}
		return c.em.WithPlacement(tails[b], func() error {
			return c.emitAssign(c.em.VarRemap(c.phiRef(ps, key, dst), true), src)
		})
	})
	if err != nil {
		return err
	}
	for key, name := range ch.keys {
		ver := ps.phis.CurVersion(key)
		if ver == 0 {
			continue
		}
		vn, err := c.phiVar(ps, key, name, ver, nil)
		if err != nil {
			return err
		}
		ch.frame.store(name, c.phiRef(ps, key, vn))
	}
	return nil
}

func isAssignable(x any) bool {
	switch v := x.(type) {
	case *value.Value:
		return v.Init() == nil && !v.IsNone()
	case bool:
		return true
	}
	_, isInt := emitter.AsInt(x)
	_, isFloat := emitter.AsFloat(x)
	return isInt || isFloat
}
