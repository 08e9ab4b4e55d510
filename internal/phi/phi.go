// Package phi tracks versioned names of variables written inside hardware
// branches, so that the branches of a conditional can be reconciled to a
// common version once all of them have been generated.
package phi

import "fmt"

// Table is the version table of one branch scope.
type Table struct {
	parent *Table
	vers   map[string]int
	order  []string
}

func newTable(parent *Table) *Table {
	return &Table{parent: parent, vers: make(map[string]int)}
}

func (t *Table) set(name string, ver int) {
	if _, ok := t.vers[name]; !ok {
		t.order = append(t.order, name)
	}
	t.vers[name] = ver
}

// SetVersion records a committed version, which must move forward.
func (t *Table) SetVersion(name string, ver int) error {
	if cver := t.vers[name]; cver >= ver {
		return fmt.Errorf("New version must be greater: %d >= %d", cver, ver)
	}
	t.set(name, ver)
	return nil
}

// GetVersion returns the version a write of name must target within this
// table. The first write in a scope bumps the nearest ancestor version; the
// root table never creates versions.
func (t *Table) GetVersion(name string) int {
	ver := t.vers[name]
	if ver == 0 && t.parent != nil {
		for p := t.parent; p != nil; p = p.parent {
			if ver = p.vers[name]; ver > 0 {
				break
			}
		}
		ver++
		t.set(name, ver)
	}
	return ver
}

// CurVersion walks outward to find the version visible from this table.
func (t *Table) CurVersion(name string) int {
	for p := t; p != nil; p = p.parent {
		if ver := p.vers[name]; ver > 0 {
			return ver
		}
	}
	return 0
}

func (t *Table) Len() int { return len(t.order) }

// Names returns the names versioned in this table, in first write order.
func (t *Table) Names() []string { return append([]string(nil), t.order...) }

func (t *Table) Version(name string) int { return t.vers[name] }

// Phis is the stack of branch version tables.
type Phis struct {
	stack []*Table
}

func New() *Phis {
	return &Phis{stack: []*Table{newTable(nil)}}
}

// VersionedName is the declared name of a variable version.
func VersionedName(name string, ver int) string {
	if ver == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, ver)
}

func (p *Phis) Top() *Table { return p.stack[len(p.stack)-1] }
func (p *Phis) Depth() int  { return len(p.stack) }

func (p *Phis) Push() *Table {
	t := newTable(p.Top())
	p.stack = append(p.stack, t)
	return t
}

func (p *Phis) Pop() *Table {
	t := p.Top()
	p.stack = p.stack[:len(p.stack)-1]
	return t
}

func (p *Phis) GetVersion(name string) int { return p.Top().GetVersion(name) }
func (p *Phis) CurVersion(name string) int { return p.Top().CurVersion(name) }

func (p *Phis) LoadVar(name string) string  { return VersionedName(name, p.CurVersion(name)) }
func (p *Phis) StoreVar(name string) string { return VersionedName(name, p.GetVersion(name)) }

// AssignFunc emits the reconciliation of name, within branch, from version
// from to version to.
type AssignFunc func(branch *Table, name string, from, to int) error

// Flush reconciles sibling branches to the maximum version written by any
// of them, and commits those versions into the current top table.
func (p *Phis) Flush(branches []*Table, assign AssignFunc) error {
	var names []string
	commits := make(map[string]int)
	for _, b := range branches {
		for _, name := range b.order {
			ver, seen := commits[name]
			if !seen {
				names = append(names, name)
			}
			if v := b.vers[name]; v > ver {
				commits[name] = v
			}
		}
	}
	for _, b := range branches {
		for _, name := range names {
			cver := commits[name]
			if bver := b.CurVersion(name); cver > bver {
				if err := assign(b, name, bver, cver); err != nil {
					return err
				}
			}
		}
	}
	top := p.Top()
	for _, name := range names {
		if err := top.SetVersion(name, commits[name]); err != nil {
			return err
		}
	}
	return nil
}
