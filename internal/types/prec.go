package types

import (
	"fmt"
	"strings"
)

// Prec is the promotion rank of a kind within an operator table. Higher ranks
// win, Prio breaks ties between types of equal rank and width, and a non nil
// RType forces the operand type when it ends up being the chosen one.
type Prec struct {
	Rank  int
	Prio  int
	RType *Type
}

// PrecTable maps operand kinds to their promotion ranks for an operator group.
type PrecTable struct {
	Name    string
	entries map[Kind]Prec
	order   []Kind
}

func newPrecTable(name string, kinds []Kind, precs []Prec) *PrecTable {
	t := &PrecTable{Name: name, entries: make(map[Kind]Prec, len(kinds)), order: kinds}
	for i, k := range kinds {
		t.entries[k] = precs[i]
	}
	return t
}

var (
	Arith = newPrecTable("arith",
		[]Kind{KindBool, KindSint, KindUint, KindInteger, KindFloat, KindReal},
		[]Prec{{Rank: -1, RType: NewUint(1)}, {Rank: 1, Prio: 2}, {Rank: 1, Prio: 1}, {Rank: 2}, {Rank: 3}, {Rank: 4}})

	Bit = newPrecTable("bit",
		[]Kind{KindBool, KindSint, KindUint, KindBits},
		[]Prec{{Rank: -1, RType: NewUint(1)}, {Rank: 1, Prio: 1}, {Rank: 1, Prio: 2}, {Rank: 1, Prio: 3}})

	Concat = newPrecTable("concat",
		[]Kind{KindBool, KindSint, KindUint, KindBits},
		[]Prec{{Rank: -1, RType: NewBits(1)}, {Rank: 1}, {Rank: 2}, {Rank: 3}})

	Compare = newPrecTable("compare",
		[]Kind{KindBool, KindBits, KindSint, KindUint, KindInteger, KindFloat, KindReal},
		[]Prec{{Rank: -1}, {Rank: 1}, {Rank: 2, Prio: 2}, {Rank: 2, Prio: 1}, {Rank: 3}, {Rank: 4}, {Rank: 5}})

	IfExp = newPrecTable("ifexp",
		[]Kind{KindBool, KindSint, KindUint, KindInteger, KindFloat, KindReal, KindBits},
		[]Prec{{Rank: 1}, {Rank: 2, Prio: 2}, {Rank: 2, Prio: 1}, {Rank: 3}, {Rank: 4}, {Rank: 5}, {Rank: 6}})
)

func (t *PrecTable) Lookup(k Kind) (Prec, bool) {
	p, ok := t.entries[k]
	return p, ok
}

func (t *PrecTable) kindList() string {
	names := make([]string, 0, len(t.order))
	for _, k := range t.order {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

// BestType picks the promoted type between the current best (possibly nil)
// and a new operand type.
func BestType(cur, nt *Type, table *PrecTable) (*Type, error) {
	nprec, ok := table.entries[nt.Kind()]
	if !ok {
		return nil, &TypeError{Msg: fmt.Sprintf("Unsupported type %s ... should be (%s)", nt.Name(), table.kindList())}
	}
	if cur == nil {
		return nt, nil
	}
	cprec := table.entries[cur.Kind()]
	switch {
	case nprec.Rank > cprec.Rank:
		return nt, nil
	case nprec.Rank < cprec.Rank:
		return cur, nil
	case nt.NBits() > cur.NBits():
		return nt, nil
	case nt.NBits() < cur.NBits():
		return cur, nil
	case nprec.Prio > cprec.Prio:
		return nt, nil
	}
	return cur, nil
}

// ResultType applies the forced result type of the table, if any.
func ResultType(t *Type, table *PrecTable) *Type {
	if t == nil {
		return nil
	}
	if p, ok := table.entries[t.Kind()]; ok && p.RType != nil {
		return p.RType
	}
	return t
}

// FloatSpec is the exponent and mantissa split of a float width.
type FloatSpec struct {
	Exp  int
	Mant int
}

var DefaultFloatSpecs = map[int]FloatSpec{
	16:  {Exp: 5, Mant: 10},
	32:  {Exp: 8, Mant: 23},
	64:  {Exp: 11, Mant: 52},
	80:  {Exp: 17, Mant: 63},
	128: {Exp: 15, Mant: 112},
}
