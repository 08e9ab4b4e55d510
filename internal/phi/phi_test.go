package phi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type reconcile struct {
	branch   int
	name     string
	from, to int
}

func flushRecording(t *testing.T, p *Phis, branches []*Table) []reconcile {
	t.Helper()
	var got []reconcile
	err := p.Flush(branches, func(b *Table, name string, from, to int) error {
		for i := range branches {
			if branches[i] == b {
				got = append(got, reconcile{i, name, from, to})
			}
		}
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestSiblingBranchesShareVersion(t *testing.T) {
	p := New()
	if v := p.GetVersion("x"); v != 0 {
		t.Fatalf("root table must not create versions, got %d", v)
	}

	ifArm := p.Push()
	require.Equal(t, "x_1", p.StoreVar("x"))
	require.Equal(t, "x_1", p.StoreVar("x"))
	require.Equal(t, "y_1", p.StoreVar("y"))
	p.Pop()

	elseArm := p.Push()
	require.Equal(t, "x_1", p.StoreVar("x"))
	p.Pop()

	got := flushRecording(t, p, []*Table{ifArm, elseArm})
	require.Equal(t, []reconcile{{1, "y", 0, 1}}, got)
	require.Equal(t, "x_1", p.LoadVar("x"))
	require.Equal(t, "y_1", p.LoadVar("y"))
}

func TestNestedBranchesBumpAncestorVersion(t *testing.T) {
	p := New()
	outer := p.Push()
	require.Equal(t, 1, p.GetVersion("x"))

	inner := p.Push()
	require.Equal(t, 2, p.GetVersion("x"))
	p.Pop()
	innerElse := p.Push()
	require.Equal(t, 1, p.CurVersion("x"))
	p.Pop()

	got := flushRecording(t, p, []*Table{inner, innerElse})
	require.Equal(t, []reconcile{{1, "x", 1, 2}}, got)
	require.Equal(t, 2, outer.Version("x"))
	p.Pop()

	outerElse := p.Push()
	p.Pop()
	got = flushRecording(t, p, []*Table{outer, outerElse})
	require.Equal(t, []reconcile{{1, "x", 0, 2}}, got)
	require.Equal(t, "x_2", p.LoadVar("x"))
}

func TestPhiCompleteness(t *testing.T) {
	// Every branch must end on the committed version of every name written
	// by any sibling.
	p := New()
	var arms []*Table
	for i := 0; i < 4; i++ {
		arm := p.Push()
		for j := 0; j <= i; j++ {
			p.GetVersion(fmt.Sprintf("v%d", j))
		}
		p.Pop()
		arms = append(arms, arm)
	}
	final := make([]map[string]int, len(arms))
	for i, arm := range arms {
		final[i] = map[string]int{}
		for _, n := range arm.Names() {
			final[i][n] = arm.Version(n)
		}
	}
	err := p.Flush(arms, func(b *Table, name string, from, to int) error {
		for i := range arms {
			if arms[i] == b {
				final[i][name] = to
			}
		}
		return nil
	})
	require.NoError(t, err)
	for i := range arms {
		require.Len(t, final[i], 4)
		for name, ver := range final[i] {
			require.Equal(t, p.CurVersion(name), ver, "arm %d name %s", i, name)
		}
	}
}

func TestSetVersionMustIncrease(t *testing.T) {
	p := New()
	require.NoError(t, p.Top().SetVersion("x", 2))
	require.Error(t, p.Top().SetVersion("x", 2))
	require.Equal(t, "x", VersionedName("x", 0))
}
