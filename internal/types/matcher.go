package types

import (
	"fmt"
	"strings"
)

// Matcher constrains the type of a port argument: "*" accepts anything,
// "u*" accepts any width of a class, anything else must match exactly.
type Matcher struct {
	spec  string
	kind  Kind
	dtype *Type
}

func ParseMatcher(s string) (*Matcher, error) {
	s = strings.TrimSpace(s)
	m := &Matcher{spec: s}
	switch {
	case s == "" || s == "*":
	case strings.HasSuffix(s, "*"):
		k, ok := KindOfClass(strings.TrimSuffix(s, "*"))
		if !ok {
			return nil, &TypeError{Msg: fmt.Sprintf("Invalid type class: %s", s)}
		}
		m.kind = k
	default:
		t, err := Parse(s)
		if err != nil {
			return nil, err
		}
		m.dtype = t
	}
	return m, nil
}

func (m *Matcher) String() string { return m.spec }

// Check verifies dtype against the constraint. msg is appended to the
// mismatch message to give the caller context.
func (m *Matcher) Check(dtype *Type, msg string) error {
	if m.dtype != nil {
		if !m.dtype.Equal(dtype) {
			return &TypeError{Msg: fmt.Sprintf("Mismatch type%s: %s vs. %s", msg, dtype, m.dtype)}
		}
	} else if m.kind != 0 && dtype.Kind() != m.kind {
		return &TypeError{Msg: fmt.Sprintf("Mismatch type class%s: %s vs. %s", msg, dtype.Name(), m.kind)}
	}
	return nil
}

// Kind is the class a "u*" style matcher accepts, zero otherwise.
func (m *Matcher) Kind() Kind { return m.kind }

// DType is the exact type a matcher requires, nil otherwise.
func (m *Matcher) DType() *Type { return m.dtype }
