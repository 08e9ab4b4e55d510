package entity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
)

// Dir is the direction of an entity port.
type Dir string

const (
	In    Dir = "IN"
	Out   Dir = "OUT"
	InOut Dir = "INOUT"
	Ifc   Dir = "IFC"
)

// Port is a declared entity port. For interface ports Type holds the
// "IfcClass.VIEW" reference, otherwise an optional type constraint.
type Port struct {
	Name string
	Dir  Dir
	Type string
}

var portRx = regexp.MustCompile(`^(=|\+|\*)?(\w+)(:([^\s]*))?$`)

func (p *Port) String() string {
	if p.Type != "" {
		return fmt.Sprintf("Port(name=%s, idir=%s, type=%s)", p.Name, p.Dir, p.Type)
	}
	return fmt.Sprintf("Port(name=%s, idir=%s)", p.Name, p.Dir)
}

func (p *Port) Equal(o *Port) bool {
	if p == nil || o == nil {
		return p == o
	}
	return *p == *o
}

func (p *Port) IsRO() bool  { return p.Dir == In }
func (p *Port) IsWO() bool  { return p.Dir == Out }
func (p *Port) IsRd() bool  { return p.Dir == In || p.Dir == InOut }
func (p *Port) IsWr() bool  { return p.Dir == Out || p.Dir == InOut }
func (p *Port) IsRW() bool  { return p.Dir == InOut }
func (p *Port) IsIfc() bool { return p.Dir == Ifc }

// IfcSplit separates the interface class from the view name on the last dot.
func (p *Port) IfcSplit() (string, string) {
	if i := strings.LastIndex(p.Type, "."); i >= 0 {
		return p.Type[:i], p.Type[i+1:]
	}
	return p.Type, ""
}

// FieldName is the flattened name of an interface field seen through this port.
func (p *Port) FieldName(field string) string {
	return SubName(p.Name, field)
}

// ParsePort parses one port declaration: "A", "=OUT:u8", "+BUS", "*IFC:Axi.MASTER".
func ParsePort(decl string) (*Port, error) {
	m := portRx.FindStringSubmatch(strings.TrimSpace(decl))
	if m == nil {
		return nil, &BindingError{Msg: fmt.Sprintf("Unrecognized port format: %s", decl)}
	}
	var dir Dir
	switch m[1] {
	case "=":
		dir = Out
	case "+":
		dir = InOut
	case "*":
		dir = Ifc
	default:
		dir = In
	}
	return &Port{Name: m[2], Dir: dir, Type: m[4]}, nil
}

// ParsePorts parses a comma separated PORTS declaration.
func ParsePorts(decls string) ([]*Port, error) {
	var ports []*Port
	for _, decl := range strings.Split(decls, ",") {
		if strings.TrimSpace(decl) == "" {
			continue
		}
		p, err := ParsePort(decl)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// CheckType verifies a port argument type against the port constraint.
func (p *Port) CheckType(dtype *types.Type) error {
	if p.Type == "" || p.IsIfc() {
		return nil
	}
	m, err := types.ParseMatcher(p.Type)
	if err != nil {
		return err
	}
	if err := m.Check(dtype, fmt.Sprintf(" for entity port %q", p.Name)); err != nil {
		return &BindingError{Msg: err.Error()}
	}
	return nil
}

// SubName joins an interface name and a field name.
func SubName(name, field string) string { return name + "_" + field }

// BindingError reports missing or mismatched entity port bindings.
type BindingError struct {
	Msg string
}

func (e *BindingError) Error() string { return e.Msg }
