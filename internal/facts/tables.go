package facts

import (
	"sort"
	"strings"
)

// Tables is the relational fact model of a compiled design, consumed by the
// Rego design rules. Each slice is a relation (table) with flat rows.
type Tables struct {
	Entities    []EntityRow      `json:"entities"`
	Ports       []PortRow        `json:"ports"`
	Signals     []SignalRow      `json:"signals"`
	Processes   []ProcessRow     `json:"processes"`
	Sensitivity []SensitivityRow `json:"sensitivity"`
	Drivers     []DriverRow      `json:"drivers"`
	Reads       []ReadRow        `json:"reads"`
	Instances   []InstanceRow    `json:"instances"`
	Bindings    []BindingRow     `json:"bindings"`
	Libraries   []LibraryRow     `json:"libraries"`
}

type EntityRow struct {
	Name     string `json:"name"`
	Class    string `json:"class"`
	Backend  string `json:"backend"`
	Args     string `json:"args,omitempty"`
	External bool   `json:"external"`
}

type PortRow struct {
	Entity    string `json:"entity"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Type      string `json:"type"`
}

// SignalRow is a declared wire or register. Scope is the process name for
// process local variables, empty for module level declarations.
type SignalRow struct {
	Entity string `json:"entity"`
	Scope  string `json:"scope"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Const  bool   `json:"const"`
}

type ProcessRow struct {
	Entity  string `json:"entity"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Mode    string `json:"mode"`
	Clocked bool   `json:"clocked"`
}

type SensitivityRow struct {
	Entity  string `json:"entity"`
	Process string `json:"process"`
	Signal  string `json:"signal"`
	Trigger string `json:"trigger"`
}

// DriverRow records that a process assigns a signal. Conditional is set when
// the assignment sits inside an emitted branch.
type DriverRow struct {
	Entity      string `json:"entity"`
	Process     string `json:"process"`
	Signal      string `json:"signal"`
	Conditional bool   `json:"conditional"`
}

type ReadRow struct {
	Entity  string `json:"entity"`
	Process string `json:"process"`
	Signal  string `json:"signal"`
}

type InstanceRow struct {
	Entity string `json:"entity"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

type BindingRow struct {
	Entity   string `json:"entity"`
	Instance string `json:"instance"`
	Port     string `json:"port"`
	Expr     string `json:"expr"`
}

type LibraryRow struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
}

// Recorder accumulates design facts while a design is generated. The zero
// value is not usable, call NewRecorder.
type Recorder struct {
	tables Tables
	seen   map[string]bool
}

func NewRecorder() *Recorder {
	return &Recorder{tables: emptyTables(), seen: make(map[string]bool)}
}

func (r *Recorder) once(parts ...string) bool {
	key := strings.Join(parts, "|")
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

func (r *Recorder) Entity(row EntityRow) {
	if r.once("E", row.Name) {
		r.tables.Entities = append(r.tables.Entities, row)
	}
}

func (r *Recorder) Port(row PortRow) {
	if r.once("P", row.Entity, row.Name) {
		r.tables.Ports = append(r.tables.Ports, row)
	}
}

func (r *Recorder) Signal(row SignalRow) {
	if r.once("S", row.Entity, row.Scope, row.Name) {
		r.tables.Signals = append(r.tables.Signals, row)
	}
}

func (r *Recorder) Process(row ProcessRow) {
	if r.once("R", row.Entity, row.Name) {
		r.tables.Processes = append(r.tables.Processes, row)
	}
}

func (r *Recorder) Sensitivity(row SensitivityRow) {
	if r.once("T", row.Entity, row.Process, row.Signal) {
		r.tables.Sensitivity = append(r.tables.Sensitivity, row)
	}
}

func (r *Recorder) Driver(row DriverRow) {
	if r.once("D", row.Entity, row.Process, row.Signal, boolKey(row.Conditional)) {
		r.tables.Drivers = append(r.tables.Drivers, row)
	}
}

func (r *Recorder) Read(row ReadRow) {
	if r.once("X", row.Entity, row.Process, row.Signal) {
		r.tables.Reads = append(r.tables.Reads, row)
	}
}

func (r *Recorder) Instance(row InstanceRow) {
	if r.once("I", row.Entity, row.Name) {
		r.tables.Instances = append(r.tables.Instances, row)
	}
}

func (r *Recorder) Binding(row BindingRow) {
	if r.once("B", row.Entity, row.Instance, row.Port) {
		r.tables.Bindings = append(r.tables.Bindings, row)
	}
}

func (r *Recorder) Library(row LibraryRow) {
	if r.once("L", row.Backend, row.Name) {
		r.tables.Libraries = append(r.tables.Libraries, row)
	}
}

// Tables returns a sorted snapshot of the recorded facts.
func (r *Recorder) Tables() Tables {
	return BuildTables(r.tables)
}

// BuildTables returns a copy of t with every relation non-nil and sorted, so
// that snapshots of the same design compare equal.
func BuildTables(t Tables) Tables {
	out := emptyTables()
	out.Entities = append(out.Entities, t.Entities...)
	out.Ports = append(out.Ports, t.Ports...)
	out.Signals = append(out.Signals, t.Signals...)
	out.Processes = append(out.Processes, t.Processes...)
	out.Sensitivity = append(out.Sensitivity, t.Sensitivity...)
	out.Drivers = append(out.Drivers, t.Drivers...)
	out.Reads = append(out.Reads, t.Reads...)
	out.Instances = append(out.Instances, t.Instances...)
	out.Bindings = append(out.Bindings, t.Bindings...)
	out.Libraries = append(out.Libraries, t.Libraries...)

	sort.SliceStable(out.Entities, func(i, j int) bool { return out.Entities[i].Name < out.Entities[j].Name })
	sortByKey(out.Ports, portKey)
	sortByKey(out.Signals, signalKey)
	sortByKey(out.Processes, processKey)
	sortByKey(out.Sensitivity, sensitivityKey)
	sortByKey(out.Drivers, driverKey)
	sortByKey(out.Reads, readKey)
	sortByKey(out.Instances, instanceKey)
	sortByKey(out.Bindings, bindingKey)
	sortByKey(out.Libraries, libraryKey)

	return out
}

func sortByKey[T any](rows []T, key func(T) string) {
	sort.SliceStable(rows, func(i, j int) bool { return key(rows[i]) < key(rows[j]) })
}
