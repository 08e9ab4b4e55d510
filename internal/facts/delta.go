package facts

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the delta carries no row changes.
func (d Delta) Empty() bool {
	return d.Added.Len() == 0 && d.Removed.Len() == 0
}

// Len is the total number of rows across every relation.
func (t Tables) Len() int {
	return len(t.Entities) + len(t.Ports) + len(t.Signals) + len(t.Processes) +
		len(t.Sensitivity) + len(t.Drivers) + len(t.Reads) + len(t.Instances) +
		len(t.Bindings) + len(t.Libraries)
}

// ApplyDelta returns t with the delta's removed rows dropped and its added
// rows appended.
func ApplyDelta(t Tables, d Delta) Tables {
	out := emptyTables()

	out.Entities = applyRows(t.Entities, d.Added.Entities, d.Removed.Entities, entityKey)
	out.Ports = applyRows(t.Ports, d.Added.Ports, d.Removed.Ports, portKey)
	out.Signals = applyRows(t.Signals, d.Added.Signals, d.Removed.Signals, signalKey)
	out.Processes = applyRows(t.Processes, d.Added.Processes, d.Removed.Processes, processKey)
	out.Sensitivity = applyRows(t.Sensitivity, d.Added.Sensitivity, d.Removed.Sensitivity, sensitivityKey)
	out.Drivers = applyRows(t.Drivers, d.Added.Drivers, d.Removed.Drivers, driverKey)
	out.Reads = applyRows(t.Reads, d.Added.Reads, d.Removed.Reads, readKey)
	out.Instances = applyRows(t.Instances, d.Added.Instances, d.Removed.Instances, instanceKey)
	out.Bindings = applyRows(t.Bindings, d.Added.Bindings, d.Removed.Bindings, bindingKey)
	out.Libraries = applyRows(t.Libraries, d.Added.Libraries, d.Removed.Libraries, libraryKey)

	return BuildTables(out)
}

func applyRows[T any](rows, added, removed []T, key func(T) string) []T {
	drop := make(map[string]bool, len(removed))
	for _, row := range removed {
		drop[key(row)] = true
	}
	have := make(map[string]bool, len(rows)+len(added))
	out := []T{}
	for _, row := range append(append([]T{}, rows...), added...) {
		k := key(row)
		if drop[k] || have[k] {
			continue
		}
		have[k] = true
		out = append(out, row)
	}
	return out
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Entities = diffRows(from.Entities, to.Entities, entityKey)
	out.Ports = diffRows(from.Ports, to.Ports, portKey)
	out.Signals = diffRows(from.Signals, to.Signals, signalKey)
	out.Processes = diffRows(from.Processes, to.Processes, processKey)
	out.Sensitivity = diffRows(from.Sensitivity, to.Sensitivity, sensitivityKey)
	out.Drivers = diffRows(from.Drivers, to.Drivers, driverKey)
	out.Reads = diffRows(from.Reads, to.Reads, readKey)
	out.Instances = diffRows(from.Instances, to.Instances, instanceKey)
	out.Bindings = diffRows(from.Bindings, to.Bindings, bindingKey)
	out.Libraries = diffRows(from.Libraries, to.Libraries, libraryKey)

	return out
}

func emptyTables() Tables {
	return Tables{
		Entities:    []EntityRow{},
		Ports:       []PortRow{},
		Signals:     []SignalRow{},
		Processes:   []ProcessRow{},
		Sensitivity: []SensitivityRow{},
		Drivers:     []DriverRow{},
		Reads:       []ReadRow{},
		Instances:   []InstanceRow{},
		Bindings:    []BindingRow{},
		Libraries:   []LibraryRow{},
	}
}

func entityKey(r EntityRow) string {
	return r.Name + "|" + r.Class + "|" + r.Backend + "|" + r.Args + "|" + boolKey(r.External)
}

func portKey(r PortRow) string {
	return r.Entity + "|" + r.Name + "|" + r.Direction + "|" + r.Type
}

func signalKey(r SignalRow) string {
	return r.Entity + "|" + r.Scope + "|" + r.Name + "|" + r.Type + "|" + r.Kind + "|" + boolKey(r.Const)
}

func processKey(r ProcessRow) string {
	return r.Entity + "|" + r.Name + "|" + r.Kind + "|" + r.Mode + "|" + boolKey(r.Clocked)
}

func sensitivityKey(r SensitivityRow) string {
	return r.Entity + "|" + r.Process + "|" + r.Signal + "|" + r.Trigger
}

func driverKey(r DriverRow) string {
	return r.Entity + "|" + r.Process + "|" + r.Signal + "|" + boolKey(r.Conditional)
}

func readKey(r ReadRow) string {
	return r.Entity + "|" + r.Process + "|" + r.Signal
}

func instanceKey(r InstanceRow) string {
	return r.Entity + "|" + r.Name + "|" + r.Target
}

func bindingKey(r BindingRow) string {
	return r.Entity + "|" + r.Instance + "|" + r.Port + "|" + r.Expr
}

func libraryKey(r LibraryRow) string {
	return r.Backend + "|" + r.Name
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
