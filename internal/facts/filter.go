package facts

// FilterTablesByEntities returns a new Tables object containing only rows
// that belong to one of the given entities. Library rows are design wide and
// are always kept.
func FilterTablesByEntities(tables Tables, entities map[string]bool) Tables {
	if len(entities) == 0 {
		return emptyTables()
	}
	out := emptyTables()

	out.Entities = filterRows(tables.Entities, func(r EntityRow) bool { return entities[r.Name] })
	out.Ports = filterRows(tables.Ports, func(r PortRow) bool { return entities[r.Entity] })
	out.Signals = filterRows(tables.Signals, func(r SignalRow) bool { return entities[r.Entity] })
	out.Processes = filterRows(tables.Processes, func(r ProcessRow) bool { return entities[r.Entity] })
	out.Sensitivity = filterRows(tables.Sensitivity, func(r SensitivityRow) bool { return entities[r.Entity] })
	out.Drivers = filterRows(tables.Drivers, func(r DriverRow) bool { return entities[r.Entity] })
	out.Reads = filterRows(tables.Reads, func(r ReadRow) bool { return entities[r.Entity] })
	out.Instances = filterRows(tables.Instances, func(r InstanceRow) bool { return entities[r.Entity] })
	out.Bindings = filterRows(tables.Bindings, func(r BindingRow) bool { return entities[r.Entity] })
	out.Libraries = append(out.Libraries, tables.Libraries...)

	return out
}

// FilterDeltaByEntities returns a new Delta containing only rows for the
// specified entities.
func FilterDeltaByEntities(delta Delta, entities map[string]bool) Delta {
	if len(entities) == 0 {
		return Delta{
			Added:   emptyTables(),
			Removed: emptyTables(),
		}
	}
	return Delta{
		Added:   FilterTablesByEntities(delta.Added, entities),
		Removed: FilterTablesByEntities(delta.Removed, entities),
	}
}

func filterRows[T any](rows []T, keep func(T) bool) []T {
	out := []T{}
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}
