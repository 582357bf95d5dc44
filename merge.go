package dbstruct

// Merge folds a partial schema into the accumulated one in place. Chunked
// parsing is strictly sequential, so in-place accumulation is safe and the
// chunk order already defines the write order.
//
// Policy: tables union by name; when both sides define the same table its
// columns, indexes, and constraints union by name with last-write-wins on
// collisions, so an ALTER TABLE statement in a later chunk amends a table
// defined earlier. Derived relationships are NOT recomputed here -- a foreign
// key may reference a table that only appears in a later chunk, so the caller
// recomputes them once after the full merge sequence.
func Merge(accumulated, partial *Schema) *Schema {
	if partial == nil {
		return accumulated
	}
	for name, incoming := range partial.Tables {
		existing, ok := accumulated.Tables[name]
		if !ok {
			accumulated.Tables[name] = incoming.Clone()
			continue
		}
		mergeTable(existing, incoming)
	}
	return accumulated
}

func mergeTable(into, from *Table) {
	if from.Comment != nil {
		into.Comment = cloneStringPtr(from.Comment)
	}
	ordered := NewSet(from.ColumnOrder...)
	for _, name := range from.ColumnOrder {
		if col, ok := from.Columns[name]; ok {
			into.AddColumn(col.Clone())
		}
	}
	// Columns outside the order slice (direct map writes) still merge.
	for _, name := range SortedKeys(from.Columns) {
		if !ordered.Contains(name) {
			into.AddColumn(from.Columns[name].Clone())
		}
	}
	for name, idx := range from.Indexes {
		into.Indexes[name] = idx.Clone()
	}
	for name, c := range from.Constraints {
		into.Constraints[name] = cloneConstraint(c)
	}
}
