package dbstruct

import (
	"reflect"
	"strings"
)

// Diff produces the patch operations that transform before into after,
// restricted to the addressable path surface. Applying the result to before
// with ApplyPatch yields a schema equal to after (modulo derived
// relationships, which ApplyPatch recomputes).
//
// Constraint changes are not field-addressable, so a table whose constraint
// set changed is emitted as a whole-table replace, as is one whose column
// display order cannot be reproduced by column-level ops. Renames are
// reported as remove plus add; intent is not reconstructed.
func Diff(before, after *Schema) []PatchOp {
	var ops []PatchOp

	for _, name := range SortedKeys(before.Tables) {
		if _, ok := after.Tables[name]; !ok {
			ops = append(ops, PatchOp{Kind: PatchRemove, Path: tablePath(name)})
		}
	}
	for _, name := range SortedKeys(after.Tables) {
		b, ok := before.Tables[name]
		if !ok {
			ops = append(ops, PatchOp{Kind: PatchAdd, Path: tablePath(name), Value: after.Tables[name].Clone()})
			continue
		}
		ops = append(ops, diffTable(b, after.Tables[name])...)
	}
	return ops
}

func diffTable(before, after *Table) []PatchOp {
	if !reflect.DeepEqual(before.Constraints, after.Constraints) {
		return []PatchOp{{Kind: PatchReplace, Path: tablePath(after.Name), Value: after.Clone()}}
	}
	// Column display order is externally observable but not field-addressable.
	// Column-level ops keep surviving columns in place and append additions,
	// so any other ordering needs the whole table replaced.
	if !reflect.DeepEqual(replayedColumnOrder(before, after), after.ColumnOrder) {
		return []PatchOp{{Kind: PatchReplace, Path: tablePath(after.Name), Value: after.Clone()}}
	}

	var ops []PatchOp
	base := tablePath(after.Name)

	ops = append(ops, diffNullableString(base+"/comment", before.Comment, after.Comment)...)

	for _, name := range SortedKeys(before.Columns) {
		if _, ok := after.Columns[name]; !ok {
			ops = append(ops, PatchOp{Kind: PatchRemove, Path: base + "/columns/" + escapeSegment(name)})
		}
	}
	for _, name := range SortedKeys(after.Columns) {
		b, ok := before.Columns[name]
		if !ok {
			ops = append(ops, PatchOp{
				Kind:  PatchAdd,
				Path:  base + "/columns/" + escapeSegment(name),
				Value: after.Columns[name].Clone(),
			})
			continue
		}
		ops = append(ops, diffColumn(base+"/columns/"+escapeSegment(name), b, after.Columns[name])...)
	}

	for _, name := range SortedKeys(before.Indexes) {
		if _, ok := after.Indexes[name]; !ok {
			ops = append(ops, PatchOp{Kind: PatchRemove, Path: base + "/indexes/" + escapeSegment(name)})
		}
	}
	for _, name := range SortedKeys(after.Indexes) {
		befIdx, ok := before.Indexes[name]
		if !ok {
			ops = append(ops, PatchOp{
				Kind:  PatchAdd,
				Path:  base + "/indexes/" + escapeSegment(name),
				Value: after.Indexes[name].Clone(),
			})
			continue
		}
		ops = append(ops, diffIndex(base+"/indexes/"+escapeSegment(name), befIdx, after.Indexes[name])...)
	}
	return ops
}

// replayedColumnOrder is the column order the emitted column ops produce:
// before's order minus removed columns, with added columns appended in the
// order the ops emit them.
func replayedColumnOrder(before, after *Table) []string {
	var out []string
	for _, name := range before.ColumnOrder {
		if _, ok := after.Columns[name]; ok {
			out = append(out, name)
		}
	}
	for _, name := range SortedKeys(after.Columns) {
		if _, ok := before.Columns[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func diffColumn(base string, before, after *Column) []PatchOp {
	var ops []PatchOp
	if before.Type != after.Type {
		// Type is not an addressable leaf; replace the whole column.
		return []PatchOp{{Kind: PatchReplace, Path: base, Value: after.Clone()}}
	}
	ops = append(ops, diffNullableString(base+"/comment", before.Comment, after.Comment)...)
	ops = append(ops, diffNullableString(base+"/default", before.Default, after.Default)...)
	ops = append(ops, diffNullableString(base+"/check", before.Check, after.Check)...)
	if before.Primary != after.Primary {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/primary", Value: after.Primary})
	}
	if before.Unique != after.Unique {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/unique", Value: after.Unique})
	}
	if before.NotNull != after.NotNull {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/notNull", Value: after.NotNull})
	}
	return ops
}

func diffIndex(base string, before, after *Index) []PatchOp {
	var ops []PatchOp
	if before.Unique != after.Unique {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/unique", Value: after.Unique})
	}
	if !reflect.DeepEqual(before.Columns, after.Columns) {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/columns", Value: append([]string(nil), after.Columns...)})
	}
	if before.Type != after.Type {
		ops = append(ops, PatchOp{Kind: PatchReplace, Path: base + "/type", Value: after.Type})
	}
	return ops
}

func diffNullableString(path string, before, after *string) []PatchOp {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return []PatchOp{{Kind: PatchAdd, Path: path, Value: *after}}
	case after == nil:
		return []PatchOp{{Kind: PatchRemove, Path: path}}
	case *before != *after:
		return []PatchOp{{Kind: PatchReplace, Path: path, Value: *after}}
	default:
		return nil
	}
}

func tablePath(name string) string {
	return "/tables/" + escapeSegment(name)
}

// escapeSegment applies JSON-pointer escaping to a path segment.
func escapeSegment(seg string) string {
	if !strings.ContainsAny(seg, "~/") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~", "~0")
	return strings.ReplaceAll(seg, "/", "~1")
}
