package dbstruct

import (
	"encoding/json"
	"strconv"
)

// PatchOpKind is the mutation kind of a single patch operation.
type PatchOpKind string

const (
	PatchAdd     PatchOpKind = "add"
	PatchReplace PatchOpKind = "replace"
	PatchRemove  PatchOpKind = "remove"
)

// PatchOp is one path-addressed mutation. Value is ignored for remove; for
// whole-entity paths it may be a typed *Table/*Column/*Index or the JSON
// object form produced by an external planner.
type PatchOp struct {
	Kind  PatchOpKind `json:"op"`
	Path  string      `json:"path"`
	Value any         `json:"value,omitempty"`
}

// ApplyPatch applies the operations sequentially and returns a new Schema;
// the input is never mutated. Later operations may address paths created by
// earlier ones, so the batch is not parallelizable. The first failing
// operation aborts the batch with a *PatchError carrying the offending path.
//
// Tables are copied on first write, so untouched tables are shared between
// the input and the result.
func ApplyPatch(schema *Schema, ops []PatchOp) (*Schema, error) {
	a := &patchApplier{
		schema: &Schema{
			Tables:        make(map[string]*Table, len(schema.Tables)),
			Relationships: schema.Relationships,
		},
		cloned: NewSet[string](),
	}
	for name, t := range schema.Tables {
		a.schema.Tables[name] = t
	}

	refresh := false
	for _, op := range ops {
		target, perr := parsePatchPath(op.Path)
		if perr != nil {
			return nil, perr
		}
		if err := a.apply(op, target); err != nil {
			return nil, err
		}
		if target.affectsRelationships() {
			refresh = true
		}
	}
	if refresh {
		a.schema.ComputeRelationships()
	}
	return a.schema, nil
}

// affectsRelationships reports whether the addressed entity or field can
// change the derived relationship map: whole tables (constraints travel with
// them), column identity/uniqueness fields, and indexes, whose uniqueness
// participates in cardinality classification.
func (t patchTarget) affectsRelationships() bool {
	switch t.kind {
	case targetTable, targetColumn, targetIndex:
		return true
	case targetTableField:
		return t.field == "name"
	case targetColumnField:
		return t.field == "name" || t.field == "primary" || t.field == "unique"
	case targetIndexField:
		return t.field == "unique" || t.field == "columns"
	default:
		return false
	}
}

type patchApplier struct {
	schema *Schema
	cloned *Set[string]
}

// mutableTable returns a table safe to mutate, cloning it on first touch.
func (a *patchApplier) mutableTable(name string) (*Table, bool) {
	t, ok := a.schema.Tables[name]
	if !ok {
		return nil, false
	}
	if !a.cloned.Contains(name) {
		t = t.Clone()
		a.schema.Tables[name] = t
		a.cloned.Add(name)
	}
	return t, true
}

func (a *patchApplier) apply(op PatchOp, target patchTarget) *PatchError {
	switch op.Kind {
	case PatchAdd, PatchReplace:
		return a.applyWrite(op, target)
	case PatchRemove:
		return a.applyRemove(op, target)
	default:
		return NewPatchError(PatchInvalidValue, op.Path, "unknown operation kind %q", op.Kind)
	}
}

func (a *patchApplier) applyWrite(op PatchOp, target patchTarget) *PatchError {
	switch target.kind {
	case targetTable:
		table, perr := decodeTableValue(op.Path, op.Value)
		if perr != nil {
			return perr
		}
		if op.Kind == PatchReplace {
			if _, ok := a.schema.Tables[target.table]; !ok {
				return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
			}
		}
		table.Name = target.table
		a.schema.Tables[target.table] = table
		a.cloned.Add(target.table)
		return nil

	case targetTableField:
		table, perr := a.writableParent(op, target.table)
		if perr != nil {
			return perr
		}
		return a.setTableField(op, table, target.field)

	case targetColumn:
		table, perr := a.writableParent(op, target.table)
		if perr != nil {
			return perr
		}
		col, cerr := decodeColumnValue(op.Path, op.Value)
		if cerr != nil {
			return cerr
		}
		if op.Kind == PatchReplace {
			if _, ok := table.Columns[target.column]; !ok {
				return NewPatchError(PatchNotFound, op.Path, "column %q does not exist", target.column)
			}
		}
		col.Name = target.column
		table.AddColumn(col)
		return nil

	case targetColumnField:
		table, perr := a.writableParent(op, target.table)
		if perr != nil {
			return perr
		}
		col, ok := table.Columns[target.column]
		if !ok {
			return a.missingParentOrNotFound(op, "column %q does not exist", target.column)
		}
		return setColumnField(op, table, col, target.field)

	case targetIndex:
		table, perr := a.writableParent(op, target.table)
		if perr != nil {
			return perr
		}
		idx, ierr := decodeIndexValue(op.Path, op.Value)
		if ierr != nil {
			return ierr
		}
		if op.Kind == PatchReplace {
			if _, ok := table.Indexes[target.index]; !ok {
				return NewPatchError(PatchNotFound, op.Path, "index %q does not exist", target.index)
			}
		}
		idx.Name = target.index
		table.Indexes[target.index] = idx
		return nil

	case targetIndexField:
		table, perr := a.writableParent(op, target.table)
		if perr != nil {
			return perr
		}
		idx, ok := table.Indexes[target.index]
		if !ok {
			return a.missingParentOrNotFound(op, "index %q does not exist", target.index)
		}
		return setIndexField(op, table, idx, target.field)

	default:
		return NewPatchError(PatchInvalidPath, op.Path, "path does not address a known shape")
	}
}

// writableParent resolves the table a write happens inside of. A missing
// table is MISSING_PARENT for add and NOT_FOUND for replace.
func (a *patchApplier) writableParent(op PatchOp, table string) (*Table, *PatchError) {
	t, ok := a.mutableTable(table)
	if ok {
		return t, nil
	}
	if op.Kind == PatchAdd {
		return nil, NewPatchError(PatchMissingParent, op.Path, "table %q does not exist", table)
	}
	return nil, NewPatchError(PatchNotFound, op.Path, "table %q does not exist", table)
}

func (a *patchApplier) missingParentOrNotFound(op PatchOp, format string, args ...any) *PatchError {
	if op.Kind == PatchAdd {
		return NewPatchError(PatchMissingParent, op.Path, format, args...)
	}
	return NewPatchError(PatchNotFound, op.Path, format, args...)
}

func (a *patchApplier) applyRemove(op PatchOp, target patchTarget) *PatchError {
	switch target.kind {
	case targetTable:
		if _, ok := a.schema.Tables[target.table]; !ok {
			return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
		}
		delete(a.schema.Tables, target.table)
		return nil

	case targetTableField:
		table, ok := a.mutableTable(target.table)
		if !ok {
			return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
		}
		if target.field != "comment" {
			return NewPatchError(PatchInvalidPath, op.Path, "field %q cannot be removed", target.field)
		}
		if table.Comment == nil {
			return NewPatchError(PatchNotFound, op.Path, "table %q has no comment", target.table)
		}
		table.Comment = nil
		return nil

	case targetColumn:
		table, ok := a.mutableTable(target.table)
		if !ok {
			return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
		}
		if _, ok := table.Columns[target.column]; !ok {
			return NewPatchError(PatchNotFound, op.Path, "column %q does not exist", target.column)
		}
		table.RemoveColumn(target.column)
		return nil

	case targetColumnField:
		table, ok := a.mutableTable(target.table)
		if !ok {
			return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
		}
		col, ok := table.Columns[target.column]
		if !ok {
			return NewPatchError(PatchNotFound, op.Path, "column %q does not exist", target.column)
		}
		return removeColumnField(op, col, target.field)

	case targetIndex:
		table, ok := a.mutableTable(target.table)
		if !ok {
			return NewPatchError(PatchNotFound, op.Path, "table %q does not exist", target.table)
		}
		if _, ok := table.Indexes[target.index]; !ok {
			return NewPatchError(PatchNotFound, op.Path, "index %q does not exist", target.index)
		}
		delete(table.Indexes, target.index)
		return nil

	case targetIndexField:
		return NewPatchError(PatchInvalidPath, op.Path, "index fields cannot be removed")

	default:
		return NewPatchError(PatchInvalidPath, op.Path, "path does not address a known shape")
	}
}

func (a *patchApplier) setTableField(op PatchOp, table *Table, field string) *PatchError {
	switch field {
	case "name":
		name, perr := stringValue(op)
		if perr != nil {
			return perr
		}
		if name == "" {
			return NewPatchError(PatchInvalidValue, op.Path, "table name cannot be empty")
		}
		if name == table.Name {
			return nil
		}
		delete(a.schema.Tables, table.Name)
		table.Name = name
		a.schema.Tables[name] = table
		a.cloned.Add(name)
		return nil
	case "comment":
		comment, perr := nullableStringValue(op)
		if perr != nil {
			return perr
		}
		table.Comment = comment
		return nil
	default:
		return NewPatchError(PatchInvalidPath, op.Path, "unknown table field %q", field)
	}
}

func setColumnField(op PatchOp, table *Table, col *Column, field string) *PatchError {
	switch field {
	case "name":
		name, perr := stringValue(op)
		if perr != nil {
			return perr
		}
		if name == "" {
			return NewPatchError(PatchInvalidValue, op.Path, "column name cannot be empty")
		}
		if name == col.Name {
			return nil
		}
		old := col.Name
		col.Name = name
		table.Columns[name] = col
		delete(table.Columns, old)
		for i, n := range table.ColumnOrder {
			if n == old {
				table.ColumnOrder[i] = name
			}
		}
		return nil
	case "comment":
		v, perr := nullableStringValue(op)
		if perr != nil {
			return perr
		}
		col.Comment = v
	case "default":
		v, perr := nullableStringValue(op)
		if perr != nil {
			return perr
		}
		col.Default = v
	case "check":
		v, perr := nullableStringValue(op)
		if perr != nil {
			return perr
		}
		col.Check = v
	case "primary":
		v, perr := boolValue(op)
		if perr != nil {
			return perr
		}
		col.Primary = v
	case "unique":
		v, perr := boolValue(op)
		if perr != nil {
			return perr
		}
		col.Unique = v
	case "notNull":
		v, perr := boolValue(op)
		if perr != nil {
			return perr
		}
		col.NotNull = v
	default:
		return NewPatchError(PatchInvalidPath, op.Path, "unknown column field %q", field)
	}
	return nil
}

func removeColumnField(op PatchOp, col *Column, field string) *PatchError {
	var slot **string
	switch field {
	case "comment":
		slot = &col.Comment
	case "default":
		slot = &col.Default
	case "check":
		slot = &col.Check
	default:
		return NewPatchError(PatchInvalidPath, op.Path, "field %q cannot be removed", field)
	}
	if *slot == nil {
		return NewPatchError(PatchNotFound, op.Path, "field %q is not set", field)
	}
	*slot = nil
	return nil
}

func setIndexField(op PatchOp, table *Table, idx *Index, field string) *PatchError {
	switch field {
	case "name":
		name, perr := stringValue(op)
		if perr != nil {
			return perr
		}
		if name == "" {
			return NewPatchError(PatchInvalidValue, op.Path, "index name cannot be empty")
		}
		if name == idx.Name {
			return nil
		}
		delete(table.Indexes, idx.Name)
		idx.Name = name
		table.Indexes[name] = idx
		return nil
	case "unique":
		v, perr := boolValue(op)
		if perr != nil {
			return perr
		}
		idx.Unique = v
	case "columns":
		cols, perr := stringSliceValue(op)
		if perr != nil {
			return perr
		}
		idx.Columns = cols
	case "type":
		v, perr := stringValue(op)
		if perr != nil {
			return perr
		}
		idx.Type = v
	default:
		return NewPatchError(PatchInvalidPath, op.Path, "unknown index field %q", field)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value decoding
// ---------------------------------------------------------------------------

func decodeTableValue(path string, value any) (*Table, *PatchError) {
	switch v := value.(type) {
	case *Table:
		return v.Clone(), nil
	case Table:
		return v.Clone(), nil
	}
	var out Table
	if perr := decodeViaJSON(path, value, &out); perr != nil {
		return nil, perr
	}
	if out.Columns == nil {
		out.Columns = make(map[string]*Column)
	}
	if out.Indexes == nil {
		out.Indexes = make(map[string]*Index)
	}
	if out.Constraints == nil {
		out.Constraints = make(map[string]Constraint)
	}
	return &out, nil
}

func decodeColumnValue(path string, value any) (*Column, *PatchError) {
	switch v := value.(type) {
	case *Column:
		return v.Clone(), nil
	case Column:
		return v.Clone(), nil
	}
	var out Column
	if perr := decodeViaJSON(path, value, &out); perr != nil {
		return nil, perr
	}
	return &out, nil
}

func decodeIndexValue(path string, value any) (*Index, *PatchError) {
	switch v := value.(type) {
	case *Index:
		return v.Clone(), nil
	case Index:
		return v.Clone(), nil
	}
	var out Index
	if perr := decodeViaJSON(path, value, &out); perr != nil {
		return nil, perr
	}
	return &out, nil
}

func decodeViaJSON(path string, value, out any) *PatchError {
	if value == nil {
		return NewPatchError(PatchInvalidValue, path, "value is required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return NewPatchError(PatchInvalidValue, path, "value is not serializable").WithCause(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewPatchError(PatchInvalidValue, path, "value does not match the addressed entity").WithCause(err)
	}
	return nil
}

func stringValue(op PatchOp) (string, *PatchError) {
	s, ok := op.Value.(string)
	if !ok {
		return "", NewPatchError(PatchInvalidValue, op.Path, "expected a string value, got %T", op.Value)
	}
	return s, nil
}

// nullableStringValue accepts strings, nil, and scalar literals (numbers,
// booleans) that serialize naturally into a default literal.
func nullableStringValue(op PatchOp) (*string, *PatchError) {
	switch v := op.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case *string:
		return cloneStringPtr(v), nil
	case bool:
		s := strconv.FormatBool(v)
		return &s, nil
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s, nil
	case int:
		s := strconv.Itoa(v)
		return &s, nil
	default:
		return nil, NewPatchError(PatchInvalidValue, op.Path, "expected a string or null, got %T", op.Value)
	}
}

func boolValue(op PatchOp) (bool, *PatchError) {
	b, ok := op.Value.(bool)
	if !ok {
		return false, NewPatchError(PatchInvalidValue, op.Path, "expected a boolean value, got %T", op.Value)
	}
	return b, nil
}

func stringSliceValue(op PatchOp) ([]string, *PatchError) {
	switch v := op.Value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, NewPatchError(PatchInvalidValue, op.Path, "expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, NewPatchError(PatchInvalidValue, op.Path, "expected a string array, got %T", op.Value)
	}
}
