package dbstruct

import "strings"

// targetKind identifies which of the closed set of address shapes a patch
// path matched.
type targetKind int

const (
	targetTable targetKind = iota
	targetTableField
	targetColumn
	targetColumnField
	targetIndex
	targetIndexField
)

var tableFields = NewSet("name", "comment")
var columnFields = NewSet("name", "comment", "primary", "default", "check", "unique", "notNull")
var indexFields = NewSet("name", "unique", "columns", "type")

// patchTarget is a parsed patch path. Exactly one entity or one scalar field
// is addressed.
type patchTarget struct {
	kind   targetKind
	table  string
	column string
	index  string
	field  string
}

// parsePatchPath validates a path against the closed set of address shapes:
//
//	/tables/{table}
//	/tables/{table}/name|comment
//	/tables/{table}/columns/{column}
//	/tables/{table}/columns/{column}/{name|comment|primary|default|check|unique|notNull}
//	/tables/{table}/indexes/{index}
//	/tables/{table}/indexes/{index}/{name|unique|columns|type}
//
// Anything else fails with INVALID_PATH.
func parsePatchPath(path string) (patchTarget, *PatchError) {
	invalid := func() (patchTarget, *PatchError) {
		return patchTarget{}, NewPatchError(PatchInvalidPath, path, "path does not address a known shape")
	}

	if !strings.HasPrefix(path, "/") {
		return invalid()
	}
	segments := strings.Split(path[1:], "/")
	for i, seg := range segments {
		if seg == "" {
			return invalid()
		}
		segments[i] = unescapeSegment(seg)
	}
	if segments[0] != "tables" || len(segments) < 2 {
		return invalid()
	}

	t := patchTarget{table: segments[1]}
	switch len(segments) {
	case 2:
		t.kind = targetTable
		return t, nil
	case 3:
		if !tableFields.Contains(segments[2]) {
			return invalid()
		}
		t.kind = targetTableField
		t.field = segments[2]
		return t, nil
	case 4:
		switch segments[2] {
		case "columns":
			t.kind = targetColumn
			t.column = segments[3]
		case "indexes":
			t.kind = targetIndex
			t.index = segments[3]
		default:
			return invalid()
		}
		return t, nil
	case 5:
		switch segments[2] {
		case "columns":
			if !columnFields.Contains(segments[4]) {
				return invalid()
			}
			t.kind = targetColumnField
			t.column = segments[3]
			t.field = segments[4]
		case "indexes":
			if !indexFields.Contains(segments[4]) {
				return invalid()
			}
			t.kind = targetIndexField
			t.index = segments[3]
			t.field = segments[4]
		default:
			return invalid()
		}
		return t, nil
	default:
		return invalid()
	}
}

// unescapeSegment applies JSON-pointer escaping: ~1 is "/", ~0 is "~".
func unescapeSegment(seg string) string {
	if !strings.Contains(seg, "~") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}
