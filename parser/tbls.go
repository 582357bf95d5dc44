package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/lychee-technology/dbstruct"
)

// tblsSchemaJSON validates the overall shape of a tbls schema document
// before conversion, so shape problems surface as one clear error instead of
// a cascade of conversion failures.
const tblsSchemaJSON = `{
	"type": "object",
	"required": ["tables"],
	"properties": {
		"name": {"type": "string"},
		"tables": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"},
					"type": {"type": "string"},
					"comment": {"type": "string"},
					"columns": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "type"],
							"properties": {
								"name": {"type": "string"},
								"type": {"type": "string"},
								"nullable": {"type": "boolean"},
								"default": {"type": ["string", "number", "boolean", "null"]},
								"comment": {"type": "string"}
							}
						}
					},
					"indexes": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name"],
							"properties": {
								"name": {"type": "string"},
								"def": {"type": "string"},
								"columns": {"type": "array", "items": {"type": "string"}}
							}
						}
					},
					"constraints": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "type"],
							"properties": {
								"name": {"type": "string"},
								"type": {"type": "string"},
								"def": {"type": "string"},
								"columns": {"type": "array", "items": {"type": "string"}},
								"referenced_table": {"type": "string"},
								"referenced_columns": {"type": "array", "items": {"type": "string"}}
							}
						}
					}
				}
			}
		},
		"relations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["table", "columns", "parent_table", "parent_columns"],
				"properties": {
					"table": {"type": "string"},
					"columns": {"type": "array", "items": {"type": "string"}},
					"parent_table": {"type": "string"},
					"parent_columns": {"type": "array", "items": {"type": "string"}},
					"def": {"type": "string"},
					"virtual": {"type": "boolean"}
				}
			}
		}
	}
}`

var (
	tblsResolveOnce sync.Once
	tblsResolved    *jsonschema.Resolved
	tblsResolveErr  error
)

func resolvedTblsSchema() (*jsonschema.Resolved, error) {
	tblsResolveOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(tblsSchemaJSON), &schema); err != nil {
			tblsResolveErr = fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
			return
		}
		tblsResolved, tblsResolveErr = schema.Resolve(&jsonschema.ResolveOptions{})
	})
	return tblsResolved, tblsResolveErr
}

// Typed document, decoded only after validation passes.
type tblsDocument struct {
	Name      string         `json:"name"`
	Tables    []tblsTable    `json:"tables"`
	Relations []tblsRelation `json:"relations"`
}

type tblsTable struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Comment     string           `json:"comment"`
	Columns     []tblsColumn     `json:"columns"`
	Indexes     []tblsIndex      `json:"indexes"`
	Constraints []tblsConstraint `json:"constraints"`
}

type tblsColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  any    `json:"default"`
	Comment  string `json:"comment"`
}

type tblsIndex struct {
	Name    string   `json:"name"`
	Def     string   `json:"def"`
	Columns []string `json:"columns"`
}

type tblsConstraint struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Def               string   `json:"def"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

type tblsRelation struct {
	Table         string   `json:"table"`
	Columns       []string `json:"columns"`
	ParentTable   string   `json:"parent_table"`
	ParentColumns []string `json:"parent_columns"`
	Virtual       bool     `json:"virtual"`
}

// ParseTbls converts a tbls schema document (JSON, or YAML as a superset)
// into the model. The document is validated against an embedded JSON Schema
// first; a document that fails decoding or validation yields one fatal
// process error and an empty schema.
func ParseTbls(input string) (*dbstruct.Schema, []dbstruct.ProcessError) {
	schema := dbstruct.NewSchema()

	var raw any
	if err := yaml.Unmarshal([]byte(input), &raw); err != nil {
		return schema, []dbstruct.ProcessError{dbstruct.NewProcessError("failed to decode document: %s", err)}
	}
	resolved, err := resolvedTblsSchema()
	if err != nil {
		return schema, []dbstruct.ProcessError{dbstruct.NewProcessError("internal schema definition is invalid: %s", err)}
	}
	if err := resolved.Validate(raw); err != nil {
		return schema, []dbstruct.ProcessError{dbstruct.NewProcessError("document failed validation: %s", err)}
	}

	// Round-trip through JSON into the typed form; validation already
	// guaranteed the shape.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return schema, []dbstruct.ProcessError{dbstruct.NewProcessError("failed to re-encode document: %s", err)}
	}
	var doc tblsDocument
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return schema, []dbstruct.ProcessError{dbstruct.NewProcessError("failed to decode document: %s", err)}
	}

	c := &tblsConverter{schema: schema}
	for i := range doc.Tables {
		c.convertTable(&doc.Tables[i])
	}
	for i := range doc.Relations {
		c.convertRelation(&doc.Relations[i])
	}

	schema.ComputeRelationships()
	return schema, c.errs
}

type tblsConverter struct {
	schema *dbstruct.Schema
	errs   []dbstruct.ProcessError
}

func (c *tblsConverter) errorf(format string, args ...any) {
	c.errs = append(c.errs, dbstruct.NewProcessError(format, args...))
}

func (c *tblsConverter) convertTable(t *tblsTable) {
	switch strings.ToUpper(t.Type) {
	case "", "TABLE", "BASE TABLE":
	default:
		c.errorf("table %q has type %q which is not represented; skipped", t.Name, t.Type)
		return
	}

	table := dbstruct.NewTable(t.Name)
	if t.Comment != "" {
		table.Comment = dbstruct.StringPtr(t.Comment)
	}
	for _, col := range t.Columns {
		column := &dbstruct.Column{
			Name:    col.Name,
			Type:    strings.ToLower(col.Type),
			NotNull: !col.Nullable,
			Default: defaultLiteral(col.Default),
		}
		if col.Comment != "" {
			column.Comment = dbstruct.StringPtr(col.Comment)
		}
		table.AddColumn(column)
	}
	for _, idx := range t.Indexes {
		table.Indexes[idx.Name] = &dbstruct.Index{
			Name:    idx.Name,
			Columns: append([]string(nil), idx.Columns...),
			Unique:  strings.Contains(strings.ToUpper(idx.Def), "UNIQUE"),
			Type:    indexMethodFromDef(idx.Def),
		}
	}
	for _, constraint := range t.Constraints {
		c.convertConstraint(table, constraint)
	}
	c.schema.AddTable(table)
}

func (c *tblsConverter) convertConstraint(table *dbstruct.Table, con tblsConstraint) {
	switch strings.ToUpper(con.Type) {
	case "PRIMARY KEY":
		table.AddConstraint(&dbstruct.PrimaryKeyConstraint{Name: con.Name, ColumnNames: con.Columns})
		for _, name := range con.Columns {
			if col, ok := table.Columns[name]; ok {
				col.Primary = true
				col.NotNull = true
				if len(con.Columns) == 1 {
					col.Unique = true
				}
			}
		}
	case "UNIQUE":
		table.AddConstraint(&dbstruct.UniqueConstraint{Name: con.Name, ColumnNames: con.Columns})
		if len(con.Columns) == 1 {
			if col, ok := table.Columns[con.Columns[0]]; ok {
				col.Unique = true
			}
		}
	case "FOREIGN KEY":
		if len(con.Columns) != len(con.ReferencedColumns) {
			c.errorf("foreign key %q on %q has mismatched column lists (%d source, %d target)",
				con.Name, table.Name, len(con.Columns), len(con.ReferencedColumns))
			return
		}
		table.AddConstraint(&dbstruct.ForeignKeyConstraint{
			Name:          con.Name,
			ColumnNames:   con.Columns,
			TargetTable:   con.ReferencedTable,
			TargetColumns: con.ReferencedColumns,
			OnUpdate:      dbstruct.ActionNoAction,
			OnDelete:      dbstruct.ActionNoAction,
		})
	case "CHECK":
		table.AddConstraint(&dbstruct.CheckConstraint{
			Name:        con.Name,
			ColumnNames: con.Columns,
			Expression:  checkExpressionFromDef(con.Def),
		})
	default:
		c.errorf("constraint %q on %q has type %q which is not represented; skipped",
			con.Name, table.Name, con.Type)
	}
}

// convertRelation adds foreign keys that only appear in the relations list
// (tbls emits these for engines without declarative constraints, and for
// virtual relations defined in its config).
func (c *tblsConverter) convertRelation(r *tblsRelation) {
	table, ok := c.schema.Tables[r.Table]
	if !ok {
		c.errorf("relation references unknown table %q; skipped", r.Table)
		return
	}
	if len(r.Columns) != len(r.ParentColumns) {
		c.errorf("relation on %q has mismatched column lists (%d source, %d target)",
			r.Table, len(r.Columns), len(r.ParentColumns))
		return
	}
	for _, existing := range table.Constraints {
		fk, ok := existing.(*dbstruct.ForeignKeyConstraint)
		if ok && fk.TargetTable == r.ParentTable && equalStrings(fk.ColumnNames, r.Columns) {
			return
		}
	}
	name := fmt.Sprintf("%s_%s_fkey", r.Table, strings.Join(r.Columns, "_"))
	table.AddConstraint(&dbstruct.ForeignKeyConstraint{
		Name:          name,
		ColumnNames:   append([]string(nil), r.Columns...),
		TargetTable:   r.ParentTable,
		TargetColumns: append([]string(nil), r.ParentColumns...),
		OnUpdate:      dbstruct.ActionNoAction,
		OnDelete:      dbstruct.ActionNoAction,
	})
}

// indexMethodFromDef extracts the index method from a DDL def string, e.g.
// "CREATE INDEX i ON t USING btree (c)" yields "btree".
func indexMethodFromDef(def string) string {
	fields := strings.Fields(def)
	for i, f := range fields {
		if strings.EqualFold(f, "USING") && i+1 < len(fields) {
			return strings.ToLower(fields[i+1])
		}
	}
	return ""
}

// checkExpressionFromDef strips the CHECK (...) wrapper when present.
func checkExpressionFromDef(def string) string {
	trimmed := strings.TrimSpace(def)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "CHECK") {
		inner := strings.TrimSpace(trimmed[len("CHECK"):])
		if strings.HasPrefix(inner, "(") && strings.HasSuffix(inner, ")") {
			return strings.TrimSpace(inner[1 : len(inner)-1])
		}
		return inner
	}
	return trimmed
}

// defaultLiteral renders a column default as a literal string; numbers and
// booleans keep their JSON spelling.
func defaultLiteral(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
