package parser

import (
	"fmt"
	"strings"

	"github.com/auxten/postgresql-parser/pkg/sql/parser"
	"github.com/auxten/postgresql-parser/pkg/sql/sem/tree"

	"github.com/lychee-technology/dbstruct"
)

// sqlConverter folds parsed SQL statements into a partial schema, recording
// conversion errors for constructs the model cannot represent. The context
// schema, when non-nil, is the read-only accumulated result of earlier
// chunks; it lets statements like COMMENT ON COLUMN amend entities defined
// in a previous chunk without clobbering them on merge.
type sqlConverter struct {
	schema  *dbstruct.Schema
	context *dbstruct.Schema
	errs    []dbstruct.ProcessError
}

// convertSQLStatements converts a parsed statement list into partial,
// returning the accumulated conversion errors.
func convertSQLStatements(stmts parser.Statements, partial, context *dbstruct.Schema) []dbstruct.ProcessError {
	c := &sqlConverter{schema: partial, context: context}
	for _, stmt := range stmts {
		c.convertStatement(stmt.AST)
	}
	return c.errs
}

func (c *sqlConverter) errorf(format string, args ...any) {
	c.errs = append(c.errs, dbstruct.NewProcessError(format, args...))
}

func (c *sqlConverter) convertStatement(node tree.Statement) {
	switch n := node.(type) {
	case *tree.CreateTable:
		c.convertCreateTable(n)
	case *tree.CreateIndex:
		c.convertCreateIndex(n)
	case *tree.AlterTable:
		c.convertAlterTable(n)
	case *tree.CommentOnTable:
		c.convertCommentOnTable(n)
	case *tree.CommentOnColumn:
		c.convertCommentOnColumn(n)
	case *tree.CreateView:
		c.errorf("views are not represented; skipped view definition")
	case *tree.DropTable:
		// Dumps commonly emit DROP TABLE IF EXISTS before CREATE TABLE;
		// dropping has no effect on a schema being built up.
	case *tree.CreateSequence, *tree.SetVar, *tree.Insert, *tree.Delete, *tree.Update,
		*tree.BeginTransaction, *tree.CommitTransaction, *tree.Grant:
		// Session, data, and privilege statements carry no schema shape.
	default:
		c.errorf("unsupported statement %T skipped", node)
	}
}

// ensureTable returns the named table in the partial schema, seeding it from
// the accumulated context when available so later amendments merge cleanly.
func (c *sqlConverter) ensureTable(name string) *dbstruct.Table {
	if t, ok := c.schema.Tables[name]; ok {
		return t
	}
	if c.context != nil {
		if t, ok := c.context.Tables[name]; ok {
			clone := t.Clone()
			c.schema.AddTable(clone)
			return clone
		}
	}
	t := dbstruct.NewTable(name)
	c.schema.AddTable(t)
	return t
}

func (c *sqlConverter) convertCreateTable(n *tree.CreateTable) {
	table := dbstruct.NewTable(n.Table.Table())
	for _, def := range n.Defs {
		switch d := def.(type) {
		case *tree.ColumnTableDef:
			c.convertColumnDef(table, d)
		case *tree.UniqueConstraintTableDef:
			c.convertUniqueTableDef(table, d)
		case *tree.ForeignKeyConstraintTableDef:
			c.convertForeignKeyDef(table, d)
		case *tree.CheckConstraintTableDef:
			c.convertCheckDef(table, d)
		case *tree.IndexTableDef:
			c.addIndex(table, string(d.Name), indexColumns(d.Columns), false, d.Inverted)
		case *tree.FamilyTableDef:
			// Column families are storage layout, not schema shape.
		default:
			c.errorf("unsupported element %T in table %q skipped", def, table.Name)
		}
	}
	c.schema.AddTable(table)
}

func (c *sqlConverter) convertColumnDef(table *dbstruct.Table, d *tree.ColumnTableDef) {
	col := &dbstruct.Column{
		Name: string(d.Name),
		Type: columnTypeName(d),
	}
	if d.Nullable.Nullability == tree.NotNull || d.IsSerial {
		col.NotNull = true
	}
	if d.DefaultExpr.Expr != nil {
		col.Default = dbstruct.StringPtr(tree.AsString(d.DefaultExpr.Expr))
	}
	for _, check := range d.CheckExprs {
		expr := tree.AsString(check.Expr)
		col.Check = &expr
		name := string(check.ConstraintName)
		if name == "" {
			name = fmt.Sprintf("%s_%s_check", table.Name, col.Name)
		}
		table.AddConstraint(&dbstruct.CheckConstraint{
			Name:        name,
			ColumnNames: []string{col.Name},
			Expression:  expr,
		})
	}
	if d.PrimaryKey.IsPrimaryKey {
		col.Primary = true
		col.NotNull = true
		col.Unique = true
		table.AddConstraint(&dbstruct.PrimaryKeyConstraint{
			Name:        fmt.Sprintf("%s_pkey", table.Name),
			ColumnNames: []string{col.Name},
		})
	}
	if d.Unique {
		col.Unique = true
		name := string(d.UniqueConstraintName)
		if name == "" {
			name = fmt.Sprintf("%s_%s_key", table.Name, col.Name)
		}
		table.AddConstraint(&dbstruct.UniqueConstraint{
			Name:        name,
			ColumnNames: []string{col.Name},
		})
	}
	if d.References.Table != nil {
		c.convertColumnReference(table, col, d)
	}
	table.AddColumn(col)
}

func (c *sqlConverter) convertColumnReference(table *dbstruct.Table, col *dbstruct.Column, d *tree.ColumnTableDef) {
	targetColumn := string(d.References.Col)
	if targetColumn == "" {
		c.errorf("foreign key on %q.%q without an explicit target column is not supported",
			table.Name, col.Name)
		return
	}
	name := string(d.References.ConstraintName)
	if name == "" {
		name = fmt.Sprintf("%s_%s_fkey", table.Name, col.Name)
	}
	table.AddConstraint(&dbstruct.ForeignKeyConstraint{
		Name:          name,
		ColumnNames:   []string{col.Name},
		TargetTable:   d.References.Table.Table(),
		TargetColumns: []string{targetColumn},
		OnUpdate:      refAction(d.References.Actions.Update),
		OnDelete:      refAction(d.References.Actions.Delete),
	})
}

func (c *sqlConverter) convertUniqueTableDef(table *dbstruct.Table, d *tree.UniqueConstraintTableDef) {
	columns := indexColumns(d.Columns)
	name := string(d.Name)
	if d.PrimaryKey {
		if name == "" {
			name = fmt.Sprintf("%s_pkey", table.Name)
		}
		table.AddConstraint(&dbstruct.PrimaryKeyConstraint{Name: name, ColumnNames: columns})
		for _, colName := range columns {
			if col, ok := table.Columns[colName]; ok {
				col.Primary = true
				col.NotNull = true
				if len(columns) == 1 {
					col.Unique = true
				}
			}
		}
		return
	}
	if name == "" {
		name = fmt.Sprintf("%s_%s_key", table.Name, strings.Join(columns, "_"))
	}
	table.AddConstraint(&dbstruct.UniqueConstraint{Name: name, ColumnNames: columns})
	if len(columns) == 1 {
		if col, ok := table.Columns[columns[0]]; ok {
			col.Unique = true
		}
	}
}

func (c *sqlConverter) convertForeignKeyDef(table *dbstruct.Table, d *tree.ForeignKeyConstraintTableDef) {
	from := nameListToStrings(d.FromCols)
	to := nameListToStrings(d.ToCols)
	if len(to) == 0 {
		c.errorf("foreign key on %q without an explicit target column list is not supported", table.Name)
		return
	}
	if len(from) != len(to) {
		c.errorf("foreign key on %q has mismatched column lists (%d source, %d target)",
			table.Name, len(from), len(to))
		return
	}
	name := string(d.Name)
	if name == "" {
		name = fmt.Sprintf("%s_%s_fkey", table.Name, strings.Join(from, "_"))
	}
	table.AddConstraint(&dbstruct.ForeignKeyConstraint{
		Name:          name,
		ColumnNames:   from,
		TargetTable:   d.Table.Table(),
		TargetColumns: to,
		OnUpdate:      refAction(d.Actions.Update),
		OnDelete:      refAction(d.Actions.Delete),
	})
}

func (c *sqlConverter) convertCheckDef(table *dbstruct.Table, d *tree.CheckConstraintTableDef) {
	name := string(d.Name)
	if name == "" {
		name = uniqueCheckName(table)
	}
	table.AddConstraint(&dbstruct.CheckConstraint{
		Name:       name,
		Expression: tree.AsString(d.Expr),
	})
}

// uniqueCheckName derives a deterministic name for an unnamed table-level
// check constraint, numbering repeats so re-parsing the same input always
// produces the same names.
func uniqueCheckName(table *dbstruct.Table) string {
	base := fmt.Sprintf("%s_check", table.Name)
	name := base
	for i := 1; ; i++ {
		if _, taken := table.Constraints[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s%d", base, i)
	}
}

func (c *sqlConverter) convertCreateIndex(n *tree.CreateIndex) {
	table := c.ensureTable(n.Table.Table())
	c.addIndex(table, string(n.Name), indexColumns(n.Columns), n.Unique, n.Inverted)
}

func (c *sqlConverter) addIndex(table *dbstruct.Table, name string, columns []string, unique, inverted bool) {
	if name == "" {
		name = fmt.Sprintf("%s_%s_idx", table.Name, strings.Join(columns, "_"))
	}
	idx := &dbstruct.Index{
		Name:    name,
		Columns: columns,
		Unique:  unique,
	}
	if inverted {
		idx.Type = "gin"
	}
	table.Indexes[name] = idx
}

func (c *sqlConverter) convertAlterTable(n *tree.AlterTable) {
	tn := n.Table.ToTableName()
	table := c.ensureTable(tn.Table())
	for _, cmd := range n.Cmds {
		switch a := cmd.(type) {
		case *tree.AlterTableAddColumn:
			c.convertColumnDef(table, a.ColumnDef)
		case *tree.AlterTableAddConstraint:
			switch d := a.ConstraintDef.(type) {
			case *tree.UniqueConstraintTableDef:
				c.convertUniqueTableDef(table, d)
			case *tree.ForeignKeyConstraintTableDef:
				c.convertForeignKeyDef(table, d)
			case *tree.CheckConstraintTableDef:
				c.convertCheckDef(table, d)
			default:
				c.errorf("unsupported constraint %T in ALTER TABLE %q skipped", d, table.Name)
			}
		case *tree.AlterTableDropColumn:
			table.RemoveColumn(string(a.Column))
		case *tree.AlterTableDropConstraint:
			delete(table.Constraints, string(a.Constraint))
		default:
			c.errorf("unsupported ALTER TABLE action %T on %q skipped", cmd, table.Name)
		}
	}
}

func (c *sqlConverter) convertCommentOnTable(n *tree.CommentOnTable) {
	tn := n.Table.ToTableName()
	table := c.ensureTable(tn.Table())
	if n.Comment != nil {
		table.Comment = dbstruct.StringPtr(*n.Comment)
	} else {
		table.Comment = nil
	}
}

func (c *sqlConverter) convertCommentOnColumn(n *tree.CommentOnColumn) {
	if n.ColumnItem == nil || n.ColumnItem.TableName == nil {
		c.errorf("COMMENT ON COLUMN without a qualified column name skipped")
		return
	}
	tn := n.ColumnItem.TableName.ToTableName()
	table := c.ensureTable(tn.Table())
	columnName := string(n.ColumnItem.ColumnName)
	col, ok := table.Columns[columnName]
	if !ok {
		c.errorf("COMMENT ON COLUMN references unknown column %q.%q", table.Name, columnName)
		return
	}
	if n.Comment != nil {
		col.Comment = dbstruct.StringPtr(*n.Comment)
	} else {
		col.Comment = nil
	}
}

// columnTypeName renders a column's declared type as a lowercase tag.
// Serial declarations keep their serial spelling rather than the integer
// type the parser normalizes them to.
func columnTypeName(d *tree.ColumnTableDef) string {
	if d.IsSerial {
		switch d.Type.Width() {
		case 16:
			return "smallserial"
		case 32:
			return "serial"
		default:
			return "bigserial"
		}
	}
	return normalizeTypeName(d.Type.SQLString())
}

// normalizeTypeName maps the parser's internal type spellings back to the
// Postgres names users wrote.
func normalizeTypeName(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch {
	case t == "string":
		return "text"
	case strings.HasPrefix(t, "string("):
		return "varchar(" + t[len("string("):]
	}
	switch t {
	case "int8":
		return "bigint"
	case "int4":
		return "integer"
	case "int2":
		return "smallint"
	case "float8":
		return "double precision"
	case "float4":
		return "real"
	case "bool":
		return "boolean"
	default:
		return t
	}
}

func refAction(a tree.ReferenceAction) dbstruct.ReferentialAction {
	switch a {
	case tree.Cascade:
		return dbstruct.ActionCascade
	case tree.Restrict:
		return dbstruct.ActionRestrict
	case tree.SetNull:
		return dbstruct.ActionSetNull
	case tree.SetDefault:
		return dbstruct.ActionSetDefault
	default:
		return dbstruct.ActionNoAction
	}
}

func indexColumns(elems tree.IndexElemList) []string {
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		out = append(out, string(e.Column))
	}
	return out
}

func nameListToStrings(names tree.NameList) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, string(n))
	}
	return out
}
