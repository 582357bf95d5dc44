package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/lychee-technology/dbstruct"
)

// DBML grammar. The language is line-oriented but unambiguous without
// newlines, so whitespace and comments are elided wholesale.
var dbmlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Backtick", Pattern: "`[^`]*`"},
	{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[{}\[\](),.:<>\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var dbmlParser = participle.MustBuild[dbmlFile](
	participle.Lexer(dbmlLexer),
	participle.Elide("Whitespace", "Comment"),
)

type dbmlFile struct {
	Decls []*dbmlDecl `@@*`
}

type dbmlDecl struct {
	Project    *dbmlProject    `  @@`
	Table      *dbmlTable      `| @@`
	Ref        *dbmlRef        `| @@`
	Enum       *dbmlEnum       `| @@`
	TableGroup *dbmlTableGroup `| @@`
}

type dbmlProject struct {
	Name  string          `"Project" @(Ident | String)`
	Items []*dbmlProjItem `"{" @@* "}"`
}

type dbmlProjItem struct {
	Key   string `@Ident ":"`
	Value string `@(String | Backtick | Number | Ident)`
}

type dbmlTable struct {
	Pos   lexer.Position
	Name  string           `"Table" @(Ident | String)`
	Alias *string          `("as" @Ident)?`
	Items []*dbmlTableItem `"{" @@* "}"`
}

type dbmlTableItem struct {
	Note    *string      `  "Note" ":" @(String | Backtick)`
	Indexes *dbmlIndexes `| @@`
	Column  *dbmlColumn  `| @@`
}

type dbmlColumn struct {
	Pos      lexer.Position
	Name     string         `@(Ident | String)`
	Type     string         `@Ident ("." @Ident)? ( @"(" @(Number | Ident) (@"," @(Number | Ident))* @")" )?`
	Settings []*dbmlSetting `("[" @@ ("," @@)* "]")?`
}

type dbmlSetting struct {
	Pos   lexer.Position
	Ref   *dbmlInlineRef `( "ref" ":" @@`
	Key   []string       `| @Ident+`
	Value *string        `  (":" ( @String | @Backtick | @Number | @Ident @Ident? ))? )`
}

type dbmlInlineRef struct {
	Op string      `@("<" | ">" | "-")`
	To *dbmlColRef `@@`
}

type dbmlColRef struct {
	Table   string   `@(Ident | String)`
	Columns []string `( "." "(" @(Ident | String) ("," @(Ident | String))* ")" | "." @(Ident | String) )`
}

type dbmlIndexes struct {
	Items []*dbmlIndexDef `"indexes" "{" @@* "}"`
}

type dbmlIndexDef struct {
	Pos       lexer.Position
	Composite []string       `( "(" @(Ident | Backtick) ("," @(Ident | Backtick))* ")"`
	Single    *string        `| @(Ident | Backtick) )`
	Settings  []*dbmlSetting `("[" @@ ("," @@)* "]")?`
}

type dbmlRef struct {
	Pos      lexer.Position
	Name     *string        `"Ref" @Ident? ":"`
	From     *dbmlColRef    `@@`
	Op       string         `@("<" | ">" | "-")`
	To       *dbmlColRef    `@@`
	Settings []*dbmlSetting `("[" @@ ("," @@)* "]")?`
}

type dbmlEnum struct {
	Pos    lexer.Position
	Name   string         `"Enum" @(Ident | String)`
	Values []*dbmlEnumVal `"{" @@* "}"`
}

type dbmlEnumVal struct {
	Name     string         `@(Ident | String)`
	Settings []*dbmlSetting `("[" @@ ("," @@)* "]")?`
}

type dbmlTableGroup struct {
	Pos    lexer.Position
	Name   string   `"TableGroup" @(Ident | String)`
	Tables []string `"{" @Ident* "}"`
}

// ParseDBML converts a DBML document into the model. Unknown column settings
// and unrepresentable declarations (enums, table groups) are recorded as
// process errors; a structurally unparseable document yields one fatal
// process error and an empty schema.
func ParseDBML(input string) (*dbstruct.Schema, []dbstruct.ProcessError) {
	schema := dbstruct.NewSchema()
	file, err := dbmlParser.ParseString("", input)
	if err != nil {
		return schema, []dbstruct.ProcessError{processErrorFromParse(err)}
	}

	c := &dbmlConverter{schema: schema}
	for _, decl := range file.Decls {
		switch {
		case decl.Table != nil:
			c.convertTable(decl.Table)
		case decl.Enum != nil:
			c.errorfAt(decl.Enum.Pos,
				"enum %q is not represented; columns keep the enum name as their type", decl.Enum.Name)
		case decl.TableGroup != nil:
			c.errorfAt(decl.TableGroup.Pos, "table group %q is not represented", decl.TableGroup.Name)
		}
	}
	// Standalone refs may precede or follow the tables they mention, so they
	// convert after every table exists.
	for _, decl := range file.Decls {
		if decl.Ref != nil {
			c.convertRef(decl.Ref)
		}
	}

	schema.ComputeRelationships()
	return schema, c.errs
}

type dbmlConverter struct {
	schema *dbstruct.Schema
	errs   []dbstruct.ProcessError
}

func (c *dbmlConverter) errorfAt(pos lexer.Position, format string, args ...any) {
	c.errs = append(c.errs, dbstruct.NewProcessErrorAt(pos.Offset, format, args...))
}

func (c *dbmlConverter) convertTable(t *dbmlTable) {
	table := dbstruct.NewTable(unquote(t.Name))
	c.schema.AddTable(table)
	for _, item := range t.Items {
		switch {
		case item.Note != nil:
			table.Comment = dbstruct.StringPtr(unquote(*item.Note))
		case item.Column != nil:
			c.convertColumn(table, item.Column)
		case item.Indexes != nil:
			for _, def := range item.Indexes.Items {
				c.convertIndex(table, def)
			}
		}
	}
}

func (c *dbmlConverter) convertColumn(table *dbstruct.Table, d *dbmlColumn) {
	col := &dbstruct.Column{
		Name: unquote(d.Name),
		Type: strings.ToLower(d.Type),
	}
	for _, s := range d.Settings {
		if s.Ref != nil {
			c.convertInlineRef(table, col, s.Ref, s.Pos)
			continue
		}
		key := strings.ToLower(strings.Join(s.Key, " "))
		switch key {
		case "pk", "primary key":
			col.Primary = true
			col.NotNull = true
			col.Unique = true
			table.AddConstraint(&dbstruct.PrimaryKeyConstraint{
				Name:        fmt.Sprintf("%s_pkey", table.Name),
				ColumnNames: []string{col.Name},
			})
		case "unique":
			col.Unique = true
			table.AddConstraint(&dbstruct.UniqueConstraint{
				Name:        fmt.Sprintf("%s_%s_key", table.Name, col.Name),
				ColumnNames: []string{col.Name},
			})
		case "not null":
			col.NotNull = true
		case "null":
			col.NotNull = false
		case "increment":
			// Auto-increment is implied by serial types on conversion back
			// to SQL; nothing to record on the column itself.
		case "default":
			if s.Value != nil {
				col.Default = dbstruct.StringPtr(unquote(*s.Value))
			}
		case "note":
			if s.Value != nil {
				col.Comment = dbstruct.StringPtr(unquote(*s.Value))
			}
		default:
			c.errorfAt(s.Pos, "unknown setting %q on column %q.%q", key, table.Name, col.Name)
		}
	}
	table.AddColumn(col)
}

func (c *dbmlConverter) convertInlineRef(table *dbstruct.Table, col *dbstruct.Column, ref *dbmlInlineRef, pos lexer.Position) {
	to := colRef{table: unquote(ref.To.Table), columns: unquoteAll(ref.To.Columns)}
	if len(to.columns) != 1 {
		c.errorfAt(pos, "inline ref on %q.%q must target exactly one column", table.Name, col.Name)
		return
	}
	from := colRef{table: table.Name, columns: []string{col.Name}}
	switch ref.Op {
	case ">", "-":
		c.addForeignKey(nil, from, to, nil, pos)
	case "<":
		// The referenced side: the foreign key lives on the other table.
		c.addForeignKey(nil, to, from, nil, pos)
	}
}

func (c *dbmlConverter) convertIndex(table *dbstruct.Table, d *dbmlIndexDef) {
	columns := unquoteAll(d.Composite)
	if d.Single != nil {
		columns = []string{unquote(*d.Single)}
	}
	idx := &dbstruct.Index{Columns: columns}
	for _, s := range d.Settings {
		key := strings.ToLower(strings.Join(s.Key, " "))
		switch key {
		case "unique":
			idx.Unique = true
		case "pk", "primary key":
			table.AddConstraint(&dbstruct.PrimaryKeyConstraint{
				Name:        fmt.Sprintf("%s_pkey", table.Name),
				ColumnNames: columns,
			})
			return
		case "name":
			if s.Value != nil {
				idx.Name = unquote(*s.Value)
			}
		case "type":
			if s.Value != nil {
				idx.Type = strings.ToLower(unquote(*s.Value))
			}
		default:
			c.errorfAt(s.Pos, "unknown index setting %q on table %q", key, table.Name)
		}
	}
	if idx.Name == "" {
		idx.Name = fmt.Sprintf("%s_%s_idx", table.Name, strings.Join(columns, "_"))
	}
	table.Indexes[idx.Name] = idx
}

func (c *dbmlConverter) convertRef(r *dbmlRef) {
	from := colRef{table: unquote(r.From.Table), columns: unquoteAll(r.From.Columns)}
	to := colRef{table: unquote(r.To.Table), columns: unquoteAll(r.To.Columns)}
	switch r.Op {
	case ">", "-":
		c.addForeignKey(r.Name, from, to, r.Settings, r.Pos)
	case "<":
		c.addForeignKey(r.Name, to, from, r.Settings, r.Pos)
	}
}

type colRef struct {
	table   string
	columns []string
}

// addForeignKey places a foreign key on the source table. The source table
// is created as a placeholder if the ref mentions a table never declared;
// the dangling constraint then simply never yields a relationship.
func (c *dbmlConverter) addForeignKey(name *string, source, target colRef, settings []*dbmlSetting, pos lexer.Position) {
	if len(source.columns) != len(target.columns) {
		c.errorfAt(pos, "ref %s -> %s has mismatched column lists (%d source, %d target)",
			source.table, target.table, len(source.columns), len(target.columns))
		return
	}
	table, ok := c.schema.Tables[source.table]
	if !ok {
		table = dbstruct.NewTable(source.table)
		c.schema.AddTable(table)
	}
	fk := &dbstruct.ForeignKeyConstraint{
		ColumnNames:   source.columns,
		TargetTable:   target.table,
		TargetColumns: target.columns,
		OnUpdate:      dbstruct.ActionNoAction,
		OnDelete:      dbstruct.ActionNoAction,
	}
	if name != nil && *name != "" {
		fk.Name = *name
	} else {
		fk.Name = fmt.Sprintf("%s_%s_fkey", source.table, strings.Join(source.columns, "_"))
	}
	for _, s := range settings {
		key := strings.ToLower(strings.Join(s.Key, " "))
		action := dbstruct.ActionNoAction
		if s.Value != nil {
			action = dbmlAction(*s.Value)
		}
		switch key {
		case "delete":
			fk.OnDelete = action
		case "update":
			fk.OnUpdate = action
		default:
			c.errorfAt(s.Pos, "unknown ref setting %q on %s -> %s", key, source.table, target.table)
		}
	}
	table.AddConstraint(fk)
}

// dbmlAction maps a ref action value; multi-word values arrive with their
// idents concatenated by the grammar ("no action" -> "noaction").
func dbmlAction(raw string) dbstruct.ReferentialAction {
	switch strings.ToLower(strings.ReplaceAll(unquote(raw), " ", "")) {
	case "cascade":
		return dbstruct.ActionCascade
	case "restrict":
		return dbstruct.ActionRestrict
	case "setnull":
		return dbstruct.ActionSetNull
	case "setdefault":
		return dbstruct.ActionSetDefault
	default:
		return dbstruct.ActionNoAction
	}
}

// unquote strips one layer of DBML quoting ('...', "...", `...`).
func unquote(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '\'', '"', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

func unquoteAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, unquote(v))
	}
	return out
}

// processErrorFromParse lifts a parser failure into a positioned process
// error when the parser reports a location.
func processErrorFromParse(err error) dbstruct.ProcessError {
	var perr participle.Error
	if errors.As(err, &perr) {
		return dbstruct.NewProcessErrorAt(perr.Position().Offset, "%s", perr.Message())
	}
	return dbstruct.NewProcessError("%s", err.Error())
}
