package parser

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/lychee-technology/dbstruct"
)

// Prisma schema language grammar. Attributes always start with "@", so the
// language stays unambiguous with newlines elided.
var prismaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "DocComment", Pattern: `///[^\n]*`},
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `-?[0-9]+(\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[@\[\](){}=:,.?!]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var prismaParser = participle.MustBuild[prismaFile](
	participle.Lexer(prismaLexer),
	participle.Elide("Whitespace", "Comment"),
)

type prismaFile struct {
	Decls []*prismaDecl `@@*`
}

type prismaDecl struct {
	Model  *prismaModel  `  @@`
	Enum   *prismaEnum   `| @@`
	Config *prismaConfig `| @@`
}

type prismaConfig struct {
	Kind    string            `@("datasource" | "generator")`
	Name    string            `@Ident`
	Entries []*prismaConfigKV `"{" @@* "}"`
}

type prismaConfigKV struct {
	Key   string       `@Ident "="`
	Value *prismaValue `@@`
}

type prismaModel struct {
	Pos   lexer.Position
	Doc   []string           `@DocComment*`
	Name  string             `"model" @Ident`
	Items []*prismaModelItem `"{" @@* "}"`
}

type prismaModelItem struct {
	BlockAttr *prismaAttr  `  "@" "@" @@`
	Field     *prismaField `| @@`
}

type prismaField struct {
	Pos      lexer.Position
	Doc      []string      `@DocComment*`
	Name     string        `@Ident`
	Type     string        `@Ident`
	Array    bool          `( @("[" "]")`
	Optional bool          `| @"?" )?`
	Attrs    []*prismaAttr `("@" @@)*`
}

type prismaAttr struct {
	Pos  lexer.Position
	Name string           `@Ident ("." @Ident)?`
	Args []*prismaAttrArg `("(" (@@ ("," @@)*)? ")")?`
}

type prismaAttrArg struct {
	Name  *string      `(@Ident ":")?`
	Value *prismaValue `@@`
}

type prismaValue struct {
	Str   *string        `  @String`
	Num   *string        `| @Number`
	Array []*prismaValue `| "[" (@@ ("," @@)*)? "]"`
	Func  *prismaFunc    `| @@`
}

type prismaFunc struct {
	Name string         `@Ident`
	Args []*prismaValue `("(" (@@ ("," @@)*)? ")")?`
}

type prismaEnum struct {
	Name   string   `"enum" @Ident`
	Values []string `"{" ( @Ident ("@" "@" Ident ("(" String ")")?)? )* "}"`
}

// prismaTypeMap translates Prisma scalar types to SQL-ish type tags.
var prismaTypeMap = map[string]string{
	"String":   "text",
	"Boolean":  "boolean",
	"Int":      "integer",
	"BigInt":   "bigint",
	"Float":    "double precision",
	"Decimal":  "decimal",
	"DateTime": "timestamp",
	"Json":     "jsonb",
	"Bytes":    "bytea",
}

// ParsePrisma converts a Prisma schema into the model. Relation fields
// (model-typed) become foreign key constraints rather than columns; the
// scalar columns named in the relation's fields argument carry the data.
func ParsePrisma(input string) (*dbstruct.Schema, []dbstruct.ProcessError) {
	schema := dbstruct.NewSchema()
	file, err := prismaParser.ParseString("", input)
	if err != nil {
		return schema, []dbstruct.ProcessError{processErrorFromParse(err)}
	}

	c := &prismaConverter{
		schema: schema,
		models: dbstruct.NewSet[string](),
		enums:  dbstruct.NewSet[string](),
	}
	for _, decl := range file.Decls {
		if decl.Model != nil {
			c.models.Add(decl.Model.Name)
		}
		if decl.Enum != nil {
			c.enums.Add(decl.Enum.Name)
		}
	}
	for _, decl := range file.Decls {
		if decl.Model != nil {
			c.convertModel(decl.Model)
		}
	}

	schema.ComputeRelationships()
	return schema, c.errs
}

type prismaConverter struct {
	schema *dbstruct.Schema
	models *dbstruct.Set[string]
	enums  *dbstruct.Set[string]
	errs   []dbstruct.ProcessError
}

func (c *prismaConverter) errorfAt(pos lexer.Position, format string, args ...any) {
	c.errs = append(c.errs, dbstruct.NewProcessErrorAt(pos.Offset, format, args...))
}

func (c *prismaConverter) convertModel(m *prismaModel) {
	table := dbstruct.NewTable(m.Name)
	if comment := docText(m.Doc); comment != "" {
		table.Comment = dbstruct.StringPtr(comment)
	}
	c.schema.AddTable(table)

	for _, item := range m.Items {
		if item.Field != nil {
			c.convertField(table, item.Field)
		}
	}
	// Block attributes may reference any field, so they convert last.
	for _, item := range m.Items {
		if item.BlockAttr != nil {
			c.convertBlockAttr(table, item.BlockAttr)
		}
	}
}

func (c *prismaConverter) convertField(table *dbstruct.Table, f *prismaField) {
	if c.models.Contains(f.Type) {
		c.convertRelationField(table, f)
		return
	}

	col := &dbstruct.Column{
		Name:    f.Name,
		NotNull: !f.Optional,
	}
	if sqlType, ok := prismaTypeMap[f.Type]; ok {
		col.Type = sqlType
	} else if c.enums.Contains(f.Type) {
		col.Type = f.Type
	} else {
		col.Type = strings.ToLower(f.Type)
		c.errorfAt(f.Pos, "unknown type %q on field %q.%q", f.Type, table.Name, f.Name)
	}
	if f.Array {
		col.Type += "[]"
	}
	if comment := docText(f.Doc); comment != "" {
		col.Comment = dbstruct.StringPtr(comment)
	}

	for _, attr := range f.Attrs {
		switch attr.Name {
		case "id":
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
		case "default":
			if len(attr.Args) == 1 {
				c.applyDefault(col, attr.Args[0].Value)
			}
		case "updatedAt", "map", "ignore":
			// Client-side or naming concerns with no schema shape.
		default:
			c.errorfAt(attr.Pos, "unsupported attribute @%s on field %q.%q", attr.Name, table.Name, f.Name)
		}
	}
	table.AddColumn(col)
}

func (c *prismaConverter) applyDefault(col *dbstruct.Column, v *prismaValue) {
	switch {
	case v == nil:
	case v.Str != nil:
		col.Default = dbstruct.StringPtr(unquote(*v.Str))
	case v.Num != nil:
		col.Default = dbstruct.StringPtr(*v.Num)
	case v.Func != nil:
		switch v.Func.Name {
		case "autoincrement":
			switch col.Type {
			case "bigint":
				col.Type = "bigserial"
			default:
				col.Type = "serial"
			}
		case "now":
			col.Default = dbstruct.StringPtr("now()")
		case "true", "false":
			col.Default = dbstruct.StringPtr(v.Func.Name)
		default:
			col.Default = dbstruct.StringPtr(v.Func.Name + "()")
		}
	}
}

// convertRelationField turns a model-typed field with @relation into a
// foreign key. Back-relation fields (no @relation arguments, or list-typed)
// are navigation-only and produce nothing.
func (c *prismaConverter) convertRelationField(table *dbstruct.Table, f *prismaField) {
	var relation *prismaAttr
	for _, attr := range f.Attrs {
		if attr.Name == "relation" {
			relation = attr
			break
		}
	}
	if relation == nil || f.Array {
		return
	}

	var fields, references []string
	name := fmt.Sprintf("%s_%s_fkey", table.Name, f.Name)
	onUpdate, onDelete := dbstruct.ActionNoAction, dbstruct.ActionNoAction
	for _, arg := range relation.Args {
		switch {
		case arg.Name == nil:
			if arg.Value.Str != nil {
				name = unquote(*arg.Value.Str)
			}
		case *arg.Name == "fields":
			fields = valueIdentList(arg.Value)
		case *arg.Name == "references":
			references = valueIdentList(arg.Value)
		case *arg.Name == "onDelete":
			onDelete = prismaAction(arg.Value)
		case *arg.Name == "onUpdate":
			onUpdate = prismaAction(arg.Value)
		}
	}
	if len(fields) == 0 {
		// The FK columns live on the other side of the relation.
		return
	}
	if len(fields) != len(references) {
		c.errorfAt(relation.Pos, "relation on %q.%q has mismatched fields/references (%d vs %d)",
			table.Name, f.Name, len(fields), len(references))
		return
	}
	table.AddConstraint(&dbstruct.ForeignKeyConstraint{
		Name:          name,
		ColumnNames:   fields,
		TargetTable:   f.Type,
		TargetColumns: references,
		OnUpdate:      onUpdate,
		OnDelete:      onDelete,
	})
}

func (c *prismaConverter) convertBlockAttr(table *dbstruct.Table, attr *prismaAttr) {
	switch attr.Name {
	case "id":
		columns := blockAttrColumns(attr)
		table.AddConstraint(&dbstruct.PrimaryKeyConstraint{
			Name:        fmt.Sprintf("%s_pkey", table.Name),
			ColumnNames: columns,
		})
		for _, name := range columns {
			if col, ok := table.Columns[name]; ok {
				col.Primary = true
				col.NotNull = true
			}
		}
	case "unique":
		columns := blockAttrColumns(attr)
		table.AddConstraint(&dbstruct.UniqueConstraint{
			Name:        fmt.Sprintf("%s_%s_key", table.Name, strings.Join(columns, "_")),
			ColumnNames: columns,
		})
	case "index":
		columns := blockAttrColumns(attr)
		name := fmt.Sprintf("%s_%s_idx", table.Name, strings.Join(columns, "_"))
		table.Indexes[name] = &dbstruct.Index{Name: name, Columns: columns}
	case "map":
		if len(attr.Args) == 1 && attr.Args[0].Value.Str != nil {
			c.renameTable(table, unquote(*attr.Args[0].Value.Str))
		}
	default:
		c.errorfAt(attr.Pos, "unsupported block attribute @@%s on model %q", attr.Name, table.Name)
	}
}

// renameTable rekeys the table under its mapped database name and rewrites
// constraint names already derived from the model name.
func (c *prismaConverter) renameTable(table *dbstruct.Table, newName string) {
	oldName := table.Name
	delete(c.schema.Tables, oldName)
	table.Name = newName
	c.schema.AddTable(table)
	for key, constraint := range table.Constraints {
		if !strings.HasPrefix(key, oldName+"_") {
			continue
		}
		renamed := newName + strings.TrimPrefix(key, oldName)
		delete(table.Constraints, key)
		switch v := constraint.(type) {
		case *dbstruct.PrimaryKeyConstraint:
			v.Name = renamed
		case *dbstruct.UniqueConstraint:
			v.Name = renamed
		case *dbstruct.ForeignKeyConstraint:
			v.Name = renamed
		case *dbstruct.CheckConstraint:
			v.Name = renamed
		}
		table.Constraints[renamed] = constraint
	}
}

// blockAttrColumns extracts the column list of @@id/@@unique/@@index.
func blockAttrColumns(attr *prismaAttr) []string {
	for _, arg := range attr.Args {
		if arg.Name == nil || *arg.Name == "fields" {
			if cols := valueIdentList(arg.Value); len(cols) > 0 {
				return cols
			}
		}
	}
	return nil
}

func valueIdentList(v *prismaValue) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, item := range v.Array {
		switch {
		case item.Func != nil:
			out = append(out, item.Func.Name)
		case item.Str != nil:
			out = append(out, unquote(*item.Str))
		}
	}
	return out
}

func prismaAction(v *prismaValue) dbstruct.ReferentialAction {
	if v == nil || v.Func == nil {
		return dbstruct.ActionNoAction
	}
	switch v.Func.Name {
	case "Cascade":
		return dbstruct.ActionCascade
	case "Restrict":
		return dbstruct.ActionRestrict
	case "SetNull":
		return dbstruct.ActionSetNull
	case "SetDefault":
		return dbstruct.ActionSetDefault
	default:
		return dbstruct.ActionNoAction
	}
}

// docText joins /// doc comment lines into one comment string.
func docText(doc []string) string {
	parts := make([]string, 0, len(doc))
	for _, line := range doc {
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, "///")))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
