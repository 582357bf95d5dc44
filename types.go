// Package dbstruct provides the canonical in-memory representation of a
// database schema (tables, columns, constraints, indexes, and derived
// relationships) together with the merge and patch engines that mutate it.
//
// Schemas are produced by the format processors in the parser subpackage,
// combined with Merge, and thereafter changed only through ApplyPatch, which
// returns a new Schema value rather than mutating in place.
package dbstruct

// Schema is the root entity: a mapping from table name to Table plus a
// derived mapping of relationships. Table names are unique within a Schema;
// registering a table under an existing name overwrites the previous
// definition (last-write-wins).
type Schema struct {
	Tables        map[string]*Table        `json:"tables"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
}

// NewSchema creates an empty Schema ready to be populated by a processor.
func NewSchema() *Schema {
	return &Schema{
		Tables:        make(map[string]*Table),
		Relationships: make(map[string]*Relationship),
	}
}

// AddTable registers a table, overwriting any previous table with the same name.
func (s *Schema) AddTable(t *Table) {
	s.Tables[t.Name] = t
}

// Table represents one table: columns, indexes, and constraints keyed by
// name, plus the externally observable column display order.
type Table struct {
	Name        string                `json:"name"`
	Comment     *string               `json:"comment,omitempty"`
	Columns     map[string]*Column    `json:"columns"`
	ColumnOrder []string              `json:"columnOrder,omitempty"`
	Indexes     map[string]*Index     `json:"indexes"`
	Constraints map[string]Constraint `json:"constraints"`
}

// NewTable creates an empty table with the given name.
func NewTable(name string) *Table {
	return &Table{
		Name:        name,
		Columns:     make(map[string]*Column),
		Indexes:     make(map[string]*Index),
		Constraints: make(map[string]Constraint),
	}
}

// AddColumn registers a column, keeping display order for names not seen
// before. A column redefinition keeps its original position.
func (t *Table) AddColumn(c *Column) {
	if _, exists := t.Columns[c.Name]; !exists {
		t.ColumnOrder = append(t.ColumnOrder, c.Name)
	}
	t.Columns[c.Name] = c
}

// RemoveColumn drops a column and its display-order entry. Removing an
// unknown column has no effect.
func (t *Table) RemoveColumn(name string) {
	if _, exists := t.Columns[name]; !exists {
		return
	}
	delete(t.Columns, name)
	for i, n := range t.ColumnOrder {
		if n == name {
			t.ColumnOrder = append(t.ColumnOrder[:i], t.ColumnOrder[i+1:]...)
			break
		}
	}
}

// AddConstraint registers a constraint under its name, last-write-wins.
func (t *Table) AddConstraint(c Constraint) {
	t.Constraints[c.ConstraintName()] = c
}

// Column represents one column. Primary and Unique are column-level
// shorthand for the corresponding single-column constraints.
type Column struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Default *string `json:"default,omitempty"`
	Check   *string `json:"check,omitempty"`
	Primary bool    `json:"primary"`
	Unique  bool    `json:"unique"`
	NotNull bool    `json:"notNull"`
	Comment *string `json:"comment,omitempty"`
}

// Index represents a secondary index: an ordered column list, a uniqueness
// flag, and an optional index method (e.g. "btree", "gin").
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Type    string   `json:"type,omitempty"`
}

// ConstraintType identifies one arm of the Constraint union.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY_KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
	ConstraintForeignKey ConstraintType = "FOREIGN_KEY"
	ConstraintCheck      ConstraintType = "CHECK"
)

// Constraint is the closed union over primary key, unique, foreign key, and
// check constraints. Every variant carries a name and the ordered list of
// participating column names (order matters for composite keys).
type Constraint interface {
	ConstraintName() string
	ConstraintType() ConstraintType
	ConstraintColumns() []string

	constraint()
}

// PrimaryKeyConstraint marks an ordered column list as the table's primary key.
type PrimaryKeyConstraint struct {
	Name        string   `json:"name"`
	ColumnNames []string `json:"columnNames"`
}

func (c *PrimaryKeyConstraint) ConstraintName() string         { return c.Name }
func (c *PrimaryKeyConstraint) ConstraintType() ConstraintType { return ConstraintPrimaryKey }
func (c *PrimaryKeyConstraint) ConstraintColumns() []string    { return c.ColumnNames }
func (c *PrimaryKeyConstraint) constraint()                    {}

// UniqueConstraint requires the ordered column list to be unique per row.
type UniqueConstraint struct {
	Name        string   `json:"name"`
	ColumnNames []string `json:"columnNames"`
}

func (c *UniqueConstraint) ConstraintName() string         { return c.Name }
func (c *UniqueConstraint) ConstraintType() ConstraintType { return ConstraintUnique }
func (c *UniqueConstraint) ConstraintColumns() []string    { return c.ColumnNames }
func (c *UniqueConstraint) constraint()                    {}

// ReferentialAction is a foreign key ON UPDATE / ON DELETE action.
type ReferentialAction string

const (
	ActionNoAction   ReferentialAction = "NO_ACTION"
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionCascade    ReferentialAction = "CASCADE"
	ActionSetNull    ReferentialAction = "SET_NULL"
	ActionSetDefault ReferentialAction = "SET_DEFAULT"
)

// ForeignKeyConstraint links an ordered source column list to target columns
// of the same arity on another table. Arity mismatches are rejected by the
// processors as conversion errors before the constraint is constructed.
type ForeignKeyConstraint struct {
	Name          string            `json:"name"`
	ColumnNames   []string          `json:"columnNames"`
	TargetTable   string            `json:"targetTable"`
	TargetColumns []string          `json:"targetColumns"`
	OnUpdate      ReferentialAction `json:"onUpdate"`
	OnDelete      ReferentialAction `json:"onDelete"`
}

func (c *ForeignKeyConstraint) ConstraintName() string         { return c.Name }
func (c *ForeignKeyConstraint) ConstraintType() ConstraintType { return ConstraintForeignKey }
func (c *ForeignKeyConstraint) ConstraintColumns() []string    { return c.ColumnNames }
func (c *ForeignKeyConstraint) constraint()                    {}

// CheckConstraint carries an arbitrary boolean expression over the table.
// ColumnNames lists the participating columns when determinable and may be
// empty for expressions the source dialect does not decompose.
type CheckConstraint struct {
	Name        string   `json:"name"`
	ColumnNames []string `json:"columnNames"`
	Expression  string   `json:"expression"`
}

func (c *CheckConstraint) ConstraintName() string         { return c.Name }
func (c *CheckConstraint) ConstraintType() ConstraintType { return ConstraintCheck }
func (c *CheckConstraint) ConstraintColumns() []string    { return c.ColumnNames }
func (c *CheckConstraint) constraint()                    {}

// Cardinality classifies a relationship from the uniqueness of the
// referencing columns.
type Cardinality string

const (
	OneToOne  Cardinality = "ONE_TO_ONE"
	OneToMany Cardinality = "ONE_TO_MANY"
)

// Relationship is derived, never authored: one exists per foreign key
// constraint, and the set is recomputed whenever the owning Schema is
// rebuilt or patched.
type Relationship struct {
	Name          string      `json:"name"`
	SourceTable   string      `json:"sourceTable"`
	SourceColumns []string    `json:"sourceColumns"`
	TargetTable   string      `json:"targetTable"`
	TargetColumns []string    `json:"targetColumns"`
	Cardinality   Cardinality `json:"cardinality"`
}

// Clone returns a deep copy of the schema. Derived relationships are copied
// as-is rather than recomputed.
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	for name, t := range s.Tables {
		out.Tables[name] = t.Clone()
	}
	for name, r := range s.Relationships {
		cp := *r
		cp.SourceColumns = append([]string(nil), r.SourceColumns...)
		cp.TargetColumns = append([]string(nil), r.TargetColumns...)
		out.Relationships[name] = &cp
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name)
	out.Comment = cloneStringPtr(t.Comment)
	out.ColumnOrder = append([]string(nil), t.ColumnOrder...)
	for name, c := range t.Columns {
		out.Columns[name] = c.Clone()
	}
	for name, idx := range t.Indexes {
		out.Indexes[name] = idx.Clone()
	}
	for name, c := range t.Constraints {
		out.Constraints[name] = cloneConstraint(c)
	}
	return out
}

// Clone returns a copy of the column.
func (c *Column) Clone() *Column {
	cp := *c
	cp.Default = cloneStringPtr(c.Default)
	cp.Check = cloneStringPtr(c.Check)
	cp.Comment = cloneStringPtr(c.Comment)
	return &cp
}

// Clone returns a copy of the index.
func (i *Index) Clone() *Index {
	cp := *i
	cp.Columns = append([]string(nil), i.Columns...)
	return &cp
}

func cloneConstraint(c Constraint) Constraint {
	switch v := c.(type) {
	case *PrimaryKeyConstraint:
		cp := *v
		cp.ColumnNames = append([]string(nil), v.ColumnNames...)
		return &cp
	case *UniqueConstraint:
		cp := *v
		cp.ColumnNames = append([]string(nil), v.ColumnNames...)
		return &cp
	case *ForeignKeyConstraint:
		cp := *v
		cp.ColumnNames = append([]string(nil), v.ColumnNames...)
		cp.TargetColumns = append([]string(nil), v.TargetColumns...)
		return &cp
	case *CheckConstraint:
		cp := *v
		cp.ColumnNames = append([]string(nil), v.ColumnNames...)
		return &cp
	default:
		return c
	}
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a convenience for building nullable string fields.
func StringPtr(s string) *string { return &s }
