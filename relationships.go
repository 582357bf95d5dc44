package dbstruct

import "fmt"

// ComputeRelationships rebuilds the derived relationship map from the
// schema's foreign key constraints. It is called once after a merge sequence
// or a patch batch, never per chunk, so foreign keys may reference tables
// defined later in the input.
//
// A foreign key whose target table is absent from the schema yields no
// relationship and no error: the referencing constraint itself stays on the
// table, and the relationship appears as soon as the target table does.
func (s *Schema) ComputeRelationships() {
	s.Relationships = make(map[string]*Relationship)
	for _, tableName := range SortedKeys(s.Tables) {
		table := s.Tables[tableName]
		for _, constraintName := range SortedKeys(table.Constraints) {
			fk, ok := table.Constraints[constraintName].(*ForeignKeyConstraint)
			if !ok {
				continue
			}
			if _, ok := s.Tables[fk.TargetTable]; !ok {
				continue
			}
			rel := &Relationship{
				Name:          fmt.Sprintf("%s.%s", tableName, fk.Name),
				SourceTable:   tableName,
				SourceColumns: append([]string(nil), fk.ColumnNames...),
				TargetTable:   fk.TargetTable,
				TargetColumns: append([]string(nil), fk.TargetColumns...),
				Cardinality:   table.cardinalityOf(fk.ColumnNames),
			}
			s.Relationships[rel.Name] = rel
		}
	}
}

// cardinalityOf classifies a foreign key by whether the referencing columns
// are themselves guaranteed unique: covered exactly by a primary key or
// unique constraint, or a single column flagged primary/unique.
func (t *Table) cardinalityOf(sourceColumns []string) Cardinality {
	if len(sourceColumns) == 1 {
		if col, ok := t.Columns[sourceColumns[0]]; ok && (col.Primary || col.Unique) {
			return OneToOne
		}
	}
	source := NewSet(sourceColumns...)
	for _, c := range t.Constraints {
		switch c.ConstraintType() {
		case ConstraintPrimaryKey, ConstraintUnique:
			cols := c.ConstraintColumns()
			if len(cols) == len(sourceColumns) && source.ContainsAll(cols) {
				return OneToOne
			}
		}
	}
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == len(sourceColumns) && source.ContainsAll(idx.Columns) {
			return OneToOne
		}
	}
	return OneToMany
}
