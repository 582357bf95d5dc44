package dbstruct

import (
	"encoding/json"
	"fmt"
)

// constraintEnvelope is the wire form of the Constraint union: the variant is
// carried in a type discriminator so that schemas survive a JSON round trip.
type constraintEnvelope struct {
	Type          ConstraintType    `json:"type"`
	Name          string            `json:"name"`
	ColumnNames   []string          `json:"columnNames"`
	TargetTable   string            `json:"targetTable,omitempty"`
	TargetColumns []string          `json:"targetColumns,omitempty"`
	OnUpdate      ReferentialAction `json:"onUpdate,omitempty"`
	OnDelete      ReferentialAction `json:"onDelete,omitempty"`
	Expression    string            `json:"expression,omitempty"`
}

func (c *PrimaryKeyConstraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintEnvelope{
		Type:        ConstraintPrimaryKey,
		Name:        c.Name,
		ColumnNames: c.ColumnNames,
	})
}

func (c *UniqueConstraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintEnvelope{
		Type:        ConstraintUnique,
		Name:        c.Name,
		ColumnNames: c.ColumnNames,
	})
}

func (c *ForeignKeyConstraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintEnvelope{
		Type:          ConstraintForeignKey,
		Name:          c.Name,
		ColumnNames:   c.ColumnNames,
		TargetTable:   c.TargetTable,
		TargetColumns: c.TargetColumns,
		OnUpdate:      c.OnUpdate,
		OnDelete:      c.OnDelete,
	})
}

func (c *CheckConstraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintEnvelope{
		Type:        ConstraintCheck,
		Name:        c.Name,
		ColumnNames: c.ColumnNames,
		Expression:  c.Expression,
	})
}

func unmarshalConstraint(raw json.RawMessage) (Constraint, error) {
	var env constraintEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode constraint: %w", err)
	}
	switch env.Type {
	case ConstraintPrimaryKey:
		return &PrimaryKeyConstraint{Name: env.Name, ColumnNames: env.ColumnNames}, nil
	case ConstraintUnique:
		return &UniqueConstraint{Name: env.Name, ColumnNames: env.ColumnNames}, nil
	case ConstraintForeignKey:
		fk := &ForeignKeyConstraint{
			Name:          env.Name,
			ColumnNames:   env.ColumnNames,
			TargetTable:   env.TargetTable,
			TargetColumns: env.TargetColumns,
			OnUpdate:      env.OnUpdate,
			OnDelete:      env.OnDelete,
		}
		if fk.OnUpdate == "" {
			fk.OnUpdate = ActionNoAction
		}
		if fk.OnDelete == "" {
			fk.OnDelete = ActionNoAction
		}
		return fk, nil
	case ConstraintCheck:
		return &CheckConstraint{Name: env.Name, ColumnNames: env.ColumnNames, Expression: env.Expression}, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", env.Type)
	}
}

// tableAlias avoids UnmarshalJSON recursion.
type tableAlias struct {
	Name        string                     `json:"name"`
	Comment     *string                    `json:"comment,omitempty"`
	Columns     map[string]*Column         `json:"columns"`
	ColumnOrder []string                   `json:"columnOrder,omitempty"`
	Indexes     map[string]*Index          `json:"indexes"`
	Constraints map[string]json.RawMessage `json:"constraints"`
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var alias tableAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	t.Name = alias.Name
	t.Comment = alias.Comment
	t.Columns = alias.Columns
	t.ColumnOrder = alias.ColumnOrder
	t.Indexes = alias.Indexes
	if t.Columns == nil {
		t.Columns = make(map[string]*Column)
	}
	if t.Indexes == nil {
		t.Indexes = make(map[string]*Index)
	}
	if len(t.ColumnOrder) == 0 && len(t.Columns) > 0 {
		t.ColumnOrder = SortedKeys(t.Columns)
	}
	t.Constraints = make(map[string]Constraint, len(alias.Constraints))
	for name, raw := range alias.Constraints {
		c, err := unmarshalConstraint(raw)
		if err != nil {
			return fmt.Errorf("constraint %q: %w", name, err)
		}
		t.Constraints[name] = c
	}
	return nil
}
