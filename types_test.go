package dbstruct

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Table construction
// =============================================================================

func TestTable_AddColumn_KeepsDisplayOrder(t *testing.T) {
	table := NewTable("users")
	table.AddColumn(&Column{Name: "id", Type: "bigint"})
	table.AddColumn(&Column{Name: "email", Type: "text"})
	table.AddColumn(&Column{Name: "name", Type: "text"})

	assert.Equal(t, []string{"id", "email", "name"}, table.ColumnOrder)
}

func TestTable_AddColumn_RedefinitionKeepsPosition(t *testing.T) {
	table := NewTable("users")
	table.AddColumn(&Column{Name: "id", Type: "integer"})
	table.AddColumn(&Column{Name: "email", Type: "text"})
	table.AddColumn(&Column{Name: "id", Type: "bigint"})

	assert.Equal(t, []string{"id", "email"}, table.ColumnOrder)
	assert.Equal(t, "bigint", table.Columns["id"].Type)
}

func TestTable_RemoveColumn(t *testing.T) {
	table := NewTable("users")
	table.AddColumn(&Column{Name: "id", Type: "bigint"})
	table.AddColumn(&Column{Name: "email", Type: "text"})

	table.RemoveColumn("id")
	assert.Equal(t, []string{"email"}, table.ColumnOrder)
	assert.NotContains(t, table.Columns, "id")

	// Unknown column is a no-op.
	table.RemoveColumn("missing")
	assert.Len(t, table.Columns, 1)
}

func TestSchema_AddTable_LastWriteWins(t *testing.T) {
	schema := NewSchema()
	first := NewTable("users")
	first.AddColumn(&Column{Name: "id", Type: "integer"})
	second := NewTable("users")
	second.AddColumn(&Column{Name: "uuid", Type: "uuid"})

	schema.AddTable(first)
	schema.AddTable(second)

	require.Len(t, schema.Tables, 1)
	assert.Contains(t, schema.Tables["users"].Columns, "uuid")
	assert.NotContains(t, schema.Tables["users"].Columns, "id")
}

// =============================================================================
// Cloning
// =============================================================================

func TestSchema_Clone_Independence(t *testing.T) {
	schema := NewSchema()
	table := NewTable("users")
	table.Comment = StringPtr("people")
	table.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, NotNull: true, Unique: true})
	table.AddConstraint(&PrimaryKeyConstraint{Name: "users_pkey", ColumnNames: []string{"id"}})
	table.Indexes["users_id_idx"] = &Index{Name: "users_id_idx", Columns: []string{"id"}, Unique: true}
	schema.AddTable(table)
	schema.ComputeRelationships()

	clone := schema.Clone()
	require.Equal(t, schema, clone)

	clone.Tables["users"].AddColumn(&Column{Name: "email", Type: "text"})
	*clone.Tables["users"].Comment = "changed"
	clone.Tables["users"].Constraints["users_pkey"].(*PrimaryKeyConstraint).ColumnNames[0] = "email"

	assert.NotContains(t, schema.Tables["users"].Columns, "email")
	assert.Equal(t, "people", *schema.Tables["users"].Comment)
	assert.Equal(t, "id", schema.Tables["users"].Constraints["users_pkey"].ConstraintColumns()[0])
}

// =============================================================================
// Constraint union JSON round trip
// =============================================================================

func TestTable_JSONRoundTrip(t *testing.T) {
	table := NewTable("orders")
	table.AddColumn(&Column{Name: "id", Type: "bigserial", Primary: true, NotNull: true, Unique: true})
	table.AddColumn(&Column{Name: "user_id", Type: "bigint", NotNull: true})
	table.AddConstraint(&PrimaryKeyConstraint{Name: "orders_pkey", ColumnNames: []string{"id"}})
	table.AddConstraint(&ForeignKeyConstraint{
		Name:          "orders_user_id_fkey",
		ColumnNames:   []string{"user_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
		OnUpdate:      ActionNoAction,
		OnDelete:      ActionCascade,
	})
	table.AddConstraint(&CheckConstraint{Name: "orders_check", Expression: "id > 0"})
	table.AddConstraint(&UniqueConstraint{Name: "orders_user_id_key", ColumnNames: []string{"user_id"}})

	raw, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded Table
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, table, &decoded)
}

func TestUnmarshalConstraint_UnknownType(t *testing.T) {
	var decoded Table
	err := json.Unmarshal([]byte(`{
		"name": "t",
		"constraints": {"x": {"type": "EXCLUSION", "name": "x"}}
	}`), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown constraint type")
}

// =============================================================================
// Set helper
// =============================================================================

func TestSet_Basics(t *testing.T) {
	s := NewSet("a", "b")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.True(t, s.ContainsAll([]string{"a", "b"}))
	assert.False(t, s.ContainsAll([]string{"a", "c"}))
	assert.Equal(t, 2, s.Size())
}
