package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Format dispatch
// =============================================================================

func TestParse_RoutesByFormat(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
		table  string
	}{
		{
			name:   "postgres",
			format: FormatPostgres,
			input:  "CREATE TABLE users (id BIGINT PRIMARY KEY);",
			table:  "users",
		},
		{
			name:   "dbml",
			format: FormatDBML,
			input:  "Table users {\n  id int [pk]\n}",
			table:  "users",
		},
		{
			name:   "prisma",
			format: FormatPrisma,
			input:  "model User {\n  id Int @id\n}",
			table:  "User",
		},
		{
			name:   "tbls",
			format: FormatTbls,
			input:  `{"tables": [{"name": "users", "columns": [{"name": "id", "type": "bigint"}]}]}`,
			table:  "users",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, errs, err := Parse(tt.input, tt.format)
			require.NoError(t, err)
			assert.Empty(t, errs)
			assert.Contains(t, schema.Tables, tt.table)
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	schema, errs, err := Parse("anything", Format("excel"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excel")
	assert.Nil(t, schema)
	assert.Nil(t, errs)
}

func TestParse_MalformedInputIsNotAnError(t *testing.T) {
	// Input problems surface as process errors, never as the dispatch error.
	schema, errs, err := Parse("Table users {", FormatDBML)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	require.NotNil(t, schema)
	assert.Empty(t, schema.Tables)
}
