package dbstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersTable() *Table {
	t := NewTable("users")
	t.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, NotNull: true, Unique: true})
	t.AddColumn(&Column{Name: "email", Type: "text", NotNull: true})
	t.AddConstraint(&PrimaryKeyConstraint{Name: "users_pkey", ColumnNames: []string{"id"}})
	return t
}

// =============================================================================
// Merge
// =============================================================================

func TestMerge_DisjointTables(t *testing.T) {
	acc := NewSchema()
	acc.AddTable(usersTable())

	partial := NewSchema()
	posts := NewTable("posts")
	posts.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, NotNull: true, Unique: true})
	partial.AddTable(posts)

	Merge(acc, partial)

	require.Len(t, acc.Tables, 2)
	assert.Contains(t, acc.Tables, "users")
	assert.Contains(t, acc.Tables, "posts")
}

func TestMerge_SameTableUnionsMembers(t *testing.T) {
	acc := NewSchema()
	acc.AddTable(usersTable())

	// A later chunk amends the same table: new column, new constraint, and a
	// redefinition of an existing column.
	partial := NewSchema()
	amended := NewTable("users")
	amended.AddColumn(&Column{Name: "email", Type: "varchar(255)", NotNull: true, Unique: true})
	amended.AddColumn(&Column{Name: "created_at", Type: "timestamp"})
	amended.AddConstraint(&UniqueConstraint{Name: "users_email_key", ColumnNames: []string{"email"}})
	partial.AddTable(amended)

	Merge(acc, partial)

	users := acc.Tables["users"]
	require.Len(t, acc.Tables, 1)
	assert.Equal(t, []string{"id", "email", "created_at"}, users.ColumnOrder)
	assert.Equal(t, "varchar(255)", users.Columns["email"].Type)
	assert.True(t, users.Columns["email"].Unique)
	assert.Contains(t, users.Constraints, "users_pkey")
	assert.Contains(t, users.Constraints, "users_email_key")
}

func TestMerge_CommentOnlyWhenSet(t *testing.T) {
	acc := NewSchema()
	commented := usersTable()
	commented.Comment = StringPtr("people")
	acc.AddTable(commented)

	// Absent comment on the partial side leaves the accumulated one alone.
	partial := NewSchema()
	partial.AddTable(NewTable("users"))
	Merge(acc, partial)
	require.NotNil(t, acc.Tables["users"].Comment)
	assert.Equal(t, "people", *acc.Tables["users"].Comment)

	// A set comment wins.
	partial = NewSchema()
	amended := NewTable("users")
	amended.Comment = StringPtr("accounts")
	partial.AddTable(amended)
	Merge(acc, partial)
	assert.Equal(t, "accounts", *acc.Tables["users"].Comment)
}

func TestMerge_Idempotent(t *testing.T) {
	partial := NewSchema()
	partial.AddTable(usersTable())
	partial.Tables["users"].Indexes["users_email_idx"] = &Index{
		Name: "users_email_idx", Columns: []string{"email"}, Type: "btree",
	}

	once := NewSchema()
	Merge(once, partial)
	twice := NewSchema()
	Merge(twice, partial)
	Merge(twice, partial)

	assert.Equal(t, once, twice)
}

func TestMerge_DoesNotAliasPartial(t *testing.T) {
	partial := NewSchema()
	partial.AddTable(usersTable())

	acc := NewSchema()
	Merge(acc, partial)

	partial.Tables["users"].Columns["id"].Type = "uuid"
	partial.Tables["users"].AddColumn(&Column{Name: "extra", Type: "text"})

	assert.Equal(t, "bigint", acc.Tables["users"].Columns["id"].Type)
	assert.NotContains(t, acc.Tables["users"].Columns, "extra")
}

func TestMerge_NilPartial(t *testing.T) {
	acc := NewSchema()
	acc.AddTable(usersTable())
	got := Merge(acc, nil)
	assert.Same(t, acc, got)
	assert.Len(t, acc.Tables, 1)
}
