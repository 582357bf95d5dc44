package dbstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fkSchema(sourceUnique bool) *Schema {
	s := NewSchema()
	s.AddTable(usersTable())

	posts := NewTable("posts")
	posts.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, NotNull: true, Unique: true})
	posts.AddColumn(&Column{Name: "user_id", Type: "bigint", NotNull: true, Unique: sourceUnique})
	posts.AddConstraint(&ForeignKeyConstraint{
		Name:          "posts_user_id_fkey",
		ColumnNames:   []string{"user_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
		OnUpdate:      ActionNoAction,
		OnDelete:      ActionCascade,
	})
	s.AddTable(posts)
	return s
}

// =============================================================================
// ComputeRelationships
// =============================================================================

func TestComputeRelationships_OneToMany(t *testing.T) {
	s := fkSchema(false)
	s.ComputeRelationships()

	require.Len(t, s.Relationships, 1)
	rel := s.Relationships["posts.posts_user_id_fkey"]
	require.NotNil(t, rel)
	assert.Equal(t, "posts", rel.SourceTable)
	assert.Equal(t, []string{"user_id"}, rel.SourceColumns)
	assert.Equal(t, "users", rel.TargetTable)
	assert.Equal(t, []string{"id"}, rel.TargetColumns)
	assert.Equal(t, OneToMany, rel.Cardinality)
}

func TestComputeRelationships_UniqueSourceIsOneToOne(t *testing.T) {
	s := fkSchema(true)
	s.ComputeRelationships()

	require.Len(t, s.Relationships, 1)
	assert.Equal(t, OneToOne, s.Relationships["posts.posts_user_id_fkey"].Cardinality)
}

func TestComputeRelationships_CompositeKeyCoverage(t *testing.T) {
	s := NewSchema()
	s.AddTable(usersTable())

	members := NewTable("members")
	members.AddColumn(&Column{Name: "user_id", Type: "bigint", NotNull: true})
	members.AddColumn(&Column{Name: "org_id", Type: "bigint", NotNull: true})
	members.AddConstraint(&PrimaryKeyConstraint{
		Name: "members_pkey", ColumnNames: []string{"user_id", "org_id"},
	})
	members.AddConstraint(&ForeignKeyConstraint{
		Name:          "members_user_id_fkey",
		ColumnNames:   []string{"user_id"},
		TargetTable:   "users",
		TargetColumns: []string{"id"},
		OnUpdate:      ActionNoAction,
		OnDelete:      ActionNoAction,
	})
	s.AddTable(members)
	s.ComputeRelationships()

	// user_id alone is not unique under the composite primary key.
	require.Len(t, s.Relationships, 1)
	assert.Equal(t, OneToMany, s.Relationships["members.members_user_id_fkey"].Cardinality)
}

func TestComputeRelationships_UniqueIndexCoverage(t *testing.T) {
	s := fkSchema(false)
	posts := s.Tables["posts"]
	posts.Columns["user_id"].Unique = false
	posts.Indexes["posts_user_id_idx"] = &Index{
		Name: "posts_user_id_idx", Columns: []string{"user_id"}, Unique: true,
	}
	s.ComputeRelationships()

	require.Len(t, s.Relationships, 1)
	assert.Equal(t, OneToOne, s.Relationships["posts.posts_user_id_fkey"].Cardinality)
}

func TestComputeRelationships_MissingTargetSkipped(t *testing.T) {
	s := fkSchema(false)
	delete(s.Tables, "users")
	s.ComputeRelationships()

	assert.Empty(t, s.Relationships)
	// The constraint itself stays on the table.
	assert.Contains(t, s.Tables["posts"].Constraints, "posts_user_id_fkey")
}

func TestComputeRelationships_Rebuilds(t *testing.T) {
	s := fkSchema(false)
	s.ComputeRelationships()
	require.Len(t, s.Relationships, 1)

	delete(s.Tables["posts"].Constraints, "posts_user_id_fkey")
	s.ComputeRelationships()
	assert.Empty(t, s.Relationships)
}
