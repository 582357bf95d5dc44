package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/dbstruct"
)

// =============================================================================
// DBML conversion
// =============================================================================

func TestParseDBML_Tables(t *testing.T) {
	input := `
Table users {
  id int [pk, increment]
  email text [unique, not null]
  bio text [note: 'freeform']
  role text [default: 'member']
  Note: 'registered users'
}
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)
	users := schema.Tables["users"]
	require.NotNil(t, users)

	require.NotNil(t, users.Comment)
	assert.Equal(t, "registered users", *users.Comment)
	assert.Equal(t, []string{"id", "email", "bio", "role"}, users.ColumnOrder)

	id := users.Columns["id"]
	assert.Equal(t, "int", id.Type)
	assert.True(t, id.Primary)
	assert.True(t, id.NotNull)
	assert.Contains(t, users.Constraints, "users_pkey")

	email := users.Columns["email"]
	assert.True(t, email.Unique)
	assert.True(t, email.NotNull)
	assert.Contains(t, users.Constraints, "users_email_key")

	require.NotNil(t, users.Columns["bio"].Comment)
	assert.Equal(t, "freeform", *users.Columns["bio"].Comment)
	require.NotNil(t, users.Columns["role"].Default)
	assert.Equal(t, "member", *users.Columns["role"].Default)
}

func TestParseDBML_IndexesBlock(t *testing.T) {
	input := `
Table posts {
  id int [pk]
  user_id int
  slug text

  indexes {
    (user_id) [name: 'posts_user_idx']
    slug [unique]
    (user_id, slug) [type: btree]
  }
}
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)
	posts := schema.Tables["posts"]
	require.NotNil(t, posts)

	named := posts.Indexes["posts_user_idx"]
	require.NotNil(t, named)
	assert.Equal(t, []string{"user_id"}, named.Columns)

	slug := posts.Indexes["posts_slug_idx"]
	require.NotNil(t, slug)
	assert.True(t, slug.Unique)

	composite := posts.Indexes["posts_user_id_slug_idx"]
	require.NotNil(t, composite)
	assert.Equal(t, []string{"user_id", "slug"}, composite.Columns)
	assert.Equal(t, "btree", composite.Type)
}

func TestParseDBML_StandaloneRef(t *testing.T) {
	input := `
Table users {
  id int [pk]
}

Table posts {
  id int [pk]
  user_id int [not null]
}

Ref: posts.user_id > users.id [delete: cascade, update: no action]
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)

	fk, ok := schema.Tables["posts"].Constraints["posts_user_id_fkey"].(*dbstruct.ForeignKeyConstraint)
	require.True(t, ok)
	assert.Equal(t, "users", fk.TargetTable)
	assert.Equal(t, []string{"id"}, fk.TargetColumns)
	assert.Equal(t, dbstruct.ActionCascade, fk.OnDelete)
	assert.Equal(t, dbstruct.ActionNoAction, fk.OnUpdate)

	rel := schema.Relationships["posts.posts_user_id_fkey"]
	require.NotNil(t, rel)
	assert.Equal(t, dbstruct.OneToMany, rel.Cardinality)
}

func TestParseDBML_RefDirectionFlips(t *testing.T) {
	input := `
Table users {
  id int [pk]
}

Table posts {
  id int [pk]
  user_id int
}

Ref: users.id < posts.user_id
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)
	// The foreign key lives on the referencing side regardless of arrow
	// direction.
	assert.Contains(t, schema.Tables["posts"].Constraints, "posts_user_id_fkey")
	assert.NotContains(t, schema.Tables["users"].Constraints, "users_id_fkey")
}

func TestParseDBML_InlineRef(t *testing.T) {
	input := `
Table users {
  id int [pk]
}

Table posts {
  id int [pk]
  user_id int [ref: > users.id]
}
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)
	fk, ok := schema.Tables["posts"].Constraints["posts_user_id_fkey"].(*dbstruct.ForeignKeyConstraint)
	require.True(t, ok)
	assert.Equal(t, []string{"user_id"}, fk.ColumnNames)
	assert.Equal(t, "users", fk.TargetTable)
}

func TestParseDBML_RefToUndeclaredTable(t *testing.T) {
	input := `
Table users {
  id int [pk]
}

Ref: audit_log.user_id > users.id
`
	schema, errs := ParseDBML(input)
	require.Empty(t, errs)
	// The referencing table materializes as a placeholder; with no target
	// mismatch there is still a valid relationship.
	require.Contains(t, schema.Tables, "audit_log")
	assert.Contains(t, schema.Tables["audit_log"].Constraints, "audit_log_user_id_fkey")
}

func TestParseDBML_UnrepresentedDeclarations(t *testing.T) {
	input := `
Enum status {
  active
  archived
}

Table jobs {
  id int [pk]
  state status
}

TableGroup core {
  jobs
}
`
	schema, errs := ParseDBML(input)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Message, "enum")
	assert.Contains(t, errs[1].Message, "table group")
	// Columns keep the enum name as their type.
	assert.Equal(t, "status", schema.Tables["jobs"].Columns["state"].Type)
}

func TestParseDBML_UnknownColumnSetting(t *testing.T) {
	input := `
Table users {
  id int [pk, sparkle]
}
`
	schema, errs := ParseDBML(input)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "sparkle")
	require.NotNil(t, errs[0].Position)
	assert.Contains(t, schema.Tables, "users")
}

func TestParseDBML_SyntaxErrorIsFatal(t *testing.T) {
	schema, errs := ParseDBML("Table users { id int")
	require.Len(t, errs, 1)
	assert.Empty(t, schema.Tables)
}
