package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Chunked parsing
// =============================================================================

func TestParseSQLChunked_ResultIndependentOfChunkSize(t *testing.T) {
	input := `CREATE TABLE users (id BIGINT PRIMARY KEY, email TEXT NOT NULL);
CREATE TABLE posts (id BIGINT PRIMARY KEY, user_id BIGINT NOT NULL);
ALTER TABLE posts ADD CONSTRAINT posts_user_id_fkey FOREIGN KEY (user_id) REFERENCES users (id);
COMMENT ON TABLE posts IS 'blog posts';
CREATE INDEX posts_user_id_idx ON posts (user_id);`

	baseline, errs := ParseSQLChunked(input, DefaultChunkSize)
	require.Empty(t, errs)

	for _, size := range []int{1, 2, 3, 100} {
		schema, errs := ParseSQLChunked(input, size)
		require.Empty(t, errs, "chunk size %d", size)
		assert.Equal(t, baseline, schema, "chunk size %d", size)
	}
}

func TestParseSQLChunked_StatementSpanningChunkBoundary(t *testing.T) {
	input := `CREATE TABLE users (
	id BIGINT PRIMARY KEY,
	email TEXT NOT NULL
);
CREATE TABLE posts (id BIGINT PRIMARY KEY);`

	schema, errs := ParseSQLChunked(input, 2)
	require.Empty(t, errs)
	require.Contains(t, schema.Tables, "users")
	require.Contains(t, schema.Tables, "posts")
	assert.Equal(t, []string{"id", "email"}, schema.Tables["users"].ColumnOrder)
}

func TestParseSQLChunked_StatementStartingMidLine(t *testing.T) {
	// The second statement begins on the line where the first one ends, and
	// its terminator sits past the chunk boundary. Advancing to that line
	// would re-feed the first statement's tail to the parser, so the search
	// must grow the chunk instead of carrying the line over.
	input := `CREATE TABLE a (
id INT); CREATE TABLE b (id INT)
;
CREATE TABLE c (id INT);`

	schema, errs := ParseSQLChunked(input, 2)
	require.Empty(t, errs)
	assert.Contains(t, schema.Tables, "a")
	assert.Contains(t, schema.Tables, "b")
	assert.Contains(t, schema.Tables, "c")
}

func TestParseSQLChunked_CompleteStatementCarriedToNextChunk(t *testing.T) {
	// Same shape, but the unterminated trailing statement starts its own
	// line: the chunk converts the complete statement and the next chunk
	// picks the carried one up whole.
	input := `CREATE TABLE a (id INT);
CREATE TABLE b (id INT)
;
CREATE TABLE c (id INT);`

	schema, errs := ParseSQLChunked(input, 2)
	require.Empty(t, errs)
	require.Len(t, schema.Tables, 3)
	assert.Contains(t, schema.Tables, "b")
}

func TestParseSQLChunked_LaterChunkAmendsEarlierTable(t *testing.T) {
	input := `CREATE TABLE orders (id BIGINT PRIMARY KEY);
ALTER TABLE orders ADD COLUMN total DECIMAL;
COMMENT ON COLUMN orders.total IS 'gross amount';`

	schema, errs := ParseSQLChunked(input, 1)
	require.Empty(t, errs)
	orders := schema.Tables["orders"]
	require.NotNil(t, orders)
	assert.Equal(t, []string{"id", "total"}, orders.ColumnOrder)
	assert.True(t, orders.Columns["id"].Primary)
	require.NotNil(t, orders.Columns["total"].Comment)
	assert.Equal(t, "gross amount", *orders.Columns["total"].Comment)
}

func TestParseSQLChunked_ForwardReference(t *testing.T) {
	input := `CREATE TABLE posts (id BIGINT PRIMARY KEY, user_id BIGINT REFERENCES users (id));
CREATE TABLE users (id BIGINT PRIMARY KEY);`

	schema, errs := ParseSQLChunked(input, 1)
	require.Empty(t, errs)
	rel := schema.Relationships["posts.posts_user_id_fkey"]
	require.NotNil(t, rel)
	assert.Equal(t, "users", rel.TargetTable)
}

func TestParseSQLChunked_BadChunkIsIsolated(t *testing.T) {
	input := `CREATE TABLE users (id BIGINT PRIMARY KEY);
THIS IS NOT SQL AT ALL;
CREATE TABLE posts (id BIGINT PRIMARY KEY);`

	schema, errs := ParseSQLChunked(input, 1)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].Position)
	assert.Equal(t, len("CREATE TABLE users (id BIGINT PRIMARY KEY);\n"), *errs[0].Position)
	assert.Contains(t, schema.Tables, "users")
	assert.Contains(t, schema.Tables, "posts")
}

func TestParseSQLChunked_EmptyAndCommentOnlyInput(t *testing.T) {
	schema, errs := ParseSQLChunked("", 10)
	assert.Empty(t, errs)
	assert.Empty(t, schema.Tables)

	schema, errs = ParseSQLChunked("-- nothing here\n\n-- still nothing", 1)
	assert.Empty(t, errs)
	assert.Empty(t, schema.Tables)
}

func TestParseSQLChunked_NonPositiveSizeUsesDefault(t *testing.T) {
	schema, errs := ParseSQLChunked("CREATE TABLE t (id BIGINT);", 0)
	require.Empty(t, errs)
	assert.Contains(t, schema.Tables, "t")
}

// =============================================================================
// Chunk search mechanics
// =============================================================================

func TestNextChunkSize(t *testing.T) {
	// Shrinking phase steps down one line at a time.
	size, growing, ok := nextChunkSize(5, 5, 10, false)
	assert.True(t, ok)
	assert.False(t, growing)
	assert.Equal(t, 4, size)

	// At one line the search restarts above the original size.
	size, growing, ok = nextChunkSize(1, 5, 10, false)
	assert.True(t, ok)
	assert.True(t, growing)
	assert.Equal(t, 6, size)

	// Growing stops at the end of the input.
	_, _, ok = nextChunkSize(10, 5, 10, true)
	assert.False(t, ok)
}

func TestEndsAtStatementBoundary(t *testing.T) {
	assert.True(t, endsAtStatementBoundary("CREATE TABLE t (id INT);"))
	assert.True(t, endsAtStatementBoundary("CREATE TABLE t (id INT);\n-- trailing comment\n"))
	assert.False(t, endsAtStatementBoundary("CREATE TABLE t (id INT);\nCREATE TABLE u (id INT)"))
	assert.False(t, endsAtStatementBoundary("CREATE TABLE t ("))
	assert.True(t, endsAtStatementBoundary(""))
}
