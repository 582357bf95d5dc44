package parser

import (
	"strings"

	"github.com/auxten/postgresql-parser/pkg/sql/parser"
	"go.uber.org/zap"

	"github.com/lychee-technology/dbstruct"
)

// DefaultChunkSize is the number of lines handed to the SQL parser per
// attempt when no explicit size is given.
const DefaultChunkSize = 500

// ParseSQLChunked parses a SQL document in line-based chunks, self-correcting
// when a chunk boundary lands mid-statement. A chunk that fails to parse is
// first shrunk one line at a time (the boundary may have split a statement),
// then grown from the original size upward (the failing construct may need
// more context). The retry budget per offset is bounded; an exhausted chunk
// is failed explicitly and the processor moves on, so a per-chunk syntax
// error is never fatal to the whole document.
//
// The loop is strictly sequential: each chunk's outcome decides the next
// offset, and every converted chunk is merged into the running schema before
// the next one starts. Relationships are computed once at the end, so a
// foreign key may reference a table defined in a later chunk.
func ParseSQLChunked(input string, chunkSize int) (*dbstruct.Schema, []dbstruct.ProcessError) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	lines := strings.Split(input, "\n")
	offsets := lineStartOffsets(lines)
	schema := dbstruct.NewSchema()
	var errs []dbstruct.ProcessError

	for i := 0; i < len(lines); {
		res := parseChunkAt(lines, i, chunkSize)
		if !res.ok {
			errs = append(errs, dbstruct.NewProcessErrorAt(offsets[i],
				"failed to parse chunk starting at line %d: %s", i+1, res.errMsg))
			zap.S().Warnw("giving up on chunk", "line", i+1, "error", res.errMsg)
			i += chunkSize
			continue
		}
		partial := dbstruct.NewSchema()
		errs = append(errs, convertSQLStatements(res.stmts, partial, schema)...)
		dbstruct.Merge(schema, partial)
		i += res.advance
	}

	schema.ComputeRelationships()
	return schema, errs
}

type chunkResult struct {
	ok      bool
	stmts   parser.Statements
	advance int
	errMsg  string
}

// parseChunkAt finds a parseable chunk starting at line start. On success the
// returned advance is the number of lines consumed, which is less than the
// chunk size when the trailing statement was incomplete and is carried over
// to the next chunk.
func parseChunkAt(lines []string, start, chunkSize int) chunkResult {
	remaining := len(lines) - start
	size := chunkSize
	if size > remaining {
		size = remaining
	}
	origSize := size
	growing := false
	lastErr := "retry budget exhausted"

	for attempt := 0; attempt < 2*chunkSize; attempt++ {
		chunk := strings.Join(lines[start:start+size], "\n")
		stmts, err := parser.Parse(chunk)
		if err != nil {
			lastErr = err.Error()
			zap.S().Debugw("chunk parse retry",
				"line", start+1, "size", size, "growing", growing, "error", lastErr)
			var ok bool
			size, growing, ok = nextChunkSize(size, origSize, remaining, growing)
			if !ok {
				return chunkResult{errMsg: lastErr}
			}
			continue
		}
		if len(stmts) == 0 {
			return chunkResult{ok: true, advance: size}
		}

		atEOF := start+size == len(lines)
		if atEOF || endsAtStatementBoundary(chunk) {
			return chunkResult{ok: true, stmts: stmts, advance: size}
		}

		// The parse succeeded but the chunk stops short of a statement
		// terminator: the trailing statement may continue on the next line.
		// Convert only the complete statements and advance to the start of
		// the suspect one; the next chunk picks it up whole. The advance is
		// line-granular, so this is only safe when the suspect statement
		// begins its line; otherwise the next chunk would open with the tail
		// of a statement already converted, and the search grows instead.
		if len(stmts) > 1 {
			last := stmts[len(stmts)-1]
			if pos := strings.LastIndex(chunk, last.SQL); pos > 0 {
				lineStart := strings.LastIndex(chunk[:pos], "\n") + 1
				consumed := strings.Count(chunk[:pos], "\n")
				if consumed > 0 && strings.TrimSpace(chunk[lineStart:pos]) == "" {
					return chunkResult{ok: true, stmts: stmts[:len(stmts)-1], advance: consumed}
				}
			}
		}

		// A single (or unlocatable) incomplete statement needs more context,
		// not less.
		lastErr = "statement incomplete at chunk boundary"
		if !growing {
			growing = true
			size = origSize
		}
		var ok bool
		size, growing, ok = nextChunkSize(size, origSize, remaining, growing)
		if !ok {
			return chunkResult{errMsg: lastErr}
		}
	}
	return chunkResult{errMsg: lastErr}
}

// nextChunkSize steps the adaptive search: shrink one line at a time until a
// single line remains, then restart from the original size growing upward.
// The grow phase stops at the end of the input; ok=false means the search
// space is exhausted.
func nextChunkSize(size, origSize, remaining int, growing bool) (int, bool, bool) {
	if !growing {
		if size > 1 {
			return size - 1, false, true
		}
		growing = true
		size = origSize
	}
	if size+1 > remaining {
		return 0, true, false
	}
	return size + 1, true, true
}

// endsAtStatementBoundary reports whether the chunk's last meaningful line
// ends with a statement terminator, ignoring blank lines and line comments.
func endsAtStatementBoundary(chunk string) bool {
	lines := strings.Split(chunk, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		t := strings.TrimSpace(lines[i])
		if t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		return strings.HasSuffix(t, ";")
	}
	return true
}

// lineStartOffsets returns the character offset of each line start in the
// original input, for positioned process errors.
func lineStartOffsets(lines []string) []int {
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1
	}
	return offsets
}
