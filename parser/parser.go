// Package parser converts schema definitions written in the supported input
// dialects into the canonical dbstruct model. Every processor follows the
// same best-effort contract: a partially populated schema and a list of
// non-fatal process errors can coexist.
package parser

import (
	"fmt"

	"github.com/lychee-technology/dbstruct"
)

// Format is the closed set of supported input dialects. The declared format
// is asserted by the caller, never sniffed from content.
type Format string

const (
	// FormatPostgres is raw SQL DDL, parsed with the chunked processor.
	FormatPostgres Format = "postgres"
	// FormatDBML is the DBML schema definition language.
	FormatDBML Format = "dbml"
	// FormatPrisma is the Prisma schema language.
	FormatPrisma Format = "prisma"
	// FormatTbls is the tbls schema document (JSON or YAML).
	FormatTbls Format = "tbls"
)

// Parse routes input text to the processor for the declared format. The
// returned error is non-nil only for an unknown format, which is a caller
// error; all ordinary input problems are reported through the process error
// list alongside whatever partial schema was producible.
func Parse(input string, format Format) (*dbstruct.Schema, []dbstruct.ProcessError, error) {
	switch format {
	case FormatPostgres:
		schema, errs := ParseSQLChunked(input, DefaultChunkSize)
		return schema, errs, nil
	case FormatDBML:
		schema, errs := ParseDBML(input)
		return schema, errs, nil
	case FormatPrisma:
		schema, errs := ParsePrisma(input)
		return schema, errs, nil
	case FormatTbls:
		schema, errs := ParseTbls(input)
		return schema, errs, nil
	default:
		return nil, nil, fmt.Errorf("unknown format %q", format)
	}
}
