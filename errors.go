package dbstruct

import (
	"fmt"
)

// ProcessError is a non-fatal diagnostic recorded while converting schema
// text into the model. Processors accumulate these and keep going; a
// non-empty error list can coexist with a partially populated Schema.
type ProcessError struct {
	Message string `json:"message"`
	// Position is a character offset into the original input, when
	// determinable.
	Position *int `json:"position,omitempty"`
}

func (e ProcessError) Error() string {
	if e.Position != nil {
		return fmt.Sprintf("%s (at offset %d)", e.Message, *e.Position)
	}
	return e.Message
}

// NewProcessError creates a ProcessError without position information.
func NewProcessError(format string, args ...any) ProcessError {
	return ProcessError{Message: fmt.Sprintf(format, args...)}
}

// NewProcessErrorAt creates a ProcessError carrying a character offset.
func NewProcessErrorAt(position int, format string, args ...any) ProcessError {
	return ProcessError{Message: fmt.Sprintf(format, args...), Position: &position}
}

// PatchErrorCode categorizes patch application failures.
type PatchErrorCode string

const (
	// PatchInvalidPath means the path does not match any addressable shape.
	PatchInvalidPath PatchErrorCode = "INVALID_PATH"
	// PatchMissingParent means an add addressed a path whose parent entity
	// does not exist.
	PatchMissingParent PatchErrorCode = "MISSING_PARENT"
	// PatchNotFound means a replace or remove addressed a non-existent target.
	PatchNotFound PatchErrorCode = "NOT_FOUND"
	// PatchInvalidValue means the operation's value payload cannot be
	// decoded into the addressed field or entity.
	PatchInvalidValue PatchErrorCode = "INVALID_VALUE"
)

// PatchError is the typed failure returned by ApplyPatch. It always carries
// the offending path.
type PatchError struct {
	Code    PatchErrorCode `json:"code"`
	Path    string         `json:"path"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
}

func (e *PatchError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Path)
}

func (e *PatchError) Unwrap() error {
	return e.Cause
}

// WithCause attaches an underlying error.
func (e *PatchError) WithCause(cause error) *PatchError {
	e.Cause = cause
	return e
}

// NewPatchError creates a PatchError for the given path.
func NewPatchError(code PatchErrorCode, path, format string, args ...any) *PatchError {
	return &PatchError{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}
