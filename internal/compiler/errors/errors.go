// Package errors provides structured diagnostics for the silac compiler.
// It turns the typed errors of the pipeline stages into coded diagnostics
// that can be rendered for a terminal or emitted as JSON for tooling.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a unique diagnostic code
type ErrorCode string

// ErrorCategory represents the pipeline stage a diagnostic comes from
type ErrorCategory string

const (
	// CategorySyntax represents XML well-formedness errors
	CategorySyntax ErrorCategory = "syntax"
	// CategorySchema represents FDL schema violations
	CategorySchema ErrorCategory = "schema"
	// CategorySemantic represents identifier and type consistency errors
	CategorySemantic ErrorCategory = "semantic"
	// CategoryTransform represents FDL to IDL transformation errors
	CategoryTransform ErrorCategory = "transform"
	// CategoryProtoc represents protoc invocation errors
	CategoryProtoc ErrorCategory = "protoc"
	// CategoryIO represents file system errors
	CategoryIO ErrorCategory = "io"
	// CategoryInternal represents errors no other category covers
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the severity level of a diagnostic
type ErrorSeverity string

const (
	// SeverityError indicates an error that prevents compilation
	SeverityError ErrorSeverity = "error"
	// SeverityWarning indicates a warning that does not stop compilation
	SeverityWarning ErrorSeverity = "warning"
)

// Location points into a feature definition or an IDL file. Path is the
// indexed element path of FDL diagnostics; Line and Column are set for
// diagnostics reported by protoc.
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) String() string {
	switch {
	case l.Line > 0 && l.Path != "":
		return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
	case l.Line > 0:
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	default:
		return l.Path
	}
}

// CompilerError is a single diagnostic
type CompilerError struct {
	// Code is the unique diagnostic code (e.g. "FDL002", "PRC001")
	Code ErrorCode `json:"code"`
	// Type is a machine-readable identifier of the diagnostic
	Type     string        `json:"type"`
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Location Location      `json:"location"`
	// File is the feature definition or IDL file name (optional)
	File string `json:"file,omitempty"`
	// Suggestion provides a hint for fixing the error (optional)
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *CompilerError) Error() string {
	return FormatCompact(e)
}

// Format returns a human-readable message for terminal output
func (e *CompilerError) Format() string {
	return FormatError(e)
}

// ToJSON returns the diagnostic as an indented JSON string
func (e *CompilerError) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithFile sets the file name of the diagnostic
func (e *CompilerError) WithFile(file string) *CompilerError {
	e.File = file
	return e
}

// WithSuggestion sets a suggestion for fixing the error
func (e *CompilerError) WithSuggestion(suggestion string) *CompilerError {
	e.Suggestion = suggestion
	return e
}

// ErrorList is a collection of diagnostics
type ErrorList []*CompilerError

// Error implements the error interface
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors returns true if the list contains any errors (excludes warnings)
func (el ErrorList) HasErrors() bool {
	for _, err := range el {
		if err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// WithFile sets the file name of every diagnostic that has none
func (el ErrorList) WithFile(file string) ErrorList {
	for _, err := range el {
		if err.File == "" {
			err.File = file
		}
	}
	return el
}

// ErrorCount returns the number of diagnostics by severity
func (el ErrorList) ErrorCount() (errors, warnings int) {
	for _, err := range el {
		switch err.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	return
}

// ToJSON returns all diagnostics as a JSON array
func (el ErrorList) ToJSON() (string, error) {
	if el == nil {
		el = ErrorList{}
	}
	bytes, err := json.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// newError creates a new CompilerError with the given parameters
func newError(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	message string,
	loc Location,
) *CompilerError {
	return &CompilerError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: SeverityError,
		Message:  message,
		Location: loc,
	}
}
