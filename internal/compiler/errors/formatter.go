package errors

import (
	"fmt"
	"strings"
)

// FormatError returns a multi-line message for terminal output
func FormatError(e *CompilerError) string {
	var b strings.Builder

	file := e.File
	if file == "" {
		file = "<input>"
	}

	fmt.Fprintf(&b, "%s[%s]: %s\n", e.Severity, e.Code, e.Message)
	if loc := e.Location.String(); loc != "" {
		fmt.Fprintf(&b, "  --> %s %s\n", file, loc)
	} else {
		fmt.Fprintf(&b, "  --> %s\n", file)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  hint: %s\n", e.Suggestion)
	}

	return b.String()
}

// FormatErrorList returns a formatted string of all diagnostics
func FormatErrorList(errors ErrorList) string {
	if len(errors) == 0 {
		return "no errors"
	}

	var b strings.Builder

	errCount, warnCount := errors.ErrorCount()
	fmt.Fprintf(&b, "Compilation failed with %d error(s), %d warning(s)\n\n", errCount, warnCount)

	for i, err := range errors {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(err.Format())
	}

	return b.String()
}

// FormatCompact returns a one-line diagnostic
func FormatCompact(e *CompilerError) string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if loc := e.Location.String(); loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s: %s [%s]", e.Severity, e.Message, e.Code)
	return b.String()
}
