package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	compilererrors "github.com/silaforge/silac/internal/compiler/errors"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Details      []string
	HelpCommands []string
	NoColor      bool
}

func levelColors(level ErrorLevel) (header, body *color.Color, symbol string) {
	switch level {
	case ErrorLevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case ErrorLevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
}

// FormatError creates a message with a header, indented details and help
// commands
//
// Example output:
//
//	❌ VALIDATION FAILED: Greeter.sila.xml
//	   Feature/Command[1]/Identifier: value "sayHello" does not match ...
//
//	   → Get help: silac validate --help
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header, body, symbol := levelColors(opts.Level)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		body.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}
	for _, d := range opts.Details {
		body.Fprintf(&b, "   %s\n", d)
	}
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// FormatDiagnostics renders compiler diagnostics one per line, errors in red
// and warnings in yellow. Hints follow their diagnostic.
func FormatDiagnostics(list compilererrors.ErrorList, noColor bool) string {
	var b strings.Builder
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)
	if noColor {
		red.DisableColor()
		yellow.DisableColor()
		gray.DisableColor()
	}
	for _, e := range list {
		c := red
		if e.Severity == compilererrors.SeverityWarning {
			c = yellow
		}
		c.Fprintln(&b, compilererrors.FormatCompact(e))
		if e.Suggestion != "" {
			gray.Fprintf(&b, "  hint: %s\n", e.Suggestion)
		}
	}
	return b.String()
}

// ValidationFailed reports the diagnostics of a feature definition that did
// not validate or compile
func ValidationFailed(file string, list compilererrors.ErrorList, noColor bool) string {
	errs, warnings := list.ErrorCount()
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "validation failed",
		Problem: fmt.Sprintf("%s (%d error(s), %d warning(s))", file, errs, warnings),
		HelpCommands: []string{
			"Get help: silac validate --help",
		},
		NoColor: noColor,
	}) + FormatDiagnostics(list, noColor)
}

// ProtocUnavailable reports that protoc could not be run
func ProtocUnavailable(protoc string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "protoc not found",
		Problem: fmt.Sprintf("Cannot run '%s'.", protoc),
		Details: []string{
			"Install protoc or point compiler.protoc (SILAC_COMPILER_PROTOC) at it.",
		},
		HelpCommands: []string{
			"Skip protoc: silac compile --no-protoc FILE",
			"Get help: silac compile --help",
		},
		NoColor: noColor,
	})
}

// ConfigError creates a configuration error message
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat silac.yaml",
			"Get help: silac --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

// Info creates an info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelInfo, Problem: message, NoColor: noColor})
}
