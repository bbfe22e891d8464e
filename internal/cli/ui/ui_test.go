package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	compilererrors "github.com/silaforge/silac/internal/compiler/errors"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
		excludes []string
	}{
		{
			name: "error with context",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "validation failed",
				Problem: "Greeter.sila.xml",
				Details: []string{"first detail", "second detail"},
			},
			contains: []string{"❌ VALIDATION FAILED: Greeter.sila.xml\n", "   first detail\n", "   second detail\n"},
			excludes: []string{"→"},
		},
		{
			name: "warning with help",
			opts: ErrorOptions{
				Level:        ErrorLevelWarning,
				Problem:      "cache disabled",
				HelpCommands: []string{"Get help: silac --help"},
			},
			contains: []string{"⚠️ cache disabled\n", "\n   → Get help: silac --help\n"},
		},
		{
			name:     "info",
			opts:     ErrorOptions{Level: ErrorLevelInfo, Problem: "serving"},
			contains: []string{"ℹ️ serving"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			out := FormatError(tt.opts)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestFormatSuccess(t *testing.T) {
	assert.Equal(t, "✓ compiled Greeter", FormatSuccess("compiled Greeter", true))

	var buf bytes.Buffer
	WriteSuccess(&buf, "done", true)
	assert.Equal(t, "✓ done\n", buf.String())
}

func TestValidationFailed(t *testing.T) {
	list := compilererrors.ErrorList{
		{
			Code:       compilererrors.ErrSchemaStructure,
			Severity:   compilererrors.SeverityError,
			Message:    "missing element Identifier",
			Location:   compilererrors.Location{Path: "Feature/Command[1]"},
			Suggestion: "add an Identifier",
		},
		{
			Code:     compilererrors.ErrProtocCompilation,
			Severity: compilererrors.SeverityWarning,
			Message:  "unused import",
		},
	}

	out := ValidationFailed("Greeter.sila.xml", list, true)
	assert.Contains(t, out, "VALIDATION FAILED: Greeter.sila.xml (1 error(s), 1 warning(s))")
	assert.Contains(t, out, "Feature/Command[1]: error: missing element Identifier [FDL002]\n")
	assert.Contains(t, out, "  hint: add an Identifier\n")
	assert.Contains(t, out, "warning: unused import [PRC001]\n")
}

func TestCannedMessages(t *testing.T) {
	assert.Contains(t, ProtocUnavailable("/opt/protoc", true), "Cannot run '/opt/protoc'.")
	assert.Contains(t, ProtocUnavailable("protoc", true), "silac compile --no-protoc")
	assert.Contains(t, ConfigError("bad key", true), "CONFIGURATION ERROR: bad key")
	assert.True(t, strings.HasPrefix(Warning("careful", true), "⚠️ careful"))
	assert.True(t, strings.HasPrefix(Info("note", true), "ℹ️ note"))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "FEATURE", "VERSION")
	table.AddRow("org.silastandard/core/SiLAService/v1", "1.0")
	table.AddRow("Greeter")
	table.Render()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "FEATURE"+strings.Repeat(" ", 31)+"VERSION", lines[0])
	assert.Equal(t, strings.Repeat("─", 36)+"  "+strings.Repeat("─", 7), lines[1])
	assert.Equal(t, "org.silastandard/core/SiLAService/v1  1.0", lines[2])
	assert.Equal(t, "Greeter"+strings.Repeat(" ", 31), lines[3])
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewKeyValueTable(&buf, true)
	table.AddRow("Version", "1.2.0")
	table.AddRow("Go", "go1.23")
	table.Render()

	assert.Equal(t, "Version: 1.2.0\nGo:      go1.23\n", buf.String())
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Compiling", 10*time.Millisecond, true)
	s.Start()
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "Compiling")
	assert.True(t, strings.HasSuffix(out, "\r\033[K"))
}

func TestWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	err := WithSpinner(&buf, "Compiling Greeter", true, func() error { return nil })
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Compiling Greeter\n")

	buf.Reset()
	failure := errors.New("boom")
	err = WithSpinner(&buf, "Compiling Greeter", true, func() error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, buf.String(), "❌ Compiling Greeter failed\n")
}
