package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "silac", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"version", "validate", "compile", "generate", "serve", "new"} {
		assert.Contains(t, names, expected)
	}

	for _, flag := range []string{"config", "log-level", "json", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"
	GoVersion = "go1.23"

	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "silac version: 1.0.0-test\n")
	assert.Contains(t, stdout, "Git commit:    abc123\n")
	assert.Contains(t, stdout, "Go version:    go1.23\n")

	stdout, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, versionInfo{Version: "1.0.0-test", GitCommit: "abc123", BuildDate: "2025-01-01", GoVersion: "go1.23"}, info)
}

func TestBadConfig(t *testing.T) {
	t.Setenv("SILAC_CACHE_BACKEND", "memcached")

	_, stderr, err := execute(t, "compile", "--no-protoc", "Missing.sila.xml")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "CONFIGURATION ERROR")
	assert.Contains(t, stderr, "cache.backend")

	_, _, err = execute(t, "compile", "--json", "--no-protoc", "Missing.sila.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.backend")
}
