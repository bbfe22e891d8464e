package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/testing/fixtures"
)

// serveStopped runs silac serve with a context that is already cancelled,
// so the command starts up, prints its summary and shuts down again
func serveStopped(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	base := []string{"--no-color", "--log-level", "error", "serve", "--no-protoc", "--address", "127.0.0.1:0", "--admin-address", "127.0.0.1:0"}
	cmd.SetArgs(append(base, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

const serverUUID = "2a6b1f5c-3c1e-4f7a-9c55-0d9e8f3a1b42"

func TestServe_Summary(t *testing.T) {
	t.Setenv("SILAC_SERVER_NAME", "Test Server")
	t.Setenv("SILAC_SERVER_UUID", serverUUID)
	greeter := writeFixture(t, t.TempDir(), fixtures.Greeter)

	stdout, stderr, err := serveStopped(t, greeter)
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "✓ Serving 2 feature(s) on 127.0.0.1:")
	assert.Contains(t, stdout, "Test Server")
	assert.Contains(t, stdout, serverUUID)
	assert.Contains(t, stdout, "http://127.0.0.1:")
	assert.Contains(t, stdout, "FEATURE")
	assert.Contains(t, stdout, "org.silastandard/core/SiLAService/v1")
	assert.Contains(t, stdout, "org.silastandard/examples/Greeter/v1")
}

func TestServe_JSON(t *testing.T) {
	t.Setenv("SILAC_SERVER_UUID", serverUUID)
	dir := t.TempDir()
	greeter := writeFixture(t, dir, fixtures.Greeter)
	controller := writeFixture(t, dir, fixtures.TemperatureController)

	stdout, stderr, err := serveStopped(t, "--json", greeter, controller)
	require.NoError(t, err, stderr)

	var summary serveSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stdout)
	assert.Contains(t, summary.Address, "127.0.0.1:")
	assert.NotEqual(t, "127.0.0.1:0", summary.Address)
	assert.NotEmpty(t, summary.AdminAddress)
	assert.Equal(t, "SiLA Server", summary.ServerName)
	assert.Equal(t, serverUUID, summary.ServerUUID)
	assert.ElementsMatch(t, []string{
		"org.silastandard/core/SiLAService/v1",
		"org.silastandard/examples/Greeter/v1",
		"com.example.lab/heating/TemperatureController/v2",
	}, summary.Features)
}

func TestServe_GeneratedUUID(t *testing.T) {
	stdout, stderr, err := serveStopped(t, "--json")
	require.NoError(t, err, stderr)

	var summary serveSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stdout)
	assert.Len(t, summary.ServerUUID, 36)
	assert.Equal(t, []string{"org.silastandard/core/SiLAService/v1"}, summary.Features)
}

func TestServe_WithoutAdmin(t *testing.T) {
	stdout, stderr, err := serveStopped(t, "--json", "--admin-address", "")
	require.NoError(t, err, stderr)

	var summary serveSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stdout)
	assert.Empty(t, summary.AdminAddress)
}

func TestServe_InvalidFeature(t *testing.T) {
	dir := t.TempDir()
	greeter := writeFixture(t, dir, fixtures.Greeter)
	broken := writeFile(t, dir, "Broken.sila.xml", missingIdentifier)

	stdout, stderr, err := serveStopped(t, greeter, broken)
	assert.ErrorIs(t, err, errReported)
	assert.NotContains(t, stdout, "Serving")
	assert.Contains(t, stderr, "[FDL002]")
	assert.Contains(t, stderr, "1 of 2 feature definition(s) failed")
}

func TestServe_DuplicateFeature(t *testing.T) {
	greeter := writeFixture(t, t.TempDir(), fixtures.Greeter)

	_, _, err := serveStopped(t, greeter, greeter)
	assert.ErrorIs(t, err, errReported)
}
