package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/testing/fixtures"
)

// execute runs silac with args and returns what it printed
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFixture copies a fixture feature definition into dir
func writeFixture(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, fixtures.Feature(name), 0644))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// fakeProtoc writes an executable shell script standing in for protoc and
// selects it through the environment
func fakeProtoc(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake protoc scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "protoc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	t.Setenv("SILAC_COMPILER_PROTOC", path)
	return path
}

func decodeReport(t *testing.T, stdout string) report {
	t.Helper()
	var r report
	require.NoError(t, json.Unmarshal([]byte(stdout), &r), stdout)
	return r
}

const missingIdentifier = `<?xml version="1.0" encoding="utf-8" ?>
<Feature SiLA2Version="1.0" FeatureVersion="1.0" Originator="org.silastandard" Category="examples"
         xmlns="http://www.sila-standard.org">
  <DisplayName>Broken</DisplayName>
  <Description>Has no identifier.</Description>
</Feature>
`
