package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

func TestFindFeatureFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b", "Greeter-v1_0.sila.xml"))
	touch(t, filepath.Join(dir, "a", "Pump-v1_0.sila.xml"))
	touch(t, filepath.Join(dir, "a", "notes.xml"))
	touch(t, filepath.Join(dir, "Greeter.proto"))

	files, err := FindFeatureFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a", "Pump-v1_0.sila.xml"),
		filepath.Join(dir, "b", "Greeter-v1_0.sila.xml"),
	}, files)
}

func TestFindFeatureFiles_MissingDir(t *testing.T) {
	_, err := FindFeatureFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestExpandFeatureArgs(t *testing.T) {
	dir := t.TempDir()
	feature := filepath.Join(dir, "features", "Greeter-v1_0.sila.xml")
	touch(t, feature)
	missing := filepath.Join(dir, "Missing.sila.xml")

	files, err := ExpandFeatureArgs([]string{filepath.Join(dir, "features"), missing})
	require.NoError(t, err)
	assert.Equal(t, []string{feature, missing}, files)
}

func TestExpandFeatureArgs_EmptyDir(t *testing.T) {
	_, err := ExpandFeatureArgs([]string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .sila.xml files")
}
