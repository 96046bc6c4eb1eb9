package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ImplicitLineNumberIDs(t *testing.T) {
	path := writeTemp(t, "cat\ndog\nbird\n")
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cat", m.Lookup(0))
	assert.Equal(t, "dog", m.Lookup(1))
	assert.Equal(t, "bird", m.Lookup(2))
}

func TestLoad_ExplicitIDs(t *testing.T) {
	path := writeTemp(t, "0 person\n5 bicycle\n17 cat\n")
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "person", m.Lookup(0))
	assert.Equal(t, "bicycle", m.Lookup(5))
	assert.Equal(t, "cat", m.Lookup(17))
}

func TestLookup_MissingIDRendersDecimal(t *testing.T) {
	path := writeTemp(t, "0 person\n")
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", m.Lookup(42))
}

func TestLookup_NilMap(t *testing.T) {
	var m *Map
	assert.Equal(t, "3", m.Lookup(3))
}
