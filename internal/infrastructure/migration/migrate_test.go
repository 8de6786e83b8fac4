package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	nested := filepath.Join(root, "internal", "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := FindPath(nested)
	assert.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, DefaultPath), 0o755))
	got, err := FindPath(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultPath), got)
}

func TestRepositoryMigrationsPaired(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir, err := FindPath(wd)
	require.NoError(t, err)

	ups, _ := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	downs, _ := filepath.Glob(filepath.Join(dir, "*.down.sql"))
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
