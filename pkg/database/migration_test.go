package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000012_import_staging.up.sql",
		"000003_seed.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000099_skipped.up.sql"), 0o700))

	latest, err := latestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(12), latest)

	_, err = latestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestMigrationStatus_Pending(t *testing.T) {
	assert.True(t, MigrationStatus{Version: 1, Latest: 2}.Pending())
	assert.False(t, MigrationStatus{Version: 2, Latest: 2}.Pending())
}

func TestMigrationService_Folder(t *testing.T) {
	dir := t.TempDir()
	ms := NewMigrationService(nil, &MigrationConfig{MigrationFolderPath: dir})
	got, err := ms.folder()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	ms = NewMigrationService(nil, &MigrationConfig{MigrationFolderPath: filepath.Join(dir, "missing")})
	_, err = ms.folder()
	assert.ErrorContains(t, err, "does not exist")
}
