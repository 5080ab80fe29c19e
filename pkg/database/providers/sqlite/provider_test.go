package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supporttools/SQLiteGuard/pkg/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte{}, 0644))
}

func TestListDatabasesSingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "app.db")
	touch(t, path)

	p := NewProvider(config.SQLiteTargetConfig{Name: "app", Path: path})
	names, err := p.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, names)
}

func TestListDatabasesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	touch(t, filepath.Join(tmpDir, "orders.db"))
	touch(t, filepath.Join(tmpDir, "users.db"))
	touch(t, filepath.Join(tmpDir, "notes.txt"))

	p := NewProvider(config.SQLiteTargetConfig{Name: "all", Path: tmpDir, Pattern: "*.db"})
	names, err := p.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, names)
}

func TestListDatabasesFilters(t *testing.T) {
	tmpDir := t.TempDir()
	touch(t, filepath.Join(tmpDir, "a.db"))
	touch(t, filepath.Join(tmpDir, "b.db"))
	touch(t, filepath.Join(tmpDir, "c.db"))

	p := NewProvider(config.SQLiteTargetConfig{
		Name:             "filtered",
		Path:             tmpDir,
		Pattern:          "*.db",
		ExcludeDatabases: []string{"b"},
	})
	names, err := p.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)

	p = NewProvider(config.SQLiteTargetConfig{
		Name:             "included",
		Path:             tmpDir,
		Pattern:          "*.db",
		IncludeDatabases: []string{"b"},
	})
	names, err = p.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestConnectMissingPath(t *testing.T) {
	p := NewProvider(config.SQLiteTargetConfig{Name: "gone", Path: "/nonexistent/path.db"})
	assert.Error(t, p.Connect(context.Background()))
}

func TestRestoreRefusesExistingDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "app.db")
	touch(t, path)

	p := NewProvider(config.SQLiteTargetConfig{Name: "app", Path: path})
	err := p.Restore(context.Background(), "app", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to restore")
}

func TestRestorePathForDirectoryTarget(t *testing.T) {
	tmpDir := t.TempDir()
	p := NewProvider(config.SQLiteTargetConfig{Name: "all", Path: tmpDir, Pattern: "*.sqlite"})
	assert.Equal(t, filepath.Join(tmpDir, "new.sqlite"), p.restorePath("new"))

	p = NewProvider(config.SQLiteTargetConfig{Name: "all", Path: tmpDir})
	assert.Equal(t, filepath.Join(tmpDir, "new.db"), p.restorePath("new"))
}

func TestRestorePathForSingleFileTarget(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "app.db")
	touch(t, path)

	p := NewProvider(config.SQLiteTargetConfig{Name: "app", Path: path})
	assert.Equal(t, filepath.Join(tmpDir, "app_restored.db"), p.restorePath("app_restored"))
}

func TestRestoreSingleFileTargetUnderNewName(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "app.db")
	touch(t, path)

	dumpText := "BEGIN TRANSACTION;\nCREATE TABLE t (id INTEGER);\nINSERT INTO \"t\" VALUES(1);\nCOMMIT;\n"
	p := NewProvider(config.SQLiteTargetConfig{Name: "app", Path: path})
	err := p.Restore(context.Background(), "app_restored", strings.NewReader(dumpText))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(tmpDir, "app_restored.db"))
	assert.NoError(t, err)
}
