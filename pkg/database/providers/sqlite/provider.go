// Package sqlite implements the database provider for SQLite files using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/supporttools/SQLiteGuard/pkg/config"
	"github.com/supporttools/SQLiteGuard/pkg/database"
	"github.com/supporttools/SQLiteGuard/pkg/dump"
	"github.com/supporttools/SQLiteGuard/pkg/restore"
	_ "modernc.org/sqlite" // SQLite driver
)

const driverName = "sqlite"

// Provider implements the database.Provider interface for a configured
// SQLite target: either a single database file or a directory of them.
type Provider struct {
	target config.SQLiteTargetConfig
}

// NewProvider creates a provider for one configured target.
func NewProvider(target config.SQLiteTargetConfig) *Provider {
	return &Provider{target: target}
}

// Name returns the configured target name
func (p *Provider) Name() string {
	return p.target.Name
}

// Connect verifies the target path exists. SQLite needs no server
// connection; per-database handles are opened on demand.
func (p *Provider) Connect(ctx context.Context) error {
	if _, err := os.Stat(p.target.Path); err != nil {
		return errors.Wrapf(err, "target %s path not accessible", p.target.Name)
	}
	return nil
}

// Close releases provider resources. Nothing is held between operations.
func (p *Provider) Close() error {
	return nil
}

// ListDatabases returns the database names under this target, filtered by
// the include/exclude lists. Names are file basenames without extension.
func (p *Provider) ListDatabases(ctx context.Context) ([]string, error) {
	paths, err := p.databaseFiles()
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool)
	for _, db := range p.target.IncludeDatabases {
		include[db] = true
	}
	exclude := make(map[string]bool)
	for _, db := range p.target.ExcludeDatabases {
		exclude[db] = true
	}

	var names []string
	for name := range paths {
		if len(include) > 0 && !include[name] {
			continue
		}
		if exclude[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Backup opens the database read-only and streams a dump to output.
func (p *Provider) Backup(ctx context.Context, dbName string, output io.Writer, options database.BackupOptions) error {
	path, err := p.databasePath(dbName)
	if err != nil {
		return err
	}

	db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
	if err != nil {
		return errors.Wrapf(err, "opening %s read-only", path)
	}
	defer db.Close()

	return dump.Dump(ctx, db, output, dump.Options{ForeignKeysOff: options.ForeignKeysOff})
}

// Restore replays a dump into a new database file. The file must not exist
// yet: restoring over live data is refused.
func (p *Provider) Restore(ctx context.Context, dbName string, input io.Reader) error {
	path := p.restorePath(dbName)
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("refusing to restore over existing database %s", path)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer db.Close()

	if err := restore.Restore(ctx, db, input); err != nil {
		// A partial restore is unusable; remove the fragment.
		db.Close()
		os.Remove(path)
		return err
	}
	return nil
}

// Ping opens each managed database read-only and verifies it responds.
func (p *Provider) Ping(ctx context.Context) error {
	names, err := p.ListDatabases(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		path, err := p.databasePath(name)
		if err != nil {
			return err
		}
		db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		err = db.PingContext(ctx)
		db.Close()
		if err != nil {
			return errors.Wrapf(err, "pinging %s", path)
		}
	}
	return nil
}

// databaseFiles maps database names to file paths for this target.
func (p *Provider) databaseFiles() (map[string]string, error) {
	info, err := os.Stat(p.target.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "target %s", p.target.Name)
	}

	paths := make(map[string]string)
	if !info.IsDir() {
		paths[databaseName(p.target.Path)] = p.target.Path
		return paths, nil
	}

	pattern := p.target.Pattern
	if pattern == "" {
		pattern = "*.db"
	}
	matches, err := filepath.Glob(filepath.Join(p.target.Path, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "globbing target %s", p.target.Name)
	}
	for _, m := range matches {
		paths[databaseName(m)] = m
	}
	return paths, nil
}

func (p *Provider) databasePath(dbName string) (string, error) {
	paths, err := p.databaseFiles()
	if err != nil {
		return "", err
	}
	path, ok := paths[dbName]
	if !ok {
		return "", errors.Errorf("target %s has no database named %s", p.target.Name, dbName)
	}
	return path, nil
}

// restorePath is where a restored database lands: under the target directory
// for directory targets, as a sibling of the configured file otherwise. The
// file is named after the requested database in both cases, so restoring
// under a fresh name never collides with the live file.
func (p *Provider) restorePath(dbName string) string {
	info, err := os.Stat(p.target.Path)
	if err == nil && info.IsDir() {
		ext := ".db"
		if p.target.Pattern != "" && strings.HasPrefix(filepath.Ext(p.target.Pattern), ".") {
			ext = filepath.Ext(p.target.Pattern)
		}
		return filepath.Join(p.target.Path, dbName+ext)
	}
	ext := filepath.Ext(p.target.Path)
	if ext == "" {
		ext = ".db"
	}
	return filepath.Join(filepath.Dir(p.target.Path), dbName+ext)
}

func databaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
