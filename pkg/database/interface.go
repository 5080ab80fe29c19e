// Package database defines the provider abstraction between the backup
// manager and the database engine it protects.
package database

import (
	"context"
	"io"
	"time"
)

// Provider represents a set of databases the service can back up and
// restore.
type Provider interface {
	// Name returns the provider's target name from configuration
	Name() string

	// Connect prepares the provider for use
	Connect(ctx context.Context) error

	// Close releases any resources held by the provider
	Close() error

	// ListDatabases returns the databases this provider manages
	ListDatabases(ctx context.Context) ([]string, error)

	// Backup writes a replayable dump of the named database to output.
	// The output is borrowed: the provider never closes it.
	Backup(ctx context.Context, database string, output io.Writer, options BackupOptions) error

	// Restore replays a dump from input into a fresh database with the
	// given name
	Restore(ctx context.Context, database string, input io.Reader) error

	// Ping verifies the provider's databases are reachable
	Ping(ctx context.Context) error
}

// BackupOptions contains options for the backup operation
type BackupOptions struct {
	// ForeignKeysOff prefixes the dump with a pragma disabling foreign key
	// enforcement so replay order cannot violate references
	ForeignKeysOff bool

	// Timestamp is the timestamp recorded for the backup
	Timestamp time.Time
}
