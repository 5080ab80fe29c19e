// Package restore replays a dump produced by pkg/dump against an empty
// database, reconstructing schema and data. It is the inverse half of the
// dump/restore pair: dump walks the catalog out, restore executes the
// statement stream back in.
package restore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// Restore executes every statement in r, in order, against db. The target is
// expected to be empty; no attempt is made to drop or reconcile existing
// objects. Execution stops at the first failing statement, reported with its
// position and leading text.
func Restore(ctx context.Context, db *sql.DB, r io.Reader) error {
	sc := NewScanner(r)
	for i := 1; ; i++ {
		stmt, err := sc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("restore: reading dump: %w", err)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("restore: statement %d (%s): %w", i, snippet(stmt), err)
		}
	}
}

// snippet shortens a statement for error messages.
func snippet(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 60 {
		return stmt[:57] + "..."
	}
	return stmt
}
