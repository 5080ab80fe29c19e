package dump

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ObjectKind classifies a schema catalog entry.
type ObjectKind int

const (
	// KindTable is an ordinary table.
	KindTable ObjectKind = iota
	// KindIndex is an explicitly created index.
	KindIndex
	// KindView is a view.
	KindView
	// KindTrigger is a trigger.
	KindTrigger
)

func (k ObjectKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindIndex:
		return "index"
	case KindView:
		return "view"
	case KindTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("objectkind(%d)", int(k))
	}
}

// CatalogEntry is one schema object read from sqlite_master. SQL holds the
// engine's own definition text, replayed verbatim. CreationOrder is the
// catalog rowid, which preserves dependency order (tables before the indexes
// that reference them).
type CatalogEntry struct {
	Name          string
	Kind          ObjectKind
	SQL           string
	CreationOrder int64
}

// catalogQuery skips internal objects: autogenerated indexes and the like
// carry NULL sql, and names with the engine-reserved sqlite_ prefix must not
// be recreated by a replay. sqlite_sequence is handled separately.
const catalogQuery = `SELECT name, type, sql, rowid FROM sqlite_master WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%' ORDER BY rowid`

func readCatalog(ctx context.Context, db *sql.DB) ([]CatalogEntry, error) {
	rows, err := db.QueryContext(ctx, catalogQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var (
			name, typ, ddl string
			order          int64
		)
		if err := rows.Scan(&name, &typ, &ddl, &order); err != nil {
			return nil, err
		}
		kind, err := parseObjectKind(typ)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CatalogEntry{
			Name:          name,
			Kind:          kind,
			SQL:           ddl,
			CreationOrder: order,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseObjectKind(typ string) (ObjectKind, error) {
	switch typ {
	case "table":
		return KindTable, nil
	case "index":
		return KindIndex, nil
	case "view":
		return KindView, nil
	case "trigger":
		return KindTrigger, nil
	default:
		return 0, fmt.Errorf("unrecognized catalog object type %q", typ)
	}
}

// tableColumns returns the column names of a table in declaration order, from
// PRAGMA table_info. An explicit column list keeps INSERT positions stable.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int64
			name    string
			typ     string
			notNull int64
			dflt    sql.NullString
			pk      int64
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// quoteIdent double-quotes an identifier unconditionally. Keywords are legal
// SQLite table and column names, so a bare name is only safe after a check
// against the full keyword list; always quoting sidesteps that, and matches
// the sqlite3 shell's .dump output.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
