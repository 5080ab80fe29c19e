// Package dump produces a replayable SQL snapshot of a SQLite database. It
// walks the schema catalog and every table's rows through an already-open
// database/sql connection and writes a linear sequence of statements that,
// executed against an empty database, reconstructs schema and data.
//
// The whole dump is wrapped in one transaction. Schema objects come first in
// creation order, then table data in the same order, then triggers, so no
// trigger fires while the data is re-inserted. The operation is read-only,
// single-pass and fail-fast: any error aborts the remaining dump and the
// caller must discard whatever was already written to the sink.
package dump

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
)

// Options controls optional parts of the emitted dump.
type Options struct {
	// ForeignKeysOff prefixes the dump with PRAGMA foreign_keys=OFF; so a
	// replay is not tripped up by the insertion order of referencing rows.
	ForeignKeysOff bool
}

// Dumper writes dumps of a single database. The connection is borrowed: the
// Dumper never closes it, and the caller is responsible for keeping
// concurrent writers away for the duration of a dump.
type Dumper struct {
	db   *sql.DB
	opts Options
}

// NewDumper creates a Dumper over an open connection.
func NewDumper(db *sql.DB, opts ...Options) *Dumper {
	d := &Dumper{db: db}
	if len(opts) > 0 {
		d.opts = opts[0]
	}
	return d
}

// Dump writes a complete dump of the database to w. See the package comment
// for the statement ordering contract. Errors are *CatalogError, *RowError
// or *WriteError, each wrapping the underlying cause.
func Dump(ctx context.Context, db *sql.DB, w io.Writer, opts ...Options) error {
	return NewDumper(db, opts...).Dump(ctx, w)
}

// Dump writes a complete dump of the database to w.
func (d *Dumper) Dump(ctx context.Context, w io.Writer) error {
	if d.opts.ForeignKeysOff {
		if err := writeLine(w, "PRAGMA foreign_keys=OFF;"); err != nil {
			return err
		}
	}
	if err := writeLine(w, "BEGIN TRANSACTION;"); err != nil {
		return err
	}

	entries, err := readCatalog(ctx, d.db)
	if err != nil {
		return &CatalogError{Err: err}
	}

	// Schema first: tables, indexes and views in creation order.
	for _, e := range entries {
		if e.Kind == KindTrigger {
			continue
		}
		if err := writeLine(w, e.SQL+";"); err != nil {
			return err
		}
	}

	// Then data, table by table in the same order.
	for _, e := range entries {
		if e.Kind != KindTable {
			continue
		}
		if err := d.dumpTableRows(ctx, w, e.Name); err != nil {
			return err
		}
	}

	if err := d.dumpSequence(ctx, w); err != nil {
		return err
	}

	// Triggers last so none of them fired during the inserts above.
	for _, e := range entries {
		if e.Kind != KindTrigger {
			continue
		}
		if err := writeLine(w, e.SQL+";"); err != nil {
			return err
		}
	}

	return writeLine(w, "COMMIT;")
}

func (d *Dumper) dumpTableRows(ctx context.Context, w io.Writer, table string) error {
	cols, err := tableColumns(ctx, d.db, table)
	if err != nil {
		return &RowError{Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	rows, err := d.db.QueryContext(ctx, "SELECT "+strings.Join(quoted, ", ")+" FROM "+quoteIdent(table))
	if err != nil {
		return &RowError{Table: table, Err: err}
	}
	defer rows.Close()

	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	var sb strings.Builder
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return &RowError{Table: table, Err: err}
		}

		sb.Reset()
		sb.WriteString("INSERT INTO ")
		sb.WriteString(quoteIdent(table))
		sb.WriteString(" VALUES(")
		for i, rv := range raw {
			v, err := FromSQL(rv)
			if err != nil {
				return &RowError{Table: table, Err: err}
			}
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(v.Literal())
		}
		sb.WriteString(");")

		if err := writeLine(w, sb.String()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &RowError{Table: table, Err: err}
	}
	return nil
}

// dumpSequence re-seeds AUTOINCREMENT counters. sqlite_sequence is internal
// and excluded from the catalog walk, but its contents are data: without the
// re-seed, replayed tables would hand out already-used rowids.
func (d *Dumper) dumpSequence(ctx context.Context, w io.Writer) error {
	const probe = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`
	var name string
	if err := d.db.QueryRowContext(ctx, probe).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return &CatalogError{Err: err}
	}

	if err := writeLine(w, "DELETE FROM sqlite_sequence;"); err != nil {
		return err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT name, seq FROM sqlite_sequence")
	if err != nil {
		return &RowError{Table: "sqlite_sequence", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table string
			seq   int64
		)
		if err := rows.Scan(&table, &seq); err != nil {
			return &RowError{Table: "sqlite_sequence", Err: err}
		}
		tv := Value{Kind: Text, Str: table}
		sv := Value{Kind: Integer, Int: seq}
		if err := writeLine(w, "INSERT INTO sqlite_sequence VALUES("+tv.Literal()+","+sv.Literal()+");"); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &RowError{Table: "sqlite_sequence", Err: err}
	}
	return nil
}

func writeLine(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}
