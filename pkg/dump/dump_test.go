package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sequenceProbe = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`

func catalogColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "type", "sql", "rowid"})
}

func tableInfoColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"})
}

func expectNoSequence(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(sequenceProbe)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
}

// TestDumpEmptyDatabase verifies that a database with no objects dumps as
// exactly the transaction markers.
func TestDumpEmptyDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(catalogColumns())
	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	assert.Equal(t, "BEGIN TRANSACTION;\nCOMMIT;\n", buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDumpSchemaAndData verifies the full emission order: schema objects in
// creation order, then per-table rows, then the sequence re-seed, then
// triggers, inside one transaction.
func TestDumpSchemaAndData(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	const (
		usersDDL   = "CREATE TABLE users (\n    id INTEGER PRIMARY KEY AUTOINCREMENT,\n    username TEXT NOT NULL\n)"
		indexDDL   = "CREATE INDEX idx_users_username ON users(username)"
		viewDDL    = "CREATE VIEW active_users AS SELECT username FROM users"
		triggerDDL = "CREATE TRIGGER users_audit AFTER INSERT ON users BEGIN UPDATE users SET username = username; END"
	)

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().
			AddRow("users", "table", usersDDL, int64(1)).
			AddRow("idx_users_username", "index", indexDDL, int64(2)).
			AddRow("active_users", "view", viewDDL, int64(3)).
			AddRow("users_audit", "trigger", triggerDDL, int64(4)))

	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("users")`)).WillReturnRows(
		tableInfoColumns().
			AddRow(int64(0), "id", "INTEGER", int64(0), nil, int64(1)).
			AddRow(int64(1), "username", "TEXT", int64(1), nil, int64(0)))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "username" FROM "users"`)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "username"}).
			AddRow(int64(1), "alice").
			AddRow(int64(2), "bob"))

	mock.ExpectQuery(regexp.QuoteMeta(sequenceProbe)).WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow("sqlite_sequence"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, seq FROM sqlite_sequence")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "seq"}).AddRow("users", int64(2)))

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	expected := "BEGIN TRANSACTION;\n" +
		usersDDL + ";\n" +
		indexDDL + ";\n" +
		viewDDL + ";\n" +
		"INSERT INTO \"users\" VALUES(1,'alice');\n" +
		"INSERT INTO \"users\" VALUES(2,'bob');\n" +
		"DELETE FROM sqlite_sequence;\n" +
		"INSERT INTO sqlite_sequence VALUES('users',2);\n" +
		triggerDDL + ";\n" +
		"COMMIT;\n"
	assert.Equal(t, expected, buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDumpValueFormatting exercises each storage class through a row dump.
func TestDumpValueFormatting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().AddRow("samples", "table", "CREATE TABLE samples (a, b, c, d, e)", int64(1)))

	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("samples")`)).WillReturnRows(
		tableInfoColumns().
			AddRow(int64(0), "a", "", int64(0), nil, int64(0)).
			AddRow(int64(1), "b", "", int64(0), nil, int64(0)).
			AddRow(int64(2), "c", "", int64(0), nil, int64(0)).
			AddRow(int64(3), "d", "", int64(0), nil, int64(0)).
			AddRow(int64(4), "e", "", int64(0), nil, int64(0)))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "a", "b", "c", "d", "e" FROM "samples"`)).WillReturnRows(
		sqlmock.NewRows([]string{"a", "b", "c", "d", "e"}).
			AddRow(nil, int64(-42), float64(1.5), "it's", []byte{0xde, 0xad}))

	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "INSERT INTO \"samples\" VALUES(NULL,-42,1.5,'it''s',X'dead');\n")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDumpForeignKeysOff verifies the optional pragma prefix.
func TestDumpForeignKeysOff(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(catalogColumns())
	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf, Options{ForeignKeysOff: true})
	require.NoError(t, err)

	assert.Equal(t, "PRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\nCOMMIT;\n", buf.String())
}

// TestDumpCatalogError verifies that a failed catalog read surfaces as a
// CatalogError and that nothing past the begin marker reaches the sink.
func TestDumpCatalogError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cause := errors.New("database is locked")
	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnError(cause)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.Error(t, err)

	var catErr *CatalogError
	require.True(t, errors.As(err, &catErr))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "BEGIN TRANSACTION;\n", buf.String())
}

// TestDumpRowError verifies that a row-streaming failure names the table.
func TestDumpRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().AddRow("orders", "table", "CREATE TABLE orders (id INTEGER)", int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("orders")`)).WillReturnRows(
		tableInfoColumns().AddRow(int64(0), "id", "INTEGER", int64(0), nil, int64(0)))

	cause := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "orders"`)).WillReturnError(cause)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.Error(t, err)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, "orders", rowErr.Table)
	assert.True(t, errors.Is(err, cause))
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("sink closed")
}

// TestDumpWriteError verifies that sink failures surface as WriteError.
func TestDumpWriteError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = Dump(context.Background(), db, failingWriter{})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
}

// TestDumpEmptyTable verifies that a table with no rows dumps as its schema
// statement alone, with no INSERTs.
func TestDumpEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	const ddl = "CREATE TABLE audit_log (id INTEGER PRIMARY KEY, entry TEXT)"
	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().AddRow("audit_log", "table", ddl, int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("audit_log")`)).WillReturnRows(
		tableInfoColumns().
			AddRow(int64(0), "id", "INTEGER", int64(0), nil, int64(1)).
			AddRow(int64(1), "entry", "TEXT", int64(0), nil, int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "entry" FROM "audit_log"`)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "entry"}))
	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	assert.Equal(t, "BEGIN TRANSACTION;\n"+ddl+";\nCOMMIT;\n", buf.String())
	assert.NotContains(t, buf.String(), "INSERT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDumpKeywordNames verifies that tables and columns named after SQL
// keywords survive the row queries and the emitted INSERTs.
func TestDumpKeywordNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().AddRow("order", "table", `CREATE TABLE "order" (id INTEGER, "group" TEXT)`, int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("order")`)).WillReturnRows(
		tableInfoColumns().
			AddRow(int64(0), "id", "INTEGER", int64(0), nil, int64(0)).
			AddRow(int64(1), "group", "TEXT", int64(0), nil, int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "group" FROM "order"`)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "group"}).AddRow(int64(1), "a"))
	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "INSERT INTO \"order\" VALUES(1,'a');\n")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestDumpQuotedTableName verifies identifier quoting for names that need it.
func TestDumpQuotedTableName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(catalogQuery)).WillReturnRows(
		catalogColumns().AddRow("order items", "table", `CREATE TABLE "order items" (id INTEGER)`, int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("order items")`)).WillReturnRows(
		tableInfoColumns().AddRow(int64(0), "id", "INTEGER", int64(0), nil, int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "order items"`)).WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	expectNoSequence(mock)

	var buf bytes.Buffer
	err = Dump(context.Background(), db, &buf)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "INSERT INTO \"order items\" VALUES(7);\n")
}
