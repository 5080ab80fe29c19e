package restore

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	sc := NewScanner(strings.NewReader(input))
	var stmts []string
	for {
		stmt, err := sc.Next()
		if err == io.EOF {
			return stmts
		}
		require.NoError(t, err)
		stmts = append(stmts, stmt)
	}
}

func TestScannerSimpleStatements(t *testing.T) {
	stmts := scanAll(t, "BEGIN TRANSACTION;\nCREATE TABLE t (id INTEGER);\nCOMMIT;\n")
	assert.Equal(t, []string{
		"BEGIN TRANSACTION;",
		"CREATE TABLE t (id INTEGER);",
		"COMMIT;",
	}, stmts)
}

func TestScannerSemicolonInString(t *testing.T) {
	stmts := scanAll(t, "INSERT INTO t VALUES('a;b','it''s');\n")
	require.Len(t, stmts, 1)
	assert.Equal(t, "INSERT INTO t VALUES('a;b','it''s');", stmts[0])
}

func TestScannerQuotedIdentifiers(t *testing.T) {
	stmts := scanAll(t, `CREATE TABLE "odd;name" (x);`+"\nSELECT [y;z] FROM `a;b`;")
	require.Len(t, stmts, 2)
	assert.Equal(t, `CREATE TABLE "odd;name" (x);`, stmts[0])
}

func TestScannerTriggerBody(t *testing.T) {
	trigger := "CREATE TRIGGER audit AFTER INSERT ON t\nBEGIN\n  UPDATE t SET n = n + 1;\n  SELECT CASE WHEN new.n > 1 THEN RAISE(ABORT, 'dup') END;\nEND;"
	stmts := scanAll(t, "CREATE TABLE t (n INTEGER);\n"+trigger+"\nCOMMIT;\n")
	require.Len(t, stmts, 3)
	assert.Equal(t, trigger, stmts[1])
	assert.Equal(t, "COMMIT;", stmts[2])
}

func TestScannerTempTrigger(t *testing.T) {
	trigger := "CREATE TEMP TRIGGER tt AFTER DELETE ON t BEGIN INSERT INTO log VALUES(old.id); END;"
	stmts := scanAll(t, trigger+"\n")
	require.Len(t, stmts, 1)
	assert.Equal(t, trigger, stmts[0])
}

func TestScannerComments(t *testing.T) {
	input := "-- header; with semicolon\nSELECT 1;\n/* block; comment */SELECT 2;\n"
	stmts := scanAll(t, input)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasSuffix(stmts[0], "SELECT 1;"))
	assert.Equal(t, "SELECT 2;", stmts[1])
}

func TestScannerTrailingWithoutTerminator(t *testing.T) {
	stmts := scanAll(t, "SELECT 1;\nSELECT 2")
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2"}, stmts)
}

func TestScannerEmptyInput(t *testing.T) {
	assert.Empty(t, scanAll(t, ""))
	assert.Empty(t, scanAll(t, "  \n\t"))
}

// TestRestoreReplaysStatements verifies statements are executed in order.
func TestRestoreReplaysStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dumpText := "BEGIN TRANSACTION;\n" +
		"CREATE TABLE users (id INTEGER, name TEXT);\n" +
		"INSERT INTO users VALUES(1,'alice');\n" +
		"COMMIT;\n"

	mock.ExpectExec(regexp.QuoteMeta("BEGIN TRANSACTION;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE users (id INTEGER, name TEXT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users VALUES(1,'alice');")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("COMMIT;")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = Restore(context.Background(), db, strings.NewReader(dumpText))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRestoreStopsOnError verifies the first failing statement aborts the
// replay and is identified in the error.
func TestRestoreStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dumpText := "BEGIN TRANSACTION;\nINSERT INTO missing VALUES(1);\nCOMMIT;\n"

	mock.ExpectExec(regexp.QuoteMeta("BEGIN TRANSACTION;")).WillReturnResult(sqlmock.NewResult(0, 0))
	cause := errors.New("no such table: missing")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO missing VALUES(1);")).WillReturnError(cause)

	err = Restore(context.Background(), db, strings.NewReader(dumpText))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "statement 2")
	assert.Contains(t, err.Error(), "INSERT INTO missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}
