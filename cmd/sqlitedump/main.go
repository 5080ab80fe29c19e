// sqlitedump is a command-line tool that writes a replayable SQL dump of a
// SQLite database file, or replays such a dump into a new database.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/supporttools/SQLiteGuard/pkg/dump"
	"github.com/supporttools/SQLiteGuard/pkg/restore"
)

var (
	output      = flag.String("o", "", "Write the dump to this file instead of stdout")
	restoreMode = flag.Bool("restore", false, "Replay a dump from stdin into the named database file")
	keepFKs     = flag.Bool("keep-foreign-keys", false, "Do not emit the pragma disabling foreign key enforcement")
	timeout     = flag.Duration("timeout", 10*time.Minute, "Abort the operation after this long")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] DATABASE\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Dumps DATABASE as replayable SQL, or with -restore creates DATABASE\n")
		fmt.Fprintf(os.Stderr, "from a dump read on stdin.\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	dbPath := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *restoreMode {
		if err := runRestore(ctx, dbPath); err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		return
	}

	if err := runDump(ctx, dbPath); err != nil {
		log.Fatalf("Dump failed: %v", err)
	}
}

func runDump(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer db.Close()

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", *output, err)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	if err := dump.Dump(ctx, db, w, dump.Options{ForeignKeysOff: !*keepFKs}); err != nil {
		return err
	}
	return w.Flush()
}

func runRestore(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); err == nil {
		return fmt.Errorf("refusing to restore over existing database %s", dbPath)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dbPath, err)
	}
	defer db.Close()

	if err := restore.Restore(ctx, db, bufio.NewReader(os.Stdin)); err != nil {
		db.Close()
		os.Remove(dbPath)
		return err
	}
	return nil
}
