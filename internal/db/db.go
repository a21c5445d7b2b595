package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// We need to configure a few options to make sure SQLite works well
// with our app:
// - WAL mode so that reads and writes don't block each other.
// - A busy timeout, specifying the duration a connection will wait for a lock.
// - Foreign keys are enforced.
// - Immediate transactions to prevent locking issues on upgrade.
const options = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"

// OpenSQLite opens a pool of SQLite3 connections for the provided file.
//
// The pool is restricted to a single connection that is never closed.
// SQLite only supports one writer at a time, serializing access in the
// pool beats failing with SQLITE_BUSY.
func OpenSQLite(dbFile string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbFile+options)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return db, nil
}
