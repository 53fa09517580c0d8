//go:build sqlite

package storage

import (
	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs in a single SQLite file.
type SQLiteStore struct {
	sqlStore
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{sqlStore: sqlStore{dialect: sqliteDialect, dsn: path}}
}
