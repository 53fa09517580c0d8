package storage

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists runs in PostgreSQL through the pgx driver.
type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{sqlStore: sqlStore{dialect: postgresDialect, dsn: dsn}}
}
