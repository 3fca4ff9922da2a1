package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB is the direct Postgres handle every repository in this package shares,
// adapted from the teacher's DatabaseClient into a resource-scoped handle
// instead of a global.
type DB struct {
	sqlDB *sql.DB
}

func Open(connectionString string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &DB{sqlDB: sqlDB}, nil
}

func (d *DB) Close() error {
	return d.sqlDB.Close()
}

func (d *DB) SQL() *sql.DB {
	return d.sqlDB
}
