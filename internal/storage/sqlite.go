package storage

import (
	_ "modernc.org/sqlite" // register the pure-Go sqlite driver
)

var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	payloadType: "BLOB",
	// Workers write concurrently; one connection avoids SQLITE_BUSY.
	maxOpenConns: 1,
	bind:         func(int) string { return "?" },
}

type SQLiteStore struct {
	sqlStore
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{sqlStore: sqlStore{dialect: sqliteDialect, dsn: path}}
}
