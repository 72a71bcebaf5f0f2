package storage

import (
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var postgresDialect = dialect{
	name:        "postgres",
	driver:      "pgx",
	payloadType: "BYTEA",
	bind:        func(n int) string { return "$" + strconv.Itoa(n) },
}

// PostgresStore keeps the run index in Postgres through pgx's database/sql
// driver.
type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{sqlStore: sqlStore{dialect: postgresDialect, dsn: dsn}}
}
