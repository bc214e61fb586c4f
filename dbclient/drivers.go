package dbclient

import (
	// database/sql drivers; postgres goes through pgx's stdlib adapter
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

// sqlDriverNames maps configured drivers to registered database/sql names
var sqlDriverNames = map[string]string{
	"postgres": "pgx",
	"mysql":    "mysql",
	"sqlite3":  "sqlite3",
	"duckdb":   "duckdb",
}
