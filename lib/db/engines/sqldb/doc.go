// Package sqldb implements db.Driver for relational databases through
// database/sql.
//
// Three dialects are provided:
//   - SQLite: the pure Go driver modernc.org/sqlite (embedded, no cgo). Plain
//     file paths are opened in WAL mode with a busy timeout.
//   - Postgres: github.com/jackc/pgx/v5 via its stdlib adapter.
//   - MySQL: github.com/go-sql-driver/mysql.
//
// Each table is created on Prepare with the layout
//
//	id VARCHAR(255) PRIMARY KEY, value TEXT, created_at BIGINT, updated_at BIGINT, expire_at BIGINT NULL
//
// where value holds the encoded JSON value and all times are unix milliseconds.
// An index on expire_at is created when possible; failing to create it is
// logged and ignored. Rows whose expire_at passed are filtered out on read and
// removed lazily by the delete operations.
//
// Table names are validated (see db.ValidateTableName) before they are
// interpolated into statements.
package sqldb
