package sqldb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ValentinKolb/hkv/lib/db"
)

const sqliteBusyTimeout = 5000 // milliseconds

// Dialect holds everything that differs between the supported SQL databases.
type Dialect struct {
	Impl         db.Implementation
	maxOpenConns int
	open         func(dsn string) (*sql.DB, error)
	quote        func(ident string) string
	placeholder  func(n int) string // n starts at 1
	valueType    string
	upsertTail   string // appended to the INSERT statement
	keepTail     string // like upsertTail but leaves expire_at of the existing row alone
	indexIfNot   bool   // supports CREATE INDEX IF NOT EXISTS
}

var (
	// SQLite uses the pure Go driver modernc.org/sqlite.
	// A plain path is opened in WAL mode with a busy timeout.
	SQLite = &Dialect{
		Impl:         db.ImplSQLite,
		maxOpenConns: 1,
		open: func(dsn string) (*sql.DB, error) {
			if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
				dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dsn, sqliteBusyTimeout)
			}
			return sql.Open("sqlite", dsn)
		},
		quote:       doubleQuote,
		placeholder: func(int) string { return "?" },
		valueType:   "TEXT",
		upsertTail: `ON CONFLICT (id) DO UPDATE SET
			value = excluded.value, updated_at = excluded.updated_at, expire_at = excluded.expire_at`,
		keepTail:   `ON CONFLICT (id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		indexIfNot: true,
	}

	// Postgres uses pgx through its database/sql adapter.
	Postgres = &Dialect{
		Impl:         db.ImplPostgres,
		maxOpenConns: 10,
		open: func(dsn string) (*sql.DB, error) {
			cfg, err := pgx.ParseConfig(dsn)
			if err != nil {
				return nil, err
			}
			return stdlib.OpenDB(*cfg), nil
		},
		quote:       doubleQuote,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		valueType:   "TEXT",
		upsertTail: `ON CONFLICT (id) DO UPDATE SET
			value = excluded.value, updated_at = excluded.updated_at, expire_at = excluded.expire_at`,
		keepTail:   `ON CONFLICT (id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		indexIfNot: true,
	}

	// MySQL uses go-sql-driver/mysql. The connection reports found (not changed)
	// rows, so an UPDATE writing an identical value still counts as a hit.
	MySQL = &Dialect{
		Impl:         db.ImplMySQL,
		maxOpenConns: 10,
		open: func(dsn string) (*sql.DB, error) {
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return nil, err
			}
			cfg.ClientFoundRows = true
			connector, err := mysql.NewConnector(cfg)
			if err != nil {
				return nil, err
			}
			return sql.OpenDB(connector), nil
		},
		quote:       func(ident string) string { return "`" + ident + "`" },
		placeholder: func(int) string { return "?" },
		valueType:   "LONGTEXT",
		upsertTail: `ON DUPLICATE KEY UPDATE
			value = VALUES(value), updated_at = VALUES(updated_at), expire_at = VALUES(expire_at)`,
		keepTail: `ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`,
		indexIfNot: false,
	}
)

// DialectFor returns the dialect for an implementation name
func DialectFor(impl db.Implementation) (*Dialect, bool) {
	switch impl {
	case db.ImplSQLite:
		return SQLite, true
	case db.ImplPostgres:
		return Postgres, true
	case db.ImplMySQL:
		return MySQL, true
	default:
		return nil, false
	}
}

func doubleQuote(ident string) string { return `"` + ident + `"` }

// --------------------------------------------------------------------------
// Statements
// --------------------------------------------------------------------------

// statements are built once per table (names are validated before)
type statements struct {
	createTable string
	createIndex string
	selectAll   string
	selectOne   string
	update      string
	upsert      string
	updateKeep  string
	upsertKeep  string
	purgeOne    string
	purgeAll    string
	deleteOne   string
	deleteAll   string
}

func (d *Dialect) statements(table string) statements {
	t := d.quote(table)
	p := d.placeholder
	live := fmt.Sprintf("(expire_at IS NULL OR expire_at > %s)", p(1))

	indexName := d.quote("idx_" + table + "_expire_at")
	createIndex := fmt.Sprintf("CREATE INDEX %s ON %s (expire_at)", indexName, t)
	if d.indexIfNot {
		createIndex = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (expire_at)", indexName, t)
	}

	return statements{
		createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			value %s NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			expire_at BIGINT NULL
		)`, t, d.valueType),
		createIndex: createIndex,
		selectAll:   fmt.Sprintf("SELECT id, value FROM %s WHERE %s ORDER BY created_at, id", t, live),
		selectOne:   fmt.Sprintf("SELECT value FROM %s WHERE %s AND id = %s", t, live, p(2)),
		update: fmt.Sprintf("UPDATE %s SET value = %s, updated_at = %s, expire_at = %s WHERE id = %s",
			t, p(1), p(2), p(3), p(4)),
		upsert: fmt.Sprintf("INSERT INTO %s (id, value, created_at, updated_at, expire_at) VALUES (%s, %s, %s, %s, %s) %s",
			t, p(1), p(2), p(3), p(4), p(5), d.upsertTail),
		updateKeep: fmt.Sprintf("UPDATE %s SET value = %s, updated_at = %s WHERE id = %s",
			t, p(1), p(2), p(3)),
		upsertKeep: fmt.Sprintf("INSERT INTO %s (id, value, created_at, updated_at, expire_at) VALUES (%s, %s, %s, %s, NULL) %s",
			t, p(1), p(2), p(3), p(4), d.keepTail),
		purgeOne:  fmt.Sprintf("DELETE FROM %s WHERE expire_at IS NOT NULL AND expire_at <= %s AND id = %s", t, p(1), p(2)),
		purgeAll:  fmt.Sprintf("DELETE FROM %s WHERE expire_at IS NOT NULL AND expire_at <= %s", t, p(1)),
		deleteOne: fmt.Sprintf("DELETE FROM %s WHERE id = %s", t, p(1)),
		deleteAll: fmt.Sprintf("DELETE FROM %s", t),
	}
}
