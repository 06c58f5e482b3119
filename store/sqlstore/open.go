package sqlstore

import (
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/store"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DriverName returns the database/sql driver registered for dialect.
func DriverName(dialect pupdeploy.Dialect) (string, error) {
	switch dialect {
	case pupdeploy.DialectMySQL:
		return "mysql", nil
	case pupdeploy.DialectPostgres:
		return "postgres", nil
	case pupdeploy.DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("%w: unknown dialect %q", pupdeploy.ErrConfiguration, dialect)
	}
}

// DSN builds a connection string for the database on host.
// For sqlite3 the database name is the file path and host is ignored.
func DSN(dialect pupdeploy.Dialect, host string, creds store.Credentials) (string, error) {
	switch dialect {
	case pupdeploy.DialectMySQL:
		cfg := mysql.NewConfig()
		cfg.User = creds.User
		cfg.Passwd = creds.Password
		cfg.Net = "tcp"
		cfg.Addr = withDefaultPort(host, "3306")
		cfg.DBName = creds.Database
		cfg.MultiStatements = true
		return cfg.FormatDSN(), nil
	case pupdeploy.DialectPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(creds.User, creds.Password),
			Host:     withDefaultPort(host, "5432"),
			Path:     "/" + creds.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case pupdeploy.DialectSQLite:
		return creds.Database, nil
	default:
		return "", fmt.Errorf("%w: unknown dialect %q", pupdeploy.ErrConfiguration, dialect)
	}
}

// Open opens a connection pool for the dialect.
func Open(dialect pupdeploy.Dialect, dsn string) (*sql.DB, error) {
	driver, err := DriverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	return db, nil
}

// Conn is a Store that owns its connection pool.
type Conn struct {
	*Store
}

// Compile-time check that Conn implements TrackingStore and io.Closer.
var (
	_ store.TrackingStore = (*Conn)(nil)
	_ io.Closer           = (*Conn)(nil)
)

// Connect opens a connection pool for cfg.Dialect and returns a Store on it.
// Close releases the pool.
func Connect(dsn string, cfg Config) (*Conn, error) {
	db, err := Open(cfg.Dialect, dsn)
	if err != nil {
		return nil, err
	}

	s, err := New(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Conn{Store: s}, nil
}

// Close closes the connection pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

func withDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
