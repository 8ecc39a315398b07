package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Driver names a registered database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite"
)

// DefaultSQLitePath is used when no PostgreSQL settings are present.
const DefaultSQLitePath = "./storage.db"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when inserting a duplicate key.
	ErrAlreadyExists = errors.New("record already exists")
)

// DB wraps the storage connection for pages, history and knowledge bases.
type DB struct {
	client *sql.DB
	config *Config
}

// GetConfig returns the original connection settings
func (d *DB) GetConfig() *Config {
	return d.config
}

// Config holds connection configuration for either backend.
type Config struct {
	Driver       Driver        // pgx or sqlite
	Host         string        // Database host
	Port         string        // Database port
	User         string        // Database user
	Password     string        // Database password
	Database     string        // Database name
	SSLMode      string        // SSL mode (disable, require, verify-ca, verify-full)
	DatabaseURL  string        // Original DATABASE_URL if used
	SQLitePath   string        // SQLite file path (":memory:" for tests)
	MaxIdleConns int           // Maximum number of idle connections
	MaxOpenConns int           // Maximum number of open connections
	MaxLifetime  time.Duration // Maximum lifetime of a connection
}

// ConnectionString returns the DSN for the configured driver
func (c *Config) ConnectionString() string {
	if c.Driver == DriverSQLite {
		if c.SQLitePath == ":memory:" {
			return c.SQLitePath
		}
		return "file:" + c.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		if c.DatabaseURL != "" {
			return nil
		}
		if c.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Port == "" {
			return fmt.Errorf("database port is required")
		}
		if c.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

// New opens the database, verifies the connection and creates the schema.
func New(config *Config) (*DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 20 * time.Minute
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases shared
	if config.Driver == DriverSQLite {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}

	client, err := sql.Open(string(config.Driver), config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Driver, err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", config.Driver, err)
	}

	if err := setupSchema(ctx, client, config.Driver); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	log.Info().Str("driver", string(config.Driver)).Msg("Database ready")

	return &DB{client: client, config: config}, nil
}

// ConfigFromEnv builds a Config from DATABASE_URL, POSTGRES_* or SQLITE_PATH.
func ConfigFromEnv() *Config {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return &Config{Driver: DriverPostgres, DatabaseURL: url}
	}

	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		config := &Config{
			Driver:   DriverPostgres,
			Host:     host,
			Port:     os.Getenv("POSTGRES_PORT"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Database: os.Getenv("POSTGRES_DB"),
			SSLMode:  os.Getenv("POSTGRES_SSL_MODE"),
		}
		if config.Port == "" {
			config.Port = "5432"
		}
		if config.User == "" {
			config.User = "postgres"
		}
		if config.Database == "" {
			config.Database = "knowledge_crawler"
		}
		return config
	}

	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = DefaultSQLitePath
	}
	return &Config{Driver: DriverSQLite, SQLitePath: path}
}

// InitFromEnv opens the database described by the environment.
func InitFromEnv() (*DB, error) {
	return New(ConfigFromEnv())
}

// GetDB returns the underlying connection pool.
func (d *DB) GetDB() *sql.DB {
	return d.client
}

// Driver returns the backend in use.
func (d *DB) Driver() Driver {
	if d.config == nil {
		return DriverPostgres
	}
	return d.config.Driver
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.client.PingContext(ctx)
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.client.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.Driver() != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// setupSchema creates the tables if they do not exist.
func setupSchema(ctx context.Context, client *sql.DB, driver Driver) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	timestamp := "TIMESTAMPTZ NOT NULL DEFAULT NOW()"
	if driver == DriverSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
		timestamp = "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"
	}

	statements := []struct {
		name  string
		query string
	}{
		{
			name: "pages table",
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS pages (
					id %s,
					url TEXT NOT NULL UNIQUE,
					content TEXT NOT NULL,
					crawled BOOLEAN NOT NULL DEFAULT FALSE,
					created_at %s
				)`, idColumn, timestamp),
		},
		{
			name: "history table",
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS history (
					id %s,
					run_id TEXT NOT NULL DEFAULT '',
					url TEXT NOT NULL,
					depth INTEGER NOT NULL,
					pages_extracted INTEGER NOT NULL,
					area_label TEXT NOT NULL,
					created_at %s
				)`, idColumn, timestamp),
		},
		{
			name:  "history url index",
			query: `CREATE INDEX IF NOT EXISTS idx_history_url ON history(url)`,
		},
		{
			name: "knowledge_bases table",
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS knowledge_bases (
					name TEXT PRIMARY KEY,
					urls TEXT NOT NULL,
					depth INTEGER NOT NULL,
					schedule TEXT NOT NULL DEFAULT '',
					settings TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					pages_extracted INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					created_at %s,
					updated_at %s
				)`, timestamp, timestamp),
		},
	}

	for _, stmt := range statements {
		if _, err := client.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	return nil
}
