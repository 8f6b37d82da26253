package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the database connection. The store runs on SQLite for local
// deployments and tests, and on Postgres (via pgx) in production; both
// drivers see the same schema and the same $N placeholder queries.
type DB struct {
	conn   *sql.DB
	driver string
}

// DefaultSQLitePath returns ~/.builddoctor/builddoctor.db, creating the
// directory if needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".builddoctor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "builddoctor.db"), nil
}

// Open opens the database. driver is "sqlite" or "postgres"; dsn is a file
// path for sqlite and a connection string for postgres.
func Open(driver, dsn string) (*DB, error) {
	var conn *sql.DB
	var err error

	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		conn, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		conn.SetMaxOpenConns(1)
	case "postgres":
		conn, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognized database driver %q", driver)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driver == "sqlite" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return &DB{conn: conn, driver: driver}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Timestamps are written by the application (RFC3339, UTC) instead of DB
// defaults so SQLite and Postgres rows are byte-identical.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
    id                TEXT PRIMARY KEY,
    email             TEXT,
    azure_devops_org  TEXT,
    azure_devops_pat  TEXT,
    slack_webhook_url TEXT,
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipelines (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL REFERENCES profiles(id),
    azure_project_id    TEXT NOT NULL,
    azure_project_name  TEXT NOT NULL,
    azure_pipeline_id   TEXT NOT NULL,
    azure_pipeline_name TEXT NOT NULL,
    webhook_secret      TEXT NOT NULL,
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipelines_azure ON pipelines(azure_pipeline_id, is_active);

CREATE TABLE IF NOT EXISTS builds (
    id                 TEXT PRIMARY KEY,
    pipeline_id        TEXT NOT NULL REFERENCES pipelines(id),
    azure_build_id     TEXT NOT NULL,
    azure_build_number TEXT,
    status             TEXT NOT NULL CHECK(status IN ('pending','analyzing','completed','failed')),
    result             TEXT NOT NULL CHECK(result IN ('succeeded','failed')),
    created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_builds_pipeline ON builds(pipeline_id, created_at);

CREATE TABLE IF NOT EXISTS diagnoses (
    id             TEXT PRIMARY KEY,
    build_id       TEXT NOT NULL REFERENCES builds(id),
    error_category TEXT,
    root_cause     TEXT,
    explanation    TEXT,
    suggested_fix  TEXT,
    relevant_logs  TEXT,
    confidence     REAL,
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_build ON diagnoses(build_id, created_at);
`

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (1, $1)", nowRFC3339()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"diagnoses", "builds", "pipelines", "profiles", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
