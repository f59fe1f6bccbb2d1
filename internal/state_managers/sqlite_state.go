package state_managers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// SQLiteStateManager stores values in the app_config table of a local SQLite database.
type SQLiteStateManager struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStateManager opens (or creates) the database at path and ensures the schema.
func NewSQLiteStateManager(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStateManager, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	sm := &SQLiteStateManager{db: db, logger: logger}
	if err := sm.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sm, nil
}

func (sm *SQLiteStateManager) initSchema(ctx context.Context) error {
	_, err := sm.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS app_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

const upsertAppConfig = `INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`

// Get returns the value stored under key.
func (sm *SQLiteStateManager) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := sm.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?;`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get app config %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a single value.
func (sm *SQLiteStateManager) Set(ctx context.Context, key, value string) error {
	if _, err := sm.db.ExecContext(ctx, upsertAppConfig, key, value); err != nil {
		return fmt.Errorf("upsert app config: %w", err)
	}
	return nil
}

// SetAll upserts every value in one transaction.
func (sm *SQLiteStateManager) SetAll(ctx context.Context, values map[string]string) error {
	tx, err := sm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx, upsertAppConfig, k, v); err != nil {
			return fmt.Errorf("upsert app config %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit app config: %w", err)
	}
	return nil
}

// Ping verifies the database handle.
func (sm *SQLiteStateManager) Ping(ctx context.Context) error {
	return sm.db.PingContext(ctx)
}

// Close releases the database handle.
func (sm *SQLiteStateManager) Close() error {
	if sm.db == nil {
		return nil
	}
	return sm.db.Close()
}
