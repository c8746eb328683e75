package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores one row per account with the record as a JSON payload.
type SQLiteBackend struct {
	db   *sql.DB
	lock *flock.Flock
}

func NewSQLiteBackend(path, lockPath string) (*SQLiteBackend, error) {
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id TEXT PRIMARY KEY,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return &SQLiteBackend{db: db, lock: flock.New(lockPath)}, nil
}

func (b *SQLiteBackend) Load() (map[string]AccountRecord, error) {
	rows, err := b.db.Query("SELECT account_id, payload FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]AccountRecord)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		var rec AccountRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", id, err)
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) Save(all map[string]AccountRecord, changed string) error {
	rec, ok := all[changed]
	if !ok {
		return nil
	}
	locked, err := b.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = b.lock.Unlock() }()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO accounts (account_id, updated_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, changed, time.Now().UTC().Unix(), payload)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
