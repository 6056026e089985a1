package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"persona_engine/pkg"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_snapshots (
	owner_id   TEXT PRIMARY KEY,
	entries    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS clients (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	business_name TEXT NOT NULL DEFAULT '',
	niche         TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL
);
`

// SQLiteStore is a relational SnapshotStore and ClientStore
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite creates or opens the database at dbPath and initializes the schema
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadAll(ctx context.Context) (map[string][]pkg.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, entries FROM memory_snapshots`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]pkg.MemoryEntry)
	for rows.Next() {
		var owner, data string
		if err := rows.Scan(&owner, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var entries []pkg.MemoryEntry
		if err := sonic.UnmarshalString(data, &entries); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", owner, err)
		}
		out[owner] = entries
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Load(ctx context.Context, ownerID string) ([]pkg.MemoryEntry, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT entries FROM memory_snapshots WHERE owner_id = ?`, ownerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []pkg.MemoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", ownerID, err)
	}
	var entries []pkg.MemoryEntry
	if err := sonic.UnmarshalString(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", ownerID, err)
	}
	return entries, nil
}

func (s *SQLiteStore) Save(ctx context.Context, ownerID string, entries []pkg.MemoryEntry) error {
	data, err := sonic.MarshalString(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_snapshots (owner_id, entries, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET entries = excluded.entries, updated_at = excluded.updated_at`,
		ownerID, data, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", ownerID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_snapshots WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", ownerID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateClient(ctx context.Context, id string, update ClientRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, business_name, niche, location, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = CASE WHEN excluded.name != '' THEN excluded.name ELSE clients.name END,
			business_name = CASE WHEN excluded.business_name != '' THEN excluded.business_name ELSE clients.business_name END,
			niche         = CASE WHEN excluded.niche != '' THEN excluded.niche ELSE clients.niche END,
			location      = CASE WHEN excluded.location != '' THEN excluded.location ELSE clients.location END,
			updated_at    = excluded.updated_at`,
		id, update.Name, update.BusinessName, update.Niche, update.Location, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update client %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*ClientRecord, error) {
	rec := &ClientRecord{ID: id}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, business_name, niche, location, updated_at FROM clients WHERE id = ?`, id).
		Scan(&rec.Name, &rec.BusinessName, &rec.Niche, &rec.Location, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", id, err)
	}
	rec.UpdatedAt = time.UnixMilli(updated)
	return rec, nil
}
