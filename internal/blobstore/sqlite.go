// Implements Store on top of a SQLite database.

package blobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, b Blob) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	data := b.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO blobs (key, mime, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		    mime = excluded.mime,
		    data = excluded.data,
		    updated_at = excluded.updated_at`,
		key,
		b.Type,
		data,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return key, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (Blob, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT mime, data FROM blobs WHERE key = ?`, key)
	var b Blob
	if err := row.Scan(&b.Type, &b.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Blob{}, false, nil
		}
		return Blob{}, false, fmt.Errorf("get blob: %w", err)
	}
	return b, true, nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Keys implements Store.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT key FROM blobs WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan blob key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return keys, nil
}

// ClearPrefix implements Store.
func (s *SQLite) ClearPrefix(ctx context.Context, prefix string) error {
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM blobs WHERE substr(key, 1, length(?)) = ?`,
		prefix,
		prefix,
	); err != nil {
		return fmt.Errorf("clear blobs: %w", err)
	}
	return nil
}

// Close releases the underlying SQLite connection.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
