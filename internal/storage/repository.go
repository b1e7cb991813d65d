// Package storage persists pending bookings awaiting user correction.
package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no pending booking exists for an id.
var ErrNotFound = errors.New("storage: pending booking not found")

// PendingStore holds low-confidence bookings between classification and
// the user's correction. Writes must be visible to a subsequent read
// within the same round trip.
type PendingStore interface {
	// Put stores the raw booking payload and returns its identifier.
	Put(ctx context.Context, payload map[string]string) (string, error)
	// Get returns the payload stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (map[string]string, error)
	// Delete invalidates the pending reference. Deleting an unknown id
	// is not an error.
	Delete(ctx context.Context, id string) error
	// PurgeExpired removes entries older than the cutoff and returns
	// how many were dropped.
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteRepository is the durable PendingStore backend.
type SQLiteRepository struct {
	db *sql.DB
}

var _ PendingStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Put(ctx context.Context, payload map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := newID()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pending_bookings (id, payload, created_at) VALUES (?, ?, ?)`,
		id, string(body), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert pending booking: %w", err)
	}

	slog.InfoContext(ctx, "Pending booking saved", "id", id)
	return id, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (map[string]string, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM pending_bookings WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select pending booking: %w", err)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending booking: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_bookings WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge pending bookings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired pending bookings", "count", n)
	}
	return n, nil
}

// newID generates a random 12-byte hex identifier for a pending booking.
func newID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("pb_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
