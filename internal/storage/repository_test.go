package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bookings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func samplePayload() map[string]string {
	return map[string]string{
		"text":     "Lastschrift",
		"usage":    "Stromabschlag",
		"amount":   "49,90",
		"currency": "EUR",
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Put(ctx, samplePayload())
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if id == "" {
		t.Fatal("Put() returned empty id")
	}

	// Read-after-write within a single round trip.
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["usage"] != "Stromabschlag" || got["amount"] != "49,90" {
		t.Fatalf("Get() = %v, payload not preserved", got)
	}
}

func TestGetUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Get(context.Background(), "no-such-id"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteInvalidatesReference(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Put(ctx, samplePayload())
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, id); err != ErrNotFound {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting again is not an error.
	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Put(ctx, samplePayload())
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// A cutoff in the past keeps the fresh entry.
	n, err := repo.PurgeExpired(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("PurgeExpired() dropped %d fresh entries", n)
	}

	// A cutoff in the future drops it.
	n, err = repo.PurgeExpired(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", n)
	}
	if _, err := repo.Get(ctx, id); err != ErrNotFound {
		t.Fatalf("Get() after purge error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Put(ctx, samplePayload())
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Mutating the returned map must not leak into the store.
	got["usage"] = "changed"
	again, _ := store.Get(ctx, id)
	if again["usage"] != "Stromabschlag" {
		t.Fatal("store payload was mutated through the returned map")
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, id); err != ErrNotFound {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}

	if _, err := store.Put(ctx, samplePayload()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	n, err := store.PurgeExpired(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired() = (%d, %v), want (1, nil)", n, err)
	}
	if store.Len() != 0 {
		t.Fatalf("store should be empty, has %d", store.Len())
	}
}
