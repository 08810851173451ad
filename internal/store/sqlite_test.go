package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spookylabs/spookygpt/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return repo
}

func TestGetDeviceUnknownReturnsNil(t *testing.T) {
	repo := newTestStore(t)

	device, err := repo.GetDevice(context.Background(), "dev_missing")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device != nil {
		t.Errorf("Expected nil for unknown device, got %+v", device)
	}
}

func TestUpsertAndGetDevice(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	dev := &domain.Device{
		DeviceID:   "dev_0123456789abcdef0123456789abcdef",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertDevice(ctx, dev); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	got, err := repo.GetDevice(ctx, dev.DeviceID)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected device, got nil")
	}
	if !got.LastSeenAt.Equal(now) {
		t.Errorf("Expected last seen %v, got %v", now, got.LastSeenAt)
	}

	// Upsert again with a newer last seen; created_at must not change.
	later := now.Add(time.Hour)
	dev.LastSeenAt = later
	dev.UpdatedAt = later
	if err := repo.UpsertDevice(ctx, dev); err != nil {
		t.Fatalf("Second UpsertDevice failed: %v", err)
	}

	got, err = repo.GetDevice(ctx, dev.DeviceID)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("Expected last seen %v, got %v", later, got.LastSeenAt)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected created at %v unchanged, got %v", now, got.CreatedAt)
	}
}

func TestCountActiveSince(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	devices := []struct {
		id       string
		lastSeen time.Time
	}{
		{"dev_fresh1", now},
		{"dev_fresh2", now.Add(-time.Minute)},
		{"dev_stale1", now.Add(-time.Hour)},
	}
	for _, d := range devices {
		err := repo.UpsertDevice(ctx, &domain.Device{
			DeviceID:   d.id,
			LastSeenAt: d.lastSeen,
			CreatedAt:  d.lastSeen,
			UpdatedAt:  d.lastSeen,
		})
		if err != nil {
			t.Fatalf("UpsertDevice(%s) failed: %v", d.id, err)
		}
	}

	count, err := repo.CountActiveSince(ctx, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("CountActiveSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 active devices, got %d", count)
	}
}

func TestDeleteInactive(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	stale := now.Add(-48 * time.Hour)
	for _, d := range []*domain.Device{
		{DeviceID: "dev_live", LastSeenAt: now, CreatedAt: now, UpdatedAt: now},
		{DeviceID: "dev_dead", LastSeenAt: stale, CreatedAt: stale, UpdatedAt: stale},
	} {
		if err := repo.UpsertDevice(ctx, d); err != nil {
			t.Fatalf("UpsertDevice failed: %v", err)
		}
	}

	deleted, err := repo.DeleteInactive(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteInactive failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted device, got %d", deleted)
	}

	live, err := repo.GetDevice(ctx, "dev_live")
	if err != nil || live == nil {
		t.Errorf("Expected live device to survive, got %v, err %v", live, err)
	}
}
