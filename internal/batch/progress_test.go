// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func runTrackerTests(t *testing.T, tracker ProgressTracker) {
	t.Helper()
	ctx := context.Background()

	loaded, err := tracker.Load(ctx, "missing-job")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("Expected nil progress for unknown job")
	}

	saved := &JobProgress{JobID: "job-1", Processed: 42, Excluded: 7}
	if err := tracker.Save(ctx, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err = tracker.Load(ctx, "job-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected saved progress")
	}
	if loaded.Processed != 42 || loaded.Excluded != 7 {
		t.Errorf("Unexpected progress: %+v", loaded)
	}

	saved.Processed = 50
	if err := tracker.Save(ctx, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err = tracker.Load(ctx, "job-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Processed != 50 {
		t.Errorf("Expected overwritten progress 50, got %d", loaded.Processed)
	}

	if err := tracker.Clear(ctx, "job-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	loaded, err = tracker.Load(ctx, "job-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("Expected nil progress after clear")
	}

	// Clearing an absent key is not an error.
	if err := tracker.Clear(ctx, "job-1"); err != nil {
		t.Fatalf("Clear of absent key failed: %v", err)
	}
}

func TestInMemoryProgress(t *testing.T) {
	runTrackerTests(t, NewInMemoryProgress())
}

func TestBadgerProgress(t *testing.T) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close badger: %v", err)
		}
	})

	runTrackerTests(t, NewBadgerProgress(db))
}
