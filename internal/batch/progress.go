// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// progressKeyPrefix namespaces per-job progress entries in BadgerDB.
const progressKeyPrefix = "batch:progress:"

// JobProgress is the resumable processing position of one batch job.
type JobProgress struct {
	JobID     string `json:"job_id"`
	Processed int    `json:"processed"`
	Excluded  int    `json:"excluded"`
}

// ProgressTracker persists per-job processing position so an interrupted
// job can resume past already-written customers instead of duplicating
// their rows.
type ProgressTracker interface {
	Save(ctx context.Context, progress *JobProgress) error
	Load(ctx context.Context, jobID string) (*JobProgress, error)
	Clear(ctx context.Context, jobID string) error
}

// BadgerProgress implements ProgressTracker using BadgerDB for
// persistence across application restarts.
type BadgerProgress struct {
	db *badger.DB
}

// NewBadgerProgress creates a progress tracker on the provided BadgerDB.
func NewBadgerProgress(db *badger.DB) *BadgerProgress {
	return &BadgerProgress{db: db}
}

func progressKey(jobID string) []byte {
	return []byte(progressKeyPrefix + jobID)
}

// Save persists the job's current position.
func (p *BadgerProgress) Save(ctx context.Context, progress *JobProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(progressKey(progress.JobID), data)
	})
}

// Load retrieves the job's saved position. Returns nil, nil when the job
// has no saved progress.
func (p *BadgerProgress) Load(ctx context.Context, jobID string) (*JobProgress, error) {
	var progress JobProgress
	found := false

	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &progress)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &progress, nil
}

// Clear removes the job's saved position once it reaches a terminal state.
func (p *BadgerProgress) Clear(ctx context.Context, jobID string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(progressKey(jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// InMemoryProgress implements ProgressTracker in memory. Useful for tests
// and deployments that accept reprocessing after a restart.
type InMemoryProgress struct {
	mu      sync.Mutex
	entries map[string]JobProgress
}

// NewInMemoryProgress creates an in-memory progress tracker.
func NewInMemoryProgress() *InMemoryProgress {
	return &InMemoryProgress{entries: make(map[string]JobProgress)}
}

// Save stores the position in memory.
func (p *InMemoryProgress) Save(_ context.Context, progress *JobProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[progress.JobID] = *progress
	return nil
}

// Load retrieves the position from memory.
func (p *InMemoryProgress) Load(_ context.Context, jobID string) (*JobProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[jobID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Clear removes the stored position.
func (p *InMemoryProgress) Clear(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, jobID)
	return nil
}
