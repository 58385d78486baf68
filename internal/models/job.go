// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// validTransitions defines the batch job state machine.
// queued -> processing -> completed | failed. Terminal states have no
// exits. A processing job may re-enter processing: that is how a job
// interrupted by a restart is picked back up on the next start.
var validTransitions = map[JobStatus][]JobStatus{
	JobQueued:     {JobProcessing, JobFailed},
	JobProcessing: {JobProcessing, JobCompleted, JobFailed},
	JobCompleted:  {},
	JobFailed:     {},
}

// ErrInvalidTransition is returned when a job status change violates the
// state machine.
type ErrInvalidTransition struct {
	From JobStatus
	To   JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error when the status change is illegal.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// BatchJob is one CSV upload moving through the scoring pipeline.
type BatchJob struct {
	ID               string    `json:"id"`
	TenantID         int64     `json:"tenant_id"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	Product          string    `json:"product"`
	Status           JobStatus `json:"status"`
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	ExcludedRecords  int       `json:"excluded_records"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	ResultCSV        *string   `json:"-"`
	CSVData          *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Progress returns the completion fraction in [0,1].
func (j *BatchJob) Progress() float64 {
	if j.TotalRecords == 0 {
		return 0
	}
	return float64(j.ProcessedRecords) / float64(j.TotalRecords)
}
