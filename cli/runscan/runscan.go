// Package runscan is the read-side data access layer for the strata CLI.
//
// Read-only commands (list, inspect) go through a Scanner instead of
// touching the store layout directly. A scanner never writes; it reads
// run metadata, execution state, and artifact keys as persisted by the
// executor.
package runscan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/attestor-io/strata/store"
)

// RunSummary is one row in the run listing.
type RunSummary struct {
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	RunbookPath string     `json:"runbook_path"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
}

// ArtifactEntry is one artifact's recorded state within a run.
type ArtifactEntry struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Stored bool   `json:"stored"`
}

// InspectRunResponse is the full view of a single run.
type InspectRunResponse struct {
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	RunbookPath string     `json:"runbook_path"`
	RunbookHash string     `json:"runbook_hash"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	NotStarted int `json:"not_started"`

	Artifacts []ArtifactEntry `json:"artifacts"`
}

// ListRunsOptions filters the run listing.
type ListRunsOptions struct {
	// Status keeps only runs in the given status when non-empty.
	Status string
	// Limit caps the number of rows when positive. Applied after
	// sorting, so the newest runs survive the cut.
	Limit int
}

// Scanner reads run information from a store.
type Scanner struct {
	store store.Store
}

// New returns a scanner over the given store.
func New(st store.Store) *Scanner {
	return &Scanner{store: st}
}

// ListRuns returns summaries for all runs the store knows, newest first.
// Runs whose metadata cannot be read are skipped; a partially written
// run directory must not break the listing.
func (s *Scanner) ListRuns(ctx context.Context, opts ListRunsOptions) ([]RunSummary, error) {
	runIDs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(runIDs))
	for _, runID := range runIDs {
		meta, err := s.store.LoadRunMetadata(ctx, runID)
		if err != nil {
			continue
		}
		if opts.Status != "" && string(meta.Status) != opts.Status {
			continue
		}
		summary := RunSummary{
			RunID:       meta.RunID,
			Status:      string(meta.Status),
			RunbookPath: meta.RunbookPath,
			StartedAt:   meta.StartTime,
			EndedAt:     meta.EndTime,
		}
		if state, err := s.store.LoadState(ctx, runID); err == nil {
			summary.Completed = len(state.Completed)
			summary.Failed = len(state.Failed)
			summary.Skipped = len(state.Skipped)
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].StartedAt.After(summaries[j].StartedAt)
		}
		return summaries[i].RunID < summaries[j].RunID
	})

	if opts.Limit > 0 && len(summaries) > opts.Limit {
		summaries = summaries[:opts.Limit]
	}
	return summaries, nil
}

// InspectRun returns the detailed view of one run. Returns an error
// wrapping store.ErrNotFound for an unknown run id.
func (s *Scanner) InspectRun(ctx context.Context, runID string) (*InspectRunResponse, error) {
	meta, err := s.store.LoadRunMetadata(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("inspect run %s: %w", runID, err)
	}

	resp := &InspectRunResponse{
		RunID:       meta.RunID,
		Status:      string(meta.Status),
		RunbookPath: meta.RunbookPath,
		RunbookHash: meta.RunbookHash,
		StartedAt:   meta.StartTime,
		EndedAt:     meta.EndTime,
	}

	state, err := s.store.LoadState(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resp, nil
		}
		return nil, fmt.Errorf("inspect run %s: %w", runID, err)
	}

	resp.Completed = len(state.Completed)
	resp.Failed = len(state.Failed)
	resp.Skipped = len(state.Skipped)
	resp.NotStarted = len(state.NotStarted)

	stored := make(map[string]bool)
	if keys, err := s.store.ListKeys(ctx, runID, ""); err == nil {
		for _, key := range keys {
			stored[key] = true
		}
	}

	appendEntries := func(set map[string]struct{}, status string) {
		for id := range set {
			resp.Artifacts = append(resp.Artifacts, ArtifactEntry{
				ID:     id,
				Status: status,
				Stored: stored[id],
			})
		}
	}
	appendEntries(state.Completed, "completed")
	appendEntries(state.Failed, "failed")
	appendEntries(state.Skipped, "skipped")
	appendEntries(state.NotStarted, "not_started")

	sort.Slice(resp.Artifacts, func(i, j int) bool {
		return resp.Artifacts[i].ID < resp.Artifacts[j].ID
	})
	return resp, nil
}
