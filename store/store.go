// Package store persists run-scoped artifacts and run system state.
//
// A store keys messages by (run id, artifact id). Artifact files are
// msgpack; run metadata and execution state are JSON under the run's
// _system directory so they stay greppable during incident review.
// Every write is atomic: readers observe either the previous content or
// the new content, never a torn file.
package store

import (
	"context"
	"errors"

	"github.com/attestor-io/strata/types"
)

// ErrNotFound reports a missing artifact, run, or system file. Wrap
// with context; test with errors.Is.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract the executor runs against.
//
// Within a run, saves to distinct keys may proceed concurrently; a
// single key is only ever written by its producing artifact. Runs are
// isolated from each other by run id.
type Store interface {
	// Save writes or overwrites the message stored under key.
	Save(ctx context.Context, runID, key string, msg *types.Message) error
	// Get returns the stored message, or an error wrapping ErrNotFound.
	Get(ctx context.Context, runID, key string) (*types.Message, error)
	// Exists reports whether a message is stored under key.
	Exists(ctx context.Context, runID, key string) (bool, error)
	// Delete removes the message under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, runID, key string) error
	// ListKeys returns the sorted artifact keys of a run, optionally
	// filtered by prefix. A run with no artifacts yields an empty list.
	ListKeys(ctx context.Context, runID, prefix string) ([]string, error)
	// Clear removes every artifact and system file of a run.
	Clear(ctx context.Context, runID string) error

	// SaveRunMetadata persists the run's metadata document.
	SaveRunMetadata(ctx context.Context, meta *types.RunMetadata) error
	// LoadRunMetadata returns a run's metadata, or an error wrapping
	// ErrNotFound for an unknown run.
	LoadRunMetadata(ctx context.Context, runID string) (*types.RunMetadata, error)
	// SaveState persists the run's execution state.
	SaveState(ctx context.Context, runID string, state *types.ExecutionState) error
	// LoadState returns a run's execution state, or an error wrapping
	// ErrNotFound.
	LoadState(ctx context.Context, runID string) (*types.ExecutionState, error)
	// ListRuns returns all known run ids, sorted.
	ListRuns(ctx context.Context) ([]string, error)
}
