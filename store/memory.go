package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/attestor-io/strata/types"
)

// Memory keeps runs in process memory. Artifacts are held in their
// msgpack encoding and system documents as JSON, so round trips go
// through the same codecs as the filesystem store and callers never
// share mutable state with the store.
type Memory struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
	meta      map[string][]byte
	state     map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		artifacts: make(map[string]map[string][]byte),
		meta:      make(map[string][]byte),
		state:     make(map[string][]byte),
	}
}

// Save implements Store.
func (s *Memory) Save(ctx context.Context, runID, key string, msg *types.Message) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.artifacts[runID]
	if !ok {
		run = make(map[string][]byte)
		s.artifacts[runID] = run
	}
	run[key] = data
	return nil
}

// Get implements Store.
func (s *Memory) Get(ctx context.Context, runID, key string) (*types.Message, error) {
	s.mu.RLock()
	data, ok := s.artifacts[runID][key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifact %s in run %s: %w", key, runID, ErrNotFound)
	}
	var msg types.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &msg, nil
}

// Exists implements Store.
func (s *Memory) Exists(ctx context.Context, runID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[runID][key]
	return ok, nil
}

// Delete implements Store.
func (s *Memory) Delete(ctx context.Context, runID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts[runID], key)
	return nil
}

// ListKeys implements Store.
func (s *Memory) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := s.artifacts[runID]
	keys := make([]string, 0, len(run))
	for key := range run {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear implements Store.
func (s *Memory) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, runID)
	delete(s.meta, runID)
	delete(s.state, runID)
	return nil
}

// SaveRunMetadata implements Store.
func (s *Memory) SaveRunMetadata(ctx context.Context, meta *types.RunMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode %s for run %s: %w", runMetaFile, meta.RunID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[meta.RunID] = data
	return nil
}

// LoadRunMetadata implements Store.
func (s *Memory) LoadRunMetadata(ctx context.Context, runID string) (*types.RunMetadata, error) {
	s.mu.RLock()
	data, ok := s.meta[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s for run %s: %w", runMetaFile, runID, ErrNotFound)
	}
	var meta types.RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s for run %s: %w", runMetaFile, runID, err)
	}
	return &meta, nil
}

// SaveState implements Store.
func (s *Memory) SaveState(ctx context.Context, runID string, state *types.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s for run %s: %w", runStateFile, runID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[runID] = data
	return nil
}

// LoadState implements Store.
func (s *Memory) LoadState(ctx context.Context, runID string) (*types.ExecutionState, error) {
	s.mu.RLock()
	data, ok := s.state[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s for run %s: %w", runStateFile, runID, ErrNotFound)
	}
	var state types.ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s for run %s: %w", runStateFile, runID, err)
	}
	return &state, nil
}

// ListRuns implements Store.
func (s *Memory) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for runID := range s.artifacts {
		seen[runID] = struct{}{}
	}
	for runID := range s.meta {
		seen[runID] = struct{}{}
	}
	for runID := range s.state {
		seen[runID] = struct{}{}
	}
	runs := make([]string, 0, len(seen))
	for runID := range seen {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

// Verify Memory implements Store.
var _ Store = (*Memory)(nil)
