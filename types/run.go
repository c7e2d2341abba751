package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RunStatus is the lifecycle status recorded in run metadata.
type RunStatus string

const (
	// RunStatusRunning is set when a run starts and cleared at the end.
	// A loaded metadata file still carrying it indicates an interrupted or
	// concurrently active run.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted marks a run whose non-optional artifacts all succeeded.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed marks a run with at least one non-optional failure,
	// or a run that hit its timeout.
	RunStatusFailed RunStatus = "failed"
)

// RunMetadata is the per-run record written at run start and finalised at
// run end. The runbook hash covers the parent runbook bytes only; child
// runbooks are intentionally not hashed, so editing a child between
// interrupt and resume goes undetected.
type RunMetadata struct {
	RunID       string     `json:"run_id"`
	RunbookPath string     `json:"runbook_path"`
	RunbookHash string     `json:"runbook_hash"`
	StartTime   time.Time  `json:"start_time"`
	Status      RunStatus  `json:"status"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// ExecutionState tracks per-artifact progress through a run. The four sets
// partition the plan's artifact ids: every id is in exactly one of them.
type ExecutionState struct {
	Completed      map[string]struct{}
	NotStarted     map[string]struct{}
	Failed         map[string]struct{}
	Skipped        map[string]struct{}
	LastCheckpoint time.Time
}

// NewExecutionState returns a state with every id not started.
func NewExecutionState(ids []string) *ExecutionState {
	st := &ExecutionState{
		Completed:      make(map[string]struct{}),
		NotStarted:     make(map[string]struct{}, len(ids)),
		Failed:         make(map[string]struct{}),
		Skipped:        make(map[string]struct{}),
		LastCheckpoint: time.Now().UTC(),
	}
	for _, id := range ids {
		st.NotStarted[id] = struct{}{}
	}
	return st
}

// MarkCompleted moves id into the completed set.
func (s *ExecutionState) MarkCompleted(id string) { s.move(id, s.Completed) }

// MarkFailed moves id into the failed set.
func (s *ExecutionState) MarkFailed(id string) { s.move(id, s.Failed) }

// MarkSkipped moves id into the skipped set.
func (s *ExecutionState) MarkSkipped(id string) { s.move(id, s.Skipped) }

func (s *ExecutionState) move(id string, into map[string]struct{}) {
	delete(s.NotStarted, id)
	delete(s.Completed, id)
	delete(s.Failed, id)
	delete(s.Skipped, id)
	into[id] = struct{}{}
	s.LastCheckpoint = time.Now().UTC()
}

// IsTerminal reports whether id has reached a terminal set.
func (s *ExecutionState) IsTerminal(id string) bool {
	if _, ok := s.Completed[id]; ok {
		return true
	}
	if _, ok := s.Failed[id]; ok {
		return true
	}
	_, ok := s.Skipped[id]
	return ok
}

// Verify checks the resume preconditions on a loaded state: the sets must
// be pairwise disjoint and their union must equal planIDs.
func (s *ExecutionState) Verify(planIDs []string) error {
	seen := make(map[string]string, len(planIDs))
	for name, set := range map[string]map[string]struct{}{
		"completed":   s.Completed,
		"not_started": s.NotStarted,
		"failed":      s.Failed,
		"skipped":     s.Skipped,
	} {
		for id := range set {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("execution state is corrupt: %q appears in both %s and %s", id, prev, name)
			}
			seen[id] = name
		}
	}
	if len(seen) != len(planIDs) {
		return fmt.Errorf("execution state covers %d artifacts, plan has %d", len(seen), len(planIDs))
	}
	for _, id := range planIDs {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("execution state is missing artifact %q", id)
		}
	}
	return nil
}

// stateFile is the on-disk JSON shape of ExecutionState. Sets are persisted
// as sorted slices so state files diff cleanly.
type stateFile struct {
	Completed      []string  `json:"completed"`
	NotStarted     []string  `json:"not_started"`
	Failed         []string  `json:"failed"`
	Skipped        []string  `json:"skipped"`
	LastCheckpoint time.Time `json:"last_checkpoint"`
}

// MarshalJSON implements json.Marshaler.
func (s *ExecutionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateFile{
		Completed:      sortedKeys(s.Completed),
		NotStarted:     sortedKeys(s.NotStarted),
		Failed:         sortedKeys(s.Failed),
		Skipped:        sortedKeys(s.Skipped),
		LastCheckpoint: s.LastCheckpoint,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ExecutionState) UnmarshalJSON(data []byte) error {
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.Completed = toSet(f.Completed)
	s.NotStarted = toSet(f.NotStarted)
	s.Failed = toSet(f.Failed)
	s.Skipped = toSet(f.Skipped)
	s.LastCheckpoint = f.LastCheckpoint
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
