package runscan

import (
	"errors"
	"testing"
	"time"

	"github.com/attestor-io/strata/store"
	"github.com/attestor-io/strata/types"
)

func seedRun(t *testing.T, st store.Store, runID string, status types.RunStatus, started time.Time, completed, failed []string) {
	t.Helper()
	meta := &types.RunMetadata{
		RunID:       runID,
		RunbookPath: "runbooks/audit.yaml",
		RunbookHash: "abcd1234",
		StartTime:   started,
		Status:      status,
	}
	if status != types.RunStatusRunning {
		ended := started.Add(time.Minute)
		meta.EndTime = &ended
	}
	if err := st.SaveRunMetadata(t.Context(), meta); err != nil {
		t.Fatalf("seed metadata for %s: %v", runID, err)
	}

	ids := append(append([]string{}, completed...), failed...)
	state := types.NewExecutionState(ids)
	for _, id := range completed {
		state.MarkCompleted(id)
	}
	for _, id := range failed {
		state.MarkFailed(id)
	}
	if err := st.SaveState(t.Context(), runID, state); err != nil {
		t.Fatalf("seed state for %s: %v", runID, err)
	}

	for _, id := range completed {
		msg := types.NewMessage(types.Schema{Name: "finding", Version: "1.0.0"}, nil)
		if err := st.Save(t.Context(), runID, id, &msg); err != nil {
			t.Fatalf("seed artifact %s: %v", id, err)
		}
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	seedRun(t, st, "run-old", types.RunStatusCompleted, base, []string{"a"}, nil)
	seedRun(t, st, "run-mid", types.RunStatusFailed, base.Add(time.Hour), []string{"a"}, []string{"b"})
	seedRun(t, st, "run-new", types.RunStatusCompleted, base.Add(2*time.Hour), []string{"a", "b"}, nil)

	runs, err := New(st).ListRuns(t.Context(), ListRunsOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if runs[0].RunID != "run-new" || runs[1].RunID != "run-mid" || runs[2].RunID != "run-old" {
		t.Errorf("order = %s, %s, %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
	if runs[1].Completed != 1 || runs[1].Failed != 1 {
		t.Errorf("run-mid counts = %d/%d, want 1/1", runs[1].Completed, runs[1].Failed)
	}
	if runs[0].EndedAt == nil {
		t.Error("finished run should carry an end time")
	}
}

func TestListRuns_StatusFilter(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	seedRun(t, st, "run-ok", types.RunStatusCompleted, base, []string{"a"}, nil)
	seedRun(t, st, "run-bad", types.RunStatusFailed, base.Add(time.Hour), nil, []string{"a"})

	runs, err := New(st).ListRuns(t.Context(), ListRunsOptions{Status: "failed"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-bad" {
		t.Errorf("runs = %v, want only run-bad", runs)
	}
}

func TestListRuns_Limit(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-a", "run-b", "run-c"} {
		seedRun(t, st, runID, types.RunStatusCompleted, base.Add(time.Duration(i)*time.Hour), []string{"a"}, nil)
	}

	runs, err := New(st).ListRuns(t.Context(), ListRunsOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// The limit keeps the newest runs.
	if len(runs) != 2 || runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Errorf("runs = %v, want the two newest", runs)
	}
}

func TestListRuns_SkipsPartialRuns(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	seedRun(t, st, "run-ok", types.RunStatusCompleted, base, []string{"a"}, nil)
	// A run with artifacts but no metadata: interrupted before the first
	// metadata write, or written by an older layout.
	msg := types.NewMessage(types.Schema{Name: "finding", Version: "1.0.0"}, nil)
	if err := st.Save(t.Context(), "run-partial", "a", &msg); err != nil {
		t.Fatalf("seed partial: %v", err)
	}

	runs, err := New(st).ListRuns(t.Context(), ListRunsOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-ok" {
		t.Errorf("runs = %v, want partial run skipped", runs)
	}
}

func TestInspectRun(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	seedRun(t, st, "run-x", types.RunStatusFailed, base, []string{"src"}, []string{"scan"})

	resp, err := New(st).InspectRun(t.Context(), "run-x")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if resp.Status != "failed" || resp.RunbookHash != "abcd1234" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Completed != 1 || resp.Failed != 1 || resp.NotStarted != 0 {
		t.Errorf("counts = %d/%d/%d", resp.Completed, resp.Failed, resp.NotStarted)
	}
	if len(resp.Artifacts) != 2 {
		t.Fatalf("artifacts = %v, want 2", resp.Artifacts)
	}
	// Sorted by id: scan before src.
	if resp.Artifacts[0].ID != "scan" || resp.Artifacts[0].Status != "failed" || resp.Artifacts[0].Stored {
		t.Errorf("scan entry = %+v", resp.Artifacts[0])
	}
	if resp.Artifacts[1].ID != "src" || resp.Artifacts[1].Status != "completed" || !resp.Artifacts[1].Stored {
		t.Errorf("src entry = %+v", resp.Artifacts[1])
	}
}

func TestInspectRun_NotFound(t *testing.T) {
	_, err := New(store.NewMemory()).InspectRun(t.Context(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want wrapped store.ErrNotFound", err)
	}
}
