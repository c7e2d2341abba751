package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/attestor-io/strata/types"
)

// eachStore runs fn once per backend so both implementations stay
// behaviourally interchangeable.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	backends := map[string]Store{
		"fs":     NewFS(t.TempDir()),
		"memory": NewMemory(),
	}
	for name, s := range backends {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func findingMessage(content any) types.Message {
	return types.NewMessage(types.Schema{Name: "finding", Version: "1.0.0"}, content)
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		msg := findingMessage(map[string]any{"match": "a@example.se", "kind": "email"})
		msg = msg.WithExecution(types.ExecutionContext{
			Status: types.ExecStatusSuccess,
			Origin: types.OriginParent,
			Alias:  "emails",
		})

		if err := s.Save(ctx, "run-1", "emails", &msg); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Get(ctx, "run-1", "emails")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}

		if got.ID != msg.ID {
			t.Errorf("id = %q, want %q", got.ID, msg.ID)
		}
		if got.Schema != msg.Schema {
			t.Errorf("schema = %v, want %v", got.Schema, msg.Schema)
		}
		content, ok := got.Content.(map[string]any)
		if !ok {
			t.Fatalf("content decoded as %T, want map", got.Content)
		}
		if content["match"] != "a@example.se" || content["kind"] != "email" {
			t.Errorf("content = %v", content)
		}
		ec := got.Execution()
		if ec.Status != types.ExecStatusSuccess || ec.Alias != "emails" {
			t.Errorf("execution context = %+v", ec)
		}
	})
}

func TestStore_GetMissingIsNotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Get(ctx, "run-1", "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get error = %v, want ErrNotFound", err)
		}
		if _, err := s.LoadRunMetadata(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadRunMetadata error = %v, want ErrNotFound", err)
		}
		if _, err := s.LoadState(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadState error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_OverwriteReplacesContent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := findingMessage("first")
		second := findingMessage("second")

		if err := s.Save(ctx, "run-1", "emails", &first); err != nil {
			t.Fatalf("Save first: %v", err)
		}
		if err := s.Save(ctx, "run-1", "emails", &second); err != nil {
			t.Fatalf("Save second: %v", err)
		}
		got, err := s.Get(ctx, "run-1", "emails")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != second.ID || got.Content != "second" {
			t.Errorf("got id=%q content=%v, want the second message", got.ID, got.Content)
		}
	})
}

func TestStore_ExistsAndDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		msg := findingMessage("x")

		if ok, err := s.Exists(ctx, "run-1", "emails"); err != nil || ok {
			t.Fatalf("Exists before save = %v, %v", ok, err)
		}
		if err := s.Save(ctx, "run-1", "emails", &msg); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if ok, err := s.Exists(ctx, "run-1", "emails"); err != nil || !ok {
			t.Fatalf("Exists after save = %v, %v", ok, err)
		}
		if err := s.Delete(ctx, "run-1", "emails"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if ok, _ := s.Exists(ctx, "run-1", "emails"); ok {
			t.Error("artifact still exists after delete")
		}
		// Deleting again is a no-op, not an error.
		if err := s.Delete(ctx, "run-1", "emails"); err != nil {
			t.Errorf("second Delete: %v", err)
		}
	})
}

func TestStore_ListKeysSortedWithPrefix(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		meta := &types.RunMetadata{RunID: "run-1", Status: types.RunStatusRunning, StartTime: time.Now().UTC()}
		if err := s.SaveRunMetadata(ctx, meta); err != nil {
			t.Fatalf("SaveRunMetadata: %v", err)
		}
		for _, key := range []string{"scan__b", "emails", "scan__a"} {
			msg := findingMessage(key)
			if err := s.Save(ctx, "run-1", key, &msg); err != nil {
				t.Fatalf("Save %s: %v", key, err)
			}
		}

		all, err := s.ListKeys(ctx, "run-1", "")
		if err != nil {
			t.Fatalf("ListKeys: %v", err)
		}
		want := []string{"emails", "scan__a", "scan__b"}
		if len(all) != len(want) {
			t.Fatalf("ListKeys = %v, want %v", all, want)
		}
		for i := range want {
			if all[i] != want[i] {
				t.Fatalf("ListKeys = %v, want %v", all, want)
			}
		}

		scoped, err := s.ListKeys(ctx, "run-1", "scan__")
		if err != nil {
			t.Fatalf("ListKeys with prefix: %v", err)
		}
		if len(scoped) != 2 || scoped[0] != "scan__a" || scoped[1] != "scan__b" {
			t.Errorf("prefixed ListKeys = %v", scoped)
		}

		empty, err := s.ListKeys(ctx, "no-such-run", "")
		if err != nil {
			t.Fatalf("ListKeys unknown run: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("unknown run ListKeys = %v, want empty", empty)
		}
	})
}

func TestStore_HostileArtifactID(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := "reports/2026 summary"
		msg := findingMessage("hostile")

		if err := s.Save(ctx, "run-1", key, &msg); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Get(ctx, "run-1", key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Content != "hostile" {
			t.Errorf("content = %v", got.Content)
		}
		keys, err := s.ListKeys(ctx, "run-1", "")
		if err != nil {
			t.Fatalf("ListKeys: %v", err)
		}
		if len(keys) != 1 || keys[0] != key {
			t.Errorf("ListKeys = %v, want [%q]", keys, key)
		}
	})
}

func TestStore_ClearRemovesRun(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		msg := findingMessage("x")
		if err := s.Save(ctx, "run-1", "emails", &msg); err != nil {
			t.Fatalf("Save: %v", err)
		}
		meta := &types.RunMetadata{RunID: "run-1", Status: types.RunStatusRunning, StartTime: time.Now().UTC()}
		if err := s.SaveRunMetadata(ctx, meta); err != nil {
			t.Fatalf("SaveRunMetadata: %v", err)
		}

		if err := s.Clear(ctx, "run-1"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if _, err := s.Get(ctx, "run-1", "emails"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after Clear = %v, want ErrNotFound", err)
		}
		if _, err := s.LoadRunMetadata(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadRunMetadata after Clear = %v, want ErrNotFound", err)
		}
		runs, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("ListRuns after Clear = %v, want empty", runs)
		}
	})
}

func TestStore_RunMetadataRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		end := time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC)
		meta := &types.RunMetadata{
			RunID:       "run-1",
			RunbookPath: "runbooks/gdpr.yaml",
			RunbookHash: "deadbeef",
			StartTime:   end.Add(-time.Minute),
			Status:      types.RunStatusCompleted,
			EndTime:     &end,
		}
		if err := s.SaveRunMetadata(ctx, meta); err != nil {
			t.Fatalf("SaveRunMetadata: %v", err)
		}
		got, err := s.LoadRunMetadata(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadRunMetadata: %v", err)
		}
		if got.RunID != meta.RunID || got.RunbookPath != meta.RunbookPath || got.RunbookHash != meta.RunbookHash {
			t.Errorf("metadata = %+v", got)
		}
		if got.Status != types.RunStatusCompleted {
			t.Errorf("status = %q", got.Status)
		}
		if !got.StartTime.Equal(meta.StartTime) {
			t.Errorf("start time = %v, want %v", got.StartTime, meta.StartTime)
		}
		if got.EndTime == nil || !got.EndTime.Equal(end) {
			t.Errorf("end time = %v, want %v", got.EndTime, end)
		}
	})
}

func TestStore_ExecutionStateRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ids := []string{"a", "b", "c", "d"}
		state := types.NewExecutionState(ids)
		state.MarkCompleted("a")
		state.MarkFailed("b")
		state.MarkSkipped("c")

		if err := s.SaveState(ctx, "run-1", state); err != nil {
			t.Fatalf("SaveState: %v", err)
		}
		got, err := s.LoadState(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadState: %v", err)
		}
		if err := got.Verify(ids); err != nil {
			t.Fatalf("loaded state fails verification: %v", err)
		}
		if _, ok := got.Completed["a"]; !ok {
			t.Error("a not completed after round trip")
		}
		if _, ok := got.Failed["b"]; !ok {
			t.Error("b not failed after round trip")
		}
		if _, ok := got.Skipped["c"]; !ok {
			t.Error("c not skipped after round trip")
		}
		if _, ok := got.NotStarted["d"]; !ok {
			t.Error("d not pending after round trip")
		}
		if !got.LastCheckpoint.Equal(state.LastCheckpoint) {
			t.Errorf("checkpoint = %v, want %v", got.LastCheckpoint, state.LastCheckpoint)
		}
	})
}

func TestStore_RunsAreIsolated(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		one := findingMessage("one")
		two := findingMessage("two")
		if err := s.Save(ctx, "run-1", "emails", &one); err != nil {
			t.Fatalf("Save run-1: %v", err)
		}
		if err := s.Save(ctx, "run-2", "emails", &two); err != nil {
			t.Fatalf("Save run-2: %v", err)
		}

		if err := s.Clear(ctx, "run-1"); err != nil {
			t.Fatalf("Clear run-1: %v", err)
		}
		got, err := s.Get(ctx, "run-2", "emails")
		if err != nil {
			t.Fatalf("Get run-2 after clearing run-1: %v", err)
		}
		if got.Content != "two" {
			t.Errorf("run-2 content = %v", got.Content)
		}
	})
}

func TestStore_ListRunsSorted(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		msg := findingMessage("x")
		if err := s.Save(ctx, "run-b", "emails", &msg); err != nil {
			t.Fatalf("Save: %v", err)
		}
		meta := &types.RunMetadata{RunID: "run-a", Status: types.RunStatusRunning, StartTime: time.Now().UTC()}
		if err := s.SaveRunMetadata(ctx, meta); err != nil {
			t.Fatalf("SaveRunMetadata: %v", err)
		}

		runs, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 2 || runs[0] != "run-a" || runs[1] != "run-b" {
			t.Errorf("ListRuns = %v, want [run-a run-b]", runs)
		}
	})
}

func TestMemory_GetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	msg := findingMessage(map[string]any{"match": "original"})
	if err := s.Save(ctx, "run-1", "emails", &msg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := s.Get(ctx, "run-1", "emails")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.Content.(map[string]any)["match"] = "mutated"

	second, err := s.Get(ctx, "run-1", "emails")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if second.Content.(map[string]any)["match"] != "original" {
		t.Error("mutating a returned message changed the stored copy")
	}
}

func TestFS_DiskLayout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewFS(base)

	msg := findingMessage("x")
	if err := s.Save(ctx, "run_1", "emails by source", &msg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	meta := &types.RunMetadata{RunID: "run_1", Status: types.RunStatusRunning, StartTime: time.Now().UTC()}
	if err := s.SaveRunMetadata(ctx, meta); err != nil {
		t.Fatalf("SaveRunMetadata: %v", err)
	}
	if err := s.SaveState(ctx, "run_1", types.NewExecutionState([]string{"emails by source"})); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	runDir := filepath.Join(base, "runs", "run_1")
	for _, path := range []string{
		filepath.Join(runDir, "emails%20by%20source"),
		filepath.Join(runDir, "_system", "run.json"),
		filepath.Join(runDir, "_system", "state.json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected file %s: %v", path, err)
		}
	}

	// The _system directory must never surface as an artifact key.
	keys, err := s.ListKeys(ctx, "run_1", "")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "emails by source" {
		t.Errorf("ListKeys = %v", keys)
	}
}
