package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/attestor-io/strata/store"
	"github.com/attestor-io/strata/types"
)

func TestExportOutputs(t *testing.T) {
	st := store.NewMemory()
	runID := "run-export"

	plain := types.NewMessage(finding(), map[string]any{"records": []any{map[string]any{"rule": "r1"}}})
	if err := st.Save(t.Context(), runID, "scan", &plain); err != nil {
		t.Fatalf("seed scan: %v", err)
	}
	secret := types.NewMessage(finding(), map[string]any{"records": []any{map[string]any{"ssn": "000-00-0000"}}})
	if err := st.Save(t.Context(), runID, "pii", &secret); err != nil {
		t.Fatalf("seed pii: %v", err)
	}

	result := &ExecutionResult{
		RunID: runID,
		Artifacts: map[string]*ArtifactResult{
			"scan": {ID: "scan", Origin: types.OriginParent, Status: ArtifactCompleted, Output: true},
			"pii":  {ID: "pii", Alias: "findings", Origin: types.OriginParent, Status: ArtifactCompleted, Output: true, Redacted: true},
			"tmp":  {ID: "tmp", Origin: types.OriginParent, Status: ArtifactCompleted},
		},
	}

	dir := t.TempDir()
	paths, err := ExportOutputs(t.Context(), st, result, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("exported %d files, want 2: %v", len(paths), paths)
	}

	// Aliased artifacts export under their alias.
	data, err := os.ReadFile(filepath.Join(dir, "findings.json"))
	if err != nil {
		t.Fatalf("read findings.json: %v", err)
	}
	var redacted map[string]any
	if err := json.Unmarshal(data, &redacted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if redacted["content"] != RedactedPlaceholder {
		t.Errorf("redacted content = %v, want placeholder", redacted["content"])
	}
	if redacted["schema"] != "finding/1.0.0" {
		t.Errorf("schema = %v", redacted["schema"])
	}

	data, err = os.ReadFile(filepath.Join(dir, "scan.json"))
	if err != nil {
		t.Fatalf("read scan.json: %v", err)
	}
	var exported map[string]any
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	content, ok := exported["content"].(map[string]any)
	if !ok {
		t.Fatalf("content = %T, want the stored map", exported["content"])
	}
	if _, ok := content["records"]; !ok {
		t.Error("exported content lost its records")
	}

	// Non-output artifacts never export.
	if _, err := os.Stat(filepath.Join(dir, "tmp.json")); !os.IsNotExist(err) {
		t.Error("non-output artifact was exported")
	}
}

func TestExportOutputs_NoOutputs(t *testing.T) {
	result := &ExecutionResult{
		RunID: "run-empty",
		Artifacts: map[string]*ArtifactResult{
			"a": {ID: "a", Status: ArtifactCompleted},
		},
	}
	dir := filepath.Join(t.TempDir(), "never-created")
	paths, err := ExportOutputs(t.Context(), store.NewMemory(), result, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths = %v, want none", paths)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("output dir created for a run with no outputs")
	}
}

func TestExportOutputs_SkipsFailedOutputs(t *testing.T) {
	result := &ExecutionResult{
		RunID: "run-failed-out",
		Artifacts: map[string]*ArtifactResult{
			"broken": {ID: "broken", Status: ArtifactFailed, Output: true},
		},
	}
	paths, err := ExportOutputs(t.Context(), store.NewMemory(), result, t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths = %v, want none for failed outputs", paths)
	}
}

func TestExportOutputs_MissingMessageErrors(t *testing.T) {
	result := &ExecutionResult{
		RunID: "run-missing",
		Artifacts: map[string]*ArtifactResult{
			"gone": {ID: "gone", Status: ArtifactCompleted, Output: true},
		},
	}
	_, err := ExportOutputs(t.Context(), store.NewMemory(), result, t.TempDir())
	if err == nil {
		t.Fatal("expected error when a stored output is missing")
	}
}
