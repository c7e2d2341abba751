package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/attestor-io/strata/log"
	"github.com/attestor-io/strata/runtime"
	"github.com/attestor-io/strata/types"
)

func TestValidateJournalConfig(t *testing.T) {
	tests := []struct {
		name        string
		choice      journalChoice
		wantErr     bool
		errContains string
	}{
		{
			name:   "none valid",
			choice: journalChoice{backend: "none"},
		},
		{
			name:   "fs without path valid",
			choice: journalChoice{backend: "fs"},
		},
		{
			name:   "fs with path valid",
			choice: journalChoice{backend: "fs", path: "/tmp/journal"},
		},
		{
			name:   "s3 with path valid",
			choice: journalChoice{backend: "s3", path: "bucket/prefix"},
		},
		{
			name:        "s3 without path invalid",
			choice:      journalChoice{backend: "s3"},
			wantErr:     true,
			errContains: "--journal-path",
		},
		{
			name:        "unknown backend invalid",
			choice:      journalChoice{backend: "kafka"},
			wantErr:     true,
			errContains: "invalid --journal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJournalConfig(tt.choice)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyEnvOverlays(t *testing.T) {
	t.Setenv("STRATA_TEST_OVERLAY", "before")

	err := applyEnvOverlays([]string{"STRATA_TEST_OVERLAY=after", "STRATA_TEST_EMPTY="})
	if err != nil {
		t.Fatalf("applyEnvOverlays: %v", err)
	}
	if got := os.Getenv("STRATA_TEST_OVERLAY"); got != "after" {
		t.Errorf("STRATA_TEST_OVERLAY = %q, want %q", got, "after")
	}
}

func TestApplyEnvOverlays_Invalid(t *testing.T) {
	for _, pair := range []string{"NOVALUE", "=value", ""} {
		if err := applyEnvOverlays([]string{pair}); err == nil {
			t.Errorf("applyEnvOverlays(%q) should fail", pair)
		}
	}
}

func TestStatusToExitCode(t *testing.T) {
	if got := statusToExitCode(types.RunStatusCompleted); got != exitCompleted {
		t.Errorf("completed exit code = %d, want %d", got, exitCompleted)
	}
	if got := statusToExitCode(types.RunStatusFailed); got != exitRunFailed {
		t.Errorf("failed exit code = %d, want %d", got, exitRunFailed)
	}
}

func TestBuildJournal_NoneReturnsNil(t *testing.T) {
	jr, err := buildJournal(t.Context(), journalChoice{backend: "none"}, t.TempDir(), "run-1", time.Now(), log.NewNop())
	if err != nil {
		t.Fatalf("buildJournal: %v", err)
	}
	if jr != nil {
		t.Error("none backend should return a nil journal")
	}
	// The nil journal must still be safe to close.
	if err := jr.Close(t.Context()); err != nil {
		t.Errorf("nil journal Close: %v", err)
	}
}

func TestBuildJournal_FSDefaultsUnderStoreDir(t *testing.T) {
	storeDir := t.TempDir()
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	jr, err := buildJournal(t.Context(), journalChoice{backend: "fs"}, storeDir, "run-1", start, log.NewNop())
	if err != nil {
		t.Fatalf("buildJournal: %v", err)
	}
	if jr == nil {
		t.Fatal("fs backend should return a journal")
	}

	jr.RunStarted(t.Context(), "audit", 1)
	if err := jr.Close(t.Context()); err != nil {
		t.Fatalf("journal Close: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(storeDir, "journal"))
	if err != nil || len(entries) == 0 {
		t.Errorf("fs journal should write under <store-dir>/journal: %v", err)
	}
}

func TestRunCommand_EndToEnd(t *testing.T) {
	runbook := writeTestRunbook(t)
	storeDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.json")
	outputDir := filepath.Join(t.TempDir(), "out")

	code := runApp(t, "run",
		"--store-dir", storeDir,
		"--journal", "none",
		"--quiet",
		"--report", reportPath,
		"--output-dir", outputDir,
		runbook,
	)
	if code != exitCompleted {
		t.Fatalf("exit code = %d, want %d", code, exitCompleted)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report runtime.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != types.RunStatusCompleted {
		t.Errorf("report status = %q, want completed", report.Status)
	}
	if report.Completed != 1 {
		t.Errorf("report completed = %d, want 1", report.Completed)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "src.json")); err != nil {
		t.Errorf("exported output missing: %v", err)
	}

	runs, err := os.ReadDir(filepath.Join(storeDir, "runs"))
	if err != nil || len(runs) != 1 {
		t.Errorf("store should hold exactly one run: %v", err)
	}
}

func TestRunCommand_JournalFS(t *testing.T) {
	runbook := writeTestRunbook(t)
	storeDir := t.TempDir()

	code := runApp(t, "run",
		"--store-dir", storeDir,
		"--journal", "fs",
		"--quiet",
		runbook,
	)
	if code != exitCompleted {
		t.Fatalf("exit code = %d, want %d", code, exitCompleted)
	}

	entries, err := os.ReadDir(filepath.Join(storeDir, "journal"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("journal dataset missing under <store-dir>/journal: %v", err)
	}
}

func TestRunCommand_FailedRunExitCode(t *testing.T) {
	// An invalid extra pattern fails the scan artifact at creation time.
	path := filepath.Join(t.TempDir(), "audit.yaml")
	content := `
name: audit
description: failing scan
artifacts:
  src:
    source:
      type: static
      properties:
        records:
          - path: /data/a.txt
  scan:
    inputs: [src]
    process:
      type: pattern_scan
      properties:
        extra_patterns:
          broken: "["
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write runbook: %v", err)
	}

	code := runApp(t, "run",
		"--store-dir", t.TempDir(),
		"--journal", "none",
		"--quiet",
		path,
	)
	if code != exitRunFailed {
		t.Errorf("exit code = %d, want %d", code, exitRunFailed)
	}
}

func TestRunCommand_MissingArg(t *testing.T) {
	if code := runApp(t, "run"); code != exitInvalidInvocation {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInvocation)
	}
}

func TestRunCommand_InvalidEnv(t *testing.T) {
	runbook := writeTestRunbook(t)

	code := runApp(t, "run", "--env", "NOVALUE", "--journal", "none", "--quiet", runbook)
	if code != exitInvalidInvocation {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInvocation)
	}
}

func TestRunCommand_InvalidJournalBackend(t *testing.T) {
	runbook := writeTestRunbook(t)

	code := runApp(t, "run", "--journal", "kafka", "--quiet", runbook)
	if code != exitInvalidInvocation {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInvocation)
	}
}

func TestRunCommand_PlanError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
name: audit
description: dangling input
artifacts:
  out:
    inputs: [ghost]
    process:
      type: pattern_scan
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write runbook: %v", err)
	}

	code := runApp(t, "run", "--store-dir", t.TempDir(), "--journal", "none", "--quiet", path)
	if code != exitPlanError {
		t.Errorf("exit code = %d, want %d", code, exitPlanError)
	}
}

func TestRunCommand_ResumeUnknownRun(t *testing.T) {
	runbook := writeTestRunbook(t)

	// Resuming a run id with no recorded state is an invocation error.
	code := runApp(t, "run",
		"--store-dir", t.TempDir(),
		"--journal", "none",
		"--quiet",
		"--resume", "no-such-run",
		runbook,
	)
	if code != exitInvalidInvocation {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInvocation)
	}
}
