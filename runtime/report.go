package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/attestor-io/strata/metrics"
	"github.com/attestor-io/strata/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Runbook     string          `json:"runbook"`
	RunbookPath string          `json:"runbook_path"`
	Status      types.RunStatus `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	ExitCode    int             `json:"exit_code"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	DurationMs  int64           `json:"duration_ms"`

	Completed  int      `json:"completed"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	NotStarted []string `json:"not_started,omitempty"`

	Artifacts []ReportArtifact  `json:"artifacts"`
	Metrics   *metrics.Snapshot `json:"metrics,omitempty"`
}

// ReportArtifact is one artifact's outcome in the report.
type ReportArtifact struct {
	ID         string         `json:"id"`
	Alias      string         `json:"alias,omitempty"`
	Origin     string         `json:"origin"`
	Status     ArtifactStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	Cause      string         `json:"cause,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Output     bool           `json:"output,omitempty"`
	Optional   bool           `json:"optional,omitempty"`
	Reused     bool           `json:"reused,omitempty"`
	Restored   bool           `json:"restored,omitempty"`
}

// BuildRunReport composes a report from a run result and a metrics
// snapshot. The exitCode is the process exit code the caller will
// return.
func BuildRunReport(result *ExecutionResult, snap metrics.Snapshot, exitCode int) *RunReport {
	completed, failed, skipped := result.Counts()
	report := &RunReport{
		RunID:       result.RunID,
		Runbook:     result.RunbookName,
		RunbookPath: result.RunbookPath,
		Status:      result.Status,
		Reason:      result.Reason,
		ExitCode:    exitCode,
		StartTime:   result.StartTime.UTC().Format(time.RFC3339),
		EndTime:     result.EndTime.UTC().Format(time.RFC3339),
		DurationMs:  result.Duration.Milliseconds(),
		Completed:   completed,
		Failed:      failed,
		Skipped:     skipped,
		NotStarted:  result.NotStarted,
		Metrics:     &snap,
	}
	for _, ar := range result.SortedArtifacts() {
		report.Artifacts = append(report.Artifacts, ReportArtifact{
			ID:         ar.ID,
			Alias:      ar.Alias,
			Origin:     ar.Origin,
			Status:     ar.Status,
			Error:      ar.Error,
			Cause:      ar.Cause,
			DurationMs: ar.Duration.Milliseconds(),
			Output:     ar.Output,
			Optional:   ar.Optional,
			Reused:     ar.Reused,
			Restored:   ar.Restored,
		})
	}
	return report
}

// WriteRunReport writes the report as JSON to path. "-" writes to
// stderr, keeping stdout free for the command's primary output.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		return writeRunReportTo(report, os.Stderr)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report to %s: %w", path, err)
	}
	return nil
}

func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
