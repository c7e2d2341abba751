package runtime

import (
	"sort"
	"time"

	"github.com/attestor-io/strata/types"
)

// ArtifactStatus is the terminal state one artifact reached during a run.
type ArtifactStatus string

const (
	// ArtifactCompleted marks an artifact whose message was produced and
	// stored.
	ArtifactCompleted ArtifactStatus = "completed"
	// ArtifactFailed marks an artifact whose production raised an error.
	ArtifactFailed ArtifactStatus = "failed"
	// ArtifactSkipped marks an artifact abandoned because a dependency
	// failed.
	ArtifactSkipped ArtifactStatus = "skipped"
)

// ArtifactResult is the per-artifact outcome surfaced in the run result.
type ArtifactResult struct {
	// ID is the post-flatten artifact id.
	ID string
	// Alias is the user-visible name from the declaring runbook, if any.
	Alias string
	// Origin is "parent" or "child:<runbook_name>".
	Origin string
	// Status is the terminal state.
	Status ArtifactStatus
	// Error holds the production error for failed artifacts.
	Error string
	// Cause names the failed dependency for skipped artifacts.
	Cause string
	// Duration is the production time. Zero for skips and for artifacts
	// restored from a previous session without a readable message.
	Duration time.Duration
	// Output marks artifacts the runbook exposes in the result.
	Output bool
	// Optional marks artifacts whose failure does not fail the run.
	Optional bool
	// Redacted marks content bound to a sensitive input; exporters and
	// logs must not show it.
	Redacted bool
	// Reused marks a message copied from a prior run via a reuse
	// directive.
	Reused bool
	// Restored marks an outcome carried over from an interrupted run
	// rather than produced in this session.
	Restored bool
}

// ExecutionResult aggregates a finished run. Artifacts holds one entry
// per plan id that reached a terminal state; ids the run never started
// (timeout or cancellation) appear in NotStarted instead.
type ExecutionResult struct {
	RunID       string
	RunbookName string
	RunbookPath string

	Status types.RunStatus
	// Reason qualifies a failed status: "timeout", "canceled", or empty
	// when failure came from the artifacts themselves.
	Reason string

	// StartTime is the original run start, surviving resume.
	StartTime time.Time
	EndTime   time.Time
	// Duration covers this execution session only.
	Duration time.Duration

	Artifacts  map[string]*ArtifactResult
	NotStarted []string
}

// Counts returns how many artifacts completed, failed, and were skipped.
func (r *ExecutionResult) Counts() (completed, failed, skipped int) {
	for _, ar := range r.Artifacts {
		switch ar.Status {
		case ArtifactCompleted:
			completed++
		case ArtifactFailed:
			failed++
		case ArtifactSkipped:
			skipped++
		}
	}
	return completed, failed, skipped
}

// SortedArtifacts returns the artifact results ordered by id.
func (r *ExecutionResult) SortedArtifacts() []*ArtifactResult {
	out := make([]*ArtifactResult, 0, len(r.Artifacts))
	for _, ar := range r.Artifacts {
		out = append(out, ar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Outputs returns the completed artifacts marked output: true, ordered
// by id.
func (r *ExecutionResult) Outputs() []*ArtifactResult {
	out := make([]*ArtifactResult, 0, 4)
	for _, ar := range r.SortedArtifacts() {
		if ar.Output && ar.Status == ArtifactCompleted {
			out = append(out, ar)
		}
	}
	return out
}
