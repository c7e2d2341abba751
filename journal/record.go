// Package journal writes the append-only record stream of a run: run
// lifecycle and per-artifact outcomes, persisted through lode with a
// day/run_id/event_type Hive layout and the JSONL codec.
//
// Journal writes are best-effort. A write failure is logged and counted,
// never surfaced to the executor; losing journal records must not fail a
// run that produced its artifacts.
package journal

import "time"

// Kind discriminates journal records.
type Kind string

const (
	KindRunStarted        Kind = "run_started"
	KindArtifactCompleted Kind = "artifact_completed"
	KindArtifactFailed    Kind = "artifact_failed"
	KindArtifactSkipped   Kind = "artifact_skipped"
	KindRunFinished       Kind = "run_finished"
)

// DeriveDay computes the day partition value from the run start time.
// Format: YYYY-MM-DD in UTC. All records of a run share its start day, so
// a run never straddles partitions.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Record is one journal entry. RunID, Seq, Day and Time are stamped by the
// Journal; the kind-specific fields are set by the emitting call.
type Record struct {
	Kind  Kind
	RunID string
	Seq   int64
	Time  time.Time
	Day   string

	// run_started and run_finished
	Runbook string
	Planned int

	// artifact records
	Artifact   string
	Origin     string
	Alias      string
	Cause      string
	DurationMS int64
	Error      string

	// run_finished
	Status    string
	Completed int
	Failed    int
	Skipped   int
}

// toMap converts the record for lode storage. The Hive layout reads
// partition values from map keys, so records must be maps, not structs.
func (r Record) toMap() map[string]any {
	m := map[string]any{
		"kind":       string(r.Kind),
		"event_type": string(r.Kind), // partition key
		"run_id":     r.RunID,
		"seq":        r.Seq,
		"ts":         r.Time.UTC().Format(time.RFC3339Nano),
		"day":        r.Day,
	}
	if r.Runbook != "" {
		m["runbook"] = r.Runbook
	}
	if r.Planned > 0 {
		m["planned"] = r.Planned
	}
	if r.Artifact != "" {
		m["artifact"] = r.Artifact
	}
	if r.Origin != "" {
		m["origin"] = r.Origin
	}
	if r.Alias != "" {
		m["alias"] = r.Alias
	}
	if r.Cause != "" {
		m["cause"] = r.Cause
	}
	if r.DurationMS > 0 {
		m["duration_ms"] = r.DurationMS
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Kind == KindRunFinished {
		m["status"] = r.Status
		m["completed"] = r.Completed
		m["failed"] = r.Failed
		m["skipped"] = r.Skipped
	}
	return m
}
