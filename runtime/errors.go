package runtime

import "fmt"

// RunbookChangedError is returned when resuming a run whose stored
// runbook hash no longer matches the file on disk. The hash covers the
// parent runbook only; edits to child runbooks between interrupt and
// resume go undetected.
type RunbookChangedError struct {
	RunID       string
	StoredHash  string
	CurrentHash string
}

func (e *RunbookChangedError) Error() string {
	return fmt.Sprintf("runbook changed since run %s started (hash %s, now %s); start a new run",
		e.RunID, short(e.StoredHash), short(e.CurrentHash))
}

// RunActiveError is returned when resuming a run whose metadata still
// says "running": either another process owns it or the previous one
// died without finalising. Resolution is manual.
type RunActiveError struct {
	RunID string
}

func (e *RunActiveError) Error() string {
	return fmt.Sprintf("run %s is marked running; it may be active in another process", e.RunID)
}

// UnavailableError marks an artifact failure caused by a component
// factory declining creation, typically a missing credential or service.
type UnavailableError struct {
	Artifact  string
	Kind      string
	Component string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %q is unavailable for artifact %q", e.Kind, e.Component, e.Artifact)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
