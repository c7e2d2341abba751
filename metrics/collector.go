// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. Journal counters are absorbed
// from the journal's own stats at run completion rather than recorded
// live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the run counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Artifacts
	ArtifactsCompleted int64 `json:"artifacts_completed"`
	ArtifactsFailed    int64 `json:"artifacts_failed"`
	ArtifactsSkipped   int64 `json:"artifacts_skipped"`
	ArtifactsReused    int64 `json:"artifacts_reused"`

	// Messages through the store
	MessagesRead    int64 `json:"messages_read"`
	MessagesWritten int64 `json:"messages_written"`

	// Journal (absorbed at run completion)
	JournalRecordsWritten int64 `json:"journal_records_written"`
	JournalRecordsDropped int64 `json:"journal_records_dropped"`
	JournalWriteErrors    int64 `json:"journal_write_errors"`

	// Concurrency
	PeakInFlight int64 `json:"peak_in_flight"`

	// Dimensions (informational, set at construction)
	RunID          string `json:"run_id,omitempty"`
	Runbook        string `json:"runbook,omitempty"`
	StorageBackend string `json:"storage_backend,omitempty"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Artifacts
	artifactsCompleted int64
	artifactsFailed    int64
	artifactsSkipped   int64
	artifactsReused    int64

	// Messages
	messagesRead    int64
	messagesWritten int64

	// Journal (set once via AbsorbJournalStats)
	journalWritten int64
	journalDropped int64
	journalErrors  int64

	// Concurrency
	inFlight     int64
	peakInFlight int64

	// Dimensions
	runID          string
	runbook        string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels. All dimensions
// are optional.
func NewCollector(runID, runbook, storageBackend string) *Collector {
	return &Collector{
		runID:          runID,
		runbook:        runbook,
		storageBackend: storageBackend,
	}
}

// --- Artifacts ---

// IncArtifactCompleted records a successfully produced artifact.
func (c *Collector) IncArtifactCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsCompleted++
	c.mu.Unlock()
}

// IncArtifactFailed records a failed artifact.
func (c *Collector) IncArtifactFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsFailed++
	c.mu.Unlock()
}

// IncArtifactSkipped records an artifact skipped due to an upstream
// failure.
func (c *Collector) IncArtifactSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsSkipped++
	c.mu.Unlock()
}

// IncArtifactReused records an artifact copied from a prior run. A reused
// artifact also counts as completed.
func (c *Collector) IncArtifactReused() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsReused++
	c.mu.Unlock()
}

// --- Messages ---

// AddMessagesRead records n messages read from the store as inputs.
func (c *Collector) AddMessagesRead(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesRead += n
	c.mu.Unlock()
}

// IncMessagesWritten records a message written to the store.
func (c *Collector) IncMessagesWritten() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesWritten++
	c.mu.Unlock()
}

// --- Concurrency ---

// WorkerStarted records a worker dispatch and updates the in-flight peak.
func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.peakInFlight {
		c.peakInFlight = c.inFlight
	}
	c.mu.Unlock()
}

// WorkerFinished records a worker completion.
func (c *Collector) WorkerFinished() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

// --- Journal ---

// AbsorbJournalStats copies journal counters into the collector. Called
// once after run completion with the final journal stats. Plain int64s
// keep this package free of a dependency on the journal package.
func (c *Collector) AbsorbJournalStats(written, dropped, errors int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWritten = written
	c.journalDropped = dropped
	c.journalErrors = errors
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ArtifactsCompleted: c.artifactsCompleted,
		ArtifactsFailed:    c.artifactsFailed,
		ArtifactsSkipped:   c.artifactsSkipped,
		ArtifactsReused:    c.artifactsReused,

		MessagesRead:    c.messagesRead,
		MessagesWritten: c.messagesWritten,

		JournalRecordsWritten: c.journalWritten,
		JournalRecordsDropped: c.journalDropped,
		JournalWriteErrors:    c.journalErrors,

		PeakInFlight: c.peakInFlight,

		RunID:          c.runID,
		Runbook:        c.runbook,
		StorageBackend: c.storageBackend,
	}
}
