package journal

import (
	"context"
	"sync"
	"time"

	"github.com/attestor-io/strata/log"
	"github.com/attestor-io/strata/types"
)

// DefaultBatchSize is the flush threshold when Config leaves it zero.
const DefaultBatchSize = 32

// Config pins the per-run partition values and buffering behaviour of a
// Journal.
type Config struct {
	// RunID is the run every record is stamped with.
	RunID string
	// Day is the day partition value, from DeriveDay(run start).
	Day string
	// BatchSize is the number of buffered records that triggers a flush.
	// Zero means DefaultBatchSize.
	BatchSize int
	// Logger receives write-failure warnings. Nil means no logging.
	Logger *log.Logger
}

// Stats is a snapshot of a journal's write counters.
type Stats struct {
	Written int64
	Dropped int64
	Errors  int64
}

// Journal buffers records and writes them to a Client in batches: every
// BatchSize records and on Flush or Close. A failed batch is dropped and
// counted, never retried and never surfaced.
//
// A nil *Journal is valid and records nothing, so callers running without
// a journal need no guards.
type Journal struct {
	client Client
	config Config
	logger *log.Logger

	mu      sync.Mutex
	seq     int64
	buffer  []Record
	written int64
	dropped int64
	errors  int64
}

// New creates a journal writing to client.
func New(client Client, config Config) *Journal {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Journal{
		client: client,
		config: config,
		logger: logger,
		buffer: make([]Record, 0, config.BatchSize),
	}
}

// RunStarted records the start of a run over a planned artifact count.
func (j *Journal) RunStarted(ctx context.Context, runbook string, planned int) {
	j.add(ctx, Record{Kind: KindRunStarted, Runbook: runbook, Planned: planned})
}

// ArtifactCompleted records a successfully produced artifact.
func (j *Journal) ArtifactCompleted(ctx context.Context, artifact, origin, alias string, d time.Duration) {
	j.add(ctx, Record{
		Kind:       KindArtifactCompleted,
		Artifact:   artifact,
		Origin:     origin,
		Alias:      alias,
		DurationMS: d.Milliseconds(),
	})
}

// ArtifactFailed records a failed artifact and its error text.
func (j *Journal) ArtifactFailed(ctx context.Context, artifact, origin string, d time.Duration, errMsg string) {
	j.add(ctx, Record{
		Kind:       KindArtifactFailed,
		Artifact:   artifact,
		Origin:     origin,
		DurationMS: d.Milliseconds(),
		Error:      errMsg,
	})
}

// ArtifactSkipped records an artifact skipped because cause failed
// upstream.
func (j *Journal) ArtifactSkipped(ctx context.Context, artifact, origin, cause string) {
	j.add(ctx, Record{Kind: KindArtifactSkipped, Artifact: artifact, Origin: origin, Cause: cause})
}

// RunFinished records the terminal run outcome.
func (j *Journal) RunFinished(ctx context.Context, runbook string, status types.RunStatus, completed, failed, skipped int, d time.Duration) {
	j.add(ctx, Record{
		Kind:       KindRunFinished,
		Runbook:    runbook,
		Status:     string(status),
		Completed:  completed,
		Failed:     failed,
		Skipped:    skipped,
		DurationMS: d.Milliseconds(),
	})
}

func (j *Journal) add(ctx context.Context, rec Record) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.seq++
	rec.Seq = j.seq
	rec.RunID = j.config.RunID
	rec.Day = j.config.Day
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	j.buffer = append(j.buffer, rec)
	full := len(j.buffer) >= j.config.BatchSize
	j.mu.Unlock()

	if full {
		j.Flush(ctx)
	}
}

// Flush writes the buffered records. On failure the batch is dropped and
// a warning logged; records accepted after the flush began are unaffected.
func (j *Journal) Flush(ctx context.Context) {
	if j == nil {
		return
	}
	j.mu.Lock()
	batch := j.buffer
	j.buffer = nil
	j.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := j.client.WriteRecords(ctx, batch); err != nil {
		j.mu.Lock()
		j.dropped += int64(len(batch))
		j.errors++
		j.mu.Unlock()
		j.logger.Warn("journal write failed, dropping batch", map[string]any{
			"run_id":  j.config.RunID,
			"records": len(batch),
			"error":   err.Error(),
		})
		return
	}

	j.mu.Lock()
	j.written += int64(len(batch))
	j.mu.Unlock()
}

// Close flushes the remaining records and releases the client.
func (j *Journal) Close(ctx context.Context) error {
	if j == nil {
		return nil
	}
	j.Flush(ctx)
	return j.client.Close()
}

// Stats returns a snapshot of the write counters.
func (j *Journal) Stats() Stats {
	if j == nil {
		return Stats{}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{Written: j.written, Dropped: j.dropped, Errors: j.errors}
}
