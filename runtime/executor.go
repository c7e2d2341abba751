// Package runtime executes an immutable plan against an artifact store.
//
// The executor is a coordinator goroutine over a bounded pool of worker
// goroutines. The coordinator owns the sorter and the execution state;
// each worker produces exactly one artifact and reports back on a
// channel. Failures are contained per artifact: transitive dependents
// are skipped, independent branches keep running.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/attestor-io/strata/journal"
	"github.com/attestor-io/strata/log"
	"github.com/attestor-io/strata/metrics"
	"github.com/attestor-io/strata/plan"
	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/store"
	"github.com/attestor-io/strata/types"
)

// ExecutorConfig configures one run.
type ExecutorConfig struct {
	// Plan is the validated execution plan. Required.
	Plan *plan.ExecutionPlan
	// Store persists messages, run metadata, and execution state. Required.
	Store store.Store
	// Registry resolves component factories. Required.
	Registry *registry.Registry
	// RunID identifies the run in the store. Required.
	RunID string
	// Resume continues the interrupted run recorded under RunID instead
	// of starting fresh.
	Resume bool
	// MaxConcurrency overrides the runbook's worker bound when positive.
	MaxConcurrency int
	// Timeout overrides the runbook's timeout when positive.
	Timeout time.Duration
	// Logger receives structured run logs. Nil means silent.
	Logger *log.Logger
	// Journal receives run records. Nil disables journalling.
	Journal *journal.Journal
	// Collector receives run metrics. Nil disables collection; all
	// collector methods are nil-safe.
	Collector *metrics.Collector
}

// Executor drives a plan through the store to a terminal run status.
type Executor struct {
	config         *ExecutorConfig
	logger         *log.Logger
	maxConcurrency int
	timeout        time.Duration
}

// NewExecutor validates the config and returns an executor.
func NewExecutor(config *ExecutorConfig) (*Executor, error) {
	switch {
	case config == nil:
		return nil, fmt.Errorf("executor config is required")
	case config.Plan == nil:
		return nil, fmt.Errorf("executor needs an execution plan")
	case config.Store == nil:
		return nil, fmt.Errorf("executor needs a store")
	case config.Registry == nil:
		return nil, fmt.Errorf("executor needs a component registry")
	case config.RunID == "":
		return nil, fmt.Errorf("executor needs a run id")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithRun(config.RunID, config.Plan.Runbook.Name)

	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = config.Plan.Runbook.MaxConcurrency()
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	timeout := config.Timeout
	if timeout <= 0 && config.Plan.Runbook.Config.Timeout > 0 {
		timeout = time.Duration(config.Plan.Runbook.Config.Timeout) * time.Second
	}

	return &Executor{
		config:         config,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		timeout:        timeout,
	}, nil
}

// workerResult is what a worker reports back to the coordinator.
type workerResult struct {
	id       string
	err      error
	duration time.Duration
	reused   bool
}

// Execute runs the plan to completion and returns the aggregated result.
//
// Flow:
//  1. Load or initialise run metadata and state; mark the run running.
//  2. Seed the sorter with already-terminal artifacts (resume).
//  3. Dispatch ready artifacts to workers, bounded by max_concurrency,
//     in sorted id order.
//  4. Handle one worker outcome at a time; persist state after each.
//  5. On timeout or cancellation, stop dispatching and drain in-flight
//     workers.
//  6. Finalise metadata, journal, and metrics; build the result.
//
// Setup errors (unreadable state, changed runbook, active run) are
// returned; errors during production never are. They are contained in
// the per-artifact results.
func (e *Executor) Execute(ctx context.Context) (*ExecutionResult, error) {
	sessionStart := time.Now()
	p := e.config.Plan
	ids := p.ArtifactIDs()

	meta, state, err := e.prepare(ctx, ids)
	if err != nil {
		return nil, err
	}

	e.logger.Info("run started", map[string]any{
		"artifacts":       len(ids),
		"max_concurrency": e.maxConcurrency,
		"resume":          e.config.Resume,
	})
	e.config.Journal.RunStarted(ctx, p.Runbook.Name, len(ids))

	results := make(map[string]*ArtifactResult, len(ids))
	if e.config.Resume {
		e.restoreResults(ctx, state, results)
	}

	sorter := p.DAG.Sorter()
	for id := range state.Completed {
		sorter.Done(id)
	}
	for id := range state.Failed {
		sorter.Done(id)
	}
	for id := range state.Skipped {
		sorter.Done(id)
	}

	workerC := make(chan workerResult)
	doneC := ctx.Done()
	var timeoutC <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var pendingReady []string
	inFlight := 0
	halted := false
	haltReason := ""

	for {
		if !halted {
			pendingReady = append(pendingReady, sorter.Ready()...)
			sort.Strings(pendingReady)
			for inFlight < e.maxConcurrency && len(pendingReady) > 0 {
				id := pendingReady[0]
				pendingReady = pendingReady[1:]
				e.config.Collector.WorkerStarted()
				inFlight++
				go e.produce(ctx, id, workerC)
			}
		}
		if inFlight == 0 {
			// Either the plan is exhausted, the run was halted, or
			// nothing left is reachable.
			break
		}

		select {
		case res := <-workerC:
			inFlight--
			e.config.Collector.WorkerFinished()
			e.handleOutcome(ctx, res, state, sorter, results)
			e.persistState(ctx, state)
		case <-timeoutC:
			halted = true
			haltReason = "timeout"
			timeoutC = nil
			e.logger.Warn("run timed out, draining in-flight work", map[string]any{
				"in_flight": inFlight,
				"timeout":   e.timeout.String(),
			})
		case <-doneC:
			halted = true
			haltReason = "canceled"
			doneC = nil
			e.logger.Warn("run canceled, draining in-flight work", map[string]any{
				"in_flight": inFlight,
			})
		}
	}

	return e.finish(ctx, meta, state, results, sessionStart, haltReason), nil
}

// prepare loads or initialises the run's metadata and state and marks
// the run as running.
func (e *Executor) prepare(ctx context.Context, ids []string) (*types.RunMetadata, *types.ExecutionState, error) {
	p := e.config.Plan
	st := e.config.Store
	runID := e.config.RunID

	if e.config.Resume {
		meta, err := st.LoadRunMetadata(ctx, runID)
		if err != nil {
			return nil, nil, fmt.Errorf("resume run %s: %w", runID, err)
		}
		if meta.Status == types.RunStatusRunning {
			return nil, nil, &RunActiveError{RunID: runID}
		}
		if meta.RunbookHash != p.RunbookHash {
			return nil, nil, &RunbookChangedError{
				RunID:       runID,
				StoredHash:  meta.RunbookHash,
				CurrentHash: p.RunbookHash,
			}
		}
		state, err := st.LoadState(ctx, runID)
		if err != nil {
			return nil, nil, fmt.Errorf("resume run %s: %w", runID, err)
		}
		if err := state.Verify(ids); err != nil {
			return nil, nil, fmt.Errorf("resume run %s: %w", runID, err)
		}
		meta.Status = types.RunStatusRunning
		meta.EndTime = nil
		if err := st.SaveRunMetadata(ctx, meta); err != nil {
			return nil, nil, fmt.Errorf("resume run %s: %w", runID, err)
		}
		return meta, state, nil
	}

	meta := &types.RunMetadata{
		RunID:       runID,
		RunbookPath: p.RunbookPath,
		RunbookHash: p.RunbookHash,
		StartTime:   time.Now().UTC(),
		Status:      types.RunStatusRunning,
	}
	state := types.NewExecutionState(ids)
	if err := st.SaveRunMetadata(ctx, meta); err != nil {
		return nil, nil, fmt.Errorf("start run %s: %w", runID, err)
	}
	if err := st.SaveState(ctx, runID, state); err != nil {
		return nil, nil, fmt.Errorf("start run %s: %w", runID, err)
	}
	return meta, state, nil
}

// restoreResults rebuilds result entries for artifacts that reached a
// terminal state in a previous session. Completed artifacts recover
// their execution context from the stored message when readable.
func (e *Executor) restoreResults(ctx context.Context, state *types.ExecutionState, results map[string]*ArtifactResult) {
	for id := range state.Completed {
		ar := e.newResult(id, ArtifactCompleted)
		ar.Restored = true
		if msg, err := e.config.Store.Get(ctx, e.config.RunID, id); err == nil {
			ec := msg.Execution()
			ar.Duration = time.Duration(ec.DurationSeconds * float64(time.Second))
			if ec.Alias != "" {
				ar.Alias = ec.Alias
			}
		}
		results[id] = ar
	}
	for id := range state.Failed {
		ar := e.newResult(id, ArtifactFailed)
		ar.Restored = true
		// The error text lived only in the session that produced it; the
		// persisted state records the transition alone.
		ar.Error = "failed in a previous session (error detail not retained)"
		results[id] = ar
	}
	for id := range state.Skipped {
		ar := e.newResult(id, ArtifactSkipped)
		ar.Restored = true
		results[id] = ar
	}
}

// newResult builds a result entry with the plan-derived fields filled.
func (e *Executor) newResult(id string, status ArtifactStatus) *ArtifactResult {
	p := e.config.Plan
	ar := &ArtifactResult{
		ID:     id,
		Alias:  p.Alias(id),
		Status: status,
	}
	if fa := p.Artifacts[id]; fa != nil {
		ar.Origin = fa.Origin
		ar.Output = fa.Definition.Output
		ar.Optional = fa.Definition.Optional
		ar.Redacted = fa.Redacted
	}
	return ar
}

// handleOutcome applies one worker result to the run: state transition,
// journal record, metrics, logging, and the failure skip cascade.
func (e *Executor) handleOutcome(ctx context.Context, res workerResult, state *types.ExecutionState, sorter *plan.Sorter, results map[string]*ArtifactResult) {
	fa := e.config.Plan.Artifacts[res.id]

	if res.err != nil {
		state.MarkFailed(res.id)
		sorter.Done(res.id)
		e.config.Collector.IncArtifactFailed()
		e.config.Journal.ArtifactFailed(ctx, res.id, fa.Origin, res.duration, res.err.Error())
		e.logger.Error("artifact failed", map[string]any{
			"artifact": res.id,
			"origin":   fa.Origin,
			"optional": fa.Definition.Optional,
			"error":    res.err.Error(),
		})

		ar := e.newResult(res.id, ArtifactFailed)
		ar.Error = res.err.Error()
		ar.Duration = res.duration
		results[res.id] = ar

		e.skipDependents(ctx, res.id, state, sorter, results)
		return
	}

	state.MarkCompleted(res.id)
	sorter.Done(res.id)
	e.config.Collector.IncArtifactCompleted()
	if res.reused {
		e.config.Collector.IncArtifactReused()
	}
	ar := e.newResult(res.id, ArtifactCompleted)
	ar.Duration = res.duration
	ar.Reused = res.reused
	results[res.id] = ar

	e.config.Journal.ArtifactCompleted(ctx, res.id, fa.Origin, ar.Alias, res.duration)
	e.logger.Info("artifact completed", map[string]any{
		"artifact":    res.id,
		"origin":      fa.Origin,
		"duration_ms": res.duration.Milliseconds(),
		"reused":      res.reused,
	})
}

// skipDependents marks every transitive dependent of the failed id as
// skipped and reports each to the sorter so the walk can continue past
// them.
func (e *Executor) skipDependents(ctx context.Context, cause string, state *types.ExecutionState, sorter *plan.Sorter, results map[string]*ArtifactResult) {
	dag := e.config.Plan.DAG
	queue := append([]string(nil), dag.Dependents(cause)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if state.IsTerminal(id) {
			continue
		}
		state.MarkSkipped(id)
		sorter.Done(id)
		e.config.Collector.IncArtifactSkipped()

		ar := e.newResult(id, ArtifactSkipped)
		ar.Cause = cause
		results[id] = ar

		e.config.Journal.ArtifactSkipped(ctx, id, ar.Origin, cause)
		e.logger.Info("artifact skipped", map[string]any{
			"artifact": id,
			"cause":    cause,
		})
		queue = append(queue, dag.Dependents(id)...)
	}
}

// persistState checkpoints the execution state. Persistence failures
// are logged, never fatal; the last successful write wins on resume.
func (e *Executor) persistState(ctx context.Context, state *types.ExecutionState) {
	if err := e.config.Store.SaveState(ctx, e.config.RunID, state); err != nil {
		e.logger.Error("state persistence failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// finish derives the run status, finalises metadata and the journal,
// absorbs journal counters into metrics, and builds the result.
func (e *Executor) finish(ctx context.Context, meta *types.RunMetadata, state *types.ExecutionState, results map[string]*ArtifactResult, sessionStart time.Time, haltReason string) *ExecutionResult {
	p := e.config.Plan
	e.persistState(ctx, state)

	status, reason := e.deriveStatus(state, haltReason)
	end := time.Now().UTC()
	meta.Status = status
	meta.EndTime = &end
	if err := e.config.Store.SaveRunMetadata(ctx, meta); err != nil {
		e.logger.Error("run metadata persistence failed", map[string]any{
			"error": err.Error(),
		})
	}

	duration := time.Since(sessionStart)
	e.config.Journal.RunFinished(ctx, p.Runbook.Name, status,
		len(state.Completed), len(state.Failed), len(state.Skipped), duration)
	e.config.Journal.Flush(ctx)
	js := e.config.Journal.Stats()
	e.config.Collector.AbsorbJournalStats(js.Written, js.Dropped, js.Errors)

	e.logger.Info("run finished", map[string]any{
		"status":      string(status),
		"reason":      reason,
		"completed":   len(state.Completed),
		"failed":      len(state.Failed),
		"skipped":     len(state.Skipped),
		"not_started": len(state.NotStarted),
		"duration_ms": duration.Milliseconds(),
	})

	notStarted := make([]string, 0, len(state.NotStarted))
	for id := range state.NotStarted {
		notStarted = append(notStarted, id)
	}
	sort.Strings(notStarted)

	return &ExecutionResult{
		RunID:       e.config.RunID,
		RunbookName: p.Runbook.Name,
		RunbookPath: p.RunbookPath,
		Status:      status,
		Reason:      reason,
		StartTime:   meta.StartTime,
		EndTime:     end,
		Duration:    duration,
		Artifacts:   results,
		NotStarted:  notStarted,
	}
}

// deriveStatus maps the final state onto a run status. A halt (timeout
// or cancellation) always fails the run; otherwise only non-optional
// failures do.
func (e *Executor) deriveStatus(state *types.ExecutionState, haltReason string) (types.RunStatus, string) {
	if haltReason != "" {
		return types.RunStatusFailed, haltReason
	}
	for id := range state.Failed {
		fa := e.config.Plan.Artifacts[id]
		if fa == nil || !fa.Definition.Optional {
			return types.RunStatusFailed, ""
		}
	}
	return types.RunStatusCompleted, ""
}

// produce runs in a worker goroutine: it builds the artifact's message,
// tags it with an execution context, and saves it. Exactly one result
// is always reported, even on panic.
func (e *Executor) produce(ctx context.Context, id string, out chan<- workerResult) {
	start := time.Now()
	msg, reused, err := e.produceMessage(ctx, id)
	if err == nil {
		fa := e.config.Plan.Artifacts[id]
		tagged := msg.WithExecution(types.ExecutionContext{
			Status:          types.ExecStatusSuccess,
			Origin:          fa.Origin,
			Alias:           e.config.Plan.Alias(id),
			DurationSeconds: time.Since(start).Seconds(),
		})
		if saveErr := e.config.Store.Save(ctx, e.config.RunID, id, &tagged); saveErr != nil {
			err = fmt.Errorf("save artifact: %w", saveErr)
		} else {
			e.config.Collector.IncMessagesWritten()
		}
	}
	out <- workerResult{id: id, err: err, duration: time.Since(start), reused: reused}
}

// produceMessage builds the message for one artifact according to its
// production method. Component panics are captured as errors so a
// misbehaving plugin cannot take down the run.
func (e *Executor) produceMessage(ctx context.Context, id string) (msg *types.Message, reused bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, reused = nil, false
			err = fmt.Errorf("component panic: %v", r)
		}
	}()

	fa := e.config.Plan.Artifacts[id]
	d := fa.Definition
	resolved := e.config.Plan.Schemas[id].Output

	switch {
	case d.Reuse != nil:
		stored, err := e.config.Store.Get(ctx, d.Reuse.FromRun, d.Reuse.Artifact)
		if err != nil {
			return nil, false, fmt.Errorf("reuse %q from run %s: %w", d.Reuse.Artifact, d.Reuse.FromRun, err)
		}
		e.config.Collector.AddMessagesRead(1)
		if !stored.Schema.Compatible(resolved) {
			return nil, false, fmt.Errorf("reused message has schema %s, artifact declares %s",
				stored.Schema.Ref(), resolved.Ref())
		}
		return stored, true, nil

	case d.Source != nil:
		factory, ok := e.config.Registry.Connector(d.Source.Type)
		if !ok {
			return nil, false, fmt.Errorf("connector %q is not registered", d.Source.Type)
		}
		if !factory.CanCreate(d.Source.Properties) {
			return nil, false, &UnavailableError{Artifact: id, Kind: "connector", Component: d.Source.Type}
		}
		connector, err := factory.Create(d.Source.Properties)
		if err != nil {
			return nil, false, fmt.Errorf("create connector %q: %w", d.Source.Type, err)
		}
		produced, err := connector.Extract(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("extract: %w", err)
		}
		if err := checkProduced(produced, resolved); err != nil {
			return nil, false, err
		}
		return produced, false, nil

	default:
		inputs, err := e.readInputs(ctx, d.Inputs)
		if err != nil {
			return nil, false, err
		}
		if d.Process == nil {
			merged := mergeConcatenate(inputs, resolved)
			return &merged, false, nil
		}
		factory, ok := e.config.Registry.Analyser(d.Process.Type)
		if !ok {
			return nil, false, fmt.Errorf("analyser %q is not registered", d.Process.Type)
		}
		if !factory.CanCreate(d.Process.Properties) {
			return nil, false, &UnavailableError{Artifact: id, Kind: "analyser", Component: d.Process.Type}
		}
		analyser, err := factory.Create(d.Process.Properties)
		if err != nil {
			return nil, false, fmt.Errorf("create analyser %q: %w", d.Process.Type, err)
		}
		produced, err := analyser.Process(ctx, inputs, resolved)
		if err != nil {
			return nil, false, fmt.Errorf("process: %w", err)
		}
		if err := checkProduced(produced, resolved); err != nil {
			return nil, false, err
		}
		return produced, false, nil
	}
}

// readInputs loads the upstream messages in declared order, preserving
// multiplicity.
func (e *Executor) readInputs(ctx context.Context, inputIDs []string) ([]*types.Message, error) {
	inputs := make([]*types.Message, 0, len(inputIDs))
	for _, depID := range inputIDs {
		msg, err := e.config.Store.Get(ctx, e.config.RunID, depID)
		if err != nil {
			return nil, fmt.Errorf("read input %q: %w", depID, err)
		}
		inputs = append(inputs, msg)
	}
	e.config.Collector.AddMessagesRead(int64(len(inputs)))
	return inputs, nil
}

// checkProduced validates a component's message against the schema the
// planner resolved for the artifact.
func checkProduced(msg *types.Message, want types.Schema) error {
	if msg == nil {
		return fmt.Errorf("component returned no message")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if !msg.Schema.Compatible(want) {
		return fmt.Errorf("component produced schema %s, plan resolved %s",
			msg.Schema.Ref(), want.Ref())
	}
	return nil
}

// mergeConcatenate fans same-schema messages into one. Canonical
// content handling: a single input passes through unchanged; contents
// that are maps carrying a "records" list merge into one such map; list
// contents append; anything else is wrapped in a list.
func mergeConcatenate(inputs []*types.Message, schema types.Schema) types.Message {
	if len(inputs) == 1 {
		return types.NewMessage(schema, inputs[0].Content)
	}
	if merged, ok := mergeRecords(inputs); ok {
		return types.NewMessage(schema, map[string]any{"records": merged})
	}
	out := make([]any, 0, len(inputs))
	for _, in := range inputs {
		if list, ok := in.Content.([]any); ok {
			out = append(out, list...)
		} else {
			out = append(out, in.Content)
		}
	}
	return types.NewMessage(schema, out)
}

func mergeRecords(inputs []*types.Message) ([]any, bool) {
	merged := make([]any, 0, 16)
	for _, in := range inputs {
		m, ok := in.Content.(map[string]any)
		if !ok {
			return nil, false
		}
		list, ok := m["records"].([]any)
		if !ok {
			return nil, false
		}
		merged = append(merged, list...)
	}
	return merged, true
}
