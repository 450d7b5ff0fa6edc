package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/events"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/reportstore"
	"github.com/fathomlabs/diligence/internal/step"
)

// ErrExecutionInFlight is returned by operator actions that are only valid
// while no step execution is in flight.
var ErrExecutionInFlight = errors.New("a step execution is in flight")

// ErrIndexOutOfRange is returned for operator actions on a step index the
// pipeline does not have.
var ErrIndexOutOfRange = errors.New("step index out of range")

// Config configures the engine.
type Config struct {
	// TickInterval is the scheduler cadence while the pipeline is running.
	TickInterval time.Duration

	// StepTimeout bounds a single step execution. Zero disables the
	// deadline; a stalled analysis call then stalls the pipeline until it
	// returns.
	StepTimeout time.Duration

	// AutoMode selects automatic progression at construction time.
	AutoMode bool
}

// Engine owns the pipeline state machine. All state behind mu is mutated
// only by the engine itself and by the registry's sinks, which the engine
// installs on itself; readers observe snapshots between cycles.
type Engine struct {
	registry *step.Registry
	bus      *events.Bus
	store    *reportstore.Store
	metrics  *Metrics
	logger   *zap.Logger

	tickInterval time.Duration
	stepTimeout  time.Duration

	// executing is the execution lock: at most one cycle is ever inside the
	// execute-call critical section. Acquired with a CAS at cycle entry and
	// released on every exit path.
	executing atomic.Bool

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	runID      string
	steps      []pipeline.Step
	current    int
	running    bool
	autoMode   bool
	contexts   map[int]*pipeline.StepContext
	acc        *pipeline.Accumulator
	entity     *pipeline.Entity
	agent      *pipeline.Agent
	logs       []pipeline.LogEntry
	report     *pipeline.Report
	storageKey string
	completed  bool
	loopCancel context.CancelFunc
}

// New creates an engine over the given registry and collaborators. The
// registry's log and status sinks are installed here: the engine is their
// only writer and fans notifications out through the event bus.
func New(cfg Config, registry *step.Registry, bus *events.Bus, store *reportstore.Store,
	entity *pipeline.Entity, agent *pipeline.Agent, metrics *Metrics, logger *zap.Logger) *Engine {

	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	e := &Engine{
		registry:     registry,
		bus:          bus,
		store:        store,
		metrics:      metrics,
		logger:       logger.Named("engine"),
		tickInterval: cfg.TickInterval,
		stepTimeout:  cfg.StepTimeout,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		runID:        uuid.NewString(),
		steps:        pipeline.Template(),
		autoMode:     cfg.AutoMode,
		contexts:     make(map[int]*pipeline.StepContext),
		acc:          pipeline.NewAccumulator(entity),
		entity:       entity,
		agent:        agent,
	}

	registry.SetLogSink(e.onLog)
	registry.SetStatusSink(e.onStepStatus)
	return e
}

// Close stops the scheduler and releases the engine's base context. An
// in-flight execution is allowed to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	stop := e.stopLoopLocked()
	e.mu.Unlock()
	stop()
	e.baseCancel()
}

// Tick runs one sense → decide → act cycle. A call that arrives while a
// cycle is in flight returns immediately with no state change.
func (e *Engine) Tick() {
	if !e.executing.CompareAndSwap(false, true) {
		return
	}
	defer e.executing.Store(false)
	e.cycle()
}

// cycle is the sense → decide → act body. It holds the state mutex only for
// bookkeeping; the external analysis call runs without it so the registry's
// sinks can record progress.
func (e *Engine) cycle() {
	e.mu.Lock()

	if e.entity == nil || e.agent == nil {
		e.logger.Warn("cycle skipped: subject entity or analysis agent unavailable")
		e.mu.Unlock()
		return
	}

	if e.current >= len(e.steps) {
		e.running = false
		after := e.finishLocked()
		e.mu.Unlock()
		after()
		return
	}

	if !e.autoMode && e.current > 0 {
		if sc, ok := e.contexts[e.current]; ok && sc.ManualApproval == pipeline.ApprovalDenied {
			e.running = false
			e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Waiting for approval",
				fmt.Sprintf("Step %d (%s) requires operator approval", e.current, e.steps[e.current].ID),
				pipeline.LogStatusInfo))
			after := e.stopLoopLocked()
			e.mu.Unlock()
			after()
			return
		}
	}

	switch e.steps[e.current].Status {
	case pipeline.StatusCompleted:
		// Advance only; the next step runs on the next cycle.
		if e.current < len(e.steps)-1 {
			e.advanceLocked()
		}
		e.mu.Unlock()
		return
	case pipeline.StatusInProgress:
		e.mu.Unlock()
		return
	}

	kind := e.steps[e.current].ID
	ec := &pipeline.ExecContext{
		Entity:      e.entity,
		Accumulator: e.acc,
		StepContext: e.ctxForLocked(e.current),
		Agent:       e.agent,
		Index:       e.current,
	}
	timeout := e.stepTimeout
	e.mu.Unlock()

	ctx := e.baseCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res := e.registry.ExecuteStep(ctx, kind, ec)
	e.metrics.observeExecution(string(kind), outcomeOf(res), time.Since(start).Seconds())

	e.mu.Lock()
	after := e.applyLocked(kind, res)
	e.mu.Unlock()
	if after != nil {
		after()
	}
}

// applyLocked folds an execution result into the pipeline state and returns
// a cleanup to run after the mutex is released (stopping the scheduler on
// halts).
func (e *Engine) applyLocked(kind pipeline.StepKind, res pipeline.Result) func() {
	if len(res.Updated) > 0 {
		e.acc = e.acc.Merge(res.Updated)
	}

	if !res.Success {
		e.running = false
		e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline halted",
			fmt.Sprintf("Step %q did not complete: %s", kind, res.Err),
			pipeline.LogStatusError))
		return e.stopLoopLocked()
	}

	switch res.Continuation {
	case pipeline.Halt:
		// A gate rejection: the step succeeded and deliberately stopped the
		// pipeline. The index does not advance.
		e.running = false
		e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline halted by gate",
			fmt.Sprintf("Step %q halted the pipeline", kind),
			pipeline.LogStatusWarning))
		return e.stopLoopLocked()

	case pipeline.Jump:
		if res.JumpIndex >= 0 && res.JumpIndex < len(e.steps) {
			e.current = res.JumpIndex
			e.metrics.setCurrentIndex(e.current)
			e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline jump",
				fmt.Sprintf("Step %q moved the pipeline to step %d", kind, res.JumpIndex),
				pipeline.LogStatusInfo))
		}
		return nil

	default: // ContinueNext
		if e.current < len(e.steps)-1 {
			if e.autoMode {
				e.advanceLocked()
				return nil
			}
			next := e.current + 1
			e.ctxForLocked(next).ManualApproval = pipeline.ApprovalDenied
			e.current = next
			e.metrics.setCurrentIndex(e.current)
			e.running = false
			e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Awaiting approval",
				fmt.Sprintf("Step %d (%s) awaits operator approval", next, e.steps[next].ID),
				pipeline.LogStatusInfo))
			return e.stopLoopLocked()
		}

		e.running = false
		return e.finishLocked()
	}
}

// advanceLocked moves the index forward by one and logs the transition.
func (e *Engine) advanceLocked() {
	from := e.steps[e.current].ID
	e.current++
	e.metrics.setCurrentIndex(e.current)
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Advancing",
		fmt.Sprintf("Step %q completed, moving to step %d (%s)", from, e.current, e.steps[e.current].ID),
		pipeline.LogStatusInfo))
}

// finishLocked completes the run: derives the report, hands it to the
// report store, and publishes the completion event exactly once per run.
// Returns the scheduler stop to run outside the mutex.
func (e *Engine) finishLocked() func() {
	stop := e.stopLoopLocked()
	if e.completed {
		return stop
	}
	e.completed = true

	if payload, ok := e.acc.Result(pipeline.KeyGenerateReportResult); ok {
		r := pipeline.ReportFromPayload(payload)
		e.report = &r
	}

	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline completed",
		"All analysis steps finished", pipeline.LogStatusSuccess))

	logs := append([]pipeline.LogEntry(nil), e.logs...)

	if e.store != nil && e.report != nil {
		key, err := e.store.Save(*e.report, logs)
		if err != nil {
			e.logger.Warn("failed to hand report off to storage", zap.Error(err))
		} else {
			e.storageKey = key
		}
	}

	e.logger.Info("pipeline completed",
		zap.String("run_id", e.runID),
		zap.String("storage_key", e.storageKey),
	)
	e.bus.Publish(events.Completed(e.report, logs, e.storageKey))
	return stop
}

// ctxForLocked lazily creates the step context for an index.
func (e *Engine) ctxForLocked(index int) *pipeline.StepContext {
	sc, ok := e.contexts[index]
	if !ok {
		sc = &pipeline.StepContext{}
		e.contexts[index] = sc
	}
	return sc
}

// appendLocked records a log entry and publishes it on the event stream.
func (e *Engine) appendLocked(entry pipeline.LogEntry) {
	e.logs = append(e.logs, entry)
	e.bus.Publish(events.LogEmitted(entry))
}

// onLog is the registry's log sink.
func (e *Engine) onLog(entry pipeline.LogEntry) {
	e.mu.Lock()
	e.appendLocked(entry)
	e.mu.Unlock()
}

// onStepStatus is the registry's status sink. It maintains the invariant
// that a step carries a result exactly when its status is terminal.
func (e *Engine) onStepStatus(kind pipeline.StepKind, status pipeline.StepStatus, payload map[string]any) {
	e.mu.Lock()
	if idx := e.indexOfLocked(kind); idx >= 0 {
		st := &e.steps[idx]
		st.Status = status
		if status.Terminal() {
			if payload == nil {
				payload = map[string]any{}
			}
			st.Result = payload
		} else {
			st.Result = nil
		}
		if status == pipeline.StatusCompleted && kind == pipeline.KindBuildSimulation {
			e.completeSubStepsLocked(st, payload)
		}
	}
	e.mu.Unlock()
	e.bus.Publish(events.StatusChanged(kind, status, payload, pipeline.FailureNone))
}

// completeSubStepsLocked marks the simulation sub-phases completed with
// their slices of the payload, then re-derives the parent status.
func (e *Engine) completeSubStepsLocked(st *pipeline.Step, payload map[string]any) {
	for i := range st.SubSteps {
		sub := &st.SubSteps[i]
		key := pipeline.SimulationSubKeys[sub.ID]
		sub.Result = map[string]any{"items": payload[key]}
		sub.Status = pipeline.StatusCompleted
	}
	st.DeriveStatus()
}

func (e *Engine) indexOfLocked(kind pipeline.StepKind) int {
	for i := range e.steps {
		if e.steps[i].ID == kind {
			return i
		}
	}
	return -1
}

// ensureLoopLocked starts the scheduler task if it is not already running.
func (e *Engine) ensureLoopLocked() {
	if e.loopCancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(e.baseCtx)
	e.loopCancel = cancel
	interval := e.tickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if e.IsRunning() {
					e.Tick()
				}
			}
		}
	}()
}

// stopLoopLocked cancels the scheduler task. The returned function is safe
// to call after the mutex is released and safe to call when no task runs.
func (e *Engine) stopLoopLocked() func() {
	cancel := e.loopCancel
	e.loopCancel = nil
	if cancel == nil {
		return func() {}
	}
	return cancel
}

// IsRunning reports operator intent to progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// IsExecuting reports whether a step execution is in flight.
func (e *Engine) IsExecuting() bool {
	return e.executing.Load()
}

// Accumulator returns the current analysis accumulator. Merges copy on
// write, so the returned value is a stable snapshot.
func (e *Engine) Accumulator() *pipeline.Accumulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc
}

// outcomeOf classifies an execution result for metrics.
func outcomeOf(res pipeline.Result) string {
	switch {
	case res.Success && res.Continuation == pipeline.Halt:
		return outcomeGate
	case res.Success:
		return outcomeSuccess
	case res.Failure == pipeline.FailureBlocked:
		return outcomeBlocked
	case res.Failure == pipeline.FailureUnknownStep:
		return outcomeUnknown
	default:
		return outcomeError
	}
}
