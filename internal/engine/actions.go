package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fathomlabs/diligence/internal/events"
	"github.com/fathomlabs/diligence/internal/pipeline"
)

// Start marks the pipeline running, launches the scheduler, and runs one
// cycle immediately. If the previous run had already finished, the step list
// and index are reset to the template first.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.current >= len(e.steps) {
		e.steps = pipeline.Template()
		e.current = 0
		e.completed = false
		e.report = nil
		e.storageKey = ""
		e.metrics.setCurrentIndex(0)
	}
	e.running = true
	e.ensureLoopLocked()
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline started",
		fmt.Sprintf("Resuming at step %d", e.current), pipeline.LogStatusInfo))
	e.mu.Unlock()

	go e.Tick()
}

// Pause stops operator intent to progress and cancels the scheduler task so
// no further cycle starts. An in-flight execution completes and its result
// is still applied.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.running = false
	stop := e.stopLoopLocked()
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline paused",
		"Operator paused the pipeline", pipeline.LogStatusInfo))
	e.mu.Unlock()
	stop()
}

// SetMode switches between automatic and manual progression.
func (e *Engine) SetMode(auto bool) {
	e.mu.Lock()
	e.autoMode = auto
	e.mu.Unlock()
}

// Approve marks the step completed (idempotent if it already is), records
// the approval, and resumes progression: in manual mode the pipeline runs
// again, in auto mode the index simply moves past the step.
func (e *Engine) Approve(index int) error {
	if e.executing.Load() {
		return ErrExecutionInFlight
	}

	e.mu.Lock()
	if index < 0 || index >= len(e.steps) {
		e.mu.Unlock()
		return fmt.Errorf("approve: %w: %d", ErrIndexOutOfRange, index)
	}

	// A step that already ran is confirmed completed (idempotent if it
	// already is). A step that has not run yet keeps its status: approval
	// lifts the gate so it executes on the next cycle.
	st := &e.steps[index]
	if st.Status != pipeline.StatusCompleted && st.Result != nil {
		st.Status = pipeline.StatusCompleted
		e.bus.Publish(events.StatusChanged(st.ID, pipeline.StatusCompleted, st.Result, pipeline.FailureNone))
	}
	e.ctxForLocked(index).ManualApproval = pipeline.ApprovalGranted
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Step approved",
		fmt.Sprintf("Operator approved step %d (%s)", index, st.ID), pipeline.LogStatusSuccess))

	if e.autoMode {
		e.current = index + 1
		e.metrics.setCurrentIndex(e.current)
	} else {
		e.running = true
		e.ensureLoopLocked()
	}
	e.mu.Unlock()
	return nil
}

// Reject marks the step as errored with a rejection payload and halts the
// pipeline. The operator decides whether to rerun or abandon.
func (e *Engine) Reject(index int) error {
	if e.executing.Load() {
		return ErrExecutionInFlight
	}

	e.mu.Lock()
	if index < 0 || index >= len(e.steps) {
		e.mu.Unlock()
		return fmt.Errorf("reject: %w: %d", ErrIndexOutOfRange, index)
	}

	st := &e.steps[index]
	st.Status = pipeline.StatusError
	st.Result = map[string]any{"error": "rejected by operator"}
	e.running = false
	stop := e.stopLoopLocked()
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Step rejected",
		fmt.Sprintf("Operator rejected step %d (%s)", index, st.ID), pipeline.LogStatusError))
	e.bus.Publish(events.StatusChanged(st.ID, pipeline.StatusError, st.Result, pipeline.FailureUserRejection))
	e.mu.Unlock()

	stop()
	return nil
}

// Rerun resets a step to pending, increments its retry count, repositions
// the pipeline at it, and resumes. The optional hint is carried to the
// processor as additional context for the retry. Rerun is the only action
// that increments a retry count.
func (e *Engine) Rerun(index int, hint string) error {
	if e.executing.Load() {
		return ErrExecutionInFlight
	}

	e.mu.Lock()
	if index < 0 || index >= len(e.steps) {
		e.mu.Unlock()
		return fmt.Errorf("rerun: %w: %d", ErrIndexOutOfRange, index)
	}

	template := pipeline.Template()
	if index < len(template) && template[index].ID == e.steps[index].ID {
		e.steps[index] = template[index]
	} else {
		e.steps[index].Status = pipeline.StatusPending
		e.steps[index].Result = nil
	}

	sc := e.ctxForLocked(index)
	sc.RetryCount++
	if hint != "" {
		sc.AdditionalInfo = hint
	}
	// A rerun is an explicit operator action; lift a pending approval gate
	// so the step can execute.
	if sc.ManualApproval == pipeline.ApprovalDenied {
		sc.ManualApproval = pipeline.ApprovalUnset
	}

	e.current = index
	e.metrics.setCurrentIndex(index)
	e.metrics.observeRerun(string(e.steps[index].ID))
	e.completed = false
	e.running = true
	e.ensureLoopLocked()
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Step rerun",
		fmt.Sprintf("Operator requested rerun of step %d (%s), attempt %d",
			index, e.steps[index].ID, sc.RetryCount+1),
		pipeline.LogStatusInfo))
	e.bus.Publish(events.StatusChanged(e.steps[index].ID, pipeline.StatusPending, nil, pipeline.FailureNone))
	e.mu.Unlock()
	return nil
}

// ResetAll restores the step template verbatim, clears every step context
// and the derived report, re-seeds the accumulator preserving only the
// subject entity, and restarts from step 0.
func (e *Engine) ResetAll() error {
	if e.executing.Load() {
		return ErrExecutionInFlight
	}

	e.mu.Lock()
	e.runID = uuid.NewString()
	e.steps = pipeline.Template()
	e.contexts = make(map[int]*pipeline.StepContext)
	e.acc = pipeline.NewAccumulator(e.entity)
	e.report = nil
	e.storageKey = ""
	e.completed = false
	e.current = 0
	e.metrics.setCurrentIndex(0)
	e.running = true
	e.logs = nil
	e.ensureLoopLocked()
	e.appendLocked(pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline reset",
		"Operator reset the pipeline, restarting from the first step", pipeline.LogStatusInfo))
	e.mu.Unlock()
	return nil
}

// Snapshot is a point-in-time copy of the engine state for observers.
type Snapshot struct {
	RunID        string                       `json:"runId"`
	Steps        []pipeline.Step              `json:"steps"`
	CurrentIndex int                          `json:"currentIndex"`
	Running      bool                         `json:"running"`
	Executing    bool                         `json:"executing"`
	AutoMode     bool                         `json:"autoMode"`
	Contexts     map[int]pipeline.StepContext `json:"stepContexts"`
	Report       *pipeline.Report             `json:"report,omitempty"`
	StorageKey   string                       `json:"storageKey,omitempty"`
	Logs         []pipeline.LogEntry          `json:"logs"`
}

// Snapshot copies the observable state. Observers never see mid-cycle
// mutations.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps := make([]pipeline.Step, len(e.steps))
	for i, s := range e.steps {
		steps[i] = s.Clone()
	}
	contexts := make(map[int]pipeline.StepContext, len(e.contexts))
	for i, sc := range e.contexts {
		contexts[i] = *sc
	}

	return Snapshot{
		RunID:        e.runID,
		Steps:        steps,
		CurrentIndex: e.current,
		Running:      e.running,
		Executing:    e.executing.Load(),
		AutoMode:     e.autoMode,
		Contexts:     contexts,
		Report:       e.report,
		StorageKey:   e.storageKey,
		Logs:         append([]pipeline.LogEntry(nil), e.logs...),
	}
}
