package step

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// LogSink receives structured log entries emitted during step execution.
type LogSink func(entry pipeline.LogEntry)

// StatusSink receives step status transitions with the associated payload.
type StatusSink func(kind pipeline.StepKind, status pipeline.StepStatus, payload map[string]any)

// Registry holds the processor set and wraps execution with preconditions,
// logging, and status notification. It holds at most one log sink and one
// status sink (last writer wins); the engine owns both and fans events out
// to subscribers itself.
type Registry struct {
	mu         sync.RWMutex
	processors map[pipeline.StepKind]Processor
	logSink    LogSink
	statusSink StatusSink
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		processors: make(map[pipeline.StepKind]Processor),
		logger:     logger.Named("registry"),
	}
}

// Register upserts a processor under its kind. Registering the same kind
// twice replaces the previous processor.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Kind()] = p
}

// SetLogSink installs the log notification sink.
func (r *Registry) SetLogSink(sink LogSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logSink = sink
}

// SetStatusSink installs the status notification sink.
func (r *Registry) SetStatusSink(sink StatusSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusSink = sink
}

// ExecuteStep resolves kind to its processor and runs it through the full
// lifecycle: precondition check, in-progress notification, execution,
// terminal status notification, log flush. The processor's result is
// returned unchanged in all cases.
//
// An unknown kind or a false precondition short-circuits before any status
// mutation: the step is not marked in-progress and no external call happens.
func (r *Registry) ExecuteStep(ctx context.Context, kind pipeline.StepKind, ec *pipeline.ExecContext) pipeline.Result {
	r.mu.RLock()
	p, ok := r.processors[kind]
	r.mu.RUnlock()

	if !ok {
		msg := fmt.Sprintf("no processor registered for step %q", kind)
		r.logger.Error("unknown step", zap.String("step", string(kind)))
		r.emitLog(pipeline.NewLog(pipeline.LogTypeSystem, "Unknown step", msg, pipeline.LogStatusError))
		return pipeline.Failed(pipeline.FailureUnknownStep, msg)
	}

	if !p.CanExecute(ctx, ec) {
		msg := fmt.Sprintf("step %q preconditions not met", kind)
		r.logger.Warn("step blocked", zap.String("step", string(kind)))
		r.emitLog(pipeline.NewLog(pipeline.LogTypeSystem, "Step blocked", msg, pipeline.LogStatusWarning))
		return pipeline.Failed(pipeline.FailureBlocked, msg)
	}

	r.notifyStatus(kind, pipeline.StatusInProgress, nil)

	startedDesc := fmt.Sprintf("Executing step %q", kind)
	if ec.StepContext != nil && ec.StepContext.AdditionalInfo != "" {
		startedDesc += ", operator hint: " + ec.StepContext.AdditionalInfo
	}
	r.emitLog(pipeline.NewLog(pipeline.LogTypeStep, "Step started", startedDesc, pipeline.LogStatusInfo))
	r.logger.Info("executing step",
		zap.String("step", string(kind)),
		zap.Int("index", ec.Index),
	)

	res := p.Execute(ctx, ec)

	if res.Success {
		r.notifyStatus(kind, pipeline.StatusCompleted, res.Payload)
	} else {
		r.logger.Warn("step failed",
			zap.String("step", string(kind)),
			zap.String("reason", res.Err),
		)
		r.notifyStatus(kind, pipeline.StatusError, map[string]any{"error": res.Err})
	}

	for _, entry := range res.Logs {
		r.emitLog(entry)
	}

	return res
}

func (r *Registry) emitLog(entry pipeline.LogEntry) {
	r.mu.RLock()
	sink := r.logSink
	r.mu.RUnlock()
	if sink != nil {
		sink(entry)
	}
}

func (r *Registry) notifyStatus(kind pipeline.StepKind, status pipeline.StepStatus, payload map[string]any) {
	r.mu.RLock()
	sink := r.statusSink
	r.mu.RUnlock()
	if sink != nil {
		sink(kind, status, payload)
	}
}
