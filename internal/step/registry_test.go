package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// fakeProcessor is a scriptable processor for registry tests.
type fakeProcessor struct {
	kind       pipeline.StepKind
	canExecute bool
	result     pipeline.Result
	executed   int
}

func (f *fakeProcessor) Kind() pipeline.StepKind { return f.kind }

func (f *fakeProcessor) CanExecute(_ context.Context, _ *pipeline.ExecContext) bool {
	return f.canExecute
}

func (f *fakeProcessor) Execute(_ context.Context, _ *pipeline.ExecContext) pipeline.Result {
	f.executed++
	return f.result
}

type sinkRecorder struct {
	logs     []pipeline.LogEntry
	statuses []pipeline.StepStatus
	kinds    []pipeline.StepKind
	payloads []map[string]any
}

func (r *sinkRecorder) install(reg *Registry) {
	reg.SetLogSink(func(entry pipeline.LogEntry) {
		r.logs = append(r.logs, entry)
	})
	reg.SetStatusSink(func(kind pipeline.StepKind, status pipeline.StepStatus, payload map[string]any) {
		r.kinds = append(r.kinds, kind)
		r.statuses = append(r.statuses, status)
		r.payloads = append(r.payloads, payload)
	})
}

func execContext() *pipeline.ExecContext {
	return &pipeline.ExecContext{
		Entity:      &pipeline.Entity{ID: "e-1", Name: "Acme"},
		Accumulator: pipeline.NewAccumulator(&pipeline.Entity{ID: "e-1"}),
		StepContext: &pipeline.StepContext{},
		Agent:       &pipeline.Agent{ID: "a-1", Name: "agent"},
	}
}

func TestRegistry_Register_Upsert(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	first := &fakeProcessor{kind: pipeline.KindJudgeChallenge, canExecute: true, result: pipeline.Result{Success: true}}
	second := &fakeProcessor{kind: pipeline.KindJudgeChallenge, canExecute: true, result: pipeline.Result{Success: true}}

	reg.Register(first)
	reg.Register(second)

	reg.ExecuteStep(context.Background(), pipeline.KindJudgeChallenge, execContext())
	assert.Equal(t, 0, first.executed)
	assert.Equal(t, 1, second.executed)
}

func TestRegistry_ExecuteStep_UnknownStep(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	rec := &sinkRecorder{}
	rec.install(reg)

	res := reg.ExecuteStep(context.Background(), pipeline.StepKind("nope"), execContext())

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.FailureUnknownStep, res.Failure)
	assert.Equal(t, pipeline.Halt, res.Continuation)
	// No status mutation, one system log.
	assert.Empty(t, rec.statuses)
	require.Len(t, rec.logs, 1)
	assert.Equal(t, pipeline.LogStatusError, rec.logs[0].Status)
}

func TestRegistry_ExecuteStep_BlockedPrecondition(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	rec := &sinkRecorder{}
	rec.install(reg)

	p := &fakeProcessor{kind: pipeline.KindGenerateReport, canExecute: false}
	reg.Register(p)

	res := reg.ExecuteStep(context.Background(), pipeline.KindGenerateReport, execContext())

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.FailureBlocked, res.Failure)
	// The processor never ran and the step was not marked in-progress.
	assert.Equal(t, 0, p.executed)
	assert.Empty(t, rec.statuses)
	require.Len(t, rec.logs, 1)
	assert.Equal(t, pipeline.LogStatusWarning, rec.logs[0].Status)
}

func TestRegistry_ExecuteStep_SuccessLifecycle(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	rec := &sinkRecorder{}
	rec.install(reg)

	payload := map[string]any{"records": []any{"r1"}}
	p := &fakeProcessor{
		kind:       pipeline.KindQueryHistory,
		canExecute: true,
		result: pipeline.Result{
			Success: true,
			Payload: payload,
			Logs: []pipeline.LogEntry{
				pipeline.NewLog(pipeline.LogTypeAnalysis, "History retrieved", "", pipeline.LogStatusSuccess),
			},
		},
	}
	reg.Register(p)

	res := reg.ExecuteStep(context.Background(), pipeline.KindQueryHistory, execContext())

	require.True(t, res.Success)
	require.Equal(t, []pipeline.StepStatus{pipeline.StatusInProgress, pipeline.StatusCompleted}, rec.statuses)
	assert.Equal(t, payload, rec.payloads[1])
	// Started log first, then the processor's own logs.
	require.Len(t, rec.logs, 2)
	assert.Equal(t, "Step started", rec.logs[0].Title)
	assert.Equal(t, "History retrieved", rec.logs[1].Title)
}

func TestRegistry_ExecuteStep_StartedLogCarriesHint(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	rec := &sinkRecorder{}
	rec.install(reg)

	reg.Register(&fakeProcessor{kind: pipeline.KindJudgeChallenge, canExecute: true, result: pipeline.Result{Success: true}})

	ec := execContext()
	ec.StepContext.AdditionalInfo = "focus on the 2025 filings"
	reg.ExecuteStep(context.Background(), pipeline.KindJudgeChallenge, ec)

	require.NotEmpty(t, rec.logs)
	assert.Contains(t, rec.logs[0].Description, "focus on the 2025 filings")
}

func TestRegistry_ExecuteStep_FailureLifecycle(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	rec := &sinkRecorder{}
	rec.install(reg)

	p := &fakeProcessor{
		kind:       pipeline.KindBuildSimulation,
		canExecute: true,
		result:     pipeline.Failed(pipeline.FailureExternalService, "service unavailable"),
	}
	reg.Register(p)

	res := reg.ExecuteStep(context.Background(), pipeline.KindBuildSimulation, execContext())

	assert.False(t, res.Success)
	require.Equal(t, []pipeline.StepStatus{pipeline.StatusInProgress, pipeline.StatusError}, rec.statuses)
	assert.Equal(t, map[string]any{"error": "service unavailable"}, rec.payloads[1])
}

func TestRegistry_ExecuteStep_ResultReturnedUnchanged(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	want := pipeline.Result{
		Success:      true,
		Payload:      map[string]any{"x": 1},
		Continuation: pipeline.Halt,
		Failure:      pipeline.FailureGateRejection,
		Updated:      map[string]map[string]any{"k": {"v": 1}},
	}
	reg.Register(&fakeProcessor{kind: pipeline.KindJudgeChallenge, canExecute: true, result: want})

	got := reg.ExecuteStep(context.Background(), pipeline.KindJudgeChallenge, execContext())
	assert.Equal(t, want, got)
}

func TestRegistry_Sinks_LastWriterWins(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(&fakeProcessor{kind: pipeline.KindJudgeChallenge, canExecute: true, result: pipeline.Result{Success: true}})

	var first, second int
	reg.SetLogSink(func(pipeline.LogEntry) { first++ })
	reg.SetLogSink(func(pipeline.LogEntry) { second++ })

	reg.ExecuteStep(context.Background(), pipeline.KindJudgeChallenge, execContext())

	assert.Zero(t, first)
	assert.Positive(t, second)
}
