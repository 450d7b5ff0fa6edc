package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// ErrNoSimulationResult is the message surfaced when the answer step runs
// without a simulation result in the accumulator.
const ErrNoSimulationResult = "No simulation result found in context"

// AnswerChallenge answers the analysis challenge against the simulation
// result, overlaying the challenge and answer onto the simulation key.
type AnswerChallenge struct {
	client analysis.Client
}

// NewAnswerChallenge creates the challenge processor.
func NewAnswerChallenge(client analysis.Client) *AnswerChallenge {
	return &AnswerChallenge{client: client}
}

func (p *AnswerChallenge) Kind() pipeline.StepKind { return pipeline.KindAnswerChallenge }

func (p *AnswerChallenge) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec)
}

func (p *AnswerChallenge) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	sim, ok := ec.Accumulator.Result(pipeline.KeySimulationResult)
	if !ok {
		res := pipeline.Failed(pipeline.FailureExternalService, ErrNoSimulationResult)
		res.Logs = []pipeline.LogEntry{
			pipeline.NewLog(pipeline.LogTypeStep, "Step failed", ErrNoSimulationResult, pipeline.LogStatusError),
		}
		return res
	}

	raw, err := p.client.AnswerChallenge(ctx, sim)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	// Overlay the challenge answer onto the simulation result without
	// discarding the simulation fields.
	merged := clonePayload(sim)
	for k, v := range raw {
		merged[k] = v
	}

	return pipeline.Result{
		Success:      true,
		Payload:      raw,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeySimulationResult: merged,
		},
		Logs: []pipeline.LogEntry{
			pipeline.NewLog(pipeline.LogTypeAnalysis, "Challenge answered",
				fmt.Sprintf("Answered challenge for %q: %s", ec.Entity.Name,
					stringField(raw, "answer", "answer recorded")),
				pipeline.LogStatusSuccess),
		},
	}
}
