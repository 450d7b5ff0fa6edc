package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// Judge judges whether the subject entity is suitable for analysis. An
// unsuitable entity is a gate, not a failure: the step succeeds and the
// pipeline halts without advancing.
type Judge struct {
	client analysis.Client
}

// NewJudge creates the judge processor.
func NewJudge(client analysis.Client) *Judge {
	return &Judge{client: client}
}

func (p *Judge) Kind() pipeline.StepKind { return pipeline.KindJudgeChallenge }

func (p *Judge) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec)
}

func (p *Judge) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	raw, err := p.client.JudgeChallenge(ctx, ec.Entity)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	res := pipeline.Result{
		Success:      true,
		Payload:      raw,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeyJudgeChallengeResult: raw,
		},
	}

	if !boolField(raw, "verification_pass", true) {
		reason := stringField(raw, "reason", "entity judged unsuitable for analysis")
		res.Continuation = pipeline.Halt
		res.Failure = pipeline.FailureGateRejection
		res.Logs = append(res.Logs, pipeline.NewLog(pipeline.LogTypeAnalysis,
			"Suitability gate",
			fmt.Sprintf("Entity %q is not suitable for automated analysis: %s", ec.Entity.Name, reason),
			pipeline.LogStatusWarning))
		return res
	}

	res.Logs = append(res.Logs, pipeline.NewLog(pipeline.LogTypeAnalysis,
		"Suitability confirmed",
		fmt.Sprintf("Entity %q passed the suitability judgment", ec.Entity.Name),
		pipeline.LogStatusSuccess))
	return res
}
