package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// QueryHistory retrieves the entity's historical analysis records.
type QueryHistory struct {
	client analysis.Client
}

// NewQueryHistory creates the history processor.
func NewQueryHistory(client analysis.Client) *QueryHistory {
	return &QueryHistory{client: client}
}

func (p *QueryHistory) Kind() pipeline.StepKind { return pipeline.KindQueryHistory }

func (p *QueryHistory) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec)
}

func (p *QueryHistory) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	raw, err := p.client.QueryHistory(ctx, ec.Entity)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	return pipeline.Result{
		Success:      true,
		Payload:      raw,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeyQueryHistoryResult: raw,
		},
		Logs: []pipeline.LogEntry{
			pipeline.NewLog(pipeline.LogTypeAnalysis, "History retrieved",
				fmt.Sprintf("Retrieved %d historical records for %q", listLen(raw, "records"), ec.Entity.Name),
				pipeline.LogStatusSuccess),
		},
	}
}
