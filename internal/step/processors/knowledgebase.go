package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// QueryKnowledgeBase retrieves domain knowledge relevant to the entity.
type QueryKnowledgeBase struct {
	client analysis.Client
}

// NewQueryKnowledgeBase creates the knowledge base processor.
func NewQueryKnowledgeBase(client analysis.Client) *QueryKnowledgeBase {
	return &QueryKnowledgeBase{client: client}
}

func (p *QueryKnowledgeBase) Kind() pipeline.StepKind { return pipeline.KindQueryKnowledgeBase }

func (p *QueryKnowledgeBase) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec)
}

func (p *QueryKnowledgeBase) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	raw, err := p.client.QueryKnowledgeBase(ctx, ec.Entity)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	return pipeline.Result{
		Success:      true,
		Payload:      raw,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeyQueryKnowledgeBaseResult: raw,
		},
		Logs: []pipeline.LogEntry{
			pipeline.NewLog(pipeline.LogTypeAnalysis, "Knowledge base queried",
				fmt.Sprintf("Retrieved %d knowledge facts for %q", listLen(raw, "facts"), ec.Entity.Name),
				pipeline.LogStatusSuccess),
		},
	}
}
