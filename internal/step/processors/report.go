package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// GenerateReport produces the final diligence report from the simulation
// result. The simulation must already exist in the accumulator, so the
// precondition blocks the step instead of wasting an external call.
type GenerateReport struct {
	client analysis.Client
}

// NewGenerateReport creates the report processor.
func NewGenerateReport(client analysis.Client) *GenerateReport {
	return &GenerateReport{client: client}
}

func (p *GenerateReport) Kind() pipeline.StepKind { return pipeline.KindGenerateReport }

func (p *GenerateReport) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec) && ec.Accumulator != nil &&
		ec.Accumulator.Has(pipeline.KeySimulationResult)
}

func (p *GenerateReport) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	sim, _ := ec.Accumulator.Result(pipeline.KeySimulationResult)

	raw, err := p.client.GenerateReport(ctx, sim)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	report := pipeline.ReportFromPayload(raw)
	payload := clonePayload(raw)
	payload["confidenceScore"] = report.ConfidenceScore
	payload["isLogical"] = report.IsLogical

	return pipeline.Result{
		Success:      true,
		Payload:      payload,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeyGenerateReportResult: payload,
		},
		Logs: []pipeline.LogEntry{
			pipeline.NewLog(pipeline.LogTypeAnalysis, "Report generated",
				fmt.Sprintf("Generated diligence report for %q (confidence %.0f, logical=%t)",
					ec.Entity.Name, report.ConfidenceScore, report.IsLogical),
				pipeline.LogStatusSuccess),
		},
	}
}

// RegisterAll registers the six built-in processors on a registry.
func RegisterAll(registry *step.Registry, client analysis.Client) {
	registry.Register(NewJudge(client))
	registry.Register(NewQueryHistory(client))
	registry.Register(NewQueryKnowledgeBase(client))
	registry.Register(NewBuildSimulation(client))
	registry.Register(NewAnswerChallenge(client))
	registry.Register(NewGenerateReport(client))
}
