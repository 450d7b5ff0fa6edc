package processors

import (
	"context"
	"fmt"

	"github.com/fathomlabs/diligence/internal/analysis"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/step"
)

// BuildSimulation builds the causal simulation and annotates it with derived
// counts and a status summary. Its sub-phases (problems, hypotheses, metrics,
// insights, recommendations, next steps) surface as sub-steps of the
// buildSimulation step.
type BuildSimulation struct {
	client analysis.Client
}

// NewBuildSimulation creates the simulation processor.
func NewBuildSimulation(client analysis.Client) *BuildSimulation {
	return &BuildSimulation{client: client}
}

func (p *BuildSimulation) Kind() pipeline.StepKind { return pipeline.KindBuildSimulation }

func (p *BuildSimulation) CanExecute(_ context.Context, ec *pipeline.ExecContext) bool {
	return step.BaseCanExecute(ec)
}

func (p *BuildSimulation) Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result {
	raw, err := p.client.BuildSimulation(ctx, ec.Entity)
	if err != nil {
		return serviceFailure(p.Kind(), err)
	}

	payload := clonePayload(raw)
	problemCount := listLen(raw, "problems")
	hypothesisCount := listLen(raw, "hypotheses")
	metricCount := listLen(raw, "metrics")
	insightCount := listLen(raw, "insights")
	recommendationCount := listLen(raw, "recommendations")
	nextStepCount := listLen(raw, "nextSteps")

	payload["problemCount"] = problemCount
	payload["hypothesisCount"] = hypothesisCount
	payload["metricCount"] = metricCount
	payload["insightCount"] = insightCount
	payload["recommendationCount"] = recommendationCount
	payload["nextStepCount"] = nextStepCount
	payload["statusSummary"] = fmt.Sprintf(
		"%d problems, %d hypotheses, %d metrics, %d insights, %d recommendations, %d next steps (%s)",
		problemCount, hypothesisCount, metricCount, insightCount, recommendationCount, nextStepCount,
		stringField(raw, "status", "complete"),
	)

	logs := []pipeline.LogEntry{
		pipeline.NewLog(pipeline.LogTypeAnalysis, "Simulation built",
			fmt.Sprintf("Built simulation for %q: %s", ec.Entity.Name, payload["statusSummary"]),
			pipeline.LogStatusSuccess),
	}
	for _, sub := range pipeline.Template()[simulationTemplateIndex()].SubSteps {
		key := pipeline.SimulationSubKeys[sub.ID]
		logs = append(logs, pipeline.NewLog(pipeline.LogTypeAnalysis, sub.Title,
			fmt.Sprintf("Sub-phase %q produced %d entries", sub.ID, listLen(raw, key)),
			pipeline.LogStatusInfo))
	}

	return pipeline.Result{
		Success:      true,
		Payload:      payload,
		Continuation: pipeline.ContinueNext,
		Updated: map[string]map[string]any{
			pipeline.KeySimulationResult: payload,
		},
		Logs: logs,
	}
}

// simulationTemplateIndex locates the buildSimulation step in the template.
func simulationTemplateIndex() int {
	for i, kind := range pipeline.AllKinds() {
		if kind == pipeline.KindBuildSimulation {
			return i
		}
	}
	return 3
}
