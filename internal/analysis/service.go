package analysis

import (
	"context"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// Client is the external analysis service: six async operations, one per
// pipeline step. Each takes a JSON-shaped payload and returns a JSON-shaped
// result; failures surface as errors and are caught at the processor
// boundary.
type Client interface {
	// JudgeChallenge judges whether the entity is suitable for analysis.
	// The result carries a verification_pass flag.
	JudgeChallenge(ctx context.Context, entity *pipeline.Entity) (map[string]any, error)

	// QueryHistory retrieves the entity's historical analysis records.
	QueryHistory(ctx context.Context, entity *pipeline.Entity) (map[string]any, error)

	// QueryKnowledgeBase retrieves domain knowledge for the entity.
	QueryKnowledgeBase(ctx context.Context, entity *pipeline.Entity) (map[string]any, error)

	// BuildSimulation builds the causal simulation over the entity.
	BuildSimulation(ctx context.Context, entity *pipeline.Entity) (map[string]any, error)

	// AnswerChallenge answers the challenge against a simulation result.
	AnswerChallenge(ctx context.Context, simulation map[string]any) (map[string]any, error)

	// GenerateReport produces the final report from a simulation result.
	GenerateReport(ctx context.Context, simulation map[string]any) (map[string]any, error)
}
