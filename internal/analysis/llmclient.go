package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// LLMConfig configures the LLM-backed analysis client.
type LLMConfig struct {
	// BaseURL is an OpenAI-compatible API endpoint. Empty uses the default.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the model name.
	Model string
}

// LLMClient implements the analysis service by prompting an
// OpenAI-compatible model through langchaingo. Each operation asks for a
// strict-JSON answer and decodes it into a map.
type LLMClient struct {
	llm *openai.LLM
}

// NewLLMClient creates an LLM-backed analysis client.
func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &LLMClient{llm: llm}, nil
}

func (c *LLMClient) JudgeChallenge(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.ask(ctx, "judge-challenge", map[string]any{"entity": entity},
		`Judge whether the business entity is suitable for automated diligence analysis. `+
			`Respond with JSON: {"verification_pass": bool, "reason": string}.`)
}

func (c *LLMClient) QueryHistory(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.ask(ctx, "query-history", map[string]any{"entity": entity},
		`Summarize the entity's likely business history relevant to diligence. `+
			`Respond with JSON: {"records": [{"period": string, "summary": string}]}.`)
}

func (c *LLMClient) QueryKnowledgeBase(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.ask(ctx, "query-knowledge-base", map[string]any{"entity": entity},
		`List domain knowledge relevant to the entity's industry and challenge. `+
			`Respond with JSON: {"facts": [string]}.`)
}

func (c *LLMClient) BuildSimulation(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.ask(ctx, "build-simulation", map[string]any{"entity": entity},
		`Build a causal simulation for the entity. Respond with JSON: `+
			`{"problems": [..], "hypotheses": [..], "metrics": [..], "insights": [..], `+
			`"recommendations": [..], "nextSteps": [..], "status": string}.`)
}

func (c *LLMClient) AnswerChallenge(ctx context.Context, simulation map[string]any) (map[string]any, error) {
	return c.ask(ctx, "answer-challenge", map[string]any{"simulation": simulation},
		`Answer the analysis challenge using the simulation. `+
			`Respond with JSON: {"challenge": string, "answer": string, "confidence": number}.`)
}

func (c *LLMClient) GenerateReport(ctx context.Context, simulation map[string]any) (map[string]any, error) {
	return c.ask(ctx, "generate-report", map[string]any{"simulation": simulation},
		`Produce a diligence report from the simulation. Respond with JSON: `+
			`{"summary": string, "findings": [string], "recommendations": [string], "confidence": number}.`)
}

// ask prompts the model with the operation instructions plus the payload and
// decodes the JSON answer.
func (c *LLMClient) ask(ctx context.Context, operation string, payload map[string]any, instructions string) (map[string]any, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s input: %w", operation, err)
	}

	prompt := fmt.Sprintf("%s\nReturn only the JSON object, no prose.\nInput:\n%s", instructions, input)
	answer, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", operation, err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(extractJSON(answer)), &result); err != nil {
		return nil, fmt.Errorf("%s returned malformed JSON: %w", operation, err)
	}
	return result, nil
}

// extractJSON strips markdown fences and surrounding prose from a model
// answer, keeping the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
