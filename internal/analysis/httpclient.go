package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

const instrumentationName = "github.com/fathomlabs/diligence/internal/analysis"

// maxErrorBodyBytes bounds how much of an error response is kept in the
// error message.
const maxErrorBodyBytes = 512

// HTTPConfig configures the HTTP analysis client.
type HTTPConfig struct {
	// BaseURL is the analysis service endpoint, without a trailing slash.
	BaseURL string

	// Timeout bounds a single request. Zero means no client timeout; the
	// caller's context still applies.
	Timeout time.Duration
}

// HTTPClient calls a dedicated analysis service over JSON/HTTP, one POST per
// operation under /v1/analysis.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTP analysis client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *HTTPClient) JudgeChallenge(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.post(ctx, "judge-challenge", map[string]any{"entity": entity})
}

func (c *HTTPClient) QueryHistory(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.post(ctx, "query-history", map[string]any{"entity": entity})
}

func (c *HTTPClient) QueryKnowledgeBase(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.post(ctx, "query-knowledge-base", map[string]any{"entity": entity})
}

func (c *HTTPClient) BuildSimulation(ctx context.Context, entity *pipeline.Entity) (map[string]any, error) {
	return c.post(ctx, "build-simulation", map[string]any{"entity": entity})
}

func (c *HTTPClient) AnswerChallenge(ctx context.Context, simulation map[string]any) (map[string]any, error) {
	return c.post(ctx, "answer-challenge", map[string]any{"simulation": simulation})
}

func (c *HTTPClient) GenerateReport(ctx context.Context, simulation map[string]any) (map[string]any, error) {
	return c.post(ctx, "generate-report", map[string]any{"simulation": simulation})
}

// post issues one JSON POST against /v1/analysis/<operation>.
func (c *HTTPClient) post(ctx context.Context, operation string, payload map[string]any) (map[string]any, error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "analysis."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("analysis.operation", operation))

	body, err := json.Marshal(payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	url := c.baseURL + "/v1/analysis/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s call failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, string(snippet))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}
