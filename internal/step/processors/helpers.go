package processors

import (
	"fmt"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// serviceFailure normalizes an external call failure into a halting result.
func serviceFailure(kind pipeline.StepKind, err error) pipeline.Result {
	res := pipeline.Failed(pipeline.FailureExternalService, err.Error())
	res.Logs = []pipeline.LogEntry{
		pipeline.NewLog(pipeline.LogTypeStep, "Step failed",
			fmt.Sprintf("Step %q failed: %v", kind, err), pipeline.LogStatusError),
	}
	return res
}

// boolField reads a bool from a payload, falling back when absent or not a
// bool.
func boolField(payload map[string]any, key string, fallback bool) bool {
	if v, ok := payload[key].(bool); ok {
		return v
	}
	return fallback
}

// floatField reads a numeric field from a payload, accepting the types JSON
// decoding produces.
func floatField(payload map[string]any, key string, fallback float64) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// stringField reads a string field from a payload.
func stringField(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return fallback
}

// listLen returns the length of a list-valued field, 0 when absent.
func listLen(payload map[string]any, key string) int {
	if v, ok := payload[key].([]any); ok {
		return len(v)
	}
	return 0
}

// stringList coerces a list-valued field into strings, skipping non-strings.
func stringList(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// clonePayload shallow-copies a payload map.
func clonePayload(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
