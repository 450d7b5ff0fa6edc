package pipeline

// DefaultConfidence is assumed when the upstream payload omits a confidence
// score.
const DefaultConfidence = 75

// ReportFromPayload derives a Report from a generate-report payload.
// Confidence defaults to 75 when absent; IsLogical is a strict > comparison
// against 75, so a defaulted score is not considered logical.
func ReportFromPayload(payload map[string]any) Report {
	confidence := float64(DefaultConfidence)
	switch v := payload["confidence"].(type) {
	case float64:
		confidence = v
	case int:
		confidence = float64(v)
	}

	return Report{
		Summary:         stringOr(payload, "summary", ""),
		Findings:        stringsOf(payload, "findings"),
		Recommendations: stringsOf(payload, "recommendations"),
		ConfidenceScore: confidence,
		IsLogical:       confidence > DefaultConfidence,
	}
}

func stringOr(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return fallback
}

func stringsOf(payload map[string]any, key string) []string {
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
