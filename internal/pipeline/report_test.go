package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportFromPayload(t *testing.T) {
	tests := []struct {
		name       string
		payload    map[string]any
		confidence float64
		isLogical  bool
	}{
		{
			name:       "confidence above threshold",
			payload:    map[string]any{"confidence": 80.0},
			confidence: 80,
			isLogical:  true,
		},
		{
			name:       "confidence exactly 75 is not logical",
			payload:    map[string]any{"confidence": 75.0},
			confidence: 75,
			isLogical:  false,
		},
		{
			name:       "missing confidence defaults to 75",
			payload:    map[string]any{},
			confidence: 75,
			isLogical:  false,
		},
		{
			name:       "low confidence",
			payload:    map[string]any{"confidence": 40.0},
			confidence: 40,
			isLogical:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ReportFromPayload(tt.payload)
			assert.Equal(t, tt.confidence, report.ConfidenceScore)
			assert.Equal(t, tt.isLogical, report.IsLogical)
		})
	}
}

func TestReportFromPayload_Fields(t *testing.T) {
	report := ReportFromPayload(map[string]any{
		"summary":         "looks viable",
		"findings":        []any{"f1", "f2", 3},
		"recommendations": []any{"r1"},
		"confidence":      90.0,
	})

	assert.Equal(t, "looks viable", report.Summary)
	assert.Equal(t, []string{"f1", "f2"}, report.Findings)
	assert.Equal(t, []string{"r1"}, report.Recommendations)
	assert.True(t, report.IsLogical)
}
