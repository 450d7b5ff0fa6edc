package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLLMClient_RequiresModel(t *testing.T) {
	_, err := NewLLMClient(LLMConfig{})
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", `Sure, here you go: {"a": 1} Hope that helps!`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"no object at all", "I cannot answer that.", "I cannot answer that."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
