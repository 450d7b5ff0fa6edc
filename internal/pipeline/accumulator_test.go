package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_MergeIsMonotonic(t *testing.T) {
	entity := &Entity{ID: "e-1", Name: "Acme"}
	acc := NewAccumulator(entity)

	first := acc.Merge(map[string]map[string]any{
		KeyJudgeChallengeResult: {"verification_pass": true},
	})
	second := first.Merge(map[string]map[string]any{
		KeyQueryHistoryResult: {"records": []any{"r1"}},
	})

	// Earlier keys survive later merges.
	judge, ok := second.Result(KeyJudgeChallengeResult)
	require.True(t, ok)
	assert.Equal(t, true, judge["verification_pass"])
	assert.True(t, second.Has(KeyQueryHistoryResult))
	assert.Same(t, entity, second.Entity)
}

func TestAccumulator_MergeDoesNotModifyReceiver(t *testing.T) {
	acc := NewAccumulator(&Entity{Name: "Acme"})
	merged := acc.Merge(map[string]map[string]any{
		KeySimulationResult: {"problems": []any{"p1"}},
	})

	assert.False(t, acc.Has(KeySimulationResult))
	assert.True(t, merged.Has(KeySimulationResult))
}

func TestAccumulator_MergeReplacesOwnKeyOnly(t *testing.T) {
	acc := NewAccumulator(&Entity{Name: "Acme"}).Merge(map[string]map[string]any{
		KeySimulationResult:   {"problems": []any{"p1"}},
		KeyQueryHistoryResult: {"records": []any{}},
	})

	overlaid := acc.Merge(map[string]map[string]any{
		KeySimulationResult: {"problems": []any{"p1"}, "answer": "yes"},
	})

	sim, ok := overlaid.Result(KeySimulationResult)
	require.True(t, ok)
	assert.Equal(t, "yes", sim["answer"])
	assert.True(t, overlaid.Has(KeyQueryHistoryResult))
}

func TestAccumulator_ResultMissing(t *testing.T) {
	acc := NewAccumulator(nil)
	_, ok := acc.Result(KeyGenerateReportResult)
	assert.False(t, ok)
}
