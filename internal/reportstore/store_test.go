package reportstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}

func TestNewStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	report := pipeline.Report{
		Summary:         "entity is viable",
		Findings:        []string{"healthy cash flow"},
		Recommendations: []string{"proceed to term sheet"},
		ConfidenceScore: 82,
		IsLogical:       true,
	}
	logs := []pipeline.LogEntry{
		pipeline.NewLog(pipeline.LogTypeSystem, "Pipeline completed", "", pipeline.LogStatusSuccess),
	}

	key, err := store.Save(report, logs)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	doc, err := store.Load(key)
	require.NoError(t, err)
	assert.Equal(t, key, doc.Key)
	assert.Equal(t, report, doc.Report)
	require.Len(t, doc.Logs, 1)
	assert.Equal(t, "Pipeline completed", doc.Logs[0].Title)
	assert.False(t, doc.SavedAt.IsZero())
}

func TestStore_SaveGeneratesUniqueKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	k1, err := store.Save(pipeline.Report{}, nil)
	require.NoError(t, err)
	k2, err := store.Save(pipeline.Report{}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestStore_LoadRejectsBadKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", `a\b`, "..", "x..y"} {
		_, err := store.Load(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestStore_LoadUnknownKey(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("0b5c2b1e-missing")
	assert.Error(t, err)
}
