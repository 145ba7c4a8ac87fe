package advisorlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"huddle/internal/advisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "advisor_log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordExchange(ctx, advisor.Exchange{
		Provider:     "primary",
		Purpose:      "event_decision",
		SystemPrompt: "system",
		UserPrompt:   "## 场景\n伤病",
		RawOutput:    `{"summary":"sit him","confidence":0.9}`,
		At:           base,
	}))
	require.NoError(t, s.RecordExchange(ctx, advisor.Exchange{
		Provider: "rule-fallback",
		Purpose:  "pattern_judgment",
		Degraded: true,
		At:       base.Add(time.Minute),
	}))

	list, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// 新的在前
	assert.Equal(t, "rule-fallback", list[0].Provider)
	assert.True(t, list[0].Degraded)
	assert.Equal(t, base.Add(time.Minute), list[0].At)

	assert.Equal(t, "primary", list[1].Provider)
	assert.Equal(t, "event_decision", list[1].Purpose)
	assert.Equal(t, "## 场景\n伤病", list[1].UserPrompt)
	assert.False(t, list[1].Degraded)

	one, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "rule-fallback", one[0].Provider)
}

func TestRecordExchangeFillsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordExchange(ctx, advisor.Exchange{Provider: "primary", Purpose: "event_decision"}))
	list, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.WithinDuration(t, time.Now().UTC(), list[0].At, time.Minute)
}
