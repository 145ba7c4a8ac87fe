package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 内存版 Store，保持与 gormstore 相同的语义。
type memStore struct {
	recs map[string]Recommendation
	outs map[string]Outcome
}

func newMemStore() *memStore {
	return &memStore{
		recs: make(map[string]Recommendation),
		outs: make(map[string]Outcome),
	}
}

func (s *memStore) InsertRecommendation(_ context.Context, rec Recommendation) error {
	s.recs[rec.ID] = rec
	return nil
}

func (s *memStore) UpsertOutcome(_ context.Context, o Outcome) error {
	if _, ok := s.recs[o.RecommendationID]; !ok {
		return ErrNotFound
	}
	s.outs[o.RecommendationID] = o
	return nil
}

func (s *memStore) Tracked(_ context.Context, from, to time.Time) ([]Tracked, error) {
	var out []Tracked
	for _, rec := range s.recs {
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && rec.CreatedAt.After(to) {
			continue
		}
		t := Tracked{Recommendation: rec}
		if o, ok := s.outs[rec.ID]; ok {
			oc := o
			t.Outcome = &oc
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) TrackedByScope(ctx context.Context, period int, league string) ([]Tracked, error) {
	all, _ := s.Tracked(ctx, time.Time{}, time.Time{})
	var out []Tracked
	for _, t := range all {
		if period > 0 && t.Period != period {
			continue
		}
		if league != "" && t.League != league {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *memStore) Pending(_ context.Context, period int) ([]Recommendation, error) {
	var out []Recommendation
	for id, rec := range s.recs {
		if _, ok := s.outs[id]; ok {
			continue
		}
		if period > 0 && rec.Period != period {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func TestTrackValidation(t *testing.T) {
	led := New(newMemStore())
	ctx := context.Background()

	_, err := led.Track(ctx, Recommendation{Kind: "nonsense", League: "L"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = led.Track(ctx, Recommendation{Kind: KindLineup, League: "L", Confidence: 120})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = led.Track(ctx, Recommendation{Kind: KindLineup, Confidence: 50})
	assert.ErrorIs(t, err, ErrValidation)

	id, err := led.Track(ctx, Recommendation{Kind: KindLineup, League: "L", Confidence: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestScenarioLineupWeekFive(t *testing.T) {
	led := New(newMemStore())
	ctx := context.Background()

	id, err := led.Track(ctx, Recommendation{
		Kind: KindLineup, Period: 5, League: "main", Team: "t1", Confidence: 75,
	})
	require.NoError(t, err)

	require.NoError(t, led.RecordOutcome(ctx, Outcome{
		RecommendationID: id,
		Success:          true,
		ActualValue:      22,
		ProjectedValue:   18,
	}))

	m, err := led.Metrics(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalRecommendations)
	assert.Equal(t, 1, m.TrackedOutcomes)
	assert.InDelta(t, 100.0, m.SuccessRate, 0.001)
	assert.InDelta(t, 122.2, m.AverageAccuracy, 0.1)

	pm := m.ByPeriod[5]
	assert.InDelta(t, 100.0, pm.SuccessRate, 0.001)
	assert.InDelta(t, 122.2, pm.AvgAccuracy, 0.1)
}

func TestRecordOutcomeIdempotent(t *testing.T) {
	store := newMemStore()
	led := New(store)
	ctx := context.Background()

	id, err := led.Track(ctx, Recommendation{Kind: KindWaiver, League: "main", Confidence: 60})
	require.NoError(t, err)

	out := Outcome{RecommendationID: id, Success: true, ActualValue: 10, ProjectedValue: 8}
	require.NoError(t, led.RecordOutcome(ctx, out))
	require.NoError(t, led.RecordOutcome(ctx, out))
	assert.Len(t, store.outs, 1)

	// 重复记录是覆盖而非追加。
	out.Success = false
	require.NoError(t, led.RecordOutcome(ctx, out))
	assert.False(t, store.outs[id].Success)

	err = led.RecordOutcome(ctx, Outcome{RecommendationID: "missing", ProjectedValue: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccuracyUndefinedWhenNoProjection(t *testing.T) {
	led := New(newMemStore())
	ctx := context.Background()

	id, err := led.Track(ctx, Recommendation{Kind: KindTrade, League: "main", Confidence: 40})
	require.NoError(t, err)
	require.NoError(t, led.RecordOutcome(ctx, Outcome{
		RecommendationID: id, Success: true, ActualValue: 5, ProjectedValue: 0,
	}))

	m, err := led.Metrics(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	// 无投影的结果不进平均准确率，但成功率正常统计。
	assert.Zero(t, m.AverageAccuracy)
	assert.InDelta(t, 100.0, m.SuccessRate, 0.001)
}

func TestMetricsEmptyPopulation(t *testing.T) {
	led := New(newMemStore())
	m, err := led.Metrics(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, m.TotalRecommendations)
	assert.Zero(t, m.SuccessRate)
	assert.True(t, m.TotalCost.IsZero())
	assert.True(t, m.CostPerRecommendation.IsZero())
}

func TestPendingOutcomesNewestFirst(t *testing.T) {
	store := newMemStore()
	led := New(store)
	ctx := context.Background()

	first, err := led.Track(ctx, Recommendation{Kind: KindLineup, League: "main", Confidence: 50, Period: 3})
	require.NoError(t, err)
	// 保证时间戳可排序。
	rec := store.recs[first]
	rec.CreatedAt = rec.CreatedAt.Add(-time.Minute)
	store.recs[first] = rec

	second, err := led.Track(ctx, Recommendation{Kind: KindLineup, League: "main", Confidence: 50, Period: 3})
	require.NoError(t, err)

	pending, err := led.PendingOutcomes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second, pending[0].ID)
	assert.Equal(t, first, pending[1].ID)

	require.NoError(t, led.RecordOutcome(ctx, Outcome{RecommendationID: second, Success: true, ProjectedValue: 1, ActualValue: 1}))
	pending, err = led.PendingOutcomes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].ID)
}

func TestCompareStrategies(t *testing.T) {
	led := New(newMemStore())
	ctx := context.Background()

	track := func(advisor bool, actual float64) {
		id, err := led.Track(ctx, Recommendation{
			Kind: KindLineup, Period: 4, League: "main", Confidence: 60, AdvisorUsed: advisor,
		})
		require.NoError(t, err)
		require.NoError(t, led.RecordOutcome(ctx, Outcome{
			RecommendationID: id, Success: actual > 10, ActualValue: actual, ProjectedValue: 10,
		}))
	}
	track(true, 14)
	track(true, 12)
	track(false, 10)
	track(false, 10)

	cmp, err := led.CompareStrategies(ctx, 4, "main")
	require.NoError(t, err)
	assert.Equal(t, 2, cmp.AdvisorCount)
	assert.Equal(t, 2, cmp.BaselineCount)
	assert.InDelta(t, 13.0, cmp.AdvisorAvg, 0.001)
	assert.InDelta(t, 10.0, cmp.BaselineAvg, 0.001)
	assert.InDelta(t, 30.0, cmp.ImprovementPct, 0.001)
	// 无顾问成本时成本收益保持 0。
	assert.True(t, cmp.CostBenefit.IsZero())
}
