package season

import (
	"context"
	"errors"
	"testing"
	"time"

	"huddle/internal/advisor"
	"huddle/internal/config"
	"huddle/internal/ledger"
	"huddle/internal/pattern"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOf(t *testing.T) {
	cfg := config.SeasonConfig{Length: 17}

	// 17 周常规赛：1~5 早期，6~10 中期，11~14 后期，15 起冠军赛。
	assert.Equal(t, PhaseEarly, PhaseOf(1, cfg))
	assert.Equal(t, PhaseEarly, PhaseOf(5, cfg))
	assert.Equal(t, PhaseMid, PhaseOf(6, cfg))
	assert.Equal(t, PhaseMid, PhaseOf(10, cfg))
	assert.Equal(t, PhaseLate, PhaseOf(11, cfg))
	assert.Equal(t, PhaseLate, PhaseOf(14, cfg))
	assert.Equal(t, PhaseChampionship, PhaseOf(15, cfg))
	assert.Equal(t, PhaseChampionship, PhaseOf(17, cfg))

	// 显式冠军赛起始周优先。
	custom := config.SeasonConfig{Length: 14, ChampionshipStart: 13}
	assert.Equal(t, PhaseLate, PhaseOf(12, custom))
	assert.Equal(t, PhaseChampionship, PhaseOf(13, custom))

	// 零值配置回退到 17 周。
	assert.Equal(t, PhaseEarly, PhaseOf(4, config.SeasonConfig{}))
}

func recordWith(period int, success, accuracy float64) Record {
	return Record{
		Period:  period,
		Summary: PeriodSummary{SuccessRate: success, AverageAccuracy: accuracy},
	}
}

func TestTrend(t *testing.T) {
	t.Run("空序列", func(t *testing.T) {
		assert.Nil(t, Trend(nil, 3))
	})

	t.Run("记录数不足窗口时平滑等于原值", func(t *testing.T) {
		points := Trend([]Record{recordWith(1, 60, 100), recordWith(2, 70, 110)}, 3)
		require.Len(t, points, 2)
		for _, p := range points {
			assert.InDelta(t, p.SuccessRate, p.SmoothedSuccess, 1e-9)
			assert.InDelta(t, p.AverageAccuracy, p.SmoothedAccuracy, 1e-9)
		}
	})

	t.Run("窗口满后成功率为滑动均值", func(t *testing.T) {
		records := []Record{
			recordWith(1, 60, 100),
			recordWith(2, 70, 110),
			recordWith(3, 80, 120),
			recordWith(4, 90, 130),
		}
		points := Trend(records, 3)
		require.Len(t, points, 4)
		// 窗口未满的前两个点回退到原值。
		assert.InDelta(t, 60.0, points[0].SmoothedSuccess, 1e-9)
		assert.InDelta(t, 70.0, points[1].SmoothedSuccess, 1e-9)
		// (60+70+80)/3 与 (70+80+90)/3。
		assert.InDelta(t, 70.0, points[2].SmoothedSuccess, 1e-6)
		assert.InDelta(t, 80.0, points[3].SmoothedSuccess, 1e-6)
		assert.Equal(t, 4, points[3].Period)
	})
}

// --- RunPeriod 依赖的内存实现 ---

type memSeasonStore struct {
	records map[int]Record
	upserts int
}

func newMemSeasonStore() *memSeasonStore {
	return &memSeasonStore{records: make(map[int]Record)}
}

func (s *memSeasonStore) UpsertRecord(_ context.Context, r Record) error {
	s.upserts++
	s.records[r.Period] = r
	return nil
}

func (s *memSeasonStore) GetRecord(_ context.Context, period int) (Record, bool, error) {
	r, ok := s.records[period]
	return r, ok, nil
}

func (s *memSeasonStore) ListRecords(_ context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.records))
	for p := 1; p <= 32; p++ {
		if r, ok := s.records[p]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type memProfileStore struct {
	saved []pattern.StrategyProfile
}

func (s *memProfileStore) SaveProfile(_ context.Context, p pattern.StrategyProfile) error {
	s.saved = append(s.saved, p)
	return nil
}

func (s *memProfileStore) PhaseProfile(_ context.Context, phase string) (pattern.StrategyProfile, bool, error) {
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].Phase == phase {
			return s.saved[i], true, nil
		}
	}
	return pattern.StrategyProfile{}, false, nil
}

type memLedgerStore struct {
	recs map[string]ledger.Recommendation
	outs map[string]ledger.Outcome
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		recs: make(map[string]ledger.Recommendation),
		outs: make(map[string]ledger.Outcome),
	}
}

func (s *memLedgerStore) InsertRecommendation(_ context.Context, rec ledger.Recommendation) error {
	s.recs[rec.ID] = rec
	return nil
}

func (s *memLedgerStore) UpsertOutcome(_ context.Context, o ledger.Outcome) error {
	if _, ok := s.recs[o.RecommendationID]; !ok {
		return ledger.ErrNotFound
	}
	s.outs[o.RecommendationID] = o
	return nil
}

func (s *memLedgerStore) Tracked(_ context.Context, _, _ time.Time) ([]ledger.Tracked, error) {
	var out []ledger.Tracked
	for id, rec := range s.recs {
		tr := ledger.Tracked{Recommendation: rec}
		if o, ok := s.outs[id]; ok {
			oc := o
			tr.Outcome = &oc
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *memLedgerStore) TrackedByScope(ctx context.Context, period int, league string) ([]ledger.Tracked, error) {
	all, _ := s.Tracked(ctx, time.Time{}, time.Time{})
	var out []ledger.Tracked
	for _, tr := range all {
		if period > 0 && tr.Period != period {
			continue
		}
		if league != "" && tr.League != league {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *memLedgerStore) Pending(context.Context, int) ([]ledger.Recommendation, error) {
	return nil, nil
}

type failingProvider struct{}

func (failingProvider) ID() string         { return "down" }
func (failingProvider) Enabled() bool      { return true }
func (failingProvider) CostPer1K() float64 { return 0 }
func (failingProvider) Call(context.Context, string, string) (advisor.ChatResult, error) {
	return advisor.ChatResult{}, errors.New("unreachable")
}

type emptyPatternStore struct{}

func (emptyPatternStore) UpsertPattern(context.Context, pattern.Pattern) error { return nil }
func (emptyPatternStore) ListPatterns(context.Context, pattern.Kind, bool) ([]pattern.Pattern, error) {
	return []pattern.Pattern{{Name: "早期高调换"}, {Name: "伤病观望"}}, nil
}
func (emptyPatternStore) FindPatternByName(context.Context, pattern.Kind, string) (pattern.Pattern, bool, error) {
	return pattern.Pattern{}, false, nil
}
func (emptyPatternStore) SaveProfile(context.Context, pattern.StrategyProfile) error { return nil }
func (emptyPatternStore) ActiveProfile(context.Context) (pattern.StrategyProfile, bool, error) {
	return pattern.StrategyProfile{}, false, nil
}

func TestRunPeriod(t *testing.T) {
	ledStore := newMemLedgerStore()
	led := ledger.New(ledStore)
	ctx := context.Background()

	track := func(advisorUsed, success bool, actual float64) {
		id, err := led.Track(ctx, ledger.Recommendation{
			Kind: ledger.KindLineup, Period: 5, League: "main",
			Confidence: 60, AdvisorUsed: advisorUsed,
		})
		require.NoError(t, err)
		require.NoError(t, led.RecordOutcome(ctx, ledger.Outcome{
			RecommendationID: id, Success: success, ActualValue: actual, ProjectedValue: 10,
		}))
	}
	track(true, true, 12)
	track(true, true, 14)
	track(false, false, 8)

	store := newMemSeasonStore()
	profiles := &memProfileStore{}
	adv := advisor.NewWithProviders([]advisor.Provider{failingProvider{}}, time.Second)
	agg := NewAggregator(config.SeasonConfig{Length: 17, TrendWindow: 3},
		led, emptyPatternStore{}, profiles, store, adv, nil)

	rec, err := agg.RunPeriod(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, PhaseEarly, rec.Phase)
	assert.Equal(t, 3, rec.Summary.Recommendations)
	assert.Equal(t, 3, rec.Summary.TrackedOutcomes)
	assert.InDelta(t, 2.0/3*100, rec.Summary.SuccessRate, 0.01)
	assert.InDelta(t, 2.0/3, rec.Summary.AdvisorShare, 1e-9)
	assert.Equal(t, []string{"早期高调换", "伤病观望"}, rec.Summary.TopPatterns)

	// 顾问降级不阻断预设刷新，只换说明文字。
	require.Len(t, profiles.saved, 1)
	assert.Equal(t, string(PhaseEarly), profiles.saved[0].Phase)
	assert.InDelta(t, 0.65, profiles.saved[0].RiskTolerance, 1e-9)
	assert.Contains(t, profiles.saved[0].Note, "顾问不可用")

	// 同一周期重跑是原地更新，版本递增。
	rec2, err := agg.RunPeriod(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, rec.Summary, rec2.Summary)
	require.Len(t, store.records, 1)
	require.Len(t, profiles.saved, 2)
	assert.Greater(t, profiles.saved[1].Version, profiles.saved[0].Version)

	_, err = agg.RunPeriod(ctx, 0)
	assert.Error(t, err)
}

func TestRulePresetChampionshipTightens(t *testing.T) {
	base := pattern.DefaultProfile()
	p := rulePreset(PhaseChampionship, base)
	assert.InDelta(t, 0.25, p.RiskTolerance, 1e-9)
	assert.Equal(t, base.ConfidenceThresholds.Medium+10, p.ConfidenceThresholds.Medium)
	assert.Equal(t, base.ConfidenceThresholds.High+5, p.ConfidenceThresholds.High)
	assert.Equal(t, base.Version+1, p.Version)
}
