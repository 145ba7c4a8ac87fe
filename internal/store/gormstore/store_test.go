package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"huddle/internal/engine"
	"huddle/internal/experiment"
	"huddle/internal/ledger"
	"huddle/internal/pattern"
	"huddle/internal/season"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "huddle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func baseTime() time.Time {
	return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
}

func sampleRec(id string, period int, createdAt time.Time) ledger.Recommendation {
	return ledger.Recommendation{
		ID:          id,
		Kind:        ledger.KindLineup,
		Period:      period,
		League:      "main",
		Team:        "t1",
		Confidence:  72,
		AdvisorUsed: true,
		Payload:     map[string]any{"swaps": float64(2)},
		DataSources: []string{"fantasy_roster", "expert_rankings"},
		Context:     map[string]string{"phase": "early", "severity": "high"},
		CostEstimate: decimal.RequireFromString("0.000450"),
		CreatedAt:   createdAt,
	}
}

func TestNewGormStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}

func TestRecommendationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRec("rec-1", 5, baseTime())
	require.NoError(t, store.InsertRecommendation(ctx, rec))

	tracked, err := store.Tracked(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	got := tracked[0].Recommendation
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Context, got.Context)
	assert.Equal(t, rec.DataSources, got.DataSources)
	assert.True(t, rec.CostEstimate.Equal(got.CostEstimate))
	assert.Nil(t, tracked[0].Outcome)

	// 未知建议不落结果。
	err = store.UpsertOutcome(ctx, ledger.Outcome{RecommendationID: "missing"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	out := ledger.Outcome{
		RecommendationID: "rec-1",
		Success:          true,
		ActualValue:      22,
		ProjectedValue:   18,
		Accuracy:         122.22,
		AccuracyDefined:  true,
		Notes:            "首发调整兑现",
		RecordedAt:       baseTime().Add(72 * time.Hour),
	}
	require.NoError(t, store.UpsertOutcome(ctx, out))
	// 幂等覆盖：第二次写入更新原行。
	out.Success = false
	require.NoError(t, store.UpsertOutcome(ctx, out))

	tracked, err = store.Tracked(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	require.NotNil(t, tracked[0].Outcome)
	assert.False(t, tracked[0].Outcome.Success)
	assert.InDelta(t, 122.22, tracked[0].Outcome.Accuracy, 1e-9)
	assert.Equal(t, "首发调整兑现", tracked[0].Outcome.Notes)
}

func TestTrackedFiltersAndPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	early := sampleRec("rec-a", 4, baseTime())
	late := sampleRec("rec-b", 5, baseTime().Add(time.Hour))
	late.League = "office"
	require.NoError(t, store.InsertRecommendation(ctx, early))
	require.NoError(t, store.InsertRecommendation(ctx, late))

	byPeriod, err := store.TrackedByScope(ctx, 5, "")
	require.NoError(t, err)
	require.Len(t, byPeriod, 1)
	assert.Equal(t, "rec-b", byPeriod[0].ID)

	byLeague, err := store.TrackedByScope(ctx, 0, "main")
	require.NoError(t, err)
	require.Len(t, byLeague, 1)
	assert.Equal(t, "rec-a", byLeague[0].ID)

	windowed, err := store.Tracked(ctx, baseTime().Add(30*time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "rec-b", windowed[0].ID)

	// 记录结果后退出待定列表，且待定按新旧倒序。
	require.NoError(t, store.UpsertOutcome(ctx, ledger.Outcome{
		RecommendationID: "rec-b", Success: true, RecordedAt: baseTime(),
	}))
	pending, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rec-a", pending[0].ID)
}

func TestPatternUpsertAndListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := pattern.Pattern{
		ID:   "pat-1",
		Kind: pattern.KindSuccess,
		Name: "早期高调换",
		Conditions: []pattern.Condition{
			{Factor: "phase", Op: pattern.OpEq, Value: "early", Weight: 1},
		},
		Confidence:  55,
		SuccessRate: 0.7,
		UsageCount:  4,
		LastUpdated: baseTime(),
	}
	require.NoError(t, store.UpsertPattern(ctx, p))

	// 同 id 再写是覆盖而非新增。
	p.Confidence = 62
	p.UsageCount = 6
	require.NoError(t, store.UpsertPattern(ctx, p))

	require.NoError(t, store.UpsertPattern(ctx, pattern.Pattern{
		ID: "pat-2", Kind: pattern.KindSuccess, Name: "已退役", Confidence: 90,
		Retired: true, LastUpdated: baseTime(),
	}))
	require.NoError(t, store.UpsertPattern(ctx, pattern.Pattern{
		ID: "pat-3", Kind: pattern.KindAnti, Name: "伤病冲动", Cost: 8, LastUpdated: baseTime(),
	}))

	active, err := store.ListPatterns(ctx, pattern.KindSuccess, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "早期高调换", active[0].Name)
	assert.InDelta(t, 62.0, active[0].Confidence, 1e-9)
	assert.Equal(t, 6, active[0].UsageCount)
	require.Len(t, active[0].Conditions, 1)
	assert.Equal(t, pattern.OpEq, active[0].Conditions[0].Op)

	all, err := store.ListPatterns(ctx, pattern.KindSuccess, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, found, err := store.FindPatternByName(ctx, pattern.KindAnti, "伤病冲动")
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 8.0, got.Cost, 1e-9)

	_, found, err = store.FindPatternByName(ctx, pattern.KindSuccess, "不存在")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProfileActivationSwitch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1 := pattern.DefaultProfile()
	v1.Phase = "early"
	require.NoError(t, store.SaveProfile(ctx, v1))

	v2 := v1
	v2.Version = v1.Version + 1
	v2.RiskTolerance = 0.65
	v2.Note = "赛季早期放宽"
	require.NoError(t, store.SaveProfile(ctx, v2))

	got, found, err := store.PhaseProfile(ctx, "early")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, v2.Version, got.Version)
	assert.InDelta(t, 0.65, got.RiskTolerance, 1e-9)
	assert.Equal(t, v1.FactorWeights, got.FactorWeights)

	// 全局档案（phase 为空）与阶段档案互不干扰。
	_, found, err = store.ActiveProfile(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	global := pattern.DefaultProfile()
	require.NoError(t, store.SaveProfile(ctx, global))
	_, found, err = store.ActiveProfile(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	versions, err := store.ProfileVersions(ctx, "early")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v1.Version, versions[0].Version)
	assert.Equal(t, v2.Version, versions[1].Version)
}

func TestExperimentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exp := experiment.Experiment{
		ID:   "exp-1",
		Name: "顾问 vs 纯规则",
		Control: experiment.Variant{
			ID: experiment.VariantControl, Name: "rule", Strategy: "baseline",
		},
		Treatment: experiment.Variant{
			ID: experiment.VariantTreatment, Name: "advisor", Strategy: "advisor",
		},
		Allocation: 50,
		Metrics:    []string{"success_rate"},
		CreatedAt:  baseTime(),
	}
	require.NoError(t, store.InsertExperiment(ctx, exp))

	got, err := store.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, exp.Name, got.Name)
	assert.Equal(t, experiment.StatusActive, got.Status)
	assert.Equal(t, "advisor", got.Treatment.Strategy)

	_, err = store.GetExperiment(ctx, "missing")
	assert.ErrorIs(t, err, experiment.ErrNotFound)

	concludedAt := baseTime().Add(14 * 24 * time.Hour)
	require.NoError(t, store.ConcludeExperiment(ctx, "exp-1",
		experiment.VariantTreatment, 0.95, concludedAt))

	got, err = store.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusConcluded, got.Status)
	assert.Equal(t, experiment.VariantTreatment, got.Winner)
	assert.InDelta(t, 0.95, got.WinnerConfidence, 1e-9)
	assert.Equal(t, concludedAt.Unix(), got.ConcludedAt.Unix())

	// active -> concluded 是唯一合法迁移。
	err = store.ConcludeExperiment(ctx, "exp-1", experiment.VariantControl, 0.9, concludedAt)
	assert.ErrorIs(t, err, experiment.ErrConcluded)
	err = store.ConcludeExperiment(ctx, "missing", experiment.VariantControl, 0.9, concludedAt)
	assert.ErrorIs(t, err, experiment.ErrNotFound)
}

func TestVariantSamplesFromLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insert := func(id, variant string, success, withOutcome bool) {
		rec := sampleRec(id, 5, baseTime())
		rec.ExperimentID = "exp-1"
		rec.Variant = variant
		require.NoError(t, store.InsertRecommendation(ctx, rec))
		if withOutcome {
			require.NoError(t, store.UpsertOutcome(ctx, ledger.Outcome{
				RecommendationID: id, Success: success, RecordedAt: baseTime(),
			}))
		}
	}
	insert("s-1", "treatment", true, true)
	insert("s-2", "treatment", false, true)
	insert("s-3", "control", true, true)
	// 无结果的建议不计入样本。
	insert("s-4", "treatment", false, false)

	samples, err := store.VariantSamples(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, experiment.Sample{Total: 2, Successes: 1}, samples[experiment.VariantTreatment])
	assert.Equal(t, experiment.Sample{Total: 1, Successes: 1}, samples[experiment.VariantControl])
}

func TestSeasonRecordUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := season.Record{
		Period: 5,
		Phase:  season.PhaseEarly,
		Summary: season.PeriodSummary{
			Recommendations: 3,
			SuccessRate:     66.7,
		},
	}
	require.NoError(t, store.UpsertRecord(ctx, rec))

	rec.Summary.Recommendations = 4
	require.NoError(t, store.UpsertRecord(ctx, rec))
	require.NoError(t, store.UpsertRecord(ctx, season.Record{
		Period: 6, Phase: season.PhaseMid,
		Summary: season.PeriodSummary{Recommendations: 2},
	}))

	got, found, err := store.GetRecord(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, got.Summary.Recommendations)

	_, found, err = store.GetRecord(ctx, 9)
	require.NoError(t, err)
	assert.False(t, found)

	records, err := store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 5, records[0].Period)
	assert.Equal(t, 6, records[1].Period)
}

func TestDecisionAuditRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := engine.Decision{
		ID: "d-1", EventID: "ev-1", Type: engine.DecisionEscalation,
		Priority: engine.PriorityHigh, Deadline: baseTime().Add(time.Hour),
		AffectedSubjects: []string{"Breece Hall"},
		Actions:          []engine.Action{{Verb: "sit", Subject: "Breece Hall"}},
		Confidence:       0.7, CreatedAt: baseTime(),
	}
	newer := engine.Decision{
		ID: "d-2", EventID: "ev-2", Type: engine.DecisionAutoAction,
		Priority: engine.PriorityCritical, Deadline: baseTime().Add(2 * time.Hour),
		Confidence: 0.92, Executed: true,
		Results: []engine.ActionResult{
			{League: "main", Team: "t1", Action: engine.Action{Verb: "sit", Subject: "Breece Hall"}, Success: true},
			{League: "office", Team: "t2", Action: engine.Action{Verb: "sit", Subject: "Breece Hall"}, Success: true},
		},
		RecommendationIDs: []string{"rec-main", "rec-office"},
		CreatedAt:         baseTime().Add(time.Minute),
	}
	require.NoError(t, store.InsertDecision(ctx, older))
	require.NoError(t, store.InsertDecision(ctx, newer))

	recent, err := store.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d-2", recent[0].ID)
	assert.True(t, recent[0].Executed)
	assert.Equal(t, []string{"rec-main", "rec-office"}, recent[0].RecommendationIDs)
	require.Len(t, recent[0].Results, 2)
	assert.Equal(t, "office", recent[0].Results[1].League)
	assert.Equal(t, "d-1", recent[1].ID)
	require.Len(t, recent[1].Actions, 1)
	assert.Equal(t, "sit", recent[1].Actions[0].Verb)
	assert.Equal(t, []string{"Breece Hall"}, recent[1].AffectedSubjects)

	one, err := store.RecentDecisions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "d-2", one[0].ID)
}
