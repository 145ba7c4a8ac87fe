package pattern

import (
	"context"
	"strings"
	"testing"

	"huddle/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPatternStore 内存版 Store。
type memPatternStore struct {
	patterns map[string]Pattern // name -> pattern（按 kind 前缀区分）
	profiles []StrategyProfile
}

func newMemPatternStore() *memPatternStore {
	return &memPatternStore{patterns: make(map[string]Pattern)}
}

func keyOf(kind Kind, name string) string {
	if kind == KindAnti {
		return "anti:" + name
	}
	return "success:" + name
}

func (s *memPatternStore) UpsertPattern(_ context.Context, p Pattern) error {
	s.patterns[keyOf(p.Kind, p.Name)] = p
	return nil
}

func (s *memPatternStore) ListPatterns(_ context.Context, kind Kind, includeRetired bool) ([]Pattern, error) {
	var out []Pattern
	for key, p := range s.patterns {
		if p.Kind != kind || !strings.HasPrefix(key, keyOf(kind, "")) {
			continue
		}
		if p.Retired && !includeRetired {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *memPatternStore) FindPatternByName(_ context.Context, kind Kind, name string) (Pattern, bool, error) {
	p, ok := s.patterns[keyOf(kind, name)]
	return p, ok, nil
}

func (s *memPatternStore) SaveProfile(_ context.Context, p StrategyProfile) error {
	s.profiles = append(s.profiles, p)
	return nil
}

func (s *memPatternStore) ActiveProfile(_ context.Context) (StrategyProfile, bool, error) {
	if len(s.profiles) == 0 {
		return StrategyProfile{}, false, nil
	}
	return s.profiles[len(s.profiles)-1], true, nil
}

func testMinerConfig() MinerConfig {
	return MinerConfig{
		MinPatternExamples:     3,
		MinAntiPatternExamples: 2,
		ApplyConfidenceFloor:   70,
		InitialConfidenceCap:   60,
		ImprovementFloor:       2,
		EvolveSuccessFloor:     0.70,
		EvolveImprovementMin:   1,
		RetireSuccessFloor:     0.40,
		RetireMinApplications:  5,
	}
}

func trackedSample(success bool, actual, projected float64, factors map[string]string) ledger.Tracked {
	return ledger.Tracked{
		Recommendation: ledger.Recommendation{Kind: ledger.KindLineup, Context: factors},
		Outcome: &ledger.Outcome{
			Success:        success,
			ActualValue:    actual,
			ProjectedValue: projected,
		},
	}
}

func TestMergeConfidenceProperties(t *testing.T) {
	// 结果严格落在先验与批次成功率之间。
	merged := mergeConfidence(80, 10, 40, 5)
	assert.Greater(t, merged, 40.0)
	assert.Less(t, merged, 80.0)

	// 等大小、等成功率的批次合并与顺序无关。
	a := mergeConfidence(mergeConfidence(50, 4, 100, 4), 8, 100, 4)
	b := mergeConfidence(mergeConfidence(50, 4, 100, 4), 8, 100, 4)
	assert.InDelta(t, a, b, 1e-9)

	// 无先验证据时直接采用批次成功率。
	assert.InDelta(t, 75.0, mergeConfidence(0, 0, 75, 3), 1e-9)

	// 空批次不改变先验。
	assert.InDelta(t, 66.0, mergeConfidence(66, 9, 0, 0), 1e-9)

	// 始终钳制在 [0,100]。
	assert.LessOrEqual(t, mergeConfidence(120, 1, 150, 1), 100.0)
}

func TestUpdateConfidenceAccumulatesUsage(t *testing.T) {
	p := Pattern{Kind: KindSuccess, Confidence: 50, SuccessRate: 0.5, UsageCount: 4}
	matches := []ledger.Tracked{
		trackedSample(true, 12, 10, nil),
		trackedSample(true, 11, 10, nil),
	}
	UpdateConfidence(&p, matches)
	assert.Equal(t, 6, p.UsageCount)
	// (50*4 + 100*2) / 6
	assert.InDelta(t, 66.667, p.Confidence, 0.01)
	assert.InDelta(t, (0.5*4+1.0*2)/6, p.SuccessRate, 1e-9)
}

func TestUpdateConfidenceAntiPatternCostNonNegative(t *testing.T) {
	p := Pattern{Kind: KindAnti, Confidence: 40, UsageCount: 2, Cost: 3}
	matches := []ledger.Tracked{
		trackedSample(false, 5, 12, nil),
		trackedSample(false, 20, 10, nil), // 正提升也不能把代价拉成负数
	}
	UpdateConfidence(&p, matches)
	assert.GreaterOrEqual(t, p.Cost, 0.0)
}

func TestMatchConditionInterpreter(t *testing.T) {
	ctx := map[string]string{"severity": "high", "swaps": "3", "category": "injury_report"}

	assert.True(t, matchCondition(Condition{Factor: "severity", Op: OpEq, Value: "HIGH"}, ctx))
	assert.True(t, matchCondition(Condition{Factor: "severity", Op: OpNe, Value: "low"}, ctx))
	assert.True(t, matchCondition(Condition{Factor: "category", Op: OpContains, Value: "injury"}, ctx))
	assert.True(t, matchCondition(Condition{Factor: "swaps", Op: OpGt, Value: "2"}, ctx))
	assert.True(t, matchCondition(Condition{Factor: "swaps", Op: OpLte, Value: "3"}, ctx))
	assert.False(t, matchCondition(Condition{Factor: "swaps", Op: OpLt, Value: "3"}, ctx))
	// 缺失因子与非数值比较都不匹配。
	assert.False(t, matchCondition(Condition{Factor: "missing", Op: OpEq, Value: "x"}, ctx))
	assert.False(t, matchCondition(Condition{Factor: "severity", Op: OpGt, Value: "1"}, ctx))
	// 未知运算符不匹配。
	assert.False(t, matchCondition(Condition{Factor: "severity", Op: Operator("regex"), Value: "h.*"}, ctx))
	// 空条件集不匹配任何上下文。
	assert.False(t, Pattern{}.Matches(ctx))
}

func TestMinePatternsRequiresMinimumExamples(t *testing.T) {
	store := newMemPatternStore()
	m := NewMiner(store, nil, testMinerConfig())
	ctx := context.Background()

	factors := map[string]string{"phase": "early"}
	two := []ledger.Tracked{
		trackedSample(true, 15, 10, factors),
		trackedSample(true, 14, 10, factors),
	}
	mined, err := m.MinePatterns(ctx, two)
	require.NoError(t, err)
	assert.Empty(t, mined)

	three := append(two, trackedSample(true, 16, 10, factors))
	mined, err = m.MinePatterns(ctx, three)
	require.NoError(t, err)
	require.Len(t, mined, 1)
	// 无顾问时用观察成功率，且受初始置信度上限约束。
	assert.InDelta(t, 60.0, mined[0].Confidence, 1e-9)
	assert.InDelta(t, 1.0, mined[0].SuccessRate, 1e-9)
	assert.Equal(t, 3, mined[0].UsageCount)
}

func TestMineAntiPatternsCost(t *testing.T) {
	store := newMemPatternStore()
	m := NewMiner(store, nil, testMinerConfig())

	factors := map[string]string{"phase": "late"}
	samples := []ledger.Tracked{
		trackedSample(false, 4, 10, factors),
		trackedSample(false, 6, 10, factors),
	}
	mined, err := m.MineAntiPatterns(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, mined, 1)
	assert.Equal(t, KindAnti, mined[0].Kind)
	assert.InDelta(t, 5.0, mined[0].Cost, 1e-9) // 平均损失 (6+4)/2
}

func TestEnhanceDecisionIsPure(t *testing.T) {
	store := newMemPatternStore()
	cfg := testMinerConfig()
	m := NewMiner(store, nil, cfg)
	ctx := context.Background()

	require.NoError(t, store.UpsertPattern(ctx, Pattern{
		Kind: KindSuccess, Name: "早期高调换", Confidence: 90, SuccessRate: 0.8,
		Conditions: []Condition{{Factor: "phase", Op: OpEq, Value: "early", Weight: 1}},
	}))
	require.NoError(t, store.UpsertPattern(ctx, Pattern{
		Kind: KindAnti, Name: "伤病冲动", Cost: 10,
		Conditions: []Condition{{Factor: "category", Op: OpContains, Value: "injury", Weight: 1}},
	}))

	before := store.patterns[keyOf(KindSuccess, "早期高调换")]

	enh, err := m.EnhanceDecision(ctx, 50, map[string]string{"phase": "early"})
	require.NoError(t, err)
	// boost = (90-70)/10 * 1 = 2
	assert.InDelta(t, 52.0, enh.Confidence, 1e-9)
	assert.Equal(t, []string{"早期高调换"}, enh.Applied)
	assert.NotEmpty(t, enh.Rationale)

	enh, err = m.EnhanceDecision(ctx, 50, map[string]string{"phase": "early", "category": "injury_report"})
	require.NoError(t, err)
	// 反模式罚减 5 + 10/10 = 6。
	assert.InDelta(t, 46.0, enh.Confidence, 1e-9)
	assert.NotEmpty(t, enh.Warnings)

	// 纯读：模式状态不被 EnhanceDecision 改变。
	assert.Equal(t, before, store.patterns[keyOf(KindSuccess, "早期高调换")])
}

func TestLearnRetiresFailingPatterns(t *testing.T) {
	store := newMemPatternStore()
	cfg := testMinerConfig()
	m := NewMiner(store, nil, cfg)
	ctx := context.Background()

	factors := map[string]string{"phase": "mid"}
	require.NoError(t, store.UpsertPattern(ctx, Pattern{
		Kind: KindSuccess, Name: "失效模式", Confidence: 75, SuccessRate: 0.3,
		UsageCount: 10, TimesApplied: 6,
		Conditions: []Condition{{Factor: "phase", Op: OpEq, Value: "mid", Weight: 1}},
	}))

	recent := []ledger.Tracked{
		trackedSample(false, 5, 10, factors),
		trackedSample(false, 6, 10, factors),
	}
	require.NoError(t, m.Learn(ctx, recent))

	p, found, err := store.FindPatternByName(ctx, KindSuccess, "失效模式")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, p.Retired)
	assert.Equal(t, 12, p.UsageCount)
}
