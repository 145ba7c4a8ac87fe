package season

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/advisor"
	"huddle/internal/config"
	"huddle/internal/ledger"
	"huddle/internal/logger"
	"huddle/internal/pattern"
	"huddle/internal/preset"
)

// ProfileStore 阶段档案持久化接口，由 gormstore 实现。
type ProfileStore interface {
	SaveProfile(ctx context.Context, p pattern.StrategyProfile) error
	PhaseProfile(ctx context.Context, phase string) (pattern.StrategyProfile, bool, error)
}

// Aggregator 把台账/模式状态按周期折叠成赛季记录，并刷新阶段策略预设。
type Aggregator struct {
	cfg      config.SeasonConfig
	led      *ledger.Ledger
	patterns pattern.Store
	profiles ProfileStore
	store    Store
	adv      *advisor.Service
	registry *preset.Registry // 可为 nil，存在时作为阶段基线
}

func NewAggregator(cfg config.SeasonConfig, led *ledger.Ledger, patterns pattern.Store,
	profiles ProfileStore, store Store, adv *advisor.Service, registry *preset.Registry) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		led:      led,
		patterns: patterns,
		profiles: profiles,
		store:    store,
		adv:      adv,
		registry: registry,
	}
}

// RunPeriod 折叠刚结束的周期：写入（或原地更新）该周期的赛季记录，
// 重推阶段边界并刷新该阶段的策略预设。对同一周期可安全重跑。
func (a *Aggregator) RunPeriod(ctx context.Context, period int) (Record, error) {
	if period <= 0 {
		return Record{}, fmt.Errorf("season: period 必须为正，收到 %d", period)
	}
	summary, err := a.summarize(ctx, period)
	if err != nil {
		return Record{}, err
	}
	phase := PhaseOf(period, a.cfg)
	rec := Record{
		Period:  period,
		Phase:   phase,
		Summary: summary,
	}
	if err := a.store.UpsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	logger.Infof("season: 周期 %d 已记录 phase=%s success=%.1f%% accuracy=%.1f%%",
		period, phase, summary.SuccessRate, summary.AverageAccuracy)

	if err := a.refreshPhasePreset(ctx, phase); err != nil {
		// 预设刷新失败不撤销已写入的周期记录。
		logger.Warnf("season: 阶段预设刷新失败 phase=%s: %v", phase, err)
	}
	return rec, nil
}

// summarize 从台账重算该周期的汇总，不做增量累加。
func (a *Aggregator) summarize(ctx context.Context, period int) (PeriodSummary, error) {
	metrics, err := a.led.Metrics(ctx, time.Time{}, time.Time{})
	if err != nil {
		return PeriodSummary{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	cmp, err := a.led.CompareStrategies(ctx, period, "")
	if err != nil {
		return PeriodSummary{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	pm := metrics.ByPeriod[period]
	summary := PeriodSummary{
		Recommendations: pm.Total,
		TrackedOutcomes: pm.Tracked,
		SuccessRate:     pm.SuccessRate,
		AverageAccuracy: pm.AvgAccuracy,
		TotalCost:       cmp.AdvisorCost.String(),
	}
	if total := cmp.AdvisorCount + cmp.BaselineCount; total > 0 {
		summary.AdvisorShare = float64(cmp.AdvisorCount) / float64(total)
	}
	if tops, err := a.topPatterns(ctx, 3); err == nil {
		summary.TopPatterns = tops
	}
	return summary, nil
}

func (a *Aggregator) topPatterns(ctx context.Context, n int) ([]string, error) {
	patterns, err := a.patterns.ListPatterns(ctx, pattern.KindSuccess, false)
	if err != nil {
		return nil, err
	}
	if len(patterns) > n {
		patterns = patterns[:n]
	}
	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}
	return names, nil
}

// refreshPhasePreset 基于累计趋势与跨周期模式刷新阶段预设。
// 顾问给定性意见，数值调整始终走规则：LLM 不直接产出权重。
func (a *Aggregator) refreshPhasePreset(ctx context.Context, phase Phase) error {
	records, err := a.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	trend := Trend(records, a.cfg.TrendWindow)

	base, ok, err := a.profiles.PhaseProfile(ctx, string(phase))
	if err != nil {
		return err
	}
	if !ok {
		base = pattern.DefaultProfile()
		base.Version = 0
	}
	next := rulePreset(phase, base)
	if a.registry != nil {
		if tpl, ok := a.registry.Phase(string(phase)); ok {
			next = applyTemplate(next, tpl)
		}
	}

	resp, err := a.adv.Ask(ctx, advisor.Request{
		Purpose: "season_presets",
		Context: fmt.Sprintf("为赛季阶段 %s 评估策略预设调整", phase),
		Data: map[string]any{
			"phase":        string(phase),
			"trend":        trendSummary(trend),
			"top_patterns": lastOrEmpty(records).Summary.TopPatterns,
		},
	})
	if err != nil {
		return err
	}
	if resp.Degraded {
		next.Note = fmt.Sprintf("规则预设（顾问不可用），阶段 %s", phase)
	} else {
		next.Note = resp.Summary
	}
	return a.profiles.SaveProfile(ctx, next)
}

// applyTemplate registry 基线覆盖规则预设中的对应字段。
func applyTemplate(p pattern.StrategyProfile, tpl preset.Template) pattern.StrategyProfile {
	if tpl.RiskTolerance > 0 {
		p.RiskTolerance = tpl.RiskTolerance
	}
	if tpl.Thresholds.High > 0 {
		p.ConfidenceThresholds = pattern.ConfidenceThresholds{
			Low:    tpl.Thresholds.Low,
			Medium: tpl.Thresholds.Medium,
			High:   tpl.Thresholds.High,
		}
	}
	if len(tpl.FactorWeights) > 0 {
		weights := make(map[string]float64, len(tpl.FactorWeights))
		for k, v := range tpl.FactorWeights {
			weights[k] = v
		}
		p.FactorWeights = weights
	}
	return p
}

// rulePreset 阶段化调整：赛季早期容忍探索，冠军赛收紧风险并抬高行动门槛。
func rulePreset(phase Phase, base pattern.StrategyProfile) pattern.StrategyProfile {
	preset := base
	preset.Version = base.Version + 1
	preset.Phase = string(phase)
	preset.CreatedAt = time.Now().UTC()
	switch phase {
	case PhaseEarly:
		preset.RiskTolerance = 0.65
	case PhaseMid:
		preset.RiskTolerance = 0.5
	case PhaseLate:
		preset.RiskTolerance = 0.4
		preset.ConfidenceThresholds.Medium = base.ConfidenceThresholds.Medium + 5
	case PhaseChampionship:
		preset.RiskTolerance = 0.25
		preset.ConfidenceThresholds.Medium = base.ConfidenceThresholds.Medium + 10
		preset.ConfidenceThresholds.High = base.ConfidenceThresholds.High + 5
	}
	return preset
}

func trendSummary(points []TrendPoint) []map[string]any {
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		out = append(out, map[string]any{
			"period":            p.Period,
			"smoothed_success":  p.SmoothedSuccess,
			"smoothed_accuracy": p.SmoothedAccuracy,
		})
	}
	return out
}

func lastOrEmpty(records []Record) Record {
	if len(records) == 0 {
		return Record{}
	}
	return records[len(records)-1]
}
