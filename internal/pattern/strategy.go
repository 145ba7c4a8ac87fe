package pattern

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/ledger"
	"huddle/internal/logger"
)

// EvolveStrategy 仅在近期表现跌破阈值时演化策略档案：
// 成功率 < EvolveSuccessFloor 或平均提升 < EvolveImprovementMin。
// 演化是追加式的：新版本写入后旧版本保留，可回滚对比。
// 返回 nil 表示本轮无需演化。
func (m *Miner) EvolveStrategy(ctx context.Context, decisions []ledger.Tracked) (*StrategyProfile, error) {
	var tracked, successes int
	var improvementSum float64
	for _, t := range decisions {
		if t.Outcome == nil {
			continue
		}
		tracked++
		if t.Outcome.Success {
			successes++
		}
		improvementSum += t.Outcome.Improvement()
	}
	if tracked == 0 {
		return nil, nil
	}
	successRate := float64(successes) / float64(tracked)
	meanImprovement := improvementSum / float64(tracked)
	if successRate >= m.cfg.EvolveSuccessFloor && meanImprovement >= m.cfg.EvolveImprovementMin {
		logger.Debugf("pattern: evolution skipped (rate=%.2f improvement=%.2f)", successRate, meanImprovement)
		return nil, nil
	}

	prior, found, err := m.store.ActiveProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found {
		prior = DefaultProfile()
	}

	next := StrategyProfile{
		Version:              prior.Version + 1,
		ConfidenceThresholds: prior.ConfidenceThresholds,
		RiskTolerance:        prior.RiskTolerance,
		FactorWeights:        cloneWeights(prior.FactorWeights),
		PatternWeights:       make(map[string]float64),
		Note: fmt.Sprintf("evolved: rate=%.2f improvement=%.2f over %d decisions",
			successRate, meanImprovement, tracked),
		CreatedAt: time.Now().UTC(),
	}

	// 高置信模式加权。
	strong, err := m.store.ListPatterns(ctx, KindSuccess, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, p := range strong {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Confidence > m.cfg.ApplyConfidenceFloor {
			next.PatternWeights[p.Name] = p.Confidence / 100
		}
	}

	// 反模式涉及的因子降权。
	antis, err := m.store.ListPatterns(ctx, KindAnti, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	implicated := make(map[string]bool)
	for _, a := range antis {
		for _, c := range a.Conditions {
			implicated[c.Factor] = true
		}
	}
	for factor := range implicated {
		if w, ok := next.FactorWeights[factor]; ok {
			next.FactorWeights[factor] = w * 0.8
		}
	}
	normalizeWeights(next.FactorWeights)

	// 表现越差，阈值越保守。
	if successRate < m.cfg.EvolveSuccessFloor {
		next.ConfidenceThresholds.Medium = clampConfidence(next.ConfidenceThresholds.Medium + 5)
		next.ConfidenceThresholds.High = clampConfidence(next.ConfidenceThresholds.High + 5)
		next.RiskTolerance *= 0.9
	}

	if err := m.store.SaveProfile(ctx, next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	logger.Infof("pattern: strategy evolved v%d -> v%d (%s)", prior.Version, next.Version, next.Note)
	return &next, nil
}

// ActiveProfile 返回当前活动档案，不存在时返回默认档案。
func (m *Miner) ActiveProfile(ctx context.Context) (StrategyProfile, error) {
	p, found, err := m.store.ActiveProfile(ctx)
	if err != nil {
		return StrategyProfile{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found {
		return DefaultProfile(), nil
	}
	return p, nil
}

func cloneWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// normalizeWeights 保证因子权重总和为 1.0。
func normalizeWeights(weights map[string]float64) {
	var sum float64
	for _, v := range weights {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for k, v := range weights {
		weights[k] = v / sum
	}
}
