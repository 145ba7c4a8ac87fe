package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"huddle/internal/ledger"
	"huddle/internal/logger"

	"github.com/google/uuid"
)

// MinerConfig 即 config.PatternConfig 的本地镜像，避免反向依赖配置包。
type MinerConfig struct {
	MinPatternExamples     int
	MinAntiPatternExamples int
	ApplyConfidenceFloor   float64
	InitialConfidenceCap   float64
	ImprovementFloor       float64
	EvolveSuccessFloor     float64 // 0~1
	EvolveImprovementMin   float64
	RetireSuccessFloor     float64 // 0~1
	RetireMinApplications  int
}

// Miner 负责模式挖掘、置信度学习与策略演化。
type Miner struct {
	store Store
	judge Judge // 可为 nil：初始置信度直接用观察成功率（仍受 cap 限制）
	cfg   MinerConfig
}

func NewMiner(store Store, judge Judge, cfg MinerConfig) *Miner {
	return &Miner{store: store, judge: judge, cfg: cfg}
}

// candidateGroup 共享同一因子组合的样本。
type candidateGroup struct {
	conditions []Condition
	name       string
	examples   []ledger.Tracked
}

// MinePatterns 从近期成功样本中提取候选成功模式。
// 只有提升超过显著性下限、且同一因子组合至少出现 MinPatternExamples 次才会成为候选。
func (m *Miner) MinePatterns(ctx context.Context, recent []ledger.Tracked) ([]Pattern, error) {
	qualified := make([]ledger.Tracked, 0, len(recent))
	for _, t := range recent {
		if t.Outcome == nil || !t.Outcome.Success {
			continue
		}
		if t.Outcome.Improvement() < m.cfg.ImprovementFloor {
			continue
		}
		qualified = append(qualified, t)
	}
	return m.mine(ctx, KindSuccess, qualified, m.cfg.MinPatternExamples)
}

// MineAntiPatterns 与 MinePatterns 对称：失败或负提升样本，最少 2 例。
func (m *Miner) MineAntiPatterns(ctx context.Context, recent []ledger.Tracked) ([]Pattern, error) {
	qualified := make([]ledger.Tracked, 0, len(recent))
	for _, t := range recent {
		if t.Outcome == nil {
			continue
		}
		if t.Outcome.Success && t.Outcome.Improvement() >= 0 {
			continue
		}
		qualified = append(qualified, t)
	}
	return m.mine(ctx, KindAnti, qualified, m.cfg.MinAntiPatternExamples)
}

func (m *Miner) mine(ctx context.Context, kind Kind, qualified []ledger.Tracked, minExamples int) ([]Pattern, error) {
	groups := groupByFactors(qualified)
	var out []Pattern
	for _, g := range groups {
		// 协作式取消：逐模式为单位检查。
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(g.examples) < minExamples {
			continue
		}
		existing, found, err := m.store.FindPatternByName(ctx, kind, g.name)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if found {
			// 已知组合走学习路径，不重复建档。
			UpdateConfidence(&existing, g.examples)
			if err := m.store.UpsertPattern(ctx, existing); err != nil {
				return out, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			continue
		}
		p := m.newCandidate(ctx, kind, g)
		if err := m.store.UpsertPattern(ctx, p); err != nil {
			return out, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		logger.Infof("pattern: new %s candidate %q (examples=%d conf=%.0f)",
			kindLabel(kind), p.Name, len(g.examples), p.Confidence)
		out = append(out, p)
	}
	return out, nil
}

// newCandidate 组装候选模式。初始置信度来自顾问的定性判断，
// 但在台账证据佐证前不超过 InitialConfidenceCap。
func (m *Miner) newCandidate(ctx context.Context, kind Kind, g candidateGroup) Pattern {
	var successes int
	var improvementSum float64
	ids := make([]string, 0, len(g.examples))
	for _, t := range g.examples {
		ids = append(ids, t.ID)
		if t.Outcome.Success {
			successes++
		}
		improvementSum += t.Outcome.Improvement()
	}
	observedRate := float64(successes) / float64(len(g.examples))

	confidence := observedRate * 100
	if m.judge != nil {
		desc := describeConditions(g.conditions)
		if judged, err := m.judge.JudgePattern(ctx, g.name, desc, len(g.examples)); err == nil {
			confidence = judged
		} else {
			logger.Warnf("pattern: advisor judge unavailable, fallback to observed rate: %v", err)
		}
	}
	if confidence > m.cfg.InitialConfidenceCap {
		confidence = m.cfg.InitialConfidenceCap
	}

	p := Pattern{
		ID:          uuid.NewString(),
		Kind:        kind,
		Name:        g.name,
		Description: describeConditions(g.conditions),
		Conditions:  g.conditions,
		Confidence:  clampConfidence(confidence),
		SuccessRate: observedRate,
		UsageCount:  len(g.examples),
		Examples:    ids,
		LastUpdated: time.Now().UTC(),
	}
	if kind == KindAnti {
		avgLoss := -improvementSum / float64(len(g.examples))
		if avgLoss < 0 {
			avgLoss = 0
		}
		p.Cost = avgLoss
	}
	return p
}

// Learn 用最新台账结果更新所有在册模式，并对持续失效者做退休处理（不删除）。
func (m *Miner) Learn(ctx context.Context, recent []ledger.Tracked) error {
	for _, kind := range []Kind{KindSuccess, KindAnti} {
		patterns, err := m.store.ListPatterns(ctx, kind, false)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		for _, p := range patterns {
			if err := ctx.Err(); err != nil {
				return err
			}
			var matches []ledger.Tracked
			for _, t := range recent {
				if t.Outcome != nil && p.Matches(contextOf(t)) {
					matches = append(matches, t)
				}
			}
			if len(matches) == 0 {
				continue
			}
			UpdateConfidence(&p, matches)
			if p.TimesApplied >= m.cfg.RetireMinApplications && p.SuccessRate < m.cfg.RetireSuccessFloor {
				p.Retired = true
				logger.Infof("pattern: retired %q (applied=%d rate=%.2f)", p.Name, p.TimesApplied, p.SuccessRate)
			}
			if err := m.store.UpsertPattern(ctx, p); err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		}
	}
	return nil
}

// RecordApplications 在决策实际使用了模式后做应用计数。
func (m *Miner) RecordApplications(ctx context.Context, names []string) error {
	for _, kind := range []Kind{KindSuccess, KindAnti} {
		for _, name := range names {
			p, found, err := m.store.FindPatternByName(ctx, kind, name)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			if !found {
				continue
			}
			p.TimesApplied++
			p.LastUpdated = time.Now().UTC()
			if err := m.store.UpsertPattern(ctx, p); err != nil {
				return fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		}
	}
	return nil
}

// groupByFactors 以样本的完整因子组合为键分组（保序、确定性）。
func groupByFactors(samples []ledger.Tracked) []candidateGroup {
	byKey := make(map[string]*candidateGroup)
	var order []string
	for _, t := range samples {
		factors := contextOf(t)
		if len(factors) == 0 {
			continue
		}
		keys := make([]string, 0, len(factors))
		for k := range factors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		conditions := make([]Condition, 0, len(keys))
		weight := 1.0 / float64(len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+factors[k])
			conditions = append(conditions, Condition{Factor: k, Op: OpEq, Value: factors[k], Weight: weight})
		}
		key := strings.Join(parts, ";")
		g, ok := byKey[key]
		if !ok {
			g = &candidateGroup{conditions: conditions, name: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.examples = append(g.examples, t)
	}
	out := make([]candidateGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// contextOf 补充建议自身的结构化因子（kind 恒有）。
func contextOf(t ledger.Tracked) map[string]string {
	ctx := make(map[string]string, len(t.Context)+1)
	for k, v := range t.Context {
		ctx[k] = v
	}
	ctx["kind"] = string(t.Kind)
	return ctx
}

func describeConditions(conditions []Condition) string {
	parts := make([]string, 0, len(conditions))
	for _, c := range conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Factor, c.Op, c.Value))
	}
	return strings.Join(parts, " 且 ")
}

func kindLabel(k Kind) string {
	if k == KindAnti {
		return "anti-pattern"
	}
	return "pattern"
}
