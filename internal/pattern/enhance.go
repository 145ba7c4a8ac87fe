package pattern

import (
	"context"
	"fmt"
)

// Enhancement EnhanceDecision 的输出：调整后的置信度、命中的模式名与告警。
type Enhancement struct {
	Confidence float64  `json:"confidence"`
	Applied    []string `json:"applied,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Rationale  []string `json:"rationale,omitempty"`
}

// EnhanceDecision 将高置信模式套用到一个待定决策上：
// 命中的成功模式按权提升置信度并附加依据；每个命中的反模式施加固定罚减并产生告警。
// 本函数对持久化状态是纯读：不改模式，不做应用计数（由调用方在真正采用后调用 RecordApplications）。
func (m *Miner) EnhanceDecision(ctx context.Context, confidence float64, context_ map[string]string) (Enhancement, error) {
	out := Enhancement{Confidence: confidence}

	patterns, err := m.store.ListPatterns(ctx, KindSuccess, false)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, p := range patterns {
		if p.Confidence <= m.cfg.ApplyConfidenceFloor {
			continue
		}
		if !p.Matches(context_) {
			continue
		}
		boost := (p.Confidence - m.cfg.ApplyConfidenceFloor) / 10 * p.MatchWeight()
		out.Confidence = clampConfidence(out.Confidence + boost)
		out.Applied = append(out.Applied, p.Name)
		out.Rationale = append(out.Rationale,
			fmt.Sprintf("模式 %q 命中（置信度 %.0f，历史成功率 %.0f%%）", p.Name, p.Confidence, p.SuccessRate*100))
	}

	antis, err := m.store.ListPatterns(ctx, KindAnti, false)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, a := range antis {
		if !a.Matches(context_) {
			continue
		}
		penalty := 5 + a.Cost/10
		out.Confidence = clampConfidence(out.Confidence - penalty)
		out.Applied = append(out.Applied, a.Name)
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("反模式 %q 命中（历史平均损失 %.1f 分）", a.Name, a.Cost))
	}
	return out, nil
}
