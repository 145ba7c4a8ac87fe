package pattern

import (
	"time"

	"huddle/internal/ledger"
)

// mergeConfidence 运行加权平均：先验置信度以累计 usage 为权，
// 新批次以条数为权。结果严格落在 [先验, 批次成功率] 区间内，
// 且等大小、等成功率的批次合并与顺序无关。
func mergeConfidence(prior float64, priorUsage int, batchRate float64, batchSize int) float64 {
	if batchSize <= 0 {
		return clampConfidence(prior)
	}
	if priorUsage <= 0 {
		return clampConfidence(batchRate)
	}
	merged := (prior*float64(priorUsage) + batchRate*float64(batchSize)) /
		float64(priorUsage+batchSize)
	return clampConfidence(merged)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// UpdateConfidence 用一批匹配的已结案建议更新模式置信度与成功率。
// usage 累计，保证置信度是对全部历史证据的精确加权平均。
func UpdateConfidence(p *Pattern, matches []ledger.Tracked) {
	var tracked, successes int
	var improvementSum float64
	for _, t := range matches {
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
		return
	}
	batchRate := float64(successes) / float64(tracked)
	p.Confidence = mergeConfidence(p.Confidence, p.UsageCount, batchRate*100, tracked)
	// 成功率同样做累计加权，而不是只反映最近一批。
	p.SuccessRate = (p.SuccessRate*float64(p.UsageCount) + batchRate*float64(tracked)) /
		float64(p.UsageCount+tracked)
	if p.Kind == KindAnti {
		avgLoss := -improvementSum / float64(tracked)
		if avgLoss < 0 {
			avgLoss = 0
		}
		// 代价也按证据量加权累计，保持 >= 0。
		p.Cost = (p.Cost*float64(p.UsageCount) + avgLoss*float64(tracked)) /
			float64(p.UsageCount+tracked)
	}
	p.UsageCount += tracked
	p.LastUpdated = time.Now().UTC()
}
