package ledger

import "github.com/shopspring/decimal"

// computeMetrics 从时点快照重算全部聚合指标。
// 成功率只统计有结果的建议；TotalRecommendations 包含待定条目。
func computeMetrics(snapshot []Tracked) PerformanceMetrics {
	m := PerformanceMetrics{
		ByKind:   make(map[Kind]KindMetrics),
		ByPeriod: make(map[int]PeriodMetrics),
	}
	if len(snapshot) == 0 {
		m.TotalCost = decimal.Zero
		m.CostPerRecommendation = decimal.Zero
		return m
	}

	var (
		successes     int
		accuracySum   float64
		accuracyCount int
		confidenceSum float64
		totalCost     = decimal.Zero
	)
	kindSuccess := make(map[Kind]int)
	periodSuccess := make(map[int]int)
	periodAccSum := make(map[int]float64)
	periodAccCount := make(map[int]int)

	for _, t := range snapshot {
		m.TotalRecommendations++
		confidenceSum += t.Confidence
		totalCost = totalCost.Add(t.CostEstimate)

		km := m.ByKind[t.Kind]
		km.Total++
		pm := m.ByPeriod[t.Period]
		pm.Total++

		if t.Outcome != nil {
			m.TrackedOutcomes++
			km.Tracked++
			pm.Tracked++
			if t.Outcome.Success {
				successes++
				kindSuccess[t.Kind]++
				periodSuccess[t.Period]++
			}
			if t.Outcome.AccuracyDefined {
				accuracySum += t.Outcome.Accuracy
				accuracyCount++
				periodAccSum[t.Period] += t.Outcome.Accuracy
				periodAccCount[t.Period]++
			}
		}
		m.ByKind[t.Kind] = km
		m.ByPeriod[t.Period] = pm
	}

	if m.TrackedOutcomes > 0 {
		m.SuccessRate = float64(successes) / float64(m.TrackedOutcomes) * 100
	}
	if accuracyCount > 0 {
		m.AverageAccuracy = accuracySum / float64(accuracyCount)
	}
	m.AverageConfidence = confidenceSum / float64(m.TotalRecommendations)
	m.TotalCost = totalCost
	m.CostPerRecommendation = totalCost.Div(decimal.NewFromInt(int64(m.TotalRecommendations))).Round(6)

	for kind, km := range m.ByKind {
		if km.Tracked > 0 {
			km.SuccessRate = float64(kindSuccess[kind]) / float64(km.Tracked) * 100
			m.ByKind[kind] = km
		}
	}
	for period, pm := range m.ByPeriod {
		if pm.Tracked > 0 {
			pm.SuccessRate = float64(periodSuccess[period]) / float64(pm.Tracked) * 100
		}
		if n := periodAccCount[period]; n > 0 {
			pm.AvgAccuracy = periodAccSum[period] / float64(n)
		}
		m.ByPeriod[period] = pm
	}
	return m
}

// compareStrategies 按 advisor_used 拆分并计算相对提升与成本收益。
func compareStrategies(period int, league string, snapshot []Tracked) StrategyComparison {
	cmp := StrategyComparison{
		Period:      period,
		League:      league,
		AdvisorCost: decimal.Zero,
		CostBenefit: decimal.Zero,
	}
	var advisorSum, baselineSum float64
	for _, t := range snapshot {
		if t.Outcome == nil {
			continue
		}
		if t.AdvisorUsed {
			cmp.AdvisorCount++
			advisorSum += t.Outcome.ActualValue
			cmp.AdvisorCost = cmp.AdvisorCost.Add(t.CostEstimate)
		} else {
			cmp.BaselineCount++
			baselineSum += t.Outcome.ActualValue
		}
	}
	if cmp.AdvisorCount > 0 {
		cmp.AdvisorAvg = advisorSum / float64(cmp.AdvisorCount)
	}
	if cmp.BaselineCount > 0 {
		cmp.BaselineAvg = baselineSum / float64(cmp.BaselineCount)
	}
	if cmp.BaselineAvg != 0 {
		cmp.ImprovementPct = (cmp.AdvisorAvg - cmp.BaselineAvg) / cmp.BaselineAvg * 100
	}
	if cmp.AdvisorCost.IsPositive() {
		improvement := decimal.NewFromFloat(cmp.AdvisorAvg - cmp.BaselineAvg)
		cmp.CostBenefit = improvement.Div(cmp.AdvisorCost).Round(6)
	}
	return cmp
}
