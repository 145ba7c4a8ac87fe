package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// 中文说明：
// 台账是唯一的共享可变状态：所有建议与结果都落在这里，
// 指标永远从完整结果集重算，不做增量漂移。

var (
	// ErrNotFound 结果指向不存在的建议 id。
	ErrNotFound = errors.New("ledger: recommendation not found")
	// ErrValidation 输入在落库前被拒绝。
	ErrValidation = errors.New("ledger: validation failed")
	// ErrPersistence 持久化写入失败（调用方流程终止，但已存数据不受影响）。
	ErrPersistence = errors.New("ledger: persistence failure")
)

// Kind 建议类别。
type Kind string

const (
	KindLineup Kind = "lineup"
	KindWaiver Kind = "waiver"
	KindTrade  Kind = "trade"
	KindDraft  Kind = "draft"
)

// Valid 仅接受四种已知类别。
func (k Kind) Valid() bool {
	switch k {
	case KindLineup, KindWaiver, KindTrade, KindDraft:
		return true
	}
	return false
}

// Recommendation 一条被追踪的决策输出。除关联 Outcome 外不可变。
type Recommendation struct {
	ID              string            `json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	Kind            Kind              `json:"kind"`
	Period          int               `json:"period"`
	League          string            `json:"league"`
	Team            string            `json:"team"`
	Payload         map[string]any    `json:"payload,omitempty"`
	Confidence      float64           `json:"confidence"` // 0~100
	AdvisorUsed     bool              `json:"advisor_used"`
	AdvisorIdentity string            `json:"advisor_identity,omitempty"`
	CostEstimate    decimal.Decimal   `json:"cost_estimate"`
	DataSources     []string          `json:"data_sources,omitempty"`
	Context         map[string]string `json:"context,omitempty"` // 模式挖掘使用的因子上下文
	ExperimentID    string            `json:"experiment_id,omitempty"`
	Variant         string            `json:"variant,omitempty"`
}

// Outcome 建议的真实结果，事后记录一次，按 recommendation id 幂等覆盖。
type Outcome struct {
	RecommendationID string             `json:"recommendation_id"`
	Success          bool               `json:"success"`
	ActualValue      float64            `json:"actual_value"`
	ProjectedValue   float64            `json:"projected_value"`
	Accuracy         float64            `json:"accuracy"` // actual/projected*100，仅在 AccuracyDefined 时有意义
	AccuracyDefined  bool               `json:"accuracy_defined"`
	Breakdown        map[string]float64 `json:"breakdown,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	RecordedAt       time.Time          `json:"recorded_at"`
}

// Improvement 实际值相对投影的提升（可为负）。
func (o Outcome) Improvement() float64 {
	return o.ActualValue - o.ProjectedValue
}

// Tracked 建议与其（可能缺失的）结果的联接视图。
type Tracked struct {
	Recommendation
	Outcome *Outcome `json:"outcome,omitempty"`
}

// KindMetrics 按类别的分解指标。
type KindMetrics struct {
	Total       int     `json:"total"`
	Tracked     int     `json:"tracked"`
	SuccessRate float64 `json:"success_rate"`
}

// PeriodMetrics 按周期的分解指标。
type PeriodMetrics struct {
	Total       int     `json:"total"`
	Tracked     int     `json:"tracked"`
	SuccessRate float64 `json:"success_rate"`
	AvgAccuracy float64 `json:"avg_accuracy"`
}

// PerformanceMetrics 台账的聚合表现，全部从过滤后的完整结果集重算。
type PerformanceMetrics struct {
	From                  time.Time            `json:"from,omitempty"`
	To                    time.Time            `json:"to,omitempty"`
	TotalRecommendations  int                  `json:"total_recommendations"`
	TrackedOutcomes       int                  `json:"tracked_outcomes"`
	SuccessRate           float64              `json:"success_rate"`     // 百分比
	AverageAccuracy       float64              `json:"average_accuracy"` // 百分比，仅统计有定义的
	AverageConfidence     float64              `json:"average_confidence"`
	TotalCost             decimal.Decimal      `json:"total_cost"`
	CostPerRecommendation decimal.Decimal      `json:"cost_per_recommendation"`
	ByKind                map[Kind]KindMetrics `json:"by_kind"`
	ByPeriod              map[int]PeriodMetrics `json:"by_period"`
}

// StrategyComparison advisor 组与基线组的实际表现对比。
type StrategyComparison struct {
	Period          int             `json:"period"`
	League          string          `json:"league"`
	AdvisorCount    int             `json:"advisor_count"`
	BaselineCount   int             `json:"baseline_count"`
	AdvisorAvg      float64         `json:"advisor_avg"`
	BaselineAvg     float64         `json:"baseline_avg"`
	ImprovementPct  float64         `json:"improvement_pct"`
	AdvisorCost     decimal.Decimal `json:"advisor_cost"`
	CostBenefit     decimal.Decimal `json:"cost_benefit"` // 每单位成本带来的提升，0 表示无成本
}
