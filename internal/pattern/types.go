package pattern

import (
	"context"
	"errors"
	"time"
)

// 中文说明：
// 模式/反模式是一组带权条件，统一由 conditions.go 的单一解释器求值，
// 不允许在其它组件里散落 operator switch。

var (
	// ErrPersistence 模式/档案写入失败。
	ErrPersistence = errors.New("pattern: persistence failure")
)

// Kind 区分成功模式与反模式。
type Kind int

const (
	KindSuccess Kind = 0
	KindAnti    Kind = 1
)

// Operator 条件运算符（封闭集合）。
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

// Condition 单条带权规则。
type Condition struct {
	Factor string   `json:"factor"`
	Op     Operator `json:"op"`
	Value  string   `json:"value"`
	Weight float64  `json:"weight"`
}

// Pattern 成功/反模式。Confidence 始终在 [0,100]；反模式 Cost >= 0。
type Pattern struct {
	ID           string      `json:"id"`
	Kind         Kind        `json:"kind"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Conditions   []Condition `json:"conditions"`
	Confidence   float64     `json:"confidence"`   // 0~100
	SuccessRate  float64     `json:"success_rate"` // 0~1
	TimesApplied int         `json:"times_applied"`
	UsageCount   int         `json:"usage_count"` // 累计证据条数（置信度合并的权重）
	Cost         float64     `json:"cost"`        // 反模式平均损失，>=0
	Retired      bool        `json:"retired"`
	Examples     []string    `json:"examples,omitempty"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// ConfidenceThresholds 决策分档阈值。
type ConfidenceThresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// StrategyProfile 当前决策权重与阈值。演化按版本追加，旧版本保留可回滚。
type StrategyProfile struct {
	Version              int                  `json:"version"`
	Phase                string               `json:"phase,omitempty"` // 空为全局活动档案
	ConfidenceThresholds ConfidenceThresholds `json:"confidence_thresholds"`
	RiskTolerance        float64              `json:"risk_tolerance"`
	FactorWeights        map[string]float64   `json:"factor_weights"` // 总和 1.0
	PatternWeights       map[string]float64   `json:"pattern_weights,omitempty"`
	Note                 string               `json:"note,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
}

// DefaultProfile 初始档案（尚未演化时使用）。
func DefaultProfile() StrategyProfile {
	return StrategyProfile{
		Version: 1,
		ConfidenceThresholds: ConfidenceThresholds{
			Low:    40,
			Medium: 60,
			High:   80,
		},
		RiskTolerance: 0.5,
		FactorWeights: map[string]float64{
			"projection": 0.35,
			"matchup":    0.25,
			"recency":    0.20,
			"expert":     0.20,
		},
		PatternWeights: map[string]float64{},
		CreatedAt:      time.Now().UTC(),
	}
}

// Store 模式与档案的持久化接口，由 gormstore 实现。
type Store interface {
	UpsertPattern(ctx context.Context, p Pattern) error
	ListPatterns(ctx context.Context, kind Kind, includeRetired bool) ([]Pattern, error)
	FindPatternByName(ctx context.Context, kind Kind, name string) (Pattern, bool, error)
	// SaveProfile 追加新版本（不覆盖旧版本），并把 active 标记迁移过去。
	SaveProfile(ctx context.Context, p StrategyProfile) error
	ActiveProfile(ctx context.Context) (StrategyProfile, bool, error)
}

// Judge 为候选模式给出定性初始置信度（由顾问实现，不可用时返回错误即可）。
type Judge interface {
	JudgePattern(ctx context.Context, name, description string, examples int) (float64, error)
}
