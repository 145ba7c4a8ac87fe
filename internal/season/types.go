package season

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPersistence 赛季记录写入失败。
	ErrPersistence = errors.New("season: persistence failure")
)

// Phase 赛季阶段。
type Phase string

const (
	PhaseEarly        Phase = "early"
	PhaseMid          Phase = "mid"
	PhaseLate         Phase = "late"
	PhaseChampionship Phase = "championship"
)

// PeriodSummary 单个周期（周）的汇总统计。
type PeriodSummary struct {
	Recommendations int     `json:"recommendations"`
	TrackedOutcomes int     `json:"tracked_outcomes"`
	SuccessRate     float64 `json:"success_rate"`     // 百分比
	AverageAccuracy float64 `json:"average_accuracy"` // 百分比
	AdvisorShare    float64 `json:"advisor_share"`    // 0~1，advisor 建议占比
	TotalCost       string  `json:"total_cost"`       // decimal 字符串
	TopPatterns     []string `json:"top_patterns,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// Record 每周期一条的赛季记录，重复写入为原地更新。
type Record struct {
	Period    int           `json:"period"`
	Phase     Phase         `json:"phase"`
	Summary   PeriodSummary `json:"summary"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TrendPoint 周度趋势序列中的一点（平滑后）。
type TrendPoint struct {
	Period           int     `json:"period"`
	SuccessRate      float64 `json:"success_rate"`
	SmoothedSuccess  float64 `json:"smoothed_success"`
	AverageAccuracy  float64 `json:"average_accuracy"`
	SmoothedAccuracy float64 `json:"smoothed_accuracy"`
}

// Store 赛季记录持久化接口，由 gormstore 实现。
type Store interface {
	// UpsertRecord 按 period 幂等写入。
	UpsertRecord(ctx context.Context, r Record) error
	GetRecord(ctx context.Context, period int) (Record, bool, error)
	// ListRecords 按 period 升序返回全部记录。
	ListRecords(ctx context.Context) ([]Record, error)
}
