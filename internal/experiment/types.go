package experiment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 未知实验 id。
	ErrNotFound = errors.New("experiment: not found")
	// ErrValidation 实验规格在任何状态变更前被拒绝。
	ErrValidation = errors.New("experiment: validation failed")
	// ErrConcluded 已结束的实验是只读的。
	ErrConcluded = errors.New("experiment: already concluded")
	// ErrPersistence 持久化失败。
	ErrPersistence = errors.New("experiment: persistence failure")
)

// VariantID 两个固定分支。
type VariantID string

const (
	VariantControl   VariantID = "control"
	VariantTreatment VariantID = "treatment"
)

// Variant 实验分支描述。
type Variant struct {
	ID          VariantID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Strategy    string         `json:"strategy"`
	Params      map[string]any `json:"params,omitempty"`
}

// Status 实验状态机：active -> concluded，无其它迁移。
type Status int

const (
	StatusActive    Status = 0
	StatusConcluded Status = 1
)

// Experiment 恰好两个分支的受控对比。
type Experiment struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Control          Variant   `json:"control"`
	Treatment        Variant   `json:"treatment"`
	Allocation       float64   `json:"allocation"` // treatment 分配比例 0~100
	Metrics          []string  `json:"metrics,omitempty"`
	Status           Status    `json:"status"`
	Winner           VariantID `json:"winner,omitempty"`
	WinnerConfidence float64   `json:"winner_confidence,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ConcludedAt      time.Time `json:"concluded_at,omitempty"`
}

// Spec 创建实验的输入。
type Spec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Control     Variant  `json:"control"`
	Treatment   Variant  `json:"treatment"`
	Allocation  float64  `json:"allocation"`
	Metrics     []string `json:"metrics,omitempty"`
}

// Sample 某分支的观测汇总（来自台账）。
type Sample struct {
	Total     int `json:"total"`
	Successes int `json:"successes"`
}

// SuccessRate 空样本返回 0。
func (s Sample) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total)
}

// Analysis analyze 的输出。
type Analysis struct {
	ExperimentID    string                `json:"experiment_id"`
	Samples         map[VariantID]Sample  `json:"samples"`
	RateDifference  float64               `json:"rate_difference"` // treatment - control
	ZScore          float64               `json:"z_score"`
	ConfidenceLevel float64               `json:"confidence_level"` // 0~1
	Winner          VariantID             `json:"winner,omitempty"`
	Concluded       bool                  `json:"concluded"`
	Note            string                `json:"note,omitempty"`
}

// Store 实验持久化接口，由 gormstore 实现。
type Store interface {
	InsertExperiment(ctx context.Context, e Experiment) error
	GetExperiment(ctx context.Context, id string) (Experiment, error)
	// ConcludeExperiment 仅执行 active -> concluded 迁移。
	ConcludeExperiment(ctx context.Context, id string, winner VariantID, confidence float64, at time.Time) error
	// VariantSamples 从台账统计每个分支的样本量与成功数（只统计有结果的建议）。
	VariantSamples(ctx context.Context, experimentID string) (map[VariantID]Sample, error)
}
