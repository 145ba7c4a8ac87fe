package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"huddle/internal/ledger"
	"huddle/internal/logger"

	"github.com/google/uuid"
)

// Operation 由调用方提供的策略执行体：按分支生成一条建议。
type Operation func(ctx context.Context, v Variant) (ledger.Recommendation, error)

// Result 一次分支执行的产出。
type Result struct {
	ExperimentID     string        `json:"experiment_id"`
	Variant          VariantID     `json:"variant"`
	RecommendationID string        `json:"recommendation_id"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Coordinator 负责分支分配、执行与统计分析。
type Coordinator struct {
	store  Store
	ledger *ledger.Ledger

	significance float64 // 胜出所需置信水平，0~1
	minSample    int     // 每分支最小样本量

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCoordinator(store Store, led *ledger.Ledger, significance float64, minSample int) *Coordinator {
	return &Coordinator{
		store:        store,
		ledger:       led,
		significance: significance,
		minSample:    minSample,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create 校验并持久化一个新实验。任何校验失败都发生在状态变更之前。
func (c *Coordinator) Create(ctx context.Context, spec Spec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("%w: name required", ErrValidation)
	}
	if spec.Allocation < 0 || spec.Allocation > 100 {
		return "", fmt.Errorf("%w: allocation %.1f out of [0,100]", ErrValidation, spec.Allocation)
	}
	if strings.TrimSpace(spec.Control.Strategy) == "" || strings.TrimSpace(spec.Treatment.Strategy) == "" {
		return "", fmt.Errorf("%w: both variants need a strategy", ErrValidation)
	}
	e := Experiment{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		Control:     spec.Control,
		Treatment:   spec.Treatment,
		Allocation:  spec.Allocation,
		Metrics:     spec.Metrics,
		Status:      StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	e.Control.ID = VariantControl
	e.Treatment.ID = VariantTreatment
	if err := c.store.InsertExperiment(ctx, e); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	logger.Infof("experiment: created %q id=%s allocation=%.0f%%", e.Name, e.ID, e.Allocation)
	return e.ID, nil
}

// SelectVariant 按分配比例做伪随机抽取；多次调用收敛于配置比例即可，
// 不要求密码学随机。
func (c *Coordinator) SelectVariant(ctx context.Context, experimentID string) (Variant, error) {
	e, err := c.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Variant{}, err
	}
	if e.Status == StatusConcluded {
		return Variant{}, fmt.Errorf("%w: %s", ErrConcluded, experimentID)
	}
	c.mu.Lock()
	draw := c.rng.Float64()
	c.mu.Unlock()
	if draw*100 < e.Allocation {
		return e.Treatment, nil
	}
	return e.Control, nil
}

// ExecuteVariant 执行指定分支的策略，并把实验/分支标记写到生成的建议上。
func (c *Coordinator) ExecuteVariant(ctx context.Context, experimentID string, v Variant, op Operation) (Result, error) {
	if op == nil {
		return Result{}, fmt.Errorf("%w: nil operation", ErrValidation)
	}
	e, err := c.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Result{}, err
	}
	if e.Status == StatusConcluded {
		return Result{}, fmt.Errorf("%w: %s", ErrConcluded, experimentID)
	}
	start := time.Now()
	rec, err := op(ctx, v)
	if err != nil {
		return Result{}, fmt.Errorf("experiment %s variant %s failed: %w", experimentID, v.ID, err)
	}
	rec.ExperimentID = experimentID
	rec.Variant = string(v.ID)
	id, err := c.ledger.Track(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ExperimentID:     experimentID,
		Variant:          v.ID,
		RecommendationID: id,
		Elapsed:          time.Since(start),
	}, nil
}

// Analyze 计算两分支的成功率差异与置信水平，并在显著时宣告胜者。
// 任一分支样本量低于下限时，无论效应多大都只报告“样本不足”。
func (c *Coordinator) Analyze(ctx context.Context, experimentID string) (Analysis, error) {
	e, err := c.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Analysis{}, err
	}
	samples, err := c.store.VariantSamples(ctx, experimentID)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	control := samples[VariantControl]
	treatment := samples[VariantTreatment]

	a := Analysis{
		ExperimentID:   experimentID,
		Samples:        samples,
		RateDifference: treatment.SuccessRate() - control.SuccessRate(),
	}
	if control.Total < c.minSample || treatment.Total < c.minSample {
		a.Note = fmt.Sprintf("insufficient data: need >=%d per variant (control=%d treatment=%d)",
			c.minSample, control.Total, treatment.Total)
		return a, nil
	}

	a.ZScore = twoProportionZ(control, treatment)
	a.ConfidenceLevel = twoTailedConfidence(a.ZScore)
	if a.ConfidenceLevel < c.significance {
		a.Note = fmt.Sprintf("insufficient data: confidence %.3f below %.2f", a.ConfidenceLevel, c.significance)
		return a, nil
	}

	if a.RateDifference > 0 {
		a.Winner = VariantTreatment
	} else {
		a.Winner = VariantControl
	}
	a.Concluded = true
	if e.Status == StatusActive {
		if err := c.store.ConcludeExperiment(ctx, experimentID, a.Winner, a.ConfidenceLevel, time.Now().UTC()); err != nil {
			return a, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		logger.Infof("experiment: %s concluded, winner=%s confidence=%.3f", experimentID, a.Winner, a.ConfidenceLevel)
	}
	return a, nil
}
