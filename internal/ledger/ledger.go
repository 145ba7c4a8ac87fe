package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"huddle/internal/logger"

	"github.com/google/uuid"
)

// Store 是台账依赖的最小持久化接口，由 gormstore 实现。
type Store interface {
	InsertRecommendation(ctx context.Context, rec Recommendation) error
	// UpsertOutcome 必须在同一事务内校验建议存在，不存在时返回 ErrNotFound。
	UpsertOutcome(ctx context.Context, o Outcome) error
	// Tracked 返回 [from,to] 范围内建议+结果的时点快照（零值时间表示不限）。
	Tracked(ctx context.Context, from, to time.Time) ([]Tracked, error)
	TrackedByScope(ctx context.Context, period int, league string) ([]Tracked, error)
	// Pending 返回无结果的建议，period=0 表示全部。
	Pending(ctx context.Context, period int) ([]Recommendation, error)
}

// Ledger 对外提供追踪/记录/统计操作。
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Track 为建议分配 id 与时间戳并持久化，返回 id。
// 写失败对调用方是致命的，但不会破坏已有条目。
func (l *Ledger) Track(ctx context.Context, rec Recommendation) (string, error) {
	if !rec.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, rec.Kind)
	}
	if rec.Confidence < 0 || rec.Confidence > 100 {
		return "", fmt.Errorf("%w: confidence %.1f out of [0,100]", ErrValidation, rec.Confidence)
	}
	if strings.TrimSpace(rec.League) == "" {
		return "", fmt.Errorf("%w: league required", ErrValidation)
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	if err := l.store.InsertRecommendation(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	logger.Debugf("ledger: tracked %s kind=%s league=%s period=%d conf=%.0f",
		rec.ID, rec.Kind, rec.League, rec.Period, rec.Confidence)
	return rec.ID, nil
}

// RecordOutcome 记录真实结果。按 recommendation id 幂等：重复记录是覆盖而非追加。
func (l *Ledger) RecordOutcome(ctx context.Context, o Outcome) error {
	if strings.TrimSpace(o.RecommendationID) == "" {
		return fmt.Errorf("%w: recommendation id required", ErrValidation)
	}
	if o.ProjectedValue != 0 {
		o.Accuracy = o.ActualValue / o.ProjectedValue * 100
		o.AccuracyDefined = true
	} else {
		o.Accuracy = 0
		o.AccuracyDefined = false
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}
	if err := l.store.UpsertOutcome(ctx, o); err != nil {
		return err
	}
	logger.Debugf("ledger: outcome recorded rec=%s success=%v actual=%.1f projected=%.1f",
		o.RecommendationID, o.Success, o.ActualValue, o.ProjectedValue)
	return nil
}

// Metrics 按时间范围计算聚合表现。空集返回全零指标而非除零错误。
func (l *Ledger) Metrics(ctx context.Context, from, to time.Time) (PerformanceMetrics, error) {
	snapshot, err := l.store.Tracked(ctx, from, to)
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	m := computeMetrics(snapshot)
	m.From = from
	m.To = to
	return m, nil
}

// PendingOutcomes 返回尚无结果的建议，最新的在前。period=0 表示不过滤。
func (l *Ledger) PendingOutcomes(ctx context.Context, period int) ([]Recommendation, error) {
	pending, err := l.store.Pending(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}

// CompareStrategies 在指定范围内按 advisor_used 分组对比平均实际得分。
func (l *Ledger) CompareStrategies(ctx context.Context, period int, league string) (StrategyComparison, error) {
	snapshot, err := l.store.TrackedByScope(ctx, period, league)
	if err != nil {
		return StrategyComparison{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return compareStrategies(period, league, snapshot), nil
}

// Recent 返回最近 n 条带结果的建议（挖掘器输入）。
func (l *Ledger) Recent(ctx context.Context, n int) ([]Tracked, error) {
	snapshot, err := l.store.Tracked(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.After(snapshot[j].CreatedAt)
	})
	if n > 0 && len(snapshot) > n {
		snapshot = snapshot[:n]
	}
	return snapshot, nil
}
