package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"huddle/internal/ledger"
	storemodel "huddle/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ ledger.Store = (*GormStore)(nil)

// InsertRecommendation 建议是一次性写入，不做 upsert。
func (s *GormStore) InsertRecommendation(ctx context.Context, rec ledger.Recommendation) error {
	if err := s.ready(); err != nil {
		return err
	}
	model, err := newRecommendationModel(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpsertOutcome 同一事务内先校验建议存在，再按 recommendation_id 幂等覆盖。
// 事务把存在性检查与写入绑在一起，并发 recordOutcome 不会丢更新。
func (s *GormStore) UpsertOutcome(ctx context.Context, o ledger.Outcome) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrPersistence, err)
	}
	model, err := newOutcomeModel(o)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrPersistence, err)
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&storemodel.RecommendationModel{}).
			Where("id = ?", o.RecommendationID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ledger.ErrNotFound
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "recommendation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"success", "actual_value", "projected_value", "accuracy",
				"accuracy_defined", "breakdown_json", "notes", "recorded_at",
			}),
		}).Create(&model).Error
	})
	if txErr == nil {
		return nil
	}
	if txErr == ledger.ErrNotFound {
		return ledger.ErrNotFound
	}
	return fmt.Errorf("%w: %v", ledger.ErrPersistence, txErr)
}

// Tracked 返回 [from,to] 范围内建议与结果的联接快照。
// 单条查询加内存联接，保证多步聚合读到的是同一时点。
func (s *GormStore) Tracked(ctx context.Context, from, to time.Time) ([]ledger.Tracked, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&storemodel.RecommendationModel{})
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from.Unix())
	}
	if !to.IsZero() {
		query = query.Where("created_at <= ?", to.Unix())
	}
	return s.joinOutcomes(ctx, query)
}

// TrackedByScope 按周期与联赛过滤（league 为空表示不限联赛）。
func (s *GormStore) TrackedByScope(ctx context.Context, period int, league string) ([]ledger.Tracked, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&storemodel.RecommendationModel{})
	if period > 0 {
		query = query.Where("period = ?", period)
	}
	if league != "" {
		query = query.Where("league = ?", league)
	}
	return s.joinOutcomes(ctx, query)
}

// Pending 返回没有结果的建议，period=0 表示全部。
func (s *GormStore) Pending(ctx context.Context, period int) ([]ledger.Recommendation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&storemodel.RecommendationModel{}).
		Where("id NOT IN (?)", s.db.Model(&storemodel.OutcomeModel{}).Select("recommendation_id"))
	if period > 0 {
		query = query.Where("period = ?", period)
	}
	var models []storemodel.RecommendationModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Recommendation, 0, len(models))
	for _, m := range models {
		rec, err := recommendationModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) joinOutcomes(ctx context.Context, query *gorm.DB) ([]ledger.Tracked, error) {
	var recs []storemodel.RecommendationModel
	if err := query.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(recs))
	for _, m := range recs {
		ids = append(ids, m.ID)
	}
	var outs []storemodel.OutcomeModel
	if err := s.db.WithContext(ctx).
		Where("recommendation_id IN ?", ids).
		Find(&outs).Error; err != nil {
		return nil, err
	}
	byRec := make(map[string]storemodel.OutcomeModel, len(outs))
	for _, o := range outs {
		byRec[o.RecommendationID] = o
	}
	tracked := make([]ledger.Tracked, 0, len(recs))
	for _, m := range recs {
		rec, err := recommendationModelToRecord(m)
		if err != nil {
			return nil, err
		}
		t := ledger.Tracked{Recommendation: rec}
		if om, ok := byRec[m.ID]; ok {
			o, err := outcomeModelToRecord(om)
			if err != nil {
				return nil, err
			}
			t.Outcome = &o
		}
		tracked = append(tracked, t)
	}
	return tracked, nil
}

// --------------------------- Model Conversion -----------------------------

func newRecommendationModel(rec ledger.Recommendation) (storemodel.RecommendationModel, error) {
	payload, err := marshalJSON(rec.Payload)
	if err != nil {
		return storemodel.RecommendationModel{}, err
	}
	sources, err := marshalJSON(rec.DataSources)
	if err != nil {
		return storemodel.RecommendationModel{}, err
	}
	factors, err := marshalJSON(rec.Context)
	if err != nil {
		return storemodel.RecommendationModel{}, err
	}
	return storemodel.RecommendationModel{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		Period:          rec.Period,
		League:          rec.League,
		Team:            rec.Team,
		PayloadJSON:     payload,
		Confidence:      rec.Confidence,
		AdvisorUsed:     rec.AdvisorUsed,
		AdvisorIdentity: rec.AdvisorIdentity,
		CostEstimate:    rec.CostEstimate.String(),
		DataSourcesJSON: sources,
		ContextJSON:     factors,
		ExperimentID:    rec.ExperimentID,
		Variant:         rec.Variant,
		CreatedAtUnix:   rec.CreatedAt.Unix(),
	}, nil
}

func recommendationModelToRecord(m storemodel.RecommendationModel) (ledger.Recommendation, error) {
	rec := ledger.Recommendation{
		ID:              m.ID,
		CreatedAt:       time.Unix(m.CreatedAtUnix, 0).UTC(),
		Kind:            ledger.Kind(m.Kind),
		Period:          m.Period,
		League:          m.League,
		Team:            m.Team,
		Confidence:      m.Confidence,
		AdvisorUsed:     m.AdvisorUsed,
		AdvisorIdentity: m.AdvisorIdentity,
		ExperimentID:    m.ExperimentID,
		Variant:         m.Variant,
	}
	if m.CostEstimate != "" {
		cost, err := decimal.NewFromString(m.CostEstimate)
		if err != nil {
			return ledger.Recommendation{}, fmt.Errorf("cost_estimate 损坏: %w", err)
		}
		rec.CostEstimate = cost
	}
	if err := unmarshalJSON(m.PayloadJSON, &rec.Payload); err != nil {
		return ledger.Recommendation{}, err
	}
	if err := unmarshalJSON(m.DataSourcesJSON, &rec.DataSources); err != nil {
		return ledger.Recommendation{}, err
	}
	if err := unmarshalJSON(m.ContextJSON, &rec.Context); err != nil {
		return ledger.Recommendation{}, err
	}
	return rec, nil
}

func newOutcomeModel(o ledger.Outcome) (storemodel.OutcomeModel, error) {
	breakdown, err := marshalJSON(o.Breakdown)
	if err != nil {
		return storemodel.OutcomeModel{}, err
	}
	return storemodel.OutcomeModel{
		RecommendationID: o.RecommendationID,
		Success:          o.Success,
		ActualValue:      o.ActualValue,
		ProjectedValue:   o.ProjectedValue,
		Accuracy:         o.Accuracy,
		AccuracyDefined:  o.AccuracyDefined,
		BreakdownJSON:    breakdown,
		Notes:            o.Notes,
		RecordedAtUnix:   o.RecordedAt.Unix(),
	}, nil
}

func outcomeModelToRecord(m storemodel.OutcomeModel) (ledger.Outcome, error) {
	o := ledger.Outcome{
		RecommendationID: m.RecommendationID,
		Success:          m.Success,
		ActualValue:      m.ActualValue,
		ProjectedValue:   m.ProjectedValue,
		Accuracy:         m.Accuracy,
		AccuracyDefined:  m.AccuracyDefined,
		Notes:            m.Notes,
		RecordedAt:       time.Unix(m.RecordedAtUnix, 0).UTC(),
	}
	if err := unmarshalJSON(m.BreakdownJSON, &o.Breakdown); err != nil {
		return ledger.Outcome{}, err
	}
	return o, nil
}

// --------------------------- JSON Helpers ---------------------------------

func marshalJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(data datatypes.JSON, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
