package gormstore

import (
	"context"
	"time"

	"huddle/internal/engine"
	storemodel "huddle/internal/store/model"
)

var _ engine.AuditStore = (*GormStore)(nil)

// InsertDecision 每个生成的决策留一条审计，升级未执行的也不例外。
func (s *GormStore) InsertDecision(ctx context.Context, d engine.Decision) error {
	if err := s.ready(); err != nil {
		return err
	}
	subjects, err := marshalJSON(d.AffectedSubjects)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(d.Actions)
	if err != nil {
		return err
	}
	results, err := marshalJSON(d.Results)
	if err != nil {
		return err
	}
	recIDs, err := marshalJSON(d.RecommendationIDs)
	if err != nil {
		return err
	}
	model := storemodel.DecisionAuditModel{
		ID:               d.ID,
		EventID:          d.EventID,
		Type:             string(d.Type),
		Priority:         string(d.Priority),
		DeadlineUnix:     d.Deadline.Unix(),
		Confidence:       d.Confidence,
		EstimatedImpact:  d.EstimatedImpact,
		SubjectsJSON:     subjects,
		ActionsJSON:      actions,
		ResultsJSON:      results,
		Executed:           d.Executed,
		RecommendationJSON: recIDs,
		CreatedAtUnix:      d.CreatedAt.Unix(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// RecentDecisions 最新决策在前（admin API 用）。
func (s *GormStore) RecentDecisions(ctx context.Context, limit int) ([]engine.Decision, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []storemodel.DecisionAuditModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Decision, 0, len(models))
	for _, m := range models {
		d := engine.Decision{
			ID:               m.ID,
			EventID:          m.EventID,
			Type:             engine.DecisionType(m.Type),
			Priority:         engine.Priority(m.Priority),
			Deadline:         time.Unix(m.DeadlineUnix, 0).UTC(),
			Confidence:       m.Confidence,
			EstimatedImpact:  m.EstimatedImpact,
			Executed:  m.Executed,
			CreatedAt: time.Unix(m.CreatedAtUnix, 0).UTC(),
		}
		if err := unmarshalJSON(m.SubjectsJSON, &d.AffectedSubjects); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(m.ActionsJSON, &d.Actions); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(m.ResultsJSON, &d.Results); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(m.RecommendationJSON, &d.RecommendationIDs); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
