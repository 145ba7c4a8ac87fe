package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/experiment"
	storemodel "huddle/internal/store/model"

	"gorm.io/gorm"
)

var _ experiment.Store = (*GormStore)(nil)

func (s *GormStore) InsertExperiment(ctx context.Context, e experiment.Experiment) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	model, err := newExperimentModel(e)
	if err != nil {
		return fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	return nil
}

func (s *GormStore) GetExperiment(ctx context.Context, id string) (experiment.Experiment, error) {
	if err := s.ready(); err != nil {
		return experiment.Experiment{}, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	var model storemodel.ExperimentModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return experiment.Experiment{}, experiment.ErrNotFound
		}
		return experiment.Experiment{}, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	return experimentModelToRecord(model)
}

// ConcludeExperiment 仅执行 active -> concluded 迁移；已结束的实验不可再变。
func (s *GormStore) ConcludeExperiment(ctx context.Context, id string, winner experiment.VariantID, confidence float64, at time.Time) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	res := s.db.WithContext(ctx).Model(&storemodel.ExperimentModel{}).
		Where("id = ? AND status = ?", id, int(storemodel.ExperimentStatusActive)).
		Updates(map[string]interface{}{
			"status":            int(storemodel.ExperimentStatusConcluded),
			"winner":            string(winner),
			"winner_confidence": confidence,
			"concluded_at":      at.Unix(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", experiment.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		// 区分“不存在”与“已结束”。
		var count int64
		if err := s.db.WithContext(ctx).Model(&storemodel.ExperimentModel{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
		}
		if count == 0 {
			return experiment.ErrNotFound
		}
		return experiment.ErrConcluded
	}
	return nil
}

// VariantSamples 从台账统计每个分支的样本量与成功数，只统计有结果的建议。
func (s *GormStore) VariantSamples(ctx context.Context, experimentID string) (map[experiment.VariantID]experiment.Sample, error) {
	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	type row struct {
		Variant   string
		Total     int
		Successes int
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("recommendations").
		Select("recommendations.variant AS variant, COUNT(*) AS total, SUM(CASE WHEN outcomes.success THEN 1 ELSE 0 END) AS successes").
		Joins("JOIN outcomes ON outcomes.recommendation_id = recommendations.id").
		Where("recommendations.experiment_id = ?", experimentID).
		Group("recommendations.variant").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	out := map[experiment.VariantID]experiment.Sample{
		experiment.VariantControl:   {},
		experiment.VariantTreatment: {},
	}
	for _, r := range rows {
		out[experiment.VariantID(r.Variant)] = experiment.Sample{Total: r.Total, Successes: r.Successes}
	}
	return out, nil
}

// --------------------------- Model Conversion -----------------------------

func newExperimentModel(e experiment.Experiment) (storemodel.ExperimentModel, error) {
	control, err := marshalJSON(e.Control)
	if err != nil {
		return storemodel.ExperimentModel{}, err
	}
	treatment, err := marshalJSON(e.Treatment)
	if err != nil {
		return storemodel.ExperimentModel{}, err
	}
	metrics, err := marshalJSON(e.Metrics)
	if err != nil {
		return storemodel.ExperimentModel{}, err
	}
	model := storemodel.ExperimentModel{
		ID:               e.ID,
		Name:             e.Name,
		Description:      e.Description,
		ControlJSON:      control,
		TreatmentJSON:    treatment,
		Allocation:       e.Allocation,
		MetricsJSON:      metrics,
		Status:           storemodel.ExperimentStatus(e.Status),
		Winner:           string(e.Winner),
		WinnerConfidence: e.WinnerConfidence,
		CreatedAtUnix:    e.CreatedAt.Unix(),
	}
	if !e.ConcludedAt.IsZero() {
		model.ConcludedAtUnix = e.ConcludedAt.Unix()
	}
	return model, nil
}

func experimentModelToRecord(m storemodel.ExperimentModel) (experiment.Experiment, error) {
	e := experiment.Experiment{
		ID:               m.ID,
		Name:             m.Name,
		Description:      m.Description,
		Allocation:       m.Allocation,
		Status:           experiment.Status(m.Status),
		Winner:           experiment.VariantID(m.Winner),
		WinnerConfidence: m.WinnerConfidence,
		CreatedAt:        time.Unix(m.CreatedAtUnix, 0).UTC(),
	}
	if m.ConcludedAtUnix > 0 {
		e.ConcludedAt = time.Unix(m.ConcludedAtUnix, 0).UTC()
	}
	if err := unmarshalJSON(m.ControlJSON, &e.Control); err != nil {
		return experiment.Experiment{}, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	if err := unmarshalJSON(m.TreatmentJSON, &e.Treatment); err != nil {
		return experiment.Experiment{}, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	if err := unmarshalJSON(m.MetricsJSON, &e.Metrics); err != nil {
		return experiment.Experiment{}, fmt.Errorf("%w: %v", experiment.ErrPersistence, err)
	}
	return e, nil
}
