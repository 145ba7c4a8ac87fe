package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/pattern"
	storemodel "huddle/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ pattern.Store = (*GormStore)(nil)

// UpsertPattern 按模式 id 幂等写入（置信度/成功率/用量整体覆盖）。
func (s *GormStore) UpsertPattern(ctx context.Context, p pattern.Pattern) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	model, err := newPatternModel(p)
	if err != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "conditions_json", "confidence", "success_rate",
				"times_applied", "usage_count", "cost", "retired", "examples_json", "last_updated",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	return nil
}

// ListPatterns 按类别列出，默认隐藏已退役的。
func (s *GormStore) ListPatterns(ctx context.Context, kind pattern.Kind, includeRetired bool) ([]pattern.Pattern, error) {
	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	query := s.db.WithContext(ctx).Where("kind = ?", int(kind))
	if !includeRetired {
		query = query.Where("retired = ?", false)
	}
	var models []storemodel.PatternModel
	if err := query.Order("confidence DESC, name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	out := make([]pattern.Pattern, 0, len(models))
	for _, m := range models {
		p, err := patternModelToRecord(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// FindPatternByName 名字在同类别内唯一（挖掘器按因子组合命名）。
func (s *GormStore) FindPatternByName(ctx context.Context, kind pattern.Kind, name string) (pattern.Pattern, bool, error) {
	if err := s.ready(); err != nil {
		return pattern.Pattern{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	var model storemodel.PatternModel
	err := s.db.WithContext(ctx).
		Where("kind = ? AND name = ?", int(kind), name).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pattern.Pattern{}, false, nil
		}
		return pattern.Pattern{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	p, err := patternModelToRecord(model)
	if err != nil {
		return pattern.Pattern{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	return p, true, nil
}

// SaveProfile 追加新版本并把同 phase 的 active 标记迁移过去。旧版本保留可回滚。
func (s *GormStore) SaveProfile(ctx context.Context, p pattern.StrategyProfile) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	model, err := newProfileModel(p)
	if err != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&storemodel.StrategyProfileModel{}).
			Where("phase = ? AND active = ?", p.Phase, true).
			Update("active", false).Error; err != nil {
			return err
		}
		model.Active = true
		return tx.Create(&model).Error
	})
	if txErr != nil {
		return fmt.Errorf("%w: %v", pattern.ErrPersistence, txErr)
	}
	return nil
}

// ActiveProfile 全局活动档案（phase 为空）。
func (s *GormStore) ActiveProfile(ctx context.Context) (pattern.StrategyProfile, bool, error) {
	return s.activeProfile(ctx, "")
}

// PhaseProfile 某赛季阶段的活动档案。
func (s *GormStore) PhaseProfile(ctx context.Context, phase string) (pattern.StrategyProfile, bool, error) {
	return s.activeProfile(ctx, phase)
}

// ProfileVersions 某 phase 的全部历史版本，升序（回滚/对比用）。
func (s *GormStore) ProfileVersions(ctx context.Context, phase string) ([]pattern.StrategyProfile, error) {
	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	var models []storemodel.StrategyProfileModel
	if err := s.db.WithContext(ctx).
		Where("phase = ?", phase).
		Order("version ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	out := make([]pattern.StrategyProfile, 0, len(models))
	for _, m := range models {
		p, err := profileModelToRecord(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GormStore) activeProfile(ctx context.Context, phase string) (pattern.StrategyProfile, bool, error) {
	if err := s.ready(); err != nil {
		return pattern.StrategyProfile{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	var model storemodel.StrategyProfileModel
	err := s.db.WithContext(ctx).
		Where("phase = ? AND active = ?", phase, true).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pattern.StrategyProfile{}, false, nil
		}
		return pattern.StrategyProfile{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	p, err := profileModelToRecord(model)
	if err != nil {
		return pattern.StrategyProfile{}, false, fmt.Errorf("%w: %v", pattern.ErrPersistence, err)
	}
	return p, true, nil
}

// --------------------------- Model Conversion -----------------------------

func newPatternModel(p pattern.Pattern) (storemodel.PatternModel, error) {
	conditions, err := marshalJSON(p.Conditions)
	if err != nil {
		return storemodel.PatternModel{}, err
	}
	examples, err := marshalJSON(p.Examples)
	if err != nil {
		return storemodel.PatternModel{}, err
	}
	return storemodel.PatternModel{
		ID:             p.ID,
		Kind:           storemodel.PatternKind(p.Kind),
		Name:           p.Name,
		Description:    p.Description,
		ConditionsJSON: conditions,
		Confidence:     p.Confidence,
		SuccessRate:    p.SuccessRate,
		TimesApplied:   p.TimesApplied,
		UsageCount:     p.UsageCount,
		Cost:           p.Cost,
		Retired:        p.Retired,
		ExamplesJSON:   examples,
		LastUpdated:    p.LastUpdated.Unix(),
		CreatedAtUnix:  time.Now().Unix(),
	}, nil
}

func patternModelToRecord(m storemodel.PatternModel) (pattern.Pattern, error) {
	p := pattern.Pattern{
		ID:           m.ID,
		Kind:         pattern.Kind(m.Kind),
		Name:         m.Name,
		Description:  m.Description,
		Confidence:   m.Confidence,
		SuccessRate:  m.SuccessRate,
		TimesApplied: m.TimesApplied,
		UsageCount:   m.UsageCount,
		Cost:         m.Cost,
		Retired:      m.Retired,
		LastUpdated:  time.Unix(m.LastUpdated, 0).UTC(),
	}
	if err := unmarshalJSON(m.ConditionsJSON, &p.Conditions); err != nil {
		return pattern.Pattern{}, err
	}
	if err := unmarshalJSON(m.ExamplesJSON, &p.Examples); err != nil {
		return pattern.Pattern{}, err
	}
	return p, nil
}

func newProfileModel(p pattern.StrategyProfile) (storemodel.StrategyProfileModel, error) {
	thresholds, err := marshalJSON(p.ConfidenceThresholds)
	if err != nil {
		return storemodel.StrategyProfileModel{}, err
	}
	factors, err := marshalJSON(p.FactorWeights)
	if err != nil {
		return storemodel.StrategyProfileModel{}, err
	}
	patterns, err := marshalJSON(p.PatternWeights)
	if err != nil {
		return storemodel.StrategyProfileModel{}, err
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return storemodel.StrategyProfileModel{
		Version:            p.Version,
		Phase:              p.Phase,
		ThresholdsJSON:     thresholds,
		RiskTolerance:      p.RiskTolerance,
		FactorWeightsJSON:  factors,
		PatternWeightsJSON: patterns,
		Note:               p.Note,
		CreatedAtUnix:      created.Unix(),
	}, nil
}

func profileModelToRecord(m storemodel.StrategyProfileModel) (pattern.StrategyProfile, error) {
	p := pattern.StrategyProfile{
		Version:       m.Version,
		Phase:         m.Phase,
		RiskTolerance: m.RiskTolerance,
		Note:          m.Note,
		CreatedAt:     time.Unix(m.CreatedAtUnix, 0).UTC(),
	}
	if err := unmarshalJSON(m.ThresholdsJSON, &p.ConfidenceThresholds); err != nil {
		return pattern.StrategyProfile{}, err
	}
	if err := unmarshalJSON(m.FactorWeightsJSON, &p.FactorWeights); err != nil {
		return pattern.StrategyProfile{}, err
	}
	if err := unmarshalJSON(m.PatternWeightsJSON, &p.PatternWeights); err != nil {
		return pattern.StrategyProfile{}, err
	}
	return p, nil
}
