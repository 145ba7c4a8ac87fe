package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/season"
	storemodel "huddle/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ season.Store = (*GormStore)(nil)

// UpsertRecord 按 period 幂等写入，重跑已记录的周期是原地更新而非追加。
func (s *GormStore) UpsertRecord(ctx context.Context, r season.Record) error {
	if err := s.ready(); err != nil {
		return fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	summary, err := marshalJSON(r.Summary)
	if err != nil {
		return fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	now := time.Now().UTC()
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	model := storemodel.SeasonRecordModel{
		Period:        r.Period,
		Phase:         string(r.Phase),
		SummaryJSON:   summary,
		CreatedAtUnix: created.Unix(),
		UpdatedAtUnix: now.Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phase", "summary_json", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	return nil
}

func (s *GormStore) GetRecord(ctx context.Context, period int) (season.Record, bool, error) {
	if err := s.ready(); err != nil {
		return season.Record{}, false, fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	var model storemodel.SeasonRecordModel
	err := s.db.WithContext(ctx).Where("period = ?", period).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return season.Record{}, false, nil
		}
		return season.Record{}, false, fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	rec, err := seasonModelToRecord(model)
	if err != nil {
		return season.Record{}, false, fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	return rec, true, nil
}

func (s *GormStore) ListRecords(ctx context.Context) ([]season.Record, error) {
	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	var models []storemodel.SeasonRecordModel
	if err := s.db.WithContext(ctx).Order("period ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", season.ErrPersistence, err)
	}
	out := make([]season.Record, 0, len(models))
	for _, m := range models {
		rec, err := seasonModelToRecord(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", season.ErrPersistence, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func seasonModelToRecord(m storemodel.SeasonRecordModel) (season.Record, error) {
	rec := season.Record{
		Period:    m.Period,
		Phase:     season.Phase(m.Phase),
		CreatedAt: time.Unix(m.CreatedAtUnix, 0).UTC(),
		UpdatedAt: time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}
	if err := unmarshalJSON(m.SummaryJSON, &rec.Summary); err != nil {
		return season.Record{}, err
	}
	return rec, nil
}
