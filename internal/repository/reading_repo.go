package repository

import (
	"context"
	"time"

	"energy-billing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const readingBatchSize = 500

type ReadingRepository interface {
	// UpsertBatch writes readings; a reading for an existing (meter, date, hour) overwrites it.
	UpsertBatch(ctx context.Context, readings []model.Reading) error
	Delete(ctx context.Context, meterID string, date time.Time, hour int) (int64, error)
	// ListByMeterBetween returns readings with from <= date <= to ordered by date and hour.
	ListByMeterBetween(ctx context.Context, meterID string, from, to time.Time) ([]model.Reading, error)
}

type readingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(db *gorm.DB) ReadingRepository {
	return &readingRepository{db: db}
}

func (r *readingRepository) UpsertBatch(ctx context.Context, readings []model.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meter_id"}, {Name: "date"}, {Name: "hour"}},
		DoUpdates: clause.AssignmentColumns([]string{"kwh", "quality"}),
	}).CreateInBatches(readings, readingBatchSize).Error
}

func (r *readingRepository) Delete(ctx context.Context, meterID string, date time.Time, hour int) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("meter_id = ? AND date = ? AND hour = ?", meterID, date, hour).
		Delete(&model.Reading{})
	return res.RowsAffected, res.Error
}

func (r *readingRepository) ListByMeterBetween(ctx context.Context, meterID string, from, to time.Time) ([]model.Reading, error) {
	var readings []model.Reading
	if err := GetDB(ctx, r.db).
		Where("meter_id = ? AND date >= ? AND date <= ?", meterID, from, to).
		Order("date asc, hour asc").
		Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}
