package repository

import (
	"context"

	"energy-billing/internal/model"

	"gorm.io/gorm"
)

type MeterRepository interface {
	Create(ctx context.Context, meter *model.Meter) error
	Update(ctx context.Context, meter *model.Meter) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Meter, error)
	List(ctx context.Context, page, limit int) ([]model.Meter, int64, error)
}

type meterRepository struct {
	db *gorm.DB
}

func NewMeterRepository(db *gorm.DB) MeterRepository {
	return &meterRepository{db: db}
}

func (r *meterRepository) Create(ctx context.Context, meter *model.Meter) error {
	return GetDB(ctx, r.db).Create(meter).Error
}

func (r *meterRepository) Update(ctx context.Context, meter *model.Meter) error {
	return GetDB(ctx, r.db).Save(meter).Error
}

func (r *meterRepository) Delete(ctx context.Context, id string) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Meter{}).Error
}

func (r *meterRepository) FindByID(ctx context.Context, id string) (*model.Meter, error) {
	var meter model.Meter
	if err := GetDB(ctx, r.db).First(&meter, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &meter, nil
}

func (r *meterRepository) List(ctx context.Context, page, limit int) ([]model.Meter, int64, error) {
	var meters []model.Meter
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Meter{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("id asc").Offset(offset).Limit(limit).Find(&meters).Error; err != nil {
		return nil, 0, err
	}

	return meters, total, nil
}
