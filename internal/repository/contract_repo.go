package repository

import (
	"context"
	"time"

	"energy-billing/internal/model"

	"gorm.io/gorm"
)

type ContractListFilter struct {
	MeterID      string
	ContractType string
	Page         int
	Limit        int
}

type ContractRepository interface {
	Create(ctx context.Context, contract *model.Contract) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Contract, error)
	List(ctx context.Context, filter ContractListFilter) ([]model.Contract, int64, error)
	// FindActiveDuring returns contracts whose validity intersects [from, to], ordered by ID.
	FindActiveDuring(ctx context.Context, from, to time.Time) ([]model.Contract, error)
	CountByMeter(ctx context.Context, meterID string) (int64, error)
}

type contractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) ContractRepository {
	return &contractRepository{db: db}
}

func (r *contractRepository) Create(ctx context.Context, contract *model.Contract) error {
	return GetDB(ctx, r.db).Create(contract).Error
}

func (r *contractRepository) Delete(ctx context.Context, id string) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Contract{}).Error
}

func (r *contractRepository) FindByID(ctx context.Context, id string) (*model.Contract, error) {
	var contract model.Contract
	if err := GetDB(ctx, r.db).Preload("Meter").First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *contractRepository) List(ctx context.Context, filter ContractListFilter) ([]model.Contract, int64, error) {
	var contracts []model.Contract
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Contract{})
	if filter.MeterID != "" {
		query = query.Where("meter_id = ?", filter.MeterID)
	}
	if filter.ContractType != "" {
		query = query.Where("contract_type = ?", filter.ContractType)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("start_date desc, id asc").Offset(offset).Limit(filter.Limit).Find(&contracts).Error; err != nil {
		return nil, 0, err
	}

	return contracts, total, nil
}

func (r *contractRepository) FindActiveDuring(ctx context.Context, from, to time.Time) ([]model.Contract, error) {
	var contracts []model.Contract
	if err := GetDB(ctx, r.db).
		Where("start_date <= ? AND (end_date IS NULL OR end_date >= ?)", to, from).
		Order("id asc").
		Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *contractRepository) CountByMeter(ctx context.Context, meterID string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Contract{}).Where("meter_id = ?", meterID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
