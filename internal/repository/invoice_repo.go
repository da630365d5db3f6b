package repository

import (
	"context"

	"energy-billing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceReplaceColumns are overwritten when an invoice for the same
// (contract_id, period) already exists. The ID is kept stable across reruns.
var invoiceReplaceColumns = []string{
	"meter_id",
	"customer_full_name",
	"contract_type",
	"billed_from",
	"billed_to",
	"total_kwh",
	"subtotal",
	"tax",
	"total",
	"gap_hours",
	"estimated_hours",
	"generated_at",
}

type InvoiceListFilter struct {
	Period     string
	ContractID string
	Page       int
	Limit      int
}

type InvoiceRepository interface {
	// Upsert inserts the invoice or replaces the one stored for its (contract_id, period).
	Upsert(ctx context.Context, invoice *model.Invoice) error
	// FindByContractAndPeriod returns nil, nil when no invoice exists.
	FindByContractAndPeriod(ctx context.Context, contractID, period string) (*model.Invoice, error)
	FindByID(ctx context.Context, id string) (*model.Invoice, error)
	ListByPeriod(ctx context.Context, period string) ([]model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Upsert(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns(invoiceReplaceColumns),
	}).Create(invoice).Error
}

func (r *invoiceRepository) FindByContractAndPeriod(ctx context.Context, contractID, period string) (*model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).
		Where("contract_id = ? AND period = ?", contractID, period).
		Limit(1).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *invoiceRepository) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) ListByPeriod(ctx context.Context, period string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).
		Where("period = ?", period).
		Order("contract_id asc").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Invoice{})
	if filter.Period != "" {
		query = query.Where("period = ?", filter.Period)
	}
	if filter.ContractID != "" {
		query = query.Where("contract_id = ?", filter.ContractID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("period desc, generated_at desc").Offset(offset).Limit(filter.Limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}
