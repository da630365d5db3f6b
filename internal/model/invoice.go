package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is the billing result of one contract for one period.
// At most one invoice exists per (contract_id, period); regenerating replaces it.
// Customer and meter fields are snapshots taken at generation time.
type Invoice struct {
	ID               string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ContractID       string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoices_contract_period,priority:1" json:"contract_id"`
	Period           string          `gorm:"type:varchar(7);not null;uniqueIndex:idx_invoices_contract_period,priority:2;index" json:"period"` // YYYY-MM
	MeterID          string          `gorm:"type:varchar(50);not null;index" json:"meter_id"`
	CustomerFullName string          `gorm:"type:varchar(255);not null" json:"customer_full_name"`
	ContractType     string          `gorm:"type:varchar(10);not null" json:"contract_type"`
	BilledFrom       time.Time       `gorm:"type:date;not null" json:"billed_from"` // Overlap of validity and period
	BilledTo         time.Time       `gorm:"type:date;not null" json:"billed_to"`
	TotalKwh         decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"total_kwh"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax              decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"tax"`
	Total            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"` // subtotal + tax
	GapHours         int             `gorm:"not null" json:"gap_hours"`                // Hours in range with no reading
	EstimatedHours   int             `gorm:"not null" json:"estimated_hours"`
	GeneratedAt      time.Time       `gorm:"not null;index" json:"generated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
