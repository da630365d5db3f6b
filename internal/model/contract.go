package model

import (
	"time"

	"github.com/shopspring/decimal"

	"energy-billing/internal/billing"
)

// ContractType enum constants
const (
	ContractTypeFixed = string(billing.ContractTypeFixed)
	ContractTypeFlat  = string(billing.ContractTypeFlat)
)

// Contract binds a customer to a meter with a tariff and a validity interval.
// FIXED contracts carry only FixedPricePerKwhEur; FLAT contracts carry the
// fee, allowance and overage price.
type Contract struct {
	ID           string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	MeterID      string     `gorm:"type:varchar(50);not null;index" json:"meter_id"`
	Meter        *Meter     `gorm:"foreignKey:MeterID" json:"meter,omitempty"`
	CustomerID   string     `gorm:"type:varchar(50);not null;index" json:"customer_id"`
	FullName     string     `gorm:"type:varchar(255);not null" json:"full_name"`
	TaxID        string     `gorm:"type:varchar(20);not null" json:"tax_id"` // NIF
	Email        string     `gorm:"type:varchar(255)" json:"email"`
	ContractType string     `gorm:"type:varchar(10);not null;index" json:"contract_type"` // FIXED, FLAT
	StartDate    time.Time  `gorm:"type:date;not null;index" json:"start_date"`
	EndDate      *time.Time `gorm:"type:date;index" json:"end_date"` // nullable = open ended
	BillingCycle string     `gorm:"type:varchar(10);not null;default:'MONTHLY'" json:"billing_cycle"`

	FlatMonthlyFeeEur     decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"flat_monthly_fee_eur"`
	IncludedKwh           decimal.NullDecimal `gorm:"type:decimal(10,3)" json:"included_kwh"`
	OveragePricePerKwhEur decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"overage_price_per_kwh_eur"`
	FixedPricePerKwhEur   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"fixed_price_per_kwh_eur"`
	TaxRate               decimal.Decimal     `gorm:"type:decimal(6,4);not null" json:"tax_rate"` // e.g. 0.21 = 21%

	IBAN      string    `gorm:"type:varchar(34)" json:"iban"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Contract) Validity() billing.Validity {
	return billing.Validity{Start: c.StartDate, End: c.EndDate}
}

func (c Contract) Terms() billing.Terms {
	return billing.Terms{
		ContractID:         c.ID,
		Type:               c.ContractType,
		BillingCycle:       c.BillingCycle,
		TaxRate:            c.TaxRate,
		FixedPricePerKwh:   c.FixedPricePerKwhEur,
		FlatMonthlyFee:     c.FlatMonthlyFeeEur,
		IncludedKwh:        c.IncludedKwh,
		OveragePricePerKwh: c.OveragePricePerKwhEur,
	}
}
