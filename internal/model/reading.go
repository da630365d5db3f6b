package model

import (
	"time"

	"github.com/shopspring/decimal"

	"energy-billing/internal/billing"
)

// Reading is one hour of metered consumption, keyed by (meter, date, hour).
type Reading struct {
	MeterID string          `gorm:"type:varchar(50);primaryKey" json:"meter_id"`
	Date    time.Time       `gorm:"type:date;primaryKey" json:"date"`
	Hour    int             `gorm:"primaryKey;autoIncrement:false" json:"hour"` // 0..23
	Kwh     decimal.Decimal `gorm:"type:decimal(10,3);not null" json:"kwh"`
	Quality *string         `gorm:"type:varchar(10)" json:"quality"` // REAL, ESTIMATED; null = REAL
}

func (r Reading) Hourly() billing.HourlyReading {
	q := billing.QualityReal
	if r.Quality != nil && *r.Quality == string(billing.QualityEstimated) {
		q = billing.QualityEstimated
	}
	return billing.HourlyReading{Date: r.Date, Hour: r.Hour, Kwh: r.Kwh, Quality: q}
}
