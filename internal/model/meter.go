package model

import "time"

// Meter is a metering point identified by its business ID.
type Meter struct {
	ID         string    `gorm:"type:varchar(50);primaryKey" json:"id"`      // e.g. MTR-0001
	CUPS       string    `gorm:"type:varchar(30);index" json:"cups"`         // Spanish supply point code, optional
	Address    string    `gorm:"type:varchar(255);not null" json:"address"`  // Supply address
	PostalCode string    `gorm:"type:varchar(10)" json:"postal_code"`        // Optional
	City       string    `gorm:"type:varchar(100);not null" json:"city"`     // Supply city
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
