package model

import "time"

// RunLock is a lease row guarding a billing run. A row whose ExpiresAt has
// passed may be taken over.
type RunLock struct {
	LockKey    string    `gorm:"type:varchar(64);primaryKey" json:"lock_key"` // e.g. billing:2024-03
	Holder     string    `gorm:"type:varchar(64);not null" json:"holder"`     // Random token of the holder
	AcquiredAt time.Time `gorm:"not null" json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
}

func (RunLock) TableName() string {
	return "billing_run_locks"
}
