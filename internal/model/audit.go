package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateMeter        = "CREATE_METER"
	ActionUpdateMeterAddress = "UPDATE_METER_ADDRESS"
	ActionDeleteMeter        = "DELETE_METER"
	ActionCreateContract     = "CREATE_CONTRACT"
	ActionDeleteContract     = "DELETE_CONTRACT"
	ActionUpsertReadings     = "UPSERT_READINGS"
	ActionDeleteReading      = "DELETE_READING"
	ActionCreateUser         = "CREATE_USER"
	ActionUpdateUser         = "UPDATE_USER"
	ActionDeleteUser         = "DELETE_USER"

	// Billing actions
	ActionRunBilling = "RUN_BILLING"
)

// AuditLog tracks Who, What, and When for billing runs and master data changes
type AuditLog struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     *string   `gorm:"type:varchar(64);index" json:"user_id"` // JWT subject, null for automated runs
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`        // Meter/contract ID or billing period
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string    `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
