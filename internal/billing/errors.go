package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeriod is returned when a period string is not a valid YYYY-MM month
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrConfiguration is returned when a contract violates its tariff invariants
	ErrConfiguration = errors.New("contract configuration error")

	// ErrNotBillable marks a contract whose validity does not intersect the period.
	// It is a skip condition, not a failure.
	ErrNotBillable = errors.New("contract not billable for period")

	// ErrPersistence is returned when the store is unavailable or a write conflicts
	ErrPersistence = errors.New("persistence error")

	// ErrConcurrentRun is returned when a run for the same period is already in flight
	ErrConcurrentRun = errors.New("billing run already in progress for period")
)

// ConfigurationError describes the first tariff invariant a contract violates.
type ConfigurationError struct {
	ContractID string
	Field      string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("contract %s: %s", e.ContractID, e.Reason)
	}
	return fmt.Sprintf("contract %s: %s %s", e.ContractID, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func configErr(contractID, field, reason string) error {
	return &ConfigurationError{ContractID: contractID, Field: field, Reason: reason}
}
