package service

import (
	"context"
	"fmt"

	"energy-billing/internal/billing"
	"energy-billing/internal/repository"
)

// ReadingAggregator sums stored hourly readings of a meter over a date range.
type ReadingAggregator struct {
	readingRepo repository.ReadingRepository
}

func NewReadingAggregator(readingRepo repository.ReadingRepository) *ReadingAggregator {
	return &ReadingAggregator{readingRepo: readingRepo}
}

func (a *ReadingAggregator) SumReadings(ctx context.Context, meterID string, rng billing.DateRange, policy billing.QualityPolicy) (billing.Usage, error) {
	if rng.Empty() {
		return billing.Aggregate(nil, rng, policy), nil
	}

	rows, err := a.readingRepo.ListByMeterBetween(ctx, meterID, rng.From, rng.To)
	if err != nil {
		return billing.Usage{}, fmt.Errorf("failed to load readings for meter %s: %w", meterID, err)
	}

	hourly := make([]billing.HourlyReading, 0, len(rows))
	for i := range rows {
		hourly = append(hourly, rows[i].Hourly())
	}
	return billing.Aggregate(hourly, rng, policy), nil
}
