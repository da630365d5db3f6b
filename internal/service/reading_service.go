package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"energy-billing/internal/billing"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxReadingRangeDays bounds a single listing query
const maxReadingRangeDays = 93

// --- DTOs ---

type ReadingInput struct {
	Date    string `json:"date" binding:"required"`              // YYYY-MM-DD
	Hour    *int   `json:"hour" binding:"required,min=0,max=23"` // 0..23
	Kwh     string `json:"kwh" binding:"required"`               // Decimal string, >= 0
	Quality string `json:"quality"`                              // REAL (default) or ESTIMATED
}

type UpsertReadingsRequest struct {
	MeterID  string         `json:"meter_id" binding:"required"`
	Readings []ReadingInput `json:"readings" binding:"required,min=1,dive"`
}

type UpsertReadingsResponse struct {
	MeterID  string `json:"meter_id"`
	Accepted int    `json:"accepted"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type ReadingResponse struct {
	MeterID string `json:"meter_id"`
	Date    string `json:"date"`
	Hour    int    `json:"hour"`
	Kwh     string `json:"kwh"`
	Quality string `json:"quality"`
}

type MeterReadingsResponse struct {
	MeterID        string            `json:"meter_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	TotalKwh       string            `json:"total_kwh"`
	GapHours       int               `json:"gap_hours"`
	EstimatedHours int               `json:"estimated_hours"`
	Readings       []ReadingResponse `json:"readings"`
}

// --- Interface ---

type ReadingService interface {
	UpsertReadings(ctx context.Context, req UpsertReadingsRequest, userID string) (UpsertReadingsResponse, error)
	ListReadings(ctx context.Context, meterID, from, to string) (MeterReadingsResponse, error)
	DeleteReading(ctx context.Context, meterID, date string, hour int, userID string) error
}

type readingService struct {
	readingRepo repository.ReadingRepository
	meterRepo   repository.MeterRepository
	auditRepo   repository.AuditRepository
	log         *zap.Logger
}

func NewReadingService(readingRepo repository.ReadingRepository, meterRepo repository.MeterRepository, auditRepo repository.AuditRepository, log *zap.Logger) ReadingService {
	return &readingService{readingRepo: readingRepo, meterRepo: meterRepo, auditRepo: auditRepo, log: log}
}

// --- Implementation ---

// UpsertReadings stores a batch of hourly readings. A reading for an existing
// (meter, date, hour) replaces it; within one batch the last entry wins.
func (s *readingService) UpsertReadings(ctx context.Context, req UpsertReadingsRequest, userID string) (UpsertReadingsResponse, error) {
	meterID := strings.TrimSpace(req.MeterID)
	if len(req.Readings) == 0 {
		return UpsertReadingsResponse{}, invalid("readings must not be empty")
	}
	if err := s.ensureMeter(ctx, meterID); err != nil {
		return UpsertReadingsResponse{}, err
	}

	type key struct {
		date int64
		hour int
	}
	byKey := make(map[key]model.Reading, len(req.Readings))
	for i, in := range req.Readings {
		r, err := toReading(meterID, in)
		if err != nil {
			return UpsertReadingsResponse{}, invalid("readings[%d]: %v", i, err)
		}
		byKey[key{r.Date.Unix(), r.Hour}] = r
	}

	readings := make([]model.Reading, 0, len(byKey))
	for _, r := range byKey {
		readings = append(readings, r)
	}
	sort.Slice(readings, func(i, j int) bool {
		if !readings[i].Date.Equal(readings[j].Date) {
			return readings[i].Date.Before(readings[j].Date)
		}
		return readings[i].Hour < readings[j].Hour
	})

	if err := s.readingRepo.UpsertBatch(ctx, readings); err != nil {
		return UpsertReadingsResponse{}, fmt.Errorf("failed to store readings: %w", err)
	}

	res := UpsertReadingsResponse{
		MeterID:  meterID,
		Accepted: len(readings),
		From:     readings[0].Date.Format(billing.DateLayout),
		To:       readings[len(readings)-1].Date.Format(billing.DateLayout),
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionUpsertReadings, meterID, res.From+" to "+res.To, res)

	return res, nil
}

// ListReadings returns stored readings of a meter between two days, inclusive,
// with the usage they add up to.
func (s *readingService) ListReadings(ctx context.Context, meterID, from, to string) (MeterReadingsResponse, error) {
	fromDay, err := billing.ParseDate(from)
	if err != nil {
		return MeterReadingsResponse{}, invalid("from: %v", err)
	}
	toDay, err := billing.ParseDate(to)
	if err != nil {
		return MeterReadingsResponse{}, invalid("to: %v", err)
	}
	rng := billing.NewDateRange(fromDay, toDay)
	if rng.Empty() {
		return MeterReadingsResponse{}, invalid("from %s is after to %s", from, to)
	}
	if rng.Days() > maxReadingRangeDays {
		return MeterReadingsResponse{}, invalid("range spans %d days, at most %d allowed", rng.Days(), maxReadingRangeDays)
	}
	if err := s.ensureMeter(ctx, meterID); err != nil {
		return MeterReadingsResponse{}, err
	}

	rows, err := s.readingRepo.ListByMeterBetween(ctx, meterID, rng.From, rng.To)
	if err != nil {
		return MeterReadingsResponse{}, fmt.Errorf("failed to fetch readings: %w", err)
	}

	hourly := make([]billing.HourlyReading, 0, len(rows))
	items := make([]ReadingResponse, 0, len(rows))
	for _, r := range rows {
		h := r.Hourly()
		hourly = append(hourly, h)
		items = append(items, ReadingResponse{
			MeterID: r.MeterID,
			Date:    r.Date.Format(billing.DateLayout),
			Hour:    r.Hour,
			Kwh:     r.Kwh.StringFixed(billing.EnergyScale),
			Quality: string(h.Quality),
		})
	}
	usage := billing.Aggregate(hourly, rng, billing.IncludeAll)

	return MeterReadingsResponse{
		MeterID:        meterID,
		From:           rng.From.Format(billing.DateLayout),
		To:             rng.To.Format(billing.DateLayout),
		TotalKwh:       usage.TotalKwh.StringFixed(billing.EnergyScale),
		GapHours:       usage.GapHours,
		EstimatedHours: usage.EstimatedHours,
		Readings:       items,
	}, nil
}

func (s *readingService) DeleteReading(ctx context.Context, meterID, date string, hour int, userID string) error {
	day, err := billing.ParseDate(date)
	if err != nil {
		return invalid("date: %v", err)
	}
	if hour < 0 || hour > 23 {
		return invalid("hour must be between 0 and 23, got %d", hour)
	}

	deleted, err := s.readingRepo.Delete(ctx, meterID, day, hour)
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	if deleted == 0 {
		return notFound("reading", fmt.Sprintf("%s/%s/%d", meterID, date, hour))
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionDeleteReading, meterID, fmt.Sprintf("%s hour %d", date, hour), map[string]interface{}{
		"date": date,
		"hour": hour,
	})

	return nil
}

func (s *readingService) ensureMeter(ctx context.Context, meterID string) error {
	if _, err := s.meterRepo.FindByID(ctx, meterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("meter", meterID)
		}
		return fmt.Errorf("failed to fetch meter: %w", err)
	}
	return nil
}

// --- Helpers ---

func toReading(meterID string, in ReadingInput) (model.Reading, error) {
	day, err := billing.ParseDate(in.Date)
	if err != nil {
		return model.Reading{}, err
	}
	if in.Hour == nil {
		return model.Reading{}, errors.New("hour is required")
	}
	if *in.Hour < 0 || *in.Hour > 23 {
		return model.Reading{}, fmt.Errorf("hour must be between 0 and 23, got %d", *in.Hour)
	}
	kwh, err := decimal.NewFromString(strings.TrimSpace(in.Kwh))
	if err != nil {
		return model.Reading{}, fmt.Errorf("kwh %q is not a decimal", in.Kwh)
	}
	if kwh.IsNegative() {
		return model.Reading{}, fmt.Errorf("kwh must not be negative, got %s", in.Kwh)
	}
	quality, err := billing.ParseQuality(in.Quality)
	if err != nil {
		return model.Reading{}, err
	}
	q := string(quality)

	return model.Reading{
		MeterID: meterID,
		Date:    day.UTC(),
		Hour:    *in.Hour,
		Kwh:     kwh.Round(billing.EnergyScale),
		Quality: &q,
	}, nil
}
