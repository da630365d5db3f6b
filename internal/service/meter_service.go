package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateMeterRequest struct {
	ID         string `json:"id" binding:"required,max=50"`
	CUPS       string `json:"cups" binding:"omitempty,max=30"`
	Address    string `json:"address" binding:"required"`
	PostalCode string `json:"postal_code" binding:"omitempty,max=10"`
	City       string `json:"city" binding:"required"`
}

type UpdateMeterAddressRequest struct {
	Address    string `json:"address" binding:"required"`
	PostalCode string `json:"postal_code" binding:"omitempty,max=10"`
	City       string `json:"city" binding:"required"`
}

type MeterResponse struct {
	ID         string `json:"id"`
	CUPS       string `json:"cups,omitempty"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// --- Interface ---

type MeterService interface {
	CreateMeter(ctx context.Context, req CreateMeterRequest, userID string) (MeterResponse, error)
	ListMeters(ctx context.Context, page, limit int) ([]MeterResponse, int64, error)
	GetMeter(ctx context.Context, id string) (MeterResponse, error)
	UpdateMeterAddress(ctx context.Context, id string, req UpdateMeterAddressRequest, userID string) (MeterResponse, error)
	DeleteMeter(ctx context.Context, id string, userID string) error
}

type meterService struct {
	meterRepo    repository.MeterRepository
	contractRepo repository.ContractRepository
	auditRepo    repository.AuditRepository
	log          *zap.Logger
}

func NewMeterService(meterRepo repository.MeterRepository, contractRepo repository.ContractRepository, auditRepo repository.AuditRepository, log *zap.Logger) MeterService {
	return &meterService{meterRepo: meterRepo, contractRepo: contractRepo, auditRepo: auditRepo, log: log}
}

// --- Implementation ---

func (s *meterService) CreateMeter(ctx context.Context, req CreateMeterRequest, userID string) (MeterResponse, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" || strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" {
		return MeterResponse{}, invalid("id, address and city are required")
	}

	if _, err := s.findMeter(ctx, id); err == nil {
		return MeterResponse{}, fmt.Errorf("%w: meter %s already exists", ErrConflict, id)
	} else if !errors.Is(err, ErrNotFound) {
		return MeterResponse{}, err
	}

	meter := model.Meter{
		ID:         id,
		CUPS:       strings.TrimSpace(req.CUPS),
		Address:    strings.TrimSpace(req.Address),
		PostalCode: strings.TrimSpace(req.PostalCode),
		City:       strings.TrimSpace(req.City),
	}
	if err := s.meterRepo.Create(ctx, &meter); err != nil {
		return MeterResponse{}, fmt.Errorf("failed to create meter: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionCreateMeter, meter.ID, meter.Address+", "+meter.City, req)

	return toMeterResponse(meter), nil
}

func (s *meterService) ListMeters(ctx context.Context, page, limit int) ([]MeterResponse, int64, error) {
	meters, total, err := s.meterRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch meters: %w", err)
	}

	res := make([]MeterResponse, 0, len(meters))
	for _, m := range meters {
		res = append(res, toMeterResponse(m))
	}
	return res, total, nil
}

func (s *meterService) GetMeter(ctx context.Context, id string) (MeterResponse, error) {
	meter, err := s.findMeter(ctx, id)
	if err != nil {
		return MeterResponse{}, err
	}
	return toMeterResponse(*meter), nil
}

// UpdateMeterAddress changes the supply address. Issued invoices keep their
// snapshot and are not affected.
func (s *meterService) UpdateMeterAddress(ctx context.Context, id string, req UpdateMeterAddressRequest, userID string) (MeterResponse, error) {
	meter, err := s.findMeter(ctx, id)
	if err != nil {
		return MeterResponse{}, err
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" {
		return MeterResponse{}, invalid("address and city are required")
	}

	previous := map[string]string{"address": meter.Address, "postal_code": meter.PostalCode, "city": meter.City}
	meter.Address = strings.TrimSpace(req.Address)
	meter.PostalCode = strings.TrimSpace(req.PostalCode)
	meter.City = strings.TrimSpace(req.City)

	if err := s.meterRepo.Update(ctx, meter); err != nil {
		return MeterResponse{}, fmt.Errorf("failed to update meter: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionUpdateMeterAddress, meter.ID, meter.Address+", "+meter.City, map[string]interface{}{
		"previous": previous,
		"current":  req,
	})

	return toMeterResponse(*meter), nil
}

// DeleteMeter removes a meter that no contract references.
func (s *meterService) DeleteMeter(ctx context.Context, id string, userID string) error {
	meter, err := s.findMeter(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.contractRepo.CountByMeter(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check meter contracts: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: meter %s is referenced by %d contract(s)", ErrConflict, id, count)
	}

	if err := s.meterRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete meter: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionDeleteMeter, id, meter.Address+", "+meter.City, map[string]string{"deleted_id": id})

	return nil
}

func (s *meterService) findMeter(ctx context.Context, id string) (*model.Meter, error) {
	meter, err := s.meterRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("meter", id)
		}
		return nil, fmt.Errorf("failed to fetch meter: %w", err)
	}
	return meter, nil
}

// --- Helpers ---

func toMeterResponse(m model.Meter) MeterResponse {
	return MeterResponse{
		ID:         m.ID,
		CUPS:       m.CUPS,
		Address:    m.Address,
		PostalCode: m.PostalCode,
		City:       m.City,
		CreatedAt:  m.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:  m.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
