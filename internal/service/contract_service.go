package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"energy-billing/internal/billing"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateContractRequest struct {
	ID           string `json:"id" binding:"required,max=50"`
	MeterID      string `json:"meter_id" binding:"required"`
	CustomerID   string `json:"customer_id" binding:"required"`
	FullName     string `json:"full_name" binding:"required"`
	TaxID        string `json:"tax_id" binding:"required,max=20"`
	Email        string `json:"email" binding:"omitempty,email"`
	ContractType string `json:"contract_type" binding:"required,oneof=FIXED FLAT"`
	StartDate    string `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate      string `json:"end_date"`                      // YYYY-MM-DD, empty = open ended
	BillingCycle string `json:"billing_cycle"`                 // MONTHLY when empty

	// Decimal strings. FIXED takes only fixed_price_per_kwh_eur, FLAT the other three.
	FixedPricePerKwhEur   *string `json:"fixed_price_per_kwh_eur"`
	FlatMonthlyFeeEur     *string `json:"flat_monthly_fee_eur"`
	IncludedKwh           *string `json:"included_kwh"`
	OveragePricePerKwhEur *string `json:"overage_price_per_kwh_eur"`
	TaxRate               string  `json:"tax_rate" binding:"required"` // e.g. "0.21"

	IBAN string `json:"iban" binding:"omitempty,max=34"`
}

type ContractFilter struct {
	MeterID      string
	ContractType string
	Page         int
	Limit        int
}

type ContractResponse struct {
	ID                    string         `json:"id"`
	MeterID               string         `json:"meter_id"`
	CustomerID            string         `json:"customer_id"`
	FullName              string         `json:"full_name"`
	TaxID                 string         `json:"tax_id"`
	Email                 string         `json:"email,omitempty"`
	ContractType          string         `json:"contract_type"`
	StartDate             string         `json:"start_date"`
	EndDate               *string        `json:"end_date"`
	BillingCycle          string         `json:"billing_cycle"`
	FixedPricePerKwhEur   *string        `json:"fixed_price_per_kwh_eur,omitempty"`
	FlatMonthlyFeeEur     *string        `json:"flat_monthly_fee_eur,omitempty"`
	IncludedKwh           *string        `json:"included_kwh,omitempty"`
	OveragePricePerKwhEur *string        `json:"overage_price_per_kwh_eur,omitempty"`
	TaxRate               string         `json:"tax_rate"`
	IBAN                  string         `json:"iban,omitempty"`
	Meter                 *MeterResponse `json:"meter,omitempty"`
	CreatedAt             string         `json:"created_at"`
}

// --- Interface ---

type ContractService interface {
	CreateContract(ctx context.Context, req CreateContractRequest, userID string) (ContractResponse, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]ContractResponse, int64, error)
	GetContract(ctx context.Context, id string) (ContractResponse, error)
	DeleteContract(ctx context.Context, id string, userID string) error
}

type contractService struct {
	contractRepo repository.ContractRepository
	meterRepo    repository.MeterRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	log          *zap.Logger
}

func NewContractService(contractRepo repository.ContractRepository, meterRepo repository.MeterRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager, log *zap.Logger) ContractService {
	return &contractService{
		contractRepo: contractRepo,
		meterRepo:    meterRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		log:          log,
	}
}

// --- Implementation ---

// CreateContract validates the tariff fields and the validity interval. Several
// contracts may share a meter; each is billed on its own validity.
func (s *contractService) CreateContract(ctx context.Context, req CreateContractRequest, userID string) (ContractResponse, error) {
	contract, err := buildContract(req)
	if err != nil {
		return ContractResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		meter, err := s.meterRepo.FindByID(txCtx, contract.MeterID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalid("meter %s does not exist", contract.MeterID)
			}
			return fmt.Errorf("failed to fetch meter: %w", err)
		}
		contract.Meter = meter

		if _, err := s.contractRepo.FindByID(txCtx, contract.ID); err == nil {
			return fmt.Errorf("%w: contract %s already exists", ErrConflict, contract.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to fetch contract: %w", err)
		}

		// Association already exists; only the contract row is written
		withoutMeter := *contract
		withoutMeter.Meter = nil
		if err := s.contractRepo.Create(txCtx, &withoutMeter); err != nil {
			return fmt.Errorf("failed to create contract: %w", err)
		}
		contract.CreatedAt = withoutMeter.CreatedAt
		contract.UpdatedAt = withoutMeter.UpdatedAt
		return nil
	})
	if err != nil {
		return ContractResponse{}, err
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionCreateContract, contract.ID, contract.FullName+" ("+contract.ContractType+")", req)

	return toContractResponse(*contract), nil
}

func (s *contractService) ListContracts(ctx context.Context, filter ContractFilter) ([]ContractResponse, int64, error) {
	contracts, total, err := s.contractRepo.List(ctx, repository.ContractListFilter{
		MeterID:      filter.MeterID,
		ContractType: filter.ContractType,
		Page:         filter.Page,
		Limit:        filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch contracts: %w", err)
	}

	res := make([]ContractResponse, 0, len(contracts))
	for _, c := range contracts {
		res = append(res, toContractResponse(c))
	}
	return res, total, nil
}

func (s *contractService) GetContract(ctx context.Context, id string) (ContractResponse, error) {
	contract, err := s.contractRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ContractResponse{}, notFound("contract", id)
		}
		return ContractResponse{}, fmt.Errorf("failed to fetch contract: %w", err)
	}
	return toContractResponse(*contract), nil
}

// DeleteContract removes the contract. Its invoices stay; they carry a snapshot.
func (s *contractService) DeleteContract(ctx context.Context, id string, userID string) error {
	contract, err := s.contractRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("contract", id)
		}
		return fmt.Errorf("failed to fetch contract: %w", err)
	}

	if err := s.contractRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}

	writeAuditLog(ctx, s.auditRepo, s.log, userID, model.ActionDeleteContract, id, contract.FullName, map[string]string{"deleted_id": id})

	return nil
}

// --- Helpers ---

func buildContract(req CreateContractRequest) (*model.Contract, error) {
	start, err := billing.ParseDate(req.StartDate)
	if err != nil {
		return nil, invalid("start_date: %v", err)
	}

	var end *time.Time
	if strings.TrimSpace(req.EndDate) != "" {
		e, err := billing.ParseDate(req.EndDate)
		if err != nil {
			return nil, invalid("end_date: %v", err)
		}
		if e.Before(start) {
			return nil, invalid("end_date %s is before start_date %s", req.EndDate, req.StartDate)
		}
		end = &e
	}

	taxRate, err := decimal.NewFromString(strings.TrimSpace(req.TaxRate))
	if err != nil {
		return nil, invalid("tax_rate: %q is not a decimal", req.TaxRate)
	}
	if taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, invalid("tax_rate must be a fraction, e.g. 0.21")
	}

	contract := &model.Contract{
		ID:           strings.TrimSpace(req.ID),
		MeterID:      strings.TrimSpace(req.MeterID),
		CustomerID:   strings.TrimSpace(req.CustomerID),
		FullName:     strings.TrimSpace(req.FullName),
		TaxID:        strings.TrimSpace(req.TaxID),
		Email:        strings.TrimSpace(req.Email),
		ContractType: strings.ToUpper(strings.TrimSpace(req.ContractType)),
		StartDate:    start,
		EndDate:      end,
		BillingCycle: strings.ToUpper(strings.TrimSpace(req.BillingCycle)),
		TaxRate:      taxRate,
		IBAN:         strings.TrimSpace(req.IBAN),
	}
	if contract.BillingCycle == "" {
		contract.BillingCycle = billing.BillingCycleMonthly
	}

	fields := []struct {
		name string
		in   *string
		out  *decimal.NullDecimal
	}{
		{"fixed_price_per_kwh_eur", req.FixedPricePerKwhEur, &contract.FixedPricePerKwhEur},
		{"flat_monthly_fee_eur", req.FlatMonthlyFeeEur, &contract.FlatMonthlyFeeEur},
		{"included_kwh", req.IncludedKwh, &contract.IncludedKwh},
		{"overage_price_per_kwh_eur", req.OveragePricePerKwhEur, &contract.OveragePricePerKwhEur},
	}
	for _, f := range fields {
		if f.in == nil || strings.TrimSpace(*f.in) == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(*f.in))
		if err != nil {
			return nil, invalid("%s: %q is not a decimal", f.name, *f.in)
		}
		*f.out = decimal.NewNullDecimal(d)
	}

	// Same checks the billing run applies, so a misconfigured contract is never stored
	if _, err := billing.TariffFor(contract.Terms()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return contract, nil
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func toContractResponse(c model.Contract) ContractResponse {
	res := ContractResponse{
		ID:                    c.ID,
		MeterID:               c.MeterID,
		CustomerID:            c.CustomerID,
		FullName:              c.FullName,
		TaxID:                 c.TaxID,
		Email:                 c.Email,
		ContractType:          c.ContractType,
		StartDate:             c.StartDate.Format(billing.DateLayout),
		BillingCycle:          c.BillingCycle,
		FixedPricePerKwhEur:   nullDecimalString(c.FixedPricePerKwhEur),
		FlatMonthlyFeeEur:     nullDecimalString(c.FlatMonthlyFeeEur),
		IncludedKwh:           nullDecimalString(c.IncludedKwh),
		OveragePricePerKwhEur: nullDecimalString(c.OveragePricePerKwhEur),
		TaxRate:               c.TaxRate.String(),
		IBAN:                  c.IBAN,
		CreatedAt:             c.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if c.EndDate != nil {
		end := c.EndDate.Format(billing.DateLayout)
		res.EndDate = &end
	}
	if c.Meter != nil {
		m := toMeterResponse(*c.Meter)
		res.Meter = &m
	}
	return res
}
