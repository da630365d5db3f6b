package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"energy-billing/internal/billing"
	"energy-billing/internal/export"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type InvoiceFilter struct {
	Period     string // YYYY-MM or empty for all
	ContractID string
	Page       int
	Limit      int
}

// InvoiceResponse carries money as fixed 2-digit strings and energy as 3-digit strings.
type InvoiceResponse struct {
	ID               string `json:"id"`
	ContractID       string `json:"contract_id"`
	Period           string `json:"period"`
	MeterID          string `json:"meter_id"`
	CustomerFullName string `json:"customer_full_name"`
	ContractType     string `json:"contract_type"`
	BilledFrom       string `json:"billed_from"`
	BilledTo         string `json:"billed_to"`
	TotalKwh         string `json:"total_kwh"`
	Subtotal         string `json:"subtotal"`
	Tax              string `json:"tax"`
	Total            string `json:"total"`
	GapHours         int    `json:"gap_hours"`
	EstimatedHours   int    `json:"estimated_hours"`
	GeneratedAt      string `json:"generated_at"`
}

// --- Interface ---

type InvoiceService interface {
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	// RenderPDF returns the invoice document and a file name for it.
	RenderPDF(ctx context.Context, id string) ([]byte, string, error)
	ExportPeriod(ctx context.Context, period string) ([]byte, string, error)
}

type invoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	contractRepo repository.ContractRepository
	pdfDir       string
	log          *zap.Logger
}

// NewInvoiceService creates the invoice read side. Rendered PDFs are archived
// under pdfDir when it is not empty.
func NewInvoiceService(invoiceRepo repository.InvoiceRepository, contractRepo repository.ContractRepository, pdfDir string, log *zap.Logger) InvoiceService {
	return &invoiceService{invoiceRepo: invoiceRepo, contractRepo: contractRepo, pdfDir: pdfDir, log: log}
}

// --- Implementation ---

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Period != "" {
		p, err := billing.ParsePeriod(filter.Period)
		if err != nil {
			return nil, 0, err
		}
		filter.Period = p.String()
	}

	invoices, total, err := s.invoiceRepo.List(ctx, repository.InvoiceListFilter{
		Period:     filter.Period,
		ContractID: filter.ContractID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, toInvoiceResponse(inv))
	}
	return res, total, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	inv, err := s.findInvoice(ctx, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*inv), nil
}

func (s *invoiceService) RenderPDF(ctx context.Context, id string) ([]byte, string, error) {
	inv, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, "", err
	}

	// The contract may have been deleted since; the invoice snapshot is enough
	contract, err := s.contractRepo.FindByID(ctx, inv.ContractID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("failed to fetch contract: %w", err)
		}
		contract = nil
	}

	pdf, err := export.BuildInvoicePDF(inv, contract)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render invoice pdf: %w", err)
	}

	name := fmt.Sprintf("invoice-%s-%s.pdf", inv.Period, inv.ContractID)
	s.archive(inv.Period, name, pdf)

	return pdf, name, nil
}

func (s *invoiceService) ExportPeriod(ctx context.Context, period string) ([]byte, string, error) {
	p, err := billing.ParsePeriod(period)
	if err != nil {
		return nil, "", err
	}

	invoices, err := s.invoiceRepo.ListByPeriod(ctx, p.String())
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch invoices: %w", err)
	}

	xlsx, err := export.BuildPeriodXLSX(p.String(), invoices)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build export: %w", err)
	}
	return xlsx, fmt.Sprintf("invoices-%s.xlsx", p), nil
}

func (s *invoiceService) findInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice", id)
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	return inv, nil
}

func (s *invoiceService) archive(period, name string, pdf []byte) {
	if s.pdfDir == "" {
		return
	}
	dir := filepath.Join(s.pdfDir, period)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("Failed to create invoice archive dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		s.log.Warn("Failed to archive invoice pdf", zap.String("path", path), zap.Error(err))
	}
}

// --- Helpers ---

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:               inv.ID,
		ContractID:       inv.ContractID,
		Period:           inv.Period,
		MeterID:          inv.MeterID,
		CustomerFullName: inv.CustomerFullName,
		ContractType:     inv.ContractType,
		BilledFrom:       inv.BilledFrom.Format(billing.DateLayout),
		BilledTo:         inv.BilledTo.Format(billing.DateLayout),
		TotalKwh:         inv.TotalKwh.StringFixed(billing.EnergyScale),
		Subtotal:         inv.Subtotal.StringFixed(billing.MoneyScale),
		Tax:              inv.Tax.StringFixed(billing.MoneyScale),
		Total:            inv.Total.StringFixed(billing.MoneyScale),
		GapHours:         inv.GapHours,
		EstimatedHours:   inv.EstimatedHours,
		GeneratedAt:      inv.GeneratedAt.UTC().Format(time.RFC3339),
	}
}
