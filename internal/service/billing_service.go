package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"energy-billing/internal/billing"
	"energy-billing/internal/config"
	"energy-billing/internal/metrics"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"
	"energy-billing/internal/runlock"
	ws "energy-billing/internal/websocket"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RegeneratePolicy decides what happens to an invoice that already exists for
// a (contract, period) when the period is billed again.
type RegeneratePolicy string

const (
	RegenerateReplace RegeneratePolicy = "replace"
	RegenerateSkip    RegeneratePolicy = "skip"
)

// Kinds of per-contract failures reported in a run result
const (
	FailureConfiguration = "configuration"
	FailurePersistence   = "persistence"
	FailureAborted       = "aborted"
)

// Reasons a contract was skipped without error
const (
	SkipNotBillable   = "not_billable"
	SkipInvoiceExists = "invoice_exists"
)

var errStoreUnavailable = errors.New("invoice store unavailable")

// --- DTOs ---

type ContractSkip struct {
	ContractID string `json:"contract_id"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

type ContractError struct {
	ContractID string `json:"contract_id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// UsageWarning flags an invoice billed over incomplete or estimated data.
type UsageWarning struct {
	ContractID     string `json:"contract_id"`
	InvoiceID      string `json:"invoice_id"`
	GapHours       int    `json:"gap_hours"`
	EstimatedHours int    `json:"estimated_hours"`
	ExcludedHours  int    `json:"excluded_hours"`
}

type BillingRunResult struct {
	RunID      string          `json:"run_id"`
	Period     string          `json:"period"`
	Generated  int             `json:"generated"`
	Replaced   int             `json:"replaced"`
	Invoices   []string        `json:"invoices"`
	Skipped    []ContractSkip  `json:"skipped"`
	Errors     []ContractError `json:"errors"`
	Warnings   []UsageWarning  `json:"warnings"`
	Aborted    bool            `json:"aborted"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// BillingOptions tunes a billing run.
type BillingOptions struct {
	Workers                     int
	StoreTimeout                time.Duration
	RegeneratePolicy            RegeneratePolicy
	QualityPolicy               billing.QualityPolicy
	MaxConsecutiveStoreFailures uint32
}

func DefaultBillingOptions() BillingOptions {
	return BillingOptions{
		Workers:                     4,
		StoreTimeout:                10 * time.Second,
		RegeneratePolicy:            RegenerateReplace,
		QualityPolicy:               billing.IncludeAll,
		MaxConsecutiveStoreFailures: 5,
	}
}

func BillingOptionsFromConfig(cfg config.BillingConfig) (BillingOptions, error) {
	quality, err := billing.ParseQualityPolicy(cfg.QualityPolicy)
	if err != nil {
		return BillingOptions{}, err
	}
	return BillingOptions{
		Workers:                     cfg.Workers,
		StoreTimeout:                cfg.StoreTimeout,
		RegeneratePolicy:            RegeneratePolicy(cfg.RegeneratePolicy),
		QualityPolicy:               quality,
		MaxConsecutiveStoreFailures: uint32(cfg.MaxConsecutiveStoreFailures),
	}, nil
}

// EventPublisher pushes run notifications to connected operators.
type EventPublisher interface {
	Publish(event string, data any)
}

// UsageSource returns the aggregated consumption of a meter over a date range.
type UsageSource interface {
	SumReadings(ctx context.Context, meterID string, rng billing.DateRange, policy billing.QualityPolicy) (billing.Usage, error)
}

type BillingDependencies struct {
	ContractRepo repository.ContractRepository
	InvoiceRepo  repository.InvoiceRepository
	AuditRepo    repository.AuditRepository
	TxManager    repository.TransactionManager
	Usage        UsageSource
	Locker       runlock.Locker
	Events       EventPublisher // optional
}

// --- Interface ---

type BillingService interface {
	// RunBilling bills every contract active during period. Per-contract
	// failures are reported in the result. A non-nil error with a non-nil
	// result means the run stopped early and the result is partial.
	RunBilling(ctx context.Context, period string, userID string) (*BillingRunResult, error)
}

type billingService struct {
	deps BillingDependencies
	opts BillingOptions
	log  *zap.Logger
	now  func() time.Time
}

func NewBillingService(deps BillingDependencies, opts BillingOptions, log *zap.Logger) BillingService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxConsecutiveStoreFailures == 0 {
		opts.MaxConsecutiveStoreFailures = 1
	}
	if opts.RegeneratePolicy == "" {
		opts.RegeneratePolicy = RegenerateReplace
	}
	if opts.QualityPolicy == "" {
		opts.QualityPolicy = billing.IncludeAll
	}
	return &billingService{deps: deps, opts: opts, log: log.Named("billing"), now: time.Now}
}

// --- Implementation ---

type outcomeStatus int

const (
	statusGenerated outcomeStatus = iota
	statusSkipped
	statusFailed
)

type contractOutcome struct {
	status     outcomeStatus
	contractID string
	invoiceID  string
	replaced   bool
	usage      billing.Usage
	skipReason string
	errKind    string
	message    string
}

func (o contractOutcome) metricLabel() string {
	switch o.status {
	case statusGenerated:
		if o.replaced {
			return metrics.OutcomeReplaced
		}
		return metrics.OutcomeGenerated
	case statusSkipped:
		if o.skipReason == SkipInvoiceExists {
			return metrics.OutcomeKept
		}
		return metrics.OutcomeNotBillable
	}
	switch o.errKind {
	case FailureConfiguration:
		return metrics.OutcomeConfiguration
	case FailurePersistence:
		return metrics.OutcomePersistence
	}
	return metrics.OutcomeCanceled
}

func (s *billingService) RunBilling(ctx context.Context, periodStr string, userID string) (*BillingRunResult, error) {
	period, err := billing.ParsePeriod(periodStr)
	if err != nil {
		metrics.ObserveBillingRun(metrics.RunRejected, 0)
		return nil, err
	}

	lease, err := s.deps.Locker.Acquire(ctx, "billing:"+period.String())
	if err != nil {
		metrics.ObserveBillingRun(metrics.RunRejected, 0)
		if errors.Is(err, runlock.ErrHeld) {
			return nil, fmt.Errorf("%w: %s", billing.ErrConcurrentRun, period)
		}
		return nil, fmt.Errorf("%w: acquire run lease: %v", billing.ErrPersistence, err)
	}

	result := &BillingRunResult{
		RunID:     uuid.NewString(),
		Period:    period.String(),
		Invoices:  []string{},
		Skipped:   []ContractSkip{},
		Errors:    []ContractError{},
		Warnings:  []UsageWarning{},
		StartedAt: s.now().UTC(),
	}
	log := s.log.With(zap.String("period", result.Period), zap.String("run_id", result.RunID))
	log.Info("Billing run started")

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Warn("Failed to release billing run lease", zap.Error(err))
		}
	}()

	holdCtx, stopHold := runlock.Hold(ctx, lease)
	runErr := s.run(holdCtx, period, result, log)
	if cause := context.Cause(holdCtx); errors.Is(cause, runlock.ErrLost) {
		log.Error("Billing run lease lost", zap.Error(cause))
		runErr = fmt.Errorf("%w: %s: %w", billing.ErrConcurrentRun, period, cause)
	}
	stopHold()

	s.finish(ctx, result, runErr, userID, log)
	return result, runErr
}

func (s *billingService) run(ctx context.Context, period billing.Period, result *BillingRunResult, log *zap.Logger) error {
	listCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	contracts, err := s.deps.ContractRepo.FindActiveDuring(listCtx, period.Start(), period.End())
	cancel()
	if err != nil {
		result.Aborted = true
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: list contracts: %v", billing.ErrPersistence, err)
	}
	log.Info("Contracts selected for billing", zap.Int("contracts", len(contracts)))

	outcomes, tripped := s.billAll(ctx, period, contracts, log)

	for _, o := range outcomes {
		metrics.IncContractOutcome(o.metricLabel())
		switch o.status {
		case statusGenerated:
			result.Generated++
			if o.replaced {
				result.Replaced++
			}
			result.Invoices = append(result.Invoices, o.invoiceID)
			if o.usage.GapHours > 0 || o.usage.EstimatedHours > 0 {
				result.Warnings = append(result.Warnings, UsageWarning{
					ContractID:     o.contractID,
					InvoiceID:      o.invoiceID,
					GapHours:       o.usage.GapHours,
					EstimatedHours: o.usage.EstimatedHours,
					ExcludedHours:  o.usage.ExcludedHours,
				})
			}
		case statusSkipped:
			result.Skipped = append(result.Skipped, ContractSkip{ContractID: o.contractID, Reason: o.skipReason, Detail: o.message})
		case statusFailed:
			result.Errors = append(result.Errors, ContractError{ContractID: o.contractID, Kind: o.errKind, Message: o.message})
		}
	}

	switch {
	case ctx.Err() != nil:
		result.Aborted = true
		return ctx.Err()
	case tripped:
		result.Aborted = true
		return fmt.Errorf("%w: %v after %d consecutive failures", billing.ErrPersistence, errStoreUnavailable, s.opts.MaxConsecutiveStoreFailures)
	}
	return nil
}

// billAll prices contracts on a bounded pool. Store work of a contract goes
// through a breaker that cancels the remaining contracts once it opens.
func (s *billingService) billAll(ctx context.Context, period billing.Period, contracts []model.Contract, log *zap.Logger) ([]contractOutcome, bool) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "invoice-store:" + period.String(),
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.opts.MaxConsecutiveStoreFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if to == gobreaker.StateOpen {
				metrics.IncStoreBreakerTrips()
				cancel(errStoreUnavailable)
			}
		},
	})

	outcomes := make([]contractOutcome, len(contracts))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i := range contracts {
		if runCtx.Err() != nil {
			outcomes[i] = abortedOutcome(contracts[i].ID, context.Cause(runCtx))
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.billContract(runCtx, breaker, period, &contracts[i], log)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, breaker.State() == gobreaker.StateOpen
}

func (s *billingService) billContract(ctx context.Context, breaker *gobreaker.CircuitBreaker, period billing.Period, c *model.Contract, log *zap.Logger) contractOutcome {
	if ctx.Err() != nil {
		return abortedOutcome(c.ID, context.Cause(ctx))
	}

	tariff, err := billing.TariffFor(c.Terms())
	if err != nil {
		log.Warn("Contract misconfigured", zap.String("contract_id", c.ID), zap.Error(err))
		return contractOutcome{status: statusFailed, contractID: c.ID, errKind: FailureConfiguration, message: err.Error()}
	}

	rng, err := billing.ResolveOverlap(c.Validity(), period)
	if err != nil {
		return contractOutcome{status: statusSkipped, contractID: c.ID, skipReason: SkipNotBillable, message: err.Error()}
	}

	var out contractOutcome
	_, err = breaker.Execute(func() (interface{}, error) {
		var err error
		out, err = s.priceAndStore(ctx, c, tariff, rng, period)
		return nil, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			return abortedOutcome(c.ID, context.Cause(ctx))
		}
		log.Error("Failed to bill contract", zap.String("contract_id", c.ID), zap.Error(err))
		return contractOutcome{status: statusFailed, contractID: c.ID, errKind: FailurePersistence, message: err.Error()}
	}
	return out
}

// priceAndStore loads usage, prices it and writes the invoice. Only store
// errors are returned; they count against the breaker.
func (s *billingService) priceAndStore(ctx context.Context, c *model.Contract, tariff billing.Tariff, rng billing.DateRange, period billing.Period) (contractOutcome, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	usage, err := s.deps.Usage.SumReadings(readCtx, c.MeterID, rng, s.opts.QualityPolicy)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return contractOutcome{}, ctx.Err()
		}
		return contractOutcome{}, fmt.Errorf("%w: read usage: %v", billing.ErrPersistence, err)
	}

	charges := billing.Quote(tariff, usage.TotalKwh, c.TaxRate)
	invoice := &model.Invoice{
		ContractID:       c.ID,
		Period:           period.String(),
		MeterID:          c.MeterID,
		CustomerFullName: c.FullName,
		ContractType:     string(tariff.Type()),
		BilledFrom:       rng.From,
		BilledTo:         rng.To,
		TotalKwh:         charges.TotalKwh,
		Subtotal:         charges.Subtotal,
		Tax:              charges.Tax,
		Total:            charges.Total,
		GapHours:         usage.GapHours,
		EstimatedHours:   usage.EstimatedHours,
		GeneratedAt:      s.now().UTC(),
	}

	var replaced, kept bool
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	err = s.deps.TxManager.RunInTx(writeCtx, func(txCtx context.Context) error {
		replaced, kept = false, false
		existing, err := s.deps.InvoiceRepo.FindByContractAndPeriod(txCtx, c.ID, invoice.Period)
		if err != nil {
			return err
		}
		if existing != nil {
			invoice.ID = existing.ID
			if s.opts.RegeneratePolicy == RegenerateSkip {
				kept = true
				return nil
			}
			replaced = true
		}
		return s.deps.InvoiceRepo.Upsert(txCtx, invoice)
	})
	if err != nil {
		if ctx.Err() != nil {
			return contractOutcome{}, ctx.Err()
		}
		return contractOutcome{}, fmt.Errorf("%w: store invoice: %v", billing.ErrPersistence, err)
	}

	if kept {
		return contractOutcome{status: statusSkipped, contractID: c.ID, skipReason: SkipInvoiceExists, message: "kept invoice " + invoice.ID}, nil
	}
	return contractOutcome{status: statusGenerated, contractID: c.ID, invoiceID: invoice.ID, replaced: replaced, usage: usage}, nil
}

func abortedOutcome(contractID string, cause error) contractOutcome {
	msg := "run aborted before this contract was billed"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return contractOutcome{status: statusFailed, contractID: contractID, errKind: FailureAborted, message: msg}
}

func (s *billingService) finish(ctx context.Context, result *BillingRunResult, runErr error, userID string, log *zap.Logger) {
	result.FinishedAt = s.now().UTC()
	elapsed := result.FinishedAt.Sub(result.StartedAt)

	fields := []zap.Field{
		zap.Int("generated", result.Generated),
		zap.Int("replaced", result.Replaced),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", elapsed),
	}

	event := ws.EventBillingRunCompleted
	if runErr != nil {
		event = ws.EventBillingRunAborted
		metrics.ObserveBillingRun(metrics.RunAborted, elapsed)
		log.Error("Billing run aborted", append(fields, zap.Error(runErr))...)
	} else {
		metrics.ObserveBillingRun(metrics.RunCompleted, elapsed)
		log.Info("Billing run completed", fields...)
	}

	s.writeAuditLog(context.WithoutCancel(ctx), userID, result)

	if s.deps.Events != nil {
		s.deps.Events.Publish(event, result)
	}
}

func (s *billingService) writeAuditLog(ctx context.Context, userID string, result *BillingRunResult) {
	auditCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	writeAuditLog(auditCtx, s.deps.AuditRepo, s.log, userID, model.ActionRunBilling, result.Period, "Billing run "+result.Period, map[string]interface{}{
		"run_id":    result.RunID,
		"generated": result.Generated,
		"replaced":  result.Replaced,
		"skipped":   len(result.Skipped),
		"errors":    result.Errors,
		"aborted":   result.Aborted,
	})
}
