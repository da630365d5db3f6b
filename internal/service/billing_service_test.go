package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"energy-billing/internal/billing"
	"energy-billing/internal/database"
	"energy-billing/internal/model"
	"energy-billing/internal/repository"
	"energy-billing/internal/runlock"
	ws "energy-billing/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// failingInvoiceRepo fails Upsert for the listed contracts, or for all when failFor is nil.
type failingInvoiceRepo struct {
	repository.InvoiceRepository
	failFor map[string]bool
}

func (r *failingInvoiceRepo) Upsert(ctx context.Context, inv *model.Invoice) error {
	if r.failFor == nil || r.failFor[inv.ContractID] {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}
	return r.InvoiceRepository.Upsert(ctx, inv)
}

// extraContractsRepo returns additional contracts from FindActiveDuring.
type extraContractsRepo struct {
	repository.ContractRepository
	extra []model.Contract
}

func (r *extraContractsRepo) FindActiveDuring(ctx context.Context, from, to time.Time) ([]model.Contract, error) {
	contracts, err := r.ContractRepository.FindActiveDuring(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return append(contracts, r.extra...), nil
}

type billingFixture struct {
	db        *gorm.DB
	meters    repository.MeterRepository
	contracts repository.ContractRepository
	readings  repository.ReadingRepository
	invoices  repository.InvoiceRepository
	audit     repository.AuditRepository
	locker    *runlock.MemoryLocker
	events    *recordingPublisher
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &billingFixture{
		db:        db,
		meters:    repository.NewMeterRepository(db),
		contracts: repository.NewContractRepository(db),
		readings:  repository.NewReadingRepository(db),
		invoices:  repository.NewInvoiceRepository(db),
		audit:     repository.NewAuditRepository(db),
		locker:    runlock.NewMemoryLocker(),
		events:    &recordingPublisher{},
	}
}

func (f *billingFixture) service(opts BillingOptions) BillingService {
	return f.serviceWith(opts, f.contracts, f.invoices)
}

func (f *billingFixture) serviceWith(opts BillingOptions, contracts repository.ContractRepository, invoices repository.InvoiceRepository) BillingService {
	return NewBillingService(BillingDependencies{
		ContractRepo: contracts,
		InvoiceRepo:  invoices,
		AuditRepo:    f.audit,
		TxManager:    repository.NewTransactionManager(f.db),
		Usage:        NewReadingAggregator(f.readings),
		Locker:       f.locker,
		Events:       f.events,
	}, opts, zap.NewNop())
}

func mustDay(s string) time.Time {
	d, err := billing.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func (f *billingFixture) addContract(t *testing.T, c model.Contract) {
	t.Helper()
	meterID := "M-" + c.ID
	require.NoError(t, f.meters.Create(context.Background(), &model.Meter{ID: meterID, Address: "Calle Mayor 1", City: "Madrid"}))

	c.MeterID = meterID
	c.CustomerID = "CUST-" + c.ID
	c.FullName = "Customer " + c.ID
	c.TaxID = "12345678Z"
	c.BillingCycle = billing.BillingCycleMonthly
	if c.TaxRate.IsZero() {
		c.TaxRate = decimal.RequireFromString("0.21")
	}
	require.NoError(t, f.contracts.Create(context.Background(), &c))
}

func (f *billingFixture) addFixed(t *testing.T, id, price, start string, end *time.Time) {
	f.addContract(t, model.Contract{
		ID:                  id,
		ContractType:        model.ContractTypeFixed,
		StartDate:           mustDay(start),
		EndDate:             end,
		FixedPricePerKwhEur: dec(price),
	})
}

func (f *billingFixture) addFlat(t *testing.T, id, fee, included, overage, start string) {
	f.addContract(t, model.Contract{
		ID:                    id,
		ContractType:          model.ContractTypeFlat,
		StartDate:             mustDay(start),
		FlatMonthlyFeeEur:     dec(fee),
		IncludedKwh:           dec(included),
		OveragePricePerKwhEur: dec(overage),
	})
}

// fillReadings stores kwh for hours 0..hours-1 of every day in [from, to].
func (f *billingFixture) fillReadings(t *testing.T, meterID, from, to string, hours int, kwh string, quality billing.Quality) {
	t.Helper()
	q := string(quality)
	var rows []model.Reading
	for d := mustDay(from); !d.After(mustDay(to)); d = d.AddDate(0, 0, 1) {
		for h := 0; h < hours; h++ {
			rows = append(rows, model.Reading{MeterID: meterID, Date: d, Hour: h, Kwh: decimal.RequireFromString(kwh), Quality: &q})
		}
	}
	require.NoError(t, f.readings.UpsertBatch(context.Background(), rows))
}

// seedScenarios creates the reference contracts for March 2024:
// C1 FIXED 0.12 with 900 kWh, C2 FLAT 40/300/0.10 with 320 kWh,
// C3 FIXED 0.12 ending 2024-03-10 with 20 kWh before and 20 kWh after its end.
func (f *billingFixture) seedScenarios(t *testing.T) {
	t.Helper()
	f.addFixed(t, "C1", "0.12", "2023-01-01", nil)
	f.fillReadings(t, "M-C1", "2024-03-01", "2024-03-05", 18, "10", billing.QualityReal)

	f.addFlat(t, "C2", "40", "300", "0.10", "2024-01-01")
	f.fillReadings(t, "M-C2", "2024-03-01", "2024-03-04", 8, "10", billing.QualityReal)

	end := mustDay("2024-03-10")
	f.addFixed(t, "C3", "0.12", "2023-06-01", &end)
	f.fillReadings(t, "M-C3", "2024-03-05", "2024-03-05", 10, "2", billing.QualityReal)
	f.fillReadings(t, "M-C3", "2024-03-15", "2024-03-15", 10, "2", billing.QualityReal)
}

func (f *billingFixture) invoicesByContract(t *testing.T, period string) map[string]model.Invoice {
	t.Helper()
	list, err := f.invoices.ListByPeriod(context.Background(), period)
	require.NoError(t, err)
	out := make(map[string]model.Invoice, len(list))
	for _, inv := range list {
		out[inv.ContractID] = inv
	}
	return out
}

func assertCharges(t *testing.T, inv model.Invoice, kwh, subtotal, tax, total string) {
	t.Helper()
	assert.Equal(t, kwh, inv.TotalKwh.StringFixed(billing.EnergyScale), "total kwh of %s", inv.ContractID)
	assert.Equal(t, subtotal, inv.Subtotal.StringFixed(billing.MoneyScale), "subtotal of %s", inv.ContractID)
	assert.Equal(t, tax, inv.Tax.StringFixed(billing.MoneyScale), "tax of %s", inv.ContractID)
	assert.Equal(t, total, inv.Total.StringFixed(billing.MoneyScale), "total of %s", inv.ContractID)
}

func testOptions() BillingOptions {
	opts := DefaultBillingOptions()
	opts.StoreTimeout = 5 * time.Second
	return opts
}

func TestRunBilling_ReferenceScenarios(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)

	result, err := f.service(testOptions()).RunBilling(context.Background(), "2024-03", "operator-1")
	require.NoError(t, err)

	assert.Equal(t, "2024-03", result.Period)
	assert.Equal(t, 3, result.Generated)
	assert.Equal(t, 0, result.Replaced)
	assert.Len(t, result.Invoices, 3)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Skipped)
	assert.False(t, result.Aborted)
	assert.NotEmpty(t, result.RunID)

	invoices := f.invoicesByContract(t, "2024-03")
	require.Len(t, invoices, 3)

	assertCharges(t, invoices["C1"], "900.000", "108.00", "22.68", "130.68")
	assertCharges(t, invoices["C2"], "320.000", "42.00", "8.82", "50.82")
	assertCharges(t, invoices["C3"], "20.000", "2.40", "0.50", "2.90")

	c3 := invoices["C3"]
	assert.Equal(t, "2024-03-01", c3.BilledFrom.Format(billing.DateLayout))
	assert.Equal(t, "2024-03-10", c3.BilledTo.Format(billing.DateLayout))
	assert.Equal(t, 10*24-10, c3.GapHours)

	c1 := invoices["C1"]
	assert.Equal(t, "M-C1", c1.MeterID)
	assert.Equal(t, "Customer C1", c1.CustomerFullName)
	assert.Equal(t, model.ContractTypeFixed, c1.ContractType)

	// every invoice has missing hours in this data set
	assert.Len(t, result.Warnings, 3)

	logs, total, err := f.audit.List(context.Background(), repository.AuditLogFilter{Action: model.ActionRunBilling, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "2024-03", logs[0].EntityID)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, "operator-1", *logs[0].UserID)

	assert.Equal(t, []string{ws.EventBillingRunCompleted}, f.events.Events())
}

func TestRunBilling_RerunReplacesInPlace(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	svc := f.service(testOptions())
	ctx := context.Background()

	first, err := svc.RunBilling(ctx, "2024-03", "")
	require.NoError(t, err)
	before := f.invoicesByContract(t, "2024-03")

	// a late reading for C1 changes its consumption
	f.fillReadings(t, "M-C1", "2024-03-06", "2024-03-06", 1, "100", billing.QualityReal)

	second, err := svc.RunBilling(ctx, "2024-03", "")
	require.NoError(t, err)
	assert.Equal(t, 3, second.Generated)
	assert.Equal(t, 3, second.Replaced)
	assert.ElementsMatch(t, first.Invoices, second.Invoices)

	after := f.invoicesByContract(t, "2024-03")
	require.Len(t, after, 3)
	for id, inv := range after {
		assert.Equal(t, before[id].ID, inv.ID, "invoice id of %s is stable", id)
	}
	assertCharges(t, after["C1"], "1000.000", "120.00", "25.20", "145.20")
	assertCharges(t, after["C2"], "320.000", "42.00", "8.82", "50.82")
}

func TestRunBilling_SkipPolicyKeepsExistingInvoices(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	opts := testOptions()
	opts.RegeneratePolicy = RegenerateSkip
	svc := f.service(opts)
	ctx := context.Background()

	_, err := svc.RunBilling(ctx, "2024-03", "")
	require.NoError(t, err)

	f.fillReadings(t, "M-C1", "2024-03-06", "2024-03-06", 1, "100", billing.QualityReal)

	second, err := svc.RunBilling(ctx, "2024-03", "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Generated)
	require.Len(t, second.Skipped, 3)
	for _, s := range second.Skipped {
		assert.Equal(t, SkipInvoiceExists, s.Reason)
	}

	assertCharges(t, f.invoicesByContract(t, "2024-03")["C1"], "900.000", "108.00", "22.68", "130.68")
}

func TestRunBilling_MisconfiguredContractIsIsolated(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	f.addContract(t, model.Contract{
		ID:                  "C4",
		ContractType:        model.ContractTypeFixed,
		StartDate:           mustDay("2024-01-01"),
		FixedPricePerKwhEur: dec("0.12"),
		FlatMonthlyFeeEur:   dec("40"),
	})

	result, err := f.service(testOptions()).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Generated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "C4", result.Errors[0].ContractID)
	assert.Equal(t, FailureConfiguration, result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Message, "flat_monthly_fee_eur")

	_, exists := f.invoicesByContract(t, "2024-03")["C4"]
	assert.False(t, exists)
}

func TestRunBilling_NonOverlappingContracts(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	// starts after the period, never selected by the store
	f.addFixed(t, "C5", "0.12", "2024-04-01", nil)

	// returned by a lenient store; the resolver still rejects it
	stray := model.Contract{
		ID:                  "C6",
		MeterID:             "M-C6",
		FullName:            "Customer C6",
		ContractType:        model.ContractTypeFixed,
		StartDate:           mustDay("2024-05-01"),
		FixedPricePerKwhEur: dec("0.12"),
		TaxRate:             decimal.RequireFromString("0.21"),
	}
	contracts := &extraContractsRepo{ContractRepository: f.contracts, extra: []model.Contract{stray}}

	result, err := f.serviceWith(testOptions(), contracts, f.invoices).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Generated)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "C6", result.Skipped[0].ContractID)
	assert.Equal(t, SkipNotBillable, result.Skipped[0].Reason)

	invoices := f.invoicesByContract(t, "2024-03")
	assert.Len(t, invoices, 3)
	assert.NotContains(t, invoices, "C5")
	assert.NotContains(t, invoices, "C6")
}

func TestRunBilling_RealOnlyPolicyExcludesEstimates(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	f.fillReadings(t, "M-C1", "2024-03-06", "2024-03-06", 1, "100", billing.QualityEstimated)

	opts := testOptions()
	opts.QualityPolicy = billing.RealOnly
	_, err := f.service(opts).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)
	assertCharges(t, f.invoicesByContract(t, "2024-03")["C1"], "900.000", "108.00", "22.68", "130.68")

	opts.QualityPolicy = billing.IncludeAll
	_, err = f.service(opts).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)
	c1 := f.invoicesByContract(t, "2024-03")["C1"]
	assertCharges(t, c1, "1000.000", "120.00", "25.20", "145.20")
	assert.Equal(t, 1, c1.EstimatedHours)
}

func TestRunBilling_InvalidPeriod(t *testing.T) {
	f := newBillingFixture(t)

	for _, period := range []string{"", "2024-13", "2024-3", "March 2024", "2024-03-01"} {
		result, err := f.service(testOptions()).RunBilling(context.Background(), period, "")
		assert.ErrorIs(t, err, billing.ErrInvalidPeriod, "period %q", period)
		assert.Nil(t, result)
	}
}

func TestRunBilling_ConcurrentRunRejected(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	ctx := context.Background()

	lease, err := f.locker.Acquire(ctx, "billing:2024-03")
	require.NoError(t, err)

	result, err := f.service(testOptions()).RunBilling(ctx, "2024-03", "")
	assert.ErrorIs(t, err, billing.ErrConcurrentRun)
	assert.Nil(t, result)
	assert.Empty(t, f.invoicesByContract(t, "2024-03"))

	// other periods are not blocked
	_, err = f.service(testOptions()).RunBilling(ctx, "2024-02", "")
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	_, err = f.service(testOptions()).RunBilling(ctx, "2024-03", "")
	require.NoError(t, err)
}

func TestRunBilling_StoreOutageAbortsRun(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)
	f.addFixed(t, "C4", "0.15", "2024-01-01", nil)

	opts := testOptions()
	opts.Workers = 1
	opts.MaxConsecutiveStoreFailures = 2
	invoices := &failingInvoiceRepo{InvoiceRepository: f.invoices}

	result, err := f.serviceWith(opts, f.contracts, invoices).RunBilling(context.Background(), "2024-03", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrPersistence)
	require.NotNil(t, result)
	assert.True(t, result.Aborted)
	assert.Equal(t, 0, result.Generated)

	kinds := map[string]int{}
	for _, e := range result.Errors {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[string]int{FailurePersistence: 2, FailureAborted: 2}, kinds)
	assert.Equal(t, []string{ws.EventBillingRunAborted}, f.events.Events())

	// the lease is released even when the run aborts
	lease, err := f.locker.Acquire(context.Background(), "billing:2024-03")
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestRunBilling_IsolatedStoreFailuresDoNotAbort(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)

	opts := testOptions()
	opts.Workers = 1
	opts.MaxConsecutiveStoreFailures = 2
	invoices := &failingInvoiceRepo{InvoiceRepository: f.invoices, failFor: map[string]bool{"C2": true}}

	result, err := f.serviceWith(opts, f.contracts, invoices).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	assert.Equal(t, 2, result.Generated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "C2", result.Errors[0].ContractID)
	assert.Equal(t, FailurePersistence, result.Errors[0].Kind)
}

func TestRunBilling_CallerCancellation(t *testing.T) {
	f := newBillingFixture(t)
	f.seedScenarios(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.service(testOptions()).RunBilling(ctx, "2024-03", "")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Aborted)
	assert.Equal(t, 0, result.Generated)
	assert.Empty(t, f.invoicesByContract(t, "2024-03"))
}

func TestRunBilling_ParallelWorkersBillEveryContract(t *testing.T) {
	f := newBillingFixture(t)
	for _, id := range []string{"P01", "P02", "P03", "P04", "P05", "P06", "P07", "P08"} {
		f.addFixed(t, id, "0.20", "2024-01-01", nil)
		f.fillReadings(t, "M-"+id, "2024-03-01", "2024-03-01", 5, "1", billing.QualityReal)
	}

	opts := testOptions()
	opts.Workers = 4
	result, err := f.service(opts).RunBilling(context.Background(), "2024-03", "")
	require.NoError(t, err)
	assert.Equal(t, 8, result.Generated)

	for _, inv := range f.invoicesByContract(t, "2024-03") {
		assertCharges(t, inv, "5.000", "1.00", "0.21", "1.21")
	}
}

// slowContractsRepo delays FindActiveDuring to keep a run in flight.
type slowContractsRepo struct {
	repository.ContractRepository
	delay time.Duration
}

func (r *slowContractsRepo) FindActiveDuring(ctx context.Context, from, to time.Time) ([]model.Contract, error) {
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.ContractRepository.FindActiveDuring(ctx, from, to)
}

// lostLocker hands out leases that are already taken over on first refresh.
type lostLocker struct{}

func (lostLocker) Acquire(_ context.Context, key string) (runlock.Lease, error) {
	return lostLease{key: key}, nil
}

type lostLease struct{ key string }

func (l lostLease) Key() string { return l.key }

func (lostLease) TTL() time.Duration { return 30 * time.Millisecond }

func (lostLease) Refresh(_ context.Context) error { return runlock.ErrLost }

func (lostLease) Release(_ context.Context) error { return nil }

func TestRunBilling_LeaseOutlivesItsTTL(t *testing.T) {
	f := newBillingFixture(t)
	f.addFixed(t, "C1", "0.15", "2024-01-01", nil)

	svc := NewBillingService(BillingDependencies{
		ContractRepo: &slowContractsRepo{ContractRepository: f.contracts, delay: 400 * time.Millisecond},
		InvoiceRepo:  f.invoices,
		AuditRepo:    f.audit,
		TxManager:    repository.NewTransactionManager(f.db),
		Usage:        NewReadingAggregator(f.readings),
		Locker:       runlock.NewGormLocker(f.db, 100*time.Millisecond),
	}, testOptions(), zap.NewNop())

	type outcome struct {
		result *BillingRunResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := svc.RunBilling(context.Background(), "2024-03", "operator-1")
		first <- outcome{res, err}
	}()

	// well past the lease TTL while the first run is still listing contracts
	time.Sleep(250 * time.Millisecond)
	_, err := svc.RunBilling(context.Background(), "2024-03", "operator-2")
	assert.ErrorIs(t, err, billing.ErrConcurrentRun)

	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.result.Generated)

	// released once finished
	again, err := svc.RunBilling(context.Background(), "2024-03", "operator-2")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Replaced)
}

func TestRunBilling_LostLeaseAbortsRun(t *testing.T) {
	f := newBillingFixture(t)
	f.addFixed(t, "C1", "0.15", "2024-01-01", nil)

	svc := NewBillingService(BillingDependencies{
		ContractRepo: &slowContractsRepo{ContractRepository: f.contracts, delay: 2 * time.Second},
		InvoiceRepo:  f.invoices,
		AuditRepo:    f.audit,
		TxManager:    repository.NewTransactionManager(f.db),
		Usage:        NewReadingAggregator(f.readings),
		Locker:       lostLocker{},
		Events:       f.events,
	}, testOptions(), zap.NewNop())

	result, err := svc.RunBilling(context.Background(), "2024-03", "operator-1")
	assert.ErrorIs(t, err, billing.ErrConcurrentRun)
	assert.ErrorIs(t, err, runlock.ErrLost)
	require.NotNil(t, result)
	assert.True(t, result.Aborted)
	assert.Zero(t, result.Generated)
	assert.Equal(t, []string{ws.EventBillingRunAborted}, f.events.Events())

	invoices, err := f.invoices.ListByPeriod(context.Background(), "2024-03")
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestRunBilling_SharedMeterAndEndDayBoundary(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	// C1 FIXED and C2 FLAT both read meter M1
	require.NoError(t, f.meters.Create(ctx, &model.Meter{ID: "M1", Address: "Calle Mayor 1", City: "Madrid"}))
	for _, c := range []model.Contract{
		{ID: "C1", ContractType: model.ContractTypeFixed, FixedPricePerKwhEur: dec("0.15")},
		{ID: "C2", ContractType: model.ContractTypeFlat, FlatMonthlyFeeEur: dec("20"), IncludedKwh: dec("500"), OveragePricePerKwhEur: dec("0.10")},
	} {
		c.MeterID = "M1"
		c.CustomerID = "CUST-" + c.ID
		c.FullName = "Customer " + c.ID
		c.TaxID = "12345678Z"
		c.BillingCycle = billing.BillingCycleMonthly
		c.StartDate = mustDay("2024-01-01")
		c.TaxRate = decimal.RequireFromString("0.21")
		require.NoError(t, f.contracts.Create(ctx, &c))
	}
	// 720 hourly readings of 1.0 kWh
	f.fillReadings(t, "M1", "2024-03-01", "2024-03-30", 24, "1.0", billing.QualityReal)

	end := mustDay("2024-03-10")
	f.addFixed(t, "C3", "0.15", "2023-06-01", &end)
	quality := string(billing.QualityReal)
	require.NoError(t, f.readings.UpsertBatch(ctx, []model.Reading{
		{MeterID: "M-C3", Date: mustDay("2024-03-01"), Hour: 0, Kwh: decimal.RequireFromString("2"), Quality: &quality},
		{MeterID: "M-C3", Date: mustDay("2024-03-10"), Hour: 23, Kwh: decimal.RequireFromString("2"), Quality: &quality},
		{MeterID: "M-C3", Date: mustDay("2024-03-11"), Hour: 0, Kwh: decimal.RequireFromString("5"), Quality: &quality},
	}))

	result, err := f.service(testOptions()).RunBilling(ctx, "2024-03", "operator-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Generated)
	assert.Empty(t, result.Errors)

	invoices := f.invoicesByContract(t, "2024-03")
	assertCharges(t, invoices["C1"], "720.000", "108.00", "22.68", "130.68")
	assertCharges(t, invoices["C2"], "720.000", "42.00", "8.82", "50.82")

	// 2024-03-10 23:00 counts, 2024-03-11 00:00 does not
	assertCharges(t, invoices["C3"], "4.000", "0.60", "0.13", "0.73")
	assert.Equal(t, "2024-03-10", invoices["C3"].BilledTo.Format(billing.DateLayout))
}
