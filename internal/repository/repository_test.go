package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"energy-billing/internal/database"
	"energy-billing/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedContract(t *testing.T, db *gorm.DB, id string, start string, end *time.Time) {
	t.Helper()
	meter := model.Meter{ID: "M-" + id, Address: "Calle Mayor 1", City: "Madrid"}
	require.NoError(t, db.Create(&meter).Error)
	require.NoError(t, db.Create(&model.Contract{
		ID:                  id,
		MeterID:             meter.ID,
		CustomerID:          "CUST-" + id,
		FullName:            "Customer " + id,
		TaxID:               "12345678Z",
		ContractType:        model.ContractTypeFixed,
		StartDate:           day(start),
		EndDate:             end,
		BillingCycle:        "MONTHLY",
		FixedPricePerKwhEur: decimal.NewNullDecimal(decimal.RequireFromString("0.12")),
		TaxRate:             decimal.RequireFromString("0.21"),
	}).Error)
}

func TestContractRepository_FindActiveDuring(t *testing.T) {
	db := newTestDB(t)
	repo := NewContractRepository(db)
	ctx := context.Background()

	feb := day("2024-02-29")
	mar10 := day("2024-03-10")
	seedContract(t, db, "C-OPEN", "2024-01-01", nil)
	seedContract(t, db, "C-ENDS", "2024-01-01", &mar10)
	seedContract(t, db, "C-ENDED", "2023-01-01", &feb)
	seedContract(t, db, "C-FUTURE", "2024-04-01", nil)
	seedContract(t, db, "C-LATE", "2024-03-31", nil)

	contracts, err := repo.FindActiveDuring(ctx, day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)

	ids := make([]string, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"C-ENDS", "C-LATE", "C-OPEN"}, ids)
}

func TestReadingRepository_UpsertBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewReadingRepository(db)
	ctx := context.Background()

	estimated := "ESTIMATED"
	require.NoError(t, repo.UpsertBatch(ctx, []model.Reading{
		{MeterID: "M1", Date: day("2024-03-01"), Hour: 0, Kwh: decimal.RequireFromString("1.5")},
		{MeterID: "M1", Date: day("2024-03-01"), Hour: 1, Kwh: decimal.RequireFromString("2"), Quality: &estimated},
		{MeterID: "M1", Date: day("2024-04-01"), Hour: 0, Kwh: decimal.RequireFromString("9")},
		{MeterID: "M2", Date: day("2024-03-01"), Hour: 0, Kwh: decimal.RequireFromString("7")},
	}))

	// overwrite hour 0
	require.NoError(t, repo.UpsertBatch(ctx, []model.Reading{
		{MeterID: "M1", Date: day("2024-03-01"), Hour: 0, Kwh: decimal.RequireFromString("3.25")},
	}))

	readings, err := repo.ListByMeterBetween(ctx, "M1", day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 0, readings[0].Hour)
	assert.Equal(t, "3.250", readings[0].Kwh.StringFixed(3))
	assert.Nil(t, readings[0].Quality)
	require.NotNil(t, readings[1].Quality)
	assert.Equal(t, "ESTIMATED", *readings[1].Quality)

	n, err := repo.Delete(ctx, "M1", day("2024-03-01"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInvoiceRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db)
	ctx := context.Background()

	inv := &model.Invoice{
		ContractID:       "C1",
		Period:           "2024-03",
		MeterID:          "M1",
		CustomerFullName: "Ana",
		ContractType:     model.ContractTypeFixed,
		BilledFrom:       day("2024-03-01"),
		BilledTo:         day("2024-03-31"),
		TotalKwh:         decimal.RequireFromString("900"),
		Subtotal:         decimal.RequireFromString("108"),
		Tax:              decimal.RequireFromString("22.68"),
		Total:            decimal.RequireFromString("130.68"),
		GeneratedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Upsert(ctx, inv))
	require.NotEmpty(t, inv.ID)

	existing, err := repo.FindByContractAndPeriod(ctx, "C1", "2024-03")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, inv.ID, existing.ID)

	replacement := *inv
	replacement.TotalKwh = decimal.RequireFromString("1000")
	replacement.Subtotal = decimal.RequireFromString("120")
	replacement.Tax = decimal.RequireFromString("25.2")
	replacement.Total = decimal.RequireFromString("145.2")
	require.NoError(t, repo.Upsert(ctx, &replacement))

	invoices, err := repo.ListByPeriod(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, inv.ID, invoices[0].ID)
	assert.Equal(t, "145.20", invoices[0].Total.StringFixed(2))

	missing, err := repo.FindByContractAndPeriod(ctx, "C1", "2024-04")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.FindByID(ctx, "nope")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestInvoiceRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	for i, p := range []struct{ contract, period string }{
		{"C1", "2024-02"}, {"C1", "2024-03"}, {"C2", "2024-03"},
	} {
		require.NoError(t, repo.Upsert(ctx, &model.Invoice{
			ContractID: p.contract, Period: p.period, MeterID: "M",
			CustomerFullName: "X", ContractType: model.ContractTypeFlat,
			BilledFrom: day(p.period + "-01"), BilledTo: day(p.period + "-28"),
			GeneratedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, total, err := repo.List(ctx, InvoiceListFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, "C2", all[0].ContractID)
	assert.Equal(t, "C1", all[1].ContractID)
	assert.Equal(t, "2024-02", all[2].Period)

	march, total, err := repo.List(ctx, InvoiceListFilter{Period: "2024-03", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, march, 1)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	db := newTestDB(t)
	tm := NewTransactionManager(db)
	meters := NewMeterRepository(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, meters.Create(txCtx, &model.Meter{ID: "M1", Address: "a", City: "b"}))
		return tm.RunInTx(txCtx, func(inner context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = meters.FindByID(ctx, "M1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuditRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionRunBilling, EntityID: "2024-03"}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionCreateMeter, EntityID: "M1"}))

	logs, total, err := repo.List(ctx, AuditLogFilter{Action: model.ActionRunBilling, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "2024-03", logs[0].EntityID)
	assert.NotEmpty(t, logs[0].ID)
}
