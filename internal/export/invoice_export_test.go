package export

import (
	"bytes"
	"testing"
	"time"

	"energy-billing/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleInvoice(contractID string, total string) model.Invoice {
	return model.Invoice{
		ID:               "inv-" + contractID,
		ContractID:       contractID,
		Period:           "2024-03",
		MeterID:          "M-" + contractID,
		CustomerFullName: "Lucia Garcia",
		ContractType:     model.ContractTypeFixed,
		BilledFrom:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		BilledTo:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalKwh:         decimal.RequireFromString("900"),
		Subtotal:         decimal.RequireFromString("108"),
		Tax:              decimal.RequireFromString("22.68"),
		Total:            decimal.RequireFromString(total),
		GapHours:         3,
		GeneratedAt:      time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC),
	}
}

func TestBuildInvoicePDF(t *testing.T) {
	inv := sampleInvoice("C1", "130.68")
	contract := &model.Contract{
		ID:                  "C1",
		TaxID:               "12345678Z",
		TaxRate:             decimal.RequireFromString("0.21"),
		FixedPricePerKwhEur: decimal.NewNullDecimal(decimal.RequireFromString("0.12")),
		Meter:               &model.Meter{ID: "M-C1", Address: "Calle Mayor 1", PostalCode: "28013", City: "Madrid", CUPS: "ES0021000000000001AA"},
	}

	out, err := BuildInvoicePDF(&inv, contract)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	// snapshot only
	out, err = BuildInvoicePDF(&inv, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestBuildPeriodXLSX(t *testing.T) {
	invoices := []model.Invoice{sampleInvoice("C1", "130.68"), sampleInvoice("C2", "50.82")}

	out, err := BuildPeriodXLSX("2024-03", invoices)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", v)

	v, err = f.GetCellValue(summarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "181.50", v)

	rows, err := f.GetRows(invoicesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Invoice", rows[0][0])
	assert.Equal(t, "C2", rows[2][1])
}
