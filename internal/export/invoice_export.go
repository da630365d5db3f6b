package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"energy-billing/internal/billing"
	"energy-billing/internal/model"
)

const (
	summarySheet  = "summary"
	invoicesSheet = "invoices"
)

// BuildInvoicePDF renders one invoice. contract may be nil when it was deleted
// after billing; the invoice snapshot is then the only source.
func BuildInvoicePDF(inv *model.Invoice, contract *model.Contract) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+inv.ID, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Electricity Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	line := func(label, value string) {
		pdf.CellFormat(50, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, value, "", 0, "L", false, 0, "")
		pdf.Ln(6)
	}

	line("Invoice", inv.ID)
	line("Period", inv.Period)
	line("Billed days", inv.BilledFrom.Format(billing.DateLayout)+" to "+inv.BilledTo.Format(billing.DateLayout))
	line("Generated", inv.GeneratedAt.UTC().Format(time.RFC3339))
	pdf.Ln(4)

	line("Customer", inv.CustomerFullName)
	line("Contract", inv.ContractID+" ("+inv.ContractType+")")
	line("Meter", inv.MeterID)
	if contract != nil {
		line("Tax ID", contract.TaxID)
		if m := contract.Meter; m != nil {
			line("Supply address", fmt.Sprintf("%s, %s %s", m.Address, m.PostalCode, m.City))
			if m.CUPS != "" {
				line("CUPS", m.CUPS)
			}
		}
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 7, "Concept", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 7, "Amount", "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	row := func(concept, amount string) {
		pdf.CellFormat(100, 7, concept, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, amount, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	row("Energy consumed", inv.TotalKwh.StringFixed(billing.EnergyScale)+" kWh")
	row(tariffConcept(inv, contract), inv.Subtotal.StringFixed(billing.MoneyScale)+" EUR")
	row(taxConcept(contract), inv.Tax.StringFixed(billing.MoneyScale)+" EUR")

	pdf.SetFont("Arial", "B", 10)
	row("Total", inv.Total.StringFixed(billing.MoneyScale)+" EUR")

	if inv.GapHours > 0 || inv.EstimatedHours > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf(
			"Consumption includes %d estimated hours; %d hours had no reading and were billed as zero.",
			inv.EstimatedHours, inv.GapHours), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tariffConcept(inv *model.Invoice, contract *model.Contract) string {
	if contract == nil {
		return "Energy charge"
	}
	switch inv.ContractType {
	case model.ContractTypeFixed:
		if contract.FixedPricePerKwhEur.Valid {
			return "Energy at " + contract.FixedPricePerKwhEur.Decimal.String() + " EUR/kWh"
		}
	case model.ContractTypeFlat:
		if contract.FlatMonthlyFeeEur.Valid && contract.IncludedKwh.Valid {
			return fmt.Sprintf("Flat fee %s EUR incl. %s kWh + overage",
				contract.FlatMonthlyFeeEur.Decimal.StringFixed(billing.MoneyScale), contract.IncludedKwh.Decimal.String())
		}
	}
	return "Energy charge"
}

func taxConcept(contract *model.Contract) string {
	if contract == nil {
		return "Tax"
	}
	return "Tax " + contract.TaxRate.Mul(decimal.NewFromInt(100)).String() + "%"
}

// BuildPeriodXLSX renders every invoice of a period with a totals summary.
func BuildPeriodXLSX(period string, invoices []model.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(invoicesSheet); err != nil {
		return nil, err
	}

	headers := []string{"Invoice", "Contract", "Meter", "Customer", "Type", "From", "To", "kWh", "Subtotal", "Tax", "Total", "Gap hours", "Estimated hours", "Generated"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(invoicesSheet, cell, h)
	}

	kwh, subtotal, tax, total := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, inv := range invoices {
		values := []any{
			inv.ID,
			inv.ContractID,
			inv.MeterID,
			inv.CustomerFullName,
			inv.ContractType,
			inv.BilledFrom.Format(billing.DateLayout),
			inv.BilledTo.Format(billing.DateLayout),
			inv.TotalKwh.InexactFloat64(),
			inv.Subtotal.InexactFloat64(),
			inv.Tax.InexactFloat64(),
			inv.Total.InexactFloat64(),
			inv.GapHours,
			inv.EstimatedHours,
			inv.GeneratedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(invoicesSheet, cell, v)
		}
		kwh = kwh.Add(inv.TotalKwh)
		subtotal = subtotal.Add(inv.Subtotal)
		tax = tax.Add(inv.Tax)
		total = total.Add(inv.Total)
	}

	summary := [][2]any{
		{"Billing period", period},
		{"Invoices", len(invoices)},
		{"Total kWh", kwh.StringFixed(billing.EnergyScale)},
		{"Subtotal (EUR)", subtotal.StringFixed(billing.MoneyScale)},
		{"Tax (EUR)", tax.StringFixed(billing.MoneyScale)},
		{"Total (EUR)", total.StringFixed(billing.MoneyScale)},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
