package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ContractType string

const (
	ContractTypeFixed ContractType = "FIXED"
	ContractTypeFlat  ContractType = "FLAT"

	BillingCycleMonthly = "MONTHLY"
)

const (
	MoneyScale  = 2
	EnergyScale = 3
)

// Tariff prices a month of consumption. The set of variants is closed.
type Tariff interface {
	Type() ContractType
	// PriceUsage returns the unrounded subtotal for kwh.
	PriceUsage(kwh decimal.Decimal) decimal.Decimal
	tariff()
}

// FixedTariff charges a constant price per kWh.
type FixedTariff struct {
	PricePerKwh decimal.Decimal
}

func (FixedTariff) Type() ContractType { return ContractTypeFixed }

func (t FixedTariff) PriceUsage(kwh decimal.Decimal) decimal.Decimal {
	return kwh.Mul(t.PricePerKwh)
}

func (FixedTariff) tariff() {}

// FlatTariff charges a monthly fee covering IncludedKwh, plus overage beyond it.
// The fee is never prorated for partial months.
type FlatTariff struct {
	MonthlyFee         decimal.Decimal
	IncludedKwh        decimal.Decimal
	OveragePricePerKwh decimal.Decimal
}

func (FlatTariff) Type() ContractType { return ContractTypeFlat }

func (t FlatTariff) PriceUsage(kwh decimal.Decimal) decimal.Decimal {
	overage := kwh.Sub(t.IncludedKwh)
	if overage.IsNegative() {
		overage = decimal.Zero
	}
	return t.MonthlyFee.Add(overage.Mul(t.OveragePricePerKwh))
}

func (FlatTariff) tariff() {}

// Terms are the tariff-relevant fields of a contract.
type Terms struct {
	ContractID   string
	Type         string
	BillingCycle string
	TaxRate      decimal.Decimal

	FixedPricePerKwh   decimal.NullDecimal
	FlatMonthlyFee     decimal.NullDecimal
	IncludedKwh        decimal.NullDecimal
	OveragePricePerKwh decimal.NullDecimal
}

// TariffFor validates terms and builds the matching tariff.
// A FIXED contract carrying FLAT fields, or the reverse, is rejected.
func TariffFor(t Terms) (Tariff, error) {
	id := t.ContractID
	if t.TaxRate.IsNegative() {
		return nil, configErr(id, "tax_rate", "must not be negative")
	}
	if cycle := strings.ToUpper(strings.TrimSpace(t.BillingCycle)); cycle != "" && cycle != BillingCycleMonthly {
		return nil, configErr(id, "billing_cycle", "must be MONTHLY, got "+t.BillingCycle)
	}

	switch ContractType(strings.ToUpper(strings.TrimSpace(t.Type))) {
	case ContractTypeFixed:
		flatFields := []struct {
			name  string
			value decimal.NullDecimal
		}{
			{"flat_monthly_fee_eur", t.FlatMonthlyFee},
			{"included_kwh", t.IncludedKwh},
			{"overage_price_per_kwh_eur", t.OveragePricePerKwh},
		}
		for _, f := range flatFields {
			if f.value.Valid {
				return nil, configErr(id, f.name, "must be empty for a FIXED contract")
			}
		}
		price, err := required(id, "fixed_price_per_kwh_eur", t.FixedPricePerKwh)
		if err != nil {
			return nil, err
		}
		return FixedTariff{PricePerKwh: price}, nil

	case ContractTypeFlat:
		if t.FixedPricePerKwh.Valid {
			return nil, configErr(id, "fixed_price_per_kwh_eur", "must be empty for a FLAT contract")
		}
		fee, err := required(id, "flat_monthly_fee_eur", t.FlatMonthlyFee)
		if err != nil {
			return nil, err
		}
		included, err := required(id, "included_kwh", t.IncludedKwh)
		if err != nil {
			return nil, err
		}
		overage, err := required(id, "overage_price_per_kwh_eur", t.OveragePricePerKwh)
		if err != nil {
			return nil, err
		}
		return FlatTariff{MonthlyFee: fee, IncludedKwh: included, OveragePricePerKwh: overage}, nil

	default:
		return nil, configErr(id, "contract_type", "is unknown: "+t.Type)
	}
}

func required(contractID, field string, v decimal.NullDecimal) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, configErr(contractID, field, "is required")
	}
	if v.Decimal.IsNegative() {
		return decimal.Zero, configErr(contractID, field, "must not be negative")
	}
	return v.Decimal, nil
}

// Charges are the priced amounts of one invoice.
type Charges struct {
	TotalKwh decimal.Decimal
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices kwh under tariff. Subtotal and tax are rounded half-up to cents
// independently and total is their exact sum.
func Quote(t Tariff, kwh, taxRate decimal.Decimal) Charges {
	subtotal := RoundMoney(t.PriceUsage(kwh))
	tax := RoundMoney(subtotal.Mul(taxRate))
	return Charges{
		TotalKwh: kwh.Round(EnergyScale),
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// RoundMoney rounds half away from zero to cents. Amounts are non-negative so
// this is half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
