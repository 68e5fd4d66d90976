// Package calc implements the cost/provision calculation engine. All
// functions are pure; the services layer is the only caller that persists
// their output.
package calc

import (
	"strconv"
	"strings"

	"provision_platform/calculator/schema"
)

// ParseAmount parses a decimal form field. Blank or unparsable values
// degrade to 0 rather than raising an error, matching the behavior the
// calculator form relies on.
func ParseAmount(value string) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return amount
}

// FormatAmount renders an amount with fixed two-decimal display precision.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func Cost(numberOfMDs, costPerMD string) float64 {
	return ParseAmount(numberOfMDs) * ParseAmount(costPerMD)
}

// ExchangeRateOrDefault returns the EUR to CZK rate, treating a blank,
// unparsable, or non-positive rate as 1.
func ExchangeRateOrDefault(exchangeRate string) float64 {
	rate := ParseAmount(exchangeRate)
	if rate <= 0 {
		return 1
	}
	return rate
}

func InvoicedTotalCZK(invoicedTotal, currency, exchangeRate string) float64 {
	total := ParseAmount(invoicedTotal)
	if currency == schema.CurrencyEUR {
		return total * ExchangeRateOrDefault(exchangeRate)
	}
	return total
}

// Provision computes the commission on the margin. A zero or negative
// percent means no provision was selected and yields 0. A negative margin
// yields a negative provision, it is never clamped.
func Provision(invoicedTotalCZK, cost, provisionPercent float64) float64 {
	if provisionPercent <= 0 {
		return 0
	}
	return (invoicedTotalCZK - cost) * (provisionPercent / 100)
}

type Inputs struct {
	NumberOfMDs      string
	CostPerMD        string
	InvoicedTotal    string
	Currency         string
	ExchangeRate     string
	ProvisionPercent float64
}

type Derived struct {
	Cost             float64
	Provision        float64
	InvoicedTotalCZK float64
}

// Derive computes every derived field from the raw inputs. This is the
// single source of truth for stored Cost/Provision/InvoicedTotalCZK values.
func Derive(in Inputs) Derived {
	cost := Cost(in.NumberOfMDs, in.CostPerMD)
	totalCZK := InvoicedTotalCZK(in.InvoicedTotal, in.Currency, in.ExchangeRate)
	return Derived{
		Cost:             cost,
		InvoicedTotalCZK: totalCZK,
		Provision:        Provision(totalCZK, cost, in.ProvisionPercent),
	}
}

// AutoFillInvoicedTotal implements the form convenience rule for the
// invoiced total field: when both numberOfMDs and mdRate are present and
// positive the field is refilled with their product, unless the user has
// hand-edited it since the last auto-fill. Once manuallyEdited is set,
// later changes to numberOfMDs or mdRate never override the manual value.
func AutoFillInvoicedTotal(numberOfMDs, mdRate, current string, manuallyEdited bool) string {
	if manuallyEdited {
		return current
	}
	mds := ParseAmount(numberOfMDs)
	rate := ParseAmount(mdRate)
	if mds <= 0 || rate <= 0 {
		return current
	}
	return FormatAmount(mds * rate)
}
