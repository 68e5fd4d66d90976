package calc

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input    string
		expected float64
	}{
		{"60000", 60000},
		{"  123.45 ", 123.45},
		{"", 0},
		{"   ", 0},
		{"abc", 0},
		{"12,5", 0},
		{"-250", -250},
	}

	for _, c := range cases {
		if got := ParseAmount(c.input); got != c.expected {
			t.Fatalf("ParseAmount(%q) = %v, expected %v", c.input, got, c.expected)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(1000); got != "1000.00" {
		t.Fatalf("unexpected formatting: %v", got)
	}
	if got := FormatAmount(12.345); got != "12.35" {
		t.Fatalf("unexpected formatting: %v", got)
	}
}

func TestCost(t *testing.T) {
	if got := Cost("10", "5000"); got != 50000 {
		t.Fatalf("cost = %v, expected 50000", got)
	}
	if got := Cost("", "5000"); got != 0 {
		t.Fatalf("blank MDs should yield 0 cost, got %v", got)
	}
	if got := Cost("10", "bad"); got != 0 {
		t.Fatalf("unparsable rate should yield 0 cost, got %v", got)
	}
}

func TestInvoicedTotalCZK(t *testing.T) {
	if got := InvoicedTotalCZK("60000", "CZK", "25.5"); got != 60000 {
		t.Fatalf("CZK totals must pass through unchanged, got %v", got)
	}
	if got := InvoicedTotalCZK("1000", "EUR", "25.5"); got != 25500 {
		t.Fatalf("EUR conversion = %v, expected 25500", got)
	}
	if got := InvoicedTotalCZK("1000", "EUR", ""); got != 1000 {
		t.Fatalf("missing rate must default to 1, got %v", got)
	}
	if got := InvoicedTotalCZK("1000", "EUR", "0"); got != 1000 {
		t.Fatalf("zero rate must default to 1, got %v", got)
	}
}

func TestProvision(t *testing.T) {
	if got := Provision(60000, 50000, 10); got != 1000 {
		t.Fatalf("provision = %v, expected 1000", got)
	}

	// Cost exceeding the invoiced total yields a negative provision, it
	// must not be clamped.
	if got := Provision(40000, 50000, 15); got != -1500 {
		t.Fatalf("provision = %v, expected -1500", got)
	}

	if got := Provision(60000, 50000, 0); got != 0 {
		t.Fatalf("no percent selected should yield 0, got %v", got)
	}
}

func TestDerive(t *testing.T) {
	derived := Derive(Inputs{
		NumberOfMDs:      "10",
		CostPerMD:        "5000",
		InvoicedTotal:    "60000",
		Currency:         "CZK",
		ProvisionPercent: 10,
	})

	if derived.Cost != 50000 || derived.InvoicedTotalCZK != 60000 || derived.Provision != 1000 {
		t.Fatalf("unexpected derived fields: %+v", derived)
	}
}

func TestDeriveEur(t *testing.T) {
	derived := Derive(Inputs{
		NumberOfMDs:      "18",
		CostPerMD:        "5000",
		InvoicedTotal:    "20000",
		Currency:         "EUR",
		ExchangeRate:     "25",
		ProvisionPercent: 15,
	})

	if derived.Cost != 90000 {
		t.Fatalf("cost = %v, expected 90000", derived.Cost)
	}
	if derived.InvoicedTotalCZK != 500000 {
		t.Fatalf("invoiced total czk = %v, expected 500000", derived.InvoicedTotalCZK)
	}
	if derived.Provision != 61500 {
		t.Fatalf("provision = %v, expected 61500", derived.Provision)
	}
}

func TestAutoFillInvoicedTotal(t *testing.T) {
	if got := AutoFillInvoicedTotal("10", "6000", "", false); got != "60000.00" {
		t.Fatalf("auto-fill = %v, expected 60000.00", got)
	}

	// A manual edit disables auto-fill even when the factors change.
	if got := AutoFillInvoicedTotal("12", "6000", "55000", true); got != "55000" {
		t.Fatalf("manual value must win, got %v", got)
	}

	if got := AutoFillInvoicedTotal("0", "6000", "1234", false); got != "1234" {
		t.Fatalf("missing factor must leave the field untouched, got %v", got)
	}
	if got := AutoFillInvoicedTotal("10", "", "1234", false); got != "1234" {
		t.Fatalf("missing rate must leave the field untouched, got %v", got)
	}
}
