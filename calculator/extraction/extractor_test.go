package extraction

import (
	"testing"
)

const czechInvoice = `Faktura - daňový doklad
Číslo: 20240178

Dodavatel:
Example Consulting s.r.o.
IČO: 11111111

Odběratel:
Acme Solutions s.r.o.
IČO: 22222222

Datum vystavení: 15.01.2024
Datum splatnosti: 29.01.2024

Předmět: Vývoj webové aplikace pro sklad

MJ Počet MJ Cena MJ
MD 18 15 000,00 21% 270 000,00

Součet: 270 000,00
DPH 21%: 56 700,00
Celkem k úhradě: 326 700,00 Kč
`

func TestExtractCzechInvoice(t *testing.T) {
	fields := Extract(czechInvoice)

	if fields.InvoiceNumber != "20240178" {
		t.Errorf("invoice number: got %q", fields.InvoiceNumber)
	}
	if fields.ProjectName != "Vývoj webové aplikace pro sklad" {
		t.Errorf("project name: got %q", fields.ProjectName)
	}
	// The amount before VAT wins over the payable total.
	if fields.InvoicedTotal != "270000.00" {
		t.Errorf("invoiced total: got %q", fields.InvoicedTotal)
	}
	if fields.Currency != "CZK" {
		t.Errorf("currency: got %q", fields.Currency)
	}
	if fields.InvoiceDate != "15.01.2024" {
		t.Errorf("invoice date: got %q", fields.InvoiceDate)
	}
	if fields.InvoiceDueDate != "29.01.2024" {
		t.Errorf("due date: got %q", fields.InvoiceDueDate)
	}
	if fields.NumberOfMDs != "18" {
		t.Errorf("number of MDs: got %q", fields.NumberOfMDs)
	}
	if fields.MdRate != "15000.00" {
		t.Errorf("MD rate: got %q", fields.MdRate)
	}
	if fields.Client != "Acme Solutions s.r.o." {
		t.Errorf("client: got %q", fields.Client)
	}
}

func TestExtractPrefersAmountWithoutVat(t *testing.T) {
	text := `Celkem k úhradě: 48 400,00 Kč
Základ DPH: 40 000,00`

	fields := Extract(text)
	if fields.InvoicedTotal != "40000.00" {
		t.Errorf("expected base amount 40000.00, got %q", fields.InvoicedTotal)
	}
}

func TestExtractFallsBackToLargestAmount(t *testing.T) {
	text := `Celkem: 12 100,00 Kč
Celkem: 48 400,00 Kč`

	fields := Extract(text)
	if fields.InvoicedTotal != "48400.00" {
		t.Errorf("expected largest amount 48400.00, got %q", fields.InvoicedTotal)
	}
}

func TestExtractEurCurrency(t *testing.T) {
	fields := Extract("Total: 1 500,00 EUR")

	if fields.InvoicedTotal != "1500.00" {
		t.Errorf("invoiced total: got %q", fields.InvoicedTotal)
	}
	if fields.Currency != "EUR" {
		t.Errorf("currency: got %q", fields.Currency)
	}
}

func TestExtractMdLinesSummed(t *testing.T) {
	text := `MD 10 12 000,00 21% 120 000,00
MD 8 12 000,00 21% 96 000,00`

	fields := Extract(text)
	if fields.NumberOfMDs != "18" {
		t.Errorf("MD counts should be summed across lines, got %q", fields.NumberOfMDs)
	}
	if fields.MdRate != "12000.00" {
		t.Errorf("MD rate: got %q", fields.MdRate)
	}
}

func TestExtractDefaults(t *testing.T) {
	fields := Extract("nothing recognizable here")

	if fields.ProjectName != "Imported Invoice" {
		t.Errorf("project name default: got %q", fields.ProjectName)
	}
	if fields.Currency != "CZK" {
		t.Errorf("currency default: got %q", fields.Currency)
	}
	if fields.InvoicedTotal != "" || fields.NumberOfMDs != "" || fields.Client != "" {
		t.Errorf("unmatched fields should stay blank: %+v", fields)
	}
}

func TestExtractProjectNameDefaultsToInvoiceNumber(t *testing.T) {
	fields := Extract("Faktura číslo: 123456")

	if fields.InvoiceNumber != "123456" {
		t.Errorf("invoice number: got %q", fields.InvoiceNumber)
	}
	if fields.ProjectName != "123456" {
		t.Errorf("project name should fall back to the invoice number, got %q", fields.ProjectName)
	}
}
