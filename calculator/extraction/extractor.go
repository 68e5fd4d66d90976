// Package extraction turns raw invoice text into draft calculator fields.
// The heuristics target Czech invoices (labels like "bez DPH", "Součet",
// "Datum splatnosti") with English fallbacks. Extraction is best effort: a
// field that cannot be located is left blank for the user to fill in.
package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"provision_platform/calculator/schema"
)

// Fields is the draft record produced by extraction. Field names form the
// wire contract with the ML sidecar and the calculator form.
type Fields struct {
	ProjectName    string `json:"projectName"`
	InvoicedTotal  string `json:"invoicedTotal"`
	Currency       string `json:"currency"`
	ExchangeRate   string `json:"exchangeRate"`
	InvoiceDate    string `json:"invoiceDate"`
	InvoiceDueDate string `json:"invoiceDueDate"`
	InvoiceNumber  string `json:"invoiceNumber"`
	NumberOfMDs    string `json:"numberOfMDs"`
	MdRate         string `json:"mdRate"`
	Client         string `json:"client"`
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)číslo\s*:?\s*([0-9]+)`),
	regexp.MustCompile(`(?i)invoice\s*(?:number|no|#)?\s*:?\s*([a-z0-9\-]+)`),
	regexp.MustCompile(`(?i)inv\s*(?:number|no|#)?\s*:?\s*([a-z0-9\-]+)`),
	regexp.MustCompile(`(?i)#\s*([a-z0-9\-]+)`),
}

var projectNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:project|description|service|item|předmět|název)\s*:?\s*([^\n]{5,100})`),
	regexp.MustCompile(`(?i)účel\s*:?\s*([^\n]{5,100})`),
}

// Amount patterns in priority order: the amount without VAT ("bez DPH",
// "Součet", "Základ DPH") wins over the payable total, which includes VAT
// and is only a fallback the user will need to correct.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bez\s+dph\s*[:\s]*([0-9\s]+[.,][0-9]+)`),
	regexp.MustCompile(`(?i)součet\s*[:\s]*([0-9\s]+[.,][0-9]+)`),
	regexp.MustCompile(`(?i)základ\s+dph\s*[:\s]*([0-9\s]+[.,][0-9]+)`),
	regexp.MustCompile(`(?i)celkem\s+k\s+úhradě\s*\([^)]*\)\s*([0-9\s]+[.,][0-9]+)`),
	regexp.MustCompile(`(?i)celkem\s+k\s+úhradě\s*:?\s*([0-9\s,]+[.,]?[0-9]+)`),
	regexp.MustCompile(`(?i)(?:celkem|celková\s+částka|suma|částka)\s*:?\s*([0-9\s,]+[.,]?[0-9]+)\s*(?:kč|czk)`),
	regexp.MustCompile(`(?i)(?:total|amount|sum|subtotal|due|invoice\s+total)\s*:?\s*([0-9\s,]+[.,]?[0-9]+)\s*(?:kč|czk|eur|€)`),
}

var invoiceDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)datum\s+vystavení\s*:?\s*(\d{1,2}\.\d{1,2}\.\d{2,4})`),
	regexp.MustCompile(`(?i)(?:invoice\s*date|date\s*of\s*invoice|issued)\s*:?\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
	regexp.MustCompile(`(?i)datum\s*:?\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
}

var dueDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)datum\s+splatnosti\s*:?\s*(\d{1,2}\.\d{1,2}\.\d{2,4})`),
	regexp.MustCompile(`(?i)(?:due\s*date|payment\s*due|pay\s*by|splatnost)\s*:?\s*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
}

// Invoice lines look like "MD 18 15 000,00 21% 270 000,00": the unit, the
// MD count, the per-MD rate, then VAT and line total.
var mdLinePattern = regexp.MustCompile(`(?i)MD\s+([0-9]+)\s+([0-9\s,]+[.,][0-9]+)`)

var (
	mdCountFallbackPattern = regexp.MustCompile(`(?i)počet\s+mj\s*:?\s*([0-9]+)`)
	mdRateFallbackPattern  = regexp.MustCompile(`(?i)cena\s+mj\s*:?\s*([0-9\s,]+[.,][0-9]+)`)
)

// The buyer block starts with "Odběratel:"; the company name is usually a
// few lines below it, recognizable by its legal suffix.
var clientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)odběratel\s*:?\s*[^\n]*\n[^\n]*\n[^\n]*\n([^\n]+(?:s\.r\.o\.|s\.r\.o|a\.s\.|spol\.|spol|Ltd\.|Inc\.|LLC|GmbH|Corp\.))`),
	regexp.MustCompile(`(?i)odběratel\s*:?\s*[^\n]*\n[^\n]*\n([^\n]+(?:s\.r\.o\.|s\.r\.o|a\.s\.|spol\.))`),
	regexp.MustCompile(`(?i)odběratel\s*:?\s*[^\n]*\n([^\n]+(?:s\.r\.o\.|s\.r\.o|a\.s\.|spol\.))`),
	regexp.MustCompile(`(?i)odběratel\s*:?\s*([^\n]+(?:s\.r\.o\.|s\.r\.o|a\.s\.|spol\.))`),
	regexp.MustCompile(`(?i)buyer\s*:?\s*([^\n]+(?:Ltd\.|Inc\.|LLC|GmbH|Corp\.))`),
	regexp.MustCompile(`(?i)client\s*:?\s*([^\n]+)`),
}

var clientIcoPattern = regexp.MustCompile(`\s+IČO:\s*\d+`)

// normalizeAmount converts Czech formatting ("598 950,00") into a plain
// decimal string ("598950.00"). When several dots remain, only the last one
// is kept as the decimal separator.
func normalizeAmount(raw string) string {
	amount := strings.TrimSpace(raw)
	amount = strings.ReplaceAll(amount, " ", "")
	amount = strings.ReplaceAll(amount, "\u00a0", "")
	amount = strings.ReplaceAll(amount, ",", ".")

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		amount = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}
	return amount
}

type amountCandidate struct {
	amount   string
	value    float64
	currency string
}

func matchCurrency(matchedText string) string {
	lower := strings.ToLower(matchedText)
	if strings.Contains(lower, "eur") || strings.Contains(matchedText, "€") {
		return schema.CurrencyEUR
	}
	return schema.CurrencyCZK
}

func extractAmount(text string, out *Fields) {
	var candidates []amountCandidate

	for _, pattern := range amountPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			amount := normalizeAmount(match[1])
			value, err := strconv.ParseFloat(amount, 64)
			if err != nil {
				continue
			}
			if value <= 100 || value >= 100000000 {
				continue
			}

			candidates = append(candidates, amountCandidate{
				amount:   amount,
				value:    value,
				currency: matchCurrency(match[0]),
			})

			lower := strings.ToLower(match[0])
			baseLabel := (strings.Contains(lower, "bez") && strings.Contains(lower, "dph")) ||
				strings.Contains(lower, "součet") || strings.Contains(lower, "základ")
			if baseLabel {
				out.InvoicedTotal = amount
				out.Currency = matchCurrency(match[0])
				return
			}
		}
	}

	// No labeled base amount found, fall back to the largest candidate.
	if len(candidates) > 0 {
		largest := candidates[0]
		for _, c := range candidates[1:] {
			if c.value > largest.value {
				largest = c
			}
		}
		out.InvoicedTotal = largest.amount
		out.Currency = largest.currency
	}
}

func extractMdLines(text string, out *Fields) {
	totalMds := 0
	var rates []string

	for _, match := range mdLinePattern.FindAllStringSubmatch(text, -1) {
		count, err := strconv.Atoi(match[1])
		if err == nil && count > 0 && count < 1000 {
			totalMds += count
		}

		rate := normalizeAmount(match[2])
		value, err := strconv.ParseFloat(rate, 64)
		if err == nil && value > 100 && value < 100000 {
			rates = append(rates, rate)
		}
	}

	if totalMds > 0 {
		out.NumberOfMDs = strconv.Itoa(totalMds)
	}
	// Rates should all agree across lines, take the first.
	if len(rates) > 0 {
		out.MdRate = rates[0]
	}

	if out.NumberOfMDs == "" {
		if match := mdCountFallbackPattern.FindStringSubmatch(text); match != nil {
			out.NumberOfMDs = match[1]
		}
	}

	if out.MdRate == "" {
		if match := mdRateFallbackPattern.FindStringSubmatch(text); match != nil {
			rate := normalizeAmount(match[1])
			value, err := strconv.ParseFloat(rate, 64)
			if err == nil && value > 100 && value < 100000 {
				out.MdRate = rate
			}
		}
	}
}

func extractClient(text string, out *Fields) {
	for _, pattern := range clientPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		client := strings.TrimSpace(match[1])
		client = clientIcoPattern.ReplaceAllString(client, "")
		client = strings.TrimLeftFunc(client, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		client = strings.TrimSpace(client)

		if utf8.RuneCountInString(client) > 3 && utf8.RuneCountInString(client) < 200 {
			out.Client = client
			return
		}
	}
}

// Extract scans invoice text for calculator form fields.
func Extract(text string) Fields {
	out := Fields{Currency: schema.CurrencyCZK}

	for _, pattern := range invoiceNumberPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			out.InvoiceNumber = strings.TrimSpace(match[1])
			break
		}
	}

	for _, pattern := range projectNamePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			candidate := strings.TrimSpace(match[1])
			length := utf8.RuneCountInString(candidate)
			if length > 5 && length < 100 {
				out.ProjectName = candidate
				break
			}
		}
	}

	extractAmount(text, &out)

	for _, pattern := range invoiceDatePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			out.InvoiceDate = match[1]
			break
		}
	}

	for _, pattern := range dueDatePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			out.InvoiceDueDate = match[1]
			break
		}
	}

	extractMdLines(text, &out)
	extractClient(text, &out)

	if out.ProjectName == "" {
		if out.InvoiceNumber != "" {
			out.ProjectName = out.InvoiceNumber
		} else {
			out.ProjectName = "Imported Invoice"
		}
	}

	return out
}
