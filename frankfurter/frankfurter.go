// Package frankfurter fetches daily USD/KRW reference rates from the
// frankfurter.dev API. The API only quotes business days, so weekend
// and holiday lookups report no quotation rather than an error.
package frankfurter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog/date"
)

const defaultBaseURL = "https://api.frankfurter.dev/v1"

// Source queries frankfurter.dev. The zero value is not usable; call New.
type Source struct {
	baseURL string
	client  *http.Client
}

// New returns a Source against the public API.
func New() *Source { return &Source{baseURL: defaultBaseURL, client: http.DefaultClient} }

// NewWith returns a Source against a custom endpoint, for tests.
func NewWith(baseURL string, client *http.Client) *Source {
	return &Source{baseURL: baseURL, client: client}
}

// payload is the shape of a range query response:
//
//	{"base":"USD","rates":{"2025-07-01":{"KRW":1352.11}, ...}}
type payload struct {
	Rates map[string]map[string]decimal.Decimal `json:"rates"`
}

// Rate returns the USD/KRW rate quoted on the given date. ok is false
// when the API has no quotation for that day.
func (s *Source) Rate(ctx context.Context, on date.Date) (decimal.Decimal, bool, error) {
	// A single-day range query: the plain /{date} endpoint silently
	// substitutes the latest prior quotation, which would hide
	// non-business days from the caller.
	addr := fmt.Sprintf("%s/%s..%s?base=USD&symbols=KRW", s.baseURL, on, on)
	var content payload
	if err := jwget(ctx, s.client, addr, &content); err != nil {
		return decimal.Zero, false, err
	}
	krw, ok := content.Rates[on.String()]["KRW"]
	return krw, ok, nil
}

// Preload batch-fetches every quoted rate in the range, keyed by date.
func (s *Source) Preload(ctx context.Context, r date.Range) (map[date.Date]decimal.Decimal, error) {
	addr := fmt.Sprintf("%s/%s..%s?base=USD&symbols=KRW", s.baseURL, r.From, r.To)
	var content payload
	if err := jwget(ctx, s.client, addr, &content); err != nil {
		return nil, err
	}
	rates := make(map[date.Date]decimal.Decimal, len(content.Rates))
	for day, quote := range content.Rates {
		on, err := date.Parse(day)
		if err != nil {
			return nil, err
		}
		if krw, ok := quote["KRW"]; ok {
			rates[on] = krw
		}
	}
	return rates, nil
}
