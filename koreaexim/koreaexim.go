// Package koreaexim fetches official daily USD/KRW rates from the
// Export-Import Bank of Korea open API (AP01 exchange rate dataset).
// Non-business days return an empty quote list, reported as no
// quotation.
package koreaexim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog/date"
)

const defaultBaseURL = "https://www.koreaexim.go.kr/site/program/financial/exchangeJSON"

// Source queries the koreaexim open API. An API key is mandatory.
type Source struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New returns a Source against the public API.
func New(apiKey string) *Source {
	return &Source{apiKey: apiKey, baseURL: defaultBaseURL, client: http.DefaultClient}
}

// NewWith returns a Source against a custom endpoint, for tests.
func NewWith(apiKey, baseURL string, client *http.Client) *Source {
	return &Source{apiKey: apiKey, baseURL: baseURL, client: client}
}

// quote is one currency entry of the AP01 dataset. Amounts carry
// thousands separators, e.g. "1,302.40".
type quote struct {
	CurUnit  string `json:"cur_unit"`
	CurCode  string `json:"cur_code"`
	DealBasR string `json:"deal_bas_r"` // 매매기준율, the trading reference rate
	TTB      string `json:"ttb"`
	TTS      string `json:"tts"`
}

// Rate returns the USD reference rate quoted on the given date. ok is
// false when the dataset has no USD quotation for that day.
func (s *Source) Rate(ctx context.Context, on date.Date) (decimal.Decimal, bool, error) {
	q := url.Values{}
	q.Set("authkey", s.apiKey)
	q.Set("searchdate", on.Digits())
	q.Set("data", "AP01")
	addr := s.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("cannot http GET %v: %v", resp.Request.URL.Host, resp.Status)
	}

	var quotes []quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return decimal.Zero, false, err
	}
	for _, q := range quotes {
		if !strings.Contains(strings.ToUpper(q.CurUnit), "USD") && q.CurCode != "840" {
			continue
		}
		for _, raw := range []string{q.DealBasR, q.TTB, q.TTS} {
			raw = strings.ReplaceAll(raw, ",", "")
			if raw == "" {
				continue
			}
			rate, err := decimal.NewFromString(raw)
			if err == nil && rate.IsPositive() {
				return rate, true, nil
			}
		}
	}
	return decimal.Zero, false, nil
}
