package upbit

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/date"
)

const pageSize = 100

// depositStates are the settled deposit states worth reporting.
var depositStates = map[string]bool{"ACCEPTED": true, "DEPOSIT_ACCEPTED": true}

// Adapter normalizes Upbit account activity into ledger events.
type Adapter struct {
	c *Client
}

// NewAdapter returns an adapter over the given client.
func NewAdapter(c *Client) *Adapter { return &Adapter{c: c} }

func (a *Adapter) Exchange() txlog.Exchange { return txlog.Upbit }

// Writable delegates to the client's permission probe.
func (a *Adapter) Writable(ctx context.Context) (bool, error) { return a.c.Writable(ctx) }

// Fetch collects deposits, withdrawals and executed orders in the range.
func (a *Adapter) Fetch(ctx context.Context, r date.Range) (txlog.FetchResult, error) {
	if err := r.Validate(); err != nil {
		return txlog.FetchResult{}, err
	}
	var res txlog.FetchResult
	prices := newPriceCache(a.c)

	deposits, err := a.cashFlows(ctx, "/v1/deposits", r, depositStates, &res.Integrity)
	if err != nil {
		return res, err
	}
	for _, f := range deposits {
		if e, ok := f.event(ctx, txlog.Upbit, txlog.Deposit, prices, &res.Integrity); ok {
			res.Events = append(res.Events, e)
		}
	}

	withdrawals, err := a.cashFlows(ctx, "/v1/withdraws", r, map[string]bool{"DONE": true}, &res.Integrity)
	if err != nil {
		return res, err
	}
	for _, f := range withdrawals {
		if e, ok := f.event(ctx, txlog.Upbit, txlog.Withdraw, prices, &res.Integrity); ok {
			res.Events = append(res.Events, e)
		}
	}

	orders, err := a.orders(ctx, r)
	if err != nil {
		return res, err
	}
	for _, o := range orders {
		if e, ok := orderEvent(txlog.Upbit, o, &res.Integrity); ok {
			res.Events = append(res.Events, e)
		}
	}
	return res, nil
}

// cashFlow is one /v1/deposits or /v1/withdraws record.
type cashFlow struct {
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	State     string          `json:"state"`
	CreatedAt string          `json:"created_at"`
	TxID      string          `json:"txid"`
}

// cashFlows paginates a deposit or withdrawal listing, newest first,
// stopping as soon as a page reaches past the start of the range.
func (a *Adapter) cashFlows(ctx context.Context, path string, r date.Range, states map[string]bool, integ *txlog.Integrity) ([]cashFlow, error) {
	var flows []cashFlow
	start := r.From.StartIn(txlog.KST)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("order_by", "desc")
		var batch []cashFlow
		if err := a.c.get(ctx, path, params, &batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		stopped := false
		for _, f := range batch {
			t, err := parseTime(f.CreatedAt)
			if err != nil {
				integ.BadTimestamps++
				continue
			}
			if t.Before(start) {
				stopped = true
				break
			}
			if !r.ContainsTime(t, txlog.KST) {
				continue // too new
			}
			if states[f.State] {
				flows = append(flows, f)
			}
		}
		if stopped || len(batch) < pageSize {
			break
		}
	}
	return flows, nil
}

// event normalizes a cash flow. Non-KRW assets are valued through the
// daily candle close of their KRW market; withdrawals are charged the
// fee on top of the moved amount.
func (f cashFlow) event(ctx context.Context, ex txlog.Exchange, typ txlog.EventType, prices *priceCache, integ *txlog.Integrity) (txlog.Event, bool) {
	t, err := parseTime(f.CreatedAt)
	if err != nil {
		integ.BadTimestamps++
		return txlog.Event{}, false
	}
	if f.Currency == "" {
		integ.MissingFields++
		return txlog.Event{}, false
	}

	qty := f.Amount
	amount := f.Amount
	if typ == txlog.Withdraw {
		qty = qty.Neg()
		amount = amount.Add(f.Fee)
	}

	e := txlog.Event{
		Time:           t,
		Exchange:       ex,
		Type:           typ,
		Currency:       f.Currency,
		Quantity:       decimal.NewNullDecimal(qty),
		NativeCurrency: "KRW",
		ExternalID:     f.TxID,
	}
	if f.Currency == "KRW" {
		e.NativeValue = amount
		e.Fee = f.Fee
	} else {
		unit := prices.krwPrice(ctx, f.Currency, date.Of(t.In(txlog.KST)))
		e.Price = decimal.NewNullDecimal(unit)
		e.NativeValue = amount.Mul(unit)
		e.Fee = f.Fee.Mul(unit)
	}
	return e, true
}

// order is one executed order record.
type order struct {
	UUID           string          `json:"uuid"`
	Market         string          `json:"market"`
	Side           string          `json:"side"`
	OrdType        string          `json:"ord_type"`
	CreatedAt      string          `json:"created_at"`
	Price          decimal.Decimal `json:"price"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	ExecutedFunds  decimal.Decimal `json:"executed_funds"`
	PaidFee        decimal.Decimal `json:"paid_fee"`
}

// orders walks /v1/orders/closed over seven-day windows, the maximum
// span the endpoint accepts, converting window bounds to UTC.
func (a *Adapter) orders(ctx context.Context, r date.Range) ([]order, error) {
	var all []order
	start := r.From.StartIn(txlog.KST)
	end := r.To.Add(1).StartIn(txlog.KST)
	if now := time.Now().In(txlog.KST); end.After(now) {
		end = now
	}
	for start.Before(end) {
		wend := start.Add(7 * 24 * time.Hour)
		if wend.After(end) {
			wend = end
		}
		params := url.Values{}
		params.Add("states[]", "done")
		params.Add("states[]", "cancel")
		params.Set("start_time", start.UTC().Format("2006-01-02T15:04:05Z"))
		params.Set("end_time", wend.UTC().Format("2006-01-02T15:04:05Z"))
		params.Set("limit", "1000")
		params.Set("order_by", "asc")

		var batch []order
		if err := a.c.get(ctx, "/v1/orders/closed", params, &batch); err != nil {
			return nil, err
		}
		for _, o := range batch {
			if o.ExecutedVolume.IsPositive() {
				all = append(all, o)
			}
		}
		start = wend
	}
	return all, nil
}

// orderEvent normalizes an executed order. Buys cost funds plus fee,
// sells net funds minus fee.
func orderEvent(ex txlog.Exchange, o order, integ *txlog.Integrity) (txlog.Event, bool) {
	t, err := parseTime(o.CreatedAt)
	if err != nil {
		integ.BadTimestamps++
		return txlog.Event{}, false
	}
	quote, coin, ok := strings.Cut(o.Market, "-")
	if !ok {
		integ.MissingFields++
		return txlog.Event{}, false
	}

	e := txlog.Event{
		Time:           t,
		Exchange:       ex,
		Pair:           o.Market,
		Currency:       coin,
		NativeCurrency: quote,
		Fee:            o.PaidFee,
		ExternalID:     o.UUID,
	}
	switch o.Side {
	case "bid":
		e.Type = txlog.Buy
		e.Quantity = decimal.NewNullDecimal(o.ExecutedVolume)
		e.NativeValue = o.ExecutedFunds.Add(o.PaidFee)
	case "ask":
		e.Type = txlog.Sell
		e.Quantity = decimal.NewNullDecimal(o.ExecutedVolume.Neg())
		e.NativeValue = o.ExecutedFunds.Sub(o.PaidFee)
	default:
		integ.UnknownTypes++
		e.Type = txlog.Other
		e.NativeValue = o.ExecutedFunds
	}
	if o.ExecutedVolume.IsPositive() {
		e.Price = decimal.NewNullDecimal(o.ExecutedFunds.Div(o.ExecutedVolume))
	}
	return e, true
}

// parseTime reads the API's created_at stamps, which usually carry a
// +09:00 offset but occasionally come bare.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, txlog.KST)
}

// priceCache values non-KRW assets through the daily candle close of
// their KRW market, one candle fetch per (currency, date).
type priceCache struct {
	c     *Client
	cache map[string]decimal.Decimal
}

func newPriceCache(c *Client) *priceCache {
	return &priceCache{c: c, cache: make(map[string]decimal.Decimal)}
}

type candle struct {
	TradePrice decimal.Decimal `json:"trade_price"`
}

// krwPrice returns the KRW close of the currency on the given date, or
// zero when no candle exists.
func (p *priceCache) krwPrice(ctx context.Context, currency string, on date.Date) decimal.Decimal {
	key := currency + "@" + on.String()
	if v, ok := p.cache[key]; ok {
		return v
	}
	params := url.Values{}
	params.Set("market", "KRW-"+currency)
	// The candle covering the date is the last one before the next day.
	params.Set("to", on.Add(1).String()+"T00:00:00")
	params.Set("count", "1")

	var candles []candle
	price := decimal.Zero
	if err := p.c.get(ctx, "/v1/candles/days", params, &candles); err == nil && len(candles) > 0 {
		price = candles[0].TradePrice
	}
	p.cache[key] = price
	return price
}
