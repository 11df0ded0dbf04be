package bithumb

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/date"
)

const pageSize = 100

var depositStates = map[string]bool{"ACCEPTED": true, "DEPOSIT_ACCEPTED": true}

// Adapter normalizes Bithumb account activity into ledger events.
type Adapter struct {
	c *Client
}

// NewAdapter returns an adapter over the given client.
func NewAdapter(c *Client) *Adapter { return &Adapter{c: c} }

func (a *Adapter) Exchange() txlog.Exchange { return txlog.Bithumb }

// Writable delegates to the client's permission probe.
func (a *Adapter) Writable(ctx context.Context) (bool, error) { return a.c.Writable(ctx) }

// Fetch collects deposits, withdrawals and executed orders in the
// range. KRW cash movements live on dedicated listing paths, so both
// the krw and the generic path are walked; paths the API answers 404
// for are skipped.
func (a *Adapter) Fetch(ctx context.Context, r date.Range) (txlog.FetchResult, error) {
	if err := r.Validate(); err != nil {
		return txlog.FetchResult{}, err
	}
	var res txlog.FetchResult
	prices := newPriceCache(a.c)

	for _, path := range []string{"/v1/deposits/krw", "/v1/deposits"} {
		flows, err := a.cashFlows(ctx, path, r, depositStates, &res.Integrity)
		if errors.Is(err, errNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		for _, f := range flows {
			if e, ok := f.event(ctx, txlog.Deposit, prices, &res.Integrity); ok {
				res.Events = append(res.Events, e)
			}
		}
	}

	for _, path := range []string{"/v1/withdraws/krw", "/v1/withdraws"} {
		flows, err := a.cashFlows(ctx, path, r, map[string]bool{"DONE": true}, &res.Integrity)
		if errors.Is(err, errNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		for _, f := range flows {
			if e, ok := f.event(ctx, txlog.Withdraw, prices, &res.Integrity); ok {
				res.Events = append(res.Events, e)
			}
		}
	}

	orders, err := a.orders(ctx, r)
	if err != nil {
		return res, err
	}
	for _, o := range orders {
		if e, ok := o.event(&res.Integrity); ok {
			res.Events = append(res.Events, e)
		}
	}
	return res, nil
}

type cashFlow struct {
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	State     string          `json:"state"`
	CreatedAt string          `json:"created_at"`
	TxID      string          `json:"txid"`
}

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
				continue
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

func (f cashFlow) event(ctx context.Context, typ txlog.EventType, prices *priceCache, integ *txlog.Integrity) (txlog.Event, bool) {
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
		Exchange:       txlog.Bithumb,
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

type order struct {
	UUID           string          `json:"uuid"`
	Market         string          `json:"market"`
	Side           string          `json:"side"`
	OrdType        string          `json:"ord_type"`
	CreatedAt      string          `json:"created_at"`
	Price          decimal.Decimal `json:"price"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	PaidFee        decimal.Decimal `json:"paid_fee"`

	// executedFunds is derived: the listing endpoint does not report it.
	executedFunds decimal.Decimal
}

// orderDetail is the /v1/order response, used to sum per-fill funds for
// market orders.
type orderDetail struct {
	Trades []struct {
		Funds decimal.Decimal `json:"funds"`
	} `json:"trades"`
}

// orders paginates /v1/orders ascending and stops once past the end of
// the range, then backfills executed funds: limit orders from price
// times volume, market orders from the per-fill breakdown.
func (a *Adapter) orders(ctx context.Context, r date.Range) ([]order, error) {
	var in []order
	start := r.From.StartIn(txlog.KST)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Add("states[]", "done")
		params.Add("states[]", "cancel")
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("order_by", "asc")

		var batch []order
		if err := a.c.get(ctx, "/v1/orders", params, &batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		pastEnd := false
		for _, o := range batch {
			t, err := parseTime(o.CreatedAt)
			if err != nil {
				continue
			}
			if t.Before(start) {
				continue
			}
			if !r.ContainsTime(t, txlog.KST) {
				pastEnd = true
				break
			}
			if o.ExecutedVolume.IsPositive() {
				in = append(in, o)
			}
		}
		if pastEnd || len(batch) < pageSize {
			break
		}
	}

	for i := range in {
		o := &in[i]
		if o.OrdType == "limit" {
			o.executedFunds = o.Price.Mul(o.ExecutedVolume)
			continue
		}
		var detail orderDetail
		if err := a.c.get(ctx, "/v1/order", url.Values{"uuid": {o.UUID}}, &detail); err != nil || len(detail.Trades) == 0 {
			if o.OrdType == "price" {
				o.executedFunds = o.Price
			} else {
				o.executedFunds = o.Price.Mul(o.ExecutedVolume)
			}
			continue
		}
		funds := decimal.Zero
		for _, tr := range detail.Trades {
			funds = funds.Add(tr.Funds)
		}
		o.executedFunds = funds
	}
	return in, nil
}

func (o order) event(integ *txlog.Integrity) (txlog.Event, bool) {
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
		Exchange:       txlog.Bithumb,
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
		e.NativeValue = o.executedFunds.Add(o.PaidFee)
	case "ask":
		e.Type = txlog.Sell
		e.Quantity = decimal.NewNullDecimal(o.ExecutedVolume.Neg())
		e.NativeValue = o.executedFunds.Sub(o.PaidFee)
	default:
		integ.UnknownTypes++
		e.Type = txlog.Other
		e.NativeValue = o.executedFunds
	}
	if o.ExecutedVolume.IsPositive() {
		e.Price = decimal.NewNullDecimal(o.executedFunds.Div(o.ExecutedVolume))
	}
	return e, true
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, txlog.KST)
}

// priceCache values non-KRW assets through the daily candle close of
// their KRW market.
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

func (p *priceCache) krwPrice(ctx context.Context, currency string, on date.Date) decimal.Decimal {
	key := currency + "@" + on.String()
	if v, ok := p.cache[key]; ok {
		return v
	}
	params := url.Values{}
	params.Set("market", "KRW-"+currency)
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
