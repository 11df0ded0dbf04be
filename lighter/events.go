package lighter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/date"
	"github.com/sjlee/txlog/etherscan"
)

const (
	maxPages  = 50
	pageLimit = 100
)

// Adapter normalizes zkLighter account activity into ledger events.
type Adapter struct {
	c         *Client
	marketID  int
	l1Address string
	eth       *etherscan.Client // optional on-chain deposit fallback
}

// NewAdapter returns an adapter over the given client. l1Address may be
// empty; it is then discovered from the account endpoint when needed.
// eth, when non-nil, serves deposits from the chain if the history
// endpoint rejects the credentials.
func NewAdapter(c *Client, marketID int, l1Address string, eth *etherscan.Client) *Adapter {
	return &Adapter{c: c, marketID: marketID, l1Address: l1Address, eth: eth}
}

func (a *Adapter) Exchange() txlog.Exchange { return txlog.Lighter }

// Writable reports whether the credential could move funds: anything
// but a verified read-only token.
func (a *Adapter) Writable(ctx context.Context) (bool, error) {
	if !a.c.readOnly() {
		return true, nil
	}
	params := url.Values{}
	params.Set("by", "index")
	params.Set("value", strconv.Itoa(a.c.account))
	if err := a.c.get(ctx, "account", params, nil); err != nil {
		return false, err
	}
	return false, nil
}

// Fetch collects trades (including liquidations), withdrawals,
// transfers and deposits in the range.
func (a *Adapter) Fetch(ctx context.Context, r date.Range) (txlog.FetchResult, error) {
	if err := r.Validate(); err != nil {
		return txlog.FetchResult{}, err
	}
	var res txlog.FetchResult

	pairs, err := a.c.Pairs(ctx, a.marketID)
	if err != nil {
		return res, fmt.Errorf("market metadata: %w", err)
	}

	trades, err := a.trades(ctx, r)
	if err != nil {
		return res, fmt.Errorf("trades: %w", err)
	}
	for _, t := range trades {
		if e, ok := a.tradeEvent(t, pairs, &res.Integrity); ok && r.ContainsTime(e.Time, txlog.KST) {
			res.Events = append(res.Events, e)
		}
	}

	withdraws, err := a.history(ctx, "withdraw/history", url.Values{"filter": {"all"}})
	if err != nil {
		return res, fmt.Errorf("withdraw history: %w", err)
	}
	a.appendHistory(&res, withdraws, txlog.Withdraw, r)

	transfers, err := a.history(ctx, "transfer/history", nil)
	if err != nil {
		return res, fmt.Errorf("transfer history: %w", err)
	}
	a.appendHistory(&res, transfers, txlog.Transfer, r)

	if err := a.deposits(ctx, r, &res); err != nil {
		return res, err
	}
	return res, nil
}

// deposits needs the L1 address; when the history endpoint rejects the
// credentials the bridge transactions are read from the chain instead.
func (a *Adapter) deposits(ctx context.Context, r date.Range, res *txlog.FetchResult) error {
	l1 := a.l1Address
	if l1 == "" {
		l1 = a.discoverL1(ctx)
	}
	if l1 == "" {
		log.Warn().Msg("no L1 address available, deposit history skipped")
		return nil
	}
	deps, err := a.history(ctx, "deposit/history", url.Values{"l1_address": {l1}, "filter": {"all"}})
	if err == nil {
		a.appendHistory(res, deps, txlog.Deposit, r)
		return nil
	}
	var authErr *txlog.AuthError
	if !errors.As(err, &authErr) || a.eth == nil {
		return fmt.Errorf("deposit history: %w", err)
	}
	log.Warn().Msg("deposit history rejected the credentials, reading bridge transactions on-chain")
	transfers, err := a.eth.BridgeTransfers(ctx, l1, pageLimit)
	if err != nil {
		return fmt.Errorf("bridge transactions: %w", err)
	}
	for _, t := range transfers {
		if !r.ContainsTime(t.Time, txlog.KST) {
			continue
		}
		e := txlog.Event{
			Time:           t.Time,
			Exchange:       txlog.Lighter,
			Type:           t.Type,
			NativeCurrency: "USD",
			ExternalID:     t.Hash,
		}
		if t.Wei.IsPositive() {
			e.Currency = "ETH"
			qty := t.Wei.Shift(-18)
			if t.Type == txlog.Withdraw {
				qty = qty.Neg()
			}
			e.Quantity = decimal.NewNullDecimal(qty)
		}
		res.Events = append(res.Events, e)
	}
	return nil
}

// discoverL1 asks the account endpoint for the owner address. The field
// name varies, so candidates are probed.
func (a *Adapter) discoverL1(ctx context.Context) string {
	var raw any
	params := url.Values{}
	params.Set("by", "index")
	params.Set("value", strconv.Itoa(a.c.account))
	if err := a.c.get(ctx, "account", params, &raw); err != nil {
		return ""
	}
	candidates := []string{
		"$.l1_address", "$.account.l1_address", "$.accounts[0].l1_address",
		"$.data.l1_address", "$.account.owner", "$.accounts[0].owner",
	}
	for _, path := range candidates {
		if v, err := jsonpath.Get(path, raw); err == nil {
			if s, ok := v.(string); ok && strings.HasPrefix(s, "0x") && len(s) >= 10 {
				return s
			}
		}
	}
	return ""
}

// trade is one /api/v1/trades record. Fees come as basis points on the
// maker/taker legs unless an absolute fee is reported.
type trade struct {
	Type              string          `json:"type"`
	TradeID           int64           `json:"trade_id"`
	TxHash            string          `json:"tx_hash"`
	MarketID          int             `json:"market_id"`
	Timestamp         int64           `json:"timestamp"` // ms
	Price             decimal.Decimal `json:"price"`
	Size              decimal.Decimal `json:"size"`
	USDAmount         decimal.Decimal `json:"usd_amount"`
	BidAccountID      int             `json:"bid_account_id"`
	AskAccountID      int             `json:"ask_account_id"`
	TakerAccountIndex int             `json:"taker_account_index"`
	MakerAccountIndex int             `json:"maker_account_index"`
	TakerFee          decimal.Decimal `json:"taker_fee"`
	MakerFee          decimal.Decimal `json:"maker_fee"`
	Fee               decimal.Decimal `json:"fee"`
}

type tradesPage struct {
	Trades     []trade         `json:"trades"`
	NextCursor string          `json:"next_cursor"`
	Cursor     json.RawMessage `json:"cursor"`
}

// trades pages newest first and stops once a page falls fully before
// the range.
func (a *Adapter) trades(ctx context.Context, r date.Range) ([]trade, error) {
	start := r.From.StartIn(txlog.KST)
	var all []trade
	cursor := ""
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("sort_by", "timestamp")
		params.Set("sort_dir", "desc")
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("account_index", strconv.Itoa(a.c.account))
		params.Set("market_id", strconv.Itoa(a.marketID))
		params.Set("type", "all")
		params.Set("role", "all")
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp tradesPage
		if err := a.c.get(ctx, "trades", params, &resp); err != nil {
			return nil, err
		}
		if len(resp.Trades) == 0 {
			break
		}
		all = append(all, resp.Trades...)
		last := resp.Trades[len(resp.Trades)-1]
		if time.UnixMilli(last.Timestamp).Before(start) {
			break
		}
		next := nextCursor(resp.NextCursor, resp.Cursor)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return all, nil
}

func (a *Adapter) tradeEvent(t trade, pairs map[int]string, integ *txlog.Integrity) (txlog.Event, bool) {
	if t.Timestamp <= 0 {
		integ.BadTimestamps++
		return txlog.Event{}, false
	}
	pair := pairs[t.MarketID]
	if pair == "" {
		pair = fmt.Sprintf("market_%d", t.MarketID)
	}
	base, _, _ := strings.Cut(pair, "-")

	id := t.TxHash
	if t.TradeID != 0 {
		id = strconv.FormatInt(t.TradeID, 10)
	}
	e := txlog.Event{
		Time:           time.UnixMilli(t.Timestamp).UTC(),
		Exchange:       txlog.Lighter,
		Pair:           pair,
		Currency:       base,
		Price:          decimal.NewNullDecimal(t.Price),
		NativeValue:    t.USDAmount,
		NativeCurrency: "USD",
		Fee:            a.tradeFee(t),
		ExternalID:     id,
	}
	switch {
	case t.Type == "liquidation":
		e.Type = txlog.Liquidation
		e.Quantity = decimal.NewNullDecimal(t.Size.Neg())
	case t.BidAccountID == a.c.account:
		e.Type = txlog.Buy
		e.Quantity = decimal.NewNullDecimal(t.Size)
	case t.AskAccountID == a.c.account:
		e.Type = txlog.Sell
		e.Quantity = decimal.NewNullDecimal(t.Size.Neg())
	default:
		integ.UnknownTypes++
		e.Type = txlog.Other
	}
	return e, true
}

// tradeFee returns the USD fee: the absolute fee when reported, else
// the account's maker or taker bps applied to the notional.
func (a *Adapter) tradeFee(t trade) decimal.Decimal {
	if !t.Fee.IsZero() {
		return t.Fee.Abs()
	}
	var bps decimal.Decimal
	switch a.c.account {
	case t.TakerAccountIndex:
		bps = t.TakerFee
	case t.MakerAccountIndex:
		bps = t.MakerFee
	default:
		bps = t.TakerFee
	}
	if bps.IsZero() {
		return decimal.Zero
	}
	notional := t.Size.Mul(t.Price).Abs()
	if notional.IsZero() {
		notional = t.USDAmount.Abs()
	}
	return notional.Mul(bps).Div(decimal.NewFromInt(10_000))
}

// history is one deposit, withdraw or transfer record. Field names vary
// across the endpoints, so every known spelling is bound and resolved
// in order.
type history struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Time      json.RawMessage `json:"time"`
	CreatedAt json.RawMessage `json:"created_at"`
	Asset     string          `json:"asset"`
	Token     string          `json:"token"`
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	USDAmount decimal.Decimal `json:"usd_amount"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
	Fee       decimal.Decimal `json:"fee"`
	USDCFee   decimal.Decimal `json:"usdc_fee"`
	ID        json.RawMessage `json:"id"`
	TxHash    string          `json:"tx_hash"`
}

type historyPage struct {
	Transfers   []history       `json:"transfers"`
	Withdraws   []history       `json:"withdraws"`
	Withdrawals []history       `json:"withdrawals"`
	Deposits    []history       `json:"deposits"`
	Data        []history       `json:"data"`
	Items       []history       `json:"items"`
	Results     []history       `json:"results"`
	NextCursor  string          `json:"next_cursor"`
	Cursor      json.RawMessage `json:"cursor"`
}

func (p historyPage) items() []history {
	for _, l := range [][]history{p.Transfers, p.Withdraws, p.Withdrawals, p.Deposits, p.Data, p.Items, p.Results} {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func nextCursor(next string, raw json.RawMessage) string {
	if next != "" {
		return next
	}
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Next       string `json:"next"`
		NextCursor string `json:"next_cursor"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Next != "" {
			return obj.Next
		}
		return obj.NextCursor
	}
	return ""
}

func (a *Adapter) history(ctx context.Context, path string, extra url.Values) ([]history, error) {
	var all []history
	cursor := ""
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		for k, vs := range extra {
			params[k] = vs
		}
		params.Set("account_index", strconv.Itoa(a.c.account))
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp historyPage
		if err := a.c.get(ctx, path, params, &resp); err != nil {
			return nil, err
		}
		batch := resp.items()
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		next := nextCursor(resp.NextCursor, resp.Cursor)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return all, nil
}

func (a *Adapter) appendHistory(res *txlog.FetchResult, items []history, typ txlog.EventType, r date.Range) {
	for _, h := range items {
		e, ok := h.event(typ, &res.Integrity)
		if ok && r.ContainsTime(e.Time, txlog.KST) {
			res.Events = append(res.Events, e)
		}
	}
}

func (h history) event(typ txlog.EventType, integ *txlog.Integrity) (txlog.Event, bool) {
	t, ok := h.instant()
	if !ok {
		integ.BadTimestamps++
		return txlog.Event{}, false
	}
	asset := h.Asset
	for _, s := range []string{h.Token, h.Symbol, h.Currency} {
		if asset != "" {
			break
		}
		asset = s
	}

	usd := h.USDAmount
	for _, v := range []decimal.Decimal{h.Amount, h.Value} {
		if !usd.IsZero() {
			break
		}
		usd = v
	}
	fee := h.Fee
	if fee.IsZero() {
		fee = h.USDCFee
	}
	id := h.TxHash
	if id == "" {
		id = strings.Trim(string(h.ID), `"`)
	}
	return txlog.Event{
		Time:           t,
		Exchange:       txlog.Lighter,
		Type:           typ,
		Currency:       asset,
		NativeValue:    usd,
		NativeCurrency: "USD",
		Fee:            fee,
		ExternalID:     id,
	}, true
}

// instant resolves the record's timestamp. Sources disagree on the
// encoding, so millisecond and second epochs are accepted, quoted or
// not, plus RFC3339 strings.
func (h history) instant() (time.Time, bool) {
	for _, raw := range []json.RawMessage{h.Timestamp, h.Time, h.CreatedAt} {
		s := strings.Trim(string(raw), `"`)
		if s == "" || s == "null" {
			continue
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			if v > 1e12 {
				return time.UnixMilli(int64(v)).UTC(), true
			}
			if v > 0 {
				return time.Unix(int64(v), 0).UTC(), true
			}
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
