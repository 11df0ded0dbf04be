package lighter

import (
	"context"
	"net/url"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
)

// Pairs maps market ids to pair symbols from the orderBooks listing.
// The payload shape varies across API versions, so candidate fields are
// probed loosely instead of bound to a rigid struct.
func (c *Client) Pairs(ctx context.Context, marketID int) (map[int]string, error) {
	var raw any
	params := url.Values{}
	params.Set("market_id", strconv.Itoa(marketID))
	params.Set("filter", "all")
	if err := c.get(ctx, "orderBooks", params, &raw); err != nil {
		return nil, err
	}

	var items []any
	for _, path := range []string{"$.order_books", "$.data"} {
		if v, err := jsonpath.Get(path, raw); err == nil {
			if list, ok := v.([]any); ok && len(list) > 0 {
				items = list
				break
			}
		}
	}
	if items == nil {
		if list, ok := raw.([]any); ok {
			items = list
		} else {
			items = []any{raw}
		}
	}

	pairs := make(map[int]string)
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id, ok := intField(m, "market_id", "marketId", "id")
		if !ok {
			continue
		}
		if sym, ok := strField(m, "symbol", "pair", "name", "market", "ticker"); ok {
			pairs[id] = sym
			continue
		}
		base, bok := strField(m, "base_symbol", "base", "base_asset")
		quote, qok := strField(m, "quote_symbol", "quote", "quote_asset")
		if bok && qok {
			pairs[id] = base + "-" + quote
		}
	}
	return pairs, nil
}

func intField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func strField(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
