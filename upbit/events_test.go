package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/date"
)

const (
	testAccess = "AK"
	testSecret = "SK"
)

// verifyAuth checks the signed request token: HS512, the access key
// claim, and a query hash matching the query actually sent.
func verifyAuth(t *testing.T, r *http.Request) {
	t.Helper()
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	require.NotEmpty(t, raw, "missing Authorization on %s", r.URL.Path)

	tok, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		require.Equal(t, "HS512", tok.Method.Alg())
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, testAccess, claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	if q := r.URL.RawQuery; q != "" {
		sum := sha512.Sum512([]byte(q))
		assert.Equal(t, hex.EncodeToString(sum[:]), claims["query_hash"])
		assert.Equal(t, "SHA512", claims["query_hash_alg"])
	}
}

func reply(w http.ResponseWriter, v any) { _ = json.NewEncoder(w).Encode(v) }

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deposits", func(w http.ResponseWriter, r *http.Request) {
		verifyAuth(t, r)
		reply(w, []map[string]any{
			{"currency": "KRW", "amount": "50000", "fee": "0", "state": "ACCEPTED",
				"created_at": "2025-03-02T10:00:00+09:00", "txid": "d1"},
			{"currency": "KRW", "amount": "1", "fee": "0", "state": "REJECTED",
				"created_at": "2025-03-02T09:00:00+09:00", "txid": "d-rejected"},
			// Older than the range start: pagination must stop here.
			{"currency": "KRW", "amount": "99999", "fee": "0", "state": "ACCEPTED",
				"created_at": "2025-02-20T10:00:00+09:00", "txid": "d-old"},
		})
	})
	mux.HandleFunc("/v1/withdraws", func(w http.ResponseWriter, r *http.Request) {
		verifyAuth(t, r)
		reply(w, []map[string]any{
			{"currency": "BTC", "amount": "0.1", "fee": "0.0005", "state": "DONE",
				"created_at": "2025-03-02T11:00:00+09:00", "txid": "w1"},
		})
	})
	mux.HandleFunc("/v1/orders/closed", func(w http.ResponseWriter, r *http.Request) {
		verifyAuth(t, r)
		assert.Equal(t, []string{"done", "cancel"}, r.URL.Query()["states[]"])
		assert.Equal(t, "2025-02-28T15:00:00Z", r.URL.Query().Get("start_time"))
		reply(w, []map[string]any{
			{"uuid": "o1", "market": "KRW-BTC", "side": "bid", "executed_volume": "0.2",
				"executed_funds": "20000000", "paid_fee": "10000",
				"created_at": "2025-03-02T12:00:00+09:00"},
			{"uuid": "o-unfilled", "market": "KRW-BTC", "side": "bid", "executed_volume": "0",
				"created_at": "2025-03-02T12:30:00+09:00"},
		})
	})
	mux.HandleFunc("/v1/candles/days", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "public endpoint signed")
		assert.Equal(t, "KRW-BTC", r.URL.Query().Get("market"))
		assert.Equal(t, "2025-03-03T00:00:00", r.URL.Query().Get("to"))
		reply(w, []map[string]any{{"trade_price": 100000000}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAdapter(NewClientWith(testAccess, testSecret, srv.URL, srv.Client()))
	r := date.NewRange(date.MustParse("2025-03-01"), date.MustParse("2025-03-03"))
	res, err := a.Fetch(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.True(t, res.Integrity.Zero())

	byID := make(map[string]txlog.Event)
	for _, e := range res.Events {
		byID[e.ExternalID] = e
	}

	dep := byID["d1"]
	assert.Equal(t, txlog.Deposit, dep.Type)
	assert.Equal(t, "KRW", dep.NativeCurrency)
	assert.True(t, dep.NativeValue.Equal(decimal.RequireFromString("50000")))

	// Withdrawal: negative quantity, fee charged on top, BTC valued
	// through the daily candle close.
	wd := byID["w1"]
	assert.Equal(t, txlog.Withdraw, wd.Type)
	assert.True(t, wd.Quantity.Decimal.Equal(decimal.RequireFromString("-0.1")))
	assert.True(t, wd.NativeValue.Equal(decimal.RequireFromString("10050000")), "got %s", wd.NativeValue)
	assert.True(t, wd.Fee.Equal(decimal.RequireFromString("50000")))

	// Buy order costs executed funds plus the fee.
	ord := byID["o1"]
	assert.Equal(t, txlog.Buy, ord.Type)
	assert.Equal(t, "KRW-BTC", ord.Pair)
	assert.Equal(t, "BTC", ord.Currency)
	assert.True(t, ord.NativeValue.Equal(decimal.RequireFromString("20010000")))
	assert.True(t, ord.Price.Decimal.Equal(decimal.RequireFromString("100000000")))
}

func TestFetch_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		reply(w, map[string]any{"error": map[string]any{"name": "invalid_access_key"}})
	}))
	defer srv.Close()

	a := NewAdapter(NewClientWith(testAccess, testSecret, srv.URL, srv.Client()))
	r := date.NewRange(date.MustParse("2025-03-01"), date.MustParse("2025-03-03"))
	_, err := a.Fetch(context.Background(), r)

	var authErr *txlog.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, txlog.Upbit, authErr.Exchange)
	assert.Equal(t, "invalid_access_key", authErr.Name)
}

func TestFetch_MissingKeys(t *testing.T) {
	a := NewAdapter(NewClientWith("", "", "http://127.0.0.1:0", http.DefaultClient))
	r := date.NewRange(date.MustParse("2025-03-01"), date.MustParse("2025-03-03"))
	_, err := a.Fetch(context.Background(), r)

	var cfgErr *txlog.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWritable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		want   bool
	}{
		{"scoped key is safe", 401,
			map[string]any{"error": map[string]any{"name": "out_of_scope"}}, false},
		{"parameter error means permission held", 400,
			map[string]any{"error": map[string]any{"name": "validation_error"}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				w.WriteHeader(tc.status)
				reply(w, tc.body)
			}))
			defer srv.Close()

			c := NewClientWith(testAccess, testSecret, srv.URL, srv.Client())
			writable, err := c.Writable(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, writable)
		})
	}
}
