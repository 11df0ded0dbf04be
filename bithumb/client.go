// Package bithumb collects deposits, withdrawals and order fills from
// the Bithumb 2.0 REST API and normalizes them into ledger events.
//
// The API mirrors Upbit's surface but signs differently: HS256 instead
// of HS512, and the JWT must carry a millisecond timestamp claim.
package bithumb

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sjlee/txlog"
)

const defaultBaseURL = "https://api.bithumb.com"

var publicPrefixes = []string{
	"/v1/market", "/v1/ticker", "/v1/trades", "/v1/candles", "/v1/orderbook",
}

var authDenied = map[string]bool{
	"no_authorization":   true,
	"unauthorized":       true,
	"out_of_scope":       true,
	"jwt_verification":   true,
	"invalid_access_key": true,
	"expired_access_key": true,
}

// Client is an authenticated Bithumb REST client.
type Client struct {
	baseURL   string
	accessKey string
	secretKey string
	httpc     *http.Client
	limiter   *rate.Limiter
}

// NewClient returns a client against the public API.
func NewClient(accessKey, secretKey string) *Client {
	return NewClientWith(accessKey, secretKey, defaultBaseURL, http.DefaultClient)
}

// NewClientWith returns a client against a custom endpoint, for tests.
func NewClientWith(accessKey, secretKey, baseURL string, httpc *http.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		secretKey: secretKey,
		httpc:     httpc,
		limiter:   rate.NewLimiter(8, 8),
	}
}

func requiresAuth(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

func (c *Client) token(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
		"timestamp":  time.Now().UnixMilli(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secretKey))
}

type apiError struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// errNotFound marks a listing path the exchange does not serve.
var errNotFound = fmt.Errorf("endpoint not found")

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return txlog.Retry(ctx, 4, func() error {
		return c.do(ctx, path, params, out)
	})
}

func (c *Client) do(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	query := params.Encode()
	addr := c.baseURL + path
	if query != "" {
		addr += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if requiresAuth(path) {
		if c.accessKey == "" || c.secretKey == "" {
			return &txlog.ConfigError{Reason: "access and secret keys are required for " + path}
		}
		tok, err := c.token(query)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &txlog.TransientError{Err: err}
	}
	defer resp.Body.Close()
	c.throttle(ctx, resp.Header.Get("Remaining-Req"))
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("bithumb GET")

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &txlog.AuthError{Exchange: txlog.Bithumb, Status: resp.StatusCode, Name: e.Error.Name}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &txlog.TransientError{Status: resp.StatusCode}
	default:
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("bithumb %s: HTTP %d %s %s", path, resp.StatusCode, e.Error.Name, e.Error.Message)
	}
}

func (c *Client) throttle(ctx context.Context, header string) {
	for _, p := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || k != "sec" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n == 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		return
	}
}

func (c *Client) probe(ctx context.Context, path string) (int, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, "", err
	}
	tok, err := c.token("")
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader("{}"))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	var e apiError
	_ = json.NewDecoder(resp.Body).Decode(&e)
	return resp.StatusCode, strings.ToLower(e.Error.Name), nil
}

// Writable probes the order and withdrawal endpoints. A parameter error
// means the endpoint accepted the key, so it holds that permission.
func (c *Client) Writable(ctx context.Context) (bool, error) {
	for _, path := range []string{"/v1/orders", "/v1/withdraws/coin"} {
		status, name, err := c.probe(ctx, path)
		if err != nil {
			return false, err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden || authDenied[name] {
			continue
		}
		return true, nil
	}
	return false, nil
}
