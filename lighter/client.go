// Package lighter collects perpetual trades, liquidations and account
// transfers from the zkLighter REST API and normalizes them into ledger
// events. Values are USD-denominated and converted downstream.
package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sjlee/txlog"
)

const defaultBaseURL = "https://mainnet.zklighter.elliot.ai"

// Client is an authenticated zkLighter REST client. Auth rides in the
// query string; an Authorization header is added as well because some
// deployments check one, some the other.
type Client struct {
	baseURL string
	token   string
	account int
	httpc   *http.Client
}

// NewClient validates the credentials and mints this run's auth token.
func NewClient(baseURL string, creds Credentials, httpc *http.Client) (*Client, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	tok, err := creds.token(time.Now())
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   tok,
		account: creds.AccountIndex,
		httpc:   httpc,
	}, nil
}

func (c *Client) readOnly() bool { return strings.HasPrefix(c.token, "ro:") }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return txlog.Retry(ctx, 4, func() error {
		return c.do(ctx, path, params, out)
	})
}

// do sends the request. Read-only tokens go out as a Bearer header
// first; a 401 or 403 answer retries once with the raw token, which
// some history endpoints expect.
func (c *Client) do(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("auth", c.token)
	addr := c.baseURL + "/api/v1/" + path + "?" + params.Encode()

	schemes := []string{c.token}
	if c.readOnly() {
		schemes = []string{"Bearer " + c.token, c.token}
	}
	for i, auth := range schemes {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", auth)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return &txlog.TransientError{Err: err}
		}
		denied := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
		if denied && i < len(schemes)-1 {
			resp.Body.Close()
			continue
		}
		defer resp.Body.Close()
		log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("lighter GET")

		switch {
		case resp.StatusCode == http.StatusOK:
			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &txlog.AuthError{Exchange: txlog.Lighter, Status: resp.StatusCode}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &txlog.TransientError{Status: resp.StatusCode}
		default:
			return fmt.Errorf("lighter %s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil // unreachable
}
