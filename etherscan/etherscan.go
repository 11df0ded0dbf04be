// Package etherscan reads deposit and withdraw transactions sent to the
// Lighter bridge contract straight from the chain. It serves as a
// credential-free fallback when the exchange's history endpoints reject
// the configured auth.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog"
)

const (
	defaultBaseURL = "https://api.etherscan.io/api"

	// bridgeContract is the Lighter L1 bridge on Ethereum mainnet.
	bridgeContract   = "0x3b4d794a66304f130a4db8f2551b0070dfcf5ca7"
	depositSelector  = "0x8a857083"
	withdrawSelector = "0xd20191bd"
)

// Client queries the Etherscan account API. The API key is optional but
// raises the rate allowance.
type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// New returns a client against the public API.
func New(apiKey string) *Client {
	return NewWith(apiKey, defaultBaseURL, http.DefaultClient)
}

// NewWith returns a client against a custom endpoint, for tests.
func NewWith(apiKey, baseURL string, httpc *http.Client) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, httpc: httpc}
}

// Transfer is one bridge transaction observed on chain.
type Transfer struct {
	Type txlog.EventType // Deposit or Withdraw
	Hash string
	Time time.Time
	Wei  decimal.Decimal
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawTx struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Hash      string `json:"hash"`
	Input     string `json:"input"`
	TimeStamp string `json:"timeStamp"`
	Value     string `json:"value"`
}

// BridgeTransfers lists the address's transactions to the bridge
// contract whose calldata carries the deposit or withdraw selector,
// newest first.
func (c *Client) BridgeTransfers(ctx context.Context, l1Address string, limit int) ([]Transfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", l1Address)
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(min(limit*2, 100)))
	params.Set("sort", "desc")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	var env envelope
	err := txlog.Retry(ctx, 4, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return &txlog.TransientError{Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &txlog.TransientError{Status: resp.StatusCode}
		}
		return json.NewDecoder(resp.Body).Decode(&env)
	})
	if err != nil {
		return nil, err
	}
	if env.Status != "1" {
		// "No transactions found" is a normal empty answer; a rate
		// limit message is worth surfacing.
		if strings.Contains(strings.ToLower(env.Message), "rate limit") {
			return nil, fmt.Errorf("etherscan: %s", env.Message)
		}
		return nil, nil
	}

	var txs []rawTx
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, err
	}
	var transfers []Transfer
	for _, tx := range txs {
		if strings.ToLower(tx.To) != bridgeContract {
			continue
		}
		input := strings.ToLower(tx.Input)
		if len(input) < 10 {
			continue
		}
		var typ txlog.EventType
		switch input[:10] {
		case depositSelector:
			typ = txlog.Deposit
		case withdrawSelector:
			typ = txlog.Withdraw
		default:
			continue
		}
		ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if err != nil {
			continue
		}
		wei, _ := decimal.NewFromString(tx.Value)
		transfers = append(transfers, Transfer{
			Type: typ,
			Hash: tx.Hash,
			Time: time.Unix(ts, 0).UTC(),
			Wei:  wei,
		})
		if len(transfers) == limit {
			break
		}
	}
	return transfers, nil
}
