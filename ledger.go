// Package txlog merges financial activity from multiple cryptocurrency
// exchanges into a single chronological ledger, converts values to KRW
// for tax reporting, and exports the result as CSV.
package txlog

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// KST is the reference zone for display timestamps. Events are compared
// by absolute instant regardless of this zone.
var KST = time.FixedZone("KST", 9*60*60)

// DisplayTimeFormat is the timestamp format used in exported artifacts.
const DisplayTimeFormat = "2006-01-02-15-04-05"

// Exchange identifies the venue an event originates from.
type Exchange string

const (
	Upbit   Exchange = "Upbit"
	Bithumb Exchange = "Bithumb"
	Lighter Exchange = "Lighter"
	EdgeX   Exchange = "EdgeX"
)

// EventType is the canonical classification of a ledger event.
type EventType string

const (
	Buy         EventType = "buy"
	Sell        EventType = "sell"
	Deposit     EventType = "deposit"
	Withdraw    EventType = "withdraw"
	Liquidation EventType = "liquidation"
	Transfer    EventType = "transfer"
	// Other is the fallback for raw event types no adapter recognizes.
	// Occurrences are counted in the run Report so they stay visible.
	Other EventType = "other"
)

// Event is one canonical record of a single financial movement. It is
// immutable once constructed; FX conversion produces a copy via
// Converted rather than patching the original.
//
// Quantity sign convention: quantities are signed from the account's
// asset perspective. Buy and Deposit are positive; Sell, Withdraw,
// Liquidation and outbound Transfer are negative.
type Event struct {
	// Time is the absolute instant of the event. Always zone-aware.
	Time     time.Time
	Exchange Exchange
	Type     EventType

	// Pair is the exchange-native trading pair or asset identifier,
	// e.g. "KRW-BTC" or "BTC-USD". Empty for pure cash movements.
	Pair string
	// Currency is the asset or settlement currency of Quantity.
	Currency string

	Quantity decimal.NullDecimal // signed amount of the asset moved
	Price    decimal.NullDecimal // unit price in NativeCurrency

	// NativeValue is the transaction value in its original currency
	// (KRW for Upbit/Bithumb, USD for Lighter).
	NativeValue    decimal.Decimal
	NativeCurrency string

	// ValueKRW and Rate are filled by the FX resolver during the
	// conversion pass and are always populated before export.
	ValueKRW decimal.Decimal
	Rate     decimal.Decimal

	// Fee is the fee amount in NativeCurrency, converted alongside the
	// value. Zero when the exchange does not report one.
	Fee decimal.Decimal

	// ExternalID is the exchange-native transaction or order identifier,
	// unique within one exchange's event stream.
	ExternalID string
}

// DisplayTime renders the event instant in KST using the export format.
func (e Event) DisplayTime() string { return e.Time.In(KST).Format(DisplayTimeFormat) }

// Key identifies an event within the merged ledger.
type Key struct {
	Exchange   Exchange
	ExternalID string
}

// Key returns the dedup key of the event.
func (e Event) Key() Key { return Key{e.Exchange, e.ExternalID} }

// Converted returns a copy of the event with the conversion applied:
// ValueKRW holds NativeValue expressed in KRW and Rate the rate used.
// Values already denominated in KRW convert at 1:1 but still record the
// day's rate for reporting.
func (e Event) Converted(rate decimal.Decimal) Event {
	c := e
	c.Rate = rate
	if e.NativeCurrency == "KRW" {
		c.ValueKRW = e.NativeValue
	} else {
		c.ValueKRW = e.NativeValue.Mul(rate)
		c.Fee = e.Fee.Mul(rate)
	}
	return c
}

// Merge concatenates the given event sequences and returns a single
// sequence sorted by timestamp ascending. Equal timestamps fall back to
// (exchange, external id) lexicographic order so the output is
// deterministic regardless of submission order. Events sharing the same
// (exchange, external id) key collapse to the first occurrence.
func Merge(sequences ...[]Event) []Event {
	var n int
	for _, s := range sequences {
		n += len(s)
	}
	merged := make([]Event, 0, n)
	seen := make(map[Key]bool, n)
	for _, s := range sequences {
		for _, e := range s {
			if e.ExternalID != "" {
				if seen[e.Key()] {
					continue
				}
				seen[e.Key()] = true
			}
			merged = append(merged, e)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Exchange != b.Exchange {
			return a.Exchange < b.Exchange
		}
		return a.ExternalID < b.ExternalID
	})
	return merged
}
