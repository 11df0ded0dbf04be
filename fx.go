package txlog

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/sjlee/txlog/date"
)

// Resolver yields the USD/KRW conversion rate to apply to events on a
// given calendar date.
type Resolver interface {
	Rate(ctx context.Context, on date.Date) decimal.Decimal
}

// RateSource provides official daily USD/KRW reference rates from an
// external provider. ok is false when the source has no quotation for
// the date (typically a non-business day).
type RateSource interface {
	Rate(ctx context.Context, on date.Date) (rate decimal.Decimal, ok bool, err error)
}

// Fixed is a Resolver returning a single configured rate for every date.
type Fixed struct{ rate decimal.Decimal }

// NewFixed returns a fixed-rate resolver.
func NewFixed(rate decimal.Decimal) *Fixed { return &Fixed{rate: rate} }

func (f *Fixed) Rate(context.Context, date.Date) decimal.Decimal { return f.rate }

// maxLookback bounds the walk to the most recent prior business day.
// A week covers any weekend/holiday cluster the rate sources publish.
const maxLookback = 7

// Daily resolves per-day rates from a RateSource with a per-run cache.
//
// Lookup policy: each calendar date is fetched at most once per run;
// concurrent lookups for the same date share a single fetch. Dates
// without a quotation fall back to the most recent prior business day.
// When the source is unavailable altogether, every subsequent lookup
// returns the configured fixed fallback and the degradation is logged
// exactly once.
type Daily struct {
	source   RateSource
	fallback decimal.Decimal

	group singleflight.Group

	mu       sync.Mutex
	cache    map[date.Date]decimal.Decimal
	degraded bool
}

// NewDaily returns a daily-rate resolver backed by source, falling back
// to the given fixed rate when the source is unreachable.
func NewDaily(source RateSource, fallback decimal.Decimal) *Daily {
	return &Daily{
		source:   source,
		fallback: fallback,
		cache:    make(map[date.Date]decimal.Decimal),
	}
}

// Degraded reports whether the resolver fell back to the fixed rate
// because the source was unavailable.
func (d *Daily) Degraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

func (d *Daily) Rate(ctx context.Context, on date.Date) decimal.Decimal {
	d.mu.Lock()
	if r, hit := d.cache[on]; hit {
		d.mu.Unlock()
		return r
	}
	if d.degraded {
		d.mu.Unlock()
		return d.fallback
	}
	d.mu.Unlock()

	v, _, _ := d.group.Do(on.String(), func() (any, error) {
		return d.lookup(ctx, on), nil
	})
	return v.(decimal.Decimal)
}

// lookup fetches the rate for on, walking back to the previous business
// day when needed, and caches the result under the requested date.
func (d *Daily) lookup(ctx context.Context, on date.Date) decimal.Decimal {
	day := on
	for i := 0; i <= maxLookback; i++ {
		rate, ok, err := d.source.Rate(ctx, day)
		if err != nil {
			d.degrade(err)
			return d.fallback
		}
		if ok {
			d.mu.Lock()
			d.cache[on] = rate
			d.mu.Unlock()
			return rate
		}
		day = day.Add(-1)
	}
	// No quotation within the lookback window: treat like an outage for
	// this date but keep the source alive for other dates.
	log.Warn().Stringer("date", on).Msg("no daily rate within lookback window, using fixed rate")
	d.mu.Lock()
	d.cache[on] = d.fallback
	d.mu.Unlock()
	return d.fallback
}

func (d *Daily) degrade(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.degraded {
		return
	}
	d.degraded = true
	log.Warn().Err(err).
		Str("fallback_rate", d.fallback.String()).
		Msg("daily rate source unavailable, conversions use the fixed rate")
}
