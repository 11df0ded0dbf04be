package txlog

import (
	"context"

	"github.com/sjlee/txlog/date"
)

// Adapter fetches one exchange's raw activity for a date range and
// normalizes it into canonical events. Implementations live in the
// per-exchange packages and must be safe for one-shot use per run.
type Adapter interface {
	Exchange() Exchange
	// Fetch returns every event in the range, already normalized.
	// Pagination, authentication and transient-failure retries are the
	// adapter's responsibility. Records the adapter had to drop or
	// reclassify are counted in the result's Integrity, never lost
	// silently.
	Fetch(ctx context.Context, r date.Range) (FetchResult, error)
}

// FetchResult is the outcome of one adapter run.
type FetchResult struct {
	Events    []Event
	Integrity Integrity
}

// Integrity counts records an adapter could not fully normalize.
// Non-zero counters are reported once per run.
type Integrity struct {
	BadTimestamps int // records dropped: source timestamp unparseable
	UnknownTypes  int // events mapped to the Other fallback type
	MissingFields int // records dropped: a required field was absent
}

// Add accumulates counters from another Integrity.
func (i *Integrity) Add(o Integrity) {
	i.BadTimestamps += o.BadTimestamps
	i.UnknownTypes += o.UnknownTypes
	i.MissingFields += o.MissingFields
}

// Zero reports whether no integrity issue was recorded.
func (i Integrity) Zero() bool { return i == Integrity{} }
