package txlog

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// Report accumulates everything a run should surface to the user
// exactly once: per-exchange outcomes, data-integrity counters and the
// FX degradation notice. It is written by the pipeline, not by
// individual events.
type Report struct {
	Collected  map[Exchange]int   // events collected per exchange that ran
	Failed     map[Exchange]error // exchanges whose adapter failed
	Integrity  Integrity
	FXFellBack bool               // daily-rate source was unavailable, fixed rate used

	Exported int // rows written (new rows only, in watch mode)
	// TotalValueKRW is the sum of converted event values, for the summary.
	TotalValueKRW decimal.Decimal
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		Collected: make(map[Exchange]int),
		Failed:    make(map[Exchange]error),
	}
}

// TotalCollected returns the number of events collected across all
// exchanges that succeeded.
func (r *Report) TotalCollected() int {
	var n int
	for _, c := range r.Collected {
		n += c
	}
	return n
}

// Empty reports the zero-events-collected failure condition: every
// selected exchange ran (or failed) and none produced an event.
func (r *Report) Empty() bool { return r.TotalCollected() == 0 }

// PartialFailure reports that at least one exchange failed while
// another succeeded.
func (r *Report) PartialFailure() bool {
	return len(r.Failed) > 0 && r.TotalCollected() > 0
}

// WriteSummary renders the once-per-run summary in a stable order.
func (r *Report) WriteSummary(w io.Writer) {
	for _, ex := range sortedExchanges(r.Collected) {
		fmt.Fprintf(w, "  %-8s %d events\n", ex, r.Collected[ex])
	}
	for _, ex := range sortedExchanges(r.Failed) {
		fmt.Fprintf(w, "  %-8s failed: %v\n", ex, r.Failed[ex])
	}
	if !r.TotalValueKRW.IsZero() {
		fmt.Fprintf(w, "  total value %s\n", FormatKRW(r.TotalValueKRW))
	}
	if r.FXFellBack {
		fmt.Fprintln(w, "  warning: daily FX rates unavailable, fixed rate applied to all events")
	}
	if !r.Integrity.Zero() {
		fmt.Fprintf(w, "  warning: %d unparseable timestamps dropped, %d unrecognized event types, %d records missing fields\n",
			r.Integrity.BadTimestamps, r.Integrity.UnknownTypes, r.Integrity.MissingFields)
	}
}

func sortedExchanges[V any](m map[Exchange]V) []Exchange {
	keys := make([]Exchange, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
