package txlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sjlee/txlog/date"
)

// ErrNoEvents is returned when every selected exchange ran and none
// produced a single event. It is distinct from a partial failure, where
// some exchanges failed but the others still yielded data.
var ErrNoEvents = errors.New("no events collected across selected exchanges")

// Pipeline drives the collect → merge → convert → export flow.
type Pipeline struct {
	Adapters []Adapter
	Resolver Resolver

	// Timeout bounds each adapter's whole fetch. A hung exchange fails
	// alone; the other adapters' results are still merged and exported.
	Timeout time.Duration
}

const defaultAdapterTimeout = 5 * time.Minute

// Collect runs all adapters concurrently (one goroutine per exchange),
// merges their events chronologically and applies the FX conversion.
// Adapter failures are recorded in the report rather than aborting the
// run.
func (p *Pipeline) Collect(ctx context.Context, r date.Range) ([]Event, *Report, error) {
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}

	report := NewReport()
	sequences := make([][]Event, len(p.Adapters))

	var mu sync.Mutex
	var g errgroup.Group
	for i, a := range p.Adapters {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			log.Info().Str("exchange", string(a.Exchange())).Stringer("range", r).Msg("collecting")
			res, err := a.Fetch(actx, r)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[a.Exchange()] = err
				return nil // partial-success policy: never cancel siblings
			}
			sequences[i] = res.Events
			report.Collected[a.Exchange()] = len(res.Events)
			report.Integrity.Add(res.Integrity)
			return nil
		})
	}
	_ = g.Wait()

	merged := Merge(sequences...)

	// Single conversion pass. Rates are resolved by the event's KST
	// calendar date; the resolver caches and deduplicates per date.
	converted := make([]Event, len(merged))
	for i, e := range merged {
		rate := p.Resolver.Rate(ctx, date.Of(e.Time.In(KST)))
		converted[i] = e.Converted(rate)
		report.TotalValueKRW = report.TotalValueKRW.Add(converted[i].ValueKRW)
	}

	if d, ok := p.Resolver.(*Daily); ok && d.Degraded() {
		report.FXFellBack = true
	}
	return converted, report, nil
}

// Run executes one full pass and writes the artifact at outPath from
// scratch. It returns ErrNoEvents when nothing was collected.
func (p *Pipeline) Run(ctx context.Context, r date.Range, outPath string) (*Report, error) {
	events, report, err := p.Collect(ctx, r)
	if err != nil {
		return report, err
	}
	if report.Empty() {
		return report, ErrNoEvents
	}

	f, err := os.Create(outPath)
	if err != nil {
		return report, fmt.Errorf("cannot create artifact %q: %w", outPath, err)
	}
	defer f.Close()
	if err := EncodeCSV(f, events, true); err != nil {
		return report, fmt.Errorf("cannot write artifact %q: %w", outPath, err)
	}
	report.Exported = len(events)
	return report, nil
}
