package txlog

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sjlee/txlog/date"
)

// Watch runs collection passes every interval until ctx is cancelled,
// appending only rows not yet present in the artifact at outPath. The
// artifact is append-only: a failed pass leaves it untouched and the
// next pass retries from the same state. onPass, when non-nil, receives
// the report of every completed pass.
func (p *Pipeline) Watch(ctx context.Context, r date.Range, outPath string, interval time.Duration, onPass func(*Report)) error {
	seen, err := ReadKeys(outPath)
	if err != nil {
		return err
	}
	first := len(seen) == 0

	pass := func() {
		// The window's end tracks the current day so activity that
		// happened since the last pass is picked up.
		w := r
		if today := date.Today(); today.After(w.To) {
			w.To = today
		}

		events, report, err := p.Collect(ctx, w)
		if err != nil {
			log.Error().Err(err).Msg("watch pass failed, artifact unchanged")
			return
		}

		fresh := make([]Event, 0)
		for _, e := range events {
			if e.ExternalID == "" {
				// Not addressable for dedup. Exported once, on the pass
				// that populates an empty artifact.
				if !first {
					continue
				}
			} else if seen[e.Key()] {
				continue
			}
			fresh = append(fresh, e)
		}

		if len(fresh) > 0 {
			if err := AppendCSV(outPath, fresh); err != nil {
				log.Error().Err(err).Msg("append failed, rows retried next pass")
				return
			}
			for _, e := range fresh {
				if e.ExternalID != "" {
					seen[e.Key()] = true
				}
			}
		}
		report.Exported = len(fresh)
		first = false
		log.Info().Int("new_rows", len(fresh)).Msg("watch pass complete")
		if onPass != nil {
			onPass(report)
		}
	}

	pass()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pass()
		}
	}
}
