package date

import (
	"fmt"
	"time"
)

// Range represents an inclusive range of dates.
type Range struct{ From, To Date }

// NewRange returns a Range spanning from and to, inclusive.
func NewRange(from, to Date) Range { return Range{From: from, To: to} }

// Validate returns an error when the range is empty or inverted.
func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("date range is missing a bound: %s", r)
	}
	if r.From.After(r.To) {
		return fmt.Errorf("start date %s is after end date %s", r.From, r.To)
	}
	return nil
}

// Contains reports whether d falls within the range, bounds included.
func (r Range) Contains(d Date) bool { return !d.Before(r.From) && !d.After(r.To) }

// ContainsTime reports whether the instant t falls within the range when
// the range bounds are interpreted as whole days in location loc.
func (r Range) ContainsTime(t time.Time, loc *time.Location) bool {
	start := r.From.StartIn(loc)
	end := r.To.Add(1).StartIn(loc)
	return !t.Before(start) && t.Before(end)
}

// Days returns the number of days in the range, bounds included.
func (r Range) Days() int {
	return int(r.To.time().Sub(r.From.time())/(24*time.Hour)) + 1
}

func (r Range) String() string { return r.From.String() + ".." + r.To.String() }
