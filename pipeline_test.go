package txlog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog/date"
)

// fakeAdapter serves canned events. Events can be swapped between
// collection passes to simulate new activity on the exchange.
type fakeAdapter struct {
	name Exchange
	err  error

	mu     sync.Mutex
	events []Event
}

func (a *fakeAdapter) Exchange() Exchange { return a.name }

func (a *fakeAdapter) Fetch(context.Context, date.Range) (FetchResult, error) {
	if a.err != nil {
		return FetchResult{}, a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return FetchResult{Events: append([]Event(nil), a.events...)}, nil
}

func (a *fakeAdapter) add(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func usdBuy(ex Exchange, ts, id, amount string) Event {
	return Event{
		Time:           at(ts),
		Exchange:       ex,
		Type:           Buy,
		Pair:           "BTC-USD",
		Currency:       "BTC",
		NativeValue:    decimal.RequireFromString(amount),
		NativeCurrency: "USD",
		Fee:            decimal.RequireFromString("0.01"),
		ExternalID:     id,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

var testRange = date.NewRange(date.MustParse("2025-03-01"), date.MustParse("2025-03-03"))

func TestRun_MergesAllExchanges(t *testing.T) {
	p := &Pipeline{
		Adapters: []Adapter{
			&fakeAdapter{name: Upbit, events: []Event{usdBuy(Upbit, "2025-03-02 14:00:00", "u1", "100")}},
			&fakeAdapter{name: Bithumb, events: []Event{usdBuy(Bithumb, "2025-03-02 09:00:00", "b1", "200")}},
			&fakeAdapter{name: Lighter, events: []Event{usdBuy(Lighter, "2025-03-02 18:30:00", "l1", "50")}},
		},
		Resolver: NewFixed(decimal.RequireFromString("1300")),
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	report, err := p.Run(context.Background(), testRange, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Exported != 3 {
		t.Errorf("exported %d events, want 3", report.Exported)
	}
	if report.PartialFailure() {
		t.Error("clean run reported as partial failure")
	}

	rows := readRows(t, out)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	// Chronological across exchanges, not grouped by adapter.
	wantIDs := []string{"b1", "u1", "l1"}
	wantKRW := []string{"260000", "130000", "65000"}
	for i, id := range wantIDs {
		row := rows[i+1]
		if row[10] != id {
			t.Errorf("row %d: got id %q, want %q", i, row[10], id)
		}
		if !decimal.RequireFromString(row[7]).Equal(decimal.RequireFromString(wantKRW[i])) {
			t.Errorf("row %d: got value %s, want %s", i, row[7], wantKRW[i])
		}
	}
	for i := 2; i < len(rows); i++ {
		if rows[i][0] < rows[i-1][0] {
			t.Errorf("rows out of order: %q before %q", rows[i-1][0], rows[i][0])
		}
	}
}

func TestRun_PartialFailureStillExports(t *testing.T) {
	broken := &fakeAdapter{name: Bithumb, err: errors.New("gateway timeout")}
	healthy := &fakeAdapter{name: Upbit, events: []Event{
		usdBuy(Upbit, "2025-03-01 10:00:00", "u1", "10"),
		usdBuy(Upbit, "2025-03-01 11:00:00", "u2", "10"),
		usdBuy(Upbit, "2025-03-02 10:00:00", "u3", "10"),
		usdBuy(Upbit, "2025-03-02 11:00:00", "u4", "10"),
		usdBuy(Upbit, "2025-03-03 10:00:00", "u5", "10"),
	}}
	p := &Pipeline{
		Adapters: []Adapter{broken, healthy},
		Resolver: NewFixed(decimal.RequireFromString("1300")),
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	report, err := p.Run(context.Background(), testRange, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Exported != 5 {
		t.Errorf("exported %d events, want 5", report.Exported)
	}
	if !report.PartialFailure() {
		t.Error("failed exchange not reported")
	}
	if report.Failed[Bithumb] == nil {
		t.Error("bithumb failure missing from report")
	}
	if len(readRows(t, out)) != 6 {
		t.Error("artifact row count does not match export count")
	}
}

func TestRun_ZeroEventsAndEmptyExchange(t *testing.T) {
	quiet := &fakeAdapter{name: Bithumb}
	busy := &fakeAdapter{name: Upbit, events: []Event{
		usdBuy(Upbit, "2025-03-01 10:00:00", "u1", "10"),
		usdBuy(Upbit, "2025-03-01 11:00:00", "u2", "10"),
		usdBuy(Upbit, "2025-03-02 10:00:00", "u3", "10"),
		usdBuy(Upbit, "2025-03-02 11:00:00", "u4", "10"),
		usdBuy(Upbit, "2025-03-03 10:00:00", "u5", "10"),
	}}
	p := &Pipeline{
		Adapters: []Adapter{quiet, busy},
		Resolver: NewFixed(decimal.RequireFromString("1300")),
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	// An exchange with zero events is a success, not a failure.
	report, err := p.Run(context.Background(), testRange, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Exported != 5 {
		t.Errorf("exported %d events, want 5", report.Exported)
	}
	if report.PartialFailure() {
		t.Error("quiet exchange counted as failure")
	}

	// Zero events everywhere is the hard failure.
	p.Adapters = []Adapter{quiet, &fakeAdapter{name: Lighter}}
	_, err = p.Run(context.Background(), testRange, filepath.Join(t.TempDir(), "empty.csv"))
	if !errors.Is(err, ErrNoEvents) {
		t.Errorf("got %v, want ErrNoEvents", err)
	}
}

func TestCollect_RejectsInvertedRange(t *testing.T) {
	p := &Pipeline{Resolver: NewFixed(decimal.RequireFromString("1300"))}
	bad := date.NewRange(date.MustParse("2025-03-03"), date.MustParse("2025-03-01"))
	if _, _, err := p.Collect(context.Background(), bad); err == nil {
		t.Error("inverted range accepted")
	}
}

func TestWatch_AppendsOnlyNewRows(t *testing.T) {
	a := &fakeAdapter{name: Lighter, events: []Event{
		usdBuy(Lighter, "2025-03-01 10:00:00", "l1", "10"),
		usdBuy(Lighter, "2025-03-02 10:00:00", "l2", "20"),
	}}
	p := &Pipeline{
		Adapters: []Adapter{a},
		Resolver: NewFixed(decimal.RequireFromString("1300")),
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var passes int
	var exported []int
	onPass := func(r *Report) {
		passes++
		exported = append(exported, r.Exported)
		switch passes {
		case 1:
			a.add(usdBuy(Lighter, "2025-03-02 15:00:00", "l3", "30"))
		case 2:
			cancel()
		}
	}

	err := p.Watch(ctx, testRange, out, 10*time.Millisecond, onPass)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	// A tick already queued at cancellation may run one extra no-op pass.
	if passes < 2 {
		t.Fatalf("ran %d passes, want at least 2", passes)
	}
	if exported[0] != 2 || exported[1] != 1 {
		t.Errorf("exported %v rows per pass, want [2 1 ...]", exported)
	}
	for _, n := range exported[2:] {
		if n != 0 {
			t.Errorf("extra pass exported %d rows", n)
		}
	}

	rows := readRows(t, out)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	content, _ := os.ReadFile(out)
	if strings.Count(string(content), "time,exchange") != 1 {
		t.Error("header duplicated by append")
	}
	// The first pass's rows are untouched by the second.
	wantIDs := []string{"l1", "l2", "l3"}
	for i, id := range wantIDs {
		if rows[i+1][10] != id {
			t.Errorf("row %d: got id %q, want %q", i, rows[i+1][10], id)
		}
	}
}

func TestWatch_ResumesFromExistingArtifact(t *testing.T) {
	a := &fakeAdapter{name: Upbit, events: []Event{
		usdBuy(Upbit, "2025-03-01 10:00:00", "u1", "10"),
		usdBuy(Upbit, "2025-03-02 10:00:00", "u2", "20"),
	}}
	p := &Pipeline{
		Adapters: []Adapter{a},
		Resolver: NewFixed(decimal.RequireFromString("1300")),
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	// Seed the artifact as a previous invocation would have.
	seeded, _, err := p.Collect(context.Background(), testRange)
	if err != nil {
		t.Fatal(err)
	}
	if err := AppendCSV(out, seeded); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onPass := func(r *Report) {
		if r.Exported != 0 {
			t.Errorf("restart re-exported %d rows", r.Exported)
		}
		cancel()
	}
	if err := p.Watch(ctx, testRange, out, 10*time.Millisecond, onPass); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(readRows(t, out)) != 3 {
		t.Error("artifact changed on a pass with no new events")
	}
}
