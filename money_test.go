package txlog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatKRW(t *testing.T) {
	got := FormatKRW(decimal.RequireFromString("1352400.7"))
	if !strings.Contains(got, "1,352,401") {
		t.Errorf("got %q", got)
	}
}

func TestFormatUSD(t *testing.T) {
	got := FormatUSD(decimal.RequireFromString("10.505"))
	if !strings.Contains(got, "10.51") {
		t.Errorf("got %q", got)
	}
}
