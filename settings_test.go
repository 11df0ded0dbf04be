package txlog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"UPBIT_ACCESS_KEY", "UPBIT_SECRET_KEY",
		"BITHUMB_ACCESS_KEY", "BITHUMB_SECRET_KEY",
		"LIGHTER_BASE_URL", "LIGHTER_RO_TOKEN", "LIGHTER_API_PRIVATE_KEY",
		"LIGHTER_ACCOUNT_INDEX", "LIGHTER_API_KEY_INDEX", "LIGHTER_MARKET_ID",
		"LIGHTER_L1_ADDRESS", "ETHERSCAN_API_KEY", "KOREAEXIM_API_KEY",
		"FX_KRW_PER_USD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := LoadSettings()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(s.LighterBaseURL, "https://") {
		t.Errorf("base url default %q", s.LighterBaseURL)
	}
	if s.LighterMarketID != 255 {
		t.Errorf("market default %d", s.LighterMarketID)
	}
	if !s.FixedRate.Equal(decimal.RequireFromString("1300.0")) {
		t.Errorf("fixed rate default %s", s.FixedRate)
	}
}

func TestLoadSettings_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPBIT_ACCESS_KEY", "AK")
	t.Setenv("LIGHTER_ACCOUNT_INDEX", "42")
	t.Setenv("FX_KRW_PER_USD", "1412.5")

	s, err := LoadSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.UpbitAccessKey != "AK" || s.LighterAccountIndex != 42 {
		t.Errorf("overrides not applied: %+v", s)
	}
	if !s.FixedRate.Equal(decimal.RequireFromString("1412.5")) {
		t.Errorf("fixed rate %s", s.FixedRate)
	}
}

func TestLoadSettings_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative rate", "FX_KRW_PER_USD", "-1"},
		{"non-numeric rate", "FX_KRW_PER_USD", "cheap"},
		{"non-integer index", "LIGHTER_ACCOUNT_INDEX", "twelve"},
		{"malformed base url", "LIGHTER_BASE_URL", "not a url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := LoadSettings(); err == nil {
				t.Error("accepted")
			}
		})
	}
}
