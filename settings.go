package txlog

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Settings is the environment-driven configuration surface consumed by
// the pipeline. It is resolved once at startup and never mutated.
type Settings struct {
	UpbitAccessKey string
	UpbitSecretKey string

	BithumbAccessKey string
	BithumbSecretKey string

	LighterBaseURL      string `validate:"omitempty,url"`
	LighterROToken      string
	LighterPrivateKey   string
	LighterKeyIndex     int `validate:"gte=0"`
	LighterAccountIndex int `validate:"gte=0"`
	LighterL1Address    string
	LighterMarketID     int `validate:"gte=0"`

	EtherscanAPIKey string
	KoreaeximAPIKey string

	// FixedRate is the KRW-per-USD rate used in fixed mode and as the
	// fallback when the daily source is unavailable.
	FixedRate decimal.Decimal
}

// defaults mirrored from the exchanges' public endpoints.
const (
	defaultLighterBaseURL = "https://mainnet.zklighter.elliot.ai"
	defaultLighterMarket  = 255
	defaultFixedRate      = "1300.0"
)

// LoadSettings reads settings from a .env file (when present) and the
// process environment, and validates them. It never logs secret values.
func LoadSettings() (Settings, error) {
	// A missing .env is fine: plain environment variables still apply.
	_ = godotenv.Load()

	s := Settings{
		UpbitAccessKey:    os.Getenv("UPBIT_ACCESS_KEY"),
		UpbitSecretKey:    os.Getenv("UPBIT_SECRET_KEY"),
		BithumbAccessKey:  os.Getenv("BITHUMB_ACCESS_KEY"),
		BithumbSecretKey:  os.Getenv("BITHUMB_SECRET_KEY"),
		LighterBaseURL:    envOr("LIGHTER_BASE_URL", defaultLighterBaseURL),
		LighterROToken:    os.Getenv("LIGHTER_RO_TOKEN"),
		LighterPrivateKey: os.Getenv("LIGHTER_API_PRIVATE_KEY"),
		LighterL1Address:  os.Getenv("LIGHTER_L1_ADDRESS"),
		EtherscanAPIKey:   os.Getenv("ETHERSCAN_API_KEY"),
		KoreaeximAPIKey:   os.Getenv("KOREAEXIM_API_KEY"),
	}

	var err error
	if s.LighterAccountIndex, err = envInt("LIGHTER_ACCOUNT_INDEX", 0); err != nil {
		return s, err
	}
	if s.LighterKeyIndex, err = envInt("LIGHTER_API_KEY_INDEX", 0); err != nil {
		return s, err
	}
	if s.LighterMarketID, err = envInt("LIGHTER_MARKET_ID", defaultLighterMarket); err != nil {
		return s, err
	}

	raw := envOr("FX_KRW_PER_USD", defaultFixedRate)
	if s.FixedRate, err = decimal.NewFromString(raw); err != nil {
		return s, fmt.Errorf("FX_KRW_PER_USD must be a number, got %q: %w", raw, err)
	}
	if !s.FixedRate.IsPositive() {
		return s, fmt.Errorf("FX_KRW_PER_USD must be positive, got %s", s.FixedRate)
	}

	if err := validator.New().Struct(s); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}
