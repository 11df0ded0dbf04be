package txlog

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatKRW renders an amount with KRW display rules (₩, no minor unit).
func FormatKRW(v decimal.Decimal) string { return formatMoney(money.KRW, v) }

// FormatUSD renders an amount with USD display rules.
func FormatUSD(v decimal.Decimal) string { return formatMoney(money.USD, v) }

func formatMoney(code string, v decimal.Decimal) string {
	cur := money.GetCurrency(code)
	minor := v.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), code).Display()
}
