package valueobject

import (
	"github.com/shopspring/decimal"
)

var (
	// FeeTierThreshold — начиная с этой суммы (включительно) действует пониженная ставка.
	FeeTierThreshold = decimal.NewFromInt(250)
	// FeeRateStandard применяется к суммам ниже порога.
	FeeRateStandard = decimal.RequireFromString("0.05")
	// FeeRateReduced применяется к суммам от порога.
	FeeRateReduced = decimal.RequireFromString("0.035")
)

// FeeBreakdown — результат расчёта комиссии платформы.
type FeeBreakdown struct {
	Gross decimal.Decimal `json:"gross_amount"`
	Rate  decimal.Decimal `json:"fee_rate"`
	Fee   decimal.Decimal `json:"fee"`
	Net   decimal.Decimal `json:"net_amount"`
}

// FeeRate возвращает ставку комиссии для суммы.
func FeeRate(gross decimal.Decimal) decimal.Decimal {
	if gross.GreaterThanOrEqual(FeeTierThreshold) {
		return FeeRateReduced
	}
	return FeeRateStandard
}

// ComputeFee считает комиссию и сумму к зачислению.
// Это единственное место округления комиссии: возврат при истечении, пополнение и выплаты
// обязаны вызывать именно его.
func ComputeFee(gross decimal.Decimal) FeeBreakdown {
	rate := FeeRate(gross)
	fee := gross.Mul(rate).Round(2)
	return FeeBreakdown{
		Gross: gross,
		Rate:  rate,
		Fee:   fee,
		Net:   gross.Sub(fee),
	}
}
