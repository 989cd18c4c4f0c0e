package services

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeFee splits amount into the platform fee and the freelancer's share.
// The fee is rounded half-up to the cent; net absorbs the remainder so that
// fee + net == amount exactly.
func ComputeFee(amount, percent decimal.Decimal) (fee, net decimal.Decimal) {
	fee = amount.Mul(percent).Div(hundred).Round(2)
	return fee, amount.Sub(fee)
}

// cents reports whether d has at most two fractional digits.
func cents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
