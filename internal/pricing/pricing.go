// Package pricing turns a seller's asking price into buyer-facing prices by
// applying an event's service-charge rates.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// BuyerPrices applies the two service-charge rates to an asking price:
// price = asking + asking*rate/100, rounded half-up to the currency's minor
// unit. Rates may be zero and have no upper bound. Pure, never fails.
func BuyerPrices(asking, normalRate, resellerRate decimal.Decimal) (forNormal, forReseller decimal.Decimal) {
	return markup(asking, normalRate), markup(asking, resellerRate)
}

func markup(asking, rate decimal.Decimal) decimal.Decimal {
	return asking.Add(asking.Mul(rate).Div(hundred)).Round(2)
}

// MinorUnits converts a rounded amount to the integer minor-unit count the
// payment gateway expects (e.g. 120.00 -> 12000).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}
