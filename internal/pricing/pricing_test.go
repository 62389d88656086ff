package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ms-marketplace/internal/pricing"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuyerPrices(t *testing.T) {
	// Reference scenario: 20% normal, 12% reseller on 100.00.
	normal, reseller := pricing.BuyerPrices(dec("100.00"), dec("20"), dec("12"))
	assert.True(t, normal.Equal(dec("120.00")), "got %s", normal)
	assert.True(t, reseller.Equal(dec("112.00")), "got %s", reseller)
}

func TestBuyerPricesZeroRates(t *testing.T) {
	normal, reseller := pricing.BuyerPrices(dec("59.99"), dec("0"), dec("0"))
	assert.True(t, normal.Equal(dec("59.99")))
	assert.True(t, reseller.Equal(dec("59.99")))
}

func TestBuyerPricesNoUpperClamp(t *testing.T) {
	// Rates above 100% are legal; the old cap was removed deliberately.
	normal, _ := pricing.BuyerPrices(dec("10.00"), dec("250"), dec("0"))
	assert.True(t, normal.Equal(dec("35.00")), "got %s", normal)
}

func TestBuyerPricesRoundsHalfUp(t *testing.T) {
	// 33.33 * 5% = 1.6665 -> 34.9965, which must round up to 35.00.
	normal, _ := pricing.BuyerPrices(dec("33.33"), dec("5"), dec("0"))
	assert.True(t, normal.Equal(dec("35.00")), "got %s", normal)

	// Exact half at the minor unit: 10.01 * 2.5% = 0.250250 -> 10.260250
	// rounds to 10.26; and 10.00 * 0.05% = 0.005 -> 10.005 rounds to 10.01.
	half, _ := pricing.BuyerPrices(dec("10.00"), dec("0.05"), dec("0"))
	assert.True(t, half.Equal(dec("10.01")), "got %s", half)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12000), pricing.MinorUnits(dec("120.00")))
	assert.Equal(t, int64(1), pricing.MinorUnits(dec("0.01")))
	assert.Equal(t, int64(0), pricing.MinorUnits(dec("0")))
}
