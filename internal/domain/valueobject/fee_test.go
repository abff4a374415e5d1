package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFee_TierBoundary(t *testing.T) {
	below := ComputeFee(d("249.99"))
	assert.True(t, below.Rate.Equal(d("0.05")))
	assert.True(t, below.Fee.Equal(d("249.99").Mul(d("0.05")).Round(2)), below.Fee.String())
	assert.True(t, below.Fee.Equal(d("12.50")), below.Fee.String())

	at := ComputeFee(d("250.00"))
	assert.True(t, at.Rate.Equal(d("0.035")))
	assert.True(t, at.Fee.Equal(d("8.75")), at.Fee.String())
	assert.True(t, at.Net.Equal(d("241.25")), at.Net.String())
}

func TestComputeFee_ExpiryExample(t *testing.T) {
	res := ComputeFee(d("300"))
	assert.True(t, res.Fee.Equal(d("10.50")), res.Fee.String())
	assert.True(t, res.Net.Equal(d("289.50")), res.Net.String())
}

func TestComputeFee_NetPlusFeeEqualsGross(t *testing.T) {
	for _, amount := range []string{"0.01", "1", "9.99", "10", "33.33", "249.995", "250", "1000.01", "99999.99"} {
		res := ComputeFee(d(amount))
		assert.True(t, res.Net.Add(res.Fee).Equal(d(amount)), amount)
		assert.True(t, res.Fee.Equal(res.Fee.Round(2)), amount)
	}
}

func TestComputeFee_RoundsHalfUp(t *testing.T) {
	// 0.10 * 0.05 = 0.005 -> 0.01
	res := ComputeFee(d("0.10"))
	assert.True(t, res.Fee.Equal(d("0.01")), res.Fee.String())
}
