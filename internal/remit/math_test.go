package remit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 20.73, RoundHalfUp(20.725))
	assert.Equal(t, 0.01, RoundHalfUp(0.005))
	assert.Equal(t, 1.0, RoundHalfUp(0.999))
	assert.Equal(t, 2.67, RoundHalfUp(2.665))
	assert.Equal(t, -0.01, RoundHalfUp(-0.005)) // away from zero
	assert.Equal(t, 0.0, RoundHalfUp(0))
	assert.Equal(t, 729.27, RoundHalfUp(729.27))
}

func TestSvcFee(t *testing.T) {
	// avg UPB 99,500 at 50 bps annually, monthly, full participation:
	// 99500 * 0.0050 / 12 = 41.458... -> 41.46
	assert.Equal(t, 41.46, SvcFee(99500, 50, 1.0))

	// Half participation halves the fee before rounding.
	assert.Equal(t, 20.73, SvcFee(99500, 50, 0.5))

	// Zero bps strips nothing.
	assert.Equal(t, 0.0, SvcFee(99500, 0, 1.0))
}
