package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlackScholes_PutCallParity(t *testing.T) {
	bs := BlackScholes{}
	in := Input{Spot: 100, Strike: 105, Years: 0.5, Rate: 0.05, Vol: 0.3, IsCall: true}
	call := bs.Price(in)
	in.IsCall = false
	put := bs.Price(in)

	parity := 100 - 105*math.Exp(-0.05*0.5)
	assert.InDelta(t, parity, call-put, 1e-9)
}

func TestBlackScholes_KnownValue(t *testing.T) {
	// Hull example: S=42 K=40 r=10% sigma=20% T=0.5 -> call 4.76, put 0.81
	bs := BlackScholes{}
	call := bs.Price(Input{Spot: 42, Strike: 40, Years: 0.5, Rate: 0.1, Vol: 0.2, IsCall: true})
	put := bs.Price(Input{Spot: 42, Strike: 40, Years: 0.5, Rate: 0.1, Vol: 0.2})
	assert.InDelta(t, 4.76, call, 0.01)
	assert.InDelta(t, 0.81, put, 0.01)
}

func TestBlackScholes_Greeks(t *testing.T) {
	bs := BlackScholes{}
	call := bs.Greeks(Input{Spot: 100, Strike: 100, Years: 30.0 / 365, Rate: 0.05, Vol: 0.4, IsCall: true})
	put := bs.Greeks(Input{Spot: 100, Strike: 100, Years: 30.0 / 365, Rate: 0.05, Vol: 0.4})

	assert.Greater(t, call.Delta, 0.5)
	assert.Less(t, call.Delta, 0.6)
	assert.InDelta(t, call.Delta-1, put.Delta, 1e-12)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.InDelta(t, call.Vega, put.Vega, 1e-12)
	assert.Less(t, call.Theta, 0.0)
	assert.Greater(t, call.Vega, 0.0)
}

func TestBlackScholes_DegenerateInputsUseIntrinsic(t *testing.T) {
	bs := BlackScholes{}
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"expired ITM call", Input{Spot: 110, Strike: 100, IsCall: true, Vol: 0.3}, 10},
		{"expired OTM put", Input{Spot: 110, Strike: 100, Vol: 0.3}, 0},
		{"zero vol ITM put", Input{Spot: 90, Strike: 100, Years: 0.1}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bs.Price(tt.in))
			res := bs.Greeks(tt.in)
			assert.Equal(t, tt.want, res.Price)
			assert.Zero(t, res.Gamma)
		})
	}
}

func TestYearsFromDays(t *testing.T) {
	assert.Zero(t, YearsFromDays(-3))
	assert.InDelta(t, 1.0, YearsFromDays(365), 1e-12)
}
