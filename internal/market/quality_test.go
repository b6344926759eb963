package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func usableCandles(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		price := 100.0 + float64(i)*0.1
		out[i] = Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price,
			High:     price + 0.5,
			Low:      price - 0.5,
			Close:    price + 0.2,
			Volume:   10,
		}
	}
	return out
}

func TestCheckUsable(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, CheckUsable(usableCandles(60), 50))
	})

	t.Run("empty", func(t *testing.T) {
		err := CheckUsable(nil, 50)
		assert.ErrorIs(t, err, ErrUnusableData)
	})

	t.Run("too few rows", func(t *testing.T) {
		err := CheckUsable(usableCandles(30), 50)
		assert.ErrorIs(t, err, ErrUnusableData)
	})

	t.Run("too many corrupt rows", func(t *testing.T) {
		cs := usableCandles(60)
		for i := 0; i < 8; i++ { // 13% > 10%
			cs[i].Close = 0
		}
		err := CheckUsable(cs, 50)
		assert.ErrorIs(t, err, ErrUnusableData)
	})

	t.Run("few corrupt rows tolerated", func(t *testing.T) {
		cs := usableCandles(60)
		for i := 0; i < 5; i++ { // 8% < 10%
			cs[i].Close = 0
		}
		assert.NoError(t, CheckUsable(cs, 50))
	})

	t.Run("zero price range", func(t *testing.T) {
		cs := make([]Candle, 60)
		for i := range cs {
			cs[i] = Candle{Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}
		}
		err := CheckUsable(cs, 50)
		assert.ErrorIs(t, err, ErrUnusableData)
	})

	t.Run("negative price", func(t *testing.T) {
		cs := usableCandles(60)
		for i := range cs {
			cs[i].Low = -1
		}
		err := CheckUsable(cs, 50)
		assert.ErrorIs(t, err, ErrUnusableData)
	})
}
