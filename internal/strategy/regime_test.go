package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"sentra/internal/indicator"
	"sentra/internal/market"
)

// frameWith 构造一个最小指标帧：全部序列长度一致，未给出的列为 NaN。
func frameWith(n int, fill func(f *indicator.Frame, i int)) *indicator.Frame {
	f := &indicator.Frame{Symbol: "BTCUSDT", Interval: "15m"}
	f.Candles = make(market.Candles, n)
	nan := func() []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = math.NaN()
		}
		return s
	}
	f.EMA9, f.EMA21, f.MACDHist = nan(), nan(), nan()
	f.ADX, f.PlusDI, f.MinusDI = nan(), nan(), nan()
	f.RSI, f.StochK, f.StochD = nan(), nan(), nan()
	f.BBUpper, f.BBLower, f.PercentB, f.BBWidth = nan(), nan(), nan(), nan()
	f.ATR, f.ATRPct, f.StdDev = nan(), nan(), nan()
	f.VWAP, f.CMF = nan(), nan()
	for i := 0; i < n; i++ {
		f.Candles[i] = market.Candle{Close: 100}
		if fill != nil {
			fill(f, i)
		}
	}
	return f
}

func TestClassifyRegimeHighVolWinsOverTrend(t *testing.T) {
	f := frameWith(40, func(f *indicator.Frame, i int) {
		f.ATRPct[i] = 2.0
		f.ADX[i] = 40 // 即使趋势极强，波动优先
		f.EMA9[i] = 110
		f.EMA21[i] = 100
	})
	assert.Equal(t, HighVolatility, ClassifyRegime(f))
}

func TestClassifyRegimeLowVol(t *testing.T) {
	f := frameWith(40, func(f *indicator.Frame, i int) {
		f.ATRPct[i] = 0.2
	})
	assert.Equal(t, LowVolatility, ClassifyRegime(f))
}

func TestClassifyRegimeTrending(t *testing.T) {
	up := frameWith(40, func(f *indicator.Frame, i int) {
		f.ATRPct[i] = 1.0
		f.ADX[i] = 30
		f.EMA9[i] = 105
		f.EMA21[i] = 100
	})
	assert.Equal(t, TrendingUp, ClassifyRegime(up))

	down := frameWith(40, func(f *indicator.Frame, i int) {
		f.ATRPct[i] = 1.0
		f.ADX[i] = 30
		f.EMA9[i] = 95
		f.EMA21[i] = 100
	})
	assert.Equal(t, TrendingDown, ClassifyRegime(down))
}

func TestClassifyRegimeRanging(t *testing.T) {
	f := frameWith(40, func(f *indicator.Frame, i int) {
		f.ATRPct[i] = 1.0
		f.ADX[i] = 15
	})
	assert.Equal(t, Ranging, ClassifyRegime(f))
}

func TestClassifyRegimeMissingColumnsDefaultsRanging(t *testing.T) {
	f := frameWith(40, nil)
	assert.Equal(t, Ranging, ClassifyRegime(f))
	assert.Equal(t, Ranging, ClassifyRegime(nil))
}

func TestClassifyRegimeUsesLast20Bars(t *testing.T) {
	// 前面低波动，最近 20 根高波动：只看尾部
	f := frameWith(60, func(f *indicator.Frame, i int) {
		if i < 40 {
			f.ATRPct[i] = 0.1
		} else {
			f.ATRPct[i] = 2.0
		}
	})
	assert.Equal(t, HighVolatility, ClassifyRegime(f))
}
