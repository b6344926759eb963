package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"sentra/internal/indicator"
)

func nanSnapshot() indicator.Snapshot {
	nan := math.NaN()
	return indicator.Snapshot{
		Close: nan, EMA9: nan, EMA21: nan, MACDHist: nan,
		ADX: nan, PlusDI: nan, MinusDI: nan, RSI: nan,
		StochK: nan, PercentB: nan, BBWidth: nan,
		ATR: nan, ATRPct: nan, StdDev: nan, VWAP: nan, CMF: nan,
	}
}

func TestScoreFactorsAllBullish(t *testing.T) {
	snap := nanSnapshot()
	snap.Close = 101
	snap.EMA9, snap.EMA21 = 101, 100
	snap.MACDHist = 0.5
	snap.ADX, snap.PlusDI, snap.MinusDI = 25, 30, 10
	snap.RSI = 60
	snap.StochK = 65
	snap.VWAP = 100
	snap.CMF = 0.1
	snap.PercentB = 0.1 // 超卖反弹

	scores := ScoreFactors(snap, "1m")
	assert.Equal(t, map[string]int{
		"ema_cross_1m":   1,
		"macd_1m":        1,
		"adx_1m":         1,
		"rsi_1m":         1,
		"stoch_1m":       1,
		"vwap_1m":        1,
		"cmf_1m":         1,
		"bb_oversold_1m": 1,
	}, scores)
}

func TestScoreFactorsGates(t *testing.T) {
	t.Run("adx below 20 unscored", func(t *testing.T) {
		snap := nanSnapshot()
		snap.ADX, snap.PlusDI, snap.MinusDI = 15, 30, 10
		scores := ScoreFactors(snap, "1m")
		assert.NotContains(t, scores, "adx_1m")
	})

	t.Run("rsi extremes unscored", func(t *testing.T) {
		snap := nanSnapshot()
		snap.RSI = 75
		assert.NotContains(t, ScoreFactors(snap, "1m"), "rsi_1m")
		snap.RSI = 25
		assert.NotContains(t, ScoreFactors(snap, "1m"), "rsi_1m")
		snap.RSI = 45
		assert.Equal(t, -1, ScoreFactors(snap, "1m")["rsi_1m"])
	})

	t.Run("stoch extremes unscored", func(t *testing.T) {
		snap := nanSnapshot()
		snap.StochK = 85
		assert.NotContains(t, ScoreFactors(snap, "1m"), "stoch_1m")
		snap.StochK = 15
		assert.NotContains(t, ScoreFactors(snap, "1m"), "stoch_1m")
	})

	t.Run("bb middle band unscored", func(t *testing.T) {
		snap := nanSnapshot()
		snap.PercentB = 0.5
		scores := ScoreFactors(snap, "1m")
		assert.NotContains(t, scores, "bb_oversold_1m")
		assert.NotContains(t, scores, "bb_overbought_1m")
	})

	t.Run("bb overbought scores minus one", func(t *testing.T) {
		snap := nanSnapshot()
		snap.PercentB = 0.9
		assert.Equal(t, -1, ScoreFactors(snap, "1m")["bb_overbought_1m"])
	})
}

func TestScoreFactorsAbsentColumnsOmitted(t *testing.T) {
	scores := ScoreFactors(nanSnapshot(), "15m")
	assert.Empty(t, scores)
}

func TestScoreFactorsBearish(t *testing.T) {
	snap := nanSnapshot()
	snap.Close = 99
	snap.EMA9, snap.EMA21 = 99, 100
	snap.MACDHist = -0.2
	snap.VWAP = 100
	snap.CMF = -0.05

	scores := ScoreFactors(snap, "15m")
	assert.Equal(t, -1, scores["ema_cross_15m"])
	assert.Equal(t, -1, scores["macd_15m"])
	assert.Equal(t, -1, scores["vwap_15m"])
	assert.Equal(t, -1, scores["cmf_15m"])
}
