package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/indicator"
)

type stubEstimator struct {
	p        float64
	err      error
	features []float64
}

func (s *stubEstimator) PredictProbability(_ context.Context, features []float64) (float64, error) {
	s.features = features
	return s.p, s.err
}

func bullishFill(f *indicator.Frame, i int) {
	f.Candles[i].Close = 101
	f.EMA9[i], f.EMA21[i] = 101, 100
	f.MACDHist[i] = 0.5
	f.ADX[i], f.PlusDI[i], f.MinusDI[i] = 30, 30, 10
	f.RSI[i] = 60
	f.StochK[i] = 65
	f.VWAP[i] = 100
	f.CMF[i] = 0.1
	f.PercentB[i] = 0.1
	f.BBWidth[i] = 0.04
	f.ATR[i] = 1.0
	f.ATRPct[i] = 1.0
	f.StdDev[i] = 0.5
}

func defaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		FastLabel:            "1m",
		SlowLabel:            "15m",
		TimeframeWeight:      1.5,
		MinConfidence:        0.65,
		MinStrength:          Moderate,
		MinRiskReward:        1.5,
		HighVolMinConfidence: 0.75,
	}
}

func TestComposeEmptyFrame(t *testing.T) {
	c := NewComposer(defaultComposerConfig(), nil)
	_, err := c.Compose(context.Background(), nil, frameWith(40, bullishFill))
	assert.ErrorIs(t, err, ErrEmptyFrame)
	_, err = c.Compose(context.Background(), frameWith(40, bullishFill), &indicator.Frame{})
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestComposeBullish(t *testing.T) {
	est := &stubEstimator{p: 0.9}
	c := NewComposer(defaultComposerConfig(), est)

	fast := frameWith(40, bullishFill)
	slow := frameWith(40, bullishFill)
	sig, err := c.Compose(context.Background(), fast, slow)
	require.NoError(t, err)

	assert.Equal(t, Buy, sig.Direction)
	assert.Equal(t, VeryStrong, sig.Strength)
	assert.Equal(t, 0.9, sig.Confidence)
	assert.Equal(t, ConfidenceModel, sig.ConfidenceSource)
	assert.Equal(t, TrendingUp, sig.Regime)

	// 趋势行情：target=price+2.5*ATR, stop=price-1.0*ATR，两位小数
	assert.Equal(t, 101.0, sig.EntryPrice)
	assert.Equal(t, 103.5, sig.TargetPrice)
	assert.Equal(t, 100.0, sig.StopLoss)
	assert.InDelta(t, 2.5, sig.RiskReward, 1e-9)

	assert.Len(t, est.features, 9)
}

func TestComposeWeightedDuplicatesSlowFactors(t *testing.T) {
	c := NewComposer(defaultComposerConfig(), &stubEstimator{p: 0.9})
	sig, err := c.Compose(context.Background(), frameWith(40, bullishFill), frameWith(40, bullishFill))
	require.NoError(t, err)

	assert.Equal(t, 1, sig.Factors["ema_cross_15m"])
	assert.Equal(t, 1, sig.Factors["ema_cross_15m_weighted"]) // int(1*1.5)
	assert.Contains(t, sig.Factors, "ema_cross_1m")
	assert.NotContains(t, sig.Factors, "ema_cross_1m_weighted")
	// 8 fast + 8 slow + 8 weighted
	assert.Len(t, sig.Factors, 24)
}

func TestComposeEstimatorFailureFallsBackNeutral(t *testing.T) {
	c := NewComposer(defaultComposerConfig(), &stubEstimator{err: errors.New("estimator down")})
	sig, err := c.Compose(context.Background(), frameWith(40, bullishFill), frameWith(40, bullishFill))
	require.NoError(t, err)

	assert.Equal(t, 0.5, sig.Confidence)
	assert.Equal(t, ConfidenceFallback, sig.ConfidenceSource)
	// 0.5 < 0.65：信号被降级
	assert.Equal(t, Hold, sig.Direction)
	assert.Equal(t, None, sig.Strength)
}

func TestComposeNoEstimatorNeutral(t *testing.T) {
	c := NewComposer(defaultComposerConfig(), nil)
	sig, err := c.Compose(context.Background(), frameWith(40, bullishFill), frameWith(40, bullishFill))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceFallback, sig.ConfidenceSource)
	assert.Equal(t, Hold, sig.Direction)
}

func TestComposeHighVolRequiresHigherConfidence(t *testing.T) {
	cfg := defaultComposerConfig()
	cfg.MinRiskReward = 1.0 // 隔离置信度闸门（高波动下 rr=2/1.5<1.5）

	highVolFill := func(f *indicator.Frame, i int) {
		bullishFill(f, i)
		f.ATRPct[i] = 2.0
	}

	c := NewComposer(cfg, &stubEstimator{p: 0.7})
	sig, err := c.Compose(context.Background(), frameWith(40, bullishFill), frameWith(40, highVolFill))
	require.NoError(t, err)
	assert.Equal(t, HighVolatility, sig.Regime)
	assert.Equal(t, Hold, sig.Direction) // 0.7 < 0.75

	c = NewComposer(cfg, &stubEstimator{p: 0.8})
	sig, err = c.Compose(context.Background(), frameWith(40, bullishFill), frameWith(40, highVolFill))
	require.NoError(t, err)
	assert.Equal(t, Buy, sig.Direction)
}

func TestComposeHoldWhenFactorsBalance(t *testing.T) {
	neutralFill := func(f *indicator.Frame, i int) {
		f.Candles[i].Close = 100
		f.EMA9[i], f.EMA21[i] = 101, 100 // +1
		f.MACDHist[i] = -0.5             // -1
		f.ATR[i] = 1.0
		f.ATRPct[i] = 1.0
	}
	c := NewComposer(defaultComposerConfig(), &stubEstimator{p: 0.9})
	sig, err := c.Compose(context.Background(), frameWith(40, neutralFill), frameWith(40, neutralFill))
	require.NoError(t, err)

	assert.Equal(t, Hold, sig.Direction)
	assert.Equal(t, None, sig.Strength)
	assert.Equal(t, sig.EntryPrice, sig.TargetPrice)
	assert.Equal(t, sig.EntryPrice, sig.StopLoss)
	assert.InDelta(t, 1.0, sig.RiskReward, 1e-9)
}

func TestComposeEmptyFactorsAverageZero(t *testing.T) {
	c := NewComposer(defaultComposerConfig(), &stubEstimator{p: 0.9})
	empty := func(f *indicator.Frame, i int) {
		f.Candles[i].Close = 100
		f.ATR[i] = 1.0
	}
	sig, err := c.Compose(context.Background(), frameWith(40, empty), frameWith(40, empty))
	require.NoError(t, err)
	assert.Equal(t, Hold, sig.Direction)
	assert.Equal(t, 0.0, sig.AvgScore)
	assert.Empty(t, sig.Factors)
}
