package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/market"
	"sentra/internal/position"
	"sentra/internal/strategy"
)

type fixedEstimator struct{ p float64 }

func (f fixedEstimator) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	return f.p, nil
}

// trendCandles 构造带轻微波动的上行序列，保证指标全程可算。
func trendCandles(start int64, step int64, n int, base, drift float64) market.Candles {
	out := make(market.Candles, 0, n)
	price := base
	for i := 0; i < n; i++ {
		open := start + int64(i)*step
		wiggle := 0.3 * math.Sin(float64(i)/5)
		o := price
		c := price + drift + wiggle
		hi := math.Max(o, c) + 0.5
		lo := math.Min(o, c) - 0.5
		out = append(out, market.Candle{
			OpenTime:  open,
			CloseTime: open + step - 1,
			Open:      o,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    1500 + 10*float64(i%7),
			Trades:    60,
		})
		price = c
	}
	return out
}

func seedRunData(t *testing.T, s *Store) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	const start = int64(1_700_000_000_000)
	const fastStep = int64(60_000)
	const nFast = 700

	fast := trendCandles(start, fastStep, nFast, 100, 0.05)
	slow := trendCandles(start, fastStep*15, nFast/15+1, 100, 0.75)

	_, err := s.InsertCandles(ctx, "BTCUSDT", "1m", fast)
	require.NoError(t, err)
	_, err = s.InsertCandles(ctx, "BTCUSDT", "15m", slow)
	require.NoError(t, err)
	return start, fast[len(fast)-1].OpenTime
}

func TestRunnerWalkForward(t *testing.T) {
	s := newTestStore(t)
	start, end := seedRunData(t, s)

	r := NewRunner(s, fixedEstimator{p: 0.9})
	cfg := RunConfig{
		Symbol:         "BTCUSDT",
		FastInterval:   "1m",
		SlowInterval:   "15m",
		InitialBalance: 10000,
		Composer: strategy.ComposerConfig{
			FastLabel:     "1m",
			SlowLabel:     "15m",
			MinRiskReward: 1.0,
		},
		Risk: position.Config{},
	}

	res, err := r.Run(context.Background(), cfg, start, end)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Positive(t, res.CandleCount)
	assert.NotEmpty(t, res.Equity)
	assert.Positive(t, res.FinalBalance)
	assert.GreaterOrEqual(t, res.MaxDrawdownPct, 0.0)
	assert.Less(t, res.StartTime, res.EndTime)
	// 权益曲线按时间递增
	for i := 1; i < len(res.Equity); i++ {
		assert.GreaterOrEqual(t, res.Equity[i].Time, res.Equity[i-1].Time)
	}
	// 成交与统计保持一致
	assert.Equal(t, len(res.Trades), res.Stats.TotalTrades)
}

func TestRunnerRejectsThinData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	few := trendCandles(1_700_000_000_000, 60_000, 10, 100, 0.1)
	_, err := s.InsertCandles(ctx, "BTCUSDT", "1m", few)
	require.NoError(t, err)

	r := NewRunner(s, nil)
	_, err = r.Run(ctx, RunConfig{
		Symbol:       "BTCUSDT",
		FastInterval: "1m",
		SlowInterval: "15m",
	}, few[0].OpenTime, few[len(few)-1].OpenTime)
	require.Error(t, err)
}

func TestWindowBounds(t *testing.T) {
	candles := makeCandles(1_700_000_000_000, 60_000, 10)
	assert.Len(t, window(candles, 10, 4), 4)
	assert.Len(t, window(candles, 3, 300), 3)
	assert.Len(t, window(candles, 99, 300), 10)
}

func TestMaxDrawdown(t *testing.T) {
	points := []EquityPoint{
		{Time: 1, Equity: 100},
		{Time: 2, Equity: 120},
		{Time: 3, Equity: 90},
		{Time: 4, Equity: 110},
	}
	assert.InDelta(t, 25.0, maxDrawdown(points), 1e-9)
	assert.Zero(t, maxDrawdown(nil))
}
