package app

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/config"
	"sentra/internal/indicator"
	"sentra/internal/market"
	"sentra/internal/strategy"
)

type fakeSource struct {
	mu      sync.Mutex
	candles map[string][]market.Candle
	calls   int
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candles[interval], nil
}
func (f *fakeSource) Stats() market.SourceStats { return market.SourceStats{Requests: f.calls} }
func (f *fakeSource) Close() error              { return nil }

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *captureNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func trendCandles(n int, base, drift float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := base
	start := int64(1_700_000_000_000)
	for i := 0; i < n; i++ {
		wiggle := 0.3 * math.Sin(float64(i)/5)
		o := price
		c := price + drift + wiggle
		out = append(out, market.Candle{
			OpenTime:  start + int64(i)*60_000,
			CloseTime: start + int64(i+1)*60_000 - 1,
			Open:      o,
			High:      math.Max(o, c) + 0.5,
			Low:       math.Min(o, c) - 0.5,
			Close:     c,
			Volume:    1200 + 10*float64(i%5),
			Trades:    40,
		})
		price = c
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{LogLevel: "error", HTTPAddr: ":0"},
		Kline: config.KlineConfig{
			HistoryLimit:    120,
			CacheTTLSeconds: 60,
			FetchRetries:    1,
			TimeoutSeconds:  5,
			MinRowsRequired: indicator.MinRows,
		},
		Strategy: config.StrategyConfig{
			Symbol:          "BTCUSDT",
			FastInterval:    "1m",
			SlowInterval:    "15m",
			TimeframeWeight: 1.5,
			MinConfidence:   0.65,
			MinStrength:     3,
			MinRiskReward:   1.0,
		},
		Risk: config.RiskConfig{
			MaxHoldMinutes:    240,
			CooldownMinutes:   0,
			HoldSignalsToExit: 3,
			MinHoldConfidence: 0.5,
		},
		Store: config.StoreConfig{
			TradeLogPath: filepath.Join(t.TempDir(), "trades.db"),
		},
	}
}

func buildTestApp(t *testing.T, src market.Source, n *captureNotifier) *App {
	t.Helper()
	b := NewAppBuilder(testConfig(t), WithSource(src), WithNotifier(n))
	a, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuilderBuildsApp(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{}}
	a := buildTestApp(t, src, &captureNotifier{})

	require.NotNil(t, a.Engine())
	st := a.Engine().Status()
	assert.Equal(t, "BTCUSDT", st.Symbol)
	assert.True(t, st.Tradable)
	assert.Zero(t, st.Stats.TotalTrades)

	_, _, ok := a.Engine().LastSignal()
	assert.False(t, ok)
}

func TestEngineTickComposesSignal(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{
		"1m":  trendCandles(120, 100, 0.05),
		"15m": trendCandles(120, 100, 0.75),
	}}
	a := buildTestApp(t, src, &captureNotifier{})

	a.Engine().Tick(context.Background())

	sig, at, ok := a.Engine().LastSignal()
	require.True(t, ok)
	assert.False(t, at.IsZero())
	assert.NotEmpty(t, sig.Factors)
	assert.Empty(t, a.Engine().Status().LastError)
}

func TestEngineTickRecordsFetchError(t *testing.T) {
	// 空数据过不了质量闸门
	src := &fakeSource{candles: map[string][]market.Candle{}}
	a := buildTestApp(t, src, &captureNotifier{})

	a.Engine().Tick(context.Background())
	assert.NotEmpty(t, a.Engine().Status().LastError)
}

func TestEngineEntryNotifies(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{
		"1m":  trendCandles(120, 100, 0.05),
		"15m": trendCandles(120, 100, 0.75),
	}}
	n := &captureNotifier{}
	a := buildTestApp(t, src, n)
	eng := a.Engine()

	eng.Tick(context.Background())
	sig, _, ok := eng.LastSignal()
	require.True(t, ok)

	if sig.Direction != strategy.Hold {
		st := eng.Status()
		require.NotNil(t, st.Position)
		n.mu.Lock()
		defer n.mu.Unlock()
		assert.NotEmpty(t, n.sent)
	}
}

func TestBuildMarketSourceUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = config.MarketConfig{ActiveSource: "missing"}
	_, err := buildMarketSource(cfg)
	require.Error(t, err)
}

func TestBuildEstimatorDisabled(t *testing.T) {
	assert.Nil(t, buildEstimator(config.EstimatorConfig{Enabled: false}))
	assert.Nil(t, buildEstimator(config.EstimatorConfig{Enabled: true, BaseURL: "  "}))
	assert.NotNil(t, buildEstimator(config.EstimatorConfig{Enabled: true, BaseURL: "http://localhost:8500", TimeoutSeconds: 3}))
}

func TestAppRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{}}
	a := buildTestApp(t, src, &captureNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}
