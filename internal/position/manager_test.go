package position

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra/internal/strategy"
)

func testConfig() Config {
	return Config{
		MaxHold:               240 * time.Minute,
		Cooldown:              3 * time.Minute,
		HoldSignalsToExit:     3,
		TrailingEnabled:       true,
		TrailingActivationPct: 1.0,
		TrailingDistancePct:   0.5,
	}
}

// newTestManager 返回带假时钟的 Manager 与推表函数。
func newTestManager(cfg Config) (*Manager, func(d time.Duration)) {
	m := NewManager(cfg)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }
	return m, func(d time.Duration) { now = now.Add(d) }
}

func mustEnterLong(t *testing.T, m *Manager, entry, target, stop float64) {
	t.Helper()
	require.NoError(t, m.Enter(Long, entry, target, stop, 0.8, strategy.Ranging))
}

func TestHoldingIffPositionPresent(t *testing.T) {
	m, _ := newTestManager(testConfig())
	assert.False(t, m.Holding())
	assert.Nil(t, m.Current())

	mustEnterLong(t, m, 100, 103, 99)
	assert.True(t, m.Holding())
	assert.NotNil(t, m.Current())

	_, err := m.Exit(101, ExitManual)
	require.NoError(t, err)
	assert.False(t, m.Holding())
	assert.Nil(t, m.Current())
}

func TestCanEnterIsIdempotent(t *testing.T) {
	m, _ := newTestManager(testConfig())
	for i := 0; i < 5; i++ {
		ok, reason := m.CanEnter()
		assert.True(t, ok)
		assert.Empty(t, reason)
	}
	assert.False(t, m.Holding())
}

func TestEnterWhileHoldingRefused(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 103, 99)

	err := m.Enter(Short, 100, 97, 101, 0.9, strategy.Ranging)
	assert.ErrorIs(t, err, ErrAlreadyHolding)

	// 原持仓未被覆盖
	pos := m.Current()
	require.NotNil(t, pos)
	assert.Equal(t, Long, pos.Direction)
	assert.Equal(t, 100.0, pos.EntryPrice)
}

func TestExitWhileFlatRefused(t *testing.T) {
	m, _ := newTestManager(testConfig())
	_, err := m.Exit(100, ExitManual)
	assert.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestCooldownBlocksReentry(t *testing.T) {
	m, advance := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 103, 99)
	_, err := m.Exit(101, ExitTargetHit)
	require.NoError(t, err)

	ok, reason := m.CanEnter()
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")
	assert.ErrorIs(t, m.Enter(Long, 101, 104, 100, 0.8, strategy.Ranging), ErrCooldownActive)

	advance(2 * time.Minute)
	ok, _ = m.CanEnter()
	assert.False(t, ok)

	advance(1 * time.Minute) // 正好满 3 分钟
	ok, reason = m.CanEnter()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.NoError(t, m.Enter(Long, 101, 104, 100, 0.8, strategy.Ranging))
}

func TestZeroCooldownAllowsImmediateReentry(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = 0
	m, _ := newTestManager(cfg)
	mustEnterLong(t, m, 100, 103, 99)
	_, err := m.Exit(101, ExitManual)
	require.NoError(t, err)
	ok, _ := m.CanEnter()
	assert.True(t, ok)
}

func TestStopLossPriorityOverTarget(t *testing.T) {
	// 一根K线同时穿过目标与止损时，优先级 1 的止损先判
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 101, 102)
	hit, reason := m.CheckExit(101.5, strategy.Buy, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitStopLoss, reason)
}

func TestScenarioStopLossPath(t *testing.T) {
	// LONG @100，target 103，stop 99；价格 [100.5, 101.2, 99.5]
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 103, 99)

	hit, _ := m.CheckExit(100.5, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
	hit, _ = m.CheckExit(101.2, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
	hit, reason := m.CheckExit(99.5, strategy.Buy, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitStopLoss, reason)

	trade, err := m.Exit(99.5, reason)
	require.NoError(t, err)
	assert.InDelta(t, -0.50, trade.PnL, 1e-9)
	assert.InDelta(t, -0.50, trade.PnLPct, 1e-9)
	// 极值追踪：最高 101.2，最低 99.5
	assert.InDelta(t, 1.2, trade.MFE, 1e-9)
	assert.InDelta(t, -0.5, trade.MAE, 1e-9)
}

func TestScenarioTrailingStop(t *testing.T) {
	// LONG @100，升至 102 后回落到 101.4（< 102×0.995=101.49）
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	hit, _ := m.CheckExit(102.0, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)

	hit, reason := m.CheckExit(101.4, strategy.Buy, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitTargetHit, reason) // 移动止盈沿用 TARGET_HIT 标签

	trade, err := m.Exit(101.4, reason)
	require.NoError(t, err)
	assert.InDelta(t, 1.40, trade.PnL, 1e-9)
	assert.InDelta(t, 2.0, trade.MFE, 1e-9)
}

func TestTrailingRequiresActivation(t *testing.T) {
	// 浮盈不足激活线时即便回撤也不触发
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	hit, _ := m.CheckExit(100.8, strategy.Buy, 0.9, 0.5) // 0.8% < 1.0%
	assert.False(t, hit)
	hit, _ = m.CheckExit(100.2, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
}

func TestTrailingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingEnabled = false
	m, _ := newTestManager(cfg)
	mustEnterLong(t, m, 100, 110, 95)

	_, _ = m.CheckExit(102.0, strategy.Buy, 0.9, 0.5)
	hit, _ := m.CheckExit(101.4, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
}

func TestTrailingStopShort(t *testing.T) {
	m, _ := newTestManager(testConfig())
	require.NoError(t, m.Enter(Short, 100, 90, 105, 0.8, strategy.Ranging))

	hit, _ := m.CheckExit(98.0, strategy.Sell, 0.9, 0.5) // 2% 浮盈，最低 98
	assert.False(t, hit)

	// 98×1.005=98.49，回升到 98.6 触发
	hit, reason := m.CheckExit(98.6, strategy.Sell, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitTargetHit, reason)
}

func TestSignalReversalExit(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	hit, reason := m.CheckExit(100.5, strategy.Sell, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitSignalReversal, reason)
}

func TestConfidenceDropExit(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	hit, reason := m.CheckExit(100.5, strategy.Buy, 0.4, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitConfidenceDrop, reason)
}

func TestTrendWeakenedStreak(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	hit, _ := m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	assert.False(t, hit)
	hit, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	assert.False(t, hit)
	hit, reason := m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitTrendWeakened, reason)
}

func TestTrendStreakResetOnlyOnSameDirection(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	_, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	_, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	// 同向确认清零
	hit, _ := m.CheckExit(100.5, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
	assert.Equal(t, 0, m.Current().HoldSignalStreak)

	// 清零后需要重新累计三次
	_, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	_, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	hit, _ = m.CheckExit(100.5, strategy.Hold, 0.9, 0.5)
	assert.True(t, hit)
}

func TestTimeBasedExit(t *testing.T) {
	m, advance := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)

	advance(239 * time.Minute)
	hit, _ := m.CheckExit(100.5, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)

	advance(2 * time.Minute)
	hit, reason := m.CheckExit(100.5, strategy.Buy, 0.9, 0.5)
	assert.True(t, hit)
	assert.Equal(t, ExitTimeBased, reason)
}

func TestCheckExitWhileFlat(t *testing.T) {
	m, _ := newTestManager(testConfig())
	hit, reason := m.CheckExit(100, strategy.Buy, 0.9, 0.5)
	assert.False(t, hit)
	assert.Equal(t, ExitNone, reason)
}

func TestShortTradeBookkeeping(t *testing.T) {
	m, _ := newTestManager(testConfig())
	require.NoError(t, m.Enter(Short, 100, 95, 103, 0.8, strategy.Ranging))

	_, _ = m.CheckExit(101.0, strategy.Sell, 0.9, 0.5) // 最高 101
	_, _ = m.CheckExit(97.0, strategy.Sell, 0.9, 0.5)  // 最低 97

	trade, err := m.Exit(98.0, ExitManual)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, trade.PnL, 1e-9)   // entry-exit
	assert.InDelta(t, 2.0, trade.PnLPct, 1e-9)
	assert.InDelta(t, 3.0, trade.MFE, 1e-9) // entry-lowest
	assert.InDelta(t, -1.0, trade.MAE, 1e-9) // entry-highest
}

func TestPerformanceStats(t *testing.T) {
	m, advance := newTestManager(testConfig())
	record := func(pnl float64) {
		entry := 100.0
		require.NoError(t, m.Enter(Long, entry, entry+100, entry-100, 0.8, strategy.Ranging))
		_, err := m.Exit(entry+pnl, ExitManual)
		require.NoError(t, err)
		advance(5 * time.Minute)
	}
	for _, pnl := range []float64{+5, -2, +3, -1} {
		record(pnl)
	}

	s := m.Stats()
	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 5.0, s.TotalPnL, 1e-9)
	assert.InDelta(t, 8.0/3.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 4.0, s.AvgWin, 1e-9)
	assert.InDelta(t, -1.5, s.AvgLoss, 1e-9)
	assert.InDelta(t, 5.0, s.LargestWin, 1e-9)
	assert.InDelta(t, -2.0, s.LargestLoss, 1e-9)
}

func TestStatsZeroTrades(t *testing.T) {
	m, _ := newTestManager(testConfig())
	s := m.Stats()
	assert.Equal(t, 0, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
}

func TestStatsProfitFactorInfiniteWithoutLosses(t *testing.T) {
	m, advance := newTestManager(testConfig())
	for _, pnl := range []float64{+5, +3} {
		require.NoError(t, m.Enter(Long, 100, 200, 0.01, 0.8, strategy.Ranging))
		_, err := m.Exit(100+pnl, ExitManual)
		require.NoError(t, err)
		advance(5 * time.Minute)
	}
	s := m.Stats()
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
}

func TestStatsDoesNotMutateHistory(t *testing.T) {
	m, _ := newTestManager(testConfig())
	mustEnterLong(t, m, 100, 110, 95)
	_, err := m.Exit(105, ExitManual)
	require.NoError(t, err)

	before := m.History()
	_ = m.Stats()
	assert.Equal(t, before, m.History())
}

func TestRestoreSeedsStats(t *testing.T) {
	m, _ := newTestManager(testConfig())
	exit := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	trades := []Trade{
		{Direction: Long, PnL: 5, ExitTime: exit},
		{Direction: Short, PnL: -2, ExitTime: exit.Add(time.Hour)},
	}
	require.NoError(t, m.Restore(trades))
	assert.Equal(t, 2, m.Stats().TotalTrades)

	// 已有历史后不允许再次回灌
	assert.Error(t, m.Restore(trades))
}
