package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"sentra/internal/indicator"
	"sentra/internal/logger"
	"sentra/internal/market"
	"sentra/internal/position"
	"sentra/internal/strategy"
)

// 中文说明：
// 回测运行器：对落库的历史 K 线做逐根推演。每一步只用当前时刻之前的
// 数据合成信号，持仓管理用模拟时钟推进，和实盘走同一套决策代码。

const defaultWindow = 300

// RunConfig 描述一次回测。
type RunConfig struct {
	Symbol            string
	FastInterval      string
	SlowInterval      string
	InitialBalance    float64
	Window            int
	MinHoldConfidence float64
	Composer          strategy.ComposerConfig
	Risk              position.Config
}

func (c RunConfig) withDefaults() RunConfig {
	if c.InitialBalance <= 0 {
		c.InitialBalance = 10000
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.MinHoldConfidence <= 0 {
		c.MinHoldConfidence = 0.50
	}
	return c
}

// EquityPoint 是权益曲线上的一个采样点。
type EquityPoint struct {
	Time   int64   `json:"time"`
	Equity float64 `json:"equity"`
}

// Result 汇总一次回测的产出。
type Result struct {
	RunID          string           `json:"run_id"`
	Symbol         string           `json:"symbol"`
	FastInterval   string           `json:"fast_interval"`
	SlowInterval   string           `json:"slow_interval"`
	StartTime      int64            `json:"start_time"`
	EndTime        int64            `json:"end_time"`
	CandleCount    int              `json:"candle_count"`
	InitialBalance float64          `json:"initial_balance"`
	FinalBalance   float64          `json:"final_balance"`
	ReturnPct      float64          `json:"return_pct"`
	MaxDrawdownPct float64          `json:"max_drawdown_pct"`
	Trades         []position.Trade `json:"trades"`
	Stats          position.Stats   `json:"stats"`
	Equity         []EquityPoint    `json:"equity"`
}

// Runner 驱动回测。
type Runner struct {
	store     *Store
	estimator strategy.ProbabilityEstimator
}

func NewRunner(store *Store, estimator strategy.ProbabilityEstimator) *Runner {
	return &Runner{store: store, estimator: estimator}
}

// Run 对 start~end 区间做一次逐根回测。
func (r *Runner) Run(ctx context.Context, cfg RunConfig, start, end int64) (*Result, error) {
	cfg = cfg.withDefaults()

	fastCandles, err := r.store.RangeCandles(ctx, cfg.Symbol, cfg.FastInterval, start, end)
	if err != nil {
		return nil, err
	}
	if len(fastCandles) < indicator.MinRows {
		return nil, fmt.Errorf("快周期数据不足: %d 根 (至少 %d)", len(fastCandles), indicator.MinRows)
	}
	slowCandles, err := r.store.RangeCandles(ctx, cfg.Symbol, cfg.SlowInterval, start, end)
	if err != nil {
		return nil, err
	}
	if len(slowCandles) < indicator.MinRows {
		return nil, fmt.Errorf("慢周期数据不足: %d 根 (至少 %d)", len(slowCandles), indicator.MinRows)
	}

	var simNow time.Time
	mgr := position.NewManagerWithClock(cfg.Risk, func() time.Time { return simNow })
	composer := strategy.NewComposer(cfg.Composer, r.estimator)

	res := &Result{
		RunID:          uuid.NewString(),
		Symbol:         cfg.Symbol,
		FastInterval:   cfg.FastInterval,
		SlowInterval:   cfg.SlowInterval,
		StartTime:      fastCandles[0].OpenTime,
		EndTime:        fastCandles[len(fastCandles)-1].CloseTime,
		CandleCount:    len(fastCandles),
		InitialBalance: cfg.InitialBalance,
	}

	balance := cfg.InitialBalance
	slowIdx := 0

	for i := indicator.MinRows - 1; i < len(fastCandles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := fastCandles[i]
		simNow = time.UnixMilli(cur.CloseTime)
		price := cur.Close

		// 慢周期只用已收盘的部分
		for slowIdx < len(slowCandles) && slowCandles[slowIdx].CloseTime <= cur.CloseTime {
			slowIdx++
		}
		if slowIdx < indicator.MinRows {
			continue
		}

		fastWin := window(fastCandles, i+1, cfg.Window)
		slowWin := window(slowCandles, slowIdx, cfg.Window)

		fastFrame, err := indicator.Compute(cfg.Symbol, cfg.FastInterval, fastWin)
		if err != nil {
			continue
		}
		slowFrame, err := indicator.Compute(cfg.Symbol, cfg.SlowInterval, slowWin)
		if err != nil {
			continue
		}

		sig, err := composer.Compose(ctx, fastFrame, slowFrame)
		if err != nil {
			logger.Debugf("回测信号合成失败 t=%d: %v", cur.CloseTime, err)
			continue
		}

		if mgr.Holding() {
			if shouldExit, reason := mgr.CheckExit(price, sig.Direction, sig.Confidence, cfg.MinHoldConfidence); shouldExit {
				trade, err := mgr.Exit(price, reason)
				if err != nil {
					return nil, err
				}
				balance *= 1 + trade.PnLPct/100
			}
		} else if dir, ok := position.FromSignal(sig.Direction); ok {
			if can, _ := mgr.CanEnter(); can {
				if err := mgr.Enter(dir, sig.EntryPrice, sig.TargetPrice, sig.StopLoss, sig.Confidence, sig.Regime); err != nil {
					return nil, err
				}
			}
		}

		res.Equity = append(res.Equity, EquityPoint{Time: cur.CloseTime, Equity: markToMarket(balance, mgr, price)})
	}

	// 收尾：强平未了结仓位
	if mgr.Holding() {
		last := fastCandles[len(fastCandles)-1]
		simNow = time.UnixMilli(last.CloseTime)
		trade, err := mgr.Exit(last.Close, position.ExitManual)
		if err != nil {
			return nil, err
		}
		balance *= 1 + trade.PnLPct/100
		res.Equity = append(res.Equity, EquityPoint{Time: last.CloseTime, Equity: balance})
	}

	res.Trades = mgr.History()
	res.Stats = mgr.Stats()
	res.FinalBalance = round2(balance)
	res.ReturnPct = round2((balance/cfg.InitialBalance - 1) * 100)
	res.MaxDrawdownPct = round2(maxDrawdown(res.Equity))
	return res, nil
}

// markToMarket 返回含浮动盈亏的权益。
func markToMarket(balance float64, mgr *position.Manager, price float64) float64 {
	if pos := mgr.Current(); pos != nil {
		return balance * (1 + pos.UnrealizedPct(price)/100)
	}
	return balance
}

// maxDrawdown 返回权益曲线的最大回撤百分比（正数）。
func maxDrawdown(points []EquityPoint) float64 {
	peak := 0.0
	worst := 0.0
	for _, p := range points {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// window 返回前 n 根中最近 size 根。
func window(candles market.Candles, n, size int) market.Candles {
	if n > len(candles) {
		n = len(candles)
	}
	lo := n - size
	if lo < 0 {
		lo = 0
	}
	return candles[lo:n]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
