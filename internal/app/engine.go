package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sentra/internal/config"
	"sentra/internal/gateway/notifier"
	"sentra/internal/indicator"
	"sentra/internal/logger"
	"sentra/internal/market"
	"sentra/internal/position"
	"sentra/internal/profile"
	"sentra/internal/scheduler"
	"sentra/internal/store/gormstore"
	"sentra/internal/strategy"
	"sentra/internal/transport/httpapi"
)

// 中文说明：
// LiveEngine 是实盘主循环：K线收盘对齐触发 → 拉取行情 → 质量闸门 →
// 指标帧 → 信号合成 → 持仓状态机 → 落库与推送。

// LiveEngine 驱动单标的的信号决策循环。
type LiveEngine struct {
	cfg       *config.Config
	fetcher   *market.CachedFetcher
	source    market.Source
	estimator strategy.ProbabilityEstimator
	manager   *position.Manager
	gate      *scheduler.SessionGate
	trades    *gormstore.TradeStore
	notify    notifier.TextNotifier

	mu            sync.Mutex
	composer      *strategy.Composer
	activeProfile string
	lastSig       strategy.Signal
	lastSigAt     time.Time
	hasSig        bool
	lastTick      time.Time
	lastErr       string
	entryFactors  map[string]int
}

// EngineDeps 汇集引擎依赖。
type EngineDeps struct {
	Config    *config.Config
	Fetcher   *market.CachedFetcher
	Source    market.Source
	Estimator strategy.ProbabilityEstimator
	Manager   *position.Manager
	Gate      *scheduler.SessionGate
	Trades    *gormstore.TradeStore
	Notifier  notifier.TextNotifier
}

func NewLiveEngine(deps EngineDeps, composerCfg strategy.ComposerConfig, activeProfile string) *LiveEngine {
	notify := deps.Notifier
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &LiveEngine{
		cfg:           deps.Config,
		fetcher:       deps.Fetcher,
		source:        deps.Source,
		estimator:     deps.Estimator,
		manager:       deps.Manager,
		gate:          deps.Gate,
		trades:        deps.Trades,
		notify:        notify,
		composer:      strategy.NewComposer(composerCfg, deps.Estimator),
		activeProfile: activeProfile,
	}
}

// ApplyProfile 热更新合成阈值。风控参数在下次重启时生效。
func (e *LiveEngine) ApplyProfile(p profile.Profile, base strategy.ComposerConfig) {
	cfg := p.ApplyComposer(base)
	e.mu.Lock()
	e.composer = strategy.NewComposer(cfg, e.estimator)
	e.activeProfile = p.ID
	e.mu.Unlock()
	logger.Infof("策略 profile 已切换: %s", p.ID)
}

// Run 阻塞运行，按快周期收盘对齐触发，直到 ctx 取消。
func (e *LiveEngine) Run(ctx context.Context) error {
	st := e.cfg.Strategy
	interval, ok := scheduler.ParseIntervalDuration(st.FastInterval)
	if !ok {
		return fmt.Errorf("无法解析快周期: %s", st.FastInterval)
	}

	msg := notifier.BuildStartupMessage(st.Symbol, st.FastInterval, st.SlowInterval, time.Now())
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("启动通知发送失败: %v", err)
	}

	// 收盘后留 2 秒等交易所把最后一根K线定稿
	sched := scheduler.NewAlignedScheduler(ctx, interval, 2*time.Second)
	sched.Start(func() {
		tickCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		e.Tick(tickCtx)
	})
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Tick 执行一轮完整决策，错误记录在状态里而不中断循环。
func (e *LiveEngine) Tick(ctx context.Context) {
	e.mu.Lock()
	e.lastTick = time.Now()
	e.mu.Unlock()

	if err := e.tick(ctx); err != nil {
		logger.Errorf("决策循环失败: %v", err)
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.lastErr = ""
	e.mu.Unlock()
}

func (e *LiveEngine) tick(ctx context.Context) error {
	st := e.cfg.Strategy
	kl := e.cfg.Kline

	fastCandles, err := e.fetcher.Fetch(ctx, st.Symbol, st.FastInterval, kl.HistoryLimit)
	if err != nil {
		return fmt.Errorf("拉取 %s 失败: %w", st.FastInterval, err)
	}
	slowCandles, err := e.fetcher.Fetch(ctx, st.Symbol, st.SlowInterval, kl.HistoryLimit)
	if err != nil {
		return fmt.Errorf("拉取 %s 失败: %w", st.SlowInterval, err)
	}
	if err := market.CheckUsable(fastCandles, kl.MinRowsRequired); err != nil {
		return fmt.Errorf("%s 数据不可用: %w", st.FastInterval, err)
	}
	if err := market.CheckUsable(slowCandles, kl.MinRowsRequired); err != nil {
		return fmt.Errorf("%s 数据不可用: %w", st.SlowInterval, err)
	}

	fastFrame, err := indicator.Compute(st.Symbol, st.FastInterval, fastCandles)
	if err != nil {
		return err
	}
	slowFrame, err := indicator.Compute(st.Symbol, st.SlowInterval, slowCandles)
	if err != nil {
		return err
	}

	e.mu.Lock()
	composer := e.composer
	e.mu.Unlock()

	sig, err := composer.Compose(ctx, fastFrame, slowFrame)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.lastSig = sig
	e.lastSigAt = time.Now()
	e.hasSig = true
	e.mu.Unlock()

	price := market.Candles(fastCandles).Last().Close
	logger.Debugf("信号: %s %s conf=%.2f regime=%s price=%.2f",
		sig.Direction, sig.Strength, sig.Confidence, sig.Regime, price)

	if e.manager.Holding() {
		return e.handleExit(ctx, price, sig)
	}
	return e.handleEntry(ctx, sig)
}

func (e *LiveEngine) handleExit(ctx context.Context, price float64, sig strategy.Signal) error {
	shouldExit, reason := e.manager.CheckExit(price, sig.Direction, sig.Confidence, e.cfg.Risk.MinHoldConfidence)
	if !shouldExit {
		return nil
	}
	trade, err := e.manager.Exit(price, reason)
	if err != nil {
		return err
	}
	logger.Infof("平仓 %s %s: %.2f → %.2f pnl=%+.2f%%",
		e.cfg.Strategy.Symbol, reason, trade.EntryPrice, trade.ExitPrice, trade.PnLPct)

	e.mu.Lock()
	factors := e.entryFactors
	e.entryFactors = nil
	e.mu.Unlock()

	if e.trades != nil {
		if err := e.trades.Append(ctx, e.cfg.Strategy.Symbol, trade, factors); err != nil {
			logger.Errorf("成交落库失败: %v", err)
		}
	}
	msg := notifier.BuildExitMessage(e.cfg.Strategy.Symbol, trade, e.manager.Stats(), time.Now())
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("平仓通知发送失败: %v", err)
	}
	return nil
}

func (e *LiveEngine) handleEntry(_ context.Context, sig strategy.Signal) error {
	dir, ok := position.FromSignal(sig.Direction)
	if !ok {
		return nil
	}
	if e.gate != nil && !e.gate.Tradable() {
		logger.Debugf("交易时段之外，忽略 %s 信号", sig.Direction)
		return nil
	}
	if can, why := e.manager.CanEnter(); !can {
		logger.Debugf("暂不开仓: %s", why)
		return nil
	}
	if err := e.manager.Enter(dir, sig.EntryPrice, sig.TargetPrice, sig.StopLoss, sig.Confidence, sig.Regime); err != nil {
		return err
	}
	logger.Infof("开仓 %s %s @%.2f target=%.2f stop=%.2f conf=%.2f",
		e.cfg.Strategy.Symbol, dir, sig.EntryPrice, sig.TargetPrice, sig.StopLoss, sig.Confidence)

	e.mu.Lock()
	e.entryFactors = sig.Factors
	e.mu.Unlock()

	msg := notifier.BuildEntryMessage(e.cfg.Strategy.Symbol, sig, time.Now())
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("开仓通知发送失败: %v", err)
	}
	return nil
}

// Status 实现 httpapi.EngineView。
func (e *LiveEngine) Status() httpapi.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.cfg.Strategy
	snap := httpapi.StatusSnapshot{
		Symbol:        st.Symbol,
		FastInterval:  st.FastInterval,
		SlowInterval:  st.SlowInterval,
		ActiveProfile: e.activeProfile,
		Tradable:      e.gate == nil || e.gate.Tradable(),
		LastTick:      e.lastTick,
		LastError:     e.lastErr,
		Position:      e.manager.Current(),
		Stats:         e.manager.Stats(),
	}
	if e.source != nil {
		snap.Source = e.source.Stats()
	}
	return snap
}

// LastSignal 实现 httpapi.EngineView。
func (e *LiveEngine) LastSignal() (strategy.Signal, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSig, e.lastSigAt, e.hasSig
}
