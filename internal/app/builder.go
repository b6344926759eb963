package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentra/internal/config"
	"sentra/internal/gateway/binance"
	"sentra/internal/gateway/estimator"
	"sentra/internal/gateway/notifier"
	"sentra/internal/logger"
	"sentra/internal/market"
	"sentra/internal/position"
	"sentra/internal/profile"
	"sentra/internal/scheduler"
	"sentra/internal/store/gormstore"
	"sentra/internal/strategy"
	"sentra/internal/transport/httpapi"
)

// AppBuilder 把配置装配成可运行的 App。字段可被测试替换。
type AppBuilder struct {
	cfg *config.Config

	sourceFn    func(*config.Config) (market.Source, error)
	estimatorFn func(config.EstimatorConfig) strategy.ProbabilityEstimator
	notifierFn  func(config.NotifyConfig) notifier.TextNotifier
	tradeFn     func(string) (*gormstore.TradeStore, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource 覆盖行情源构造，测试注入用。
func WithSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config) (market.Source, error) { return src, nil }
	}
}

// WithNotifier 覆盖通知器构造。
func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.NotifyConfig) notifier.TextNotifier { return n }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		sourceFn:    buildMarketSource,
		estimatorFn: buildEstimator,
		notifierFn:  buildNotifier,
		tradeFn:     gormstore.NewTradeStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	src, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建行情源失败: %w", err)
	}
	fetcher := market.NewCachedFetcher(src,
		time.Duration(cfg.Kline.CacheTTLSeconds)*time.Second,
		cfg.Kline.FetchRetries,
	)

	gate, err := scheduler.NewSessionGate(cfg.Session.Enabled, cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close)
	if err != nil {
		return nil, fmt.Errorf("构建交易时段闸门失败: %w", err)
	}

	trades, err := b.tradeFn(cfg.Store.TradeLogPath)
	if err != nil {
		return nil, fmt.Errorf("打开成交日志失败: %w", err)
	}

	// profile 覆盖：主配置给底，active profile 叠加
	composerCfg := strategy.ComposerConfig{
		FastLabel:            cfg.Strategy.FastInterval,
		SlowLabel:            cfg.Strategy.SlowInterval,
		TimeframeWeight:      cfg.Strategy.TimeframeWeight,
		MinConfidence:        cfg.Strategy.MinConfidence,
		MinStrength:          strategy.Strength(cfg.Strategy.MinStrength),
		MinRiskReward:        cfg.Strategy.MinRiskReward,
		HighVolMinConfidence: cfg.Strategy.HighVolMinConfidence,
	}
	riskCfg := position.Config{
		MaxHold:               time.Duration(cfg.Risk.MaxHoldMinutes) * time.Minute,
		Cooldown:              time.Duration(cfg.Risk.CooldownMinutes) * time.Minute,
		HoldSignalsToExit:     cfg.Risk.HoldSignalsToExit,
		TrailingEnabled:       cfg.Risk.TrailingStopEnabled,
		TrailingActivationPct: cfg.Risk.TrailingActivationPct,
		TrailingDistancePct:   cfg.Risk.TrailingDistancePct,
	}

	var profiles *profile.Registry
	activeProfile := strings.TrimSpace(cfg.Strategy.ActiveProfile)
	if path := strings.TrimSpace(cfg.Strategy.ProfilesPath); path != "" {
		profiles, err = profile.NewRegistry(path)
		if err != nil {
			return nil, fmt.Errorf("加载 profile 失败: %w", err)
		}
		if activeProfile != "" {
			p, ok := profiles.Profile(activeProfile)
			if !ok {
				return nil, fmt.Errorf("未知 profile: %s", activeProfile)
			}
			composerCfg = p.ApplyComposer(composerCfg)
			riskCfg = p.ApplyRisk(riskCfg)
		}
	}

	mgr := position.NewManager(riskCfg)
	history, err := trades.LoadAll(ctx, cfg.Strategy.Symbol)
	if err != nil {
		return nil, fmt.Errorf("恢复历史成交失败: %w", err)
	}
	if len(history) > 0 {
		if err := mgr.Restore(history); err != nil {
			return nil, err
		}
		logger.Infof("已恢复 %d 笔历史成交", len(history))
	}

	engine := NewLiveEngine(EngineDeps{
		Config:    cfg,
		Fetcher:   fetcher,
		Source:    src,
		Estimator: b.estimatorFn(cfg.Estimator),
		Manager:   mgr,
		Gate:      gate,
		Trades:    trades,
		Notifier:  b.notifierFn(cfg.Notify),
	}, composerCfg, activeProfile)

	if profiles != nil && activeProfile != "" {
		base := composerCfg
		profiles.OnChange(func(snap profile.Snapshot) {
			if p, ok := snap.Profiles[activeProfile]; ok {
				engine.ApplyProfile(p, base)
			}
		})
	}

	httpSrv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Engine: engine,
		Trades: trades,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		engine:  engine,
		httpSrv: httpSrv,
		trades:  trades,
		source:  src,
	}, nil
}

func buildMarketSource(cfg *config.Config) (market.Source, error) {
	active := strings.TrimSpace(cfg.Market.ActiveSource)
	for _, s := range cfg.Market.Sources {
		if !strings.EqualFold(s.Name, active) {
			continue
		}
		if !s.Enabled {
			return nil, fmt.Errorf("行情源 %s 未启用", s.Name)
		}
		return binance.New(binance.Config{
			RESTBaseURL:  s.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.Kline.TimeoutSeconds) * time.Second,
			ProxyEnabled: s.Proxy.Enabled,
			RESTProxyURL: s.Proxy.RESTURL,
		})
	}
	return nil, fmt.Errorf("未找到行情源: %s", active)
}

func buildEstimator(cfg config.EstimatorConfig) strategy.ProbabilityEstimator {
	if !cfg.Enabled || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	client := estimator.NewClient(cfg.BaseURL,
		estimator.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
	)
	// 估计服务挂掉时熔断，信号层走中性降级而不是每个周期干等超时。
	return estimator.Guard(client, cfg.BreakThreshold, time.Duration(cfg.CooldownSeconds)*time.Second)
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	tg := cfg.Telegram
	if !tg.Enabled || tg.BotToken == "" || tg.ChatID == "" {
		return notifier.Noop{}
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID)
}
