package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sentra/internal/analysis/visual"
	"sentra/internal/backtest"
	"sentra/internal/config"
	"sentra/internal/gateway/binance"
	"sentra/internal/gateway/estimator"
	"sentra/internal/logger"
	"sentra/internal/position"
	"sentra/internal/strategy"
)

// 回测入口：sync 同步历史数据，run 跑一次回测并可选渲染报告。
func main() {
	var (
		cfgPath = flag.String("config", envOr("SENTRA_CONFIG", "configs/config.yaml"), "配置文件路径")
		mode    = flag.String("mode", "run", "sync | run")
		days    = flag.Int("days", 7, "回测/同步的天数")
		limit   = flag.Int("limit", 1500, "sync 模式单周期拉取的K线数")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := backtest.NewStore(cfg.Backtest.DataRoot)
	if err != nil {
		log.Fatalf("打开回测数据目录失败: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	switch *mode {
	case "sync":
		runSync(ctx, cfg, store, *limit)
	case "run":
		runBacktest(ctx, cfg, store, *days)
	default:
		log.Fatalf("未知 mode: %s", *mode)
	}
}

func runSync(ctx context.Context, cfg *config.Config, store *backtest.Store, limit int) {
	src, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("构建行情源失败: %v", err)
	}
	defer src.Close()

	st := cfg.Strategy
	for _, interval := range []string{st.FastInterval, st.SlowInterval} {
		n, err := store.Sync(ctx, src, st.Symbol, interval, limit)
		if err != nil {
			log.Fatalf("同步 %s@%s 失败: %v", st.Symbol, interval, err)
		}
		m, err := store.Manifest(ctx, st.Symbol, interval)
		if err != nil {
			log.Fatalf("读取 manifest 失败: %v", err)
		}
		logger.Infof("同步 %s@%s: 本次 %d 根, 库内共 %d 根", st.Symbol, interval, n, m.Rows)
	}
}

func runBacktest(ctx context.Context, cfg *config.Config, store *backtest.Store, days int) {
	st := cfg.Strategy
	end := time.Now().UnixMilli()
	start := end - int64(days)*24*int64(time.Hour/time.Millisecond)

	var est strategy.ProbabilityEstimator
	if cfg.Estimator.Enabled && cfg.Estimator.BaseURL != "" {
		est = estimator.NewClient(cfg.Estimator.BaseURL,
			estimator.WithTimeout(time.Duration(cfg.Estimator.TimeoutSeconds)*time.Second))
	}

	runner := backtest.NewRunner(store, est)
	res, err := runner.Run(ctx, backtest.RunConfig{
		Symbol:            st.Symbol,
		FastInterval:      st.FastInterval,
		SlowInterval:      st.SlowInterval,
		InitialBalance:    cfg.Backtest.InitialBalance,
		MinHoldConfidence: cfg.Risk.MinHoldConfidence,
		Composer: strategy.ComposerConfig{
			FastLabel:            st.FastInterval,
			SlowLabel:            st.SlowInterval,
			TimeframeWeight:      st.TimeframeWeight,
			MinConfidence:        st.MinConfidence,
			MinStrength:          strategy.Strength(st.MinStrength),
			MinRiskReward:        st.MinRiskReward,
			HighVolMinConfidence: st.HighVolMinConfidence,
		},
		Risk: position.Config{
			MaxHold:               time.Duration(cfg.Risk.MaxHoldMinutes) * time.Minute,
			Cooldown:              time.Duration(cfg.Risk.CooldownMinutes) * time.Minute,
			HoldSignalsToExit:     cfg.Risk.HoldSignalsToExit,
			TrailingEnabled:       cfg.Risk.TrailingStopEnabled,
			TrailingActivationPct: cfg.Risk.TrailingActivationPct,
			TrailingDistancePct:   cfg.Risk.TrailingDistancePct,
		},
	}, start, end)
	if err != nil {
		log.Fatalf("回测失败: %v", err)
	}

	logger.InfoBlock(formatResult(res))

	if cfg.Backtest.RenderEquity {
		candles, err := store.RangeCandles(ctx, st.Symbol, st.FastInterval, res.StartTime, res.EndTime)
		if err != nil {
			log.Fatalf("读取K线失败: %v", err)
		}
		path, err := visual.SaveReport(ctx, res, candles, cfg.Backtest.OutputDir)
		if err != nil {
			logger.Errorf("报告渲染失败（需要可用的 headless chrome）: %v", err)
			os.Exit(1)
		}
		logger.Infof("报告已写入: %s", path)
	}
}

func formatResult(res *backtest.Result) string {
	return "回测完成 run_id=" + res.RunID + "\n" +
		fmt.Sprintf("  区间: %s ~ %s (%d 根)\n", msTime(res.StartTime), msTime(res.EndTime), res.CandleCount) +
		fmt.Sprintf("  收益: %.2f%% (%.2f → %.2f)\n", res.ReturnPct, res.InitialBalance, res.FinalBalance) +
		fmt.Sprintf("  最大回撤: %.2f%%\n", res.MaxDrawdownPct) +
		fmt.Sprintf("  成交: %d 笔, 胜率 %.0f%%, 盈亏因子 %.2f",
			res.Stats.TotalTrades, res.Stats.WinRate*100, res.Stats.ProfitFactor)
}

func msTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildSource(cfg *config.Config) (*binance.Source, error) {
	for _, s := range cfg.Market.Sources {
		if s.Enabled && s.Name == cfg.Market.ActiveSource {
			return binance.New(binance.Config{
				RESTBaseURL:  s.RESTBaseURL,
				HTTPTimeout:  time.Duration(cfg.Kline.TimeoutSeconds) * time.Second,
				ProxyEnabled: s.Proxy.Enabled,
				RESTProxyURL: s.Proxy.RESTURL,
			})
		}
	}
	return nil, errNoSource
}

var errNoSource = errors.New("未找到已启用的行情源")
