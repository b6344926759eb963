package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultAppLogPath      = "/data/logs/sentra-live.log"
	defaultKlineHistory    = 300
	defaultKlineCacheTTL   = 60
	defaultKlineRetries    = 3
	defaultKlineTimeout    = 15
	defaultKlineMinRows    = 50
	defaultMarketName      = "binance"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultSymbol          = "BTCUSDT"
	defaultFastInterval    = "1m"
	defaultSlowInterval    = "15m"
	defaultTimeframeWeight = 1.5
	defaultMinConfidence   = 0.65
	defaultMinStrength     = 3
	defaultMinRiskReward   = 1.5
	defaultHighVolMinConf  = 0.75
	defaultProfilesPath    = "configs/profiles.yaml"
	defaultMaxHoldMinutes  = 240
	defaultCooldownMinutes = 3
	defaultHoldSignals     = 3
	defaultMinHoldConf     = 0.50
	defaultTrailActivation = 1.0
	defaultTrailDistance   = 0.5
	defaultSessionTimezone = "America/New_York"
	defaultSessionOpen     = "09:30"
	defaultSessionClose    = "16:00"
	defaultEstimatorURL    = "http://estimator:8500"
	defaultEstimatorWait   = 5
	defaultEstimatorBreaks = 3
	defaultEstimatorCool   = 30
	defaultTradeLogPath    = "/data/db/trades.db"
	defaultBacktestRoot    = "/data/backtest"
	defaultBacktestBalance = 10000
	defaultBacktestOutput  = "/data/backtest/reports"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Kline.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Estimator.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (k *KlineConfig) applyDefaults(keys keySet) {
	if k == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "kline.history_limit",
			need:  func() bool { return k.HistoryLimit <= 0 },
			apply: func() { k.HistoryLimit = defaultKlineHistory },
		},
		fieldDefault{
			key:   "kline.cache_ttl_seconds",
			need:  func() bool { return k.CacheTTLSeconds <= 0 },
			apply: func() { k.CacheTTLSeconds = defaultKlineCacheTTL },
		},
		fieldDefault{
			key:   "kline.fetch_retries",
			need:  func() bool { return k.FetchRetries <= 0 },
			apply: func() { k.FetchRetries = defaultKlineRetries },
		},
		fieldDefault{
			key:   "kline.timeout_seconds",
			need:  func() bool { return k.TimeoutSeconds <= 0 },
			apply: func() { k.TimeoutSeconds = defaultKlineTimeout },
		},
		fieldDefault{
			key:   "kline.min_rows_required",
			need:  func() bool { return k.MinRowsRequired <= 0 },
			apply: func() { k.MinRowsRequired = defaultKlineMinRows },
		},
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.symbol", &s.Symbol, defaultSymbol),
		stringFieldDefault("strategy.fast_interval", &s.FastInterval, defaultFastInterval),
		stringFieldDefault("strategy.slow_interval", &s.SlowInterval, defaultSlowInterval),
		stringFieldDefault("strategy.profiles_path", &s.ProfilesPath, defaultProfilesPath),
		fieldDefault{
			key:   "strategy.timeframe_weight",
			need:  func() bool { return s.TimeframeWeight <= 0 },
			apply: func() { s.TimeframeWeight = defaultTimeframeWeight },
		},
		fieldDefault{
			key:   "strategy.min_confidence",
			need:  func() bool { return s.MinConfidence <= 0 },
			apply: func() { s.MinConfidence = defaultMinConfidence },
		},
		fieldDefault{
			key:   "strategy.min_strength",
			need:  func() bool { return s.MinStrength <= 0 },
			apply: func() { s.MinStrength = defaultMinStrength },
		},
		fieldDefault{
			key:   "strategy.min_risk_reward",
			need:  func() bool { return s.MinRiskReward <= 0 },
			apply: func() { s.MinRiskReward = defaultMinRiskReward },
		},
		fieldDefault{
			key:   "strategy.high_vol_min_confidence",
			need:  func() bool { return s.HighVolMinConfidence <= 0 },
			apply: func() { s.HighVolMinConfidence = defaultHighVolMinConf },
		},
	)
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_hold_minutes",
			need:  func() bool { return r.MaxHoldMinutes <= 0 },
			apply: func() { r.MaxHoldMinutes = defaultMaxHoldMinutes },
		},
		fieldDefault{
			key:   "risk.cooldown_minutes",
			need:  func() bool { return r.CooldownMinutes == 0 },
			apply: func() { r.CooldownMinutes = defaultCooldownMinutes },
		},
		fieldDefault{
			key:   "risk.hold_signals_to_exit",
			need:  func() bool { return r.HoldSignalsToExit <= 0 },
			apply: func() { r.HoldSignalsToExit = defaultHoldSignals },
		},
		fieldDefault{
			key:   "risk.min_hold_confidence",
			need:  func() bool { return r.MinHoldConfidence <= 0 },
			apply: func() { r.MinHoldConfidence = defaultMinHoldConf },
		},
		boolFieldDefault("risk.trailing_stop_enabled", &r.TrailingStopEnabled, true),
		fieldDefault{
			key:   "risk.trailing_activation_pct",
			need:  func() bool { return r.TrailingActivationPct <= 0 },
			apply: func() { r.TrailingActivationPct = defaultTrailActivation },
		},
		fieldDefault{
			key:   "risk.trailing_distance_pct",
			need:  func() bool { return r.TrailingDistancePct <= 0 },
			apply: func() { r.TrailingDistancePct = defaultTrailDistance },
		},
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultSessionTimezone),
		stringFieldDefault("session.open", &s.Open, defaultSessionOpen),
		stringFieldDefault("session.close", &s.Close, defaultSessionClose),
	)
}

func (e *EstimatorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("estimator.base_url", &e.BaseURL, defaultEstimatorURL),
		fieldDefault{
			key:   "estimator.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultEstimatorWait },
		},
		fieldDefault{
			key:   "estimator.break_threshold",
			need:  func() bool { return e.BreakThreshold <= 0 },
			apply: func() { e.BreakThreshold = defaultEstimatorBreaks },
		},
		fieldDefault{
			key:   "estimator.cooldown_seconds",
			need:  func() bool { return e.CooldownSeconds <= 0 },
			apply: func() { e.CooldownSeconds = defaultEstimatorCool },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.trade_log_path", &s.TradeLogPath, defaultTradeLogPath),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.data_root", &b.DataRoot, defaultBacktestRoot),
		stringFieldDefault("backtest.output_dir", &b.OutputDir, defaultBacktestOutput),
		fieldDefault{
			key:   "backtest.initial_balance",
			need:  func() bool { return b.InitialBalance <= 0 },
			apply: func() { b.InitialBalance = defaultBacktestBalance },
		},
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		src.Proxy.normalize()
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultMarketREST
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
