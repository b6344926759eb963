package config

import "strings"

// Config 是 sentra 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Kline     KlineConfig     `toml:"kline"`
	Market    MarketConfig    `toml:"market"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Risk      RiskConfig      `toml:"risk"`
	Session   SessionConfig   `toml:"session"`
	Estimator EstimatorConfig `toml:"estimator"`
	Notify    NotifyConfig    `toml:"notify"`
	Store     StoreConfig     `toml:"store"`
	Backtest  BacktestConfig  `toml:"backtest"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// KlineConfig 控制行情拉取、缓存与质量下限。
type KlineConfig struct {
	HistoryLimit    int `toml:"history_limit"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
	FetchRetries    int `toml:"fetch_retries"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
	MinRowsRequired int `toml:"min_rows_required"`
}

// StrategyConfig 描述信号合成的周期、权重与准入门槛。
type StrategyConfig struct {
	Symbol               string  `toml:"symbol"`
	FastInterval         string  `toml:"fast_interval"`
	SlowInterval         string  `toml:"slow_interval"`
	TimeframeWeight      float64 `toml:"timeframe_weight"`
	MinConfidence        float64 `toml:"min_confidence"`
	MinStrength          int     `toml:"min_strength"`
	MinRiskReward        float64 `toml:"min_risk_reward"`
	HighVolMinConfidence float64 `toml:"high_vol_min_confidence"`
	ProfilesPath         string  `toml:"profiles_path"`
	ActiveProfile        string  `toml:"active_profile"`
}

// RiskConfig 描述仓位状态机的风控参数。
type RiskConfig struct {
	MaxHoldMinutes        int     `toml:"max_hold_minutes"`
	CooldownMinutes       int     `toml:"cooldown_minutes"`
	HoldSignalsToExit     int     `toml:"hold_signals_to_exit"`
	MinHoldConfidence     float64 `toml:"min_hold_confidence"`
	TrailingStopEnabled   bool    `toml:"trailing_stop_enabled"`
	TrailingActivationPct float64 `toml:"trailing_activation_pct"`
	TrailingDistancePct   float64 `toml:"trailing_distance_pct"`
}

// SessionConfig 描述交易时段闸门；7x24 市场可关闭。
type SessionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Timezone string `toml:"timezone"`
	Open     string `toml:"open"`
	Close    string `toml:"close"`
}

// EstimatorConfig 描述可选的外部概率估计服务。
type EstimatorConfig struct {
	Enabled         bool   `toml:"enabled"`
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	BreakThreshold  int    `toml:"break_threshold"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type StoreConfig struct {
	TradeLogPath string `toml:"trade_log_path"`
}

type BacktestConfig struct {
	DataRoot       string  `toml:"data_root"`
	InitialBalance float64 `toml:"initial_balance"`
	RenderEquity   bool    `toml:"render_equity"`
	OutputDir      string  `toml:"output_dir"`
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://fapi.binance.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
