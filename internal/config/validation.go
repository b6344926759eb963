package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 对配置进行基础校验，任何一项失败都拒绝启动。
func validate(c *Config) error {
	if err := c.Kline.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Estimator.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (k *KlineConfig) validate() error {
	if k.HistoryLimit < 50 || k.HistoryLimit > 1500 {
		return fmt.Errorf("kline.history_limit must be in [50,1500]")
	}
	if k.CacheTTLSeconds <= 0 {
		return fmt.Errorf("kline.cache_ttl_seconds must be > 0")
	}
	if k.FetchRetries <= 0 {
		return fmt.Errorf("kline.fetch_retries must be > 0")
	}
	if k.MinRowsRequired < 35 {
		// 指标窗口最长需要 35 根K线才能产出有效值
		return fmt.Errorf("kline.min_rows_required must be >= 35")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("strategy.symbol cannot be empty")
	}
	if !IsValidInterval(s.FastInterval) {
		return fmt.Errorf("strategy.fast_interval invalid: %s", s.FastInterval)
	}
	if !IsValidInterval(s.SlowInterval) {
		return fmt.Errorf("strategy.slow_interval invalid: %s", s.SlowInterval)
	}
	if s.FastInterval == s.SlowInterval {
		return fmt.Errorf("strategy.fast_interval and slow_interval must differ")
	}
	if s.TimeframeWeight < 1 {
		return fmt.Errorf("strategy.timeframe_weight must be >= 1")
	}
	if s.MinConfidence <= 0 || s.MinConfidence > 1 {
		return fmt.Errorf("strategy.min_confidence must be in (0,1]")
	}
	if s.HighVolMinConfidence < s.MinConfidence || s.HighVolMinConfidence > 1 {
		return fmt.Errorf("strategy.high_vol_min_confidence must be in [min_confidence,1]")
	}
	if s.MinStrength < 1 || s.MinStrength > 4 {
		return fmt.Errorf("strategy.min_strength must be in [1,4]")
	}
	if s.MinRiskReward <= 0 {
		return fmt.Errorf("strategy.min_risk_reward must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxHoldMinutes <= 0 {
		return fmt.Errorf("risk.max_hold_minutes must be > 0")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("risk.cooldown_minutes must be >= 0")
	}
	if r.HoldSignalsToExit <= 0 {
		return fmt.Errorf("risk.hold_signals_to_exit must be > 0")
	}
	if r.MinHoldConfidence <= 0 || r.MinHoldConfidence >= 1 {
		return fmt.Errorf("risk.min_hold_confidence must be in (0,1)")
	}
	if r.TrailingStopEnabled {
		if r.TrailingActivationPct <= 0 {
			return fmt.Errorf("risk.trailing_activation_pct must be > 0")
		}
		if r.TrailingDistancePct <= 0 || r.TrailingDistancePct >= 100 {
			return fmt.Errorf("risk.trailing_distance_pct must be in (0,100)")
		}
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone invalid: %s", s.Timezone)
	}
	open, err := parseClock(s.Open)
	if err != nil {
		return fmt.Errorf("session.open invalid: %s", s.Open)
	}
	closeAt, err := parseClock(s.Close)
	if err != nil {
		return fmt.Errorf("session.close invalid: %s", s.Close)
	}
	if !open.Before(closeAt) {
		return fmt.Errorf("session.open must be before session.close")
	}
	return nil
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("15:04", strings.TrimSpace(s))
}

func (e *EstimatorConfig) validate() error {
	if !e.Enabled {
		return nil
	}
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("estimator.base_url cannot be empty")
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("estimator.timeout_seconds must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("market.sources requires at least one source")
	}
	activeName := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	enabled := 0
	activeFound := false
	for _, src := range m.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("market source %s missing rest_base_url", src.Name)
		}
		if src.Proxy.Enabled && src.Proxy.RESTURL == "" {
			return fmt.Errorf("market source %s has proxy enabled but no rest_url", src.Name)
		}
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if activeName == "" || name == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled market.active_source=%s not found", m.ActiveSource)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
