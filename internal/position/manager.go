package position

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sentra/internal/logger"
	"sentra/internal/strategy"
)

var (
	ErrAlreadyHolding = errors.New("position already open")
	ErrCooldownActive = errors.New("entry cooldown active")
	ErrNoOpenPosition = errors.New("no open position")
)

// Config 是仓位状态机的风控参数，构造时已通过 config 校验。
type Config struct {
	MaxHold           time.Duration
	Cooldown          time.Duration
	HoldSignalsToExit int

	TrailingEnabled       bool
	TrailingActivationPct float64
	TrailingDistancePct   float64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxHold <= 0 {
		out.MaxHold = 240 * time.Minute
	}
	if out.HoldSignalsToExit <= 0 {
		out.HoldSignalsToExit = 3
	}
	if out.TrailingActivationPct <= 0 {
		out.TrailingActivationPct = 1.0
	}
	if out.TrailingDistancePct <= 0 {
		out.TrailingDistancePct = 0.5
	}
	return out
}

// Manager 独占管理至多一个持仓的生命周期：开仓闸门、七个退出触发器、
// 交易记录与绩效统计。所有方法并发安全。
type Manager struct {
	cfg Config

	mu       sync.Mutex
	current  *Position
	lastExit time.Time
	history  []Trade

	nowFn func() time.Time
}

func NewManager(cfg Config) *Manager {
	return NewManagerWithClock(cfg, time.Now)
}

// NewManagerWithClock 使用自定义时钟，回测按模拟时间推进时使用。
func NewManagerWithClock(cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:   cfg.withDefaults(),
		nowFn: now,
	}
}

// Holding 返回当前是否持仓。持仓存在 ⇔ 状态为 HOLDING。
func (m *Manager) Holding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Current 返回持仓快照；FLAT 时返回 nil。
func (m *Manager) Current() *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	return &snapshot
}

// CanEnter 返回是否允许开仓及拒绝原因。只读，不改变任何状态。
func (m *Manager) CanEnter() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked()
}

func (m *Manager) canEnterLocked() (bool, string) {
	if m.current != nil {
		return false, "position already open"
	}
	if m.cfg.Cooldown > 0 && !m.lastExit.IsZero() {
		elapsed := m.nowFn().Sub(m.lastExit)
		if elapsed < m.cfg.Cooldown {
			remain := m.cfg.Cooldown - elapsed
			return false, fmt.Sprintf("cooldown %s remaining", remain.Truncate(time.Second))
		}
	}
	return true, ""
}

// Enter 开仓。重复校验开仓闸门：已持仓或冷却中返回哨兵错误，状态不变。
func (m *Manager) Enter(direction Direction, entry, target, stop, confidence float64, regime strategy.Regime) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok, _ := m.canEnterLocked(); !ok {
		if m.current != nil {
			return ErrAlreadyHolding
		}
		return ErrCooldownActive
	}
	if entry <= 0 {
		return fmt.Errorf("invalid entry price %.4f", entry)
	}

	now := m.nowFn()
	m.current = &Position{
		Direction:        direction,
		EntryPrice:       entry,
		EntryTime:        now,
		TargetPrice:      target,
		StopLoss:         stop,
		EntryConfidence:  confidence,
		Regime:           regime,
		HighestPrice:     entry,
		LowestPrice:      entry,
		HoldSignalStreak: 0,
		LastUpdate:       now,
	}
	logger.Infof("开仓 %s entry=%.2f target=%.2f stop=%.2f conf=%.2f regime=%s",
		direction, entry, target, stop, confidence, regime)
	return nil
}

// CheckExit 是每个评估周期的核心判断：先刷新极值，再按固定优先级
// 评估七个退出触发器，首个命中者即为离场原因。
func (m *Manager) CheckExit(price float64, sigDir strategy.Direction, confidence, minHoldConfidence float64) (bool, ExitReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.current
	if pos == nil {
		return false, ExitNone
	}

	// 先更新极值，触发器在新极值基础上判断
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	if price < pos.LowestPrice {
		pos.LowestPrice = price
	}
	pos.LastUpdate = m.nowFn()

	// 1. 止损
	if (pos.Direction == Long && price <= pos.StopLoss) ||
		(pos.Direction == Short && price >= pos.StopLoss) {
		return true, ExitStopLoss
	}

	// 2. 到达目标
	if (pos.Direction == Long && price >= pos.TargetPrice) ||
		(pos.Direction == Short && price <= pos.TargetPrice) {
		return true, ExitTargetHit
	}

	// 3. 移动止盈：浮盈超过激活线后，从极值回撤 distance% 即锁定利润离场。
	// 沿用 TARGET_HIT 标签（属于盈利性退出）。
	if m.cfg.TrailingEnabled && pos.UnrealizedPct(price) > m.cfg.TrailingActivationPct {
		if pos.Direction == Long {
			level := pos.HighestPrice * (1 - m.cfg.TrailingDistancePct/100)
			if price <= level {
				return true, ExitTargetHit
			}
		} else {
			level := pos.LowestPrice * (1 + m.cfg.TrailingDistancePct/100)
			if price >= level {
				return true, ExitTargetHit
			}
		}
	}

	// 4. 信号反转
	if pos.Direction.OpposedBy(sigDir) {
		return true, ExitSignalReversal
	}

	// 5. 置信度坍塌（持有门槛比进场门槛宽）
	if confidence < minHoldConfidence {
		return true, ExitConfidenceDrop
	}

	// 6. 趋势衰竭：连续中性信号累积；只有同向确认才清零
	if sigDir == strategy.Hold {
		pos.HoldSignalStreak++
		if pos.HoldSignalStreak >= m.cfg.HoldSignalsToExit {
			return true, ExitTrendWeakened
		}
	} else if pos.Direction.Matches(sigDir) {
		pos.HoldSignalStreak = 0
	}

	// 7. 持仓超时
	if m.nowFn().Sub(pos.EntryTime) > m.cfg.MaxHold {
		return true, ExitTimeBased
	}

	return false, ExitNone
}

// Exit 平仓：结算盈亏与 MFE/MAE，生成不可变 Trade 并记入历史，
// 状态回到 FLAT 并开始冷却计时。MANUAL 可在任何持仓时刻直接调用。
func (m *Manager) Exit(price float64, reason ExitReason) (Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.current
	if pos == nil {
		return Trade{}, ErrNoOpenPosition
	}

	now := m.nowFn()
	var pnl, mfe, mae float64
	if pos.Direction == Long {
		pnl = price - pos.EntryPrice
		mfe = pos.HighestPrice - pos.EntryPrice
		mae = pos.LowestPrice - pos.EntryPrice
	} else {
		pnl = pos.EntryPrice - price
		mfe = pos.EntryPrice - pos.LowestPrice
		mae = pos.EntryPrice - pos.HighestPrice
	}
	pnlPct := 0.0
	if pos.EntryPrice != 0 {
		pnlPct = pnl / pos.EntryPrice * 100
	}

	trade := Trade{
		Direction:    pos.Direction,
		EntryTime:    pos.EntryTime,
		ExitTime:     now,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    price,
		TargetPrice:  pos.TargetPrice,
		StopLoss:     pos.StopLoss,
		PnL:          pnl,
		PnLPct:       pnlPct,
		ExitReason:   reason,
		HoldDuration: now.Sub(pos.EntryTime),
		MFE:          mfe,
		MAE:          mae,
	}
	m.history = append(m.history, trade)
	m.current = nil
	m.lastExit = now

	logger.Infof("平仓 %s exit=%.2f pnl=%.2f (%.2f%%) reason=%s held=%s",
		trade.Direction, price, pnl, pnlPct, reason, trade.HoldDuration.Truncate(time.Second))
	return trade, nil
}

// History 返回交易记录副本。
func (m *Manager) History() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trade, len(m.history))
	copy(out, m.history)
	return out
}

// Restore 在启动时回灌历史交易（来自持久化的交易流水），
// 使绩效统计跨重启存续。仅允许在 FLAT 且无历史时调用。
func (m *Manager) Restore(trades []Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil || len(m.history) > 0 {
		return fmt.Errorf("restore requires a fresh manager")
	}
	m.history = append(m.history, trades...)
	if n := len(trades); n > 0 {
		m.lastExit = trades[n-1].ExitTime
	}
	return nil
}
