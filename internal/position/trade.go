package position

import (
	"time"

	"sentra/internal/strategy"
)

// Direction 是持仓方向。
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// Matches 判断信号方向是否与持仓同向（BUY↔LONG，SELL↔SHORT）。
func (d Direction) Matches(sig strategy.Direction) bool {
	return (d == Long && sig == strategy.Buy) || (d == Short && sig == strategy.Sell)
}

// OpposedBy 判断信号方向是否与持仓完全相反。
func (d Direction) OpposedBy(sig strategy.Direction) bool {
	return (d == Long && sig == strategy.Sell) || (d == Short && sig == strategy.Buy)
}

// FromSignal 把 BUY/SELL 映射为持仓方向；HOLD 不可开仓。
func FromSignal(sig strategy.Direction) (Direction, bool) {
	switch sig {
	case strategy.Buy:
		return Long, true
	case strategy.Sell:
		return Short, true
	default:
		return Long, false
	}
}

// ExitReason 是封闭的离场原因枚举。
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStopLoss
	ExitTargetHit
	ExitSignalReversal
	ExitConfidenceDrop
	ExitTrendWeakened
	ExitTimeBased
	ExitManual
)

func (r ExitReason) String() string {
	switch r {
	case ExitStopLoss:
		return "STOP_LOSS"
	case ExitTargetHit:
		return "TARGET_HIT"
	case ExitSignalReversal:
		return "SIGNAL_REVERSAL"
	case ExitConfidenceDrop:
		return "CONFIDENCE_DROP"
	case ExitTrendWeakened:
		return "TREND_WEAKENED"
	case ExitTimeBased:
		return "TIME_BASED"
	case ExitManual:
		return "MANUAL"
	default:
		return "NONE"
	}
}

// Position 是唯一的在持仓位，全部可变状态由 Manager 独占。
type Position struct {
	Direction        Direction
	EntryPrice       float64
	EntryTime        time.Time
	TargetPrice      float64
	StopLoss         float64
	EntryConfidence  float64
	Regime           strategy.Regime
	HighestPrice     float64
	LowestPrice      float64
	HoldSignalStreak int
	LastUpdate       time.Time
}

// UnrealizedPct 返回按方向折算的浮动收益百分比。
func (p *Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Direction == Long {
		return (price - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - price) / p.EntryPrice * 100
}

// Trade 是一笔已平仓交易，创建后不再变更。
type Trade struct {
	Direction    Direction
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	TargetPrice  float64
	StopLoss     float64
	PnL          float64
	PnLPct       float64
	ExitReason   ExitReason
	HoldDuration time.Duration
	MFE          float64
	MAE          float64
}
