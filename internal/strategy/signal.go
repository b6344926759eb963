package strategy

import "errors"

// ErrEmptyFrame 表示指标帧为空或形状不合法，无法合成信号。
var ErrEmptyFrame = errors.New("empty indicator frame")

// Direction 是合成信号的方向。
type Direction int

const (
	Hold Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Opposite 返回反方向；HOLD 没有反方向，返回自身。
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Hold
	}
}

// Strength 是信号强度分级，有序可比较。
type Strength int

const (
	None Strength = iota
	VeryWeak
	Weak
	Moderate
	Strong
	VeryStrong
)

func (s Strength) String() string {
	switch s {
	case VeryWeak:
		return "VERY_WEAK"
	case Weak:
		return "WEAK"
	case Moderate:
		return "MODERATE"
	case Strong:
		return "STRONG"
	case VeryStrong:
		return "VERY_STRONG"
	default:
		return "NONE"
	}
}

// Regime 是行情状态标签。
type Regime int

const (
	Ranging Regime = iota
	TrendingUp
	TrendingDown
	HighVolatility
	LowVolatility
)

func (r Regime) String() string {
	switch r {
	case TrendingUp:
		return "TRENDING_UP"
	case TrendingDown:
		return "TRENDING_DOWN"
	case HighVolatility:
		return "HIGH_VOLATILITY"
	case LowVolatility:
		return "LOW_VOLATILITY"
	default:
		return "RANGING"
	}
}

// ConfidenceSource 标记置信度的来源，估计器失败时可观测地退化为中性。
type ConfidenceSource string

const (
	ConfidenceModel    ConfidenceSource = "model"
	ConfidenceFallback ConfidenceSource = "neutral-fallback"
)

// Signal 是一次评估周期的合成结果，每个周期重新计算，不持久化。
type Signal struct {
	Direction        Direction
	Strength         Strength
	Confidence       float64
	ConfidenceSource ConfidenceSource
	EntryPrice       float64
	TargetPrice      float64
	StopLoss         float64
	Regime           Regime
	RiskReward       float64
	AvgScore         float64
	Factors          map[string]int
}
