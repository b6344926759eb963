package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// regimeMultipliers 给出各行情状态下的目标/止损 ATR 倍数。
type regimeMultipliers struct {
	target float64
	stop   float64
}

func multipliersFor(regime Regime) regimeMultipliers {
	switch regime {
	case HighVolatility:
		return regimeMultipliers{target: 2.0, stop: 1.5}
	case LowVolatility:
		return regimeMultipliers{target: 1.0, stop: 0.8}
	case TrendingUp, TrendingDown:
		return regimeMultipliers{target: 2.5, stop: 1.0}
	default:
		return regimeMultipliers{target: 1.5, stop: 1.0}
	}
}

// computeTargets 按方向、ATR 与行情状态给出目标价与止损价（保留两位小数）。
// HOLD 时目标=止损=现价。
func computeTargets(direction Direction, price, atr float64, regime Regime) (target, stop float64) {
	if direction == Hold {
		rounded := round2(price)
		return rounded, rounded
	}
	m := multipliersFor(regime)
	switch direction {
	case Buy:
		target = price + atr*m.target
		stop = price - atr*m.stop
	case Sell:
		target = price - atr*m.target
		stop = price + atr*m.stop
	}
	return round2(target), round2(stop)
}

// riskReward 计算报酬风险比；HOLD 用 ATR/ATR 作为中性占位。
func riskReward(direction Direction, price, target, stop, atr float64) float64 {
	if direction == Hold {
		return 1
	}
	reward := math.Abs(target - price)
	risk := math.Abs(price - stop)
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
