package strategy

import (
	"math"

	"sentra/internal/indicator"
)

const (
	regimeLookback   = 20
	highVolThreshold = 1.5
	lowVolThreshold  = 0.5
	adxTrendLevel    = 25
)

// ClassifyRegime 根据高周期指标帧判定行情状态。
// 优先级：高波动 > 低波动 > 趋势 > 震荡；缺列一律退化为 Ranging，从不报错。
func ClassifyRegime(frame *indicator.Frame) Regime {
	if frame == nil || len(frame.Candles) == 0 {
		return Ranging
	}

	if avg, ok := tailMean(frame.ATRPct, regimeLookback); ok {
		if avg > highVolThreshold {
			return HighVolatility
		}
		if avg < lowVolThreshold {
			return LowVolatility
		}
	}

	snap := frame.Latest()
	if !math.IsNaN(snap.ADX) && snap.ADX > adxTrendLevel {
		if math.IsNaN(snap.EMA9) || math.IsNaN(snap.EMA21) {
			return Ranging
		}
		if snap.EMA9 > snap.EMA21 {
			return TrendingUp
		}
		return TrendingDown
	}
	return Ranging
}

// tailMean 取序列尾部最多 n 个有效值的均值。
func tailMean(series []float64, n int) (float64, bool) {
	start := len(series) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for _, v := range series[start:] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
