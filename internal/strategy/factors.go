package strategy

import (
	"math"

	"sentra/internal/indicator"
)

// ScoreFactors 把单个周期的指标快照转成 因子名→{-1,0,+1} 的映射。
// 缺失或未过门槛的因子直接不出现在映射里（不是记 0），
// 因此聚合时的分母逐周期浮动。
func ScoreFactors(snap indicator.Snapshot, label string) map[string]int {
	scores := make(map[string]int)

	if valid(snap.EMA9, snap.EMA21) {
		scores["ema_cross_"+label] = sign(snap.EMA9 > snap.EMA21)
	}

	if valid(snap.MACDHist) {
		scores["macd_"+label] = sign(snap.MACDHist > 0)
	}

	// ADX 只有趋势强度足够时才有方向意义
	if valid(snap.ADX, snap.PlusDI, snap.MinusDI) && snap.ADX > 20 {
		scores["adx_"+label] = sign(snap.PlusDI > snap.MinusDI)
	}

	// RSI 超买超卖区间内不做方向判定
	if valid(snap.RSI) && snap.RSI > 30 && snap.RSI < 70 {
		scores["rsi_"+label] = sign(snap.RSI > 50)
	}

	if valid(snap.StochK) && snap.StochK > 20 && snap.StochK < 80 {
		scores["stoch_"+label] = sign(snap.StochK > 50)
	}

	if valid(snap.VWAP, snap.Close) {
		scores["vwap_"+label] = sign(snap.Close > snap.VWAP)
	}

	if valid(snap.CMF) {
		scores["cmf_"+label] = sign(snap.CMF > 0)
	}

	if valid(snap.PercentB) {
		if snap.PercentB < 0.2 {
			scores["bb_oversold_"+label] = 1
		} else if snap.PercentB > 0.8 {
			scores["bb_overbought_"+label] = -1
		}
	}

	return scores
}

func valid(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sign(positive bool) int {
	if positive {
		return 1
	}
	return -1
}
