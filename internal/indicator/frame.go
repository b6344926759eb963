package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"sentra/internal/market"
)

// MinRows 是产出全套指标所需的最少K线数。
// MACD(12,26,9) 的暖机期最长，需要 34 根才有第一个有效直方图值。
const MinRows = 35

// Frame 保存单个 symbol+interval 的全部指标序列。
// 暖机期内的值为 NaN，调用方通过 Latest() 取最新快照。
type Frame struct {
	Symbol   string
	Interval string
	Candles  market.Candles

	EMA9     []float64
	EMA21    []float64
	MACDHist []float64
	ADX      []float64
	PlusDI   []float64
	MinusDI  []float64
	RSI      []float64
	StochK   []float64
	StochD   []float64
	BBUpper  []float64
	BBLower  []float64
	PercentB []float64
	BBWidth  []float64
	ATR      []float64
	ATRPct   []float64
	StdDev   []float64
	VWAP     []float64
	CMF      []float64
}

// Snapshot 是各指标的最新有效值；缺失时为 NaN。
type Snapshot struct {
	Close    float64
	EMA9     float64
	EMA21    float64
	MACDHist float64
	ADX      float64
	PlusDI   float64
	MinusDI  float64
	RSI      float64
	StochK   float64
	PercentB float64
	BBWidth  float64
	ATR      float64
	ATRPct   float64
	StdDev   float64
	VWAP     float64
	CMF      float64
}

// Compute 基于K线计算全套指标序列。
func Compute(symbol, interval string, candles []market.Candle) (*Frame, error) {
	if len(candles) < MinRows {
		return nil, fmt.Errorf("indicator frame needs %d candles, got %d", MinRows, len(candles))
	}
	cs := market.Candles(candles)
	closes := cs.Closes()
	highs := cs.Highs()
	lows := cs.Lows()
	volumes := cs.Volumes()

	f := &Frame{
		Symbol:   symbol,
		Interval: interval,
		Candles:  cs,
	}

	f.EMA9 = maskWarmup(talib.Ema(closes, 9), 8)
	f.EMA21 = maskWarmup(talib.Ema(closes, 21), 20)

	_, _, hist := talib.Macd(closes, 12, 26, 9)
	f.MACDHist = maskWarmup(hist, 33)

	f.ADX = maskWarmup(talib.Adx(highs, lows, closes, 14), 27)
	f.PlusDI = maskWarmup(talib.PlusDI(highs, lows, closes, 14), 14)
	f.MinusDI = maskWarmup(talib.MinusDI(highs, lows, closes, 14), 14)

	f.RSI = maskWarmup(talib.Rsi(closes, 14), 14)

	k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	f.StochK = maskWarmup(k, 17)
	f.StochD = maskWarmup(d, 17)

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	f.BBUpper = maskWarmup(upper, 19)
	f.BBLower = maskWarmup(lower, 19)
	f.PercentB = make([]float64, len(closes))
	f.BBWidth = make([]float64, len(closes))
	for i := range closes {
		band := f.BBUpper[i] - f.BBLower[i]
		if math.IsNaN(band) || band <= 0 || middle[i] == 0 {
			f.PercentB[i] = math.NaN()
			f.BBWidth[i] = math.NaN()
			continue
		}
		f.PercentB[i] = (closes[i] - f.BBLower[i]) / band
		f.BBWidth[i] = band / middle[i]
	}

	f.ATR = maskWarmup(talib.Atr(highs, lows, closes, 14), 14)
	f.ATRPct = make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(f.ATR[i]) || closes[i] <= 0 {
			f.ATRPct[i] = math.NaN()
			continue
		}
		f.ATRPct[i] = f.ATR[i] / closes[i] * 100
	}

	f.StdDev = maskWarmup(talib.StdDev(closes, 20, 1), 19)

	f.VWAP = computeVWAP(highs, lows, closes, volumes)
	f.CMF = computeCMF(highs, lows, closes, volumes, 20)

	return f, nil
}

// Latest 返回最新一根K线上的指标快照。
func (f *Frame) Latest() Snapshot {
	last := len(f.Candles) - 1
	return Snapshot{
		Close:    f.Candles[last].Close,
		EMA9:     at(f.EMA9, last),
		EMA21:    at(f.EMA21, last),
		MACDHist: at(f.MACDHist, last),
		ADX:      at(f.ADX, last),
		PlusDI:   at(f.PlusDI, last),
		MinusDI:  at(f.MinusDI, last),
		RSI:      at(f.RSI, last),
		StochK:   at(f.StochK, last),
		PercentB: at(f.PercentB, last),
		BBWidth:  at(f.BBWidth, last),
		ATR:      at(f.ATR, last),
		ATRPct:   at(f.ATRPct, last),
		StdDev:   at(f.StdDev, last),
		VWAP:     at(f.VWAP, last),
		CMF:      at(f.CMF, last),
	}
}

// computeVWAP 计算窗口内累计成交量加权均价。
// go-talib 不提供 VWAP，此处按典型价手工累计。
func computeVWAP(highs, lows, closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var cumPV, cumVol float64
	for i := range closes {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		cumPV += tp * volumes[i]
		cumVol += volumes[i]
		if cumVol <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumVol
	}
	return out
}

// computeCMF 计算 Chaikin Money Flow（滚动 period 窗口）。
func computeCMF(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		span := highs[i] - lows[i]
		if span <= 0 {
			mfv[i] = 0
		} else {
			mult := ((closes[i] - lows[i]) - (highs[i] - closes[i])) / span
			mfv[i] = mult * volumes[i]
		}
	}
	for i := 0; i < n; i++ {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		var sumMFV, sumVol float64
		for j := i - period + 1; j <= i; j++ {
			sumMFV += mfv[j]
			sumVol += volumes[j]
		}
		if sumVol <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sumMFV / sumVol
	}
	return out
}

// maskWarmup 将 talib 暖机期的零值替换为 NaN，避免被误当成真实读数。
func maskWarmup(series []float64, lookback int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func at(series []float64, i int) float64 {
	if i < 0 || i >= len(series) {
		return math.NaN()
	}
	v := series[i]
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
