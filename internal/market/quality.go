package market

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnusableData 表示行情数据不满足决策所需的质量下限。
var ErrUnusableData = errors.New("market data unusable")

const maxMissingRatio = 0.10

// CheckUsable 判断一段K线是否可用于信号计算。
// 任何一项不达标都返回包裹 ErrUnusableData 的错误，调用方据此跳过本轮决策。
func CheckUsable(candles []Candle, minRows int) error {
	if len(candles) == 0 {
		return fmt.Errorf("%w: empty candle set", ErrUnusableData)
	}
	if len(candles) < minRows {
		return fmt.Errorf("%w: only %d rows, need %d", ErrUnusableData, len(candles), minRows)
	}

	missing := 0
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, c := range candles {
		if !rowUsable(c) {
			missing++
			continue
		}
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}
	if ratio := float64(missing) / float64(len(candles)); ratio > maxMissingRatio {
		return fmt.Errorf("%w: %.1f%% rows missing or corrupt", ErrUnusableData, ratio*100)
	}
	if high == -math.MaxFloat64 || high <= low {
		return fmt.Errorf("%w: price range is zero", ErrUnusableData)
	}
	return nil
}

func rowUsable(c Candle) bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.High >= c.Low
}
