package strategy

import (
	"context"
	"fmt"
	"math"

	"sentra/internal/indicator"
	"sentra/internal/logger"
)

// ProbabilityEstimator 是可选的外部胜率估计器。
// 调用失败绝不向外传播：置信度退化为 0.5 并打上 neutral-fallback 标记。
type ProbabilityEstimator interface {
	PredictProbability(ctx context.Context, features []float64) (float64, error)
}

// ComposerConfig 汇总信号合成的全部阈值。
type ComposerConfig struct {
	FastLabel            string
	SlowLabel            string
	TimeframeWeight      float64
	MinConfidence        float64
	MinStrength          Strength
	MinRiskReward        float64
	HighVolMinConfidence float64
}

// Composer 把多周期因子映射合成为一个方向性信号。
type Composer struct {
	cfg       ComposerConfig
	estimator ProbabilityEstimator
}

func NewComposer(cfg ComposerConfig, estimator ProbabilityEstimator) *Composer {
	if cfg.FastLabel == "" {
		cfg.FastLabel = "1m"
	}
	if cfg.SlowLabel == "" {
		cfg.SlowLabel = "15m"
	}
	if cfg.TimeframeWeight <= 0 {
		cfg.TimeframeWeight = 1.5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.65
	}
	if cfg.MinStrength <= None {
		cfg.MinStrength = Moderate
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = 1.5
	}
	if cfg.HighVolMinConfidence <= 0 {
		cfg.HighVolMinConfidence = 0.75
	}
	return &Composer{cfg: cfg, estimator: estimator}
}

// Compose 依次完成打分、加权合并、方向判定、目标价与置信度计算和最终准入校验。
func (c *Composer) Compose(ctx context.Context, fast, slow *indicator.Frame) (Signal, error) {
	if fast == nil || len(fast.Candles) == 0 || slow == nil || len(slow.Candles) == 0 {
		return Signal{}, fmt.Errorf("%w: composer needs both timeframes", ErrEmptyFrame)
	}

	fastSnap := fast.Latest()
	slowSnap := slow.Latest()
	regime := ClassifyRegime(slow)

	factors := ScoreFactors(fastSnap, c.cfg.FastLabel)
	slowFactors := ScoreFactors(slowSnap, c.cfg.SlowLabel)
	// 慢周期的因子同时以原始键和 _weighted 键进入映射。
	// 加权副本把慢周期的票面放大 weight 倍后截断回整数，
	// 分母也因此把慢周期计了两次——沿用原始算法，不做修正。
	for k, v := range slowFactors {
		factors[k] = v
		factors[k+"_weighted"] = int(float64(v) * c.cfg.TimeframeWeight)
	}

	avg := averageScore(factors)

	direction := Hold
	switch {
	case avg > 0.3:
		direction = Buy
	case avg < -0.3:
		direction = Sell
	}
	strength := strengthFor(direction, avg)

	price := fastSnap.Close
	atr := fastSnap.ATR
	if math.IsNaN(atr) {
		atr = 0
	}
	target, stop := computeTargets(direction, price, atr, regime)
	rr := riskReward(direction, price, target, stop, atr)

	confidence, source := c.confidence(ctx, fastSnap, slowSnap)

	sig := Signal{
		Direction:        direction,
		Strength:         strength,
		Confidence:       confidence,
		ConfidenceSource: source,
		EntryPrice:       round2(price),
		TargetPrice:      target,
		StopLoss:         stop,
		Regime:           regime,
		RiskReward:       rr,
		AvgScore:         avg,
		Factors:          factors,
	}

	if !c.passesGate(sig) {
		sig.Direction = Hold
		sig.Strength = None
	}
	return sig, nil
}

// confidence 组装 9 维特征并调用估计器；任何异常都退化为中性 0.5。
func (c *Composer) confidence(ctx context.Context, fast, slow indicator.Snapshot) (float64, ConfidenceSource) {
	if c.estimator == nil {
		return 0.5, ConfidenceFallback
	}
	features := sanitizeFeatures([]float64{
		fast.StochK,
		fast.BBWidth,
		fast.ATR,
		fast.StdDev,
		fast.VWAP,
		slow.ADX,
		slow.StochK,
		slow.BBWidth,
		slow.StdDev,
	})
	p, err := c.estimator.PredictProbability(ctx, features)
	if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
		logger.Warnf("概率估计器失效，置信度退化为中性: %v", err)
		return 0.5, ConfidenceFallback
	}
	return p, ConfidenceModel
}

func (c *Composer) passesGate(sig Signal) bool {
	if sig.Direction == Hold {
		return true
	}
	if sig.Confidence < c.cfg.MinConfidence {
		return false
	}
	if sig.Strength < c.cfg.MinStrength {
		return false
	}
	if sig.RiskReward < c.cfg.MinRiskReward {
		return false
	}
	if sig.Regime == HighVolatility && sig.Confidence < c.cfg.HighVolMinConfidence {
		return false
	}
	return true
}

func averageScore(factors map[string]int) float64 {
	if len(factors) == 0 {
		return 0
	}
	sum := 0
	for _, v := range factors {
		sum += v
	}
	return float64(sum) / float64(len(factors))
}

func strengthFor(direction Direction, avg float64) Strength {
	if direction == Hold {
		return None
	}
	mag := math.Abs(avg)
	switch {
	case mag >= 0.8:
		return VeryStrong
	case mag >= 0.6:
		return Strong
	case mag >= 0.4:
		return Moderate
	case mag >= 0.2:
		return Weak
	default:
		return VeryWeak
	}
}

func sanitizeFeatures(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}
