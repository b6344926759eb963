package estimator

import (
	"context"
	"errors"
	"time"

	"sentra/internal/pkg/circuit"
)

// ErrBreakerOpen 表示估计器处于熔断状态，调用被直接拒绝。
var ErrBreakerOpen = errors.New("estimator circuit open")

type predictor interface {
	PredictProbability(ctx context.Context, features []float64) (float64, error)
}

// Guarded 给估计器客户端套一层熔断：服务连续出错时停止打请求，
// 让信号层直接走降级路径，避免每个周期都白等超时。
type Guarded struct {
	inner   predictor
	breaker *circuit.Breaker
}

func Guard(inner predictor, threshold int, cooldown time.Duration) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: circuit.NewBreaker("estimator", threshold, cooldown),
	}
}

func (g *Guarded) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if !g.breaker.Allow() {
		return 0, ErrBreakerOpen
	}
	p, err := g.inner.PredictProbability(ctx, features)
	if err != nil {
		g.breaker.RecordFailure()
		return 0, err
	}
	g.breaker.RecordSuccess()
	return p, nil
}
