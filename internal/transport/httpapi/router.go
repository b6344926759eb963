package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sentra/internal/market"
	"sentra/internal/position"
	"sentra/internal/store/gormstore"
	"sentra/internal/strategy"
)

// StatusSnapshot 是引擎当前状态的只读视图。
type StatusSnapshot struct {
	Symbol        string             `json:"symbol"`
	FastInterval  string             `json:"fast_interval"`
	SlowInterval  string             `json:"slow_interval"`
	ActiveProfile string             `json:"active_profile,omitempty"`
	Tradable      bool               `json:"tradable"`
	LastTick      time.Time          `json:"last_tick"`
	LastError     string             `json:"last_error,omitempty"`
	Source        market.SourceStats `json:"source"`
	Position      *position.Position `json:"position,omitempty"`
	Stats         position.Stats     `json:"stats"`
}

// EngineView 由实盘引擎实现，供 HTTP 层查询。
type EngineView interface {
	Status() StatusSnapshot
	LastSignal() (strategy.Signal, time.Time, bool)
}

// TradeLister 由成交日志实现。
type TradeLister interface {
	ListRecent(ctx context.Context, limit int) ([]gormstore.TradeRecord, error)
}

// Router 暴露状态查询接口。
type Router struct {
	engine EngineView
	trades TradeLister
}

func NewRouter(engine EngineView, trades TradeLister) *Router {
	return &Router{engine: engine, trades: trades}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/signal", r.handleSignal)
	group.GET("/position", r.handlePosition)
	group.GET("/stats", r.handleStats)
	if r.trades != nil {
		group.GET("/trades", r.handleTrades)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Status())
}

func (r *Router) handleSignal(c *gin.Context) {
	sig, at, ok := r.engine.LastSignal()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"signal": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signal":      signalJSON(sig),
		"composed_at": at,
	})
}

func (r *Router) handlePosition(c *gin.Context) {
	st := r.engine.Status()
	if st.Position == nil {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": st.Position})
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Status().Stats)
}

func (r *Router) handleTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 需为 1~500 的整数"})
			return
		}
		limit = n
	}
	trades, err := r.trades.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// signalJSON 把信号转成稳定的 JSON 形态（枚举输出为字符串）。
func signalJSON(sig strategy.Signal) gin.H {
	return gin.H{
		"direction":         sig.Direction.String(),
		"strength":          sig.Strength.String(),
		"confidence":        sig.Confidence,
		"confidence_source": sig.ConfidenceSource,
		"entry_price":       sig.EntryPrice,
		"target_price":      sig.TargetPrice,
		"stop_loss":         sig.StopLoss,
		"regime":            sig.Regime.String(),
		"risk_reward":       sig.RiskReward,
		"avg_score":         sig.AvgScore,
		"factors":           sig.Factors,
	}
}
