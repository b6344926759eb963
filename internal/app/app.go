package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sentra/internal/config"
	"sentra/internal/logger"
	"sentra/internal/market"
	"sentra/internal/store/gormstore"
	"sentra/internal/transport/httpapi"
)

// App 负责应用级编排：加载配置→初始化依赖→启动决策循环与 HTTP 服务。
type App struct {
	cfg     *config.Config
	engine  *LiveEngine
	httpSrv *httpapi.Server
	trades  *gormstore.TradeStore
	source  market.Source
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动决策循环与状态服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.engine.Run(ctx)
	})

	logger.Infof("引擎已启动 symbol=%s http=%s", a.cfg.Strategy.Symbol, a.httpSrv.Addr())
	return group.Wait()
}

// Engine 暴露底层引擎（测试/回放用）。
func (a *App) Engine() *LiveEngine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close 释放持久化与行情源连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.trades != nil {
		_ = a.trades.Close()
	}
	if a.source != nil {
		_ = a.source.Close()
	}
}
