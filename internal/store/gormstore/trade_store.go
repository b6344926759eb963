package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sentra/internal/position"
)

// tradeModel 是平仓记录的持久化形态，Details 保存开仓时的因子快照。
type tradeModel struct {
	ID          uint      `gorm:"primaryKey"`
	Symbol      string    `gorm:"column:symbol;index;size:32"`
	Direction   string    `gorm:"column:direction;size:8"`
	EntryTime   time.Time `gorm:"column:entry_time;index"`
	ExitTime    time.Time `gorm:"column:exit_time"`
	EntryPrice  float64   `gorm:"column:entry_price"`
	ExitPrice   float64   `gorm:"column:exit_price"`
	TargetPrice float64   `gorm:"column:target_price"`
	StopLoss    float64   `gorm:"column:stop_loss"`
	PnL         float64   `gorm:"column:pnl"`
	PnLPct      float64   `gorm:"column:pnl_pct"`
	ExitReason  string    `gorm:"column:exit_reason;size:24"`
	HoldSeconds int64     `gorm:"column:hold_seconds"`
	MFE         float64   `gorm:"column:mfe"`
	MAE         float64   `gorm:"column:mae"`
	Details     datatypes.JSON `gorm:"column:details;type:TEXT"`
	CreatedAt   time.Time
}

func (tradeModel) TableName() string { return "trades" }

// TradeRecord 是对外返回的成交记录视图。
type TradeRecord struct {
	ID          uint           `json:"id"`
	Symbol      string         `json:"symbol"`
	Direction   string         `json:"direction"`
	EntryTime   time.Time      `json:"entry_time"`
	ExitTime    time.Time      `json:"exit_time"`
	EntryPrice  float64        `json:"entry_price"`
	ExitPrice   float64        `json:"exit_price"`
	PnL         float64        `json:"pnl"`
	PnLPct      float64        `json:"pnl_pct"`
	ExitReason  string         `json:"exit_reason"`
	HoldSeconds int64          `json:"hold_seconds"`
	MFE         float64        `json:"mfe"`
	MAE         float64        `json:"mae"`
	Factors     map[string]int `json:"factors,omitempty"`
}

// TradeStore 基于 SQLite(WAL) 的成交日志。
type TradeStore struct {
	db *gorm.DB
}

// NewTradeStore 打开（必要时创建）成交数据库并完成迁移。
func NewTradeStore(path string) (*TradeStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open trade db: %w", err)
	}

	if err := db.AutoMigrate(&tradeModel{}); err != nil {
		return nil, fmt.Errorf("migrate trade db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)

	return &TradeStore{db: db}, nil
}

// Append 写入一条平仓记录，factors 为开仓信号的因子得分快照，可为 nil。
func (s *TradeStore) Append(ctx context.Context, symbol string, t position.Trade, factors map[string]int) error {
	m := tradeModel{
		Symbol:      symbol,
		Direction:   t.Direction.String(),
		EntryTime:   t.EntryTime.UTC(),
		ExitTime:    t.ExitTime.UTC(),
		EntryPrice:  t.EntryPrice,
		ExitPrice:   t.ExitPrice,
		TargetPrice: t.TargetPrice,
		StopLoss:    t.StopLoss,
		PnL:         t.PnL,
		PnLPct:      t.PnLPct,
		ExitReason:  t.ExitReason.String(),
		HoldSeconds: int64(t.HoldDuration / time.Second),
		MFE:         t.MFE,
		MAE:         t.MAE,
	}
	if len(factors) > 0 {
		raw, err := json.Marshal(factors)
		if err != nil {
			return fmt.Errorf("marshal factors: %w", err)
		}
		m.Details = datatypes.JSON(raw)
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// ListRecent 按平仓时间倒序返回最近 limit 条成交。
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []tradeModel
	err := s.db.WithContext(ctx).
		Order("exit_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		rec := TradeRecord{
			ID:          r.ID,
			Symbol:      r.Symbol,
			Direction:   r.Direction,
			EntryTime:   r.EntryTime,
			ExitTime:    r.ExitTime,
			EntryPrice:  r.EntryPrice,
			ExitPrice:   r.ExitPrice,
			PnL:         r.PnL,
			PnLPct:      r.PnLPct,
			ExitReason:  r.ExitReason,
			HoldSeconds: r.HoldSeconds,
			MFE:         r.MFE,
			MAE:         r.MAE,
		}
		if len(r.Details) > 0 {
			_ = json.Unmarshal(r.Details, &rec.Factors)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadAll 按平仓时间升序读出指定标的的全部成交，重启后用于恢复统计。
func (s *TradeStore) LoadAll(ctx context.Context, symbol string) ([]position.Trade, error) {
	var rows []tradeModel
	q := s.db.WithContext(ctx).Order("exit_time ASC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	trades := make([]position.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, position.Trade{
			Direction:    directionFromString(r.Direction),
			EntryTime:    r.EntryTime,
			ExitTime:     r.ExitTime,
			EntryPrice:   r.EntryPrice,
			ExitPrice:    r.ExitPrice,
			TargetPrice:  r.TargetPrice,
			StopLoss:     r.StopLoss,
			PnL:          r.PnL,
			PnLPct:       r.PnLPct,
			ExitReason:   exitReasonFromString(r.ExitReason),
			HoldDuration: time.Duration(r.HoldSeconds) * time.Second,
			MFE:          r.MFE,
			MAE:          r.MAE,
		})
	}
	return trades, nil
}

// Close 关闭底层数据库连接。
func (s *TradeStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func directionFromString(v string) position.Direction {
	if v == "SHORT" {
		return position.Short
	}
	return position.Long
}

func exitReasonFromString(v string) position.ExitReason {
	switch v {
	case "STOP_LOSS":
		return position.ExitStopLoss
	case "TARGET_HIT":
		return position.ExitTargetHit
	case "SIGNAL_REVERSAL":
		return position.ExitSignalReversal
	case "CONFIDENCE_DROP":
		return position.ExitConfidenceDrop
	case "TREND_WEAKENED":
		return position.ExitTrendWeakened
	case "TIME_BASED":
		return position.ExitTimeBased
	case "MANUAL":
		return position.ExitManual
	default:
		return position.ExitNone
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
