package notifier

import (
	"fmt"
	"math"
	"sort"
	"time"

	"sentra/internal/position"
	"sentra/internal/strategy"
)

// BuildEntryMessage 渲染开仓通知。
func BuildEntryMessage(symbol string, sig strategy.Signal, now time.Time) Message {
	icon := "🟢"
	if sig.Direction == strategy.Sell {
		icon = "🔴"
	}
	return Message{
		Icon:  icon,
		Title: fmt.Sprintf("开仓 %s %s", symbol, sig.Direction),
		Sections: []Section{
			{
				Title: "信号",
				Lines: []string{
					fmt.Sprintf("强度: %s (均分 %.2f)", sig.Strength, sig.AvgScore),
					fmt.Sprintf("置信度: %.2f (%s)", sig.Confidence, sig.ConfidenceSource),
					fmt.Sprintf("市场状态: %s", sig.Regime),
				},
			},
			{
				Title: "价格",
				Lines: []string{
					fmt.Sprintf("入场: %.2f", sig.EntryPrice),
					fmt.Sprintf("目标: %.2f / 止损: %.2f", sig.TargetPrice, sig.StopLoss),
					fmt.Sprintf("盈亏比: %.2f", sig.RiskReward),
				},
			},
			{Title: "主要因子", Lines: topFactorLines(sig.Factors, 5)},
		},
		Timestamp: now,
	}
}

// BuildExitMessage 渲染平仓通知，附带累计统计。
func BuildExitMessage(symbol string, t position.Trade, stats position.Stats, now time.Time) Message {
	icon := "✅"
	if t.PnL < 0 {
		icon = "⚠️"
	}
	return Message{
		Icon:  icon,
		Title: fmt.Sprintf("平仓 %s %s (%s)", symbol, t.Direction, t.ExitReason),
		Sections: []Section{
			{
				Title: "本笔",
				Lines: []string{
					fmt.Sprintf("%.2f → %.2f", t.EntryPrice, t.ExitPrice),
					fmt.Sprintf("盈亏: %+.2f (%+.2f%%)", t.PnL, t.PnLPct),
					fmt.Sprintf("持仓时长: %s", t.HoldDuration.Round(time.Minute)),
					fmt.Sprintf("最大浮盈 %.2f%% / 最大浮亏 %.2f%%", t.MFE, t.MAE),
				},
			},
			{
				Title: "累计",
				Lines: []string{
					fmt.Sprintf("共 %d 笔, 胜率 %.0f%%", stats.TotalTrades, stats.WinRate*100),
					fmt.Sprintf("盈亏因子 %s, 总盈亏 %+.2f", formatProfitFactor(stats.ProfitFactor), stats.TotalPnL),
				},
			},
		},
		Timestamp: now,
	}
}

// BuildStartupMessage 渲染启动通知。
func BuildStartupMessage(symbol, fastInterval, slowInterval string, now time.Time) Message {
	return Message{
		Icon:  "🚀",
		Title: "信号引擎已启动",
		Sections: []Section{
			{
				Title: "配置",
				Lines: []string{
					fmt.Sprintf("标的: %s", symbol),
					fmt.Sprintf("周期: %s / %s", fastInterval, slowInterval),
				},
			},
		},
		Timestamp: now,
	}
}

func topFactorLines(factors map[string]int, limit int) []string {
	type kv struct {
		key string
		val int
	}
	items := make([]kv, 0, len(factors))
	for k, v := range factors {
		if v != 0 {
			items = append(items, kv{k, v})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].val != items[j].val {
			return items[i].val > items[j].val
		}
		return items[i].key < items[j].key
	})
	if len(items) > limit {
		items = items[:limit]
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s: %+d", it.key, it.val))
	}
	return lines
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", pf)
}
