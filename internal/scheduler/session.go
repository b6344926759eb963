package scheduler

import (
	"fmt"
	"time"
)

// SessionGate 判断当前是否处于可交易时段（周一至周五，开收盘之间）。
// 加密市场 7x24 运行时不启用。
type SessionGate struct {
	enabled  bool
	loc      *time.Location
	openMin  int
	closeMin int

	nowFn func() time.Time
}

func NewSessionGate(enabled bool, timezone, open, closeAt string) (*SessionGate, error) {
	g := &SessionGate{enabled: enabled, nowFn: time.Now}
	if !enabled {
		return g, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid session timezone %q: %w", timezone, err)
	}
	g.loc = loc
	if g.openMin, err = clockMinutes(open); err != nil {
		return nil, fmt.Errorf("invalid session open %q: %w", open, err)
	}
	if g.closeMin, err = clockMinutes(closeAt); err != nil {
		return nil, fmt.Errorf("invalid session close %q: %w", closeAt, err)
	}
	if g.openMin >= g.closeMin {
		return nil, fmt.Errorf("session open %q must precede close %q", open, closeAt)
	}
	return g, nil
}

// Tradable 返回当前时刻是否允许开仓决策。
func (g *SessionGate) Tradable() bool {
	if g == nil || !g.enabled {
		return true
	}
	now := g.nowFn().In(g.loc)
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= g.openMin && minutes < g.closeMin
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
