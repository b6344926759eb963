package position

import "math"

// Stats 是交易记录的聚合绩效，零交易时只有 TotalTrades=0 有意义。
type Stats struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	TotalPnL     float64
	LargestWin   float64
	LargestLoss  float64
}

// Stats 对交易记录做纯聚合，不会改动历史。
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return computeStats(m.history)
}

func computeStats(trades []Trade) Stats {
	if len(trades) == 0 {
		return Stats{}
	}

	var s Stats
	s.TotalTrades = len(trades)
	var sumWin, sumLoss float64
	for _, t := range trades {
		s.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			s.Wins++
			sumWin += t.PnL
			if t.PnL > s.LargestWin {
				s.LargestWin = t.PnL
			}
		case t.PnL < 0:
			s.Losses++
			sumLoss += t.PnL
			if t.PnL < s.LargestLoss {
				s.LargestLoss = t.PnL
			}
		}
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	if s.Wins > 0 {
		s.AvgWin = sumWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = sumLoss / float64(s.Losses)
	}
	if sumLoss != 0 {
		s.ProfitFactor = math.Abs(sumWin / sumLoss)
	} else if s.Wins > 0 {
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
