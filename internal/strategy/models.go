package strategy

import "crypto-backtester/internal/model"

// Signal 单根 K 线的方向信号
type Signal int

const (
	SignalShort Signal = -1
	SignalFlat  Signal = 0
	SignalLong  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "LONG"
	case SignalShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Direction 信号对应的持仓方向
func (s Signal) Direction() model.Direction {
	switch s {
	case SignalLong:
		return model.DirLong
	case SignalShort:
		return model.DirShort
	default:
		return model.DirFlat
	}
}

// Thresholds 定义了 RSI 确认阈值
type Thresholds struct {
	RSIOverbought float64
	RSIOversold   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOverbought: 65,
		RSIOversold:   35,
	}
}
