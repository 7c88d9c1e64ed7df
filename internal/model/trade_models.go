package model

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirLong  Direction = "long"  // 多
	DirShort Direction = "short" // 空
	DirFlat  Direction = "flat"  // 空仓
)

func (s Direction) String() string {
	return string(s)
}

// ExitReason 平仓原因
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data" // 数据结束仍未触发止损止盈，按最后一根收盘价强平
)

// Trade 记录一次模拟交易，平仓字段只会被回测执行器写入一次
type Trade struct {
	Symbol          string
	Side            Direction
	Amount          float64
	EntryIndex      int // 开仓所在 K 线下标
	EntryPrice      float64
	EntryTime       time.Time
	StopLossPrice   float64
	TakeProfitPrice float64

	ExitIndex  int
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason // 为空表示仍未平仓
}

// IsOpen 是否仍未平仓
func (t *Trade) IsOpen() bool {
	return t.ExitReason == ExitNone
}

// Profit 按方向计算已实现盈亏，未平仓时为 0
func (t *Trade) Profit() float64 {
	if t.IsOpen() {
		return 0
	}
	return PnL(t.Side, t.EntryPrice, t.ExitPrice, t.Amount)
}

// PnL 多头: (平仓价 - 开仓价) * 数量；空头: (开仓价 - 平仓价) * 数量
func PnL(side Direction, entryPrice, exitPrice, amount float64) float64 {
	switch side {
	case DirLong:
		return (exitPrice - entryPrice) * amount
	case DirShort:
		return (entryPrice - exitPrice) * amount
	}
	return 0
}

func (t *Trade) String() string {
	return fmt.Sprintf("TRADE [%s | %s] %.6g @ %.6g (%s) -> %.6g (%s) | SL: %.6g | TP: %.6g | %s",
		t.Symbol, t.Side, t.Amount, t.EntryPrice, t.EntryTime.Format(time.RFC3339),
		t.ExitPrice, t.ExitTime.Format(time.RFC3339), t.StopLossPrice, t.TakeProfitPrice, t.ExitReason)
}

// BacktestResult 单个交易对一次回测的结果 (只读)
type BacktestResult struct {
	Symbol         string
	Timeframe      string
	Amount         float64
	InitialBalance float64
	FinalBalance   float64
	Trades         []*Trade

	TotalTrades   int
	WinningTrades int
	WinRate       float64 // 百分比，0-100
	TotalProfit   float64
	MaxDrawdown   float64 // 比例，0-1
}
