// Package performance 汇总回测交易的绩效指标
package performance

import (
	"math"

	"crypto-backtester/internal/model"
)

// DrawdownMode 最大回撤的计算口径
type DrawdownMode string

const (
	// DrawdownShared 使用一组共享的 balance/peak，balance 固定为初始资金，不随单笔交易推进
	DrawdownShared DrawdownMode = "shared"
	// DrawdownEquity 每笔交易平仓后推进 balance，按资金曲线计算
	DrawdownEquity DrawdownMode = "equity"
)

// Summary 绩效指标
type Summary struct {
	TotalTrades   int
	WinningTrades int
	WinRate       float64 // 百分比
	TotalProfit   float64
	MaxDrawdown   float64 // 比例
}

// Aggregate 根据初始资金和已平仓交易计算绩效，不修改 trades
func Aggregate(initialBalance float64, trades []*model.Trade, mode DrawdownMode) Summary {
	s := Summary{TotalTrades: len(trades)}

	balance := initialBalance
	peakBalance := initialBalance

	for _, trade := range trades {
		if trade.IsOpen() {
			continue
		}

		profit := trade.Profit()
		s.TotalProfit += profit
		if profit > 0 {
			s.WinningTrades++
		}

		if mode == DrawdownEquity {
			balance += profit
		}
		peakBalance = math.Max(peakBalance, balance)
		s.MaxDrawdown = math.Max(s.MaxDrawdown, drawdown(peakBalance, balance))
	}

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	return s
}

func drawdown(peak, balance float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - balance) / peak
}

// Apply 把 Summary 写入结果
func (s Summary) Apply(res *model.BacktestResult) {
	res.TotalTrades = s.TotalTrades
	res.WinningTrades = s.WinningTrades
	res.WinRate = s.WinRate
	res.TotalProfit = s.TotalProfit
	res.MaxDrawdown = s.MaxDrawdown
}
