package executor

import (
	"fmt"

	"crypto-backtester/internal/model"
	"crypto-backtester/internal/strategy"

	"go.uber.org/zap"
)

// ExitScanMode 决定每笔交易从哪根 K 线开始向后寻找平仓点
type ExitScanMode string

const (
	// ExitScanTradeOrdinal 从 "该交易在交易列表中的序号 + 1" 开始扫描 (默认)
	ExitScanTradeOrdinal ExitScanMode = "trade-ordinal"
	// ExitScanEntryBar 从开仓 K 线的下一根开始扫描
	ExitScanEntryBar ExitScanMode = "entry-bar"
)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	InitialBalance float64      // 初始资金
	StopLossPct    float64      // 止损比例 (例如 0.02)
	TakeProfitPct  float64      // 止盈比例 (例如 0.05)
	ExitScan       ExitScanMode // 为空时按 ExitScanTradeOrdinal
}

// SimulatorExecutor 在一段历史 K 线上模拟开仓和止损/止盈平仓。
// 每个交易对每次回测使用一个新的实例，不在交易对之间共享。
type SimulatorExecutor struct {
	cfg    *SimulatorConfig
	logger *zap.SugaredLogger

	balance float64        // 账户余额 (包含已实现盈亏)
	trades  []*model.Trade // 按开仓顺序排列
}

// NewSimulatorExecutor 构造函数
func NewSimulatorExecutor(cfg *SimulatorConfig, logger *zap.SugaredLogger) *SimulatorExecutor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SimulatorExecutor{
		cfg:     cfg,
		logger:  logger,
		balance: cfg.InitialBalance,
	}
}

// Run 根据信号开仓，再逐笔解析平仓，返回最终余额
func (e *SimulatorExecutor) Run(series *model.Series, signals []strategy.Signal, amount float64) (float64, error) {
	if len(signals) != series.Len() {
		return e.balance, fmt.Errorf("%w: %d signals for %d candles", model.ErrMisaligned, len(signals), series.Len())
	}
	if amount <= 0 {
		return e.balance, fmt.Errorf("%w: non-positive amount %v for %s", model.ErrConfiguration, amount, series.Symbol)
	}

	// 至少需要两根 K 线，第 0 根不产生交易
	if series.Len() < 2 {
		e.logger.Debugf("Not enough candles (%d) for %s, no trades opened.", series.Len(), series.Symbol)
		return e.balance, nil
	}

	for i := 1; i < series.Len(); i++ {
		if signals[i] == strategy.SignalFlat {
			continue
		}
		e.OpenTrade(series.Symbol, signals[i], amount, series.At(i), i)
	}

	return e.ResolveExits(series), nil
}

// OpenTrade 按信号在 candle 收盘价开仓，并立即追加到交易列表
func (e *SimulatorExecutor) OpenTrade(symbol string, signal strategy.Signal, amount float64, candle model.Candle, index int) *model.Trade {
	side := signal.Direction()
	entryPrice := candle.Close
	trade := &model.Trade{
		Symbol:          symbol,
		Side:            side,
		Amount:          amount,
		EntryIndex:      index,
		EntryPrice:      entryPrice,
		EntryTime:       candle.Timestamp,
		StopLossPrice:   e.calculateStopLoss(side, entryPrice),
		TakeProfitPrice: e.calculateTakeProfit(side, entryPrice),
	}
	e.trades = append(e.trades, trade)

	e.logger.Debugf("Sim ORDER FILLED (OPEN): %s %s %.6g @ %.6g. SL: %.6g, TP: %.6g",
		side, symbol, amount, entryPrice, trade.StopLossPrice, trade.TakeProfitPrice)
	return trade
}

// ResolveExits 按开仓顺序逐笔向后扫描 K 线寻找止损/止盈点，
// 数据结束仍未触发的交易按最后一根 K 线收盘价强平。返回最终余额。
func (e *SimulatorExecutor) ResolveExits(series *model.Series) float64 {
	if series.Len() == 0 {
		return e.balance
	}
	last := series.Len() - 1

	for ordinal, trade := range e.trades {
		if !trade.IsOpen() {
			continue
		}

		for i := e.scanStart(ordinal, trade); i <= last; i++ {
			c := series.At(i)
			if e.checkStopLoss(trade, c.Close) {
				e.closeTrade(trade, c, i, model.ExitStopLoss)
				break
			}
			if e.checkTakeProfit(trade, c.Close) {
				e.closeTrade(trade, c, i, model.ExitTakeProfit)
				break
			}
		}

		if trade.IsOpen() {
			e.closeTrade(trade, series.At(last), last, model.ExitEndOfData)
		}
	}
	return e.balance
}

func (e *SimulatorExecutor) scanStart(ordinal int, trade *model.Trade) int {
	if e.cfg.ExitScan == ExitScanEntryBar {
		return trade.EntryIndex + 1
	}
	return ordinal + 1
}

func (e *SimulatorExecutor) closeTrade(trade *model.Trade, c model.Candle, index int, reason model.ExitReason) {
	trade.ExitIndex = index
	trade.ExitPrice = c.Close
	trade.ExitTime = c.Timestamp
	trade.ExitReason = reason

	pnl := e.calculateClosedPnL(trade)
	e.balance += pnl

	e.logger.Debugf("Sim POSITION CLOSED: %s. Realized PnL: %.6g. New Balance: %.6g", trade, pnl, e.balance)
}

func (e *SimulatorExecutor) calculateStopLoss(side model.Direction, entryPrice float64) float64 {
	if side == model.DirLong {
		return entryPrice * (1 - e.cfg.StopLossPct)
	}
	return entryPrice * (1 + e.cfg.StopLossPct)
}

func (e *SimulatorExecutor) calculateTakeProfit(side model.Direction, entryPrice float64) float64 {
	if side == model.DirLong {
		return entryPrice * (1 + e.cfg.TakeProfitPct)
	}
	return entryPrice * (1 - e.cfg.TakeProfitPct)
}

// calculateClosedPnL 计算已实现盈亏 (Realized PnL)
func (e *SimulatorExecutor) calculateClosedPnL(trade *model.Trade) float64 {
	return model.PnL(trade.Side, trade.EntryPrice, trade.ExitPrice, trade.Amount)
}

// checkStopLoss 检查是否触发止损
func (e *SimulatorExecutor) checkStopLoss(trade *model.Trade, currentPrice float64) bool {
	switch trade.Side {
	case model.DirLong:
		// 多头止损：当前价格 <= 止损价
		return currentPrice <= trade.StopLossPrice
	case model.DirShort:
		// 空头止损：当前价格 >= 止损价
		return currentPrice >= trade.StopLossPrice
	}
	return false
}

// checkTakeProfit 检查是否触发止盈
func (e *SimulatorExecutor) checkTakeProfit(trade *model.Trade, currentPrice float64) bool {
	switch trade.Side {
	case model.DirLong:
		// 多头止盈：当前价格 >= 止盈价
		return currentPrice >= trade.TakeProfitPrice
	case model.DirShort:
		// 空头止盈：当前价格 <= 止盈价
		return currentPrice <= trade.TakeProfitPrice
	}
	return false
}

// Trades 返回交易记录的副本，防止外部修改列表
func (e *SimulatorExecutor) Trades() []*model.Trade {
	records := make([]*model.Trade, len(e.trades))
	copy(records, e.trades)
	return records
}
