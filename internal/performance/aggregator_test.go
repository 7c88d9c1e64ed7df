package performance

import (
	"math"
	"testing"

	"crypto-backtester/internal/model"
)

func closed(side model.Direction, entry, exit, amount float64) *model.Trade {
	return &model.Trade{
		Symbol: "SOL/USDT", Side: side, Amount: amount,
		EntryPrice: entry, ExitPrice: exit, ExitReason: model.ExitEndOfData,
	}
}

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.10f, want %.10f", label, got, want)
	}
}

func TestAggregateNoTrades(t *testing.T) {
	s := Aggregate(5, nil, DrawdownShared)
	if s.TotalTrades != 0 || s.WinningTrades != 0 {
		t.Errorf("counts = %+v", s)
	}
	if s.WinRate != 0 || math.IsNaN(s.WinRate) {
		t.Errorf("WinRate = %v, want 0", s.WinRate)
	}
	if s.TotalProfit != 0 || s.MaxDrawdown != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestAggregateCounts(t *testing.T) {
	trades := []*model.Trade{
		closed(model.DirLong, 10, 10.6, 1),  // +0.6
		closed(model.DirShort, 10, 10.5, 2), // -1.0
		closed(model.DirShort, 20, 19, 1),   // +1.0
		closed(model.DirLong, 5, 5, 3),      // 0，不算盈利
	}
	s := Aggregate(5, trades, DrawdownShared)

	if s.TotalTrades != 4 || s.WinningTrades != 2 {
		t.Errorf("total/winning = %d/%d, want 4/2", s.TotalTrades, s.WinningTrades)
	}
	assertClose(t, "win rate", s.WinRate, 50)
	assertClose(t, "total profit", s.TotalProfit, 0.6)
}

func TestAggregateSharedDrawdown(t *testing.T) {
	trades := []*model.Trade{
		closed(model.DirLong, 10, 5, 1),
		closed(model.DirLong, 10, 4, 1),
	}
	// 共享口径下 balance 不随交易推进，回撤恒为 0
	s := Aggregate(5, trades, DrawdownShared)
	assertClose(t, "max drawdown", s.MaxDrawdown, 0)
}

func TestAggregateEquityDrawdown(t *testing.T) {
	trades := []*model.Trade{
		closed(model.DirLong, 10, 15, 1), // 5 -> 10
		closed(model.DirLong, 10, 6, 1),  // 10 -> 6, 回撤 40%
		closed(model.DirLong, 10, 12, 1), // 6 -> 8
		closed(model.DirLong, 10, 7, 1),  // 8 -> 5, 回撤 50%
	}
	s := Aggregate(5, trades, DrawdownEquity)
	assertClose(t, "max drawdown", s.MaxDrawdown, 0.5)
	assertClose(t, "total profit", s.TotalProfit, 0)
}

func TestAggregateZeroInitialBalance(t *testing.T) {
	trades := []*model.Trade{closed(model.DirLong, 10, 9, 1)}
	s := Aggregate(0, trades, DrawdownEquity)
	if math.IsNaN(s.MaxDrawdown) || math.IsInf(s.MaxDrawdown, 0) || s.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0", s.MaxDrawdown)
	}
}

func TestAggregateOpenTradesCounted(t *testing.T) {
	open := &model.Trade{Side: model.DirLong, Amount: 1, EntryPrice: 10}
	s := Aggregate(5, []*model.Trade{open, closed(model.DirLong, 10, 11, 1)}, DrawdownShared)
	if s.TotalTrades != 2 || s.WinningTrades != 1 {
		t.Errorf("total/winning = %d/%d, want 2/1", s.TotalTrades, s.WinningTrades)
	}
	assertClose(t, "total profit", s.TotalProfit, 1)
}

func TestAggregateIsPure(t *testing.T) {
	trades := []*model.Trade{
		closed(model.DirLong, 10, 10.6, 1),
		closed(model.DirShort, 10, 10.5, 2),
	}
	before := *trades[0]

	for _, mode := range []DrawdownMode{DrawdownShared, DrawdownEquity} {
		first := Aggregate(5, trades, mode)
		second := Aggregate(5, trades, mode)
		if first != second {
			t.Errorf("%s: repeated Aggregate differs: %+v vs %+v", mode, first, second)
		}
	}
	if *trades[0] != before {
		t.Error("Aggregate mutated its input")
	}
}
