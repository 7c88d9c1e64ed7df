// Package report 把回测结果渲染为文本报告
package report

import (
	"fmt"
	"io"

	"crypto-backtester/internal/backtest"
	"crypto-backtester/internal/model"

	"github.com/shopspring/decimal"
)

// moneyPlaces 余额/数量输出时保留的小数位 (去掉末尾 0)
const moneyPlaces = 8

// Printer 按交易对输出回测结果
type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Print 按结果顺序输出，跳过的交易对只输出一行原因
func (p *Printer) Print(outcomes []backtest.Outcome) error {
	for _, o := range outcomes {
		var err error
		if o.Skipped() {
			err = p.PrintSkip(o.Symbol, o.Err)
		} else {
			err = p.PrintResult(o.Result)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) PrintResult(res *model.BacktestResult) error {
	finalBalance := money(res.FinalBalance)
	lines := []string{
		"Symbol: " + res.Symbol,
		"Initial Balance: " + money(res.InitialBalance),
		"Final Balance: " + finalBalance,
		fmt.Sprintf("Total Trades: %d", res.TotalTrades),
		fmt.Sprintf("Winning Trades: %d", res.WinningTrades),
		"Win Rate: " + fixed(res.WinRate) + "%",
		"Total Profit: " + fixed(res.TotalProfit),
		"Maximum Drawdown: " + fixed(res.MaxDrawdown*100) + "%",
		fmt.Sprintf("Final Balance for %s: %s with base order amount %s", res.Symbol, finalBalance, money(res.Amount)),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.out, line); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) PrintSkip(symbol string, reason error) error {
	_, err := fmt.Fprintf(p.out, "Skipping %s: %v\n", symbol, reason)
	return err
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(moneyPlaces).String()
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
