package backtest

import (
	"crypto-backtester/internal/executor"
	"crypto-backtester/internal/performance"
	"crypto-backtester/internal/service"
	"crypto-backtester/internal/strategy"
	"crypto-backtester/pkg/ta"
)

// Config 一次回测运行所需的全部参数，按值传递，不同运行之间互不影响
type Config struct {
	Symbols        []string
	Timeframe      string
	CandleLimit    int
	InitialBalance float64
	Amounts        map[string]float64
	MaxParallel    int

	StopLossPct   float64
	TakeProfitPct float64
	ExitScan      executor.ExitScanMode

	Thresholds strategy.Thresholds
	Indicators ta.Params
	Drawdown   performance.DrawdownMode
}

// DefaultConfig 使用内置默认参数
func DefaultConfig() Config {
	amounts := make(map[string]float64, len(service.DefaultAmounts))
	for k, v := range service.DefaultAmounts {
		amounts[k] = v
	}
	return Config{
		Symbols:        append([]string(nil), service.DefaultSymbols...),
		Timeframe:      "15m",
		CandleLimit:    1000,
		InitialBalance: 5,
		Amounts:        amounts,
		MaxParallel:    4,
		StopLossPct:    0.02,
		TakeProfitPct:  0.05,
		ExitScan:       executor.ExitScanTradeOrdinal,
		Thresholds:     strategy.DefaultThresholds(),
		Indicators:     ta.DefaultParams(),
		Drawdown:       performance.DrawdownShared,
	}
}

// ConfigFromService 把 viper 加载的配置转换为回测参数
func ConfigFromService(cfg *service.Config) Config {
	return Config{
		Symbols:        cfg.Backtest.Symbols,
		Timeframe:      cfg.Backtest.Timeframe,
		CandleLimit:    cfg.Backtest.CandleLimit,
		InitialBalance: cfg.Backtest.InitialBalance,
		Amounts:        cfg.Backtest.Amounts,
		MaxParallel:    cfg.Backtest.MaxParallel,
		StopLossPct:    cfg.Risk.StopLossPct,
		TakeProfitPct:  cfg.Risk.TakeProfitPct,
		ExitScan:       executor.ExitScanMode(cfg.Backtest.ExitScan),
		Thresholds: strategy.Thresholds{
			RSIOverbought: cfg.Strategy.RSIOverbought,
			RSIOversold:   cfg.Strategy.RSIOversold,
		},
		Indicators: ta.Params{
			RSIPeriod:  cfg.Strategy.RSIPeriod,
			EMAPeriod:  cfg.Strategy.EMAPeriod,
			MACDFast:   cfg.Strategy.MACD.Fast,
			MACDSlow:   cfg.Strategy.MACD.Slow,
			MACDSignal: cfg.Strategy.MACD.Signal,
		},
		Drawdown: performance.DrawdownMode(cfg.Backtest.Drawdown),
	}
}

func (c Config) simulatorConfig() *executor.SimulatorConfig {
	return &executor.SimulatorConfig{
		InitialBalance: c.InitialBalance,
		StopLossPct:    c.StopLossPct,
		TakeProfitPct:  c.TakeProfitPct,
		ExitScan:       c.ExitScan,
	}
}
