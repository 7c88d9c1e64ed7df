package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-backtester/internal/executor"
	"crypto-backtester/internal/model"
	"crypto-backtester/internal/performance"
	"crypto-backtester/internal/strategy"
	"crypto-backtester/pkg/ta"

	"go.uber.org/zap"
)

// Source 提供单个交易对的历史 K 线
type Source interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.Series, error)
}

// Recorder 接收每个交易对的运行结果 (例如 prometheus 指标)
type Recorder interface {
	ObserveResult(res *model.BacktestResult, elapsed time.Duration)
	ObserveSkip(symbol string, err error)
}

// Outcome 单个交易对的回测结果，Err 不为空表示该交易对被跳过
type Outcome struct {
	Symbol string
	Result *model.BacktestResult
	Err    error
}

func (o Outcome) Skipped() bool { return o.Err != nil }

// Runner 对所有交易对运行回测，交易对之间并行且不共享状态
type Runner struct {
	cfg      Config
	source   Source
	recorder Recorder
	logger   *zap.Logger
}

type Option func(*Runner)

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

func NewRunner(cfg Config, source Source, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 运行所有配置的交易对，结果按配置顺序返回。
// 单个交易对失败只会跳过该交易对。
func (r *Runner) Run(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(r.cfg.Symbols))

	parallel := r.cfg.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)

	var wg sync.WaitGroup
	for i, symbol := range r.cfg.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i] = Outcome{Symbol: symbol, Err: ctx.Err()}
				return
			}
			// ctx 已取消时 select 仍可能选中 sem，拿到名额后再检查一次
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Symbol: symbol, Err: err}
				return
			}

			res, err := r.RunSymbol(ctx, symbol)
			outcomes[i] = Outcome{Symbol: symbol, Result: res, Err: err}
		}(i, symbol)
	}
	wg.Wait()

	return outcomes
}

// RunSymbol 获取数据并回测单个交易对
func (r *Runner) RunSymbol(ctx context.Context, symbol string) (*model.BacktestResult, error) {
	started := time.Now()
	symbolLogger := r.logger.With(zap.String("Symbol", symbol), zap.String("Timeframe", r.cfg.Timeframe))

	res, err := r.runSymbol(ctx, symbol, symbolLogger)
	if err != nil {
		symbolLogger.Warn("Backtest skipped", zap.Error(err))
		if r.recorder != nil {
			r.recorder.ObserveSkip(symbol, err)
		}
		return nil, err
	}

	elapsed := time.Since(started)
	symbolLogger.Info("Backtest finished",
		zap.Int("Trades", res.TotalTrades),
		zap.Float64("FinalBalance", res.FinalBalance),
		zap.Duration("Elapsed", elapsed))
	if r.recorder != nil {
		r.recorder.ObserveResult(res, elapsed)
	}
	return res, nil
}

func (r *Runner) runSymbol(ctx context.Context, symbol string, logger *zap.Logger) (*model.BacktestResult, error) {
	// 缺少下单数量直接失败，不去拉数据
	amount, ok := r.cfg.Amounts[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no position amount configured for %s", model.ErrConfiguration, symbol)
	}

	series, err := r.source.FetchCandles(ctx, symbol, r.cfg.Timeframe, r.cfg.CandleLimit)
	if err != nil {
		// 数据源已归类的错误 (数据不可用 / 配置错误) 保持原样
		if !errors.Is(err, model.ErrDataUnavailable) && !errors.Is(err, model.ErrConfiguration) {
			err = fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, symbol, err)
		}
		return nil, err
	}
	if series == nil {
		return nil, fmt.Errorf("%w: %s: empty response", model.ErrDataUnavailable, symbol)
	}

	rows := ta.NewTACalculator(r.cfg.Indicators, logger.Sugar()).Compute(series)
	return Backtest(r.cfg, series, rows, amount, logger)
}

// Backtest 在已准备好的 K 线和指标上运行信号生成、交易模拟和绩效汇总。
// 纯计算，不做 I/O。
func Backtest(cfg Config, series *model.Series, rows []ta.IndicatorRow, amount float64, logger *zap.Logger) (*model.BacktestResult, error) {
	if len(rows) != series.Len() {
		return nil, fmt.Errorf("%w: %d indicator rows for %d candles", model.ErrMisaligned, len(rows), series.Len())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	signals := strategy.NewSignalGenerator(cfg.Thresholds).GenerateAll(rows)

	sim := executor.NewSimulatorExecutor(cfg.simulatorConfig(), logger.Sugar())
	finalBalance, err := sim.Run(series, signals, amount)
	if err != nil {
		return nil, err
	}

	trades := sim.Trades()
	res := &model.BacktestResult{
		Symbol:         series.Symbol,
		Timeframe:      series.Interval,
		Amount:         amount,
		InitialBalance: cfg.InitialBalance,
		FinalBalance:   finalBalance,
		Trades:         trades,
	}
	performance.Aggregate(cfg.InitialBalance, trades, cfg.Drawdown).Apply(res)
	return res, nil
}
