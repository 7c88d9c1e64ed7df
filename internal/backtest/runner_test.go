package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"crypto-backtester/internal/model"
	"crypto-backtester/pkg/ta"

	"go.uber.org/zap"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func makeSeries(t *testing.T, symbol string, closes ...float64) *model.Series {
	t.Helper()
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	s, err := model.NewSeries(symbol, "15m", candles)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func undefinedRows(n int) []ta.IndicatorRow {
	rows := make([]ta.IndicatorRow, n)
	for i := range rows {
		rows[i] = ta.IndicatorRow{
			RSI: math.NaN(), MACD: math.NaN(), MACDSignal: math.NaN(), MACDHist: math.NaN(), EMA: math.NaN(),
		}
	}
	return rows
}

func TestBacktestEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	series := makeSeries(t, "SOL/USDT", 10, 10, 10.2, 10.6, 10.4)

	rows := undefinedRows(series.Len())
	rows[1].RSI = 30
	rows[1].Engulfing = 100

	const amount = 3.0
	res, err := Backtest(cfg, series, rows, amount, nil)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}

	if res.TotalTrades != 1 || res.WinningTrades != 1 {
		t.Fatalf("total/winning = %d/%d, want 1/1", res.TotalTrades, res.WinningTrades)
	}
	if res.WinRate != 100 {
		t.Errorf("WinRate = %v, want 100", res.WinRate)
	}

	tr := res.Trades[0]
	if math.Abs(tr.StopLossPrice-9.8) > 1e-9 || math.Abs(tr.TakeProfitPrice-10.5) > 1e-9 {
		t.Errorf("SL/TP = %v/%v, want 9.8/10.5", tr.StopLossPrice, tr.TakeProfitPrice)
	}
	if tr.ExitIndex != 3 || tr.ExitPrice != 10.6 {
		t.Errorf("exit = %v at %d, want 10.6 at 3", tr.ExitPrice, tr.ExitIndex)
	}

	wantProfit := (10.6 - 10) * amount
	if math.Abs(res.TotalProfit-wantProfit) > 1e-9 {
		t.Errorf("TotalProfit = %v, want %v", res.TotalProfit, wantProfit)
	}
	if math.Abs(res.FinalBalance-(cfg.InitialBalance+wantProfit)) > 1e-9 {
		t.Errorf("FinalBalance = %v", res.FinalBalance)
	}
	if res.Symbol != "SOL/USDT" || res.Timeframe != "15m" || res.Amount != amount {
		t.Errorf("result meta = %s/%s/%v", res.Symbol, res.Timeframe, res.Amount)
	}
}

func TestBacktestMisalignedRows(t *testing.T) {
	series := makeSeries(t, "SOL/USDT", 1, 2, 3)
	if _, err := Backtest(DefaultConfig(), series, undefinedRows(2), 1, nil); !errors.Is(err, model.ErrMisaligned) {
		t.Errorf("err = %v, want ErrMisaligned", err)
	}
}

type fakeSource struct {
	mu      sync.Mutex
	series  map[string]*model.Series
	errs    map[string]error
	fetched []string
}

func (f *fakeSource) FetchCandles(_ context.Context, symbol, _ string, _ int) (*model.Series, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	s, ok := f.series[symbol]
	if !ok {
		return nil, errors.New("connection reset by peer")
	}
	return s, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []string
	skips   map[string]error
}

func (r *fakeRecorder) ObserveResult(res *model.BacktestResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res.Symbol)
}

func (r *fakeRecorder) ObserveSkip(symbol string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips[symbol] = err
}

func TestRunnerSkipsFailingSymbols(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"SOL/USDT", "PEPE/USDT", "DOGE/USDT", "AVAX/USDT"}

	source := &fakeSource{series: map[string]*model.Series{
		"SOL/USDT":  makeSeries(t, "SOL/USDT", 1, 2, 3, 4),
		"AVAX/USDT": makeSeries(t, "AVAX/USDT", 5),
		"DOGE/USDT": makeSeries(t, "DOGE/USDT", 1, 2),
	}}
	rec := &fakeRecorder{skips: map[string]error{}}

	outcomes := NewRunner(cfg, source, zap.NewNop(), WithRecorder(rec)).Run(context.Background())
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	for i, symbol := range cfg.Symbols {
		if outcomes[i].Symbol != symbol {
			t.Errorf("outcome %d symbol = %s, want %s", i, outcomes[i].Symbol, symbol)
		}
	}

	if outcomes[0].Skipped() || outcomes[0].Result.FinalBalance != cfg.InitialBalance {
		t.Errorf("SOL/USDT outcome = %+v", outcomes[0])
	}
	if !errors.Is(outcomes[1].Err, model.ErrDataUnavailable) {
		t.Errorf("PEPE/USDT err = %v, want ErrDataUnavailable", outcomes[1].Err)
	}
	if !errors.Is(outcomes[2].Err, model.ErrConfiguration) {
		t.Errorf("DOGE/USDT err = %v, want ErrConfiguration", outcomes[2].Err)
	}
	// 单根 K 线不是错误，只是没有交易
	if outcomes[3].Skipped() || outcomes[3].Result.TotalTrades != 0 {
		t.Errorf("AVAX/USDT outcome = %+v", outcomes[3])
	}

	for _, s := range source.fetched {
		if s == "DOGE/USDT" {
			t.Error("unconfigured symbol should fail before fetching data")
		}
	}
	if len(rec.results) != 2 || len(rec.skips) != 2 {
		t.Errorf("recorder results=%v skips=%v", rec.results, rec.skips)
	}
}

func TestRunnerKeepsSourceErrorClass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"SOL/USDT", "OP/USDT"}

	cause := errors.New("connection reset by peer")
	source := &fakeSource{errs: map[string]error{
		"SOL/USDT": fmt.Errorf("%w: unsupported interval", model.ErrConfiguration),
		"OP/USDT":  cause,
	}}
	outcomes := NewRunner(cfg, source, zap.NewNop()).Run(context.Background())

	if err := outcomes[0].Err; !errors.Is(err, model.ErrConfiguration) || errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("SOL/USDT err = %v, want ErrConfiguration only", err)
	}
	if err := outcomes[1].Err; !errors.Is(err, model.ErrDataUnavailable) || !errors.Is(err, cause) {
		t.Errorf("OP/USDT err = %v, want ErrDataUnavailable wrapping the cause", err)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"SOL/USDT", "OP/USDT"}
	cfg.MaxParallel = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 两个交易对都有数据，取消后依然不能产生结果
	source := &fakeSource{series: map[string]*model.Series{
		"SOL/USDT": makeSeries(t, "SOL/USDT", 1, 2, 3, 4),
		"OP/USDT":  makeSeries(t, "OP/USDT", 1, 2, 3, 4),
	}}
	rec := &fakeRecorder{skips: map[string]error{}}
	outcomes := NewRunner(cfg, source, zap.NewNop(), WithRecorder(rec)).Run(ctx)
	for _, o := range outcomes {
		if !errors.Is(o.Err, context.Canceled) || o.Result != nil {
			t.Errorf("%s: outcome = %+v, want context.Canceled", o.Symbol, o)
		}
	}
	if len(rec.results) != 0 {
		t.Errorf("recorded results on a cancelled run: %v", rec.results)
	}
	if len(source.fetched) != 0 {
		t.Errorf("fetched %v after cancellation", source.fetched)
	}
}
