package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-backtester/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestObserveResultAndSkip(t *testing.T) {
	m := New()
	m.ObserveResult(&model.BacktestResult{
		Symbol:       "SOL/USDT",
		FinalBalance: 5.25,
		Trades: []*model.Trade{
			{Side: model.DirLong}, {Side: model.DirLong}, {Side: model.DirShort},
		},
	}, 120*time.Millisecond)
	m.ObserveSkip("PEPE/USDT", fmt.Errorf("%w: timeout", model.ErrDataUnavailable))
	m.ObserveSkip("DOGE/USDT", fmt.Errorf("%w: no amount", model.ErrConfiguration))

	body := scrape(t, m)
	for _, want := range []string{
		"backtest_runs_total 1",
		`backtest_trades_total{side="long"} 2`,
		`backtest_trades_total{side="short"} 1`,
		`backtest_skipped_symbols_total{reason="data_unavailable"} 1`,
		`backtest_skipped_symbols_total{reason="configuration"} 1`,
		`backtest_final_balance{symbol="SOL/USDT"} 5.25`,
		"backtest_symbol_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", model.ErrDataUnavailable), "data_unavailable"},
		{model.ErrConfiguration, "configuration"},
		{model.ErrMisaligned, "misaligned"},
		{context.Canceled, "cancelled"},
		{io.EOF, "other"},
	}
	for _, tt := range tests {
		if got := SkipReason(tt.err); got != tt.want {
			t.Errorf("SkipReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RunsTotal.Inc()
	if !strings.Contains(scrape(t, b), "backtest_runs_total 0") {
		t.Error("metrics leaked between registries")
	}
}
