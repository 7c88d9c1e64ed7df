// Package metrics 暴露回测运行的 prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crypto-backtester/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 回测指标，实现 backtest.Recorder
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal    prometheus.Counter
	TradesTotal  *prometheus.CounterVec // labels: side
	SkipsTotal   *prometheus.CounterVec // labels: reason
	RunDuration  prometheus.Histogram
	FinalBalance *prometheus.GaugeVec // labels: symbol
}

// New 在独立的 registry 上注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Total completed symbol backtests",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Total simulated trades by side",
		}, []string{"side"}),
		SkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_skipped_symbols_total",
			Help: "Symbols skipped by reason",
		}, []string{"reason"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_symbol_duration_seconds",
			Help:    "Wall time of one symbol backtest including data fetch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FinalBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_final_balance",
			Help: "Final balance of the latest backtest per symbol",
		}, []string{"symbol"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.TradesTotal,
		m.SkipsTotal,
		m.RunDuration,
		m.FinalBalance,
	)
	return m
}

func (m *Metrics) ObserveResult(res *model.BacktestResult, elapsed time.Duration) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.FinalBalance.WithLabelValues(res.Symbol).Set(res.FinalBalance)
	for _, t := range res.Trades {
		m.TradesTotal.WithLabelValues(string(t.Side)).Inc()
	}
}

func (m *Metrics) ObserveSkip(_ string, err error) {
	m.SkipsTotal.WithLabelValues(SkipReason(err)).Inc()
}

// SkipReason 把跳过原因归类为低基数的 label
func SkipReason(err error) string {
	switch {
	case errors.Is(err, model.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, model.ErrConfiguration):
		return "configuration"
	case errors.Is(err, model.ErrMisaligned):
		return "misaligned"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，ctx 取消后关闭
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics server listening", zap.String("Addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
