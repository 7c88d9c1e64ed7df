package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-backtester/internal/api"
	"crypto-backtester/internal/backtest"
	"crypto-backtester/internal/market"
	"crypto-backtester/internal/metrics"
	"crypto-backtester/internal/report"
	"crypto-backtester/internal/service"
	"crypto-backtester/internal/store/sqlite"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configPath := flags.String("config", "config", "directory containing config.yaml")
	flags.Bool("watch", false, "re-run the backtest on every interval tick and confirmed candle")
	flags.Duration("interval", 5*time.Second, "watch mode re-run interval")
	flags.StringSlice("symbols", nil, "symbols to backtest, e.g. SOL/USDT,OP/USDT")
	flags.String("timeframe", "15m", "candle timeframe")
	history := flags.Bool("history", false, "print stored runs for the configured symbols and exit")
	flags.Parse(os.Args[1:])

	// .env 中的 BACKTEST_* 变量，文件不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	v := viper.New()
	for key, name := range map[string]string{
		"Watch.Enabled":      "watch",
		"Watch.Interval":     "interval",
		"Backtest.Symbols":   "symbols",
		"Backtest.Timeframe": "timeframe",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			log.Fatalf("Failed to bind flag %s: %v", name, err)
		}
	}

	cfg, err := service.LoadConfig(v, *configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	service.InitLogger(cfg.LogLevel)
	defer service.Logger.Sync()
	logger := service.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := newSource(cfg, logger)

	var store *sqlite.Writer
	if cfg.Store.SQLitePath != "" {
		store, err = sqlite.New(cfg.Store.SQLitePath, logger)
		if err != nil {
			logger.Fatal("Failed to open result store", zap.Error(err))
		}
		defer store.Close()
	}

	if *history {
		if store == nil {
			logger.Fatal("--history requires Store.SQLitePath")
		}
		printHistory(ctx, store, cfg.Backtest.Symbols, logger)
		return
	}

	m := metrics.New()
	runner := backtest.NewRunner(backtest.ConfigFromService(cfg), source, logger, backtest.WithRecorder(m))
	printer := report.NewPrinter(os.Stdout)

	runOnce := func() {
		outcomes := runner.Run(ctx)
		if err := printer.Print(outcomes); err != nil {
			logger.Error("Failed to print report", zap.Error(err))
		}
		if store == nil {
			return
		}
		for _, o := range outcomes {
			if o.Skipped() {
				continue
			}
			if _, err := store.SaveResult(ctx, o.Result); err != nil {
				logger.Error("Failed to save backtest result", zap.String("Symbol", o.Symbol), zap.Error(err))
			}
		}
	}

	if !cfg.Watch.Enabled {
		runOnce()
		return
	}

	logger.Info("Starting watch mode",
		zap.Duration("Interval", cfg.Watch.Interval), zap.Strings("Symbols", cfg.Backtest.Symbols))

	if cfg.Watch.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Watch.MetricsAddr, logger); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	// 未配置 WSURL 时 triggers 为 nil，select 中永远不会就绪
	var triggers <-chan api.CandleEvent
	if cfg.Watch.WSURL != "" {
		connector := api.NewConnector(cfg.Watch.WSURL, cfg.Backtest.Timeframe, cfg.Backtest.Symbols, logger)
		triggers = connector.Triggers()
		go connector.Start(ctx)
	}

	ticker := time.NewTicker(cfg.Watch.Interval)
	defer ticker.Stop()

	runOnce()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch mode stopped")
			return
		case <-ticker.C:
			runOnce()
		case ev := <-triggers:
			logger.Info("Candle confirmed, re-running backtest",
				zap.String("Symbol", ev.Symbol), zap.Time("OpenTime", ev.Candle.Timestamp))
			runOnce()
		}
	}
}

func newSource(cfg *service.Config, logger *zap.Logger) backtest.Source {
	if cfg.Source.Provider == "csv" {
		return market.NewCSVSource(market.CSVConfig{
			Dir:          cfg.Source.CSV.Dir,
			BaseInterval: cfg.Source.CSV.BaseInterval,
		}, logger)
	}
	return market.NewBinanceSource(market.BinanceConfig{
		APIKey:     cfg.Source.Binance.APIKey,
		SecretKey:  cfg.Source.Binance.SecretKey,
		BaseURL:    cfg.Source.Binance.BaseURL,
		RateLimit:  cfg.Source.Binance.RateLimit,
		MaxRetries: cfg.Source.Binance.MaxRetries,
	}, logger)
}

func printHistory(ctx context.Context, store *sqlite.Writer, symbols []string, logger *zap.Logger) {
	for _, symbol := range symbols {
		runs, err := store.LoadRuns(ctx, symbol)
		if err != nil {
			logger.Error("Failed to load stored runs", zap.String("Symbol", symbol), zap.Error(err))
			continue
		}
		for _, r := range runs {
			logger.Info("Stored backtest run",
				zap.String("Symbol", r.Symbol),
				zap.Int64("RunID", r.ID),
				zap.Time("CreatedAt", r.CreatedAt),
				zap.String("Timeframe", r.Timeframe),
				zap.Int("Trades", r.TotalTrades),
				zap.Float64("WinRate", r.WinRate),
				zap.Float64("FinalBalance", r.FinalBalance))
		}
	}
}
