package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backtest.Timeframe != "15m" {
		t.Errorf("Timeframe = %q, want 15m", cfg.Backtest.Timeframe)
	}
	if cfg.Backtest.InitialBalance != 5 {
		t.Errorf("InitialBalance = %v, want 5", cfg.Backtest.InitialBalance)
	}
	if cfg.Risk.StopLossPct != 0.02 || cfg.Risk.TakeProfitPct != 0.05 {
		t.Errorf("Risk = %+v", cfg.Risk)
	}
	if cfg.Strategy.RSIOverbought != 65 || cfg.Strategy.RSIOversold != 35 || cfg.Strategy.EMAPeriod != 10 {
		t.Errorf("Strategy = %+v", cfg.Strategy)
	}
	if len(cfg.Backtest.Symbols) != len(DefaultSymbols) {
		t.Errorf("Symbols = %v", cfg.Backtest.Symbols)
	}
	if cfg.Backtest.Amounts["PEPE/USDT"] != 1000000 {
		t.Errorf("Amounts[PEPE/USDT] = %v", cfg.Backtest.Amounts["PEPE/USDT"])
	}
	if cfg.Watch.Interval != 5*time.Second {
		t.Errorf("Watch.Interval = %v", cfg.Watch.Interval)
	}
	if cfg.Backtest.ExitScan != "trade-ordinal" || cfg.Backtest.Drawdown != "shared" {
		t.Errorf("modes = %q / %q", cfg.Backtest.ExitScan, cfg.Backtest.Drawdown)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
Backtest:
  Symbols: ["sol/usdt", "OP/USDT"]
  Timeframe: 1h
  InitialBalance: 100
  Amounts:
    SOL/USDT: 1.5
Risk:
  StopLossPct: 0.01
Watch:
  Interval: 30s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(viper.New(), dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Backtest.Symbols; len(got) != 2 || got[0] != "SOL/USDT" || got[1] != "OP/USDT" {
		t.Errorf("Symbols = %v", got)
	}
	if cfg.Backtest.Amounts["SOL/USDT"] != 1.5 {
		t.Errorf("Amounts = %v", cfg.Backtest.Amounts)
	}
	// 配置了 Amounts 就不再混入默认表
	if _, ok := cfg.Backtest.Amounts["OP/USDT"]; ok {
		t.Errorf("OP/USDT amount should be unconfigured, got %v", cfg.Backtest.Amounts)
	}
	if cfg.Risk.StopLossPct != 0.01 || cfg.Risk.TakeProfitPct != 0.05 {
		t.Errorf("Risk = %+v", cfg.Risk)
	}
	if cfg.Backtest.InitialBalance != 100 || cfg.Backtest.Timeframe != "1h" {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Watch.Interval != 30*time.Second {
		t.Errorf("Watch.Interval = %v", cfg.Watch.Interval)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BACKTEST_RISK_TAKEPROFITPCT", "0.08")

	cfg, err := LoadConfig(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Risk.TakeProfitPct != 0.08 {
		t.Errorf("TakeProfitPct = %v, want 0.08", cfg.Risk.TakeProfitPct)
	}
}

func TestLoadConfigCanonicalTimeframe(t *testing.T) {
	t.Setenv("BACKTEST_BACKTEST_TIMEFRAME", "60m")

	cfg, err := LoadConfig(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backtest.Timeframe != "1h" {
		t.Errorf("Timeframe = %q, want 1h", cfg.Backtest.Timeframe)
	}
}

func TestLoadConfigEnvOnlyKeys(t *testing.T) {
	t.Setenv("BACKTEST_SOURCE_BINANCE_APIKEY", "key-from-env")
	t.Setenv("BACKTEST_STORE_SQLITEPATH", "runs.db")

	cfg, err := LoadConfig(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Source.Binance.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q", cfg.Source.Binance.APIKey)
	}
	if cfg.Store.SQLitePath != "runs.db" {
		t.Errorf("SQLitePath = %q", cfg.Store.SQLitePath)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	bad := *cfg
	bad.Strategy.RSIOversold = 70
	if err := bad.Validate(); err == nil {
		t.Error("expected error for oversold >= overbought")
	}

	bad = *cfg
	bad.Backtest.ExitScan = "bar"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown exit scan mode")
	}

	bad = *cfg
	bad.Source.Provider = "ftp"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}

	bad = *cfg
	bad.Watch.Enabled = true
	bad.Watch.Interval = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero watch interval")
	}

	bad = *cfg
	bad.Backtest.Timeframe = "15x"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for bad timeframe")
	}
}
