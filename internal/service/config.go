// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BacktestConfig 定义了回测范围和每个交易对的下单数量
type BacktestConfig struct {
	Symbols        []string
	Timeframe      string
	CandleLimit    int
	InitialBalance float64
	Amounts        map[string]float64 // Key: 交易对 (例如 "SOL/USDT")，Value: 基础下单数量
	MaxParallel    int
	ExitScan       string // trade-ordinal | entry-bar
	Drawdown       string // shared | equity
}

// RiskConfig 定义了止损止盈比例
type RiskConfig struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// StrategyConfig 定义了指标参数和 RSI 确认阈值
type StrategyConfig struct {
	RSIOverbought float64
	RSIOversold   float64
	RSIPeriod     int
	EMAPeriod     int
	MACD          struct {
		Fast   int
		Slow   int
		Signal int
	}
}

// SourceConfig 定义了 K 线数据来源
type SourceConfig struct {
	Provider string // binance | csv
	Binance  struct {
		APIKey     string
		SecretKey  string
		BaseURL    string
		RateLimit  float64 // 每秒请求数
		MaxRetries int
	}
	CSV struct {
		Dir          string
		BaseInterval string // 若目标周期文件不存在，用该周期文件重采样
	}
}

// WatchConfig 定义了持续回测模式
type WatchConfig struct {
	Enabled     bool
	Interval    time.Duration
	WSURL       string // 为空则不订阅 K 线收盘推送
	MetricsAddr string
}

type StoreConfig struct {
	SQLitePath string
}

type Config struct {
	LogLevel string         `mapstructure:"LogLevel"`
	Backtest BacktestConfig `mapstructure:"Backtest"`
	Risk     RiskConfig     `mapstructure:"Risk"`
	Strategy StrategyConfig `mapstructure:"Strategy"`
	Source   SourceConfig   `mapstructure:"Source"`
	Watch    WatchConfig    `mapstructure:"Watch"`
	Store    StoreConfig    `mapstructure:"Store"`
}

// DefaultSymbols 默认回测的交易对
var DefaultSymbols = []string{
	"SOL/USDT", "PEPE/USDT", "AVAX/USDT",
	"SUI/USDT", "OP/USDT", "APE/USDT", "SEI/USDT", "FTM/USDT", "TRX/USDT",
}

// DefaultAmounts 每个交易对的基础下单数量
var DefaultAmounts = map[string]float64{
	"SOL/USDT":  0.08,
	"PEPE/USDT": 1000000,
	"AVAX/USDT": 0.3,
	"SUI/USDT":  20.0,
	"OP/USDT":   0.3,
	"APE/USDT":  0.8,
	"SEI/USDT":  0.4,
	"FTM/USDT":  0.6,
	"TRX/USDT":  2.0,
}

// SetDefaults 注册所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")

	v.SetDefault("Backtest.Symbols", DefaultSymbols)
	v.SetDefault("Backtest.Timeframe", "15m")
	v.SetDefault("Backtest.CandleLimit", 1000)
	v.SetDefault("Backtest.InitialBalance", 5.0)
	v.SetDefault("Backtest.MaxParallel", 4)
	v.SetDefault("Backtest.ExitScan", "trade-ordinal")
	v.SetDefault("Backtest.Drawdown", "shared")

	v.SetDefault("Risk.StopLossPct", 0.02)
	v.SetDefault("Risk.TakeProfitPct", 0.05)

	v.SetDefault("Strategy.RSIOverbought", 65.0)
	v.SetDefault("Strategy.RSIOversold", 35.0)
	v.SetDefault("Strategy.RSIPeriod", 14)
	v.SetDefault("Strategy.EMAPeriod", 10)
	v.SetDefault("Strategy.MACD.Fast", 12)
	v.SetDefault("Strategy.MACD.Slow", 26)
	v.SetDefault("Strategy.MACD.Signal", 9)

	v.SetDefault("Source.Provider", "binance")
	// 没有默认值的 key 不会被 AutomaticEnv 写入 Unmarshal 结果，这里显式注册空值
	v.SetDefault("Source.Binance.APIKey", "")
	v.SetDefault("Source.Binance.SecretKey", "")
	v.SetDefault("Source.Binance.BaseURL", "")
	v.SetDefault("Source.Binance.RateLimit", 10.0)
	v.SetDefault("Source.Binance.MaxRetries", 3)
	v.SetDefault("Source.CSV.Dir", "data")
	v.SetDefault("Source.CSV.BaseInterval", "")

	v.SetDefault("Watch.Enabled", false)
	v.SetDefault("Watch.Interval", 5*time.Second)
	v.SetDefault("Watch.WSURL", "")
	v.SetDefault("Watch.MetricsAddr", "")

	v.SetDefault("Store.SQLitePath", "")
}

// LoadConfig 读取并解析配置文件，configPath 下没有 config.yaml 时只使用默认值和环境变量
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// BACKTEST_RISK_STOPLOSSPCT=0.03 之类的环境变量覆盖配置
	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 没有配置 Amounts 时才使用内置表，一旦配置就以配置为准
	if !v.IsSet("Backtest.Amounts") {
		cfg.Backtest.Amounts = DefaultAmounts
	}
	cfg.Backtest.Amounts = normalizeAmounts(cfg.Backtest.Amounts)

	for i, s := range cfg.Backtest.Symbols {
		cfg.Backtest.Symbols[i] = NormalizeSymbol(s)
	}

	// 统一周期写法，例如 60m -> 1h (Binance/OKX 只认规范写法)
	if d, err := ParseIntervalDuration(cfg.Backtest.Timeframe); err == nil {
		cfg.Backtest.Timeframe = FormatInterval(d)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置项取值范围
func (c *Config) Validate() error {
	if len(c.Backtest.Symbols) == 0 {
		return errors.New("config: Backtest.Symbols is empty")
	}
	if _, err := ParseIntervalDuration(c.Backtest.Timeframe); err != nil {
		return fmt.Errorf("config: Backtest.Timeframe: %w", err)
	}
	if c.Risk.StopLossPct < 0 || c.Risk.TakeProfitPct < 0 {
		return fmt.Errorf("config: negative risk percentage (sl=%v, tp=%v)", c.Risk.StopLossPct, c.Risk.TakeProfitPct)
	}
	if c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		return fmt.Errorf("config: RSIOversold (%v) must be below RSIOverbought (%v)", c.Strategy.RSIOversold, c.Strategy.RSIOverbought)
	}
	if c.Watch.Enabled && c.Watch.Interval <= 0 {
		return fmt.Errorf("config: Watch.Interval must be positive, got %v", c.Watch.Interval)
	}
	switch c.Source.Provider {
	case "binance", "csv":
	default:
		return fmt.Errorf("config: unknown Source.Provider %q", c.Source.Provider)
	}
	switch c.Backtest.ExitScan {
	case "trade-ordinal", "entry-bar":
	default:
		return fmt.Errorf("config: unknown Backtest.ExitScan %q", c.Backtest.ExitScan)
	}
	switch c.Backtest.Drawdown {
	case "shared", "equity":
	default:
		return fmt.Errorf("config: unknown Backtest.Drawdown %q", c.Backtest.Drawdown)
	}
	return nil
}

// viper 会把 map 的 key 转为小写，这里统一回大写
func normalizeAmounts(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[NormalizeSymbol(k)] = v
	}
	return out
}
