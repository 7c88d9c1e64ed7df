package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"crypto-backtester/internal/model"
	"crypto-backtester/internal/service"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Binance 单次最多返回 1500 根 K 线
const binanceMaxKlines = 1500

type BinanceConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string  // 为空时使用 go-binance 默认地址
	RateLimit  float64 // 每秒请求数
	MaxRetries int
}

// BinanceSource 从 Binance 合约接口拉取历史 K 线
type BinanceSource struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewBinanceSource(cfg BinanceConfig, logger *zap.Logger) *BinanceSource {
	// Create custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	client.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}

	return &BinanceSource{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), int(math.Max(1, limit*2))),
		maxRetries:  cfg.MaxRetries,
		backoff:     100 * time.Millisecond,
		logger:      logger,
		now:         time.Now,
	}
}

// FetchCandles 拉取最近 limit 根 K 线 (按开盘时间升序)
func (s *BinanceSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.Series, error) {
	interval, err := service.ParseIntervalDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	if limit <= 0 {
		limit = binanceMaxKlines
	}

	exchangeSymbol := service.PairToExchangeSymbol(symbol)
	builder := model.NewSeriesBuilder(symbol, timeframe, limit)

	startTime := s.now().Add(-time.Duration(limit) * interval)
	for builder.Len() < limit {
		page := limit - builder.Len()
		if page > binanceMaxKlines {
			page = binanceMaxKlines
		}

		klines, err := s.getKlines(ctx, exchangeSymbol, timeframe, startTime.UnixMilli(), page)
		if err != nil {
			return nil, fmt.Errorf("%w: %s klines: %v", model.ErrDataUnavailable, symbol, err)
		}

		appended := 0
		for _, k := range klines {
			c, err := klineToCandle(k)
			if err != nil {
				return nil, fmt.Errorf("%w: %s kline decode: %v", model.ErrDataUnavailable, symbol, err)
			}
			// 分页边界可能重复返回同一根 K 线
			if last := builder.LastTimestamp(); !last.IsZero() && !c.Timestamp.After(last) {
				continue
			}
			if err := builder.Append(c); err != nil {
				return nil, err
			}
			appended++
			if builder.Len() >= limit {
				break
			}
		}

		if appended == 0 || len(klines) < page {
			break
		}
		startTime = builder.LastTimestamp().Add(interval)
	}

	s.logger.Debug("Fetched klines",
		zap.String("Symbol", symbol), zap.String("Interval", timeframe), zap.Int("Count", builder.Len()))
	return builder.Build(), nil
}

// getKlines 带限流和指数退避重试
func (s *BinanceSource) getKlines(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]*futures.Kline, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startTime).
			Limit(limit).
			Do(ctx)
		if err == nil {
			return klines, nil
		}
		lastErr = err

		if attempt == s.maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * s.backoff
		s.logger.Warn("Klines request failed, retrying",
			zap.String("Symbol", symbol), zap.Int("Attempt", attempt+1), zap.Duration("Wait", waitTime), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return nil, lastErr
}

func klineToCandle(k *futures.Kline) (model.Candle, error) {
	var (
		c   = model.Candle{Timestamp: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	fields := []struct {
		dst *float64
		raw string
	}{
		{&c.Open, k.Open}, {&c.High, k.High}, {&c.Low, k.Low}, {&c.Close, k.Close}, {&c.Volume, k.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = service.StringToFloat(f.raw); err != nil {
			return model.Candle{}, err
		}
	}
	return c, nil
}
