package model

import (
	"fmt"
	"math"
	"time"
)

// KlineAggregator K 线聚合器 (把细粒度 K 线聚合为目标周期，例如 1m -> 15m)
type KlineAggregator struct {
	Symbol   string        // 所属交易对
	Interval string        // 目标周期，如 "15m"
	duration time.Duration // Interval 对应的时长
	Current  Candle        // 正在构建的当前 K 线
	started  bool

	out *SeriesBuilder
}

// NewKlineAggregator 创建一个新的聚合器
func NewKlineAggregator(symbol, intervalStr string, duration time.Duration) (*KlineAggregator, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("aggregator %s: invalid interval %q", symbol, intervalStr)
	}
	return &KlineAggregator{
		Symbol:   symbol,
		Interval: intervalStr,
		duration: duration,
		out:      NewSeriesBuilder(symbol, intervalStr, 0),
	}, nil
}

// Process 把一根细粒度 K 线并入当前周期
func (agg *KlineAggregator) Process(c Candle) error {
	// 将时间戳对齐到目标 K 线起始时间
	bucketStart := c.Timestamp.UTC().Truncate(agg.duration)

	// 新周期开始，先输出已完成的 K 线
	if agg.started && bucketStart.After(agg.Current.Timestamp) {
		if err := agg.out.Append(agg.Current); err != nil {
			return err
		}
		agg.started = false
	}

	if agg.started && bucketStart.Before(agg.Current.Timestamp) {
		return fmt.Errorf("%w: %s before bucket %s",
			ErrNonIncreasingTimestamp, c.Timestamp.Format(time.RFC3339), agg.Current.Timestamp.Format(time.RFC3339))
	}

	if !agg.started {
		agg.Current = Candle{
			Timestamp: bucketStart,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
		agg.started = true
		return nil
	}

	// 更新 OHLCV
	agg.Current.Close = c.Close
	agg.Current.High = math.Max(agg.Current.High, c.High)
	agg.Current.Low = math.Min(agg.Current.Low, c.Low)
	agg.Current.Volume += c.Volume
	return nil
}

// Flush 输出最后一根 (可能未走完的) K 线并返回聚合后的序列
func (agg *KlineAggregator) Flush() (*Series, error) {
	if agg.started {
		if err := agg.out.Append(agg.Current); err != nil {
			return nil, err
		}
		agg.started = false
	}
	return agg.out.Build(), nil
}

// Resample 把 src 聚合为 interval 周期的新序列
func Resample(src *Series, interval string, duration time.Duration) (*Series, error) {
	agg, err := NewKlineAggregator(src.Symbol, interval, duration)
	if err != nil {
		return nil, err
	}
	for _, c := range src.candles {
		if err := agg.Process(c); err != nil {
			return nil, err
		}
	}
	return agg.Flush()
}
