package model

import (
	"fmt"
	"time"
)

// Candle 代表一根已完成的 K 线
type Candle struct {
	Timestamp time.Time // K 线开盘时间
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series 是单个交易对、单个周期的 K 线序列。
// 只能通过 SeriesBuilder 构建，构建完成后只读。
type Series struct {
	Symbol   string
	Interval string
	candles  []Candle
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.candles)
}

// At 返回第 i 根 K 线 (按值返回，调用方无法修改序列)
func (s *Series) At(i int) Candle {
	return s.candles[i]
}

// Last 返回最后一根 K 线，序列为空时 panic
func (s *Series) Last() Candle {
	return s.candles[len(s.candles)-1]
}

// Candles 返回全部 K 线的副本
func (s *Series) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// OHLCV 按列拆分，供指标计算使用 (均为新分配的切片)
func (s *Series) OHLCV() (open, high, low, close, volume []float64) {
	n := len(s.candles)
	open = make([]float64, n)
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	volume = make([]float64, n)
	for i, c := range s.candles {
		open[i] = c.Open
		high[i] = c.High
		low[i] = c.Low
		close[i] = c.Close
		volume[i] = c.Volume
	}
	return open, high, low, close, volume
}

// SeriesBuilder 以追加方式构建 Series，要求时间戳严格递增
type SeriesBuilder struct {
	symbol   string
	interval string
	candles  []Candle
	built    bool
}

func NewSeriesBuilder(symbol, interval string, capacity int) *SeriesBuilder {
	return &SeriesBuilder{
		symbol:   symbol,
		interval: interval,
		candles:  make([]Candle, 0, capacity),
	}
}

// Append 追加一根 K 线
func (b *SeriesBuilder) Append(c Candle) error {
	if b.built {
		return fmt.Errorf("series %s/%s: append after build", b.symbol, b.interval)
	}
	if n := len(b.candles); n > 0 && !c.Timestamp.After(b.candles[n-1].Timestamp) {
		return fmt.Errorf("%w: %s after %s",
			ErrNonIncreasingTimestamp, c.Timestamp.Format(time.RFC3339), b.candles[n-1].Timestamp.Format(time.RFC3339))
	}
	b.candles = append(b.candles, c)
	return nil
}

func (b *SeriesBuilder) Len() int { return len(b.candles) }

// LastTimestamp 返回已追加的最后一根 K 线时间，没有时返回零值
func (b *SeriesBuilder) LastTimestamp() time.Time {
	if len(b.candles) == 0 {
		return time.Time{}
	}
	return b.candles[len(b.candles)-1].Timestamp
}

// Build 冻结并返回序列，之后 Append 会报错
func (b *SeriesBuilder) Build() *Series {
	b.built = true
	return &Series{
		Symbol:   b.symbol,
		Interval: b.interval,
		candles:  b.candles,
	}
}

// NewSeries 是 SeriesBuilder 的便捷封装
func NewSeries(symbol, interval string, candles []Candle) (*Series, error) {
	b := NewSeriesBuilder(symbol, interval, len(candles))
	for _, c := range candles {
		if err := b.Append(c); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
