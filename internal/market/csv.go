package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crypto-backtester/internal/model"
	"crypto-backtester/internal/service"

	"go.uber.org/zap"
)

type CSVConfig struct {
	Dir          string
	BaseInterval string // 目标周期文件不存在时读取的细粒度周期，例如 "1m"
}

// CSVSource 从本地 CSV 文件读取 K 线: <Dir>/<SOLUSDT>_<15m>.csv
// 列: timestamp(毫秒或 RFC3339), open, high, low, close, volume
type CSVSource struct {
	cfg    CSVConfig
	logger *zap.Logger
}

func NewCSVSource(cfg CSVConfig, logger *zap.Logger) *CSVSource {
	return &CSVSource{cfg: cfg, logger: logger}
}

func (s *CSVSource) path(symbol, timeframe string) string {
	return filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s.csv", service.PairToExchangeSymbol(symbol), timeframe))
}

// FetchCandles 读取最近 limit 根 K 线；目标周期文件缺失时从 BaseInterval 文件聚合
func (s *CSVSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (*model.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series, err := s.readFile(s.path(symbol, timeframe), symbol, timeframe)
	if errors.Is(err, fs.ErrNotExist) && s.cfg.BaseInterval != "" && s.cfg.BaseInterval != timeframe {
		series, err = s.resampleFrom(symbol, timeframe)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrDataUnavailable, symbol, err)
	}

	if limit > 0 && series.Len() > limit {
		series, err = model.NewSeries(symbol, timeframe, series.Candles()[series.Len()-limit:])
		if err != nil {
			return nil, err
		}
	}
	return series, nil
}

func (s *CSVSource) resampleFrom(symbol, timeframe string) (*model.Series, error) {
	duration, err := service.ParseIntervalDuration(timeframe)
	if err != nil {
		return nil, err
	}
	base, err := s.readFile(s.path(symbol, s.cfg.BaseInterval), symbol, s.cfg.BaseInterval)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Resampling CSV candles",
		zap.String("Symbol", symbol), zap.String("From", s.cfg.BaseInterval), zap.String("To", timeframe))
	return model.Resample(base, timeframe, duration)
}

func (s *CSVSource) readFile(path, symbol, timeframe string) (*model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCandles(f, symbol, timeframe)
}

// ReadCandles 解析 CSV 内容，首行非数字时视为表头
func ReadCandles(r io.Reader, symbol, timeframe string) (*model.Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	builder := model.NewSeriesBuilder(symbol, timeframe, 0)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 6 {
			return nil, fmt.Errorf("line %d: want 6 columns, got %d", line, len(record))
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c := model.Candle{Timestamp: ts}
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			if *dst, err = service.StringToFloat(strings.TrimSpace(record[i+1])); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if err := builder.Append(c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return builder.Build(), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := service.StringToInt64(raw); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
