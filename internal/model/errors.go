package model

import "errors"

var (
	// ErrDataUnavailable K 线数据无法获取 (网络/API 故障)，该交易对跳过
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrConfiguration 交易对缺少必需参数 (例如下单数量)
	ErrConfiguration = errors.New("configuration error")

	// ErrMisaligned 指标/信号序列与 K 线序列长度不一致
	ErrMisaligned = errors.New("misaligned series")

	ErrNonIncreasingTimestamp = errors.New("non-increasing candle timestamp")
)
