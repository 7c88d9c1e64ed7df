package strategy

import (
	"crypto-backtester/pkg/ta"
)

// SignalGenerator 负责把单根 K 线的指标/形态组合成交易信号。
// 每根 K 线独立计算，不读取其他 K 线的数据。
type SignalGenerator struct {
	thresholds Thresholds
}

// NewSignalGenerator 初始化信号生成器
func NewSignalGenerator(thresholds Thresholds) *SignalGenerator {
	return &SignalGenerator{thresholds: thresholds}
}

// Generate 按固定顺序检查各条规则，后命中的规则覆盖先前的结果
func (sg *SignalGenerator) Generate(row ta.IndicatorRow) Signal {
	signal := SignalFlat

	// RSI 还在预热期时任何规则都不成立
	if !row.HasRSI() {
		return signal
	}
	oversold := row.RSI < sg.thresholds.RSIOversold
	overbought := row.RSI > sg.thresholds.RSIOverbought

	// 1. 吞没形态
	if row.Engulfing > 0 && oversold {
		signal = SignalLong
	}
	if row.Engulfing < 0 && overbought {
		signal = SignalShort
	}

	// 2. 锤子线 / 射击之星
	if row.Hammer > 0 && oversold {
		signal = SignalLong
	}
	if row.ShootingStar < 0 && overbought {
		signal = SignalShort
	}

	// 3. 十字星
	if row.Doji != 0 && oversold {
		signal = SignalLong
	}
	if row.Doji != 0 && overbought {
		signal = SignalShort
	}

	return signal
}

// GenerateAll 对整段指标序列逐根生成信号，结果与 rows 按下标对齐
func (sg *SignalGenerator) GenerateAll(rows []ta.IndicatorRow) []Signal {
	signals := make([]Signal, len(rows))
	for i, row := range rows {
		signals[i] = sg.Generate(row)
	}
	return signals
}
