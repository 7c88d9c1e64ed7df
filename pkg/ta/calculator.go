package ta

import (
	"math"

	"crypto-backtester/internal/model"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

// IndicatorRow 单根 K 线对应的指标值，与 Series 按下标对齐。
// 浮点指标在预热期内为 NaN (尚不可计算)。
// 形态字段沿用 TA-Lib 编码: +100 看涨，-100 看跌，0 无形态。
type IndicatorRow struct {
	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	EMA        float64

	Engulfing    int
	Hammer       int
	ShootingStar int
	Doji         int
}

// HasRSI RSI 是否已可用
func (r IndicatorRow) HasRSI() bool {
	return !math.IsNaN(r.RSI)
}

// Params 指标周期参数
type Params struct {
	RSIPeriod  int
	EMAPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		EMAPeriod:  10,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// TACalculator 负责对整段 K 线序列计算指标和形态
type TACalculator struct {
	params Params
	Logger *zap.SugaredLogger
}

// NewTACalculator 初始化技术指标计算器
func NewTACalculator(params Params, logger *zap.SugaredLogger) *TACalculator {
	return &TACalculator{
		params: params,
		Logger: logger,
	}
}

// Compute 计算整段序列的指标，返回长度与 series 相同的行
func (tc *TACalculator) Compute(series *model.Series) []IndicatorRow {
	n := series.Len()
	rows := make([]IndicatorRow, n)
	if n == 0 {
		return rows
	}

	open, high, low, closePrices, _ := series.OHLCV()

	// --- 相对强弱指数 (RSI) ---
	// talib 在预热期填 0，这里按 lookback 改成 NaN，避免 0 参与阈值比较
	rsi := tc.rsi(closePrices)

	// --- EMA ---
	ema := nanSeries(n)
	if p := tc.params.EMAPeriod; p > 0 && n >= p {
		ema = maskWarmup(talib.Ema(closePrices, p), p-1)
	}

	// --- MACD ---
	macd, macdSignal, macdHist := nanSeries(n), nanSeries(n), nanSeries(n)
	macdLookback := tc.params.MACDSlow - 1 + tc.params.MACDSignal - 1
	if tc.params.MACDFast > 0 && tc.params.MACDSlow > tc.params.MACDFast && tc.params.MACDSignal > 0 && n > macdLookback {
		m, s, h := tc.macd(closePrices)
		macd = maskWarmup(m, macdLookback)
		macdSignal = maskWarmup(s, macdLookback)
		macdHist = maskWarmup(h, macdLookback)
	}

	// --- K 线形态 ---
	engulfing := Engulfing(open, high, low, closePrices)
	hammer := Hammer(open, high, low, closePrices)
	shootingStar := ShootingStar(open, high, low, closePrices)
	doji := Doji(open, high, low, closePrices)

	for i := range rows {
		rows[i] = IndicatorRow{
			RSI:          rsi[i],
			MACD:         macd[i],
			MACDSignal:   macdSignal[i],
			MACDHist:     macdHist[i],
			EMA:          ema[i],
			Engulfing:    engulfing[i],
			Hammer:       hammer[i],
			ShootingStar: shootingStar[i],
			Doji:         doji[i],
		}
	}

	if tc.Logger != nil {
		tc.Logger.Debugw("Indicators computed",
			"Symbol", series.Symbol, "Interval", series.Interval, "Bars", n)
	}
	return rows
}

func (tc *TACalculator) rsi(closePrices []float64) []float64 {
	p := tc.params.RSIPeriod
	if p < 2 || len(closePrices) <= p {
		return nanSeries(len(closePrices))
	}
	return maskWarmup(talib.Rsi(closePrices, p), p)
}

// macd 信号线只在有效的 MACD 值上计算 EMA。
// talib.Macd 的信号线从补 0 的预热段开始平滑，前几根会有偏差。
func (tc *TACalculator) macd(closePrices []float64) (line, signal, hist []float64) {
	n := len(closePrices)
	start := tc.params.MACDSlow - 1

	fast := talib.Ema(closePrices, tc.params.MACDFast)
	slow := talib.Ema(closePrices, tc.params.MACDSlow)
	line = make([]float64, n)
	for i := start; i < n; i++ {
		line[i] = fast[i] - slow[i]
	}

	signal = make([]float64, n)
	hist = make([]float64, n)
	copy(signal[start:], talib.Ema(line[start:], tc.params.MACDSignal))
	for i := start + tc.params.MACDSignal - 1; i < n; i++ {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskWarmup 把前 lookback 个值置为 NaN
func maskWarmup(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}
