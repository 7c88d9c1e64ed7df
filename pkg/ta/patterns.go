package ta

import "math"

// 形态识别参照 TA-Lib 的 CDL 系列: 用前 avgPeriod 根 K 线的平均实体/振幅判断"长短"
const (
	avgPeriod = 10

	dojiBodyFactor   = 0.1 // 实体 <= 平均振幅 * 0.1 视为十字星
	shadowVeryShort  = 0.1 // 影线 < 平均振幅 * 0.1 视为极短
	shadowNearFactor = 0.2 // 与前一根低点的距离 < 平均振幅 * 0.2 视为"接近"

	bullish = 100
	bearish = -100
)

func realBody(o, c float64) float64 { return math.Abs(c - o) }

func upperShadow(o, h, c float64) float64 { return h - math.Max(o, c) }

func lowerShadow(o, l, c float64) float64 { return math.Min(o, c) - l }

// average 计算 [i-period, i) 区间的平均值
func average(values []float64, i, period int) float64 {
	sum := 0.0
	for j := i - period; j < i; j++ {
		sum += values[j]
	}
	return sum / float64(period)
}

func ranges(high, low []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		out[i] = high[i] - low[i]
	}
	return out
}

func bodies(open, closePrices []float64) []float64 {
	out := make([]float64, len(open))
	for i := range open {
		out[i] = realBody(open[i], closePrices[i])
	}
	return out
}

// Engulfing 吞没形态: 阳线实体完全吞没前一根阴线 +100，反之 -100
func Engulfing(open, high, low, closePrices []float64) []int {
	out := make([]int, len(open))
	for i := 1; i < len(open); i++ {
		prevO, prevC := open[i-1], closePrices[i-1]
		o, c := open[i], closePrices[i]

		// 阳包阴
		if c > o && prevC < prevO &&
			((c >= prevO && o < prevC) || (c > prevO && o <= prevC)) {
			out[i] = bullish
			continue
		}
		// 阴包阳
		if c < o && prevC > prevO &&
			((o >= prevC && c < prevO) || (o > prevC && c <= prevO)) {
			out[i] = bearish
		}
	}
	return out
}

// Doji 十字星: 实体相对平均振幅极小，只输出 +100
func Doji(open, high, low, closePrices []float64) []int {
	out := make([]int, len(open))
	hl := ranges(high, low)
	for i := avgPeriod; i < len(open); i++ {
		if realBody(open[i], closePrices[i]) <= average(hl, i, avgPeriod)*dojiBodyFactor {
			out[i] = bullish
		}
	}
	return out
}

// Hammer 锤子线: 小实体、长下影、几乎没有上影，且实体位于前一根低点附近，只输出 +100
func Hammer(open, high, low, closePrices []float64) []int {
	out := make([]int, len(open))
	hl := ranges(high, low)
	body := bodies(open, closePrices)
	for i := avgPeriod + 1; i < len(open); i++ {
		o, h, l, c := open[i], high[i], low[i], closePrices[i]
		rb := body[i]
		avgRange := average(hl, i, avgPeriod)

		if rb < average(body, i, avgPeriod) &&
			lowerShadow(o, l, c) > rb && lowerShadow(o, l, c) > 0 &&
			upperShadow(o, h, c) < avgRange*shadowVeryShort &&
			math.Min(o, c) <= low[i-1]+avgRange*shadowNearFactor {
			out[i] = bullish
		}
	}
	return out
}

// ShootingStar 射击之星: 小实体、长上影、几乎没有下影，且实体向上跳空，只输出 -100
func ShootingStar(open, high, low, closePrices []float64) []int {
	out := make([]int, len(open))
	hl := ranges(high, low)
	body := bodies(open, closePrices)
	for i := avgPeriod + 1; i < len(open); i++ {
		o, h, l, c := open[i], high[i], low[i], closePrices[i]
		rb := body[i]
		avgRange := average(hl, i, avgPeriod)

		if rb < average(body, i, avgPeriod) &&
			upperShadow(o, h, c) > rb && upperShadow(o, h, c) > 0 &&
			lowerShadow(o, l, c) < avgRange*shadowVeryShort &&
			math.Min(o, c) > math.Max(open[i-1], closePrices[i-1]) {
			out[i] = bearish
		}
	}
	return out
}
