// Package indicators provides pure, stateless numeric functions over an
// ordered sequence of OHLCV candles. Inputs are never mutated; every
// function returns a documented neutral default when the history is too
// short or a divisor degenerates to zero.
package indicators

import (
	"math"

	"market-sentry/internal/binance"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average of closes.
// Requires at least period candles; returns 0 otherwise.
func SMA(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}

	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		sum += klines[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average of closes, seeded with the
// SMA of the first period candles. Requires at least period candles;
// returns 0 otherwise.
func EMA(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}

	ema := SMA(klines[:period], period)
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(klines); i++ {
		ema = klines[i].Close*multiplier + ema*(1-multiplier)
	}
	return ema
}

// emaSeries smooths an arbitrary series with span=period semantics
// (multiplier 2/(period+1)), seeded with the plain mean of the first period
// values. Returns one smoothed value per input index from period-1 onward.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	out := make([]float64, 0, len(values)-period+1)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)
	out = append(out, ema)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out = append(out, ema)
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index with Wilder smoothing of gains
// and losses. Requires at least period+1 candles; returns the neutral 50
// otherwise. A zero average loss yields 100.
func RSI(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 50.0
	}

	gains := make([]float64, 0, len(klines)-1)
	losses := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	smoothedGains := emaSeries(gains, period)
	smoothedLosses := emaSeries(losses, period)
	avgGain := smoothedGains[len(smoothedGains)-1]
	avgLoss := smoothedLosses[len(smoothedLosses)-1]

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// trueRanges returns the true-range series, one value per candle after the
// first.
func trueRanges(klines []binance.Kline) []float64 {
	if len(klines) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	return trs
}

// ATR calculates the Average True Range as an exponential moving average of
// the true range with span=period. Requires at least period+1 candles;
// returns 0 otherwise.
func ATR(klines []binance.Kline, period int) float64 {
	trs := trueRanges(klines)
	smoothed := emaSeries(trs, period)
	if len(smoothed) == 0 {
		return 0
	}
	return smoothed[len(smoothed)-1]
}

// ATRPercent expresses ATR as a percentage of the last close.
// Returns 0 when ATR or the last close is unavailable.
func ATRPercent(klines []binance.Kline, period int) float64 {
	if len(klines) == 0 {
		return 0
	}
	lastClose := klines[len(klines)-1].Close
	if lastClose == 0 {
		return 0
	}
	return ATR(klines, period) / lastClose * 100
}

// ============================================================================
// ADX (Average Directional Index)
// ============================================================================

// ADX calculates the Wilder-style Average Directional Index: directional
// movement and true range are smoothed with the same EMA span as ATR,
// DX = 100*|+DI - -DI|/(+DI + -DI), and ADX is the EMA of DX.
// Requires at least 2*period candles; returns the neutral 0 otherwise.
func ADX(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < 2*period {
		return 0
	}

	n := len(klines) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(klines); i++ {
		upMove := klines[i].High - klines[i-1].High
		downMove := klines[i-1].Low - klines[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}
	trs := trueRanges(klines)

	smTR := emaSeries(trs, period)
	smPlus := emaSeries(plusDM, period)
	smMinus := emaSeries(minusDM, period)
	if len(smTR) == 0 {
		return 0
	}

	dx := make([]float64, 0, len(smTR))
	for i := range smTR {
		if smTR[i] == 0 {
			dx = append(dx, 0)
			continue
		}
		plusDI := smPlus[i] / smTR[i] * 100
		minusDI := smMinus[i] / smTR[i] * 100
		if plusDI+minusDI == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, math.Abs(plusDI-minusDI)/(plusDI+minusDI)*100)
	}

	smoothed := emaSeries(dx, period)
	if len(smoothed) == 0 {
		// Not enough DX values to smooth; fall back to the last raw DX.
		return dx[len(dx)-1]
	}
	return smoothed[len(smoothed)-1]
}

// ============================================================================
// MOMENTUM
// ============================================================================

// ROC calculates the Rate of Change over period candles, in percent.
// Requires at least period+1 candles; returns 0 otherwise.
func ROC(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}
	past := klines[len(klines)-1-period].Close
	if past == 0 {
		return 0
	}
	return (klines[len(klines)-1].Close - past) / past * 100
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBands holds the three band values.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bandwidth returns the band width as a percentage of the middle band,
// 0 when the middle band is 0.
func (b BollingerBands) Bandwidth() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle * 100
}

// Bollinger calculates SMA +/- k standard deviations over the window.
// Requires at least period candles; returns zero bands otherwise.
func Bollinger(klines []binance.Kline, period int, k float64) BollingerBands {
	if period <= 0 || len(klines) < period {
		return BollingerBands{}
	}

	middle := SMA(klines, period)
	variance := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		diff := klines[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerBands{
		Upper:  middle + stdDev*k,
		Middle: middle,
		Lower:  middle - stdDev*k,
	}
}

// ============================================================================
// KAUFMAN EFFICIENCY RATIO
// ============================================================================

// EfficiencyRatio calculates the Kaufman Efficiency Ratio over the last n
// periods: net price change divided by the sum of absolute bar-to-bar
// changes. Requires at least n+1 candles; returns the neutral 0 otherwise,
// including when the path length is zero.
func EfficiencyRatio(klines []binance.Kline, n int) float64 {
	if n <= 0 || len(klines) < n+1 {
		return 0
	}

	last := len(klines) - 1
	change := math.Abs(klines[last].Close - klines[last-n].Close)
	volatility := 0.0
	for i := last - n + 1; i <= last; i++ {
		volatility += math.Abs(klines[i].Close - klines[i-1].Close)
	}
	if volatility == 0 {
		return 0
	}
	return change / volatility
}

// ============================================================================
// VOLUME
// ============================================================================

// VolumeZScore measures how many standard deviations the current candle's
// volume sits above the rolling mean of the prior period candles.
// Requires at least period+1 candles; returns the neutral 0 otherwise,
// including when the rolling deviation is zero.
func VolumeZScore(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}

	start := len(klines) - 1 - period
	mean := 0.0
	for i := start; i < len(klines)-1; i++ {
		mean += klines[i].Volume
	}
	mean /= float64(period)

	variance := 0.0
	for i := start; i < len(klines)-1; i++ {
		diff := klines[i].Volume - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))
	if stdDev == 0 {
		return 0
	}
	return (klines[len(klines)-1].Volume - mean) / stdDev
}

// VolumeRatio returns the current candle's volume relative to the average
// of the prior period candles, 0 when no history is available.
func VolumeRatio(klines []binance.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(klines) - 1 - period; i < len(klines)-1; i++ {
		sum += klines[i].Volume
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 0
	}
	return klines[len(klines)-1].Volume / avg
}
