// Package technical implements the price indicators chartscout screens and
// annotates charts with. Series functions take closing prices oldest first.
package technical

import (
	"errors"
	"fmt"

	"github.com/seenimoa/chartscout/pkg/models"
)

var (
	// ErrInsufficientData is returned when a series has fewer bars than the window.
	ErrInsufficientData = errors.New("insufficient data for window")

	// ErrInvalidWindow is returned for a non-positive window.
	ErrInvalidWindow = errors.New("window must be positive")
)

// MovingAverage returns the trailing mean close over the last window bars,
// evaluated at the most recent bar.
func MovingAverage(bars []models.OHLCV, window int) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}
	if len(bars) < window {
		return 0, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), window)
	}

	sum := 0.0
	for _, b := range bars[len(bars)-window:] {
		sum += b.Close
	}
	return sum / float64(window), nil
}

// SMA calculates Simple Moving Average for the given period. Entries before
// the first full window are zero. Returns nil when data is too short.
func SMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	result := make([]float64, n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		sum += data[i] - data[i-period]
		result[i] = sum / float64(period)
	}

	return result
}

// SMALatest returns the most recent SMA value and false when data is too short.
func SMALatest(data []float64, period int) (float64, bool) {
	vals := SMA(data, period)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// EMA calculates Exponential Moving Average for the given period, seeded
// with the SMA of the first period values.
func EMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	ema := make([]float64, n)
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	ema[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		ema[i] = data[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// MultiSMA computes the latest SMA for several periods at once. Periods
// longer than the data are omitted.
func MultiSMA(data []float64, periods []int) map[int]float64 {
	result := make(map[int]float64, len(periods))
	for _, p := range periods {
		if v, ok := SMALatest(data, p); ok {
			result[p] = v
		}
	}
	return result
}

// VolumeRatio returns today's volume over yesterday's. It is 0 when there
// are fewer than two bars or yesterday had no volume.
func VolumeRatio(bars []models.OHLCV) float64 {
	n := len(bars)
	if n < 2 || bars[n-2].Volume <= 0 {
		return 0
	}
	return float64(bars[n-1].Volume) / float64(bars[n-2].Volume)
}
