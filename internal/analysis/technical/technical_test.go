package technical

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/seenimoa/chartscout/pkg/models"
)

// makeCandles generates synthetic OHLCV data for testing.
func makeCandles(n int, basePrice float64, trend float64) []models.OHLCV {
	candles := make([]models.OHLCV, n)
	price := basePrice
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := price
		close := open + trend
		candles[i] = models.OHLCV{
			Timestamp: start.AddDate(0, 0, i),
			Open:      open,
			High:      math.Max(open, close) + 3,
			Low:       math.Min(open, close) - 3,
			Close:     close,
			Volume:    1000000 + int64(i*10000),
		}
		price = close
	}
	return candles
}

func flatCandles(n int, close float64) []models.OHLCV {
	bars := make([]models.OHLCV, n)
	for i := range bars {
		bars[i] = models.OHLCV{Open: close, High: close, Low: close, Close: close, Volume: 1000}
	}
	return bars
}

// ── MovingAverage ──

func TestMovingAverageIdenticalCloses(t *testing.T) {
	got, err := MovingAverage(flatCandles(20, 100), 20)
	if err != nil {
		t.Fatalf("MovingAverage: %v", err)
	}
	if got != 100 {
		t.Errorf("MovingAverage = %f, want 100", got)
	}
}

func TestMovingAverageTrailingWindow(t *testing.T) {
	bars := makeCandles(10, 100, 1) // closes 101..110
	got, err := MovingAverage(bars, 5)
	if err != nil {
		t.Fatalf("MovingAverage: %v", err)
	}
	// mean(106..110)
	if got != 108 {
		t.Errorf("MovingAverage = %f, want 108", got)
	}
}

func TestMovingAverageErrors(t *testing.T) {
	tests := []struct {
		name   string
		bars   []models.OHLCV
		window int
		want   error
	}{
		{"too few bars", flatCandles(19, 100), 20, ErrInsufficientData},
		{"empty", nil, 5, ErrInsufficientData},
		{"zero window", flatCandles(5, 100), 0, ErrInvalidWindow},
		{"negative window", flatCandles(5, 100), -3, ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MovingAverage(tt.bars, tt.window)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// ── SMA / EMA ──

func TestSMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	vals := SMA(data, 3)
	if len(vals) != 10 {
		t.Fatalf("expected 10 values, got %d", len(vals))
	}
	if vals[2] != 2 || vals[9] != 9 {
		t.Errorf("SMA values = %v", vals)
	}
	if SMA(data, 11) != nil {
		t.Error("SMA should be nil when data is shorter than period")
	}
}

func TestSMALatestMatchesMovingAverage(t *testing.T) {
	bars := makeCandles(60, 5000, -12.5)
	closes := models.HistorySeries{Bars: bars}.Closes()
	for _, w := range []int{5, 20, 60} {
		ma, err := MovingAverage(bars, w)
		if err != nil {
			t.Fatalf("MovingAverage(%d): %v", w, err)
		}
		sma, ok := SMALatest(closes, w)
		if !ok {
			t.Fatalf("SMALatest(%d) not ok", w)
		}
		if math.Abs(ma-sma) > 1e-9 {
			t.Errorf("window %d: MovingAverage %f != SMALatest %f", w, ma, sma)
		}
	}
}

func TestEMA(t *testing.T) {
	data := []float64{10, 10, 10, 10, 20}
	vals := EMA(data, 3)
	if vals[2] != 10 {
		t.Errorf("EMA seed = %f, want 10", vals[2])
	}
	// k = 0.5: 10 → 10 → 15
	if vals[4] != 15 {
		t.Errorf("EMA last = %f, want 15", vals[4])
	}
	if EMA(data, 0) != nil {
		t.Error("EMA with zero period should be nil")
	}
}

func TestMultiSMA(t *testing.T) {
	closes := models.HistorySeries{Bars: makeCandles(30, 100, 1)}.Closes()
	got := MultiSMA(closes, []int{5, 20, 60})
	if len(got) != 2 {
		t.Fatalf("MultiSMA returned %d periods, want 2 (60 omitted)", len(got))
	}
	if got[5] <= got[20] {
		t.Errorf("uptrend should have MA5 > MA20, got %f <= %f", got[5], got[20])
	}
}

// ── VolumeRatio ──

func TestVolumeRatio(t *testing.T) {
	bars := []models.OHLCV{{Volume: 1000}, {Volume: 2500}}
	if got := VolumeRatio(bars); got != 2.5 {
		t.Errorf("VolumeRatio = %f, want 2.5", got)
	}
	if got := VolumeRatio(bars[:1]); got != 0 {
		t.Errorf("VolumeRatio single bar = %f, want 0", got)
	}
	if got := VolumeRatio([]models.OHLCV{{Volume: 0}, {Volume: 10}}); got != 0 {
		t.Errorf("VolumeRatio zero yesterday = %f, want 0", got)
	}
}

// ── Bollinger / RSI ──

func TestBollinger(t *testing.T) {
	closes := models.HistorySeries{Bars: makeCandles(30, 100, 1)}.Closes()
	bands := Bollinger(closes, 20, 2)
	if len(bands) != 30 {
		t.Fatalf("expected 30 bands, got %d", len(bands))
	}
	last := bands[29]
	if !(last.Upper > last.Middle && last.Middle > last.Lower) {
		t.Errorf("band ordering wrong: %+v", last)
	}
	if Bollinger(closes[:10], 20, 2) != nil {
		t.Error("Bollinger should be nil for insufficient data")
	}

	flat := Bollinger([]float64{5, 5, 5}, 3, 2)
	if flat[2].Upper != 5 || flat[2].Lower != 5 {
		t.Errorf("flat series should collapse bands, got %+v", flat[2])
	}
}

func TestRSI(t *testing.T) {
	up := models.HistorySeries{Bars: makeCandles(50, 100, 1.5)}.Closes()
	latest, ok := RSILatest(up, 14)
	if !ok {
		t.Fatal("RSILatest not ok for sufficient data")
	}
	if latest != 100 {
		t.Errorf("monotonic uptrend RSI = %.2f, want 100", latest)
	}

	down := models.HistorySeries{Bars: makeCandles(50, 500, -2)}.Closes()
	if v, _ := RSILatest(down, 14); v > 1e-9 {
		t.Errorf("monotonic downtrend RSI = %.2f, want 0", v)
	}

	if _, ok := RSILatest(up[:10], 14); ok {
		t.Error("RSILatest should not be ok for insufficient data")
	}
}
