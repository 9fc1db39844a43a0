package ta

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := SMA(vals, 3); got != 4 {
		t.Errorf("SMA = %v, want 4", got)
	}
	if !math.IsNaN(SMA(vals, 6)) {
		t.Error("SMA on short input should be NaN")
	}
}

func TestRSIDirection(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}
	if got := RSI(up, 14); got != 100 {
		t.Errorf("pure uptrend RSI = %v, want 100", got)
	}
	if got := RSI(down, 14); got != 0 {
		t.Errorf("pure downtrend RSI = %v, want 0", got)
	}
	if !math.IsNaN(RSI(up[:10], 14)) {
		t.Error("RSI on short input should be NaN")
	}
}

func TestRSIMixedIsBounded(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106, 105, 107, 106, 108, 107, 109}
	got := RSI(closes, 14)
	if math.IsNaN(got) || got <= 0 || got >= 100 {
		t.Errorf("mixed tape RSI = %v, want interior value", got)
	}
	if got <= 50 {
		t.Errorf("net uptrend should read above 50, got %v", got)
	}
}

func TestEMASeries(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	ema := EMASeries(vals, 3)
	if !math.IsNaN(ema[0]) || !math.IsNaN(ema[1]) {
		t.Error("EMA before seed index should be NaN")
	}
	if ema[2] != 2 {
		t.Errorf("EMA seed = %v, want SMA 2", ema[2])
	}
	// k = 0.5: 4*0.5 + 2*0.5 = 3, then 5*0.5 + 3*0.5 = 4.
	if ema[3] != 3 || ema[4] != 4 {
		t.Errorf("EMA tail = %v, %v, want 3, 4", ema[3], ema[4])
	}
}

func TestMACDCrossSign(t *testing.T) {
	n := 60
	rising := make([]float64, n)
	falling := make([]float64, n)
	for i := 0; i < n; i++ {
		rising[i] = 100 + float64(i)
		falling[i] = 200 - float64(i)
	}
	macd, _ := MACD(rising, 12, 26, 9)
	if math.IsNaN(macd) || macd <= 0 {
		t.Errorf("rising tape MACD = %v, want positive", macd)
	}
	macd, _ = MACD(falling, 12, 26, 9)
	if macd >= 0 {
		t.Errorf("falling tape MACD = %v, want negative", macd)
	}
	if m, s := MACD(rising[:20], 12, 26, 9); !math.IsNaN(m) || !math.IsNaN(s) {
		t.Error("MACD on short input should be NaN")
	}
}

func TestVolumeRatio(t *testing.T) {
	vols := []float64{10, 10, 10, 10, 20}
	if got := VolumeRatio(vols, 5); math.Abs(got-20.0/12.0) > 1e-9 {
		t.Errorf("VolumeRatio = %v", got)
	}
	if !math.IsNaN(VolumeRatio([]float64{0, 0, 0}, 3)) {
		t.Error("zero average volume should be NaN")
	}
}

func TestVolatility(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100}
	if got := Volatility(flat, 4); got != 0 {
		t.Errorf("flat tape volatility = %v, want 0", got)
	}

	choppy := []float64{100, 110, 99, 111, 98}
	calm := []float64{100, 101, 100, 101, 100}
	if Volatility(choppy, 4) <= Volatility(calm, 4) {
		t.Error("choppier tape should read higher volatility")
	}

	if !math.IsNaN(Volatility(flat, 5)) {
		t.Error("volatility needs n+1 closes")
	}
}
