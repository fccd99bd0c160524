package models

import (
	"errors"
	"math"
	"testing"
)

// flatBars builds bars with no overnight gap, a fixed intraday range and
// alternating close-to-close moves.
func flatBars(n int, move, rangePct float64) OHLC {
	o := OHLC{}
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		if i%2 == 0 {
			price *= math.Exp(move)
		} else {
			price *= math.Exp(-move)
		}
		hi := math.Max(open, price) * (1 + rangePct)
		lo := math.Min(open, price) * (1 - rangePct)
		o.Open = append(o.Open, open)
		o.High = append(o.High, hi)
		o.Low = append(o.Low, lo)
		o.Close = append(o.Close, price)
	}
	return o
}

func TestEstimateVolatility(t *testing.T) {
	o := flatBars(200, 0.01, 0.002)
	vol, err := EstimateVolatility(o)
	if err != nil {
		t.Fatal(err)
	}
	want := 0.01 * math.Sqrt(252)
	if math.Abs(vol.CloseToClose-want) > 1e-3 {
		t.Errorf("close-to-close = %v, want about %v", vol.CloseToClose, want)
	}
	for name, v := range map[string]float64{
		"parkinson":       vol.Parkinson,
		"garman-klass":    vol.GarmanKlass,
		"rogers-satchell": vol.RogersSatchell,
		"yang-zhang":      vol.YangZhang,
	} {
		if !(v > 0.05 && v < 0.5) {
			t.Errorf("%s = %v", name, v)
		}
	}
}

func TestEstimateVolatilityErrors(t *testing.T) {
	o := flatBars(10, 0.01, 0.002)
	o.Low = o.Low[:5]
	if _, err := EstimateVolatility(o); !errors.Is(err, ErrBadBars) {
		t.Errorf("unequal series: %v", err)
	}
	o = flatBars(10, 0.01, 0.002)
	o.Open[3] = 0
	if _, err := EstimateVolatility(o); !errors.Is(err, ErrBadBars) {
		t.Errorf("zero price: %v", err)
	}
	if _, err := CloseToCloseVol([]float64{100}); !errors.Is(err, ErrBadBars) {
		t.Errorf("one close: %v", err)
	}
}

func TestOHLCLast(t *testing.T) {
	o := flatBars(30, 0.01, 0.002)
	last := o.Last(21)
	if len(last.Close) != 21 || last.Close[20] != o.Close[29] {
		t.Errorf("Last(21) has %d bars", len(last.Close))
	}
	if len(o.Last(100).Close) != 30 {
		t.Error("Last beyond length should return everything")
	}
}
