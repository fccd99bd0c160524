package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrBadBars = errors.New("models: OHLC series are empty, unequal or non-positive")

const tradingDaysPerYear = 252

// OHLC holds aligned daily open, high, low and close series.
type OHLC struct {
	Open  []float64
	High  []float64
	Low   []float64
	Close []float64
}

// Last returns the trailing days bars. Fewer bars are returned when the series
// is shorter.
func (o OHLC) Last(days int) OHLC {
	n := len(o.Close)
	if days <= 0 || days >= n {
		return o
	}
	return OHLC{
		Open:  o.Open[n-days:],
		High:  o.High[n-days:],
		Low:   o.Low[n-days:],
		Close: o.Close[n-days:],
	}
}

func (o OHLC) validate() error {
	n := len(o.Close)
	if n < 2 || len(o.Open) != n || len(o.High) != n || len(o.Low) != n {
		return fmt.Errorf("%w: %d bars", ErrBadBars, n)
	}
	for i := 0; i < n; i++ {
		if !(o.Open[i] > 0) || !(o.High[i] > 0) || !(o.Low[i] > 0) || !(o.Close[i] > 0) {
			return fmt.Errorf("%w: bar %d", ErrBadBars, i)
		}
	}
	return nil
}

// RealizedVol collects annualized historical volatility estimates of the
// diffusion part. Range based estimators ignore overnight gaps except
// Yang-Zhang.
type RealizedVol struct {
	CloseToClose   float64 `json:"close_to_close"`
	Parkinson      float64 `json:"parkinson"`
	GarmanKlass    float64 `json:"garman_klass"`
	RogersSatchell float64 `json:"rogers_satchell"`
	YangZhang      float64 `json:"yang_zhang"`
}

// EstimateVolatility computes every estimator over the bars.
func EstimateVolatility(o OHLC) (RealizedVol, error) {
	if err := o.validate(); err != nil {
		return RealizedVol{}, err
	}
	annual := math.Sqrt(tradingDaysPerYear)
	return RealizedVol{
		CloseToClose:   stat.PopStdDev(logReturns(o.Close), nil) * annual,
		Parkinson:      math.Sqrt(parkinsonVariance(o)) * annual,
		GarmanKlass:    math.Sqrt(garmanKlassVariance(o)) * annual,
		RogersSatchell: math.Sqrt(rogersSatchellVariance(o)) * annual,
		YangZhang:      math.Sqrt(yangZhangVariance(o)) * annual,
	}, nil
}

// CloseToCloseVol is the annualized standard deviation of log returns.
func CloseToCloseVol(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, fmt.Errorf("%w: %d closes", ErrBadBars, len(closes))
	}
	return stat.PopStdDev(logReturns(closes), nil) * math.Sqrt(tradingDaysPerYear), nil
}

func parkinsonVariance(o OHLC) float64 {
	sum := 0.0
	for i := range o.Close {
		logRatio := math.Log(o.High[i] / o.Low[i])
		sum += logRatio * logRatio
	}
	return sum / (4 * float64(len(o.Close)) * math.Log(2))
}

func garmanKlassVariance(o OHLC) float64 {
	sum := 0.0
	for i := range o.Close {
		hl := math.Log(o.High[i] / o.Low[i])
		co := math.Log(o.Close[i] / o.Open[i])
		sum += 0.5*hl*hl - (2*math.Log(2)-1)*co*co
	}
	return math.Max(sum/float64(len(o.Close)), 0)
}

func rogersSatchellVariance(o OHLC) float64 {
	sum := 0.0
	for i := range o.Close {
		sum += math.Log(o.High[i]/o.Close[i])*math.Log(o.High[i]/o.Open[i]) +
			math.Log(o.Low[i]/o.Close[i])*math.Log(o.Low[i]/o.Open[i])
	}
	return sum / float64(len(o.Close))
}

// yangZhangVariance combines overnight, open-to-close and Rogers-Satchell
// variances with the minimum-variance weight k.
func yangZhangVariance(o OHLC) float64 {
	n := float64(len(o.Close))
	k := 0.34 / (1.34 + (n+1)/(n-1))

	overnight := make([]float64, len(o.Close)-1)
	for i := 1; i < len(o.Close); i++ {
		overnight[i-1] = math.Log(o.Open[i] / o.Close[i-1])
	}
	openClose := make([]float64, len(o.Close))
	for i := range o.Close {
		openClose[i] = math.Log(o.Close[i] / o.Open[i])
	}
	return sampleVariance(overnight) + k*sampleVariance(openClose) + (1-k)*rogersSatchellVariance(o)
}

func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}
