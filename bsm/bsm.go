// Package bsm holds the closed-form Black-Scholes-Merton formulas used to
// benchmark the PIDE solver and to turn model prices into implied
// volatilities.
package bsm

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	maxIterations = 100
	epsilon       = 1e-6

	// MinVol and MaxVol bracket the implied volatility search.
	MinVol = 1e-4
	MaxVol = 5.0
)

// Result is the price and first-order sensitivities of a European option.
type Result struct {
	Price float64
	Delta float64
	Gamma float64
	Theta float64 // Per year
	Vega  float64
	Rho   float64
}

func d1d2(S, K, T, r, q, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r-q+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

func intrinsic(S, K float64, isCall bool) float64 {
	if isCall {
		return math.Max(S-K, 0)
	}
	return math.Max(K-S, 0)
}

// Price is the Black-Scholes-Merton value with a continuous dividend yield q.
// At or past expiry, or with zero volatility, it returns the discounted
// forward intrinsic value.
func Price(S, K, T, r, q, sigma float64, isCall bool) float64 {
	if T <= 0 {
		return intrinsic(S, K, isCall)
	}
	if sigma <= 0 {
		return intrinsic(S*math.Exp(-q*T), K*math.Exp(-r*T), isCall)
	}
	d1, d2 := d1d2(S, K, T, r, q, sigma)
	sd, kd := S*math.Exp(-q*T), K*math.Exp(-r*T)
	if isCall {
		return sd*normCDF(d1) - kd*normCDF(d2)
	}
	return kd*normCDF(-d2) - sd*normCDF(-d1)
}

func Vega(S, K, T, r, q, sigma float64) float64 {
	if T <= 0 || sigma <= 0 {
		return 0
	}
	d1, _ := d1d2(S, K, T, r, q, sigma)
	return S * math.Exp(-q*T) * normPDF(d1) * math.Sqrt(T)
}

// Metrics returns the price and Greeks. T and sigma must be positive.
func Metrics(S, K, T, r, q, sigma float64, isCall bool) Result {
	d1, d2 := d1d2(S, K, T, r, q, sigma)
	sqrtT := math.Sqrt(T)
	dq, dr := math.Exp(-q*T), math.Exp(-r*T)

	gamma := dq * normPDF(d1) / (S * sigma * sqrtT)
	vega := S * dq * normPDF(d1) * sqrtT
	decay := -(S * dq * normPDF(d1) * sigma) / (2 * sqrtT)

	if isCall {
		return Result{
			Price: S*dq*normCDF(d1) - K*dr*normCDF(d2),
			Delta: dq * normCDF(d1),
			Gamma: gamma,
			Theta: decay - r*K*dr*normCDF(d2) + q*S*dq*normCDF(d1),
			Vega:  vega,
			Rho:   K * T * dr * normCDF(d2),
		}
	}
	return Result{
		Price: K*dr*normCDF(-d2) - S*dq*normCDF(-d1),
		Delta: dq * (normCDF(d1) - 1),
		Gamma: gamma,
		Theta: decay + r*K*dr*normCDF(-d2) - q*S*dq*normCDF(-d1),
		Vega:  vega,
		Rho:   -K * T * dr * normCDF(-d2),
	}
}

// ImpliedVol inverts Price by bisection on [MinVol, MaxVol]. Prices below the
// value at MinVol return MinVol and prices above the value at MaxVol return
// MaxVol, so the result is always finite. T <= 0 returns 0.
func ImpliedVol(target, S, K, T, r, q float64, isCall bool) float64 {
	if T <= 0 {
		return 0
	}
	lo, hi := MinVol, MaxVol
	if target <= Price(S, K, T, r, q, lo, isCall) {
		return lo
	}
	if target >= Price(S, K, T, r, q, hi, isCall) {
		return hi
	}
	for i := 0; i < maxIterations; i++ {
		mid := 0.5 * (lo + hi)
		diff := Price(S, K, T, r, q, mid, isCall) - target
		if math.Abs(diff) < epsilon || hi-lo < epsilon {
			return mid
		}
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0.5 * (lo + hi)
}

// TimeToMaturity converts a YYYY-MM-DD expiration into years from now.
func TimeToMaturity(expirationDate string, now time.Time) (float64, error) {
	expDate, err := time.Parse("2006-01-02", expirationDate)
	if err != nil {
		return 0, err
	}
	return expDate.Sub(now).Hours() / 24 / 365, nil
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
