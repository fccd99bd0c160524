package pide

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Grid is a log-uniform price axis: log(Prices[i]) = LogMin + i*DLog.
type Grid struct {
	Prices []float64
	LogMin float64
	DLog   float64
}

// NewLogUniformGrid builds n prices equally spaced in log price over
// [sMin, sMax].
func NewLogUniformGrid(sMin, sMax float64, n int) (*Grid, error) {
	if !(sMin > 0) || !(sMax > sMin) || math.IsInf(sMax, 0) {
		return nil, fmt.Errorf("%w: S_min=%g S_max=%g", ErrInvalidDomain, sMin, sMax)
	}
	if n < 3 {
		return nil, fmt.Errorf("%w: n=%d", ErrGridTooCoarse, n)
	}

	logMin, logMax := math.Log(sMin), math.Log(sMax)
	prices := floats.Span(make([]float64, n), logMin, logMax)
	for i, l := range prices {
		prices[i] = math.Exp(l)
	}
	return &Grid{
		Prices: prices,
		LogMin: logMin,
		DLog:   (logMax - logMin) / float64(n-1),
	}, nil
}

func (g *Grid) Len() int { return len(g.Prices) }

func (g *Grid) Min() float64 { return g.Prices[0] }

func (g *Grid) Max() float64 { return g.Prices[len(g.Prices)-1] }

// FractionalIndex maps a price to its position on the grid without searching.
// The result is not clamped.
func (g *Grid) FractionalIndex(s float64) float64 {
	return (math.Log(s) - g.LogMin) / g.DLog
}

// NearestIndex is FractionalIndex rounded and clamped to [0, Len()-1].
func (g *Grid) NearestIndex(s float64) int {
	return clampIndex(int(math.Round(g.FractionalIndex(s))), g.Len())
}

// Interpolate reads values (one per grid node) at price s, linearly in the
// fractional index. Prices outside the grid read the edge value.
func (g *Grid) Interpolate(values []float64, s float64) float64 {
	x := g.FractionalIndex(s)
	n := g.Len()
	switch {
	case !(x > 0):
		return values[0]
	case x >= float64(n-1):
		return values[n-1]
	}
	lo := int(math.Floor(x))
	frac := x - float64(lo)
	return (1-frac)*values[lo] + frac*values[lo+1]
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
