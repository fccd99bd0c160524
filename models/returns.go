package models

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// jumpThreshold is the number of return standard deviations a move has to
// exceed to count as a jump.
const jumpThreshold = 3

func logReturns(prices []float64) []float64 {
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return returns
}

// thresholdJumps keeps the returns further than jumpThreshold population
// standard deviations from the mean.
func thresholdJumps(returns []float64) []float64 {
	mean, std := stat.PopMeanStdDev(returns, nil)
	var jumps []float64
	for _, r := range returns {
		if math.Abs(r-mean) > jumpThreshold*std {
			jumps = append(jumps, r)
		}
	}
	return jumps
}
