package models

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MertonJump is a normally distributed log jump, Y ~ N(MuJ, SigmaJ^2).
type MertonJump struct {
	MuJ    float64 // Mean log jump size
	SigmaJ float64 // Log jump size volatility
}

func (m MertonJump) validate() error {
	if !(m.SigmaJ > 0) || math.IsInf(m.SigmaJ, 0) || math.IsNaN(m.MuJ) || math.IsInf(m.MuJ, 0) {
		return fmt.Errorf("%w: merton mu_J=%g sigma_J=%g", ErrInvalidJumpParams, m.MuJ, m.SigmaJ)
	}
	return nil
}

func (m MertonJump) density(y float64) float64 {
	return distuv.Normal{Mu: m.MuJ, Sigma: m.SigmaJ}.Prob(y)
}

func (m MertonJump) expectedExp() float64 {
	return math.Exp(m.MuJ + 0.5*m.SigmaJ*m.SigmaJ)
}

func (m MertonJump) sample(rng *rand.Rand) float64 {
	return m.MuJ + m.SigmaJ*rng.NormFloat64()
}

// EstimateMerton fits the jump intensity and the normal jump size moments to
// the returns of a daily close series that sit beyond three standard
// deviations. timeStep is the sampling interval in years.
func EstimateMerton(closes []float64, timeStep float64) (float64, JumpModel, error) {
	if len(closes) < 3 || !(timeStep > 0) {
		return 0, JumpModel{}, fmt.Errorf("%w: %d closes", ErrNotEnoughJumps, len(closes))
	}
	jumps := thresholdJumps(logReturns(closes))
	if len(jumps) < 2 {
		return 0, JumpModel{}, fmt.Errorf("%w: found %d", ErrNotEnoughJumps, len(jumps))
	}

	mu, delta := stat.PopMeanStdDev(jumps, nil)
	lambda := float64(len(jumps)) / (float64(len(closes)-1) * timeStep)
	jm, err := NewMertonJump(mu, delta)
	if err != nil {
		return 0, JumpModel{}, err
	}
	return lambda, jm, nil
}
