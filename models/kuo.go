package models

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// KouJump is the asymmetric double-exponential log jump of the Kou model.
type KouJump struct {
	P    float64 // Probability of upward jump
	Eta1 float64 // Rate of upward jump
	Eta2 float64 // Rate of downward jump
}

func (k KouJump) validate() error {
	if !(k.P > 0 && k.P < 1) || !(k.Eta1 > 0) || !(k.Eta2 > 0) || math.IsInf(k.Eta1, 0) || math.IsInf(k.Eta2, 0) {
		return fmt.Errorf("%w: kou p=%g eta1=%g eta2=%g", ErrInvalidJumpParams, k.P, k.Eta1, k.Eta2)
	}
	return nil
}

// density has no mass at exactly y == 0.
func (k KouJump) density(y float64) float64 {
	switch {
	case y > 0:
		return k.P * k.Eta1 * math.Exp(-k.Eta1*y)
	case y < 0:
		return (1 - k.P) * k.Eta2 * math.Exp(k.Eta2*y)
	}
	return 0
}

func (k KouJump) expectedExp() (float64, error) {
	if k.Eta1 <= 1 {
		return 0, fmt.Errorf("%w: eta1=%g", ErrKouUpperTail, k.Eta1)
	}
	up := k.P * k.Eta1 / (k.Eta1 - 1)
	down := (1 - k.P) * k.Eta2 / (k.Eta2 + 1)
	return up + down, nil
}

func (k KouJump) sample(rng *rand.Rand) float64 {
	if rng.Float64() < k.P {
		return rng.ExpFloat64() / k.Eta1
	}
	return -rng.ExpFloat64() / k.Eta2
}

// EstimateKou estimates lambda, p, eta1 and eta2 from the three-sigma jumps of
// a daily close series. Both an up and a down jump must be present.
func EstimateKou(closes []float64, timeStep float64) (float64, JumpModel, error) {
	if len(closes) < 3 || !(timeStep > 0) {
		return 0, JumpModel{}, fmt.Errorf("%w: %d closes", ErrNotEnoughJumps, len(closes))
	}
	jumps := thresholdJumps(logReturns(closes))

	var upJumps, downJumps []float64
	for _, jump := range jumps {
		if jump > 0 {
			upJumps = append(upJumps, jump)
		} else {
			downJumps = append(downJumps, -jump)
		}
	}
	if len(upJumps) == 0 || len(downJumps) == 0 {
		return 0, JumpModel{}, fmt.Errorf("%w: %d up, %d down", ErrNotEnoughJumps, len(upJumps), len(downJumps))
	}

	lambda := float64(len(jumps)) / (float64(len(closes)-1) * timeStep)
	p := float64(len(upJumps)) / float64(len(jumps))
	eta1 := 1.0 / stat.Mean(upJumps, nil)
	eta2 := 1.0 / stat.Mean(downJumps, nil)

	jm, err := NewKouJump(p, eta1, eta2)
	if err != nil {
		return 0, JumpModel{}, err
	}
	return lambda, jm, nil
}
