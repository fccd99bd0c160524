package pide

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStepperRejectsTheta(t *testing.T) {
	l := BuildDiffusion(testGrid(t), 0.02, 0.2, 0.02)
	for _, theta := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := NewStepper(l, 0.01, theta); !errors.Is(err, ErrInvalidTheta) {
			t.Errorf("theta=%v: err = %v", theta, err)
		}
	}
}

func TestStepperHoldsBoundaries(t *testing.T) {
	g := testGrid(t)
	l := BuildDiffusion(g, 0.02, 0.2, 0.02)
	s, err := NewStepper(l, 0.01, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	n := g.Len()
	u := mat.NewVecDense(n, nil)
	for i, p := range g.Prices {
		u.SetVec(i, math.Max(p-100, 0))
	}
	next := mat.NewVecDense(n, nil)
	if err := s.Step(next, u, 0, 301.5); err != nil {
		t.Fatal(err)
	}
	if next.AtVec(0) != 0 || next.AtVec(n-1) != 301.5 {
		t.Errorf("boundaries = %v, %v", next.AtVec(0), next.AtVec(n-1))
	}
}

func TestStepperConstantSolution(t *testing.T) {
	// With r = 0 a constant vector is stationary for every theta.
	g := testGrid(t)
	l := BuildDiffusion(g, 0, 0.3, 0)
	for _, theta := range []float64{0, 0.5, 1} {
		s, err := NewStepper(l, 1e-4, theta)
		if err != nil {
			t.Fatal(err)
		}
		n := g.Len()
		u := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			u.SetVec(i, 7)
		}
		next := mat.NewVecDense(n, nil)
		if err := s.Step(next, u, 7, 7); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			if math.Abs(next.AtVec(i)-7) > 1e-9 {
				t.Fatalf("theta=%v: node %d = %v", theta, i, next.AtVec(i))
			}
		}
	}
}
