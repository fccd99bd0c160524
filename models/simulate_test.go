package models

import (
	"errors"
	"math"
	"testing"

	"github.com/bcdannyboy/jdpide/bsm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// mertonSeries is Merton's closed form: a Poisson mixture of
// Black-Scholes prices.
func mertonSeries(s, k, t, r, sigma, lambda, muJ, sigmaJ float64) float64 {
	kappa := math.Exp(muJ+0.5*sigmaJ*sigmaJ) - 1
	lp := lambda * (1 + kappa) * t
	var sum float64
	weight := math.Exp(-lp)
	for n := 0; n < 60; n++ {
		if n > 0 {
			weight *= lp / float64(n)
		}
		sn := math.Sqrt(sigma*sigma + float64(n)*sigmaJ*sigmaJ/t)
		rn := r - lambda*kappa + float64(n)*math.Log(1+kappa)/t
		sum += weight * bsm.Price(s, k, t, rn, 0, sn, true)
	}
	return sum
}

func TestSimulatePathsDeterministic(t *testing.T) {
	jm, err := NewMertonJump(-0.1, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	p := PathParams{S0: 100, T: 1, R: 0.02, Sigma: 0.2, Lambda: 1, Jump: jm, Paths: 64, Steps: 12, Seed: 42}
	a, err := SimulatePaths(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := SimulatePaths(p)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(a.Values, b.Values) {
		t.Error("same seed produced different paths")
	}
	rows, cols := a.Values.Dims()
	if rows != 64 || cols != 13 || len(a.Times) != 13 {
		t.Fatalf("paths %dx%d, times %d", rows, cols, len(a.Times))
	}
	for i := 0; i < rows; i++ {
		if a.Values.At(i, 0) != 100 {
			t.Fatalf("path %d starts at %v", i, a.Values.At(i, 0))
		}
	}

	p.Seed = 43
	c, err := SimulatePaths(p)
	if err != nil {
		t.Fatal(err)
	}
	if mat.Equal(a.Values, c.Values) {
		t.Error("different seeds produced identical paths")
	}
}

func TestMonteCarloMatchesClosedForm(t *testing.T) {
	merton, err := NewMertonJump(-0.1, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		lambda float64
		jump   JumpModel
		want   float64
	}{
		{"diffusion", 0, JumpModel{}, bsm.Price(100, 100, 1, 0.02, 0, 0.2, true)},
		{"merton", 1, merton, mertonSeries(100, 100, 1, 0.02, 0.2, 1, -0.1, 0.2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathParams{S0: 100, T: 1, R: 0.02, Sigma: 0.2, Lambda: tt.lambda, Jump: tt.jump,
				Paths: 40000, Steps: 4, Seed: 7}
			price, stderr, err := MonteCarloPrice(p, 100, true)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(price-tt.want) > 4*stderr {
				t.Errorf("MC %v ± %v, closed form %v", price, stderr, tt.want)
			}
		})
	}
}

func TestMonteCarloAgreesWithPaths(t *testing.T) {
	jm, err := NewKouJump(0.4, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	p := PathParams{S0: 100, T: 0.5, R: 0.03, Sigma: 0.25, Lambda: 2, Jump: jm, Paths: 500, Steps: 6, Seed: 3}
	sim, err := SimulatePaths(p)
	if err != nil {
		t.Fatal(err)
	}
	terminal := mat.Col(nil, p.Steps, sim.Values)
	payoffs := make([]float64, len(terminal))
	for i, s := range terminal {
		payoffs[i] = math.Max(105-s, 0)
	}
	disc := math.Exp(-p.R * p.T)
	_, std := stat.MeanStdDev(payoffs, nil)

	price, stderr, err := MonteCarloPrice(p, 105, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := disc * stat.Mean(payoffs, nil); math.Abs(price-want) > 1e-12 {
		t.Errorf("price = %v, mean of simulated payoffs = %v", price, want)
	}
	if want := disc * stat.StdErr(std, float64(p.Paths)); math.Abs(stderr-want) > 1e-12 {
		t.Errorf("stderr = %v, want %v", stderr, want)
	}
}

func TestSimulateJumpIntensity(t *testing.T) {
	// With no diffusion the terminal log price moves only by drift and a
	// compound Poisson sum, so its mean pins down the jump count rate.
	jm, err := NewMertonJump(-0.1, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	p := PathParams{S0: 100, T: 1, Lambda: 2, Jump: jm, Paths: 20000, Steps: 10, Seed: 11}
	sim, err := SimulatePaths(p)
	if err != nil {
		t.Fatal(err)
	}
	logs := mat.Col(nil, p.Steps, sim.Values)
	for i, s := range logs {
		logs[i] = math.Log(s)
	}
	mean, std := stat.MeanStdDev(logs, nil)

	muTilde, err := AdjustedDrift(0, 0, p.Lambda, jm)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Log(p.S0) + muTilde*p.T + p.Lambda*p.T*jm.Merton.MuJ
	if se := stat.StdErr(std, float64(p.Paths)); math.Abs(mean-want) > 5*se {
		t.Errorf("mean log S_T = %v, want %v (se %v)", mean, want, se)
	}
}

func TestMonteCarloValidation(t *testing.T) {
	p := PathParams{S0: 100, T: 1, Sigma: 0.2, Paths: 10, Steps: 1}
	if _, _, err := MonteCarloPrice(p, 0, true); !errors.Is(err, ErrInvalidSimulation) {
		t.Errorf("zero strike: %v", err)
	}
	p.Paths = 0
	if _, err := SimulatePaths(p); !errors.Is(err, ErrInvalidSimulation) {
		t.Errorf("no paths: %v", err)
	}
}
