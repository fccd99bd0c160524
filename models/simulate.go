package models

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrInvalidSimulation = errors.New("models: invalid simulation parameters")

// PathParams describes a risk-neutral jump-diffusion simulation. Jump is
// ignored when Lambda is zero or Jump.Kind is Diffusion.
type PathParams struct {
	S0     float64 // Spot price
	T      float64 // Horizon in years
	R      float64 // Risk-free rate
	Q      float64 // Continuous dividend yield
	Sigma  float64 // Diffusion volatility
	Lambda float64 // Jump intensity
	Jump   JumpModel
	Paths  int
	Steps  int
	Seed   uint64
}

// Paths holds simulated prices; row i is path i sampled on Times.
type Paths struct {
	Times  []float64
	Values *mat.Dense
}

func (p PathParams) validate() error {
	if !(p.S0 > 0) || !(p.T > 0) || p.Sigma < 0 || p.Lambda < 0 || p.Paths < 1 || p.Steps < 1 {
		return fmt.Errorf("%w: S0=%g T=%g sigma=%g lambda=%g paths=%d steps=%d",
			ErrInvalidSimulation, p.S0, p.T, p.Sigma, p.Lambda, p.Paths, p.Steps)
	}
	return nil
}

type pathWalker struct {
	logS0   float64
	drift   float64 // log drift per step
	vol     float64 // diffusion stdev per step
	jumpDt  float64 // expected jumps per step
	jump    JumpModel
	steps   int
	seed    uint64
	jumpsOn bool
}

func newPathWalker(p PathParams) (*pathWalker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	lambda := p.Lambda
	if p.Jump.Kind == Diffusion {
		lambda = 0
	}
	muTilde, err := AdjustedDrift(p.R, p.Q, lambda, p.Jump)
	if err != nil {
		return nil, err
	}
	dt := p.T / float64(p.Steps)
	return &pathWalker{
		logS0:   math.Log(p.S0),
		drift:   (muTilde - 0.5*p.Sigma*p.Sigma) * dt,
		vol:     p.Sigma * math.Sqrt(dt),
		jumpDt:  lambda * dt,
		jump:    p.Jump,
		steps:   p.Steps,
		seed:    p.Seed,
		jumpsOn: lambda > 0,
	}, nil
}

// walk reseeds rng for path i so the result does not depend on which worker
// simulated it.
func (w *pathWalker) walk(i int, rng *rand.Rand, visit func(step int, s float64)) float64 {
	rng.Seed(w.seed + uint64(i)*0x9E3779B97F4A7C15)
	counts := distuv.Poisson{Lambda: w.jumpDt, Src: rng}
	logS := w.logS0
	for n := 1; n <= w.steps; n++ {
		logS += w.drift + w.vol*rng.NormFloat64()
		if w.jumpsOn {
			for k := int(counts.Rand()); k > 0; k-- {
				logS += w.sampleJump(rng)
			}
		}
		if visit != nil {
			visit(n, math.Exp(logS))
		}
	}
	return math.Exp(logS)
}

func (w *pathWalker) sampleJump(rng *rand.Rand) float64 {
	switch w.jump.Kind {
	case Merton:
		return w.jump.Merton.sample(rng)
	case Kou:
		return w.jump.Kou.sample(rng)
	}
	return 0
}

// forEachPath fans the path indices out over GOMAXPROCS workers.
func forEachPath(n int, fn func(i int, rng *rand.Rand)) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > n {
		numWorkers = n
	}
	pathsPerWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < n; start += pathsPerWorker {
		end := start + pathsPerWorker
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(0))
			for i := start; i < end; i++ {
				fn(i, rng)
			}
		}(start, end)
	}
	wg.Wait()
}

// SimulatePaths simulates full price paths in log space. Identical parameters
// and seed give identical paths.
func SimulatePaths(p PathParams) (*Paths, error) {
	w, err := newPathWalker(p)
	if err != nil {
		return nil, err
	}
	values := mat.NewDense(p.Paths, p.Steps+1, nil)
	forEachPath(p.Paths, func(i int, rng *rand.Rand) {
		row := values.RawRowView(i)
		row[0] = p.S0
		w.walk(i, rng, func(step int, s float64) {
			row[step] = s
		})
	})
	return &Paths{
		Times:  floats.Span(make([]float64, p.Steps+1), 0, p.T),
		Values: values,
	}, nil
}

// MonteCarloPrice prices a European option from simulated terminal values and
// returns the discounted mean payoff with its standard error.
func MonteCarloPrice(p PathParams, strike float64, isCall bool) (float64, float64, error) {
	if !(strike > 0) {
		return 0, 0, fmt.Errorf("%w: strike=%g", ErrInvalidSimulation, strike)
	}
	w, err := newPathWalker(p)
	if err != nil {
		return 0, 0, err
	}
	payoffs := make([]float64, p.Paths)
	forEachPath(p.Paths, func(i int, rng *rand.Rand) {
		sT := w.walk(i, rng, nil)
		if isCall {
			payoffs[i] = math.Max(sT-strike, 0)
		} else {
			payoffs[i] = math.Max(strike-sT, 0)
		}
	})

	mean, stderr := stat.Mean(payoffs, nil), 0.0
	if p.Paths > 1 {
		_, std := stat.MeanStdDev(payoffs, nil)
		stderr = stat.StdErr(std, float64(p.Paths))
	}
	disc := math.Exp(-p.R * p.T)
	return disc * mean, disc * stderr, nil
}
