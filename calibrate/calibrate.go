// Package calibrate fits model parameters to market call prices by
// minimizing the mean squared pricing error of the PIDE solver.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/MaxHalford/eaopt"
	"github.com/bcdannyboy/jdpide/models"
	"github.com/bcdannyboy/jdpide/pide"
	"github.com/bcdannyboy/jdpide/smile"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"gonum.org/v1/gonum/optimize"
)

var (
	ErrNoQuotes      = errors.New("calibrate: no market quotes")
	ErrInvalidBounds = errors.New("calibrate: invalid parameter bounds")
)

// penalty is the objective value of a parameter set the solver rejects.
const penalty = 1e10

// Quote is a market price for one strike at the base maturity.
type Quote struct {
	Strike float64 `json:"strike"`
	Price  float64 `json:"price"`
}

// Bound is a closed interval for one parameter.
type Bound struct {
	Lo, Hi float64
}

// ParamNames lists the fitted parameters of a model in vector order.
func ParamNames(kind models.Kind) []string {
	switch kind {
	case models.Merton:
		return []string{"sigma", "lambda", "mu_j", "sigma_j"}
	case models.Kou:
		return []string{"sigma", "lambda", "p", "eta1", "eta2"}
	}
	return []string{"sigma"}
}

// DefaultBounds keeps every parameter inside the region where the model is
// defined. eta1 stays above 1 so E[e^Y] is finite.
func DefaultBounds(kind models.Kind) []Bound {
	sigma := Bound{0.01, 1.5}
	lambda := Bound{0, 5}
	switch kind {
	case models.Merton:
		return []Bound{sigma, lambda, {-1, 1}, {0.01, 1}}
	case models.Kou:
		return []Bound{sigma, lambda, {0.01, 0.99}, {1.05, 60}, {0.5, 60}}
	}
	return []Bound{sigma}
}

type Options struct {
	Bounds []Bound // Defaults to DefaultBounds(base.Model)

	// Global seeds the local search with a differential evolution run.
	Global bool
	Agents uint  // Differential evolution population, default 12
	Steps  uint  // Differential evolution generations, default 10
	Seed   int64 // Differential evolution random seed

	MaxEvaluations int // Nelder-Mead budget, default 300
	Workers        int // Concurrent solves per evaluation
	Progress       io.Writer
	Logger         *slog.Logger
}

func (o Options) withDefaults(kind models.Kind) Options {
	if o.Bounds == nil {
		o.Bounds = DefaultBounds(kind)
	}
	if o.Agents == 0 {
		o.Agents = 12
	}
	if o.Steps == 0 {
		o.Steps = 10
	}
	if o.MaxEvaluations == 0 {
		o.MaxEvaluations = 300
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Result struct {
	Params      pide.Params        `json:"-"`
	Values      map[string]float64 `json:"params"`
	RMSE        float64            `json:"rmse"`
	Evaluations int                `json:"evaluations"`
	Status      string             `json:"status"`
}

// box maps an unconstrained vector onto the bounds through a logistic curve.
type box []Bound

func (b box) toParams(z []float64) []float64 {
	x := make([]float64, len(z))
	for i, v := range z {
		x[i] = b[i].Lo + (b[i].Hi-b[i].Lo)/(1+math.Exp(-v))
	}
	return x
}

func (b box) fromParams(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		u := (v - b[i].Lo) / (b[i].Hi - b[i].Lo)
		u = math.Min(math.Max(u, 1e-6), 1-1e-6)
		z[i] = math.Log(u / (1 - u))
	}
	return z
}

// apply writes a parameter vector into a copy of base.
func apply(base pide.Params, x []float64) pide.Params {
	p := base
	p.Sigma = x[0]
	switch base.Model {
	case models.Merton:
		p.Lambda = x[1]
		p.Merton = models.MertonJump{MuJ: x[2], SigmaJ: x[3]}
	case models.Kou:
		p.Lambda = x[1]
		p.Kou = models.KouJump{P: x[2], Eta1: x[3], Eta2: x[4]}
	}
	return p
}

// initial reads the starting vector from base, pulled inside the bounds.
func initial(base pide.Params, bounds []Bound) []float64 {
	var x []float64
	switch base.Model {
	case models.Merton:
		x = []float64{base.Sigma, base.Lambda, base.Merton.MuJ, base.Merton.SigmaJ}
	case models.Kou:
		x = []float64{base.Sigma, base.Lambda, base.Kou.P, base.Kou.Eta1, base.Kou.Eta2}
	default:
		x = []float64{base.Sigma}
	}
	for i, v := range x {
		if v == 0 || v < bounds[i].Lo || v > bounds[i].Hi {
			x[i] = 0.5 * (bounds[i].Lo + bounds[i].Hi)
		}
	}
	return x
}

// Fit calibrates the parameters of base.Model to quotes. Everything in base
// other than the fitted parameters and the strike is held fixed.
func Fit(ctx context.Context, base pide.Params, quotes []Quote, opts Options) (*Result, error) {
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	opts = opts.withDefaults(base.Model)
	names := ParamNames(base.Model)
	if len(opts.Bounds) != len(names) {
		return nil, fmt.Errorf("%w: %d bounds for %d parameters", ErrInvalidBounds, len(opts.Bounds), len(names))
	}
	for i, b := range opts.Bounds {
		if !(b.Hi > b.Lo) {
			return nil, fmt.Errorf("%w: %s in [%g, %g]", ErrInvalidBounds, names[i], b.Lo, b.Hi)
		}
	}
	b := box(opts.Bounds)
	log := opts.Logger.With("model", base.Model.String())

	quotes = append([]Quote(nil), quotes...)
	sortQuotes(quotes)
	strikes := make([]float64, len(quotes))
	for i, q := range quotes {
		strikes[i] = q.Strike
	}

	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if opts.Progress != nil {
		p = mpb.NewWithContext(ctx, mpb.WithOutput(opts.Progress), mpb.WithWidth(64))
		bar = p.AddBar(0,
			mpb.PrependDecorators(decor.Name("Evaluations")),
			mpb.AppendDecorators(decor.CurrentNoUnit("%d", decor.WCSyncSpace)),
		)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	evaluations := 0
	objective := func(z []float64) float64 {
		evaluations++
		if bar != nil {
			bar.Increment()
		}
		if ctx.Err() != nil {
			return penalty
		}
		points, err := smile.Generate(ctx, apply(base, b.toParams(z)), strikes, smile.Options{
			Workers: opts.Workers,
			Logger:  quiet,
		})
		if err != nil {
			return penalty
		}
		var sse float64
		for i, pt := range points {
			d := pt.Price - quotes[i].Price
			sse += d * d
		}
		return sse / float64(len(points))
	}

	start := time.Now()
	z0 := b.fromParams(initial(base, opts.Bounds))

	if opts.Global {
		de, err := eaopt.NewDiffEvo(opts.Agents, opts.Steps, -4, 4, 0.5, 0.8, false, rand.New(rand.NewSource(opts.Seed)))
		if err != nil {
			return nil, fmt.Errorf("differential evolution: %w", err)
		}
		zBest, fBest, err := de.Minimize(objective, uint(len(names)))
		if err != nil {
			return nil, fmt.Errorf("differential evolution: %w", err)
		}
		log.Info("global search done", "mse", fBest, "evaluations", evaluations)
		if fBest < objective(z0) {
			z0 = zBest
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: objective,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 40,
		},
	}
	res, err := optimize.Minimize(problem, z0, settings, &optimize.NelderMead{})
	if bar != nil {
		bar.SetTotal(-1, true)
		p.Wait()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && res == nil {
		return nil, fmt.Errorf("nelder-mead: %w", err)
	}

	x := b.toParams(res.X)
	values := make(map[string]float64, len(names))
	for i, name := range names {
		values[name] = x[i]
	}
	out := &Result{
		Params:      apply(base, x),
		Values:      values,
		RMSE:        math.Sqrt(res.F),
		Evaluations: evaluations,
		Status:      res.Status.String(),
	}
	log.Info("calibration done", "rmse", out.RMSE, "evaluations", evaluations,
		"status", out.Status, "elapsed", time.Since(start))
	return out, nil
}
