package pide

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bcdannyboy/jdpide/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultNPrice = 200
	DefaultNTime  = 200
	DefaultTheta  = 0.5
)

// Params fully describes one pricing problem. SMin and SMax may be left at
// zero to use the default domain around S0 and K. A nil Theta means
// DefaultTheta; use SetTheta for the explicit (0) or implicit (1) scheme.
// An S0 outside [SMin, SMax] reads the value at the nearest edge.
type Params struct {
	Model  models.Kind
	Option OptionType

	S0     float64 // Spot price
	K      float64 // Strike price
	T      float64 // Time to maturity in years
	R      float64 // Risk-free rate
	Q      float64 // Continuous dividend yield
	Sigma  float64 // Diffusion volatility
	Lambda float64 // Jump intensity, ignored for Diffusion

	Merton models.MertonJump
	Kou    models.KouJump

	SMin   float64
	SMax   float64
	NPrice int
	NTime  int
	Theta  *float64 // 0 explicit, 0.5 Crank-Nicolson, 1 fully implicit
	Window JumpWindow
}

// SetTheta picks the time-stepping weight.
func (p *Params) SetTheta(theta float64) { p.Theta = &theta }

// DefaultParams returns a Crank-Nicolson call setup on the default grid. The
// market and model fields are left for the caller.
func DefaultParams() Params {
	return Params{
		Model:  models.Diffusion,
		Option: Call,
		NPrice: DefaultNPrice,
		NTime:  DefaultNTime,
		Window: DefaultJumpWindow(),
	}
}

// DefaultDomain is [max(1e-6, 0.1 min(S0,K)), 4 max(S0,K)].
func DefaultDomain(s0, k float64) (float64, float64) {
	return math.Max(1e-6, 0.1*math.Min(s0, k)), 4 * math.Max(s0, k)
}

func (p Params) withDefaults() Params {
	if p.NPrice == 0 {
		p.NPrice = DefaultNPrice
	}
	if p.NTime == 0 {
		p.NTime = DefaultNTime
	}
	if p.Theta == nil {
		p.SetTheta(DefaultTheta)
	}
	if p.Window.IsZero() {
		p.Window = DefaultJumpWindow()
	}
	sMin, sMax := DefaultDomain(p.S0, p.K)
	if p.SMin == 0 {
		p.SMin = sMin
	}
	if p.SMax == 0 {
		p.SMax = sMax
	}
	if p.Model == models.Diffusion {
		p.Lambda = 0
	}
	return p
}

// jumpModel validates the model tag and its parameters. A Diffusion model
// returns a nil jump model.
func (p Params) jumpModel() (*models.JumpModel, error) {
	var (
		jm  models.JumpModel
		err error
	)
	if !p.Model.Valid() {
		return nil, fmt.Errorf("%w: %v", models.ErrUnknownModel, p.Model)
	}
	switch p.Model {
	case models.Diffusion:
		return nil, nil
	case models.Merton:
		if p.Merton == (models.MertonJump{}) {
			return nil, fmt.Errorf("%w: merton", ErrMissingJumpParams)
		}
		jm, err = models.NewMertonJump(p.Merton.MuJ, p.Merton.SigmaJ)
	case models.Kou:
		if p.Kou == (models.KouJump{}) {
			return nil, fmt.Errorf("%w: kou", ErrMissingJumpParams)
		}
		jm, err = models.NewKouJump(p.Kou.P, p.Kou.Eta1, p.Kou.Eta2)
	}
	if err != nil {
		return nil, err
	}
	return &jm, nil
}

// validate expects withDefaults to have filled Theta.
func (p Params) validate() error {
	theta := *p.Theta
	for _, v := range []float64{p.S0, p.K, p.T, p.R, p.Q, p.Sigma, p.Lambda, p.SMin, p.SMax, theta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite input", ErrInvalidParams)
		}
	}
	if !(p.S0 > 0) || !(p.K > 0) || !(p.T > 0) || p.Sigma < 0 {
		return fmt.Errorf("%w: S0=%g K=%g T=%g sigma=%g", ErrInvalidParams, p.S0, p.K, p.T, p.Sigma)
	}
	if p.Option != Call && p.Option != Put {
		return fmt.Errorf("%w: option type %d", ErrInvalidParams, int(p.Option))
	}
	if p.Lambda < 0 {
		return fmt.Errorf("%w: lambda=%g", ErrNegativeIntensity, p.Lambda)
	}
	if theta < 0 || theta > 1 {
		return fmt.Errorf("%w: theta=%g", ErrInvalidTheta, theta)
	}
	if p.NPrice < 3 {
		return fmt.Errorf("%w: n=%d", ErrGridTooCoarse, p.NPrice)
	}
	if p.NTime < 1 {
		return fmt.Errorf("%w: %d time steps", ErrInvalidParams, p.NTime)
	}
	if !(p.SMin > 0) || !(p.SMax > p.SMin) {
		return fmt.Errorf("%w: S_min=%g S_max=%g", ErrInvalidDomain, p.SMin, p.SMax)
	}
	return p.Window.validate()
}

// Result is the full solution surface. Surface row n holds V(S_i, Tau[n]);
// row 0 is the payoff.
type Result struct {
	Grid    *Grid
	Tau     []float64
	Surface *mat.Dense
	Price   float64 // Value at S0, linear in the fractional index
	Model   models.Kind

	// NodeIndex is the grid node nearest S0 and NodePrice its value.
	NodeIndex int
	NodePrice float64
}

// Final returns the solution at maturity tau = T, one value per grid node.
func (r *Result) Final() []float64 {
	rows, _ := r.Surface.Dims()
	return r.Surface.RawRowView(rows - 1)
}

// Solver prices options with the theta scheme. The zero value is ready to use.
type Solver struct {
	Logger *slog.Logger
}

func (s Solver) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Solve validates p, assembles the generator and marches from the payoff to
// tau = T. Every call builds its own grid, operators and factorization, so
// concurrent calls share no state. ctx is checked between time steps.
func (s Solver) Solve(ctx context.Context, p Params) (*Result, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	jm, err := p.jumpModel()
	if err != nil {
		return nil, err
	}
	if jm != nil && p.Lambda > 0 {
		if _, err := models.AdjustedDrift(p.R, p.Q, p.Lambda, *jm); err != nil {
			return nil, err
		}
	}

	log := s.logger().With("model", p.Model.String(), "option", p.Option.String())
	start := time.Now()
	log.Debug("pide solve started",
		"S0", p.S0, "K", p.K, "T", p.T, "N_price", p.NPrice, "N_time", p.NTime, "theta", *p.Theta)

	g, err := NewLogUniformGrid(p.SMin, p.SMax, p.NPrice)
	if err != nil {
		return nil, err
	}
	l, err := BuildGenerator(g, GeneratorParams{
		R:      p.R,
		Q:      p.Q,
		Sigma:  p.Sigma,
		Lambda: p.Lambda,
		Jump:   jm,
		Window: p.Window,
	})
	if err != nil {
		return nil, err
	}

	dt := p.T / float64(p.NTime)
	stepper, err := NewStepper(l, dt, *p.Theta)
	if err != nil {
		return nil, err
	}

	n := g.Len()
	surface := mat.NewDense(p.NTime+1, n, nil)
	payoff := surface.RawRowView(0)
	for i, sPrice := range g.Prices {
		payoff[i] = p.Option.payoff(sPrice, p.K)
	}
	tau := floats.Span(make([]float64, p.NTime+1), 0, p.T)

	for step := 0; step < p.NTime; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lower, upper := p.Option.boundary(g, p.K, p.R, tau[step+1])
		u := mat.NewVecDense(n, surface.RawRowView(step))
		next := mat.NewVecDense(n, surface.RawRowView(step+1))
		if err := stepper.Step(next, u, lower, upper); err != nil {
			log.Warn("pide solve failed", "step", step+1, "error", err)
			return nil, fmt.Errorf("time step %d: %w", step+1, err)
		}
	}

	res := &Result{
		Grid:    g,
		Tau:     tau,
		Surface: surface,
		Model:   p.Model,
	}
	final := res.Final()
	if p.S0 < g.Min() || p.S0 > g.Max() {
		log.Warn("spot outside price domain, reading edge value", "S0", p.S0, "S_min", g.Min(), "S_max", g.Max())
	}
	res.Price = g.Interpolate(final, p.S0)
	res.NodeIndex = g.NearestIndex(p.S0)
	res.NodePrice = final[res.NodeIndex]
	log.Debug("pide solve finished", "price", res.Price, "elapsed", time.Since(start))
	return res, nil
}

// Solve runs a Solver with the default logger.
func Solve(ctx context.Context, p Params) (*Result, error) {
	return Solver{}.Solve(ctx, p)
}
