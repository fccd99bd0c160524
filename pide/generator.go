package pide

import (
	"fmt"

	"github.com/bcdannyboy/jdpide/models"
	"gonum.org/v1/gonum/mat"
)

// GeneratorParams are the inputs of the semi-discrete PIDE operator.
type GeneratorParams struct {
	R      float64 // Risk-free rate
	Q      float64 // Continuous dividend yield
	Sigma  float64 // Diffusion volatility
	Lambda float64 // Jump intensity
	Jump   *models.JumpModel
	Window JumpWindow
}

// BuildGenerator returns L = D + J. Without jumps (Lambda == 0 or no jump
// model) L is the diffusion operator with drift r - q. With jumps the drift is
// corrected to r - q - lambda(E[e^Y] - 1). Rows 0 and N-1 are left as pure
// discount rows.
func BuildGenerator(g *Grid, p GeneratorParams) (*mat.Dense, error) {
	if p.Lambda < 0 {
		return nil, fmt.Errorf("%w: lambda=%g", ErrNegativeIntensity, p.Lambda)
	}
	if p.Lambda == 0 || p.Jump == nil || p.Jump.Kind == models.Diffusion {
		return BuildDiffusion(g, p.R, p.Sigma, p.R-p.Q), nil
	}

	muTilde, err := models.AdjustedDrift(p.R, p.Q, p.Lambda, *p.Jump)
	if err != nil {
		return nil, fmt.Errorf("drift adjustment: %w", err)
	}
	window := p.Window
	if window.IsZero() {
		window = DefaultJumpWindow()
	}

	l := BuildDiffusion(g, p.R, p.Sigma, muTilde)
	j, err := BuildJumpIntegral(g, p.Lambda, *p.Jump, window)
	if err != nil {
		return nil, err
	}
	l.Add(l, j)

	n := g.Len()
	for _, i := range []int{0, n - 1} {
		row := l.RawRowView(i)
		for c := range row {
			row[c] = 0
		}
		row[i] = -p.R
	}
	return l, nil
}
