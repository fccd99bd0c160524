package pide

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/jdpide/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// JumpWindow truncates the jump integral to [YMin, YMax] and integrates it
// with Nodes equally spaced rectangle-rule points.
type JumpWindow struct {
	YMin  float64
	YMax  float64
	Nodes int
}

func DefaultJumpWindow() JumpWindow {
	return JumpWindow{YMin: -1, YMax: 1, Nodes: 201}
}

func (w JumpWindow) IsZero() bool {
	return w == JumpWindow{}
}

func (w JumpWindow) validate() error {
	if !(w.YMax > w.YMin) || math.IsInf(w.YMin, 0) || math.IsInf(w.YMax, 0) || w.Nodes < 2 {
		return fmt.Errorf("%w: [%g, %g] with %d nodes", ErrInvalidWindow, w.YMin, w.YMax, w.Nodes)
	}
	return nil
}

func (w JumpWindow) nodes() ([]float64, float64) {
	ys := floats.Span(make([]float64, w.Nodes), w.YMin, w.YMax)
	return ys, (w.YMax - w.YMin) / float64(w.Nodes-1)
}

// BuildJumpIntegral assembles J with
//
//	(J u)_i ≈ lambda ∫ (u(S_i e^y) - u(S_i)) f_Y(y) dy.
//
// On the log-uniform grid S_i e^y sits at fractional index i + y/DLog, so each
// node's mass lambda f_Y(y_k) dy is split linearly between the two bracketing
// columns. Targets beyond the grid are clamped onto the edge columns rather
// than dropped. The diagonal subtracts the total quadrature mass, so J maps a
// constant vector to zero.
func BuildJumpIntegral(g *Grid, lambda float64, jm models.JumpModel, w JumpWindow) (*mat.Dense, error) {
	if lambda < 0 || math.IsNaN(lambda) {
		return nil, fmt.Errorf("%w: lambda=%g", ErrNegativeIntensity, lambda)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}

	n := g.Len()
	ys, dy := w.nodes()
	pdf := jm.PDF(ys)

	mass := make([]float64, len(ys))
	shift := make([]float64, len(ys))
	var total float64
	for k, p := range pdf {
		mass[k] = lambda * p * dy
		shift[k] = ys[k] / g.DLog
		total += mass[k]
	}

	j := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		row := j.RawRowView(i)
		for k, m := range mass {
			if m == 0 {
				continue
			}
			x := float64(i) + shift[k]
			lo := math.Floor(x)
			frac := x - lo
			jf := clampIndex(int(lo), n)
			jc := clampIndex(int(lo)+1, n)
			row[jf] += m * (1 - frac)
			row[jc] += m * frac
		}
		row[i] -= total
	}
	return j, nil
}

// EdgeMass reports, for every grid row, the share of the quadrature mass whose
// target S_i e^y falls outside the grid and is therefore clamped onto an edge
// column by BuildJumpIntegral. It is zero for rows whose whole window maps
// inside the grid.
func EdgeMass(g *Grid, jm models.JumpModel, w JumpWindow) ([]float64, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	n := g.Len()
	ys, _ := w.nodes()
	pdf := jm.PDF(ys)
	total := floats.Sum(pdf)

	out := make([]float64, n)
	if total == 0 {
		return out, nil
	}
	for i := range out {
		var clamped float64
		for k, y := range ys {
			x := float64(i) + y/g.DLog
			if x < 0 || x > float64(n-1) {
				clamped += pdf[k]
			}
		}
		out[i] = clamped / total
	}
	return out, nil
}
