package pide

import "gonum.org/v1/gonum/mat"

// BuildDiffusion assembles 0.5 sigma^2 S^2 d2/dS2 + muTilde S d/dS - r with
// three-point finite differences that are second order on non-uniform grids.
// Rows 0 and N-1 only discount; the time stepper imposes the boundary values.
func BuildDiffusion(g *Grid, r, sigma, muTilde float64) *mat.Dense {
	n := g.Len()
	s := g.Prices
	l := mat.NewDense(n, n, nil)
	halfVar := 0.5 * sigma * sigma

	for i := 1; i < n-1; i++ {
		hm := s[i] - s[i-1]
		hp := s[i+1] - s[i]

		// second derivative
		a := 2 / (hm * (hm + hp))
		b := -2 / (hm * hp)
		c := 2 / (hp * (hm + hp))

		// first derivative
		d := -hp / (hm * (hm + hp))
		e := (hp - hm) / (hm * hp)
		f := hm / (hp * (hm + hp))

		diff := halfVar * s[i] * s[i]
		drift := muTilde * s[i]

		row := l.RawRowView(i)
		row[i-1] += diff*a + drift*d
		row[i] += diff*b + drift*e - r
		row[i+1] += diff*c + drift*f
	}

	l.Set(0, 0, -r)
	l.Set(n-1, n-1, -r)
	return l
}
