package pide

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the condition number of the implicit matrix A. Beyond
// it a solve loses every significant digit.
const maxCondition = 1e14

// Stepper advances u by one theta-scheme step of
//
//	(I - dt θ L) u_{n+1} = (I + dt (1-θ) L) u_n
//
// with rows 0 and N-1 replaced by Dirichlet rows. L does not depend on time,
// so A is factorized once and every step is a matrix-vector product plus a
// pair of triangular solves.
type Stepper struct {
	a   *mat.Dense
	b   *mat.Dense
	lu  mat.LU
	rhs *mat.VecDense
	n   int
}

func NewStepper(l *mat.Dense, dt, theta float64) (*Stepper, error) {
	if !(theta >= 0 && theta <= 1) {
		return nil, fmt.Errorf("%w: theta=%g", ErrInvalidTheta, theta)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: dt=%g", ErrInvalidParams, dt)
	}
	n, c := l.Dims()
	if n != c || n < 3 {
		return nil, fmt.Errorf("%w: generator is %dx%d", ErrGridTooCoarse, n, c)
	}

	a := mat.NewDense(n, n, nil)
	b := mat.NewDense(n, n, nil)
	implicit, explicit := -dt*theta, dt*(1-theta)
	for i := 0; i < n; i++ {
		lrow, arow, brow := l.RawRowView(i), a.RawRowView(i), b.RawRowView(i)
		for j, v := range lrow {
			arow[j] = implicit * v
			brow[j] = explicit * v
		}
		arow[i]++
		brow[i]++
	}

	for _, i := range []int{0, n - 1} {
		arow, brow := a.RawRowView(i), b.RawRowView(i)
		for j := range arow {
			arow[j] = 0
			brow[j] = 0
		}
		arow[i] = 1
	}

	s := &Stepper{a: a, b: b, rhs: mat.NewVecDense(n, nil), n: n}
	s.lu.Factorize(a)
	if cond := s.lu.Cond(); !(cond <= maxCondition) {
		return nil, fmt.Errorf("%w: condition number %g", ErrSingularSystem, cond)
	}
	return s, nil
}

// Step writes u_{n+1} into dst, which must not share storage with u. lower and
// upper are the boundary values at the new time level.
func (s *Stepper) Step(dst, u *mat.VecDense, lower, upper float64) error {
	s.rhs.MulVec(s.b, u)
	s.rhs.SetVec(0, lower)
	s.rhs.SetVec(s.n-1, upper)

	if err := s.lu.SolveVecTo(dst, false, s.rhs); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}
	dst.SetVec(0, lower)
	dst.SetVec(s.n-1, upper)

	for i := 0; i < s.n; i++ {
		if v := dst.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: node %d", ErrNonFinite, i)
		}
	}
	return nil
}
