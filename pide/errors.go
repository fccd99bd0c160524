package pide

import "errors"

// Configuration errors. They are returned before any matrix is built.
var (
	ErrInvalidDomain     = errors.New("pide: price domain requires 0 < S_min < S_max")
	ErrGridTooCoarse     = errors.New("pide: price grid needs at least 3 points")
	ErrNegativeIntensity = errors.New("pide: jump intensity must be non-negative")
	ErrInvalidWindow     = errors.New("pide: jump truncation window requires y_min < y_max and at least 2 nodes")
	ErrInvalidTheta      = errors.New("pide: theta must lie in [0, 1]")
	ErrInvalidParams     = errors.New("pide: invalid option or discretization parameters")
	ErrMissingJumpParams = errors.New("pide: jump model selected without jump parameters")
)

// Numerical errors. The solver does not retry; the caller has to change the
// discretization.
var (
	ErrSingularSystem = errors.New("pide: time-step system is singular or ill-conditioned")
	ErrNonFinite      = errors.New("pide: solution contains non-finite values")
)

// IsNumerical reports whether err is a solve failure rather than a
// configuration error.
func IsNumerical(err error) bool {
	return errors.Is(err, ErrSingularSystem) || errors.Is(err, ErrNonFinite)
}
