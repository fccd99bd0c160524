package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownModel      = errors.New("models: unknown model")
	ErrInvalidJumpParams = errors.New("models: invalid jump parameters")
	ErrKouUpperTail      = errors.New("models: kou model requires eta1 > 1 for E[e^Y] to be finite")
	ErrNotEnoughJumps    = errors.New("models: not enough jumps in sample")
)

// Kind tags the asset model a price is computed under.
type Kind int

const (
	Diffusion Kind = iota
	Merton
	Kou
)

func (k Kind) String() string {
	switch k {
	case Diffusion:
		return "diffusion"
	case Merton:
		return "merton"
	case Kou:
		return "kou"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Valid() bool {
	return k == Diffusion || k == Merton || k == Kou
}

// ParseKind accepts the model names used on the command line and in config files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diffusion", "blackscholes", "black-scholes", "bs":
		return Diffusion, nil
	case "merton":
		return Merton, nil
	case "kou":
		return Kou, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// JumpModel is the distribution of the log jump size Y. The variant is fixed
// at construction; Diffusion carries no jumps and has zero density everywhere.
type JumpModel struct {
	Kind   Kind
	Merton MertonJump
	Kou    KouJump
}

func NewMertonJump(muJ, sigmaJ float64) (JumpModel, error) {
	m := MertonJump{MuJ: muJ, SigmaJ: sigmaJ}
	if err := m.validate(); err != nil {
		return JumpModel{}, err
	}
	return JumpModel{Kind: Merton, Merton: m}, nil
}

// NewKouJump validates the shape of the double-exponential density. eta1 <= 1
// is accepted here because the density itself is well defined; the expectation
// E[e^Y] is what diverges, and ExpectedExpJump reports it.
func NewKouJump(p, eta1, eta2 float64) (JumpModel, error) {
	k := KouJump{P: p, Eta1: eta1, Eta2: eta2}
	if err := k.validate(); err != nil {
		return JumpModel{}, err
	}
	return JumpModel{Kind: Kou, Kou: k}, nil
}

// Density evaluates f_Y at a single point.
func (j JumpModel) Density(y float64) float64 {
	switch j.Kind {
	case Merton:
		return j.Merton.density(y)
	case Kou:
		return j.Kou.density(y)
	}
	return 0
}

// PDF evaluates f_Y elementwise.
func (j JumpModel) PDF(ys []float64) []float64 {
	out := make([]float64, len(ys))
	switch j.Kind {
	case Merton:
		for i, y := range ys {
			out[i] = j.Merton.density(y)
		}
	case Kou:
		for i, y := range ys {
			out[i] = j.Kou.density(y)
		}
	}
	return out
}

// ExpectedExpJump returns E[e^Y].
func (j JumpModel) ExpectedExpJump() (float64, error) {
	switch j.Kind {
	case Merton:
		return j.Merton.expectedExp(), nil
	case Kou:
		return j.Kou.expectedExp()
	case Diffusion:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownModel, j.Kind)
}

// AdjustedDrift is the risk-neutral drift of the diffusion part,
// mu~ = r - q - lambda (E[e^Y] - 1), which keeps the discounted,
// jump-compensated price a martingale.
func AdjustedDrift(r, q, lambda float64, j JumpModel) (float64, error) {
	if lambda == 0 || j.Kind == Diffusion {
		return r - q, nil
	}
	m, err := j.ExpectedExpJump()
	if err != nil {
		return 0, err
	}
	return r - q - lambda*(m-1), nil
}
