package pide

import (
	"fmt"
	"math"
	"strings"
)

// OptionType selects the European payoff and the matching Dirichlet
// boundary values.
type OptionType int

const (
	Call OptionType = iota
	Put
)

func (o OptionType) String() string {
	if o == Put {
		return "put"
	}
	return "call"
}

func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return 0, fmt.Errorf("%w: option type %q", ErrInvalidParams, s)
}

func (o OptionType) payoff(s, k float64) float64 {
	if o == Put {
		return math.Max(k-s, 0)
	}
	return math.Max(s-k, 0)
}

// boundary returns the values at the lowest and highest grid price with tau
// years left to maturity. For a call: 0 and S_max - K e^{-r tau}. For a put:
// K e^{-r tau} - S_min (floored at 0) and 0.
func (o OptionType) boundary(g *Grid, k, r, tau float64) (float64, float64) {
	disc := k * math.Exp(-r*tau)
	if o == Put {
		return math.Max(disc-g.Min(), 0), 0
	}
	return 0, g.Max() - disc
}
