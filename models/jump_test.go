package models

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func integrate(f func(float64) float64, a, b float64, n int) float64 {
	ys := floats.Span(make([]float64, n), a, b)
	dy := (b - a) / float64(n-1)
	var sum float64
	for i, y := range ys {
		w := 1.0
		if i == 0 || i == n-1 {
			w = 0.5
		}
		sum += w * f(y) * dy
	}
	return sum
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"diffusion", Diffusion},
		{"BS", Diffusion},
		{" Merton ", Merton},
		{"kou", Kou},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ParseKind("heston"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown model: %v", err)
	}
}

func TestDensitiesIntegrateToOne(t *testing.T) {
	merton, err := NewMertonJump(-0.1, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	kou, err := NewKouJump(0.4, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, jm := range []JumpModel{merton, kou} {
		mass := integrate(jm.Density, -6, 6, 120001)
		if math.Abs(mass-1) > 1e-3 {
			t.Errorf("%v: density integrates to %v", jm.Kind, mass)
		}
		eY := integrate(func(y float64) float64 { return math.Exp(y) * jm.Density(y) }, -6, 6, 120001)
		want, err := jm.ExpectedExpJump()
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(eY-want) > 1e-3 {
			t.Errorf("%v: E[e^Y] numerically %v, closed form %v", jm.Kind, eY, want)
		}
	}
}

func TestKouDensityAtZero(t *testing.T) {
	kou, err := NewKouJump(0.4, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if d := kou.Density(0); d != 0 {
		t.Errorf("density at 0 = %v", d)
	}
	pdf := kou.PDF([]float64{-0.1, 0, 0.1})
	if pdf[1] != 0 || pdf[0] <= 0 || pdf[2] <= 0 {
		t.Errorf("pdf = %v", pdf)
	}
}

func TestJumpParamValidation(t *testing.T) {
	if _, err := NewMertonJump(0, 0); !errors.Is(err, ErrInvalidJumpParams) {
		t.Errorf("sigma_J = 0: %v", err)
	}
	for _, k := range []KouJump{{0, 10, 5}, {1, 10, 5}, {0.5, 0, 5}, {0.5, 10, -1}} {
		if _, err := NewKouJump(k.P, k.Eta1, k.Eta2); !errors.Is(err, ErrInvalidJumpParams) {
			t.Errorf("%+v: %v", k, err)
		}
	}
}

func TestKouUpperTail(t *testing.T) {
	kou, err := NewKouJump(0.3, 1, 5)
	if err != nil {
		t.Fatalf("eta1 = 1 must construct: %v", err)
	}
	if _, err := kou.ExpectedExpJump(); !errors.Is(err, ErrKouUpperTail) {
		t.Errorf("ExpectedExpJump: %v", err)
	}
	if _, err := AdjustedDrift(0.02, 0, 1, kou); !errors.Is(err, ErrKouUpperTail) {
		t.Errorf("AdjustedDrift: %v", err)
	}
	if mu, err := AdjustedDrift(0.02, 0.01, 0, kou); err != nil || mu != 0.01 {
		t.Errorf("lambda = 0: mu = %v, err = %v", mu, err)
	}
}

func TestAdjustedDrift(t *testing.T) {
	merton, err := NewMertonJump(-0.1, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := AdjustedDrift(0.05, 0.01, 2, merton)
	if err != nil {
		t.Fatal(err)
	}
	want := 0.05 - 0.01 - 2*(math.Exp(-0.1+0.02)-1)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("drift = %v, want %v", got, want)
	}
	if got, _ := AdjustedDrift(0.05, 0.01, 2, JumpModel{}); got != 0.04 {
		t.Errorf("diffusion drift = %v", got)
	}
}
