package calibrate

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bcdannyboy/jdpide/models"
	"github.com/bcdannyboy/jdpide/pide"
	"github.com/bcdannyboy/jdpide/tradier"
)

func coarseParams() pide.Params {
	p := pide.DefaultParams()
	p.S0 = 100
	p.T = 0.5
	p.R = 0.02
	p.NPrice = 60
	p.NTime = 30
	return p
}

func syntheticQuotes(t *testing.T, truth pide.Params, strikes []float64) []Quote {
	t.Helper()
	quotes := make([]Quote, len(strikes))
	for i, k := range strikes {
		p := truth
		p.K = k
		res, err := pide.Solve(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		quotes[i] = Quote{Strike: k, Price: res.Price}
	}
	return quotes
}

func TestFitRecoversDiffusionVol(t *testing.T) {
	truth := coarseParams()
	truth.Sigma = 0.25
	quotes := syntheticQuotes(t, truth, []float64{110, 90, 100})

	start := coarseParams()
	start.Sigma = 0.4
	res, err := Fit(context.Background(), start, quotes, Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Values["sigma"]-0.25) > 5e-3 {
		t.Errorf("sigma = %v, want 0.25", res.Values["sigma"])
	}
	if res.Params.Sigma != res.Values["sigma"] {
		t.Errorf("params sigma %v differs from reported %v", res.Params.Sigma, res.Values["sigma"])
	}
	if res.RMSE > 1e-3 || res.Evaluations == 0 {
		t.Errorf("rmse = %v after %d evaluations", res.RMSE, res.Evaluations)
	}
}

func TestFitMertonGlobal(t *testing.T) {
	truth := coarseParams()
	truth.Model = models.Merton
	truth.Sigma = 0.2
	truth.Lambda = 0.8
	truth.Merton = models.MertonJump{MuJ: -0.1, SigmaJ: 0.15}
	quotes := syntheticQuotes(t, truth, []float64{85, 100, 115})

	start := coarseParams()
	start.Model = models.Merton
	var buf bytes.Buffer
	res, err := Fit(context.Background(), start, quotes, Options{
		Global:         true,
		Agents:         6,
		Steps:          3,
		Seed:           1,
		MaxEvaluations: 60,
		Progress:       &buf,
	})
	if err != nil {
		t.Fatal(err)
	}
	bounds := DefaultBounds(models.Merton)
	for i, name := range ParamNames(models.Merton) {
		v := res.Values[name]
		if v < bounds[i].Lo || v > bounds[i].Hi {
			t.Errorf("%s = %v outside [%v, %v]", name, v, bounds[i].Lo, bounds[i].Hi)
		}
	}
	mid := make([]float64, len(bounds))
	for i, b := range bounds {
		mid[i] = 0.5 * (b.Lo + b.Hi)
	}
	var sse float64
	for _, q := range syntheticQuotes(t, apply(start, mid), []float64{85, 100, 115}) {
		for _, want := range quotes {
			if want.Strike == q.Strike {
				sse += (q.Price - want.Price) * (q.Price - want.Price)
			}
		}
	}
	if startRMSE := math.Sqrt(sse / 3); !(res.RMSE <= startRMSE) {
		t.Errorf("rmse = %v, starting point had %v", res.RMSE, startRMSE)
	}
}

func TestFitErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Fit(ctx, coarseParams(), nil, Options{}); !errors.Is(err, ErrNoQuotes) {
		t.Errorf("no quotes: %v", err)
	}
	quotes := []Quote{{Strike: 100, Price: 5}}
	if _, err := Fit(ctx, coarseParams(), quotes, Options{Bounds: []Bound{{1, 0}}}); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("inverted bound: %v", err)
	}
	if _, err := Fit(ctx, coarseParams(), quotes, Options{Bounds: DefaultBounds(models.Kou)}); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("bound count: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Fit(canceled, coarseParams(), quotes, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled: %v", err)
	}
}

func TestBoxRoundTrip(t *testing.T) {
	b := box(DefaultBounds(models.Kou))
	x := []float64{0.3, 1.2, 0.4, 12, 6}
	got := b.toParams(b.fromParams(x))
	for i := range x {
		if math.Abs(got[i]-x[i]) > 1e-9 {
			t.Errorf("param %d: %v -> %v", i, x[i], got[i])
		}
	}
	for _, z := range []float64{-50, 0, 50} {
		for i, v := range b.toParams([]float64{z, z, z, z, z}) {
			if v < b[i].Lo || v > b[i].Hi {
				t.Errorf("z=%v param %d = %v escapes bounds", z, i, v)
			}
		}
	}
}

func TestQuotesFromChain(t *testing.T) {
	chain := []tradier.Option{
		{Strike: 110, OptionType: "call", Bid: 1.0, Ask: 1.2},
		{Strike: 100, OptionType: "call", Bid: 4.0, Ask: 4.4},
		{Strike: 100, OptionType: "put", Bid: 3.0, Ask: 3.2},
		{Strike: 120, OptionType: "call", Bid: 0, Ask: 0.1},
	}
	quotes := QuotesFromChain(chain)
	if len(quotes) != 2 {
		t.Fatalf("quotes = %v", quotes)
	}
	if quotes[0].Strike != 100 || math.Abs(quotes[0].Price-4.2) > 1e-12 {
		t.Errorf("first quote = %+v", quotes[0])
	}
}
