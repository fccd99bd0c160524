// Package smile turns PIDE prices across a strike ladder into a
// Black-Scholes implied volatility smile.
package smile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/bcdannyboy/jdpide/bsm"
	"github.com/bcdannyboy/jdpide/pide"
	"github.com/shirou/gopsutil/cpu"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"golang.org/x/sync/errgroup"
)

var ErrNoStrikes = errors.New("smile: no strikes given")

// Point is one strike of the smile.
type Point struct {
	Strike     float64 `json:"strike"`
	Price      float64 `json:"price"`
	ImpliedVol float64 `json:"implied_vol"`
	Vega       float64 `json:"vega"` // Black-Scholes vega at ImpliedVol
}

type Options struct {
	// Workers caps concurrent solves. Zero uses the logical CPU count.
	Workers int
	// Progress receives an mpb progress bar when set.
	Progress io.Writer
	Logger   *slog.Logger
}

// Workers returns the logical CPU count, falling back to GOMAXPROCS when the
// host cannot be queried.
func Workers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Generate runs one independent solve per strike, with base supplying every
// other parameter, and inverts each price to an implied volatility with the
// base rate, dividend yield and maturity. Points are returned in strike
// order. The first failing strike cancels the rest.
func Generate(ctx context.Context, base pide.Params, strikes []float64, opts Options) ([]Point, error) {
	if len(strikes) == 0 {
		return nil, ErrNoStrikes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = Workers()
	}

	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if opts.Progress != nil {
		p = mpb.NewWithContext(ctx, mpb.WithOutput(opts.Progress), mpb.WithWidth(64))
		bar = p.AddBar(int64(len(strikes)),
			mpb.PrependDecorators(
				decor.Name("Strikes"),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
			),
		)
	}

	start := time.Now()
	log.Info("generating smile", "strikes", len(strikes), "workers", workers, "model", base.Model.String())

	solver := pide.Solver{Logger: log}
	points := make([]Point, len(strikes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range strikes {
		i, k := i, k
		g.Go(func() error {
			params := base
			params.K = k
			res, err := solver.Solve(gctx, params)
			if err != nil {
				if bar != nil {
					bar.Abort(false)
				}
				return fmt.Errorf("strike %g: %w", k, err)
			}
			iv := bsm.ImpliedVol(res.Price, base.S0, k, base.T, base.R, base.Q, base.Option == pide.Call)
			points[i] = Point{
				Strike:     k,
				Price:      res.Price,
				ImpliedVol: iv,
				Vega:       bsm.Vega(base.S0, k, base.T, base.R, base.Q, iv),
			}
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}
	err := g.Wait()
	if p != nil {
		p.Wait()
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(points, func(a, b int) bool { return points[a].Strike < points[b].Strike })
	log.Info("smile complete", "elapsed", time.Since(start))
	return points, nil
}

// Strikes returns n strikes spaced evenly from lo to hi inclusive.
func Strikes(lo, hi float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
