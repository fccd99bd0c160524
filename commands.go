package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bcdannyboy/jdpide/bsm"
	"github.com/bcdannyboy/jdpide/calibrate"
	"github.com/bcdannyboy/jdpide/config"
	"github.com/bcdannyboy/jdpide/logging"
	"github.com/bcdannyboy/jdpide/models"
	"github.com/bcdannyboy/jdpide/pide"
	"github.com/bcdannyboy/jdpide/smile"
	"github.com/bcdannyboy/jdpide/tradier"
	"github.com/xhhuango/json"
)

// env is what every command gets after flag parsing.
type env struct {
	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
	stdout io.Writer
	stderr io.Writer
}

func (e *env) Close() error { return e.closer.Close() }

func (e *env) write(v interface{}) error {
	var (
		out []byte
		err error
	)
	if e.cfg.Output.Pretty {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(e.stdout, string(out))
	return err
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	envFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "config.yaml", "YAML config file")
	fs.StringVar(&c.envFile, "env", ".env", "dotenv file loaded into the environment")
}

func (c *commonFlags) load(stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(c.configPath, c.envFile)
	if err != nil {
		return nil, err
	}
	log, closer := logging.New(cfg.Logging, stderr)
	return &env{cfg: cfg, log: log, closer: closer, stdout: stdout, stderr: stderr}, nil
}

// modelFlags describe one pricing problem.
type modelFlags struct {
	model  string
	option string
	s0, k  float64
	t      float64
	r, q   float64
	sigma  float64
	lambda float64
	muJ    float64
	sigmaJ float64
	p      float64
	eta1   float64
	eta2   float64
	nPrice int
	nTime  int
	theta  float64
	sMin   float64
	sMax   float64
}

func (m *modelFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.model, "model", "merton", "diffusion, merton or kou")
	fs.StringVar(&m.option, "type", "call", "call or put")
	fs.Float64Var(&m.s0, "s0", 100, "spot price")
	fs.Float64Var(&m.k, "k", 100, "strike")
	fs.Float64Var(&m.t, "t", 1, "time to maturity in years")
	fs.Float64Var(&m.r, "r", 0, "risk-free rate (default from config)")
	fs.Float64Var(&m.q, "q", 0, "dividend yield (default from config)")
	fs.Float64Var(&m.sigma, "sigma", 0.2, "diffusion volatility")
	fs.Float64Var(&m.lambda, "lambda", 1, "jump intensity")
	fs.Float64Var(&m.muJ, "muj", -0.1, "merton mean log jump")
	fs.Float64Var(&m.sigmaJ, "sigmaj", 0.2, "merton log jump volatility")
	fs.Float64Var(&m.p, "p", 0.4, "kou probability of an up jump")
	fs.Float64Var(&m.eta1, "eta1", 10, "kou up jump rate")
	fs.Float64Var(&m.eta2, "eta2", 5, "kou down jump rate")
	fs.IntVar(&m.nPrice, "nprice", 0, "price nodes (default from config)")
	fs.IntVar(&m.nTime, "ntime", 0, "time steps (default from config)")
	fs.Float64Var(&m.theta, "theta", pide.DefaultTheta, "theta scheme weight (default from config)")
	fs.Float64Var(&m.sMin, "smin", 0, "lower edge of the price domain")
	fs.Float64Var(&m.sMax, "smax", 0, "upper edge of the price domain")
}

// params builds the problem from cfg, overridden by the flags set on fs.
func (m *modelFlags) params(fs *flag.FlagSet, cfg *config.Config) (pide.Params, error) {
	kind, err := models.ParseKind(m.model)
	if err != nil {
		return pide.Params{}, err
	}
	opt, err := pide.ParseOptionType(m.option)
	if err != nil {
		return pide.Params{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	p := pide.DefaultParams()
	cfg.Grid.Apply(&p)
	p.Model, p.Option = kind, opt
	p.S0, p.K, p.T = m.s0, m.k, m.t
	p.R, p.Q = cfg.Market.RiskFreeRate, cfg.Market.DividendYield
	if set["r"] {
		p.R = m.r
	}
	if set["q"] {
		p.Q = m.q
	}
	p.Sigma, p.Lambda = m.sigma, m.lambda
	p.Merton = models.MertonJump{MuJ: m.muJ, SigmaJ: m.sigmaJ}
	p.Kou = models.KouJump{P: m.p, Eta1: m.eta1, Eta2: m.eta2}
	p.SMin, p.SMax = m.sMin, m.sMax
	if m.nPrice > 0 {
		p.NPrice = m.nPrice
	}
	if m.nTime > 0 {
		p.NTime = m.nTime
	}
	if set["theta"] {
		p.SetTheta(m.theta)
	}
	return p, nil
}

func jumpModel(p pide.Params) (models.JumpModel, error) {
	switch p.Model {
	case models.Merton:
		return models.NewMertonJump(p.Merton.MuJ, p.Merton.SigmaJ)
	case models.Kou:
		return models.NewKouJump(p.Kou.P, p.Kou.Eta1, p.Kou.Eta2)
	}
	return models.JumpModel{}, nil
}

type priceOutput struct {
	Model      string      `json:"model"`
	Option     string      `json:"option"`
	Price      float64     `json:"price"`
	BSPrice    float64     `json:"bs_price"`
	BSGreeks   *greeksJSON `json:"bs_greeks,omitempty"`
	ImpliedVol float64     `json:"implied_vol"`
	EdgeMass   float64     `json:"edge_mass,omitempty"`
	MCPrice    float64     `json:"mc_price,omitempty"`
	MCStdErr   float64     `json:"mc_stderr,omitempty"`
	ElapsedMS  int64       `json:"elapsed_ms"`
}

// greeksJSON are the Black-Scholes sensitivities at the diffusion volatility.
type greeksJSON struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

func runPrice(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	var m modelFlags
	common.register(fs)
	m.register(fs)
	mcPaths := fs.Int("mc", 0, "also price with this many Monte Carlo paths")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.load(stdout, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := m.params(fs, e.cfg)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := pide.Solver{Logger: e.log}.Solve(ctx, p)
	if err != nil {
		return err
	}
	isCall := p.Option == pide.Call
	out := priceOutput{
		Model:      p.Model.String(),
		Option:     p.Option.String(),
		Price:      res.Price,
		BSPrice:    bsm.Price(p.S0, p.K, p.T, p.R, p.Q, p.Sigma, isCall),
		ImpliedVol: bsm.ImpliedVol(res.Price, p.S0, p.K, p.T, p.R, p.Q, isCall),
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	if p.Sigma > 0 {
		g := bsm.Metrics(p.S0, p.K, p.T, p.R, p.Q, p.Sigma, isCall)
		out.BSGreeks = &greeksJSON{Delta: g.Delta, Gamma: g.Gamma, Theta: g.Theta, Vega: g.Vega, Rho: g.Rho}
	}

	jm, err := jumpModel(p)
	if err != nil {
		return err
	}
	if p.Model != models.Diffusion {
		edge, err := pide.EdgeMass(res.Grid, jm, p.Window)
		if err != nil {
			return err
		}
		out.EdgeMass = edge[res.Grid.NearestIndex(p.S0)]
	}
	if *mcPaths > 0 {
		out.MCPrice, out.MCStdErr, err = models.MonteCarloPrice(models.PathParams{
			S0: p.S0, T: p.T, R: p.R, Q: p.Q, Sigma: p.Sigma, Lambda: p.Lambda, Jump: jm,
			Paths: *mcPaths, Steps: 50, Seed: 1,
		}, p.K, isCall)
		if err != nil {
			return err
		}
	}
	return e.write(out)
}

func runSmile(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("smile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	var m modelFlags
	common.register(fs)
	m.register(fs)
	lo := fs.Float64("klo", 80, "lowest strike")
	hi := fs.Float64("khi", 120, "highest strike")
	n := fs.Int("n", 9, "number of strikes")
	workers := fs.Int("workers", 0, "concurrent solves (default logical CPUs)")
	progress := fs.Bool("progress", false, "show a progress bar on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.load(stdout, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := m.params(fs, e.cfg)
	if err != nil {
		return err
	}
	opts := smile.Options{Workers: *workers, Logger: e.log}
	if *progress {
		opts.Progress = stderr
	}
	points, err := smile.Generate(ctx, p, smile.Strikes(*lo, *hi, *n), opts)
	if err != nil {
		return err
	}
	return e.write(points)
}

type simulateOutput struct {
	Times    []float64 `json:"times"`
	MeanPath []float64 `json:"mean_path"`
	MCPrice  float64   `json:"mc_price"`
	MCStdErr float64   `json:"mc_stderr"`
}

func runSimulate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	var m modelFlags
	common.register(fs)
	m.register(fs)
	paths := fs.Int("paths", 10000, "number of paths")
	steps := fs.Int("steps", 252, "time steps per path")
	seed := fs.Uint64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.load(stdout, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := m.params(fs, e.cfg)
	if err != nil {
		return err
	}
	jm, err := jumpModel(p)
	if err != nil {
		return err
	}
	pp := models.PathParams{
		S0: p.S0, T: p.T, R: p.R, Q: p.Q, Sigma: p.Sigma, Lambda: p.Lambda, Jump: jm,
		Paths: *paths, Steps: *steps, Seed: *seed,
	}
	sim, err := models.SimulatePaths(pp)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, cols := sim.Values.Dims()
	mean := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j, v := range sim.Values.RawRowView(i) {
			mean[j] += v / float64(rows)
		}
	}
	price, stderrMC, err := models.MonteCarloPrice(pp, p.K, p.Option == pide.Call)
	if err != nil {
		return err
	}
	e.log.Info("simulation done", "paths", rows, "steps", cols-1)
	return e.write(simulateOutput{Times: sim.Times, MeanPath: mean, MCPrice: price, MCStdErr: stderrMC})
}

type calibrateOutput struct {
	Symbol     string            `json:"symbol,omitempty"`
	Expiration string            `json:"expiration,omitempty"`
	Spot       float64           `json:"spot"`
	Maturity   float64           `json:"maturity"`
	Quotes     []calibrate.Quote `json:"quotes"`
	Fit        *calibrate.Result `json:"fit"`
}

func runCalibrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	var m modelFlags
	common.register(fs)
	m.register(fs)
	quotesPath := fs.String("quotes", "", "JSON file of [{strike, price}] call quotes; fetched from Tradier when empty")
	symbol := fs.String("symbol", "", "underlying symbol (default from config)")
	minDays := fs.Int("min-days", 20, "nearest expiration at least this many days out")
	global := fs.Bool("global", false, "seed the local search with differential evolution")
	progress := fs.Bool("progress", false, "show a progress bar on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.load(stdout, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := m.params(fs, e.cfg)
	if err != nil {
		return err
	}
	out := calibrateOutput{}
	if *quotesPath != "" {
		data, err := os.ReadFile(*quotesPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &out.Quotes); err != nil {
			return fmt.Errorf("parse quotes: %w", err)
		}
	} else {
		if *symbol == "" {
			*symbol = e.cfg.Market.Symbol
		}
		out.Symbol = *symbol
		if err := fetchMarket(ctx, e, *symbol, *minDays, &p, &out); err != nil {
			return err
		}
	}
	out.Spot, out.Maturity = p.S0, p.T

	opts := calibrate.Options{Global: *global, Seed: 1, Logger: e.log}
	if *progress {
		opts.Progress = stderr
	}
	out.Fit, err = calibrate.Fit(ctx, p, out.Quotes, opts)
	if err != nil {
		return err
	}
	return e.write(out)
}

func fetchMarket(ctx context.Context, e *env, symbol string, minDays int, p *pide.Params, out *calibrateOutput) error {
	client := tradier.NewClient(e.cfg.Market.TradierKey)
	client.BaseURL = e.cfg.Market.TradierBaseURL
	now := time.Now()

	bars, err := client.History(ctx, symbol, now.AddDate(0, 0, -10).Format("2006-01-02"), now.Format("2006-01-02"))
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no price history for %s", symbol)
	}
	p.S0 = bars[len(bars)-1].Close

	exps, err := client.Expirations(ctx, symbol)
	if err != nil {
		return err
	}
	out.Expiration, err = tradier.NearestExpiration(exps, now, minDays)
	if err != nil {
		return err
	}
	p.T, err = bsm.TimeToMaturity(out.Expiration, now)
	if err != nil {
		return err
	}
	chain, err := client.Chain(ctx, symbol, out.Expiration)
	if err != nil {
		return err
	}
	out.Quotes = calibrate.QuotesFromChain(chain)
	e.log.Info("fetched market", "symbol", symbol, "spot", p.S0, "expiration", out.Expiration, "quotes", len(out.Quotes))
	return nil
}

type estimateOutput struct {
	Symbol     string              `json:"symbol"`
	Closes     int                 `json:"closes"`
	Volatility *models.RealizedVol `json:"volatility,omitempty"`
	Merton     *mertonEstimate     `json:"merton,omitempty"`
	Kou        *kouEstimate        `json:"kou,omitempty"`
}

type mertonEstimate struct {
	Lambda float64 `json:"lambda"`
	MuJ    float64 `json:"mu_j"`
	SigmaJ float64 `json:"sigma_j"`
}

type kouEstimate struct {
	Lambda float64 `json:"lambda"`
	P      float64 `json:"p"`
	Eta1   float64 `json:"eta1"`
	Eta2   float64 `json:"eta2"`
}

func runEstimate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	symbol := fs.String("symbol", "", "underlying symbol (default from config)")
	years := fs.Int("years", 10, "years of daily history")
	closesPath := fs.String("closes", "", "JSON array of daily closes; fetched from Tradier when empty")
	window := fs.Int("vol-window", 63, "trailing days for the OHLC volatility estimators")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := common.load(stdout, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if *symbol == "" {
		*symbol = e.cfg.Market.Symbol
	}
	var (
		closes []float64
		vol    *models.RealizedVol
	)
	if *closesPath != "" {
		data, err := os.ReadFile(*closesPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &closes); err != nil {
			return fmt.Errorf("parse closes: %w", err)
		}
		if cc, err := models.CloseToCloseVol(closes); err == nil {
			vol = &models.RealizedVol{CloseToClose: cc}
		}
	} else {
		client := tradier.NewClient(e.cfg.Market.TradierKey)
		client.BaseURL = e.cfg.Market.TradierBaseURL
		now := time.Now()
		bars, err := client.History(ctx, *symbol, now.AddDate(-*years, 0, 0).Format("2006-01-02"), now.Format("2006-01-02"))
		if err != nil {
			return err
		}
		closes = tradier.Closes(bars)
		if rv, err := models.EstimateVolatility(ohlc(bars).Last(*window)); err == nil {
			vol = &rv
		} else {
			e.log.Warn("volatility estimate failed", "error", err)
		}
	}

	const tradingDay = 1.0 / 252
	out := estimateOutput{Symbol: *symbol, Closes: len(closes), Volatility: vol}
	if lambda, jm, err := models.EstimateMerton(closes, tradingDay); err == nil {
		out.Merton = &mertonEstimate{Lambda: lambda, MuJ: jm.Merton.MuJ, SigmaJ: jm.Merton.SigmaJ}
	} else {
		e.log.Warn("merton estimate failed", "error", err)
	}
	if lambda, jm, err := models.EstimateKou(closes, tradingDay); err == nil {
		out.Kou = &kouEstimate{Lambda: lambda, P: jm.Kou.P, Eta1: jm.Kou.Eta1, Eta2: jm.Kou.Eta2}
	} else {
		e.log.Warn("kou estimate failed", "error", err)
	}
	if out.Merton == nil && out.Kou == nil {
		return fmt.Errorf("no jump model could be estimated from %d closes", len(closes))
	}
	return e.write(out)
}

func ohlc(bars []tradier.Bar) models.OHLC {
	o := models.OHLC{
		Open:  make([]float64, len(bars)),
		High:  make([]float64, len(bars)),
		Low:   make([]float64, len(bars)),
		Close: make([]float64, len(bars)),
	}
	for i, b := range bars {
		o.Open[i], o.High[i], o.Low[i], o.Close[i] = b.Open, b.High, b.Low, b.Close
	}
	return o
}
