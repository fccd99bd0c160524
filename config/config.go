package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bcdannyboy/jdpide/pide"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`        // Empty logs to stderr only
	MaxSize    int    `yaml:"max_size"`    // Megabytes per file before rotation
	MaxBackups int    `yaml:"max_backups"` // Rotated files kept
	MaxAge     int    `yaml:"max_age"`     // Days rotated files are kept
	Compress   bool   `yaml:"compress"`
}

// GridConfig holds the discretization used when a command does not override it.
type GridConfig struct {
	NPrice int     `yaml:"n_price"`
	NTime  int     `yaml:"n_time"`
	Theta  float64 `yaml:"theta"`
	YMin   float64 `yaml:"y_min"`
	YMax   float64 `yaml:"y_max"`
	YNodes int     `yaml:"y_nodes"`
}

type MarketConfig struct {
	Symbol         string  `yaml:"symbol"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	DividendYield  float64 `yaml:"dividend_yield"`
	TradierBaseURL string  `yaml:"tradier_base_url"`
	TradierKey     string  `yaml:"-"` // Only read from the environment
}

type OutputConfig struct {
	Pretty bool `yaml:"pretty"`
}

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Grid    GridConfig    `yaml:"grid"`
	Market  MarketConfig  `yaml:"market"`
	Output  OutputConfig  `yaml:"output"`
}

func Default() *Config {
	w := pide.DefaultJumpWindow()
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Grid: GridConfig{
			NPrice: pide.DefaultNPrice,
			NTime:  pide.DefaultNTime,
			Theta:  pide.DefaultTheta,
			YMin:   w.YMin,
			YMax:   w.YMax,
			YNodes: w.Nodes,
		},
		Market: MarketConfig{
			Symbol:         "SPY",
			RiskFreeRate:   0.0379,
			TradierBaseURL: "https://api.tradier.com/v1",
		},
		Output: OutputConfig{Pretty: true},
	}
}

// Load starts from Default, overlays the YAML file at path and then the
// environment, after loading envFile into it. Either file may be missing.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from TRADIER_KEY, JDPIDE_LOG_LEVEL,
// JDPIDE_LOG_FILE, JDPIDE_SYMBOL and JDPIDE_RISK_FREE_RATE.
func (c *Config) ApplyEnv() {
	c.Market.TradierKey = getEnv("TRADIER_KEY", c.Market.TradierKey)
	c.Market.Symbol = getEnv("JDPIDE_SYMBOL", c.Market.Symbol)
	c.Market.RiskFreeRate = getEnvFloat("JDPIDE_RISK_FREE_RATE", c.Market.RiskFreeRate)
	c.Logging.Level = getEnv("JDPIDE_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("JDPIDE_LOG_FILE", c.Logging.File)
}

func (c *Config) Validate() error {
	g := c.Grid
	if g.NPrice < 3 || g.NTime < 1 {
		return fmt.Errorf("config: grid needs n_price >= 3 and n_time >= 1, got %d and %d", g.NPrice, g.NTime)
	}
	if g.Theta < 0 || g.Theta > 1 {
		return fmt.Errorf("config: theta %g outside [0, 1]", g.Theta)
	}
	if !(g.YMax > g.YMin) || g.YNodes < 2 {
		return fmt.Errorf("config: jump window [%g, %g] with %d nodes", g.YMin, g.YMax, g.YNodes)
	}
	return nil
}

// Apply copies the discretization into p.
func (g GridConfig) Apply(p *pide.Params) {
	p.NPrice = g.NPrice
	p.NTime = g.NTime
	p.SetTheta(g.Theta)
	p.Window = pide.JumpWindow{YMin: g.YMin, YMax: g.YMax, Nodes: g.YNodes}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
