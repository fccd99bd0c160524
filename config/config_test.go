package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bcdannyboy/jdpide/pide"
)

func TestLoadMissingFilesUsesDefaults(t *testing.T) {
	t.Setenv("JDPIDE_LOG_LEVEL", "")
	t.Setenv("TRADIER_KEY", "")
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Grid != def.Grid || cfg.Logging != def.Logging {
		t.Errorf("got %+v, want defaults %+v", cfg, def)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
logging:
  level: warn
grid:
  n_price: 150
  n_time: 80
  theta: 1
  y_min: -2
  y_max: 2
  y_nodes: 401
market:
  symbol: QQQ
  risk_free_rate: 0.04
`)
	if err := os.WriteFile(yamlPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("TRADIER_KEY=abc123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	os.Unsetenv("TRADIER_KEY")
	t.Cleanup(func() { os.Unsetenv("TRADIER_KEY") })
	t.Setenv("JDPIDE_LOG_LEVEL", "debug")
	t.Setenv("JDPIDE_SYMBOL", "")

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want env override", cfg.Logging.Level)
	}
	if cfg.Market.TradierKey != "abc123" {
		t.Errorf("tradier key = %q", cfg.Market.TradierKey)
	}
	if cfg.Market.Symbol != "QQQ" || cfg.Market.RiskFreeRate != 0.04 {
		t.Errorf("market = %+v", cfg.Market)
	}
	if cfg.Grid.NPrice != 150 || cfg.Grid.Theta != 1 || cfg.Grid.YNodes != 401 {
		t.Errorf("grid = %+v", cfg.Grid)
	}
	if cfg.Logging.MaxBackups != 3 {
		t.Errorf("unset fields should keep defaults, got %+v", cfg.Logging)
	}

	var p pide.Params
	cfg.Grid.Apply(&p)
	if p.NPrice != 150 || p.Theta == nil || *p.Theta != 1 || p.Window != (pide.JumpWindow{YMin: -2, YMax: 2, Nodes: 401}) {
		t.Errorf("applied params = %+v", p)
	}
}

func TestLoadRejectsBadGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("grid:\n  theta: 1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Error("expected theta validation error")
	}
	if err := os.WriteFile(path, []byte("grid: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestRiskFreeRateEnv(t *testing.T) {
	t.Setenv("JDPIDE_RISK_FREE_RATE", "0.05")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Market.RiskFreeRate != 0.05 {
		t.Errorf("rate = %v", cfg.Market.RiskFreeRate)
	}
	t.Setenv("JDPIDE_RISK_FREE_RATE", "abc")
	cfg = Default()
	cfg.ApplyEnv()
	if cfg.Market.RiskFreeRate != Default().Market.RiskFreeRate {
		t.Errorf("bad value should keep default, got %v", cfg.Market.RiskFreeRate)
	}
}
