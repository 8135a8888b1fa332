package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "beerprice.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0, cfg.Pipeline.Workers)
	assert.Equal(t, "per_unit", cfg.Pipeline.UnitPricePolicy)
	assert.Equal(t, "latin-1", cfg.Input.Encoding)
	assert.Equal(t, "item", cfg.Input.Columns.Category)
	assert.Equal(t, "product_link", cfg.Input.Columns.SourceReference)
	assert.Equal(t, "product_description", cfg.Input.Columns.Description)
	assert.Equal(t, "product_price", cfg.Input.Columns.Price)
	assert.Equal(t, "product_discount_price", cfg.Input.Columns.PromoPrice)
	assert.Equal(t, "cerveja", cfg.Ingest.ListingPrefix)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Ingest.RatePerSec, 0.001)
	assert.Equal(t, "R$", cfg.Report.CurrencySymbol)
	assert.Equal(t, "pt-BR", cfg.Report.Locale)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.50, cfg.Monitoring.InvalidPriceThreshold, 0.001)
	assert.InDelta(t, 0.25, cfg.Monitoring.MissingVolumeThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/beer
log:
  level: debug
  format: console
pipeline:
  workers: 4
  unit_price_policy: strict
input:
  encoding: utf-8
  columns:
    source_reference: url
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/beer", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "strict", cfg.Pipeline.UnitPricePolicy)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Equal(t, "url", cfg.Input.Columns.SourceReference)
	// Defaults still apply for unset values
	assert.Equal(t, "item", cfg.Input.Columns.Category)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BEERPRICE_STORE_DRIVER", "sqlite")
	t.Setenv("BEERPRICE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("BEERPRICE_SERVER_PORT", "3000")
	t.Setenv("BEERPRICE_INPUT_ENCODING", "utf-8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "beerprice.db"
	cfg.Pipeline.UnitPricePolicy = "per_unit"
	cfg.Input.Encoding = "latin-1"
	cfg.Input.Columns.Description = "product_description"
	cfg.Ingest.MaxRetries = 3
	cfg.Ingest.RatePerSec = 1
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"process", "ingest", "runs", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateProcess_BadEncodingAndPolicy(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.Encoding = "utf-16"
	cfg.Pipeline.UnitPricePolicy = "guess"
	cfg.Pipeline.Workers = -1

	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.encoding")
	assert.Contains(t, err.Error(), "unit_price_policy")
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestValidateIngest_Limits(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.MaxRetries = 0
	cfg.Ingest.RatePerSec = 0

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.max_retries")
	assert.Contains(t, err.Error(), "ingest.rate_per_sec")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateRuns_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true
	cfg.Monitoring.LookbackWindowHours = 0
	cfg.Monitoring.FailureRateThreshold = 1.5
	cfg.Monitoring.InvalidPriceThreshold = 0.5
	cfg.Monitoring.MissingVolumeThreshold = -0.1

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours")
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold")
	assert.Contains(t, err.Error(), "monitoring.missing_volume_threshold")
	assert.NotContains(t, err.Error(), "invalid_price_threshold")

	cfg.Monitoring.Enabled = false
	assert.NoError(t, cfg.Validate("serve"))
}
