package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures normalization.
type PipelineConfig struct {
	Workers         int    `yaml:"workers" mapstructure:"workers"`
	UnitPricePolicy string `yaml:"unit_price_policy" mapstructure:"unit_price_policy"`
	VocabularyPath  string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// ColumnConfig names the CSV header of each listing field.
type ColumnConfig struct {
	Category        string `yaml:"category" mapstructure:"category"`
	SourceReference string `yaml:"source_reference" mapstructure:"source_reference"`
	Description     string `yaml:"description" mapstructure:"description"`
	Price           string `yaml:"price" mapstructure:"price"`
	PromoPrice      string `yaml:"promo_price" mapstructure:"promo_price"`
}

// InputConfig configures how scraper CSV exports are read.
type InputConfig struct {
	Encoding string       `yaml:"encoding" mapstructure:"encoding"`
	Columns  ColumnConfig `yaml:"columns" mapstructure:"columns"`
}

// SelectorConfig holds CSS selectors for HTML search result pages.
type SelectorConfig struct {
	Product     string `yaml:"product" mapstructure:"product"`
	Description string `yaml:"description" mapstructure:"description"`
	Price       string `yaml:"price" mapstructure:"price"`
	PromoPrice  string `yaml:"promo_price" mapstructure:"promo_price"`
	Link        string `yaml:"link" mapstructure:"link"`
}

// IngestConfig configures conversion of search result payloads to listings.
type IngestConfig struct {
	ListingPrefix string         `yaml:"listing_prefix" mapstructure:"listing_prefix"`
	TimeoutSecs   int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int            `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec    float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent     string         `yaml:"user_agent" mapstructure:"user_agent"`
	Selectors     SelectorConfig `yaml:"selectors" mapstructure:"selectors"`
}

// ReportConfig configures the cheapest-per-category report.
type ReportConfig struct {
	CurrencySymbol string `yaml:"currency_symbol" mapstructure:"currency_symbol"`
	Locale         string `yaml:"locale" mapstructure:"locale"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run health checks and alert delivery.
type MonitoringConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// FailureRateThreshold is the failed / finished run ratio that alerts.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// InvalidPriceThreshold is the share of listings without a usable price
	// that alerts; a jump usually means a scraper broke.
	InvalidPriceThreshold float64 `yaml:"invalid_price_threshold" mapstructure:"invalid_price_threshold"`
	// MissingVolumeThreshold is the share of priced listings without a
	// recognized volume that alerts; a jump usually means the vocabulary is stale.
	MissingVolumeThreshold float64 `yaml:"missing_volume_threshold" mapstructure:"missing_volume_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BEERPRICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "beerprice.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.unit_price_policy", "per_unit")
	v.SetDefault("pipeline.vocabulary_path", "")
	v.SetDefault("input.encoding", "latin-1")
	v.SetDefault("input.columns.category", "item")
	v.SetDefault("input.columns.source_reference", "product_link")
	v.SetDefault("input.columns.description", "product_description")
	v.SetDefault("input.columns.price", "product_price")
	v.SetDefault("input.columns.promo_price", "product_discount_price")
	v.SetDefault("ingest.listing_prefix", "cerveja")
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.rate_per_sec", 0.5)
	v.SetDefault("ingest.user_agent", "beerprice/1.0")
	v.SetDefault("ingest.selectors.product", "[data-product]")
	v.SetDefault("ingest.selectors.description", ".product-description")
	v.SetDefault("ingest.selectors.price", ".product-price")
	v.SetDefault("ingest.selectors.promo_price", ".product-discount-price")
	v.SetDefault("ingest.selectors.link", "a")
	v.SetDefault("report.currency_symbol", "R$")
	v.SetDefault("report.locale", "pt-BR")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.invalid_price_threshold", 0.50)
	v.SetDefault("monitoring.missing_volume_threshold", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is one of
// "process", "ingest", "runs" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "process", "ingest", "runs", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.Workers < 0 {
		errs = append(errs, "pipeline.workers must be >= 0")
	}
	switch c.Pipeline.UnitPricePolicy {
	case "", "per_unit", "strict":
	default:
		errs = append(errs, fmt.Sprintf("pipeline.unit_price_policy %q must be per_unit or strict", c.Pipeline.UnitPricePolicy))
	}

	switch mode {
	case "process":
		switch strings.ToLower(c.Input.Encoding) {
		case "", "utf-8", "utf8", "latin-1", "latin1", "iso-8859-1":
		default:
			errs = append(errs, fmt.Sprintf("input.encoding %q is not supported", c.Input.Encoding))
		}
		if c.Input.Columns.Description == "" {
			errs = append(errs, "input.columns.description is required")
		}
	case "ingest":
		if c.Ingest.MaxRetries < 1 {
			errs = append(errs, "ingest.max_retries must be >= 1")
		}
		if c.Ingest.RatePerSec <= 0 {
			errs = append(errs, "ingest.rate_per_sec must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	}

	if mode == "serve" && c.Monitoring.Enabled {
		if c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
		thresholds := []struct {
			name  string
			value float64
		}{
			{"failure_rate_threshold", c.Monitoring.FailureRateThreshold},
			{"invalid_price_threshold", c.Monitoring.InvalidPriceThreshold},
			{"missing_volume_threshold", c.Monitoring.MissingVolumeThreshold},
		}
		for _, th := range thresholds {
			if th.value < 0 || th.value > 1 {
				errs = append(errs, fmt.Sprintf("monitoring.%s must be between 0 and 1", th.name))
			}
		}
	}

	if mode == "runs" || mode == "serve" {
		if err := c.validateStore(); err != "" {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return "store.database_url is required"
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
