package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"marketloader/internal/fetcher"
)

// ProviderConfig holds settings for the upstream market data API.
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	HTTPRetries       int           `mapstructure:"http_retries"`
}

// DatabaseConfig selects the storage driver and connection string.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FetchConfig controls what is fetched and how the run is batched.
type FetchConfig struct {
	Kinds            []string      `mapstructure:"kinds"`
	AutoPlan         bool          `mapstructure:"auto_plan"`
	BatchSize        int           `mapstructure:"batch_size"`
	Workers          int           `mapstructure:"workers"`
	RateLimit        int           `mapstructure:"rate_limit"`
	MaxRounds        int           `mapstructure:"max_rounds"`
	BatchDelay       time.Duration `mapstructure:"batch_delay"`
	IntradayPageSize int           `mapstructure:"intraday_page_size"`
	FinancePeriod    string        `mapstructure:"finance_period"`
}

// RetryConfig holds the throttling backoff bounds.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseWait    time.Duration `mapstructure:"base_wait"`
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// SymbolsConfig points at the symbol universe file.
type SymbolsConfig struct {
	File      string   `mapstructure:"file"`
	Exchanges []string `mapstructure:"exchanges"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ReportConfig holds the failure log location.
type ReportConfig struct {
	FailureLog string `mapstructure:"failure_log"`
}

// EventsConfig enables run events on Kafka when brokers are set.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Config holds all configuration for the market loader.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Database DatabaseConfig `mapstructure:"database"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Symbols  SymbolsConfig  `mapstructure:"symbols"`
	Log      LogConfig      `mapstructure:"log"`
	Report   ReportConfig   `mapstructure:"report"`
	Events   EventsConfig   `mapstructure:"events"`
}

// Load reads configuration from an optional config file and environment
// variables. Environment variables take precedence over config file values
// and use the MARKETLOADER_ prefix with dots replaced by underscores, e.g.
//   - MARKETLOADER_PROVIDER_API_KEY
//   - MARKETLOADER_DATABASE_DSN
//   - MARKETLOADER_FETCH_KINDS (comma separated)
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("MARKETLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.marketloader")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", "https://trading.vietcap.com.vn/api")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.requests_per_second", 0)
	v.SetDefault("provider.http_retries", 2)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "data/market.db")

	v.SetDefault("fetch.kinds", []string{
		string(fetcher.KindPriceIntraday1m),
		string(fetcher.KindPriceDaily),
		string(fetcher.KindIntradayTicks),
	})
	v.SetDefault("fetch.auto_plan", false)
	v.SetDefault("fetch.batch_size", 30)
	v.SetDefault("fetch.workers", 15)
	v.SetDefault("fetch.rate_limit", 15)
	v.SetDefault("fetch.max_rounds", 3)
	v.SetDefault("fetch.batch_delay", time.Second)
	v.SetDefault("fetch.intraday_page_size", fetcher.DefaultIntradayPageSize)
	v.SetDefault("fetch.finance_period", fetcher.DefaultFinancePeriod)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_wait", time.Second)
	v.SetDefault("retry.min_wait", 5*time.Second)
	v.SetDefault("retry.max_wait", 60*time.Second)

	v.SetDefault("symbols.file", "symbols.yaml")
	v.SetDefault("symbols.exchanges", []string{"HOSE", "HNX", "UPCOM"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("report.failure_log", "logs/missing_symbols.log")

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "marketloader.runs")
}

// Validate checks every setting and reports all offending keys at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Provider.BaseURL == "" {
		problems = append(problems, "provider.base_url is required")
	}
	if c.Provider.HTTPRetries < 0 {
		problems = append(problems, "provider.http_retries must be >= 0")
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}

	if !c.Fetch.AutoPlan {
		if _, err := fetcher.ParseKinds(c.Fetch.Kinds); err != nil {
			problems = append(problems, fmt.Sprintf("fetch.kinds: %v", err))
		}
	}
	if c.Fetch.BatchSize < 1 {
		problems = append(problems, "fetch.batch_size must be >= 1")
	}
	if c.Fetch.Workers < 1 {
		problems = append(problems, "fetch.workers must be >= 1")
	}
	if c.Fetch.RateLimit < 1 {
		problems = append(problems, "fetch.rate_limit must be >= 1")
	}
	if c.Fetch.MaxRounds < 0 {
		problems = append(problems, "fetch.max_rounds must be >= 0")
	}
	if c.Fetch.BatchDelay < 0 {
		problems = append(problems, "fetch.batch_delay must be >= 0")
	}
	switch c.Fetch.FinancePeriod {
	case "quarterly", "yearly":
	default:
		problems = append(problems, fmt.Sprintf("fetch.finance_period must be quarterly or yearly, got %q", c.Fetch.FinancePeriod))
	}

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be >= 1")
	}
	if c.Retry.MaxWait < c.Retry.MinWait {
		problems = append(problems, "retry.max_wait must be >= retry.min_wait")
	}

	if c.Report.FailureLog == "" {
		problems = append(problems, "report.failure_log is required")
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		problems = append(problems, "events.topic is required when events.brokers is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Kinds returns the configured fetch kinds.
func (c *Config) Kinds() ([]fetcher.Kind, error) {
	return fetcher.ParseKinds(c.Fetch.Kinds)
}
