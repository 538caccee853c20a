// Package config provides configuration management for the PubMed harvester.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PUBHARVEST"

// Config holds all configuration for the PubMed harvester.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// PubMed contains E-utilities client settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// Harvest contains record retrieval settings.
	Harvest HarvestConfig `mapstructure:"harvest"`
	// Export contains output file settings.
	Export ExportConfig `mapstructure:"export"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port" validate:"min=1,max=65535"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	// Progress streams are long-lived, so zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"loglevel"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// PubMedConfig holds E-utilities client configuration.
type PubMedConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey is the NCBI API key. Loaded only from PUBHARVEST_PUBMED_API_KEY.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	// BurstSize is the rate limiter burst.
	BurstSize int `mapstructure:"burst_size"`
	// MaxRetries enables transport retries on 429/5xx. Zero disables them.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"user_agent"`
}

// HarvestConfig holds record retrieval configuration.
type HarvestConfig struct {
	// BatchSize is the number of identifiers per batch (default: 100).
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`
	// MaxParallel is the default group size, between 3 and 10 (default: 5).
	MaxParallel int `mapstructure:"max_parallel" validate:"min=3,max=10"`
	// DelayMin is the lower bound of the per-request random delay.
	DelayMin time.Duration `mapstructure:"delay_min" validate:"min=0"`
	// DelayMax is the upper bound of the per-request random delay.
	DelayMax time.Duration `mapstructure:"delay_max" validate:"gtefield=DelayMin"`
	// CountriesFile replaces the embedded country catalog when set (.json, .yaml).
	CountriesFile string `mapstructure:"countries_file"`
}

// ExportConfig holds output configuration.
type ExportConfig struct {
	// OutputDir is where the CLI writes export files.
	OutputDir string `mapstructure:"output_dir"`
	// FilePrefix is prepended to timestamped export file names.
	FilePrefix string `mapstructure:"file_prefix" validate:"required"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load, reading the given YAML file instead
// of searching the default locations when path is not empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pubmed-harvester")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.PubMed.APIKey = os.Getenv(EnvPrefix + "_PUBMED_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// PubMed defaults. Pacing comes from the harvest delay, so the
	// transport limiter is off unless an operator sets one.
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.rate_limit", 0.0)
	v.SetDefault("pubmed.burst_size", 1)
	v.SetDefault("pubmed.max_retries", 0)
	v.SetDefault("pubmed.user_agent", "pubmed-harvester/1.0")

	// Harvest defaults
	v.SetDefault("harvest.batch_size", 100)
	v.SetDefault("harvest.max_parallel", 5)
	v.SetDefault("harvest.delay_min", "200ms")
	v.SetDefault("harvest.delay_max", "500ms")
	v.SetDefault("harvest.countries_file", "")

	// Export defaults
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("export.file_prefix", "pubmed_results")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "fatal": true, "panic": true,
}

// configValidator reports fields by their mapstructure keys, so a failure on
// Harvest.MaxParallel reads as Config.harvest.max_parallel.
func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
			return logLevels[strings.ToLower(fl.Field().String())]
		})
		validate = v
	})
	return validate
}

// Validate checks the configuration and reports the first invalid setting.
func (c *Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	return c.describe(fieldErrs[0])
}

func (c *Config) describe(fe validator.FieldError) error {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	label := strings.Replace(key, ".", " ", 1)

	switch key {
	case "server.http_port":
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	case "logging.level":
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	case "harvest.max_parallel":
		return fmt.Errorf("harvest max_parallel must be between 3 and 10, got %d", c.Harvest.MaxParallel)
	case "harvest.delay_min", "harvest.delay_max":
		return fmt.Errorf("harvest delay range is invalid: %s..%s", c.Harvest.DelayMin, c.Harvest.DelayMax)
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", label)
	case "gt":
		return fmt.Errorf("%s must be positive", label)
	case "min":
		return fmt.Errorf("%s must not be negative", label)
	case "url":
		return fmt.Errorf("%s must be an absolute URL", label)
	default:
		return fmt.Errorf("%s is invalid (%s)", label, fe.Tag())
	}
}
