package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// PubMed defaults
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.PubMed.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.PubMed.Timeout)
	assert.Equal(t, 0.0, cfg.PubMed.RateLimit)
	assert.Equal(t, 0, cfg.PubMed.MaxRetries)
	assert.Empty(t, cfg.PubMed.APIKey)

	// Harvest defaults
	assert.Equal(t, 100, cfg.Harvest.BatchSize)
	assert.Equal(t, 5, cfg.Harvest.MaxParallel)
	assert.Equal(t, 200*time.Millisecond, cfg.Harvest.DelayMin)
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.DelayMax)
	assert.Empty(t, cfg.Harvest.CountriesFile)

	// Export defaults
	assert.Equal(t, ".", cfg.Export.OutputDir)
	assert.Equal(t, "pubmed_results", cfg.Export.FilePrefix)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PUBHARVEST_SERVER_HTTP_PORT", "8888")
	t.Setenv("PUBHARVEST_LOGGING_LEVEL", "debug")
	t.Setenv("PUBHARVEST_PUBMED_RATE_LIMIT", "9.5")
	t.Setenv("PUBHARVEST_HARVEST_MAX_PARALLEL", "8")
	t.Setenv("PUBHARVEST_HARVEST_DELAY_MIN", "0s")
	t.Setenv("PUBHARVEST_HARVEST_DELAY_MAX", "50ms")
	t.Setenv("PUBHARVEST_EXPORT_OUTPUT_DIR", "/tmp/out")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9.5, cfg.PubMed.RateLimit)
	assert.Equal(t, 8, cfg.Harvest.MaxParallel)
	assert.Equal(t, time.Duration(0), cfg.Harvest.DelayMin)
	assert.Equal(t, 50*time.Millisecond, cfg.Harvest.DelayMax)
	assert.Equal(t, "/tmp/out", cfg.Export.OutputDir)
}

func TestLoad_APIKeyFromEnvOnly(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pubmed:\n  api_key: from-file\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.PubMed.APIKey, "api key must not be read from files")

	t.Setenv("PUBHARVEST_PUBMED_API_KEY", "from-env")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.PubMed.APIKey)
}

func TestLoadFile(t *testing.T) {
	clearEnvVars(t)

	t.Run("values from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "harvester.yaml")
		content := "harvest:\n  max_parallel: 10\n  countries_file: countries.yaml\nexport:\n  file_prefix: run\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Harvest.MaxParallel)
		assert.Equal(t, "countries.yaml", cfg.Harvest.CountriesFile)
		assert.Equal(t, "run", cfg.Export.FilePrefix)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("harvest:\n  max_parallel: 20\n"), 0o600))

		_, err := LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectedErr string
	}{
		{
			name:       "valid config",
			modifyFunc: func(c *Config) {},
		},
		{
			name:        "invalid HTTP port - zero",
			modifyFunc:  func(c *Config) { c.Server.HTTPPort = 0 },
			expectedErr: "invalid HTTP port",
		},
		{
			name:        "invalid HTTP port - too high",
			modifyFunc:  func(c *Config) { c.Server.HTTPPort = 70000 },
			expectedErr: "invalid HTTP port",
		},
		{
			name:        "invalid log level",
			modifyFunc:  func(c *Config) { c.Logging.Level = "verbose" },
			expectedErr: "invalid log level",
		},
		{
			name:       "log level is case-insensitive",
			modifyFunc: func(c *Config) { c.Logging.Level = "WARN" },
		},
		{
			name:        "missing base url",
			modifyFunc:  func(c *Config) { c.PubMed.BaseURL = "" },
			expectedErr: "base_url is required",
		},
		{
			name:        "negative rate limit",
			modifyFunc:  func(c *Config) { c.PubMed.RateLimit = -1 },
			expectedErr: "rate_limit",
		},
		{
			name:        "negative retries",
			modifyFunc:  func(c *Config) { c.PubMed.MaxRetries = -1 },
			expectedErr: "max_retries",
		},
		{
			name:        "zero batch size",
			modifyFunc:  func(c *Config) { c.Harvest.BatchSize = 0 },
			expectedErr: "batch_size must be positive",
		},
		{
			name:        "parallelism below range",
			modifyFunc:  func(c *Config) { c.Harvest.MaxParallel = 2 },
			expectedErr: "max_parallel must be between 3 and 10",
		},
		{
			name:        "parallelism above range",
			modifyFunc:  func(c *Config) { c.Harvest.MaxParallel = 11 },
			expectedErr: "max_parallel must be between 3 and 10",
		},
		{
			name: "delay max below min",
			modifyFunc: func(c *Config) {
				c.Harvest.DelayMin = time.Second
				c.Harvest.DelayMax = time.Millisecond
			},
			expectedErr: "delay range is invalid",
		},
		{
			name: "zero delays allowed",
			modifyFunc: func(c *Config) {
				c.Harvest.DelayMin = 0
				c.Harvest.DelayMax = 0
			},
		},
		{
			name:        "relative base url",
			modifyFunc:  func(c *Config) { c.PubMed.BaseURL = "eutils" },
			expectedErr: "pubmed base_url must be an absolute URL",
		},
		{
			name:       "warning alias accepted",
			modifyFunc: func(c *Config) { c.Logging.Level = "warning" },
		},
		{
			name:        "negative delay",
			modifyFunc:  func(c *Config) { c.Harvest.DelayMin = -time.Millisecond },
			expectedErr: "delay range is invalid",
		},
		{
			name:        "empty file prefix",
			modifyFunc:  func(c *Config) { c.Export.FilePrefix = "" },
			expectedErr: "file_prefix is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)
			err := cfg.Validate()
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestValidate_ReportsFirstInvalidSection(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HTTPPort = -1
	cfg.Export.FilePrefix = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "invalid HTTP port: -1", err.Error())
}

func TestServerConfig_HTTPAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", HTTPPort: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddress())
}

// clearEnvVars unsets every PUBHARVEST_ variable for the duration of the test.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, EnvPrefix+"_") {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		PubMed: PubMedConfig{
			BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Timeout: 30 * time.Second,
		},
		Harvest: HarvestConfig{
			BatchSize:   100,
			MaxParallel: 5,
			DelayMin:    200 * time.Millisecond,
			DelayMax:    500 * time.Millisecond,
		},
		Export: ExportConfig{
			OutputDir:  ".",
			FilePrefix: "pubmed_results",
		},
	}
}
