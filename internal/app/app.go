// Package app assembles the harvest pipeline from configuration. Both the
// HTTP server and the CLI build their runner here.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/config"
	"github.com/helixir/pubmed-harvester/internal/countries"
	"github.com/helixir/pubmed-harvester/internal/harvest"
	"github.com/helixir/pubmed-harvester/internal/normalize"
	"github.com/helixir/pubmed-harvester/internal/observability"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "pubmed_harvester"

// LoggingConfig converts the logging section into an observability config.
func LoggingConfig(cfg config.LoggingConfig) observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: cfg.TimeFormat,
	}
}

// Catalog returns the configured country catalog, or the embedded one when
// no file is set.
func Catalog(cfg config.HarvestConfig) (*countries.Catalog, error) {
	if cfg.CountriesFile == "" {
		return countries.Default(), nil
	}
	catalog, err := countries.Load(cfg.CountriesFile)
	if err != nil {
		return nil, fmt.Errorf("load country catalog: %w", err)
	}
	return catalog, nil
}

// PubMedClient builds the E-utilities client from the pubmed section.
// metrics may be nil.
func PubMedClient(cfg config.PubMedConfig, logger zerolog.Logger, metrics *observability.Metrics) *pubmed.Client {
	return pubmed.New(pubmed.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
		Logger:     logger,
		Metrics:    metrics,
	})
}

// NewRunner wires the E-utilities client, the country catalog and the
// normalizer into a harvest runner. metrics may be nil.
func NewRunner(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, confirm harvest.ConfirmFunc) (*harvest.Runner, error) {
	catalog, err := Catalog(cfg.Harvest)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("countries", catalog.Len()).Msg("country catalog loaded")

	return harvest.NewRunner(PubMedClient(cfg.PubMed, logger, metrics), normalize.New(catalog), harvest.RunnerConfig{
		BatchSize: cfg.Harvest.BatchSize,
		DelayMin:  cfg.Harvest.DelayMin,
		DelayMax:  cfg.Harvest.DelayMax,
		Confirm:   confirm,
		Logger:    logger,
		Metrics:   metrics,
	}), nil
}
