// Package harvest orchestrates a harvest run: parameter validation,
// discovery, bounded-concurrency record retrieval and export encoding.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/export"
	"github.com/helixir/pubmed-harvester/internal/observability"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

// Source discovers identifiers and fetches raw records.
type Source interface {
	Fetcher
	Search(ctx context.Context, params pubmed.SearchParams) ([]string, error)
	ValidateAPIKey(ctx context.Context) error
	HasAPIKey() bool
}

// ConfirmFunc is asked whether to continue after discovery found n
// identifiers. Returning false aborts the run with domain.ErrAborted.
type ConfirmFunc func(ctx context.Context, n int) bool

// Confirmer is optionally implemented by observers that decide per run
// whether to continue after discovery. It takes precedence over
// RunnerConfig.Confirm.
type Confirmer interface {
	Confirm(ctx context.Context, n int) bool
}

// RunnerConfig holds the tunables and collaborators of a Runner.
// Zero values select the scheduler defaults.
type RunnerConfig struct {
	BatchSize int
	DelayMin  time.Duration
	DelayMax  time.Duration

	// Confirm is consulted after discovery. Nil always continues.
	Confirm ConfirmFunc

	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// Random replaces the scheduler jitter source.
	Random func() float64
}

// Report is the outcome of a completed run.
type Report struct {
	IDs           []string
	Result        Result
	Exports       map[string][]byte
	FailedIDsText string
	StartedAt     time.Time
	Elapsed       time.Duration
}

// Runner executes harvest runs. A Runner may execute several runs
// concurrently; each run gets its own Scheduler.
type Runner struct {
	source     Source
	normalizer RecordNormalizer
	cfg        RunnerConfig
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(source Source, normalizer RecordNormalizer, cfg RunnerConfig) *Runner {
	return &Runner{
		source:     source,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     observability.WithComponent(cfg.Logger, "runner"),
		now:        time.Now,
	}
}

// ConfirmPrompt is the question asked before fetching n records.
func ConfirmPrompt(n int) string {
	return fmt.Sprintf("Found %s articles. Do you want to continue fetching their details?", FormatCount(n))
}

// Run executes one harvest. obs may be nil. Errors are one of
// *domain.ConfigError, *domain.DiscoveryError, domain.ErrAborted,
// *domain.EmptyResultError or an API key failure wrapping
// domain.ErrUnauthorized; per-record failures are reported in the Report.
func (r *Runner) Run(ctx context.Context, params Params, obs Observer) (*Report, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	started := r.now()
	logger := observability.WithRunContext(r.logger, observability.RunIDFromContext(ctx), params.Query)

	if err := params.Validate(started); err != nil {
		r.message(obs, err.Error(), domain.SeverityError)
		r.status(obs, domain.RunStatusFailed)
		logger.Warn().Err(err).Msg("run parameters rejected")
		return nil, err
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordRunStarted()
	}
	fail := func(err error) (*Report, error) {
		r.status(obs, domain.RunStatusFailed)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordRunFailed(time.Since(started).Seconds())
		}
		logger.Error().Err(err).Msg("run failed")
		return nil, err
	}

	if r.source.HasAPIKey() {
		r.message(obs, "Validating API key...", domain.SeverityInfo)
		if err := r.source.ValidateAPIKey(ctx); err != nil {
			r.message(obs, "Invalid API key.", domain.SeverityError)
			return fail(err)
		}
		r.message(obs, "API key is valid.", domain.SeveritySuccess)
	}

	r.status(obs, domain.RunStatusSearching)
	r.message(obs, "Starting PubMed search...", domain.SeverityInfo)

	ids, err := r.search(ctx, params)
	if err != nil {
		if errors.Is(err, domain.ErrNoResults) {
			r.message(obs, "No articles found matching your criteria.", domain.SeverityError)
		} else {
			r.message(obs, "An error occurred: "+err.Error(), domain.SeverityError)
		}
		return fail(err)
	}
	r.message(obs, fmt.Sprintf("Found %s articles.", FormatCount(len(ids))), domain.SeveritySuccess)

	if !r.confirm(ctx, obs, len(ids)) {
		r.message(obs, "Operation cancelled by user.", domain.SeverityError)
		r.status(obs, domain.RunStatusAborted)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordRunAborted()
		}
		logger.Info().Int("ids", len(ids)).Msg("run aborted after discovery")
		return nil, domain.ErrAborted
	}

	r.status(obs, domain.RunStatusFetching)
	r.message(obs, "Fetching article details...", domain.SeverityInfo)

	result := r.newScheduler(params.MaxParallel, obs).Fetch(ctx, ids)

	if n := len(result.FailedIDs); n > 0 {
		r.message(obs, fmt.Sprintf("Failed to fetch %d article(s).", n), domain.SeverityWarning)
		r.message(obs, "PMID(s) of article(s) not fetched: "+strings.Join(result.FailedIDs, ", "), domain.SeverityWarning)
	}
	if len(result.Articles) == 0 {
		r.message(obs, "Failed to fetch article details.", domain.SeverityError)
		return fail(&domain.EmptyResultError{Attempted: len(ids)})
	}
	r.message(obs, fmt.Sprintf("Successfully fetched %s articles.", FormatCount(len(result.Articles))), domain.SeveritySuccess)

	r.status(obs, domain.RunStatusExporting)
	r.message(obs, "Exporting results...", domain.SeverityInfo)

	exports, err := r.encode(result.Articles)
	if err != nil {
		r.message(obs, "An error occurred: "+err.Error(), domain.SeverityError)
		return fail(err)
	}

	elapsed := r.now().Sub(started)
	r.message(obs, "All operations completed in "+FormatElapsed(elapsed)+".", domain.SeveritySuccess)
	r.status(obs, domain.RunStatusCompleted)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordRunCompleted(elapsed.Seconds())
	}

	logger.Info().
		Int("ids", len(ids)).
		Int("fetched", len(result.Articles)).
		Int("failed", len(result.FailedIDs)).
		Dur("elapsed", elapsed).
		Msg("run completed")

	return &Report{
		IDs:           ids,
		Result:        result,
		Exports:       exports,
		FailedIDsText: export.EncodeFailedIDs(result.FailedIDs),
		StartedAt:     started,
		Elapsed:       elapsed,
	}, nil
}

func (r *Runner) search(ctx context.Context, params Params) ([]string, error) {
	start := time.Now()
	ids, err := r.source.Search(ctx, params.SearchParams())
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordSearchFailed(elapsed)
		}
		return nil, domain.NewDiscoveryError(params.Query, err)
	}
	if len(ids) == 0 {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordSearchFailed(elapsed)
		}
		return nil, domain.NewDiscoveryError(params.Query, domain.ErrNoResults)
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordSearchCompleted(len(ids), elapsed)
	}
	return ids, nil
}

func (r *Runner) confirm(ctx context.Context, obs Observer, n int) bool {
	if c, ok := obs.(Confirmer); ok {
		return c.Confirm(ctx, n)
	}
	if r.cfg.Confirm != nil {
		return r.cfg.Confirm(ctx, n)
	}
	return true
}

func (r *Runner) newScheduler(maxParallel int, obs Observer) *Scheduler {
	opts := []Option{
		WithBatchSize(r.cfg.BatchSize),
		WithObserver(obs),
		WithLogger(r.cfg.Logger),
		WithMetrics(r.cfg.Metrics),
		WithRandom(r.cfg.Random),
	}
	if r.cfg.DelayMin != 0 || r.cfg.DelayMax != 0 {
		opts = append(opts, WithDelay(r.cfg.DelayMin, r.cfg.DelayMax))
	}
	return NewScheduler(r.source, r.normalizer, maxParallel, opts...)
}

func (r *Runner) encode(articles []domain.Article) (map[string][]byte, error) {
	out := make(map[string][]byte, len(export.Formats()))
	for _, f := range export.Formats() {
		payload, err := export.Encode(f.Name, articles)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Name, err)
		}
		out[f.Name] = payload
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordExport(f.Name, len(payload))
		}
	}
	return out, nil
}

// message forwards a milestone, discarding observer panics.
func (r *Runner) message(obs Observer, text string, sev domain.Severity) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("message observer panicked")
		}
	}()
	obs.OnMessage(text, sev)
}

func (r *Runner) status(obs Observer, status domain.RunStatus) {
	so, ok := obs.(StatusObserver)
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("status observer panicked")
		}
	}()
	so.OnStatus(status)
}

// FormatCount renders n with comma thousands separators.
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 && !(neg && sb.Len() == 1) {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
