package harvest

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/observability"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

// fakeSource is an in-memory Source.
type fakeSource struct {
	fakeFetcher
	ids        []string
	searchErr  error
	apiKey     bool
	keyErr     error
	searches   atomic.Int32
	lastSearch pubmed.SearchParams
}

func (s *fakeSource) Search(_ context.Context, params pubmed.SearchParams) ([]string, error) {
	s.searches.Add(1)
	s.lastSearch = params
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.ids, nil
}

func (s *fakeSource) ValidateAPIKey(context.Context) error { return s.keyErr }
func (s *fakeSource) HasAPIKey() bool                      { return s.apiKey }

func newTestRunner(src Source, cfg RunnerConfig) *Runner {
	cfg.DelayMin, cfg.DelayMax = 0, 0
	r := NewRunner(src, idNormalizer{}, cfg)
	r.now = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }
	return r
}

func validParams() Params {
	return Params{Query: "cancer", MaxParallel: 3}
}

func TestRunner_Run(t *testing.T) {
	src := &fakeSource{ids: []string{"1", "2", "3", "4", "5"}}
	src.fail = map[string]error{"2": errors.New("reset"), "4": errors.New("reset")}
	obs := &recordingObserver{}

	report, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), validParams(), obs)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, report.IDs)
	assert.Len(t, report.Result.Articles, 3)
	assert.ElementsMatch(t, []string{"2", "4"}, report.Result.FailedIDs)
	assert.Contains(t, report.Exports, "csv")
	assert.Contains(t, report.Exports, "json")
	assert.Contains(t, report.Exports, "bib")
	assert.ElementsMatch(t, []string{"2", "4"}, strings.Split(report.FailedIDsText, "\n"))

	assert.Contains(t, obs.messages, "Starting PubMed search...")
	assert.Contains(t, obs.messages, "Found 5 articles.")
	assert.Contains(t, obs.messages, "Fetching article details...")
	assert.Contains(t, obs.messages, "Failed to fetch 2 article(s).")
	assert.Contains(t, obs.messages, "Successfully fetched 3 articles.")
	assert.Contains(t, obs.messages, "Exporting results...")
	assert.Equal(t, "All operations completed in 0m 0s.", obs.messages[len(obs.messages)-1])

	assert.Equal(t, []domain.RunStatus{
		domain.RunStatusSearching,
		domain.RunStatusFetching,
		domain.RunStatusExporting,
		domain.RunStatusCompleted,
	}, obs.statuses)
	assert.Len(t, obs.progress, 5)
}

func TestRunner_InvalidParamsBeforeNetwork(t *testing.T) {
	src := &fakeSource{ids: []string{"1"}}
	params := validParams()
	params.StartYear = "1808"

	report, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), params, nil)

	assert.Nil(t, report)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "start_year", cfgErr.Field)
	assert.Equal(t, int32(0), src.searches.Load())
}

func TestRunner_EmptyDiscovery(t *testing.T) {
	tests := []struct {
		name      string
		src       *fakeSource
		wantCause error
	}{
		{"no ids", &fakeSource{}, domain.ErrNoResults},
		{"no results error", &fakeSource{searchErr: domain.ErrNoResults}, domain.ErrNoResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			_, err := newTestRunner(tt.src, RunnerConfig{}).Run(context.Background(), validParams(), obs)

			var discErr *domain.DiscoveryError
			require.ErrorAs(t, err, &discErr)
			assert.ErrorIs(t, err, domain.ErrDiscovery)
			assert.ErrorIs(t, err, tt.wantCause)
			assert.Contains(t, obs.messages, "No articles found matching your criteria.")
			assert.Equal(t, int32(0), tt.src.calls.Load())
		})
	}
}

func TestRunner_DiscoveryAPIError(t *testing.T) {
	src := &fakeSource{searchErr: domain.NewExternalAPIError("PubMed", 500, "down", nil)}

	_, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), validParams(), nil)

	assert.ErrorIs(t, err, domain.ErrDiscovery)
	var apiErr *domain.ExternalAPIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestRunner_AllFetchesFail(t *testing.T) {
	src := &fakeSource{ids: []string{"1", "2"}}
	src.nilFor = map[string]bool{"1": true, "2": true}
	obs := &recordingObserver{}

	_, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), validParams(), obs)

	var emptyErr *domain.EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 2, emptyErr.Attempted)
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
	assert.Contains(t, obs.messages, "Failed to fetch article details.")
	assert.Equal(t, domain.RunStatusFailed, obs.statuses[len(obs.statuses)-1])
}

func TestRunner_Confirm(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		src := &fakeSource{ids: []string{"1", "2"}}
		obs := &recordingObserver{}
		var asked int
		cfg := RunnerConfig{Confirm: func(_ context.Context, n int) bool {
			asked = n
			return false
		}}

		_, err := newTestRunner(src, cfg).Run(context.Background(), validParams(), obs)

		assert.ErrorIs(t, err, domain.ErrAborted)
		assert.Equal(t, 2, asked)
		assert.Equal(t, int32(0), src.calls.Load())
		assert.Contains(t, obs.messages, "Operation cancelled by user.")
		assert.Equal(t, domain.RunStatusAborted, obs.statuses[len(obs.statuses)-1])
	})

	t.Run("accepted", func(t *testing.T) {
		src := &fakeSource{ids: []string{"1"}}
		cfg := RunnerConfig{Confirm: func(context.Context, int) bool { return true }}

		report, err := newTestRunner(src, cfg).Run(context.Background(), validParams(), nil)

		require.NoError(t, err)
		assert.Len(t, report.Result.Articles, 1)
	})
}

func TestRunner_APIKey(t *testing.T) {
	t.Run("rejected key stops before search", func(t *testing.T) {
		src := &fakeSource{ids: []string{"1"}, apiKey: true, keyErr: domain.ErrUnauthorized}
		obs := &recordingObserver{}

		_, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), validParams(), obs)

		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Equal(t, int32(0), src.searches.Load())
		assert.Contains(t, obs.messages, "Validating API key...")
	})

	t.Run("valid key", func(t *testing.T) {
		src := &fakeSource{ids: []string{"1"}, apiKey: true}
		obs := &recordingObserver{}

		_, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), validParams(), obs)

		require.NoError(t, err)
		assert.Contains(t, obs.messages, "API key is valid.")
	})
}

func TestRunner_PassesSearchParams(t *testing.T) {
	src := &fakeSource{ids: []string{"1"}}
	params := Params{Query: " covid ", StartYear: "2020", EndYear: "2021", MaxParallel: 4}

	_, err := newTestRunner(src, RunnerConfig{}).Run(context.Background(), params, nil)
	require.NoError(t, err)

	assert.Equal(t, pubmed.SearchParams{Query: "covid", StartYear: "2020", EndYear: "2021"}, src.lastSearch)
}

func TestRunner_Metrics(t *testing.T) {
	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	src := &fakeSource{ids: []string{"1", "2"}}

	_, err := newTestRunner(src, RunnerConfig{Metrics: metrics}).Run(context.Background(), validParams(), nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsCompleted))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.IDsDiscovered))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RecordsFetched))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Exports.WithLabelValues("csv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Exports.WithLabelValues("bib")))
}

func TestConfirmPrompt(t *testing.T) {
	assert.Equal(t, "Found 12,345 articles. Do you want to continue fetching their details?", ConfirmPrompt(12345))
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
		{-123456, "-123,456"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCount(tt.n))
		})
	}
}
