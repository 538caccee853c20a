package harvest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/observability"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

const (
	// DefaultBatchSize is the number of identifiers processed per batch.
	DefaultBatchSize = 100

	// DefaultDelayMin and DefaultDelayMax bound the random pre-request delay.
	DefaultDelayMin = 200 * time.Millisecond
	DefaultDelayMax = 500 * time.Millisecond
)

// Fetcher retrieves one raw record by identifier.
type Fetcher interface {
	FetchRaw(ctx context.Context, id string) (*pubmed.PubmedArticle, error)
}

// RecordNormalizer converts a raw record into an Article.
type RecordNormalizer interface {
	Normalize(id string, record *pubmed.PubmedArticle) domain.Article
}

// errEmptyRecord marks a fetch that returned neither a record nor an error.
var errEmptyRecord = errors.New("empty record")

// FetchOutcome is the settled result of one identifier: an Article when Err
// is nil, otherwise the failure cause.
type FetchOutcome struct {
	ID      string
	Article domain.Article
	Err     error
}

// OK reports whether the fetch succeeded.
func (o FetchOutcome) OK() bool {
	return o.Err == nil
}

// Result holds articles and failed identifiers in the order they settled.
type Result struct {
	Articles  []domain.Article
	FailedIDs []string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBatchSize sets the batch size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDelay sets the bounds of the random delay each task waits before its
// request. Zero bounds disable the delay.
func WithDelay(minDelay, maxDelay time.Duration) Option {
	return func(s *Scheduler) {
		if minDelay < 0 {
			minDelay = 0
		}
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		s.delayMin, s.delayMax = minDelay, maxDelay
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = observability.WithComponent(logger, "scheduler")
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithRandom replaces the jitter source. fn must return values in [0, 1)
// and be safe for concurrent use.
func WithRandom(fn func() float64) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.random = fn
		}
	}
}

// Scheduler fetches records with bounded parallelism. Identifiers are split
// into sequential batches; within a batch, groups of maxParallel tasks run
// concurrently and the next group starts only after the whole group settles.
type Scheduler struct {
	fetcher     Fetcher
	normalizer  RecordNormalizer
	maxParallel int
	batchSize   int
	delayMin    time.Duration
	delayMax    time.Duration
	observer    Observer
	logger      zerolog.Logger
	metrics     *observability.Metrics
	random      func() float64
}

// NewScheduler creates a Scheduler. maxParallel is expected to have been
// validated by the caller; values below 1 are treated as 1.
func NewScheduler(fetcher Fetcher, normalizer RecordNormalizer, maxParallel int, opts ...Option) *Scheduler {
	if maxParallel < 1 {
		maxParallel = 1
	}

	s := &Scheduler{
		fetcher:     fetcher,
		normalizer:  normalizer,
		maxParallel: maxParallel,
		batchSize:   DefaultBatchSize,
		delayMin:    DefaultDelayMin,
		delayMax:    DefaultDelayMax,
		observer:    NopObserver{},
		logger:      zerolog.Nop(),
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch retrieves and normalizes every identifier. It always runs to
// completion: per-identifier errors are recorded in Result.FailedIDs and a
// cancelled ctx only makes the remaining requests fail fast.
func (s *Scheduler) Fetch(ctx context.Context, ids []string) Result {
	result := Result{
		Articles:  make([]domain.Article, 0, len(ids)),
		FailedIDs: []string{},
	}
	if len(ids) == 0 {
		return result
	}

	var (
		mu        sync.Mutex
		processed int
		start     = time.Now()
		total     = len(ids)
	)

	// The observer is called outside the lock so a slow one cannot stall
	// other settling tasks.
	settle := func(outcome FetchOutcome) {
		mu.Lock()
		if outcome.OK() {
			result.Articles = append(result.Articles, outcome.Article)
		} else {
			result.FailedIDs = append(result.FailedIDs, outcome.ID)
		}
		processed++
		done := processed
		mu.Unlock()

		s.notifyProgress(done, total, time.Since(start))
	}

	for batchStart := 0; batchStart < total; batchStart += s.batchSize {
		batch := ids[batchStart:min(batchStart+s.batchSize, total)]

		for groupStart := 0; groupStart < len(batch); groupStart += s.maxParallel {
			group := batch[groupStart:min(groupStart+s.maxParallel, len(batch))]

			var wg sync.WaitGroup
			for _, id := range group {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					settle(s.fetchOne(ctx, id))
				}(id)
			}
			wg.Wait()
		}

		s.logger.Debug().
			Int("batch_start", batchStart).
			Int("batch_size", len(batch)).
			Int("processed", processed).
			Msg("batch settled")
	}

	return result
}

// fetchOne waits the jittered delay, then fetches and normalizes one record.
func (s *Scheduler) fetchOne(ctx context.Context, id string) FetchOutcome {
	s.sleep(ctx, s.jitter())

	if s.metrics != nil {
		s.metrics.FetchStarted()
	}
	start := time.Now()

	record, err := s.fetch(ctx, id)
	elapsed := time.Since(start).Seconds()

	if err == nil && record == nil {
		err = errEmptyRecord
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRecordFailed(failureReason(err), elapsed)
		}
		logger := observability.WithRecordContext(s.logger, id)
		logger.Warn().Err(err).Msg("record fetch failed")
		return FetchOutcome{ID: id, Err: err}
	}

	if s.metrics != nil {
		s.metrics.RecordRecordFetched(elapsed)
	}
	return FetchOutcome{ID: id, Article: s.normalizer.Normalize(id, record)}
}

// fetch calls the fetcher, converting a panic into an error so one bad
// record cannot take down the run.
func (s *Scheduler) fetch(ctx context.Context, id string) (record *pubmed.PubmedArticle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return s.fetcher.FetchRaw(ctx, id)
}

func (s *Scheduler) jitter() time.Duration {
	if s.delayMax <= s.delayMin {
		return s.delayMin
	}
	span := float64(s.delayMax - s.delayMin)
	return s.delayMin + time.Duration(s.random()*span)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// notifyProgress reports progress, discarding observer panics.
func (s *Scheduler) notifyProgress(processed, total int, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("progress observer panicked")
		}
	}()
	s.observer.OnProgress(processed, total, elapsed)
}

// failureReason maps a fetch error to a metrics label.
func failureReason(err error) string {
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, errEmptyRecord):
		return "empty"
	default:
		return "transport"
	}
}
