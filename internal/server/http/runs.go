package httpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/harvest"
)

// subscriberBuffer is the per-stream event queue length.
const subscriberBuffer = 64

// RunStore keeps harvest runs in memory for the lifetime of the process.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*harvestRun
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]*harvestRun)}
}

// Len returns the number of stored runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *RunStore) create(params harvest.Params, maxRecords int, now time.Time) *harvestRun {
	r := &harvestRun{
		id:         uuid.New(),
		params:     params,
		maxRecords: maxRecords,
		status:     domain.RunStatusPending,
		failedIDs:  []string{},
		createdAt:  now,
		subs:       make(map[chan sseEvent]struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	s.mu.Lock()
	s.runs[r.id] = r
	s.mu.Unlock()
	return r
}

func (s *RunStore) get(id uuid.UUID) (*harvestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("harvest run", id.String())
	}
	return r, nil
}

// list returns snapshots of every run, newest first.
func (s *RunStore) list() []runView {
	s.mu.RLock()
	views := make([]runView, 0, len(s.runs))
	for _, r := range s.runs {
		views = append(views, r.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

// harvestRun is the mutable state of one harvest. It implements harvest.Observer,
// harvest.StatusObserver and harvest.Confirmer and fans events out to
// progress stream subscribers.
type harvestRun struct {
	id         uuid.UUID
	params     harvest.Params
	maxRecords int

	mu          sync.RWMutex
	status      domain.RunStatus
	total       int
	processed   int
	failedIDs   []string
	errMsg      string
	abortReason string
	lastMessage string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	report      *harvest.Report

	subs map[chan sseEvent]struct{}
	done chan struct{}
	now  func() time.Time
}

// runView is an immutable snapshot of a run.
type runView struct {
	ID          uuid.UUID
	Params      harvest.Params
	Status      domain.RunStatus
	Total       int
	Processed   int
	Fetched     int
	FailedIDs   []string
	Error       string
	LastMessage string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Elapsed     time.Duration
}

// percent is the settled share of the run; zero until discovery reports a total.
func (v runView) percent() int {
	if v.Total == 0 {
		return 0
	}
	return harvest.Percent(v.Processed, v.Total)
}

func (r *harvestRun) snapshot() runView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewLocked()
}

func (r *harvestRun) viewLocked() runView {
	v := runView{
		ID:          r.id,
		Params:      r.params,
		Status:      r.status,
		Total:       r.total,
		Processed:   r.processed,
		FailedIDs:   append([]string(nil), r.failedIDs...),
		Error:       r.errMsg,
		LastMessage: r.lastMessage,
		CreatedAt:   r.createdAt,
		StartedAt:   r.startedAt,
		CompletedAt: r.completedAt,
	}
	if r.report != nil {
		v.Fetched = len(r.report.Result.Articles)
		v.Elapsed = r.report.Elapsed
	}
	return v
}

// export returns the payload for format once the run has completed.
func (r *harvestRun) export(format string) ([]byte, domain.RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.status != domain.RunStatusCompleted || r.report == nil {
		return nil, r.status, false
	}
	if format == failedFormat {
		return []byte(r.report.FailedIDsText), r.status, true
	}
	payload, ok := r.report.Exports[format]
	return payload, r.status, ok
}

// subscribe registers a progress stream. The returned snapshot and channel
// are taken atomically so no event between them is lost.
func (r *harvestRun) subscribe() (runView, <-chan sseEvent, func()) {
	ch := make(chan sseEvent, subscriberBuffer)

	r.mu.Lock()
	view := r.viewLocked()
	if !view.Status.IsTerminal() {
		r.subs[ch] = struct{}{}
	}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
	}
	return view, ch, cancel
}

// publishLocked delivers ev to every subscriber without blocking. Callers
// hold r.mu.
func (r *harvestRun) publishLocked(ev sseEvent) {
	ev.RunID = r.id.String()
	ev.Timestamp = r.now()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow reader; the stream catches up from the final snapshot.
		}
	}
}

// start marks the run as started.
func (r *harvestRun) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.startedAt = &now
}

// OnProgress implements harvest.Observer.
func (r *harvestRun) OnProgress(processed, total int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Settles notify concurrently, so a lower count can arrive late.
	if total == r.total && processed <= r.processed {
		return
	}
	r.processed, r.total = processed, total
	r.publishLocked(sseEvent{
		EventType: eventProgress,
		Status:    string(r.status),
		Processed: processed,
		Total:     total,
		Percent:   harvest.Percent(processed, total),
	})
}

// OnMessage implements harvest.Observer.
func (r *harvestRun) OnMessage(text string, sev domain.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastMessage = text
	r.publishLocked(sseEvent{
		EventType: eventMessage,
		Status:    string(r.status),
		Message:   text,
		Severity:  string(sev),
	})
}

// OnStatus implements harvest.StatusObserver. Terminal statuses are applied
// by finish, once the report is available.
func (r *harvestRun) OnStatus(status domain.RunStatus) {
	if status.IsTerminal() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status
	r.publishLocked(sseEvent{
		EventType: eventStatus,
		Status:    string(status),
		Message:   "status: " + string(status),
	})
}

// Confirm implements harvest.Confirmer: runs started with max_records abort
// when discovery finds more identifiers.
func (r *harvestRun) Confirm(_ context.Context, n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total = n
	if r.maxRecords > 0 && n > r.maxRecords {
		r.abortReason = fmt.Sprintf("discovery found %d records, more than max_records %d", n, r.maxRecords)
		return false
	}
	return true
}

// finish records the final outcome, emits the terminal event and closes
// every stream.
func (r *harvestRun) finish(report *harvest.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.completedAt = &now
	r.report = report

	switch {
	case err == nil:
		r.status = domain.RunStatusCompleted
		r.failedIDs = append([]string{}, report.Result.FailedIDs...)
	case errors.Is(err, domain.ErrAborted):
		r.status = domain.RunStatusAborted
		r.errMsg = err.Error()
		if r.abortReason != "" {
			r.errMsg = r.abortReason
		}
	default:
		r.status = domain.RunStatusFailed
		r.errMsg = err.Error()
	}

	view := r.viewLocked()
	r.publishLocked(sseEvent{
		EventType: string(r.status),
		Status:    string(r.status),
		Processed: view.Processed,
		Total:     view.Total,
		Percent:   view.percent(),
		Fetched:   view.Fetched,
		FailedIDs: view.FailedIDs,
		Message:   "run finished with status: " + string(r.status),
	})

	for ch := range r.subs {
		delete(r.subs, ch)
	}
	close(r.done)
}
