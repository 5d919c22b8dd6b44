package services

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/internal/lamp"
)

// DefaultStatusMaxAge is how long an observed status stays fresh without a
// newer report.
const DefaultStatusMaxAge = 2 * time.Minute

// StatusSource says where a snapshot came from.
type StatusSource string

const (
	SourceLive StatusSource = "live"
	SourceAPI  StatusSource = "api"
)

// StatusFetcher is the part of the lamp API the tracker needs.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (*lamp.Status, error)
}

// StatusSnapshot is the last known lamp status. When Stale is set the
// values are the last ones actually reported, never invented ones.
type StatusSnapshot struct {
	Status     lamp.Status
	Source     StatusSource
	ObservedAt time.Time
	Stale      bool
	LastError  error
}

// StatusTracker keeps the last known lamp status from live pushes and API
// polls.
type StatusTracker struct {
	mu       sync.RWMutex
	snapshot StatusSnapshot
	known    bool

	fetcher StatusFetcher
	clock   clockwork.Clock
	maxAge  time.Duration
	logger  *zap.Logger
}

func NewStatusTracker(fetcher StatusFetcher, clock clockwork.Clock, maxAge time.Duration, logger *zap.Logger) *StatusTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxAge <= 0 {
		maxAge = DefaultStatusMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusTracker{
		fetcher: fetcher,
		clock:   clock,
		maxAge:  maxAge,
		logger:  logger.Named("status"),
	}
}

// Observe records a status report and returns the previous one, if any.
func (st *StatusTracker) Observe(status lamp.Status, source StatusSource) (lamp.Status, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	previous, hadPrevious := st.snapshot.Status, st.known
	st.snapshot = StatusSnapshot{
		Status:     status,
		Source:     source,
		ObservedAt: st.clock.Now(),
	}
	st.known = true
	return previous, hadPrevious
}

// MarkStale flags the current snapshot as no longer trustworthy, e.g. after
// the live connection dropped.
func (st *StatusTracker) MarkStale(reason error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.known {
		return
	}
	st.snapshot.Stale = true
	if reason != nil {
		st.snapshot.LastError = reason
	}
}

// Snapshot returns the last known status. ok is false if nothing has been
// observed yet.
func (st *StatusTracker) Snapshot() (snapshot StatusSnapshot, ok bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	snapshot = st.snapshot
	if st.known && st.clock.Since(snapshot.ObservedAt) > st.maxAge {
		snapshot.Stale = true
	}
	return snapshot, st.known
}

// Refresh polls the API. On failure the previous snapshot is kept, marked
// stale and returned together with the error.
func (st *StatusTracker) Refresh(ctx context.Context) (StatusSnapshot, error) {
	status, err := st.fetcher.FetchStatus(ctx)
	if err != nil {
		st.logger.Warn("Failed to refresh lamp status", zap.Error(err))
		st.MarkStale(err)
		snapshot, _ := st.Snapshot()
		return snapshot, err
	}

	st.Observe(*status, SourceAPI)
	snapshot, _ := st.Snapshot()
	return snapshot, nil
}
