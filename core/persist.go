package core

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ilievs/pinboard/metrics"
)

// Persister saves dashboard snapshots. Implementations live in storage.
type Persister interface {
	SaveDashboard(ctx context.Context, d *Dashboard) error
}

const defaultPersistTimeout = 5 * time.Second

// PersistQueue saves dirty dashboards in the background. Schedule never
// blocks; repeated schedules of one dashboard collapse into a single save.
type PersistQueue struct {
	store     *Store
	persister Persister
	logger    *slog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	pending map[int]struct{}
	wake    chan struct{}
}

func NewPersistQueue(store *Store, persister Persister, logger *slog.Logger, timeout time.Duration) *PersistQueue {
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistQueue{
		store:     store,
		persister: persister,
		logger:    logger,
		timeout:   timeout,
		pending:   make(map[int]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

func (q *PersistQueue) Schedule(dashID int) {
	q.mu.Lock()
	q.pending[dashID] = struct{}{}
	n := len(q.pending)
	q.mu.Unlock()
	metrics.SetPersistPending(n)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run saves scheduled dashboards until ctx is done, then flushes whatever is
// still dirty.
func (q *PersistQueue) Run(ctx context.Context) {
	for {
		select {
		case <-q.wake:
			q.drain(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), q.timeout)
			if err := q.Flush(flushCtx); err != nil {
				q.logger.Error("final dashboard flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}

func (q *PersistQueue) take() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]int, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	clear(q.pending)
	metrics.SetPersistPending(0)
	slices.Sort(ids)
	return ids
}

func (q *PersistQueue) drain(ctx context.Context) {
	for _, id := range q.take() {
		if err := q.persist(ctx, id); err != nil {
			q.logger.Error("dashboard persist failed", "dashboard", id, "error", err)
		}
	}
}

// Flush saves every dirty dashboard, scheduled or not.
func (q *PersistQueue) Flush(ctx context.Context) error {
	q.take()
	var errs []error
	for _, id := range q.store.IDs() {
		if err := q.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (q *PersistQueue) persist(ctx context.Context, id int) error {
	if !q.store.Dirty(id) {
		return nil
	}
	snapshot, version, err := q.store.Snapshot(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	start := time.Now()
	err = q.persister.SaveDashboard(ctx, snapshot)
	metrics.ObservePersist(err, time.Since(start))
	if err != nil {
		return err
	}
	q.store.MarkSaved(id, version)
	q.logger.Debug("dashboard persisted", "dashboard", id, "version", version)
	return nil
}
