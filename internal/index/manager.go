package index

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/store"
)

// queueDepth bounds how many sources can wait for a worker before
// Submit starts blocking.
const queueDepth = 128

// Progress is a snapshot of the manager's work so far.
type Progress struct {
	Submitted int `json:"submitted"`
	Indexed   int `json:"indexed"`
	Partial   int `json:"partial"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// Manager runs indexing jobs on a worker pool and owns index lifecycle
// operations: source removal and the retry pass over partial sources.
type Manager struct {
	indexer *Indexer
	vs      store.VectorStore
	logger  *slog.Logger
	workers int

	queue chan store.SourceItem
	done  chan struct{}
	group *errgroup.Group

	submits sync.WaitGroup

	mu       sync.Mutex
	progress Progress
	closed   bool
}

// NewManager creates a manager running the given number of concurrent
// indexing workers. Start must be called before Submit.
func NewManager(indexer *Indexer, vs store.VectorStore, workers int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		indexer: indexer,
		vs:      vs,
		logger:  logger,
		workers: workers,
		queue:   make(chan store.SourceItem, queueDepth),
		done:    make(chan struct{}),
	}
	m.group = &errgroup.Group{}
	return m
}

// Start launches the worker pool. Workers drain the queue until Close
// is called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for i := 0; i < m.workers; i++ {
		m.group.Go(func() error {
			m.runWorker(ctx)
			return nil
		})
	}
}

func (m *Manager) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-m.queue:
			if !ok {
				return
			}
			m.handle(ctx, item)
		}
	}
}

func (m *Manager) handle(ctx context.Context, item store.SourceItem) {
	report, err := m.indexer.IndexSource(ctx, item)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress.Pending--
	switch {
	case report == nil:
		m.progress.Failed++
		m.logger.Error("indexing aborted", "source_id", item.ID, "error", err)
	case report.Outcome == OutcomeIndexed:
		m.progress.Indexed++
	case report.Outcome == OutcomePartial:
		// Counts interrupted runs too; their completed chunks are
		// committed and the report says so even when err is non-nil.
		m.progress.Partial++
	case report.Outcome == OutcomeSkipped:
		m.progress.Skipped++
	default:
		m.progress.Failed++
	}
}

// Submit queues a source for indexing. It blocks when the queue is
// full and fails after Close. A Submit blocked on a full queue when
// Close is called is released with an error rather than panicking on
// the closing queue.
func (m *Manager) Submit(item store.SourceItem) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return recallerr.InternalError("index manager is closed", nil)
	}
	m.submits.Add(1)
	m.progress.Submitted++
	m.progress.Pending++
	m.mu.Unlock()
	defer m.submits.Done()

	select {
	case m.queue <- item:
		return nil
	case <-m.done:
		m.mu.Lock()
		m.progress.Submitted--
		m.progress.Pending--
		m.mu.Unlock()
		return recallerr.InternalError("index manager is closed", nil)
	}
}

// Remove deletes a source's chunks, embeddings, and metadata. Removing
// an unknown source is a no-op.
func (m *Manager) Remove(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return recallerr.New(recallerr.ErrCodeSourceEmpty, "source ID must not be empty", nil)
	}
	if err := m.vs.DeleteBySource(ctx, sourceID); err != nil {
		return err
	}
	m.logger.Info("source removed", "source_id", sourceID)
	return nil
}

// RetryPartials runs a retry pass over every partially indexed source,
// re-embedding only the chunks that failed. Returns the number of
// sources now fully indexed.
func (m *Manager) RetryPartials(ctx context.Context) (int, error) {
	metas, err := m.vs.ListMeta(ctx)
	if err != nil {
		return 0, err
	}

	healed := 0
	for _, meta := range metas {
		if meta.Status != store.StatusPartial {
			continue
		}
		report, err := m.indexer.RetryPartial(ctx, meta.SourceID)
		if err != nil {
			return healed, err
		}
		if report.Outcome == Outcome(store.StatusIndexed) {
			healed++
		}
	}
	return healed, nil
}

// Progress returns a snapshot of the work counters.
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Close stops accepting new work and waits for queued jobs to drain.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// Release Submits blocked on a full queue, then wait for every
	// in-flight Submit to leave the queue alone before closing it.
	close(m.done)
	m.submits.Wait()
	close(m.queue)
	return m.group.Wait()
}
