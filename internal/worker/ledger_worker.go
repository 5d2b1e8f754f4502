// Package worker runs the ingestion loop: it pulls decoded events from a
// source in order and applies them through the ledger engine, one at a time.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/ledger"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/retry"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// EventSource delivers decoded events in (block, log index) order. Next
// returns up to limit events past the given position; an empty slice means
// the source is caught up.
type EventSource interface {
	Next(ctx context.Context, after types.EventContext, limit int) ([]*types.Event, error)
}

// LedgerWorker drives the single-writer ingestion loop. Ordering is enforced
// against the persisted cursor, so a crashed or restarted worker resumes
// exactly where the last committed event left off and replayed events are
// skipped.
type LedgerWorker struct {
	log          *logging.Logger
	engine       *ledger.Engine
	store        storage.Store
	source       EventSource
	pollInterval time.Duration
	batchSize    int
	limiter      *rate.Limiter
	retryCfg     *retry.RetryConfig

	running bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	doneCh  chan struct{}

	cursor     types.EventContext
	haveCursor bool

	eventsApplied uint64
	eventsSkipped uint64
	eventsFailed  uint64
}

// LedgerWorkerConfig holds configuration for a ledger worker
type LedgerWorkerConfig struct {
	Log             *logging.Logger
	Engine          *ledger.Engine
	Store           storage.Store
	Source          EventSource
	PollInterval    time.Duration
	BatchSize       int
	EventsPerSecond float64
}

// NewLedgerWorker creates a ledger worker
func NewLedgerWorker(cfg *LedgerWorkerConfig) (*LedgerWorker, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	eps := cfg.EventsPerSecond
	if eps <= 0 {
		eps = 200
	}
	log := cfg.Log
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo, logging.FormatJSON)
	}

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.Retryable = lerrors.IsRetryable

	return &LedgerWorker{
		log:          log.WithField("component", "ledger_worker"),
		engine:       cfg.Engine,
		store:        cfg.Store,
		source:       cfg.Source,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		limiter:      rate.NewLimiter(rate.Limit(eps), batchSize),
		retryCfg:     retryCfg,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start loads the persisted cursor and begins the polling loop
func (w *LedgerWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("ledger worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.loadCursor(ctx); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	if w.haveCursor {
		w.log.WithFields(map[string]interface{}{
			"block":    w.cursor.BlockNumber,
			"logIndex": w.cursor.LogIndex,
			"runId":    w.engine.RunID(),
		}).Info("resuming from persisted cursor")
	} else {
		w.log.WithField("runId", w.engine.RunID()).Info("no cursor found, starting from the beginning")
	}

	go w.pollLoop(ctx)
	return nil
}

// Stop signals the polling loop to exit and waits for it
func (w *LedgerWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

func (w *LedgerWorker) loadCursor(ctx context.Context) error {
	uow, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	cursor, found, err := uow.Cursor(ctx)
	if err != nil {
		return err
	}
	if found {
		w.cursor = types.EventContext{
			BlockNumber: cursor.BlockNumber,
			LogIndex:    cursor.LogIndex,
		}
		w.haveCursor = true
	}
	return nil
}

func (w *LedgerWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Drain immediately on start, then on every tick.
	w.drain(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain applies batches until the source is caught up or a batch fails
func (w *LedgerWorker) drain(ctx context.Context) {
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		events, err := w.source.Next(ctx, w.cursor, w.batchSize)
		if err != nil {
			w.log.WithError(err).Warn("event source poll failed")
			return
		}
		if len(events) == 0 {
			return
		}

		for _, ev := range events {
			if !w.apply(ctx, ev) {
				return
			}
		}
	}
}

// apply processes one event, returning false when the drain should stop
func (w *LedgerWorker) apply(ctx context.Context, ev *types.Event) bool {
	if w.haveCursor && !w.cursor.Before(ev.Context) {
		w.bump(&w.eventsSkipped)
		w.log.WithFields(map[string]interface{}{
			"block":    ev.Context.BlockNumber,
			"logIndex": ev.Context.LogIndex,
		}).Debug("skipping already-applied event")
		return true
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return false
	}

	result := retry.WithExponentialBackoff(ctx, w.retryCfg, func(ctx context.Context, attempt int) error {
		return w.engine.ProcessEvent(ctx, ev)
	})
	if !result.Success {
		w.bump(&w.eventsFailed)
		lerr := lerrors.Categorize(result.LastError)
		w.log.WithFields(map[string]interface{}{
			"kind":     string(ev.Kind),
			"block":    ev.Context.BlockNumber,
			"logIndex": ev.Context.LogIndex,
			"txHash":   ev.Context.TxHash.Hex(),
			"category": string(lerr.Category),
		}).WithError(result.LastError).Error("event failed, skipping")

		if lerrors.IsRetryable(result.LastError) {
			// Storage is down; stop draining and let the next poll retry
			// from the persisted cursor.
			return false
		}
		// Invariant violations skip just the offending event; the
		// in-memory cursor moves past it so the drain continues.
	} else {
		w.bump(&w.eventsApplied)
	}

	w.cursor = ev.Context
	w.haveCursor = true
	return true
}

func (w *LedgerWorker) bump(counter *uint64) {
	w.mu.Lock()
	*counter++
	w.mu.Unlock()
}

// Stats reports ingestion counters since start
func (w *LedgerWorker) Stats() (applied, skipped, failed uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.eventsApplied, w.eventsSkipped, w.eventsFailed
}
