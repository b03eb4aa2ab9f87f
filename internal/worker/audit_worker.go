// Package worker consumes transaction events outside the web process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/cache"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

const (
	// seenEvents bounds the event ids remembered for redelivery detection.
	seenEvents = 10000
	seenTTL    = time.Hour
)

// Snapshot is the state of the projection at one instant.
type Snapshot struct {
	Balance    decimal.Decimal
	Count      int
	Processed  int64
	Duplicates int64
}

// AuditWorker keeps a projection of transaction id to amount built from the
// event stream and logs every event with the running balance.
type AuditWorker struct {
	consumer ports.EventConsumer
	logger   *applog.Logger
	seen     *cache.LRUCache[struct{}]

	mu      sync.Mutex
	amounts map[int64]decimal.Decimal
	balance decimal.Decimal

	processed  atomic.Int64
	duplicates atomic.Int64
}

func NewAuditWorker(consumer ports.EventConsumer, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.Nop()
	}
	return &AuditWorker{
		consumer: consumer,
		logger:   logger.WithComponent(applog.ComponentWorker),
		seen:     cache.NewLRUCache[struct{}](seenEvents, seenTTL),
		amounts:  make(map[int64]decimal.Decimal),
		balance:  decimal.Zero,
	}
}

// HandleEvent applies one event to the projection. Redelivered events (same
// non-empty event id) are skipped.
func (w *AuditWorker) HandleEvent(ctx context.Context, e events.TransactionEvent) error {
	key := e.ID
	if _, dup := w.seen.Get(key); dup && key != "" {
		w.duplicates.Add(1)
		w.logger.DebugContext(ctx, "Skipping redelivered event",
			applog.FieldEventID, key,
			applog.FieldEventType, string(e.Type),
		)
		return nil
	}

	w.mu.Lock()
	id := e.Transaction.ID
	old, had := w.amounts[id]
	switch e.Type {
	case events.TransactionCreated, events.TransactionUpdated:
		w.amounts[id] = e.Transaction.Amount
		w.balance = w.balance.Sub(old).Add(e.Transaction.Amount)
	case events.TransactionDeleted:
		if had {
			delete(w.amounts, id)
			w.balance = w.balance.Sub(old)
		}
	default:
		w.mu.Unlock()
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	balance := w.balance
	count := len(w.amounts)
	w.mu.Unlock()

	if key != "" {
		w.seen.Set(key, struct{}{})
	}
	w.processed.Add(1)

	w.logger.InfoContext(ctx, "Transaction event audited",
		applog.FieldOperation, applog.OpConsume,
		applog.FieldEventID, key,
		applog.FieldEventType, string(e.Type),
		applog.FieldTxID, id,
		applog.FieldTxTitle, e.Transaction.Title,
		applog.FieldAmount, e.Transaction.Amount.String(),
		applog.FieldBalance, balance.StringFixed(2),
		applog.FieldCount, count,
		"occurred_at", e.OccurredAt.Format(time.RFC3339),
	)
	return nil
}

func (w *AuditWorker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Balance:    w.balance,
		Count:      len(w.amounts),
		Processed:  w.processed.Load(),
		Duplicates: w.duplicates.Load(),
	}
}

// Run consumes events until ctx is cancelled, logging a summary every
// reportEvery (no summary when zero). Cancellation is not an error.
func (w *AuditWorker) Run(ctx context.Context, reportEvery time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := w.consumer.Consume(gctx, w.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume transaction events: %w", err)
		}
		return nil
	})

	if reportEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(reportEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					s := w.Snapshot()
					w.logger.InfoContext(gctx, "Audit projection summary",
						applog.FieldBalance, s.Balance.StringFixed(2),
						applog.FieldCount, s.Count,
						"processed", s.Processed,
						"duplicates", s.Duplicates,
						"seen_cache", w.seen.Size(),
					)
				}
			}
		})
	}

	return g.Wait()
}
