package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

// View is the filtered, display-ordered slice of the working set.
type View struct {
	Filter       core.Filter
	Transactions []core.Transaction // newest first
	Summary      core.Summary       // of Transactions only
	Total        int                // records in the store, before filtering
	Now          time.Time
}

// Stats counts mutations since start.
type Stats struct {
	Created         int64
	Updated         int64
	Deleted         int64
	PublishFailures int64
}

// TransactionService is the single writer of the transaction store. Form
// input is validated here, the store is mutated under one lock, and an event
// is published once the mutation has been applied.
type TransactionService struct {
	mu        sync.Mutex
	store     ports.TransactionStore
	publisher ports.EventPublisher
	logger    *applog.Logger
	now       func() time.Time

	created         atomic.Int64
	updated         atomic.Int64
	deleted         atomic.Int64
	publishFailures atomic.Int64
}

// Option customises a TransactionService.
type Option func(*TransactionService)

// WithClock replaces time.Now, which decides the period windows.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

// WithPublisher sets where mutation events go. Nil keeps the no-op publisher.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *TransactionService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func NewTransactionService(store ports.TransactionStore, logger *applog.Logger, opts ...Option) *TransactionService {
	if logger == nil {
		logger = applog.Nop()
	}
	s := &TransactionService{
		store:     store,
		publisher: events.Nop{},
		logger:    logger.WithComponent(applog.ComponentTx),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates fields and appends a new record with the next free id.
func (s *TransactionService) Create(ctx context.Context, fields core.RawFields) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := core.BuildRecord(fields, nil, s.store)
	if err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.Insert(ctx, rec)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	s.created.Add(1)
	s.logChange(ctx, applog.OpCreate, saved)
	s.publish(ctx, events.TransactionCreated, saved)
	return saved, nil
}

// Update replaces the whole record stored under id.
func (s *TransactionService) Update(ctx context.Context, id int64, fields core.RawFields) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	rec, err := core.BuildRecord(fields, &existing, nil)
	if err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.Update(ctx, id, rec)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.updated.Add(1)
	s.logChange(ctx, applog.OpUpdate, saved)
	s.publish(ctx, events.TransactionUpdated, saved)
	return saved, nil
}

// Delete removes the record stored under id. A missing id is not an error;
// removed is false and nothing is published.
func (s *TransactionService) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Get(ctx, id)
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if !removed {
		return false, nil
	}

	s.deleted.Add(1)
	s.logChange(ctx, applog.OpDelete, existing)
	s.publish(ctx, events.TransactionDeleted, existing)
	return true, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.Get(ctx, id)
}

// View filters the working set, orders it newest first and totals it.
func (s *TransactionService) View(ctx context.Context, f core.Filter) (View, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return View{}, fmt.Errorf("list transactions: %w", err)
	}
	now := s.now()
	visible := core.SortByTimestampDesc(core.Apply(records, f, now), now.Location())

	s.logger.DebugContext(ctx, "Transactions filtered",
		applog.FieldOperation, applog.OpFilter,
		"amount_bucket", string(f.Amount),
		"direction", string(f.Direction),
		"period", string(f.Period),
		applog.FieldCount, len(visible),
	)

	return View{
		Filter:       f,
		Transactions: visible,
		Summary:      core.Summarize(visible),
		Total:        len(records),
		Now:          now,
	}, nil
}

func (s *TransactionService) Stats() Stats {
	return Stats{
		Created:         s.created.Load(),
		Updated:         s.updated.Load(),
		Deleted:         s.deleted.Load(),
		PublishFailures: s.publishFailures.Load(),
	}
}

func (s *TransactionService) logChange(ctx context.Context, op string, t core.Transaction) {
	applog.NewStructuredLogger(s.logger).LogTransactionChanged(ctx, op,
		applog.NewFields().WithTransaction(t.ID, t.Title, t.Amount, t.Timestamp))
}

// publish never fails the caller: the mutation is already applied. The event
// outlives the request, so cancellation of ctx is dropped; publishers bound
// the call with their own timeout.
func (s *TransactionService) publish(ctx context.Context, typ events.Type, t core.Transaction) {
	e := events.NewTransactionEvent(typ, t)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.publishFailures.Add(1)
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldEventID, e.ID,
			applog.FieldEventType, string(typ),
			applog.FieldTxID, t.ID,
			applog.FieldError, err,
		)
	}
}
