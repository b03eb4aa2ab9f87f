package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
	"bilancio/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var june15 = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, pub *recordingPublisher, records ...core.Transaction) *TransactionService {
	t.Helper()
	store, err := memory.New(records...)
	require.NoError(t, err)
	return NewTransactionService(store, applog.Nop(),
		WithPublisher(pub),
		WithClock(func() time.Time { return june15 }),
	)
}

func TestCreateAssignsIDAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub, core.DemoTransactions()...)

	got, err := svc.Create(context.Background(), core.RawFields{Title: "Coffee", Amount: "-4.5", Timestamp: "2024-01-01T08:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.ID)
	assert.Equal(t, "-4.5", got.Amount.String())

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TransactionCreated, pub.events[0].Type)
	assert.Equal(t, got, pub.events[0].Transaction)
	assert.Equal(t, int64(1), svc.Stats().Created)
}

func TestCreateRejectsBadAmountWithoutMutation(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub, core.DemoTransactions()...)

	_, err := svc.Create(context.Background(), core.RawFields{Title: "Coffee", Amount: "abc"})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)

	view, err := svc.View(context.Background(), core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, view.Total)
	assert.Empty(t, pub.events)
}

func TestUpdateReplacesRecord(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub, core.DemoTransactions()...)
	ctx := context.Background()

	got, err := svc.Update(ctx, 3, core.RawFields{Title: "Market", Amount: "-210.40", Timestamp: "2023-06-03T18:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)

	stored, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Market", stored.Title)
	assert.Equal(t, "-210.4", stored.Amount.String())
	assert.Equal(t, []events.Type{events.TransactionUpdated}, pub.types())
}

func TestUpdateMissingIDIsNotFound(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub, core.DemoTransactions()...)

	_, err := svc.Update(context.Background(), 99, core.RawFields{Title: "x", Amount: "1"})
	var nf *core.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, pub.events)
}

func TestDeleteIsIdempotentAndPublishesOnce(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub, core.DemoTransactions()...)
	ctx := context.Background()

	removed, err := svc.Delete(ctx, 2)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Delete(ctx, 2)
	require.NoError(t, err)
	assert.False(t, removed)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TransactionDeleted, pub.events[0].Type)
	assert.Equal(t, "Rent", pub.events[0].Transaction.Title)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, pub)

	got, err := svc.Create(context.Background(), core.RawFields{Title: "Salary", Amount: "5000", Timestamp: "2024-06-01T09:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, int64(1), svc.Stats().PublishFailures)
}

func TestMutationsPublishAfterRequestIsCancelled(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := svc.Create(ctx, core.RawFields{Title: "Coffee", Amount: "-4.5", Timestamp: "2024-06-01T08:00"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, got.ID, core.RawFields{Title: "Tea", Amount: "-3", Timestamp: "2024-06-01T08:00"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, got.ID)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{events.TransactionCreated, events.TransactionUpdated, events.TransactionDeleted}, pub.types())
	assert.Zero(t, svc.Stats().PublishFailures)
}

func TestViewFiltersSortsAndSummarizes(t *testing.T) {
	svc := newService(t, &recordingPublisher{},
		core.Transaction{ID: 1, Title: "Salary", Amount: mustAmount(t, "5000"), Timestamp: "2024-06-01T09:00"},
		core.Transaction{ID: 2, Title: "Rent", Amount: mustAmount(t, "-1500"), Timestamp: "2024-06-02T10:30"},
		core.Transaction{ID: 3, Title: "Old", Amount: mustAmount(t, "-20"), Timestamp: "2023-01-01T10:00"},
		core.Transaction{ID: 4, Title: "Future", Amount: mustAmount(t, "70"), Timestamp: "2024-07-01T10:00"},
	)
	ctx := context.Background()

	all, err := svc.View(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2, 1, 3}, idsOf(all.Transactions))
	assert.Equal(t, "3550", all.Summary.Balance.String())
	assert.Equal(t, 4, all.Summary.Count)

	month, err := svc.View(ctx, core.Filter{Period: core.PeriodMonth})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, idsOf(month.Transactions))
	assert.Equal(t, "5000", month.Summary.Income.String())
	assert.Equal(t, "-1500", month.Summary.Expense.String())
	assert.Equal(t, "3500", month.Summary.Balance.String())
	assert.Equal(t, 4, month.Total)

	income, err := svc.View(ctx, core.Filter{Direction: core.DirectionIncome, Period: core.PeriodAll})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 1}, idsOf(income.Transactions))
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	svc := newService(t, &recordingPublisher{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, core.RawFields{Title: "t", Amount: "1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := svc.View(ctx, core.Filter{})
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, id := range idsOf(view.Transactions) {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 25)
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := core.ParseAmount(s)
	require.NoError(t, err)
	return d
}

func idsOf(records []core.Transaction) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
