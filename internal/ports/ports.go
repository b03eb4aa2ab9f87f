package ports

import (
	"context"

	"bilancio/internal/core"
	"bilancio/internal/events"
)

// Ports for the transaction core and its outbound adapters.
type (
	// TransactionStore holds the working set of transactions.
	TransactionStore interface {
		core.IDSource
		// Insert appends t, assigning an id when t.ID is zero.
		Insert(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// Update replaces the record with the given id. The stored id is
		// always id, whatever t.ID says.
		Update(ctx context.Context, id int64, t core.Transaction) (core.Transaction, error)
		// Delete removes the record with the given id. Deleting a missing id
		// is not an error; removed reports whether anything changed.
		Delete(ctx context.Context, id int64) (removed bool, err error)
		Get(ctx context.Context, id int64) (core.Transaction, error)
		// List returns every record in insertion order.
		List(ctx context.Context) ([]core.Transaction, error)
	}

	// UserLister is the read-only user directory.
	UserLister interface {
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	// Completer submits a single prompt to a hosted text model.
	Completer interface {
		Complete(ctx context.Context, prompt string) (string, error)
	}

	// EventPublisher announces committed store mutations.
	EventPublisher interface {
		Publish(ctx context.Context, e events.TransactionEvent) error
	}

	// EventConsumer delivers published events to handler until ctx ends.
	EventConsumer interface {
		Consume(ctx context.Context, handler func(context.Context, events.TransactionEvent) error) error
	}
)
