package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type (
	// Transaction is a single signed monetary record. Positive amounts are
	// income, negative amounts are expenses.
	Transaction struct {
		ID        int64           `json:"id"`
		Title     string          `json:"title"`
		Amount    decimal.Decimal `json:"amount"`
		Timestamp string          `json:"timestamp"` // local-naive, kept verbatim
	}

	// ValidationError reports a raw field that could not be converted.
	ValidationError struct {
		Field  string
		Reason string
		Err    error
	}

	// NotFoundError reports an id that is not in the store.
	NotFoundError struct {
		ID int64
	}

	// ConflictError reports an insert with an id that is already taken.
	ConflictError struct {
		ID int64
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUnknownOption = errors.New("unknown option")
)

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %d not found", e.ID)
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %d already exists", e.ID)
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool { return t.Amount.IsPositive() }

// IsExpense reports whether the transaction subtracts from the balance.
func (t Transaction) IsExpense() bool { return t.Amount.IsNegative() }
