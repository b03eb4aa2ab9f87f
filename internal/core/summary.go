package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates a collection of transactions.
type Summary struct {
	Income  decimal.Decimal // sum of positive amounts
	Expense decimal.Decimal // sum of negative amounts, kept negative
	Balance decimal.Decimal
	Count   int
}

// Sum returns the arithmetic sum of the amounts, zero for no records.
func Sum(records []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// Summarize splits the records into income and expense totals.
// Balance always equals Sum(records).
func Summarize(records []Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero, Count: len(records)}
	for _, r := range records {
		switch {
		case r.Amount.IsPositive():
			s.Income = s.Income.Add(r.Amount)
		case r.Amount.IsNegative():
			s.Expense = s.Expense.Add(r.Amount)
		}
		s.Balance = s.Balance.Add(r.Amount)
	}
	return s
}

// SortByTimestampDesc returns a copy of records, newest first. Timestamps
// that do not parse sort last; ties keep input order.
func SortByTimestampDesc(records []Transaction, loc *time.Location) []Transaction {
	type keyed struct {
		rec Transaction
		at  time.Time
		ok  bool
	}
	items := make([]keyed, len(records))
	for i, r := range records {
		at, ok := ParseTimestamp(r.Timestamp, loc)
		items[i] = keyed{rec: r, at: at, ok: ok}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.at.After(b.at)
	})
	out := make([]Transaction, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}
