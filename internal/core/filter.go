package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// AmountBucket classifies a transaction by the magnitude of its amount.
	AmountBucket string
	// Direction selects income, expenses or both.
	Direction string
	// Period selects a time window ending at "now".
	Period string

	// Filter is the tuple of predicates applied to the transaction set.
	// The zero value selects everything.
	Filter struct {
		Amount    AmountBucket
		Direction Direction
		Period    Period
	}
)

const (
	AmountAll        AmountBucket = "all"
	AmountUnder100   AmountBucket = "under_100"
	Amount100To1000  AmountBucket = "100_to_1000"
	AmountOver1000   AmountBucket = "over_1000"
	DirectionAll     Direction    = "all"
	DirectionIncome  Direction    = "income"
	DirectionExpense Direction    = "expense"
	PeriodAll        Period       = "all"
	PeriodMonth      Period       = "current_month"
	PeriodLast30     Period       = "last_30_days"
	PeriodLast60     Period       = "last_60_days"
	PeriodLast90     Period       = "last_90_days"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)

	amountBuckets = []AmountBucket{AmountAll, AmountUnder100, Amount100To1000, AmountOver1000}
	directions    = []Direction{DirectionAll, DirectionIncome, DirectionExpense}
	periods       = []Period{PeriodAll, PeriodMonth, PeriodLast30, PeriodLast60, PeriodLast90}

	timestampLayouts = []string{
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// AmountBuckets lists the recognised amount options in display order.
func AmountBuckets() []AmountBucket { return append([]AmountBucket(nil), amountBuckets...) }

// Directions lists the recognised direction options in display order.
func Directions() []Direction { return append([]Direction(nil), directions...) }

// Periods lists the recognised period options in display order.
func Periods() []Period { return append([]Period(nil), periods...) }

// ParseFilter builds a Filter from raw option values. Empty values select
// "all"; anything else unrecognised fails with a ValidationError.
func ParseFilter(amount, direction, period string) (Filter, error) {
	var f Filter
	var err error
	if f.Amount, err = parseOption("amount", amount, amountBuckets); err != nil {
		return Filter{}, err
	}
	if f.Direction, err = parseOption("direction", direction, directions); err != nil {
		return Filter{}, err
	}
	if f.Period, err = parseOption("period", period, periods); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseOption[T ~string](field, raw string, allowed []T) (T, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return allowed[0], nil
	}
	for _, opt := range allowed {
		if string(opt) == raw {
			return opt, nil
		}
	}
	var zero T
	return zero, &ValidationError{Field: field, Reason: fmt.Sprintf("unknown option %q", raw), Err: ErrUnknownOption}
}

// Matches reports whether the absolute amount falls in the bucket.
// Boundaries are inclusive at the floor and exclusive at the ceiling.
func (b AmountBucket) Matches(amount decimal.Decimal) bool {
	abs := amount.Abs()
	switch b {
	case AmountUnder100:
		return abs.LessThan(hundred)
	case Amount100To1000:
		return abs.GreaterThanOrEqual(hundred) && abs.LessThan(thousand)
	case AmountOver1000:
		return abs.GreaterThanOrEqual(thousand)
	default:
		return true
	}
}

// Matches reports whether the sign of amount agrees with the direction.
// Zero is neither income nor expense.
func (d Direction) Matches(amount decimal.Decimal) bool {
	switch d {
	case DirectionIncome:
		return amount.IsPositive()
	case DirectionExpense:
		return amount.IsNegative()
	default:
		return true
	}
}

// Start returns the inclusive lower bound of the window ending at now.
// The second result is false for PeriodAll, which has no bound.
func (p Period) Start(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	case PeriodLast30:
		return now.AddDate(0, 0, -30), true
	case PeriodLast60:
		return now.AddDate(0, 0, -60), true
	case PeriodLast90:
		return now.AddDate(0, 0, -90), true
	default:
		return time.Time{}, false
	}
}

// Contains reports whether the timestamp lies in [Start(now), now]. An
// unparsable timestamp is only contained by PeriodAll.
func (p Period) Contains(timestamp string, now time.Time) bool {
	start, bounded := p.Start(now)
	if !bounded {
		return true
	}
	ts, ok := ParseTimestamp(timestamp, now.Location())
	if !ok {
		return false
	}
	return !ts.Before(start) && !ts.After(now)
}

// ParseTimestamp reads a local-naive timestamp in loc. RFC 3339 values keep
// their own offset.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Matches reports whether t passes all three predicates.
func (f Filter) Matches(t Transaction, now time.Time) bool {
	return f.Amount.Matches(t.Amount) &&
		f.Direction.Matches(t.Amount) &&
		f.Period.Contains(t.Timestamp, now)
}

// IsAll reports whether the filter selects every record.
func (f Filter) IsAll() bool {
	return (f.Amount == "" || f.Amount == AmountAll) &&
		(f.Direction == "" || f.Direction == DirectionAll) &&
		(f.Period == "" || f.Period == PeriodAll)
}

// Apply returns the records matching f, in input order. It never modifies
// records and the result never aliases it.
func Apply(records []Transaction, f Filter, now time.Time) []Transaction {
	out := make([]Transaction, 0, len(records))
	for _, r := range records {
		if f.Matches(r, now) {
			out = append(out, r)
		}
	}
	return out
}
