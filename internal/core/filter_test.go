package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(id int64, amount string, ts string) Transaction {
	return Transaction{ID: id, Title: "t", Amount: decimal.RequireFromString(amount), Timestamp: ts}
}

func ids(records []Transaction) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

var salaryAndRent = []Transaction{
	{ID: 1, Title: "Salary", Amount: decimal.NewFromInt(5000), Timestamp: "2024-06-01T09:00"},
	{ID: 2, Title: "Rent", Amount: decimal.NewFromInt(-1500), Timestamp: "2024-06-02T10:30"},
}

func TestApplyAllReturnsEverything(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	got := Apply(salaryAndRent, Filter{Amount: AmountAll, Direction: DirectionAll, Period: PeriodAll}, now)
	assert.Equal(t, []int64{1, 2}, ids(got))
	assert.Equal(t, "3500", Sum(got).String())
}

func TestApplyIncomeOnly(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	got := Apply(salaryAndRent, Filter{Amount: AmountAll, Direction: DirectionIncome, Period: PeriodAll}, now)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestAmountBucketBoundaries(t *testing.T) {
	cases := []struct {
		amount string
		bucket AmountBucket
		want   bool
	}{
		{"0", AmountUnder100, true},
		{"99.99", AmountUnder100, true},
		{"-99.99", AmountUnder100, true},
		{"100.00", AmountUnder100, false},
		{"100.00", Amount100To1000, true},
		{"-100", Amount100To1000, true},
		{"999.99", Amount100To1000, true},
		{"1000", Amount100To1000, false},
		{"1000", AmountOver1000, true},
		{"-1500", AmountOver1000, true},
		{"999.999", AmountOver1000, false},
		{"123", AmountAll, true},
		{"123", "", true},
	}
	for _, tc := range cases {
		got := tc.bucket.Matches(decimal.RequireFromString(tc.amount))
		assert.Equal(t, tc.want, got, "%s in %q", tc.amount, tc.bucket)
	}
}

func TestDirectionZeroMatchesOnlyAll(t *testing.T) {
	assert.True(t, DirectionAll.Matches(decimal.Zero))
	assert.False(t, DirectionIncome.Matches(decimal.Zero))
	assert.False(t, DirectionExpense.Matches(decimal.Zero))
	assert.True(t, DirectionExpense.Matches(decimal.NewFromInt(-1)))
	assert.False(t, DirectionExpense.Matches(decimal.NewFromInt(1)))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 3, 31, 18, 45, 0, 0, time.UTC)

	start, ok := PeriodMonth.Start(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)

	start, ok = PeriodLast30.Start(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 18, 45, 0, 0, time.UTC), start)

	start, ok = PeriodLast90.Start(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 18, 45, 0, 0, time.UTC), start)

	_, ok = PeriodAll.Start(now)
	assert.False(t, ok)
}

func TestPeriodContainsBounds(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		period Period
		ts     string
		want   bool
	}{
		{PeriodMonth, "2024-06-01T00:00", true}, // exactly at start
		{PeriodMonth, "2024-05-31T23:59", false},
		{PeriodMonth, "2024-06-15T12:00", true}, // exactly now
		{PeriodMonth, "2024-06-15T12:01", false},
		{PeriodLast30, "2024-05-16T12:00", true},
		{PeriodLast30, "2024-05-16T11:59", false},
		{PeriodLast60, "2024-04-16 12:00:00", true},
		{PeriodLast90, "2024-03-18", true},
		{PeriodLast90, "2024-03-16T23:59", false},
		{PeriodLast30, "2024-06-10T10:00:00Z", true},
		{PeriodLast30, "not a date", false},
		{PeriodAll, "not a date", true},
		{PeriodAll, "2099-01-01T00:00", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.period.Contains(tc.ts, now), "%s contains %q", tc.period, tc.ts)
	}
}

func TestFilterAndSemantics(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	rec := tx(9, "50", "2024-06-15T12:00")

	f := Filter{Amount: AmountUnder100, Direction: DirectionIncome, Period: PeriodMonth}
	assert.True(t, f.Matches(rec, now))

	flipped := f
	flipped.Direction = DirectionExpense
	assert.False(t, flipped.Matches(rec, now))

	flipped = f
	flipped.Amount = AmountOver1000
	assert.False(t, flipped.Matches(rec, now))

	flipped = f
	assert.False(t, flipped.Matches(rec, now.Add(-time.Minute)))
}

func TestApplyIsOrderPreservingSubset(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	records := []Transaction{
		tx(5, "-20", "2024-06-10T10:00"),
		tx(3, "200", "2024-06-11T10:00"),
		tx(4, "-300", "2024-01-01T10:00"),
		tx(1, "0", "2024-06-12T10:00"),
	}
	before := append([]Transaction(nil), records...)

	got := Apply(records, Filter{Period: PeriodLast30}, now)
	assert.Equal(t, []int64{5, 3, 1}, ids(got))
	assert.Equal(t, before, records)

	got = Apply(records, Filter{Direction: DirectionExpense}, now)
	assert.Equal(t, []int64{5, 4}, ids(got))

	assert.Empty(t, Apply(nil, Filter{}, now))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("", "", "")
	require.NoError(t, err)
	assert.Equal(t, Filter{Amount: AmountAll, Direction: DirectionAll, Period: PeriodAll}, f)
	assert.True(t, f.IsAll())

	f, err = ParseFilter("over_1000", "expense", "last_60_days")
	require.NoError(t, err)
	assert.Equal(t, Filter{Amount: AmountOver1000, Direction: DirectionExpense, Period: PeriodLast60}, f)
	assert.False(t, f.IsAll())

	_, err = ParseFilter("all", "sideways", "all")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "direction", verr.Field)
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestOptionLists(t *testing.T) {
	assert.Len(t, AmountBuckets(), 4)
	assert.Len(t, Directions(), 3)
	assert.Len(t, Periods(), 5)

	p := Periods()
	p[0] = "mutated"
	assert.Equal(t, PeriodAll, Periods()[0])
}
