package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func TestEventJSONRoundTrip(t *testing.T) {
	rec := core.Transaction{ID: 4, Title: "Freelance Work", Amount: decimal.RequireFromString("1000.50"), Timestamp: "2023-06-04"}
	e := NewTransactionEvent(TransactionUpdated, rec)

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.False(t, e.OccurredAt.IsZero())

	data, err := e.ToJSON()
	require.NoError(t, err)
	got, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, TransactionUpdated, got.Type)
	assert.Equal(t, rec.ID, got.Transaction.ID)
	assert.True(t, rec.Amount.Equal(got.Transaction.Amount))
	assert.True(t, e.OccurredAt.Equal(got.OccurredAt))
}

func TestFromJSONRejectsUnknownType(t *testing.T) {
	_, err := FromJSON([]byte(`{"id":"x","type":"transaction.renamed"}`))
	assert.ErrorContains(t, err, "unknown type")

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}
