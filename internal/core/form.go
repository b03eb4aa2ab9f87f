package core

// RawFields holds the text a user typed into the transaction form.
type RawFields struct {
	Title     string `json:"title"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp"`
}

// IDSource hands out the id of the next new record.
type IDSource interface {
	NextID() int64
}

// BuildRecord converts raw form input into a full Transaction.
//
// With existing set the result is a replacement for it and keeps its id.
// Otherwise the id comes from ids, or stays 0 for the store to assign when
// ids is nil. Title and timestamp are taken verbatim; only the amount is
// validated.
func BuildRecord(fields RawFields, existing *Transaction, ids IDSource) (Transaction, error) {
	amount, err := ParseAmount(fields.Amount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "amount", Reason: "not a number", Err: err}
	}

	rec := Transaction{
		Title:     fields.Title,
		Amount:    amount,
		Timestamp: fields.Timestamp,
	}
	switch {
	case existing != nil:
		rec.ID = existing.ID
	case ids != nil:
		rec.ID = ids.NextID()
	}
	return rec, nil
}

// Fields is the inverse of BuildRecord, used to prefill the edit form.
func (t Transaction) Fields() RawFields {
	return RawFields{
		Title:     t.Title,
		Amount:    t.Amount.String(),
		Timestamp: t.Timestamp,
	}
}
