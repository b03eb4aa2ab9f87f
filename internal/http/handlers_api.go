package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bilancio/internal/completion"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

type apiSummary struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
	Count   int    `json:"count"`
}

type apiFilter struct {
	Amount    core.AmountBucket `json:"amount"`
	Direction core.Direction    `json:"direction"`
	Period    core.Period       `json:"period"`
}

type apiView struct {
	Filter       apiFilter          `json:"filter"`
	Transactions []core.Transaction `json:"transactions"`
	Summary      apiSummary         `json:"summary"`
	Total        int                `json:"total"`
}

func newAPIView(v services.View) apiView {
	txs := v.Transactions
	if txs == nil {
		txs = []core.Transaction{}
	}
	return apiView{
		Filter:       apiFilter{Amount: v.Filter.Amount, Direction: v.Filter.Direction, Period: v.Filter.Period},
		Transactions: txs,
		Summary: apiSummary{
			Income:  core.FormatAmount(v.Summary.Income),
			Expense: core.FormatAmount(v.Summary.Expense),
			Balance: core.FormatAmount(v.Summary.Balance),
			Count:   v.Summary.Count,
		},
		Total: v.Total,
	}
}

func (s *Server) handleAPIListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilterQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	view, err := s.tx.View(r.Context(), f)
	if err != nil {
		s.logFailure(r, "Failed to list transactions", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newAPIView(view))
}

func (s *Server) handleAPIGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.tx.Get(r.Context(), id)
	if err != nil {
		s.logFailure(r, "Failed to get transaction", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAPICreateTransaction(w http.ResponseWriter, r *http.Request) {
	fields, err := ParseTransactionFields(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.tx.Create(r.Context(), fields)
	if err != nil {
		s.logFailure(r, "Failed to create transaction", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/api/transactions/"+itoa(t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleAPIUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	fields, err := ParseTransactionFields(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.tx.Update(r.Context(), id, fields)
	if err != nil {
		s.logFailure(r, "Failed to update transaction", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAPIDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	removed, err := s.tx.Delete(r.Context(), id)
	if err != nil {
		s.logFailure(r, "Failed to delete transaction", err)
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "removed": removed})
}

func (s *Server) handleAPIUsers(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeJSON(w, http.StatusOK, []core.User{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), usersTimeout)
	defer cancel()
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Failed to list users",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentUsers,
		)
		writeJSON(w, http.StatusBadGateway, apiError{Error: "user directory unavailable"})
		return
	}
	if users == nil {
		users = []core.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// handleCompletion answers with the model's text as text/plain. An empty
// prompt falls back to the configured default.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	prompt := strings.TrimSpace(r.URL.Query().Get("text"))
	if prompt == "" {
		prompt = s.defaultPrompt
	}
	answer, err := s.completer.Complete(r.Context(), prompt)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		s.logCompletionFailure(r, err)
		w.WriteHeader(completionStatus(err))
		_, _ = w.Write([]byte(completionMessage(err)))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(answer))
}

// completionStatus treats anything but a disabled gateway or a timeout as
// an upstream failure.
func completionStatus(err error) int {
	switch status := statusFor(err); status {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return status
	default:
		return http.StatusBadGateway
	}
}

func completionMessage(err error) string {
	switch {
	case errors.Is(err, completion.ErrDisabled):
		return "Text completion is not configured."
	case errors.Is(err, context.DeadlineExceeded):
		return "The model took too long to answer."
	case errors.Is(err, completion.ErrEmptyResponse):
		return "The model returned an empty answer."
	default:
		return "The model could not be reached."
	}
}

func (s *Server) logCompletionFailure(r *http.Request, err error) {
	l := s.reqLogger(r)
	if errors.Is(err, completion.ErrDisabled) {
		l.DebugContext(r.Context(), "Completion requested while disabled")
		return
	}
	l.ErrorContext(r.Context(), "Completion failed",
		applog.FieldError, err,
		applog.FieldComponent, applog.ComponentCompletion,
		applog.FieldOperation, applog.OpComplete,
	)
}
