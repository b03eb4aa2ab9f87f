package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/report"
	"bilancio/internal/services"
)

// usersTimeout bounds the user directory lookup made while rendering a page.
const usersTimeout = 5 * time.Second

type option struct {
	Value    string
	Label    string
	Selected bool
}

type filterForm struct {
	Amount    []option
	Direction []option
	Period    []option
}

var (
	amountLabels = map[core.AmountBucket]string{
		core.AmountAll:       "All amounts",
		core.AmountUnder100:  "Under $100",
		core.Amount100To1000: "$100 to $1000",
		core.AmountOver1000:  "$1000 and over",
	}
	directionLabels = map[core.Direction]string{
		core.DirectionAll:     "Income and expenses",
		core.DirectionIncome:  "Income",
		core.DirectionExpense: "Expenses",
	}
	periodLabels = map[core.Period]string{
		core.PeriodAll:    "All time",
		core.PeriodMonth:  "This month",
		core.PeriodLast30: "Last 30 days",
		core.PeriodLast60: "Last 60 days",
		core.PeriodLast90: "Last 90 days",
	}
)

func options[T ~string](all []T, labels map[T]string, selected T) []option {
	out := make([]option, 0, len(all))
	for _, v := range all {
		label := labels[v]
		if label == "" {
			label = string(v)
		}
		out = append(out, option{Value: string(v), Label: label, Selected: v == selected})
	}
	return out
}

func newFilterForm(f core.Filter) filterForm {
	return filterForm{
		Amount:    options(core.AmountBuckets(), amountLabels, f.Amount),
		Direction: options(core.Directions(), directionLabels, f.Direction),
		Period:    options(core.Periods(), periodLabels, f.Period),
	}
}

// statementURL links to the PDF statement of the same filtered view.
func statementURL(f core.Filter) string {
	if q := filterQuery(f); q != "" {
		return "/transactions/statement.pdf?" + q
	}
	return "/transactions/statement.pdf"
}

func filterQuery(f core.Filter) string {
	v := url.Values{}
	if f.Amount != "" {
		v.Set("amount", string(f.Amount))
	}
	if f.Direction != "" {
		v.Set("direction", string(f.Direction))
	}
	if f.Period != "" {
		v.Set("period", string(f.Period))
	}
	return v.Encode()
}

type listData struct {
	View         services.View
	Filters      filterForm
	StatementURL string
	FilterError  string
}

type indexData struct {
	List       listData
	Users      []core.User
	UsersError string
	Prompt     string
	Today      string
}

type editData struct {
	Transaction core.Transaction
	Fields      core.RawFields
}

type aiData struct {
	Prompt string
	Text   string
	Error  string
}

func (s *Server) listData(ctx context.Context, f core.Filter) (listData, error) {
	view, err := s.tx.View(ctx, f)
	if err != nil {
		return listData{}, err
	}
	return listData{View: view, Filters: newFilterForm(view.Filter), StatementURL: statementURL(view.Filter)}, nil
}

// render executes into a buffer so a template failure can still become a
// clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, status int, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldErrorType, applog.ErrorTypeInternal,
		)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, ferr := ParseFilterQuery(r.URL.Query())
	list, err := s.listData(ctx, f)
	if err != nil {
		s.logFailure(r, "Failed to build transaction view", err)
		http.Error(w, publicMessage(err), statusFor(err))
		return
	}
	if ferr != nil {
		list.FilterError = ferr.Error()
	}

	data := indexData{List: list, Prompt: s.defaultPrompt, Today: list.View.Now.Format("2006-01-02T15:04")}
	if s.users != nil {
		uctx, cancel := context.WithTimeout(ctx, usersTimeout)
		users, err := s.users.ListUsers(uctx)
		cancel()
		if err != nil {
			s.reqLogger(r).ErrorContext(ctx, "Failed to list users", applog.FieldError, err)
			data.UsersError = "Users are unavailable right now."
		}
		data.Users = users
	}
	s.render(w, r, "index.html", http.StatusOK, data)
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilterQuery(r.URL.Query())
	if err != nil {
		ErrorResponse(statusFor(err), err.Error()).Write(w)
		return
	}
	list, err := s.listData(r.Context(), f)
	if err != nil {
		s.logFailure(r, "Failed to build transaction view", err)
		ErrorResponse(statusFor(err), publicMessage(err)).Write(w)
		return
	}
	s.render(w, r, "transactions", http.StatusOK, list)
}

func (s *Server) handleEditPartial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := s.tx.Get(r.Context(), id)
	if err != nil {
		s.logFailure(r, "Failed to load transaction for edit", err)
		ErrorResponse(statusFor(err), publicMessage(err)).Write(w)
		return
	}
	s.render(w, r, "edit_row", http.StatusOK, editData{Transaction: t, Fields: t.Fields()})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	fields, err := ParseTransactionFields(r)
	if err != nil {
		s.failForm(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	t, err := s.tx.Create(r.Context(), fields)
	if err != nil {
		s.logFailure(r, "Failed to create transaction", err)
		s.failForm(w, r, statusFor(err), publicMessage(err))
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerTransactionChanged(t.ID, applog.OpCreate).
		TriggerFormReset().
		TriggerSuccessNotification("Transaction added").
		BodyHTML(fmt.Sprintf(`<div class="success">Added #%d: %s (%s)</div>`,
			t.ID, template.HTMLEscapeString(t.Title), core.FormatAmount(t.Amount))).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failForm(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fields, err := ParseTransactionFields(r)
	if err != nil {
		s.failForm(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	t, err := s.tx.Update(r.Context(), id, fields)
	if err != nil {
		s.logFailure(r, "Failed to update transaction", err)
		s.failForm(w, r, statusFor(err), publicMessage(err))
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerTransactionChanged(t.ID, applog.OpUpdate).
		TriggerSuccessNotification("Transaction updated").
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failForm(w, r, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := s.tx.Delete(r.Context(), id)
	if err != nil {
		s.logFailure(r, "Failed to delete transaction", err)
		s.failForm(w, r, statusFor(err), publicMessage(err))
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	resp := NewHTMXResponse().TriggerTransactionChanged(id, applog.OpDelete)
	if removed {
		resp.TriggerSuccessNotification("Transaction deleted")
	} else {
		resp.TriggerNotification(NotificationInfo, "Transaction was already deleted", 3000)
	}
	resp.Write(w)
}

// failForm answers a failed form action: an error fragment for htmx, a
// plain error page otherwise.
func (s *Server) failForm(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isHTMX(r) {
		ErrorResponse(status, message).Write(w)
		return
	}
	http.Error(w, message, status)
}

func (s *Server) handleAIResponsePartial(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	answer, err := s.completer.Complete(r.Context(), text)
	if err != nil {
		s.logCompletionFailure(r, err)
		s.render(w, r, "ai_response", http.StatusOK, aiData{Prompt: text, Error: completionMessage(err)})
		return
	}
	s.render(w, r, "ai_response", http.StatusOK, aiData{Prompt: text, Text: answer})
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilterQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	view, err := s.tx.View(r.Context(), f)
	if err != nil {
		s.logFailure(r, "Failed to build statement view", err)
		http.Error(w, publicMessage(err), statusFor(err))
		return
	}

	var buf bytes.Buffer
	err = report.WriteStatement(&buf, report.Statement{
		Filter:       view.Filter,
		Transactions: view.Transactions,
		Summary:      view.Summary,
		GeneratedAt:  view.Now,
	})
	if err != nil {
		s.reqLogger(r).ErrorContext(r.Context(), "Failed to render statement",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentReport,
			applog.FieldOperation, applog.OpRender,
		)
		http.Error(w, "could not render statement", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="bilancio-statement.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
