package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bilancio/internal/adapters"
	"bilancio/internal/completion"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/store/memory"
)

type fakeCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

type failingUsers struct{}

func (failingUsers) ListUsers(context.Context) ([]core.User, error) {
	return nil, errors.New("db down")
}

var testNow = time.Date(2023, 6, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, completer *fakeCompleter) *Server {
	t.Helper()
	store, err := memory.New(core.DemoTransactions()...)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := services.NewTransactionService(store, applog.Nop(),
		services.WithClock(func() time.Time { return testNow }))
	if completer == nil {
		completer = &fakeCompleter{answer: "a poem"}
	}
	users := adapters.NewCachedUsers(adapters.NewMemoryUsers(adapters.DemoUsers()...), time.Minute, applog.Nop())
	srv, err := NewServer(Config{Addr: ":0", RateLimitPerMinute: 1000}, Deps{
		Transactions: svc,
		Users:        users,
		Completer:    completer,
		Caches:       map[string]StatsSource{"users": users.Cache()},
		Logger:       applog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func do(srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, r)
	return rr
}

var (
	htmxForm = map[string]string{"HX-Request": "true", "Content-Type": "application/x-www-form-urlencoded"}
	jsonBody = map[string]string{"Content-Type": "application/json"}
)

func TestIndexRendersBalanceTableAndUsers(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(srv, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Account Balance", "4150.00", "Transaction History", "Freelance Work", "Grace Hopper", "Create a poem about pokemon."} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}
}

func TestIndexShowsUsersError(t *testing.T) {
	store, _ := memory.New()
	srv, err := NewServer(Config{}, Deps{
		Transactions: services.NewTransactionService(store, nil),
		Users:        failingUsers{},
		Completer:    completion.Disabled{},
	})
	if err != nil {
		t.Fatal(err)
	}
	rr := do(srv, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Users are unavailable") {
		t.Error("users error not rendered")
	}
}

func TestTransactionsPartialFiltersAndSorts(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(srv, http.MethodGet, "/ui/transactions?direction=expense", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "Salary") {
		t.Error("income row shown under expense filter")
	}
	utilities := strings.Index(body, "Utilities")
	rent := strings.Index(body, "Rent")
	if utilities < 0 || rent < 0 || utilities > rent {
		t.Errorf("expected newest first (Utilities before Rent)")
	}
	if !strings.Contains(body, "1850.00") {
		t.Error("expense total missing")
	}

	rr = do(srv, http.MethodGet, "/ui/transactions?amount=huge", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad filter status=%d", rr.Code)
	}
}

func TestCreateTransactionHTMX(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(srv, http.MethodPost, "/transactions", "title=Coffee&amount=-4.5&timestamp=2023-06-19T08%3A00", htmxForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, EventTransactionChanged) || !strings.Contains(trigger, `"id":6`) {
		t.Errorf("HX-Trigger = %s", trigger)
	}
	if !strings.Contains(rr.Body.String(), "Coffee") {
		t.Errorf("body = %s", rr.Body.String())
	}

	rr = do(srv, http.MethodPost, "/transactions", "title=Coffee&amount=abc", htmxForm)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid amount") {
		t.Errorf("body = %s", rr.Body.String())
	}
	if srv.tx.Stats().Created != 1 {
		t.Errorf("created = %d, want 1", srv.tx.Stats().Created)
	}
}

func TestCreateTransactionPlainFormRedirects(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(srv, http.MethodPost, "/transactions", "title=Tip&amount=2", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestEditAndUpdateTransaction(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(srv, http.MethodGet, "/ui/transactions/3/edit", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="Groceries"`) {
		t.Fatalf("edit partial status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(srv, http.MethodGet, "/ui/transactions/99/edit", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing edit status=%d", rr.Code)
	}

	rr = do(srv, http.MethodPut, "/transactions/3", "title=Market&amount=-210.40&timestamp=2023-06-03", htmxForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, err := srv.tx.Get(context.Background(), 3)
	if err != nil || got.Title != "Market" {
		t.Fatalf("got %+v, %v", got, err)
	}

	rr = do(srv, http.MethodPost, "/transactions/42", "title=x&amount=1", htmxForm)
	if rr.Code != http.StatusNotFound {
		t.Errorf("update missing status=%d", rr.Code)
	}
}

func TestDeleteTransactionIsIdempotent(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		rr := do(srv, http.MethodDelete, "/transactions/2", "", map[string]string{"HX-Request": "true"})
		if rr.Code != http.StatusOK {
			t.Fatalf("delete %d status=%d", i, rr.Code)
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), EventTransactionChanged) {
			t.Error("missing change trigger")
		}
	}
	if srv.tx.Stats().Deleted != 1 {
		t.Errorf("deleted = %d, want 1", srv.tx.Stats().Deleted)
	}

	rr := do(srv, http.MethodPost, "/transactions/1/delete", "", nil)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("plain delete status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodDelete, "/transactions/abc", "", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status=%d", rr.Code)
	}
}

func TestAPITransactions(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(srv, http.MethodGet, "/api/transactions?direction=income", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var view apiView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Transactions) != 2 || view.Transactions[0].Title != "Freelance Work" {
		t.Errorf("transactions = %+v", view.Transactions)
	}
	if view.Summary.Balance != "6000.00" || view.Total != 5 {
		t.Errorf("summary = %+v total=%d", view.Summary, view.Total)
	}

	rr = do(srv, http.MethodPost, "/api/transactions", `{"title":"Bonus","amount":250.5,"timestamp":"2023-06-10T10:00"}`, jsonBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Location") != "/api/transactions/6" {
		t.Errorf("location = %q", rr.Header().Get("Location"))
	}

	rr = do(srv, http.MethodPost, "/api/transactions", `{"title":"Bonus","amount":"lots"}`, jsonBody)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), `"field":"amount"`) {
		t.Errorf("invalid create status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodPut, "/api/transactions/6", `{"title":"Bonus","amount":"300","timestamp":"2023-06-10T10:00"}`, jsonBody)
	if rr.Code != http.StatusOK {
		t.Errorf("update status=%d", rr.Code)
	}
	rr = do(srv, http.MethodGet, "/api/transactions/6", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"amount":"300"`) {
		t.Errorf("get status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(srv, http.MethodDelete, "/api/transactions/6", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"removed":true`) {
		t.Errorf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(srv, http.MethodGet, "/api/transactions/6", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get deleted status=%d", rr.Code)
	}
}

func TestAPIUsers(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(srv, http.MethodGet, "/api/users", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var users []core.User
	if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Errorf("users = %d, want 3", len(users))
	}
}

func TestCompletionEndpoint(t *testing.T) {
	fc := &fakeCompleter{answer: "Pikachu shines"}
	srv := newTestServer(t, fc)

	rr := do(srv, http.MethodGet, "/api/gemini", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "Pikachu shines" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %q", rr.Header().Get("Content-Type"))
	}
	rr = do(srv, http.MethodGet, "/api/gemini?text="+url.QueryEscape("a haiku"), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if len(fc.prompts) != 2 || fc.prompts[0] != "Create a poem about pokemon." || fc.prompts[1] != "a haiku" {
		t.Errorf("prompts = %q", fc.prompts)
	}
}

func TestCompletionErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{completion.ErrDisabled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("upstream 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		srv := newTestServer(t, &fakeCompleter{err: tt.err})
		rr := do(srv, http.MethodGet, "/api/gemini?text=hi", "", nil)
		if rr.Code != tt.want {
			t.Errorf("%v: status=%d, want %d", tt.err, rr.Code, tt.want)
		}
	}
}

func TestAIResponsePartial(t *testing.T) {
	fc := &fakeCompleter{answer: "<b>bold</b> verse"}
	srv := newTestServer(t, fc)

	rr := do(srv, http.MethodGet, "/ui/ai-response", "", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "" {
		t.Errorf("empty text should render nothing, got %q", rr.Body.String())
	}
	if len(fc.prompts) != 0 {
		t.Error("model called for empty text")
	}

	rr = do(srv, http.MethodGet, "/ui/ai-response?text=verse", "", nil)
	body := rr.Body.String()
	if !strings.Contains(body, "Response from AI:") || !strings.Contains(body, "&lt;b&gt;bold&lt;/b&gt; verse") {
		t.Errorf("body = %s", body)
	}
}

func TestStatementPDF(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(srv, http.MethodGet, "/transactions/statement.pdf?direction=expense", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("content type = %q", rr.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	do(srv, http.MethodGet, "/api/users", "", nil)
	do(srv, http.MethodGet, "/api/users", "", nil)
	rr := do(srv, http.MethodGet, "/metrics", "", nil)
	body := rr.Body.String()
	for _, want := range []string{
		"http_requests_total",
		"transactions_stored 5",
		`cache_hits_total{cache="users"} 1`,
		`cache_misses_total{cache="users"} 1`,
		"rate_limit_hits_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestReadyReportsUsersBackendFailure(t *testing.T) {
	store, _ := memory.New()
	srv, err := NewServer(Config{}, Deps{
		Transactions: services.NewTransactionService(store, nil),
		Completer:    completion.Disabled{},
		UsersReady:   func(context.Context) error { return errors.New("ping failed") },
	})
	if err != nil {
		t.Fatal(err)
	}
	rr := do(srv, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "ping failed") {
		t.Errorf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	store, _ := memory.New()
	srv, err := NewServer(Config{RateLimitPerMinute: 2}, Deps{
		Transactions: services.NewTransactionService(store, nil),
		Completer:    completion.Disabled{},
	})
	if err != nil {
		t.Fatal(err)
	}
	var last int
	for i := 0; i < 3; i++ {
		last = do(srv, http.MethodPost, "/api/transactions", `{"title":"t","amount":"1"}`, jsonBody).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third mutation status=%d, want 429", last)
	}
	if rr := do(srv, http.MethodGet, "/api/transactions", "", nil); rr.Code != http.StatusOK {
		t.Errorf("reads should not be limited, got %d", rr.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t, nil)
	if rr := do(srv, http.MethodGet, "/nope", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodPatch, "/api/transactions/1", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status=%d", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(srv, http.MethodGet, "/static/app.css", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Error("cache header missing")
	}
}
