package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/ports"
	"bilancio/internal/services"
	appweb "bilancio/web"
)

// Config carries the server settings taken from the application config.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	DefaultPrompt      string
}

// StatsSource is anything that reports cache statistics.
type StatsSource interface {
	Stats() cache.Stats
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Transactions *services.TransactionService
	Users        ports.UserLister
	Completer    ports.Completer
	// UsersReady probes the user directory backend; nil means always ready.
	UsersReady func(context.Context) error
	// Caches are reported on /metrics under their map key.
	Caches map[string]StatsSource
	Logger *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template

	tx         *services.TransactionService
	users      ports.UserLister
	completer  ports.Completer
	usersReady func(context.Context) error
	caches     map[string]StatsSource

	logger           *applog.Logger
	traceMiddleware  *trace.Middleware
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector

	defaultPrompt string
	started       time.Time
	shutdownOnce  sync.Once
}

var templateFuncs = template.FuncMap{
	"amount":  core.FormatAmount,
	"dollars": core.FormatDollars,
}

// ParseTemplates parses the embedded page and partial templates.
func ParseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Transactions == nil {
		return nil, errors.New("transactions service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.Nop()
	}
	completer := deps.Completer
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	prompt := strings.TrimSpace(cfg.DefaultPrompt)
	if prompt == "" {
		prompt = "Create a poem about pokemon."
	}

	t, err := ParseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector(logger)
	s := &Server{
		templates:        t,
		tx:               deps.Transactions,
		users:            deps.Users,
		completer:        completer,
		usersReady:       deps.UsersReady,
		caches:           deps.Caches,
		logger:           logger.WithComponent(applog.ComponentHTTP),
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: detector,
		defaultPrompt:    prompt,
		started:          time.Now(),
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		return nil, err
	}

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, rateLimited, s.onRateLimit)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.traceMiddleware.Middleware(headers.Middleware(detector.Middleware(limited(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// HTMX partials
	mux.HandleFunc("GET /ui/transactions", s.handleTransactionsPartial)
	mux.HandleFunc("GET /ui/transactions/{id}/edit", s.handleEditPartial)
	mux.HandleFunc("GET /ui/ai-response", s.handleAIResponsePartial)

	// Form actions
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /transactions/{id}/delete", s.handleDeleteTransaction)
	mux.HandleFunc("GET /transactions/statement.pdf", s.handleStatement)

	// JSON API
	mux.HandleFunc("GET /api/transactions", s.handleAPIListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleAPICreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleAPIGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleAPIUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleAPIDeleteTransaction)
	mux.HandleFunc("GET /api/users", s.handleAPIUsers)
	mux.HandleFunc("GET /api/gemini", s.handleCompletion)
	return nil
}

// rateLimited selects the requests that count against the limit: every
// mutation and every call that reaches the text model.
func rateLimited(r *http.Request) bool {
	if ratelimit.MutatingOnly(r) {
		return true
	}
	return r.URL.Path == "/api/gemini" || r.URL.Path == "/ui/ai-response"
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
	)
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusTooManyRequests, apiError{Error: "rate limit exceeded"})
		return
	}
	ErrorResponse(http.StatusTooManyRequests, "Too many requests, please wait a minute").Write(w)
}

// RunMaintenance drops stale rate-limit entries until ctx is done.
func (s *Server) RunMaintenance(ctx context.Context) error {
	return s.rateLimiter.Run(ctx)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// reqLogger returns the request-scoped logger set by the trace middleware.
func (s *Server) reqLogger(r *http.Request) *applog.Logger {
	return applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP)
}

// logFailure logs err at a level that matches the status it maps to.
func (s *Server) logFailure(r *http.Request, msg string, err error) {
	l := s.reqLogger(r)
	if statusFor(err) >= http.StatusInternalServerError {
		fields := applog.NewFields()
		fields[applog.FieldPath] = r.URL.Path
		fields[applog.FieldErrorType] = applog.ErrorTypeInternal
		applog.NewStructuredLogger(l).LogError(r.Context(), msg, err, applog.ComponentHTTP, operationFor(r.Method), fields)
		return
	}
	l.DebugContext(r.Context(), msg, applog.FieldError, err, applog.FieldPath, r.URL.Path)
}

func operationFor(method string) string {
	switch method {
	case http.MethodPost:
		return applog.OpCreate
	case http.MethodPut, http.MethodPatch:
		return applog.OpUpdate
	case http.MethodDelete:
		return applog.OpDelete
	default:
		return applog.OpRead
	}
}
