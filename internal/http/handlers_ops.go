package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"bilancio/internal/core"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates, the transaction store and the user
// directory backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	fail := func(name string, err error) {
		checks[name] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", fmt.Errorf("templates not loaded"))
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.tx.View(ctx, core.Filter{}); err != nil {
		fail("transactions", err)
	} else {
		checks["transactions"] = "ok"
	}

	switch {
	case s.usersReady != nil:
		if err := s.usersReady(ctx); err != nil {
			fail("users", err)
		} else {
			checks["users"] = "ok"
		}
	case s.users != nil:
		checks["users"] = "ok"
	default:
		checks["users"] = "not_configured"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	rateMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	txStats := s.tx.Stats()

	stored := -1
	if view, err := s.tx.View(r.Context(), core.Filter{}); err == nil {
		stored = view.Total
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, typ, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, typ, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_client_errors_total", "counter", "HTTP responses with a 4xx status", traceMetrics.ClientErrors)
	metric("http_server_errors_total", "counter", "HTTP responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)

	metric("transactions_stored", "gauge", "Transactions in the working set", stored)
	metric("transactions_created_total", "counter", "Transactions created", txStats.Created)
	metric("transactions_updated_total", "counter", "Transactions updated", txStats.Updated)
	metric("transactions_deleted_total", "counter", "Transactions deleted", txStats.Deleted)
	metric("event_publish_failures_total", "counter", "Transaction events that could not be published", txStats.PublishFailures)

	if len(s.caches) > 0 {
		names := make([]string, 0, len(s.caches))
		for name := range s.caches {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "# HELP cache_hits_total Total cache hits\n# TYPE cache_hits_total counter\n")
		for _, name := range names {
			fmt.Fprintf(w, "cache_hits_total{cache=%q} %d\n", name, s.caches[name].Stats().Hits)
		}
		fmt.Fprintf(w, "\n# HELP cache_misses_total Total cache misses\n# TYPE cache_misses_total counter\n")
		for _, name := range names {
			fmt.Fprintf(w, "cache_misses_total{cache=%q} %d\n", name, s.caches[name].Stats().Misses)
		}
		fmt.Fprintf(w, "\n# HELP cache_entries Current cache entries\n# TYPE cache_entries gauge\n")
		for _, name := range names {
			fmt.Fprintf(w, "cache_entries{cache=%q} %d\n", name, s.caches[name].Stats().Size)
		}
		fmt.Fprintln(w)
	}

	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
