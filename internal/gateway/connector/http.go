package connector

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/qamdgateway/internal/gwmetrics"
)

type requestIDKey struct{}

// setupRoutes wires the WebSocket endpoints and the ambient health/metrics
// surface behind the teacher's middleware chain (request id, structured
// logging, timeout), grounded on
// internal/interfaces/http/server.go's setupRoutes. WebSocket routes are
// excluded from the request-timeout middleware since they are long-lived
// by design.
func (c *Connector) setupRoutes() {
	c.router.Use(c.requestIDMiddleware)
	c.router.Use(c.requestLoggingMiddleware)

	c.router.HandleFunc("/ws/market", c.newSession).Methods("GET")
	c.router.HandleFunc("/ws/qq/market", c.newSession).Methods("GET")
	c.router.HandleFunc("/ws/sina/market", c.newSession).Methods("GET")

	api := c.router.PathPrefix("/").Subrouter()
	api.Use(c.timeoutMiddleware)
	api.HandleFunc("/healthz", c.handleHealthz).Methods("GET")
	metricsPath := c.cfg.HTTP.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	api.Handle(metricsPath, gwmetrics.Handler()).Methods("GET")

	c.router.NotFoundHandler = http.HandlerFunc(c.handleNotFound)
}

func (c *Connector) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *Connector) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

func (c *Connector) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (c *Connector) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (c *Connector) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"not found"}`))
}
