package web

import (
	"net/http"
	"os"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"sigfox-decoder/internal/observability"
)

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		start := time.Now()
		m := httpsnoop.CaptureMetrics(next, w, r)
		observability.ObserveHTTP(route, m.Code, start)
	})
}

func wrap(h http.Handler, opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{"Content-Type", requestIDHeader}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)

	return handlers.LoggingHandler(accessLog, h)
}
