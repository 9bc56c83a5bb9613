package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/go-chi/chi/v5/middleware"
)

// requestContext copies the request and correlation ids into the observability context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(HeaderCorrelationID))
		if id := middleware.GetReqID(r.Context()); id != "" {
			ctx = observability.WithRequestID(ctx, id)
		}
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			ctx = observability.WithUserID(ctx, userID)
		}
		w.Header().Set(HeaderCorrelationID, observability.CorrelationIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
