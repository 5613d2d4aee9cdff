package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/app"
	"github.com/shrimpsizemoose/homeroom/internal/metrics"
)

type contextKey string

const actorCtxKey contextKey = "actor"

// Authenticator resolves the caller once per request and stores the actor in
// the context. Requests without a valid identity stop here with 401.
func Authenticator(auth *app.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := auth.Identify(r)
			if err != nil {
				code := statusFromError(err)
				if code == http.StatusForbidden {
					code = http.StatusUnauthorized
				}
				respondJSON(w, code, errorResponse{Error: "Unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), actorCtxKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(ctx context.Context) access.Actor {
	actor, _ := ctx.Value(actorCtxKey).(access.Actor)
	return actor
}

// Metrics records request duration by route pattern, so ids in the path do
// not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestDuration.WithLabelValues(
			path,
			r.Method,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}
