package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/gpubox/pkg/auth"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type ctxKey int

const actorKey ctxKey = iota

// Verifier turns a bearer token into an actor
type Verifier interface {
	Verify(token string) (types.Actor, error)
}

// actorFrom returns the authenticated actor of the request. The zero Actor
// is rejected by every authorization policy.
func actorFrom(ctx context.Context) types.Actor {
	actor, _ := ctx.Value(actorKey).(types.Actor)
	return actor
}

// authenticate rejects requests without a valid bearer token
func authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondError(w, fmt.Errorf("%w: bearer token required", types.ErrUnauthenticated))
				return
			}
			actor, err := v.Verify(token)
			if err != nil {
				respondError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

// instrument logs every request and records its route metrics
func instrument(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)

			metrics.APIRequestsTotal.WithLabelValues(r.Method+" "+route, strconv.Itoa(status)).Inc()
			metrics.APIRequestDuration.WithLabelValues(r.Method + " " + route).Observe(took.Seconds())

			var event *zerolog.Event
			switch {
			case status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			default:
				event = logger.Debug()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("took", took).
				Msg("HTTP request")
		}
		return http.HandlerFunc(fn)
	}
}
