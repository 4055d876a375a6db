package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vannputh/analytics/internal/auth"
	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/telemetry"
)

// correlation reuses the caller's X-Correlation-Id or generates one, echoes
// it and stores it in the request context.
func (m *Mux) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-Id", correlationID)
		next.ServeHTTP(w, r.WithContext(telemetry.WithCorrelationID(r.Context(), correlationID)))
	})
}

// cors sets CORS headers for allowed origins and answers preflight requests.
func (m *Mux) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && m.originAllowed(origin)
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
				w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Mux) originAllowed(origin string) bool {
	for _, allowedOrigin := range m.deps.CORSAllowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}
	return false
}

// instrument wraps each request in a span, then logs it and records HTTP
// metrics under the matched route pattern.
func (m *Mux) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := telemetry.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		labels := []string{r.Method, route, strconv.Itoa(status)}
		m.deps.Metrics.HTTPRequestTotal.WithLabelValues(labels...).Inc()
		m.deps.Metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

		m.logRequest(r.WithContext(ctx), status, time.Since(start))
	})
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if correlationID := telemetry.CorrelationID(r.Context()); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	m.logger.LogAttrs(r.Context(), level, "request completed", attrs...)
}

// authenticate requires a valid bearer token when a verifier is configured
// and stores the subject under ContextKeyUser. Without a verifier every
// request acts as DefaultUser.
func (m *Mux) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.deps.Verifier == nil {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyUser, DefaultUser)))
			return
		}

		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var subject string
			if subject, err = m.deps.Verifier.Verify(token); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyUser, subject)))
				return
			}
		}

		msg := "invalid bearer token"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "missing bearer token"
		}
		m.logger.Debug("authentication failed", "error", err, "correlation_id", telemetry.CorrelationID(r.Context()))
		m.writeErrorDef(w, r, errordefs.New(errordefs.TRACKER_AUTHN, msg, ""))
	})
}

// userFrom returns the subject stored by authenticate.
func userFrom(ctx context.Context) string {
	if user, ok := ctx.Value(ContextKeyUser).(string); ok && user != "" {
		return user
	}
	return DefaultUser
}
