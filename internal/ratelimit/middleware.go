package ratelimit

import (
	"backstage/internal/logging"
	"backstage/internal/metrics"
	"backstage/internal/middleware"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
)

// KeyFunc bestimmt den Zählschlüssel einer Anfrage; "" bedeutet: nicht begrenzen.
type KeyFunc func(r *http.Request) string

// KeyByUserOrIP nutzt den authentifizierten Benutzer, sonst die Client-IP.
func KeyByUserOrIP(r *http.Request) string {
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	if ip := middleware.ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// Middleware begrenzt Versuche pro Schlüssel. Bei Redis-Fehlern wird die Anfrage durchgelassen.
func Middleware(limiter *AttemptLimiter, scope string, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := keyFn(r)
			if key == "" {
				metrics.RateLimitDecisions.WithLabelValues(scope, "allowed").Inc()
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(ctx, scope+":"+key)
			if err != nil {
				// Fail-Open: Verfügbarkeit geht vor.
				slog.WarnContext(ctx, "Redis-Fehler beim Versuchslimit", slog.Any("error", err), slog.String("scope", scope))
				metrics.RateLimitDecisions.WithLabelValues(scope, "error").Inc()
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				metrics.RateLimitDecisions.WithLabelValues(scope, "denied").Inc()
				logging.LogAuditEvent(ctx, logging.EventAttemptLimitHit, logging.AuditFailure,
					slog.String("scope", scope),
					slog.Int64("count", decision.Count),
				)

				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Too many attempts, please try again later"})
				return
			}

			metrics.RateLimitDecisions.WithLabelValues(scope, "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
