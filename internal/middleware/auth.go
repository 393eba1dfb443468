package middleware

import (
	"backstage/internal/auth"
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDContextKey           contextKey = "userID"
	EmailContextKey            contextKey = "email"
	TwoFactorPendingContextKey contextKey = "twoFactorPending"
)

// Authenticator verlangt ein gültiges RS256-Access-Token und legt User-ID und E-Mail in den Kontext.
func Authenticator(publicKey *rsa.PublicKey) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenString, err := extractBearerToken(r)
			if err != nil {
				slog.WarnContext(ctx, "Authentifizierung fehlgeschlagen: Kein oder ungültiger Token", slog.Any("error", err))
				writeUnauthorized(w)
				return
			}

			claims, err := auth.ParseToken(tokenString, publicKey)
			if err != nil {
				slog.WarnContext(ctx, "Authentifizierung fehlgeschlagen: Token Validierung fehlgeschlagen", slog.Any("error", err))
				writeUnauthorized(w)
				return
			}

			ctx = WithIdentity(ctx, claims.UserID, claims.Email)
			if claims.TwoFactorPending {
				ctx = WithTwoFactorPending(ctx)
			}
			slog.DebugContext(ctx, "Authentifizierung erfolgreich", slog.String("user_id", claims.UserID),
				slog.Bool("two_factor_pending", claims.TwoFactorPending))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCompletedTwoFactor weist Tokens ab, deren zweiter Faktor noch aussteht.
// Muss hinter Authenticator laufen.
func RequireCompletedTwoFactor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsTwoFactorPending(r.Context()) {
			slog.WarnContext(r.Context(), "Zugriff mit ausstehender 2FA-Prüfung abgelehnt", slog.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"Two-factor verification required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization Header fehlt")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("authorization Header Format ist ungültig ('Bearer TOKEN')")
	}

	return parts[1], nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
}

func WithIdentity(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDContextKey, userID)
	return context.WithValue(ctx, EmailContextKey, email)
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok && userID != ""
}

func GetEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailContextKey).(string)
	return email, ok
}

func WithTwoFactorPending(ctx context.Context) context.Context {
	return context.WithValue(ctx, TwoFactorPendingContextKey, true)
}

func IsTwoFactorPending(ctx context.Context) bool {
	pending, _ := ctx.Value(TwoFactorPendingContextKey).(bool)
	return pending
}
