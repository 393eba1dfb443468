package router

import (
	"backstage/internal/config"
	"backstage/internal/database"
	"backstage/internal/handlers"
	"backstage/internal/middleware"
	"backstage/internal/ratelimit"
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type HandlerDependencies struct {
	UserRepo     database.UserRepository
	TwoFactor    handlers.TwoFactorService
	HealthChecks []handlers.HealthCheck
	// AttemptLimiter begrenzt die Code-prüfenden Endpunkte; nil schaltet das ab.
	AttemptLimiter *ratelimit.AttemptLimiter
	PrivateKey     *rsa.PrivateKey
	PublicKey      *rsa.PublicKey
	Config         *config.Config
}

func SetupRouter(deps HandlerDependencies) http.Handler {
	authHandlers := handlers.NewAuthHandlers(deps.UserRepo, deps.TwoFactor, deps.PrivateKey, deps.Config.JWTAccessTokenTTL)
	userHandlers := handlers.NewUserHandlers(deps.UserRepo, deps.TwoFactor)
	twoFactorHandlers := handlers.NewTwoFactorHandlers(deps.TwoFactor, deps.PrivateKey, deps.Config.JWTAccessTokenTTL)

	limitAttempts := func(scope string) func(http.Handler) http.Handler {
		if deps.AttemptLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(deps.AttemptLimiter, scope, ratelimit.KeyByUserOrIP)
	}

	r := chi.NewRouter()

	// Globale Middlewares
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS())
	r.Use(httprate.LimitByIP(deps.Config.RequestsPerMinute, time.Minute))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.AuditContext)

	r.Get("/health", handlers.HealthCheckHandler(deps.HealthChecks...))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandlers.RegisterHandler)
		r.Post("/login", authHandlers.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticator(deps.PublicKey))
			r.Get("/me", userHandlers.GetCurrentUserHandler)
		})
	})

	// Authentifizierte 2FA-Endpunkte
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticator(deps.PublicKey))

		// Mit Pending-Token erreichbar
		r.Get("/2fa-status", twoFactorHandlers.StatusHandler)
		r.With(limitAttempts("verify")).Post("/verify-2fa", twoFactorHandlers.VerifyHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCompletedTwoFactor)
			r.Post("/setup-2fa", twoFactorHandlers.SetupHandler)
			r.Post("/disable-2fa", twoFactorHandlers.DisableHandler)
			r.With(limitAttempts("enable")).Post("/enable-2fa", twoFactorHandlers.EnableHandler)
		})
	})

	// Öffentliche Recovery-Endpunkte
	r.Post("/request-2fa-recovery", twoFactorHandlers.RequestRecoveryHandler)
	r.With(limitAttempts("recovery")).Post("/verify-2fa-recovery", twoFactorHandlers.VerifyRecoveryHandler)

	return r
}
