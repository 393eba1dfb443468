package handlers

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"backstage/internal/logging"
	"backstage/internal/middleware"
	"backstage/internal/models"
	"backstage/internal/twofactor"
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgEmailTaken         = "Email is already registered"
	msgInvalidRequest     = "Invalid request"
)

// StatusReader liefert den 2FA-Zustand eines Benutzers.
type StatusReader interface {
	Status(ctx context.Context, userID uuid.UUID) (*twofactor.Status, error)
}

type AuthHandlers struct {
	UserRepo       database.UserRepository
	TwoFactor      StatusReader
	PrivateKey     *rsa.PrivateKey
	AccessTokenTTL time.Duration
}

func NewAuthHandlers(userRepo database.UserRepository, twoFactor StatusReader, privateKey *rsa.PrivateKey, accessTTL time.Duration) *AuthHandlers {
	return &AuthHandlers{
		UserRepo:       userRepo,
		TwoFactor:      twoFactor,
		PrivateKey:     privateKey,
		AccessTokenTTL: accessTTL,
	}
}

func (h *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterRequest
	if !decodeAndValidate(ctx, w, r, &req, msgInvalidRequest) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
		return
	}

	user := models.NewUser(email, hashedPassword)
	if err := h.UserRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			logging.LogAuditEvent(ctx, logging.EventUserRegister, logging.AuditFailure,
				slog.String("email", email),
				slog.String("reason", "email_taken"),
			)
			writeJSONError(w, msgEmailTaken, http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "Fehler beim Anlegen des Benutzers", slog.Any("error", err))
		writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
		return
	}

	ctx = middleware.WithIdentity(ctx, user.ID.String(), user.Email)
	logging.LogAuditEvent(ctx, logging.EventUserRegister, logging.AuditSuccess, slog.String("email", email))
	writeJSONResponse(w, UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, http.StatusCreated)
}

// LoginHandler stellt ein Access-Token aus. Ist 2FA aktiv, ist es ein kurzlebiges
// Pending-Token, das erst /verify-2fa gegen ein volles Token tauscht.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if !decodeAndValidate(ctx, w, r, &req, msgInvalidRequest) {
		return
	}

	user, err := h.UserRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			auth.EqualizeLoginTiming(req.Password)
			logging.LogAuditEvent(ctx, logging.EventUserLogin, logging.AuditFailure,
				slog.String("email", req.Email),
				slog.String("reason", "user_not_found"),
			)
			writeJSONError(w, msgInvalidCredentials, http.StatusUnauthorized)
			return
		}
		slog.ErrorContext(ctx, "Fehler beim Abrufen des Benutzers", slog.Any("error", err))
		writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
		return
	}
	ctx = middleware.WithIdentity(ctx, user.ID.String(), user.Email)

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logging.LogAuditEvent(ctx, logging.EventUserLogin, logging.AuditFailure,
			slog.String("email", req.Email),
			slog.String("reason", "invalid_password"),
		)
		writeJSONError(w, msgInvalidCredentials, http.StatusUnauthorized)
		return
	}

	status, err := h.TwoFactor.Status(ctx, user.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	var accessToken string
	if status.Enabled {
		accessToken, err = auth.GeneratePendingToken(user, h.PrivateKey)
	} else {
		accessToken, err = auth.GenerateToken(user, h.PrivateKey, h.AccessTokenTTL)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Erstellen des Access JWT für Login", slog.Any("error", err))
		writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
		return
	}

	logging.LogAuditEvent(ctx, logging.EventUserLogin, logging.AuditSuccess,
		slog.Bool("two_factor_required", status.Enabled),
	)
	writeJSONResponse(w, LoginResponse{
		AccessToken:       accessToken,
		TwoFactorRequired: status.Enabled,
	}, http.StatusOK)
}
