package handlers

import (
	"backstage/internal/auth"
	"backstage/internal/logging"
	"backstage/internal/metrics"
	"backstage/internal/middleware"
	"backstage/internal/models"
	"backstage/internal/twofactor"
	"context"
	"crypto/rsa"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	flowSetup           = "setup"
	flowEnable          = "enable"
	flowVerify          = "verify"
	flowDisable         = "disable"
	flowRecoveryRequest = "recovery_request"
	flowRecoveryVerify  = "recovery_verify"
)

var tracer = otel.Tracer("backstage/internal/handlers")

// TwoFactorService ist die Sicht der Handler auf den 2FA-Service.
type TwoFactorService interface {
	Provision(ctx context.Context, userID uuid.UUID, email string) (*twofactor.Provisioning, error)
	Enable(ctx context.Context, userID uuid.UUID, token, secret string) error
	Verify(ctx context.Context, userID uuid.UUID, token string) (bool, error)
	Disable(ctx context.Context, userID uuid.UUID, password string) error
	Status(ctx context.Context, userID uuid.UUID) (*twofactor.Status, error)
	RequestRecovery(ctx context.Context, email string) error
	VerifyRecovery(ctx context.Context, email, code string) error
}

type TwoFactorHandlers struct {
	Service        TwoFactorService
	PrivateKey     *rsa.PrivateKey
	AccessTokenTTL time.Duration
}

func NewTwoFactorHandlers(service TwoFactorService, privateKey *rsa.PrivateKey, accessTTL time.Duration) *TwoFactorHandlers {
	return &TwoFactorHandlers{
		Service:        service,
		PrivateKey:     privateKey,
		AccessTokenTTL: accessTTL,
	}
}

// currentUser liest die User-ID aus dem Kontext. Bei false ist bereits 401 geschrieben.
func currentUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	userIDStr, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		slog.WarnContext(ctx, "UserID fehlt im Kontext einer geschützten Route")
		writeJSONError(w, twofactor.MsgUnauthorized, http.StatusUnauthorized)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		slog.WarnContext(ctx, "Ungültige UserID im Token", slog.String("user_id_str", userIDStr))
		writeJSONError(w, twofactor.MsgUnauthorized, http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

// finishFlow zählt das Ergebnis, schreibt das Audit-Event und markiert den Span.
func finishFlow(ctx context.Context, span trace.Span, flow, event string, err error, details ...slog.Attr) {
	switch {
	case err == nil:
		metrics.ObserveTwoFactor(flow, metrics.ResultSuccess)
		logging.LogAuditEvent(ctx, event, logging.AuditSuccess, details...)
	case isRejection(err):
		reason := failureReason(err)
		metrics.ObserveTwoFactor(flow, metrics.ResultRejected)
		span.SetAttributes(attribute.String("twofactor.rejection", reason))
		logging.LogAuditEvent(ctx, event, logging.AuditFailure, append(details, slog.String("reason", reason))...)
	default:
		metrics.ObserveTwoFactor(flow, metrics.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, flow+" failed")
		logging.LogAuditEvent(ctx, event, logging.AuditFailure, append(details, slog.String("reason", "internal"))...)
	}
}

func (h *TwoFactorHandlers) SetupHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.setup")
	defer span.End()

	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}
	email, _ := middleware.GetEmailFromContext(ctx)

	provisioning, err := h.Service.Provision(ctx, userID, email)
	finishFlow(ctx, span, flowSetup, logging.EventTwoFactorSetup, err)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, SetupResponse{
		Secret:      provisioning.Secret,
		QRCodeURL:   provisioning.QRCodeURL,
		BackupCodes: provisioning.BackupCodes,
	}, http.StatusOK)
}

func (h *TwoFactorHandlers) EnableHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.enable")
	defer span.End()

	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}
	var req EnableRequest
	if !decodeAndValidate(ctx, w, r, &req, twofactor.MsgTokenAndSecretRequired) {
		return
	}

	err := h.Service.Enable(ctx, userID, req.Token, req.Secret)
	finishFlow(ctx, span, flowEnable, logging.EventTwoFactorEnable, err)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, SuccessResponse{Success: true}, http.StatusOK)
}

// VerifyHandler beantwortet falsche Codes mit 200 {valid:false}, nicht mit einem Fehlerstatus.
func (h *TwoFactorHandlers) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.verify")
	defer span.End()

	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}
	var req VerifyRequest
	if !decodeAndValidate(ctx, w, r, &req, twofactor.MsgTokenRequired) {
		return
	}

	valid, err := h.Service.Verify(ctx, userID, req.Token)
	if err != nil {
		finishFlow(ctx, span, flowVerify, logging.EventTwoFactorVerify, err)
		writeServiceError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.Bool("twofactor.valid", valid))
	if !valid {
		finishFlow(ctx, span, flowVerify, logging.EventTwoFactorVerify,
			&twofactor.Error{Kind: twofactor.KindValidation, Message: twofactor.MsgInvalidVerificationCode})
		writeJSONResponse(w, VerifyResponse{Valid: false}, http.StatusOK)
		return
	}

	resp := VerifyResponse{Valid: true}
	if middleware.IsTwoFactorPending(ctx) {
		email, _ := middleware.GetEmailFromContext(ctx)
		resp.AccessToken, err = auth.GenerateToken(&models.User{ID: userID, Email: email}, h.PrivateKey, h.AccessTokenTTL)
		if err != nil {
			slog.ErrorContext(ctx, "Fehler beim Erstellen des Access JWT nach 2FA-Prüfung", slog.Any("error", err))
			finishFlow(ctx, span, flowVerify, logging.EventTwoFactorVerify, wrapInternal(err))
			writeJSONError(w, twofactor.MsgInternal, http.StatusInternalServerError)
			return
		}
	}
	finishFlow(ctx, span, flowVerify, logging.EventTwoFactorVerify, nil,
		slog.Bool("token_upgraded", resp.AccessToken != ""))
	writeJSONResponse(w, resp, http.StatusOK)
}

func wrapInternal(err error) error {
	return &twofactor.Error{Kind: twofactor.KindInternal, Message: twofactor.MsgInternal, Err: err}
}

func (h *TwoFactorHandlers) DisableHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.disable")
	defer span.End()

	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}
	var req DisableRequest
	if !decodeAndValidate(ctx, w, r, &req, twofactor.MsgPasswordRequired) {
		return
	}

	err := h.Service.Disable(ctx, userID, req.Password)
	finishFlow(ctx, span, flowDisable, logging.EventTwoFactorDisable, err)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, SuccessResponse{Success: true}, http.StatusOK)
}

func (h *TwoFactorHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := currentUser(ctx, w)
	if !ok {
		return
	}

	status, err := h.Service.Status(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, StatusResponse{
		Enabled:              status.Enabled,
		Pending:              status.Pending,
		BackupCodesRemaining: status.BackupCodesRemaining,
		RecoveryPending:      status.RecoveryPending,
	}, http.StatusOK)
}
