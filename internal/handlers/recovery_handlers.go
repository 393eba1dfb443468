package handlers

import (
	"backstage/internal/logging"
	"backstage/internal/twofactor"
	"log/slog"
	"net/http"
	"strings"
)

const (
	msgRecoveryRequested = "If the account exists and has 2FA enabled, a recovery code has been sent"
	msgRecoveryDisabled  = "Two-factor authentication has been disabled"
)

// RequestRecoveryHandler antwortet unabhängig davon, ob das Konto existiert, gleich.
func (h *TwoFactorHandlers) RequestRecoveryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.recovery_request")
	defer span.End()

	var req RecoveryRequest
	if !decodeAndValidate(ctx, w, r, &req, twofactor.MsgEmailRequired) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	err := h.Service.RequestRecovery(ctx, email)
	finishFlow(ctx, span, flowRecoveryRequest, logging.EventRecoveryRequest, err, slog.String("email", email))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, SuccessResponse{Success: true, Message: msgRecoveryRequested}, http.StatusOK)
}

func (h *TwoFactorHandlers) VerifyRecoveryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "twofactor.recovery_verify")
	defer span.End()

	var req VerifyRecoveryRequest
	if !decodeAndValidate(ctx, w, r, &req, twofactor.MsgRecoveryFieldsRequired) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	err := h.Service.VerifyRecovery(ctx, email, req.RecoveryCode)
	finishFlow(ctx, span, flowRecoveryVerify, logging.EventRecoveryVerify, err, slog.String("email", email))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, SuccessResponse{Success: true, Message: msgRecoveryDisabled}, http.StatusOK)
}
