package logging

import (
	"backstage/internal/middleware"
	"context"
	"log/slog"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailure AuditStatus = "FAILURE"
)

const (
	AuditKey = "audit_event"
)

// Event-Typen der 2FA- und Login-Flows.
const (
	EventTwoFactorSetup   = "TWO_FACTOR_SETUP"
	EventTwoFactorEnable  = "TWO_FACTOR_ENABLE"
	EventTwoFactorVerify  = "TWO_FACTOR_VERIFY"
	EventTwoFactorDisable = "TWO_FACTOR_DISABLE"
	EventRecoveryRequest  = "TWO_FACTOR_RECOVERY_REQUEST"
	EventRecoveryVerify   = "TWO_FACTOR_RECOVERY_VERIFY"
	EventUserRegister     = "USER_REGISTER"
	EventUserLogin        = "USER_LOGIN"
	EventAttemptLimitHit  = "ATTEMPT_LIMIT_EXCEEDED"
)

// LogAuditEvent schreibt ein Audit-Event mit User-ID, Request-ID und Client-IP aus dem Kontext.
func LogAuditEvent(ctx context.Context, eventType string, status AuditStatus, details ...slog.Attr) {
	userID, _ := middleware.GetUserIDFromContext(ctx)

	auditData, ok := middleware.GetAuditDataFromContext(ctx)
	if !ok {
		auditData = middleware.AuditData{}
	}

	attrs := []slog.Attr{
		slog.String("event_type", eventType),
		slog.String("status", string(status)),
		slog.String("user_id", userID),
		slog.String("request_id", chimiddleware.GetReqID(ctx)),
		slog.String("source_ip", auditData.IPAddress),
		slog.String("user_agent", auditData.UserAgent),
	}

	attrs = append(attrs, details...)
	attrs = append(attrs, slog.Bool(AuditKey, true))

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	slog.WarnContext(ctx, "Audit Event: "+eventType, args...)
}
