package mail

import (
	"backstage/internal/metrics"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Mailer verschickt die Mails des 2FA-Flows.
type Mailer interface {
	SendRecoveryCode(ctx context.Context, to, code string, expiresAt time.Time) error
}

var ErrMailUnavailable = errors.New("mailversand vorübergehend nicht verfügbar")

// BreakerMailer schützt den Sender mit einem Circuit Breaker. Nach
// FailureThreshold Fehlern in Folge werden Anfragen für OpenTimeout sofort abgelehnt.
type BreakerMailer struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker[struct{}]
}

type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewBreakerMailer(sender Sender, settings BreakerSettings) *BreakerMailer {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			slog.Warn("Circuit Breaker Zustandswechsel",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	metrics.BreakerState.WithLabelValues("smtp").Set(float64(gobreaker.StateClosed))
	return &BreakerMailer{sender: sender, breaker: cb}
}

func (m *BreakerMailer) SendRecoveryCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	subject := "Your Backstage recovery code"
	body := fmt.Sprintf(
		"Use this code to disable two-factor authentication on your Backstage account:\r\n\r\n%s\r\n\r\n"+
			"The code expires at %s UTC. If you did not request it, you can ignore this email.\r\n",
		code, expiresAt.UTC().Format("2006-01-02 15:04"),
	)

	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.sender.Send(ctx, to, subject, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.WarnContext(ctx, "Mailversand übersprungen, Circuit Breaker offen")
			return ErrMailUnavailable
		}
		slog.ErrorContext(ctx, "Fehler beim Versenden des Recovery-Codes", slog.Any("error", err))
		return fmt.Errorf("fehler beim Versenden des Recovery-Codes: %w", err)
	}

	slog.InfoContext(ctx, "Recovery-Code per Mail versendet")
	return nil
}

// LogMailer wird verwendet, wenn kein SMTP-Host konfiguriert ist. Der Code wird nicht geloggt.
type LogMailer struct{}

func (LogMailer) SendRecoveryCode(ctx context.Context, to, _ string, expiresAt time.Time) error {
	slog.WarnContext(ctx, "SMTP nicht konfiguriert, Recovery-Code wurde nicht zugestellt", slog.Time("expires_at", expiresAt))
	return nil
}
