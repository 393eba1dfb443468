// Package twofactor implementiert den 2FA-Lebenszyklus: Provisionierung,
// Aktivierung, Login-Challenge, Deaktivierung per Passwort und per Recovery-Code.
package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"backstage/internal/mail"
	"backstage/internal/models"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Settings struct {
	EnrollSkew      uint
	ChallengeSkew   uint
	RecoveryCodeTTL time.Duration
}

// IssueThrottle begrenzt, wie oft Recovery-Codes für einen Schlüssel ausgestellt werden.
type IssueThrottle interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

type Service struct {
	users    database.UserRepository
	profiles database.SecurityProfileRepository
	otp      auth.OTPProvider
	mailer   mail.Mailer
	throttle IssueThrottle
	settings Settings
	now      func() time.Time
}

type Option func(*Service)

// WithClock ersetzt die Uhr (Tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIssueThrottle(t IssueThrottle) Option {
	return func(s *Service) { s.throttle = t }
}

func NewService(users database.UserRepository, profiles database.SecurityProfileRepository,
	otp auth.OTPProvider, mailer mail.Mailer, settings Settings, opts ...Option) *Service {
	if settings.RecoveryCodeTTL <= 0 {
		settings.RecoveryCodeTTL = 15 * time.Minute
	}
	s := &Service{
		users:    users,
		profiles: profiles,
		otp:      otp,
		mailer:   mailer,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provisioning ist die Antwort von Provision; BackupCodes werden nur hier im Klartext ausgegeben.
type Provisioning struct {
	Secret      string
	QRCodeURL   string
	BackupCodes []string
}

type Status struct {
	Enabled              bool
	Pending              bool
	BackupCodesRemaining int
	RecoveryPending      bool
}

func hashCodes(userID uuid.UUID, codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = auth.HashCode(userID.String(), code)
	}
	return hashes
}

// loadProfile liefert nil ohne Fehler, wenn der Benutzer kein Profil hat.
func (s *Service) loadProfile(ctx context.Context, userID uuid.UUID) (*models.SecurityProfile, error) {
	profile, err := s.profiles.GetSecurityProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrProfileNotFound) {
			return nil, nil
		}
		return nil, wrapError(KindPersistence, MsgInternal, err)
	}
	return profile, nil
}
