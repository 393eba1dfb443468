package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"backstage/internal/models"
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Provision erzeugt ein neues Secret mit QR-Code und acht Backup-Codes und
// speichert beides als ausstehende Einrichtung. Eine aktive 2FA wird nie ersetzt.
func (s *Service) Provision(ctx context.Context, userID uuid.UUID, email string) (*Provisioning, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.State().TwoFactorActive() {
		return nil, newError(KindConflict, MsgAlreadyEnabled)
	}

	key, err := s.otp.GenerateSecret(email)
	if err != nil {
		return nil, wrapError(KindInternal, MsgSetupFailed, err)
	}
	qrCodeURL, err := s.otp.RenderEnrollmentImage(key.URL)
	if err != nil {
		return nil, wrapError(KindInternal, MsgSetupFailed, err)
	}
	backupCodes, err := auth.GenerateBackupCodes()
	if err != nil {
		return nil, wrapError(KindInternal, MsgSetupFailed, err)
	}

	err = s.profiles.SavePendingSecret(ctx, userID, key.Secret, hashCodes(userID, backupCodes))
	if err != nil {
		if errors.Is(err, database.ErrTwoFactorEnabled) {
			return nil, newError(KindConflict, MsgAlreadyEnabled)
		}
		return nil, wrapError(KindPersistence, MsgSetupFailed, err)
	}

	slog.InfoContext(ctx, "2FA-Einrichtung gestartet", slog.String("user_id", userID.String()))
	return &Provisioning{
		Secret:      key.Secret,
		QRCodeURL:   qrCodeURL,
		BackupCodes: backupCodes,
	}, nil
}

// Enable bestätigt die Einrichtung mit einem TOTP-Code. Liegt bereits ein Secret vor,
// muss das übermittelte Secret diesem entsprechen.
func (s *Service) Enable(ctx context.Context, userID uuid.UUID, token, secret string) error {
	if token == "" || secret == "" {
		return newError(KindValidation, MsgTokenAndSecretRequired)
	}

	secret = auth.NormalizeSecret(secret)
	if !auth.ValidSecret(secret) {
		return newError(KindValidation, MsgInvalidSecretFormat)
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if stored := profile.Secret(); stored != "" && stored != secret {
		slog.WarnContext(ctx, "Übermitteltes Secret weicht vom gespeicherten ab", slog.String("user_id", userID.String()))
		return newError(KindValidation, MsgInvalidVerificationCode)
	}

	valid, err := s.otp.ValidateCode(secret, token, s.settings.EnrollSkew, s.now())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSecret) {
			return newError(KindValidation, MsgInvalidSecretFormat)
		}
		return wrapError(KindInternal, MsgInternal, err)
	}
	if !valid {
		return newError(KindValidation, MsgInvalidVerificationCode)
	}

	if err := s.profiles.EnableTwoFactor(ctx, userID, secret); err != nil {
		if errors.Is(err, database.ErrSecretMismatch) {
			return newError(KindValidation, MsgInvalidVerificationCode)
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}
	return nil
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	state := profile.State()
	status := &Status{
		Enabled:         state.TwoFactorActive(),
		Pending:         state == models.StatePending,
		RecoveryPending: state == models.StateRecoveryPending,
	}
	if profile != nil {
		status.BackupCodesRemaining = profile.BackupCodesRemaining
	}
	return status, nil
}
