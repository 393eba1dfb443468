package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/metrics"
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Verify prüft einen Login-Code. Backup-Codes haben Vorrang und werden beim
// Treffer atomar verbraucht; sonst wird gegen den aktuellen TOTP-Code geprüft.
// Ein falscher Code ist kein Fehler, sondern liefert false.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	token = auth.NormalizeCode(token)
	if token == "" {
		return false, newError(KindValidation, MsgTokenRequired)
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return false, newError(KindNotFound, MsgProfileNotFound)
	}
	if !profile.State().TwoFactorActive() {
		return false, newError(KindValidation, MsgNotEnabled)
	}

	if profile.BackupCodesRemaining > 0 {
		consumed, err := s.profiles.ConsumeBackupCode(ctx, userID, auth.HashCode(userID.String(), token))
		if err != nil {
			return false, wrapError(KindPersistence, MsgInternal, err)
		}
		if consumed {
			metrics.BackupCodesConsumed.Inc()
			slog.InfoContext(ctx, "Login mit Backup-Code bestätigt",
				slog.String("user_id", userID.String()),
				slog.Int("backup_codes_remaining", profile.BackupCodesRemaining-1),
			)
			return true, nil
		}
	}

	valid, err := s.otp.ValidateCode(profile.Secret(), token, s.settings.ChallengeSkew, s.now())
	if err != nil {
		// Ein gespeichertes, nicht dekodierbares Secret ist ein Datenfehler.
		slog.ErrorContext(ctx, "Gespeichertes 2FA-Secret ist ungültig", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, wrapError(KindInternal, MsgInternal, err)
	}
	return valid, nil
}
