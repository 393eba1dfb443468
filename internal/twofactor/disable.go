package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Disable deaktiviert 2FA nach erneuter Passwortprüfung. Bei falschem Passwort
// bleibt der Zustand unverändert.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, password string) error {
	if password == "" {
		return newError(KindValidation, MsgPasswordRequired)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return newError(KindUnauthorized, MsgUnauthorized)
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		slog.WarnContext(ctx, "Falsches Passwort beim Deaktivieren von 2FA", slog.String("user_id", userID.String()))
		return newError(KindValidation, MsgInvalidPassword)
	}

	if err := s.profiles.DisableTwoFactor(ctx, userID); err != nil {
		return wrapError(KindPersistence, MsgInternal, err)
	}
	return nil
}
