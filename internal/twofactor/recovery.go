package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
)

// RequestRecovery stellt einen Recovery-Code aus und verschickt ihn per Mail.
// Unbekannte Adressen und Konten ohne aktive 2FA werden stillschweigend ignoriert.
func (s *Service) RequestRecovery(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return newError(KindValidation, MsgEmailRequired)
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Acquire(ctx, "recovery:"+email)
		if err != nil {
			slog.WarnContext(ctx, "Cooldown-Prüfung fehlgeschlagen, fahre fort", slog.Any("error", err))
		} else if !allowed {
			slog.InfoContext(ctx, "Recovery-Anfrage innerhalb des Cooldowns ignoriert")
			return nil
		}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}

	profile, err := s.loadProfile(ctx, user.ID)
	if err != nil {
		return err
	}
	if !profile.State().TwoFactorActive() {
		slog.InfoContext(ctx, "Recovery angefordert, aber 2FA nicht aktiv", slog.String("user_id", user.ID.String()))
		return nil
	}

	code, err := auth.GenerateRecoveryCode()
	if err != nil {
		return wrapError(KindInternal, MsgInternal, err)
	}
	expiresAt := s.now().Add(s.settings.RecoveryCodeTTL)

	err = s.profiles.SetRecoveryCode(ctx, user.ID, auth.HashCode(user.ID.String(), code), expiresAt)
	if err != nil {
		if errors.Is(err, database.ErrProfileNotFound) {
			return nil
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}

	if err := s.mailer.SendRecoveryCode(ctx, user.Email, code, expiresAt); err != nil {
		return wrapError(KindInternal, MsgInternal, err)
	}

	slog.InfoContext(ctx, "Recovery-Code ausgestellt", slog.String("user_id", user.ID.String()), slog.Time("expires_at", expiresAt))
	return nil
}

// VerifyRecovery deaktiviert 2FA mit einem gültigen Recovery-Code. Ein abgelaufener
// Code wird entfernt, 2FA bleibt dann aktiv.
func (s *Service) VerifyRecovery(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	code = auth.NormalizeCode(code)
	if email == "" || code == "" {
		return newError(KindValidation, MsgRecoveryFieldsRequired)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return newError(KindValidation, MsgInvalidRecoveryCode)
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}

	profile, err := s.loadProfile(ctx, user.ID)
	if err != nil {
		return err
	}
	if !profile.State().TwoFactorActive() || !profile.HasRecoveryCode() {
		return newError(KindValidation, MsgInvalidRecoveryCode)
	}

	hash := auth.HashCode(user.ID.String(), code)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(profile.RecoveryCodeHash.String)) != 1 {
		slog.WarnContext(ctx, "Falscher Recovery-Code", slog.String("user_id", user.ID.String()))
		return newError(KindValidation, MsgInvalidRecoveryCode)
	}

	if profile.RecoveryExpired(s.now()) {
		if err := s.profiles.ClearRecoveryCode(ctx, user.ID, hash); err != nil {
			return wrapError(KindPersistence, MsgInternal, err)
		}
		return newError(KindValidation, MsgRecoveryCodeExpired)
	}

	if err := s.profiles.DisableWithRecoveryCode(ctx, user.ID, hash); err != nil {
		if errors.Is(err, database.ErrRecoveryCodeNotSet) {
			return newError(KindValidation, MsgInvalidRecoveryCode)
		}
		return wrapError(KindPersistence, MsgInternal, err)
	}
	return nil
}
