package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SetRecoveryCode speichert den Hash eines Recovery-Codes. Nur für Profile mit aktiver 2FA.
func (r *sqlxRepository) SetRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) error {
	query := `UPDATE user_security_profiles SET recovery_code_hash = ?, recovery_expiry = ?, updated_at = ?
	           WHERE user_id = ? AND two_factor_enabled = TRUE`

	result, err := r.db.ExecContext(ctx, query, codeHash, expiresAt.UTC(), time.Now().UTC(), userID.String())
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Speichern des Recovery-Codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		slog.WarnContext(ctx, "Recovery-Code für Profil ohne aktive 2FA angefordert", slog.String("user_id", userID.String()))
		return ErrProfileNotFound
	}

	slog.DebugContext(ctx, "Recovery-Code gespeichert", slog.String("user_id", userID.String()), slog.Time("expires_at", expiresAt))
	return nil
}

// ClearRecoveryCode entfernt den Recovery-Code, sofern er noch codeHash entspricht.
func (r *sqlxRepository) ClearRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) error {
	query := `UPDATE user_security_profiles SET recovery_code_hash = NULL, recovery_expiry = NULL, updated_at = ?
	           WHERE user_id = ? AND recovery_code_hash = ?`

	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), userID.String(), codeHash)
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Entfernen des Recovery-Codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return err
	}
	slog.DebugContext(ctx, "Recovery-Code entfernt", slog.String("user_id", userID.String()))
	return nil
}

func (r *sqlxRepository) DisableWithRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE user_security_profiles
		           SET two_factor_enabled = FALSE, two_factor_secret = NULL, recovery_code_hash = NULL, recovery_expiry = NULL, updated_at = ?
		           WHERE user_id = ? AND recovery_code_hash = ?`, time.Now().UTC(), userID.String(), codeHash)
		if err != nil {
			return fmt.Errorf("fehler beim Deaktivieren per Recovery-Code: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected != 1 {
			return ErrRecoveryCodeNotSet
		}
		return deleteBackupCodes(ctx, tx, userID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "2FA per Recovery-Code deaktiviert", slog.String("user_id", userID.String()))
	return nil
}
