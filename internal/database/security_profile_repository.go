package database

import (
	"backstage/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func (r *sqlxRepository) GetSecurityProfile(ctx context.Context, userID uuid.UUID) (*models.SecurityProfile, error) {
	var profile models.SecurityProfile
	query := `SELECT user_id, two_factor_enabled, two_factor_secret, recovery_code_hash, recovery_expiry, created_at, updated_at
	           FROM user_security_profiles WHERE user_id = ? LIMIT 1`

	err := r.db.GetContext(ctx, &profile, query, userID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.DebugContext(ctx, "Kein Sicherheitsprofil vorhanden", slog.String("user_id", userID.String()))
			return nil, ErrProfileNotFound
		}
		slog.ErrorContext(ctx, "Fehler beim Abrufen des Sicherheitsprofils", slog.Any("error", err), slog.String("user_id", userID.String()))
		return nil, err
	}

	remaining, err := r.countBackupCodes(ctx, r.db, userID)
	if err != nil {
		return nil, err
	}
	profile.BackupCodesRemaining = remaining

	slog.DebugContext(ctx, "Sicherheitsprofil abgerufen",
		slog.String("user_id", userID.String()),
		slog.String("state", profile.State().String()),
		slog.Int("backup_codes", remaining),
	)
	return &profile, nil
}

func (r *sqlxRepository) SavePendingSecret(ctx context.Context, userID uuid.UUID, secret string, backupCodeHashes []string) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked != nil && locked.Enabled {
			return ErrTwoFactorEnabled
		}

		now := time.Now().UTC()
		if locked != nil {
			_, err = tx.ExecContext(ctx, `UPDATE user_security_profiles
			           SET two_factor_enabled = FALSE, two_factor_secret = ?, recovery_code_hash = NULL, recovery_expiry = NULL, updated_at = ?
			           WHERE user_id = ?`, secret, now, userID.String())
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO user_security_profiles
			           (user_id, two_factor_enabled, two_factor_secret, created_at, updated_at)
			           VALUES (?, FALSE, ?, ?, ?)`, userID.String(), secret, now, now)
		}
		if err != nil {
			return fmt.Errorf("fehler beim Speichern des ausstehenden Secrets: %w", err)
		}

		return replaceBackupCodes(ctx, tx, userID, backupCodeHashes, now)
	})
	if err != nil {
		if !errors.Is(err, ErrTwoFactorEnabled) {
			slog.ErrorContext(ctx, "Fehler beim Provisionieren von 2FA", slog.Any("error", err), slog.String("user_id", userID.String()))
		}
		return err
	}

	slog.DebugContext(ctx, "Ausstehendes 2FA-Secret gespeichert", slog.String("user_id", userID.String()), slog.Int("backup_codes", len(backupCodeHashes)))
	return nil
}

func (r *sqlxRepository) EnableTwoFactor(ctx context.Context, userID uuid.UUID, secret string) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		// Ein paralleles Provision kann das Secret seit der Prüfung im Service ersetzt haben.
		if locked != nil && locked.Secret.Valid && locked.Secret.String != "" && locked.Secret.String != secret {
			return ErrSecretMismatch
		}

		now := time.Now().UTC()
		if locked != nil {
			_, err = tx.ExecContext(ctx, `UPDATE user_security_profiles
			           SET two_factor_enabled = TRUE, two_factor_secret = ?, updated_at = ?
			           WHERE user_id = ?`, secret, now, userID.String())
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO user_security_profiles
			           (user_id, two_factor_enabled, two_factor_secret, created_at, updated_at)
			           VALUES (?, TRUE, ?, ?, ?)`, userID.String(), secret, now, now)
		}
		if err != nil {
			return fmt.Errorf("fehler beim Aktivieren von 2FA: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSecretMismatch) {
			slog.WarnContext(ctx, "Secret wurde vor der Aktivierung ersetzt", slog.String("user_id", userID.String()))
			return err
		}
		slog.ErrorContext(ctx, "Fehler beim Aktivieren von 2FA", slog.Any("error", err), slog.String("user_id", userID.String()))
		return err
	}

	slog.InfoContext(ctx, "2FA erfolgreich aktiviert", slog.String("user_id", userID.String()))
	return nil
}

func (r *sqlxRepository) DisableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		return clearTwoFactor(ctx, tx, userID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Deaktivieren von 2FA", slog.Any("error", err), slog.String("user_id", userID.String()))
		return err
	}

	slog.InfoContext(ctx, "2FA erfolgreich deaktiviert", slog.String("user_id", userID.String()))
	return nil
}

type lockedProfile struct {
	Enabled bool           `db:"two_factor_enabled"`
	Secret  sql.NullString `db:"two_factor_secret"`
}

// lockProfile sperrt die Profilzeile für die laufende Transaktion (MySQL). nil ohne Zeile.
func lockProfile(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*lockedProfile, error) {
	query := `SELECT two_factor_enabled, two_factor_secret FROM user_security_profiles WHERE user_id = ?`
	if tx.DriverName() == "mysql" {
		query += ` FOR UPDATE`
	}

	var locked lockedProfile
	if err := tx.GetContext(ctx, &locked, query, userID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fehler beim Lesen des Sicherheitsprofils: %w", err)
	}
	return &locked, nil
}

// clearTwoFactor setzt alle 2FA-Felder zurück und löscht die Backup-Codes.
func clearTwoFactor(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE user_security_profiles
	           SET two_factor_enabled = FALSE, two_factor_secret = NULL, recovery_code_hash = NULL, recovery_expiry = NULL, updated_at = ?
	           WHERE user_id = ?`, time.Now().UTC(), userID.String())
	if err != nil {
		return fmt.Errorf("fehler beim Zurücksetzen des Sicherheitsprofils: %w", err)
	}
	return deleteBackupCodes(ctx, tx, userID)
}
