package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ConsumeBackupCode ist ein einzelnes DELETE; bei parallelen Anfragen mit demselben Code
// sieht nur eine davon eine betroffene Zeile.
func (r *sqlxRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	query := `DELETE FROM two_factor_backup_codes WHERE user_id = ? AND code_hash = ?`
	result, err := r.db.ExecContext(ctx, query, userID.String(), codeHash)
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Verbrauchen des Backup-Codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected != 1 {
		return false, nil
	}

	slog.InfoContext(ctx, "Backup-Code verbraucht", slog.String("user_id", userID.String()))
	return true, nil
}

func (r *sqlxRepository) countBackupCodes(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM two_factor_backup_codes WHERE user_id = ?`, userID.String())
	if err != nil {
		slog.ErrorContext(ctx, "Fehler beim Zählen der Backup-Codes", slog.Any("error", err), slog.String("user_id", userID.String()))
		return 0, err
	}
	return count, nil
}

func replaceBackupCodes(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, codeHashes []string, now time.Time) error {
	if err := deleteBackupCodes(ctx, tx, userID); err != nil {
		return err
	}

	for _, hash := range codeHashes {
		_, err := tx.ExecContext(ctx, `INSERT INTO two_factor_backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
			userID.String(), hash, now)
		if err != nil {
			return fmt.Errorf("fehler beim Speichern eines Backup-Codes: %w", err)
		}
	}
	return nil
}

func deleteBackupCodes(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("fehler beim Löschen der Backup-Codes: %w", err)
	}
	return nil
}
