package database

import (
	"backstage/internal/models"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// CreateUser fügt einen neuen Benutzer ein. E-Mails werden kleingeschrieben gespeichert.
func (r *sqlxRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)

	query := `INSERT INTO users (id, email, password_hash, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			slog.DebugContext(ctx, "E-Mail bereits registriert", slog.String("email", user.Email))
			return ErrEmailTaken
		}
		slog.ErrorContext(ctx, "Fehler beim Einfügen des Benutzers", slog.Any("error", err), slog.String("email", user.Email))
		return err
	}
	slog.DebugContext(ctx, "Benutzer erfolgreich in DB erstellt", slog.String("user_id", user.ID.String()))
	return nil
}

func (r *sqlxRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ? LIMIT 1`
	err := r.db.GetContext(ctx, &user, query, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.DebugContext(ctx, "Benutzer nicht gefunden", slog.String("email", email))
			return nil, ErrUserNotFound
		}
		slog.ErrorContext(ctx, "Fehler beim Abrufen des Benutzers nach E-Mail", slog.Any("error", err), slog.String("email", email))
		return nil, err
	}
	return &user, nil
}

func (r *sqlxRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ? LIMIT 1`
	err := r.db.GetContext(ctx, &user, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.DebugContext(ctx, "Benutzer nicht gefunden", slog.String("id", id.String()))
			return nil, ErrUserNotFound
		}
		slog.ErrorContext(ctx, "Fehler beim Abrufen des Benutzers nach ID", slog.Any("error", err), slog.String("id", id.String()))
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
