package database

import (
	"backstage/internal/models"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("benutzer nicht gefunden")
	ErrEmailTaken         = errors.New("e-mail-adresse ist bereits registriert")
	ErrProfileNotFound    = errors.New("sicherheitsprofil nicht gefunden")
	ErrTwoFactorEnabled   = errors.New("2fa ist bereits aktiviert")
	ErrRecoveryCodeNotSet = errors.New("recovery-code stimmt nicht überein oder wurde bereits verwendet")
	ErrSecretMismatch     = errors.New("gespeichertes 2fa-secret weicht ab")
)

// DBPinger wird vom Health-Check genutzt.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SecurityProfileRepository verwaltet user_security_profiles und two_factor_backup_codes.
// Alle Mutationen, die mehrere Spalten oder beide Tabellen betreffen, laufen in einer Transaktion.
type SecurityProfileRepository interface {
	// GetSecurityProfile liefert ErrProfileNotFound, wenn keine Zeile existiert.
	GetSecurityProfile(ctx context.Context, userID uuid.UUID) (*models.SecurityProfile, error)

	// SavePendingSecret legt ein unbestätigtes Secret ab und ersetzt alle Backup-Codes.
	// Liefert ErrTwoFactorEnabled, wenn 2FA bereits aktiv ist.
	SavePendingSecret(ctx context.Context, userID uuid.UUID, secret string, backupCodeHashes []string) error
	// EnableTwoFactor setzt enabled=true und secret; vorhandene Backup-Codes bleiben erhalten.
	// Liefert ErrSecretMismatch, wenn bereits ein anderes Secret gespeichert ist.
	EnableTwoFactor(ctx context.Context, userID uuid.UUID, secret string) error
	// DisableTwoFactor entfernt Secret, Backup-Codes und Recovery-Code. Ohne Profil ein No-op.
	DisableTwoFactor(ctx context.Context, userID uuid.UUID) error

	// ConsumeBackupCode löscht den Code atomar; true genau dann, wenn diese Anfrage ihn verbraucht hat.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)

	SetRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) error
	ClearRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) error
	// DisableWithRecoveryCode deaktiviert 2FA nur, wenn codeHash noch gespeichert ist.
	// Liefert ErrRecoveryCodeNotSet, wenn eine parallele Anfrage schneller war.
	DisableWithRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) error
}
