package database

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backstage/internal/models"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqlite-Variante der eingebetteten MySQL-Migrationen.
const testSchema = `
CREATE TABLE users (
    id            TEXT     NOT NULL PRIMARY KEY,
    email         TEXT     NOT NULL UNIQUE,
    password_hash TEXT     NOT NULL,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);
CREATE TABLE user_security_profiles (
    user_id            TEXT     NOT NULL PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
    two_factor_enabled BOOLEAN  NOT NULL DEFAULT FALSE,
    two_factor_secret  TEXT     NULL,
    recovery_code_hash TEXT     NULL,
    recovery_expiry    DATETIME NULL,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);
CREATE TABLE two_factor_backup_codes (
    user_id    TEXT     NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    code_hash  TEXT     NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, code_hash)
);`

func newTestRepo(t *testing.T) *sqlxRepository {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "backstage.db"))
	require.NoError(t, err)
	// Eine Verbindung: sqlite serialisiert Schreibzugriffe ohnehin.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return &sqlxRepository{db: db}
}

func createTestUser(t *testing.T, repo *sqlxRepository, email string) *models.User {
	t.Helper()
	user := models.NewUser(email, "bcrypt-hash")
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	user := createTestUser(t, repo, "Artist@Example.com")

	byEmail, err := repo.GetUserByEmail(ctx, " artist@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "artist@example.com", byEmail.Email)
	assert.Equal(t, "bcrypt-hash", byEmail.PasswordHash)

	byID, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, byEmail.Email, byID.Email)

	err = repo.CreateUser(ctx, models.NewUser("artist@example.com", "other"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = repo.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSavePendingSecretAndEnable(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")

	_, err := repo.GetSecurityProfile(ctx, user.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	first := []string{"h1", "h2", "h3", "h4", "h5", "h6", "h7", "h8"}
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", first))

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, profile.State())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", profile.Secret())
	assert.Equal(t, 8, profile.BackupCodesRemaining)

	// Erneutes Provisionieren ersetzt Secret und Codes vollständig.
	second := []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8"}
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "KRSXG5CTMVRXEZLU", second))
	consumed, err := repo.ConsumeBackupCode(ctx, user.ID, "h1")
	require.NoError(t, err)
	assert.False(t, consumed, "alter Code darf nach Neuprovisionierung nicht mehr gelten")

	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, "KRSXG5CTMVRXEZLU"))
	profile, err = repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateEnabled, profile.State())
	assert.Equal(t, "KRSXG5CTMVRXEZLU", profile.Secret())
	assert.Equal(t, 8, profile.BackupCodesRemaining, "Backup-Codes werden übernommen")

	err = repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", first)
	assert.ErrorIs(t, err, ErrTwoFactorEnabled)
	profile, err = repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "KRSXG5CTMVRXEZLU", profile.Secret(), "aktives Secret bleibt unverändert")
}

func TestEnableTwoFactorRejectsReplacedSecret(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")

	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"a"}))
	// Ein zweites Setup ersetzt das Secret, bevor das erste aktiviert wird.
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "KRSXG5CTMVRXEZLU", []string{"b"}))

	err := repo.EnableTwoFactor(ctx, user.ID, "JBSWY3DPEHPK3PXP")
	assert.ErrorIs(t, err, ErrSecretMismatch)

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, profile.State())
	assert.Equal(t, "KRSXG5CTMVRXEZLU", profile.Secret())
}

func TestEnableTwoFactorWithoutProfileCreatesRow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")

	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, "JBSWY3DPEHPK3PXP"))

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.TwoFactorEnabled)
	assert.Equal(t, 0, profile.BackupCodesRemaining)
}

func TestConsumeBackupCodeOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"a", "b"}))

	ok, err := repo.ConsumeBackupCode(ctx, user.ID, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeBackupCode(ctx, user.ID, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConsumeBackupCode(ctx, uuid.New(), "b")
	require.NoError(t, err)
	assert.False(t, ok, "Codes sind an den Benutzer gebunden")

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.BackupCodesRemaining)
}

func TestConsumeBackupCodeConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"shared"}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConsumeBackupCode(ctx, user.ID, "shared")
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")

	require.NoError(t, repo.DisableTwoFactor(ctx, user.ID), "ohne Profil kein Fehler")

	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"a", "b"}))
	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, "JBSWY3DPEHPK3PXP"))
	require.NoError(t, repo.SetRecoveryCode(ctx, user.ID, "rc", time.Now().Add(time.Hour)))

	require.NoError(t, repo.DisableTwoFactor(ctx, user.ID))

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnprovisioned, profile.State())
	assert.False(t, profile.TwoFactorEnabled)
	assert.False(t, profile.HasRecoveryCode())
	assert.False(t, profile.RecoveryExpiry.Valid)
	assert.Equal(t, 0, profile.BackupCodesRemaining)
}

func TestRecoveryCodeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")

	err := repo.SetRecoveryCode(ctx, user.ID, "rc", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrProfileNotFound, "ohne aktive 2FA gibt es keinen Recovery-Code")

	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"a"}))
	err = repo.SetRecoveryCode(ctx, user.ID, "rc", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrProfileNotFound, "ausstehende 2FA zählt nicht als aktiv")

	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, "JBSWY3DPEHPK3PXP"))
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetRecoveryCode(ctx, user.ID, "rc", expiry))

	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRecoveryPending, profile.State())
	assert.True(t, expiry.Equal(profile.RecoveryExpiry.Time))

	require.NoError(t, repo.ClearRecoveryCode(ctx, user.ID, "other"))
	profile, err = repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.HasRecoveryCode(), "fremder Hash löscht nichts")

	require.NoError(t, repo.ClearRecoveryCode(ctx, user.ID, "rc"))
	profile, err = repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateEnabled, profile.State())
}

func TestDisableWithRecoveryCode(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "artist@example.com")
	require.NoError(t, repo.SavePendingSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP", []string{"a", "b"}))
	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, "JBSWY3DPEHPK3PXP"))
	require.NoError(t, repo.SetRecoveryCode(ctx, user.ID, "rc", time.Now().Add(time.Hour)))

	err := repo.DisableWithRecoveryCode(ctx, user.ID, "wrong")
	assert.ErrorIs(t, err, ErrRecoveryCodeNotSet)
	profile, err := repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, profile.TwoFactorEnabled)
	assert.Equal(t, 2, profile.BackupCodesRemaining)

	require.NoError(t, repo.DisableWithRecoveryCode(ctx, user.ID, "rc"))
	profile, err = repo.GetSecurityProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnprovisioned, profile.State())
	assert.Equal(t, 0, profile.BackupCodesRemaining)

	err = repo.DisableWithRecoveryCode(ctx, user.ID, "rc")
	assert.ErrorIs(t, err, ErrRecoveryCodeNotSet, "kein Replay")
}
