package twofactor

import (
	"backstage/internal/auth"
	"backstage/internal/database"
	"backstage/internal/models"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// memStore ist ein In-Memory-Ersatz für beide Repositories.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	profiles    map[uuid.UUID]*models.SecurityProfile
	backupCodes map[uuid.UUID]map[string]struct{}

	failWrites bool
}

var _ database.UserRepository = (*memStore)(nil)
var _ database.SecurityProfileRepository = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:       map[uuid.UUID]*models.User{},
		profiles:    map[uuid.UUID]*models.SecurityProfile{},
		backupCodes: map[uuid.UUID]map[string]struct{}{},
	}
}

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetSecurityProfile(_ context.Context, userID uuid.UUID) (*models.SecurityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, database.ErrProfileNotFound
	}
	cp := *p
	cp.BackupCodesRemaining = len(m.backupCodes[userID])
	return &cp, nil
}

func (m *memStore) profile(userID uuid.UUID) *models.SecurityProfile {
	p, ok := m.profiles[userID]
	if !ok {
		p = &models.SecurityProfile{UserID: userID, CreatedAt: time.Now()}
		m.profiles[userID] = p
	}
	return p
}

func (m *memStore) SavePendingSecret(_ context.Context, userID uuid.UUID, secret string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errStoreDown
	}
	if p, ok := m.profiles[userID]; ok && p.TwoFactorEnabled {
		return database.ErrTwoFactorEnabled
	}
	p := m.profile(userID)
	p.TwoFactorEnabled = false
	p.TwoFactorSecret = sql.NullString{String: secret, Valid: true}
	p.RecoveryCodeHash = sql.NullString{}
	p.RecoveryExpiry = sql.NullTime{}
	codes := map[string]struct{}{}
	for _, h := range hashes {
		codes[h] = struct{}{}
	}
	m.backupCodes[userID] = codes
	return nil
}

func (m *memStore) EnableTwoFactor(_ context.Context, userID uuid.UUID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errStoreDown
	}
	if p, ok := m.profiles[userID]; ok && p.TwoFactorSecret.String != "" && p.TwoFactorSecret.String != secret {
		return database.ErrSecretMismatch
	}
	p := m.profile(userID)
	p.TwoFactorEnabled = true
	p.TwoFactorSecret = sql.NullString{String: secret, Valid: true}
	return nil
}

func (m *memStore) DisableTwoFactor(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errStoreDown
	}
	m.clear(userID)
	return nil
}

func (m *memStore) clear(userID uuid.UUID) {
	if p, ok := m.profiles[userID]; ok {
		p.TwoFactorEnabled = false
		p.TwoFactorSecret = sql.NullString{}
		p.RecoveryCodeHash = sql.NullString{}
		p.RecoveryExpiry = sql.NullTime{}
	}
	delete(m.backupCodes, userID)
}

func (m *memStore) ConsumeBackupCode(_ context.Context, userID uuid.UUID, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backupCodes[userID][hash]; !ok {
		return false, nil
	}
	delete(m.backupCodes[userID], hash)
	return true, nil
}

func (m *memStore) SetRecoveryCode(_ context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok || !p.TwoFactorEnabled {
		return database.ErrProfileNotFound
	}
	p.RecoveryCodeHash = sql.NullString{String: hash, Valid: true}
	p.RecoveryExpiry = sql.NullTime{Time: expiresAt, Valid: true}
	return nil
}

func (m *memStore) ClearRecoveryCode(_ context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok && p.RecoveryCodeHash.String == hash {
		p.RecoveryCodeHash = sql.NullString{}
		p.RecoveryExpiry = sql.NullTime{}
	}
	return nil
}

func (m *memStore) DisableWithRecoveryCode(_ context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok || !p.RecoveryCodeHash.Valid || p.RecoveryCodeHash.String != hash {
		return database.ErrRecoveryCodeNotSet
	}
	m.clear(userID)
	return nil
}

type sentMail struct {
	to        string
	code      string
	expiresAt time.Time
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendRecoveryCode(_ context.Context, to, code string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, code: code, expiresAt: expiresAt})
	return nil
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "keine Mail verschickt")
	return f.sent[len(f.sent)-1]
}

type fakeThrottle struct {
	seen map[string]bool
	err  error
}

func (f *fakeThrottle) Acquire(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

// fakeClock ist eine manuell verstellbare Uhr.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *Service
	store  *memStore
	mailer *fakeMailer
	clock  *fakeClock
	totp   *auth.TOTP
	user   *models.User
}

const testPassword = "correct horse battery"

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := newMemStore()
	mailer := &fakeMailer{}
	// Auf eine 30s-Periodengrenze ausgerichtet.
	clock := &fakeClock{now: time.Unix(1699999980, 0).UTC()}
	totp := auth.NewTOTP("Backstage")

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	user := models.NewUser("artist@example.com", hash)
	require.NoError(t, store.CreateUser(context.Background(), user))

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewService(store, store, totp, mailer, Settings{
		EnrollSkew:      1,
		ChallengeSkew:   0,
		RecoveryCodeTTL: 15 * time.Minute,
	}, opts...)

	return &fixture{svc: svc, store: store, mailer: mailer, clock: clock, totp: totp, user: user}
}

func (f *fixture) code(t *testing.T, secret string, offset time.Duration) string {
	t.Helper()
	code, err := f.totp.GenerateCode(secret, f.clock.Now().Add(offset))
	require.NoError(t, err)
	return code
}

// enable bringt den Testbenutzer in den Zustand Enabled und liefert Secret und Backup-Codes.
func (f *fixture) enable(t *testing.T) (string, []string) {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.Provision(ctx, f.user.ID, f.user.Email)
	require.NoError(t, err)
	require.NoError(t, f.svc.Enable(ctx, f.user.ID, f.code(t, p.Secret, 0), p.Secret))
	return p.Secret, p.BackupCodes
}

func requireKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	var tfErr *Error
	require.ErrorAs(t, err, &tfErr)
	require.Equal(t, kind, tfErr.Kind, tfErr.Error())
	require.Equal(t, msg, tfErr.Message)
}
