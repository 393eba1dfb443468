package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSecurityProfileState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	secret := sql.NullString{String: "JBSWY3DPEHPK3PXP", Valid: true}
	recovery := sql.NullString{String: "abc123", Valid: true}

	tests := []struct {
		name    string
		profile *SecurityProfile
		want    SecurityState
	}{
		{"nil profile", nil, StateUnprovisioned},
		{"row without secret", &SecurityProfile{UserID: uuid.New()}, StateUnprovisioned},
		{"secret not yet confirmed", &SecurityProfile{TwoFactorSecret: secret}, StatePending},
		{"enabled", &SecurityProfile{TwoFactorSecret: secret, TwoFactorEnabled: true}, StateEnabled},
		{
			"enabled with recovery code",
			&SecurityProfile{
				TwoFactorSecret:  secret,
				TwoFactorEnabled: true,
				RecoveryCodeHash: recovery,
				RecoveryExpiry:   sql.NullTime{Time: now.Add(time.Minute), Valid: true},
			},
			StateRecoveryPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.State())
		})
	}
}

func TestSecurityStateTwoFactorActive(t *testing.T) {
	assert.False(t, StateUnprovisioned.TwoFactorActive())
	assert.False(t, StatePending.TwoFactorActive())
	assert.True(t, StateEnabled.TwoFactorActive())
	assert.True(t, StateRecoveryPending.TwoFactorActive())
	assert.Equal(t, "recovery_pending", StateRecoveryPending.String())
}

func TestRecoveryExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &SecurityProfile{
		RecoveryCodeHash: sql.NullString{String: "abc", Valid: true},
		RecoveryExpiry:   sql.NullTime{Time: now.Add(-time.Second), Valid: true},
	}
	assert.True(t, p.RecoveryExpired(now))

	p.RecoveryExpiry.Time = now
	assert.True(t, p.RecoveryExpired(now), "expiry equal to now is no longer valid")

	p.RecoveryExpiry.Time = now.Add(time.Second)
	assert.False(t, p.RecoveryExpired(now))

	p.RecoveryExpiry.Valid = false
	assert.True(t, p.RecoveryExpired(now))
}
