package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SecurityState ist der explizite 2FA-Zustand eines Profils.
type SecurityState int

const (
	StateUnprovisioned SecurityState = iota
	StatePending
	StateEnabled
	StateRecoveryPending
)

func (s SecurityState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEnabled:
		return "enabled"
	case StateRecoveryPending:
		return "recovery_pending"
	default:
		return "unprovisioned"
	}
}

// TwoFactorActive ist true für Enabled und RecoveryPending.
func (s SecurityState) TwoFactorActive() bool {
	return s == StateEnabled || s == StateRecoveryPending
}

// SecurityProfile entspricht einer Zeile in user_security_profiles.
// Backup-Codes liegen in einer eigenen Tabelle und werden nur gezählt.
type SecurityProfile struct {
	UserID           uuid.UUID      `db:"user_id"`
	TwoFactorEnabled bool           `db:"two_factor_enabled"`
	TwoFactorSecret  sql.NullString `db:"two_factor_secret"`
	RecoveryCodeHash sql.NullString `db:"recovery_code_hash"`
	RecoveryExpiry   sql.NullTime   `db:"recovery_expiry"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`

	BackupCodesRemaining int `db:"-"`
}

// State leitet den Zustand aus den Spalten ab. Ein nil-Profil ist Unprovisioned.
func (p *SecurityProfile) State() SecurityState {
	if p == nil || !p.TwoFactorSecret.Valid || p.TwoFactorSecret.String == "" {
		return StateUnprovisioned
	}
	if !p.TwoFactorEnabled {
		return StatePending
	}
	if p.HasRecoveryCode() {
		return StateRecoveryPending
	}
	return StateEnabled
}

// Secret liefert das gespeicherte Secret; "" wenn keins vorhanden ist.
func (p *SecurityProfile) Secret() string {
	if p == nil || !p.TwoFactorSecret.Valid {
		return ""
	}
	return p.TwoFactorSecret.String
}

func (p *SecurityProfile) HasRecoveryCode() bool {
	return p != nil && p.RecoveryCodeHash.Valid && p.RecoveryCodeHash.String != ""
}

// RecoveryExpired ist true, wenn der Recovery-Code zum Zeitpunkt now nicht mehr gilt.
// Ein Code ohne Ablaufzeit gilt als abgelaufen.
func (p *SecurityProfile) RecoveryExpired(now time.Time) bool {
	if !p.HasRecoveryCode() || !p.RecoveryExpiry.Valid {
		return true
	}
	return !p.RecoveryExpiry.Time.After(now)
}
