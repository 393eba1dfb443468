package handlers

import "time"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken       string `json:"accessToken"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
}

type UserResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

type SetupResponse struct {
	Secret      string   `json:"secret"`
	QRCodeURL   string   `json:"qrCodeUrl"`
	BackupCodes []string `json:"backupCodes"`
}

type EnableRequest struct {
	Token  string `json:"token" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
	// AccessToken ist nur gesetzt, wenn ein Pending-Token erfolgreich geprüft wurde.
	AccessToken string `json:"accessToken,omitempty"`
}

type DisableRequest struct {
	Password string `json:"password" validate:"required"`
}

type StatusResponse struct {
	Enabled              bool `json:"enabled"`
	Pending              bool `json:"pending"`
	BackupCodesRemaining int  `json:"backupCodesRemaining"`
	RecoveryPending      bool `json:"recoveryPending"`
}

type RecoveryRequest struct {
	Email string `json:"email" validate:"required"`
}

type VerifyRecoveryRequest struct {
	Email        string `json:"email" validate:"required"`
	RecoveryCode string `json:"recoveryCode" validate:"required"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
