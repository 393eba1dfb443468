package auth

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidSecret wird geliefert, wenn ein Secret kein gültiges Base32 ist.
var ErrInvalidSecret = errors.New("otp-secret ist nicht gültig base32 kodiert")

// EnrollmentKey ist ein frisch erzeugtes Secret samt otpauth:// URI.
type EnrollmentKey struct {
	Secret string
	URL    string
}

// OTPProvider kapselt die TOTP- und QR-Bibliotheken, damit die 2FA-Flows
// mit einer festen Uhr testbar bleiben.
type OTPProvider interface {
	GenerateSecret(accountName string) (*EnrollmentKey, error)
	ValidateCode(secret, code string, skew uint, at time.Time) (bool, error)
	RenderEnrollmentImage(uri string) (string, error)
}

// TOTP ist die OTPProvider-Implementierung auf Basis von pquerna/otp (SHA1, 6 Ziffern, 30s).
type TOTP struct {
	Issuer    string
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm
	QRSize    int
}

var _ OTPProvider = (*TOTP)(nil)

func NewTOTP(issuer string) *TOTP {
	return &TOTP{
		Issuer:    issuer,
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
		QRSize:    200,
	}
}

func (t *TOTP) GenerateSecret(accountName string) (*EnrollmentKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.Issuer,
		AccountName: accountName,
		Period:      t.Period,
		Digits:      t.Digits,
		Algorithm:   t.Algorithm,
	})
	if err != nil {
		slog.Error("Fehler beim Generieren des OTP-Secrets", slog.Any("error", err))
		return nil, fmt.Errorf("fehler beim Generieren des OTP-Secrets: %w", err)
	}
	return &EnrollmentKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateCode prüft code gegen secret zum Zeitpunkt at mit skew Perioden Toleranz
// in beide Richtungen. Ein ungültiges Secret liefert ErrInvalidSecret, ein Code mit
// falscher Länge einfach false.
func (t *TOTP) ValidateCode(secret, code string, skew uint, at time.Time) (bool, error) {
	secret = NormalizeSecret(secret)
	if !ValidSecret(secret) {
		return false, ErrInvalidSecret
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at.UTC(), totp.ValidateOpts{
		Period:    t.Period,
		Skew:      skew,
		Digits:    t.Digits,
		Algorithm: t.Algorithm,
	})
	if err != nil {
		if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
			return false, ErrInvalidSecret
		}
		slog.Debug("OTP-Validierung abgelehnt (nicht unbedingt falscher Code)", slog.Any("error", err))
		return false, nil
	}
	return valid, nil
}

// GenerateCode berechnet den Code für secret zum Zeitpunkt at.
func (t *TOTP) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(NormalizeSecret(secret), at.UTC(), totp.ValidateOpts{
		Period:    t.Period,
		Digits:    t.Digits,
		Algorithm: t.Algorithm,
	})
}

// RenderEnrollmentImage rastert die otpauth:// URI als PNG und liefert eine Data-URI.
func (t *TOTP) RenderEnrollmentImage(uri string) (string, error) {
	png, err := GenerateQRCodePNG(uri, t.QRSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func GenerateQRCodePNG(otpAuthURL string, size int) ([]byte, error) {
	qrCode, err := qr.Encode(otpAuthURL, qr.M, qr.Auto)
	if err != nil {
		slog.Error("Fehler beim Erstellen des QR-Codes", slog.Any("error", err))
		return nil, fmt.Errorf("fehler beim Erstellen des QR-Codes: %w", err)
	}

	qrCodeScaled, err := barcode.Scale(qrCode, size, size)
	if err != nil {
		slog.Error("Fehler beim Skalieren des QR-Codes", slog.Any("error", err))
		return nil, fmt.Errorf("fehler beim Skalieren des QR-Codes: %w", err)
	}

	buffer := new(bytes.Buffer)
	if err := png.Encode(buffer, qrCodeScaled); err != nil {
		slog.Error("Fehler beim Encodieren des QR-Codes als PNG", slog.Any("error", err))
		return nil, fmt.Errorf("fehler beim Encodieren des QR-Codes als PNG: %w", err)
	}

	return buffer.Bytes(), nil
}

// NormalizeSecret entfernt Leerzeichen und Padding und setzt Großbuchstaben.
func NormalizeSecret(secret string) string {
	secret = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	return strings.TrimRight(secret, "=")
}

// ValidSecret meldet, ob secret (normalisiert) dekodierbares Base32 ist.
func ValidSecret(secret string) bool {
	if secret == "" {
		return false
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	return err == nil && len(raw) > 0
}
