package auth

import (
	"backstage/internal/models"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims tragen die Identität. Der 2FA-Zustand wird bei jeder Anfrage
// aus der Datenbank gelesen; TwoFactorPending markiert nur ein Login, dessen
// zweiter Faktor noch aussteht.
type CustomClaims struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	TwoFactorPending bool   `json:"tfa_pending,omitempty"`
	jwt.RegisteredClaims
}

func newClaims(user *models.User, now time.Time, ttl time.Duration) CustomClaims {
	return CustomClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}
}

// Validate wird von jwt/v5 nach den Standardprüfungen aufgerufen.
func (c CustomClaims) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id fehlt im Token")
	}
	if _, err := uuid.Parse(c.UserID); err != nil {
		return errors.New("user_id ist keine UUID")
	}
	if c.Subject != c.UserID {
		return errors.New("sub und user_id stimmen nicht überein")
	}
	return nil
}
