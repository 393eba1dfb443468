package auth

import (
	"backstage/internal/models"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "backstage-auth"

// PendingTokenTTL ist die Laufzeit eines Tokens, dessen zweiter Faktor noch aussteht.
const PendingTokenTTL = 5 * time.Minute

func GenerateToken(user *models.User, privateKey *rsa.PrivateKey, ttl time.Duration) (string, error) {
	return signToken(user, privateKey, ttl, false)
}

// GeneratePendingToken stellt nach einem Passwort-Login mit aktiver 2FA ein
// kurzlebiges Token aus, das erst /verify-2fa gegen ein volles Token tauscht.
func GeneratePendingToken(user *models.User, privateKey *rsa.PrivateKey) (string, error) {
	return signToken(user, privateKey, PendingTokenTTL, true)
}

func signToken(user *models.User, privateKey *rsa.PrivateKey, ttl time.Duration, pending bool) (string, error) {
	if user == nil {
		return "", fmt.Errorf("benutzer darf nicht nil sein")
	}
	if privateKey == nil {
		return "", fmt.Errorf("privater Schlüssel darf nicht nil sein")
	}

	claims := newClaims(user, time.Now().UTC(), ttl)
	claims.TwoFactorPending = pending
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	signedToken, err := token.SignedString(privateKey)
	if err != nil {
		slog.Error("Fehler beim Signieren des JWT", slog.Any("error", err))
		return "", fmt.Errorf("fehler beim Signieren des JWT: %w", err)
	}

	slog.Debug("JWT erfolgreich erstellt", slog.String("user_id", user.ID.String()),
		slog.Time("expires_at", claims.ExpiresAt.Time), slog.Bool("two_factor_pending", pending))
	return signedToken, nil
}

// ParseToken verifiziert Signatur (nur RSA), Ablauf, Issuer und die eigenen Claims.
func ParseToken(tokenString string, publicKey *rsa.PublicKey) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unerwarteter Signaturalgorithmus: %v", token.Header["alg"])
		}
		return publicKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("ungültige Claims")
	}
	return claims, nil
}
