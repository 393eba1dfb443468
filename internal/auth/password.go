package auth

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Fehler beim Hashen des Passworts", slog.Any("error", err))
		return "", fmt.Errorf("fehler beim Hashen des Passworts: %w", err)
	}

	return string(hashedBytes), nil
}

// CheckPasswordHash vergleicht in konstanter Zeit.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// EqualizeLoginTiming vergleicht gegen einen festen Hash, damit ein unbekanntes
// Konto nicht an der kürzeren Antwortzeit erkennbar ist. Das Ergebnis ist immer false.
func EqualizeLoginTiming(password string) bool {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("backstage-login-timing"), bcrypt.DefaultCost)
	})
	bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return false
}
