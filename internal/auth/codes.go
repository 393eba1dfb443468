package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	BackupCodeCount    = 8
	BackupCodeLength   = 6
	RecoveryCodeLength = 10

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateBackupCodes erzeugt BackupCodeCount paarweise verschiedene Codes.
func GenerateBackupCodes() ([]string, error) {
	seen := make(map[string]struct{}, BackupCodeCount)
	codes := make([]string, 0, BackupCodeCount)
	for len(codes) < BackupCodeCount {
		code, err := randomCode(BackupCodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func GenerateRecoveryCode() (string, error) {
	return randomCode(RecoveryCodeLength)
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("fehler beim Erzeugen eines Zufallscodes: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode bringt Benutzereingaben in die gespeicherte Form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashCode hasht einen normalisierten Code, gesalzen mit der User-ID.
// Backup- und Recovery-Codes werden nie im Klartext gespeichert.
func HashCode(userID, code string) string {
	hasher := sha256.New()
	hasher.Write([]byte(userID))
	hasher.Write([]byte{':'})
	hasher.Write([]byte(NormalizeCode(code)))
	return hex.EncodeToString(hasher.Sum(nil))
}
