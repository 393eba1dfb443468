package auth

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "JBSWY3DPEHPK3PXP"

// Auf eine Periodengrenze ausgerichtet, damit ±30s genau einen Zähler verschieben.
var periodStart = time.Unix(1699999980, 0).UTC()

func TestTOTPGenerateSecret(t *testing.T) {
	provider := NewTOTP("Backstage")

	key, err := provider.GenerateSecret("artist@example.com")
	require.NoError(t, err)

	assert.True(t, ValidSecret(key.Secret))
	u, err := url.Parse(key.URL)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, "Backstage", u.Query().Get("issuer"))
	assert.Equal(t, key.Secret, u.Query().Get("secret"))
	assert.Contains(t, u.Path, "artist@example.com")
}

func TestTOTPValidateCodeSkew(t *testing.T) {
	provider := NewTOTP("Backstage")

	current, err := provider.GenerateCode(testSecret, periodStart)
	require.NoError(t, err)
	previous, err := provider.GenerateCode(testSecret, periodStart.Add(-30*time.Second))
	require.NoError(t, err)
	next, err := provider.GenerateCode(testSecret, periodStart.Add(30*time.Second))
	require.NoError(t, err)
	stale, err := provider.GenerateCode(testSecret, periodStart.Add(-60*time.Second))
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		skew uint
		want bool
	}{
		{"current code without skew", current, 0, true},
		{"previous code without skew", previous, 0, false},
		{"previous code with skew 1", previous, 1, true},
		{"next code with skew 1", next, 1, true},
		{"two periods old with skew 1", stale, 1, false},
		{"wrong length", "12345", 1, false},
		{"letters", "abcdef", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := provider.ValidateCode(testSecret, tt.code, tt.skew, periodStart)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTOTPValidateCodeNormalizesSecret(t *testing.T) {
	provider := NewTOTP("Backstage")
	code, err := provider.GenerateCode(testSecret, periodStart)
	require.NoError(t, err)

	ok, err := provider.ValidateCode(" jbsw y3dp ehpk 3pxp ", code, 0, periodStart)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTOTPValidateCodeInvalidSecret(t *testing.T) {
	provider := NewTOTP("Backstage")

	for _, secret := range []string{"", "not-base32!", "1111"} {
		ok, err := provider.ValidateCode(secret, "123456", 0, periodStart)
		assert.ErrorIs(t, err, ErrInvalidSecret, secret)
		assert.False(t, ok)
	}
}

func TestRenderEnrollmentImage(t *testing.T) {
	provider := NewTOTP("Backstage")

	img, err := provider.RenderEnrollmentImage("otpauth://totp/Backstage:artist@example.com?secret=" + testSecret + "&issuer=Backstage")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(img, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(img, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), raw[:4])
}
