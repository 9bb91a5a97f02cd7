package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func newTestVerifier(issuer string) *SupabaseVerifier {
	v := NewSupabaseVerifier(testSecret, "authenticated", issuer)
	v.now = func() time.Time { return testNow }
	return v
}

func validClaims() supabaseClaims {
	return supabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5b1f0c1e-6a4e-4d4b-9a55-0f4c2c7e2a10",
			Audience:  jwt.ClaimStrings{"authenticated"},
			Issuer:    "https://project.supabase.co/auth/v1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
		},
		Email: "alum@example.com",
		Role:  "authenticated",
	}
}

func TestValidateTokenSuccess(t *testing.T) {
	v := newTestVerifier("https://project.supabase.co/auth/v1")
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	userID, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "5b1f0c1e-6a4e-4d4b-9a55-0f4c2c7e2a10", userID)
}

func TestValidateTokenRejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Hour))

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	noSubject := validClaims()
	noSubject.Subject = ""

	nonUUIDSubject := validClaims()
	nonUUIDSubject.Subject = "u1"

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://elsewhere.example.com"

	cases := map[string]string{
		"empty":            "",
		"garbage":          "not-a-jwt",
		"wrong secret":     signToken(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-0000"), validClaims()),
		"wrong method":     signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()),
		"expired":          signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"wrong audience":   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAudience),
		"no subject":       signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject),
		"non-uuid subject": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), nonUUIDSubject),
		"no expiry":        signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry),
		"wrong issuer":     signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
	}

	v := newTestVerifier("https://project.supabase.co/auth/v1")
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateTokenWithoutIssuerCheck(t *testing.T) {
	v := newTestVerifier("")
	claims := validClaims()
	claims.Issuer = "anything"

	userID, err := v.ValidateToken(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
}
