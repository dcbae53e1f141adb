package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Hour)

	tok, err := iss.Issue("user-1")
	require.NoError(t, err)

	uid, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewIssuer([]byte("a"), time.Hour).Issue("user-1")
	require.NoError(t, err)

	_, err = NewIssuer([]byte("b"), time.Hour).Verify(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerify_Expired(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := iss.Issue("user-1")
	require.NoError(t, err)

	_, err = iss.Verify(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "user-1",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewIssuer([]byte("secret"), time.Hour).Verify(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewIssuer([]byte("secret"), time.Hour).Verify("not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}
