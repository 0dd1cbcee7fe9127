package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"a@example.com",
		" Taro.Yamada+lessons@mail.example.co.jp ",
		"UPPER@EXAMPLE.COM",
		"o'brien@example.com",
		"user@sub.example.xn--p1ai",
		"山田@example.jp",
	}
	invalid := []string{"", "plain", "a@b", "a@@example.com", "a b@example.com", "@example.com"}
	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "あい", TruncateRunes("あいう", 2))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetenvList(t *testing.T) {
	t.Setenv("LIST_TEST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, GetenvList("LIST_TEST", nil))
	assert.Equal(t, []string{"x"}, GetenvList("LIST_TEST_UNSET", []string{"x"}))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateAccessToken(secret, 7, "u@example.com", RoleStaff)
	require.NoError(t, err)

	claims, err := ValidateToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, RoleStaff, claims.Role)

	_, err = ValidateToken(tok, []byte("other"))
	assert.Error(t, err)

	_, err = GenerateAccessToken(nil, 1, "", RoleUser)
	assert.Error(t, err)
}

func TestValidateToken_RejectsExpiredAndUnsigned(t *testing.T) {
	secret := []byte("s3cret")
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           1,
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	signed, err := expired.SignedString(secret)
	require.NoError(t, err)
	_, err = ValidateToken(signed, secret)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateToken(unsigned, secret)
	assert.Error(t, err)
}
