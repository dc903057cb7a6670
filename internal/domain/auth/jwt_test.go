package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret", "tradeledger"))

	token, exp, err := svc.GenerateAccessToken("u-1", "Awa", []string{RoleAccountant}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	actor, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, "Awa", actor.Name)
	assert.True(t, actor.HasRole(RoleAccountant))
	assert.False(t, actor.HasRole(RoleAdmin))
}

func TestJWT_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret", "tradeledger"))
	good, _, err := svc.GenerateAccessToken("u-1", "", nil, time.Minute)
	require.NoError(t, err)

	otherKey, _, err := NewJWTService(DefaultJWTConfig("other", "tradeledger")).GenerateAccessToken("u-1", "", nil, time.Minute)
	require.NoError(t, err)

	otherIssuer, _, err := NewJWTService(DefaultJWTConfig("secret", "someone-else")).GenerateAccessToken("u-1", "", nil, time.Minute)
	require.NoError(t, err)

	expired := NewJWTService(DefaultJWTConfig("secret", "tradeledger"))
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.GenerateAccessToken("u-1", "", nil, time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "tradeledger", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"expired":      old,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}

	_, err = svc.ValidateToken(good)
	assert.NoError(t, err)
}

func TestJWT_RequiresUser(t *testing.T) {
	_, _, err := NewJWTService(DefaultJWTConfig("s", "")).GenerateAccessToken("", "", nil, 0)
	assert.Error(t, err)
}
