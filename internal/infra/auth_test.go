package infra

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	raw, err := v.Issue("driver-1", "driver", time.Minute)
	require.NoError(t, err)

	tok, err := v.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", tok.UID)
	assert.Equal(t, "driver", tok.Claims["role"])
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	ctx := context.Background()

	other, err := NewJWTVerifier("different").Issue("u1", "", time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue("u1", "", -time.Minute)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"no expiry":    noExp,
		"no subject":   noSub,
		"wrong method": hs512,
		"not a token":  "garbage",
		"empty":        "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyIDToken(ctx, raw)
			assert.Error(t, err)
		})
	}
}
