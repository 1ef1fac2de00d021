// README: Bearer token verification shared by the HTTP auth middleware.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token holds the verified token data used by downstream middleware.
type Token struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw bearer token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
}

var ErrMissingSubject = errors.New("token has no subject")

// JWTVerifier accepts HS256 tokens signed with a shared secret. The uid is
// the "sub" claim; "role" is passed through with the other claims.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyIDToken(_ context.Context, idToken string) (*Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify jwt: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("verify jwt: %w", err)
	}
	if sub == "" {
		return nil, ErrMissingSubject
	}
	return &Token{UID: sub, Claims: claims}, nil
}

// Issue signs a token for uid and role valid for ttl. Used by local tooling
// and tests; production tokens come from the identity provider.
func (v *JWTVerifier) Issue(uid, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": uid,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
