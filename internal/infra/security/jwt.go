package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messenger/internal/domain/user"
)

var ErrInvalidToken = errors.New("security: invalid token")

// JWTResolver verifies HS256 handshake tokens issued by the identity
// collaborator and extracts the subject user id. The messaging core
// treats the resulting identity as trusted.
type JWTResolver struct {
	Secret []byte
}

func (r JWTResolver) Resolve(ctx context.Context, token string) (user.ID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %q", ErrInvalidToken, t.Method.Alg())
		}
		return r.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return user.ID(subject), nil
}

// IssueToken signs a token for the given user. Used by tooling and tests;
// production tokens come from the identity service.
func IssueToken(userID user.ID, secret []byte, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": string(userID),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
