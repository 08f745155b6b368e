package security_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger/internal/infra/security"
)

func TestJWTResolver(t *testing.T) {
	ctx := context.Background()
	secret := []byte("test-secret")
	resolver := security.JWTResolver{Secret: secret}

	t.Run("round trip", func(t *testing.T) {
		token, err := security.IssueToken("adam", secret, time.Hour)
		require.NoError(t, err)

		userID, err := resolver.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "adam", string(userID))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := security.IssueToken("adam", secret, -time.Minute)
		require.NoError(t, err)

		_, err = resolver.Resolve(ctx, token)
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := security.IssueToken("adam", []byte("other-secret"), time.Hour)
		require.NoError(t, err)

		_, err = resolver.Resolve(ctx, token)
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "  ")
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})

	t.Run("empty subject is rejected", func(t *testing.T) {
		_, err := security.IssueToken("", secret, time.Hour)
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})
}
