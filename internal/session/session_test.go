package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
)

func TestSessionRoundTrip(t *testing.T) {
	svc := NewService("test-signing-key")
	userID := id.UserID(uuid.New())

	t.Run("sign then resolve preserves claims", func(t *testing.T) {
		token, err := svc.Sign(userID, true, true, time.Hour)
		require.NoError(t, err)

		sess, err := svc.Resolve(token)
		require.NoError(t, err)
		assert.Equal(t, userID, sess.UserID)
		assert.True(t, sess.Impersonated)
		assert.True(t, sess.Admin)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := svc.Sign(userID, false, false, -time.Minute)
		require.NoError(t, err)

		_, err = svc.Resolve(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("token signed with another key rejected", func(t *testing.T) {
		other := NewService("some-other-key")
		token, err := other.Sign(userID, false, false, time.Hour)
		require.NoError(t, err)

		_, err = svc.Resolve(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestEnsureWritable(t *testing.T) {
	svc := NewService("test-signing-key")
	userID := id.UserID(uuid.New())

	t.Run("plain session may write", func(t *testing.T) {
		ctx := Inject(context.Background(), &Session{UserID: userID})
		require.NoError(t, EnsureWritable(ctx))
	})

	t.Run("impersonated session is read-only", func(t *testing.T) {
		token, err := svc.Sign(userID, true, true, time.Hour)
		require.NoError(t, err)
		sess, err := svc.Resolve(token)
		require.NoError(t, err)

		ctx := Inject(context.Background(), sess)
		err = EnsureWritable(ctx)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
