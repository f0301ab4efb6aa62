package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"op-atlas/internal/identity/models"
	id "op-atlas/pkg/domain"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec("test-key", 14*24*time.Hour)
	entityID := id.EntityID(uuid.New())

	t.Run("verify returns payload immediately after issuance", func(t *testing.T) {
		tok, err := codec.Issue(models.KindIndividual, entityID)
		require.NoError(t, err)

		payload := codec.Verify(tok)
		require.NotNil(t, payload)
		assert.Equal(t, models.KindIndividual, payload.EntityKind)
		assert.Equal(t, entityID, payload.EntityID)
	})

	t.Run("legal entity kind round-trips", func(t *testing.T) {
		tok, err := codec.Issue(models.KindLegalEntity, entityID)
		require.NoError(t, err)

		payload := codec.Verify(tok)
		require.NotNil(t, payload)
		assert.Equal(t, models.KindLegalEntity, payload.EntityKind)
	})
}

func TestCodec_Invalid(t *testing.T) {
	codec := NewCodec("test-key", time.Hour)
	entityID := id.EntityID(uuid.New())

	t.Run("garbage returns nil not error", func(t *testing.T) {
		assert.Nil(t, codec.Verify("not-a-token"))
		assert.Nil(t, codec.Verify(""))
	})

	t.Run("token signed with another key returns nil", func(t *testing.T) {
		other := NewCodec("other-key", time.Hour)
		tok, err := other.Issue(models.KindIndividual, entityID)
		require.NoError(t, err)
		assert.Nil(t, codec.Verify(tok))
	})

	t.Run("token is nil after the validity window elapses", func(t *testing.T) {
		issued := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		clock := issued
		c := NewCodec("test-key", time.Hour).WithClock(func() time.Time { return clock })

		tok, err := c.Issue(models.KindIndividual, entityID)
		require.NoError(t, err)
		require.NotNil(t, c.Verify(tok))

		clock = issued.Add(2 * time.Hour)
		assert.Nil(t, c.Verify(tok))
	})
}
