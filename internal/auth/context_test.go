// ABOUTME: Unit tests for identity context helpers
// ABOUTME: Covers round-tripping and absent identities

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithIdentity_RoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{UserID: "user-1", Source: "jwt"})

	id := FromContext(ctx)
	if assert.NotNil(t, id) {
		assert.Equal(t, "user-1", id.UserID)
		assert.Equal(t, "jwt", id.Source)
	}
	assert.Equal(t, "user-1", UserID(ctx))
}

func TestFromContext_Absent(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, "", UserID(context.Background()))
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), identityKey{}, "not an identity")
	assert.Nil(t, FromContext(ctx))
}
