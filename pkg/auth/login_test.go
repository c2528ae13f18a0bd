package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	store := fixtureIdentities()
	store.byID[1].PasswordHash = hash
	store.byID[4].PasswordHash = hash
	ctx := context.Background()

	identity, err := Authenticate(ctx, store, "u1@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), identity.ID)

	failures := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "u1@example.com", password: "nope-nope"},
		{name: "unknown email", email: "nobody@example.com", password: "s3cret-pass"},
		{name: "inactive", email: "gone@example.com", password: "s3cret-pass"},
		{name: "empty password", email: "u1@example.com", password: ""},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Authenticate(ctx, store, tt.email, tt.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCredential)
			assert.Equal(t, LoginFailedMessage, err.Error())
		})
	}
}
