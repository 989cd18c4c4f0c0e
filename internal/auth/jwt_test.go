package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cret", "escrow-api", time.Minute)
	tok, exp, err := tm.Generate("u-1", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	c, err := tm.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.Equal(t, "admin", c.Role)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("s3cret", "escrow-api", time.Minute)
	tok, _, err := tm.Generate("u-1", "client")
	require.NoError(t, err)

	_, err = NewTokenManager("other", "escrow-api", time.Minute).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("s3cret", "someone-else", time.Minute).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &TokenManager{secret: []byte("s3cret"), issuer: "escrow-api", accessTTL: -time.Minute}
	old, _, err := expired.Generate("u-1", "client")
	require.NoError(t, err)
	_, err = tm.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
