package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaker_GenerateAndParse(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	token, err := maker.GenerateToken("mechfan", "user", "550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mechfan", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", claims.UserUID)
}

func TestMaker_ParseExpiredToken(t *testing.T) {
	maker := NewMaker("test-secret", -time.Minute)

	token, err := maker.GenerateToken("mechfan", "user", "uid")
	require.NoError(t, err)

	_, err = maker.ParseToken(token)
	assert.Error(t, err)
}

func TestMaker_ParseWrongKey(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)
	other := NewMaker("another-secret", time.Hour)

	token, err := maker.GenerateToken("mechfan", "admin", "uid")
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.Error(t, err)
}
