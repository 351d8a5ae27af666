package jwtutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	s := &Signer{Secret: []byte("test-secret"), Issuer: "folder-sync", ExpMin: 60}

	token, err := s.Sign("user-1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	s := &Signer{Secret: []byte("test-secret"), Issuer: "folder-sync", ExpMin: 60}
	other := &Signer{Secret: []byte("different"), Issuer: "folder-sync", ExpMin: 60}

	token, err := s.Sign("user-1", "alice")
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	s := &Signer{Secret: []byte("test-secret"), Issuer: "folder-sync", ExpMin: 60}
	_, err := s.Parse("not-a-token")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	s := &Signer{Secret: []byte("test-secret"), Issuer: "folder-sync", ExpMin: -1}

	token, err := s.Sign("user-1", "alice")
	require.NoError(t, err)

	_, err = s.Parse(token)
	assert.Error(t, err)
}
