package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("sk_live_supersecret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := svc.Verify("sk_live_supersecret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("wrong-secret", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	h1, err := svc.Hash("same-secret")
	require.NoError(t, err)
	h2, err := svc.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestArgon2HashService_MalformedHash(t *testing.T) {
	svc := NewArgon2HashService()

	_, err := svc.Verify("secret", "not-a-hash")
	assert.Error(t, err)

	_, err = svc.Verify("secret", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
	assert.Error(t, err)
}
