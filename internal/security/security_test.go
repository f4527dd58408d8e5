package security_test

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
)

func TestTokenService(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)
	bakery := domain.Identity{UserID: "b1", Role: domain.RoleBakery}

	tok, err := svc.Issue(bakery)
	require.NoError(t, err)

	t.Run("Verify", func(t *testing.T) {
		id, err := svc.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, bakery, id)
		assert.True(t, id.CanResolveDonations())
	})

	t.Run("WrongSecret", func(t *testing.T) {
		_, err := security.NewTokenService("other", time.Hour).Verify(tok)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		old, err := svc.IssueWithTTL(bakery, -time.Minute)
		require.NoError(t, err)
		_, err = svc.Verify(old)
		assert.Error(t, err)
	})

	t.Run("UnverifiedIdentity", func(t *testing.T) {
		id, err := security.IdentityFromToken(tok)
		require.NoError(t, err)
		assert.Equal(t, bakery, id)
	})

	t.Run("DefaultRole", func(t *testing.T) {
		tok, err := svc.Issue(domain.Identity{UserID: "r1"})
		require.NoError(t, err)
		id, err := svc.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleRequester, id.Role)
		assert.False(t, id.CanResolveDonations())
	})
}

func TestEncryptor(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("some secret"), nil)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("hello")
	require.NoError(t, err)
	assert.NotEqual(t, "hello", sealed)

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	assert.Equal(t, "legacy plaintext", enc.Open("legacy plaintext"))
	assert.Equal(t, "", enc.Open(""))

	t.Run("LegacyFernetKey", func(t *testing.T) {
		var k fernet.Key
		require.NoError(t, k.Generate())
		token, err := fernet.EncryptAndSign([]byte("old message"), &k)
		require.NoError(t, err)

		enc, err := security.NewEncryptor([]byte("new secret"), []string{k.Encode()})
		require.NoError(t, err)
		plain, err := enc.Decrypt(string(token))
		require.NoError(t, err)
		assert.Equal(t, "old message", plain)
	})
}
