package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("hash verifies against original", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

		ok, err := VerifyPassword(hash, "correct horse battery")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password does not verify", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery")
		require.NoError(t, err)

		ok, err := VerifyPassword(hash, "wrong horse battery")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		h1, err := HashPassword("hunter22")
		require.NoError(t, err)
		h2, err := HashPassword("hunter22")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2, "salts must differ")
	})

	t.Run("length boundaries", func(t *testing.T) {
		cases := []struct {
			length int
			valid  bool
		}{
			{5, false},
			{6, true},
			{256, true},
			{257, false},
		}
		for _, tc := range cases {
			_, err := HashPassword(strings.Repeat("x", tc.length))
			if tc.valid {
				assert.NoError(t, err, "length %d", tc.length)
			} else {
				assert.ErrorIs(t, err, ErrPasswordLength, "length %d", tc.length)
			}
		}
	})
}

func TestVerifyPassword(t *testing.T) {
	t.Run("malformed hashes rejected", func(t *testing.T) {
		for _, bad := range []string{
			"",
			"not a hash",
			"$argon2id$v=19$m=65536,t=1,p=4$onlyonepart",
			"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
			"$argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5",
		} {
			_, err := VerifyPassword(bad, "whatever")
			assert.ErrorIs(t, err, ErrMalformedHash, "hash %q", bad)
		}
	})

	t.Run("mismatch is not an error", func(t *testing.T) {
		hash, err := HashPassword("some password")
		require.NoError(t, err)

		ok, err := VerifyPassword(hash, "other password")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNewToken(t *testing.T) {
	t.Run("generates requested length", func(t *testing.T) {
		for _, length := range []int{8, 16, TokenLength} {
			token, err := NewToken(length)
			require.NoError(t, err)
			assert.Len(t, token, length)
		}
	})

	t.Run("only URL-safe characters", func(t *testing.T) {
		token, err := NewToken(200)
		require.NoError(t, err)
		for _, c := range token {
			assert.Contains(t, tokenCharset, string(c))
		}
	})

	t.Run("no duplicates across many draws", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			token, err := NewToken(TokenLength)
			require.NoError(t, err)
			require.False(t, seen[token], "duplicate token %s", token)
			seen[token] = true
		}
	})
}
