package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

func TestArgon2Params_Hash(t *testing.T) {
	t.Run("salt and key are recoverable", func(t *testing.T) {
		encoded, err := testArgon2.Hash("correct horse")
		require.NoError(t, err)

		parts := strings.Split(encoded, "$")
		require.Len(t, parts, 2)
		salt, err := base64.StdEncoding.DecodeString(parts[0])
		require.NoError(t, err)
		key, err := base64.StdEncoding.DecodeString(parts[1])
		require.NoError(t, err)
		assert.Len(t, salt, testArgon2.SaltLength)

		again := argon2.IDKey([]byte("correct horse"), salt, testArgon2.Time, testArgon2.Memory, testArgon2.Threads, testArgon2.KeyLength)
		assert.Equal(t, again, key)
	})

	t.Run("fresh salt every time", func(t *testing.T) {
		first, err := testArgon2.Hash("pw")
		require.NoError(t, err)
		second, err := testArgon2.Hash("pw")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		_, err := Argon2Params{Time: 1, Memory: 1024, Threads: 0, KeyLength: 16, SaltLength: 8}.Hash("pw")
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		p := DefaultArgon2Params()
		assert.Equal(t, uint32(64*1024), p.Memory)
		assert.Equal(t, uint32(32), p.KeyLength)
	})
}
