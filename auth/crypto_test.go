package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryptDecrypt(t *testing.T) {
	t.Run("encrypt -> decrypt", func(t *testing.T) {
		salt, err := NewSalt()
		assert.NoError(t, err)
		key := DeriveKey("password", salt)

		encrypted, err := AESGCMEncrypt(key, []byte("this is my payload"))
		assert.NoError(t, err)

		decrypted, err := AESGCMDecrypt(key, encrypted)
		assert.NoError(t, err)

		assert.Equal(t, "this is my payload", string(decrypted))
	})

	t.Run("wrong password fails", func(t *testing.T) {
		salt, err := NewSalt()
		assert.NoError(t, err)

		encrypted, err := AESGCMEncrypt(DeriveKey("password", salt), []byte("payload"))
		assert.NoError(t, err)

		_, err = AESGCMDecrypt(DeriveKey("guess", salt), encrypted)
		assert.Error(t, err)
	})

	t.Run("same password different salts differ", func(t *testing.T) {
		saltA, err := NewSalt()
		assert.NoError(t, err)
		saltB, err := NewSalt()
		assert.NoError(t, err)

		assert.NotEqual(t, DeriveKey("password", saltA), DeriveKey("password", saltB))
	})
}
