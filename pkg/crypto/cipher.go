package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// TokenCipher encrypts and decrypts OAuth tokens before they touch the
// database. Decrypt is deliberately forgiving: data encrypted under a
// rotated-out key yields an empty string, and callers treat that as
// "no token available".
type TokenCipher interface {
	Encrypt(plaintext string) string
	Decrypt(ciphertext string) string
}

type aesCipher struct {
	aead cipher.AEAD
}

// keySalt is fixed: key rotation happens by changing the secret, and the
// Decrypt contract above absorbs the fallout.
var keySalt = []byte("mail2md-token-store")

// NewAESCipher derives a 256-bit key from the configured secret.
func NewAESCipher(secret string) (TokenCipher, error) {
	key := pbkdf2.Key([]byte(secret), keySalt, 4096, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesCipher{aead: aead}, nil
}

func (c *aesCipher) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return ""
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

func (c *aesCipher) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ""
	}
	if len(raw) < c.aead.NonceSize() {
		return ""
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}
