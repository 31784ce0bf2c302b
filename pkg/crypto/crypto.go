package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Crypto obfuscates payloads at rest in the durable upload log.
type Crypto interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type none struct{}

// None returns the identity implementation.
func None() Crypto {
	return none{}
}

func (none) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (none) Decrypt(b []byte) ([]byte, error) { return b, nil }

type chaCha20 struct {
	key []byte
}

// NewChaCha20 seals each record with XChaCha20-Poly1305; the random nonce is
// prepended to the ciphertext.
func NewChaCha20(key []byte) (Crypto, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("chacha20 key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &chaCha20{key: k}, nil
}

// FromHexKey builds the crypto for a configured key; an empty key yields None.
func FromHexKey(hexKey string) (Crypto, error) {
	if hexKey == "" {
		return None(), nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return NewChaCha20(key)
}

func (c *chaCha20) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *chaCha20) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open record: %w", err)
	}
	return plaintext, nil
}
