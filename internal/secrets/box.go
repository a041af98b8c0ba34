// Package secrets encrypts credentials stored in the database.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes, hex or base64 encoded")
	ErrMalformedSealed   = errors.New("sealed value is malformed")
	ErrDecryptionFailure = errors.New("sealed value could not be decrypted")
)

// Box seals short secrets with AES-256-GCM. Sealed values are base64 of
// nonce || ciphertext.
type Box struct {
	gcm cipher.AEAD
}

// NewBox accepts a 32-byte key as 64 hex characters or standard base64.
func NewBox(key string) (*Box, error) {
	raw, err := decodeKey(strings.TrimSpace(key))
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Box{gcm: gcm}, nil
}

func decodeKey(key string) ([]byte, error) {
	if len(key) == 64 {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw, nil
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, ErrInvalidKey
}

// Seal encrypts plaintext with a fresh random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformedSealed
	}
	nonceSize := b.gcm.NonceSize()
	if len(data) < nonceSize+b.gcm.Overhead() {
		return "", ErrMalformedSealed
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailure
	}
	return string(plaintext), nil
}
