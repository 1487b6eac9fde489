// Package crypto seals message content at rest. It implements HKDF-SHA256
// key derivation and AES-256-GCM authenticated encryption with a random
// per-message nonce stored alongside the ciphertext, so decryption is
// self-contained.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// NonceSize is the byte length of the GCM nonce (96 bits).
	NonceSize = 12
	// KeySize is the byte length of the AES-256 key.
	KeySize = 32
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid key")
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
)

// hkdfInfo is the context string bound into derived keys.
var hkdfInfo = []byte("presencehub-msg-v1")

// Box seals and opens message content with one derived symmetric key.
// Safe for concurrent use.
type Box struct {
	aead cipher.AEAD
}

// NewBox derives an AES-256 key from the configured secret via HKDF-SHA256
// and prepares the GCM cipher.
func NewBox(secret []byte) (*Box, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
// A fresh random nonce is drawn per call.
func (b *Box) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal.
func (b *Box) Open(blob []byte) (string, error) {
	if len(blob) < NonceSize {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := b.aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
