// Package secrets seals partner credentials for storage. Unlike password
// handling, outbound credentials must be recoverable, so sealing is
// authenticated encryption rather than one-way hashing.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	dErrors "interop-gateway/pkg/domain-errors"
)

// Sealer encrypts and decrypts short credential strings with a process-wide key.
type Sealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewSealer constructs a Sealer from a base64-encoded 256-bit key.
func NewSealer(encodedKey string) (*Sealer, error) {
	if encodedKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sealing key is required")
	}
	key, err := base64.RawStdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "sealing key is not valid base64")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sealing key must decode to 32 bytes")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// GenerateKey returns a fresh base64-encoded sealing key.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate sealing key: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(key), nil
}

// Seal encrypts a plaintext credential. Empty input stays empty so optional
// credentials round-trip without ceremony.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed credential produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "sealed credential is not valid base64")
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", dErrors.New(dErrors.CodeInvalidInput, "sealed credential is too short")
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "could not open sealed credential")
	}
	return string(plaintext), nil
}
