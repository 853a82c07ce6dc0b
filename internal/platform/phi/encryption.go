// Package phi encrypts patient identifiers and contact data at rest.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// FieldEncryptor encrypts single column values.
type FieldEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESEncryptor is AES-256-GCM with the nonce prepended to the ciphertext,
// base64 encoded.
type AESEncryptor struct {
	aead cipher.AEAD
}

func NewAESEncryptor(key []byte) (*AESEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi encryptor: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create GCM: %w", err)
	}
	return &AESEncryptor{aead: aead}, nil
}

func (e *AESEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi encrypt: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AESEncryptor) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("phi decrypt: base64 decode: %w", err)
	}
	n := e.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("phi decrypt: ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("phi decrypt: %w", err)
	}
	return string(plaintext), nil
}

// FromHexKey builds the encryptor for PHI_ENCRYPTION_KEY. An empty key
// disables encryption and returns nil.
func FromHexKey(key string, logger zerolog.Logger) (FieldEncryptor, error) {
	if key == "" {
		logger.Warn().Msg("PHI encryption disabled: PHI_ENCRYPTION_KEY is not set")
		return nil, nil
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	enc, err := NewAESEncryptor(raw)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("PHI field-level encryption enabled")
	return enc, nil
}

// Fields applies an optional encryptor to nullable columns.
type Fields struct {
	Enc FieldEncryptor
}

// Seal encrypts each non-empty value in place.
func (f Fields) Seal(values ...*string) error {
	if f.Enc == nil {
		return nil
	}
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		out, err := f.Enc.Encrypt(*v)
		if err != nil {
			return fmt.Errorf("encrypting PHI field: %w", err)
		}
		*v = out
	}
	return nil
}

// Open decrypts each non-empty value in place.
func (f Fields) Open(values ...*string) error {
	if f.Enc == nil {
		return nil
	}
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		out, err := f.Enc.Decrypt(*v)
		if err != nil {
			return fmt.Errorf("decrypting PHI field: %w", err)
		}
		*v = out
	}
	return nil
}
