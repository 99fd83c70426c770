// Package crypto provides AES-256-GCM encryption for data at rest.
// PesaGate uses it to encrypt customer phone numbers before they reach
// the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKeySize indicates the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes (256 bits)")
	// ErrInvalidCiphertext indicates the ciphertext is too short or malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short or malformed")
	// ErrDecryptionFailed indicates GCM authentication failed.
	ErrDecryptionFailed = errors.New("decryption failed: authentication failed")
)

// AESCrypto is an AES-256-GCM encryption service.
type AESCrypto struct {
	key []byte
}

// NewAESCrypto creates the encryption service. key must be 32 bytes.
func NewAESCrypto(key []byte) (*AESCrypto, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	return &AESCrypto{
		key: key,
	}, nil
}

// NewAESCryptoFromPassphrase derives a 32-byte key from an arbitrary
// passphrase using SHA-256 and creates the encryption service. Lets the
// ENCRYPTION_KEY configuration value be any non-empty string.
func NewAESCryptoFromPassphrase(passphrase string) (*AESCrypto, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKeySize)
	}
	sum := sha256.Sum256([]byte(passphrase))
	return NewAESCrypto(sum[:])
}

// Encrypt encrypts plaintext with AES-256-GCM.
// Returns a Base64 encoded blob: nonce(12 bytes) + ciphertext + tag(16 bytes).
func (a *AESCrypto) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	return encoded, nil
}

// Decrypt decrypts a Base64 encoded AES-256-GCM blob.
func (a *AESCrypto) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(decoded) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, encrypted := decoded[:nonceSize], decoded[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
