// FILE: secureconfig/cipher.go
package secureconfig

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// KeySize is the required cipher key length (AES-256).
const KeySize = 32

// envelopeDelimiter separates the hex-encoded nonce from the hex-encoded
// ciphertext in an encrypted envelope.
const envelopeDelimiter = ":"

// SecretCipher performs symmetric encryption of individual string values
// using a process-held AES-256-GCM key.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher creates a cipher from raw key material.
// The key must be exactly KeySize bytes.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals a plaintext value into a "nonce-hex:ciphertext-hex"
// envelope. A fresh random nonce is generated for every call.
func (sc *SecretCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, sc.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := sc.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + envelopeDelimiter + hex.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. A string that does not
// split into exactly two colon-delimited fields is returned unchanged so
// that unencrypted values survive a read path that decrypts defensively.
// Malformed hex, a wrong key, or tampered ciphertext return an error.
func (sc *SecretCipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, envelopeDelimiter)
	if len(parts) != 2 {
		return envelope, nil
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("malformed envelope nonce: %w", err)
	}
	if len(nonce) != sc.aead.NonceSize() {
		return "", fmt.Errorf("malformed envelope: nonce length %d", len(nonce))
	}

	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed envelope ciphertext: %w", err)
	}

	plain, err := sc.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plain), nil
}

// loadOrCreateKey establishes the process cipher key. An existing key file
// is loaded verbatim. Otherwise a random key is generated; outside a
// production-designated environment it is persisted with restrictive
// permissions for developer convenience. In production a generated key
// stays memory-only for the process lifetime.
func loadOrCreateKey(path string, production bool, logger *zap.Logger) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if len(data) != KeySize {
				return nil, fmt.Errorf("key file '%s': %w: got %d", path, ErrKeySize, len(data))
			}
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read key file '%s': %w", path, err)
		}
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	if production {
		logger.Warn("no key material file found; using ephemeral in-memory key",
			zap.String("path", path))
		return key, nil
	}

	if path != "" {
		if err := writeKeyFile(path, key); err != nil {
			return nil, err
		}
		logger.Info("generated development key material", zap.String("path", path))
	}

	return key, nil
}

// writeKeyFile persists key material atomically with owner-only permissions.
func writeKeyFile(path string, key []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create key directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary key file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up on any error

	if _, err := tempFile.Write(key); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary key file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary key file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary key file: %w", err)
	}

	if err := os.Chmod(tempPath, 0600); err != nil {
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary key file: %w", err)
	}

	return nil
}
