// Package crypto provides cryptographic utilities for the application.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned when the input cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor handles AES-256-GCM encryption of provider credentials at rest.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates a new Encryptor from a base64-encoded key or derives one from a secret.
func NewEncryptor(keyOrSecret string) (*Encryptor, error) {
	if keyOrSecret == "" {
		return nil, errors.New("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(keyOrSecret)
	if err != nil || len(key) != 32 {
		key, err = deriveKey([]byte(keyOrSecret), "trainercal-token-encryption")
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// deriveKey uses HKDF-SHA256 with an all-zero salt to derive a 32-byte key.
func deriveKey(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, make([]byte, 32), []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext; the random nonce is prepended to the result.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and encrypts the result.
func (e *Encryptor) SealJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return e.Encrypt(data)
}

// OpenJSON decrypts ciphertext and unmarshals it into v.
func (e *Encryptor) OpenJSON(ciphertext []byte, v any) error {
	data, err := e.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return nil
}
