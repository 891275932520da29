package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// APITokenPrefix marks bearer tokens issued by `server hash-token`.
const APITokenPrefix = "tc_"

// TokenHasher hashes API bearer tokens with HMAC-SHA256 keyed by the server secret.
type TokenHasher struct {
	serverSecret []byte
}

// NewTokenHasher creates a new hasher with the given server secret.
func NewTokenHasher(secret string) (*TokenHasher, error) {
	secretBytes, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		secretBytes = []byte(secret)
	}
	if len(secretBytes) < 16 {
		return nil, fmt.Errorf("server secret must be at least 16 bytes")
	}
	return &TokenHasher{serverSecret: secretBytes}, nil
}

// GenerateAPIToken returns a new random bearer token: tc_ followed by 32 base62 characters.
func GenerateAPIToken() (string, error) {
	random, err := generateBase62(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return APITokenPrefix + random, nil
}

// Hash computes the hex HMAC of a token.
func (h *TokenHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.serverSecret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented token against a stored hash in constant time.
func (h *TokenHasher) Verify(token, storedHash string) bool {
	return hmac.Equal([]byte(h.Hash(token)), []byte(storedHash))
}

// generateBase62 draws n characters by rejection sampling so every symbol is equally likely.
func generateBase62(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, base62Chars[b%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// HashSHA256 computes a plain SHA-256 hex digest.
func HashSHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
