package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateOAuthState creates an unguessable OAuth state value and the hash
// under which it is stored. Only the hash is persisted.
func GenerateOAuthState() (state string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(b)
	return state, HashSHA256(state), nil
}
