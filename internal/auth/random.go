package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewURLToken returns a random URL-safe token of n random bytes, used for
// email verification and password reset links.
func NewURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
