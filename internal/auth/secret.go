package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
)

// MinSecretLength is the recommended minimum JWT secret length in bytes.
const MinSecretLength = 32

// ResolveSecret returns the signing secret to use. In dev mode an empty secret
// is replaced with a random one, so tokens do not survive a restart. Outside
// dev mode an empty secret is an error.
func ResolveSecret(configured string, devMode bool) ([]byte, error) {
	if configured == "" {
		if !devMode {
			return nil, errors.New("auth.jwt_secret is required outside dev mode; " +
				"generate one with: go run scripts/generate-key.go")
		}
		b := make([]byte, MinSecretLength)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate dev secret: %w", err)
		}
		slog.Warn("auth.jwt_secret not set, using an auto-generated secret; sessions will not persist across restarts")
		return b, nil
	}
	if len(configured) < MinSecretLength {
		slog.Warn("auth.jwt_secret is shorter than recommended", "min_length", MinSecretLength)
	}
	return []byte(configured), nil
}
