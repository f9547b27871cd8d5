package crypto

import (
	"encoding/hex"
	"fmt"
)

// GenerateRandomToken generates a random hex token of length bytes
func GenerateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := randomRead(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateMasterKey returns a fresh key suitable for NewCipher.
func GenerateMasterKey() (string, error) {
	return GenerateRandomToken(KeySize)
}
