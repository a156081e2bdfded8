package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const secretFileName = "session.key"

// LoadOrCreateSecret reads the session hashing key from dataDir, or generates
// and persists a new 256-bit hex-encoded key if the file is missing or empty.
func LoadOrCreateSecret(dataDir string) (string, error) {
	path := filepath.Join(dataDir, secretFileName)

	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return string(data), nil
	}

	return RotateSecret(dataDir)
}

// RotateSecret replaces the key. Every existing session stops resolving.
func RotateSecret(dataDir string) (string, error) {
	secret, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, secretFileName), []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return secret, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
