package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsDir is the Docker Secrets mount point.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// LoadSecret reads the Docker secret and falls back to the upper-cased
// environment variable of the same name (jwt_access_secret -> JWT_ACCESS_SECRET).
func LoadSecret(secretName string) (string, error) {
	secret, fileErr := ReadSecret(secretName)
	if fileErr == nil {
		return secret, nil
	}
	envName := strings.ToUpper(secretName)
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found in file or env %s: %w", secretName, envName, fileErr)
}
