package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Client is an API client allowed to request tokens with its secret.
type Client struct {
	ID         string   `json:"id"`
	SecretHash string   `json:"secretHash"`
	Roles      []string `json:"roles,omitempty"`
}

// HashSecret returns the bcrypt hash of a client secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("client secret must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %v", err)
	}
	return string(h), nil
}

// Verify returns true if secret matches the client secret hash.
func (c Client) Verify(secret string) bool {
	if c.SecretHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}
