// Package credential stores the portal API bearer token in the system
// keyring.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "notisync"
	tokenKey    = "portal_api_token"
)

func openRing() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/notisync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("notisync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Token returns the stored portal API bearer token.
func Token() (string, error) {
	ring, err := openRing()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading portal token: %w", err)
	}
	return string(item.Data), nil
}

// SetToken stores the portal API bearer token, replacing any previous one.
func SetToken(token string) error {
	ring, err := openRing()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  tokenKey,
		Data: []byte(token),
	})
	if err != nil {
		return fmt.Errorf("storing portal token: %w", err)
	}
	return nil
}

// DeleteToken removes the stored portal API bearer token.
func DeleteToken() error {
	ring, err := openRing()
	if err != nil {
		return err
	}

	if err := ring.Remove(tokenKey); err != nil {
		return fmt.Errorf("deleting portal token: %w", err)
	}
	return nil
}
