// keyring.go reuses keyring.go's OS-keyring credential pattern almost
// directly, renamed to onui's service name.
package engine

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "onui"
	keyringAPIKey  = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, returning "" if absent
// or the keyring is unavailable.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable probes the OS keyring with a throwaway write+delete.
func KeyringAvailable() bool {
	const probeKey = "__onui_probe__"
	if err := keyring.Set(keyringService, probeKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probeKey)
	return true
}

// MigrateKeyToKeyring stores an API key in the OS keyring so it no longer
// needs to live in config.toml or a .env file.
func MigrateKeyToKeyring(apiKey string) error {
	if err := StoreKeyring(keyringAPIKey, apiKey); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

// KeyringAPIKeyLookup is the func() string used by
// LLMProviderConfig.ResolveAPIKey to check the keyring first.
func KeyringAPIKeyLookup() string { return GetKeyring(keyringAPIKey) }
