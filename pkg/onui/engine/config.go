// config.go loads onui's TOML configuration: discovery across a
// priority-ordered search path, a single parse-and-validate entry point,
// and a warn-and-continue fallback across multiple candidate files.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var (
	ErrConfigNotFound    = errors.New("onui: no config file found")
	ErrUnknownDefaultLLM = errors.New("onui: default_llm does not name a configured [llm.<name>] table")
	ErrMissingAPIKey     = errors.New("onui: no api_key configured for the selected provider")
)

// LLMProviderConfig is one [llm.<name>] table.
type LLMProviderConfig struct {
	Type            string `toml:"type"`
	APIKey          string `toml:"api_key"`
	APIKeyEnv       string `toml:"api_key_env"`
	BaseURL         string `toml:"base_url"`
	BaseURLEnv      string `toml:"base_url_env"`
	Model           string `toml:"model"`
	ReasoningEffort string `toml:"reasoning_effort"`
	SystemPrompt    string `toml:"system_prompt"`
	Stream          *bool  `toml:"stream"`
}

// ResolveAPIKey implements the priority chain: OS keyring → literal
// api_key → api_key_env. keyringLookup is injected so config.go stays
// free of a direct keyring.go dependency for testability.
func (p LLMProviderConfig) ResolveAPIKey(keyringLookup func() string) (string, error) {
	if keyringLookup != nil {
		if v := keyringLookup(); v != "" {
			return v, nil
		}
	}
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v, nil
		}
	}
	return "", ErrMissingAPIKey
}

// ResolveBaseURL implements the literal-then-env priority chain.
func (p LLMProviderConfig) ResolveBaseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	if p.BaseURLEnv != "" {
		if v := os.Getenv(p.BaseURLEnv); v != "" {
			return v
		}
	}
	return "https://api.openai.com/v1"
}

// Config is the immutable, process-lifetime configuration.
type Config struct {
	Workspace  string                       `toml:"-"`
	ConfigPath string                       `toml:"-"`
	DefaultLLM string                       `toml:"default_llm"`
	LLM        map[string]LLMProviderConfig `toml:"llm"`
}

// DefaultConfig returns the configuration written by `onui config init`.
func DefaultConfig() *Config {
	stream := true
	return &Config{
		DefaultLLM: "openai",
		LLM: map[string]LLMProviderConfig{
			"openai": {
				Type:      "openai",
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "gpt-5-nano",
				Stream:    &stream,
			},
		},
	}
}

// Validate checks the one cross-field invariant the config must satisfy:
// default_llm must name an existing [llm.<name>] table.
func (c *Config) Validate() error {
	if _, ok := c.LLM[c.DefaultLLM]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefaultLLM, c.DefaultLLM)
	}
	return nil
}

// LoadFromFile reads and parses one TOML config file, validating it.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	// Clear the inherited default so the file must be self-contained; the
	// default is only a seed for `onui config init`, not a silent fallback.
	cfg.LLM = map[string]LLMProviderConfig{}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	_ = meta

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	return cfg, nil
}

// LoadFromFileList tries each candidate path in order, logging a warning
// and continuing past any that fail to load, returning the first success.
func LoadFromFileList(paths []string, logger *slog.Logger) (*Config, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cfg, err := LoadFromFile(p)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid config file", "path", p, "error", err)
			}
			continue
		}
		return cfg, nil
	}
	return nil, ErrConfigNotFound
}

// ConfigSearchPaths builds the priority-ordered candidate list: CLI flag →
// ONUI_CONFIG env var → ./.onui/config.toml → $HOME/.onui/config.toml.
func ConfigSearchPaths(cliFlag string) []string {
	paths := []string{cliFlag, os.Getenv("ONUI_CONFIG"), filepath.Join(".", ".onui", "config.toml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".onui", "config.toml"))
	}
	return paths
}

// FindConfigFile returns the first existing candidate from
// ConfigSearchPaths, or "" if none exist.
func FindConfigFile(cliFlag string) string {
	for _, p := range ConfigSearchPaths(cliFlag) {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SaveConfigToFile writes cfg as TOML to path, creating parent directories
// as needed.
func SaveConfigToFile(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
