package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_ValidateRequiresKnownDefaultLLM(t *testing.T) {
	cfg := &Config{
		DefaultLLM: "missing",
		LLM:        map[string]LLMProviderConfig{"openai": {Type: "openai"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when default_llm does not name a configured table")
	}

	cfg.DefaultLLM = "openai"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	const body = `
default_llm = "openai"

[llm.openai]
type = "openai"
api_key_env = "OPENAI_API_KEY"
model = "gpt-5-nano"
stream = false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.DefaultLLM != "openai" {
		t.Errorf("got DefaultLLM = %q, want openai", cfg.DefaultLLM)
	}
	provider, ok := cfg.LLM["openai"]
	if !ok {
		t.Fatal("expected an [llm.openai] table")
	}
	if provider.Model != "gpt-5-nano" {
		t.Errorf("got Model = %q, want gpt-5-nano", provider.Model)
	}
	if provider.Stream == nil || *provider.Stream {
		t.Errorf("got Stream = %v, want false", provider.Stream)
	}
	if cfg.ConfigPath != path {
		t.Errorf("got ConfigPath = %q, want %q", cfg.ConfigPath, path)
	}
}

func TestLoadFromFile_RejectsUnknownDefaultLLM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	const body = `
default_llm = "anthropic"

[llm.openai]
type = "openai"
model = "gpt-5-nano"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected an error when default_llm names an undeclared table")
	}
}

func TestLoadFromFileList_SkipsInvalidAndWarns(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.toml")
	goodPath := filepath.Join(dir, "good.toml")

	if err := os.WriteFile(badPath, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("writing bad fixture: %v", err)
	}
	const goodBody = `
default_llm = "openai"

[llm.openai]
type = "openai"
model = "gpt-5-nano"
`
	if err := os.WriteFile(goodPath, []byte(goodBody), 0o644); err != nil {
		t.Fatalf("writing good fixture: %v", err)
	}

	cfg, err := LoadFromFileList([]string{"", badPath, goodPath}, nil)
	if err != nil {
		t.Fatalf("LoadFromFileList: %v", err)
	}
	if cfg.ConfigPath != goodPath {
		t.Fatalf("got ConfigPath = %q, want the first loadable candidate %q", cfg.ConfigPath, goodPath)
	}
}

func TestLoadFromFileList_NoneFoundReturnsErrConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFromFileList([]string{filepath.Join(dir, "missing.toml")}, nil)
	if err != ErrConfigNotFound {
		t.Fatalf("got err = %v, want ErrConfigNotFound", err)
	}
}

func TestLLMProviderConfig_ResolveAPIKeyPriorityChain(t *testing.T) {
	p := LLMProviderConfig{APIKey: "literal-key", APIKeyEnv: "ONUI_TEST_API_KEY"}

	// Keyring wins when it returns a non-empty value.
	key, err := p.ResolveAPIKey(func() string { return "keyring-key" })
	if err != nil || key != "keyring-key" {
		t.Fatalf("got (%q, %v), want keyring-key", key, err)
	}

	// Falls through to the literal api_key when the keyring is empty.
	key, err = p.ResolveAPIKey(func() string { return "" })
	if err != nil || key != "literal-key" {
		t.Fatalf("got (%q, %v), want literal-key", key, err)
	}

	// Falls through to api_key_env when api_key is also empty.
	p2 := LLMProviderConfig{APIKeyEnv: "ONUI_TEST_API_KEY"}
	t.Setenv("ONUI_TEST_API_KEY", "env-key")
	key, err = p2.ResolveAPIKey(nil)
	if err != nil || key != "env-key" {
		t.Fatalf("got (%q, %v), want env-key", key, err)
	}

	// Errors when nothing resolves.
	p3 := LLMProviderConfig{}
	if _, err := p3.ResolveAPIKey(nil); err != ErrMissingAPIKey {
		t.Fatalf("got err = %v, want ErrMissingAPIKey", err)
	}
}

func TestLLMProviderConfig_ResolveBaseURL(t *testing.T) {
	if got := (LLMProviderConfig{}).ResolveBaseURL(); got != "https://api.openai.com/v1" {
		t.Errorf("got %q, want the default OpenAI base URL", got)
	}
	if got := (LLMProviderConfig{BaseURL: "https://example.test/v1"}).ResolveBaseURL(); got != "https://example.test/v1" {
		t.Errorf("got %q, want the literal override", got)
	}

	t.Setenv("ONUI_TEST_BASE_URL", "https://env.test/v1")
	p := LLMProviderConfig{BaseURLEnv: "ONUI_TEST_BASE_URL"}
	if got := p.ResolveBaseURL(); got != "https://env.test/v1" {
		t.Errorf("got %q, want the env-resolved URL", got)
	}
}

func TestConfigSearchPaths_Order(t *testing.T) {
	paths := ConfigSearchPaths("/explicit/path.toml")
	if len(paths) < 3 {
		t.Fatalf("got %v, want at least 3 candidates", paths)
	}
	if paths[0] != "/explicit/path.toml" {
		t.Errorf("got first candidate = %q, want the CLI flag", paths[0])
	}
	if paths[1] != os.Getenv("ONUI_CONFIG") {
		t.Errorf("got second candidate = %q, want ONUI_CONFIG", paths[1])
	}
}
