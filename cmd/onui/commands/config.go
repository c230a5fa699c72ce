package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/lumiknit/onui/pkg/onui/engine"
	"github.com/spf13/cobra"
)

// newConfigCmd creates the `onui config` command: init/show/validate and
// key management subcommands over onui's single-provider-table TOML
// schema.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage onui configuration",
		Long: `Manage onui's configuration file and API credentials.

Examples:
  onui config init
  onui config init --interactive
  onui config show
  onui config validate`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
		newConfigKeyStatusCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default .onui/config.toml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := ".onui/config.toml"
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("%s already exists; remove it first or edit it directly", target)
			}

			cfg := engine.DefaultConfig()
			if interactive {
				if err := runConfigWizard(cfg); err != nil {
					return err
				}
			}

			if err := engine.SaveConfigToFile(cfg, target); err != nil {
				return err
			}

			fmt.Printf("Created %s\n", target)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Set an API key: onui config set-key, or export the env var named by api_key_env")
			fmt.Println("  2. Run: onui")
			return nil
		},
	}

	cmd.Flags().BoolVar(&interactive, "interactive", false, "walk through provider setup with a form instead of writing bare defaults")
	return cmd
}

// runConfigWizard prompts for the fields that matter most (provider name,
// model, API key env var, whether to stream) using charmbracelet/huh
// instead of bare bufio prompts.
func runConfigWizard(cfg *engine.Config) error {
	provider := cfg.LLM[cfg.DefaultLLM]
	name := cfg.DefaultLLM
	model := provider.Model
	apiKeyEnv := provider.APIKeyEnv
	stream := true
	if provider.Stream != nil {
		stream = *provider.Stream
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Provider name").
				Description("Key under [llm.<name>] and the value of default_llm").
				Value(&name),
			huh.NewInput().
				Title("Model").
				Value(&model),
			huh.NewInput().
				Title("Environment variable holding the API key").
				Description("Leave empty to set a literal api_key instead").
				Value(&apiKeyEnv),
			huh.NewConfirm().
				Title("Stream responses?").
				Value(&stream),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("running config wizard: %w", err)
	}

	provider.Model = model
	provider.APIKeyEnv = apiKeyEnv
	provider.Stream = &stream

	delete(cfg.LLM, cfg.DefaultLLM)
	cfg.DefaultLLM = name
	if cfg.LLM == nil {
		cfg.LLM = map[string]engine.LLMProviderConfig{}
	}
	cfg.LLM[name] = provider
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfigForCmd(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("# Loaded from: %s\n\n", path)

			enc := toml.NewEncoder(os.Stdout)
			return enc.Encode(cfg)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfigForCmd(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("Config: %s\n", path)
			fmt.Printf("  default_llm: %s\n", cfg.DefaultLLM)
			for name, p := range cfg.LLM {
				fmt.Printf("  [llm.%s] type=%s model=%s stream=%v\n", name, p.Type, p.Model, p.Stream == nil || *p.Stream)
			}
			fmt.Println("\nConfiguration is valid.")
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the OS keyring (encrypted)",
		Long: `Securely stores the API key in the operating system's native keyring.
This is the most secure option: the key is encrypted by the OS and never
stored as plaintext in config.toml or .env.

Linux:   GNOME Keyring / KDE Wallet / Secret Service
macOS:   Keychain
Windows: Credential Manager`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !engine.KeyringAvailable() {
				fmt.Println("OS keyring is not available on this system.")
				fmt.Println("Make sure a keyring service is running:")
				fmt.Println("  Linux:   gnome-keyring-daemon or kwalletd")
				fmt.Println("  macOS:   Keychain (built-in)")
				fmt.Println("  Windows: Credential Manager (built-in)")
				return fmt.Errorf("keyring not available")
			}

			if existing := engine.KeyringAPIKeyLookup(); existing != "" {
				confirm := false
				if err := huh.NewConfirm().
					Title(fmt.Sprintf("API key already in keyring (%s). Overwrite?", maskSecret(existing))).
					Value(&confirm).
					Run(); err != nil {
					return err
				}
				if !confirm {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			var key string
			if err := huh.NewInput().
				Title("Enter API key").
				EchoMode(huh.EchoModePassword).
				Value(&key).
				Run(); err != nil {
				return err
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("no key provided")
			}

			if err := engine.MigrateKeyToKeyring(key); err != nil {
				return err
			}

			fmt.Println("API key stored in OS keyring.")
			fmt.Println("The keyring is checked first, before api_key and api_key_env.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := engine.DeleteKeyring("api_key"); err != nil {
				return fmt.Errorf("deleting from keyring: %w", err)
			}
			fmt.Println("API key removed from OS keyring.")
			return nil
		},
	}
}

func newConfigKeyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key-status",
		Short: "Show where the API key would be resolved from",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Println("API key resolution order:")
			fmt.Println()

			if engine.KeyringAvailable() {
				if v := engine.KeyringAPIKeyLookup(); v != "" {
					fmt.Printf("  1. [OK] OS keyring:  %s\n", maskSecret(v))
				} else {
					fmt.Println("  1. [--] OS keyring:  (not set)")
				}
			} else {
				fmt.Println("  1. [!!] OS keyring:  (not available)")
			}

			cfg, path, err := loadConfigForCmd(cmd)
			if err != nil {
				fmt.Println("  2. [--] api_key / api_key_env: (no config loaded)")
				return nil
			}
			provider := cfg.LLM[cfg.DefaultLLM]
			switch {
			case provider.APIKey != "":
				fmt.Printf("  2. [OK] api_key (from %s): %s\n", path, maskSecret(provider.APIKey))
			case provider.APIKeyEnv != "":
				if v := os.Getenv(provider.APIKeyEnv); v != "" {
					fmt.Printf("  2. [OK] %s: %s\n", provider.APIKeyEnv, maskSecret(v))
				} else {
					fmt.Printf("  2. [--] %s: (not set)\n", provider.APIKeyEnv)
				}
			default:
				fmt.Println("  2. [--] api_key / api_key_env: (none configured)")
			}

			fmt.Println()
			fmt.Println("Recommendation: use 'onui config set-key' for maximum security.")
			return nil
		},
	}
}

// loadConfigForCmd loads the config from the --config flag or
// auto-discovers it via the same search order the root command uses.
func loadConfigForCmd(cmd *cobra.Command) (*engine.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath == "" {
		configPath = engine.FindConfigFile("")
	}
	if configPath == "" {
		return nil, "", fmt.Errorf("no config file found; run 'onui config init' or pass --config <path>")
	}

	cfg, err := engine.LoadFromFile(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

// maskSecret renders a secret as its first and last four characters with
// the middle replaced by asterisks; secrets of eight characters or fewer
// are fully masked.
func maskSecret(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****" + v[len(v)-4:]
}
