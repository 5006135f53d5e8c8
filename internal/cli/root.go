package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimcheck/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "v0.1.0"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimcheck",
	Short: "Claimcheck - medical insurance claim validation",
	Long: `Claimcheck validates medical insurance claims against per-tenant
technical and medical adjudication rules.

Every claim in an uploaded file ends up either Validated or Not validated,
with an error type, a plain-language explanation and a recommended action.
An optional advisory evaluator backed by an LLM can review claims after the
static rule engines have run; its opinion is reconciled with theirs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Claimcheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("claimcheck %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("rules-dir", "", "directory holding {tenant}/{kind}_rules.json documents")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("rules.dir", rootCmd.PersistentFlags().Lookup("rules-dir"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".claimcheck"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults(viper.GetViper(), model.DefaultConfig())

	// Read in environment variables that match CLAIMCHECK_*, with nested
	// keys joined by underscores (CLAIMCHECK_ADVISORY_MODE)
	viper.SetEnvPrefix("CLAIMCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so environment variables reach
// Unmarshal even when the config file omits the key.
func setDefaults(v *viper.Viper, cfg *model.Config) {
	v.SetDefault("rules.dir", cfg.Rules.Dir)
	v.SetDefault("rules.default_tenant", cfg.Rules.DefaultTenant)
	v.SetDefault("rules.cache_ttl", cfg.Rules.CacheTTL)

	v.SetDefault("validation.medical_engine", cfg.Validation.MedicalEngine)
	v.SetDefault("validation.expected_fields", cfg.Validation.ExpectedFields)

	v.SetDefault("advisory.mode", cfg.Advisory.Mode)
	v.SetDefault("advisory.provider", cfg.Advisory.Provider)
	v.SetDefault("advisory.model", cfg.Advisory.Model)
	v.SetDefault("advisory.api_key", cfg.Advisory.APIKey)
	v.SetDefault("advisory.base_url", cfg.Advisory.BaseURL)
	v.SetDefault("advisory.timeout", cfg.Advisory.Timeout)
	v.SetDefault("advisory.max_tokens", cfg.Advisory.MaxTokens)
	v.SetDefault("advisory.workers", cfg.Advisory.Workers)
	v.SetDefault("advisory.requests_per_second", cfg.Advisory.RequestsPerSecond)
	v.SetDefault("advisory.burst", cfg.Advisory.Burst)
	v.SetDefault("advisory.top_k", cfg.Advisory.TopK)
	v.SetDefault("advisory.assume_medical_pass_without_rules", cfg.Advisory.AssumeMedicalPass)
	v.SetDefault("advisory.http_proxy", cfg.Advisory.HTTPProxy)
	v.SetDefault("advisory.https_proxy", cfg.Advisory.HTTPSProxy)
	v.SetDefault("advisory.no_proxy", cfg.Advisory.NoProxy)

	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.min_conns", cfg.Database.MinConns)

	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.formats", cfg.Output.Formats)
	v.SetDefault("output.verbose", cfg.Output.Verbose)
	v.SetDefault("output.json_log", cfg.Output.JSONLog)

	v.SetDefault("concurrency.files", cfg.Concurrency.Files)
	v.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
}

// loadConfig builds the effective configuration from v, which must carry
// the defaults from setDefaults. Provider API keys fall back to the
// vendors' usual environment variables.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := &model.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Advisory.APIKey == "" {
		switch strings.ToLower(cfg.Advisory.Provider) {
		case "openai":
			cfg.Advisory.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.Advisory.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Advisory.BaseURL == "" && strings.ToLower(cfg.Advisory.Provider) == "ollama" {
		cfg.Advisory.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
