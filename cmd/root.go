package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/tabletalk/internal/config"
	"github.com/KaramelBytes/tabletalk/internal/logging"
)

var (
	cfgFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int
	// Oracle flags (override config if set)
	flagProvider string
	flagModel    string

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "tabletalk",
	Short: "TableTalk: ask questions about a CSV or spreadsheet in plain language",
	Long: `TableTalk loads a CSV or XLSX file into an embedded SQLite table, turns
natural-language questions into SQL with a language model and runs them
against the data. Use 'serve' for the HTTP API or 'ask' for one-off questions.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tabletalk/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/5xx, 1 disables retries (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "oracle provider: groq|openrouter|ollama|gemini (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "oracle model (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if f.Changed("provider") && flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.Model = flagModel
	}

	l, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Debug: debug})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: invalid logging config: %v\n", err)
		return
	}
	logger = l
}

// requireConfig returns the loaded configuration or an error explaining why
// there is none.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no configuration loaded; check %s", configPathHint())
	}
	return cfg, nil
}

func configPathHint() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "~/.tabletalk/config.yaml"
}
