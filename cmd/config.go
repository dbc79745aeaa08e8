package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabletalk/internal/ai"
	cfgpkg "github.com/KaramelBytes/tabletalk/internal/config"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set TableTalk configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(w, "No config loaded")
			return nil
		}
		fmt.Fprintf(w, "provider: %s\n", cfg.Provider)
		fmt.Fprintf(w, "model: %s\n", cfg.Model)
		fmt.Fprintf(w, "api_key: %s\n", mask(cfg.APIKey))
		if cfg.GeminiAPIKey != "" {
			fmt.Fprintf(w, "gemini_api_key: %s\n", mask(cfg.GeminiAPIKey))
		}
		if cfg.BaseURL != "" {
			fmt.Fprintf(w, "base_url: %s\n", cfg.BaseURL)
		}
		fmt.Fprintf(w, "ollama_host: %s\n", cfg.OllamaHost)
		fmt.Fprintf(w, "oracle_timeout_sec: %d\n", cfg.OracleTimeout)
		fmt.Fprintf(w, "listen_addr: %s\n", cfg.ListenAddr)
		fmt.Fprintf(w, "upload_dir: %s\n", cfg.UploadDir)
		fmt.Fprintf(w, "db_path: %s\n", cfg.DBPath)
		fmt.Fprintf(w, "max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Fprintf(w, "allowed_origins: %s\n", strings.Join(cfg.AllowedOrigins, ","))
		fmt.Fprintf(w, "default_files: %s\n", strings.Join(cfg.DefaultFiles, ","))
		fmt.Fprintf(w, "profile_max_distinct: %d\n", cfg.ProfileMaxDistinct)
		fmt.Fprintf(w, "profile_max_samples: %d\n", cfg.ProfileMaxSamples)
		fmt.Fprintf(w, "prompt_samples: %d\n", cfg.PromptSamples)
		fmt.Fprintf(w, "fuzzy_cutoff: %.2f\n", cfg.FuzzyCutoff)
		fmt.Fprintf(w, "rewrite_rules: %d\n", len(cfg.RewriteRules))
		for _, r := range cfg.RewriteRules {
			fmt.Fprintf(w, "  - %s -> %s (seed %q)\n", r.Pattern, r.Column, r.Seed)
		}
		fmt.Fprintf(w, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	atoi := func(lo int) (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < lo {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "provider":
		p := normalizeProvider(val)
		known := false
		for _, name := range ai.Providers() {
			if name == p {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("invalid provider: %s (use %s)", val, strings.Join(ai.Providers(), ", "))
		}
		c.Provider = p
	case "model":
		c.Model = val
	case "api_key":
		c.APIKey = val
	case "gemini_api_key":
		c.GeminiAPIKey = val
	case "base_url":
		c.BaseURL = val
	case "ollama_host":
		c.OllamaHost = val
	case "oracle_timeout_sec":
		c.OracleTimeout, err = atoi(1)
	case "listen_addr":
		c.ListenAddr = val
	case "upload_dir":
		c.UploadDir = val
	case "db_path":
		c.DBPath = val
	case "max_upload_mb":
		c.MaxUploadMB, err = atoi(1)
	case "allowed_origins":
		c.AllowedOrigins = splitList(val)
	case "default_files":
		c.DefaultFiles = splitList(val)
	case "profile_max_distinct":
		c.ProfileMaxDistinct, err = atoi(1)
	case "profile_max_samples":
		c.ProfileMaxSamples, err = atoi(1)
	case "prompt_samples":
		c.PromptSamples, err = atoi(1)
	case "fuzzy_cutoff":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f <= 0 || f > 1 {
			return fmt.Errorf("invalid float for fuzzy_cutoff: %v (use 0 < x <= 1)", val)
		}
		c.FuzzyCutoff = f
	case "rewrite_rules":
		if val != "default" {
			return fmt.Errorf("rewrite_rules can only be reset with 'default'; edit %s for custom rules", configPathHint())
		}
		c.RewriteRules = nlq.DefaultRuleSpecs()
	case "log_level":
		c.LogLevel = val
	case "log_format":
		c.LogFormat = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func splitList(val string) []string {
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
