package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tabletalk/internal/nlq"
)

const dirName = ".tabletalk"

// Global configuration structure.
type Global struct {
	// Oracle runtime
	Provider      string `mapstructure:"provider" yaml:"provider"`
	Model         string `mapstructure:"model" yaml:"model"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	OllamaHost    string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OracleTimeout int    `mapstructure:"oracle_timeout_sec" yaml:"oracle_timeout_sec"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Server
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	UploadDir      string   `mapstructure:"upload_dir" yaml:"upload_dir"`
	DBPath         string   `mapstructure:"db_path" yaml:"db_path"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	DefaultFiles   []string `mapstructure:"default_files" yaml:"default_files"`

	// Question pipeline
	ProfileMaxDistinct int            `mapstructure:"profile_max_distinct" yaml:"profile_max_distinct"`
	ProfileMaxSamples  int            `mapstructure:"profile_max_samples" yaml:"profile_max_samples"`
	PromptSamples      int            `mapstructure:"prompt_samples" yaml:"prompt_samples"`
	FuzzyCutoff        float64        `mapstructure:"fuzzy_cutoff" yaml:"fuzzy_cutoff"`
	RewriteRules       []nlq.RuleSpec `mapstructure:"rewrite_rules" yaml:"rewrite_rules"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// OracleTimeoutDuration returns the per-call oracle bound.
func (c *Global) OracleTimeoutDuration() time.Duration {
	return time.Duration(c.OracleTimeout) * time.Second
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tabletalk/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, dirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "groq")
	v.SetDefault("model", "llama-3.3-70b-versatile")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("oracle_timeout_sec", 30)
	// HTTP/retry defaults; one attempt means no retries
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)

	v.SetDefault("listen_addr", ":4000")
	v.SetDefault("upload_dir", "./assets")
	v.SetDefault("db_path", "data.db")
	v.SetDefault("max_upload_mb", 16)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("default_files", []string{"Incidents_Clean_Data.csv", "Inspection_Clean_Data.csv", "data.csv"})

	v.SetDefault("profile_max_distinct", 100)
	v.SetDefault("profile_max_samples", 20)
	v.SetDefault("prompt_samples", nlq.DefaultPromptSamples)
	v.SetDefault("fuzzy_cutoff", 0.6)
	v.SetDefault("rewrite_rules", nlq.DefaultRuleSpecs())

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TABLETALK")
	v.AutomaticEnv()
	// Conventional provider variables are honored without the prefix.
	_ = v.BindEnv("api_key", "TABLETALK_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("gemini_api_key", "TABLETALK_GEMINI_API_KEY", "GEMINI_API_KEY")

	SetDefaults(v)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, dirName))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
