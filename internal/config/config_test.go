package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabletalk/internal/nlq"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "groq", c.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", c.Model)
	assert.Equal(t, ":4000", c.ListenAddr)
	assert.Equal(t, "./assets", c.UploadDir)
	assert.Equal(t, "data.db", c.DBPath)
	assert.Equal(t, 16, c.MaxUploadMB)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, []string{"Incidents_Clean_Data.csv", "Inspection_Clean_Data.csv", "data.csv"}, c.DefaultFiles)
	assert.Equal(t, 1, c.RetryMaxAttempts)
	assert.Equal(t, 100, c.ProfileMaxDistinct)
	assert.Equal(t, 20, c.ProfileMaxSamples)
	assert.Equal(t, 5, c.PromptSamples)
	assert.InDelta(t, 0.6, c.FuzzyCutoff, 1e-9)
	assert.Equal(t, nlq.DefaultRuleSpecs(), c.RewriteRules)
	assert.Equal(t, "30s", c.OracleTimeoutDuration().String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "gsk_from_env")
	t.Setenv("GEMINI_API_KEY", "gem_from_env")
	t.Setenv("TABLETALK_PROVIDER", "ollama")
	t.Setenv("TABLETALK_MAX_UPLOAD_MB", "32")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gsk_from_env", c.APIKey)
	assert.Equal(t, "gem_from_env", c.GeminiAPIKey)
	assert.Equal(t, "ollama", c.Provider)
	assert.Equal(t, 32, c.MaxUploadMB)

	t.Setenv("TABLETALK_API_KEY", "prefixed")
	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", c.APIKey)
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	c, err := Load(path)
	require.NoError(t, err)
	c.Model = "llama-3.1-8b-instant"
	c.FuzzyCutoff = 0.75
	c.RewriteRules = []nlq.RuleSpec{{Pattern: `\bstruck\b`, Column: "Incident_Type_Category", Seed: "struck by"}}
	require.NoError(t, Save(c, path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "model: llama-3.1-8b-instant")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	assert.InDelta(t, 0.75, got.FuzzyCutoff, 1e-9)
	assert.Equal(t, c.RewriteRules, got.RewriteRules)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
