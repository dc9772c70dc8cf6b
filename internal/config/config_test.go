package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize_PromptRequired(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "key")

	c := &Config{Provider: ProviderAnthropic}
	err := c.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")

	c = &Config{Provider: ProviderAnthropic, Prompt: "p", PromptFile: "f"}
	err = c.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestFinalize_PromptFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "key")

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  build me tools  \n"), 0o644))

	c := &Config{Provider: ProviderAnthropic, PromptFile: path}
	require.NoError(t, c.Finalize())
	assert.Equal(t, "build me tools", c.Prompt)
}

func TestFinalize_InvalidProvider(t *testing.T) {
	c := &Config{Prompt: "p", Provider: "gemini"}
	err := c.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid provider")
}

func TestFinalize_APIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "anth-key")
	t.Setenv("OPENAI_API_KEY", "oai-key")

	c := &Config{Prompt: "p", Provider: ProviderAnthropic}
	require.NoError(t, c.Finalize())
	assert.Equal(t, "anth-key", c.APIKey)

	c = &Config{Prompt: "p", Provider: ProviderOpenAI}
	require.NoError(t, c.Finalize())
	assert.Equal(t, "oai-key", c.APIKey)
}

func TestFinalize_MissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	c := &Config{Prompt: "p", Provider: ProviderAnthropic}
	err := c.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestFinalize_DefaultModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "key")

	c := &Config{Prompt: "p", Provider: ProviderOpenAI}
	require.NoError(t, c.Finalize())
	assert.Equal(t, "gpt-4o", c.Model)

	c = &Config{Prompt: "p", Provider: ProviderOpenAI, Model: "custom"}
	require.NoError(t, c.Finalize())
	assert.Equal(t, "custom", c.Model)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpboot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\nmodel: gpt-4o-mini\nport: 9000\ncache_dir: /tmp/cache\n"), 0o644))

	fc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", fc.Provider)
	assert.Equal(t, "gpt-4o-mini", fc.Model)
	assert.Equal(t, uint16(9000), fc.Port)
	assert.Equal(t, "/tmp/cache", fc.CacheDir)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}
