package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider selects which LLM backend generates plans and handler code.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Default model per provider, used when --model is not given.
var defaultModels = map[Provider]string{
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderOpenAI:    "gpt-4o",
}

// Error is a fatal configuration problem. It is reported as a single
// stderr line and the process exits 1.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Config is everything the rest of the program needs from the CLI.
type Config struct {
	Prompt     string
	PromptFile string
	Provider   Provider
	Model      string
	APIKey     string
	Port       uint16
	CacheDir   string
	NoCache    bool
	Verbose    bool
	LogFile    string
	DryRun     bool
}

// FileConfig is the optional YAML config file. Explicit flags win over
// file values.
type FileConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Port     uint16 `yaml:"port"`
	CacheDir string `yaml:"cache_dir"`
	LogFile  string `yaml:"log_file"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf("reading config file: %v", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errorf("parsing config file %s: %v", path, err)
	}
	return &fc, nil
}

// Finalize resolves the prompt source and API key and validates the
// provider. It mutates the receiver in place.
func (c *Config) Finalize() error {
	if (c.Prompt == "") == (c.PromptFile == "") {
		return errorf("exactly one of --prompt or --prompt-file is required")
	}
	if c.PromptFile != "" {
		data, err := os.ReadFile(c.PromptFile)
		if err != nil {
			return errorf("reading prompt file: %v", err)
		}
		c.Prompt = strings.TrimSpace(string(data))
		if c.Prompt == "" {
			return errorf("prompt file %s is empty", c.PromptFile)
		}
	}

	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return errorf("invalid provider %q (want anthropic or openai)", c.Provider)
	}

	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}

	if c.APIKey == "" {
		c.APIKey = strings.TrimSpace(os.Getenv(c.apiKeyEnv()))
	}
	if c.APIKey == "" {
		return errorf("no API key: pass --api-key or set %s", c.apiKeyEnv())
	}

	if c.CacheDir == "" {
		c.CacheDir = ".mcpboot-cache"
	}
	return nil
}

func (c *Config) apiKeyEnv() string {
	if c.Provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}
