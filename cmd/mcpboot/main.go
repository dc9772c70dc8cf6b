package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vivekhaldar/mcpboot/internal/boot"
	"github.com/vivekhaldar/mcpboot/internal/config"
	"github.com/vivekhaldar/mcpboot/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}
	var provider string
	var configPath string

	root := &cobra.Command{
		Use:   "mcpboot",
		Short: "Synthesize an MCP tool server from a natural-language prompt",
		Long: `mcpboot plans a set of MCP tools from your prompt (plus any URLs it
references), generates their handlers with an LLM, and serves them over
HTTP. Generation happens once per (prompt, content) pair; results are
cached on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				fc, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				applyFile(cmd, cfg, fc)
			}
			cfg.Provider = config.Provider(provider)
			if err := cfg.Finalize(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Verbose, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return boot.Run(ctx, cfg, logger)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.Prompt, "prompt", "", "natural-language description of the tools to build")
	flags.StringVar(&cfg.PromptFile, "prompt-file", "", "file containing the prompt")
	flags.StringVar(&provider, "provider", "anthropic", "LLM provider (anthropic or openai)")
	flags.StringVar(&cfg.Model, "model", "", "model id (provider default if empty)")
	flags.StringVar(&cfg.APIKey, "api-key", "", "API key (falls back to ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	flags.Uint16Var(&cfg.Port, "port", 8000, "HTTP port (0 picks a free port)")
	flags.StringVar(&cfg.CacheDir, "cache-dir", ".mcpboot-cache", "cache directory")
	flags.BoolVar(&cfg.NoCache, "no-cache", false, "disable the generation cache")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "debug logging")
	flags.StringVar(&cfg.LogFile, "log-file", "", "also log to this file (JSON)")
	flags.BoolVar(&cfg.DryRun, "dry-run", false, "stop after planning and print the plan")
	flags.StringVar(&configPath, "config", "", "optional YAML config file")

	return root
}

// applyFile overlays config-file values under flags the user did not
// set explicitly.
func applyFile(cmd *cobra.Command, cfg *config.Config, fc *config.FileConfig) {
	flags := cmd.Flags()
	if !flags.Changed("provider") && fc.Provider != "" {
		_ = flags.Set("provider", fc.Provider)
	}
	if !flags.Changed("model") && fc.Model != "" {
		cfg.Model = fc.Model
	}
	if !flags.Changed("port") && fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if !flags.Changed("cache-dir") && fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
	if !flags.Changed("log-file") && fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
}
