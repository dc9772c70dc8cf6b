package boot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/cache"
	"github.com/vivekhaldar/mcpboot/internal/compiler"
	"github.com/vivekhaldar/mcpboot/internal/config"
	"github.com/vivekhaldar/mcpboot/internal/execlog"
	"github.com/vivekhaldar/mcpboot/internal/executor"
	"github.com/vivekhaldar/mcpboot/internal/fetcher"
	"github.com/vivekhaldar/mcpboot/internal/llm"
	"github.com/vivekhaldar/mcpboot/internal/planner"
	"github.com/vivekhaldar/mcpboot/internal/sandbox"
	"github.com/vivekhaldar/mcpboot/internal/server"
	"github.com/vivekhaldar/mcpboot/internal/tool"
	"github.com/vivekhaldar/mcpboot/internal/whitelist"
)

const shutdownGrace = 5 * time.Second

// Run executes the whole startup sequence and serves until the context
// is canceled. A dry run stops after planning.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	f := fetcher.New(nil, logger)

	promptURLs := fetcher.ExtractURLs(cfg.Prompt)
	logger.Info("extracted prompt URLs", zap.Int("count", len(promptURLs)))
	contents := f.FetchAll(ctx, promptURLs)

	wl := whitelist.Build(promptURLs, contents)
	logger.Info("whitelist built", zap.Strings("domains", wl.Domains()))

	promptFp := cache.Fingerprint(cfg.Prompt)
	contentFp := cache.ContentFingerprint(contents)
	store := cache.New(cfg.CacheDir, cfg.NoCache, logger)

	var table *tool.Table
	if entry := store.Get(promptFp, contentFp); entry != nil {
		restored, err := entry.Restore()
		if err != nil {
			return fmt.Errorf("restoring cached tools: %w", err)
		}
		table = restored
		// The stored domains cover URLs discovered during the original
		// fetch; a cache-only restart must not need the network.
		wl = whitelist.FromDomains(entry.WhitelistDomains)
		logger.Info("cache hit", zap.Int("tools", table.Len()),
			zap.String("promptFp", promptFp), zap.String("contentFp", contentFp))
	} else {
		logger.Info("cache miss, generating",
			zap.String("promptFp", promptFp), zap.String("contentFp", contentFp))

		client, err := llm.New(cfg)
		if err != nil {
			return err
		}

		plan, err := planner.New(client, logger).Plan(ctx, cfg.Prompt, contents, wl)
		if err != nil {
			return err
		}

		if cfg.DryRun {
			return writePlan(plan)
		}

		table, err = compiler.New(client, logger).Compile(ctx, plan, cfg.Prompt, contents, wl.Domains())
		if err != nil {
			return err
		}

		// Persist before listening: a crash mid-generation must never
		// leave a partially-served state.
		if err := store.Set(cache.NewEntry(promptFp, contentFp, plan, table)); err != nil {
			logger.Warn("cache write failed", zap.Error(err))
		}
	}

	if cfg.DryRun {
		// Cache hit during a dry run: report the restored tool set.
		return writeRestoredPlan(table)
	}

	gated := whitelist.NewGatedFetch(wl, &http.Client{Timeout: 30 * time.Second})
	sb := sandbox.New(gated, logger)

	var log *execlog.Log
	if !cfg.NoCache {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err == nil {
			l, err := execlog.Open(filepath.Join(cfg.CacheDir, "executions.db"), logger)
			if err != nil {
				logger.Warn("execution log unavailable", zap.Error(err))
			} else {
				log = l
				defer log.Close()
			}
		}
	}

	exec := executor.New(table, sb, log, logger)
	srv := server.New(exec, logger)
	port, err := srv.Start(int(cfg.Port))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://localhost:%d/mcp", port)
	logger.Info("serving", zap.String("url", url), zap.Int("tools", table.Len()))
	if !stdoutIsTerminal() {
		// Pipe handoff: downstream stages read the URL, nothing else.
		fmt.Fprintf(os.Stdout, "%s\n", url)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writePlan(plan *tool.GenerationPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s\n", data)
	return nil
}

func writeRestoredPlan(table *tool.Table) error {
	plan := &tool.GenerationPlan{}
	for _, t := range table.All() {
		plan.Tools = append(plan.Tools, t.PlannedTool)
	}
	return writePlan(plan)
}

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
