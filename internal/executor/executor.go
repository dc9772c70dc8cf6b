package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/execlog"
	"github.com/vivekhaldar/mcpboot/internal/sandbox"
	"github.com/vivekhaldar/mcpboot/internal/tool"
	"github.com/vivekhaldar/mcpboot/pkg/mcp"
)

// Executor adapts the compiled tool table to the MCP surface. It owns
// the table exclusively; the table is read-only after startup, so
// concurrent calls need no locking.
type Executor struct {
	table   *tool.Table
	sandbox *sandbox.Sandbox
	log     *execlog.Log
	logger  *zap.Logger
}

// New creates an Executor. The execution log may be nil.
func New(table *tool.Table, sb *sandbox.Sandbox, log *execlog.Log, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{table: table, sandbox: sb, log: log, logger: logger}
}

// Execute resolves a tool by name and runs its handler. It never
// returns an error: every failure becomes a ToolResult with isError.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	start := time.Now()

	t := e.table.Get(name)
	if t == nil {
		msg := fmt.Sprintf("Unknown tool: %s", name)
		if hint := e.suggest(name); hint != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", hint)
		}
		e.record(ctx, name, "unknown_tool", args, msg, start)
		return mcp.ErrorResult(msg)
	}

	if err := validateArgsAgainstSchema(name, t.InputSchema, normalize(args)); err != nil {
		e.record(ctx, name, "invalid_args", args, err.Error(), start)
		return mcp.ErrorResult(err.Error())
	}

	result, err := e.sandbox.RunHandler(ctx, t.HandlerSource, args, t.NeedsNetwork)
	if err != nil {
		e.logger.Warn("handler failed", zap.String("tool", name), zap.Error(err))
		e.record(ctx, name, "error", args, err.Error(), start)
		return mcp.ErrorResult(fmt.Sprintf("Handler error: %s", err.Error()))
	}

	status := "success"
	if result.IsError {
		status = "handler_error"
	}
	e.record(ctx, name, status, args, "", start)
	e.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)))
	return result
}

// ListTools returns the MCP descriptors in insertion order.
func (e *Executor) ListTools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, e.table.Len())
	for _, t := range e.table.All() {
		tools = append(tools, mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools
}

// Table exposes the underlying table for metadata introspection.
func (e *Executor) Table() *tool.Table { return e.table }

// suggest finds a close tool name for an unknown-tool message.
func (e *Executor) suggest(name string) string {
	matches := fuzzy.RankFindFold(name, e.table.Names())
	if len(matches) == 0 {
		return ""
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Distance < best.Distance {
			best = m
		}
	}
	return best.Target
}

func (e *Executor) record(ctx context.Context, name, status string, args map[string]any, errMsg string, start time.Time) {
	e.log.Record(ctx, name, status, args, errMsg, time.Since(start))
}

// normalize gives the schema validator a plain map even for nil args.
func normalize(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
