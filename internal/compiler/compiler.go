package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
	"github.com/vivekhaldar/mcpboot/internal/llm"
	"github.com/vivekhaldar/mcpboot/internal/tool"
)

const maxAttempts = 2

var (
	fencedCodePattern = regexp.MustCompile("(?s)```(?:javascript|js|typescript|ts)?\\s*\\n?(.*?)```")

	// Forbidden in any handler body.
	forbiddenPatterns = []struct {
		pattern *regexp.Regexp
		message string
	}{
		{regexp.MustCompile(`\brequire\s*\(`), "require() is forbidden"},
		{regexp.MustCompile(`(?m)^\s*import\b`), "import statements are forbidden"},
		{regexp.MustCompile(`\bimport\s*\(`), "dynamic import is forbidden"},
	}

	fetchCallPattern = regexp.MustCompile(`\bfetch\s*\(`)
)

// CodeError is a syntax failure or forbidden pattern in emitted handler
// source. It names the tool and carries the underlying diagnostic.
type CodeError struct {
	Tool string
	Msg  string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code validation: tool %q: %s", e.Tool, e.Msg)
}

// Compiler turns each planned tool into a compiled tool with a
// syntactically valid handler body.
type Compiler struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Compiler.
func New(client llm.Client, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{client: client, logger: logger}
}

// Compile processes the planned tools sequentially and returns the
// ordered table. Per-tool failures retry once, blind; a second failure
// aborts the whole compilation.
func (c *Compiler) Compile(ctx context.Context, plan *tool.GenerationPlan, originalPrompt string, contents []*fetcher.FetchedContent, whitelistDomains []string) (*tool.Table, error) {
	table := tool.NewTable(whitelistDomains)
	for i := range plan.Tools {
		t := &plan.Tools[i]
		ct, err := c.compileOne(ctx, t, originalPrompt, contents)
		if err != nil {
			return nil, err
		}
		if err := table.Add(ct); err != nil {
			return nil, err
		}
		c.logger.Info("tool compiled", zap.String("tool", t.Name), zap.Int("sourceBytes", len(ct.HandlerSource)))
	}
	return table, nil
}

func (c *Compiler) compileOne(ctx context.Context, t *tool.PlannedTool, originalPrompt string, contents []*fetcher.FetchedContent) (*tool.CompiledTool, error) {
	system := pureSystemPrompt
	if t.NeedsNetwork {
		system = networkSystemPrompt
	}
	user := buildUserPrompt(t, originalPrompt, contents)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := c.client.Generate(ctx, system, user)
		if err != nil {
			lastErr = fmt.Errorf("generating %s: %w", t.Name, err)
			c.logger.Warn("LLM call failed", zap.String("tool", t.Name), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		source := ExtractCode(raw)
		if err := Validate(t, source); err != nil {
			lastErr = err
			c.logger.Warn("handler rejected", zap.String("tool", t.Name), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		return &tool.CompiledTool{PlannedTool: *t, HandlerSource: source}, nil
	}
	return nil, fmt.Errorf("compiling %s failed after %d attempts: %w", t.Name, maxAttempts, lastErr)
}

// ExtractCode pulls the handler body out of an LLM reply: a fenced code
// block if present, else the raw text.
func ExtractCode(text string) string {
	if m := fencedCodePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// Validate checks a handler body for forbidden patterns and syntax. The
// body must be valid when wrapped as async function(args, fetch) {...};
// a pure tool's body must not call fetch.
func Validate(t *tool.PlannedTool, source string) error {
	if strings.TrimSpace(source) == "" {
		return &CodeError{Tool: t.Name, Msg: "empty handler body"}
	}
	for _, fp := range forbiddenPatterns {
		if fp.pattern.MatchString(source) {
			return &CodeError{Tool: t.Name, Msg: fp.message}
		}
	}
	if !t.NeedsNetwork && fetchCallPattern.MatchString(source) {
		return &CodeError{Tool: t.Name, Msg: "pure-computation tool must not call fetch"}
	}

	wrapped := "(async function(args, fetch) {\n" + source + "\n})"
	if _, err := goja.Compile(t.Name+".js", wrapped, false); err != nil {
		return &CodeError{Tool: t.Name, Msg: fmt.Sprintf("syntax error: %v", err)}
	}
	return nil
}
