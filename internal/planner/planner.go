package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
	"github.com/vivekhaldar/mcpboot/internal/llm"
	"github.com/vivekhaldar/mcpboot/internal/tool"
	"github.com/vivekhaldar/mcpboot/internal/whitelist"
)

const maxAttempts = 2

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	urlInText         = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)
)

// ValidationError is a structural or whitelist problem in an emitted
// plan. It names the offending tool and field.
type ValidationError struct {
	Tool  string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("plan validation: %s", e.Msg)
	}
	return fmt.Sprintf("plan validation: tool %q, field %q: %s", e.Tool, e.Field, e.Msg)
}

// Planner turns (prompt, documents, whitelist) into a validated plan.
type Planner struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Planner.
func New(client llm.Client, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{client: client, logger: logger}
}

// Plan runs the LLM and validates its output. A failed attempt is
// retried once, blind, with the same prompts.
func (p *Planner) Plan(ctx context.Context, prompt string, contents []*fetcher.FetchedContent, wl *whitelist.Whitelist) (*tool.GenerationPlan, error) {
	user := buildUserPrompt(prompt, contents, wl.Domains())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := p.client.Generate(ctx, systemPrompt, user)
		if err != nil {
			lastErr = fmt.Errorf("planning: %w", err)
			p.logger.Warn("LLM call failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		plan, err := parsePlan(raw)
		if err == nil {
			err = validatePlan(plan, wl)
		}
		if err == nil {
			p.logger.Info("plan accepted", zap.Int("tools", len(plan.Tools)), zap.Int("attempt", attempt))
			return plan, nil
		}

		lastErr = err
		p.logger.Warn("plan rejected", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("planning failed after %d attempts: %w", maxAttempts, lastErr)
}

// ExtractJSON pulls the JSON payload out of an LLM reply: a fenced block
// if present, else the outermost brace span, else the raw text.
func ExtractJSON(text string) string {
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	return strings.TrimSpace(text)
}

func parsePlan(raw string) (*tool.GenerationPlan, error) {
	blob := ExtractJSON(raw)
	var plan tool.GenerationPlan
	if err := json.Unmarshal([]byte(blob), &plan); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	return &plan, nil
}

func validatePlan(plan *tool.GenerationPlan, wl *whitelist.Whitelist) error {
	if len(plan.Tools) == 0 {
		return &ValidationError{Field: "tools", Msg: "plan has no tools"}
	}

	seen := make(map[string]struct{}, len(plan.Tools))
	for _, t := range plan.Tools {
		if !tool.NamePattern.MatchString(t.Name) {
			return &ValidationError{Tool: t.Name, Field: "name", Msg: "must match ^[a-z][a-z0-9_]*$"}
		}
		if _, dup := seen[t.Name]; dup {
			return &ValidationError{Tool: t.Name, Field: "name", Msg: "duplicate tool name"}
		}
		seen[t.Name] = struct{}{}

		if strings.TrimSpace(t.Description) == "" {
			return &ValidationError{Tool: t.Name, Field: "description", Msg: "must be nonempty"}
		}
		if strings.TrimSpace(t.ImplementationNotes) == "" {
			return &ValidationError{Tool: t.Name, Field: "implementationNotes", Msg: "must be nonempty"}
		}
		if err := validateInputSchema(t.Name, t.InputSchema); err != nil {
			return err
		}
		if t.EndpointsUsed == nil {
			return &ValidationError{Tool: t.Name, Field: "endpointsUsed", Msg: "must be an array"}
		}

		if t.NeedsNetwork {
			for _, ep := range t.EndpointsUsed {
				for _, u := range urlInText.FindAllString(ep, -1) {
					if !wl.Allows(u) {
						return &ValidationError{
							Tool:  t.Name,
							Field: "endpointsUsed",
							Msg:   fmt.Sprintf("endpoint %s is not on an allowed domain", u),
						}
					}
				}
			}
		}
	}
	return nil
}

// validateInputSchema requires an object-rooted schema that compiles as
// JSON Schema, so it can later drive argument validation.
func validateInputSchema(toolName string, schema json.RawMessage) error {
	if len(schema) == 0 {
		return &ValidationError{Tool: toolName, Field: "inputSchema", Msg: "missing"}
	}
	var root struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(schema, &root); err != nil {
		return &ValidationError{Tool: toolName, Field: "inputSchema", Msg: "not a JSON object"}
	}
	if root.Type != "object" {
		return &ValidationError{Tool: toolName, Field: "inputSchema", Msg: "root type must be \"object\""}
	}
	if _, err := jsonschema.CompileString(toolName+".json", string(schema)); err != nil {
		return &ValidationError{Tool: toolName, Field: "inputSchema", Msg: fmt.Sprintf("does not compile: %v", err)}
	}
	return nil
}
