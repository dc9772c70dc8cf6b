package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivekhaldar/mcpboot/internal/tool"
)

type fakeClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeClient) Generate(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("fake client exhausted")
}

func pureTool(name string) tool.PlannedTool {
	return tool.PlannedTool{
		Name:                name,
		Description:         "desc",
		InputSchema:         json.RawMessage(`{"type": "object"}`),
		EndpointsUsed:       []string{},
		ImplementationNotes: "notes",
		NeedsNetwork:        false,
	}
}

func networkTool(name string) tool.PlannedTool {
	t := pureTool(name)
	t.NeedsNetwork = true
	t.EndpointsUsed = []string{"https://api.example.com/v1"}
	return t
}

const goodBody = "```javascript\ntry {\n  return {content: [{type: \"text\", text: String(args.a + args.b)}]};\n} catch (err) {\n  return {content: [{type: \"text\", text: \"Error: \" + err.message}], isError: true};\n}\n```"

func TestCompile_Valid(t *testing.T) {
	plan := &tool.GenerationPlan{Tools: []tool.PlannedTool{pureTool("add_numbers")}}
	c := New(&fakeClient{responses: []string{goodBody}}, nil)

	table, err := c.Compile(context.Background(), plan, "prompt", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	ct := table.Get("add_numbers")
	require.NotNil(t, ct)
	assert.Contains(t, ct.HandlerSource, "args.a + args.b")
	assert.NotContains(t, ct.HandlerSource, "```")
}

func TestCompile_Sequential_Order(t *testing.T) {
	plan := &tool.GenerationPlan{Tools: []tool.PlannedTool{pureTool("first"), pureTool("second")}}
	c := New(&fakeClient{responses: []string{goodBody, goodBody}}, nil)

	table, err := c.Compile(context.Background(), plan, "prompt", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, table.Names())
}

func TestCompile_RetryOnSyntaxError(t *testing.T) {
	client := &fakeClient{responses: []string{"```js\nthis is not valid {{{\n```", goodBody}}
	plan := &tool.GenerationPlan{Tools: []tool.PlannedTool{pureTool("add_numbers")}}
	c := New(client, nil)

	table, err := c.Compile(context.Background(), plan, "prompt", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 2, client.calls)
}

func TestCompile_FailsAfterTwoAttempts(t *testing.T) {
	bad := "```js\nrequire('fs');\n```"
	client := &fakeClient{responses: []string{bad, bad}}
	plan := &tool.GenerationPlan{Tools: []tool.PlannedTool{pureTool("add_numbers")}}
	c := New(client, nil)

	_, err := c.Compile(context.Background(), plan, "prompt", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add_numbers")
	assert.Equal(t, 2, client.calls)
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"javascript fence", "```javascript\nreturn 1;\n```", "return 1;"},
		{"js fence", "```js\nreturn 1;\n```", "return 1;"},
		{"typescript fence", "```typescript\nreturn 1;\n```", "return 1;"},
		{"bare fence", "```\nreturn 1;\n```", "return 1;"},
		{"no fence", "return 1;", "return 1;"},
		{"prose around fence", "Here you go:\n```js\nreturn 1;\n```\nEnjoy!", "return 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	pure := pureTool("p")
	network := networkTool("n")

	tests := []struct {
		name    string
		tool    *tool.PlannedTool
		source  string
		wantErr string
	}{
		{"valid pure", &pure, `return {content: []};`, ""},
		{"valid await", &network, `const r = await fetch("https://api.example.com"); return {content: []};`, ""},
		{"require forbidden", &pure, `const fs = require("fs");`, "require()"},
		{"import statement forbidden", &pure, "import fs from 'fs';\nreturn {};", "import"},
		{"dynamic import forbidden", &pure, `const m = await import("fs");`, "import"},
		{"fetch in pure tool", &pure, `await fetch("https://x.com");`, "must not call fetch"},
		{"syntax error", &pure, `function ( {`, "syntax error"},
		{"empty body", &pure, "   ", "empty"},
		{"top level return ok", &pure, `return {content: [{type: "text", text: "hi"}]};`, ""},
		{"top level await ok", &network, `const x = await fetch("u"); return {content: []};`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tool, tt.source)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSystemPromptSelection(t *testing.T) {
	assert.Contains(t, networkSystemPrompt, "fetch(url, options)")
	assert.Contains(t, pureSystemPrompt, "NO network access")
	assert.NotContains(t, pureSystemPrompt, "headers.get")
}

func TestUserPromptContents(t *testing.T) {
	pt := networkTool("get_thing")
	got := buildUserPrompt(&pt, "original prompt", nil)
	assert.Contains(t, got, "get_thing")
	assert.Contains(t, got, "original prompt")
	assert.Contains(t, got, "https://api.example.com/v1")
}
