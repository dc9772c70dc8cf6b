package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivekhaldar/mcpboot/internal/sandbox"
	"github.com/vivekhaldar/mcpboot/internal/tool"
)

const addSource = `
try {
	const sum = args.a + args.b;
	return {content: [{type: "text", text: String(sum)}]};
} catch (err) {
	return {content: [{type: "text", text: "Error: " + err.message}], isError: true};
}
`

const multiplySource = `
try {
	const product = args.a * args.b;
	return {content: [{type: "text", text: String(product)}]};
} catch (err) {
	return {content: [{type: "text", text: "Error: " + err.message}], isError: true};
}
`

const numberArgsSchema = `{"type": "object", "properties": {"a": {"type": "number"}, "b": {"type": "number"}}, "required": ["a", "b"]}`

func calculatorExecutor(t *testing.T) *Executor {
	t.Helper()
	table := tool.NewTable(nil)
	require.NoError(t, table.Add(&tool.CompiledTool{
		PlannedTool: tool.PlannedTool{
			Name:        "add_numbers",
			Description: "Add two numbers",
			InputSchema: json.RawMessage(numberArgsSchema),
		},
		HandlerSource: addSource,
	}))
	require.NoError(t, table.Add(&tool.CompiledTool{
		PlannedTool: tool.PlannedTool{
			Name:        "multiply_numbers",
			Description: "Multiply two numbers",
			InputSchema: json.RawMessage(numberArgsSchema),
		},
		HandlerSource: multiplySource,
	}))
	return New(table, sandbox.New(nil, nil), nil, nil)
}

func TestExecute_Calculator(t *testing.T) {
	e := calculatorExecutor(t)

	result := e.Execute(context.Background(), "add_numbers", map[string]any{"a": 17.0, "b": 25.0})
	require.Len(t, result.Content, 1)
	assert.Equal(t, "42", result.Content[0].Text)
	assert.False(t, result.IsError)

	result = e.Execute(context.Background(), "multiply_numbers", map[string]any{"a": 6.0, "b": 7.0})
	assert.Equal(t, "42", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestExecute_UnknownTool(t *testing.T) {
	e := calculatorExecutor(t)

	result := e.Execute(context.Background(), "divide_numbers", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Unknown tool")
	assert.Contains(t, result.Content[0].Text, "divide_numbers")
}

func TestExecute_SchemaViolation(t *testing.T) {
	e := calculatorExecutor(t)

	result := e.Execute(context.Background(), "add_numbers", map[string]any{"a": 1.0})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "add_numbers")
}

func TestExecute_HandlerErrorShaped(t *testing.T) {
	table := tool.NewTable(nil)
	require.NoError(t, table.Add(&tool.CompiledTool{
		PlannedTool: tool.PlannedTool{
			Name:        "broken",
			Description: "always throws",
			InputSchema: json.RawMessage(`{"type": "object"}`),
		},
		HandlerSource: `throw new Error("kaput");`,
	}))
	e := New(table, sandbox.New(nil, nil), nil, nil)

	result := e.Execute(context.Background(), "broken", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Handler error")
	assert.Contains(t, result.Content[0].Text, "kaput")
}

func TestListTools_InsertionOrder(t *testing.T) {
	e := calculatorExecutor(t)

	tools := e.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "add_numbers", tools[0].Name)
	assert.Equal(t, "multiply_numbers", tools[1].Name)
	assert.Equal(t, "Add two numbers", tools[0].Description)
	assert.JSONEq(t, numberArgsSchema, string(tools[0].InputSchema))
}

func TestExecute_NilArgsBecomeEmptyObject(t *testing.T) {
	table := tool.NewTable(nil)
	require.NoError(t, table.Add(&tool.CompiledTool{
		PlannedTool: tool.PlannedTool{
			Name:        "echo_args",
			Description: "echoes args",
			InputSchema: json.RawMessage(`{"type": "object"}`),
		},
		HandlerSource: `return {content: [{type: "text", text: JSON.stringify(args)}]};`,
	}))
	e := New(table, sandbox.New(nil, nil), nil, nil)

	result := e.Execute(context.Background(), "echo_args", nil)
	assert.False(t, result.IsError)
	assert.Equal(t, "{}", result.Content[0].Text)
}
