package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivekhaldar/mcpboot/internal/executor"
	"github.com/vivekhaldar/mcpboot/internal/sandbox"
	"github.com/vivekhaldar/mcpboot/internal/tool"
	"github.com/vivekhaldar/mcpboot/pkg/mcp"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	table := tool.NewTable([]string{"api.example.com"})
	require.NoError(t, table.Add(&tool.CompiledTool{
		PlannedTool: tool.PlannedTool{
			Name:        "add_numbers",
			Description: "Add two numbers",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {"a": {"type": "number"}, "b": {"type": "number"}}, "required": ["a", "b"]}`),
		},
		HandlerSource: `return {content: [{type: "text", text: String(args.a + args.b)}]};`,
	}))
	exec := executor.New(table, sandbox.New(nil, nil), nil, nil)
	return New(exec, nil)
}

func postMCP(t *testing.T, h http.Handler, body string, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accept == "" {
		accept = "application/json, text/event-stream"
	}
	req.Header.Set("Accept", accept)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *mcp.Response {
	t.Helper()
	body := rec.Body.String()
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		for _, line := range strings.Split(body, "\n") {
			if strings.HasPrefix(line, "data: ") {
				body = strings.TrimPrefix(line, "data: ")
				break
			}
		}
	}
	var resp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}

func TestInitialize(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": {"protocolVersion": "2025-03-26"}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var result mcp.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2025-03-26", result.ProtocolVersion)
	assert.Equal(t, "mcpboot", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestToolsList_HidesMetadataTool(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`, "")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var result mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "add_numbers", result.Tools[0].Name)
	assert.Equal(t, "Add two numbers", result.Tools[0].Description)
	assert.NotEmpty(t, result.Tools[0].InputSchema)
}

func TestToolsCall(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 3, "method": "tools/call", "params": {"name": "add_numbers", "arguments": {"a": 100, "b": 23}}}`, "")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "123", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestToolsCall_UnknownTool(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 4, "method": "tools/call", "params": {"name": "divide_numbers", "arguments": {}}}`, "")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Unknown tool")
}

func TestToolsCall_MetadataTool(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 5, "method": "tools/call", "params": {"name": "_mcp_metadata"}}`, "")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)

	var meta struct {
		Stage            string   `json:"stage"`
		Version          string   `json:"version"`
		WhitelistDomains []string `json:"whitelistDomains"`
		Tools            []struct {
			Name          string `json:"name"`
			HandlerSource string `json:"handlerSource"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &meta))
	assert.Equal(t, "boot", meta.Stage)
	assert.Equal(t, Version, meta.Version)
	assert.Equal(t, []string{"api.example.com"}, meta.WhitelistDomains)
	require.Len(t, meta.Tools, 1)
	assert.Equal(t, "add_numbers", meta.Tools[0].Name)
	assert.Contains(t, meta.Tools[0].HandlerSource, "args.a + args.b")
}

func TestNotificationGets202(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "method": "notifications/initialized"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUnknownMethod(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 9, "method": "resources/list"}`, "")

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.MethodNotFound, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{not json`, "")

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ParseError, resp.Error.Code)
}

func TestSSEResponse(t *testing.T) {
	s := testServer(t)
	rec := postMCP(t, s.Handler(), `{"jsonrpc": "2.0", "id": 7, "method": "tools/list"}`, "text/event-stream")

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, rec.Body.String(), "event: message")
	assert.Contains(t, rec.Body.String(), "data: ")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status string `json:"status"`
		Tools  int    `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Tools)
}

func TestMCPRejectsGet(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartPicksPort(t *testing.T) {
	s := testServer(t)
	port, err := s.Start(0)
	require.NoError(t, err)
	require.Greater(t, port, 0)
	defer s.Shutdown(t.Context())

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
