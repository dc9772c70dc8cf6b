package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/executor"
	"github.com/vivekhaldar/mcpboot/pkg/mcp"
)

// Version is reported through initialize and the metadata tool.
const Version = "1.0.0"

// metadataToolName is callable via tools/call but never listed. It lets
// downstream stages introspect the bootstrapped server without reading
// the cache directory.
const metadataToolName = "_mcp_metadata"

// Server exposes the executor over the MCP streamable HTTP transport,
// plus a /health side door.
type Server struct {
	exec     *executor.Executor
	logger   *zap.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
	listener net.Listener
	port     int
}

// New creates a Server for the given executor.
func New(exec *executor.Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{exec: exec, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/mcp", s.handleMCP)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Start listens on the port (0 means pick one) and serves in the
// background. It returns the bound port.
func (s *Server) Start(port int) (int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("listening on port %d: %w", port, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.httpSrv = &http.Server{Handler: s.mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()
	s.logger.Info("MCP server listening", zap.Int("port", s.port))
	return s.port, nil
}

// Port returns the bound port after Start.
func (s *Server) Port() int { return s.port }

// Handler exposes the HTTP mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"tools":  len(s.exec.ListTools()),
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, r, mcp.NewErrorResponse(nil, mcp.ParseError, "Parse error: "+err.Error()))
		return
	}

	s.logger.Debug("mcp request", zap.String("method", req.Method))
	resp := s.dispatch(r.Context(), &req)
	if resp == nil {
		// Notification: acknowledge with no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, r, resp)
}

func (s *Server) dispatch(ctx context.Context, req *mcp.Request) *mcp.Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "ping":
		resp, _ := mcp.NewResponse(req.ID, map[string]any{})
		return resp
	default:
		if req.IsNotification() {
			return nil
		}
		return mcp.NewErrorResponse(req.ID, mcp.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *mcp.Request) *mcp.Response {
	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: false},
		},
		ServerInfo: mcp.ServerInfo{
			Name:    "mcpboot",
			Version: Version,
		},
	}
	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleListTools(req *mcp.Request) *mcp.Response {
	result := mcp.ListToolsResult{Tools: s.exec.ListTools()}
	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}

	var result *mcp.CallToolResult
	if params.Name == metadataToolName {
		result = s.metadataResult()
	} else {
		result = s.exec.Execute(ctx, params.Name, params.Arguments)
	}

	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

// metadataResult describes the bootstrapped server: stage, version,
// whitelist, and every tool with its handler source.
func (s *Server) metadataResult() *mcp.CallToolResult {
	table := s.exec.Table()
	type toolMeta struct {
		Name          string `json:"name"`
		HandlerSource string `json:"handlerSource"`
	}
	tools := make([]toolMeta, 0, table.Len())
	for _, t := range table.All() {
		tools = append(tools, toolMeta{Name: t.Name, HandlerSource: t.HandlerSource})
	}
	blob, err := json.MarshalIndent(map[string]any{
		"stage":            "boot",
		"version":          Version,
		"whitelistDomains": table.WhitelistDomains,
		"tools":            tools,
	}, "", "  ")
	if err != nil {
		return mcp.ErrorResult("metadata serialization failed: " + err.Error())
	}
	return mcp.TextResult(string(blob))
}

// writeResponse emits either a plain JSON body or a single SSE frame,
// depending on what the client's Accept header prefers.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *mcp.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "serializing response", http.StatusInternalServerError)
		return
	}

	if wantsEventStream(r) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// wantsEventStream reports whether the client prefers SSE over plain
// JSON. Clients that accept both get plain JSON.
func wantsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/event-stream") &&
		!strings.Contains(accept, "application/json")
}
