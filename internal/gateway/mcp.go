package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// mcpEndpoint serves every executable tool over streamable HTTP. The MCP
// server is rebuilt lazily whenever the registry generation changes.
type mcpEndpoint struct {
	svc     *Service
	name    string
	version string
	logger  *zap.Logger

	mu      sync.Mutex
	gen     uint64
	handler http.Handler
}

func newMCPEndpoint(svc *Service, name, version string, logger *zap.Logger) *mcpEndpoint {
	return &mcpEndpoint{svc: svc, name: name, version: version, logger: logger}
}

func (m *mcpEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.current().ServeHTTP(w, r)
}

func (m *mcpEndpoint) current() http.Handler {
	gen := m.svc.reg.Generation()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil || gen != m.gen {
		// stateless so a rebuild does not strand client sessions
		m.handler = server.NewStreamableHTTPServer(m.build(), server.WithStateLess(true))
		m.gen = gen
	}
	return m.handler
}

func (m *mcpEndpoint) build() *server.MCPServer {
	srv := server.NewMCPServer(m.name, m.version, server.WithToolCapabilities(true))
	count := 0
	for _, t := range m.svc.reg.ListTools() {
		if !t.Executable {
			continue
		}
		schema, err := json.Marshal(t.Spec().JSONSchema())
		if err != nil {
			m.logger.Warn("skip tool with unencodable schema", zap.String("tool", t.Name), zap.Error(err))
			continue
		}
		srv.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, schema), m.handle(t.Name))
		count++
	}
	m.logger.Debug("mcp endpoint rebuilt", zap.Int("tools", count))
	return srv
}

func (m *mcpEndpoint) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := m.svc.Call(ctx, name, req.GetArguments(), 0)
		if !res.OK() {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", res.Code(), res["error"])), nil
		}
		blob, err := json.Marshal(res["result"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(blob)), nil
	}
}
