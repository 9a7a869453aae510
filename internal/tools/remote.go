package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"

	mcpProtocolVersion = "2025-06-18"
)

var ErrRemoteTool = errors.New("TOOL_REMOTE")

// Session is the subset of an MCP client used to invoke a remote tool.
type Session interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens an initialized MCP session to a provider endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint, transportName string) (Session, error)
}

// MCPDialer connects with mcp-go over SSE or streamable HTTP.
type MCPDialer struct {
	ClientName    string
	ClientVersion string
	BearerToken   string
}

func (d MCPDialer) Dial(ctx context.Context, endpoint, transportName string) (Session, error) {
	var headers map[string]string
	if d.BearerToken != "" {
		headers = map[string]string{"Authorization": "Bearer " + d.BearerToken}
	}
	var (
		cli *client.Client
		err error
	)
	switch NormalizeTransport(transportName) {
	case TransportSSE:
		var opts []transport.ClientOption
		if headers != nil {
			opts = append(opts, transport.WithHeaders(headers))
		}
		cli, err = client.NewSSEMCPClient(endpoint, opts...)
	default:
		var opts []transport.StreamableHTTPCOption
		if headers != nil {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		cli, err = client.NewStreamableHttpClient(endpoint, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create client for %s: %v", ErrRemoteTool, endpoint, err)
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("%w: start client for %s: %v", ErrRemoteTool, endpoint, err)
	}
	name, version := d.ClientName, d.ClientVersion
	if name == "" {
		name = "mcpgate"
	}
	if version == "" {
		version = "dev"
	}
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcpProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      mcp.Implementation{Name: name, Version: version},
		},
	}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("%w: initialize %s: %v", ErrRemoteTool, endpoint, err)
	}
	return cli, nil
}

// NormalizeTransport maps empty or unknown names to streamable HTTP.
func NormalizeTransport(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TransportSSE:
		return TransportSSE
	default:
		return TransportStreamableHTTP
	}
}

// Remote builds a handler that invokes tool on an external MCP server.
// A session is opened per call and closed afterwards.
func Remote(d Dialer, endpoint, transportName, tool string) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		sess, err := d.Dial(ctx, endpoint, transportName)
		if err != nil {
			return nil, err
		}
		defer sess.Close()

		req := mcp.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = params
		res, err := sess.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRemoteTool, tool, err)
		}
		return decodeResult(tool, res)
	}
}

func decodeResult(tool string, res *mcp.CallToolResult) (any, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: %s returned no result", ErrRemoteTool, tool)
	}
	texts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			texts = append(texts, v.Text)
		case *mcp.TextContent:
			texts = append(texts, v.Text)
		}
	}
	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrRemoteTool, tool, strings.Join(texts, "\n"))
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	if len(texts) == 1 {
		var decoded any
		if err := json.Unmarshal([]byte(texts[0]), &decoded); err == nil {
			return decoded, nil
		}
		return texts[0], nil
	}
	return texts, nil
}
