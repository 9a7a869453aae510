package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeSession struct {
	got    mcp.CallToolRequest
	result *mcp.CallToolResult
	err    error
	closed bool
}

func (s *fakeSession) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.got = req
	return s.result, s.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	sess      *fakeSession
	endpoint  string
	transport string
	err       error
}

func (d *fakeDialer) Dial(_ context.Context, endpoint, transportName string) (Session, error) {
	d.endpoint, d.transport = endpoint, transportName
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

func TestRemoteDecodesJSONText(t *testing.T) {
	sess := &fakeSession{result: &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(`{"sum":3}`)}}}
	d := &fakeDialer{sess: sess}
	out, err := Remote(d, "http://tools.local/mcp", "sse", "add")(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
	if err != nil {
		t.Fatalf("remote call failed: %v", err)
	}
	if out.(map[string]any)["sum"] != 3.0 {
		t.Fatalf("unexpected result %v", out)
	}
	if sess.got.Params.Name != "add" {
		t.Fatalf("expected tool name add, got %q", sess.got.Params.Name)
	}
	if d.endpoint != "http://tools.local/mcp" || d.transport != "sse" {
		t.Fatalf("unexpected dial target %s %s", d.endpoint, d.transport)
	}
	if !sess.closed {
		t.Fatalf("expected session closed after call")
	}
}

func TestRemoteToolError(t *testing.T) {
	sess := &fakeSession{result: &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.NewTextContent("denied")}}}
	_, err := Remote(&fakeDialer{sess: sess}, "http://x", "", "t")(context.Background(), nil)
	if !errors.Is(err, ErrRemoteTool) {
		t.Fatalf("expected remote tool error, got %v", err)
	}
}

func TestRemoteDialError(t *testing.T) {
	dialErr := errors.New("refused")
	_, err := Remote(&fakeDialer{err: dialErr}, "http://x", "", "t")(context.Background(), nil)
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestNormalizeTransport(t *testing.T) {
	if NormalizeTransport(" SSE ") != TransportSSE {
		t.Fatalf("expected sse")
	}
	if NormalizeTransport("") != TransportStreamableHTTP || NormalizeTransport("stdio") != TransportStreamableHTTP {
		t.Fatalf("expected streamable http default")
	}
}
