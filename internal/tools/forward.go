package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrBackend = errors.New("TOOL_BACKEND")

// Forwarder relays bridge tool calls to the backend service named by an environment variable.
type Forwarder struct {
	URLEnv   string
	TokenEnv string
	Client   *http.Client
	Lookup   func(string) (string, bool)
}

var defaultForwardClient = &http.Client{Timeout: 120 * time.Second}

// Handler returns a handler that POSTs params to {base}/tools/{name}.
func (f Forwarder) Handler(name string) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		lookup := f.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		base, ok := lookup(f.URLEnv)
		if !ok || strings.TrimSpace(base) == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrBackend, f.URLEnv)
		}
		blob, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		endpoint := strings.TrimRight(base, "/") + "/tools/" + name
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if f.TokenEnv != "" {
			if token, ok := lookup(f.TokenEnv); ok && token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		client := f.Client
		if client == nil {
			client = defaultForwardClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBackend, name, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s response: %v", ErrBackend, name, err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %s returned %d: %s", ErrBackend, name, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		var out any
		if len(bytes.TrimSpace(body)) == 0 {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return string(body), nil
		}
		return out, nil
	}
}

func forwarded(f Forwarder, specs ...Spec) []Tool {
	out := make([]Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, Tool{Spec: s, Handler: f.Handler(s.Name)})
	}
	return out
}
