package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForwarderPostsParams(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	env := map[string]string{"BRIDGE_URL": srv.URL + "/", "BRIDGE_KEY": "s3cret"}
	f := Forwarder{URLEnv: "BRIDGE_URL", TokenEnv: "BRIDGE_KEY", Lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	out, err := f.Handler("ghl_get_contact")(context.Background(), map[string]any{"contact_id": "c1"})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if gotPath != "/tools/ghl_get_contact" {
		t.Fatalf("expected tool path, got %q", gotPath)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotBody["contact_id"] != "c1" {
		t.Fatalf("expected params forwarded, got %v", gotBody)
	}
	if res := out.(map[string]any); res["ok"] != true {
		t.Fatalf("unexpected result %v", out)
	}
}

func TestForwarderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	unset := Forwarder{URLEnv: "NOPE", Lookup: func(string) (string, bool) { return "", false }}
	if _, err := unset.Handler("x")(context.Background(), nil); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected backend error for unset url, got %v", err)
	}
	failing := Forwarder{URLEnv: "U", Lookup: func(string) (string, bool) { return srv.URL, true }}
	if _, err := failing.Handler("x")(context.Background(), nil); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected backend error for 502, got %v", err)
	}
}
