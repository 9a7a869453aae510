package e2e

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestServeGatewayOverHTTP(t *testing.T) {
	home := t.TempDir()
	bin, env := buildCLI(t, home)
	cfgPath := writeConfig(t, home, nil)
	runCLI(t, bin, env, "--config", cfgPath, "admin-token", "e2e-token")

	cmd := exec.Command(bin, "--config", cfgPath, "--json", "serve")
	cmd.Env = env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe failed: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start serve failed: %v", err)
	}
	done := make(chan error, 1)
	stopped, waiting := false, false
	defer func() {
		if stopped {
			return
		}
		_ = cmd.Process.Kill()
		if waiting {
			<-done
		} else {
			_ = cmd.Wait()
		}
	}()

	var addrs struct {
		HTTP string `json:"http"`
		GRPC string `json:"grpc"`
	}
	if err := json.NewDecoder(bufio.NewReader(stdout)).Decode(&addrs); err != nil {
		t.Fatalf("read listen addresses failed: %v", err)
	}
	waiting = true
	go func() { done <- cmd.Wait() }()
	base := "http://" + addrs.HTTP

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, err = http.Post(base+"/call", "application/json",
		strings.NewReader(`{"tool":"calculate_roi","params":{"investment":200,"return_amount":300}}`))
	if err != nil {
		t.Fatalf("call request failed: %v", err)
	}
	var call map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&call)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || call["success"] != true {
		t.Fatalf("unexpected call response %d %v", resp.StatusCode, call)
	}

	body := `{"url":"https://github.com/someone/calendar-mcp"}`
	resp, err = http.Post(base+"/providers", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("unauthenticated add failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/providers", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer e2e-token")
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated add failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d", resp.StatusCode)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	select {
	case err := <-done:
		stopped = true
		if err != nil {
			t.Fatalf("serve exited with error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("serve did not stop after SIGTERM")
	}
}
