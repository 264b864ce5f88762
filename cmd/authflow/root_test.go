package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/storage"
	"github.com/alicebob/miniredis/v2"
)

func writeConfig(t *testing.T, kratosURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "authflow.yaml")
	content := "kratos:\n" +
		"  public_url: " + kratosURL + "\n" +
		"  timeout: 5s\n" +
		"  requests_per_second: 100\n" +
		"  burst: 10\n" +
		"  poll_interval: 1m\n" +
		"client:\n" +
		"  session:\n" +
		"    user_token_key: userToken\n" +
		"    user_info_key: userInfo\n" +
		"    token_timeout: 5s\n" +
		"  reset:\n" +
		"    request_timeout: 5s\n" +
		"    challenge_anchor: recaptcha-container\n" +
		"    max_requests: 3\n" +
		"    cooldown: 15m\n" +
		"  storage:\n" +
		"    redis_prefix: authflow\n" +
		"    file_path: " + filepath.Join(dir, "session.json") + "\n" +
		"  audit:\n" +
		"    buffer_size: 16\n" +
		"  metrics:\n" +
		"    enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--env-file="}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func recoveryFlow(id string, messages ...map[string]any) map[string]any {
	now := time.Now().UTC()
	msgs := make([]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, m)
	}
	return map[string]any{
		"id":          id,
		"type":        "api",
		"state":       "choose_method",
		"expires_at":  now.Add(time.Hour).Format(time.RFC3339),
		"issued_at":   now.Format(time.RFC3339),
		"request_url": "http://kratos.test/self-service/recovery/api",
		"ui": map[string]any{
			"action":   "http://kratos.test/self-service/recovery?flow=" + id,
			"method":   "POST",
			"nodes":    []any{},
			"messages": msgs,
		},
	}
}

func newRecoveryServer(t *testing.T, posts *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /self-service/recovery/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recoveryFlow("rec-1"))
	})
	mux.HandleFunc("POST /self-service/recovery", func(w http.ResponseWriter, r *http.Request) {
		*posts++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recoveryFlow("rec-1", map[string]any{
			"id": 1060003, "type": "info", "text": "An email containing a recovery code has been sent.",
		}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRootHelp(t *testing.T) {
	out, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("--help failed: %v", err)
	}
	for _, want := range []string{"authflow", "forgot-password", "session"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCLI(t, "nonexistent-command"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")
	out, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"), "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != "authflow 1.2.3" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestForgotPasswordInvalidEmail(t *testing.T) {
	posts := 0
	srv := newRecoveryServer(t, &posts)
	_, err := runCLI(t, "--config", writeConfig(t, srv.URL),
		"forgot-password", "--method", "email", "--email", "not-an-email", "--phone", "", "--captcha-token", "")
	if err == nil || err.Error() != "Invalid email" {
		t.Fatalf("expected Invalid email, got %v", err)
	}
	if posts != 0 {
		t.Fatal("invalid email must not reach Kratos")
	}
}

func TestForgotPasswordEmail(t *testing.T) {
	posts := 0
	srv := newRecoveryServer(t, &posts)
	out, err := runCLI(t, "--config", writeConfig(t, srv.URL),
		"forgot-password", "--method", "email", "--email", "alice@example.com", "--phone", "", "--captcha-token", "")
	if err != nil {
		t.Fatalf("forgot-password failed: %v", err)
	}
	if posts != 1 {
		t.Fatalf("expected one recovery request, got %d", posts)
	}
	if !strings.Contains(out, "-> Login") || !strings.Contains(out, "password reset email sent") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestForgotPasswordPhoneValidation(t *testing.T) {
	_, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"),
		"forgot-password", "--method", "phone", "--email", "", "--phone", "12345", "--captcha-token", "t")
	if err == nil || err.Error() != "Phone number must be 10 digits" {
		t.Fatalf("expected phone validation error, got %v", err)
	}
}

func TestForgotPasswordUnknownMethod(t *testing.T) {
	_, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"),
		"forgot-password", "--method", "carrier-pigeon", "--email", "", "--phone", "", "--captcha-token", "")
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("expected unknown method error, got %v", err)
	}
}

func TestSessionShowNotSignedIn(t *testing.T) {
	out, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"), "session", "show", "--json=false")
	if err != nil {
		t.Fatalf("session show failed: %v", err)
	}
	if strings.TrimSpace(out) != "not signed in" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUnreachableRedisFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	t.Setenv("AUTHFLOW_REDIS_ADDR", addr)

	_, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"), "session", "show", "--json=false")
	if err == nil || !strings.Contains(err.Error(), "redis "+addr) {
		t.Fatalf("expected redis health check failure, got %v", err)
	}
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected storage.ErrUnavailable, got %v", err)
	}
}

func TestReachableRedisBacksSession(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("AUTHFLOW_REDIS_ADDR", mr.Addr())

	out, err := runCLI(t, "--config", writeConfig(t, "http://kratos.test"), "session", "show", "--json=false")
	if err != nil {
		t.Fatalf("session show failed: %v", err)
	}
	if strings.TrimSpace(out) != "not signed in" {
		t.Fatalf("unexpected output %q", out)
	}
}
