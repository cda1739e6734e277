package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/alicebob/miniredis/v2"
)

func writeConfig(t *testing.T, redisAddr string) string {
	t.Helper()

	body := fmt.Sprintf(`log_level: error
store:
  driver: redis
  redis_addr: %s
  redis_prefix: cli
password:
  memory_kb: 8192
  time: 1
  parallelism: 1
`, redisAddr)

	path := filepath.Join(t.TempDir(), "identity.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newTestCLI(t *testing.T) func(stdin string, args ...string) (string, error) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfgPath := writeConfig(t, mr.Addr())

	return func(stdin string, args ...string) (string, error) {
		cmd := newRootCmd()
		var out, errOut bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append([]string{"--config", cfgPath, "--env-file", ""}, args...))
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}
}

func parseFields(out string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			fields[k] = v
		}
	}
	return fields
}

func TestRegisterAndAuthenticate(t *testing.T) {
	run := newTestCLI(t)

	out, err := run("", "register", "alice", "--password", "correct-horse-battery")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	reg := parseFields(out)
	if reg["id"] == "" || reg["auth_key"] == "" || reg["access_token"] == "" {
		t.Fatalf("unexpected register output: %q", out)
	}

	out, err = run("correct-horse-battery\n", "authenticate", "alice")
	if err != nil {
		t.Fatalf("authenticate with stdin password failed: %v", err)
	}
	if parseFields(out)["id"] != reg["id"] {
		t.Fatalf("expected id %s, got %q", reg["id"], out)
	}

	if _, err := run("", "authenticate", "alice", "-p", "wrong-password-123"); !errors.Is(err, goIdentity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	out, err = run("", "authenticate", "--access-token", reg["access_token"])
	if err != nil || parseFields(out)["username"] != "alice" {
		t.Fatalf("access token login failed: out=%q err=%v", out, err)
	}

	out, err = run("", "authenticate", "--id", reg["id"], "--auth-key", reg["auth_key"])
	if err != nil || parseFields(out)["id"] != reg["id"] {
		t.Fatalf("auth key login failed: out=%q err=%v", out, err)
	}

	if _, err := run("", "register", "alice", "-p", "another-password-1"); !errors.Is(err, goIdentity.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
}

func TestResetTokenLifecycle(t *testing.T) {
	run := newTestCLI(t)

	if _, err := run("", "register", "bob", "-p", "original-password"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	out, err := run("", "reset-token", "issue", "bob")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	token := strings.TrimSpace(out)
	if !strings.Contains(token, "_") {
		t.Fatalf("unexpected token format: %q", token)
	}

	out, err = run("", "reset-token", "check", token)
	if err != nil || strings.TrimSpace(out) != "valid" {
		t.Fatalf("check failed: out=%q err=%v", out, err)
	}

	if _, err := run("", "reset-token", "consume", token, "-p", "replacement-password"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	if _, err := run("", "reset-token", "check", token); !errors.Is(err, goIdentity.ErrResetTokenInvalid) {
		t.Fatalf("expected consumed token to be invalid, got %v", err)
	}
	if _, err := run("", "authenticate", "bob", "-p", "replacement-password"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestThrottleAndDelete(t *testing.T) {
	run := newTestCLI(t)

	out, err := run("", "register", "carol", "-p", "carol-password-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	id := parseFields(out)["id"]

	for i := 0; i < 2; i++ {
		out, err := run("", "throttle", id)
		if err != nil || parseFields(out)["allowed"] != "true" {
			t.Fatalf("call %d: expected allowed, out=%q err=%v", i, out, err)
		}
	}

	out, err = run("", "throttle", id)
	if !errors.Is(err, goIdentity.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if parseFields(out)["allowed"] != "false" {
		t.Fatalf("unexpected throttle output: %q", out)
	}

	if _, err := run("", "delete", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := run("", "throttle", id); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected deleted identity to be invisible, got %v", err)
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	run := newTestCLI(t)

	if _, err := run("", "migrate"); err == nil {
		t.Fatal("expected migrate to refuse a redis store")
	}
}

func TestLoadtestSmallRun(t *testing.T) {
	run := newTestCLI(t)

	out, err := run("", "loadtest", "--identities", "3", "--ops", "20", "--concurrency", "4")
	if err != nil {
		t.Fatalf("loadtest failed: %v", err)
	}
	for _, want := range []string{"using miniredis", "---- results ----", "auth_key: ops=20 failures=0", "throttle: ops=20 failures=0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
