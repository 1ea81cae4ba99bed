package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/devstore"
	"github.com/aimed/aimed/internal/platform/middleware"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    entity.Role
		wantErr bool
	}{
		{"patient", entity.RolePatient, false},
		{" Doctor ", entity.RoleDoctor, false},
		{"clinician", entity.RoleDoctor, false},
		{"INSTITUTION", entity.RoleInstitution, false},
		{"nurse", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"login", "register", "logout", "whoami", "sync", "queue", "validate-token", "sos", "devstore"}
	root := rootCmd()
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, name := range []string{"serve", "migrate"} {
		if _, _, err := root.Find([]string{"devstore", name}); err != nil {
			t.Errorf("devstore %s not registered: %v", name, err)
		}
	}
}

// cliEnv points the CLI at a fresh in-memory dev store and a temporary
// credential file.
func cliEnv(t *testing.T) {
	t.Helper()
	srv, err := devstore.NewServer(devstore.NewMemoryStore(), devstore.Config{
		SigningKey: []byte("cli-test-key"),
		RateLimit:  middleware.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("API_URL", ts.URL)
	t.Setenv("CREDENTIAL_FILE", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "disabled")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_PatientSession(t *testing.T) {
	cliEnv(t)

	out, err := run(t, "register", "--name", "Ana", "--email", "ana@example.com", "--password", "secret", "--role", "patient")
	if err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered Ana (PATIENT)") {
		t.Errorf("unexpected register output: %s", out)
	}

	out, err = run(t, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "ana@example.com") {
		t.Errorf("whoami output = %s", out)
	}

	out, err = run(t, "sos", "Main", "St", "42")
	if err != nil {
		t.Fatalf("sos: %v\n%s", err, out)
	}
	if !strings.Contains(out, "location Main St 42") {
		t.Errorf("sos output = %s", out)
	}

	if _, err := run(t, "queue"); err == nil || !strings.Contains(err.Error(), "different role") {
		t.Errorf("queue as patient: got %v, want role error", err)
	}

	if _, err := run(t, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, err = run(t, "whoami")
	if err != nil {
		t.Fatalf("whoami after logout: %v", err)
	}
	if !strings.Contains(out, "Not signed in") {
		t.Errorf("whoami after logout = %s", out)
	}
}

func TestCLI_LoginAndQueue(t *testing.T) {
	cliEnv(t)

	if out, err := run(t, "register", "--name", "House", "--email", "house@example.com", "--password", "pw", "--role", "doctor"); err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	if _, err := run(t, "logout"); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "login", "--email", "house@example.com", "--password", "wrong", "--role", "doctor"); err == nil {
		t.Error("login with a wrong password succeeded")
	}
	out, err := run(t, "login", "--email", "house@example.com", "--password", "pw", "--role", "doctor")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in as House (DOCTOR)") {
		t.Errorf("login output = %s", out)
	}

	out, err = run(t, "queue")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if !strings.Contains(out, "No patients waiting") {
		t.Errorf("queue output = %s", out)
	}
}

func TestCLI_ValidateUnknownToken(t *testing.T) {
	cliEnv(t)

	if out, err := run(t, "register", "--name", "Clinic", "--email", "clinic@example.com", "--password", "pw", "--role", "institution"); err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	_, err := run(t, "validate-token", "zz9zz9")
	if err == nil || !strings.Contains(err.Error(), "not valid") {
		t.Errorf("got %v, want invalid token error", err)
	}
}

func TestCLI_RequiresSession(t *testing.T) {
	cliEnv(t)
	_, err := run(t, "sos")
	if err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Errorf("got %v, want not signed in", err)
	}
}
