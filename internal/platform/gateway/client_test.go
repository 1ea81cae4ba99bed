package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/credential"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := credential.NewMemoryStore()
	if token != "" {
		if err := creds.Save(token); err != nil {
			t.Fatal(err)
		}
	}
	c, err := New(srv.URL, creds)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "::::", "example.com"} {
		if _, err := New(raw, credential.NewMemoryStore()); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestLogin_NoBearerHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no authorization header, got %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ana@example.com" || body["role"] != "PATIENT" {
			t.Errorf("unexpected body: %v", body)
		}
		_, _ = io.WriteString(w, `{"token":"t1","user":{"id":"u1","name":"Ana","email":"ana@example.com","role":"PATIENT"}}`)
	}, "stale")

	res, err := c.Login(context.Background(), "ana@example.com", "pw", entity.RolePatient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "t1" || res.User.ID != "u1" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestAuthenticatedCall_SendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer header, got %q", got)
		}
		_, _ = io.WriteString(w, `[{"id":"a1","status":"WAITING","urgency":"LOW","date":"2026-01-02T09:00:00Z"}]`)
	}, "secret")

	appts, err := c.ListAppointments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 || appts[0].Status != entity.StatusWaiting {
		t.Errorf("unexpected appointments: %+v", appts)
	}
}

func TestAuthenticatedCall_MissingCredential(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true }, "")

	_, err := c.ListAlerts(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if called {
		t.Error("expected no request without a credential")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		want    error
		message string
	}{
		{http.StatusUnauthorized, `{"message":"token expired"}`, ErrUnauthorized, "token expired"},
		{http.StatusForbidden, ``, ErrUnauthorized, "Forbidden"},
		{http.StatusBadRequest, `{"message":"status is required"}`, ErrInvalid, "status is required"},
		{http.StatusNotFound, `not json`, ErrInvalid, "Not Found"},
		{http.StatusInternalServerError, `{}`, ErrNetwork, "Internal Server Error"},
		{http.StatusTooManyRequests, ``, ErrNetwork, "Too Many Requests"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, "tok")
			err := c.UpdateAppointmentStatus(context.Background(), "a1", entity.StatusWaiting)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := MessageOf(err); got != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, got)
			}
			if KindOf(err) != tt.want {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.want)
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	creds := credential.NewMemoryStore()
	_ = creds.Save("tok")
	c, err := New(url, creds, WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListUsers(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDecodeFailureIsInvalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": 5}`)
	}, "tok")
	_, err := c.ListVitals(context.Background())
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestPartialUpdatePaths(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.RequestURI())
		if strings.HasSuffix(r.URL.Path, "/toggle") {
			_, _ = io.WriteString(w, `{"id":"m1","name":"Dipirona","nextDose":"2026-01-02T09:00:00Z","icon":"PILL"}`)
		}
	}, "tok")

	ctx := context.Background()
	if err := c.UpdateAppointmentSummary(ctx, "a1", "fever"); err != nil {
		t.Fatal(err)
	}
	if err := c.ResolveAlert(ctx, "al1"); err != nil {
		t.Fatal(err)
	}
	med, err := c.ToggleMedication(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if med.Name != "Dipirona" {
		t.Errorf("unexpected medication: %+v", med)
	}
	if _, err := c.ListMessages(ctx, "a 1"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"PATCH /appointments/a1/summary",
		"PATCH /alerts/al1/resolve",
		"PATCH /medications/m1/toggle",
		"GET /messages?appointmentId=a+1",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
