package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/mirror"
)

type mockGateway struct {
	created  []entity.Prescription
	err      error
	onCreate func()
}

func (m *mockGateway) CreatePrescription(_ context.Context, p entity.Prescription) (entity.Prescription, error) {
	if m.err != nil {
		return entity.Prescription{}, m.err
	}
	if m.onCreate != nil {
		m.onCreate()
	}
	m.created = append(m.created, p)
	return p, nil
}

var (
	doctor = entity.User{ID: "d1", Name: "Silva", Role: entity.RoleDoctor}
	visit  = entity.Appointment{ID: "a1", PatientID: "p1", DoctorID: "d1", Status: entity.StatusInProgress}
	fixed  = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func newTestService() (*Service, *mockGateway, *mirror.Store) {
	gw := &mockGateway{}
	store := mirror.New()
	svc := NewService(gw, store, zerolog.Nop())
	svc.tokens = NewTokenGenerator(99)
	svc.now = func() time.Time { return fixed }
	return svc, gw, store
}

func TestService_IssueAndValidateRoundTrip(t *testing.T) {
	svc, gw, _ := newTestService()

	p, err := svc.Issue(context.Background(), doctor, IssueRequest{
		Appointment: visit,
		Kind:        entity.DocumentMedication,
		Content:     "Amoxicillin 500mg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gw.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(gw.created))
	}
	if p.PatientID != "p1" || p.DoctorName != "Silva" {
		t.Errorf("unexpected prescription: %+v", p)
	}
	if want := fixed.Add(DefaultValidity); !p.ValidUntil.Equal(want) {
		t.Errorf("expected default validity %v, got %v", want, p.ValidUntil)
	}

	got, ok := svc.Validate(p.Token)
	if !ok || got.ID != p.ID {
		t.Fatalf("expected token %q to resolve to %s", p.Token, p.ID)
	}
}

func TestService_ValidateIsCaseInsensitive(t *testing.T) {
	svc, _, store := newTestService()
	store.Replace(entity.Snapshot{Prescriptions: []entity.Prescription{{ID: "rx1", Token: "K7Q2ZD"}}})

	tests := []struct {
		candidate string
		want      bool
	}{
		{"K7Q2ZD", true},
		{"k7q2zd", true},
		{"  k7Q2zD ", true},
		{"K7Q2Z", false},
		{"XXXXXX", false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok := svc.Validate(tt.candidate)
		if ok != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.candidate, ok, tt.want)
		}
	}
}

func TestService_ValidateSeesOnlyMirror(t *testing.T) {
	svc, _, store := newTestService()
	p, err := svc.Issue(context.Background(), doctor, IssueRequest{Appointment: visit, Content: "Rest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Clear()
	if _, ok := svc.Validate(p.Token); ok {
		t.Error("expected token to be invisible once the mirror no longer holds it")
	}
}

func TestService_IssueRejections(t *testing.T) {
	svc, gw, _ := newTestService()
	ctx := context.Background()

	patient := entity.User{ID: "p1", Role: entity.RolePatient}
	if _, err := svc.Issue(ctx, patient, IssueRequest{Appointment: visit, Content: "x"}); !errors.Is(err, ErrNotClinician) {
		t.Errorf("expected ErrNotClinician, got %v", err)
	}
	other := entity.User{ID: "d2", Role: entity.RoleDoctor}
	if _, err := svc.Issue(ctx, other, IssueRequest{Appointment: visit, Content: "x"}); !errors.Is(err, ErrNotIssuedHere) {
		t.Errorf("expected ErrNotIssuedHere, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, IssueRequest{Appointment: visit, Content: "   "}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, IssueRequest{Appointment: visit, Content: "x", Kind: "LETTER"}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
	if len(gw.created) != 0 {
		t.Errorf("expected no create calls, got %d", len(gw.created))
	}
}

func TestService_IssueGatewayFailureLeavesMirror(t *testing.T) {
	svc, gw, store := newTestService()
	gw.err = errors.New("offline")
	if _, err := svc.Issue(context.Background(), doctor, IssueRequest{Appointment: visit, Content: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(store.Prescriptions()) != 0 {
		t.Error("expected nothing appended on failure")
	}
}

func TestService_IssueAvoidsMirroredTokens(t *testing.T) {
	svc, _, store := newTestService()
	peek := NewTokenGenerator(99)
	taken := peek.Next()
	store.Replace(entity.Snapshot{Prescriptions: []entity.Prescription{{ID: "old", Token: taken}}})

	p, err := svc.Issue(context.Background(), doctor, IssueRequest{Appointment: visit, Content: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Token == taken {
		t.Errorf("issued colliding token %q", taken)
	}
}

func TestService_ForPatient(t *testing.T) {
	svc, _, store := newTestService()
	store.Replace(entity.Snapshot{Prescriptions: []entity.Prescription{
		{ID: "1", PatientID: "p1", Date: fixed.Add(-time.Hour)},
		{ID: "2", PatientID: "p2", Date: fixed},
		{ID: "3", PatientID: "p1", Date: fixed},
	}})
	got := svc.ForPatient("p1")
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Errorf("unexpected prescriptions: %+v", got)
	}
}

func TestService_IssueAfterLogoutIsNotMirrored(t *testing.T) {
	svc, gw, store := newTestService()
	gw.onCreate = store.Clear

	p, err := svc.Issue(context.Background(), doctor, IssueRequest{Appointment: visit, Content: "Dipirona 1g"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if p.Token == "" || len(gw.created) != 1 {
		t.Errorf("expected the stored prescription to be returned, got %+v", p)
	}
	if len(store.Prescriptions()) != 0 {
		t.Errorf("expected cleared mirror to stay empty, got %+v", store.Prescriptions())
	}
}
