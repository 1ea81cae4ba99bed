package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/gateway"
	"github.com/aimed/aimed/internal/platform/mirror"
)

// -- Mock Gateway --

type mockGateway struct {
	statusCalls  []string
	summaryCalls []string
	created      []entity.Appointment
	messages     []entity.Message
	statusErr    error
	createErr    error
	messageErr   error
	// onCreate runs while CreateAppointment is in flight.
	onCreate func()
}

func (m *mockGateway) CreateAppointment(_ context.Context, a entity.Appointment) (entity.Appointment, error) {
	if m.createErr != nil {
		return entity.Appointment{}, m.createErr
	}
	if m.onCreate != nil {
		m.onCreate()
	}
	m.created = append(m.created, a)
	return a, nil
}

func (m *mockGateway) UpdateAppointmentStatus(_ context.Context, id string, status entity.AppointmentStatus) error {
	m.statusCalls = append(m.statusCalls, id+"="+string(status))
	return m.statusErr
}

func (m *mockGateway) UpdateAppointmentSummary(_ context.Context, id, summary string) error {
	m.summaryCalls = append(m.summaryCalls, id)
	return nil
}

func (m *mockGateway) CreateMessage(_ context.Context, msg entity.Message) (entity.Message, error) {
	if m.messageErr != nil {
		return entity.Message{}, m.messageErr
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

type stubSummarizer struct{ out string }

func (s stubSummarizer) Summarize(context.Context, string, string) (string, error) {
	return s.out, nil
}

var (
	patient = entity.User{ID: "p1", Name: "Ana", Role: entity.RolePatient}
	doctor  = entity.User{ID: "d1", Name: "Silva", Role: entity.RoleDoctor}
)

func newTestService(appts ...entity.Appointment) (*Service, *mockGateway, *mirror.Store) {
	gw := &mockGateway{}
	store := mirror.New()
	store.Replace(entity.Snapshot{Appointments: appts})
	svc := NewService(gw, store, stubSummarizer{out: "fever, likely viral"}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	return svc, gw, store
}

func appt(id string, status entity.AppointmentStatus) entity.Appointment {
	return entity.Appointment{ID: id, PatientID: patient.ID, DoctorID: doctor.ID, Status: status, Date: at("09:00")}
}

func statusOf(t *testing.T, store *mirror.Store, id string) entity.AppointmentStatus {
	t.Helper()
	a, ok := store.Appointment(id)
	if !ok {
		t.Fatalf("appointment %s not in mirror", id)
	}
	return a.Status
}

// -- Tests --

func TestService_FullEncounter(t *testing.T) {
	svc, gw, store := newTestService(appt("a1", entity.StatusScheduled))
	ctx := context.Background()

	if err := svc.CheckIn(ctx, patient, "a1"); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := svc.StartEncounter(ctx, doctor, "a1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.CompleteEncounter(ctx, doctor, "a1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := statusOf(t, store, "a1"); got != entity.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got)
	}
	want := []string{"a1=WAITING", "a1=IN_PROGRESS", "a1=COMPLETED"}
	if strings.Join(gw.statusCalls, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected gateway calls: %v", gw.statusCalls)
	}
}

func TestService_StartFromScheduledSkipsWaiting(t *testing.T) {
	svc, _, store := newTestService(appt("a1", entity.StatusScheduled))
	if err := svc.StartEncounter(context.Background(), doctor, "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := statusOf(t, store, "a1"); got != entity.StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got)
	}
}

func TestService_IllegalTransitionIsLocal(t *testing.T) {
	svc, gw, store := newTestService(appt("a1", entity.StatusCompleted))
	err := svc.CheckIn(context.Background(), patient, "a1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := statusOf(t, store, "a1"); got != entity.StatusCompleted {
		t.Errorf("status changed to %s", got)
	}
	if len(gw.statusCalls) != 0 {
		t.Errorf("expected no network call, got %v", gw.statusCalls)
	}
}

func TestService_ForbiddenActor(t *testing.T) {
	svc, gw, store := newTestService(appt("a1", entity.StatusScheduled))
	ctx := context.Background()

	if err := svc.StartEncounter(ctx, patient, "a1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("patient starting encounter: expected ErrForbidden, got %v", err)
	}
	other := entity.User{ID: "p2", Role: entity.RolePatient}
	if err := svc.CheckIn(ctx, other, "a1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign patient check in: expected ErrForbidden, got %v", err)
	}
	if got := statusOf(t, store, "a1"); got != entity.StatusScheduled {
		t.Errorf("status changed to %s", got)
	}
	if len(gw.statusCalls) != 0 {
		t.Errorf("expected no network call, got %v", gw.statusCalls)
	}
}

func TestService_UnknownAppointment(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.Cancel(context.Background(), patient, "missing"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestService_GatewayFailureKeepsOptimisticStatus(t *testing.T) {
	svc, gw, store := newTestService(appt("a1", entity.StatusWaiting))
	gw.statusErr = &gateway.Error{Kind: gateway.ErrNetwork, Op: "update status"}

	err := svc.Cancel(context.Background(), doctor, "a1")
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := statusOf(t, store, "a1"); got != entity.StatusCanceled {
		t.Errorf("expected optimistic CANCELED to remain, got %s", got)
	}
}

func TestService_Book(t *testing.T) {
	svc, gw, store := newTestService()
	when := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)

	a, err := svc.Book(context.Background(), patient, doctor, when)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != entity.StatusScheduled || a.Urgency != entity.UrgencyLow || a.Time != "14:00" {
		t.Errorf("unexpected appointment: %+v", a)
	}
	if _, ok := store.Appointment(a.ID); !ok {
		t.Error("expected booked appointment in mirror")
	}
	if len(gw.messages) != 1 || gw.messages[0].SenderID != entity.SystemSender {
		t.Fatalf("expected one system notice, got %+v", gw.messages)
	}
	if msgs := store.Messages(); len(msgs) != 1 || msgs[0].AppointmentID != a.ID {
		t.Errorf("expected notice in mirror, got %+v", msgs)
	}
}

func TestService_BookRejectsNonPatient(t *testing.T) {
	svc, gw, _ := newTestService()
	if _, err := svc.Book(context.Background(), doctor, doctor, time.Time{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if len(gw.created) != 0 {
		t.Error("expected no create call")
	}
}

func TestService_BookAnnouncementFailure(t *testing.T) {
	svc, gw, store := newTestService()
	gw.messageErr = errors.New("boom")

	a, err := svc.Book(context.Background(), patient, doctor, time.Time{})
	if err == nil {
		t.Fatal("expected error from failed announcement")
	}
	if a.ID == "" {
		t.Error("expected created appointment to be returned")
	}
	if len(store.Appointments()) != 1 {
		t.Error("expected appointment to stay in mirror")
	}
}

func TestService_SubmitSymptoms(t *testing.T) {
	later := appt("later", entity.StatusScheduled)
	later.Date = at("15:00")
	svc, gw, store := newTestService(later, appt("next", entity.StatusScheduled))

	summary, err := svc.SubmitSymptoms(context.Background(), patient, "  fever since yesterday ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "fever, likely viral" {
		t.Errorf("unexpected summary: %q", summary)
	}
	a, _ := store.Appointment("next")
	if a.SymptomsSummary != summary {
		t.Errorf("expected summary on earliest appointment, got %q", a.SymptomsSummary)
	}
	if len(gw.summaryCalls) != 1 || gw.summaryCalls[0] != "next" {
		t.Errorf("unexpected summary calls: %v", gw.summaryCalls)
	}
	if len(gw.messages) != 1 || gw.messages[0].Content != "[Symptom report]: fever since yesterday" {
		t.Errorf("unexpected report message: %+v", gw.messages)
	}
}

func TestService_SubmitSymptomsWithoutAppointment(t *testing.T) {
	svc, _, _ := newTestService(appt("a1", entity.StatusWaiting))
	if _, err := svc.SubmitSymptoms(context.Background(), patient, "headache"); !errors.Is(err, ErrNoUpcomingAppointment) {
		t.Errorf("expected ErrNoUpcomingAppointment, got %v", err)
	}
}

func TestService_NextPatientAndStats(t *testing.T) {
	a := appt("A", entity.StatusScheduled)
	b := appt("B", entity.StatusWaiting)
	b.Date = at("10:00")
	c := appt("C", entity.StatusScheduled)
	c.Date = at("08:00")
	svc, _, _ := newTestService(a, b, c)

	next, ok := svc.NextPatient(doctor.ID)
	if !ok || next.ID != "B" {
		t.Errorf("expected B at the head of the queue, got %+v", next)
	}
	if st := svc.Stats(doctor.ID); st.Waiting != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if _, ok := svc.NextPatient("nobody"); ok {
		t.Error("expected empty queue")
	}
}

type clearingSummarizer struct{ store *mirror.Store }

func (c clearingSummarizer) Summarize(context.Context, string, string) (string, error) {
	c.store.Clear()
	return "summary", nil
}

func TestService_BookAfterLogoutLeavesMirrorEmpty(t *testing.T) {
	svc, gw, store := newTestService()
	gw.onCreate = store.Clear

	created, err := svc.Book(context.Background(), patient, doctor, at("10:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(gw.created) != 1 || created.ID != gw.created[0].ID {
		t.Errorf("expected the backend record to be returned, got %+v", created)
	}
	snap := store.Snapshot()
	if len(snap.Appointments) != 0 || len(snap.Messages) != 0 {
		t.Errorf("expected cleared mirror to stay empty, got %d appointments %d messages",
			len(snap.Appointments), len(snap.Messages))
	}
	if len(gw.messages) != 0 {
		t.Error("expected no announcement once the session ended")
	}
}

func TestService_SubmitSymptomsAfterLogout(t *testing.T) {
	svc, gw, store := newTestService(appt("a1", entity.StatusScheduled))
	svc.summarizer = clearingSummarizer{store: store}

	_, err := svc.SubmitSymptoms(context.Background(), patient, "fever")
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if len(gw.summaryCalls) != 0 || len(gw.messages) != 0 {
		t.Errorf("expected no writes after the mirror was cleared, got %v %v", gw.summaryCalls, gw.messages)
	}
	if !store.Snapshot().Empty() {
		t.Errorf("expected empty mirror, got %+v", store.Snapshot())
	}
}
