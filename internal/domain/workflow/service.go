// Package workflow implements the appointment lifecycle shared by patients
// and clinicians. Legality is decided locally against the mirror; legal
// changes are applied optimistically and then sent to the backend.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/summarizer"
)

// ErrNoUpcomingAppointment is returned when a patient action needs a
// SCHEDULED appointment and there is none.
var ErrNoUpcomingAppointment = errors.New("no scheduled appointment")

// Gateway is the slice of the remote store the workflow writes through.
type Gateway interface {
	CreateAppointment(ctx context.Context, a entity.Appointment) (entity.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status entity.AppointmentStatus) error
	UpdateAppointmentSummary(ctx context.Context, id, summary string) error
	CreateMessage(ctx context.Context, m entity.Message) (entity.Message, error)
}

// Mirror is the slice of the domain state store the workflow reads and
// patches.
type Mirror interface {
	Appointment(id string) (entity.Appointment, bool)
	Appointments() []entity.Appointment
	Alerts() []entity.Alert
	Epoch() uint64
	AppendAppointment(epoch uint64, a entity.Appointment) bool
	SetAppointmentStatus(epoch uint64, id string, status entity.AppointmentStatus) bool
	SetAppointmentSummary(epoch uint64, id, summary string) bool
	AppendMessage(epoch uint64, m entity.Message) bool
}

type Service struct {
	gw         Gateway
	store      Mirror
	summarizer summarizer.Summarizer
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(gw Gateway, store Mirror, sum summarizer.Summarizer, logger zerolog.Logger) *Service {
	if sum == nil {
		sum = summarizer.Canned{}
	}
	return &Service{
		gw:         gw,
		store:      store,
		summarizer: sum,
		logger:     logger.With().Str("component", "workflow").Logger(),
		now:        time.Now,
	}
}

// -- Lifecycle --

// Transition moves appointment id to status to on behalf of actor. The
// check runs against the mirrored status; an illegal request issues no
// network call. A failed network call is returned but the optimistic write
// stays until the next refresh corrects it.
func (s *Service) Transition(ctx context.Context, actor entity.User, id string, to entity.AppointmentStatus) error {
	epoch := s.store.Epoch()
	appt, ok := s.store.Appointment(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if err := CheckTransition(id, appt.Status, to, actor.Role); err != nil {
		return err
	}
	if !participates(appt, actor) {
		return &TransitionError{ID: id, From: appt.Status, To: to, Actor: actor.Role, cause: ErrForbidden}
	}

	if !s.store.SetAppointmentStatus(epoch, id, to) {
		// The mirror was cleared since the lookup.
		return fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if err := s.gw.UpdateAppointmentStatus(ctx, id, to); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", id).Str("status", string(to)).
			Msg("status update failed, optimistic status kept until next refresh")
		return err
	}
	s.logger.Info().Str("appointment_id", id).Str("from", string(appt.Status)).Str("to", string(to)).
		Str("actor", actor.ID).Msg("appointment transitioned")
	return nil
}

func participates(a entity.Appointment, actor entity.User) bool {
	switch actor.Role {
	case entity.RolePatient:
		return a.PatientID == actor.ID
	case entity.RoleDoctor:
		return a.DoctorID == actor.ID
	}
	return false
}

func (s *Service) CheckIn(ctx context.Context, patient entity.User, id string) error {
	return s.Transition(ctx, patient, id, entity.StatusWaiting)
}

func (s *Service) StartEncounter(ctx context.Context, doctor entity.User, id string) error {
	return s.Transition(ctx, doctor, id, entity.StatusInProgress)
}

func (s *Service) CompleteEncounter(ctx context.Context, doctor entity.User, id string) error {
	return s.Transition(ctx, doctor, id, entity.StatusCompleted)
}

func (s *Service) Cancel(ctx context.Context, actor entity.User, id string) error {
	return s.Transition(ctx, actor, id, entity.StatusCanceled)
}

// -- Booking --

// Book creates a SCHEDULED appointment between patient and doctor at the
// given time and announces it in the appointment's chat. When only the
// announcement fails, the appointment is returned together with the error.
func (s *Service) Book(ctx context.Context, patient, doctor entity.User, at time.Time) (entity.Appointment, error) {
	if patient.Role != entity.RolePatient {
		return entity.Appointment{}, fmt.Errorf("%w: only patients book appointments", ErrForbidden)
	}
	if doctor.Role != entity.RoleDoctor {
		return entity.Appointment{}, fmt.Errorf("user %s is not a clinician", doctor.ID)
	}
	if at.IsZero() {
		at = s.now()
	}
	epoch := s.store.Epoch()

	draft := entity.Appointment{
		ID:            uuid.NewString(),
		PatientID:     patient.ID,
		PatientName:   patient.Name,
		PatientAvatar: patient.AvatarURL,
		DoctorID:      doctor.ID,
		DoctorName:    doctor.Name,
		Date:          at.UTC(),
		Time:          at.Format("15:04"),
		Status:        entity.StatusScheduled,
		Urgency:       entity.UrgencyLow,
	}
	created, err := s.gw.CreateAppointment(ctx, draft)
	if err != nil {
		return entity.Appointment{}, err
	}
	if created.ID == "" {
		created = draft
	}
	if !s.store.AppendAppointment(epoch, created) {
		s.logger.Info().Str("appointment_id", created.ID).Msg("session ended during booking, result not mirrored")
		return created, nil
	}
	s.logger.Info().Str("appointment_id", created.ID).Str("doctor_id", doctor.ID).Msg("appointment booked")

	notice := entity.Message{
		ID:            uuid.NewString(),
		AppointmentID: created.ID,
		SenderID:      entity.SystemSender,
		SenderName:    "AIMED",
		Content:       fmt.Sprintf("Appointment booked with Dr. %s. Please wait to be called.", doctor.Name),
		Kind:          entity.MessageSystem,
		Timestamp:     entity.Millis(s.now()),
	}
	if err := s.postMessage(ctx, epoch, notice); err != nil {
		return created, fmt.Errorf("announce booking: %w", err)
	}
	return created, nil
}

// -- Symptoms --

// SubmitSymptoms attaches an AI summary of text to the patient's next
// SCHEDULED appointment and posts the raw report to its chat.
func (s *Service) SubmitSymptoms(ctx context.Context, patient entity.User, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("symptom report is empty")
	}
	epoch := s.store.Epoch()
	appt, ok := s.nextScheduled(patient.ID)
	if !ok {
		return "", ErrNoUpcomingAppointment
	}

	summary, err := s.summarizer.Summarize(ctx, text, fmt.Sprintf("Patient: %s, ID: %s", patient.Name, patient.ID))
	if err != nil {
		return "", fmt.Errorf("summarize symptoms: %w", err)
	}

	if !s.store.SetAppointmentSummary(epoch, appt.ID, summary) {
		return "", fmt.Errorf("%w: %s", ErrAppointmentNotFound, appt.ID)
	}
	if err := s.gw.UpdateAppointmentSummary(ctx, appt.ID, summary); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID).Msg("summary update failed")
		return summary, err
	}

	report := entity.Message{
		ID:            uuid.NewString(),
		AppointmentID: appt.ID,
		SenderID:      patient.ID,
		SenderName:    patient.Name,
		Content:       "[Symptom report]: " + text,
		Kind:          entity.MessageSystem,
		Timestamp:     entity.Millis(s.now()),
	}
	if err := s.postMessage(ctx, epoch, report); err != nil {
		return summary, fmt.Errorf("post symptom report: %w", err)
	}
	return summary, nil
}

func (s *Service) nextScheduled(patientID string) (entity.Appointment, bool) {
	var best entity.Appointment
	found := false
	for _, a := range s.store.Appointments() {
		if a.PatientID != patientID || a.Status != entity.StatusScheduled {
			continue
		}
		if !found || a.Date.Before(best.Date) {
			best, found = a, true
		}
	}
	return best, found
}

// postMessage sends m and mirrors the stored copy unless the mirror was
// cleared after epoch.
func (s *Service) postMessage(ctx context.Context, epoch uint64, m entity.Message) error {
	created, err := s.gw.CreateMessage(ctx, m)
	if err != nil {
		return err
	}
	if created.ID == "" {
		created = m
	}
	s.store.AppendMessage(epoch, created)
	return nil
}

// -- Read models --

func (s *Service) Queue(doctorID string) []entity.Appointment {
	return ClinicianQueue(s.store.Appointments(), doctorID)
}

// NextPatient is the head of the clinician queue.
func (s *Service) NextPatient(doctorID string) (entity.Appointment, bool) {
	q := s.Queue(doctorID)
	if len(q) == 0 {
		return entity.Appointment{}, false
	}
	return q[0], true
}

func (s *Service) Stats(doctorID string) Stats {
	return ClinicianStats(s.store.Appointments(), s.store.Alerts(), doctorID)
}

func (s *Service) Occupancy() Occupancy {
	return InstitutionOccupancy(s.store.Appointments())
}
