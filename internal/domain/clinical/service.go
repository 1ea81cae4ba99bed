// Package clinical covers the per-encounter records a patient and clinician
// exchange outside the appointment lifecycle: chat, vitals, medications and
// profile edits.
package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
)

const (
	// DefaultDosage is used when a prescription line names only the drug.
	DefaultDosage = "Continuous use"
	// DefaultFrequency is the schedule given to acquired medications.
	DefaultFrequency = "Every 8h"
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNoReadings         = errors.New("no vital readings given")
	ErrNotMedication      = errors.New("prescription is not a medication")
	ErrMedicationNotFound = errors.New("medication not found")
	ErrNotOwner           = errors.New("record belongs to another patient")
)

type Gateway interface {
	CreateMessage(ctx context.Context, m entity.Message) (entity.Message, error)
	CreateVital(ctx context.Context, v entity.VitalSign) (entity.VitalSign, error)
	CreateMedication(ctx context.Context, m entity.Medication) (entity.Medication, error)
	ToggleMedication(ctx context.Context, id string) (entity.Medication, error)
	UpdateUser(ctx context.Context, id string, patch entity.UserPatch) (entity.User, error)
}

// Mirror writes take the epoch observed before the network call and are
// dropped once the mirror has been cleared since.
type Mirror interface {
	Epoch() uint64
	Messages() []entity.Message
	AppendMessage(epoch uint64, m entity.Message) bool
	Vitals() []entity.VitalSign
	PrependVital(epoch uint64, v entity.VitalSign) bool
	Medications() []entity.Medication
	AppendMedication(epoch uint64, m entity.Medication) bool
	ReplaceMedication(epoch uint64, m entity.Medication) bool
	UpsertUser(epoch uint64, u entity.User) bool
}

// IdentitySetter receives the refreshed current user after a profile edit.
type IdentitySetter interface {
	SetIdentity(u entity.User)
}

type Service struct {
	gw       Gateway
	store    Mirror
	identity IdentitySetter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(gw Gateway, store Mirror, identity IdentitySetter, logger zerolog.Logger) *Service {
	return &Service{
		gw:       gw,
		store:    store,
		identity: identity,
		logger:   logger.With().Str("component", "clinical").Logger(),
		now:      time.Now,
	}
}

// -- Chat --

// SendMessage posts content to an appointment thread. Kind defaults to TEXT.
func (s *Service) SendMessage(ctx context.Context, sender entity.User, appointmentID, content string, kind entity.MessageKind) (entity.Message, error) {
	if appointmentID == "" {
		return entity.Message{}, fmt.Errorf("appointment id is required")
	}
	if strings.TrimSpace(content) == "" {
		return entity.Message{}, ErrEmptyMessage
	}
	if kind == "" {
		kind = entity.MessageText
	}
	epoch := s.store.Epoch()
	draft := entity.Message{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		Content:       content,
		Kind:          kind,
		Timestamp:     entity.Millis(s.now()),
	}
	created, err := s.gw.CreateMessage(ctx, draft)
	if err != nil {
		return entity.Message{}, err
	}
	if created.ID == "" {
		created = draft
	}
	s.store.AppendMessage(epoch, created)
	return created, nil
}

// Thread returns one appointment's messages oldest first.
func (s *Service) Thread(appointmentID string) []entity.Message {
	var out []entity.Message
	for _, m := range s.store.Messages() {
		if m.AppointmentID == appointmentID {
			out = append(out, m)
		}
	}
	return out
}

// -- Vitals --

// RecordVitals stores a reading for each non-empty value. Readings created
// before a failure are kept and returned with the error.
func (s *Service) RecordVitals(ctx context.Context, patient entity.User, temp, bpm string) ([]entity.VitalSign, error) {
	type reading struct {
		kind  entity.VitalKind
		value string
	}
	var pending []reading
	if v := strings.TrimSpace(temp); v != "" {
		pending = append(pending, reading{entity.VitalTemp, v})
	}
	if v := strings.TrimSpace(bpm); v != "" {
		pending = append(pending, reading{entity.VitalBPM, v})
	}
	if len(pending) == 0 {
		return nil, ErrNoReadings
	}

	epoch := s.store.Epoch()
	var recorded []entity.VitalSign
	for _, r := range pending {
		draft := entity.VitalSign{
			ID:        uuid.NewString(),
			PatientID: patient.ID,
			Kind:      r.kind,
			Value:     r.value,
			Timestamp: entity.Millis(s.now()),
			Status:    entity.ClassifyVital(r.kind, r.value),
		}
		created, err := s.gw.CreateVital(ctx, draft)
		if err != nil {
			return recorded, fmt.Errorf("record %s: %w", r.kind, err)
		}
		if created.ID == "" {
			created = draft
		}
		mirrored := s.store.PrependVital(epoch, created)
		recorded = append(recorded, created)
		if created.Status != entity.VitalNormal {
			s.logger.Warn().Str("patient_id", patient.ID).Str("type", string(created.Kind)).
				Str("value", created.Value).Str("status", string(created.Status)).Msg("abnormal vital sign")
		}
		if !mirrored {
			// Session ended; remaining readings belong to nobody.
			break
		}
	}
	return recorded, nil
}

// PatientVitals returns patientID's readings newest first.
func (s *Service) PatientVitals(patientID string) []entity.VitalSign {
	var out []entity.VitalSign
	for _, v := range s.store.Vitals() {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out
}

// -- Medications --

// AcquireMedication adds the drug named by a MEDICATION prescription to the
// patient's schedule. The first word of the content is the drug name; the
// rest is the dosage.
func (s *Service) AcquireMedication(ctx context.Context, patient entity.User, p entity.Prescription) (entity.Medication, error) {
	if p.Kind != entity.DocumentMedication {
		return entity.Medication{}, ErrNotMedication
	}
	if p.PatientID != patient.ID {
		return entity.Medication{}, ErrNotOwner
	}
	fields := strings.Fields(p.Content)
	if len(fields) == 0 {
		return entity.Medication{}, fmt.Errorf("prescription %s has no content", p.ID)
	}
	dosage := strings.Join(fields[1:], " ")
	if dosage == "" {
		dosage = DefaultDosage
	}

	epoch := s.store.Epoch()
	draft := entity.Medication{
		ID:           uuid.NewString(),
		PatientID:    patient.ID,
		Name:         fields[0],
		Dosage:       dosage,
		Frequency:    DefaultFrequency,
		PrescribedBy: p.DoctorName,
		NextDose:     s.now().UTC(),
		Icon:         entity.FormPill,
	}
	created, err := s.gw.CreateMedication(ctx, draft)
	if err != nil {
		return entity.Medication{}, err
	}
	if created.ID == "" {
		created = draft
	}
	if !s.store.AppendMedication(epoch, created) {
		return created, nil
	}
	s.logger.Info().Str("medication_id", created.ID).Str("prescription_id", p.ID).Msg("medication acquired")
	return created, nil
}

// ToggleTaken flips a dose between taken and pending. The backend decides
// the new schedule; its answer replaces the mirrored entry.
func (s *Service) ToggleTaken(ctx context.Context, patient entity.User, id string) (entity.Medication, error) {
	epoch := s.store.Epoch()
	med, ok := s.medication(id)
	if !ok {
		return entity.Medication{}, fmt.Errorf("%w: %s", ErrMedicationNotFound, id)
	}
	if med.PatientID != patient.ID {
		return entity.Medication{}, ErrNotOwner
	}
	updated, err := s.gw.ToggleMedication(ctx, id)
	if err != nil {
		return entity.Medication{}, err
	}
	s.store.ReplaceMedication(epoch, updated)
	return updated, nil
}

func (s *Service) medication(id string) (entity.Medication, bool) {
	for _, m := range s.store.Medications() {
		if m.ID == id {
			return m, true
		}
	}
	return entity.Medication{}, false
}

func (s *Service) PatientMedications(patientID string) []entity.Medication {
	var out []entity.Medication
	for _, m := range s.store.Medications() {
		if m.PatientID == patientID {
			out = append(out, m)
		}
	}
	return out
}

// -- Profile --

// UpdateProfile applies patch to user on the backend and installs the
// returned record as the current identity.
func (s *Service) UpdateProfile(ctx context.Context, user entity.User, patch entity.UserPatch) (entity.User, error) {
	if user.ID == "" {
		return entity.User{}, fmt.Errorf("user id is required")
	}
	epoch := s.store.Epoch()
	updated, err := s.gw.UpdateUser(ctx, user.ID, patch)
	if err != nil {
		return entity.User{}, err
	}
	if updated.ID == "" {
		updated = patch.Apply(user)
	}
	if !s.store.UpsertUser(epoch, updated) {
		return updated, nil
	}
	if s.identity != nil {
		s.identity.SetIdentity(updated)
	}
	return updated, nil
}
