// Package prescription issues documents at encounter close and resolves
// their tokens against the local mirror.
package prescription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
)

// DefaultValidity applies when Issue is given a zero deadline.
const DefaultValidity = 30 * 24 * time.Hour

var (
	ErrEmptyContent  = errors.New("prescription content is empty")
	ErrNotClinician  = errors.New("only clinicians issue prescriptions")
	ErrInvalidKind   = errors.New("unknown document kind")
	ErrNotIssuedHere = errors.New("appointment belongs to another clinician")
)

type Gateway interface {
	CreatePrescription(ctx context.Context, p entity.Prescription) (entity.Prescription, error)
}

type Mirror interface {
	Epoch() uint64
	AppendPrescription(epoch uint64, p entity.Prescription) bool
	PrescriptionByToken(token string) (entity.Prescription, bool)
	HasToken(token string) bool
	Prescriptions() []entity.Prescription
}

type Service struct {
	gw     Gateway
	store  Mirror
	tokens *TokenGenerator
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(gw Gateway, store Mirror, logger zerolog.Logger) *Service {
	return &Service{
		gw:     gw,
		store:  store,
		tokens: defaultGenerator(),
		logger: logger.With().Str("component", "prescription").Logger(),
		now:    time.Now,
	}
}

// IssueRequest describes a document written during an encounter.
type IssueRequest struct {
	Appointment entity.Appointment
	Kind        entity.DocumentKind
	Content     string
	// ValidUntil defaults to DefaultValidity from now when zero.
	ValidUntil time.Time
}

// Issue creates a prescription for the appointment's patient with a fresh
// token and appends the stored result to the mirror.
func (s *Service) Issue(ctx context.Context, doctor entity.User, req IssueRequest) (entity.Prescription, error) {
	if doctor.Role != entity.RoleDoctor {
		return entity.Prescription{}, ErrNotClinician
	}
	if req.Appointment.DoctorID != "" && req.Appointment.DoctorID != doctor.ID {
		return entity.Prescription{}, ErrNotIssuedHere
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return entity.Prescription{}, ErrEmptyContent
	}
	kind := req.Kind
	if kind == "" {
		kind = entity.DocumentMedication
	}
	if !kind.Valid() {
		return entity.Prescription{}, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	epoch := s.store.Epoch()
	token, err := s.tokens.Unused(s.store.HasToken)
	if err != nil {
		return entity.Prescription{}, err
	}

	now := s.now()
	validUntil := req.ValidUntil
	if validUntil.IsZero() {
		validUntil = now.Add(DefaultValidity)
	}
	draft := entity.Prescription{
		ID:         uuid.NewString(),
		PatientID:  req.Appointment.PatientID,
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
		Content:    content,
		Date:       now.UTC(),
		Token:      token,
		Kind:       kind,
		ValidUntil: validUntil.UTC(),
	}

	created, err := s.gw.CreatePrescription(ctx, draft)
	if err != nil {
		return entity.Prescription{}, err
	}
	if created.ID == "" {
		created = draft
	}
	if !s.store.AppendPrescription(epoch, created) {
		s.logger.Info().Str("prescription_id", created.ID).Msg("session ended during issue, result not mirrored")
		return created, nil
	}
	s.logger.Info().Str("prescription_id", created.ID).Str("patient_id", created.PatientID).
		Str("type", string(created.Kind)).Msg("prescription issued")
	return created, nil
}

// Normalize returns the canonical form of a typed-in token.
func Normalize(candidate string) string {
	return strings.ToUpper(strings.TrimSpace(candidate))
}

// Validate resolves candidate against the mirrored prescriptions only. A
// token issued after the last refresh is not visible until the next one.
func (s *Service) Validate(candidate string) (entity.Prescription, bool) {
	tok := Normalize(candidate)
	if tok == "" {
		return entity.Prescription{}, false
	}
	return s.store.PrescriptionByToken(tok)
}

// ForPatient lists patientID's prescriptions, newest first.
func (s *Service) ForPatient(patientID string) []entity.Prescription {
	var out []entity.Prescription
	for _, p := range s.store.Prescriptions() {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
