// Package emergency dispatches and resolves patient alerts.
package emergency

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

// UnknownLocation is recorded when the patient's position is unavailable.
const UnknownLocation = "Unknown"

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrNotResponder  = errors.New("only clinicians and institutions resolve alerts")
)

type Gateway interface {
	CreateAlert(ctx context.Context, a entity.Alert) (entity.Alert, error)
	ResolveAlert(ctx context.Context, id string) error
}

type Mirror interface {
	Epoch() uint64
	Alerts() []entity.Alert
	PrependAlert(epoch uint64, a entity.Alert) bool
	ResolveAlert(epoch uint64, id string) bool
}

type Service struct {
	gw     Gateway
	store  Mirror
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(gw Gateway, store Mirror, logger zerolog.Logger) *Service {
	return &Service{
		gw:     gw,
		store:  store,
		logger: logger.With().Str("component", "emergency").Logger(),
		now:    time.Now,
	}
}

// TriggerSOS raises an SOS alert for patient. An empty location is replaced
// by UnknownLocation.
func (s *Service) TriggerSOS(ctx context.Context, patient entity.User, location string) (entity.Alert, error) {
	if patient.ID == "" {
		return entity.Alert{}, fmt.Errorf("patient id is required")
	}
	return s.raise(ctx, entity.AlertSOS, patient.ID, location)
}

// RequestUrgentCare raises a lower-priority URGENT_CARE alert.
func (s *Service) RequestUrgentCare(ctx context.Context, patient entity.User, location string) (entity.Alert, error) {
	if patient.ID == "" {
		return entity.Alert{}, fmt.Errorf("patient id is required")
	}
	return s.raise(ctx, entity.AlertUrgentCare, patient.ID, location)
}

func (s *Service) raise(ctx context.Context, kind entity.AlertKind, patientID, location string) (entity.Alert, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		location = UnknownLocation
	}
	epoch := s.store.Epoch()
	draft := entity.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		PatientID: patientID,
		Location:  location,
		Timestamp: entity.Millis(s.now()),
	}
	created, err := s.gw.CreateAlert(ctx, draft)
	if err != nil {
		return entity.Alert{}, err
	}
	if created.ID == "" {
		created = draft
	}
	if !s.store.PrependAlert(epoch, created) {
		s.logger.Info().Str("alert_id", created.ID).Msg("session ended while raising alert, result not mirrored")
	}
	s.logger.Warn().Str("alert_id", created.ID).Str("type", string(kind)).
		Str("patient_id", patientID).Str("location", location).Msg("alert raised")
	return created, nil
}

// Resolve marks alert id resolved on the backend, then in the mirror.
func (s *Service) Resolve(ctx context.Context, actor entity.User, id string) error {
	if actor.Role != entity.RoleDoctor && actor.Role != entity.RoleInstitution {
		return ErrNotResponder
	}
	epoch := s.store.Epoch()
	if !s.known(id) {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if err := s.gw.ResolveAlert(ctx, id); err != nil {
		return err
	}
	s.store.ResolveAlert(epoch, id)
	s.logger.Info().Str("alert_id", id).Str("resolved_by", actor.ID).Msg("alert resolved")
	return nil
}

func (s *Service) known(id string) bool {
	for _, a := range s.store.Alerts() {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Open lists unresolved alerts, newest first.
func (s *Service) Open() []entity.Alert {
	var out []entity.Alert
	for _, a := range s.store.Alerts() {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}
