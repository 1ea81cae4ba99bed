package client

import (
	"context"
	"fmt"
	"time"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/domain/prescription"
	"github.com/aimed/aimed/internal/domain/workflow"
)

// PatientView exposes what a patient can do. It is bound to the identity
// that was current when the view was created; once that session ends every
// action returns session.ErrNoSession.
type PatientView struct {
	c    *Client
	user entity.User
}

func (v *PatientView) User() entity.User { return v.user }

// Book schedules an appointment with a mirrored clinician.
func (v *PatientView) Book(ctx context.Context, doctorID string, at time.Time) (entity.Appointment, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Appointment{}, err
	}
	doctor, ok := v.c.store.User(doctorID)
	if !ok {
		return entity.Appointment{}, fmt.Errorf("%w: %s", ErrUnknownUser, doctorID)
	}
	return v.c.workflow.Book(ctx, v.user, doctor, at)
}

func (v *PatientView) CheckIn(ctx context.Context, appointmentID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.workflow.CheckIn(ctx, v.user, appointmentID)
}

func (v *PatientView) Cancel(ctx context.Context, appointmentID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.workflow.Cancel(ctx, v.user, appointmentID)
}

// SubmitSymptoms summarizes a symptom report onto the next scheduled
// appointment and returns the summary.
func (v *PatientView) SubmitSymptoms(ctx context.Context, text string) (string, error) {
	if err := v.c.bound(v.user); err != nil {
		return "", err
	}
	return v.c.workflow.SubmitSymptoms(ctx, v.user, text)
}

func (v *PatientView) RecordVitals(ctx context.Context, temp, bpm string) ([]entity.VitalSign, error) {
	if err := v.c.bound(v.user); err != nil {
		return nil, err
	}
	return v.c.clinical.RecordVitals(ctx, v.user, temp, bpm)
}

// AcquireMedication turns one of the patient's medication prescriptions
// into a tracked medication.
func (v *PatientView) AcquireMedication(ctx context.Context, prescriptionID string) (entity.Medication, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Medication{}, err
	}
	for _, p := range v.c.prescriptions.ForPatient(v.user.ID) {
		if p.ID == prescriptionID {
			return v.c.clinical.AcquireMedication(ctx, v.user, p)
		}
	}
	return entity.Medication{}, fmt.Errorf("prescription %s not found", prescriptionID)
}

func (v *PatientView) ToggleTaken(ctx context.Context, medicationID string) (entity.Medication, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Medication{}, err
	}
	return v.c.clinical.ToggleTaken(ctx, v.user, medicationID)
}

// TriggerSOS raises an emergency alert. An empty location is recorded as
// unknown.
func (v *PatientView) TriggerSOS(ctx context.Context, location string) (entity.Alert, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Alert{}, err
	}
	return v.c.emergency.TriggerSOS(ctx, v.user, location)
}

func (v *PatientView) RequestUrgentCare(ctx context.Context, location string) (entity.Alert, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Alert{}, err
	}
	return v.c.emergency.RequestUrgentCare(ctx, v.user, location)
}

func (v *PatientView) Appointments() []entity.Appointment {
	return workflow.PatientAppointments(v.c.store.Appointments(), v.user.ID)
}

// Upcoming returns the next appointment that is still open.
func (v *PatientView) Upcoming() (entity.Appointment, bool) {
	return workflow.UpcomingAppointment(v.c.store.Appointments(), v.user.ID)
}

func (v *PatientView) Prescriptions() []entity.Prescription {
	return v.c.prescriptions.ForPatient(v.user.ID)
}

func (v *PatientView) Medications() []entity.Medication {
	return v.c.clinical.PatientMedications(v.user.ID)
}

func (v *PatientView) Vitals() []entity.VitalSign {
	return v.c.clinical.PatientVitals(v.user.ID)
}

// ClinicianView exposes what a doctor can do.
type ClinicianView struct {
	c    *Client
	user entity.User
}

func (v *ClinicianView) User() entity.User { return v.user }

// Queue lists the clinician's open appointments, waiting patients first.
func (v *ClinicianView) Queue() []entity.Appointment {
	return v.c.workflow.Queue(v.user.ID)
}

func (v *ClinicianView) NextPatient() (entity.Appointment, bool) {
	return v.c.workflow.NextPatient(v.user.ID)
}

func (v *ClinicianView) Start(ctx context.Context, appointmentID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.workflow.StartEncounter(ctx, v.user, appointmentID)
}

func (v *ClinicianView) Complete(ctx context.Context, appointmentID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.workflow.CompleteEncounter(ctx, v.user, appointmentID)
}

func (v *ClinicianView) Cancel(ctx context.Context, appointmentID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.workflow.Cancel(ctx, v.user, appointmentID)
}

// Issue writes a document for one of the clinician's appointments.
func (v *ClinicianView) Issue(ctx context.Context, appointmentID string, kind entity.DocumentKind, content string, validUntil time.Time) (entity.Prescription, error) {
	if err := v.c.bound(v.user); err != nil {
		return entity.Prescription{}, err
	}
	appt, ok := v.c.store.Appointment(appointmentID)
	if !ok {
		return entity.Prescription{}, fmt.Errorf("%w: %s", workflow.ErrAppointmentNotFound, appointmentID)
	}
	return v.c.prescriptions.Issue(ctx, v.user, prescription.IssueRequest{
		Appointment: appt,
		Kind:        kind,
		Content:     content,
		ValidUntil:  validUntil,
	})
}

func (v *ClinicianView) ResolveAlert(ctx context.Context, alertID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.emergency.Resolve(ctx, v.user, alertID)
}

func (v *ClinicianView) OpenAlerts() []entity.Alert {
	return v.c.emergency.Open()
}

func (v *ClinicianView) Stats() workflow.Stats {
	return v.c.workflow.Stats(v.user.ID)
}

// InstitutionView exposes what an institution can do.
type InstitutionView struct {
	c    *Client
	user entity.User
}

func (v *InstitutionView) User() entity.User { return v.user }

// ValidateToken resolves a document token against the mirror only. A token
// issued after the last refresh is not found until the next one.
func (v *InstitutionView) ValidateToken(token string) (entity.Prescription, bool) {
	return v.c.prescriptions.Validate(token)
}

func (v *InstitutionView) ResolveAlert(ctx context.Context, alertID string) error {
	if err := v.c.bound(v.user); err != nil {
		return err
	}
	return v.c.emergency.Resolve(ctx, v.user, alertID)
}

func (v *InstitutionView) OpenAlerts() []entity.Alert {
	return v.c.emergency.Open()
}

func (v *InstitutionView) Occupancy() workflow.Occupancy {
	return v.c.workflow.Occupancy()
}
