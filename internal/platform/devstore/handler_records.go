package devstore

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aimed/aimed/internal/domain/entity"
)

// doseInterval is how far a taken dose pushes the next one.
const doseInterval = 8 * time.Hour

func (s *Server) registerRoutes(g *echo.Group) {
	g.GET("/users", listHandler[entity.User](s, Users))
	g.PUT("/users/:id", s.updateUser)

	g.GET("/appointments", listHandler[entity.Appointment](s, Appointments))
	g.POST("/appointments", createHandler(s, Appointments, s.prepareAppointment))
	g.PATCH("/appointments/:id/status", s.updateAppointmentStatus)
	g.PATCH("/appointments/:id/summary", s.updateAppointmentSummary)

	g.GET("/messages", s.listMessages)
	g.POST("/messages", createHandler(s, Messages, s.prepareMessage))

	g.GET("/prescriptions", listHandler[entity.Prescription](s, Prescriptions))
	g.POST("/prescriptions", createHandler(s, Prescriptions, s.preparePrescription))

	g.GET("/medications", listHandler[entity.Medication](s, Medications))
	g.POST("/medications", createHandler(s, Medications, s.prepareMedication))
	g.PATCH("/medications/:id/toggle", s.toggleMedication)

	g.GET("/vitals", listHandler[entity.VitalSign](s, Vitals))
	g.POST("/vitals", createHandler(s, Vitals, s.prepareVital))

	g.GET("/alerts", listHandler[entity.Alert](s, Alerts))
	g.POST("/alerts", createHandler(s, Alerts, s.prepareAlert))
	g.PATCH("/alerts/:id/resolve", s.resolveAlert)
}

// -- generic handlers --

func listHandler[T any](s *Server, c Collection) echo.HandlerFunc {
	return func(ec echo.Context) error {
		items, err := listAs[T](ec.Request().Context(), s.store, c)
		if err != nil {
			return s.storeError(ec, err)
		}
		return ec.JSON(http.StatusOK, items)
	}
}

// createHandler binds a T, lets prepare fill defaults and validate, and
// stores it under the returned id.
func createHandler[T any](s *Server, c Collection, prepare func(*T) (string, error)) echo.HandlerFunc {
	return func(ec echo.Context) error {
		var v T
		if err := ec.Bind(&v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		id, err := prepare(&v)
		if err != nil {
			return err
		}
		if err := insertAs(ec.Request().Context(), s.store, c, id, v); err != nil {
			return s.storeError(ec, err)
		}
		return ec.JSON(http.StatusCreated, v)
	}
}

func patchRecord[T any](ec echo.Context, s *Server, c Collection, fn func(*T) error) error {
	out, err := updateAs(ec.Request().Context(), s.store, c, ec.Param("id"), fn)
	if err != nil {
		return s.storeError(ec, err)
	}
	return ec.JSON(http.StatusOK, out)
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func newID(id *string) string {
	if strings.TrimSpace(*id) == "" {
		*id = uuid.NewString()
	}
	return *id
}

// -- users --

func (s *Server) updateUser(ec echo.Context) error {
	var patch entity.UserPatch
	if err := ec.Bind(&patch); err != nil {
		return badRequest("invalid request body")
	}
	return patchRecord(ec, s, Users, func(u *entity.User) error {
		*u = patch.Apply(*u)
		return nil
	})
}

// -- appointments --

func (s *Server) prepareAppointment(a *entity.Appointment) (string, error) {
	if a.PatientID == "" || a.DoctorID == "" {
		return "", badRequest("patientId and doctorId are required")
	}
	if a.Status == "" {
		a.Status = entity.StatusScheduled
	}
	if !a.Status.Valid() {
		return "", badRequest("unknown status " + string(a.Status))
	}
	if a.Urgency == "" {
		a.Urgency = entity.UrgencyLow
	}
	if a.Date.IsZero() {
		a.Date = s.now().UTC()
	}
	return newID(&a.ID), nil
}

type statusRequest struct {
	Status entity.AppointmentStatus `json:"status"`
}

func (s *Server) updateAppointmentStatus(ec echo.Context) error {
	var req statusRequest
	if err := ec.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if !req.Status.Valid() {
		return badRequest("unknown status " + string(req.Status))
	}
	return patchRecord(ec, s, Appointments, func(a *entity.Appointment) error {
		a.Status = req.Status
		return nil
	})
}

type summaryRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) updateAppointmentSummary(ec echo.Context) error {
	var req summaryRequest
	if err := ec.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	return patchRecord(ec, s, Appointments, func(a *entity.Appointment) error {
		a.SymptomsSummary = req.Summary
		return nil
	})
}

// -- messages --

func (s *Server) listMessages(ec echo.Context) error {
	msgs, err := listAs[entity.Message](ec.Request().Context(), s.store, Messages)
	if err != nil {
		return s.storeError(ec, err)
	}
	if apptID := ec.QueryParam("appointmentId"); apptID != "" {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.AppointmentID == apptID {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	return ec.JSON(http.StatusOK, msgs)
}

func (s *Server) prepareMessage(m *entity.Message) (string, error) {
	if m.AppointmentID == "" {
		return "", badRequest("appointmentId is required")
	}
	if m.Kind == "" {
		m.Kind = entity.MessageText
	}
	if m.Timestamp == 0 {
		m.Timestamp = entity.Millis(s.now())
	}
	return newID(&m.ID), nil
}

// -- prescriptions --

func (s *Server) preparePrescription(p *entity.Prescription) (string, error) {
	if p.PatientID == "" || p.DoctorID == "" {
		return "", badRequest("patientId and doctorId are required")
	}
	if p.Kind != "" && !p.Kind.Valid() {
		return "", badRequest("unknown document type " + string(p.Kind))
	}
	if p.Date.IsZero() {
		p.Date = s.now().UTC()
	}
	return newID(&p.ID), nil
}

// -- medications --

func (s *Server) prepareMedication(m *entity.Medication) (string, error) {
	if m.PatientID == "" || m.Name == "" {
		return "", badRequest("patientId and name are required")
	}
	if m.NextDose.IsZero() {
		m.NextDose = s.now().UTC()
	}
	if m.Icon == "" {
		m.Icon = entity.FormPill
	}
	return newID(&m.ID), nil
}

// toggleMedication marks a dose taken, moving the next dose forward, or
// clears the taken mark.
func (s *Server) toggleMedication(ec echo.Context) error {
	now := s.now().UTC()
	return patchRecord(ec, s, Medications, func(m *entity.Medication) error {
		if m.LastTaken != nil {
			m.LastTaken = nil
			return nil
		}
		m.LastTaken = &now
		m.NextDose = m.NextDose.Add(doseInterval)
		return nil
	})
}

// -- vitals --

func (s *Server) prepareVital(v *entity.VitalSign) (string, error) {
	if v.PatientID == "" || v.Kind == "" {
		return "", badRequest("patientId and type are required")
	}
	if v.Status == "" {
		v.Status = entity.ClassifyVital(v.Kind, v.Value)
	}
	if v.Timestamp == 0 {
		v.Timestamp = entity.Millis(s.now())
	}
	return newID(&v.ID), nil
}

// -- alerts --

func (s *Server) prepareAlert(a *entity.Alert) (string, error) {
	if a.Kind != entity.AlertSOS && a.Kind != entity.AlertUrgentCare {
		return "", badRequest("type must be SOS or URGENT_CARE")
	}
	if a.Timestamp == 0 {
		a.Timestamp = entity.Millis(s.now())
	}
	a.Resolved = false
	return newID(&a.ID), nil
}

func (s *Server) resolveAlert(ec echo.Context) error {
	return patchRecord(ec, s, Alerts, func(a *entity.Alert) error {
		a.Resolved = true
		return nil
	})
}

// Seed inserts records directly, bypassing HTTP. Existing ids are skipped.
func (s *Server) Seed(ctx context.Context, snap entity.Snapshot) error {
	seed := func(c Collection, id string, v any) error {
		if err := insertAs(ctx, s.store, c, id, v); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
		return nil
	}
	for _, u := range snap.Users {
		if err := seed(Users, u.ID, u); err != nil {
			return err
		}
	}
	for _, a := range snap.Appointments {
		if err := seed(Appointments, a.ID, a); err != nil {
			return err
		}
	}
	for _, m := range snap.Messages {
		if err := seed(Messages, m.ID, m); err != nil {
			return err
		}
	}
	for _, p := range snap.Prescriptions {
		if err := seed(Prescriptions, p.ID, p); err != nil {
			return err
		}
	}
	for _, m := range snap.Medications {
		if err := seed(Medications, m.ID, m); err != nil {
			return err
		}
	}
	for _, v := range snap.Vitals {
		if err := seed(Vitals, v.ID, v); err != nil {
			return err
		}
	}
	for _, a := range snap.Alerts {
		if err := seed(Alerts, a.ID, a); err != nil {
			return err
		}
	}
	return nil
}
