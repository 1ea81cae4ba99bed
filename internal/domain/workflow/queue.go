package workflow

import (
	"sort"

	"github.com/aimed/aimed/internal/domain/entity"
)

// ClinicianQueue returns doctorID's SCHEDULED and WAITING appointments.
// WAITING always sorts before SCHEDULED; within a status, earlier
// appointments come first.
func ClinicianQueue(appts []entity.Appointment, doctorID string) []entity.Appointment {
	var queue []entity.Appointment
	for _, a := range appts {
		if a.DoctorID != doctorID {
			continue
		}
		if a.Status == entity.StatusScheduled || a.Status == entity.StatusWaiting {
			queue = append(queue, a)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		wi, wj := queue[i].Status == entity.StatusWaiting, queue[j].Status == entity.StatusWaiting
		if wi != wj {
			return wi
		}
		return queue[i].Date.Before(queue[j].Date)
	})
	return queue
}

// Stats summarises a clinician's day.
type Stats struct {
	Waiting         int `json:"waiting"`
	InProgress      int `json:"inProgress"`
	Completed       int `json:"completed"`
	OpenEmergencies int `json:"openEmergencies"`
}

func ClinicianStats(appts []entity.Appointment, alerts []entity.Alert, doctorID string) Stats {
	var s Stats
	for _, a := range appts {
		if a.DoctorID != doctorID {
			continue
		}
		switch a.Status {
		case entity.StatusScheduled, entity.StatusWaiting:
			s.Waiting++
		case entity.StatusInProgress:
			s.InProgress++
		case entity.StatusCompleted:
			s.Completed++
		}
	}
	for _, al := range alerts {
		if !al.Resolved {
			s.OpenEmergencies++
		}
	}
	return s
}

// Occupancy is the institution-wide view of active encounters.
type Occupancy struct {
	InProgress int `json:"inProgress"`
	Scheduled  int `json:"scheduled"`
}

func InstitutionOccupancy(appts []entity.Appointment) Occupancy {
	var o Occupancy
	for _, a := range appts {
		switch a.Status {
		case entity.StatusInProgress:
			o.InProgress++
		case entity.StatusScheduled:
			o.Scheduled++
		}
	}
	return o
}

// PatientAppointments returns patientID's appointments, most recent first.
func PatientAppointments(appts []entity.Appointment, patientID string) []entity.Appointment {
	var out []entity.Appointment
	for _, a := range appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// UpcomingAppointment returns patientID's earliest appointment that is not
// yet finished.
func UpcomingAppointment(appts []entity.Appointment, patientID string) (entity.Appointment, bool) {
	var best entity.Appointment
	found := false
	for _, a := range appts {
		if a.PatientID != patientID || a.Status.Terminal() {
			continue
		}
		if !found || a.Date.Before(best.Date) {
			best, found = a, true
		}
	}
	return best, found
}
