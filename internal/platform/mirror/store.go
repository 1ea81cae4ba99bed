// Package mirror holds the client's in-memory copy of every shared
// collection. It is the only state other components read from; writes go
// through named methods so the sync engine's wholesale swap and the
// single-entity optimistic patches never interleave mid-update.
//
// Clear starts a new epoch. Single-entity writes carry the epoch their
// caller observed before going to the network and are dropped when it is
// no longer current, so a call that outlives a logout cannot repopulate the
// emptied mirror.
package mirror

import (
	"strings"
	"sync"

	"github.com/aimed/aimed/internal/domain/entity"
)

type Store struct {
	mu      sync.RWMutex
	data    entity.Snapshot
	version uint64
	epoch   uint64
}

func New() *Store {
	return &Store{}
}

// Version increases by one on every mutation, including Replace and Clear.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Epoch identifies the mirror's contents between two Clears. Replace keeps
// the epoch.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Snapshot returns a deep copy of all seven collections.
func (s *Store) Snapshot() entity.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Replace installs snap as the new mirror. All seven collections are
// swapped together.
func (s *Store) Replace(snap entity.Snapshot) {
	next := snap.Clone()
	entity.SortMessages(next.Messages)
	entity.SortVitalsNewestFirst(next.Vitals)
	entity.SortAlertsNewestFirst(next.Alerts)

	s.mu.Lock()
	s.data = next
	s.version++
	s.mu.Unlock()
}

// Clear empties every collection and starts a new epoch.
func (s *Store) Clear() {
	s.mu.Lock()
	s.data = entity.Snapshot{}
	s.version++
	s.epoch++
	s.mu.Unlock()
}

// mutate applies fn when epoch is still current. It reports whether the
// mirror changed.
func (s *Store) mutate(epoch uint64, fn func(d *entity.Snapshot) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	if !fn(&s.data) {
		return false
	}
	s.version++
	return true
}

// -- Users --

func (s *Store) Users() []entity.User {
	return s.Snapshot().Users
}

func (s *Store) User(id string) (entity.User, bool) {
	for _, u := range s.Users() {
		if u.ID == id {
			return u, true
		}
	}
	return entity.User{}, false
}

// UpsertUser replaces the user with the same id, or appends it.
func (s *Store) UpsertUser(epoch uint64, u entity.User) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		for i := range d.Users {
			if d.Users[i].ID == u.ID {
				d.Users[i] = u
				return true
			}
		}
		d.Users = append(d.Users, u)
		return true
	})
}

// -- Appointments --

func (s *Store) Appointments() []entity.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Appointment(nil), s.data.Appointments...)
}

func (s *Store) Appointment(id string) (entity.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return entity.Appointment{}, false
}

func (s *Store) AppendAppointment(epoch uint64, a entity.Appointment) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Appointments = append(d.Appointments, a)
		return true
	})
}

// SetAppointmentStatus rewrites one appointment's status. It reports false
// when no appointment has that id or epoch has passed.
func (s *Store) SetAppointmentStatus(epoch uint64, id string, status entity.AppointmentStatus) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		for i := range d.Appointments {
			if d.Appointments[i].ID == id {
				d.Appointments[i].Status = status
				return true
			}
		}
		return false
	})
}

func (s *Store) SetAppointmentSummary(epoch uint64, id, summary string) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		for i := range d.Appointments {
			if d.Appointments[i].ID == id {
				d.Appointments[i].SymptomsSummary = summary
				return true
			}
		}
		return false
	})
}

// -- Messages --

// Messages returns every message in timestamp order.
func (s *Store) Messages() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Message(nil), s.data.Messages...)
}

// AppendMessage inserts m keeping timestamp order, whatever order messages
// arrive in.
func (s *Store) AppendMessage(epoch uint64, m entity.Message) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Messages = append(d.Messages, m)
		entity.SortMessages(d.Messages)
		return true
	})
}

// -- Prescriptions --

func (s *Store) Prescriptions() []entity.Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Prescription(nil), s.data.Prescriptions...)
}

func (s *Store) AppendPrescription(epoch uint64, p entity.Prescription) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Prescriptions = append(d.Prescriptions, p)
		return true
	})
}

// PrescriptionByToken does an exact, case-sensitive lookup. Callers
// normalise the token first.
func (s *Store) PrescriptionByToken(token string) (entity.Prescription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.Prescriptions {
		if p.Token == token {
			return p, true
		}
	}
	return entity.Prescription{}, false
}

// HasToken reports whether any mirrored prescription carries token,
// ignoring case.
func (s *Store) HasToken(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.Prescriptions {
		if strings.EqualFold(p.Token, token) {
			return true
		}
	}
	return false
}

// -- Medications --

func (s *Store) Medications() []entity.Medication {
	return s.Snapshot().Medications
}

func (s *Store) AppendMedication(epoch uint64, m entity.Medication) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Medications = append(d.Medications, m)
		return true
	})
}

// ReplaceMedication swaps in m for the medication with the same id.
func (s *Store) ReplaceMedication(epoch uint64, m entity.Medication) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		for i := range d.Medications {
			if d.Medications[i].ID == m.ID {
				d.Medications[i] = m
				return true
			}
		}
		return false
	})
}

// -- Vitals --

// Vitals returns readings newest first.
func (s *Store) Vitals() []entity.VitalSign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.VitalSign(nil), s.data.Vitals...)
}

func (s *Store) PrependVital(epoch uint64, v entity.VitalSign) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Vitals = append([]entity.VitalSign{v}, d.Vitals...)
		return true
	})
}

// -- Alerts --

// Alerts returns alerts newest first.
func (s *Store) Alerts() []entity.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Alert(nil), s.data.Alerts...)
}

func (s *Store) PrependAlert(epoch uint64, a entity.Alert) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		d.Alerts = append([]entity.Alert{a}, d.Alerts...)
		return true
	})
}

func (s *Store) ResolveAlert(epoch uint64, id string) bool {
	return s.mutate(epoch, func(d *entity.Snapshot) bool {
		for i := range d.Alerts {
			if d.Alerts[i].ID == id {
				d.Alerts[i].Resolved = true
				return true
			}
		}
		return false
	})
}
