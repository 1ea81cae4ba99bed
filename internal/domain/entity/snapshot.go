package entity

import (
	"sort"
)

// Snapshot holds one copy of every mirrored collection.
type Snapshot struct {
	Users         []User
	Appointments  []Appointment
	Messages      []Message
	Prescriptions []Prescription
	Medications   []Medication
	Vitals        []VitalSign
	Alerts        []Alert
}

// Clone returns a deep copy of the slices so callers can hold it across
// later mirror mutations.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Users:         append([]User(nil), s.Users...),
		Appointments:  append([]Appointment(nil), s.Appointments...),
		Messages:      append([]Message(nil), s.Messages...),
		Prescriptions: append([]Prescription(nil), s.Prescriptions...),
		Medications:   append([]Medication(nil), s.Medications...),
		Vitals:        append([]VitalSign(nil), s.Vitals...),
		Alerts:        append([]Alert(nil), s.Alerts...),
	}
	for i := range out.Users {
		if d := out.Users[i].Details; d != nil {
			cp := *d
			out.Users[i].Details = &cp
		}
	}
	for i := range out.Medications {
		if lt := out.Medications[i].LastTaken; lt != nil {
			cp := *lt
			out.Medications[i].LastTaken = &cp
		}
	}
	return out
}

// Empty reports whether every collection is empty.
func (s Snapshot) Empty() bool {
	return len(s.Users) == 0 && len(s.Appointments) == 0 && len(s.Messages) == 0 &&
		len(s.Prescriptions) == 0 && len(s.Medications) == 0 && len(s.Vitals) == 0 &&
		len(s.Alerts) == 0
}

// SortMessages orders messages by timestamp ascending. Equal timestamps
// fall back to id so the order is total.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// SortVitalsNewestFirst orders vitals by timestamp descending.
func SortVitalsNewestFirst(v []VitalSign) {
	sort.SliceStable(v, func(i, j int) bool { return v[i].Timestamp > v[j].Timestamp })
}

// SortAlertsNewestFirst orders alerts by timestamp descending.
func SortAlertsNewestFirst(a []Alert) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].Timestamp > a[j].Timestamp })
}
