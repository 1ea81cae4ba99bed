// Package entity defines the seven shared collections mirrored by every
// client, along with their enumerations and ordering rules. Field names and
// JSON tags follow the backend wire shape.
package entity

import (
	"time"
)

// Role identifies which kind of actor a user is.
type Role string

const (
	RolePatient     Role = "PATIENT"
	RoleDoctor      Role = "DOCTOR"
	RoleInstitution Role = "INSTITUTION"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleInstitution:
		return true
	}
	return false
}

// UserDetails is the role-specific detail bag carried by a user.
type UserDetails struct {
	CRM           string `json:"crm,omitempty"`
	SUSNumber     string `json:"susNumber,omitempty"`
	InstitutionID string `json:"institutionId,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
}

type User struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Role      Role         `json:"role"`
	AvatarURL string       `json:"avatarUrl,omitempty"`
	Details   *UserDetails `json:"details,omitempty"`
}

// UserPatch is a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Name      *string      `json:"name,omitempty"`
	Email     *string      `json:"email,omitempty"`
	AvatarURL *string      `json:"avatarUrl,omitempty"`
	Details   *UserDetails `json:"details,omitempty"`
}

// Apply returns a copy of u with the patch applied.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.Details != nil {
		d := *p.Details
		u.Details = &d
	}
	return u
}

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusWaiting    AppointmentStatus = "WAITING"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCanceled   AppointmentStatus = "CANCELED"
)

// Valid reports whether s is one of the five enumerated statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusWaiting, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyEmergency Urgency = "EMERGENCY"
)

type Appointment struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patientId"`
	PatientName     string            `json:"patientName"`
	PatientAvatar   string            `json:"patientAvatar,omitempty"`
	DoctorID        string            `json:"doctorId"`
	DoctorName      string            `json:"doctorName"`
	Date            time.Time         `json:"date"`
	Time            string            `json:"time"`
	Status          AppointmentStatus `json:"status"`
	Urgency         Urgency           `json:"urgency"`
	SymptomsSummary string            `json:"symptomsSummary,omitempty"`
	MeetLink        string            `json:"meetLink,omitempty"`
}

// SystemSender is the reserved sender id for messages generated by the
// platform rather than a person.
const SystemSender = "SYSTEM"

type MessageKind string

const (
	MessageText   MessageKind = "TEXT"
	MessageImage  MessageKind = "IMAGE"
	MessageAudio  MessageKind = "AUDIO"
	MessageSystem MessageKind = "SYSTEM"
)

type Message struct {
	ID            string      `json:"id"`
	AppointmentID string      `json:"appointmentId"`
	SenderID      string      `json:"senderId"`
	SenderName    string      `json:"senderName"`
	Content       string      `json:"content"`
	Kind          MessageKind `json:"type"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type DocumentKind string

const (
	DocumentMedication  DocumentKind = "MEDICATION"
	DocumentExam        DocumentKind = "EXAM"
	DocumentProcedure   DocumentKind = "PROCEDURE"
	DocumentCertificate DocumentKind = "CERTIFICATE"
	DocumentReferral    DocumentKind = "REFERRAL"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentMedication, DocumentExam, DocumentProcedure, DocumentCertificate, DocumentReferral:
		return true
	}
	return false
}

type Prescription struct {
	ID         string       `json:"id"`
	PatientID  string       `json:"patientId"`
	DoctorID   string       `json:"doctorId"`
	DoctorName string       `json:"doctorName"`
	Content    string       `json:"content"`
	Date       time.Time    `json:"date"`
	Token      string       `json:"token"`
	Kind       DocumentKind `json:"type"`
	ValidUntil time.Time    `json:"validUntil"`
}

type MedicationForm string

const (
	FormPill      MedicationForm = "PILL"
	FormSyrup     MedicationForm = "SYRUP"
	FormInjection MedicationForm = "INJECTION"
	FormDrops     MedicationForm = "DROPS"
)

type Medication struct {
	ID           string         `json:"id"`
	PatientID    string         `json:"patientId"`
	Name         string         `json:"name"`
	Dosage       string         `json:"dosage"`
	Frequency    string         `json:"frequency"`
	PrescribedBy string         `json:"prescribedBy"`
	NextDose     time.Time      `json:"nextDose"`
	LastTaken    *time.Time     `json:"lastTaken,omitempty"`
	Icon         MedicationForm `json:"icon"`
}

type VitalKind string

const (
	VitalTemp     VitalKind = "TEMP"
	VitalBPM      VitalKind = "BPM"
	VitalPressure VitalKind = "PRESSURE"
	VitalOxygen   VitalKind = "OXYGEN"
)

type VitalStatus string

const (
	VitalNormal   VitalStatus = "NORMAL"
	VitalWarning  VitalStatus = "WARNING"
	VitalCritical VitalStatus = "CRITICAL"
)

type VitalSign struct {
	ID        string      `json:"id"`
	PatientID string      `json:"patientId"`
	Kind      VitalKind   `json:"type"`
	Value     string      `json:"value"`
	Timestamp int64       `json:"timestamp"`
	Status    VitalStatus `json:"status"`
}

type AlertKind string

const (
	AlertSOS        AlertKind = "SOS"
	AlertUrgentCare AlertKind = "URGENT_CARE"
)

type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"type"`
	PatientID string    `json:"patientId,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// Millis converts t to the unix-millisecond form used by numeric timestamps.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
