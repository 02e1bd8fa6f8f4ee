package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// ErrInvalidTransition is returned by Transition for a move the state machine forbids.
var ErrInvalidTransition = errors.New("invalid appointment status transition")

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ParseAppointmentStatus accepts the canonical names plus the "canceled" spelling.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled":
		return StatusScheduled, nil
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Terminal reports whether no further transition is possible from s.
func (s AppointmentStatus) Terminal() bool {
	return len(appointmentTransitions[s]) == 0
}

// Transition validates a status change and returns the new status.
func Transition(current, requested AppointmentStatus) (AppointmentStatus, error) {
	for _, next := range appointmentTransitions[current] {
		if next == requested {
			return requested, nil
		}
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
}

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID       string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID        string            `gorm:"size:36;index:idx_appointments_doctor_date;not null" json:"doctorId"`
	AppointmentDate time.Time         `gorm:"index:idx_appointments_doctor_date;not null" json:"appointmentDate"`
	Reason          string            `gorm:"size:500;not null" json:"reason"`
	Status          AppointmentStatus `gorm:"size:20;index;not null;default:'scheduled'" json:"status"`
	RoomName        *string           `gorm:"size:100" json:"roomName"`
	RoomURL         *string           `gorm:"size:255" json:"roomUrl"`
	Notes           *string           `gorm:"type:text" json:"notes"`

	// Relations
	Patient *Patient `gorm:"foreignKey:PatientID" json:"-"`
	Doctor  *Doctor  `gorm:"foreignKey:DoctorID" json:"-"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// AppointmentView is an appointment joined with the names of its parties.
type AppointmentView struct {
	Appointment
	PatientName     string `json:"patientName"`
	PatientCPF      string `json:"patientCpf"`
	PatientPhone    string `json:"patientPhone"`
	DoctorName      string `json:"doctorName"`
	DoctorCRM       string `json:"doctorCrm"`
	DoctorSpecialty string `json:"doctorSpecialty"`
}

// NewAppointmentView builds a view from an appointment with preloaded relations.
func NewAppointmentView(a *Appointment) AppointmentView {
	view := AppointmentView{Appointment: *a}
	if a.Patient != nil {
		view.PatientName = a.Patient.Name
		view.PatientCPF = a.Patient.CPF
		view.PatientPhone = a.Patient.Phone
	}
	if a.Doctor != nil {
		view.DoctorName = a.Doctor.Name
		view.DoctorCRM = a.Doctor.CRM
		view.DoctorSpecialty = a.Doctor.Specialty
	}
	return view
}
