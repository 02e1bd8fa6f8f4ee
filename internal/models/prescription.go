package models

import (
	"errors"
	"fmt"
)

// PrescriptionStatus represents the lifecycle state of a prescription.
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionExpired   PrescriptionStatus = "expired"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

// ErrInvalidPrescriptionTransition is returned for a forbidden prescription status change.
var ErrInvalidPrescriptionTransition = errors.New("invalid prescription status transition")

// TransitionPrescription allows active -> expired|cancelled only.
func TransitionPrescription(current, requested PrescriptionStatus) (PrescriptionStatus, error) {
	if current == PrescriptionActive && (requested == PrescriptionExpired || requested == PrescriptionCancelled) {
		return requested, nil
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidPrescriptionTransition, current, requested)
}

// Prescription is issued by a doctor to a patient, optionally tied to an appointment.
type Prescription struct {
	BaseModel
	PatientID     string             `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string             `gorm:"size:36;index;not null" json:"doctorId"`
	AppointmentID *string            `gorm:"size:36;index" json:"appointmentId,omitempty"`
	Content       string             `gorm:"type:text;not null" json:"content"`
	Status        PrescriptionStatus `gorm:"size:20;not null;default:'active'" json:"status"`
}
