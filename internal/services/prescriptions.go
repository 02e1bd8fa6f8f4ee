package services

import (
	"context"
	"errors"
	"fmt"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/logger"
	"medvision-server/internal/models"
	"medvision-server/internal/policy"
	"medvision-server/internal/repository"
	"medvision-server/internal/validation"
)

// PrescriptionService manages prescriptions.
type PrescriptionService struct {
	repos *repository.Repositories
	log   *logger.Logger
}

// NewPrescriptionService creates the prescription service.
func NewPrescriptionService(repos *repository.Repositories, log *logger.Logger) *PrescriptionService {
	return &PrescriptionService{repos: repos, log: log}
}

// CreatePrescriptionInput issues a prescription. Doctors always issue in
// their own name; admins name the doctor.
type CreatePrescriptionInput struct {
	PatientID     string  `json:"patientId" validate:"required,max=36"`
	DoctorID      string  `json:"doctorId" validate:"omitempty,max=36"`
	AppointmentID *string `json:"appointmentId" validate:"omitempty,max=36"`
	Content       string  `json:"content" validate:"required,min=5,max=2000"`
}

// UpdatePrescriptionInput is a partial patch.
type UpdatePrescriptionInput struct {
	Content *string `json:"content" validate:"omitempty,min=5,max=2000"`
	Status  *string `json:"status" validate:"omitempty,oneof=active expired cancelled"`
}

// ListPrescriptionsInput filters a listing.
type ListPrescriptionsInput struct {
	PatientID     string
	DoctorID      string
	AppointmentID string
	Status        string
	repository.Page
}

// Create issues a prescription.
func (s *PrescriptionService) Create(ctx context.Context, requester models.Principal, in CreatePrescriptionInput) (*models.Prescription, error) {
	if err := policy.Authorize(requester.Role, policy.Prescriptions, policy.Create); err != nil {
		return nil, err
	}
	if requester.Role == models.RoleDoctor {
		in.DoctorID = requester.ID
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.DoctorID == "" {
		return nil, apperrors.Validation("invalid data", map[string]string{"doctorId": "is required"})
	}

	if _, err := s.repos.Patients.FindByID(ctx, in.PatientID); err != nil {
		return nil, notFound(err, "patient", "patientId")
	}
	if _, err := s.repos.Doctors.FindByID(ctx, in.DoctorID); err != nil {
		return nil, notFound(err, "doctor", "doctorId")
	}
	if in.AppointmentID != nil && *in.AppointmentID != "" {
		appointment, err := s.repos.Appointments.FindByID(ctx, *in.AppointmentID)
		if err != nil {
			return nil, notFound(err, "appointment", "appointmentId")
		}
		if appointment.PatientID != in.PatientID || appointment.DoctorID != in.DoctorID {
			return nil, apperrors.Validation("invalid data", map[string]string{
				"appointmentId": "must belong to the same patient and doctor",
			})
		}
	} else {
		in.AppointmentID = nil
	}

	prescription := &models.Prescription{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		AppointmentID: in.AppointmentID,
		Content:       in.Content,
		Status:        models.PrescriptionActive,
	}
	if err := s.repos.Prescriptions.Create(ctx, prescription); err != nil {
		return nil, writeError(err, "prescription")
	}
	s.log.Audit(requester.ID, "create", "prescription:"+prescription.ID, true, map[string]interface{}{"patient_id": prescription.PatientID})
	return prescription, nil
}

// Get returns one prescription visible to the requester.
func (s *PrescriptionService) Get(ctx context.Context, requester models.Principal, id string) (*models.Prescription, error) {
	if err := policy.Authorize(requester.Role, policy.Prescriptions, policy.Read); err != nil {
		return nil, err
	}
	prescription, err := s.repos.Prescriptions.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "prescription", "id")
	}
	if !ownsPrescription(requester, prescription) {
		return nil, apperrors.Forbidden("not a party to this prescription")
	}
	return prescription, nil
}

// List returns a page of prescriptions. Doctors and patients only see their own.
func (s *PrescriptionService) List(ctx context.Context, requester models.Principal, in ListPrescriptionsInput) (*ListResult[models.Prescription], error) {
	if err := policy.Authorize(requester.Role, policy.Prescriptions, policy.List); err != nil {
		return nil, err
	}
	filter := repository.PrescriptionFilter{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		AppointmentID: in.AppointmentID,
		Page:          in.Page,
	}
	switch requester.Role {
	case models.RoleDoctor:
		filter.DoctorID = requester.ID
	case models.RolePatient:
		filter.PatientID = requester.ID
	}
	if in.Status != "" {
		if err := validation.Var(in.Status, "oneof=active expired cancelled", "status"); err != nil {
			return nil, err
		}
		filter.Status = models.PrescriptionStatus(in.Status)
	}

	items, total, err := s.repos.Prescriptions.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("failed to list prescriptions", err)
	}
	return newListResult(items, filter.Page, total), nil
}

// Update edits the content of an active prescription or moves its status.
func (s *PrescriptionService) Update(ctx context.Context, requester models.Principal, id string, in UpdatePrescriptionInput) (*models.Prescription, error) {
	if err := policy.Authorize(requester.Role, policy.Prescriptions, policy.Update); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	prescription, err := s.repos.Prescriptions.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "prescription", "id")
	}
	if !ownsPrescription(requester, prescription) {
		return nil, apperrors.Forbidden("doctors may only update their own prescriptions")
	}

	if in.Content != nil {
		if prescription.Status != models.PrescriptionActive {
			return nil, apperrors.New(apperrors.KindInvalidState, "prescription is "+string(prescription.Status))
		}
		prescription.Content = *in.Content
	}
	if in.Status != nil {
		requested := models.PrescriptionStatus(*in.Status)
		next, err := models.TransitionPrescription(prescription.Status, requested)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidTransition,
				fmt.Sprintf("cannot change status from %s to %s", prescription.Status, requested), err)
		}
		prescription.Status = next
	}

	if err := s.repos.Prescriptions.Save(ctx, prescription); err != nil {
		return nil, writeError(err, "prescription")
	}
	s.log.Audit(requester.ID, "update", "prescription:"+prescription.ID, true, map[string]interface{}{"status": prescription.Status})
	return prescription, nil
}

// Delete removes a prescription.
func (s *PrescriptionService) Delete(ctx context.Context, requester models.Principal, id string) error {
	if err := policy.Authorize(requester.Role, policy.Prescriptions, policy.Delete); err != nil {
		return err
	}
	prescription, err := s.repos.Prescriptions.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "prescription", "id")
	}
	if !ownsPrescription(requester, prescription) {
		return apperrors.Forbidden("doctors may only delete their own prescriptions")
	}
	if err := s.repos.Prescriptions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("prescription not found")
		}
		return apperrors.Internal("failed to delete prescription", err)
	}
	s.log.Audit(requester.ID, "delete", "prescription:"+id, true, nil)
	return nil
}

func ownsPrescription(p models.Principal, rx *models.Prescription) bool {
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleDoctor:
		return rx.DoctorID == p.ID
	case models.RolePatient:
		return rx.PatientID == p.ID
	}
	return false
}
