package services

import (
	"context"
	"errors"
	"strings"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/logger"
	"medvision-server/internal/models"
	"medvision-server/internal/policy"
	"medvision-server/internal/repository"
	"medvision-server/internal/validation"
)

// DirectoryService manages doctor and patient records and self profiles.
type DirectoryService struct {
	repos *repository.Repositories
	log   *logger.Logger
}

// NewDirectoryService creates the directory service.
func NewDirectoryService(repos *repository.Repositories, log *logger.Logger) *DirectoryService {
	return &DirectoryService{repos: repos, log: log}
}

// DirectoryQuery filters doctor and patient listings.
type DirectoryQuery struct {
	Search    string
	Specialty string
	repository.Page
}

// PublicDoctor is the doctor card shown to every authenticated user.
type PublicDoctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CRM       string `json:"crm"`
	Specialty string `json:"specialty"`
}

// UpdateDoctorInput is an admin patch of a doctor.
type UpdateDoctorInput struct {
	Name         *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email        *string `json:"email" validate:"omitempty,email,max=255"`
	Phone        *string `json:"phone" validate:"omitempty,phone"`
	CRM          *string `json:"crm" validate:"omitempty,crm"`
	Specialty    *string `json:"specialty" validate:"omitempty,min=2,max=100"`
	MonthlySlots *int    `json:"monthlySlots" validate:"omitempty,min=0,max=1000"`
}

// UpdatePatientInput is an admin patch of a patient.
type UpdatePatientInput struct {
	Name    *string         `json:"name" validate:"omitempty,min=2,max=100"`
	Age     *int            `json:"age" validate:"omitempty,min=0,max=120"`
	Phone   *string         `json:"phone" validate:"omitempty,phone"`
	Email   *string         `json:"email" validate:"omitempty,email,max=255"`
	Address *models.Address `json:"address"`
}

// UpdateProfileInput is what any principal may change about themselves.
type UpdateProfileInput struct {
	Name    *string         `json:"name" validate:"omitempty,min=2,max=100"`
	Phone   *string         `json:"phone" validate:"omitempty,phone"`
	Address *models.Address `json:"address"`
}

func (q DirectoryQuery) filter() repository.DirectoryFilter {
	return repository.DirectoryFilter{Search: strings.TrimSpace(q.Search), Specialty: q.Specialty, Page: q.Page}
}

// ListDoctors returns full doctor records to admins.
func (s *DirectoryService) ListDoctors(ctx context.Context, requester models.Principal, q DirectoryQuery) (*ListResult[models.DoctorSanitized], error) {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.List); err != nil {
		return nil, err
	}
	doctors, total, err := s.repos.Doctors.List(ctx, q.filter())
	if err != nil {
		return nil, apperrors.Internal("failed to list doctors", err)
	}
	items := make([]models.DoctorSanitized, 0, len(doctors))
	for i := range doctors {
		items = append(items, doctors[i].Sanitize())
	}
	return newListResult(items, q.Page, total), nil
}

// ListPublicDoctors returns doctor cards without contact data.
func (s *DirectoryService) ListPublicDoctors(ctx context.Context, requester models.Principal, q DirectoryQuery) (*ListResult[PublicDoctor], error) {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.ListPublic); err != nil {
		return nil, err
	}
	doctors, total, err := s.repos.Doctors.List(ctx, q.filter())
	if err != nil {
		return nil, apperrors.Internal("failed to list doctors", err)
	}
	items := make([]PublicDoctor, 0, len(doctors))
	for _, d := range doctors {
		items = append(items, PublicDoctor{ID: d.ID, Name: d.Name, CRM: d.CRM, Specialty: d.Specialty})
	}
	return newListResult(items, q.Page, total), nil
}

// GetDoctor returns one doctor to an admin.
func (s *DirectoryService) GetDoctor(ctx context.Context, requester models.Principal, id string) (*models.DoctorSanitized, error) {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.Read); err != nil {
		return nil, err
	}
	doctor, err := s.repos.Doctors.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "doctor", "id")
	}
	out := doctor.Sanitize()
	return &out, nil
}

// UpdateDoctor patches a doctor.
func (s *DirectoryService) UpdateDoctor(ctx context.Context, requester models.Principal, id string, in UpdateDoctorInput) (*models.DoctorSanitized, error) {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.Update); err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if in.CRM != nil {
		crm := strings.ToUpper(strings.TrimSpace(*in.CRM))
		in.CRM = &crm
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	doctor, err := s.repos.Doctors.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "doctor", "id")
	}
	assign(&doctor.Name, in.Name)
	assign(&doctor.Email, in.Email)
	assign(&doctor.Phone, in.Phone)
	assign(&doctor.CRM, in.CRM)
	assign(&doctor.Specialty, in.Specialty)
	assign(&doctor.MonthlySlots, in.MonthlySlots)

	if err := s.repos.Doctors.Save(ctx, doctor); err != nil {
		return nil, writeError(err, "doctor", "email", "crm")
	}
	s.log.Audit(requester.ID, "update", "doctor:"+doctor.ID, true, nil)
	out := doctor.Sanitize()
	return &out, nil
}

// DeleteDoctor removes a doctor without appointments or prescriptions.
func (s *DirectoryService) DeleteDoctor(ctx context.Context, requester models.Principal, id string) error {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.Delete); err != nil {
		return err
	}
	if err := s.repos.Doctors.Delete(ctx, id); err != nil {
		return writeError(err, "doctor")
	}
	s.log.Audit(requester.ID, "delete", "doctor:"+id, true, nil)
	return nil
}

// ListPatients returns patients to admins and doctors.
func (s *DirectoryService) ListPatients(ctx context.Context, requester models.Principal, q DirectoryQuery) (*ListResult[models.Patient], error) {
	if err := policy.Authorize(requester.Role, policy.Patients, policy.List); err != nil {
		return nil, err
	}
	patients, total, err := s.repos.Patients.List(ctx, q.filter())
	if err != nil {
		return nil, apperrors.Internal("failed to list patients", err)
	}
	return newListResult(patients, q.Page, total), nil
}

// GetPatient returns one patient to admins and doctors.
func (s *DirectoryService) GetPatient(ctx context.Context, requester models.Principal, id string) (*models.Patient, error) {
	if err := policy.Authorize(requester.Role, policy.Patients, policy.Read); err != nil {
		return nil, err
	}
	patient, err := s.repos.Patients.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "patient", "id")
	}
	return patient, nil
}

// UpdatePatient patches a patient.
func (s *DirectoryService) UpdatePatient(ctx context.Context, requester models.Principal, id string, in UpdatePatientInput) (*models.Patient, error) {
	if err := policy.Authorize(requester.Role, policy.Patients, policy.Update); err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	patient, err := s.repos.Patients.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "patient", "id")
	}
	assign(&patient.Name, in.Name)
	assign(&patient.Age, in.Age)
	assign(&patient.Phone, in.Phone)
	assign(&patient.Email, in.Email)
	if in.Address != nil {
		patient.Address = in.Address
	}

	if err := s.repos.Patients.Save(ctx, patient); err != nil {
		return nil, writeError(err, "patient", "cpf")
	}
	s.log.Audit(requester.ID, "update", "patient:"+patient.ID, true, nil)
	return patient, nil
}

// DeletePatient removes a patient without appointments or prescriptions.
func (s *DirectoryService) DeletePatient(ctx context.Context, requester models.Principal, id string) error {
	if err := policy.Authorize(requester.Role, policy.Patients, policy.Delete); err != nil {
		return err
	}
	if err := s.repos.Patients.Delete(ctx, id); err != nil {
		return writeError(err, "patient")
	}
	s.log.Audit(requester.ID, "delete", "patient:"+id, true, nil)
	return nil
}

// Profile returns the requester's own record.
func (s *DirectoryService) Profile(ctx context.Context, requester models.Principal) (interface{}, error) {
	switch requester.Role {
	case models.RoleAdmin:
		admin, err := s.repos.Admins.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		return admin.Sanitize(), nil
	case models.RoleDoctor:
		doctor, err := s.repos.Doctors.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		return doctor.Sanitize(), nil
	case models.RolePatient:
		patient, err := s.repos.Patients.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		return patient, nil
	}
	return nil, apperrors.Forbidden("unknown role")
}

// UpdateProfile lets a principal change their own name, phone and address.
func (s *DirectoryService) UpdateProfile(ctx context.Context, requester models.Principal, in UpdateProfileInput) (interface{}, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	switch requester.Role {
	case models.RoleAdmin:
		if in.Phone != nil || in.Address != nil {
			return nil, apperrors.Validation("invalid data", map[string]string{"phone": "not available for admins"})
		}
		admin, err := s.repos.Admins.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		assign(&admin.Name, in.Name)
		if err := s.repos.Admins.Save(ctx, admin); err != nil {
			return nil, writeError(err, "admin")
		}
		return admin.Sanitize(), nil
	case models.RoleDoctor:
		doctor, err := s.repos.Doctors.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		assign(&doctor.Name, in.Name)
		assign(&doctor.Phone, in.Phone)
		if err := s.repos.Doctors.Save(ctx, doctor); err != nil {
			return nil, writeError(err, "doctor")
		}
		return doctor.Sanitize(), nil
	case models.RolePatient:
		patient, err := s.repos.Patients.FindByID(ctx, requester.ID)
		if err != nil {
			return nil, profileError(err)
		}
		assign(&patient.Name, in.Name)
		assign(&patient.Phone, in.Phone)
		if in.Address != nil {
			patient.Address = in.Address
		}
		if err := s.repos.Patients.Save(ctx, patient); err != nil {
			return nil, writeError(err, "patient")
		}
		return patient, nil
	}
	return nil, apperrors.Forbidden("unknown role")
}

func profileError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.New(apperrors.KindUnauthorized, "account no longer exists")
	}
	return apperrors.Internal("failed to load profile", err)
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
