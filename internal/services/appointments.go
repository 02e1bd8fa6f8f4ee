package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/logger"
	"medvision-server/internal/metrics"
	"medvision-server/internal/models"
	"medvision-server/internal/policy"
	"medvision-server/internal/repository"
	"medvision-server/internal/validation"
	"medvision-server/internal/video"
)

// RoomNamePrefix prefixes every provisioned consultation room.
const RoomNamePrefix = "consulta-"

// AppointmentService runs the booking workflow.
type AppointmentService struct {
	repos        *repository.Repositories
	tx           repository.Transactor
	slots        *SlotChecker
	video        video.Provisioner
	videoTimeout time.Duration
	notifier     Notifier
	log          *logger.Logger
	metrics      *metrics.Metrics
	clock        func() time.Time
}

// NewAppointmentService creates the appointment service. videoTimeout bounds
// every call to the video provider.
func NewAppointmentService(repos *repository.Repositories, tx repository.Transactor, slots *SlotChecker, provisioner video.Provisioner, videoTimeout time.Duration, notifier Notifier, log *logger.Logger, m *metrics.Metrics) *AppointmentService {
	if videoTimeout <= 0 {
		videoTimeout = 10 * time.Second
	}
	return &AppointmentService{
		repos:        repos,
		tx:           tx,
		slots:        slots,
		video:        provisioner,
		videoTimeout: videoTimeout,
		notifier:     notifier,
		log:          log,
		metrics:      m,
		clock:        time.Now,
	}
}

// CreateAppointmentInput books an appointment.
type CreateAppointmentInput struct {
	PatientID       string    `json:"patientId" validate:"required,max=36"`
	DoctorID        string    `json:"doctorId" validate:"required,max=36"`
	AppointmentDate time.Time `json:"appointmentDate" validate:"required"`
	Reason          string    `json:"reason" validate:"required,min=3,max=500"`
	Notes           *string   `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateAppointmentInput is a partial patch; nil fields are left unchanged.
type UpdateAppointmentInput struct {
	AppointmentDate *time.Time `json:"appointmentDate"`
	Reason          *string    `json:"reason" validate:"omitempty,min=3,max=500"`
	Status          *string    `json:"status"`
	Notes           *string    `json:"notes" validate:"omitempty,max=2000"`
}

// ListAppointmentsInput filters a listing.
type ListAppointmentsInput struct {
	PatientID string
	DoctorID  string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	repository.Page
}

// RoomAccess grants one principal entry to an appointment's room.
type RoomAccess struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"roomName"`
	RoomURL   string    `json:"roomUrl"`
	IsOwner   bool      `json:"isOwner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Create books an appointment. It checks availability, provisions the video
// room and inserts the row inside one transaction holding the doctor's row
// lock, so concurrent bookings for one doctor are serialised.
func (s *AppointmentService) Create(ctx context.Context, requester models.Principal, in CreateAppointmentInput) (*models.AppointmentView, error) {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.Create); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.requireFuture(in.AppointmentDate); err != nil {
		return nil, err
	}

	var (
		created *models.Appointment
		room    *video.Room
	)
	err := s.tx.Transaction(ctx, func(r *repository.Repositories) error {
		patient, err := r.Patients.FindByID(ctx, in.PatientID)
		if err != nil {
			return notFound(err, "patient", "patientId")
		}
		doctor, err := r.Doctors.LockByID(ctx, in.DoctorID)
		if err != nil {
			return notFound(err, "doctor", "doctorId")
		}
		if err := s.slots.Check(ctx, r.Appointments, doctor, in.AppointmentDate, ""); err != nil {
			return err
		}

		room, err = s.createRoom(ctx, RoomNamePrefix+uuid.NewString())
		if err != nil {
			return err
		}

		appointment := &models.Appointment{
			PatientID:       patient.ID,
			DoctorID:        doctor.ID,
			AppointmentDate: in.AppointmentDate.UTC(),
			Reason:          in.Reason,
			Status:          models.StatusScheduled,
			RoomName:        &room.Name,
			RoomURL:         &room.URL,
			Notes:           in.Notes,
		}
		if err := r.Appointments.Create(ctx, appointment); err != nil {
			return apperrors.Internal("failed to save appointment", err)
		}
		appointment.Patient, appointment.Doctor = patient, doctor
		created = appointment
		return nil
	})
	if err != nil {
		if room != nil {
			s.releaseRoom(ctx, room.Name)
		}
		s.metrics.Booking(bookingOutcome(err))
		return nil, err
	}

	s.metrics.Booking("created")
	s.log.Audit(requester.ID, "create", "appointment:"+created.ID, true, map[string]interface{}{
		"doctor_id":        created.DoctorID,
		"patient_id":       created.PatientID,
		"appointment_date": created.AppointmentDate,
	})
	s.notifier.AppointmentScheduled(ctx, created.Doctor.Email, created.Doctor.Name, created.Patient.Name,
		created.AppointmentDate, created.Reason, derefString(created.RoomURL))

	view := models.NewAppointmentView(created)
	return &view, nil
}

func bookingOutcome(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindConflict:
		return "conflict"
	case apperrors.KindDependencyFailure:
		return "video_failure"
	case apperrors.KindNotFound:
		return "not_found"
	}
	return "error"
}

// Get returns one appointment visible to the requester.
func (s *AppointmentService) Get(ctx context.Context, requester models.Principal, id string) (*models.AppointmentView, error) {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.Read); err != nil {
		return nil, err
	}
	appointment, err := s.repos.Appointments.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "appointment", "id")
	}
	if !isParty(requester, appointment) {
		return nil, apperrors.Forbidden("not a party to this appointment")
	}
	view := models.NewAppointmentView(appointment)
	return &view, nil
}

// List returns a page of appointments. Doctors and patients only see their own.
func (s *AppointmentService) List(ctx context.Context, requester models.Principal, in ListAppointmentsInput) (*ListResult[models.AppointmentView], error) {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.List); err != nil {
		return nil, err
	}
	filter := repository.AppointmentFilter{
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		From:      in.StartDate,
		To:        in.EndDate,
		Page:      in.Page,
	}
	switch requester.Role {
	case models.RoleDoctor:
		filter.DoctorID = requester.ID
	case models.RolePatient:
		filter.PatientID = requester.ID
	}
	if in.Status != "" {
		status, err := models.ParseAppointmentStatus(in.Status)
		if err != nil {
			return nil, apperrors.Validation("invalid filter", map[string]string{"status": "must be one of: scheduled, in_progress, completed, cancelled"})
		}
		filter.Status = status
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, apperrors.Validation("invalid filter", map[string]string{"endDate": "must not be before startDate"})
	}

	appointments, total, err := s.repos.Appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal("failed to list appointments", err)
	}
	views := make([]models.AppointmentView, 0, len(appointments))
	for i := range appointments {
		views = append(views, models.NewAppointmentView(&appointments[i]))
	}
	return newListResult(views, filter.Page, total), nil
}

// Update applies a partial patch. Status changes go through the appointment
// state machine; a new date is re-checked against availability.
func (s *AppointmentService) Update(ctx context.Context, requester models.Principal, id string, in UpdateAppointmentInput) (*models.AppointmentView, error) {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.Update); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var requested *models.AppointmentStatus
	if in.Status != nil {
		status, err := models.ParseAppointmentStatus(*in.Status)
		if err != nil {
			return nil, apperrors.Validation("invalid data", map[string]string{"status": "must be one of: scheduled, in_progress, completed, cancelled"})
		}
		requested = &status
	}
	if in.AppointmentDate != nil {
		if err := s.requireFuture(*in.AppointmentDate); err != nil {
			return nil, err
		}
	}

	var (
		updated   *models.Appointment
		cancelled bool
	)
	err := s.tx.Transaction(ctx, func(r *repository.Repositories) error {
		appointment, err := r.Appointments.FindByID(ctx, id)
		if err != nil {
			return notFound(err, "appointment", "id")
		}
		if requester.Role == models.RoleDoctor && appointment.DoctorID != requester.ID {
			return apperrors.Forbidden("doctors may only update their own appointments")
		}

		if requested != nil {
			next, err := models.Transition(appointment.Status, *requested)
			if err != nil {
				return apperrors.Wrap(apperrors.KindInvalidTransition,
					fmt.Sprintf("cannot change status from %s to %s", appointment.Status, *requested), err)
			}
			cancelled = next == models.StatusCancelled
			appointment.Status = next
		} else if appointment.Status.Terminal() && (in.AppointmentDate != nil || in.Reason != nil) {
			return apperrors.New(apperrors.KindInvalidState, "appointment is "+string(appointment.Status))
		}

		if in.AppointmentDate != nil && !in.AppointmentDate.Equal(appointment.AppointmentDate) {
			if appointment.Status.Terminal() {
				return apperrors.New(apperrors.KindInvalidState, "appointment is "+string(appointment.Status))
			}
			doctor, err := r.Doctors.LockByID(ctx, appointment.DoctorID)
			if err != nil {
				return notFound(err, "doctor", "doctorId")
			}
			if err := s.slots.Check(ctx, r.Appointments, doctor, *in.AppointmentDate, appointment.ID); err != nil {
				return err
			}
			appointment.AppointmentDate = in.AppointmentDate.UTC()
		}
		if in.Reason != nil {
			appointment.Reason = *in.Reason
		}
		if in.Notes != nil {
			appointment.Notes = in.Notes
		}

		if err := r.Appointments.Save(ctx, appointment); err != nil {
			return apperrors.Internal("failed to save appointment", err)
		}
		updated = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Audit(requester.ID, "update", "appointment:"+updated.ID, true, map[string]interface{}{"status": updated.Status})
	if cancelled && updated.Doctor != nil && updated.Patient != nil {
		s.notifier.AppointmentCancelled(ctx, updated.Doctor.Email, updated.Doctor.Name, updated.Patient.Name, updated.AppointmentDate)
	}
	view := models.NewAppointmentView(updated)
	return &view, nil
}

// Delete removes an appointment and releases its video room. Room release is
// best-effort; the row is deleted regardless.
func (s *AppointmentService) Delete(ctx context.Context, requester models.Principal, id string) error {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.Delete); err != nil {
		return err
	}
	appointment, err := s.repos.Appointments.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "appointment", "id")
	}
	if appointment.RoomName != nil {
		s.releaseRoom(ctx, *appointment.RoomName)
	}
	if err := s.repos.Appointments.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("appointment not found")
		}
		return apperrors.Internal("failed to delete appointment", err)
	}
	s.log.Audit(requester.ID, "delete", "appointment:"+id, true, nil)
	return nil
}

// IssueAccessToken grants a party of the appointment, or an admin, a token
// for its video room while the appointment is scheduled or in progress.
func (s *AppointmentService) IssueAccessToken(ctx context.Context, requester models.Principal, id string) (*RoomAccess, error) {
	if err := policy.Authorize(requester.Role, policy.Appointments, policy.IssueToken); err != nil {
		return nil, err
	}
	appointment, err := s.repos.Appointments.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "appointment", "id")
	}
	if !isParty(requester, appointment) {
		return nil, apperrors.Forbidden("not a party to this appointment")
	}
	if appointment.Status != models.StatusScheduled && appointment.Status != models.StatusInProgress {
		return nil, apperrors.New(apperrors.KindInvalidState, "appointment is "+string(appointment.Status))
	}
	if appointment.RoomName == nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "appointment has no video room")
	}

	name := requester.Name
	if name == "" {
		name = displayName(requester.Role, appointment)
	}
	vctx, cancel := context.WithTimeout(ctx, s.videoTimeout)
	defer cancel()
	token, err := s.video.AccessToken(vctx, *appointment.RoomName, requester.ID, requester.Role, video.TokenOptions{UserName: name})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependencyFailure, "failed to issue room token", err)
	}
	return &RoomAccess{
		Token:     token,
		RoomName:  *appointment.RoomName,
		RoomURL:   derefString(appointment.RoomURL),
		IsOwner:   video.IsOwner(requester.Role),
		ExpiresAt: s.clock().Add(video.DefaultTokenTTL),
	}, nil
}

func (s *AppointmentService) requireFuture(at time.Time) error {
	if !at.After(s.clock()) {
		return apperrors.Validation("invalid data", map[string]string{"appointmentDate": "must be in the future"})
	}
	return nil
}

func (s *AppointmentService) createRoom(ctx context.Context, name string) (*video.Room, error) {
	vctx, cancel := context.WithTimeout(ctx, s.videoTimeout)
	defer cancel()
	room, err := s.video.CreateRoom(vctx, name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependencyFailure, "failed to provision video room", err)
	}
	return room, nil
}

func (s *AppointmentService) releaseRoom(ctx context.Context, name string) {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.videoTimeout)
	defer cancel()
	if err := s.video.DeleteRoom(vctx, name); err != nil {
		s.log.WithComponent("appointments").WithFields(logrus.Fields{"room": name}).WithError(err).Warn("video room release failed")
	}
}

func isParty(p models.Principal, a *models.Appointment) bool {
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleDoctor:
		return a.DoctorID == p.ID
	case models.RolePatient:
		return a.PatientID == p.ID
	}
	return false
}

func displayName(role models.Role, a *models.Appointment) string {
	switch {
	case role == models.RoleDoctor && a.Doctor != nil:
		return a.Doctor.Name
	case role == models.RolePatient && a.Patient != nil:
		return a.Patient.Name
	}
	return ""
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
