package services

import (
	"context"
	"errors"
	"time"

	"github.com/jinzhu/now"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/models"
	"medvision-server/internal/repository"
)

var (
	errQuotaExhausted = errors.New("monthly quota exhausted")
	errSlotTaken      = errors.New("slot already booked")
)

// SlotChecker decides whether a doctor can take one more appointment at a
// given instant. It only reads.
type SlotChecker struct {
	location *time.Location
	slot     time.Duration
}

// NewSlotChecker creates a checker. Month boundaries are computed in loc.
// A zero slot length only rejects bookings at the exact same instant.
func NewSlotChecker(loc *time.Location, slot time.Duration) *SlotChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotChecker{location: loc, slot: slot}
}

// MonthBounds returns the first and last instant of the business-local month containing t.
func (s *SlotChecker) MonthBounds(t time.Time) (time.Time, time.Time) {
	local := now.With(t.In(s.location))
	return local.BeginningOfMonth(), local.EndOfMonth()
}

// HasAvailableSlot reports whether doctorID can be booked at at. An unknown
// doctor has no slots.
func (s *SlotChecker) HasAvailableSlot(ctx context.Context, repos *repository.Repositories, doctorID string, at time.Time) (bool, error) {
	doctor, err := repos.Doctors.FindByID(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = s.check(ctx, repos.Appointments, doctor, at, "")
	if errors.Is(err, errQuotaExhausted) || errors.Is(err, errSlotTaken) {
		return false, nil
	}
	return err == nil, err
}

// Check returns a Conflict error when doctor cannot take an appointment at at.
// excludeID leaves one existing appointment out of the counts, for reschedules.
func (s *SlotChecker) Check(ctx context.Context, appointments repository.AppointmentStore, doctor *models.Doctor, at time.Time, excludeID string) error {
	err := s.check(ctx, appointments, doctor, at, excludeID)
	switch {
	case errors.Is(err, errQuotaExhausted):
		return apperrors.Conflict("horário indisponível: limite mensal de consultas atingido")
	case errors.Is(err, errSlotTaken):
		return apperrors.Conflict("horário indisponível")
	case err != nil:
		return apperrors.Internal("failed to check availability", err)
	}
	return nil
}

func (s *SlotChecker) check(ctx context.Context, appointments repository.AppointmentStore, doctor *models.Doctor, at time.Time, excludeID string) error {
	start, end := s.MonthBounds(at)
	booked, err := appointments.CountActive(ctx, repository.ActiveQuery{
		DoctorID:  doctor.ID,
		From:      start.UTC(),
		To:        end.UTC(),
		ExcludeID: excludeID,
	})
	if err != nil {
		return err
	}
	if booked >= int64(doctor.MonthlySlots) {
		return errQuotaExhausted
	}

	overlap := repository.ActiveQuery{DoctorID: doctor.ID, ExcludeID: excludeID}
	if s.slot > 0 {
		overlap.From, overlap.To, overlap.Open = at.Add(-s.slot).UTC(), at.Add(s.slot).UTC(), true
	} else {
		overlap.From, overlap.To = at.UTC(), at.UTC()
	}
	clashes, err := appointments.CountActive(ctx, overlap)
	if err != nil {
		return err
	}
	if clashes > 0 {
		return errSlotTaken
	}
	return nil
}
