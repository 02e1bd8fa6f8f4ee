package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medvision-server/internal/config"
	"medvision-server/internal/logger"
	"medvision-server/internal/models"
	"medvision-server/internal/utils"
)

// Brazil has observed no DST since 2019, so a fixed zone matches America/Sao_Paulo.
var businessTZ = time.FixedZone("BRT", -3*60*60)

var (
	adminPrincipal = models.Principal{ID: "admin-1", Role: models.RoleAdmin, Name: "Admin"}
	ctx            = context.Background()
)

type testEnv struct {
	db            *memDB
	video         *fakeVideo
	notifier      *fakeNotifier
	now           time.Time
	auth          *AuthService
	appointments  *AppointmentService
	prescriptions *PrescriptionService
	directory     *DirectoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       newMemDB(),
		video:    &fakeVideo{},
		notifier: &fakeNotifier{},
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, businessTZ),
	}
	repos := env.db.repos()
	log := logger.Discard()
	tokens := utils.NewTokenIssuer(config.JWTConfig{
		Secret:        "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		Issuer:        "medvision",
		Audience:      "medvision-clients",
	})

	env.auth = NewAuthService(repos, env.db, tokens, env.notifier, log, nil, AuthOptions{
		OTPExpiry:       10 * time.Minute,
		ResetCodeExpiry: 15 * time.Minute,
	})
	env.auth.codes = func() (string, error) { return "123456", nil }

	env.appointments = NewAppointmentService(repos, env.db, NewSlotChecker(businessTZ, 30*time.Minute),
		env.video, time.Second, env.notifier, log, nil)
	env.appointments.clock = func() time.Time { return env.now }

	env.prescriptions = NewPrescriptionService(repos, log)
	env.directory = NewDirectoryService(repos, log)
	return env
}

func (e *testEnv) seedDoctor(t *testing.T, crm string, slots int) *models.Doctor {
	t.Helper()
	d := &models.Doctor{
		Name:         "Dr " + crm,
		Email:        crm[:5] + "@clinic.com",
		Phone:        "11987654321",
		CRM:          crm,
		Specialty:    "Cardiologia",
		MonthlySlots: slots,
		Password:     "not-a-real-hash",
	}
	require.NoError(t, e.db.repos().Doctors.Create(ctx, d))
	return d
}

func (e *testEnv) seedPatient(t *testing.T, cpf string) *models.Patient {
	t.Helper()
	p := &models.Patient{
		Name:  "Paciente " + cpf,
		Age:   40,
		CPF:   cpf,
		Phone: "11912345678",
		Email: cpf + "@mail.com",
	}
	require.NoError(t, e.db.repos().Patients.Create(ctx, p))
	return p
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, businessTZ)
}

func booking(p *models.Patient, d *models.Doctor, when time.Time) CreateAppointmentInput {
	return CreateAppointmentInput{PatientID: p.ID, DoctorID: d.ID, AppointmentDate: when, Reason: "Consulta de rotina"}
}
