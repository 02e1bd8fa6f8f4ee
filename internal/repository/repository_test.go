package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medvision-server/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), ErrDuplicateKey)

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1451}), ErrReferenced)
	assert.NotErrorIs(t, translate(&mysql.MySQLError{Number: 1213}), ErrDuplicateKey)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: 10}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, Limit: 100}, Page{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 20, Page{Page: 3, Limit: 10}.offset())
}

func TestDoctorCreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectExec("INSERT INTO `doctors`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '11111/SP' for key 'crm'"})

	err := repos.Doctors.Create(context.Background(), &models.Doctor{Name: "Dr", Email: "dr@clinic.com", CRM: "11111/SP"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminFindCredentialByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectQuery("SELECT \\* FROM `admins` WHERE email = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	cred, err := repos.Admins.FindCredentialByEmail(context.Background(), "nobody@clinic.com")
	assert.Nil(t, cred)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorLockByID(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectQuery("SELECT \\* FROM `doctors` WHERE id = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "crm", "monthly_slots"}).
			AddRow("doc-1", "Dr", "dr@clinic.com", "11111/SP", 4))

	doctor, err := repos.Doctors.LockByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "11111/SP", doctor.CRM)
	assert.Equal(t, 4, doctor.MonthlySlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentCountActive(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()
	at := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `appointments` WHERE .*doctor_id = \\? AND status <> \\?.*appointment_date > \\? AND appointment_date < \\?.*id <> \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repos.Appointments.CountActive(context.Background(), ActiveQuery{
		DoctorID:  "doc-1",
		From:      at.Add(-30 * time.Minute),
		To:        at.Add(30 * time.Minute),
		Open:      true,
		ExcludeID: "appt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectExec("DELETE FROM `appointments` WHERE id = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `appointments` WHERE id = \\?").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repos.Appointments.Delete(context.Background(), "appt-1"))
	assert.ErrorIs(t, repos.Appointments.Delete(context.Background(), "appt-1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrescriptionList(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `prescriptions` WHERE patient_id = \\? AND status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("SELECT \\* FROM `prescriptions` WHERE patient_id = \\? AND status = \\? ORDER BY created_at DESC LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "doctor_id", "content", "status"}).
			AddRow("rx-11", "pat-1", "doc-1", "Amoxicilina 500mg", "active"))

	list, total, err := repos.Prescriptions.List(context.Background(), PrescriptionFilter{
		PatientID: "pat-1",
		Status:    models.PrescriptionActive,
		Page:      Page{Page: 2, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Amoxicilina 500mg", list[0].Content)
	assert.Equal(t, int64(11), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientConsumeCode(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectExec("UPDATE `patients` SET .*`code`=.*WHERE \\(?id = \\? AND code = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `patients` SET .*`code`=.*WHERE \\(?id = \\? AND code = \\?").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repos.Patients.ConsumeCode(context.Background(), "pat-1", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Patients.ConsumeCode(context.Background(), "pat-1", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "a code is consumed once")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorReplacePasswordRequiresPendingCode(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectExec("UPDATE `doctors` SET .*`password`=.*WHERE \\(?id = \\? AND reset_code = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `doctors` SET .*`password`=.*WHERE \\(?id = \\? AND reset_code = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repos.Doctors.ReplacePassword(context.Background(), "doc-1", "123456", "hash")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Doctors.ReplacePassword(context.Background(), "doc-1", "123456", "hash")
	require.NoError(t, err)
	assert.False(t, ok, "a reset code is consumed once")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRevokeAll(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewStore(db).Repositories()

	mock.ExpectExec("UPDATE `refresh_tokens` SET `is_revoked`=.*WHERE \\(?principal_id = \\? AND role = \\? AND is_revoked = \\?").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repos.RefreshTokens.RevokeAll(context.Background(), "doc-1", models.RoleDoctor))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(r *Repositories) error {
		require.NotNil(t, r.Appointments)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, NewStore(db).Ping(context.Background()))
}
