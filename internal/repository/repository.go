// Package repository holds the gorm-backed persistence for every entity.
// Repositories carry no business rules; callers compose them inside
// Transaction when several writes must commit together.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"medvision-server/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a unique index rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrReferenced is returned when a delete would orphan dependent rows.
	ErrReferenced = errors.New("row is referenced")
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, mysqlErr.Message)
		case mysqlRowIsReferenced:
			return fmt.Errorf("%w: %s", ErrReferenced, mysqlErr.Message)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: %s", ErrNotFound, mysqlErr.Message)
		}
	}
	return err
}

// Page selects a window of a listing. Zero values mean page 1 of 10.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Normalize clamps the page to its allowed range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}

func paginate(p Page) func(*gorm.DB) *gorm.DB {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.offset()).Limit(p.Limit)
	}
}

// CredentialStore is the password sign-in surface shared by admins and doctors.
type CredentialStore interface {
	FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
	SetResetCode(ctx context.Context, id string, code *string, expiresAt *time.Time) error
	// ReplacePassword stores a new hash and clears the reset code, but only
	// while code is still the pending one. It reports whether a row changed.
	ReplacePassword(ctx context.Context, id, code, passwordHash string) (bool, error)
}

// AdminStore persists admins.
type AdminStore interface {
	CredentialStore
	Create(ctx context.Context, admin *models.Admin) error
	FindByID(ctx context.Context, id string) (*models.Admin, error)
	Save(ctx context.Context, admin *models.Admin) error
	Count(ctx context.Context) (int64, error)
}

// DirectoryFilter narrows doctor and patient listings.
type DirectoryFilter struct {
	Search    string
	Specialty string
	Page
}

// DoctorStore persists doctors.
type DoctorStore interface {
	CredentialStore
	Create(ctx context.Context, doctor *models.Doctor) error
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
	// LockByID reads the doctor with SELECT ... FOR UPDATE. It only locks
	// when called inside a transaction.
	LockByID(ctx context.Context, id string) (*models.Doctor, error)
	List(ctx context.Context, filter DirectoryFilter) ([]models.Doctor, int64, error)
	Save(ctx context.Context, doctor *models.Doctor) error
	Delete(ctx context.Context, id string) error
}

// PatientStore persists patients.
type PatientStore interface {
	Create(ctx context.Context, patient *models.Patient) error
	FindByID(ctx context.Context, id string) (*models.Patient, error)
	FindByCPF(ctx context.Context, cpf string) (*models.Patient, error)
	SetCode(ctx context.Context, id string, code *string, expiresAt *time.Time) error
	// ConsumeCode clears the login code if it still equals code and reports
	// whether this call was the one that cleared it.
	ConsumeCode(ctx context.Context, id, code string) (bool, error)
	List(ctx context.Context, filter DirectoryFilter) ([]models.Patient, int64, error)
	Save(ctx context.Context, patient *models.Patient) error
	Delete(ctx context.Context, id string) error
}

// AppointmentFilter narrows appointment listings. From and To bound
// appointmentDate inclusively.
type AppointmentFilter struct {
	PatientID string
	DoctorID  string
	Status    models.AppointmentStatus
	From      *time.Time
	To        *time.Time
	Page
}

// ActiveQuery counts non-cancelled appointments of one doctor within
// a time range. Open excludes both bounds, otherwise both are included.
type ActiveQuery struct {
	DoctorID  string
	From      time.Time
	To        time.Time
	Open      bool
	ExcludeID string
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	Create(ctx context.Context, appointment *models.Appointment) error
	// FindByID loads the appointment with its patient and doctor.
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, int64, error)
	CountActive(ctx context.Context, query ActiveQuery) (int64, error)
	Save(ctx context.Context, appointment *models.Appointment) error
	Delete(ctx context.Context, id string) error
}

// PrescriptionFilter narrows prescription listings.
type PrescriptionFilter struct {
	PatientID     string
	DoctorID      string
	AppointmentID string
	Status        models.PrescriptionStatus
	Page
}

// PrescriptionStore persists prescriptions.
type PrescriptionStore interface {
	Create(ctx context.Context, prescription *models.Prescription) error
	FindByID(ctx context.Context, id string) (*models.Prescription, error)
	List(ctx context.Context, filter PrescriptionFilter) ([]models.Prescription, int64, error)
	Save(ctx context.Context, prescription *models.Prescription) error
	Delete(ctx context.Context, id string) error
}

// RefreshTokenStore persists refresh token hashes.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	// RevokeAll revokes every active token of a principal.
	RevokeAll(ctx context.Context, principalID string, role models.Role) error
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories struct {
	Admins        AdminStore
	Doctors       DoctorStore
	Patients      PatientStore
	Appointments  AppointmentStore
	Prescriptions PrescriptionStore
	RefreshTokens RefreshTokenStore
}

// Transactor runs fn with repositories bound to a single transaction.
// Returning an error from fn rolls the transaction back.
type Transactor interface {
	Transaction(ctx context.Context, fn func(r *Repositories) error) error
}

// Store is the gorm implementation of Transactor.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Repositories returns stores bound to the base connection.
func (s *Store) Repositories() *Repositories {
	return newRepositories(s.db)
}

// Transaction implements Transactor.
func (s *Store) Transaction(ctx context.Context, fn func(r *Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(tx))
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func newRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Admins:        &adminRepository{db: db},
		Doctors:       &doctorRepository{db: db},
		Patients:      &patientRepository{db: db},
		Appointments:  &appointmentRepository{db: db},
		Prescriptions: &prescriptionRepository{db: db},
		RefreshTokens: &refreshTokenRepository{db: db},
	}
}

func deleteByID(ctx context.Context, db *gorm.DB, model interface{}, id string) error {
	result := db.WithContext(ctx).Where("id = ?", id).Delete(model)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func replacePassword(ctx context.Context, db *gorm.DB, model interface{}, id, code, passwordHash string) (bool, error) {
	result := db.WithContext(ctx).Model(model).
		Where("id = ? AND reset_code = ?", id, code).
		Updates(map[string]interface{}{
			"password":              passwordHash,
			"reset_code":            nil,
			"reset_code_expires_at": nil,
		})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func updateByID(ctx context.Context, db *gorm.DB, model interface{}, id string, fields map[string]interface{}) error {
	return translate(db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields).Error)
}
