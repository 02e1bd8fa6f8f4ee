package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medvision-server/internal/models"
	"medvision-server/internal/repository"
	"medvision-server/internal/video"
)

// memDB is an in-memory stand-in for the gorm store. Transactions are
// serialised and roll back to a snapshot on error.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	admins        map[string]models.Admin
	doctors       map[string]models.Doctor
	patients      map[string]models.Patient
	appointments  map[string]models.Appointment
	prescriptions map[string]models.Prescription
	tokens        map[string]models.RefreshToken

	createAppointmentErr error
}

func newMemDB() *memDB {
	return &memDB{
		admins:        map[string]models.Admin{},
		doctors:       map[string]models.Doctor{},
		patients:      map[string]models.Patient{},
		appointments:  map[string]models.Appointment{},
		prescriptions: map[string]models.Prescription{},
		tokens:        map[string]models.RefreshToken{},
	}
}

func (db *memDB) repos() *repository.Repositories {
	return &repository.Repositories{
		Admins:        memAdmins{db},
		Doctors:       memDoctors{db},
		Patients:      memPatients{db},
		Appointments:  memAppointments{db},
		Prescriptions: memPrescriptions{db},
		RefreshTokens: memTokens{db},
	}
}

type snapshot struct {
	admins        map[string]models.Admin
	doctors       map[string]models.Doctor
	patients      map[string]models.Patient
	appointments  map[string]models.Appointment
	prescriptions map[string]models.Prescription
	tokens        map[string]models.RefreshToken
}

func cloneMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) Transaction(_ context.Context, fn func(r *repository.Repositories) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snap := snapshot{
		cloneMap(db.admins), cloneMap(db.doctors), cloneMap(db.patients),
		cloneMap(db.appointments), cloneMap(db.prescriptions), cloneMap(db.tokens),
	}
	db.mu.Unlock()

	if err := fn(db.repos()); err != nil {
		db.mu.Lock()
		db.admins, db.doctors, db.patients = snap.admins, snap.doctors, snap.patients
		db.appointments, db.prescriptions, db.tokens = snap.appointments, snap.prescriptions, snap.tokens
		db.mu.Unlock()
		return err
	}
	return nil
}

func stamp(base *models.BaseModel) {
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

func duplicate(key string) error {
	return fmt.Errorf("%w: Duplicate entry for key '%s'", repository.ErrDuplicateKey, key)
}

func pageOf[T any](items []T, p repository.Page) []T {
	p = p.Normalize()
	start := (p.Page - 1) * p.Limit
	if start >= len(items) {
		return nil
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type memAdmins struct{ db *memDB }

func (r memAdmins) Create(_ context.Context, a *models.Admin) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.admins {
		if other.Email == a.Email {
			return duplicate("admins.idx_admins_email")
		}
	}
	stamp(&a.BaseModel)
	r.db.admins[a.ID] = *a
	return nil
}

func (r memAdmins) FindByID(_ context.Context, id string) (*models.Admin, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.admins[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r memAdmins) Save(_ context.Context, a *models.Admin) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stamp(&a.BaseModel)
	r.db.admins[a.ID] = *a
	return nil
}

func (r memAdmins) Count(context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.db.admins)), nil
}

func (r memAdmins) FindCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.admins {
		if a.Email == email {
			return a.Credential(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memAdmins) SetResetCode(_ context.Context, id string, code *string, expiresAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a := r.db.admins[id]
	a.ResetCode, a.ResetCodeExpiresAt = code, expiresAt
	r.db.admins[id] = a
	return nil
}

func (r memAdmins) ReplacePassword(_ context.Context, id, code, hash string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.admins[id]
	if !ok || a.ResetCode == nil || *a.ResetCode != code {
		return false, nil
	}
	a.Password, a.ResetCode, a.ResetCodeExpiresAt = hash, nil, nil
	r.db.admins[id] = a
	return true, nil
}

type memDoctors struct{ db *memDB }

func (r memDoctors) Create(_ context.Context, d *models.Doctor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.unique(d); err != nil {
		return err
	}
	stamp(&d.BaseModel)
	r.db.doctors[d.ID] = *d
	return nil
}

func (r memDoctors) unique(d *models.Doctor) error {
	for id, other := range r.db.doctors {
		if id == d.ID {
			continue
		}
		if other.Email == d.Email {
			return duplicate("doctors.idx_doctors_email")
		}
		if other.CRM == d.CRM {
			return duplicate("doctors.idx_doctors_crm")
		}
	}
	return nil
}

func (r memDoctors) FindByID(_ context.Context, id string) (*models.Doctor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r memDoctors) LockByID(ctx context.Context, id string) (*models.Doctor, error) {
	return r.FindByID(ctx, id)
}

func (r memDoctors) List(_ context.Context, f repository.DirectoryFilter) ([]models.Doctor, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Doctor
	for _, d := range r.db.doctors {
		if f.Search != "" && !strings.Contains(d.Name, f.Search) && !strings.Contains(d.CRM, f.Search) {
			continue
		}
		if f.Specialty != "" && d.Specialty != f.Specialty {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return pageOf(out, f.Page), int64(len(out)), nil
}

func (r memDoctors) Save(_ context.Context, d *models.Doctor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.unique(d); err != nil {
		return err
	}
	stamp(&d.BaseModel)
	r.db.doctors[d.ID] = *d
	return nil
}

func (r memDoctors) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.doctors[id]; !ok {
		return repository.ErrNotFound
	}
	for _, a := range r.db.appointments {
		if a.DoctorID == id {
			return fmt.Errorf("%w: fk_appointments_doctor", repository.ErrReferenced)
		}
	}
	delete(r.db.doctors, id)
	return nil
}

func (r memDoctors) FindCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, d := range r.db.doctors {
		if d.Email == email {
			return d.Credential(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memDoctors) SetResetCode(_ context.Context, id string, code *string, expiresAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d := r.db.doctors[id]
	d.ResetCode, d.ResetCodeExpiresAt = code, expiresAt
	r.db.doctors[id] = d
	return nil
}

func (r memDoctors) ReplacePassword(_ context.Context, id, code, hash string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.doctors[id]
	if !ok || d.ResetCode == nil || *d.ResetCode != code {
		return false, nil
	}
	d.Password, d.ResetCode, d.ResetCodeExpiresAt = hash, nil, nil
	r.db.doctors[id] = d
	return true, nil
}

type memPatients struct{ db *memDB }

func (r memPatients) Create(_ context.Context, p *models.Patient) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.patients {
		if other.CPF == p.CPF {
			return duplicate("patients.idx_patients_cpf")
		}
	}
	stamp(&p.BaseModel)
	r.db.patients[p.ID] = *p
	return nil
}

func (r memPatients) FindByID(_ context.Context, id string) (*models.Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memPatients) FindByCPF(_ context.Context, cpf string) (*models.Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.patients {
		if p.CPF == cpf {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memPatients) SetCode(_ context.Context, id string, code *string, expiresAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.patients[id]
	p.Code, p.CodeExpiresAt = code, expiresAt
	r.db.patients[id] = p
	return nil
}

func (r memPatients) ConsumeCode(_ context.Context, id, code string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.patients[id]
	if !ok || p.Code == nil || *p.Code != code {
		return false, nil
	}
	p.Code, p.CodeExpiresAt = nil, nil
	r.db.patients[id] = p
	return true, nil
}

func (r memPatients) List(_ context.Context, f repository.DirectoryFilter) ([]models.Patient, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Patient
	for _, p := range r.db.patients {
		if f.Search != "" && !strings.Contains(p.Name, f.Search) && !strings.Contains(p.CPF, f.Search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return pageOf(out, f.Page), int64(len(out)), nil
}

func (r memPatients) Save(_ context.Context, p *models.Patient) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stamp(&p.BaseModel)
	r.db.patients[p.ID] = *p
	return nil
}

func (r memPatients) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.patients[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.patients, id)
	return nil
}

type memAppointments struct{ db *memDB }

func (r memAppointments) Create(_ context.Context, a *models.Appointment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.createAppointmentErr != nil {
		return r.db.createAppointmentErr
	}
	stamp(&a.BaseModel)
	stored := *a
	stored.Patient, stored.Doctor = nil, nil
	r.db.appointments[a.ID] = stored
	return nil
}

func (r memAppointments) withRelations(a models.Appointment) models.Appointment {
	if p, ok := r.db.patients[a.PatientID]; ok {
		a.Patient = &p
	}
	if d, ok := r.db.doctors[a.DoctorID]; ok {
		a.Doctor = &d
	}
	return a
}

func (r memAppointments) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a = r.withRelations(a)
	return &a, nil
}

func (r memAppointments) List(_ context.Context, f repository.AppointmentFilter) ([]models.Appointment, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Appointment
	for _, a := range r.db.appointments {
		switch {
		case f.PatientID != "" && a.PatientID != f.PatientID,
			f.DoctorID != "" && a.DoctorID != f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && a.AppointmentDate.Before(*f.From),
			f.To != nil && a.AppointmentDate.After(*f.To):
			continue
		}
		out = append(out, r.withRelations(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	return pageOf(out, f.Page), int64(len(out)), nil
}

func (r memAppointments) CountActive(_ context.Context, q repository.ActiveQuery) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, a := range r.db.appointments {
		if a.DoctorID != q.DoctorID || a.Status == models.StatusCancelled || a.ID == q.ExcludeID {
			continue
		}
		t := a.AppointmentDate
		var in bool
		if q.Open {
			in = t.After(q.From) && t.Before(q.To)
		} else {
			in = !t.Before(q.From) && !t.After(q.To)
		}
		if in {
			n++
		}
	}
	return n, nil
}

func (r memAppointments) Save(_ context.Context, a *models.Appointment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.appointments[a.ID]; !ok {
		return repository.ErrNotFound
	}
	stamp(&a.BaseModel)
	stored := *a
	stored.Patient, stored.Doctor = nil, nil
	r.db.appointments[a.ID] = stored
	return nil
}

func (r memAppointments) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.appointments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.appointments, id)
	return nil
}

type memPrescriptions struct{ db *memDB }

func (r memPrescriptions) Create(_ context.Context, p *models.Prescription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stamp(&p.BaseModel)
	r.db.prescriptions[p.ID] = *p
	return nil
}

func (r memPrescriptions) FindByID(_ context.Context, id string) (*models.Prescription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memPrescriptions) List(_ context.Context, f repository.PrescriptionFilter) ([]models.Prescription, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Prescription
	for _, p := range r.db.prescriptions {
		switch {
		case f.PatientID != "" && p.PatientID != f.PatientID,
			f.DoctorID != "" && p.DoctorID != f.DoctorID,
			f.AppointmentID != "" && (p.AppointmentID == nil || *p.AppointmentID != f.AppointmentID),
			f.Status != "" && p.Status != f.Status:
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageOf(out, f.Page), int64(len(out)), nil
}

func (r memPrescriptions) Save(_ context.Context, p *models.Prescription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stamp(&p.BaseModel)
	r.db.prescriptions[p.ID] = *p
	return nil
}

func (r memPrescriptions) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.prescriptions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.prescriptions, id)
	return nil
}

type memTokens struct{ db *memDB }

func (r memTokens) Create(_ context.Context, t *models.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stamp(&t.BaseModel)
	r.db.tokens[t.ID] = *t
	return nil
}

func (r memTokens) FindActiveByHash(_ context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.tokens {
		if t.TokenHash == hash && !t.IsRevoked && t.ExpiresAt.After(now) {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memTokens) RevokeAll(_ context.Context, principalID string, role models.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, t := range r.db.tokens {
		if t.PrincipalID == principalID && t.Role == role {
			t.IsRevoked = true
			r.db.tokens[id] = t
		}
	}
	return nil
}

func (r memTokens) Revoke(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t := r.db.tokens[id]
	t.IsRevoked = true
	r.db.tokens[id] = t
	return nil
}

// fakeVideo records provisioning calls.
type fakeVideo struct {
	mu        sync.Mutex
	created   []string
	deleted   []string
	createErr error
	deleteErr error
	tokenErr  error
}

func (v *fakeVideo) CreateRoom(_ context.Context, name string) (*video.Room, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return nil, v.createErr
	}
	v.created = append(v.created, name)
	return &video.Room{Name: name, URL: "https://meet.test/" + name}, nil
}

func (v *fakeVideo) DeleteRoom(_ context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleted = append(v.deleted, name)
	return v.deleteErr
}

func (v *fakeVideo) AccessToken(_ context.Context, room, userID string, role models.Role, _ video.TokenOptions) (string, error) {
	if v.tokenErr != nil {
		return "", v.tokenErr
	}
	return fmt.Sprintf("tok:%s:%s:%s", room, userID, role), nil
}

func (v *fakeVideo) deletedRooms() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.deleted...)
}

type sentMail struct {
	kind string
	to   string
	code string
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) record(kind, to, code string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, to: to, code: code})
}

func (n *fakeNotifier) Welcome(_ context.Context, to, _ string) { n.record("welcome", to, "") }

func (n *fakeNotifier) ResetCode(_ context.Context, to, _, code string, _ time.Duration) {
	n.record("reset", to, code)
}

func (n *fakeNotifier) LoginCode(_ context.Context, to, _, code string, _ time.Duration) {
	n.record("login", to, code)
}

func (n *fakeNotifier) AppointmentScheduled(_ context.Context, to, _, _ string, _ time.Time, _, _ string) {
	n.record("scheduled", to, "")
}

func (n *fakeNotifier) AppointmentCancelled(_ context.Context, to, _, _ string, _ time.Time) {
	n.record("cancelled", to, "")
}

func (n *fakeNotifier) byKind(kind string) []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMail
	for _, m := range n.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

var errBoom = errors.New("boom")
