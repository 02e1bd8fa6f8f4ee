package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/logger"
	"medvision-server/internal/metrics"
	"medvision-server/internal/models"
	"medvision-server/internal/policy"
	"medvision-server/internal/repository"
	"medvision-server/internal/utils"
	"medvision-server/internal/validation"
)

// AuthOptions configures code lifetimes.
type AuthOptions struct {
	OTPExpiry       time.Duration
	ResetCodeExpiry time.Duration
}

// AuthService registers principals and issues sessions.
type AuthService struct {
	repos    *repository.Repositories
	tx       repository.Transactor
	tokens   *utils.TokenIssuer
	notifier Notifier
	log      *logger.Logger
	metrics  *metrics.Metrics
	opts     AuthOptions
	clock    func() time.Time
	codes    func() (string, error)
}

// NewAuthService creates the auth service.
func NewAuthService(repos *repository.Repositories, tx repository.Transactor, tokens *utils.TokenIssuer, notifier Notifier, log *logger.Logger, m *metrics.Metrics, opts AuthOptions) *AuthService {
	return &AuthService{
		repos:    repos,
		tx:       tx,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
		metrics:  m,
		opts:     opts,
		clock:    time.Now,
		codes:    GenerateCode,
	}
}

// Session is the result of a successful sign-in.
type Session struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	User         interface{} `json:"user"`
}

// SignUpAdminInput registers an admin.
type SignUpAdminInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SignUpDoctorInput registers a doctor.
type SignUpDoctorInput struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Phone        string `json:"phone" validate:"required,phone"`
	CRM          string `json:"crm" validate:"required,crm"`
	Specialty    string `json:"specialty" validate:"required,min=2,max=100"`
	MonthlySlots int    `json:"monthlySlots" validate:"min=0,max=1000"`
	Password     string `json:"password" validate:"required,strongpassword,max=72"`
}

// SignUpPatientInput registers a patient.
type SignUpPatientInput struct {
	Name    string          `json:"name" validate:"required,min=2,max=100"`
	Age     int             `json:"age" validate:"min=0,max=120"`
	CPF     string          `json:"cpf" validate:"required,cpf"`
	Phone   string          `json:"phone" validate:"required,phone"`
	Email   string          `json:"email" validate:"omitempty,email,max=255"`
	Address *models.Address `json:"address"`
}

// PasswordSignInInput is the doctor and admin sign-in form.
type PasswordSignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CodeRequestInput asks for a patient login code.
type CodeRequestInput struct {
	CPF string `json:"cpf" validate:"required,cpf"`
}

// CodeSignInInput completes a patient login.
type CodeSignInInput struct {
	CPF  string `json:"cpf" validate:"required,cpf"`
	Code string `json:"code" validate:"required,otp"`
}

// ResetRequestInput starts a password reset.
type ResetRequestInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetCodeInput checks a reset code without consuming it.
type ResetCodeInput struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,otp"`
}

// ResetPasswordInput completes a password reset.
type ResetPasswordInput struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,otp"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUpAdmin registers a new admin. Only admins may do this.
func (s *AuthService) SignUpAdmin(ctx context.Context, requester models.Principal, in SignUpAdminInput) (*models.AdminSanitized, error) {
	if err := policy.Authorize(requester.Role, policy.Admins, policy.Create); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	hash, err := models.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}
	admin := &models.Admin{Name: in.Name, Email: in.Email, Password: hash}
	if err := s.repos.Admins.Create(ctx, admin); err != nil {
		return nil, writeError(err, "admin", "email")
	}

	s.log.Audit(requester.ID, "signup", "admin:"+admin.ID, true, nil)
	s.notifier.Welcome(ctx, admin.Email, admin.Name)
	out := admin.Sanitize()
	return &out, nil
}

// BootstrapAdmin creates the first admin. It refuses once any admin exists.
func (s *AuthService) BootstrapAdmin(ctx context.Context, in SignUpAdminInput) (*models.AdminSanitized, error) {
	count, err := s.repos.Admins.Count(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to count admins", err)
	}
	if count > 0 {
		return nil, apperrors.New(apperrors.KindInvalidState, "an admin already exists")
	}
	return s.SignUpAdmin(ctx, models.Principal{ID: "bootstrap", Role: models.RoleAdmin}, in)
}

// SignUpDoctor registers a doctor. Only admins may do this.
func (s *AuthService) SignUpDoctor(ctx context.Context, requester models.Principal, in SignUpDoctorInput) (*models.DoctorSanitized, error) {
	if err := policy.Authorize(requester.Role, policy.Doctors, policy.Create); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	in.CRM = strings.ToUpper(strings.TrimSpace(in.CRM))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	hash, err := models.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}
	doctor := &models.Doctor{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		CRM:          in.CRM,
		Specialty:    in.Specialty,
		MonthlySlots: in.MonthlySlots,
		Password:     hash,
	}
	if err := s.repos.Doctors.Create(ctx, doctor); err != nil {
		return nil, writeError(err, "doctor", "email", "crm")
	}

	s.log.Audit(requester.ID, "signup", "doctor:"+doctor.ID, true, nil)
	s.notifier.Welcome(ctx, doctor.Email, doctor.Name)
	out := doctor.Sanitize()
	return &out, nil
}

// SignUpPatient registers a patient. Only admins may do this.
func (s *AuthService) SignUpPatient(ctx context.Context, requester models.Principal, in SignUpPatientInput) (*models.Patient, error) {
	if err := policy.Authorize(requester.Role, policy.Patients, policy.Create); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	patient := &models.Patient{
		Name:    in.Name,
		Age:     in.Age,
		CPF:     validation.NormalizeCPF(in.CPF),
		Phone:   in.Phone,
		Email:   in.Email,
		Address: in.Address,
	}
	if err := s.repos.Patients.Create(ctx, patient); err != nil {
		return nil, writeError(err, "patient", "cpf")
	}

	s.log.Audit(requester.ID, "signup", "patient:"+patient.ID, true, nil)
	return patient, nil
}

func (s *AuthService) credentials(role models.Role) (repository.CredentialStore, error) {
	return credentialsIn(s.repos, role)
}

func credentialsIn(r *repository.Repositories, role models.Role) (repository.CredentialStore, error) {
	switch role {
	case models.RoleAdmin:
		return r.Admins, nil
	case models.RoleDoctor:
		return r.Doctors, nil
	}
	return nil, apperrors.Validation("password sign-in is not available for this role", nil)
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends the same bcrypt work as a real comparison so an
// unknown email is not distinguishable by latency.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = models.HashPassword("medvision-timing-equaliser")
	})
	models.CheckPasswordHash(dummyHash, password)
}

// SignInPassword authenticates a doctor or admin by email and password.
// Unknown email and wrong password yield the same error.
func (s *AuthService) SignInPassword(ctx context.Context, role models.Role, in PasswordSignInInput) (*Session, error) {
	store, err := s.credentials(role)
	if err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	cred, err := store.FindCredentialByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("failed to load credentials", err)
	}
	if cred == nil {
		burnPasswordCheck(in.Password)
		return nil, s.failedSignIn(role, in.Email, "unknown_identifier")
	}
	if !models.CheckPasswordHash(cred.PasswordHash, in.Password) {
		return nil, s.failedSignIn(role, in.Email, "wrong_password")
	}

	session, err := s.startSession(ctx, s.repos, utils.TokenSubject{
		ID:    cred.ID,
		Role:  cred.Role,
		Name:  cred.Name,
		Email: cred.Email,
		CRM:   cred.CRM,
	})
	if err != nil {
		return nil, err
	}
	session.User, err = s.profile(ctx, s.repos, cred.Role, cred.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.AuthAttempt(string(role), "password", true)
	return session, nil
}

func (s *AuthService) failedSignIn(role models.Role, identifier, reason string) error {
	s.metrics.AuthAttempt(string(role), "password", false)
	s.log.Security("signin_failed", identifier, map[string]interface{}{"role": role, "reason": reason})
	return apperrors.InvalidCredentials()
}

// RequestLoginCode emails a one-time code to the patient with this CPF.
// An unknown CPF is indistinguishable from a known one.
func (s *AuthService) RequestLoginCode(ctx context.Context, in CodeRequestInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	cpf := validation.NormalizeCPF(in.CPF)
	patient, err := s.repos.Patients.FindByCPF(ctx, cpf)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Security("login_code_unknown_cpf", cpf, nil)
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to load patient", err)
	}

	code, err := s.codes()
	if err != nil {
		return apperrors.Internal("failed to generate code", err)
	}
	expiresAt := s.clock().Add(s.opts.OTPExpiry)
	if err := s.repos.Patients.SetCode(ctx, patient.ID, &code, &expiresAt); err != nil {
		return apperrors.Internal("failed to store code", err)
	}
	if patient.Email == "" {
		s.log.WithComponent("auth").WithField("patient_id", patient.ID).Warn("patient has no email for login code delivery")
	}
	s.notifier.LoginCode(ctx, patient.Email, patient.Name, code, s.opts.OTPExpiry)
	return nil
}

// SignInCode exchanges a patient's CPF and login code for a session. The
// code is consumed by the first successful call.
func (s *AuthService) SignInCode(ctx context.Context, in CodeSignInInput) (*Session, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	cpf := validation.NormalizeCPF(in.CPF)
	patient, err := s.repos.Patients.FindByCPF(ctx, cpf)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.failedCode(cpf, "unknown_identifier")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load patient", err)
	}
	if !patient.CodeValid(in.Code, s.clock()) {
		return nil, s.failedCode(cpf, "invalid_code")
	}
	consumed, err := s.repos.Patients.ConsumeCode(ctx, patient.ID, in.Code)
	if err != nil {
		return nil, apperrors.Internal("failed to consume code", err)
	}
	if !consumed {
		return nil, s.failedCode(cpf, "code_already_used")
	}
	patient.Code, patient.CodeExpiresAt = nil, nil

	session, err := s.startSession(ctx, s.repos, utils.TokenSubject{
		ID:   patient.ID,
		Role: models.RolePatient,
		Name: patient.Name,
		CPF:  patient.CPF,
	})
	if err != nil {
		return nil, err
	}
	session.User = patient
	s.metrics.AuthAttempt(string(models.RolePatient), "code", true)
	return session, nil
}

func (s *AuthService) failedCode(identifier, reason string) error {
	s.metrics.AuthAttempt(string(models.RolePatient), "code", false)
	s.log.Security("code_rejected", identifier, map[string]interface{}{"reason": reason})
	return apperrors.InvalidCode()
}

// RequestPasswordReset emails a reset code. An unknown email is
// indistinguishable from a known one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, role models.Role, in ResetRequestInput) error {
	store, err := s.credentials(role)
	if err != nil {
		return err
	}
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return err
	}
	cred, err := store.FindCredentialByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Security("reset_unknown_email", in.Email, map[string]interface{}{"role": role})
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to load credentials", err)
	}

	code, err := s.codes()
	if err != nil {
		return apperrors.Internal("failed to generate code", err)
	}
	expiresAt := s.clock().Add(s.opts.ResetCodeExpiry)
	if err := store.SetResetCode(ctx, cred.ID, &code, &expiresAt); err != nil {
		return apperrors.Internal("failed to store reset code", err)
	}
	s.notifier.ResetCode(ctx, cred.Email, cred.Name, code, s.opts.ResetCodeExpiry)
	return nil
}

// ValidateResetCode checks a reset code without consuming it.
func (s *AuthService) ValidateResetCode(ctx context.Context, role models.Role, in ResetCodeInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return err
	}
	_, err := s.checkResetCode(ctx, role, in.Email, in.Code)
	return err
}

// ConfirmPasswordReset replaces the password when the reset code matches and
// ends every session of the principal. The code is consumed atomically.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, role models.Role, in ResetPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return err
	}
	if role == models.RoleDoctor {
		if err := validation.Var(in.NewPassword, "strongpassword", "newPassword"); err != nil {
			return err
		}
	}
	cred, err := s.checkResetCode(ctx, role, in.Email, in.Code)
	if err != nil {
		return err
	}
	hash, err := models.HashPassword(in.NewPassword)
	if err != nil {
		return apperrors.Internal("failed to hash password", err)
	}
	err = s.tx.Transaction(ctx, func(r *repository.Repositories) error {
		store, err := credentialsIn(r, role)
		if err != nil {
			return err
		}
		replaced, err := store.ReplacePassword(ctx, cred.ID, in.Code, hash)
		if err != nil {
			return apperrors.Internal("failed to replace password", err)
		}
		if !replaced {
			s.log.Security("reset_code_rejected", in.Email, map[string]interface{}{"role": role, "reason": "already_used"})
			return apperrors.InvalidCode()
		}
		if err := r.RefreshTokens.RevokeAll(ctx, cred.ID, role); err != nil {
			return apperrors.Internal("failed to revoke sessions", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Audit(cred.ID, "password_reset", string(role)+":"+cred.ID, true, nil)
	return nil
}

func (s *AuthService) checkResetCode(ctx context.Context, role models.Role, email, code string) (*models.Credential, error) {
	store, err := s.credentials(role)
	if err != nil {
		return nil, err
	}
	cred, err := store.FindCredentialByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Security("reset_code_rejected", email, map[string]interface{}{"role": role, "reason": "unknown_identifier"})
		return nil, apperrors.InvalidCode()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load credentials", err)
	}
	if !cred.ResetCodeValid(code, s.clock()) {
		s.log.Security("reset_code_rejected", email, map[string]interface{}{"role": role, "reason": "invalid_code"})
		return nil, apperrors.InvalidCode()
	}
	return cred, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.New(apperrors.KindUnauthorized, "invalid refresh token")
	}

	var session *Session
	err = s.tx.Transaction(ctx, func(r *repository.Repositories) error {
		stored, err := r.RefreshTokens.FindActiveByHash(ctx, models.HashToken(refreshToken), s.clock())
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Security("refresh_rejected", claims.Subject, map[string]interface{}{"role": claims.Role})
			return apperrors.New(apperrors.KindUnauthorized, "invalid refresh token")
		}
		if err != nil {
			return apperrors.Internal("failed to load refresh token", err)
		}
		if stored.PrincipalID != claims.Subject || stored.Role != claims.Role {
			return apperrors.New(apperrors.KindUnauthorized, "invalid refresh token")
		}
		if err := r.RefreshTokens.Revoke(ctx, stored.ID); err != nil {
			return apperrors.Internal("failed to revoke refresh token", err)
		}

		subject, profile, err := s.subject(ctx, r, claims.Role, claims.Subject)
		if err != nil {
			return err
		}
		session, err = s.startSession(ctx, r, subject)
		if err != nil {
			return err
		}
		session.User = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Logout revokes a refresh token. Unknown or already revoked tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	stored, err := s.repos.RefreshTokens.FindActiveByHash(ctx, models.HashToken(refreshToken), s.clock())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to load refresh token", err)
	}
	if err := s.repos.RefreshTokens.Revoke(ctx, stored.ID); err != nil {
		return apperrors.Internal("failed to revoke refresh token", err)
	}
	return nil
}

func (s *AuthService) startSession(ctx context.Context, r *repository.Repositories, subject utils.TokenSubject) (*Session, error) {
	issuedAt := s.clock()
	pair, err := s.tokens.GenerateTokens(subject)
	if err != nil {
		return nil, apperrors.Internal("failed to issue tokens", err)
	}
	err = r.RefreshTokens.Create(ctx, &models.RefreshToken{
		PrincipalID: subject.ID,
		Role:        subject.Role,
		TokenHash:   models.HashToken(pair.RefreshToken),
		ExpiresAt:   pair.RefreshExpiresAt,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to store refresh token", err)
	}
	s.log.WithComponent("auth").WithFields(logrus.Fields{"principal_id": subject.ID, "role": subject.Role}).Info("session started")
	return &Session{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn(issuedAt),
	}, nil
}

// subject reloads a principal for token reissue.
func (s *AuthService) subject(ctx context.Context, r *repository.Repositories, role models.Role, id string) (utils.TokenSubject, interface{}, error) {
	unauthorized := apperrors.New(apperrors.KindUnauthorized, "account no longer exists")
	switch role {
	case models.RoleAdmin:
		admin, err := r.Admins.FindByID(ctx, id)
		if err != nil {
			return utils.TokenSubject{}, nil, lookupAccount(err, unauthorized)
		}
		return utils.TokenSubject{ID: admin.ID, Role: role, Name: admin.Name, Email: admin.Email}, admin.Sanitize(), nil
	case models.RoleDoctor:
		doctor, err := r.Doctors.FindByID(ctx, id)
		if err != nil {
			return utils.TokenSubject{}, nil, lookupAccount(err, unauthorized)
		}
		return utils.TokenSubject{ID: doctor.ID, Role: role, Name: doctor.Name, Email: doctor.Email, CRM: doctor.CRM}, doctor.Sanitize(), nil
	case models.RolePatient:
		patient, err := r.Patients.FindByID(ctx, id)
		if err != nil {
			return utils.TokenSubject{}, nil, lookupAccount(err, unauthorized)
		}
		return utils.TokenSubject{ID: patient.ID, Role: role, Name: patient.Name, CPF: patient.CPF}, patient, nil
	}
	return utils.TokenSubject{}, nil, unauthorized
}

func (s *AuthService) profile(ctx context.Context, r *repository.Repositories, role models.Role, id string) (interface{}, error) {
	_, profile, err := s.subject(ctx, r, role, id)
	return profile, err
}

func lookupAccount(err, missing error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return missing
	}
	return apperrors.Internal("failed to load account", err)
}
