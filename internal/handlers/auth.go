package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/middleware"
	"medvision-server/internal/models"
	"medvision-server/internal/services"
	"medvision-server/internal/utils"
)

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	auth          *services.AuthService
	directory     *services.DirectoryService
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler. Session cookies are marked
// Secure when secureCookies is set.
func NewAuthHandler(auth *services.AuthService, directory *services.DirectoryService, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, directory: directory, secureCookies: secureCookies}
}

// RefreshTokenRequest carries a refresh token for rotation or logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) setSession(c *gin.Context, session *services.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, session.Token, int(session.ExpiresIn), "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
}

// SignUpAdmin registers an admin on behalf of an authenticated admin.
func (h *AuthHandler) SignUpAdmin(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.SignUpAdminInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	admin, err := h.auth.SignUpAdmin(c.Request.Context(), requester, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Admin registered successfully", admin)
}

// SignUpDoctor registers a doctor on behalf of an authenticated admin.
func (h *AuthHandler) SignUpDoctor(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.SignUpDoctorInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	doctor, err := h.auth.SignUpDoctor(c.Request.Context(), requester, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Doctor registered successfully", doctor)
}

// SignUpPatient registers a patient on behalf of an authenticated admin.
func (h *AuthHandler) SignUpPatient(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.SignUpPatientInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	patient, err := h.auth.SignUpPatient(c.Request.Context(), requester, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Patient registered successfully", patient)
}

// SignIn handles email and password login for role.
func (h *AuthHandler) SignIn(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.PasswordSignInInput
		if err := utils.BindJSON(c, &req); err != nil {
			utils.HandleError(c, err)
			return
		}
		session, err := h.auth.SignInPassword(c.Request.Context(), role, req)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		h.setSession(c, session)
		utils.Success(c, "Login successful", session)
	}
}

// RequestCode emails a patient login code. The response does not reveal
// whether the CPF is registered.
func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req services.CodeRequestInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := h.auth.RequestLoginCode(c.Request.Context(), req); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "If the CPF is registered, a login code has been sent", nil)
}

// ValidateLoginCode completes a patient login.
func (h *AuthHandler) ValidateLoginCode(c *gin.Context) {
	var req services.CodeSignInInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	session, err := h.auth.SignInCode(c.Request.Context(), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	h.setSession(c, session)
	utils.Success(c, "Login successful", session)
}

// RecoveryPassword starts a password reset for role.
func (h *AuthHandler) RecoveryPassword(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ResetRequestInput
		if err := utils.BindJSON(c, &req); err != nil {
			utils.HandleError(c, err)
			return
		}
		if err := h.auth.RequestPasswordReset(c.Request.Context(), role, req); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "If the email is registered, a reset code has been sent", nil)
	}
}

// ValidateResetCode checks a reset code for role without consuming it.
func (h *AuthHandler) ValidateResetCode(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ResetCodeInput
		if err := utils.BindJSON(c, &req); err != nil {
			utils.HandleError(c, err)
			return
		}
		if err := h.auth.ValidateResetCode(c.Request.Context(), role, req); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "Code is valid", nil)
	}
}

// ResetPassword completes a password reset for role.
func (h *AuthHandler) ResetPassword(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ResetPasswordInput
		if err := utils.BindJSON(c, &req); err != nil {
			utils.HandleError(c, err)
			return
		}
		if err := h.auth.ConfirmPasswordReset(c.Request.Context(), role, req); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.Success(c, "Password updated successfully", nil)
	}
}

// RefreshToken rotates the refresh token and renews the session cookie.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	session, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	h.setSession(c, session)
	utils.Success(c, "Access token refreshed successfully", session)
}

// Logout revokes the refresh token, if given, and clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshTokenRequest
	if c.Request.ContentLength != 0 {
		if err := utils.BindJSON(c, &req); err != nil {
			utils.HandleError(c, err)
			return
		}
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		utils.HandleError(c, err)
		return
	}
	h.clearSession(c)
	utils.Success(c, "Logout successful", nil)
}

// GetProfile returns the authenticated caller's own record.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	profile, err := h.directory.Profile(c.Request.Context(), principal)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Profile fetched successfully", profile)
}

// UpdateProfile changes the authenticated caller's own record.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.UpdateProfileInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	profile, err := h.directory.UpdateProfile(c.Request.Context(), principal, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Profile updated successfully", profile)
}
