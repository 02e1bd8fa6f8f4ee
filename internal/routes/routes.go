package routes

import (
	"strings"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/handlers"
	"medvision-server/internal/metrics"
	"medvision-server/internal/middleware"
	"medvision-server/internal/models"
	"medvision-server/internal/ratelimit"
	"medvision-server/internal/utils"
)

// Options carries everything the routes are built from.
type Options struct {
	APIVersion    string
	Tokens        *utils.TokenIssuer
	RateLimiter   *middleware.RateLimiter
	Metrics       *metrics.Metrics
	Auth          *handlers.AuthHandler
	Appointments  *handlers.AppointmentHandler
	Prescriptions *handlers.PrescriptionHandler
	Directory     *handlers.DirectoryHandler
	Health        *handlers.HealthHandler
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, o Options) {
	version := strings.TrimPrefix(o.APIVersion, "v")
	if version == "" {
		version = "1"
	}
	authenticate := middleware.AuthMiddleware(o.Tokens)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	limit := o.RateLimiter

	api := router.Group("/v" + version)

	// Per-role authentication. Signup is performed by an authenticated admin.
	for _, role := range []models.Role{models.RoleAdmin, models.RoleDoctor} {
		authRoutes := api.Group("/"+string(role)+"/auth", limit.Limit(ratelimit.General, middleware.ByClientIP))
		{
			switch role {
			case models.RoleAdmin:
				authRoutes.POST("/signup", authenticate, adminOnly, o.Auth.SignUpAdmin)
			case models.RoleDoctor:
				authRoutes.POST("/signup", authenticate, adminOnly, o.Auth.SignUpDoctor)
			}
			authRoutes.POST("/signin", limit.Limit(ratelimit.Login, middleware.ByBodyField("email")), o.Auth.SignIn(role))
			authRoutes.POST("/recovery-password", limit.Limit(ratelimit.Reset, middleware.ByBodyField("email")), o.Auth.RecoveryPassword(role))
			authRoutes.POST("/validate-code", limit.Limit(ratelimit.Verification, middleware.ByBodyField("email")), o.Auth.ValidateResetCode(role))
			authRoutes.POST("/reset-password", limit.Limit(ratelimit.Verification, middleware.ByBodyField("email")), o.Auth.ResetPassword(role))
		}
	}

	patientAuth := api.Group("/patient/auth", limit.Limit(ratelimit.General, middleware.ByClientIP))
	{
		patientAuth.POST("/signup", authenticate, adminOnly, o.Auth.SignUpPatient)
		patientAuth.POST("/request-code", limit.Limit(ratelimit.OTP, middleware.ByBodyField("cpf")), o.Auth.RequestCode)
		patientAuth.POST("/resend-code", limit.Limit(ratelimit.OTP, middleware.ByBodyField("cpf")), o.Auth.RequestCode)
		patientAuth.POST("/validate-code", limit.Limit(ratelimit.Login, middleware.ByBodyField("cpf")), o.Auth.ValidateLoginCode)
	}

	session := api.Group("/auth")
	{
		session.POST("/refresh", limit.Limit(ratelimit.General, middleware.ByClientIP), o.Auth.RefreshToken)
		session.POST("/logout", o.Auth.Logout)
		session.GET("/me", authenticate, o.Auth.GetProfile)
		session.PATCH("/me", authenticate, o.Auth.UpdateProfile)
	}

	// Role rules for the routes below live in the policy table; the
	// services consult it on every call.
	appointments := api.Group("/appointment", authenticate)
	{
		appointments.POST("", o.Appointments.CreateAppointment)
		appointments.GET("", o.Appointments.ListAppointments)
		appointments.GET("/:id", o.Appointments.GetAppointmentByID)
		appointments.PATCH("/:id", o.Appointments.UpdateAppointment)
		appointments.DELETE("/:id", o.Appointments.DeleteAppointment)
		appointments.GET("/:id/token", o.Appointments.RoomToken)
	}

	prescriptions := api.Group("/prescription", authenticate)
	{
		prescriptions.POST("", o.Prescriptions.CreatePrescription)
		prescriptions.GET("", o.Prescriptions.ListPrescriptions)
		prescriptions.GET("/:id", o.Prescriptions.GetPrescription)
		prescriptions.PATCH("/:id", o.Prescriptions.UpdatePrescription)
		prescriptions.DELETE("/:id", o.Prescriptions.DeletePrescription)
	}

	admin := api.Group("/admin", authenticate, adminOnly)
	{
		admin.GET("/doctors", o.Directory.GetDoctors)
		admin.GET("/doctors/:id", o.Directory.GetDoctorByID)
		admin.PATCH("/doctors/:id", o.Directory.UpdateDoctor)
		admin.DELETE("/doctors/:id", o.Directory.DeleteDoctor)
		admin.GET("/patients", o.Directory.GetPatients)
		admin.GET("/patients/:id", o.Directory.GetPatientByID)
		admin.PATCH("/patients/:id", o.Directory.UpdatePatient)
		admin.DELETE("/patients/:id", o.Directory.DeletePatient)
	}

	doctor := api.Group("/doctor", authenticate)
	{
		doctor.GET("/doctors", o.Directory.GetPublicDoctors)
		doctor.GET("/patients", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), o.Directory.GetPatients)
		doctor.GET("/patients/:id", middleware.RequireRoles(models.RoleDoctor, models.RoleAdmin), o.Directory.GetPatientByID)
	}

	router.GET("/health", o.Health.Health)
	if o.Metrics != nil {
		router.GET("/metrics", gin.WrapH(o.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		utils.HandleError(c, apperrors.NotFound("route not found: "+c.Request.Method+" "+c.Request.URL.Path))
	})
}
