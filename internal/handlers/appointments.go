package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/services"
	"medvision-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	appointments *services.AppointmentService
	location     *time.Location
}

// NewAppointmentHandler creates a new AppointmentHandler. Bare dates in
// list filters are read in loc.
func NewAppointmentHandler(appointments *services.AppointmentService, loc *time.Location) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments, location: loc}
}

// CreateAppointment books an appointment. Admin only.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.CreateAppointmentInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	appointment, err := h.appointments.Create(c.Request.Context(), requester, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}

// ListAppointments lists appointments visible to the caller.
// Query: patientId, doctorId, status, startDate, endDate, page, limit.
func (h *AppointmentHandler) ListAppointments(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	page, err := utils.PageQuery(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	start, err := utils.TimeQuery(c, "startDate", h.location)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	end, err := utils.TimeQuery(c, "endDate", h.location)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	result, err := h.appointments.List(c.Request.Context(), requester, services.ListAppointmentsInput{
		PatientID: c.Query("patientId"),
		DoctorID:  c.Query("doctorId"),
		Status:    c.Query("status"),
		StartDate: start,
		EndDate:   end,
		Page:      page,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", result)
}

// GetAppointmentByID returns one appointment to a party or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	appointment, err := h.appointments.Get(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointment patches date, reason, notes or status.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.UpdateAppointmentInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	appointment, err := h.appointments.Update(c.Request.Context(), requester, c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointment updated successfully", appointment)
}

// DeleteAppointment removes an appointment. Admin only.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.appointments.Delete(c.Request.Context(), requester, c.Param("id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Appointment deleted successfully", nil)
}

// RoomToken issues a video room token for the appointment.
func (h *AppointmentHandler) RoomToken(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	access, err := h.appointments.IssueAccessToken(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Room token issued successfully", access)
}
