package handlers

import (
	"github.com/gin-gonic/gin"

	"medvision-server/internal/services"
	"medvision-server/internal/utils"
)

// PrescriptionHandler handles prescription requests.
type PrescriptionHandler struct {
	prescriptions *services.PrescriptionService
}

func NewPrescriptionHandler(prescriptions *services.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: prescriptions}
}

func (h *PrescriptionHandler) CreatePrescription(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.CreatePrescriptionInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	prescription, err := h.prescriptions.Create(c.Request.Context(), requester, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Prescription created successfully", prescription)
}

// ListPrescriptions accepts patientId, doctorId, appointmentId, status, page and limit.
func (h *PrescriptionHandler) ListPrescriptions(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	page, err := utils.PageQuery(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	result, err := h.prescriptions.List(c.Request.Context(), requester, services.ListPrescriptionsInput{
		PatientID:     c.Query("patientId"),
		DoctorID:      c.Query("doctorId"),
		AppointmentID: c.Query("appointmentId"),
		Status:        c.Query("status"),
		Page:          page,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Prescriptions fetched successfully", result)
}

func (h *PrescriptionHandler) GetPrescription(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	prescription, err := h.prescriptions.Get(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Prescription fetched successfully", prescription)
}

func (h *PrescriptionHandler) UpdatePrescription(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.UpdatePrescriptionInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	prescription, err := h.prescriptions.Update(c.Request.Context(), requester, c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Prescription updated successfully", prescription)
}

func (h *PrescriptionHandler) DeletePrescription(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.prescriptions.Delete(c.Request.Context(), requester, c.Param("id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Prescription deleted successfully", nil)
}
