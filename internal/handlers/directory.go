package handlers

import (
	"github.com/gin-gonic/gin"

	"medvision-server/internal/services"
	"medvision-server/internal/utils"
)

// DirectoryHandler handles doctor and patient management requests.
type DirectoryHandler struct {
	directory *services.DirectoryService
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(directory *services.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

func directoryQuery(c *gin.Context) (services.DirectoryQuery, error) {
	page, err := utils.PageQuery(c)
	if err != nil {
		return services.DirectoryQuery{}, err
	}
	return services.DirectoryQuery{Search: c.Query("search"), Specialty: c.Query("specialty"), Page: page}, nil
}

// GetDoctors lists doctors with contact data. Admin only.
func (h *DirectoryHandler) GetDoctors(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q, err := directoryQuery(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	result, err := h.directory.ListDoctors(c.Request.Context(), requester, q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Doctors fetched successfully", result)
}

// GetPublicDoctors lists doctor cards for any authenticated caller.
func (h *DirectoryHandler) GetPublicDoctors(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q, err := directoryQuery(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	result, err := h.directory.ListPublicDoctors(c.Request.Context(), requester, q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Doctors fetched successfully", result)
}

func (h *DirectoryHandler) GetDoctorByID(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	doctor, err := h.directory.GetDoctor(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Doctor fetched successfully", doctor)
}

func (h *DirectoryHandler) UpdateDoctor(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.UpdateDoctorInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	doctor, err := h.directory.UpdateDoctor(c.Request.Context(), requester, c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Doctor updated successfully", doctor)
}

func (h *DirectoryHandler) DeleteDoctor(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.directory.DeleteDoctor(c.Request.Context(), requester, c.Param("id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Doctor deleted successfully", nil)
}

// GetPatients lists patients for admins and doctors.
func (h *DirectoryHandler) GetPatients(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q, err := directoryQuery(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	result, err := h.directory.ListPatients(c.Request.Context(), requester, q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patients fetched successfully", result)
}

func (h *DirectoryHandler) GetPatientByID(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	patient, err := h.directory.GetPatient(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patient fetched successfully", patient)
}

func (h *DirectoryHandler) UpdatePatient(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req services.UpdatePatientInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.HandleError(c, err)
		return
	}
	patient, err := h.directory.UpdatePatient(c.Request.Context(), requester, c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patient updated successfully", patient)
}

func (h *DirectoryHandler) DeletePatient(c *gin.Context) {
	requester, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.directory.DeletePatient(c.Request.Context(), requester, c.Param("id")); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patient deleted successfully", nil)
}
