// internal/handlers/license.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vistahub/license-gate/internal/models"
	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/utils"
)

type LicenseHandler struct {
	adminService *services.AdminService
}

func NewLicenseHandler(adminService *services.AdminService) *LicenseHandler {
	return &LicenseHandler{
		adminService: adminService,
	}
}

// POST /admin/licenses
func (h *LicenseHandler) IssueLicense(c *gin.Context) {
	var req services.IssueLicenseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issuer, _ := utils.GetAdminFromContext(c)
	license, err := h.adminService.IssueLicense(c.Request.Context(), issuer, &req)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"key":     license.Key,
		"license": license,
	})
}

// GET /admin/licenses
func (h *LicenseHandler) GetLicenses(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminLicenseFilter{
		PaginationParams: params,
		Project:          c.Query("project"),
		Owner:            c.Query("owner"),
	}

	if status := c.Query("status"); status != "" {
		lStatus := models.LicenseStatus(status)
		if !lStatus.Valid() {
			utils.BadRequestResponse(c, "", gin.H{"status": status})
			return
		}
		filter.Status = &lStatus
	}

	licenses, total, err := h.adminService.ListLicenses(c.Request.Context(), filter)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	result := utils.CreatePaginationResult(licenses, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/licenses/:key
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	license, err := h.adminService.GetLicense(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license": license,
	})
}

// PUT /admin/licenses/:key/ban
func (h *LicenseHandler) BanLicense(c *gin.Context) {
	h.respond(c)(h.adminService.Ban(c.Request.Context(), c.Param("key")))
}

// PUT /admin/licenses/:key/unban
func (h *LicenseHandler) UnbanLicense(c *gin.Context) {
	h.respond(c)(h.adminService.Unban(c.Request.Context(), c.Param("key")))
}

// PUT /admin/licenses/:key/reset-binding
func (h *LicenseHandler) ResetBinding(c *gin.Context) {
	h.respond(c)(h.adminService.ResetBinding(c.Request.Context(), c.Param("key")))
}

// PUT /admin/licenses/:key/owner
func (h *LicenseHandler) AssignOwner(c *gin.Context) {
	var req services.AssignOwnerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.respond(c)(h.adminService.AssignOwner(c.Request.Context(), c.Param("key"), &req))
}

// DELETE /admin/licenses/:key
func (h *LicenseHandler) DeleteLicense(c *gin.Context) {
	if err := h.adminService.DeleteLicense(c.Request.Context(), c.Param("key")); err != nil {
		respondAdminError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /admin/licenses/:key/access-logs
func (h *LicenseHandler) GetAccessLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	logs, total, err := h.adminService.AccessLogs(c.Request.Context(), c.Param("key"), params)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}

func (h *LicenseHandler) respond(c *gin.Context) func(*models.License, error) {
	return func(license *models.License, err error) {
		if err != nil {
			respondAdminError(c, err)
			return
		}
		utils.SuccessResponse(c, gin.H{
			"license": license,
		})
	}
}
