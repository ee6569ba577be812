// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/utils"
)

// AdminHandler serves project management and the owner facing operations
// the chat bot relays.
type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// POST /admin/projects
func (h *AdminHandler) CreateProject(c *gin.Context) {
	var req services.CreateProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.adminService.CreateProject(c.Request.Context(), &req)
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"project": project,
	})
}

// GET /admin/projects
func (h *AdminHandler) GetProjects(c *gin.Context) {
	projects, err := h.adminService.ListProjects(c.Request.Context())
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"projects": projects,
	})
}

// POST /admin/owners/:owner/reset-binding
func (h *AdminHandler) ResetOwnerBindings(c *gin.Context) {
	reset, err := h.adminService.ResetOwnerBindings(c.Request.Context(), c.Param("owner"))
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"reset": reset,
	})
}

// GET /admin/owners/:owner/loader
func (h *AdminHandler) GetOwnerLoader(c *gin.Context) {
	loaders, err := h.adminService.OwnerLoaders(c.Request.Context(), c.Param("owner"))
	if err != nil {
		respondAdminError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"loaders": loaders,
	})
}
