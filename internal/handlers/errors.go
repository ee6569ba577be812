// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vistahub/license-gate/internal/i18n"
	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/utils"
)

// respondAdminError maps admin service errors onto the JSON envelope.
func respondAdminError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrLicenseNotFound):
		utils.NotFoundResponse(c, "license")
	case errors.Is(err, services.ErrProjectNotFound):
		utils.NotFoundResponse(c, "project")
	case errors.Is(err, services.ErrNoLicensesForOwner):
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", i18n.T(lang, i18n.KeyLicenseNoneForOwner), nil)
	case errors.Is(err, services.ErrProjectExists):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyProjectExists))
	case errors.Is(err, services.ErrOwnerTaken):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyLicenseOwnerTaken))
	case errors.Is(err, licensing.ErrNotBanned):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyLicenseNotBanned))
	case errors.Is(err, store.ErrConflict):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyLicenseConflict))
	case errors.Is(err, services.ErrUnsupportedPayloadRef):
		utils.BadRequestResponse(c, err.Error(), nil)
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Admin request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// bindAndValidate decodes the JSON body into req and writes the error
// response itself when it returns false.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}
