// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Licenses
	KeyLicenseNotFound     = "license.not_found"
	KeyLicenseNotBanned    = "license.not_banned"
	KeyLicenseOwnerTaken   = "license.owner_taken"
	KeyLicenseNoneForOwner = "license.none_for_owner"
	KeyLicenseConflict     = "license.conflict"

	// Projects
	KeyProjectNotFound = "project.not_found"
	KeyProjectExists   = "project.exists"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyRateLimited       = "rate_limit.exceeded"
)

// ReasonKey is the catalogue key of a verification reason message.
func ReasonKey(reason string) string {
	return "reason." + reason
}
