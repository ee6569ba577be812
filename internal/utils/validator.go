// internal/utils/validator.go
package utils

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var projectNamePattern = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

func init() {
	validate = validator.New()
	validate.RegisterValidation("project_name", validateProjectName)
	validate.RegisterValidation("payload_ref", validatePayloadRef)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateProjectName(fl validator.FieldLevel) bool {
	name := fl.Field().String()

	// Project names are used as chat command arguments: no spaces, 2-100 characters
	if len(name) < 2 || len(name) > 100 {
		return false
	}
	return projectNamePattern.MatchString(name)
}

// validatePayloadRef accepts http(s) URLs and s3://bucket/key references.
func validatePayloadRef(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return true
	case "s3":
		return strings.Trim(u.Path, "/") != ""
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "project_name":
		return "Project name must be 2-100 characters and contain only letters, numbers, dashes, and underscores"
	case "payload_ref":
		return "Payload reference must be an http(s) URL or an s3://bucket/key reference"
	default:
		return e.Field() + " is invalid"
	}
}
