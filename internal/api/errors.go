package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/importer"
	"github.com/phrazzld/recall-api/internal/service"
	"github.com/phrazzld/recall-api/internal/service/auth"
	"github.com/phrazzld/recall-api/internal/store"
)

const genericErrorMessage = "An unexpected error occurred"

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error kind. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError

	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Import file errors
	case errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrMissingHeader),
		errors.Is(err, importer.ErrMalformedFile):
		return http.StatusBadRequest
	case errors.Is(err, importer.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge
	}

	switch service.Classify(err) {
	case service.ErrInvalidInput:
		return http.StatusBadRequest
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrConflict:
		return http.StatusConflict
	case service.ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	// Import file errors carry no user data
	case errors.Is(err, importer.ErrUnsupportedFormat):
		return "Unsupported import format; upload a .csv or .xlsx file"
	case errors.Is(err, importer.ErrMissingHeader):
		return "Import file must start with a header row containing a name column"
	case errors.Is(err, importer.ErrMalformedFile):
		return "Import file could not be read"
	case errors.Is(err, importer.ErrTooManyRows):
		return "Import file has too many rows"
	}

	switch service.Classify(err) {
	case service.ErrForbidden:
		return "Insufficient role"
	case service.ErrNotFound:
		return notFoundMessage(err)
	case service.ErrConflict:
		return conflictMessage(err)
	case service.ErrInvalidInput:
		return invalidInputMessage(err)
	default:
		return genericErrorMessage
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrCardNotFound):
		return "Card not found"
	case errors.Is(err, store.ErrCatalogItemNotFound):
		return "Catalog item not found"
	case errors.Is(err, store.ErrCardTypeNotFound):
		return "Card type not found"
	case errors.Is(err, store.ErrChangeRequestNotFound):
		return "Change request not found"
	default:
		return "Resource not found"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrChangeRequestNotPending):
		return "Change request is not pending"
	case errors.Is(err, store.ErrItemInUse):
		return "Catalog item is in use"
	case errors.Is(err, store.ErrCatalogItemExists):
		return "Catalog item already exists"
	default:
		return "Request conflicts with current state"
	}
}

// domainValidationErrors are sentinels whose text is written for clients.
var domainValidationErrors = []error{
	domain.ErrInvalidQuality,
	domain.ErrInvalidItemCode,
	domain.ErrItemNameEmpty,
	domain.ErrInvalidChangeRequestKind,
	domain.ErrInvalidChangeRequestStatus,
	domain.ErrTargetCodeNotAllowed,
	domain.ErrTargetCodeRequired,
	domain.ErrEmptyUpdate,
	domain.ErrInvalidPayload,
	domain.ErrUnknownRole,
}

// invalidInputMessage prefers the most specific client-facing validation text
// in the chain. Import failures keep the row they came from.
func invalidInputMessage(err error) string {
	msg := "Invalid request"

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Error()
	} else {
		for _, sentinel := range domainValidationErrors {
			if errors.Is(err, sentinel) {
				msg = sentinel.Error()
				for _, base := range []error{domain.ErrValidation, domain.ErrInvalidFormat} {
					msg = strings.TrimPrefix(msg, base.Error()+": ")
				}
				break
			}
		}
	}

	var se *service.ServiceError
	if errors.As(err, &se) && strings.HasPrefix(se.Message, "row ") {
		return fmt.Sprintf("%s: %s", se.Message, msg)
	}
	return msg
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail. A non-empty fallback replaces the generic 500 message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'DecisionRequest.Approved' Error:Field validation for 'Approved' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
