package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/circle"
	"github.com/vasiliy-maslov/food-circles/internal/db"
	"github.com/vasiliy-maslov/food-circles/internal/geo"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	// Marshal first so a failure can still change the status code.
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func respondWithValidationErrors(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		log.Error().Err(err).Type("validation_error_type", err).Msg("handler: unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return
	}
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: formatValidationErrors(validationErrors),
	})
}

func formatValidationErrors(errs validator.ValidationErrors) []string {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("Field '%s' is required", fe.Field())
		case "min":
			msg = fmt.Sprintf("Field '%s' must contain at least %s entries", fe.Field(), fe.Param())
		case "gt":
			msg = fmt.Sprintf("Field '%s' must be greater than %s", fe.Field(), fe.Param())
		case "latitude":
			msg = fmt.Sprintf("Field '%s' must be a valid latitude", fe.Field())
		case "longitude":
			msg = fmt.Sprintf("Field '%s' must be a valid longitude", fe.Field())
		case "oneof":
			msg = fmt.Sprintf("Field '%s' must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
		default:
			msg = fmt.Sprintf("Field '%s' failed on the '%s' rule", fe.Field(), fe.Tag())
		}
		details = append(details, msg)
	}
	return details
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, circle.ErrInvalidItems),
		errors.Is(err, circle.ErrCityMismatch),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrNoChanges):
		return http.StatusBadRequest
	case errors.Is(err, circle.ErrScopeNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, order.ErrStatusAlreadySet):
		return http.StatusConflict
	case errors.Is(err, db.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the text shown to API clients for err. Errors that
// do not describe a client mistake are replaced with fallback.
func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return "Invalid coordinates"
	case errors.Is(err, circle.ErrInvalidItems):
		return err.Error()
	case errors.Is(err, circle.ErrCityMismatch):
		return "Establishment does not belong to the given city"
	case errors.Is(err, circle.ErrScopeNotFound):
		return err.Error()
	case errors.Is(err, order.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return "Invalid status transition"
	case errors.Is(err, order.ErrStatusAlreadySet):
		return "Status is already set"
	case errors.Is(err, order.ErrInvalidStatus):
		return "Unknown status"
	case errors.Is(err, order.ErrNoChanges):
		return "No changes requested"
	case errors.Is(err, db.ErrServiceUnavailable):
		return "Service temporarily unavailable"
	default:
		return fallback
	}
}

func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, fallback))
}
