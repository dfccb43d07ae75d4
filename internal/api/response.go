// Package api holds the JSON response helpers shared by the HTTP handlers.
// Bodies are flat: a result object, {"message": ...} or {"error": ...}.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cloo-solutions/deskrag/internal/domain"
)

const genericErrorMessage = "internal server error"

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a human-readable outcome such as "Chunk deleted".
type MessageResponse struct {
	Message string `json:"message"`
}

// statusByCode maps domain error codes to HTTP statuses. Codes not listed,
// including provider failures, are 500s.
var statusByCode = map[string]int{
	domain.ErrCodeValidation:          http.StatusBadRequest,
	domain.ErrCodeUnsupportedFileType: http.StatusBadRequest,
	domain.ErrCodeNotFound:            http.StatusNotFound,
	domain.ErrCodeFileTooLarge:        http.StatusRequestEntityTooLarge,
	domain.ErrCodeDecodeFailure:       http.StatusUnprocessableEntity,
}

// JSON writes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: failed to encode %d response: %v", status, err)
	}
}

// Message writes {"message": message}.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, MessageResponse{Message: message})
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP returns the status for err. Wrapped domain errors are
// found with errors.As; anything else is a 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		if status, ok := statusByCode[de.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// ErrorMessage returns what a client may see for err: the domain message
// without its cause, or a generic text for everything else.
func ErrorMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return genericErrorMessage
}

// HandleError writes err as an error response with its mapped status.
func HandleError(w http.ResponseWriter, err error) {
	Error(w, DomainErrorToHTTP(err), ErrorMessage(err))
}
