package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/pagination"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/validator"
)

// Response is the standard JSON response envelope used across all services.
type Response struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *ErrorResponse `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp  time.Time   `json:"timestamp"`
	RequestID  string      `json:"requestId,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes a page of a list response.
type Pagination struct {
	TotalCount int  `json:"totalCount"`
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// now is replaced in tests.
var now = time.Now

func newMetadata(r *http.Request) Metadata {
	md := Metadata{Timestamp: now().UTC()}
	if r != nil {
		md.RequestID = logger.CorrelationIDFromContext(r.Context())
	}
	return md
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes data inside a successful envelope.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data, Metadata: newMetadata(r)})
}

// WritePage writes a page of items with pagination metadata.
func WritePage[T any](w http.ResponseWriter, r *http.Request, page pagination.Result[T]) {
	items := page.Data
	if items == nil {
		items = []T{}
	}
	md := newMetadata(r)
	md.Pagination = &Pagination{
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: items, Metadata: md})
}

// WriteFailure writes an error envelope with an explicit code and status.
func WriteFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, Response{
		Error:    &ErrorResponse{Code: code, Message: message},
		Metadata: newMetadata(r),
	})
}

// WriteError writes a standardized error response based on the error type.
// It handles AppError and the standard sentinels, and logs internal server
// errors. It prefers the request-scoped logger from context (set by the
// RequestLogger middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != http.StatusInternalServerError {
		WriteJSON(w, appErr.Status, Response{
			Error:    &ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
			Metadata: newMetadata(r),
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeInternal
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
	case status == http.StatusUnauthorized:
		code = apperrors.CodeUnauthorized
		message = "authentication required"
	case status == http.StatusForbidden:
		code = apperrors.CodeForbidden
		message = "access denied"
	case status == http.StatusServiceUnavailable:
		code = "SERVICE_UNAVAILABLE"
		message = "service temporarily unavailable"
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteFailure(w, r, status, code, message)
}

// WriteValidationError writes a standardized validation error response.
// It handles ValidationError from the validator package and returns field-level errors.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    apperrors.CodeValidation,
				Message: "request validation failed",
				Details: valErr.Fields(),
			},
			Metadata: newMetadata(r),
		})
		return
	}

	WriteFailure(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
}

// ParseUUID validates that the given string is a valid UUID and returns it.
// If invalid, it writes a 400 Bad Request response with code INVALID_PARAMETER
// and returns uuid.Nil plus false, signaling the caller to return early.
func ParseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteFailure(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid UUID: "+param)
		return uuid.Nil, false
	}
	return id, true
}
