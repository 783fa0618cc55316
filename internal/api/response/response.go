package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
)

// APIResponse is the envelope of every successful single-resource response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the envelope of every failed response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// PaginatedResponse is the envelope of list responses
type PaginatedResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    Meta        `json:"meta"`
}

// Meta contains pagination metadata
type Meta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// statusByCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	apperrors.CodeNotFound:            http.StatusNotFound,
	apperrors.CodeDuplicateEntry:      http.StatusConflict,
	apperrors.CodeInvalidInput:        http.StatusBadRequest,
	apperrors.CodeInvalidCriteria:     http.StatusBadRequest,
	apperrors.CodeMissingOrganization: http.StatusBadRequest,
	apperrors.CodeConcurrentUpdate:    http.StatusServiceUnavailable,
	apperrors.CodeUnauthorized:        http.StatusUnauthorized,
	apperrors.CodeForbidden:           http.StatusForbidden,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{Success: true, Data: data})
}

func failure(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Success: false, Error: message, Code: code})
}

// Success returns 200 with data
func Success(c echo.Context, data interface{}) error {
	return ok(c, http.StatusOK, data)
}

// Created returns 201 with data
func Created(c echo.Context, data interface{}) error {
	return ok(c, http.StatusCreated, data)
}

// Accepted returns 202 for work filed but not yet threaded
func Accepted(c echo.Context, data interface{}) error {
	return ok(c, http.StatusAccepted, data)
}

// NoContent returns 204
func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Paginated returns a page of data with its total
func Paginated(c echo.Context, data interface{}, total int64, limit, offset int) error {
	return c.JSON(http.StatusOK, PaginatedResponse{
		Success: true,
		Data:    data,
		Meta:    Meta{Total: total, Limit: limit, Offset: offset},
	})
}

// Error maps err to a status through its error code. The text of a 500 is
// replaced; details stay in the logs.
func Error(c echo.Context, err error) error {
	code := apperrors.GetErrorCode(err)
	status := statusFor(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	return failure(c, status, code, message)
}

// BadRequest returns 400 INVALID_INPUT
func BadRequest(c echo.Context, message string) error {
	return failure(c, http.StatusBadRequest, apperrors.CodeInvalidInput, message)
}

// NotFound returns 404 NOT_FOUND
func NotFound(c echo.Context, message string) error {
	return failure(c, http.StatusNotFound, apperrors.CodeNotFound, message)
}

// Conflict returns 409 DUPLICATE_ENTRY
func Conflict(c echo.Context, message string) error {
	return failure(c, http.StatusConflict, apperrors.CodeDuplicateEntry, message)
}

// InternalError returns 500 INTERNAL_ERROR
func InternalError(c echo.Context, message string) error {
	return failure(c, http.StatusInternalServerError, apperrors.CodeInternalError, message)
}
