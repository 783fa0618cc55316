package handlers

import (
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/api/response"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/validator"
)

// pagination reads limit and offset query parameters
func pagination(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return validator.ValidatePagination(limit, offset)
}

// fail writes err as an API error. Errors that map to a 500 are logged
// because the response body hides them.
func fail(c echo.Context, logger *slog.Logger, err error, msg string) error {
	if apperrors.GetErrorCode(err) == apperrors.CodeInternalError && logger != nil {
		logger.Error(msg,
			slog.String("organization_id", middleware.OrganizationID(c)),
			slog.String("path", c.Path()),
			slog.Any("error", err))
	}
	return response.Error(c, err)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
