package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// handleError renders every handler error as {"error": "..."}. Domain error
// kinds map to 400, 403 and 404; anything unclassified is a 500 whose detail
// is logged but not sent.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", routeOf(c)),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "writing error response", zap.Error(err))
	}
}

func statusOf(err error) (int, string) {
	var domainErr *sharedplan.Error
	if errors.As(err, &domainErr) {
		switch {
		case errors.Is(domainErr, sharedplan.ErrValidation):
			return http.StatusBadRequest, domainErr.Msg
		case errors.Is(domainErr, sharedplan.ErrForbidden):
			return http.StatusForbidden, domainErr.Msg
		case errors.Is(domainErr, sharedplan.ErrNotFound):
			return http.StatusNotFound, domainErr.Msg
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		if msg, ok := he.Message.(string); ok && msg != "" {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	return http.StatusInternalServerError, internalErrorMessage
}

func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// decodeBody reads a JSON request body into v. A missing body is reported
// only when required is set.
func decodeBody(c echo.Context, v any, required bool) error {
	err := c.Echo().JSONSerializer.Deserialize(c, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if required {
			return badRequest("Request body is required")
		}
		return nil
	default:
		return badRequest("Invalid request body")
	}
}
