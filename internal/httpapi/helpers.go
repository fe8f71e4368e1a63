package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeUnreadable(c *echo.Context, msg string) error {
	return writeError(c, http.StatusUnprocessableEntity, "decode_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": apiError{Message: msg, Type: errType},
	})
}
