// Package handlers provides HTTP API handlers for the joingate admin API.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/joingate/internal/auth"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/panel"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// RequireOperator extracts the operator id from the token and checks the allow-list.
func RequireOperator(c echo.Context, operators *panel.Operators) (int64, error) {
	operatorID, err := auth.OperatorIDFromContext(c)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if !operators.Contains(operatorID) {
		return 0, echo.NewHTTPError(http.StatusForbidden, "not an operator")
	}
	return operatorID, nil
}

// channelIDParam validates the :id path parameter.
func channelIDParam(c echo.Context) (string, error) {
	id, err := channels.NormalizeID(c.Param("id"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return id, nil
}

// parseWindow accepts Go durations plus a whole-day form such as "30d". Empty means unbounded.
func parseWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return d, nil
}

func isInvalidID(err error) bool {
	return errors.Is(err, channels.ErrInvalidID)
}
