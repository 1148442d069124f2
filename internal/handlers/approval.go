package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/panel"
)

// Approver runs approval batches.
type Approver interface {
	ApproveAll(ctx context.Context, channelID string) (approval.Result, error)
	ApproveSample(ctx context.Context, channelID string, n int) (approval.Result, error)
}

// ApprovalHandler triggers approval batches over HTTP.
type ApprovalHandler struct {
	approver  Approver
	operators *panel.Operators
	logger    *slog.Logger
}

// NewApprovalHandler creates an approval handler.
func NewApprovalHandler(log *slog.Logger, approver Approver, operators *panel.Operators) *ApprovalHandler {
	return &ApprovalHandler{
		approver:  approver,
		operators: operators,
		logger:    log.With(slog.String("handler", "approval")),
	}
}

// Register mounts POST /channels/:id/approve.
func (h *ApprovalHandler) Register(e *echo.Echo) {
	e.POST("/channels/:id/approve", h.Approve)
}

// Approve godoc
// @Summary Approve pending join requests
// @Description Approves every pending request, or a random sample when count is given
// @Tags approval
// @Param id path string true "Channel ID"
// @Param count query int false "Sample size"
// @Success 200 {object} approval.Result
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /channels/{id}/approve [post]
func (h *ApprovalHandler) Approve(c echo.Context) error {
	operatorID, err := RequireOperator(c, h.operators)
	if err != nil {
		return err
	}
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}
	// A started batch runs to completion even if the client goes away.
	ctx := context.WithoutCancel(c.Request().Context())

	var res approval.Result
	if raw := strings.TrimSpace(c.QueryParam("count")); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "count must be an integer")
		}
		res, err = h.approver.ApproveSample(ctx, id, n)
	} else {
		res, err = h.approver.ApproveAll(ctx, id)
	}
	switch {
	case errors.Is(err, approval.ErrInvalidCount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrNotChannelAdmin):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	h.logger.Info("approval requested over api",
		slog.String("channel_id", id),
		slog.Int64("operator_id", operatorID),
		slog.String("batch_id", res.BatchID))
	return c.JSON(http.StatusOK, res)
}
