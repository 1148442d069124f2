package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/panel"
)

// LedgerReader is the read side of the request ledger.
type LedgerReader interface {
	Pending(ctx context.Context, channelID string, window time.Duration) ([]int64, error)
	Summarize(ctx context.Context, channelID string) (ledger.Summary, error)
}

// ChannelsHandler serves the channel registry and pending-request queries.
type ChannelsHandler struct {
	registry  channels.Store
	ledger    LedgerReader
	operators *panel.Operators
	logger    *slog.Logger
}

// ListChannelsResponse is the body of GET /channels.
type ListChannelsResponse struct {
	Items []channels.Record `json:"items"`
}

// ChannelDetailResponse is the body of GET /channels/:id.
type ChannelDetailResponse struct {
	Channel channels.Record `json:"channel"`
	Stats   ledger.Summary  `json:"stats"`
}

// PendingResponse is the body of GET /channels/:id/pending.
type PendingResponse struct {
	ChannelID string  `json:"channel_id"`
	Window    string  `json:"window,omitempty"`
	Count     int     `json:"count"`
	Users     []int64 `json:"users"`
}

// NewChannelsHandler creates a channels handler.
func NewChannelsHandler(log *slog.Logger, registry channels.Store, ledger LedgerReader, operators *panel.Operators) *ChannelsHandler {
	return &ChannelsHandler{
		registry:  registry,
		ledger:    ledger,
		operators: operators,
		logger:    log.With(slog.String("handler", "channels")),
	}
}

// Register mounts the /channels routes.
func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/channels")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Delete)
	group.GET("/:id/pending", h.Pending)
}

// List godoc
// @Summary List channels
// @Tags channels
// @Success 200 {object} ListChannelsResponse
// @Failure 403 {object} ErrorResponse
// @Router /channels [get]
func (h *ChannelsHandler) List(c echo.Context) error {
	if _, err := RequireOperator(c, h.operators); err != nil {
		return err
	}
	items, err := h.registry.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []channels.Record{}
	}
	return c.JSON(http.StatusOK, ListChannelsResponse{Items: items})
}

// Get godoc
// @Summary Get channel with request statistics
// @Tags channels
// @Param id path string true "Channel ID"
// @Success 200 {object} ChannelDetailResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /channels/{id} [get]
func (h *ChannelsHandler) Get(c echo.Context) error {
	if _, err := RequireOperator(c, h.operators); err != nil {
		return err
	}
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rec, found, err := h.registry.Load(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	stats, err := h.ledger.Summarize(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChannelDetailResponse{Channel: rec, Stats: stats})
}

// Delete godoc
// @Summary Remove channel from the registry
// @Tags channels
// @Param id path string true "Channel ID"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse
// @Router /channels/{id} [delete]
func (h *ChannelsHandler) Delete(c echo.Context) error {
	operatorID, err := RequireOperator(c, h.operators)
	if err != nil {
		return err
	}
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}
	if err := h.registry.Delete(c.Request().Context(), id); err != nil {
		if isInvalidID(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("channel removed", slog.String("channel_id", id), slog.Int64("operator_id", operatorID))
	return c.NoContent(http.StatusNoContent)
}

// Pending godoc
// @Summary List users with pending join requests
// @Tags channels
// @Param id path string true "Channel ID"
// @Param window query string false "Lookback window, e.g. 24h or 30d"
// @Success 200 {object} PendingResponse
// @Failure 400 {object} ErrorResponse
// @Router /channels/{id}/pending [get]
func (h *ChannelsHandler) Pending(c echo.Context) error {
	if _, err := RequireOperator(c, h.operators); err != nil {
		return err
	}
	id, err := channelIDParam(c)
	if err != nil {
		return err
	}
	raw := c.QueryParam("window")
	window, err := parseWindow(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	users, err := h.ledger.Pending(c.Request().Context(), id, window)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if users == nil {
		users = []int64{}
	}
	return c.JSON(http.StatusOK, PendingResponse{ChannelID: id, Window: raw, Count: len(users), Users: users})
}
