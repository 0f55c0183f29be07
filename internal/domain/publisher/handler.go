package publisher

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the manual trigger and the last cycle's result.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sync", h.Trigger)
	api.GET("/sync/status", h.Status)
}

// Trigger runs a cycle synchronously. It is detached from the request
// context so a client disconnect does not abort a half-written cycle.
func (h *Handler) Trigger(c echo.Context) error {
	res := h.engine.Sync(context.WithoutCancel(c.Request().Context()))
	if res.Skipped {
		if res.Error != "" {
			return echo.NewHTTPError(http.StatusServiceUnavailable, res.Error)
		}
		return echo.NewHTTPError(http.StatusConflict, "sync already in progress")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Status(c echo.Context) error {
	last := h.engine.LastResult()
	if last == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "pending",
			"publishers": h.engine.Publishers(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "completed",
		"publishers": h.engine.Publishers(),
		"last":       last,
	})
}
