package search

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smartsched/slotfinder/internal/platform/validation"
)

type Handler struct {
	engine    *Engine
	validator *validation.Validator
}

func NewHandler(engine *Engine, v *validation.Validator) *Handler {
	return &Handler{engine: engine, validator: v}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/search", h.Search)
	api.GET("/search", h.Search)
	api.GET("/slots/:id/booking", h.Booking)
}

// Search accepts the filter as a JSON body (POST) or query parameters (GET).
func (h *Handler) Search(c echo.Context) error {
	var f Filter
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid search filter")
	}
	f.Normalize()
	if err := f.Validate(h.validator); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"message": "invalid search filter",
				"errors":  verr.Fields,
			})
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.engine.Search(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Booking(c echo.Context) error {
	b, err := h.engine.Booking(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrSlotNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}
