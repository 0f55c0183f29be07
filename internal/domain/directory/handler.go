package directory

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smartsched/slotfinder/pkg/pagination"
)

// Handler exposes read-only browsing of the aggregated collections.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/locations", h.ListLocations)
	api.GET("/locations/:id", h.GetLocation)
	api.GET("/practitioner-roles", h.ListPractitionerRoles)
	api.GET("/practitioner-roles/:id", h.GetPractitionerRole)
	api.GET("/schedules", h.ListSchedules)
	api.GET("/slots", h.ListSlots)
	api.GET("/stats", h.Stats)
}

func (h *Handler) ListLocations(c echo.Context) error {
	items, err := h.store.Locations.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page(c, items))
}

func (h *Handler) GetLocation(c echo.Context) error {
	loc, err := h.store.Locations.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) ListPractitionerRoles(c echo.Context) error {
	items, err := h.store.PractitionerRoles.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page(c, items))
}

func (h *Handler) GetPractitionerRole(c echo.Context) error {
	role, err := h.store.PractitionerRoles.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "practitioner role not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, role)
}

func (h *Handler) ListSchedules(c echo.Context) error {
	items, err := h.store.Schedules.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page(c, items))
}

func (h *Handler) ListSlots(c echo.Context) error {
	items, err := h.store.Slots.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page(c, items))
}

func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.store.Counts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}

func page[T any](c echo.Context, items []T) *pagination.Response {
	p := pagination.FromContext(c)
	return pagination.NewResponse(pagination.Slice(items, p), len(items), p.Limit, p.Offset)
}
