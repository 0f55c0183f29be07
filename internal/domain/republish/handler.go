package republish

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

type Handler struct {
	builder *Builder
	logger  zerolog.Logger
}

func NewHandler(builder *Builder, logger zerolog.Logger) *Handler {
	return &Handler{builder: builder, logger: logger.With().Str("component", "republish").Logger()}
}

// RegisterRoutes mounts the manifest and data files on g, which should be
// the group whose prefix matches the builder's data path parent.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/$bulk-publish", h.Manifest)
	g.GET("/data/:file", h.Data)
}

func (h *Handler) Manifest(c echo.Context) error {
	req := c.Request()
	m, err := h.builder.Manifest(req.Context(), ManifestRequest{
		Method:  req.Method,
		Path:    req.URL.Path,
		BaseURL: BaseURL(c),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("build manifest")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to build manifest"))
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Data(c echo.Context) error {
	file := c.Param("file")
	typ, ok := strings.CutSuffix(file, ".ndjson")
	if !ok {
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome("error", "not-found", "unknown file "+file))
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, fhir.NDJSONContentType)
	n, err := h.builder.Export(c.Request().Context(), typ, res)
	switch {
	case errors.Is(err, ErrUnknownType):
		res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome("error", "not-found", "unknown file "+file))
	case err != nil && !res.Committed:
		res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		h.logger.Error().Err(err).Str("type", typ).Msg("export failed")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("export failed"))
	case err != nil:
		h.logger.Error().Err(err).Str("type", typ).Int("written", n).Msg("export aborted mid-stream")
		return nil
	}
	if !res.Committed {
		// empty collection
		res.WriteHeader(http.StatusOK)
	}
	return nil
}

// BaseURL is the scheme and host the client addressed. The scheme honors
// X-Forwarded-Proto.
func BaseURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}
