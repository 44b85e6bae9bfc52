package admission

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gcasillas/clinical-imaging/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the ingestion endpoint under root (POST /api/hl7) and
// the read API under api.
func (h *Handler) RegisterRoutes(root *echo.Group, api *echo.Group) {
	root.POST("/hl7", h.Ingest)

	api.POST("/hl7v2/ingest", h.Ingest)
	api.GET("/admissions", h.ListAdmissions)
	api.GET("/admissions/:id", h.GetAdmission)
}

// Ingest answers with the HL7 ACK as text/plain. Failures are 500 with an
// {"error"} body; malformed segments never reach here as they are absorbed
// by the extractor.
func (h *Handler) Ingest(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	ack, _, err := h.svc.Ingest(c.Request().Context(), body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.Blob(http.StatusOK, echo.MIMETextPlain, ack)
}

func (h *Handler) ListAdmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) GetAdmission(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "admission not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
