package imaging

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gcasillas/clinical-imaging/internal/domain/source"
	"github.com/gcasillas/clinical-imaging/internal/platform/fhir"
)

type Handler struct {
	mapper *Mapper
}

func NewHandler(mapper *Mapper) *Handler {
	return &Handler{mapper: mapper}
}

// RegisterRoutes registers:
//
//	POST /fhir/ImagingStudy/$map - map DICOM JSON or an admission to ImagingStudy
func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.POST("/ImagingStudy/$map", h.MapStudy)
}

func (h *Handler) MapStudy(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	src, err := source.Decode(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, h.mapper.Map(src))
}
