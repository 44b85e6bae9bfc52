package annotation

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gcasillas/clinical-imaging/internal/domain/source"
)

type Handler struct {
	annotator Annotator
}

func NewHandler(annotator Annotator) *Handler {
	return &Handler{annotator: annotator}
}

// RegisterRoutes registers:
//
//	POST /api/v1/annotations - annotate DICOM JSON or an admission record
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/annotations", h.Annotate)
}

func (h *Handler) Annotate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	src, err := source.Decode(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.annotator.Annotate(src))
}
