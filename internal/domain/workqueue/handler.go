package workqueue

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gcasillas/clinical-imaging/internal/domain/source"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

type Handler struct {
	coord *Coordinator
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

// RegisterRoutes registers:
//
//	GET    /api/v1/workqueue/items
//	POST   /api/v1/workqueue/sessions
//	GET    /api/v1/workqueue/sessions/:id
//	DELETE /api/v1/workqueue/sessions/:id
//	POST   /api/v1/workqueue/sessions/:id/select
//	POST   /api/v1/workqueue/sessions/:id/overlay
//	POST   /api/v1/studies
func (h *Handler) RegisterRoutes(api *echo.Group) {
	wq := api.Group("/workqueue")
	wq.GET("/items", h.ListItems)
	wq.POST("/sessions", h.OpenSession)
	wq.GET("/sessions/:id", h.GetSession)
	wq.DELETE("/sessions/:id", h.CloseSession)
	wq.POST("/sessions/:id/select", h.Select)
	wq.POST("/sessions/:id/overlay", h.ToggleOverlay)

	api.POST("/studies", h.RegisterStudy)
}

func (h *Handler) ListItems(c echo.Context) error {
	items, err := h.coord.Items(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) OpenSession(c echo.Context) error {
	snap, err := h.coord.Get(h.coord.Open())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, Project(snap))
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	snap, err := h.coord.Get(id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, Project(snap))
}

func (h *Handler) CloseSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.coord.Close(id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SelectRequest names a list item, or carries a record to select directly.
type SelectRequest struct {
	ItemKey string          `json:"itemKey"`
	Record  json.RawMessage `json:"record"`
}

func (h *Handler) Select(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var req SelectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var snap Snapshot
	switch {
	case req.ItemKey != "":
		snap, err = h.coord.SelectItem(c.Request().Context(), id, req.ItemKey)
	case len(req.Record) > 0:
		src, decErr := source.Decode(req.Record)
		if decErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, decErr.Error())
		}
		snap, err = h.coord.SelectRecord(id, src)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "itemKey or record is required")
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, Project(snap))
}

// OverlayResponse reports whether the toggle took effect.
type OverlayResponse struct {
	View
	Toggled bool `json:"toggled"`
}

func (h *Handler) ToggleOverlay(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	snap, toggled, err := h.coord.ToggleOverlay(id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, OverlayResponse{View: Project(snap), Toggled: toggled})
}

func (h *Handler) RegisterStudy(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	md, err := dicomweb.Parse(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, h.coord.AddStudy(md))
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnknownItem):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
