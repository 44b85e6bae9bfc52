package workqueue

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const demoKey = "study:1.2.840.113619.2.203.4.2147483647"

func newSessionContext(e *echo.Echo, method, path, body, id string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestHandler_ListItems(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedAdmissions(t, store)
	h := NewHandler(coord)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workqueue/items", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListItems(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var items []Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(items) != 3 || items[0].Key != demoKey {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestHandler_SessionFlow(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workqueue/sessions", nil)
	rec := httptest.NewRecorder()
	if err := h.OpenSession(e.NewContext(req, rec)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var opened View
	json.Unmarshal(rec.Body.Bytes(), &opened)
	if opened.SessionID == "" || opened.Selected {
		t.Fatalf("unexpected opened view %+v", opened)
	}

	c, rec := newSessionContext(e, http.MethodPost, "/select", `{"itemKey":"`+demoKey+`"}`, opened.SessionID)
	if err := h.Select(c); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	var selected View
	json.Unmarshal(rec.Body.Bytes(), &selected)
	if !selected.Selected || !selected.OverlayAvailable || selected.OverlayVisible {
		t.Errorf("unexpected selected view %+v", selected)
	}
	if selected.Finding == nil || selected.Finding.Status != "ANOMALY_DETECTED" {
		t.Errorf("expected anomaly finding, got %+v", selected.Finding)
	}

	c, rec = newSessionContext(e, http.MethodPost, "/overlay", "", opened.SessionID)
	if err := h.ToggleOverlay(c); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	var toggled OverlayResponse
	json.Unmarshal(rec.Body.Bytes(), &toggled)
	if !toggled.Toggled || !toggled.OverlayVisible {
		t.Errorf("expected overlay toggled on, got %+v", toggled)
	}

	c, rec = newSessionContext(e, http.MethodDelete, "/", "", opened.SessionID)
	if err := h.CloseSession(c); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_SelectRecord(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()
	id := coord.Open()

	body := `{"record":{"00100010":{"vr":"PN","Value":[{"Alphabetic":"DOE^JANE"}]},"0020000D":{"vr":"UI","Value":["9.9.9"]}}}`
	c, rec := newSessionContext(e, http.MethodPost, "/select", body, id.String())
	if err := h.Select(c); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	var v View
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Study == nil || v.Study.ID != "fhir-9.9.9" {
		t.Errorf("unexpected study %+v", v.Study)
	}
	if v.OverlayAvailable {
		t.Error("expected no overlay control for a normal finding")
	}

	c, rec = newSessionContext(e, http.MethodPost, "/overlay", "", id.String())
	if err := h.ToggleOverlay(c); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp OverlayResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Toggled || resp.OverlayVisible {
		t.Errorf("expected toggle to have no effect, got %+v", resp)
	}
}

func TestHandler_SelectErrors(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()
	id := coord.Open().String()

	tests := []struct {
		name string
		id   string
		body string
		code int
	}{
		{"bad session id", "not-a-uuid", `{"itemKey":"` + demoKey + `"}`, http.StatusBadRequest},
		{"unknown session", uuid.NewString(), `{"itemKey":"` + demoKey + `"}`, http.StatusNotFound},
		{"unknown item", id, `{"itemKey":"study:nope"}`, http.StatusNotFound},
		{"empty request", id, `{}`, http.StatusBadRequest},
		{"bad record", id, `{"record":[1,2]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newSessionContext(e, http.MethodPost, "/select", tt.body, tt.id)
			err := h.Select(c)
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected HTTPError, got %v", err)
			}
			if he.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, he.Code)
			}
		})
	}
}

func TestHandler_GetSession_NotFound(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()

	c, _ := newSessionContext(e, http.MethodGet, "/", "", uuid.NewString())
	err := h.GetSession(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}
}

func TestHandler_RegisterStudy(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()

	body := `{"00100010":{"vr":"PN","Value":[{"Alphabetic":"ROE^RICK"}]},"0020000d":{"vr":"UI","Value":["1.2.3.4"]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/studies", strings.NewReader(body))
	rec := httptest.NewRecorder()
	if err := h.RegisterStudy(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var item Item
	json.Unmarshal(rec.Body.Bytes(), &item)
	if item.Key != "study:1.2.3.4" || item.Kind != KindStudy {
		t.Errorf("unexpected item %+v", item)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/studies", strings.NewReader(`{"bad key":{}}`))
	err := h.RegisterStudy(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-DICOM keys, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	h := NewHandler(coord)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+":"+r.Path] = true
	}
	expected := []string{
		"GET:/api/v1/workqueue/items",
		"POST:/api/v1/workqueue/sessions",
		"GET:/api/v1/workqueue/sessions/:id",
		"DELETE:/api/v1/workqueue/sessions/:id",
		"POST:/api/v1/workqueue/sessions/:id/select",
		"POST:/api/v1/workqueue/sessions/:id/overlay",
		"POST:/api/v1/studies",
	}
	for _, path := range expected {
		if !routes[path] {
			t.Errorf("missing route %s", path)
		}
	}
}
