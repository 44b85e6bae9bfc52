package hl7v2

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gcasillas/clinical-imaging/internal/platform/fhir"
)

// Handler serves an inspection view of the parser, used to check what the
// gateway reads out of a feed message before it is ingested.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes mounts POST /hl7v2/parse on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7v2/parse", h.ParseMessage)
}

// Inspection is the parse result. Fields are keyed by HL7 position
// ("PID-3"), empty fields are omitted.
type Inspection struct {
	Header    Header             `json:"header"`
	PatientID string             `json:"patientId,omitempty"`
	Segments  []InspectedSegment `json:"segments"`
}

type Header struct {
	MessageType     string `json:"messageType,omitempty"`
	ControlID       string `json:"controlId,omitempty"`
	Version         string `json:"version,omitempty"`
	SendingApp      string `json:"sendingApp,omitempty"`
	SendingFacility string `json:"sendingFacility,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

type InspectedSegment struct {
	Name   string                    `json:"name"`
	Fields map[string]InspectedField `json:"fields,omitempty"`
}

type InspectedField struct {
	Value      string   `json:"value"`
	Components []string `json:"components,omitempty"`
	Repeats    int      `json:"repeats,omitempty"`
}

// Inspect builds the position-keyed view of msg.
func Inspect(msg *Message) Inspection {
	out := Inspection{
		Header: Header{
			MessageType:     msg.Type,
			ControlID:       msg.ControlID,
			Version:         msg.Version,
			SendingApp:      msg.SendingApp,
			SendingFacility: msg.SendingFac,
		},
		PatientID: msg.PatientID(),
		Segments:  make([]InspectedSegment, 0, len(msg.Segments)),
	}
	if !msg.Timestamp.IsZero() {
		out.Header.Timestamp = msg.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	}

	for _, seg := range msg.Segments {
		is := InspectedSegment{Name: seg.Name}
		for i, f := range seg.Fields {
			if f.Value == "" {
				continue
			}
			if is.Fields == nil {
				is.Fields = make(map[string]InspectedField)
			}
			field := InspectedField{Value: f.Value}
			if len(f.Components) > 1 {
				field.Components = f.Components
			}
			if len(f.Repeats) > 1 {
				field.Repeats = len(f.Repeats)
			}
			is.Fields[fmt.Sprintf("%s-%d", seg.Name, i+1)] = field
		}
		out.Segments = append(out.Segments, is)
	}
	return out
}

// ParseMessage reads a raw message body and returns its Inspection. Input
// that holds no segment is answered with a 400 OperationOutcome.
func (h *Handler) ParseMessage(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("could not read request body"))
	}

	msg, err := Parse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, Inspect(msg))
}
