package hl7v2

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrNotHL7 is returned when the input cannot be read as an HL7v2 message at
// all. Missing or malformed individual segments are not errors.
var ErrNotHL7 = errors.New("hl7v2: input is not an HL7v2 message")

// segmentName matches a three character segment identifier (MSH, PID, ZPD, ...).
var segmentName = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}$`)

// Message represents a parsed HL7v2 message.
type Message struct {
	Type         string    // MSH-9 message type (e.g. "ADT^A01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.3")
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []Segment
	Raw          string
}

// Segment represents a single HL7v2 segment.
type Segment struct {
	Name   string // e.g. "MSH", "PID", "PV1"
	Fields []Field
}

// Field represents a field which can have components and repetitions.
type Field struct {
	Value      string
	Components []string   // Component-separated (^)
	Repeats    [][]string // Repetition-separated (~), each with components
}

// Parse parses raw HL7v2 message bytes into a structured Message.
//
// Segments are separated by \r; \n and \r\n are accepted too. Lines that do
// not look like a segment are skipped and MSH is not required to come first,
// so a message missing MSH or PID still parses. Parse only fails, with
// ErrNotHL7, when no line at all can be read as a segment.
func Parse(raw []byte) (*Message, error) {
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrNotHL7)
	}

	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	msg := &Message{Raw: string(raw)}
	for _, line := range strings.Split(text, "\r") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seg, ok := parseSegment(line)
		if !ok {
			continue
		}
		msg.Segments = append(msg.Segments, seg)
	}

	if len(msg.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments found", ErrNotHL7)
	}

	msg.extractMSHFields()
	return msg, nil
}

// parseSegment parses a single segment line. It reports false when the line
// does not start with a segment identifier followed by a field separator.
func parseSegment(line string) (Segment, bool) {
	if len(line) < 3 || !segmentName.MatchString(line[:3]) {
		return Segment{}, false
	}
	if len(line) > 3 && line[3] != '|' {
		return Segment{}, false
	}

	seg := Segment{Name: line[:3]}
	if len(line) <= 4 {
		return seg, true
	}

	rest := line[4:]
	if seg.Name == "MSH" {
		// MSH-1 is the field separator itself, so MSH-2 (encoding characters)
		// is the first element after "MSH|".
		seg.Fields = append(seg.Fields, Field{Value: "|", Components: []string{"|"}})
	}
	for _, part := range strings.Split(rest, "|") {
		seg.Fields = append(seg.Fields, parseField(part))
	}
	return seg, true
}

// parseField parses a single field, handling components (^) and repetitions (~).
func parseField(raw string) Field {
	f := Field{Value: raw}

	for _, rep := range strings.Split(raw, "~") {
		f.Repeats = append(f.Repeats, strings.Split(rep, "^"))
	}
	f.Components = f.Repeats[0]

	return f
}

// extractMSHFields copies the commonly used MSH fields onto the Message. A
// message without MSH leaves them empty.
func (m *Message) extractMSHFields() {
	msh := m.GetSegment("MSH")
	if msh == nil {
		return
	}

	m.SendingApp = msh.GetField(3)
	m.SendingFac = msh.GetField(4)
	m.ReceivingApp = msh.GetField(5)
	m.ReceivingFac = msh.GetField(6)

	if ts := msh.GetField(7); ts != "" {
		if t, err := parseHL7Timestamp(ts); err == nil {
			m.Timestamp = t
		}
	}

	m.Type = msh.GetField(9)
	m.ControlID = msh.GetField(10)
	m.Version = msh.GetField(12)
}

// parseHL7Timestamp parses an HL7v2 timestamp string (YYYYMMDDHHmmss or YYYYMMDD).
func parseHL7Timestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}

// GetSegment returns the first segment with the given name, or nil if not found.
func (m *Message) GetSegment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// GetSegments returns all segments with the given name.
func (m *Message) GetSegments(name string) []Segment {
	var result []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			result = append(result, seg)
		}
	}
	return result
}

// Field returns a field by its 1-based HL7 index (PID-3 is Field(3)). For MSH,
// Field(1) is the field separator.
func (s *Segment) Field(index int) (Field, bool) {
	idx := index - 1
	if idx < 0 || idx >= len(s.Fields) {
		return Field{}, false
	}
	return s.Fields[idx], true
}

// GetField returns the raw value of a field by 1-based index, or "".
func (s *Segment) GetField(index int) string {
	f, ok := s.Field(index)
	if !ok {
		return ""
	}
	return f.Value
}

// GetComponent returns a component value by 1-based field and component indices.
func (s *Segment) GetComponent(fieldIdx, compIdx int) string {
	f, ok := s.Field(fieldIdx)
	if !ok {
		return ""
	}
	ci := compIdx - 1
	if ci < 0 || ci >= len(f.Components) {
		return ""
	}
	return f.Components[ci]
}

// PatientID returns PID-3.1 (the first component of the patient identifier field).
func (m *Message) PatientID() string {
	pid := m.GetSegment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetComponent(3, 1)
}

// PatientNameField returns the raw PID-5 value and whether PID-5 is present.
func (m *Message) PatientNameField() (string, bool) {
	pid := m.GetSegment("PID")
	if pid == nil {
		return "", false
	}
	f, ok := pid.Field(5)
	if !ok {
		return "", false
	}
	return f.Value, true
}
