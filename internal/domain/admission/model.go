package admission

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an admission.
type Status string

const (
	StatusAdmitted Status = "Admitted"
)

// SourceHL7Ingestion tags records written by the HL7 ingestion path.
const SourceHL7Ingestion = "HL7_VERIFIED_INGESTION"

// ErrNotFound is returned by stores when no record exists for an identifier.
var ErrNotFound = errors.New("admission not found")

// Record is a patient admission derived from an inbound HL7v2 message. It is
// upserted keyed by ID and never deleted here.
type Record struct {
	ID          string    `json:"id"`
	FullName    string    `json:"fullName"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
	ControlID   string    `json:"controlId,omitempty"`
}

// SubjectName returns the patient display name.
func (r *Record) SubjectName() string {
	if r == nil {
		return ""
	}
	return r.FullName
}
