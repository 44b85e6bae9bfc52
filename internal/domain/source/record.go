// Package source holds the unit of clinical data that flows through the
// workqueue: either raw DICOMweb study metadata or a stored admission.
package source

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

// ErrUnrecognized is returned by Decode for payloads that are neither DICOM
// JSON nor an admission record.
var ErrUnrecognized = errors.New("source: payload is neither DICOM JSON nor an admission record")

// Record is one source record. A record whose Study carries a patient name is
// read as DICOM; anything else is read as an admission.
type Record struct {
	Study     dicomweb.Metadata
	Admission *admission.Record
}

// FromStudy wraps study metadata.
func FromStudy(md dicomweb.Metadata) Record {
	return Record{Study: md}
}

// FromAdmission wraps an admission record.
func FromAdmission(rec *admission.Record) Record {
	return Record{Admission: rec}
}

// IsStudy reports whether r is read as DICOM study metadata.
func (r Record) IsStudy() bool {
	return r.Study.Has(dicomweb.TagPatientName)
}

// SubjectName returns the patient name: the Alphabetic component of
// 00100010 for studies, the admission full name otherwise, or "".
func (r Record) SubjectName() string {
	if r.IsStudy() {
		name, _ := r.Study.PersonName(dicomweb.TagPatientName)
		return name
	}
	return r.Admission.SubjectName()
}

// StudyInstanceUID returns 0020000D, or "" when absent.
func (r Record) StudyInstanceUID() string {
	uid, _ := r.Study.String(dicomweb.TagStudyInstanceUID)
	return uid
}

// MarshalJSON renders the record in the shape it was received in.
func (r Record) MarshalJSON() ([]byte, error) {
	switch {
	case r.Study != nil:
		return json.Marshal(r.Study)
	case r.Admission != nil:
		return json.Marshal(r.Admission)
	default:
		return []byte("{}"), nil
	}
}

// Decode reads a request payload. An object carrying the patient name tag
// 00100010 is a study, whatever else it holds; non-tag keys and malformed
// attributes in it are ignored. Other objects made only of tags are studies
// too, and anything else is decoded as an admission record.
func Decode(data []byte) (Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return Record{}, fmt.Errorf("%w: expected a JSON object", ErrUnrecognized)
	}
	if dicomweb.HasTag(obj, dicomweb.TagPatientName) {
		return FromStudy(dicomweb.FromObject(obj)), nil
	}
	if md, err := dicomweb.Parse(data); err == nil {
		return FromStudy(md), nil
	}

	var rec admission.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	return FromAdmission(&rec), nil
}
