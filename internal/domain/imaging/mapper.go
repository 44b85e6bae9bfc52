package imaging

import (
	"time"

	"github.com/gcasillas/clinical-imaging/internal/domain/source"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
	"github.com/gcasillas/clinical-imaging/internal/platform/fhir"
)

// Mapper converts source records into ImagingStudy resources. It never fails:
// every field has a defined default.
type Mapper struct {
	now func() time.Time
}

// NewMapper returns a Mapper whose admission branch dates studies with now.
// A nil now uses time.Now.
func NewMapper(now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{now: now}
}

// Map branches on the presence of the patient name tag: records carrying
// 00100010 are mapped from DICOM attributes, all others as admissions.
func (m *Mapper) Map(src source.Record) ImagingStudy {
	if src.IsStudy() {
		return mapStudy(src.Study)
	}
	return m.mapAdmission(src)
}

func mapStudy(md dicomweb.Metadata) ImagingStudy {
	study := ImagingStudy{
		ResourceType: ResourceType,
		ID:           "fhir-" + UndefinedID,
		Status:       StatusAvailable,
		Modality:     []fhir.Coding{{}},
	}

	if uid, ok := md.String(dicomweb.TagStudyInstanceUID); ok {
		study.ID = "fhir-" + uid
		study.Identifier = []fhir.Identifier{{
			System: IdentifierSystemDICOMUID,
			Value:  "urn:oid:" + uid,
		}}
	}
	if name, ok := md.PersonName(dicomweb.TagPatientName); ok {
		study.Subject.Display = name
	}
	if desc, ok := md.String(dicomweb.TagStudyDescription); ok {
		study.Description = desc
	}
	if raw, ok := md.String(dicomweb.TagStudyDate); ok {
		if date, ok := FormatDicomDate(raw); ok {
			study.Started = date
		}
	}
	if code, ok := md.String(dicomweb.TagModality); ok {
		study.Modality[0] = fhir.Coding{System: ModalitySystemDCM, Code: code}
	}
	return study
}

func (m *Mapper) mapAdmission(src source.Record) ImagingStudy {
	id := UndefinedID
	if src.Admission != nil && src.Admission.ID != "" {
		id = src.Admission.ID
	}
	return ImagingStudy{
		ResourceType: ResourceType,
		ID:           "fhir-" + id,
		Status:       StatusAvailable,
		Subject:      fhir.Reference{Display: src.Admission.SubjectName()},
		Description:  AdmissionDescription,
		Started:      m.now().UTC().Format("2006-01-02"),
		Modality:     []fhir.Coding{{System: ModalitySystemDCM, Code: AdmissionModality}},
	}
}

// FormatDicomDate rewrites a DICOM DA value (YYYYMMDD) as YYYY-MM-DD. Any
// value that is not exactly 8 characters long yields false, never a partial
// date.
func FormatDicomDate(s string) (string, bool) {
	r := []rune(s)
	if len(r) != 8 {
		return "", false
	}
	return string(r[0:4]) + "-" + string(r[4:6]) + "-" + string(r[6:8]), true
}
