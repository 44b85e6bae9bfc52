package imaging

import (
	"github.com/gcasillas/clinical-imaging/internal/platform/fhir"
)

const (
	ResourceType = "ImagingStudy"

	// StatusAvailable is the only status this gateway produces.
	StatusAvailable = "available"

	// UndefinedID is the id suffix used when no identifier can be resolved.
	UndefinedID = "undefined"

	// ModalitySystemDCM is the DICOM controlled terminology system.
	ModalitySystemDCM = "http://dicom.nema.org/resources/ontology/DCM"

	// IdentifierSystemDICOMUID marks identifiers holding a study UID.
	IdentifierSystemDICOMUID = "urn:dicom:uid"

	// AdmissionDescription marks studies derived from an HL7 admission.
	AdmissionDescription = "Inbound HL7 Admission"

	// AdmissionModality is the modality assumed for admissions.
	AdmissionModality = "CT"
)

// ImagingStudy is the subset of the FHIR ImagingStudy resource produced by
// the mapper. Modality always has exactly one element and Started is either
// a full YYYY-MM-DD date or empty.
type ImagingStudy struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Identifier   []fhir.Identifier `json:"identifier,omitempty"`
	Status       string            `json:"status"`
	Subject      fhir.Reference    `json:"subject"`
	Description  string            `json:"description,omitempty"`
	Started      string            `json:"started,omitempty"`
	Modality     []fhir.Coding     `json:"modality"`
}
