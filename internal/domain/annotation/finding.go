// Package annotation defines the anomaly annotator contract and a rule-driven
// stand-in for a detection model.
package annotation

import (
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

// Status is the outcome of an annotation.
type Status string

const (
	StatusAnomalyDetected Status = "ANOMALY_DETECTED"
	StatusNormal          Status = "NORMAL"
)

// SegmentationSOPClassUID is the Segmentation Storage SOP class.
const SegmentationSOPClassUID = "1.2.840.10008.5.1.4.1.1.66.4"

// DefaultReferencedSOP is referenced when the subject carries no study UID.
const DefaultReferencedSOP = "1.2.3"

// Subject is what an annotator reads from a source record.
type Subject interface {
	SubjectName() string
	StudyInstanceUID() string
}

// Annotator maps a subject to a finding. Implementations must be total and
// safe for concurrent use.
type Annotator interface {
	Annotate(s Subject) Finding
}

// Finding is created fresh on every call and never mutated afterwards.
// Segmentation is set only when Status is StatusAnomalyDetected.
type Finding struct {
	Status       Status        `json:"status"`
	Finding      string        `json:"finding"`
	Probability  float64       `json:"probability"`
	Segmentation *Segmentation `json:"segObject"`
}

// Anomalous reports whether the finding flags an anomaly.
func (f Finding) Anomalous() bool {
	return f.Status == StatusAnomalyDetected
}

// Segmentation references a DICOM SEG object, with attributes in DICOM JSON
// form.
type Segmentation struct {
	SOPClassUID          dicomweb.Attribute `json:"00080016"`
	SegmentAlgorithmType dicomweb.Attribute `json:"00620002"`
	SegmentLabel         dicomweb.Attribute `json:"00620005"`
	ReferencedSOP        string             `json:"referencedSOP"`
}

// NewSegmentation builds a segmentation reference for a study.
func NewSegmentation(algorithm, label, referencedSOP string) *Segmentation {
	if referencedSOP == "" {
		referencedSOP = DefaultReferencedSOP
	}
	return &Segmentation{
		SOPClassUID:          dicomweb.Strings("UI", SegmentationSOPClassUID),
		SegmentAlgorithmType: dicomweb.Strings("CS", algorithm),
		SegmentLabel:         dicomweb.Strings("LO", label),
		ReferencedSOP:        referencedSOP,
	}
}
