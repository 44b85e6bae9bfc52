// Package dicomweb models DICOM study metadata in the DICOM JSON form used by
// DICOMweb (PS3.18 F.2): an object keyed by 8-hex-digit tags whose values are
// {"vr": ..., "Value": [...]} wrappers.
//
// Absence of a tag is a normal state. Every accessor reports presence with a
// boolean so callers choose their own default explicitly.
package dicomweb

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrInvalidMetadata is returned when a payload cannot be read as a DICOM JSON
// object.
var ErrInvalidMetadata = errors.New("dicomweb: invalid DICOM JSON metadata")

var tagKey = regexp.MustCompile(`^[0-9A-F]{8}$`)

// Tag keys read by the mapping pipeline.
var (
	TagStudyInstanceUID = Key(tag.StudyInstanceUID) // 0020000D
	TagPatientName      = Key(tag.PatientName)      // 00100010
	TagPatientID        = Key(tag.PatientID)        // 00100020
	TagModality         = Key(tag.Modality)         // 00080060
	TagStudyDate        = Key(tag.StudyDate)        // 00080020
	TagStudyDescription = Key(tag.StudyDescription) // 00081030
	TagSOPClassUID      = Key(tag.SOPClassUID)      // 00080016
	TagSOPInstanceUID   = Key(tag.SOPInstanceUID)   // 00080018
	TagAccessionNumber  = Key(tag.AccessionNumber)  // 00080050
)

// Key formats a tag as the 8-hex-digit uppercase key used by DICOM JSON.
func Key(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// Attribute is the value wrapper of a single tag.
type Attribute struct {
	VR    string            `json:"vr,omitempty"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

// PersonName is the structured value of a PN attribute.
type PersonName struct {
	Alphabetic  string `json:"Alphabetic,omitempty"`
	Ideographic string `json:"Ideographic,omitempty"`
	Phonetic    string `json:"Phonetic,omitempty"`
}

// Metadata is a partial mapping from tag key to attribute. It is never
// mutated by readers.
type Metadata map[string]Attribute

// Parse decodes a DICOM JSON object. Keys are upper-cased; keys that are not
// 8 hex digits are rejected.
func Parse(data []byte) (Metadata, error) {
	var raw map[string]Attribute
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidMetadata)
	}

	md := make(Metadata, len(raw))
	for k, attr := range raw {
		key := strings.ToUpper(k)
		if !tagKey.MatchString(key) {
			return nil, fmt.Errorf("%w: %q is not a tag key", ErrInvalidMetadata, k)
		}
		md[key] = attr
	}
	return md, nil
}

// FromObject reads the tag entries of an already split JSON object. Keys that
// are not tags and values that are not attribute wrappers are skipped.
func FromObject(obj map[string]json.RawMessage) Metadata {
	md := make(Metadata, len(obj))
	for k, raw := range obj {
		key := strings.ToUpper(k)
		if !tagKey.MatchString(key) {
			continue
		}
		var attr Attribute
		if err := json.Unmarshal(raw, &attr); err != nil {
			continue
		}
		md[key] = attr
	}
	return md
}

// HasTag reports whether obj carries key, in any letter case.
func HasTag(obj map[string]json.RawMessage, key string) bool {
	for k := range obj {
		if strings.ToUpper(k) == key {
			return true
		}
	}
	return false
}

// Lookup returns the attribute stored under key.
func (m Metadata) Lookup(key string) (Attribute, bool) {
	attr, ok := m[key]
	return attr, ok
}

// Has reports whether key is present, regardless of its value.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the first value of key as text. String values are returned
// as is and numbers in their JSON form. Empty strings count as absent.
func (m Metadata) String(key string) (string, bool) {
	attr, ok := m[key]
	if !ok || len(attr.Value) == 0 {
		return "", false
	}
	return scalar(attr.Value[0])
}

// PersonName returns the Alphabetic component of the first value of key. A
// plain string value is accepted as the alphabetic form.
func (m Metadata) PersonName(key string) (string, bool) {
	attr, ok := m[key]
	if !ok || len(attr.Value) == 0 {
		return "", false
	}

	var pn PersonName
	if err := json.Unmarshal(attr.Value[0], &pn); err == nil {
		if pn.Alphabetic == "" {
			return "", false
		}
		return pn.Alphabetic, true
	}
	return scalar(attr.Value[0])
}

func scalar(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// Set stores attr under key, returning m for chaining. It is meant for
// building metadata, not for mutating input that readers hold.
func (m Metadata) Set(key string, attr Attribute) Metadata {
	m[key] = attr
	return m
}

// Strings builds an attribute holding string values.
func Strings(vr string, values ...string) Attribute {
	attr := Attribute{VR: vr}
	for _, v := range values {
		b, _ := json.Marshal(v)
		attr.Value = append(attr.Value, b)
	}
	return attr
}

// Numbers builds an attribute holding numeric values.
func Numbers(vr string, values ...float64) Attribute {
	attr := Attribute{VR: vr}
	for _, v := range values {
		attr.Value = append(attr.Value, json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64)))
	}
	return attr
}

// PersonNames builds a PN attribute from alphabetic name strings.
func PersonNames(alphabetic ...string) Attribute {
	attr := Attribute{VR: "PN"}
	for _, v := range alphabetic {
		b, _ := json.Marshal(PersonName{Alphabetic: v})
		attr.Value = append(attr.Value, b)
	}
	return attr
}
