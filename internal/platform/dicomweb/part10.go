package dicomweb

import (
	"fmt"

	"github.com/suyashkumar/dicom"
)

// ReadPart10 parses a DICOM Part 10 file, skipping pixel data, and converts
// its header into Metadata.
func ReadPart10(path string) (Metadata, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("dicomweb: parse %s: %w", path, err)
	}
	return FromDataset(ds), nil
}

// FromDataset converts the string and numeric elements of ds into Metadata.
// Sequences, binary values and pixel data are not carried over. PN values are
// wrapped as {"Alphabetic": ...}.
func FromDataset(ds dicom.Dataset) Metadata {
	md := make(Metadata, len(ds.Elements))
	for _, elem := range ds.Elements {
		if elem == nil || elem.Value == nil {
			continue
		}
		vr := elem.RawValueRepresentation
		key := Key(elem.Tag)

		switch v := elem.Value.GetValue().(type) {
		case []string:
			if len(v) == 0 {
				continue
			}
			if vr == "PN" {
				md[key] = PersonNames(v...)
			} else {
				md[key] = Strings(vr, v...)
			}
		case []int:
			if len(v) == 0 {
				continue
			}
			nums := make([]float64, len(v))
			for i, n := range v {
				nums[i] = float64(n)
			}
			md[key] = Numbers(vr, nums...)
		case []float64:
			if len(v) == 0 {
				continue
			}
			md[key] = Numbers(vr, v...)
		}
	}
	return md
}
